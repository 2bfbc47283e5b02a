package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ARandomInvestor/amfeix-api/cache"
	"github.com/ARandomInvestor/amfeix-api/entities"
	"github.com/ARandomInvestor/amfeix-api/queue"
	"github.com/ARandomInvestor/amfeix-api/record"
	"github.com/ARandomInvestor/amfeix-api/units"
	"github.com/ARandomInvestor/amfeix-api/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultContractAddress = "0xb0963da9baef08711583252f5000Df44D4F56925"
	// SpecialStorageAddress is the reserved row owner confirmation records are posted under.
	SpecialStorageAddress = "0x0000000000000000000000000000000000000000"

	// ExtraWithdrawalFeeEnabled is when the late withdrawal fee came into force.
	ExtraWithdrawalFeeEnabled int64 = 1591055000
	// ExtraRequestVerificationEnabled is when withdrawal requests started
	// carrying a verified signature.
	ExtraRequestVerificationEnabled int64 = 1592915984

	callTries = 5
)

const (
	decimalsTTL    = time.Hour
	feeTTL         = 15 * time.Minute
	performanceTTL = 15 * time.Minute
	investorsTTL   = time.Hour
	specialTxTTL   = time.Hour
)

// StorageContract reads the fund ledger. Every call is routed through the
// queue and retried.
type StorageContract struct {
	caller Caller
	cache  *cache.Provider
	queue  *queue.Queue
	logger *logrus.Entry
}

func NewStorageContract(caller Caller, c *cache.Provider, q *queue.Queue, logger *logrus.Entry) *StorageContract {
	return &StorageContract{
		caller: caller,
		cache:  c,
		queue:  q,
		logger: utils.ComponentLogger(logger, "ledger"),
	}
}

// call runs method through the queue, caching the converted value under key
// for ttl when key is set.
func call[T any](ctx context.Context, s *StorageContract, key string, ttl time.Duration, convert func([]interface{}) (T, error), method string, args ...interface{}) (T, error) {
	return queue.Retry(ctx, callTries, func(ctx context.Context) (T, error) {
		return queue.Fetch[T](ctx, s.queue, queue.Request{
			CacheKey: key,
			TTL:      ttl,
			Operation: func(ctx context.Context) (interface{}, error) {
				out, err := s.caller.Call(ctx, method, args...)
				if err != nil {
					return nil, err
				}
				v, err := convert(out)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", method, err)
				}
				return v, nil
			},
		})
	})
}

func asBig(out []interface{}, i int) (*big.Int, error) {
	if len(out) <= i {
		return nil, fmt.Errorf("missing output %d", i)
	}
	v, ok := out[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("output %d is %T, not an integer", i, out[i])
	}
	return v, nil
}

func asString(out []interface{}, i int) (string, error) {
	if len(out) <= i {
		return "", fmt.Errorf("missing output %d", i)
	}
	switch v := out[i].(type) {
	case string:
		return v, nil
	case common.Address:
		return v.Hex(), nil
	}
	return "", fmt.Errorf("output %d is %T, not a string", i, out[i])
}

func toInt(out []interface{}) (int, error) {
	v, err := asBig(out, 0)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("value %s out of range", v)
	}
	return int(v.Int64()), nil
}

func toDecimal(out []interface{}) (decimal.Decimal, error) {
	v, err := asBig(out, 0)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(v, 0), nil
}

func toString(out []interface{}) (string, error) {
	return asString(out, 0)
}

func toAddresses(out []interface{}) ([]string, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("missing output 0")
	}
	addrs, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("output 0 is %T, not an address list", out[0])
	}
	list := make([]string, len(addrs))
	for i, a := range addrs {
		list[i] = a.Hex()
	}
	return list, nil
}

func (s *StorageContract) GetDecimals(ctx context.Context) (int32, error) {
	v, err := call(ctx, s, "decimals", decimalsTTL, toInt, "decimals")
	return int32(v), err
}

// GetFee1 is the late withdrawal fee in percent.
func (s *StorageContract) GetFee1(ctx context.Context) (decimal.Decimal, error) {
	return call(ctx, s, "getFee1", feeTTL, toDecimal, "fee1")
}

// GetFee2 is the referrer fee.
func (s *StorageContract) GetFee2(ctx context.Context) (decimal.Decimal, error) {
	return call(ctx, s, "getFee2", feeTTL, toDecimal, "fee2")
}

func (s *StorageContract) GetFee3(ctx context.Context) (decimal.Decimal, error) {
	return call(ctx, s, "getFee3", feeTTL, toDecimal, "fee3")
}

func (s *StorageContract) GetOwner(ctx context.Context) (string, error) {
	return call(ctx, s, "getOwner", feeTTL, toString, "owner")
}

// GetAUM is the assets under management in whole units.
func (s *StorageContract) GetAUM(ctx context.Context) (decimal.Decimal, error) {
	if v, ok := cache.Get[decimal.Decimal](s.cache, "getAUM"); ok {
		return v, nil
	}
	raw, err := call(ctx, s, "", 0, toDecimal, "aum")
	if err != nil {
		return decimal.Zero, err
	}
	decimals, err := s.GetDecimals(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	aum := raw.Shift(-decimals).Round(0)
	s.cache.SetCache("getAUM", aum, 0)
	return aum, nil
}

func (s *StorageContract) GetInvestors(ctx context.Context) ([]string, error) {
	return call(ctx, s, "getInvestors", investorsTTL, toAddresses, "getAllInvestors")
}

func (s *StorageContract) refreshInvestors(ctx context.Context) ([]string, error) {
	s.cache.SetCache("getInvestors", nil, 0)
	investors, err := s.GetInvestors(ctx)
	if err != nil {
		return nil, err
	}
	lower := make([]string, len(investors))
	for i, v := range investors {
		lower[i] = strings.ToLower(v)
	}
	if err := s.cache.SetFileCache("contract", "getInvestorsCache", lower); err != nil {
		s.logger.WithError(err).Warn("could not persist investor list")
	}
	return lower, nil
}

func indexOf(list []string, v string) int {
	for i, e := range list {
		if e == v {
			return i
		}
	}
	return -1
}

// GetAccountIndex resolves the enrolment position of an Ethereum address. An
// address missing from the persisted list triggers one fresh fetch, after
// that it is reported as not enrolled.
func (s *StorageContract) GetAccountIndex(ctx context.Context, ethAddress string) (int, bool, error) {
	address := strings.ToLower(ethAddress)

	var investors []string
	fresh := false
	if !s.cache.GetFileCache("contract", "getInvestorsCache", &investors) {
		var err error
		if investors, err = s.refreshInvestors(ctx); err != nil {
			return -1, false, err
		}
		fresh = true
	}
	if idx := indexOf(investors, address); idx >= 0 {
		return idx, true, nil
	}
	if fresh {
		return -1, false, nil
	}

	// the persisted list may predate the enrolment
	investors, err := s.refreshInvestors(ctx)
	if err != nil {
		return -1, false, err
	}
	if idx := indexOf(investors, address); idx >= 0 {
		return idx, true, nil
	}
	return -1, false, nil
}

func toPerformance(out []interface{}) ([]*big.Int, []*big.Int, error) {
	if len(out) < 2 {
		return nil, nil, fmt.Errorf("expected 2 outputs, got %d", len(out))
	}
	times, ok := out[0].([]*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("output 0 is %T", out[0])
	}
	values, ok := out[1].([]*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("output 1 is %T", out[1])
	}
	if len(times) != len(values) {
		return nil, nil, fmt.Errorf("mismatched series lengths %d and %d", len(times), len(values))
	}
	return times, values, nil
}

type performanceSeries struct {
	times, values []*big.Int
}

// GetFundPerformance returns the percent return of each period, rounded to
// three places.
func (s *StorageContract) GetFundPerformance(ctx context.Context) ([]entities.PerformanceEntry, error) {
	if index, ok := cache.Get[[]entities.PerformanceEntry](s.cache, "getFundPerformance"); ok {
		return index, nil
	}
	series, err := call(ctx, s, "", 0, func(out []interface{}) (performanceSeries, error) {
		t, a, err := toPerformance(out)
		return performanceSeries{times: t, values: a}, err
	}, "getAll")
	if err != nil {
		return nil, err
	}
	decimals, err := s.GetDecimals(ctx)
	if err != nil {
		return nil, err
	}

	index := make([]entities.PerformanceEntry, len(series.times))
	for i := range series.times {
		index[i] = entities.PerformanceEntry{
			Time:  series.times[i].Int64(),
			Value: decimal.NewFromBigInt(series.values[i], -decimals).Round(3),
		}
	}
	s.cache.SetCache("getFundPerformance", index, performanceTTL)
	return index, nil
}

// allValues runs the count then fetch pattern, fetching items concurrently
// while keeping ledger order.
func allValues[T any](ctx context.Context, count func(ctx context.Context) (int, error), get func(ctx context.Context, n int) (T, error)) ([]T, error) {
	c, err := count(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]T, c)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(queue.DefaultConcurrency)
	for n := 0; n < c; n++ {
		g.Go(func() error {
			v, err := get(gctx, n)
			if err != nil {
				return err
			}
			list[n] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return list, nil
}

// durable reads (typ, key) from the durable cache, fetching and persisting it on a miss.
func durable[T any](ctx context.Context, s *StorageContract, typ, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	var v T
	if s.cache.GetFileCache(typ, key, &v) {
		return v, nil
	}
	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	if err := s.cache.SetFileCache(typ, key, v); err != nil {
		s.logger.WithError(err).WithField("key", typ+"/"+key).Warn("could not persist ledger entry")
	}
	return v, nil
}

func (s *StorageContract) GetDepositAddressCount(ctx context.Context) (int, error) {
	return call(ctx, s, "getDepositAddressCount", 0, toInt, "fundDepositAddressesLength")
}

func (s *StorageContract) GetDepositAddress(ctx context.Context, n int) (string, error) {
	return durable(ctx, s, "contract", "deposit_address_"+strconv.Itoa(n), func(ctx context.Context) (string, error) {
		return call(ctx, s, "", 0, toString, "fundDepositAddresses", big.NewInt(int64(n)))
	})
}

// GetDepositAddresses lists the fund's Bitcoin deposit addresses.
func (s *StorageContract) GetDepositAddresses(ctx context.Context) ([]string, error) {
	return allValues(ctx, s.GetDepositAddressCount, s.GetDepositAddress)
}

func (s *StorageContract) GetFeeAddressCount(ctx context.Context) (int, error) {
	return call(ctx, s, "getFeeAddressCount", 0, toInt, "feeAddressesLength")
}

func (s *StorageContract) GetFeeAddress(ctx context.Context, n int) (string, error) {
	return durable(ctx, s, "contract", "fee_address_"+strconv.Itoa(n), func(ctx context.Context) (string, error) {
		return call(ctx, s, "", 0, toString, "feeAddresses", big.NewInt(int64(n)))
	})
}

func (s *StorageContract) GetFeeAddresses(ctx context.Context) ([]string, error) {
	return allValues(ctx, s.GetFeeAddressCount, s.GetFeeAddress)
}

func hexAddress(address string) (common.Address, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, fmt.Errorf("invalid ethereum address %q", address)
	}
	return common.HexToAddress(address), nil
}

func rowKey(address string, n int) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")) + "_" + strconv.Itoa(n)
}

// GetTxCount is the number of ledger rows of address. Only the special
// address count is cached.
func (s *StorageContract) GetTxCount(ctx context.Context, address string) (int, error) {
	addr, err := hexAddress(address)
	if err != nil {
		return 0, err
	}
	if addr == common.HexToAddress(SpecialStorageAddress) {
		return call(ctx, s, "getTxCount_specialStorageAddress", specialTxTTL, toInt, "ntx", addr)
	}
	return call(ctx, s, "", 0, toInt, "ntx", addr)
}

func toLedgerTx(out []interface{}) (entities.LedgerTx, error) {
	var tx entities.LedgerTx
	var err error
	if tx.TxID, err = asString(out, 0); err != nil {
		return tx, err
	}
	if tx.PubKey, err = asString(out, 1); err != nil {
		return tx, err
	}
	if tx.Signature, err = asString(out, 2); err != nil {
		return tx, err
	}
	action, err := asBig(out, 3)
	if err != nil {
		return tx, err
	}
	tx.Action = int(action.Int64())
	timestamp, err := asBig(out, 4)
	if err != nil {
		return tx, err
	}
	tx.Time = timestamp.Int64()
	return tx, nil
}

func (s *StorageContract) GetTx(ctx context.Context, address string, n int) (entities.LedgerTx, error) {
	addr, err := hexAddress(address)
	if err != nil {
		return entities.LedgerTx{}, err
	}
	return durable(ctx, s, "contract_tx", rowKey(address, n), func(ctx context.Context) (entities.LedgerTx, error) {
		return call(ctx, s, "", 0, toLedgerTx, "fundTx", addr, big.NewInt(int64(n)))
	})
}

func (s *StorageContract) GetTxs(ctx context.Context, address string) ([]entities.LedgerTx, error) {
	return allValues(ctx,
		func(ctx context.Context) (int, error) { return s.GetTxCount(ctx, address) },
		func(ctx context.Context, n int) (entities.LedgerTx, error) { return s.GetTx(ctx, address, n) },
	)
}

func (s *StorageContract) GetWithdrawRequestCount(ctx context.Context, address string) (int, error) {
	addr, err := hexAddress(address)
	if err != nil {
		return 0, err
	}
	return call(ctx, s, "", 0, toInt, "rtx", addr)
}

func toWithdrawalRequest(out []interface{}) (entities.WithdrawalRequest, error) {
	tx, err := toLedgerTx(out)
	if err != nil {
		return entities.WithdrawalRequest{}, err
	}
	req := entities.WithdrawalRequest{
		TxID:      tx.TxID,
		PubKey:    tx.PubKey,
		Signature: tx.Signature,
		Action:    tx.Action,
		Time:      tx.Time,
	}
	if req.Referral, err = asString(out, 5); err != nil {
		return req, err
	}
	return req, nil
}

func (s *StorageContract) GetWithdrawRequest(ctx context.Context, address string, n int) (entities.WithdrawalRequest, error) {
	addr, err := hexAddress(address)
	if err != nil {
		return entities.WithdrawalRequest{}, err
	}
	return durable(ctx, s, "contract_rtx", rowKey(address, n), func(ctx context.Context) (entities.WithdrawalRequest, error) {
		return call(ctx, s, "", 0, toWithdrawalRequest, "reqWD", addr, big.NewInt(int64(n)))
	})
}

func (s *StorageContract) GetWithdrawRequests(ctx context.Context, address string) ([]entities.WithdrawalRequest, error) {
	return allValues(ctx,
		func(ctx context.Context) (int, error) { return s.GetWithdrawRequestCount(ctx, address) },
		func(ctx context.Context, n int) (entities.WithdrawalRequest, error) {
			return s.GetWithdrawRequest(ctx, address, n)
		},
	)
}

// GetWithdrawalConfirmationRecords parses the withdraw rows of the special
// address. Rows that do not decode are logged and skipped.
func (s *StorageContract) GetWithdrawalConfirmationRecords(ctx context.Context) ([]*record.Record, error) {
	if records, ok := cache.Get[[]*record.Record](s.cache, "getWithdrawalConfirmationRecords"); ok {
		return records, nil
	}
	txs, err := s.GetTxs(ctx, SpecialStorageAddress)
	if err != nil {
		return nil, err
	}

	records := make([]*record.Record, 0, len(txs))
	for n, tx := range txs {
		if tx.Action != entities.ActionWithdraw {
			continue
		}
		r, err := record.FromReturnInvestmentData(record.NewEnvelope(SpecialStorageAddress, tx.TxID, tx.PubKey, tx.Signature))
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{"row": n, "txid": tx.TxID}).Warn("invalid confirmation record")
			continue
		}
		records = append(records, r)
	}
	s.cache.SetCache("getWithdrawalConfirmationRecords", records, 0)
	return records, nil
}

func (s *StorageContract) GetEthereumBalance(ctx context.Context, address string) (units.Ether, error) {
	wei, err := queue.Retry(ctx, callTries, func(ctx context.Context) (*big.Int, error) {
		return queue.Fetch[*big.Int](ctx, s.queue, queue.Request{
			Operation: func(ctx context.Context) (interface{}, error) {
				v, err := s.caller.BalanceAt(ctx, address)
				if err != nil {
					return nil, err
				}
				return v, nil
			},
		})
	})
	if err != nil {
		return units.Ether{}, err
	}
	return units.FromWeiBig(wei), nil
}
