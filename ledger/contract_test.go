package ledger

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"testing"

	"github.com/ARandomInvestor/amfeix-api/cache"
	"github.com/ARandomInvestor/amfeix-api/queue"
	"github.com/ARandomInvestor/amfeix-api/record"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const investorA = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

type fakeCaller struct {
	mu       sync.Mutex
	methods  map[string]func(args []interface{}) ([]interface{}, error)
	failures map[string]int
	calls    map[string]int
	balances map[string]*big.Int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		methods:  map[string]func(args []interface{}) ([]interface{}, error){},
		failures: map[string]int{},
		calls:    map[string]int{},
		balances: map[string]*big.Int{},
	}
}

func (f *fakeCaller) returns(method string, values ...interface{}) {
	f.methods[method] = func([]interface{}) ([]interface{}, error) { return values, nil }
}

func (f *fakeCaller) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeCaller) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	f.mu.Lock()
	f.calls[method]++
	if f.failures[method] > 0 {
		f.failures[method]--
		f.mu.Unlock()
		return nil, errors.New("execution reverted")
	}
	fn, ok := f.methods[method]
	f.mu.Unlock()
	if !ok {
		return nil, errors.New("no such method " + method)
	}
	return fn(args)
}

func (f *fakeCaller) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["balance"]++
	v, ok := f.balances[address]
	if !ok {
		return nil, errors.New("unknown account")
	}
	return v, nil
}

func newTestContract(t *testing.T, caller Caller, store cache.Store) (*StorageContract, *test.Hook) {
	t.Helper()
	c := cache.NewProvider(nil, store)
	q := queue.New(queue.DefaultConcurrency, c.Memory(), nil)
	t.Cleanup(func() {
		q.Close()
		c.Memory().Stop()
	})
	logger, hook := test.NewNullLogger()
	return NewStorageContract(caller, c, q, logrus.NewEntry(logger)), hook
}

func TestSingleValuesCached(t *testing.T) {
	caller := newFakeCaller()
	caller.returns("decimals", big.NewInt(6))
	caller.returns("fee1", big.NewInt(2))
	caller.returns("fee2", big.NewInt(10))
	caller.returns("owner", common.HexToAddress(investorA))
	c, _ := newTestContract(t, caller, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := c.GetDecimals(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(6), d)
	}
	assert.Equal(t, 1, caller.count("decimals"))

	fee1, err := c.GetFee1(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", fee1.String())
	fee2, err := c.GetFee2(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10", fee2.String())

	owner, err := c.GetOwner(ctx)
	require.NoError(t, err)
	assert.Equal(t, investorA, owner)
}

func TestCallRetries(t *testing.T) {
	caller := newFakeCaller()
	caller.returns("fee3", big.NewInt(1))
	caller.failures["fee3"] = callTries - 1
	c, _ := newTestContract(t, caller, nil)

	v, err := c.GetFee3(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", v.String())
	assert.Equal(t, callTries, caller.count("fee3"))
}

func TestCallGivesUp(t *testing.T) {
	caller := newFakeCaller()
	caller.returns("fee3", big.NewInt(1))
	caller.failures["fee3"] = callTries
	c, _ := newTestContract(t, caller, nil)

	_, err := c.GetFee3(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution reverted")
	assert.Equal(t, callTries, caller.count("fee3"))
}

func TestCallRejectsUnexpectedOutput(t *testing.T) {
	caller := newFakeCaller()
	caller.returns("decimals", "six")
	c, _ := newTestContract(t, caller, nil)

	_, err := c.GetDecimals(context.Background())
	assert.Error(t, err)
}

func TestGetAUM(t *testing.T) {
	caller := newFakeCaller()
	caller.returns("decimals", big.NewInt(6))
	caller.returns("aum", big.NewInt(123456789))
	c, _ := newTestContract(t, caller, nil)

	aum, err := c.GetAUM(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "123", aum.String())

	_, err = c.GetAUM(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, caller.count("aum"))
}

func TestGetFundPerformance(t *testing.T) {
	caller := newFakeCaller()
	caller.returns("decimals", big.NewInt(6))
	caller.returns("getAll",
		[]*big.Int{big.NewInt(1000), big.NewInt(2000), big.NewInt(3000)},
		[]*big.Int{big.NewInt(5000000), big.NewInt(-2000000), big.NewInt(1234567)},
	)
	c, _ := newTestContract(t, caller, nil)

	index, err := c.GetFundPerformance(context.Background())
	require.NoError(t, err)
	require.Len(t, index, 3)
	assert.Equal(t, int64(1000), index[0].Time)
	assert.Equal(t, "5", index[0].Value.String())
	assert.Equal(t, "-2", index[1].Value.String())
	assert.Equal(t, "1.235", index[2].Value.String())
}

func TestGetFundPerformanceMismatchedSeries(t *testing.T) {
	caller := newFakeCaller()
	caller.returns("decimals", big.NewInt(6))
	caller.returns("getAll", []*big.Int{big.NewInt(1)}, []*big.Int{})
	c, _ := newTestContract(t, caller, nil)

	_, err := c.GetFundPerformance(context.Background())
	assert.Error(t, err)
}

func TestDepositAddressesDurable(t *testing.T) {
	store := cache.NewFileStore(t.TempDir())
	caller := newFakeCaller()
	caller.returns("fundDepositAddressesLength", big.NewInt(3))
	caller.methods["fundDepositAddresses"] = func(args []interface{}) ([]interface{}, error) {
		n := args[0].(*big.Int).Int64()
		return []interface{}{[]string{"1First", "3Second", "bc1third"}[n]}, nil
	}
	c, _ := newTestContract(t, caller, store)

	addrs, err := c.GetDepositAddresses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1First", "3Second", "bc1third"}, addrs)

	// a fresh process reads the items back from disk
	again, _ := newTestContract(t, caller, store)
	addrs, err = again.GetDepositAddresses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1First", "3Second", "bc1third"}, addrs)
	assert.Equal(t, 3, caller.count("fundDepositAddresses"))
	assert.Equal(t, 2, caller.count("fundDepositAddressesLength"))
}

func TestFeeAddresses(t *testing.T) {
	caller := newFakeCaller()
	caller.returns("feeAddressesLength", big.NewInt(1))
	caller.returns("feeAddresses", "1Fee")
	c, _ := newTestContract(t, caller, nil)

	addrs, err := c.GetFeeAddresses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1Fee"}, addrs)
}

func TestGetAccountIndex(t *testing.T) {
	store := cache.NewFileStore(t.TempDir())
	other := "0x0000000000000000000000000000000000000001"
	late := "0x00000000000000000000000000000000000000AA"
	investors := []common.Address{common.HexToAddress(other), common.HexToAddress(investorA)}
	caller := newFakeCaller()
	caller.methods["getAllInvestors"] = func([]interface{}) ([]interface{}, error) {
		return []interface{}{investors}, nil
	}
	c, _ := newTestContract(t, caller, store)
	ctx := context.Background()

	idx, ok, err := c.GetAccountIndex(ctx, "0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 1, caller.count("getAllInvestors"))

	// enrolled after the list was persisted
	investors = append(investors, common.HexToAddress(late))
	idx, ok, err = c.GetAccountIndex(ctx, late)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 2, caller.count("getAllInvestors"))

	idx, ok, err = c.GetAccountIndex(ctx, "0x00000000000000000000000000000000000000BB")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, -1, idx)
	assert.Equal(t, 3, caller.count("getAllInvestors"))
}

func ledgerRow(txid, pubkey, signature string, action, timestamp int64) []interface{} {
	return []interface{}{txid, pubkey, signature, big.NewInt(action), big.NewInt(timestamp)}
}

func TestGetTxs(t *testing.T) {
	store := cache.NewFileStore(t.TempDir())
	caller := newFakeCaller()
	caller.returns("ntx", big.NewInt(2))
	caller.methods["fundTx"] = func(args []interface{}) ([]interface{}, error) {
		switch args[1].(*big.Int).Int64() {
		case 0:
			return ledgerRow("aa", "02pub", "sig", 0, 1589000000), nil
		default:
			return ledgerRow("aa", "02pub", "sig", 1, 1590000000), nil
		}
	}
	c, _ := newTestContract(t, caller, store)

	txs, err := c.GetTxs(context.Background(), investorA)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, 0, txs[0].Action)
	assert.Equal(t, int64(1589000000), txs[0].Time)
	assert.Equal(t, 1, txs[1].Action)

	_, ok := store.Load("contract_tx", "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed_1")
	assert.True(t, ok)

	_, err = c.GetTxs(context.Background(), "not-an-address")
	assert.Error(t, err)
}

func TestSpecialAddressCountCached(t *testing.T) {
	caller := newFakeCaller()
	caller.returns("ntx", big.NewInt(0))
	c, _ := newTestContract(t, caller, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.GetTxCount(ctx, SpecialStorageAddress)
		require.NoError(t, err)
		_, err = c.GetTxCount(ctx, investorA)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, caller.count("ntx"))
}

func TestGetWithdrawRequests(t *testing.T) {
	caller := newFakeCaller()
	caller.returns("rtx", big.NewInt(1))
	caller.returns("reqWD", "aa", "02pub", "H+sig", big.NewInt(1), big.NewInt(1593000000), common.Address{})
	c, _ := newTestContract(t, caller, nil)

	reqs, err := c.GetWithdrawRequests(context.Background(), investorA)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "H+sig", reqs[0].Signature)
	assert.Equal(t, int64(1593000000), reqs[0].Time)
	assert.Equal(t, SpecialStorageAddress, reqs[0].Referral)
}

func TestGetWithdrawalConfirmationRecords(t *testing.T) {
	r := record.New()
	require.NoError(t, r.SetTime(1600000000))
	require.NoError(t, r.AddPaymentEntry(1, 0, 100000, "", true))
	envelope, err := r.ReturnInvestmentData(SpecialStorageAddress)
	require.NoError(t, err)
	entries, signature := envelope.Parameters[2].Value, envelope.Parameters[3].Value

	rows := [][]interface{}{
		ledgerRow("record1", entries, signature, 1, 1600000100),
		ledgerRow("deposit", entries, signature, 0, 1600000200),
		ledgerRow("broken", "garbage", signature, 1, 1600000300),
	}
	caller := newFakeCaller()
	caller.returns("ntx", big.NewInt(int64(len(rows))))
	caller.methods["fundTx"] = func(args []interface{}) ([]interface{}, error) {
		return rows[args[1].(*big.Int).Int64()], nil
	}
	c, hook := newTestContract(t, caller, nil)

	records, err := c.GetWithdrawalConfirmationRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	txid, err := records[0].TransactionID()
	require.NoError(t, err)
	assert.Equal(t, "record1", txid)
	tm, err := records[0].Time()
	require.NoError(t, err)
	assert.Equal(t, int64(1600000000), tm)

	var warnings []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings = append(warnings, e.Data["txid"].(string))
		}
	}
	sort.Strings(warnings)
	assert.Equal(t, []string{"broken"}, warnings)

	_, err = c.GetWithdrawalConfirmationRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(rows), caller.count("fundTx"))
}

func TestGetEthereumBalance(t *testing.T) {
	caller := newFakeCaller()
	caller.balances[investorA] = new(big.Int).Mul(big.NewInt(15), big.NewInt(1e17))
	c, _ := newTestContract(t, caller, nil)

	balance, err := c.GetEthereumBalance(context.Background(), investorA)
	require.NoError(t, err)
	assert.Equal(t, "1.5", balance.ETH().String())
}
