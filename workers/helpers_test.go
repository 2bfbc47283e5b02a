package workers

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ARandomInvestor/amfeix-api/bitcoin"
	"github.com/ARandomInvestor/amfeix-api/cache"
	"github.com/ARandomInvestor/amfeix-api/entities"
	"github.com/ARandomInvestor/amfeix-api/queue"
	"github.com/ARandomInvestor/amfeix-api/record"
	"github.com/ARandomInvestor/amfeix-api/units"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

var testParams = &chaincfg.MainNetParams

type fakeLedger struct {
	investors        []string
	rows             map[string][]entities.LedgerTx
	depositAddresses []string
	index            []entities.PerformanceEntry
	records          []*record.Record
	failRecords      bool
}

func (f *fakeLedger) GetInvestors(ctx context.Context) ([]string, error) {
	return f.investors, nil
}

func (f *fakeLedger) GetTxCount(ctx context.Context, address string) (int, error) {
	return len(f.rows[strings.ToLower(address)]), nil
}

func (f *fakeLedger) GetTx(ctx context.Context, address string, n int) (entities.LedgerTx, error) {
	return f.rows[strings.ToLower(address)][n], nil
}

func (f *fakeLedger) GetTxs(ctx context.Context, address string) ([]entities.LedgerTx, error) {
	return f.rows[strings.ToLower(address)], nil
}

func (f *fakeLedger) GetWithdrawRequests(ctx context.Context, address string) ([]entities.WithdrawalRequest, error) {
	return nil, nil
}

func (f *fakeLedger) GetDepositAddresses(ctx context.Context) ([]string, error) {
	return f.depositAddresses, nil
}

func (f *fakeLedger) GetFundPerformance(ctx context.Context) ([]entities.PerformanceEntry, error) {
	return f.index, nil
}

func (f *fakeLedger) GetFee1(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *fakeLedger) GetFee2(ctx context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}

func (f *fakeLedger) GetAccountIndex(ctx context.Context, ethAddress string) (int, bool, error) {
	return 0, false, nil
}

func (f *fakeLedger) GetWithdrawalConfirmationRecords(ctx context.Context) ([]*record.Record, error) {
	if f.failRecords {
		return nil, errors.New("execution reverted")
	}
	return f.records, nil
}

func (f *fakeLedger) GetEthereumBalance(ctx context.Context, address string) (units.Ether, error) {
	return units.Ether{}, nil
}

type fakeBlockCypher struct {
	txs       map[string]entities.BlockCypherTX
	addresses map[string][]string
}

func (f *fakeBlockCypher) GetTX(ctx context.Context, hash string, params map[string]string) (entities.BlockCypherTX, error) {
	tx, ok := f.txs[hash]
	if !ok {
		return entities.BlockCypherTX{}, errors.New("Transaction not found")
	}
	return tx, nil
}

func (f *fakeBlockCypher) GetAddrFull(ctx context.Context, hash string, params map[string]string) (entities.BlockCypherAddress, error) {
	addr := entities.BlockCypherAddress{Address: hash}
	for _, txid := range f.addresses[hash] {
		addr.TXs = append(addr.TXs, f.txs[txid])
	}
	return addr, nil
}

func testKey(seed byte) *btcec.PrivateKey {
	priv, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{seed}, 32))
	return priv
}

func pubHex(priv *btcec.PrivateKey) string {
	return hex.EncodeToString(priv.PubKey().SerializeCompressed())
}

func addressOf(t *testing.T, priv *btcec.PrivateKey) btcutil.Address {
	t.Helper()
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(priv.PubKey().SerializeCompressed()), testParams)
	require.NoError(t, err)
	return addr
}

// depositTx spends from priv and pays value to fund.
func depositTx(t *testing.T, priv *btcec.PrivateKey, fund btcutil.Address, value int64) (string, string) {
	t.Helper()
	hash := chainhash.Hash{1}
	sig := append(append([]byte{0x30, 0x44}, bytes.Repeat([]byte{0x11}, 68)...), byte(txscript.SigHashAll))
	in, err := txscript.NewScriptBuilder().AddData(sig).AddData(priv.PubKey().SerializeCompressed()).Script()
	require.NoError(t, err)
	out, err := txscript.PayToAddrScript(fund)
	require.NoError(t, err)

	msg := wire.NewMsgTx(wire.TxVersion)
	msg.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&hash, 0), in, nil))
	msg.AddTxOut(wire.NewTxOut(value, out))
	tx := bitcoin.NewTransaction(msg)
	raw, err := tx.Hex()
	require.NoError(t, err)
	return tx.ID(), raw
}

func newBlockCypherChain(t *testing.T, api bitcoin.BlockCypherAPI) *bitcoin.BlockCypherProvider {
	t.Helper()
	c := cache.NewProvider(nil, nil)
	q := queue.New(queue.DefaultConcurrency, c.Memory(), nil)
	t.Cleanup(func() {
		q.Close()
		c.Memory().Stop()
	})
	return bitcoin.NewBlockCypherProvider(api, c, q, testParams, nil)
}

func newTestEnvironment(t *testing.T, l Ledger) (*Environment, *test.Hook) {
	t.Helper()
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger, hook := test.NewNullLogger()
	return &Environment{Ledger: l, DB: db, Logger: logrus.NewEntry(logger)}, hook
}

func messages(hook *test.Hook, level logrus.Level) []string {
	var msgs []string
	for _, e := range hook.AllEntries() {
		if e.Level == level {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

func finalizedRecord(t *testing.T, txid string, at int64, entries ...record.Entry) *record.Record {
	t.Helper()
	r := record.New()
	for i, e := range entries {
		require.NoError(t, r.AddPaymentEntry(int64(i), e.DepositIndex, e.Amount, e.WithdrawalAddress, e.IsStandardAddress))
	}
	require.NoError(t, r.SetTime(at))
	require.NoError(t, r.SetTransactionID(txid))
	r.Finalize()
	return r
}

var confirmedAt = time.Unix(1_600_000_000, 0)
