package account

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/ARandomInvestor/amfeix-api/bitcoin"
	"github.com/ARandomInvestor/amfeix-api/entities"
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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = &chaincfg.MainNetParams

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

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

// txBuilder makes transactions with distinct ids by spending a fresh outpoint each time.
type txBuilder struct {
	t    *testing.T
	next uint32
}

func (b *txBuilder) spendFrom(priv *btcec.PrivateKey) *wire.TxIn {
	b.t.Helper()
	b.next++
	var seed [32]byte
	binary.BigEndian.PutUint32(seed[:], b.next)
	hash := chainhash.Hash(seed)
	sig := append(append([]byte{0x30, 0x44}, bytes.Repeat([]byte{0x11}, 68)...), byte(txscript.SigHashAll))
	script, err := txscript.NewScriptBuilder().
		AddData(sig).
		AddData(priv.PubKey().SerializeCompressed()).
		Script()
	require.NoError(b.t, err)
	return wire.NewTxIn(wire.NewOutPoint(&hash, 0), script, nil)
}

func (b *txBuilder) payTo(addr btcutil.Address, value int64) *wire.TxOut {
	b.t.Helper()
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(b.t, err)
	return wire.NewTxOut(value, script)
}

func (b *txBuilder) build(in *wire.TxIn, outs ...*wire.TxOut) *bitcoin.Transaction {
	msg := wire.NewMsgTx(wire.TxVersion)
	msg.AddTxIn(in)
	for _, out := range outs {
		msg.AddTxOut(out)
	}
	return bitcoin.NewTransaction(msg)
}

type fakeChain struct {
	mu      sync.Mutex
	txs     map[string]*bitcoin.Transaction
	details map[string]*entities.TxBlockDetails
	history map[string][]*bitcoin.Transaction
	unspent map[string]map[string]entities.UTXO
	calls   map[string]int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		txs:     map[string]*bitcoin.Transaction{},
		details: map[string]*entities.TxBlockDetails{},
		history: map[string][]*bitcoin.Transaction{},
		unspent: map[string]map[string]entities.UTXO{},
		calls:   map[string]int{},
	}
}

func (f *fakeChain) add(tx *bitcoin.Transaction, details *entities.TxBlockDetails) *bitcoin.Transaction {
	f.txs[tx.ID()] = tx
	if details != nil {
		f.details[tx.ID()] = details
	}
	return tx
}

func (f *fakeChain) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

func (f *fakeChain) Params() *chaincfg.Params {
	return testParams
}

func (f *fakeChain) GetRawTransaction(ctx context.Context, txid string) (string, error) {
	tx, err := f.GetTransaction(ctx, txid)
	if err != nil {
		return "", err
	}
	return tx.Hex()
}

func (f *fakeChain) GetTransaction(ctx context.Context, txid string) (*bitcoin.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["tx"]++
	tx, ok := f.txs[txid]
	if !ok {
		return nil, errors.New("not found: " + txid)
	}
	return tx, nil
}

func (f *fakeChain) GetTransactionBlockDetails(ctx context.Context, txid string) (*entities.TxBlockDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.details[txid]
	if !ok {
		return nil, errors.New("no details for " + txid)
	}
	return d, nil
}

func (f *fakeChain) GetAddressTransactions(ctx context.Context, address string, limit int) ([]*bitcoin.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history[address], nil
}

func (f *fakeChain) GetAddressForOutput(out *bitcoin.Output) string {
	return bitcoin.AddressForOutput(out, testParams)
}

func (f *fakeChain) GetAddressForInput(in *bitcoin.Input) string {
	return bitcoin.AddressForInput(in, testParams)
}

func (f *fakeChain) GetTransactionID(v interface{}) (string, error) {
	return bitcoin.TransactionID(v)
}

func (f *fakeChain) GetPreviousOutput(ctx context.Context, in *bitcoin.Input) (*bitcoin.Output, error) {
	return nil, errors.New("no previous outputs")
}

func (f *fakeChain) GetAddressUnspentOutputs(ctx context.Context, address string) (map[string]entities.UTXO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["unspent"]++
	return f.unspent[address], nil
}

type fakeLedger struct {
	rows             []entities.LedgerTx
	requests         []entities.WithdrawalRequest
	depositAddresses []string
	index            []entities.PerformanceEntry
	fee1, fee2       decimal.Decimal
	accountIndex     int
	enrolled         bool
	records          []*record.Record
	ether            units.Ether
}

func (f *fakeLedger) GetTxCount(ctx context.Context, address string) (int, error) {
	return len(f.rows), nil
}

func (f *fakeLedger) GetTx(ctx context.Context, address string, n int) (entities.LedgerTx, error) {
	if n >= len(f.rows) {
		return entities.LedgerTx{}, errors.New("out of range")
	}
	return f.rows[n], nil
}

func (f *fakeLedger) GetTxs(ctx context.Context, address string) ([]entities.LedgerTx, error) {
	return append([]entities.LedgerTx(nil), f.rows...), nil
}

func (f *fakeLedger) GetWithdrawRequests(ctx context.Context, address string) ([]entities.WithdrawalRequest, error) {
	return append([]entities.WithdrawalRequest(nil), f.requests...), nil
}

func (f *fakeLedger) GetDepositAddresses(ctx context.Context) ([]string, error) {
	return f.depositAddresses, nil
}

func (f *fakeLedger) GetFundPerformance(ctx context.Context) ([]entities.PerformanceEntry, error) {
	return f.index, nil
}

func (f *fakeLedger) GetFee1(ctx context.Context) (decimal.Decimal, error) {
	return f.fee1, nil
}

func (f *fakeLedger) GetFee2(ctx context.Context) (decimal.Decimal, error) {
	return f.fee2, nil
}

func (f *fakeLedger) GetAccountIndex(ctx context.Context, ethAddress string) (int, bool, error) {
	return f.accountIndex, f.enrolled, nil
}

func (f *fakeLedger) GetWithdrawalConfirmationRecords(ctx context.Context) ([]*record.Record, error) {
	return f.records, nil
}

func (f *fakeLedger) GetEthereumBalance(ctx context.Context, address string) (units.Ether, error) {
	return f.ether, nil
}

type fakeVerifier struct {
	valid    map[string]bool
	messages []string
}

func (f *fakeVerifier) Verify(message, address, signature string) (bool, error) {
	f.messages = append(f.messages, message+"@"+address)
	if signature == "garbage" {
		return false, errors.New("illegal base64 data")
	}
	return f.valid[signature], nil
}

// fixture is an account whose key is seed 1 with the fund's deposit address
// at seed 2.
type fixture struct {
	t       *testing.T
	priv    *btcec.PrivateKey
	fund    btcutil.Address
	ledger  *fakeLedger
	chain   *fakeChain
	builder *txBuilder
	hook    *test.Hook
	opts    Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	f := &fixture{
		t:       t,
		priv:    testKey(1),
		ledger:  &fakeLedger{fee1: decimal.Zero, fee2: decimal.NewFromInt(1)},
		chain:   newFakeChain(),
		builder: &txBuilder{t: t},
		hook:    hook,
	}
	f.fund = addressOf(t, testKey(2))
	f.ledger.depositAddresses = []string{f.fund.EncodeAddress()}
	f.opts = Options{Ledger: f.ledger, Bitcoin: f.chain, Logger: logrus.NewEntry(logger)}
	return f
}

func (f *fixture) account() *Account {
	f.t.Helper()
	acct, err := New(pubHex(f.priv), f.opts)
	require.NoError(f.t, err)
	return acct
}

// deposit records a chain transaction paying value to the fund and a ledger row for it.
func (f *fixture) deposit(value int64, at int64, signature string) string {
	tx := f.chain.add(f.builder.build(f.builder.spendFrom(f.priv), f.builder.payTo(f.fund, value)), nil)
	f.ledger.rows = append(f.ledger.rows, entities.LedgerTx{
		TxID:      tx.ID(),
		PubKey:    pubHex(f.priv),
		Signature: signature,
		Action:    entities.ActionDeposit,
		Time:      at,
	})
	return tx.ID()
}

func (f *fixture) withdraw(txid string, at int64) {
	f.ledger.rows = append(f.ledger.rows, entities.LedgerTx{
		TxID:   txid,
		PubKey: pubHex(f.priv),
		Action: entities.ActionWithdraw,
		Time:   at,
	})
}

func warnings(hook *test.Hook) []string {
	var msgs []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}
