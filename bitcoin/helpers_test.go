package bitcoin

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ARandomInvestor/amfeix-api/cache"
	"github.com/ARandomInvestor/amfeix-api/entities"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

var testParams = &chaincfg.MainNetParams

func testKey(t *testing.T, seed byte) *btcec.PrivateKey {
	t.Helper()
	priv, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{seed}, 32))
	return priv
}

func p2pkhAddress(t *testing.T, pub *btcec.PublicKey) *btcutil.AddressPubKeyHash {
	t.Helper()
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), testParams)
	require.NoError(t, err)
	return addr
}

func payTo(t *testing.T, addr btcutil.Address, value int64) *wire.TxOut {
	t.Helper()
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return wire.NewTxOut(value, script)
}

// fakeSig is shaped like a DER signature but never checked.
func fakeSig() []byte {
	sig := append([]byte{0x30, 0x44}, bytes.Repeat([]byte{0x11}, 68)...)
	return append(sig, byte(txscript.SigHashAll))
}

func p2pkhSpend(t *testing.T, prev wire.OutPoint, pub *btcec.PublicKey) *wire.TxIn {
	t.Helper()
	script, err := txscript.NewScriptBuilder().
		AddData(fakeSig()).
		AddData(pub.SerializeCompressed()).
		Script()
	require.NoError(t, err)
	return wire.NewTxIn(&prev, script, nil)
}

func outpoint(t *testing.T, txid string, index uint32) wire.OutPoint {
	t.Helper()
	hash, err := chainhash.NewHashFromStr(txid)
	require.NoError(t, err)
	return *wire.NewOutPoint(hash, index)
}

// fillerOutPoint funds fixtures built without inputs. A transaction with no
// inputs serializes like a segwit marker and cannot be decoded back.
var fillerOutPoint = wire.OutPoint{Hash: chainhash.Hash{0xee}, Index: 0}

func buildTx(ins []*wire.TxIn, outs ...*wire.TxOut) *Transaction {
	msg := wire.NewMsgTx(wire.TxVersion)
	if len(ins) == 0 {
		ins = []*wire.TxIn{wire.NewTxIn(&fillerOutPoint, []byte{0x51}, nil)}
	}
	for _, in := range ins {
		msg.AddTxIn(in)
	}
	for _, out := range outs {
		msg.AddTxOut(out)
	}
	return NewTransaction(msg)
}

func mustHex(t *testing.T, tx *Transaction) string {
	t.Helper()
	raw, err := tx.Hex()
	require.NoError(t, err)
	return raw
}

type fakeBackend struct {
	mu      sync.Mutex
	raw     map[string]string
	details map[string]*entities.TxBlockDetails
	history map[string][]string
	calls   map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		raw:     map[string]string{},
		details: map[string]*entities.TxBlockDetails{},
		history: map[string][]string{},
		calls:   map[string]int{},
	}
}

func (f *fakeBackend) add(t *testing.T, tx *Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw[tx.ID()] = mustHex(t, tx)
}

func (f *fakeBackend) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

func (f *fakeBackend) rawTransaction(ctx context.Context, txid string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["raw"]++
	raw, ok := f.raw[txid]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, txid)
	}
	return raw, nil
}

func (f *fakeBackend) blockDetails(ctx context.Context, txid string) (*entities.TxBlockDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["details"]++
	d, ok := f.details[txid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, txid)
	}
	return d, nil
}

func (f *fakeBackend) addressHistory(ctx context.Context, address string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["history"]++
	ids := f.history[address]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return append([]string(nil), ids...), nil
}

func newTestBase(t *testing.T, b backend) (*base, *cache.FileStore) {
	t.Helper()
	store := cache.NewFileStore(t.TempDir())
	c := cache.NewProvider(nil, store)
	t.Cleanup(c.Memory().Stop)
	return newBase(b, c, nil, testParams, nil, "bitcoin.test"), store
}

func upper(s string) string {
	return strings.ToUpper(s)
}
