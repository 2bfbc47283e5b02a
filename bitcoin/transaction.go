package bitcoin

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Transaction wraps a decoded wire transaction. Derived addresses are memoised
// on its inputs and outputs.
type Transaction struct {
	MsgTx   *wire.MsgTx
	Inputs  []*Input
	Outputs []*Output
	id      string
}

type Input struct {
	TxIn  *wire.TxIn
	Index int

	mu       sync.Mutex
	prevOut  *Output
	address  string
	resolved bool
}

type Output struct {
	TxOut *wire.TxOut
	TxID  string
	Index uint32

	mu       sync.Mutex
	address  string
	resolved bool
}

func NewTransaction(msg *wire.MsgTx) *Transaction {
	tx := &Transaction{MsgTx: msg, id: msg.TxHash().String()}
	for i, in := range msg.TxIn {
		tx.Inputs = append(tx.Inputs, &Input{TxIn: in, Index: i})
	}
	for i, out := range msg.TxOut {
		tx.Outputs = append(tx.Outputs, &Output{TxOut: out, TxID: tx.id, Index: uint32(i)})
	}
	return tx
}

func ParseTransaction(raw string) (*Transaction, error) {
	b, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("decode transaction hex: %w", err)
	}
	msg := wire.NewMsgTx(wire.TxVersion)
	if err := msg.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return NewTransaction(msg), nil
}

func (t *Transaction) ID() string {
	return t.id
}

func (t *Transaction) Hex() (string, error) {
	var buf bytes.Buffer
	if err := t.MsgTx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func (in *Input) PreviousOutPoint() wire.OutPoint {
	return in.TxIn.PreviousOutPoint
}

func (in *Input) IsCoinbase() bool {
	prev := in.TxIn.PreviousOutPoint
	return prev.Index == math.MaxUint32 && prev.Hash == chainhash.Hash{}
}

// PrevOut is the spent output, when it has been attached.
func (in *Input) PrevOut() *Output {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.prevOut
}

// AttachPrevOut records the spent output. An input whose address could not be
// derived before gets a fresh attempt.
func (in *Input) AttachPrevOut(out *Output) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.prevOut = out
	if in.resolved && in.address == "" {
		in.resolved = false
	}
}

func (in *Input) memo(derive func() string) string {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.resolved {
		in.address = derive()
		in.resolved = true
	}
	return in.address
}

func (o *Output) Value() int64 {
	return o.TxOut.Value
}

func (o *Output) memo(derive func() string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.resolved {
		o.address = derive()
		o.resolved = true
	}
	return o.address
}
