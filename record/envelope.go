package record

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

const (
	MethodReturnInvestment = "returnInvestment"

	compressionLevel = 7
	// maxInflatedSize bounds a decompressed entry list.
	maxInflatedSize = 1 << 20
)

var signatureKeys = []string{"+index", "+amount", "?to"}

// Envelope is the ledger transport form of a record.
type Envelope struct {
	Method     string      `json:"method"`
	Parameters []Parameter `json:"parameters"`
}

type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Signature travels JSON encoded in the "signature" parameter.
type Signature struct {
	Method     string   `json:"method"`
	Version    int      `json:"version"`
	Time       int64    `json:"time"`
	Compressed bool     `json:"compressed"`
	Keys       []string `json:"keys"`
}

// NewEnvelope wraps a ledger row posted to storageAddress.
func NewEnvelope(storageAddress, txid, entries, signature string) *Envelope {
	return &Envelope{
		Method: MethodReturnInvestment,
		Parameters: []Parameter{
			{Name: "address", Value: storageAddress},
			{Name: "txid", Value: txid},
			{Name: "pubkey", Value: entries},
			{Name: "signature", Value: signature},
		},
	}
}

// CalculateSize is the length of the JSON encoded envelope.
func (e *Envelope) CalculateSize() uint64 {
	b, err := json.Marshal(e)
	if err != nil {
		return 0
	}
	return uint64(len(b))
}

func (e *Envelope) param(i int, name string) (string, error) {
	if len(e.Parameters) <= i || e.Parameters[i].Name != name {
		return "", fmt.Errorf("%w: missing %q parameter", ErrInvalidRecord, name)
	}
	return e.Parameters[i].Value, nil
}

func deflate(s string) (string, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, compressionLevel)
	if err != nil {
		return "", err
	}
	if _, err := w.Write([]byte(s)); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func inflate(s string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, maxInflatedSize+1))
	if err != nil {
		return "", err
	}
	if len(out) > maxInflatedSize {
		return "", fmt.Errorf("inflated entries exceed %d bytes", maxInflatedSize)
	}
	return string(out), nil
}

// ReturnInvestmentData builds the envelope posting r to storageAddress, with
// the entries always compressed.
func (r *Record) ReturnInvestmentData(storageAddress string) (*Envelope, error) {
	entries, err := deflate(r.SerializedEntries())
	if err != nil {
		return nil, err
	}
	signature, err := json.Marshal(Signature{
		Method:     MethodReturnInvestment,
		Version:    Version,
		Time:       r.time,
		Compressed: true,
		Keys:       signatureKeys,
	})
	if err != nil {
		return nil, err
	}
	return NewEnvelope(storageAddress, r.txid, entries, string(signature)), nil
}

// FromReturnInvestmentData parses an envelope into a finalized record. The
// transaction id and time come from the envelope.
func FromReturnInvestmentData(e *Envelope) (*Record, error) {
	if e == nil || e.Method != MethodReturnInvestment {
		return nil, ErrInvalidRecord
	}
	txid, err := e.param(1, "txid")
	if err != nil {
		return nil, err
	}
	entries, err := e.param(2, "pubkey")
	if err != nil {
		return nil, err
	}
	rawSignature, err := e.param(3, "signature")
	if err != nil {
		return nil, err
	}

	var sig Signature
	if err := json.Unmarshal([]byte(rawSignature), &sig); err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrInvalidRecord, err)
	}
	if sig.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidRecord, sig.Version)
	}
	if sig.Compressed {
		if entries, err = inflate(entries); err != nil {
			return nil, fmt.Errorf("%w: entries: %v", ErrInvalidRecord, err)
		}
	}

	r, err := DecodeEntries(entries)
	if err != nil {
		return nil, err
	}
	r.txid = txid
	r.time = sig.Time
	r.Finalize()
	return r, nil
}
