package bitcoin

import (
	"fmt"
	"regexp"

	"github.com/btcsuite/btcd/wire"
)

var (
	txidPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	hexPattern  = regexp.MustCompile(`^[0-9a-fA-F]+$`)
)

func ValidateTxID(txid string) error {
	if !txidPattern.MatchString(txid) {
		return fmt.Errorf("%w: transaction id %q", ErrInvalidIdentifier, txid)
	}
	return nil
}

// TransactionID returns the id of a transaction, or of the transaction an
// input or outpoint refers to.
func TransactionID(v interface{}) (string, error) {
	switch t := v.(type) {
	case *Transaction:
		if t != nil && t.MsgTx != nil {
			return t.ID(), nil
		}
	case *wire.MsgTx:
		if t != nil {
			return t.TxHash().String(), nil
		}
	case *Input:
		if t != nil && t.TxIn != nil {
			return t.TxIn.PreviousOutPoint.Hash.String(), nil
		}
	case *wire.TxIn:
		if t != nil {
			return t.PreviousOutPoint.Hash.String(), nil
		}
	case wire.OutPoint:
		return t.Hash.String(), nil
	case *wire.OutPoint:
		if t != nil {
			return t.Hash.String(), nil
		}
	}
	return "", ErrMissingIdentifier
}
