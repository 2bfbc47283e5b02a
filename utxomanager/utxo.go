package utxomanager

import (
	"fmt"

	"github.com/ARandomInvestor/amfeix-api/entities"
)

// Tx is the view of a history transaction the two-pass derivation needs.
type Tx interface {
	ID() string
	// PaidTo lists the outputs whose derived address equals address.
	PaidTo(address string) []entities.UTXO
	// Spends lists the outpoints consumed by the inputs.
	Spends() []string
}

func OutpointKey(txid string, index uint32) string {
	return fmt.Sprintf("%s:%d", txid, index)
}

// Collect derives the unspent set of address from its history: every output
// ever paid to it, minus every outpoint any history transaction spends.
func Collect(address string, history []Tx) map[string]entities.UTXO {
	outputs := map[string]entities.UTXO{}
	for _, tx := range history {
		for _, out := range tx.PaidTo(address) {
			outputs[OutpointKey(out.TxID, out.OutputIndex)] = out
		}
	}
	for _, tx := range history {
		for _, spent := range tx.Spends() {
			delete(outputs, spent)
		}
	}
	return outputs
}

func Sum(utxos map[string]entities.UTXO) int64 {
	total := int64(0)
	for _, u := range utxos {
		total += u.Value
	}
	return total
}
