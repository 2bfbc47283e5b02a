package entities

type TxBlockDetails struct {
	Hash   string `json:"hash"`
	Height *int64 `json:"height"`
	Time   int64  `json:"time"`
}

func (d *TxBlockDetails) IsConfirmed() bool {
	return d.Height != nil
}

type BlockHeader struct {
	Hash          string `json:"hash"`
	Height        int64  `json:"height"`
	Time          int64  `json:"time"`
	Confirmations int64  `json:"confirmations"`
	PreviousHash  string `json:"previousblockhash,omitempty"`
}

type ChainInfo struct {
	Chain         string `json:"chain"`
	Blocks        int64  `json:"blocks"`
	Headers       int64  `json:"headers"`
	BestBlockHash string `json:"bestblockhash"`
}

// UTXO is derived from an address history, never persisted.
type UTXO struct {
	TxID        string `json:"txid"`
	OutputIndex uint32 `json:"output_index"`
	Value       int64  `json:"value"`
	Address     string `json:"address"`
}
