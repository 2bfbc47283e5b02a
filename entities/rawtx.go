package entities

// IndexerTx is the JSON form of /rawtx/<txid> on a blockchain.info style indexer.
type IndexerTx struct {
	Hash        string `json:"hash"`
	BlockHeight *int64 `json:"block_height"`
	Time        int64  `json:"time"`
	Reason      string `json:"reason,omitempty"`
}

// IndexerAddress is one page of /rawaddr/<address>.
type IndexerAddress struct {
	Address string      `json:"address"`
	NTx     int         `json:"n_tx"`
	Txs     []IndexerTx `json:"txs"`
	Reason  string      `json:"reason,omitempty"`
}
