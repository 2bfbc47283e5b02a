package entities

import "time"

// BlockCypherTX is the JSON form of /txs/<hash> on the BlockCypher REST API.
type BlockCypherTX struct {
	Hash        string    `json:"hash"`
	BlockHeight int       `json:"block_height"`
	Hex         string    `json:"hex,omitempty"`
	Confirmed   time.Time `json:"confirmed,omitempty"`
	Received    time.Time `json:"received,omitempty"`
}

// BlockCypherAddress is one page of /addrs/<address>/full.
type BlockCypherAddress struct {
	Address string          `json:"address"`
	NTx     int             `json:"n_tx"`
	HasMore bool            `json:"hasMore"`
	TXs     []BlockCypherTX `json:"txs"`
	Error   string          `json:"error,omitempty"`
}
