package entities

import "github.com/shopspring/decimal"

const (
	ActionDeposit  = 0
	ActionWithdraw = 1
)

// LedgerTx is one fundTx row of the storage contract.
type LedgerTx struct {
	TxID      string `json:"txid"`
	PubKey    string `json:"pubkey"`
	Signature string `json:"signature"`
	Action    int    `json:"action"`
	Time      int64  `json:"time"`
}

// WithdrawalRequest is one reqWD row of the storage contract.
type WithdrawalRequest struct {
	TxID      string `json:"txid"`
	PubKey    string `json:"pubkey"`
	Signature string `json:"signature"`
	Action    int    `json:"action"`
	Time      int64  `json:"time"`
	Referral  string `json:"referal,omitempty"`
}

type PerformanceEntry struct {
	Time  int64           `json:"time"`
	Value decimal.Decimal `json:"value"`
}
