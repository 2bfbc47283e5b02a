package entities

import "github.com/shopspring/decimal"

// ExitRecord points at the confirmation record entry that closed a deposit.
type ExitRecord struct {
	RecordTxID        string          `json:"record_txid"`
	Time              int64           `json:"time"`
	AccountIndex      int64           `json:"account_index"`
	DepositIndex      int64           `json:"deposit_index"`
	Amount            decimal.Decimal `json:"amount"`
	WithdrawalAddress string          `json:"withdrawal_address,omitempty"`
}

type Deposit struct {
	// Index is the position of the deposit row in the account's ledger list.
	Index           int                 `json:"index"`
	TxID            string              `json:"txid"`
	PubKey          string              `json:"pubkey"`
	Signature       string              `json:"signature"`
	Time            int64               `json:"time"`
	Value           decimal.NullDecimal `json:"value"`
	ExitTimestamp   *int64              `json:"exit_timestamp"`
	ExitRecord      *ExitRecord         `json:"exit_record,omitempty"`
	RequestedExit   *int64              `json:"requested_exit,omitempty"`
	Request         *WithdrawalRequest  `json:"rtx,omitempty"`
	InvalidRequests []WithdrawalRequest `json:"invalid_rtx,omitempty"`
	Dupes           []LedgerTx          `json:"dupe,omitempty"`
	Interest        decimal.Decimal     `json:"interest"`
	LastInterest    *int64              `json:"last_interest"`
	Balance         decimal.Decimal     `json:"balance"`
	Fee             decimal.Decimal     `json:"fee"`
	ReferralValue   decimal.NullDecimal `json:"referral_value"`
	Referral        bool                `json:"referral"`
}

func (d *Deposit) IsOpen() bool {
	return d.ExitTimestamp == nil
}

type BalanceView struct {
	Initial decimal.Decimal `json:"initial"`
	Balance decimal.Decimal `json:"balance"`
	Growth  decimal.Decimal `json:"growth"`
	Yield   decimal.Decimal `json:"yield"`
}

type Balance struct {
	Current      BalanceView        `json:"current"`
	Total        BalanceView        `json:"total"`
	Transactions []*Deposit         `json:"transactions"`
	Index        []PerformanceEntry `json:"index"`
}

const (
	TrackTypeDeposit    = "deposit"
	TrackTypeWithdrawal = "withdrawal"
)

// TrackedTransaction is an observed chain transaction classified against the ledger.
type TrackedTransaction struct {
	TxID       string          `json:"txid"`
	TrackType  string          `json:"track_type"`
	TrackTxIDs []string        `json:"track_txid"`
	Time       int64           `json:"time,omitempty"`
	Height     *int64          `json:"height,omitempty"`
	Received   decimal.Decimal `json:"received"`
}
