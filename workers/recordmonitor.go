package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ARandomInvestor/amfeix-api/record"
)

// ConfirmationRecordMonitor reports withdrawal confirmation records published
// since its last run.
type ConfirmationRecordMonitor struct {
	WorkerAbs
}

type RecordMonitorState struct {
	RecordCount int    `json:"record_count"`
	LastTxID    string `json:"last_txid,omitempty"`
}

func (m *ConfirmationRecordMonitor) Init(id int, name string, freq int, network string, env *Environment) error {
	return m.WorkerAbs.Init(id, name, freq, network, env)
}

func (m *ConfirmationRecordMonitor) Execute() {
	m.Logger.Info("ConfirmationRecordMonitor worker is executing...")
	ctx, cancel := context.WithTimeout(context.Background(), RecordMonitorTimeout)
	defer cancel()

	var state RecordMonitorState
	if _, err := loadState(m.Env.DB, RecordMonitorLastUpdateKey, &state); err != nil {
		m.ExportErrorLog(fmt.Sprintf("Could not load the last record count from db - with err: %v", err))
		return
	}

	records, err := m.Env.Ledger.GetWithdrawalConfirmationRecords(ctx)
	if err != nil {
		m.ExportErrorLog(fmt.Sprintf("Could not get confirmation records - with err: %v", err))
		return
	}
	if len(records) <= state.RecordCount {
		return
	}

	for _, r := range records[state.RecordCount:] {
		m.ExportInfoLog(describeRecord(r))
		state.LastTxID, _ = r.TransactionID()
	}
	state.RecordCount = len(records)
	m.invalidateFundUTXOs(ctx)
	if err := saveState(m.Env.DB, RecordMonitorLastUpdateKey, state); err != nil {
		m.ExportErrorLog(fmt.Sprintf("Could not save record monitor state - with err: %v", err))
	}
}

// invalidateFundUTXOs drops the cached unspent sets of the deposit addresses,
// a new record means the fund has paid out.
func (m *ConfirmationRecordMonitor) invalidateFundUTXOs(ctx context.Context) {
	if m.Env.UTXOs == nil {
		return
	}
	addresses, err := m.Env.Ledger.GetDepositAddresses(ctx)
	if err != nil {
		m.Logger.WithError(err).Warn("could not get deposit addresses")
		return
	}
	for _, addr := range addresses {
		m.Env.UTXOs.Invalidate(addr)
	}
}

func describeRecord(r *record.Record) string {
	txid, _ := r.TransactionID()
	at, _ := r.Time()
	payouts, err := r.JoinedPayToMany()
	if errors.Is(err, record.ErrIncompleteRecord) {
		payouts = "incomplete payout addresses\n"
	}
	return fmt.Sprintf("New confirmation record %s at %d for %d accounts:\n%s", txid, at, len(r.AccountIndexes()), payouts)
}
