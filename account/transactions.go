package account

import (
	"context"
	"sort"

	"github.com/ARandomInvestor/amfeix-api/entities"
	"github.com/ARandomInvestor/amfeix-api/ledger"
	"github.com/ARandomInvestor/amfeix-api/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const referralSignature = "referer"

// GetTransactions merges the account's ledger rows into deposits, in ledger
// order. Deposit rows open a deposit, withdraw rows and confirmation records
// close it, withdrawal requests attach to it.
func (a *Account) GetTransactions(ctx context.Context) ([]*entities.Deposit, error) {
	rows, err := a.ledger.GetTxs(ctx, a.ethAddress)
	if err != nil {
		return nil, err
	}

	var deposits []*entities.Deposit
	byTxID := map[string]*entities.Deposit{}
	byIndex := map[int64]*entities.Deposit{}
	for n, row := range rows {
		row.PubKey = utils.LastPathSegment(row.PubKey)
		row.TxID = utils.LastPathSegment(row.TxID)

		switch row.Action {
		case entities.ActionDeposit:
			if d, ok := byTxID[row.TxID]; ok {
				d.Dupes = append(d.Dupes, row)
				continue
			}
			d := &entities.Deposit{
				Index:     n,
				TxID:      row.TxID,
				PubKey:    row.PubKey,
				Signature: row.Signature,
				Time:      row.Time,
				Interest:  decimal.NewFromInt(1),
				Referral:  row.Signature == referralSignature,
			}
			deposits = append(deposits, d)
			byTxID[row.TxID] = d
			byIndex[int64(n)] = d
		case entities.ActionWithdraw:
			d, ok := byTxID[row.TxID]
			if !ok {
				a.logger.WithFields(logrus.Fields{"txid": row.TxID, "row": n}).Warn("withdraw row for unknown deposit")
				continue
			}
			exit := row.Time
			d.ExitTimestamp = &exit
		default:
			a.logger.WithFields(logrus.Fields{"txid": row.TxID, "action": row.Action}).Warn("unknown ledger action")
		}
	}

	if err := a.attachConfirmationRecords(ctx, byIndex); err != nil {
		return nil, err
	}
	if err := a.attachWithdrawRequests(ctx, byTxID); err != nil {
		return nil, err
	}
	return deposits, nil
}

// attachConfirmationRecords closes deposits named in confirmation records. A
// record's time replaces any exit time set by a withdraw row.
func (a *Account) attachConfirmationRecords(ctx context.Context, byIndex map[int64]*entities.Deposit) error {
	accountIndex, ok, err := a.ledger.GetAccountIndex(ctx, a.ethAddress)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	records, err := a.ledger.GetWithdrawalConfirmationRecords(ctx)
	if err != nil {
		return err
	}

	for _, r := range records {
		entries := r.AccountRecords(int64(accountIndex))
		if len(entries) == 0 {
			continue
		}
		recordTime, err := r.Time()
		if err != nil {
			continue
		}
		recordTxID, _ := r.TransactionID()
		for _, e := range entries {
			d, ok := byIndex[e.DepositIndex]
			if !ok {
				a.logger.WithFields(logrus.Fields{"record": recordTxID, "deposit_index": e.DepositIndex}).Warn("confirmation record entry matches no deposit")
				continue
			}
			exit := recordTime
			d.ExitTimestamp = &exit
			d.ExitRecord = &entities.ExitRecord{
				RecordTxID:        recordTxID,
				Time:              recordTime,
				AccountIndex:      int64(accountIndex),
				DepositIndex:      e.DepositIndex,
				Amount:            decimal.NewFromInt(e.Amount),
				WithdrawalAddress: e.WithdrawalAddress,
			}
		}
	}
	return nil
}

func (a *Account) attachWithdrawRequests(ctx context.Context, byTxID map[string]*entities.Deposit) error {
	requests, err := a.ledger.GetWithdrawRequests(ctx, a.ethAddress)
	if err != nil {
		return err
	}
	for _, req := range requests {
		req.PubKey = utils.LastPathSegment(req.PubKey)
		req.TxID = utils.LastPathSegment(req.TxID)

		d, ok := byTxID[req.TxID]
		if !ok {
			a.logger.WithField("txid", req.TxID).Warn("found unmatched withdrawal request")
			continue
		}
		if d.RequestedExit != nil || !a.validRequest(d, req) {
			d.InvalidRequests = append(d.InvalidRequests, req)
			continue
		}
		requested := req.Time
		r := req
		d.RequestedExit = &requested
		d.Request = &r
	}
	return nil
}

// validRequest requires the deposit's key, and past the verification
// activation a signature by the account over "txid:pubkey".
func (a *Account) validRequest(d *entities.Deposit, req entities.WithdrawalRequest) bool {
	if req.PubKey != d.PubKey {
		return false
	}
	if req.Time <= ledger.ExtraRequestVerificationEnabled {
		return true
	}
	if a.verifier == nil {
		a.logger.WithField("txid", req.TxID).Warn("no signature verifier, rejecting withdrawal request")
		return false
	}
	ok, err := a.verifier.Verify(req.TxID+":"+req.PubKey, a.btcAddress, req.Signature)
	if err != nil {
		a.logger.WithError(err).WithField("txid", req.TxID).Warn("withdrawal request signature does not decode")
		return false
	}
	return ok
}

// sortedIndex orders the performance series by time, keeping the ledger order of ties.
func sortedIndex(index []entities.PerformanceEntry) []entities.PerformanceEntry {
	sorted := append([]entities.PerformanceEntry(nil), index...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
	return sorted
}

// compound multiplies (1 + value/100) over the entries in [d.Time, exit].
func compound(d *entities.Deposit, index []entities.PerformanceEntry) {
	factor := decimal.NewFromInt(1)
	d.LastInterest = nil
	for _, entry := range index {
		if d.ExitTimestamp != nil && entry.Time > *d.ExitTimestamp {
			break
		}
		if entry.Time < d.Time {
			continue
		}
		t := entry.Time
		d.LastInterest = &t
		factor = factor.Mul(decimal.NewFromInt(1).Add(entry.Value.Shift(-2)))
	}
	d.Interest = factor
}

// GetTransactionsWithInterest is GetTransactions with every deposit's
// compounding factor over index.
func (a *Account) GetTransactionsWithInterest(ctx context.Context, index []entities.PerformanceEntry) ([]*entities.Deposit, error) {
	deposits, err := a.GetTransactions(ctx)
	if err != nil {
		return nil, err
	}
	sorted := sortedIndex(index)
	for _, d := range deposits {
		compound(d, sorted)
	}
	return deposits, nil
}
