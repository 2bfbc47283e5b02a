package account

import (
	"context"

	"github.com/ARandomInvestor/amfeix-api/bitcoin"
	"github.com/ARandomInvestor/amfeix-api/entities"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// matchTier is one window of payout matching. A payout matches a closed
// deposit confirmed within window seconds of its exit when it differs from
// the deposit balance by less than the first threshold, or else the second.
type matchTier struct {
	window   int64
	absolute decimal.Decimal
	relative decimal.Decimal
	// absoluteFirst tries the absolute threshold before the relative one.
	absoluteFirst bool
}

var (
	tightTier = matchTier{
		window:        4 * 3600,
		absolute:      decimal.NewFromInt(100),
		relative:      decimal.RequireFromString("0.005"),
		absoluteFirst: true,
	}
	looseTier = matchTier{
		window:   24 * 3600,
		absolute: decimal.NewFromInt(80000),
		relative: decimal.RequireFromString("0.05"),
	}
)

func (m matchTier) within(d *entities.Deposit, v decimal.Decimal, byAbsolute bool) bool {
	diff := d.Balance.Sub(v).Abs()
	if byAbsolute {
		return diff.LessThan(m.absolute)
	}
	return diff.LessThan(d.Balance.Mul(m.relative))
}

// match returns the txids of every closed deposit a payout of values, confirmed at
// confirmedAt, satisfies under m.
func (m matchTier) match(deposits []*entities.Deposit, values []decimal.Decimal, confirmedAt int64) []string {
	var matched []string
	for _, d := range deposits {
		if d.IsOpen() {
			continue
		}
		delta := *d.ExitTimestamp - confirmedAt
		if delta < 0 {
			delta = -delta
		}
		if delta >= m.window {
			continue
		}
		if m.anyWithin(d, values, m.absoluteFirst) || m.anyWithin(d, values, !m.absoluteFirst) {
			matched = append(matched, d.TxID)
		}
	}
	return matched
}

func (m matchTier) anyWithin(d *entities.Deposit, values []decimal.Decimal, byAbsolute bool) bool {
	for _, v := range values {
		if m.within(d, v, byAbsolute) {
			return true
		}
	}
	return false
}

// GetBitcoinMatchingTransactions classifies the history of the account's
// Bitcoin address against balance. Deposits match by txid, payouts by the
// tight tier and only when nothing matched there by the loose tier.
// Unclassified transactions are left out.
func (a *Account) GetBitcoinMatchingTransactions(ctx context.Context, balance *entities.Balance) ([]entities.TrackedTransaction, error) {
	if a.btc == nil {
		return nil, ErrNoBitcoinBackend
	}
	txs, err := a.btc.GetAddressTransactions(ctx, a.btcAddress, 0)
	if err != nil {
		return nil, err
	}

	deposits := map[string]bool{}
	for _, d := range balance.Transactions {
		deposits[d.TxID] = true
	}

	tracked := []entities.TrackedTransaction{}
	for _, tx := range txs {
		txid, err := a.btc.GetTransactionID(tx)
		if err != nil {
			continue
		}
		if deposits[txid] {
			t := entities.TrackedTransaction{TxID: txid, TrackType: entities.TrackTypeDeposit, TrackTxIDs: []string{txid}}
			if details, err := a.btc.GetTransactionBlockDetails(ctx, txid); err == nil {
				t.Time, t.Height = details.Time, details.Height
			}
			tracked = append(tracked, t)
			continue
		}

		values := a.payoutValues(tx)
		if len(values) == 0 {
			continue
		}
		details, err := a.btc.GetTransactionBlockDetails(ctx, txid)
		if err != nil {
			a.logger.WithError(err).WithField("txid", txid).Warn("no block details, leaving transaction unmatched")
			continue
		}

		matched := tightTier.match(balance.Transactions, values, details.Time)
		if len(matched) == 0 {
			matched = looseTier.match(balance.Transactions, values, details.Time)
		}
		if len(matched) == 0 {
			continue
		}

		received := decimal.Zero
		for _, v := range values {
			received = received.Add(v)
		}
		a.logger.WithFields(logrus.Fields{"txid": txid, "deposits": matched}).Debug("matched payout")
		tracked = append(tracked, entities.TrackedTransaction{
			TxID:       txid,
			TrackType:  entities.TrackTypeWithdrawal,
			TrackTxIDs: matched,
			Time:       details.Time,
			Height:     details.Height,
			Received:   received,
		})
	}
	return tracked, nil
}

// payoutValues lists the outputs of tx paying the account, or nothing when
// any input is spent from the account itself.
func (a *Account) payoutValues(tx *bitcoin.Transaction) []decimal.Decimal {
	for _, in := range tx.Inputs {
		if a.btc.GetAddressForInput(in) == a.btcAddress {
			return nil
		}
	}
	var values []decimal.Decimal
	for _, out := range tx.Outputs {
		if a.btc.GetAddressForOutput(out) == a.btcAddress {
			values = append(values, decimal.NewFromInt(out.Value()))
		}
	}
	return values
}
