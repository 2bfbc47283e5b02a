package account

import (
	"context"
	"fmt"

	"github.com/ARandomInvestor/amfeix-api/entities"
	"github.com/ARandomInvestor/amfeix-api/ledger"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// GetBalance values every deposit from its chain transaction, compounds it
// over the fund performance and aggregates the open and all-time views.
func (a *Account) GetBalance(ctx context.Context) (*entities.Balance, error) {
	if a.btc == nil {
		return nil, ErrNoBitcoinBackend
	}

	depositAddresses, err := a.ledger.GetDepositAddresses(ctx)
	if err != nil {
		return nil, err
	}
	index, err := a.ledger.GetFundPerformance(ctx)
	if err != nil {
		return nil, err
	}
	fee1, err := a.ledger.GetFee1(ctx)
	if err != nil {
		return nil, err
	}
	fee2, err := a.ledger.GetFee2(ctx)
	if err != nil {
		return nil, err
	}
	deposits, err := a.GetTransactionsWithInterest(ctx, index)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(depositAddresses))
	for _, addr := range depositAddresses {
		known[addr] = true
	}

	var current, total totals
	valued := make([]*entities.Deposit, 0, len(deposits))
	for _, d := range deposits {
		if err := a.resolveValue(ctx, d, known); err != nil {
			a.logger.WithError(err).WithField("txid", d.TxID).Warn("skipping deposit")
			continue
		}
		if !d.Value.Valid {
			return nil, fmt.Errorf("%w: could not find transaction value for txid %s", ErrUnresolvedValue, d.TxID)
		}

		value := d.Value.Decimal
		if d.Referral {
			// negative referral results are reported positive
			d.Balance = d.Interest.Mul(value).Sub(value).Mul(fee2.Shift(-1)).Abs()
			d.ReferralValue = decimal.NewNullDecimal(value)
			d.Value = decimal.NewNullDecimal(decimal.Zero)
			value = decimal.Zero
		} else {
			d.Balance = d.Interest.Mul(value)
		}
		applyLateFee(d, fee1)

		total.add(value, d.Balance)
		if d.IsOpen() {
			current.add(value, d.Balance)
		}
		valued = append(valued, d)
	}

	return &entities.Balance{
		Current:      current.view(),
		Total:        total.view(),
		Transactions: valued,
		Index:        relatedIndex(sortedIndex(index), valued),
	}, nil
}

// applyLateFee charges fee1 percent of the balance on exits requested once
// the late withdrawal fee was in force.
func applyLateFee(d *entities.Deposit, fee1 decimal.Decimal) {
	d.Fee = decimal.Zero
	if d.RequestedExit == nil || *d.RequestedExit < ledger.ExtraWithdrawalFeeEnabled {
		return
	}
	d.Fee = d.Balance.Mul(fee1).Shift(-2)
	d.Balance = d.Balance.Sub(d.Fee)
}

// resolveValue reads the deposit value from the outputs of its transaction
// paying a fund deposit address. The error is returned only for a failed
// fetch, leaving d.Value unset.
func (a *Account) resolveValue(ctx context.Context, d *entities.Deposit, depositAddresses map[string]bool) error {
	tx, err := a.btc.GetTransaction(ctx, d.TxID)
	if err != nil {
		return fmt.Errorf("%w: transaction %s: %v", ErrUnresolvedValue, d.TxID, err)
	}
	for _, out := range tx.Outputs {
		if !depositAddresses[a.btc.GetAddressForOutput(out)] {
			continue
		}
		value := decimal.NewFromInt(out.Value())
		if value.IsZero() {
			continue
		}
		if !d.Value.Valid {
			d.Value = decimal.NewNullDecimal(value)
			continue
		}
		if value.Equal(d.Value.Decimal) {
			continue
		}
		a.logger.WithFields(logrus.Fields{
			"txid":   d.TxID,
			"kept":   d.Value.Decimal.String(),
			"output": out.Index,
			"value":  value.String(),
		}).Warn("more than one output with value, keeping the first")
	}
	return nil
}

type totals struct {
	initial decimal.Decimal
	balance decimal.Decimal
}

func (t *totals) add(value, balance decimal.Decimal) {
	t.initial = t.initial.Add(value)
	t.balance = t.balance.Add(balance)
}

func (t totals) view() entities.BalanceView {
	growth := t.balance.Sub(t.initial)
	yield := decimal.Zero
	if !t.initial.IsZero() {
		yield = growth.Div(t.initial)
	}
	return entities.BalanceView{
		Initial: t.initial,
		Balance: t.balance,
		Growth:  growth,
		Yield:   yield,
	}
}

// relatedIndex keeps the entries from the first deposit up to the last exit,
// with no upper bound while any deposit is open.
func relatedIndex(index []entities.PerformanceEntry, deposits []*entities.Deposit) []entities.PerformanceEntry {
	related := []entities.PerformanceEntry{}
	if len(deposits) == 0 {
		return related
	}
	first := deposits[0].Time
	var last int64
	open := false
	for _, d := range deposits {
		if d.Time < first {
			first = d.Time
		}
		if d.IsOpen() {
			open = true
		} else if *d.ExitTimestamp > last {
			last = *d.ExitTimestamp
		}
	}
	for _, entry := range index {
		if entry.Time < first {
			continue
		}
		if !open && entry.Time > last {
			break
		}
		related = append(related, entry)
	}
	return related
}
