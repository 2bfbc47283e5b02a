package record

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ARandomInvestor/amfeix-api/units"
)

// Version is the codec version written into the envelope signature.
const Version = 1

// Entry is one confirmed payout of a deposit.
type Entry struct {
	DepositIndex int64
	// Amount is in satoshi.
	Amount            int64
	WithdrawalAddress string
	// IsStandardAddress entries pay the address the request named, so the
	// address is left out of the encoding.
	IsStandardAddress bool
}

// Record is a batch of payout confirmations. It is mutable until Finalize and
// read-only afterwards.
type Record struct {
	entries   map[int64][]Entry
	time      int64
	txid      string
	finalized bool
}

func New() *Record {
	return &Record{
		entries: map[int64][]Entry{},
		time:    time.Now().Unix(),
	}
}

func (r *Record) Finalize() {
	r.finalized = true
}

func (r *Record) IsFinalized() bool {
	return r.finalized
}

func (r *Record) SetTime(t int64) error {
	if r.finalized {
		return ErrRecordFinalized
	}
	r.time = t
	return nil
}

func (r *Record) Time() (int64, error) {
	if !r.finalized {
		return 0, ErrRecordNotFinalized
	}
	return r.time, nil
}

func (r *Record) SetTransactionID(txid string) error {
	if r.finalized {
		return ErrRecordFinalized
	}
	r.txid = txid
	return nil
}

func (r *Record) TransactionID() (string, error) {
	if !r.finalized {
		return "", ErrRecordNotFinalized
	}
	return r.txid, nil
}

func (r *Record) AddPaymentEntry(accountIndex, depositIndex, amount int64, withdrawalAddress string, isStandard bool) error {
	if r.finalized {
		return ErrRecordFinalized
	}
	for _, e := range r.entries[accountIndex] {
		if e.DepositIndex == depositIndex {
			return fmt.Errorf("%w: index %d, account %d", ErrDuplicateIndex, depositIndex, accountIndex)
		}
	}
	r.entries[accountIndex] = append(r.entries[accountIndex], Entry{
		DepositIndex:      depositIndex,
		Amount:            amount,
		WithdrawalAddress: withdrawalAddress,
		IsStandardAddress: isStandard,
	})
	return nil
}

// AccountIndexes lists the accounts with entries, ascending.
func (r *Record) AccountIndexes() []int64 {
	indexes := make([]int64, 0, len(r.entries))
	for idx := range r.entries {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	return indexes
}

// AccountRecords returns a copy of the entries of one account, nil when it has none.
func (r *Record) AccountRecords(accountIndex int64) []Entry {
	entries, ok := r.entries[accountIndex]
	if !ok {
		return nil
	}
	return append([]Entry(nil), entries...)
}

func (r *Record) each(fn func(accountIndex int64, e Entry) error) error {
	for _, idx := range r.AccountIndexes() {
		for _, e := range r.entries[idx] {
			if err := fn(idx, e); err != nil {
				return err
			}
		}
	}
	return nil
}

// JoinedPayToMany renders one "<address>, <btc>" line per destination, summing
// the entries paying it. Lines follow first appearance.
func (r *Record) JoinedPayToMany() (string, error) {
	if !r.finalized {
		return "", ErrRecordNotFinalized
	}
	var order []string
	totals := map[string]int64{}
	err := r.each(func(_ int64, e Entry) error {
		if e.WithdrawalAddress == "" {
			return ErrIncompleteRecord
		}
		if _, ok := totals[e.WithdrawalAddress]; !ok {
			order = append(order, e.WithdrawalAddress)
		}
		totals[e.WithdrawalAddress] += e.Amount
		return nil
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, addr := range order {
		writePayment(&sb, addr, totals[addr])
	}
	return sb.String(), nil
}

// SplitPayToMany renders one line per entry.
func (r *Record) SplitPayToMany() (string, error) {
	if !r.finalized {
		return "", ErrRecordNotFinalized
	}
	var sb strings.Builder
	err := r.each(func(_ int64, e Entry) error {
		if e.WithdrawalAddress == "" {
			return ErrIncompleteRecord
		}
		writePayment(&sb, e.WithdrawalAddress, e.Amount)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

func writePayment(sb *strings.Builder, address string, satoshi int64) {
	sb.WriteString(address)
	sb.WriteString(", ")
	sb.WriteString(units.FromSatoshiInt(satoshi).String())
	sb.WriteString("\n")
}
