package record

import (
	"fmt"
	"strconv"
	"strings"
)

const radix = 36

const (
	accountSeparator = "|"
	indexSeparator   = ":"
	entrySeparator   = ";"
	fieldSeparator   = ","
)

// SerializedEntries renders the compact form
// "<account>:<deposit>,<amount>[,<address>];...|" with integers in base 36.
// Standard addresses are omitted.
func (r *Record) SerializedEntries() string {
	var sb strings.Builder
	for _, idx := range r.AccountIndexes() {
		sb.WriteString(strconv.FormatInt(idx, radix))
		sb.WriteString(indexSeparator)
		for i, e := range r.entries[idx] {
			if i > 0 {
				sb.WriteString(entrySeparator)
			}
			sb.WriteString(strconv.FormatInt(e.DepositIndex, radix))
			sb.WriteString(fieldSeparator)
			sb.WriteString(strconv.FormatInt(e.Amount, radix))
			if !e.IsStandardAddress {
				sb.WriteString(fieldSeparator)
				sb.WriteString(e.WithdrawalAddress)
			}
		}
		sb.WriteString(accountSeparator)
	}
	return sb.String()
}

// DecodeEntries parses the compact form into a draft record. Any malformed
// segment fails the whole decode.
func DecodeEntries(compressed string) (*Record, error) {
	r := New()
	for _, segment := range strings.Split(compressed, accountSeparator) {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		parts := strings.SplitN(segment, indexSeparator, 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: segment %q has no account index", ErrInvalidRecord, segment)
		}
		accountIndex, err := parseInt(parts[0])
		if err != nil {
			return nil, fmt.Errorf("%w: account index %q", ErrInvalidRecord, parts[0])
		}
		for _, raw := range strings.Split(parts[1], entrySeparator) {
			values := strings.Split(raw, fieldSeparator)
			if len(values) < 2 || len(values) > 3 {
				return nil, fmt.Errorf("%w: entry %q", ErrInvalidRecord, raw)
			}
			depositIndex, err := parseInt(values[0])
			if err != nil {
				return nil, fmt.Errorf("%w: deposit index %q", ErrInvalidRecord, values[0])
			}
			amount, err := parseInt(values[1])
			if err != nil {
				return nil, fmt.Errorf("%w: amount %q", ErrInvalidRecord, values[1])
			}
			address := ""
			if len(values) == 3 {
				address = strings.TrimSpace(values[2])
				if address == "" {
					return nil, fmt.Errorf("%w: entry %q has an empty address", ErrInvalidRecord, raw)
				}
			}
			if err := r.AddPaymentEntry(accountIndex, depositIndex, amount, address, len(values) == 2); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
			}
		}
	}
	return r, nil
}

func parseInt(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), radix, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative value %d", v)
	}
	return v, nil
}
