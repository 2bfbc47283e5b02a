package units

import "github.com/shopspring/decimal"

const BitcoinDecimalPlaces = 8

// Bitcoin is an amount held in satoshi.
type Bitcoin struct {
	satoshi decimal.Decimal
}

func FromSatoshi(satoshi decimal.Decimal) Bitcoin {
	return Bitcoin{satoshi: satoshi}
}

func FromSatoshiInt(satoshi int64) Bitcoin {
	return Bitcoin{satoshi: decimal.NewFromInt(satoshi)}
}

func FromBTC(btc decimal.Decimal) Bitcoin {
	return Bitcoin{satoshi: btc.Shift(BitcoinDecimalPlaces)}
}

func FromMilliBTC(mbtc decimal.Decimal) Bitcoin {
	return Bitcoin{satoshi: mbtc.Shift(5)}
}

func FromMilliSatoshi(msat decimal.Decimal) Bitcoin {
	return Bitcoin{satoshi: msat.Shift(-3)}
}

func (b Bitcoin) Satoshi() decimal.Decimal {
	return b.satoshi
}

func (b Bitcoin) BTC() decimal.Decimal {
	return b.satoshi.Shift(-BitcoinDecimalPlaces)
}

func (b Bitcoin) MilliBTC() decimal.Decimal {
	return b.satoshi.Shift(-5)
}

func (b Bitcoin) MilliSatoshi() decimal.Decimal {
	return b.satoshi.Shift(3)
}

// String renders the amount in BTC with all 8 decimal places.
func (b Bitcoin) String() string {
	return b.BTC().StringFixed(BitcoinDecimalPlaces)
}
