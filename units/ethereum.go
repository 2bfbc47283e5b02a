package units

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const EtherDecimalPlaces = 18

// Ether is an amount held in wei.
type Ether struct {
	wei decimal.Decimal
}

func FromWei(wei decimal.Decimal) Ether {
	return Ether{wei: wei}
}

func FromWeiBig(wei *big.Int) Ether {
	if wei == nil {
		return Ether{wei: decimal.Zero}
	}
	return Ether{wei: decimal.NewFromBigInt(wei, 0)}
}

func FromGwei(gwei decimal.Decimal) Ether {
	return Ether{wei: gwei.Shift(9)}
}

func FromETH(eth decimal.Decimal) Ether {
	return Ether{wei: eth.Shift(EtherDecimalPlaces)}
}

func (e Ether) Wei() decimal.Decimal {
	return e.wei
}

func (e Ether) Gwei() decimal.Decimal {
	return e.wei.Shift(-9)
}

func (e Ether) ETH() decimal.Decimal {
	return e.wei.Shift(-EtherDecimalPlaces)
}

func (e Ether) String() string {
	return e.ETH().StringFixed(EtherDecimalPlaces)
}
