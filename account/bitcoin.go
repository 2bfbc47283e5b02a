package account

import (
	"context"

	"github.com/ARandomInvestor/amfeix-api/entities"
	"github.com/ARandomInvestor/amfeix-api/units"
	"github.com/ARandomInvestor/amfeix-api/utxomanager"
)

func (a *Account) GetBitcoinUnspentOutputs(ctx context.Context) (map[string]entities.UTXO, error) {
	if a.btc == nil {
		return nil, ErrNoBitcoinBackend
	}
	if a.utxos != nil {
		return a.utxos.GetUnspent(ctx, a.btcAddress)
	}
	return a.btc.GetAddressUnspentOutputs(ctx, a.btcAddress)
}

// GetBitcoinBalance sums the unspent outputs of the account's address.
func (a *Account) GetBitcoinBalance(ctx context.Context) (units.Bitcoin, map[string]entities.UTXO, error) {
	utxos, err := a.GetBitcoinUnspentOutputs(ctx)
	if err != nil {
		return units.Bitcoin{}, nil, err
	}
	return units.FromSatoshiInt(utxomanager.Sum(utxos)), utxos, nil
}

func (a *Account) GetEthereumBalance(ctx context.Context) (units.Ether, error) {
	return a.ledger.GetEthereumBalance(ctx, a.ethAddress)
}
