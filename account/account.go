package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ARandomInvestor/amfeix-api/bitcoin"
	"github.com/ARandomInvestor/amfeix-api/entities"
	"github.com/ARandomInvestor/amfeix-api/record"
	"github.com/ARandomInvestor/amfeix-api/units"
	"github.com/ARandomInvestor/amfeix-api/utils"
	"github.com/ARandomInvestor/amfeix-api/utxomanager"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnresolvedValue marks a deposit whose chain value could not be determined.
	ErrUnresolvedValue  = errors.New("unresolved transaction value")
	ErrNoBitcoinBackend = errors.New("no bitcoin backend configured")
	ErrNoValidLedgerRow = errors.New("could not find valid transactions for account")
)

// Ledger is the part of the storage contract an account reads.
type Ledger interface {
	GetTxCount(ctx context.Context, address string) (int, error)
	GetTx(ctx context.Context, address string, n int) (entities.LedgerTx, error)
	GetTxs(ctx context.Context, address string) ([]entities.LedgerTx, error)
	GetWithdrawRequests(ctx context.Context, address string) ([]entities.WithdrawalRequest, error)
	GetDepositAddresses(ctx context.Context) ([]string, error)
	GetFundPerformance(ctx context.Context) ([]entities.PerformanceEntry, error)
	GetFee1(ctx context.Context) (decimal.Decimal, error)
	GetFee2(ctx context.Context) (decimal.Decimal, error)
	GetAccountIndex(ctx context.Context, ethAddress string) (int, bool, error)
	GetWithdrawalConfirmationRecords(ctx context.Context) ([]*record.Record, error)
	GetEthereumBalance(ctx context.Context, address string) (units.Ether, error)
}

// SignatureVerifier checks a detached message signature against an address.
type SignatureVerifier interface {
	Verify(message, address, signature string) (bool, error)
}

type Options struct {
	Ledger Ledger
	// Bitcoin is optional, balance and matching need it.
	Bitcoin  bitcoin.Provider
	Verifier SignatureVerifier
	// UTXOs serves unspent outputs when set, otherwise Bitcoin is asked directly.
	UTXOs  *utxomanager.UTXOManager
	Logger *logrus.Entry
}

// Account is an investor identified by the public key of their ledger rows.
type Account struct {
	pubKey     string
	ethAddress string
	btcAddress string

	ledger   Ledger
	btc      bitcoin.Provider
	verifier SignatureVerifier
	utxos    *utxomanager.UTXOManager
	logger   *logrus.Entry
}

// New derives both addresses of a hex encoded secp256k1 key, compressed or
// not. The Bitcoin address is P2PKH over the key bytes as given.
func New(pubKey string, opts Options) (*Account, error) {
	pubKey = utils.LastPathSegment(strings.TrimSpace(pubKey))
	raw, err := utils.HexToBytes(pubKey)
	if err != nil {
		return nil, fmt.Errorf("public key %q: %w", pubKey, err)
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("public key %q: %w", pubKey, err)
	}

	params := &chaincfg.MainNetParams
	if opts.Bitcoin != nil {
		params = opts.Bitcoin.Params()
	}
	btcAddress, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(raw), params)
	if err != nil {
		return nil, err
	}

	ethAddress := crypto.PubkeyToAddress(*pub.ToECDSA()).Hex()
	return &Account{
		pubKey:     pubKey,
		ethAddress: ethAddress,
		btcAddress: btcAddress.EncodeAddress(),
		ledger:     opts.Ledger,
		btc:        opts.Bitcoin,
		verifier:   opts.Verifier,
		utxos:      opts.UTXOs,
		logger:     utils.ComponentLogger(opts.Logger, "account").WithField("account", ethAddress),
	}, nil
}

// FromEthereumAddress builds the account from the first ledger row of address
// whose public key decodes.
func FromEthereumAddress(ctx context.Context, address string, opts Options) (*Account, error) {
	count, err := opts.Ledger.GetTxCount(ctx, address)
	if err != nil {
		return nil, err
	}
	logger := utils.ComponentLogger(opts.Logger, "account")
	for n := 0; n < count; n++ {
		tx, err := opts.Ledger.GetTx(ctx, address, n)
		if err != nil {
			logger.WithError(err).WithField("account", address).Warn("could not read ledger row")
			continue
		}
		acct, err := New(tx.PubKey, opts)
		if err != nil {
			logger.WithError(err).WithField("account", address).Warn("ledger row has no usable public key")
			continue
		}
		return acct, nil
	}
	return nil, fmt.Errorf("%w %s", ErrNoValidLedgerRow, address)
}

func (a *Account) PublicKey() string {
	return a.pubKey
}

// EthereumAddress is checksummed.
func (a *Account) EthereumAddress() string {
	return a.ethAddress
}

func (a *Account) BitcoinAddress() string {
	return a.btcAddress
}
