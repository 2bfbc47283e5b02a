package workers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ARandomInvestor/amfeix-api/account"
	"github.com/ARandomInvestor/amfeix-api/entities"
	"github.com/ARandomInvestor/amfeix-api/units"
	"github.com/shopspring/decimal"
)

// BalanceReconciler values every enrolled investor against the chain and
// stores one report per account.
type BalanceReconciler struct {
	WorkerAbs
	now func() time.Time
}

type AccountReport struct {
	EthereumAddress string                        `json:"eth_address"`
	BitcoinAddress  string                        `json:"btc_address"`
	Balance         *entities.Balance             `json:"balance"`
	Tracked         []entities.TrackedTransaction `json:"tracked"`
	UpdatedAt       int64                         `json:"updated_at"`
}

type ReconcilerSummary struct {
	UpdatedAt int64 `json:"updated_at"`
	Accounts  int   `json:"accounts"`
	Failed    int   `json:"failed"`
	// FundBalances is the unspent balance of each deposit address in BTC.
	FundBalances map[string]string `json:"fund_balances,omitempty"`
	// OpenBalance sums the current balance of every account in BTC.
	OpenBalance string `json:"open_balance"`
}

func (b *BalanceReconciler) Init(id int, name string, freq int, network string, env *Environment) error {
	if err := b.WorkerAbs.Init(id, name, freq, network, env); err != nil {
		return err
	}
	if env.Bitcoin == nil {
		return fmt.Errorf("%s: %w", name, account.ErrNoBitcoinBackend)
	}
	b.now = time.Now
	return nil
}

func (b *BalanceReconciler) Execute() {
	b.Logger.Info("BalanceReconciler worker is executing...")
	ctx, cancel := context.WithTimeout(context.Background(), ReconcilerTimeout)
	defer cancel()

	var previous ReconcilerSummary
	if _, err := loadState(b.Env.DB, ReconcilerLastUpdateKey, &previous); err != nil {
		b.Logger.WithError(err).Warn("discarding last reconciler summary")
	}

	investors, err := b.Env.Ledger.GetInvestors(ctx)
	if err != nil {
		b.ExportErrorLog(fmt.Sprintf("Could not get investors - with err: %v", err))
		return
	}

	summary := ReconcilerSummary{UpdatedAt: b.now().Unix()}
	open := decimal.Zero
	for _, investor := range investors {
		report, err := b.reconcile(ctx, investor)
		if err != nil {
			summary.Failed++
			b.Logger.WithError(err).WithField("account", investor).Error("could not reconcile account")
			continue
		}
		if err := saveState(b.Env.DB, ReconcilerKeyPrefix+strings.ToLower(investor), report); err != nil {
			b.ExportErrorLog(fmt.Sprintf("Could not save report for %v - with err: %v", investor, err))
			return
		}
		summary.Accounts++
		open = open.Add(report.Balance.Current.Balance)
	}
	summary.OpenBalance = units.FromSatoshi(open).String()
	summary.FundBalances = b.fundBalances(ctx)

	if err := saveState(b.Env.DB, ReconcilerLastUpdateKey, summary); err != nil {
		b.ExportErrorLog(fmt.Sprintf("Could not save reconciler summary - with err: %v", err))
		return
	}
	if summary.Failed > 0 && summary.Failed != previous.Failed {
		b.ExportErrorLog(fmt.Sprintf("%d of %d accounts could not be reconciled", summary.Failed, len(investors)))
	}
	b.Logger.WithField("accounts", summary.Accounts).WithField("open_balance", summary.OpenBalance).Info("reconciliation done")
}

func (b *BalanceReconciler) reconcile(ctx context.Context, investor string) (*AccountReport, error) {
	acct, err := account.FromEthereumAddress(ctx, investor, b.Env.accountOptions(b.Logger))
	if err != nil {
		return nil, err
	}
	balance, err := acct.GetBalance(ctx)
	if err != nil {
		return nil, err
	}
	tracked, err := acct.GetBitcoinMatchingTransactions(ctx, balance)
	if err != nil {
		return nil, err
	}
	return &AccountReport{
		EthereumAddress: acct.EthereumAddress(),
		BitcoinAddress:  acct.BitcoinAddress(),
		Balance:         balance,
		Tracked:         tracked,
		UpdatedAt:       b.now().Unix(),
	}, nil
}

// fundBalances is best effort, an address that fails is left out.
func (b *BalanceReconciler) fundBalances(ctx context.Context) map[string]string {
	if b.Env.UTXOs == nil {
		return nil
	}
	addresses, err := b.Env.Ledger.GetDepositAddresses(ctx)
	if err != nil {
		b.Logger.WithError(err).Warn("could not get deposit addresses")
		return nil
	}
	balances := make(map[string]string, len(addresses))
	for _, addr := range addresses {
		satoshi, err := b.Env.UTXOs.GetBalance(ctx, addr)
		if err != nil {
			b.Logger.WithError(err).WithField("address", addr).Warn("could not get deposit address balance")
			continue
		}
		balances[addr] = units.FromSatoshiInt(satoshi).String()
	}
	return balances
}

// GetAccountReport reads the last stored report of an investor.
func GetAccountReport(env *Environment, investor string) (*AccountReport, bool, error) {
	var report AccountReport
	ok, err := loadState(env.DB, ReconcilerKeyPrefix+strings.ToLower(investor), &report)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &report, true, nil
}
