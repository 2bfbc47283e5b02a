package workers

import (
	"strings"
	"testing"

	"github.com/ARandomInvestor/amfeix-api/account"
	"github.com/ARandomInvestor/amfeix-api/entities"
	"github.com/ARandomInvestor/amfeix-api/utxomanager"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceReconciler(t *testing.T) {
	investor := testKey(1)
	fund := addressOf(t, testKey(2)).EncodeAddress()
	txid, raw := depositTx(t, investor, addressOf(t, testKey(2)), 100000)

	acct, err := account.New(pubHex(investor), account.Options{})
	require.NoError(t, err)
	eth := acct.EthereumAddress()

	l := &fakeLedger{
		investors: []string{eth, "0x000000000000000000000000000000000000dEaD"},
		rows: map[string][]entities.LedgerTx{
			strings.ToLower(eth): {{TxID: txid, PubKey: pubHex(investor), Time: 1000}},
		},
		depositAddresses: []string{fund},
		index:            []entities.PerformanceEntry{{Time: 1500, Value: decimal.RequireFromString("2.9")}},
	}
	api := &fakeBlockCypher{
		txs:       map[string]entities.BlockCypherTX{txid: {Hash: txid, Hex: raw, BlockHeight: 640000, Confirmed: confirmedAt}},
		addresses: map[string][]string{fund: {txid}, acct.BitcoinAddress(): {txid}},
	}
	env, hook := newTestEnvironment(t, l)
	env.Bitcoin = newBlockCypherChain(t, api)
	env.UTXOs = utxomanager.NewUTXOManager(env.Bitcoin, utxomanager.DefaultMaxAge)

	w := &BalanceReconciler{}
	require.NoError(t, w.Init(1, "Balance Reconciler", 60, "main", env))
	w.Execute()

	report, ok, err := GetAccountReport(env, eth)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, acct.BitcoinAddress(), report.BitcoinAddress)
	require.Len(t, report.Balance.Transactions, 1)
	assert.True(t, decimal.RequireFromString("102900").Equal(report.Balance.Current.Balance))
	require.Len(t, report.Tracked, 1)
	assert.Equal(t, entities.TrackTypeDeposit, report.Tracked[0].TrackType)

	var summary ReconcilerSummary
	found, err := loadState(env.DB, ReconcilerLastUpdateKey, &summary)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, summary.Accounts)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, "0.00102900", summary.OpenBalance)
	assert.Equal(t, map[string]string{fund: "0.00100000"}, summary.FundBalances)

	assert.Contains(t, messages(hook, logrus.ErrorLevel), "1 of 2 accounts could not be reconciled")

	_, ok, err = GetAccountReport(env, "0x000000000000000000000000000000000000dEaD")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBalanceReconcilerAlertsOnlyOnChange(t *testing.T) {
	l := &fakeLedger{investors: []string{"0x000000000000000000000000000000000000dEaD"}}
	env, hook := newTestEnvironment(t, l)
	env.Bitcoin = newBlockCypherChain(t, &fakeBlockCypher{})

	w := &BalanceReconciler{}
	require.NoError(t, w.Init(1, "Balance Reconciler", 60, "main", env))
	w.Execute()
	w.Execute()

	alerts := 0
	for _, msg := range messages(hook, logrus.ErrorLevel) {
		if strings.Contains(msg, "could not be reconciled") {
			alerts++
		}
	}
	assert.Equal(t, 1, alerts)
}
