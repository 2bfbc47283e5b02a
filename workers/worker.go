package workers

import (
	"context"
	"fmt"

	"github.com/ARandomInvestor/amfeix-api/account"
	"github.com/ARandomInvestor/amfeix-api/bitcoin"
	"github.com/ARandomInvestor/amfeix-api/utils"
	"github.com/ARandomInvestor/amfeix-api/utxomanager"
	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
)

// Ledger is what the workers read from the storage contract.
type Ledger interface {
	account.Ledger
	GetInvestors(ctx context.Context) ([]string, error)
}

// Environment carries the shared collaborators every worker is built from.
type Environment struct {
	Ledger   Ledger
	Bitcoin  bitcoin.Provider
	Verifier account.SignatureVerifier
	UTXOs    *utxomanager.UTXOManager
	// DB holds worker state and reports.
	DB              *leveldb.DB
	AlertWebhookURL string
	Logger          *logrus.Entry
}

func (e *Environment) accountOptions(logger *logrus.Entry) account.Options {
	return account.Options{
		Ledger:   e.Ledger,
		Bitcoin:  e.Bitcoin,
		Verifier: e.Verifier,
		UTXOs:    e.UTXOs,
		Logger:   logger,
	}
}

type WorkerAbs struct {
	ID        int
	Name      string
	Frequency int // in sec
	Quit      chan bool
	Network   string // mainnet, testnet, ...
	Logger    *logrus.Entry
	Env       *Environment
}

type Worker interface {
	Execute()
	GetName() string
	GetFrequency() int
	GetQuitChan() chan bool
	GetNetwork() string
}

func (a *WorkerAbs) Init(id int, name string, freq int, network string, env *Environment) error {
	if env == nil || env.Ledger == nil || env.DB == nil {
		return fmt.Errorf("%s: ledger and db are required", name)
	}
	a.ID = id
	a.Name = name
	a.Frequency = freq
	a.Network = network
	a.Quit = make(chan bool)
	a.Env = env
	a.Logger = utils.ComponentLogger(env.Logger, "worker").WithField("worker", name)
	return nil
}

func (a *WorkerAbs) ExportErrorLog(msg string) {
	a.Logger.Error(msg)
	a.notify(msg)
}

func (a *WorkerAbs) ExportInfoLog(msg string) {
	a.Logger.Info(msg)
	a.notify(msg)
}

func (a *WorkerAbs) notify(msg string) {
	if a.Env == nil {
		return
	}
	err := utils.SendSlackNotification(a.Env.AlertWebhookURL, fmt.Sprintf("[%s] %s", a.Name, msg))
	if err != nil {
		a.Logger.WithError(err).Warn("could not send alert")
	}
}

func (a *WorkerAbs) Execute() {
	a.Logger.Info("Abstract worker is executing...")
}

func (a *WorkerAbs) GetName() string {
	return a.Name
}

func (a *WorkerAbs) GetFrequency() int {
	return a.Frequency
}

func (a *WorkerAbs) GetQuitChan() chan bool {
	return a.Quit
}

func (a *WorkerAbs) GetNetwork() string {
	return a.Network
}
