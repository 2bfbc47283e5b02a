package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ARandomInvestor/amfeix-api/bitcoin"
	"github.com/ARandomInvestor/amfeix-api/cache"
	"github.com/ARandomInvestor/amfeix-api/ledger"
	"github.com/ARandomInvestor/amfeix-api/queue"
	"github.com/ARandomInvestor/amfeix-api/utils"
	"github.com/ARandomInvestor/amfeix-api/utxomanager"
	"github.com/ARandomInvestor/amfeix-api/workers"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
)

const (
	ProviderBlockchainInfo = "blockchaininfo"
	ProviderBlockCypher    = "blockcypher"
	ProviderFullNode       = "fullnode"
	ProviderNone           = "none"

	CacheBackendFile    = "file"
	CacheBackendLevelDB = "leveldb"
)

type Config struct {
	Network          string
	Provider         string
	IndexerURL       string
	IndexerRPS       float64
	BlockCypherToken string
	Node             utils.BTCNodeConfig
	Electrum         bitcoin.ElectrumConfig

	EthRPCURL       string
	ContractAddress string

	CacheDir         string
	CacheBackend     string
	FetchConcurrency int

	Workers         []int
	WorkerFrequency int // in sec
	AlertWebhookURL string
	LogLevel        string
	LogFormat       string
	ReportDB        string
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := envOr(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// LoadConfig reads the process environment, .env is expected to be loaded already.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Network:          envOr("BTC_NETWORK", "main"),
		Provider:         strings.ToLower(envOr("BTC_PROVIDER", ProviderBlockchainInfo)),
		IndexerURL:       envOr("BLOCKCHAIN_INFO_URL", bitcoin.DefaultIndexerURL),
		BlockCypherToken: os.Getenv("BLOCKCYPHER_TOKEN"),
		Node: utils.BTCNodeConfig{
			Host:     os.Getenv("BTC_NODE_HOST"),
			Port:     os.Getenv("BTC_NODE_PORT"),
			Username: os.Getenv("BTC_NODE_USERNAME"),
			Password: os.Getenv("BTC_NODE_PASSWORD"),
		},
		Electrum: bitcoin.ElectrumConfig{
			Host:               os.Getenv("ELECTRUM_HOST"),
			SSL:                envOr("ELECTRUM_SSL", "false") == "true",
			InsecureSkipVerify: true,
		},
		EthRPCURL:       os.Getenv("ETH_RPC_URL"),
		ContractAddress: envOr("STORAGE_CONTRACT_ADDRESS", ledger.DefaultContractAddress),
		CacheDir:        envOr("CACHE_DIR", "cache"),
		CacheBackend:    strings.ToLower(envOr("CACHE_BACKEND", CacheBackendFile)),
		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogFormat:       envOr("LOG_FORMAT", "text"),
		ReportDB:        envOr("REPORT_DB", "db/reports"),
	}

	var err error
	if rps := envOr("INDEXER_RPS", ""); rps != "" {
		if cfg.IndexerRPS, err = strconv.ParseFloat(rps, 64); err != nil {
			return nil, fmt.Errorf("INDEXER_RPS: %w", err)
		}
	}
	if cfg.Electrum.Port, err = envInt("ELECTRUM_PORT", 50001); err != nil {
		return nil, err
	}
	if cfg.FetchConcurrency, err = envInt("FETCH_CONCURRENCY", queue.DefaultConcurrency); err != nil {
		return nil, err
	}
	if cfg.WorkerFrequency, err = envInt("WORKER_FREQUENCY", 600); err != nil {
		return nil, err
	}
	for _, id := range strings.Split(envOr("WORKERS", "1,2"), ",") {
		n, err := strconv.Atoi(strings.TrimSpace(id))
		if err != nil {
			return nil, fmt.Errorf("WORKERS: %w", err)
		}
		cfg.Workers = append(cfg.Workers, n)
	}

	switch cfg.Provider {
	case ProviderBlockchainInfo, ProviderBlockCypher, ProviderNone:
	case ProviderFullNode:
		if cfg.Node.Host == "" || cfg.Electrum.Host == "" {
			return nil, fmt.Errorf("%s provider needs BTC_NODE_HOST and ELECTRUM_HOST", ProviderFullNode)
		}
	default:
		return nil, fmt.Errorf("unknown BTC_PROVIDER %q", cfg.Provider)
	}
	if cfg.CacheBackend != CacheBackendFile && cfg.CacheBackend != CacheBackendLevelDB {
		return nil, fmt.Errorf("unknown CACHE_BACKEND %q", cfg.CacheBackend)
	}
	if cfg.EthRPCURL == "" {
		return nil, fmt.Errorf("ETH_RPC_URL is required")
	}
	return cfg, nil
}

func newLogger(cfg *Config) (*logrus.Entry, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logrus.NewEntry(logger).WithField("network", cfg.Network), nil
}

func openStore(cfg *Config) (cache.Store, func(), error) {
	if cfg.CacheBackend == CacheBackendLevelDB {
		store, err := cache.OpenLevelDBStore(filepath.Join(cfg.CacheDir, "leveldb"))
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
	return cache.NewFileStore(cfg.CacheDir), func() {}, nil
}

func newBitcoinProvider(cfg *Config, params *chaincfg.Params, c *cache.Provider, q *queue.Queue, logger *logrus.Entry) (bitcoin.Provider, error) {
	switch cfg.Provider {
	case ProviderBlockchainInfo:
		return bitcoin.NewIndexerProvider(bitcoin.IndexerConfig{
			BaseURL:           cfg.IndexerURL,
			RequestsPerSecond: cfg.IndexerRPS,
			HTTPRetries:       2,
		}, c, q, params, logger), nil
	case ProviderBlockCypher:
		chain := "main"
		if params != &chaincfg.MainNetParams {
			chain = "test3"
		}
		return bitcoin.NewBlockCypherProvider(bitcoin.NewBlockCypherClient("", cfg.BlockCypherToken, chain), c, q, params, logger), nil
	case ProviderFullNode:
		node, err := utils.BuildBTCClient(cfg.Node)
		if err != nil {
			return nil, err
		}
		return bitcoin.NewFullNodeProvider(node, bitcoin.NewElectrumClient(cfg.Electrum), c, q, params, logger), nil
	}
	return nil, nil
}

// buildEnvironment wires the shared collaborators, close releases them.
func buildEnvironment(ctx context.Context, cfg *Config) (*workers.Environment, func(), error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	params, err := utils.ChainParams(cfg.Network)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	c := cache.NewProvider(nil, store)
	q := queue.New(cfg.FetchConcurrency, c.Memory(), logger)
	closeAll := func() {
		q.Close()
		c.Memory().Stop()
		closeStore()
	}

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	caller, err := ledger.DialEthCaller(dialCtx, cfg.EthRPCURL, cfg.ContractAddress)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	btc, err := newBitcoinProvider(cfg, params, c, q, logger)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	db, err := leveldb.OpenFile(cfg.ReportDB, nil)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("could not open leveldb storage file - with err: %w", err)
	}

	env := &workers.Environment{
		Ledger:          ledger.NewStorageContract(caller, c, q, logger),
		Verifier:        bitcoin.NewMessageVerifier(params),
		DB:              db,
		AlertWebhookURL: cfg.AlertWebhookURL,
		Logger:          logger,
	}
	if btc != nil {
		env.Bitcoin = btc
		env.UTXOs = utxomanager.NewUTXOManager(btc, utxomanager.DefaultMaxAge)
	}
	return env, func() {
		db.Close()
		closeAll()
	}, nil
}
