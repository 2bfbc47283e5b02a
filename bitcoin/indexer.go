package bitcoin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ARandomInvestor/amfeix-api/cache"
	"github.com/ARandomInvestor/amfeix-api/entities"
	"github.com/ARandomInvestor/amfeix-api/queue"
	"github.com/btcsuite/btcd/chaincfg"
	resty "github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultIndexerURL = "https://blockchain.info"

	indexerPageSize  = 50
	indexerPageTries = 3
)

type IndexerConfig struct {
	BaseURL string
	// RequestsPerSecond throttles outbound calls, 0 disables throttling.
	RequestsPerSecond float64
	Timeout           time.Duration
	// HTTPRetries is how often resty re-issues a request after a network error.
	HTTPRetries int
}

// IndexerProvider reads a blockchain.info style HTTP indexer.
type IndexerProvider struct {
	*base
	client  *resty.Client
	limiter *rate.Limiter
}

var _ Provider = (*IndexerProvider)(nil)

func NewIndexerProvider(cfg IndexerConfig, c *cache.Provider, q *queue.Queue, params *chaincfg.Params, logger *logrus.Entry) *IndexerProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultIndexerURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	p := &IndexerProvider{
		client: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetRetryCount(cfg.HTTPRetries).
			SetRetryWaitTime(500 * time.Millisecond).
			SetHeader("Connection", "keep-alive"),
	}
	if cfg.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	p.base = newBase(p, c, q, params, logger, "bitcoin.indexer")
	return p
}

func (p *IndexerProvider) get(ctx context.Context, path string, query map[string]string) ([]byte, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	response, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return nil, err
	}
	if response.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s: %s", ErrNotFound, path, strings.TrimSpace(response.String()))
	}
	if !response.IsSuccess() {
		return nil, fmt.Errorf("indexer %s: response status code: %v", path, response.StatusCode())
	}
	return response.Body(), nil
}

func (p *IndexerProvider) rawTransaction(ctx context.Context, txid string) (string, error) {
	return queue.Fetch[string](ctx, p.queue, queue.Request{
		CacheKey: "rawtx." + txid,
		Operation: func(ctx context.Context) (interface{}, error) {
			body, err := p.get(ctx, "/rawtx/"+txid, map[string]string{"format": "hex", "cors": "true"})
			if err != nil {
				return nil, err
			}
			raw := strings.TrimSpace(string(body))
			if !isHex(raw) {
				return nil, fmt.Errorf("%w: could not find transaction %s: %s", ErrNotFound, txid, raw)
			}
			return raw, nil
		},
	})
}

func (p *IndexerProvider) blockDetails(ctx context.Context, txid string) (*entities.TxBlockDetails, error) {
	return queue.Fetch[*entities.TxBlockDetails](ctx, p.queue, queue.Request{
		CacheKey: "jsontx." + txid,
		Operation: func(ctx context.Context) (interface{}, error) {
			body, err := p.get(ctx, "/rawtx/"+txid, map[string]string{"cors": "true"})
			if err != nil {
				return nil, err
			}
			var res entities.IndexerTx
			if err := json.Unmarshal(body, &res); err != nil {
				return nil, fmt.Errorf("could not parse transaction %s: %w", txid, err)
			}
			if res.Reason != "" {
				return nil, fmt.Errorf("%w: could not find transaction %s: %s", ErrNotFound, txid, res.Reason)
			}
			details := &entities.TxBlockDetails{Hash: txid, Time: res.Time}
			if res.BlockHeight != nil && *res.BlockHeight > 0 {
				h := *res.BlockHeight
				details.Height = &h
			}
			return details, nil
		},
	})
}

func (p *IndexerProvider) page(ctx context.Context, address string, page int) (*entities.IndexerAddress, error) {
	return queue.Fetch[*entities.IndexerAddress](ctx, p.queue, queue.Request{
		Operation: func(ctx context.Context) (interface{}, error) {
			body, err := p.get(ctx, "/rawaddr/"+address, map[string]string{
				"limit":  strconv.Itoa(indexerPageSize),
				"offset": strconv.Itoa(page * indexerPageSize),
				"cors":   "true",
			})
			if err != nil {
				return nil, err
			}
			var res entities.IndexerAddress
			if err := json.Unmarshal(body, &res); err != nil {
				return nil, fmt.Errorf("could not parse page %d for %s: %w", page, address, err)
			}
			if res.Reason != "" {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, res.Reason)
			}
			return &res, nil
		},
	})
}

// addressHistory pages through the address, each page tried up to three
// times before the whole lookup fails.
func (p *IndexerProvider) addressHistory(ctx context.Context, address string, limit int) ([]string, error) {
	var entries []string
	for page := 0; ; page++ {
		res, err := queue.Retry(ctx, indexerPageTries, func(ctx context.Context) (*entities.IndexerAddress, error) {
			return p.page(ctx, address, page)
		})
		if err != nil {
			return nil, fmt.Errorf("could not fetch page %d for address %s: %w", page, address, err)
		}
		for _, tx := range res.Txs {
			entries = append(entries, tx.Hash)
		}
		if limit > 0 && len(entries) >= limit {
			break
		}
		if len(res.Txs) == 0 || len(entries) >= res.NTx {
			break
		}
	}
	return entries, nil
}
