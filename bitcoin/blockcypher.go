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
)

const (
	DefaultBlockCypherURL = "https://api.blockcypher.com/v1/btc"

	blockCypherPageSize = 50
)

// BlockCypherAPI is the part of the BlockCypher REST API the provider uses.
type BlockCypherAPI interface {
	GetTX(ctx context.Context, hash string, params map[string]string) (entities.BlockCypherTX, error)
	GetAddrFull(ctx context.Context, address string, params map[string]string) (entities.BlockCypherAddress, error)
}

// BlockCypherClient talks to one BlockCypher chain, "main" or "test3".
type BlockCypherClient struct {
	client *resty.Client
}

var _ BlockCypherAPI = (*BlockCypherClient)(nil)

func NewBlockCypherClient(baseURL, token, chain string) *BlockCypherClient {
	if baseURL == "" {
		baseURL = DefaultBlockCypherURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/") + "/" + chain).
		SetTimeout(30 * time.Second).
		SetHeader("Connection", "keep-alive")
	if token != "" {
		client.SetQueryParam("token", token)
	}
	return &BlockCypherClient{client: client}
}

func (c *BlockCypherClient) get(ctx context.Context, path string, query map[string]string, result interface{}) error {
	response, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return err
	}
	var apiErr struct {
		Error string `json:"error"`
	}
	if response.StatusCode() == http.StatusNotFound {
		_ = json.Unmarshal(response.Body(), &apiErr)
		return fmt.Errorf("%w: %s: %s", ErrNotFound, path, apiErr.Error)
	}
	if !response.IsSuccess() {
		return fmt.Errorf("blockcypher %s: response status code: %v", path, response.StatusCode())
	}
	if err := json.Unmarshal(response.Body(), result); err != nil {
		return fmt.Errorf("could not parse %s: %w", path, err)
	}
	return nil
}

func (c *BlockCypherClient) GetTX(ctx context.Context, hash string, params map[string]string) (entities.BlockCypherTX, error) {
	var tx entities.BlockCypherTX
	err := c.get(ctx, "/txs/"+hash, params, &tx)
	return tx, err
}

func (c *BlockCypherClient) GetAddrFull(ctx context.Context, address string, params map[string]string) (entities.BlockCypherAddress, error) {
	var addr entities.BlockCypherAddress
	if err := c.get(ctx, "/addrs/"+address+"/full", params, &addr); err != nil {
		return addr, err
	}
	if addr.Error != "" {
		return addr, fmt.Errorf("blockcypher address %s: %s", address, addr.Error)
	}
	return addr, nil
}

// BlockCypherProvider is an indexer backend on the BlockCypher REST API.
type BlockCypherProvider struct {
	*base
	api BlockCypherAPI
}

var _ Provider = (*BlockCypherProvider)(nil)

func NewBlockCypherProvider(api BlockCypherAPI, c *cache.Provider, q *queue.Queue, params *chaincfg.Params, logger *logrus.Entry) *BlockCypherProvider {
	p := &BlockCypherProvider{api: api}
	p.base = newBase(p, c, q, params, logger, "bitcoin.blockcypher")
	return p
}

func (p *BlockCypherProvider) rawTransaction(ctx context.Context, txid string) (string, error) {
	return queue.Fetch[string](ctx, p.queue, queue.Request{
		CacheKey: "rawtx." + txid,
		Operation: func(ctx context.Context) (interface{}, error) {
			tx, err := p.api.GetTX(ctx, txid, map[string]string{"includeHex": "true"})
			if err != nil {
				return nil, err
			}
			raw := strings.TrimSpace(tx.Hex)
			if !isHex(raw) {
				return nil, fmt.Errorf("%w: could not find transaction %s", ErrNotFound, txid)
			}
			return raw, nil
		},
	})
}

func (p *BlockCypherProvider) blockDetails(ctx context.Context, txid string) (*entities.TxBlockDetails, error) {
	return queue.Fetch[*entities.TxBlockDetails](ctx, p.queue, queue.Request{
		CacheKey: "jsontx." + txid,
		Operation: func(ctx context.Context) (interface{}, error) {
			tx, err := p.api.GetTX(ctx, txid, nil)
			if err != nil {
				return nil, err
			}
			details := &entities.TxBlockDetails{Hash: txid}
			if !tx.Confirmed.IsZero() {
				details.Time = tx.Confirmed.Unix()
			} else {
				details.Time = tx.Received.Unix()
			}
			if tx.BlockHeight > 0 {
				h := int64(tx.BlockHeight)
				details.Height = &h
			}
			return details, nil
		},
	})
}

// addressHistory walks newest to oldest using the "before" height cursor.
// The cursor is exclusive, so each page restarts at the lowest height seen
// and overlapping entries are skipped.
func (p *BlockCypherProvider) addressHistory(ctx context.Context, address string, limit int) ([]string, error) {
	var entries []string
	seen := make(map[string]bool)
	before := 0
	for page := 0; ; page++ {
		params := map[string]string{"limit": strconv.Itoa(blockCypherPageSize)}
		if before > 0 {
			params["before"] = strconv.Itoa(before)
		}
		addr, err := queue.Retry(ctx, indexerPageTries, func(ctx context.Context) (entities.BlockCypherAddress, error) {
			return queue.Fetch[entities.BlockCypherAddress](ctx, p.queue, queue.Request{
				Operation: func(ctx context.Context) (interface{}, error) {
					addr, err := p.api.GetAddrFull(ctx, address, params)
					if err != nil {
						return nil, err
					}
					return addr, nil
				},
			})
		})
		if err != nil {
			return nil, fmt.Errorf("could not fetch page %d for address %s: %w", page, address, err)
		}

		lowest, added := 0, 0
		for _, tx := range addr.TXs {
			if tx.BlockHeight > 0 && (lowest == 0 || tx.BlockHeight < lowest) {
				lowest = tx.BlockHeight
			}
			if seen[tx.Hash] {
				continue
			}
			seen[tx.Hash] = true
			entries = append(entries, tx.Hash)
			added++
		}
		if limit > 0 && len(entries) >= limit {
			break
		}
		if !addr.HasMore || lowest == 0 {
			break
		}
		if lowest+1 == before {
			// one block fills the whole page, step below it
			p.logger.WithFields(logrus.Fields{"address": address, "height": lowest}).
				Warn("block holds more transactions than a page, history may be incomplete")
			before = lowest
			continue
		}
		if added == 0 {
			break
		}
		before = lowest + 1
	}
	return entries, nil
}
