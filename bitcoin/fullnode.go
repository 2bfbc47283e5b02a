package bitcoin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ARandomInvestor/amfeix-api/cache"
	"github.com/ARandomInvestor/amfeix-api/entities"
	"github.com/ARandomInvestor/amfeix-api/queue"
	"github.com/ARandomInvestor/amfeix-api/utils"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/sirupsen/logrus"
)

const fullNodeTries = 5

// NodeClient is the subset of *rpcclient.Client the provider calls.
type NodeClient interface {
	GetRawTransaction(txHash *chainhash.Hash) (*btcutil.Tx, error)
	GetRawTransactionVerbose(txHash *chainhash.Hash) (*btcjson.TxRawResult, error)
	GetBlockHeaderVerbose(blockHash *chainhash.Hash) (*btcjson.GetBlockHeaderVerboseResult, error)
	GetBlockChainInfo() (*btcjson.GetBlockChainInfoResult, error)
}

// HistoryIndex serves address histories keyed by Electrum script hash.
type HistoryIndex interface {
	GetHistory(ctx context.Context, scripthash string) ([]entities.ElectrumHistoryItem, error)
}

// FullNodeProvider reads transactions from a bitcoind node and address
// histories from an Electrum server.
type FullNodeProvider struct {
	*base
	node  NodeClient
	index HistoryIndex
}

var _ Provider = (*FullNodeProvider)(nil)

func NewFullNodeProvider(node NodeClient, index HistoryIndex, c *cache.Provider, q *queue.Queue, params *chaincfg.Params, logger *logrus.Entry) *FullNodeProvider {
	p := &FullNodeProvider{node: node, index: index}
	p.base = newBase(p, c, q, params, logger, "bitcoin.fullnode")
	return p
}

// call issues fn through the queue, re-issuing it fresh up to five times.
func call[T any](ctx context.Context, q *queue.Queue, key string, fn func() (T, error)) (T, error) {
	return queue.Retry(ctx, fullNodeTries, func(ctx context.Context) (T, error) {
		return queue.Fetch[T](ctx, q, queue.Request{
			CacheKey: key,
			Operation: func(ctx context.Context) (interface{}, error) {
				v, err := fn()
				if err != nil {
					return nil, err
				}
				return v, nil
			},
		})
	})
}

func (p *FullNodeProvider) rawTransaction(ctx context.Context, txid string) (string, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentifier, err)
	}
	return call(ctx, p.queue, "rawtx."+txid, func() (string, error) {
		tx, err := p.node.GetRawTransaction(hash)
		if err != nil {
			return "", err
		}
		raw, err := NewTransaction(tx.MsgTx()).Hex()
		if err != nil {
			return "", err
		}
		return raw, nil
	})
}

func (p *FullNodeProvider) blockDetails(ctx context.Context, txid string) (*entities.TxBlockDetails, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentifier, err)
	}
	res, err := call(ctx, p.queue, "jsontx."+txid, func() (*btcjson.TxRawResult, error) {
		return p.node.GetRawTransactionVerbose(hash)
	})
	if err != nil {
		return nil, err
	}

	details := &entities.TxBlockDetails{Hash: txid, Time: res.Time}
	if res.Confirmations > 0 && res.BlockHash != "" {
		header, err := p.GetBlockHeader(ctx, res.BlockHash)
		if err != nil {
			return nil, err
		}
		h := header.Height
		details.Height = &h
	}
	return details, nil
}

// GetBlockHeader is durably cached, headers of a known hash never change.
func (p *FullNodeProvider) GetBlockHeader(ctx context.Context, blockHash string) (*entities.BlockHeader, error) {
	var header entities.BlockHeader
	if p.cache.GetFileCache("blockheader", blockHash, &header) {
		return &header, nil
	}
	hash, err := chainhash.NewHashFromStr(blockHash)
	if err != nil {
		return nil, fmt.Errorf("%w: block hash %q", ErrInvalidIdentifier, blockHash)
	}
	res, err := call(ctx, p.queue, "blockheader."+blockHash, func() (*btcjson.GetBlockHeaderVerboseResult, error) {
		return p.node.GetBlockHeaderVerbose(hash)
	})
	if err != nil {
		return nil, err
	}
	header = entities.BlockHeader{
		Hash:          res.Hash,
		Height:        int64(res.Height),
		Time:          res.Time,
		Confirmations: res.Confirmations,
		PreviousHash:  res.PreviousHash,
	}
	if err := p.cache.SetFileCache("blockheader", blockHash, header); err != nil {
		p.logger.WithError(err).WithField("block", blockHash).Warn("could not persist block header")
	}
	return &header, nil
}

func (p *FullNodeProvider) GetBestBlockInfo(ctx context.Context) (*entities.ChainInfo, error) {
	if info, ok := cache.Get[*entities.ChainInfo](p.cache, "lastblock"); ok {
		return info, nil
	}
	res, err := call(ctx, p.queue, "", func() (*btcjson.GetBlockChainInfoResult, error) {
		return p.node.GetBlockChainInfo()
	})
	if err != nil {
		return nil, err
	}
	info := &entities.ChainInfo{
		Chain:         res.Chain,
		Blocks:        int64(res.Blocks),
		Headers:       int64(res.Headers),
		BestBlockHash: res.BestBlockHash,
	}
	p.cache.SetCache("lastblock", info, 0)
	return info, nil
}

// ScriptHash is the Electrum key of an address: sha256 of its output script, byte reversed.
func ScriptHash(address string, params *chaincfg.Params) (string, error) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return "", fmt.Errorf("%w: address %q: %v", ErrInvalidIdentifier, address, err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return "", fmt.Errorf("%w: address %q: %v", ErrInvalidIdentifier, address, err)
	}
	sum := sha256.Sum256(script)
	return hex.EncodeToString(utils.ReverseBytes(sum[:])), nil
}

func (p *FullNodeProvider) addressHistory(ctx context.Context, address string, limit int) ([]string, error) {
	if p.index == nil {
		return nil, ErrNoAddressIndex
	}
	scripthash, err := ScriptHash(address, p.params)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for retry := 0; retry < fullNodeTries; retry++ {
		history, err := queue.Fetch[[]entities.ElectrumHistoryItem](ctx, p.queue, queue.Request{
			Operation: func(ctx context.Context) (interface{}, error) {
				items, err := p.index.GetHistory(ctx, scripthash)
				if err != nil {
					return nil, err
				}
				return items, nil
			},
		})
		if err == nil {
			entries := make([]string, 0, len(history))
			for _, item := range history {
				entries = append(entries, strings.ToLower(item.TxHash))
			}
			return entries, nil
		}
		lastErr = err
		p.logger.WithError(err).WithField("address", address).Debug("electrum history attempt failed")
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("maxed out retries for %s: %w", address, lastErr)
}
