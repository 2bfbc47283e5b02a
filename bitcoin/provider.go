package bitcoin

import (
	"context"
	"fmt"
	"strings"

	"github.com/ARandomInvestor/amfeix-api/cache"
	"github.com/ARandomInvestor/amfeix-api/entities"
	"github.com/ARandomInvestor/amfeix-api/queue"
	"github.com/ARandomInvestor/amfeix-api/utils"
	"github.com/ARandomInvestor/amfeix-api/utxomanager"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Provider is the chain data capability the reconciliation consumes.
type Provider interface {
	Params() *chaincfg.Params
	GetRawTransaction(ctx context.Context, txid string) (string, error)
	GetTransaction(ctx context.Context, txid string) (*Transaction, error)
	GetTransactionBlockDetails(ctx context.Context, txid string) (*entities.TxBlockDetails, error)
	// GetAddressTransactions returns the de-duplicated history of address in
	// backend order, at most limit entries when limit > 0.
	GetAddressTransactions(ctx context.Context, address string, limit int) ([]*Transaction, error)
	GetAddressForOutput(out *Output) string
	GetAddressForInput(in *Input) string
	GetTransactionID(v interface{}) (string, error)
	GetPreviousOutput(ctx context.Context, in *Input) (*Output, error)
	GetAddressUnspentOutputs(ctx context.Context, address string) (map[string]entities.UTXO, error)
}

// backend is what differs between chain data sources. Each call routes its
// own remote work through the queue.
type backend interface {
	rawTransaction(ctx context.Context, txid string) (string, error)
	blockDetails(ctx context.Context, txid string) (*entities.TxBlockDetails, error)
	addressHistory(ctx context.Context, address string, limit int) ([]string, error)
}

// base holds the caching policy shared by every backend.
type base struct {
	backend backend
	cache   *cache.Provider
	queue   *queue.Queue
	params  *chaincfg.Params
	logger  *logrus.Entry
}

func newBase(b backend, c *cache.Provider, q *queue.Queue, params *chaincfg.Params, logger *logrus.Entry, component string) *base {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	return &base{
		backend: b,
		cache:   c,
		queue:   q,
		params:  params,
		logger:  utils.ComponentLogger(logger, component),
	}
}

func (b *base) Params() *chaincfg.Params {
	return b.params
}

func (b *base) GetRawTransaction(ctx context.Context, txid string) (string, error) {
	if err := ValidateTxID(txid); err != nil {
		return "", err
	}
	txid = strings.ToLower(txid)

	var raw string
	if b.cache.GetFileCache("rawtx", txid, &raw) {
		return raw, nil
	}

	raw, err := b.backend.rawTransaction(ctx, txid)
	if err != nil {
		return "", err
	}
	if err := b.cache.SetFileCache("rawtx", txid, raw); err != nil {
		b.logger.WithError(err).WithField("txid", txid).Warn("could not persist raw transaction")
	}
	return raw, nil
}

func (b *base) GetTransaction(ctx context.Context, txid string) (*Transaction, error) {
	if err := ValidateTxID(txid); err != nil {
		return nil, err
	}
	txid = strings.ToLower(txid)
	key := "tx." + txid
	if tx, ok := cache.Get[*Transaction](b.cache, key); ok {
		return tx, nil
	}

	raw, err := b.GetRawTransaction(ctx, txid)
	if err != nil {
		return nil, err
	}
	tx, err := ParseTransaction(raw)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", txid, err)
	}
	b.cache.SetCache(key, tx, 0)
	return tx, nil
}

// GetTransactionBlockDetails persists the result only once the transaction has
// a height, unconfirmed details stay in memory.
func (b *base) GetTransactionBlockDetails(ctx context.Context, txid string) (*entities.TxBlockDetails, error) {
	if err := ValidateTxID(txid); err != nil {
		return nil, err
	}
	txid = strings.ToLower(txid)

	var details entities.TxBlockDetails
	if b.cache.GetFileCache("txinfo", txid, &details) {
		return &details, nil
	}
	if d, ok := cache.Get[*entities.TxBlockDetails](b.cache, "txinfo."+txid); ok {
		return d, nil
	}

	d, err := b.backend.blockDetails(ctx, txid)
	if err != nil {
		return nil, err
	}
	if d.IsConfirmed() {
		if err := b.cache.SetFileCache("txinfo", txid, d); err != nil {
			b.logger.WithError(err).WithField("txid", txid).Warn("could not persist block details")
		}
	} else {
		b.cache.SetCache("txinfo."+txid, d, 0)
	}
	return d, nil
}

// GetAddressTransactions caches only complete histories, a limited lookup is
// served from a complete one when present.
func (b *base) GetAddressTransactions(ctx context.Context, address string, limit int) ([]*Transaction, error) {
	key := "addresstx." + address
	if txs, ok := cache.Get[[]*Transaction](b.cache, key); ok {
		return truncate(txs, limit), nil
	}

	ids, err := b.backend.addressHistory(ctx, address, limit)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(id)
		if seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
		if limit > 0 && len(unique) >= limit {
			break
		}
	}

	txs := make([]*Transaction, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(queue.DefaultConcurrency)
	for i, id := range unique {
		i, id := i, id
		g.Go(func() error {
			tx, err := b.GetTransaction(gctx, id)
			if err != nil {
				return err
			}
			txs[i] = tx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if limit <= 0 {
		b.cache.SetCache(key, txs, 0)
	}
	return txs, nil
}

func truncate(txs []*Transaction, limit int) []*Transaction {
	if limit > 0 && len(txs) > limit {
		return txs[:limit]
	}
	return txs
}

func (b *base) GetAddressForOutput(out *Output) string {
	return AddressForOutput(out, b.params)
}

func (b *base) GetAddressForInput(in *Input) string {
	return AddressForInput(in, b.params)
}

func (b *base) GetTransactionID(v interface{}) (string, error) {
	return TransactionID(v)
}

func (b *base) GetPreviousOutput(ctx context.Context, in *Input) (*Output, error) {
	if prev := in.PrevOut(); prev != nil {
		return prev, nil
	}
	if in.IsCoinbase() {
		return nil, fmt.Errorf("%w: coinbase input", ErrMissingIdentifier)
	}
	outpoint := in.PreviousOutPoint()
	prevTx, err := b.GetTransaction(ctx, outpoint.Hash.String())
	if err != nil {
		return nil, err
	}
	if int(outpoint.Index) >= len(prevTx.Outputs) {
		return nil, fmt.Errorf("%w: output %d of %s", ErrNotFound, outpoint.Index, outpoint.Hash)
	}
	out := prevTx.Outputs[outpoint.Index]
	in.AttachPrevOut(out)
	return out, nil
}

func (b *base) GetAddressUnspentOutputs(ctx context.Context, address string) (map[string]entities.UTXO, error) {
	txs, err := b.GetAddressTransactions(ctx, address, 0)
	if err != nil {
		return nil, err
	}
	history := make([]utxomanager.Tx, 0, len(txs))
	for _, tx := range txs {
		history = append(history, historyTx{tx: tx, params: b.params})
	}
	return utxomanager.Collect(address, history), nil
}

type historyTx struct {
	tx     *Transaction
	params *chaincfg.Params
}

func (h historyTx) ID() string {
	return h.tx.ID()
}

func (h historyTx) PaidTo(address string) []entities.UTXO {
	var paid []entities.UTXO
	for _, out := range h.tx.Outputs {
		if AddressForOutput(out, h.params) == address {
			paid = append(paid, entities.UTXO{
				TxID:        out.TxID,
				OutputIndex: out.Index,
				Value:       out.Value(),
				Address:     address,
			})
		}
	}
	return paid
}

func (h historyTx) Spends() []string {
	spends := make([]string, 0, len(h.tx.Inputs))
	for _, in := range h.tx.Inputs {
		if in.IsCoinbase() {
			continue
		}
		prev := in.PreviousOutPoint()
		spends = append(spends, utxomanager.OutpointKey(prev.Hash.String(), prev.Index))
	}
	return spends
}

// isHex reports whether s looks like a serialized transaction.
func isHex(s string) bool {
	return len(s)%2 == 0 && hexPattern.MatchString(s)
}
