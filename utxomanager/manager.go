package utxomanager

import (
	"context"
	"sync"
	"time"

	"github.com/ARandomInvestor/amfeix-api/entities"
)

const DefaultMaxAge = 5 * time.Minute

type Source interface {
	GetAddressUnspentOutputs(ctx context.Context, address string) (map[string]entities.UTXO, error)
}

// UTXOManager keeps the last derived unspent set of each address for MaxAge.
type UTXOManager struct {
	Unspent   map[string]map[string]entities.UTXO // address: outpoint: utxo
	Refreshed map[string]time.Time
	MaxAge    time.Duration
	mux       sync.Mutex
	source    Source
}

func NewUTXOManager(source Source, maxAge time.Duration) *UTXOManager {
	return &UTXOManager{
		Unspent:   map[string]map[string]entities.UTXO{},
		Refreshed: map[string]time.Time{},
		MaxAge:    maxAge,
		source:    source,
	}
}

func (c *UTXOManager) GetUnspent(ctx context.Context, address string) (map[string]entities.UTXO, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	at, isExisted := c.Refreshed[address]
	if isExisted && time.Since(at) < c.MaxAge {
		return copyUTXOs(c.Unspent[address]), nil
	}

	utxos, err := c.source.GetAddressUnspentOutputs(ctx, address)
	if err != nil {
		return nil, err
	}
	c.Unspent[address] = utxos
	c.Refreshed[address] = time.Now()
	return copyUTXOs(utxos), nil
}

func (c *UTXOManager) GetBalance(ctx context.Context, address string) (int64, error) {
	utxos, err := c.GetUnspent(ctx, address)
	if err != nil {
		return 0, err
	}
	return Sum(utxos), nil
}

// Invalidate drops the cached set so the next read goes to the source.
func (c *UTXOManager) Invalidate(address string) {
	c.mux.Lock()
	defer c.mux.Unlock()
	delete(c.Unspent, address)
	delete(c.Refreshed, address)
}

func copyUTXOs(in map[string]entities.UTXO) map[string]entities.UTXO {
	out := make(map[string]entities.UTXO, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
