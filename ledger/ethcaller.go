package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Caller performs read-only calls against the storage contract.
type Caller interface {
	Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error)
	BalanceAt(ctx context.Context, address string) (*big.Int, error)
}

// contractBackend is the part of *ethclient.Client the caller needs.
type contractBackend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// EthCaller executes contract calls over JSON-RPC at the latest block.
type EthCaller struct {
	backend  contractBackend
	contract common.Address
	abi      abi.ABI
}

var _ Caller = (*EthCaller)(nil)

func DialEthCaller(ctx context.Context, rpcURL string, contract string) (*EthCaller, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return NewEthCaller(client, contract)
}

func NewEthCaller(backend contractBackend, contract string) (*EthCaller, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid contract address %q", contract)
	}
	parsed, err := ParseStorageABI()
	if err != nil {
		return nil, err
	}
	return &EthCaller{backend: backend, contract: common.HexToAddress(contract), abi: parsed}, nil
}

func (c *EthCaller) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func (c *EthCaller) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	return c.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
}
