// Package simchain provides an in-memory ledger for exercising
// monitors without an RPC endpoint. It hands out balance readers,
// field accessors, and mutating operations with deterministic gas
// accounting, including mined-but-reverted calls.
package simchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mbd888/statewatch/pkg/monitor"
)

// revertError is a mined-but-reverted failure; it carries the receipt
// so callers can still account for consumed gas.
type revertError struct {
	receipt *types.Receipt
}

func (e *revertError) Error() string {
	return fmt.Sprintf("simchain: transaction reverted (tx: %s)", e.receipt.TxHash.Hex())
}

func (e *revertError) Receipt() *types.Receipt { return e.receipt }

// Compile-time interface checks
var (
	_ monitor.ReceiptCarrier = (*revertError)(nil)
	_ monitor.BalanceReader  = (*Chain)(nil)
)

// Chain is an in-memory ledger: native balances per address, token
// balances per (token, holder), and named contract fields. All
// operations are safe for concurrent use.
type Chain struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	tokens   map[common.Address]map[common.Address]*big.Int
	fields   map[string]monitor.Value
	gasPrice *big.Int
	txCount  uint64
}

// New creates an empty chain with a gas price of 1 wei.
func New() *Chain {
	return &Chain{
		balances: make(map[common.Address]*big.Int),
		tokens:   make(map[common.Address]map[common.Address]*big.Int),
		fields:   make(map[string]monitor.Value),
		gasPrice: big.NewInt(1),
	}
}

// SetGasPrice overrides the chain's gas price.
func (c *Chain) SetGasPrice(price *big.Int) {
	c.mu.Lock()
	c.gasPrice = new(big.Int).Set(price)
	c.mu.Unlock()
}

// SetBalance installs a native balance.
func (c *Chain) SetBalance(addr common.Address, amount *big.Int) {
	c.mu.Lock()
	c.balances[addr] = new(big.Int).Set(amount)
	c.mu.Unlock()
}

// BalanceOf implements monitor.BalanceReader over native balances.
func (c *Chain) BalanceOf(_ context.Context, addr common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.balance(addr)), nil
}

// balance returns the stored balance, creating a zero entry if absent.
// Callers must hold c.mu.
func (c *Chain) balance(addr common.Address) *big.Int {
	b, ok := c.balances[addr]
	if !ok {
		b = new(big.Int)
		c.balances[addr] = b
	}
	return b
}

// SetTokenBalance installs a token balance for one holder.
func (c *Chain) SetTokenBalance(token, holder common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	holders, ok := c.tokens[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		c.tokens[token] = holders
	}
	holders[holder] = new(big.Int).Set(amount)
}

// TokenBalanceReader returns a balance reader over one token's holdings.
func (c *Chain) TokenBalanceReader(token common.Address) monitor.BalanceReader {
	return monitor.BalanceReaderFunc(func(_ context.Context, holder common.Address) (*big.Int, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if holders, ok := c.tokens[token]; ok {
			if b, ok := holders[holder]; ok {
				return new(big.Int).Set(b), nil
			}
		}
		return new(big.Int), nil
	})
}

// SetField installs a contract field value under a name.
func (c *Chain) SetField(name string, v monitor.Value) {
	c.mu.Lock()
	c.fields[name] = v
	c.mu.Unlock()
}

// FieldAccessor returns an accessor over one named field. Fixed
// accessor parameters are accepted and ignored; the simulated store is
// keyed by name alone.
func (c *Chain) FieldAccessor(name string) monitor.Accessor {
	return func(_ context.Context, _ ...any) (monitor.Value, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		v, ok := c.fields[name]
		if !ok {
			return nil, fmt.Errorf("simchain: no field %q", name)
		}
		return v, nil
	}
}

// receipt mints a mined receipt charging gasUsed at the chain's price.
// Callers must hold c.mu.
func (c *Chain) receipt(gasUsed uint64, status uint64) *types.Receipt {
	c.txCount++
	return &types.Receipt{
		Status:            status,
		GasUsed:           gasUsed,
		EffectiveGasPrice: new(big.Int).Set(c.gasPrice),
		TxHash:            common.BigToHash(new(big.Int).SetUint64(c.txCount)),
	}
}

// TransferOperation returns an operation that moves value from the
// calling actor to the recipient, charging gasUsed at the chain's gas
// price on top.
func (c *Chain) TransferOperation(to common.Address, value *big.Int, gasUsed uint64) monitor.Operation {
	return func(_ context.Context, opts monitor.CallOpts) (*monitor.CallResult, error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		gasCost := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), c.gasPrice)
		total := new(big.Int).Add(value, gasCost)

		from := c.balance(opts.From)
		if from.Cmp(total) < 0 {
			return nil, fmt.Errorf("simchain: insufficient balance: %s has %s, needs %s",
				opts.From.Hex(), from, total)
		}
		from.Sub(from, total)
		c.balance(to).Add(c.balance(to), value)

		return &monitor.CallResult{Receipt: c.receipt(gasUsed, types.ReceiptStatusSuccessful)}, nil
	}
}

// RevertingOperation returns an operation that is mined but reverts:
// the actor is charged gas only, and the failure carries the receipt.
func (c *Chain) RevertingOperation(gasUsed uint64) monitor.Operation {
	return func(_ context.Context, opts monitor.CallOpts) (*monitor.CallResult, error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		gasCost := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), c.gasPrice)
		from := c.balance(opts.From)
		from.Sub(from, gasCost)

		return nil, &revertError{receipt: c.receipt(gasUsed, types.ReceiptStatusFailed)}
	}
}

// MutateField overwrites a field value outside any monitored call, the
// kind of silent side effect monitors exist to catch.
func (c *Chain) MutateField(name string, v monitor.Value) {
	c.SetField(name, v)
}

// Drain removes amount from an address outside any monitored call.
func (c *Chain) Drain(addr common.Address, amount *big.Int) {
	c.mu.Lock()
	c.balance(addr).Sub(c.balance(addr), amount)
	c.mu.Unlock()
}
