package monitor

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BalanceReader reads the live balance of an address. Implementations
// cover native balances, token balances, or a simulated ledger.
type BalanceReader interface {
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
}

// BalanceReaderFunc adapts a function to the BalanceReader interface.
type BalanceReaderFunc func(ctx context.Context, addr common.Address) (*big.Int, error)

func (f BalanceReaderFunc) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return f(ctx, addr)
}

// CallOpts identifies the actor a state-mutating operation executes as.
// A BalanceMonitor fills in its own address so the call is attributed
// to the monitored actor.
type CallOpts struct {
	From common.Address
}

// CallResult is what a mutating operation hands back once mined. The
// receipt supplies the gas figures folded into expectation math.
type CallResult struct {
	Receipt *types.Receipt
}

// Operation performs one state-mutating external call as the given
// actor and returns its mined result.
type Operation func(ctx context.Context, opts CallOpts) (*CallResult, error)

// ReceiptCarrier is implemented by errors from operations that were
// mined but reverted. Reverted-but-mined calls still consume gas, so
// the receipt must survive the failure.
type ReceiptCarrier interface {
	error
	Receipt() *types.Receipt
}

// balanceProbe fetches an actor's balance and subtracts accumulated gas
// cost from caller-supplied expectations.
type balanceProbe struct {
	BaseProbe
	addr        common.Address
	reader      BalanceReader
	expectedGas *big.Int // nil until the first cost is folded in
}

func (p *balanceProbe) Kind() string { return "balance" }

func (p *balanceProbe) Fetch(ctx context.Context) (Value, error) {
	b, err := p.reader.BalanceOf(ctx, p.addr)
	if err != nil {
		return nil, err
	}
	return Big(b), nil
}

func (p *balanceProbe) AdjustExpectation(v Value) Value {
	if p.expectedGas == nil {
		return v
	}
	bv, ok := v.(BigInt)
	if !ok || bv.Int == nil {
		return v
	}
	return Big(new(big.Int).Sub(bv.Int, p.expectedGas))
}

func (p *balanceProbe) clearAccumulated() { p.expectedGas = nil }

// BalanceMonitor tracks the balance of one external actor and executes
// mutating calls on its behalf, folding the gas cost of doing so into
// its expectation math. A test can then assert "balance fell by exactly
// the amount sent" without accounting for gas by hand.
type BalanceMonitor struct {
	*Monitor
	probe *balanceProbe
}

// NewBalance creates a balance monitor for addr backed by reader.
func NewBalance(name string, addr common.Address, reader BalanceReader, opts ...Option) *BalanceMonitor {
	p := &balanceProbe{addr: addr, reader: reader}
	return &BalanceMonitor{
		Monitor: New(name, p, opts...),
		probe:   p,
	}
}

// Address returns the monitored actor's address.
func (m *BalanceMonitor) Address() common.Address { return m.probe.addr }

// ExpectGas accumulates a transaction cost into the running sum that
// AdjustExpectation subtracts from caller-supplied expectations. The
// sum is cleared by Reset and by any passed expectation.
func (m *BalanceMonitor) ExpectGas(amount *big.Int) {
	if m.probe.expectedGas == nil {
		m.probe.expectedGas = new(big.Int)
	}
	m.probe.expectedGas.Add(m.probe.expectedGas, amount)
}

// ExpectedGas returns the gas cost accumulated since the last reset, or
// nil if none.
func (m *BalanceMonitor) ExpectedGas() *big.Int {
	if m.probe.expectedGas == nil {
		return nil
	}
	return new(big.Int).Set(m.probe.expectedGas)
}

// Call executes a state-mutating operation attributed to this monitor's
// actor. The aggregator must be clean first: stacking a second mutation
// on top of an unasserted change is rejected before the operation runs.
// On success the receipt's gas cost is folded in via ExpectGas; on a
// mined-but-reverted failure the gas cost is still folded in before the
// failure is returned, because reverted calls consume gas too.
func (m *BalanceMonitor) Call(ctx context.Context, agg *Aggregator, op Operation) (*CallResult, error) {
	if err := agg.CheckDirty(ctx); err != nil {
		return nil, err
	}
	if err := agg.AssertNoExceptions(); err != nil {
		return nil, err
	}

	res, err := op(ctx, CallOpts{From: m.probe.addr})
	if err != nil {
		var rc ReceiptCarrier
		if errors.As(err, &rc) {
			if rcpt := rc.Receipt(); rcpt != nil {
				m.ExpectGas(ReceiptGasCost(rcpt))
			}
		}
		return nil, err
	}
	if res != nil && res.Receipt != nil {
		m.ExpectGas(ReceiptGasCost(res.Receipt))
	}
	return res, nil
}

// ReceiptGasCost returns the total cost charged for a mined receipt,
// GasUsed times the effective gas price.
func ReceiptGasCost(r *types.Receipt) *big.Int {
	price := r.EffectiveGasPrice
	if price == nil {
		price = new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), price)
}
