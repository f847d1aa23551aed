package monitor

import (
	"context"
	"fmt"
	"math/big"
)

// Probe is the per-kind capability contract behind a Monitor: how to
// fetch the live value, compare values, order them, serialize them for
// diagnostics, and adjust a caller-supplied expectation before
// comparison. Concrete kinds embed BaseProbe and override what they
// need.
type Probe interface {
	// Kind returns a short label for this monitor kind, e.g. "balance".
	Kind() string

	// Fetch queries the live external value. No side effects on
	// monitor state.
	Fetch(ctx context.Context) (Value, error)

	// Equal compares two fetched values under this kind's relation.
	Equal(a, b Value) (bool, error)

	// Lte reports a <= b where the kind supports ordering.
	Lte(a, b Value) (bool, error)

	// Serialize renders a value for diagnostic messages.
	Serialize(v Value) string

	// AdjustExpectation transforms a caller-given expected value before
	// comparison. Identity unless the kind accumulates costs.
	AdjustExpectation(v Value) Value
}

// accumulator is implemented by probes that fold running costs into
// their expectation math; accepting a value clears the accumulator.
type accumulator interface {
	clearAccumulated()
}

// BaseProbe supplies the defaults shared by concrete probes: values are
// assumed to be big integers, and Fetch must be overridden.
type BaseProbe struct{}

func (BaseProbe) Kind() string { return "monitor" }

func (BaseProbe) Fetch(context.Context) (Value, error) { return nil, ErrUnimplemented }

func (BaseProbe) Equal(a, b Value) (bool, error) {
	if _, ok := a.(BigInt); !ok {
		return false, &TypeMismatchError{Left: kindOf(a), Right: KindBigInt}
	}
	if _, ok := b.(BigInt); !ok {
		return false, &TypeMismatchError{Left: kindOf(b), Right: KindBigInt}
	}
	return Equal(a, b)
}

func (BaseProbe) Lte(a, b Value) (bool, error) { return Lte(a, b) }

func (BaseProbe) Serialize(v Value) string {
	if v == nil {
		return "<unset>"
	}
	return v.String()
}

func (BaseProbe) AdjustExpectation(v Value) Value { return v }

// baseline is the shared accepted/drifted state record. A monitor is
// dirty only in the window between a CheckDirty call that found drift
// and the next Reset (or a passed expectation).
type baseline struct {
	last       Value
	dirty      bool
	dirtyValue Value
}

// Monitor tracks one external observable value against the last value a
// test explicitly accepted. It is not safe for concurrent use by
// multiple callers; the aggregator's own concurrency touches each
// monitor from exactly one goroutine at a time.
type Monitor struct {
	name  string
	probe Probe
	baseline
}

// Option configures a Monitor at construction.
type Option func(*Monitor)

// WithInitialValue seeds the monitor's accepted value so the first
// CheckDirty needs no prior Reset.
func WithInitialValue(v Value) Option {
	return func(m *Monitor) { m.last = v }
}

// New creates a monitor over the given probe. The accepted value starts
// unknown unless WithInitialValue is given; Reset fetches one.
func New(name string, probe Probe, opts ...Option) *Monitor {
	m := &Monitor{name: name, probe: probe}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the monitor's name within its group.
func (m *Monitor) Name() string { return m.name }

// Kind returns the probe's kind label.
func (m *Monitor) Kind() string { return m.probe.Kind() }

// ID returns the monitor's human-readable identity, "<kind>.<name>".
func (m *Monitor) ID() string { return m.probe.Kind() + "." + m.name }

// LastValue returns the last explicitly accepted value, or nil if none.
func (m *Monitor) LastValue() Value { return m.last }

// Dirty reports whether the previous CheckDirty found drift that has
// not been reset or asserted away since.
func (m *Monitor) Dirty() bool { return m.dirty }

// Fetch queries the live external value through the probe. Failures
// come back as a *FetchError naming this monitor.
func (m *Monitor) Fetch(ctx context.Context) (Value, error) {
	v, err := m.probe.Fetch(ctx)
	if err != nil {
		return nil, &FetchError{Monitor: m.ID(), Err: err}
	}
	return v, nil
}

// Reset accepts a value as the new baseline and clears dirtiness. With
// no argument the live value is fetched and accepted; a fetch failure
// propagates and leaves the baseline untouched.
func (m *Monitor) Reset(ctx context.Context, to ...Value) error {
	var v Value
	if len(to) > 0 && to[0] != nil {
		v = to[0]
	} else {
		var err error
		v, err = m.Fetch(ctx)
		if err != nil {
			return err
		}
	}
	m.accept(v)
	return nil
}

// accept installs v as the accepted value, clears the dirty window, and
// drops any accumulated expectation adjustment.
func (m *Monitor) accept(v Value) {
	m.last = v
	m.dirty = false
	m.dirtyValue = nil
	if acc, ok := m.probe.(accumulator); ok {
		acc.clearAccumulated()
	}
}

// CheckDirty fetches the live value and compares it to the accepted
// baseline. It records and returns the dirty state without touching the
// baseline itself; the drifted value is retained for diagnostics.
func (m *Monitor) CheckDirty(ctx context.Context) (bool, error) {
	if m.last == nil {
		return false, fmt.Errorf("monitor %s: %w", m.ID(), ErrNoAcceptedValue)
	}
	live, err := m.Fetch(ctx)
	if err != nil {
		return false, err
	}
	eq, err := m.probe.Equal(m.last, live)
	if err != nil {
		return false, fmt.Errorf("monitor %s: %w", m.ID(), err)
	}
	m.dirty = !eq
	if m.dirty {
		m.dirtyValue = live
	} else {
		m.dirtyValue = nil
	}
	return m.dirty, nil
}

// Expect asserts that the live value equals want, after the probe's
// expectation adjustment. On match the live value becomes the new
// accepted baseline, which also clears any dirty window; on mismatch an
// *AssertionError carrying both serialized values is returned.
func (m *Monitor) Expect(ctx context.Context, want Value, message string) error {
	live, err := m.Fetch(ctx)
	if err != nil {
		return err
	}
	adjusted := m.probe.AdjustExpectation(want)
	eq, err := m.probe.Equal(adjusted, live)
	if err != nil {
		return fmt.Errorf("monitor %s: %w", m.ID(), err)
	}
	if !eq {
		return &AssertionError{
			Monitor: m.ID(),
			Message: message,
			Want:    m.probe.Serialize(adjusted),
			Got:     m.probe.Serialize(live),
		}
	}
	m.accept(live)
	return nil
}

// ExpectRisesBy asserts the value rose by exactly delta relative to the
// accepted baseline. Defined only for big-integer-valued monitors.
func (m *Monitor) ExpectRisesBy(ctx context.Context, delta *big.Int, message string) error {
	base, err := m.numericBaseline()
	if err != nil {
		return err
	}
	return m.Expect(ctx, Big(new(big.Int).Add(base, delta)), message)
}

// ExpectFallsBy asserts the value fell by exactly delta relative to the
// accepted baseline. Defined only for big-integer-valued monitors.
func (m *Monitor) ExpectFallsBy(ctx context.Context, delta *big.Int, message string) error {
	base, err := m.numericBaseline()
	if err != nil {
		return err
	}
	return m.Expect(ctx, Big(new(big.Int).Sub(base, delta)), message)
}

// ExpectLessThan asserts the live value is at most bound under the
// probe's ordering, then accepts the live value as the new baseline
// without requiring it to equal anything in particular.
func (m *Monitor) ExpectLessThan(ctx context.Context, bound Value, message string) error {
	live, err := m.Fetch(ctx)
	if err != nil {
		return err
	}
	ok, err := m.probe.Lte(live, bound)
	if err != nil {
		return fmt.Errorf("monitor %s: %w", m.ID(), err)
	}
	if !ok {
		return &AssertionError{
			Monitor: m.ID(),
			Message: message,
			Want:    "<= " + m.probe.Serialize(bound),
			Got:     m.probe.Serialize(live),
		}
	}
	m.accept(live)
	return nil
}

// ExpectOnlyConsumedGas asserts the value did not change except for
// costs already folded in by the probe's expectation adjustment.
func (m *Monitor) ExpectOnlyConsumedGas(ctx context.Context, message string) error {
	if m.last == nil {
		return fmt.Errorf("monitor %s: %w", m.ID(), ErrNoAcceptedValue)
	}
	return m.Expect(ctx, m.last, message)
}

func (m *Monitor) numericBaseline() (*big.Int, error) {
	if m.last == nil {
		return nil, fmt.Errorf("monitor %s: %w", m.ID(), ErrNoAcceptedValue)
	}
	v, ok := m.last.(BigInt)
	if !ok || v.Int == nil {
		return nil, fmt.Errorf("monitor %s: %w", m.ID(),
			&UnsupportedComparisonError{Op: "delta expectation", Kind: kindOf(m.last)})
	}
	return v.Int, nil
}

// serialize renders a value with this monitor's probe, tolerating nil.
func (m *Monitor) serialize(v Value) string { return m.probe.Serialize(v) }
