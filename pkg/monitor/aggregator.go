package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/statewatch/internal/metrics"
	"github.com/mbd888/statewatch/internal/traces"
)

// Aggregator owns a fixed set of monitor groups, resets and checks them
// concurrently, and queues every un-asserted state change it finds
// until the caller explicitly asserts or clears them.
//
// Construct one aggregator per test and pass it explicitly; there is no
// ambient shared instance. Groups are checked sequentially; monitors
// within one group run concurrently, and a group's in-flight fetches
// always settle before its error surfaces.
type Aggregator struct {
	groups []*Group
	logger *slog.Logger

	mu         sync.Mutex
	exceptions []string
}

// AggregatorOption configures an Aggregator at construction.
type AggregatorOption func(*Aggregator)

// WithLogger sets the logger used for dirty-state findings.
func WithLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) { a.logger = logger }
}

// NewAggregator creates an aggregator over the given groups. Group
// membership is fixed after construction.
func NewAggregator(groups []*Group, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		groups: groups,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	n := 0
	for _, g := range groups {
		n += g.Len()
	}
	metrics.MonitorsTracked.Set(float64(n))
	return a
}

// Groups returns the aggregator's groups in construction order.
func (a *Aggregator) Groups() []*Group {
	return append([]*Group(nil), a.groups...)
}

// Group returns the group registered under name, or nil.
func (a *Aggregator) Group(name string) *Group {
	for _, g := range a.groups {
		if g.Name() == name {
			return g
		}
	}
	return nil
}

// Reset concurrently resets every monitor in every group to its live
// value and clears the queued exceptions. A failed reset is reported
// with the offending monitor's identity after its group has settled.
func (a *Aggregator) Reset(ctx context.Context) error {
	ctx, span := traces.StartSpan(ctx, "aggregator.reset")
	defer span.End()

	a.ClearExceptions()

	for _, g := range a.groups {
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			firstErr error
		)
		for _, m := range g.Monitors() {
			wg.Add(1)
			go func(m *Monitor) {
				defer wg.Done()
				if err := m.Reset(ctx); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("reset of %s in group %q: %w", m.ID(), g.Name(), err)
					}
					mu.Unlock()
				}
			}(m)
		}
		wg.Wait()
		if firstErr != nil {
			return firstErr
		}
	}
	return nil
}

// CheckDirty concurrently checks every monitor in every group against
// its accepted baseline. Each dirty monitor contributes one diagnostic
// to the exceptions queue; a fetch failure is a hard error instead,
// raised once the failing monitor's group has settled.
func (a *Aggregator) CheckDirty(ctx context.Context) error {
	ctx, span := traces.StartSpan(ctx, "aggregator.check_dirty")
	defer span.End()

	start := time.Now()
	total := 0
	defer func() {
		metrics.CheckDuration.Observe(time.Since(start).Seconds())
		span.SetAttributes(traces.Findings(total))
	}()

	for _, g := range a.groups {
		metrics.ChecksTotal.WithLabelValues(g.Name()).Inc()

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			findings []string
			firstErr error
		)
		for _, m := range g.Monitors() {
			wg.Add(1)
			go func(m *Monitor) {
				defer wg.Done()
				dirty, err := m.CheckDirty(ctx)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				if dirty {
					diag := fmt.Sprintf("%s: un-asserted state change detected (%s) => (%s)",
						m.ID(), m.serialize(m.last), m.serialize(m.dirtyValue))
					mu.Lock()
					findings = append(findings, diag)
					mu.Unlock()
				}
			}(m)
		}
		wg.Wait()
		if firstErr != nil {
			metrics.FetchErrorsTotal.Inc()
			return firstErr
		}

		total += len(findings)
		for _, diag := range findings {
			a.logger.Warn("dirty state detected", "group", g.Name(), "finding", diag)
			metrics.DirtyFindingsTotal.WithLabelValues(g.Name()).Inc()
		}
		a.mu.Lock()
		a.exceptions = append(a.exceptions, findings...)
		a.mu.Unlock()
	}
	return nil
}

// AssertNoExceptions fails with a *DirtyStateError enumerating every
// queued diagnostic in discovery order if any are pending. It does not
// clear them; callers still Reset or ClearExceptions afterward.
func (a *Aggregator) AssertNoExceptions() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.exceptions) == 0 {
		return nil
	}
	return &DirtyStateError{Findings: append([]string(nil), a.exceptions...)}
}

// Exceptions returns a copy of the queued diagnostics.
func (a *Aggregator) Exceptions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.exceptions...)
}

// ClearExceptions drops all queued diagnostics.
func (a *Aggregator) ClearExceptions() {
	a.mu.Lock()
	a.exceptions = nil
	a.mu.Unlock()
}
