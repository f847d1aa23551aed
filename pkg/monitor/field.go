package monitor

import (
	"context"
	"fmt"
)

// Accessor returns the current decoded value of some external data
// source, given the fixed parameters it was constructed with.
type Accessor func(ctx context.Context, params ...any) (Value, error)

// fieldProbe fetches through a parameterized accessor and, when the
// result is record-shaped, descends a configured keypath to a scalar.
// Equality must tolerate whatever shape the accessor hands back, so it
// uses the structural relation; ordering stays big-integer only.
type fieldProbe struct {
	BaseProbe
	accessor Accessor
	params   []any
	keypath  string
}

func (p *fieldProbe) Kind() string { return "field" }

func (p *fieldProbe) Fetch(ctx context.Context) (Value, error) {
	v, err := p.accessor(ctx, p.params...)
	if err != nil {
		return nil, err
	}
	if _, ok := v.(Record); !ok {
		return v, nil
	}
	if p.keypath == "" {
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousStructure, v)
	}
	return ResolveKeypath(v, p.keypath)
}

func (p *fieldProbe) Equal(a, b Value) (bool, error) { return Equal(a, b) }

// FieldMonitor tracks one field of an externally held structure, e.g. a
// contract view method's result. Scalar results pass through directly;
// record-shaped results require a keypath naming the field to observe.
type FieldMonitor struct {
	*Monitor
}

// FieldOption configures a FieldMonitor at construction.
type FieldOption func(*fieldProbe)

// WithKeypath configures the dot-separated path descended when the
// accessor returns a record-shaped value.
func WithKeypath(keypath string) FieldOption {
	return func(p *fieldProbe) { p.keypath = keypath }
}

// WithParams fixes the parameters passed to the accessor on each fetch.
func WithParams(params ...any) FieldOption {
	return func(p *fieldProbe) { p.params = params }
}

// NewField creates a field monitor over the given accessor.
func NewField(name string, accessor Accessor, opts ...FieldOption) *FieldMonitor {
	p := &fieldProbe{accessor: accessor}
	for _, opt := range opts {
		opt(p)
	}
	return &FieldMonitor{Monitor: New(name, p)}
}
