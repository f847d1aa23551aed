package monitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldMonitorScalar(t *testing.T) {
	ctx := context.Background()
	value := Value(String("open"))
	m := NewField("phase", func(context.Context, ...any) (Value, error) {
		return value, nil
	})
	assert.Equal(t, "field.phase", m.ID())

	require.NoError(t, m.Reset(ctx))
	dirty, err := m.CheckDirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)

	value = String("closed")
	dirty, err = m.CheckDirty(ctx)
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestFieldMonitorKeypath(t *testing.T) {
	ctx := context.Background()
	state := Record{"config": Record{"limit": Big64(500)}}
	m := NewField("limit", func(context.Context, ...any) (Value, error) {
		return state, nil
	}, WithKeypath("config.limit"))

	require.NoError(t, m.Reset(ctx))
	assert.Equal(t, Big64(500), m.LastValue())
}

func TestFieldMonitorRecordWithoutKeypath(t *testing.T) {
	m := NewField("opaque", func(context.Context, ...any) (Value, error) {
		return Record{"a": Big64(1)}, nil
	})

	err := m.Reset(context.Background())
	assert.ErrorIs(t, err, ErrAmbiguousStructure)
}

func TestFieldMonitorKeypathFailureNamesSegment(t *testing.T) {
	m := NewField("missing", func(context.Context, ...any) (Value, error) {
		return Record{"a": Big64(1)}, nil
	}, WithKeypath("a.b"))

	err := m.Reset(context.Background())
	require.Error(t, err)

	var kr *KeypathResolutionError
	require.ErrorAs(t, err, &kr)
	assert.Equal(t, "b", kr.Segment)
}

func TestFieldMonitorParams(t *testing.T) {
	ctx := context.Background()
	var got []any
	m := NewField("slot", func(_ context.Context, params ...any) (Value, error) {
		got = append([]any(nil), params...)
		return Big64(1), nil
	}, WithParams("holder", 3))

	require.NoError(t, m.Reset(ctx))
	assert.Equal(t, []any{"holder", 3}, got)
}

func TestFieldMonitorStructuralEquality(t *testing.T) {
	ctx := context.Background()
	// The accessor serves a record whose decoder also emits positional
	// keys; the keypath lands on the inner record and equality must
	// ignore the positional duplicates.
	state := Record{
		"pair": Record{"base": String("eth"), "quote": String("usdc"), "0": String("eth"), "1": String("usdc")},
	}
	m := NewField("pair", func(context.Context, ...any) (Value, error) {
		return state, nil
	}, WithKeypath("pair"))

	require.NoError(t, m.Reset(ctx))

	state = Record{
		"pair": Record{"base": String("eth"), "quote": String("usdc")},
	}
	dirty, err := m.CheckDirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)

	state = Record{
		"pair": Record{"base": String("eth"), "quote": String("dai")},
	}
	dirty, err = m.CheckDirty(ctx)
	require.NoError(t, err)
	assert.True(t, dirty)
}
