// Package monitor detects silent, unasserted changes to externally held
// state during tests.
//
// A Monitor tracks the last accepted value of one external observable
// (an account balance, a token balance, a contract field) against its
// live value. An Aggregator owns named groups of monitors, checks them
// concurrently, and collects every un-asserted drift so the test can be
// failed with a full picture instead of a silent pass.
package monitor

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// ValueKind labels the shape of a Value.
type ValueKind int

const (
	KindBigInt ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindRecord
)

func (k ValueKind) String() string {
	switch k {
	case KindBigInt:
		return "big-int"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindRecord:
		return "record"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is one decoded observation of an external data source. It is a
// closed union: big integers for balances and uint256 fields, primitive
// scalars for simple fields, and records for struct-shaped call results.
type Value interface {
	ValueKind() ValueKind
	String() string
}

// BigInt wraps a *big.Int observation. Balances and most contract
// numerics arrive as this variant; arithmetic stays exact.
type BigInt struct {
	Int *big.Int
}

func (BigInt) ValueKind() ValueKind { return KindBigInt }

func (v BigInt) String() string {
	if v.Int == nil {
		return "<nil>"
	}
	return v.Int.String()
}

// Big wraps x as a Value. The pointer is retained, not copied.
func Big(x *big.Int) BigInt { return BigInt{Int: x} }

// Big64 is shorthand for Big(big.NewInt(n)).
func Big64(n int64) BigInt { return BigInt{Int: big.NewInt(n)} }

// String is a primitive string observation.
type String string

func (String) ValueKind() ValueKind { return KindString }
func (v String) String() string     { return fmt.Sprintf("%q", string(v)) }

// Number is a primitive numeric observation for small decoded integers
// and floats. Values that may exceed float64 precision belong in BigInt.
type Number float64

func (Number) ValueKind() ValueKind { return KindNumber }
func (v Number) String() string     { return strconv.FormatFloat(float64(v), 'g', -1, 64) }

// Bool is a primitive boolean observation.
type Bool bool

func (Bool) ValueKind() ValueKind { return KindBool }
func (v Bool) String() string     { return fmt.Sprintf("%t", bool(v)) }

// Record is a struct-shaped observation keyed by field name. Decoders
// that expose tuple results both by name and by position produce keys
// like "0", "1" alongside the named ones; equality ignores those (see
// Equal).
type Record map[string]Value

func (Record) ValueKind() ValueKind { return KindRecord }

func (v Record) String() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		if v[k] == nil {
			b.WriteString("<nil>")
		} else {
			b.WriteString(v[k].String())
		}
	}
	b.WriteByte('}')
	return b.String()
}

// ResolveKeypath descends a dot-separated path into a record-shaped
// value, one field per segment, and returns the value it lands on.
// The first segment that yields nothing fails with a
// *KeypathResolutionError naming that segment.
func ResolveKeypath(v Value, keypath string) (Value, error) {
	cur := v
	for _, seg := range strings.Split(keypath, ".") {
		rec, ok := cur.(Record)
		if !ok {
			return nil, &KeypathResolutionError{Keypath: keypath, Segment: seg}
		}
		next, ok := rec[seg]
		if !ok || next == nil {
			return nil, &KeypathResolutionError{Keypath: keypath, Segment: seg}
		}
		cur = next
	}
	return cur, nil
}
