package monitor

// positionalDupKeys are record keys emitted by decoders that expose
// tuple results both by field name and by numeric position. They
// duplicate values already present under a named key, so the key-set
// walk skips them. The cutoff at "3" matches the tuple arities seen in
// practice; do not silently extend it.
var positionalDupKeys = map[string]struct{}{
	"0": {},
	"1": {},
	"2": {},
	"3": {},
}

// Equal reports deep equality of two heterogeneous fetched values.
//
// Values of different kinds never compare; that is a *TypeMismatchError.
// Big integers compare numerically, primitives exactly, and records by
// walking named keys recursively after dropping positional duplicates.
func Equal(a, b Value) (bool, error) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return true, nil
		}
		return false, &TypeMismatchError{Left: kindOf(a), Right: kindOf(b)}
	}
	if a.ValueKind() != b.ValueKind() {
		return false, &TypeMismatchError{Left: a.ValueKind(), Right: b.ValueKind()}
	}

	switch av := a.(type) {
	case BigInt:
		bv := b.(BigInt)
		if av.Int == nil || bv.Int == nil {
			return av.Int == nil && bv.Int == nil, nil
		}
		return av.Int.Cmp(bv.Int) == 0, nil

	case String:
		return av == b.(String), nil

	case Number:
		return av == b.(Number), nil

	case Bool:
		return av == b.(Bool), nil

	case Record:
		return recordsEqual(av, b.(Record))

	default:
		return false, &UnsupportedComparisonError{Op: "equals", Kind: a.ValueKind()}
	}
}

func recordsEqual(a, b Record) (bool, error) {
	ak := namedKeys(a)
	bk := namedKeys(b)
	if len(ak) != len(bk) {
		return false, nil
	}
	for _, k := range ak {
		bv, ok := b[k]
		if !ok {
			return false, nil
		}
		eq, err := Equal(a[k], bv)
		if err != nil {
			return false, err
		}
		if !eq {
			return false, nil
		}
	}
	return true, nil
}

// namedKeys returns a record's keys with positional duplicates dropped.
func namedKeys(r Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		if _, dup := positionalDupKeys[k]; dup {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// Lte reports whether a <= b. Only big-integer pairs are ordered; any
// other kind fails with an *UnsupportedComparisonError naming it.
func Lte(a, b Value) (bool, error) {
	av, ok := a.(BigInt)
	if !ok {
		return false, &UnsupportedComparisonError{Op: "lte", Kind: kindOf(a)}
	}
	bv, ok := b.(BigInt)
	if !ok {
		return false, &UnsupportedComparisonError{Op: "lte", Kind: kindOf(b)}
	}
	if av.Int == nil || bv.Int == nil {
		return false, &UnsupportedComparisonError{Op: "lte", Kind: KindBigInt}
	}
	return av.Int.Cmp(bv.Int) <= 0, nil
}

// kindOf is ValueKind tolerant of nil values for error reporting.
func kindOf(v Value) ValueKind {
	if v == nil {
		return ValueKind(-1)
	}
	return v.ValueKind()
}
