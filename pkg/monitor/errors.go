package monitor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnimplemented is returned by the default probe fetch; every
	// concrete monitor kind must supply its own.
	ErrUnimplemented = errors.New("monitor: fetch not implemented")

	// ErrNoAcceptedValue means an operation needed a baseline but the
	// monitor has never been reset and carries no initial value.
	ErrNoAcceptedValue = errors.New("monitor: no accepted value, reset first")

	// ErrAmbiguousStructure means a record-shaped value was fetched by a
	// monitor with no keypath configured, so it is unclear which field
	// to observe.
	ErrAmbiguousStructure = errors.New("monitor: structured value fetched without a keypath")
)

// FetchError wraps a value-accessor failure with the identity of the
// monitor whose fetch failed. Fetches are never retried.
type FetchError struct {
	Monitor string // "<kind>.<name>"
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("monitor %s: fetch failed: %v", e.Monitor, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TypeMismatchError means two values of different kinds were compared.
// Comparing a number to a record is a caller bug, never silently false.
type TypeMismatchError struct {
	Left  ValueKind
	Right ValueKind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("monitor: cannot compare %s with %s", e.Left, e.Right)
}

// UnsupportedComparisonError means an equality or ordering operation was
// requested on a value kind that does not support it.
type UnsupportedComparisonError struct {
	Op   string // "equals" or "lte"
	Kind ValueKind
}

func (e *UnsupportedComparisonError) Error() string {
	return fmt.Sprintf("monitor: %s not supported for %s values", e.Op, e.Kind)
}

// KeypathResolutionError means a configured keypath segment resolved to
// nothing while descending a record-shaped value.
type KeypathResolutionError struct {
	Keypath string
	Segment string
}

func (e *KeypathResolutionError) Error() string {
	return fmt.Sprintf("monitor: keypath %q: segment %q resolved to nothing", e.Keypath, e.Segment)
}

// AssertionError is the test-visible failure produced when an expect
// call's predicate does not hold against the live value.
type AssertionError struct {
	Monitor string // "<kind>.<name>"
	Message string // caller-supplied context
	Want    string // serialized expected value (after adjustment)
	Got     string // serialized live value
}

func (e *AssertionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("monitor %s: %s: expected (%s), got (%s)", e.Monitor, e.Message, e.Want, e.Got)
	}
	return fmt.Sprintf("monitor %s: expected (%s), got (%s)", e.Monitor, e.Want, e.Got)
}

// DirtyStateError carries every un-asserted state change queued on an
// aggregator, numbered in discovery order.
type DirtyStateError struct {
	Findings []string
}

func (e *DirtyStateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d unasserted state change(s):", len(e.Findings))
	for i, f := range e.Findings {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, f)
	}
	return b.String()
}
