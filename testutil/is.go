// Package testutil holds assertion helpers and deterministic stand-ins for
// the clock, id and NATS dependencies.
package testutil

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func NewIs(t testing.TB) *Is {
	return &Is{t}
}

type Is struct {
	t testing.TB
}

// Equal reports a go-cmp diff when a and b differ. Empty and nil
// slices and maps are treated as equal.
func (is *Is) Equal(a, b any, opts ...cmp.Option) {
	is.t.Helper()
	opts = append(opts, cmpopts.EquateEmpty())
	if d := cmp.Diff(a, b, opts...); d != "" {
		is.t.Error(d)
	}
}

// Err asserts err is non-nil and, when baseErr is given, wraps it.
func (is *Is) Err(err error, baseErr error) {
	is.t.Helper()
	if err == nil {
		is.t.Error("expected error, got none")
	} else if baseErr != nil {
		if !errors.Is(err, baseErr) {
			is.t.Errorf("expected error wrapping %q, got %q", baseErr, err)
		}
	}
}

func (is *Is) NoErr(err error) {
	is.t.Helper()
	if err != nil {
		is.t.Fatal(err)
	}
}

func (is *Is) True(t bool, msg ...any) {
	is.t.Helper()
	if !t {
		is.t.Error(append([]any{"expected true"}, msg...)...)
	}
}
