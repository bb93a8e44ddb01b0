// Package id provides the generators used for statement identifiers and
// multipart boundary tokens.
package id

import (
	"github.com/google/uuid"
	"github.com/nats-io/nuid"
)

var (
	// UUID generates version 4 UUIDs in their 36 character form.
	UUID ID = Func(func() string {
		return uuid.NewString()
	})

	// NUID generates short tokens made of [0-9A-Za-z], safe to use
	// unquoted as a multipart boundary.
	NUID ID = Func(nuid.Next)
)

// ID generates unique random identifiers.
type ID interface {
	New() string
}

// Func adapts a plain function to ID.
type Func func() string

func (f Func) New() string {
	return f()
}

// IsUUID reports whether s is a UUID in the canonical hyphenated form.
// Braced and urn prefixed forms are rejected.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
