package xapi

import (
	"crypto/sha1"
	"encoding/hex"
)

// Document is an opaque blob kept by a store next to statements. The
// store tracks its content type, etag and last modification time.
type Document struct {
	ID          string
	ContentType string
	Content     []byte
	Etag        string
	Timestamp   string
}

// ContentEtag returns the sha1 hex digest stores use as the etag of
// content.
func ContentEtag(content []byte) string {
	sum := sha1.Sum(content)
	return hex.EncodeToString(sum[:])
}

// State is a document scoped to an activity, an agent and optionally a
// registration.
type State struct {
	Document
	Activity     *Activity
	Agent        Actor
	Registration string
}

// ActivityProfile is a document scoped to an activity.
type ActivityProfile struct {
	Document
	Activity *Activity
}

// AgentProfile is a document scoped to an agent.
type AgentProfile struct {
	Document
	Agent Actor
}
