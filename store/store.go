// Package store defines the TTL-keyed document store that all server-side
// state (installations, sessions, replay cache, instances, executions)
// lives behind. Documents are stored as JSON; a document whose expiry has
// passed must behave as absent, whether or not the backend has actively
// evicted it yet. Replay protection and session expiry depend on that
// guarantee.
package store

import (
	"context"
	"time"
)

// Logical collections.
const (
	Installations = "installations"
	Sessions      = "sessions"
	Replay        = "replay"
	Instances     = "instances"
	Executions    = "executions"
)

// Fields is an exact-match predicate over the top-level string fields of a
// stored document.
type Fields map[string]string

// NoTTL stores a document without an expiry.
const NoTTL = time.Duration(0)

type Store interface {
	// Insert stores doc under a generated id and returns the id.
	Insert(ctx context.Context, collection string, doc any, ttl time.Duration) (string, error)

	// Replace overwrites the document at id, re-stamping its expiry to
	// now+ttl. Returns false when no unexpired document exists at id.
	Replace(ctx context.Context, collection, id string, doc any, ttl time.Duration) (bool, error)

	// Get unmarshals the document at id into dest. Returns
	// apperr.ErrNotFound when the document is missing or logically
	// expired. When refresh is set, the document's expiry is extended to
	// now plus its original TTL as a side effect (sliding expiration).
	Get(ctx context.Context, collection, id string, dest any, refresh bool) error

	// FindOne locates the first document whose top-level fields match all
	// entries of match, unmarshals it into dest and returns its id.
	// Returns apperr.ErrNotFound when nothing matches.
	FindOne(ctx context.Context, collection string, match Fields, dest any) (string, error)

	// Delete removes the document at id. Returns false when it did not
	// exist.
	Delete(ctx context.Context, collection, id string) (bool, error)
}
