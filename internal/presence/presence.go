// Package presence provides the durable presence store: which users are online,
// their last-seen timestamps and their canonical role set. The gateway treats every
// call as fallible; store errors are logged by callers and never surfaced to
// client sockets.
package presence

import (
	"context"
	"errors"
)

// DefaultOnlineLimit caps FetchOnlineUsers when the caller passes a non-positive limit.
const DefaultOnlineLimit = 500

// ErrNotFound is returned when a uuid has no presence record.
var ErrNotFound = errors.New("presence record not found")

// Record is a single user's durable presence state. Timestamps are milliseconds
// since epoch; zero means unset.
type Record struct {
	UUID        string
	Name        string
	AccountType string
	Roles       []string
	Online      bool
	LastJoin    int64
	LastSeen    int64
	LastLeave   int64
	IP          string
}

// Store is the contract over the durable presence service.
type Store interface {
	// MarkOnline upserts the user record and flags it online. last_join is set on
	// first insert only, last_seen on every call. When rolesToPersist is nil the
	// roles already in the store are preserved.
	MarkOnline(ctx context.Context, rec Record, rolesToPersist []string) error

	// MarkOffline flags the user offline and stamps last_leave. A stub record with
	// default identity is created when none exists.
	MarkOffline(ctx context.Context, uuid string) error

	// UpdateLastSeen stamps last_seen with the current time and flags the user online.
	UpdateLastSeen(ctx context.Context, uuid string) error

	// UpdateRoles replaces the stored role set.
	UpdateRoles(ctx context.Context, uuid string, roles []string) error

	// FetchRoles returns the canonical role set, or nil when the record is absent
	// or its role set is empty.
	FetchRoles(ctx context.Context, uuid string) ([]string, error)

	// FetchOnlineUsers returns up to limit online records, most recently seen first.
	FetchOnlineUsers(ctx context.Context, limit int) ([]Record, error)

	// CountOnlineUsers returns the number of online records.
	CountOnlineUsers(ctx context.Context) (int, error)
}

// StartTimeStore persists the process start time, keyed by environment name.
// The stored value survives restarts of the same build; a new commit hash
// replaces it (first writer wins per commit hash).
type StartTimeStore interface {
	EnsureStartedAt(ctx context.Context, env, commitHash string, nowMS int64) (int64, error)
}
