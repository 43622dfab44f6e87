// Package warp persists warp.status telemetry frames to Valkey. The data is a
// write-only side channel: no other client can observe whether persistence is
// enabled, so failures are logged and swallowed by callers.
package warp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warpgate-live/warpgate-server/internal/schema"
)

// statusTTL bounds how long stale telemetry lingers after a client goes quiet.
const statusTTL = 24 * time.Hour

// statusRecord is the JSON document stored per uuid. ServerTimestamp is stamped by
// the gateway; all other fields mirror the client payload.
type statusRecord struct {
	schema.WarpStatusMessage
	ServerTimestamp int64 `json:"serverTimestamp"`
}

// Store writes warp.status telemetry keyed by uuid.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a new telemetry store backed by the given Valkey client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Save persists the telemetry payload for the given uuid, stamped with the
// current server time.
func (s *Store) Save(ctx context.Context, uuid string, msg schema.WarpStatusMessage, nowMS int64) error {
	doc, err := json.Marshal(statusRecord{WarpStatusMessage: msg, ServerTimestamp: nowMS})
	if err != nil {
		return fmt.Errorf("marshal warp status for %s: %w", uuid, err)
	}
	if err := s.rdb.Set(ctx, statusKey(uuid), doc, statusTTL).Err(); err != nil {
		return fmt.Errorf("save warp status for %s: %w", uuid, err)
	}
	return nil
}

func statusKey(uuid string) string {
	return "warp:status:" + uuid
}
