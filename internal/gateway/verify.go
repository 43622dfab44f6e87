package gateway

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/warpgate-live/warpgate-server/internal/config"
	"github.com/warpgate-live/warpgate-server/internal/presence"
)

// minVerifyInterval floors the reconciliation cadence; the sweep reads the full
// online set from the presence store each pass.
const minVerifyInterval = time.Minute

// verifyFetchFloor is the minimum page size requested from the presence store
// per sweep, so store rows beyond the local registry still come back.
const verifyFetchFloor = 100

// Verifier reconciles the in-memory registry against the presence store and
// evicts connections whose stored identity disagrees with the live one.
type Verifier struct {
	hub      *Hub
	store    presence.Store
	interval time.Duration
	running  atomic.Bool
	log      zerolog.Logger
}

// NewVerifier builds the reconciliation loop from the configured interval,
// floored at one minute.
func NewVerifier(cfg *config.Config, hub *Hub, store presence.Store, logger zerolog.Logger) *Verifier {
	interval := time.Duration(cfg.VerifyIntervalMS) * time.Millisecond
	if interval < minVerifyInterval {
		interval = minVerifyInterval
	}
	return &Verifier{
		hub:      hub,
		store:    store,
		interval: interval,
		log:      logger.With().Str("component", "verify").Logger(),
	}
}

// Run drives the sweep until ctx is cancelled.
func (v *Verifier) Run(ctx context.Context) {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	v.log.Info().Dur("interval", v.interval).Msg("Verification loop started")
	for {
		select {
		case <-ctx.Done():
			v.log.Info().Msg("Verification loop stopped")
			return
		case <-ticker.C:
			v.tick(ctx)
		}
	}
}

// tick fetches the stored online set first, then walks the registry against it.
// A store read failure skips the whole sweep; no connection is evicted on stale
// or missing data we never received.
func (v *Verifier) tick(ctx context.Context) {
	if !v.running.CompareAndSwap(false, true) {
		v.log.Warn().Msg("Skipping verification tick, previous sweep still running")
		return
	}
	defer v.running.Store(false)

	limit := v.hub.registry.Len()
	if limit < verifyFetchFloor {
		limit = verifyFetchFloor
	}

	fetchCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	records, err := v.store.FetchOnlineUsers(fetchCtx, limit)
	cancel()
	if err != nil {
		v.log.Warn().Err(err).Msg("Skipping verification sweep, online user fetch failed")
		return
	}

	byUUID := make(map[string]presence.Record, len(records))
	for _, rec := range records {
		byUUID[rec.UUID] = rec
	}

	for _, c := range v.hub.registry.Snapshot() {
		state, ok := c.State()
		if !ok {
			continue
		}

		if !c.IsOpen() {
			v.hub.evict(c, CloseKeepaliveFailed, ReasonVerifySocketNotOpen)
			continue
		}

		rec, found := byUUID[state.UUID]
		if !found || !rec.Online {
			v.hub.evict(c, CloseVerificationFailed, ReasonVerifyOffline)
			continue
		}
		if rec.Name != state.Name || rec.AccountType != state.AccountType {
			v.hub.evict(c, CloseVerificationFailed, ReasonVerifyIdentityChanged)
			continue
		}

		if frame, err := NewVerifyFrame(state.UUID, state.LastSeen); err == nil {
			c.enqueue(frame)
		}
	}
}
