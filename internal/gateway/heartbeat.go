package gateway

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/warpgate-live/warpgate-server/internal/config"
)

const (
	// Heartbeat ticks are clamped so misconfiguration can neither hammer the
	// registry nor let dead sockets linger.
	minHeartbeatTick = 5 * time.Second
	maxHeartbeatTick = 10 * time.Second

	// keepaliveSlack tolerates timer jitter when deciding whether a socket is
	// due for another keepalive frame.
	keepaliveSlack = 250 * time.Millisecond
)

// Heartbeat sweeps the registry on a fixed tick, pushing server.keepalive
// frames and evicting sockets that stopped responding.
type Heartbeat struct {
	hub        *Hub
	tickEvery  time.Duration
	staleAfter time.Duration
	keepalive  []byte
	running    atomic.Bool
	log        zerolog.Logger
}

// NewHeartbeat builds the heartbeat loop from the configured interval. The
// frame sent on every tick never varies, so it is serialised once.
func NewHeartbeat(cfg *config.Config, hub *Hub, logger zerolog.Logger) *Heartbeat {
	tick := time.Duration(cfg.HeartbeatIntervalMS) * time.Millisecond
	if tick < minHeartbeatTick {
		tick = minHeartbeatTick
	}
	if tick > maxHeartbeatTick {
		tick = maxHeartbeatTick
	}

	frame, err := NewKeepaliveFrame()
	if err != nil {
		// The keepalive frame is a constant; failing to serialise it is a
		// programming error.
		panic(err)
	}

	return &Heartbeat{
		hub:        hub,
		tickEvery:  tick,
		staleAfter: time.Duration(cfg.OfflineAfterMS) * time.Millisecond,
		keepalive:  frame,
		log:        logger.With().Str("component", "heartbeat").Logger(),
	}
}

// Run drives the sweep until ctx is cancelled.
func (hb *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(hb.tickEvery)
	defer ticker.Stop()

	hb.log.Info().Dur("interval", hb.tickEvery).Msg("Heartbeat loop started")
	for {
		select {
		case <-ctx.Done():
			hb.log.Info().Msg("Heartbeat loop stopped")
			return
		case <-ticker.C:
			hb.tick(time.Now().UnixMilli())
		}
	}
}

// tick walks a registry snapshot once. Overlapping runs are skipped rather than
// queued, so a slow presence store cannot stack sweeps.
func (hb *Heartbeat) tick(nowMS int64) {
	if !hb.running.CompareAndSwap(false, true) {
		hb.log.Warn().Msg("Skipping heartbeat tick, previous sweep still running")
		return
	}
	defer hb.running.Store(false)

	for _, c := range hb.hub.registry.Snapshot() {
		state, ok := c.State()
		if !ok {
			continue
		}

		if !c.IsOpen() {
			hb.hub.evict(c, CloseSocketNotOpen, ReasonSocketNotOpen)
			continue
		}

		if nowMS-state.LastSeen > hb.staleAfter.Milliseconds() {
			hb.hub.evict(c, CloseInactivityTimeout, ReasonInactivityTimeout)
			continue
		}

		if nowMS-state.LastKeepaliveAt >= (hb.tickEvery - keepaliveSlack).Milliseconds() {
			if c.enqueue(hb.keepalive) {
				c.setKeepalive(nowMS)
			} else {
				hb.hub.evict(c, CloseKeepaliveFailed, ReasonKeepaliveFailed)
			}
		}
	}
}
