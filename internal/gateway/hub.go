package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/warpgate-live/warpgate-server/internal/auth"
	"github.com/warpgate-live/warpgate-server/internal/config"
	"github.com/warpgate-live/warpgate-server/internal/presence"
	"github.com/warpgate-live/warpgate-server/internal/schema"
	"github.com/warpgate-live/warpgate-server/internal/warp"
)

// storeTimeout bounds every presence-store call made from a socket handler.
const storeTimeout = 5 * time.Second

// fallbackName is substituted when an auth frame carries a blank display name.
const fallbackName = "Unknown"

// Hub owns the connection registry and the gateway protocol handlers. Handlers
// for a single socket run sequentially on its read pump; the two background loops
// touch shared state only through the registry.
type Hub struct {
	cfg      *config.Config
	registry *Registry
	store    presence.Store
	warp     *warp.Store // nil when warp.status persistence is disabled
	log      zerolog.Logger
}

// NewHub creates a new gateway hub. warpStore may be nil to disable telemetry
// persistence; that absence is not observable by any client.
func NewHub(cfg *config.Config, store presence.Store, warpStore *warp.Store, logger zerolog.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		registry: NewRegistry(),
		store:    store,
		warp:     warpStore,
		log:      logger.With().Str("component", "gateway").Logger(),
	}
}

// Registry exposes the connection registry to the background loops.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// ServeWebSocket drives an upgraded connection until the peer goes away. The
// resolved client IP is remembered as a per-socket attribute for auth.
func (h *Hub) ServeWebSocket(conn Conn, ip string) {
	client := newClient(h, conn, ip, h.log)
	go client.writePump()
	client.readPump()
}

// dispatch parses, validates and routes a single inbound frame. Protocol errors
// produce one error frame and leave the connection open.
func (h *Hub) dispatch(c *Client, raw []byte) {
	msg, err := schema.ParseClientMessage(raw)
	if err != nil {
		var details any = err.Error()
		var vErr *schema.ValidationError
		if errors.As(err, &vErr) {
			details = vErr.Issues
		}
		if frame, fErr := NewErrorFrame(schema.CodeInvalidPayload, "Invalid message payload", details); fErr == nil {
			c.enqueue(frame)
		}
		return
	}

	switch msg.Type {
	case schema.TypeAuth:
		h.handleAuth(c, msg.Auth)
	case schema.TypePing:
		h.handlePing(c)
	case schema.TypeRolesUpdate:
		h.handleRolesUpdate(c, msg.RolesUpdate)
	case schema.TypeWarpStatus:
		h.handleWarpStatus(c, msg.WarpStatus)
	default:
		h.log.Info().Str("type", msg.Type).Msg("Ignoring unknown message type")
	}

	// Any successfully handled frame counts as liveness for a registered client.
	if h.registry.Has(c) {
		c.touch(time.Now().UnixMilli())
	}
}

// handleAuth admits a connection into the registry. Canonical roles from the
// presence store override client hints; a hint is persisted only when the store
// had no prior roles. A re-auth with a different uuid retires the previous
// identity first.
func (h *Hub) handleAuth(c *Client, msg *schema.AuthMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	id := strings.TrimSpace(msg.UUID)
	if id == "" {
		id = uuid.NewString()
	}
	name := strings.TrimSpace(msg.Name)
	if name == "" {
		name = fallbackName
	}
	accountType := schema.NormalizeAccountType(msg.AccountType)
	hinted := schema.NormalizeRoles(msg.Roles)

	if secret := h.cfg.AuthJWTSecret; secret != "" {
		subject, err := auth.ValidateSocketToken(msg.Token, secret)
		if err != nil || subject != id {
			h.log.Debug().Err(err).Str("uuid", id).Msg("Socket token validation failed")
			if frame, fErr := NewErrorFrame(schema.CodeAuthFailed, "Authentication failed", nil); fErr == nil {
				c.enqueue(frame)
			}
			return
		}
	}

	if prev, ok := c.State(); ok && prev.UUID != id {
		if err := h.store.MarkOffline(ctx, prev.UUID); err != nil {
			h.log.Warn().Err(err).Str("uuid", prev.UUID).Msg("Failed to mark previous identity offline")
		}
		if frame, err := NewUserLeaveFrame(prev.UUID); err == nil {
			h.Broadcast(frame)
		}
	}

	storeRoles, err := h.store.FetchRoles(ctx, id)
	if err != nil {
		h.log.Warn().Err(err).Str("uuid", id).Msg("Failed to fetch canonical roles")
		storeRoles = nil
	}
	effective := storeRoles
	if len(effective) == 0 {
		effective = hinted
	}
	if len(effective) == 0 {
		effective = []string{schema.DefaultRole}
	}

	now := time.Now().UnixMilli()
	c.setState(&State{
		UUID:            id,
		Name:            name,
		AccountType:     accountType,
		Roles:           effective,
		ConnectedAt:     now,
		LastSeen:        now,
		LastKeepaliveAt: now,
		IsAlive:         true,
		IP:              c.ip,
	})
	h.registry.Insert(c)

	// Persist the effective roles only when the store had none, so client hints
	// never clobber canonical roles.
	var rolesToPersist []string
	if len(storeRoles) == 0 {
		rolesToPersist = effective
	}
	rec := presence.Record{UUID: id, Name: name, AccountType: accountType, Roles: effective, IP: c.ip}
	if err := h.store.MarkOnline(ctx, rec, rolesToPersist); err != nil {
		h.log.Warn().Err(err).Str("uuid", id).Msg("Failed to mark user online")
	}

	if frame, err := NewAuthOKFrame(id, effective); err == nil {
		c.enqueue(frame)
	}
	if frame, err := NewUserJoinFrame(id, name, accountType); err == nil {
		h.Broadcast(frame)
	}

	h.log.Info().Str("uuid", id).Str("name", name).Msg("Client authenticated")
}

// handlePing refreshes liveness, stamps the presence store and replies with pong.
func (h *Hub) handlePing(c *Client) {
	state, ok := c.State()
	if !ok || !h.registry.Has(c) {
		return
	}

	c.touch(time.Now().UnixMilli())

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.store.UpdateLastSeen(ctx, state.UUID); err != nil {
		h.log.Warn().Err(err).Str("uuid", state.UUID).Msg("Failed to update last seen")
	}

	if frame, err := NewPongFrame(); err == nil {
		c.enqueue(frame)
	}
}

// handleRolesUpdate replaces the connection's role set and fans the change out to
// every open socket. A payload that normalizes to nothing is ignored.
func (h *Hub) handleRolesUpdate(c *Client, msg *schema.RolesUpdateMessage) {
	state, ok := c.State()
	if !ok || !h.registry.Has(c) {
		return
	}

	roles := schema.NormalizeRoles(msg.Roles)
	if len(roles) == 0 {
		return
	}
	c.setRoles(roles)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.store.UpdateRoles(ctx, state.UUID, roles); err != nil {
		h.log.Warn().Err(err).Str("uuid", state.UUID).Msg("Failed to update roles")
	}

	if frame, err := NewUserRolesFrame(state.UUID, roles); err == nil {
		h.Broadcast(frame)
	}
}

// handleWarpStatus persists the telemetry payload to the side channel.
func (h *Hub) handleWarpStatus(c *Client, msg *schema.WarpStatusMessage) {
	state, ok := c.State()
	if !ok || h.warp == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.warp.Save(ctx, state.UUID, *msg, time.Now().UnixMilli()); err != nil {
		h.log.Warn().Err(err).Str("uuid", state.UUID).Msg("Failed to save warp status")
	}
}

// handleDisconnect retires a connection when its read pump exits. Idempotent: a
// socket already evicted is a no-op.
func (h *Hub) handleDisconnect(c *Client) {
	if !h.registry.Remove(c) {
		return
	}
	state, ok := c.State()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.store.MarkOffline(ctx, state.UUID); err != nil {
		h.log.Warn().Err(err).Str("uuid", state.UUID).Msg("Failed to mark user offline")
	}

	if frame, err := NewUserLeaveFrame(state.UUID); err == nil {
		h.Broadcast(frame)
	}

	h.log.Debug().Str("uuid", state.UUID).Msg("Client disconnected")
}

// evict force-removes a connection on behalf of a background loop. The removal,
// offline bookkeeping, leave broadcast and close run at most once per socket.
func (h *Hub) evict(c *Client, code int, reason string) {
	if !h.registry.Remove(c) {
		return
	}
	c.markNotAlive()

	state, ok := c.State()
	if ok {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := h.store.MarkOffline(ctx, state.UUID); err != nil {
			h.log.Warn().Err(err).Str("uuid", state.UUID).Msg("Failed to mark evicted user offline")
		}
		if frame, err := NewUserLeaveFrame(state.UUID); err == nil {
			h.Broadcast(frame)
		}
	}

	c.closeWithCode(code, reason)
	h.log.Info().Str("uuid", state.UUID).Int("code", code).Str("reason", reason).Msg("Connection evicted")
}

// Broadcast fans a pre-serialised frame out to every open registered socket.
// Per-socket failures never abort the fan-out.
func (h *Hub) Broadcast(frame []byte) {
	for _, c := range h.registry.Snapshot() {
		if !c.IsOpen() {
			continue
		}
		c.enqueue(frame)
	}
}

// BroadcastPayload serialises an admin-injected message and fans it out. The
// payload fields are merged beside the type discriminator.
func (h *Hub) BroadcastPayload(msgType string, payload map[string]any) error {
	body := make(map[string]any, len(payload)+1)
	body["type"] = msgType
	for k, v := range payload {
		body[k] = v
	}
	frame, err := json.Marshal(body)
	if err != nil {
		return err
	}
	h.Broadcast(frame)
	return nil
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	return h.registry.Len()
}

// UniqueUserCount returns the number of distinct uuids across registered
// connections.
func (h *Hub) UniqueUserCount() int {
	seen := make(map[string]struct{})
	for _, c := range h.registry.Snapshot() {
		if state, ok := c.State(); ok {
			seen[state.UUID] = struct{}{}
		}
	}
	return len(seen)
}

// ConnectedStates returns a copy of every registered connection's state, for the
// admin listing fallback.
func (h *Hub) ConnectedStates() []State {
	snapshot := h.registry.Snapshot()
	out := make([]State, 0, len(snapshot))
	for _, c := range snapshot {
		if state, ok := c.State(); ok {
			out = append(out, state)
		}
	}
	return out
}

// Shutdown closes every connection with a Going Away status and marks the
// affected users offline.
func (h *Hub) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	for _, c := range h.registry.Snapshot() {
		if h.registry.Remove(c) {
			if state, ok := c.State(); ok {
				if err := h.store.MarkOffline(ctx, state.UUID); err != nil {
					h.log.Warn().Err(err).Str("uuid", state.UUID).Msg("Failed to mark user offline on shutdown")
				}
			}
		}
		c.closeWithCode(websocket.CloseGoingAway, "server shutting down")
	}

	h.log.Info().Msg("Gateway hub shut down")
}
