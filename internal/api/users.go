package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/warpgate-live/warpgate-server/internal/gateway"
	"github.com/warpgate-live/warpgate-server/internal/presence"
	"github.com/warpgate-live/warpgate-server/internal/schema"
)

// UsersHandler serves the admin connected-users listing.
type UsersHandler struct {
	hub   *gateway.Hub
	store presence.Store
	log   zerolog.Logger
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(hub *gateway.Hub, store presence.Store, logger zerolog.Logger) *UsersHandler {
	return &UsersHandler{
		hub:   hub,
		store: store,
		log:   logger.With().Str("component", "api").Logger(),
	}
}

type connectedUser struct {
	UUID        string   `json:"uuid"`
	Name        string   `json:"name"`
	AccountType string   `json:"accountType"`
	LastSeen    int64    `json:"lastSeen"`
	ConnectedAt int64    `json:"connectedAt,omitempty"`
	Roles       []string `json:"roles"`
}

// List handles GET /v1/connected-users. The presence store is authoritative;
// when it is unavailable the listing degrades to the in-memory registry,
// deduplicated by uuid keeping the most recently seen connection.
func (h *UsersHandler) List(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	users := h.fromStore(ctx)
	if users == nil {
		users = h.fromRegistry()
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"users":       users,
		"connections": h.hub.ConnectionCount(),
	})
}

func (h *UsersHandler) fromStore(ctx context.Context) []connectedUser {
	records, err := h.store.FetchOnlineUsers(ctx, presence.DefaultOnlineLimit)
	if err != nil {
		h.log.Warn().Err(err).Msg("Falling back to registry for connected users")
		return nil
	}

	users := make([]connectedUser, 0, len(records))
	for _, rec := range records {
		roles := rec.Roles
		if len(roles) == 0 {
			roles = []string{schema.DefaultRole}
		}
		users = append(users, connectedUser{
			UUID:        rec.UUID,
			Name:        rec.Name,
			AccountType: rec.AccountType,
			LastSeen:    rec.LastSeen,
			ConnectedAt: rec.LastJoin,
			Roles:       roles,
		})
	}
	return users
}

func (h *UsersHandler) fromRegistry() []connectedUser {
	best := make(map[string]gateway.State)
	for _, state := range h.hub.ConnectedStates() {
		if prev, ok := best[state.UUID]; ok && prev.LastSeen >= state.LastSeen {
			continue
		}
		best[state.UUID] = state
	}

	users := make([]connectedUser, 0, len(best))
	for _, state := range best {
		users = append(users, connectedUser{
			UUID:        state.UUID,
			Name:        state.Name,
			AccountType: state.AccountType,
			LastSeen:    state.LastSeen,
			ConnectedAt: state.ConnectedAt,
			Roles:       state.Roles,
		})
	}
	return users
}
