package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/warpgate-live/warpgate-server/internal/auth"
	"github.com/warpgate-live/warpgate-server/internal/config"
	"github.com/warpgate-live/warpgate-server/internal/gateway"
	"github.com/warpgate-live/warpgate-server/internal/presence"
)

var testTimeout = fiber.TestConfig{Timeout: 10 * time.Second}

const testAdminKey = "test-admin-key-16chars"

// fakeStore implements presence.Store for handler tests.
type fakeStore struct {
	online    []presence.Record
	onlineErr error
	countErr  error
	markedOff []string
}

func (s *fakeStore) MarkOnline(context.Context, presence.Record, []string) error { return nil }
func (s *fakeStore) MarkOffline(_ context.Context, uuid string) error {
	s.markedOff = append(s.markedOff, uuid)
	return nil
}
func (s *fakeStore) UpdateLastSeen(context.Context, string) error        { return nil }
func (s *fakeStore) UpdateRoles(context.Context, string, []string) error { return nil }
func (s *fakeStore) FetchRoles(context.Context, string) ([]string, error) {
	return nil, nil
}
func (s *fakeStore) FetchOnlineUsers(context.Context, int) ([]presence.Record, error) {
	if s.onlineErr != nil {
		return nil, s.onlineErr
	}
	return s.online, nil
}
func (s *fakeStore) CountOnlineUsers(context.Context) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return len(s.online), nil
}

// fakeStartStore implements presence.StartTimeStore.
type fakeStartStore struct {
	startedAt int64
	err       error
	calls     int
}

func (s *fakeStartStore) EnsureStartedAt(context.Context, string, string, int64) (int64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.startedAt, nil
}

func testConfig() *config.Config {
	return &config.Config{
		ServerEnv:           "development",
		Port:                8080,
		WSPath:              "/websocket",
		CommitHash:          "abc1234",
		AdminKey:            testAdminKey,
		HeartbeatIntervalMS: 30000,
		OfflineAfterMS:      120000,
	}
}

func testApp(t *testing.T, store *fakeStore, start *fakeStartStore) (*fiber.App, *gateway.Hub) {
	t.Helper()
	cfg := testConfig()
	hub := gateway.NewHub(cfg, store, nil, zerolog.Nop())

	app := fiber.New()
	health := NewHealthHandler(cfg, hub, store, start, zerolog.Nop())
	users := NewUsersHandler(hub, store, zerolog.Nop())
	broadcast := NewBroadcastHandler(hub, zerolog.Nop())
	gatewayHandler := NewGatewayHandler(hub)

	app.Get("/v1/health", health.Health)
	app.Get(cfg.WSPath, gatewayHandler.Upgrade)

	admin := app.Group("/v1", auth.RequireAdminKey(cfg.AdminKey))
	admin.Get("/connected-users", users.List)
	admin.Post("/broadcast", broadcast.Broadcast)

	return app, hub
}

func jsonReq(method, url, body string) *http.Request {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func adminReq(method, url, body string) *http.Request {
	req := jsonReq(method, url, body)
	req.Header.Set("x-admin-key", testAdminKey)
	return req
}

func doReq(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	resp, err := app.Test(req, testTimeout)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(b, &body); err != nil {
		t.Fatalf("unmarshal response %q: %v", string(b), err)
	}
	return body
}

// --- Health ---

func TestHealth(t *testing.T) {
	t.Parallel()
	start := &fakeStartStore{startedAt: 1000}
	app, _ := testApp(t, &fakeStore{online: []presence.Record{{UUID: "u-1", Online: true}}}, start)

	resp := doReq(t, app, jsonReq(http.MethodGet, "/v1/health", ""))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)

	if body["ok"] != true {
		t.Errorf("ok = %v, want true", body["ok"])
	}
	if body["env"] != "development" {
		t.Errorf("env = %v, want development", body["env"])
	}
	if body["version"] != "abc1234" {
		t.Errorf("version = %v, want abc1234", body["version"])
	}
	if body["startedAt"] != float64(1000) {
		t.Errorf("startedAt = %v, want 1000", body["startedAt"])
	}
	if body["onlineUsers"] != float64(1) {
		t.Errorf("onlineUsers = %v, want 1", body["onlineUsers"])
	}
	if body["connections"] != float64(0) {
		t.Errorf("connections = %v, want 0", body["connections"])
	}
}

func TestHealthRequiresNoAuth(t *testing.T) {
	t.Parallel()
	app, _ := testApp(t, &fakeStore{}, &fakeStartStore{startedAt: 1000})

	resp := doReq(t, app, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want 200 without admin key", resp.StatusCode)
	}
}

func TestHealthStartTimeCachedOnSuccessOnly(t *testing.T) {
	t.Parallel()
	start := &fakeStartStore{err: errors.New("store down")}
	app, _ := testApp(t, &fakeStore{}, start)

	resp := doReq(t, app, jsonReq(http.MethodGet, "/v1/health", ""))
	body := decodeBody(t, resp)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 despite store failure", resp.StatusCode)
	}
	if body["startedAt"] == float64(0) {
		t.Error("startedAt = 0, want in-process fallback")
	}

	// Store recovers; the durable value is adopted and then cached.
	start.err = nil
	start.startedAt = 2000
	for range 2 {
		resp = doReq(t, app, jsonReq(http.MethodGet, "/v1/health", ""))
		body = decodeBody(t, resp)
		if body["startedAt"] != float64(2000) {
			t.Errorf("startedAt = %v, want 2000", body["startedAt"])
		}
	}
	if start.calls != 2 {
		t.Errorf("EnsureStartedAt calls = %d, want 2 (cached after first success)", start.calls)
	}
}

func TestHealthOmitsOnlineUsersOnCountFailure(t *testing.T) {
	t.Parallel()
	store := &fakeStore{countErr: errors.New("store down")}
	app, _ := testApp(t, store, &fakeStartStore{startedAt: 1000})

	resp := doReq(t, app, jsonReq(http.MethodGet, "/v1/health", ""))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if _, ok := body["onlineUsers"]; ok {
		t.Error("onlineUsers present despite count failure")
	}
	if body["ok"] != true {
		t.Errorf("ok = %v, want true", body["ok"])
	}
}

// --- Connected users ---

func TestConnectedUsersFromStore(t *testing.T) {
	t.Parallel()
	store := &fakeStore{online: []presence.Record{
		{UUID: "u-1", Name: "Steve", AccountType: "MOJANG", LastSeen: 5000, LastJoin: 4000, Roles: []string{"GOLD"}, Online: true},
		{UUID: "u-2", Name: "Alex", AccountType: "LOCAL", LastSeen: 3000, Online: true},
	}}
	app, _ := testApp(t, store, &fakeStartStore{})

	resp := doReq(t, app, adminReq(http.MethodGet, "/v1/connected-users", ""))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)

	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	users, ok := body["users"].([]any)
	if !ok || len(users) != 2 {
		t.Fatalf("users = %v, want two entries", body["users"])
	}
	first := users[0].(map[string]any)
	if first["uuid"] != "u-1" || first["accountType"] != "MOJANG" {
		t.Errorf("first user = %v", first)
	}
	// A record without stored roles reports the default.
	second := users[1].(map[string]any)
	roles, _ := second["roles"].([]any)
	if len(roles) != 1 || roles[0] != "MEMBER" {
		t.Errorf("second user roles = %v, want [MEMBER]", second["roles"])
	}
}

func TestConnectedUsersFallsBackToRegistry(t *testing.T) {
	t.Parallel()
	store := &fakeStore{onlineErr: errors.New("store down")}
	app, _ := testApp(t, store, &fakeStartStore{})

	resp := doReq(t, app, adminReq(http.MethodGet, "/v1/connected-users", ""))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	if users, ok := body["users"].([]any); !ok || len(users) != 0 {
		t.Errorf("users = %v, want empty list", body["users"])
	}
}

func TestConnectedUsersRejectsMissingKey(t *testing.T) {
	t.Parallel()
	app, _ := testApp(t, &fakeStore{}, &fakeStartStore{})

	resp := doReq(t, app, jsonReq(http.MethodGet, "/v1/connected-users", ""))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["success"] != false || body["message"] != "Unauthorized" {
		t.Errorf("body = %v, want success=false message=Unauthorized", body)
	}
}

func TestConnectedUsersRejectsWrongKey(t *testing.T) {
	t.Parallel()
	app, _ := testApp(t, &fakeStore{}, &fakeStartStore{})

	req := jsonReq(http.MethodGet, "/v1/connected-users", "")
	req.Header.Set("x-admin-key", "wrong-key-entirely")
	resp := doReq(t, app, req)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

// --- Broadcast ---

func TestBroadcastSuccess(t *testing.T) {
	t.Parallel()
	app, _ := testApp(t, &fakeStore{}, &fakeStartStore{})

	resp := doReq(t, app, adminReq(http.MethodPost, "/v1/broadcast", `{"type":"announcement","payload":{"message":"hello"}}`))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
}

func TestBroadcastRejectsMissingType(t *testing.T) {
	t.Parallel()
	app, _ := testApp(t, &fakeStore{}, &fakeStartStore{})

	for _, body := range []string{`{}`, `{"type":"  "}`, `{"payload":{"x":1}}`, `not json`} {
		resp := doReq(t, app, adminReq(http.MethodPost, "/v1/broadcast", body))
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
			continue
		}
		decoded := decodeBody(t, resp)
		if decoded["success"] != false || decoded["message"] != "Invalid broadcast request" {
			t.Errorf("body %q: response = %v", body, decoded)
		}
	}
}

func TestBroadcastRejectsMissingKey(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	app, _ := testApp(t, store, &fakeStartStore{})

	resp := doReq(t, app, jsonReq(http.MethodPost, "/v1/broadcast", `{"type":"announcement"}`))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

// --- Gateway upgrade ---

func TestUpgradeRejectsInsecureForwardedProto(t *testing.T) {
	t.Parallel()
	app, _ := testApp(t, &fakeStore{}, &fakeStartStore{})

	req := httptest.NewRequest(http.MethodGet, "/websocket", nil)
	req.Header.Set("x-forwarded-proto", "http")
	resp := doReq(t, app, req)

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["message"] != "Insecure connection" {
		t.Errorf("message = %v, want Insecure connection", body["message"])
	}
}

func TestUpgradeRequiresWebSocket(t *testing.T) {
	t.Parallel()
	app, _ := testApp(t, &fakeStore{}, &fakeStartStore{})

	resp := doReq(t, app, httptest.NewRequest(http.MethodGet, "/websocket", nil))
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

// --- IP resolution ---

func TestResolveClientIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"cloudflare first", map[string]string{"cf-connecting-ip": "198.51.100.1", "x-real-ip": "198.51.100.2"}, "198.51.100.1"},
		{"real ip second", map[string]string{"x-real-ip": "198.51.100.2", "x-forwarded-for": "198.51.100.3"}, "198.51.100.2"},
		{"forwarded for takes first hop", map[string]string{"x-forwarded-for": "198.51.100.3, 10.0.0.1"}, "198.51.100.3"},
		{"no headers", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			app := fiber.New()
			var got string
			app.Get("/", func(c fiber.Ctx) error {
				got = ResolveClientIP(c)
				return c.SendString("ok")
			})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			doReq(t, app, req)
			if got != tt.want {
				t.Errorf("ResolveClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
