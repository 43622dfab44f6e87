// Package schema defines the WebSocket wire protocol: the client-to-server message
// union discriminated on the "type" field, the server-to-client message types, and
// the canonicalization rules for roles and account types.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Client-to-server message types.
const (
	TypeAuth        = "auth"
	TypePing        = "ping"
	TypeRolesUpdate = "roles.update"
	TypeWarpStatus  = "warp.status"
)

// Server-to-client message types.
const (
	TypeAuthOK    = "auth.ok"
	TypeUserJoin  = "user.join"
	TypeUserLeave = "user.leave"
	TypeUserRoles = "user.roles"
	TypePong      = "pong"
	TypeKeepalive = "server.keepalive"
	TypeVerify    = "server.verify"
	TypeError     = "error"
)

// Error codes carried by the "error" frame.
const (
	CodeInvalidPayload = "INVALID_PAYLOAD"
	CodeAuthFailed     = "AUTH_FAILED"
)

const (
	maxNameLen     = 32
	maxUUIDLen     = 64
	maxRoles       = 8
	maxShortStrLen = 32
	maxLongStrLen  = 256
)

// AuthMessage is the payload of an "auth" frame. UUID and Name are substituted with
// generated defaults when blank; Roles accepts any JSON value and is canonicalized
// by NormalizeRoles. Token is only inspected when socket JWT auth is configured.
type AuthMessage struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	AccountType string `json:"accountType"`
	Roles       any    `json:"roles"`
	Token       string `json:"token"`
}

// RolesUpdateMessage is the payload of a "roles.update" frame.
type RolesUpdateMessage struct {
	Roles []string `json:"roles"`
}

// WarpStatusMessage is the payload of a "warp.status" telemetry frame. All fields
// are optional; pointers distinguish absent from zero.
type WarpStatusMessage struct {
	Enabled          *bool   `json:"enabled,omitempty"`
	Status           *string `json:"status,omitempty"`
	WarpMode         *string `json:"warpMode,omitempty"`
	Resolver         *string `json:"resolver,omitempty"`
	WarpLatency      *int64  `json:"warpLatency,omitempty"`
	SessionStartedAt *int64  `json:"sessionStartedAt,omitempty"`
	LookupMs         *int64  `json:"lookupMs,omitempty"`
	Timestamp        *int64  `json:"timestamp,omitempty"`
	CacheHit         *bool   `json:"cacheHit,omitempty"`
	Error            *string `json:"error,omitempty"`
}

// ClientMessage is a parsed and validated inbound frame. Exactly one of the payload
// pointers is set for the known variants that carry data; unknown types parse
// successfully with only Type populated so the dispatcher can log and ignore them.
type ClientMessage struct {
	Type        string
	Auth        *AuthMessage
	RolesUpdate *RolesUpdateMessage
	WarpStatus  *WarpStatusMessage
}

type envelope struct {
	Type string `json:"type"`
}

// ParseClientMessage parses a raw text frame into a validated ClientMessage. It
// returns a *ValidationError when the frame is malformed JSON, lacks a type
// discriminator, or fails the per-variant field rules.
func ParseClientMessage(raw []byte) (*ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, validationFromJSONError(err)
	}
	if strings.TrimSpace(env.Type) == "" {
		return nil, &ValidationError{Issues: []Issue{{Path: "type", Message: "Required"}}}
	}

	msg := &ClientMessage{Type: env.Type}

	switch env.Type {
	case TypeAuth:
		var p AuthMessage
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, validationFromJSONError(err)
		}
		if err := validateAuth(&p); err != nil {
			return nil, err
		}
		msg.Auth = &p

	case TypeRolesUpdate:
		var p RolesUpdateMessage
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, validationFromJSONError(err)
		}
		if err := validateRolesUpdate(&p); err != nil {
			return nil, err
		}
		msg.RolesUpdate = &p

	case TypeWarpStatus:
		var p WarpStatusMessage
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, validationFromJSONError(err)
		}
		if err := validateWarpStatus(&p); err != nil {
			return nil, err
		}
		msg.WarpStatus = &p

	case TypePing:
		// No payload.
	}

	return msg, nil
}

func validateAuth(p *AuthMessage) error {
	var issues []Issue

	if len(strings.TrimSpace(p.UUID)) > maxUUIDLen {
		issues = append(issues, Issue{Path: "uuid", Message: fmt.Sprintf("String must contain at most %d character(s)", maxUUIDLen)})
	}
	if len(strings.TrimSpace(p.Name)) > maxNameLen {
		issues = append(issues, Issue{Path: "name", Message: fmt.Sprintf("String must contain at most %d character(s)", maxNameLen)})
	}
	if arr, ok := p.Roles.([]any); ok && len(arr) > maxRoles {
		issues = append(issues, Issue{Path: "roles", Message: fmt.Sprintf("Array must contain at most %d element(s)", maxRoles)})
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func validateRolesUpdate(p *RolesUpdateMessage) error {
	var issues []Issue

	if len(p.Roles) == 0 {
		issues = append(issues, Issue{Path: "roles", Message: "Array must contain at least 1 element(s)"})
	}
	if len(p.Roles) > maxRoles {
		issues = append(issues, Issue{Path: "roles", Message: fmt.Sprintf("Array must contain at most %d element(s)", maxRoles)})
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func validateWarpStatus(p *WarpStatusMessage) error {
	var issues []Issue

	checkStr := func(path string, v *string, maxLen int) {
		if v != nil && len(*v) > maxLen {
			issues = append(issues, Issue{Path: path, Message: fmt.Sprintf("String must contain at most %d character(s)", maxLen)})
		}
	}
	checkInt := func(path string, v *int64) {
		if v != nil && *v < 0 {
			issues = append(issues, Issue{Path: path, Message: "Number must be greater than or equal to 0"})
		}
	}

	checkStr("status", p.Status, maxShortStrLen)
	checkStr("warpMode", p.WarpMode, maxShortStrLen)
	checkStr("resolver", p.Resolver, maxLongStrLen)
	checkStr("error", p.Error, maxLongStrLen)
	checkInt("warpLatency", p.WarpLatency)
	checkInt("sessionStartedAt", p.SessionStartedAt)
	checkInt("lookupMs", p.LookupMs)
	checkInt("timestamp", p.Timestamp)

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func validationFromJSONError(err error) *ValidationError {
	if typeErr, ok := err.(*json.UnmarshalTypeError); ok {
		return &ValidationError{Issues: []Issue{{
			Path:    typeErr.Field,
			Message: fmt.Sprintf("Expected %s, received %s", typeErr.Type, typeErr.Value),
		}}}
	}
	return &ValidationError{Issues: []Issue{{Path: "", Message: err.Error()}}}
}
