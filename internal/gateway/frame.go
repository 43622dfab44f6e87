package gateway

import (
	"encoding/json"

	"github.com/warpgate-live/warpgate-server/internal/schema"
)

type authOKFrame struct {
	Type  string   `json:"type"`
	UUID  string   `json:"uuid"`
	Roles []string `json:"roles"`
}

type userJoinFrame struct {
	Type        string `json:"type"`
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	AccountType string `json:"accountType"`
}

type userLeaveFrame struct {
	Type string `json:"type"`
	UUID string `json:"uuid"`
}

type userRolesFrame struct {
	Type  string   `json:"type"`
	UUID  string   `json:"uuid"`
	Roles []string `json:"roles"`
}

type typeOnlyFrame struct {
	Type string `json:"type"`
}

type verifyFrame struct {
	Type     string `json:"type"`
	UUID     string `json:"uuid"`
	LastSeen int64  `json:"lastSeen"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewAuthOKFrame returns a serialised auth.ok frame carrying the effective role set.
func NewAuthOKFrame(uuid string, roles []string) ([]byte, error) {
	return json.Marshal(authOKFrame{Type: schema.TypeAuthOK, UUID: uuid, Roles: roles})
}

// NewUserJoinFrame returns a serialised user.join broadcast frame.
func NewUserJoinFrame(uuid, name, accountType string) ([]byte, error) {
	return json.Marshal(userJoinFrame{Type: schema.TypeUserJoin, UUID: uuid, Name: name, AccountType: accountType})
}

// NewUserLeaveFrame returns a serialised user.leave broadcast frame.
func NewUserLeaveFrame(uuid string) ([]byte, error) {
	return json.Marshal(userLeaveFrame{Type: schema.TypeUserLeave, UUID: uuid})
}

// NewUserRolesFrame returns a serialised user.roles broadcast frame.
func NewUserRolesFrame(uuid string, roles []string) ([]byte, error) {
	return json.Marshal(userRolesFrame{Type: schema.TypeUserRoles, UUID: uuid, Roles: roles})
}

// NewPongFrame returns a serialised pong frame.
func NewPongFrame() ([]byte, error) {
	return json.Marshal(typeOnlyFrame{Type: schema.TypePong})
}

// NewKeepaliveFrame returns a serialised server.keepalive frame.
func NewKeepaliveFrame() ([]byte, error) {
	return json.Marshal(typeOnlyFrame{Type: schema.TypeKeepalive})
}

// NewVerifyFrame returns a serialised server.verify frame.
func NewVerifyFrame(uuid string, lastSeen int64) ([]byte, error) {
	return json.Marshal(verifyFrame{Type: schema.TypeVerify, UUID: uuid, LastSeen: lastSeen})
}

// NewErrorFrame returns a serialised error frame. Details may be nil, a plain
// string, or a validation issue list.
func NewErrorFrame(code, message string, details any) ([]byte, error) {
	return json.Marshal(errorFrame{Type: schema.TypeError, Code: code, Message: message, Details: details})
}
