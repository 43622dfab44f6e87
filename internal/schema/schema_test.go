package schema

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseClientMessageAuth(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"type":"auth","uuid":"a1","name":"Alice","accountType":"LOCAL","roles":["GOLD"]}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if msg.Type != TypeAuth {
		t.Errorf("Type = %q, want %q", msg.Type, TypeAuth)
	}
	if msg.Auth == nil {
		t.Fatal("Auth payload is nil")
	}
	if msg.Auth.UUID != "a1" || msg.Auth.Name != "Alice" {
		t.Errorf("Auth = %+v, want uuid a1 / name Alice", msg.Auth)
	}
	if got := NormalizeRoles(msg.Auth.Roles); !reflect.DeepEqual(got, []string{"GOLD"}) {
		t.Errorf("NormalizeRoles(Auth.Roles) = %v, want [GOLD]", got)
	}
}

func TestParseClientMessagePing(t *testing.T) {
	t.Parallel()

	msg, err := ParseClientMessage([]byte(`{"type":"ping"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if msg.Type != TypePing {
		t.Errorf("Type = %q, want %q", msg.Type, TypePing)
	}
}

func TestParseClientMessageUnknownType(t *testing.T) {
	t.Parallel()

	msg, err := ParseClientMessage([]byte(`{"type":"mystery","x":1}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v, want unknown types to parse", err)
	}
	if msg.Type != "mystery" {
		t.Errorf("Type = %q, want %q", msg.Type, "mystery")
	}
	if msg.Auth != nil || msg.RolesUpdate != nil || msg.WarpStatus != nil {
		t.Error("unknown type should carry no payload")
	}
}

func TestParseClientMessageInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		path string
	}{
		{"malformed json", `{"type":`, ""},
		{"missing type", `{"uuid":"a1"}`, "type"},
		{"blank type", `{"type":"  "}`, "type"},
		{"name too long", `{"type":"auth","uuid":"a1","name":"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}`, "name"},
		{"too many roles", `{"type":"auth","uuid":"a1","name":"A","roles":["A","B","C","D","E","F","G","H","I"]}`, "roles"},
		{"roles update empty", `{"type":"roles.update","roles":[]}`, "roles"},
		{"roles update missing", `{"type":"roles.update"}`, "roles"},
		{"roles update wrong type", `{"type":"roles.update","roles":"GOLD"}`, "roles"},
		{"warp negative latency", `{"type":"warp.status","warpLatency":-5}`, "warpLatency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseClientMessage([]byte(tt.raw))
			if err == nil {
				t.Fatal("ParseClientMessage() error = nil, want validation failure")
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error type = %T, want *ValidationError", err)
			}
			if len(vErr.Issues) == 0 {
				t.Fatal("ValidationError has no issues")
			}
			if tt.path != "" && vErr.Issues[0].Path != tt.path {
				t.Errorf("Issues[0].Path = %q, want %q", vErr.Issues[0].Path, tt.path)
			}
		})
	}
}

func TestParseClientMessageAuthNonArrayRoles(t *testing.T) {
	t.Parallel()

	// Non-array roles on auth are tolerated and normalize to an empty set.
	msg, err := ParseClientMessage([]byte(`{"type":"auth","uuid":"a1","name":"A","roles":"GOLD"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if got := NormalizeRoles(msg.Auth.Roles); len(got) != 0 {
		t.Errorf("NormalizeRoles(non-array) = %v, want empty", got)
	}
}

func TestNormalizeRoles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input any
		want  []string
	}{
		{"dedupe and upcase", []any{"gold", "member", "member"}, []string{"GOLD", "MEMBER"}},
		{"trim", []any{"  STAFF  "}, []string{"STAFF"}},
		{"drop unknown", []any{"ADMIN", "DIAMOND"}, []string{"DIAMOND"}},
		{"drop non-strings", []any{1, "GOLD", true}, []string{"GOLD"}},
		{"order preserved", []any{"MEMBER", "STAFF"}, []string{"MEMBER", "STAFF"}},
		{"non-array", "GOLD", []string{}},
		{"nil", nil, []string{}},
		{"string slice", []string{"gold"}, []string{"GOLD"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := NormalizeRoles(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeRoles(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeAccountType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"LOCAL", AccountLocal},
		{"local", AccountLocal},
		{" microsoft ", AccountMicrosoft},
		{"MOJANG", AccountMojang},
		{"PREMIUM", AccountLocal},
		{"", AccountLocal},
	}

	for _, tt := range tests {
		if got := NormalizeAccountType(tt.input); got != tt.want {
			t.Errorf("NormalizeAccountType(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
