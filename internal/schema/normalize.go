package schema

import "strings"

// Roles recognised by the gateway, in canonical precedence order.
const (
	RoleStaff   = "STAFF"
	RoleDiamond = "DIAMOND"
	RoleGold    = "GOLD"
	RoleMember  = "MEMBER"
)

// DefaultRole is substituted whenever role resolution would produce an empty set.
const DefaultRole = RoleMember

// Account types recognised by the gateway. Anything else canonicalizes to LOCAL.
const (
	AccountLocal     = "LOCAL"
	AccountMojang    = "MOJANG"
	AccountMicrosoft = "MICROSOFT"
)

// DefaultAccountType is the catch-all for unrecognised account type strings.
const DefaultAccountType = AccountLocal

var allowedRoles = map[string]struct{}{
	RoleStaff:   {},
	RoleDiamond: {},
	RoleGold:    {},
	RoleMember:  {},
}

// NormalizeRoles canonicalizes an arbitrary JSON value into a deduplicated ordered
// role slice. Elements are trimmed and upper-cased, unknown roles and non-string
// elements are dropped, and non-array input yields an empty slice.
func NormalizeRoles(input any) []string {
	var raw []string
	switch v := input.(type) {
	case []string:
		raw = v
	case []any:
		raw = make([]string, 0, len(v))
		for _, el := range v {
			if s, ok := el.(string); ok {
				raw = append(raw, s)
			}
		}
	default:
		return []string{}
	}

	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		role := strings.ToUpper(strings.TrimSpace(r))
		if _, ok := allowedRoles[role]; !ok {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

// NormalizeAccountType canonicalizes an account type string. Unknown values map to
// the LOCAL catch-all.
func NormalizeAccountType(input string) string {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case AccountLocal:
		return AccountLocal
	case AccountMojang:
		return AccountMojang
	case AccountMicrosoft:
		return AccountMicrosoft
	default:
		return DefaultAccountType
	}
}
