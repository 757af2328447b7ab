package models

import (
	"fmt"
	"sort"
)

// Role is a security role granted to a user. The string value is the wire
// format used in tokens and API responses.
type Role string

const (
	RoleAdmin Role = "ROLE_ADMIN"
	RoleUser  Role = "ROLE_USER"
)

// AllRoles lists every role the system knows about, in display order.
var AllRoles = []Role{RoleAdmin, RoleUser}

// IsValid reports whether r is one of the known roles
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleUser:
		return true
	}
	return false
}

// String implements fmt.Stringer
func (r Role) String() string {
	return string(r)
}

// ParseRole converts a role name into a Role, rejecting unknown names
func ParseRole(name string) (Role, error) {
	r := Role(name)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role %q", name)
	}
	return r, nil
}

// RoleSet is an unordered set of roles.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from the given roles
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// ParseRoleSet builds a set from role names. Unknown names are returned
// separately so callers can decide whether to reject or ignore them.
func ParseRoleSet(names []string) (RoleSet, []string) {
	set := make(RoleSet, len(names))
	var unknown []string
	for _, name := range names {
		r, err := ParseRole(name)
		if err != nil {
			unknown = append(unknown, name)
			continue
		}
		set[r] = struct{}{}
	}
	return set, unknown
}

// Has reports whether the set contains r
func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// Add inserts r and reports whether it was newly added
func (s RoleSet) Add(r Role) bool {
	if s.Has(r) {
		return false
	}
	s[r] = struct{}{}
	return true
}

// Intersect returns the roles present in both sets
func (s RoleSet) Intersect(other RoleSet) RoleSet {
	out := make(RoleSet)
	for r := range s {
		if other.Has(r) {
			out[r] = struct{}{}
		}
	}
	return out
}

// Strings returns the role names sorted lexically, so encodings are stable.
func (s RoleSet) Strings() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, string(r))
	}
	sort.Strings(out)
	return out
}
