// Package auth provides staff authentication and authorization for the
// delivery service.
package auth

import (
	"errors"
	"fmt"
	"sort"
)

// Permission defines an action that can be performed.
type Permission string

const (
	// Reservation permissions
	PermReservationView   Permission = "reservation_view"
	PermReservationModify Permission = "reservation_modify"
	PermReservationDelete Permission = "reservation_delete"

	// Reproduction permissions
	PermReproductionView   Permission = "reproduction_view"
	PermReproductionModify Permission = "reproduction_modify"
	PermReproductionDelete Permission = "reproduction_delete"

	// Holding permissions
	PermHoldingModify Permission = "holding_modify"

	// PermAPIKeyManage allows issuing and revoking scanner API keys.
	PermAPIKeyManage Permission = "apikey_manage"
)

// AllPermissions lists every known permission in display order.
var AllPermissions = []Permission{
	PermReservationView, PermReservationModify, PermReservationDelete,
	PermReproductionView, PermReproductionModify, PermReproductionDelete,
	PermHoldingModify,
	PermAPIKeyManage,
}

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool {
	for _, known := range AllPermissions {
		if p == known {
			return true
		}
	}
	return false
}

// RoleMap maps OIDC group names to the permissions their members get.
type RoleMap map[string][]Permission

// DefaultRoleMap returns the group mapping used when no role file is configured.
func DefaultRoleMap() RoleMap {
	return RoleMap{
		"delivery-admin": AllPermissions,
		"delivery-staff": {
			PermReservationView, PermReservationModify,
			PermReproductionView, PermReproductionModify,
			PermHoldingModify,
		},
		"delivery-readonly": {
			PermReservationView,
			PermReproductionView,
		},
	}
}

// NewRoleMap builds a RoleMap from group → permission names, rejecting
// unknown permissions.
func NewRoleMap(groups map[string][]string) (RoleMap, error) {
	m := make(RoleMap, len(groups))
	for group, names := range groups {
		perms := make([]Permission, 0, len(names))
		for _, name := range names {
			p := Permission(name)
			if !p.Valid() {
				return nil, fmt.Errorf("group %q: unknown permission %q", group, name)
			}
			perms = append(perms, p)
		}
		m[group] = perms
	}
	return m, nil
}

// PermissionsFor returns the union of permissions granted to the groups,
// in AllPermissions order. Unmapped groups grant nothing.
func (m RoleMap) PermissionsFor(groups []string) []string {
	granted := make(map[Permission]bool)
	for _, g := range groups {
		for _, p := range m[g] {
			granted[p] = true
		}
	}

	perms := make([]string, 0, len(granted))
	for p := range granted {
		perms = append(perms, string(p))
	}
	order := make(map[string]int, len(AllPermissions))
	for i, p := range AllPermissions {
		order[string(p)] = i
	}
	sort.Slice(perms, func(i, j int) bool { return order[perms[i]] < order[perms[j]] })
	return perms
}

// HasPermission reports whether perm is among the granted permission names.
func HasPermission(granted []string, perm Permission) bool {
	for _, g := range granted {
		if g == string(perm) {
			return true
		}
	}
	return false
}

// ErrPermissionDenied is returned when a user lacks required permissions.
var ErrPermissionDenied = errors.New("permission denied")
