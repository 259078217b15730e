package domain

import (
	"sort"
	"strings"
)

// Resource names a guarded business object.
type Resource string

const (
	ResourceOrders    Resource = "orders"
	ResourceProfile   Resource = "profile"
	ResourceCart      Resource = "cart"
	ResourceProducts  Resource = "products"
	ResourceInventory Resource = "inventory"
	ResourceUsers     Resource = "users"
	ResourceSellers   Resource = "sellers"
	ResourceSystem    Resource = "system"
)

// Action names an operation on a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"

	// ActionAll grants every action on a resource.
	ActionAll Action = "*"
)

// PermissionMatrix maps each kind to its resource → actions grants.
type PermissionMatrix map[PrincipalKind]map[Resource][]Action

// DefaultPermissionMatrix is the static per-kind grant table.
var DefaultPermissionMatrix = PermissionMatrix{
	KindBuyer: {
		ResourceOrders:  {ActionRead, ActionCreate},
		ResourceProfile: {ActionRead, ActionUpdate},
		ResourceCart:    {ActionRead, ActionCreate, ActionUpdate, ActionDelete},
	},
	KindMerchant: {
		ResourceProducts:  {ActionRead, ActionCreate, ActionUpdate, ActionDelete},
		ResourceOrders:    {ActionRead, ActionUpdate},
		ResourceInventory: {ActionRead, ActionUpdate},
	},
	KindAdministrator: {
		ResourceUsers:   {ActionAll},
		ResourceSellers: {ActionAll},
		ResourceSystem:  {ActionAll},
	},
}

// Allows reports whether kind may perform action on resource.
func (m PermissionMatrix) Allows(kind PrincipalKind, resource Resource, action Action) bool {
	grants, ok := m[kind]
	if !ok {
		return false
	}
	for _, a := range grants[resource] {
		if a == ActionAll || a == action {
			return true
		}
	}
	return false
}

// Permissions flattens the grants for kind into sorted "resource:action" strings.
func (m PermissionMatrix) Permissions(kind PrincipalKind) []string {
	grants := m[kind]
	perms := make([]string, 0, len(grants)*2)
	for res, actions := range grants {
		for _, a := range actions {
			perms = append(perms, FormatPermission(res, a))
		}
	}
	sort.Strings(perms)
	return perms
}

// FormatPermission renders a grant as "resource:action".
func FormatPermission(resource Resource, action Action) string {
	return string(resource) + ":" + string(action)
}

// ParsePermission splits a "resource:action" string.
func ParsePermission(s string) (Resource, Action, bool) {
	res, act, ok := strings.Cut(s, ":")
	if !ok || res == "" || act == "" {
		return "", "", false
	}
	return Resource(res), Action(act), true
}

// HasPermission checks a claims permission snapshot for resource/action.
func HasPermission(perms []string, resource Resource, action Action) bool {
	for _, p := range perms {
		res, act, ok := ParsePermission(p)
		if !ok || res != resource {
			continue
		}
		if act == ActionAll || act == action {
			return true
		}
	}
	return false
}
