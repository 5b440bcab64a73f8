// Package access holds the static permission model used to gate admin
// screens and operations.
package access

// Role identifies the kind of principal a session represents.
type Role string

// Known roles.
const (
	RoleAdmin    Role = "admin"
	RoleSubAdmin Role = "sub-admin"
	RoleDelivery Role = "delivery"
	RoleCustomer Role = "customer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSubAdmin, RoleDelivery, RoleCustomer:
		return true
	}
	return false
}

// Monitored reports whether sessions of this role are watched for
// server-side password resets.
func (r Role) Monitored() bool {
	return r == RoleDelivery || r == RoleSubAdmin
}

// IsAdminTier reports whether the role may enter the admin console at all.
func IsAdminTier(r Role) bool {
	return r == RoleAdmin || r == RoleSubAdmin
}

// Permission is a functional area a sub-admin can be granted.
type Permission string

// Permission keys.
const (
	PermOrders   Permission = "orders"
	PermProducts Permission = "products"
	PermDelivery Permission = "delivery"
	PermUsers    Permission = "users"
)

// AllPermissions lists every permission key in display order.
func AllPermissions() []Permission {
	return []Permission{PermOrders, PermProducts, PermDelivery, PermUsers}
}

// Valid reports whether p is a known permission key.
func (p Permission) Valid() bool {
	switch p {
	case PermOrders, PermProducts, PermDelivery, PermUsers:
		return true
	}
	return false
}

// PermissionSet maps permission keys to grants. A missing key is a denial.
type PermissionSet map[Permission]bool

// Clone returns an independent copy of the set.
func (s PermissionSet) Clone() PermissionSet {
	if s == nil {
		return nil
	}
	out := make(PermissionSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Granted lists granted keys in display order.
func (s PermissionSet) Granted() []Permission {
	granted := make([]Permission, 0, len(s))
	for _, p := range AllPermissions() {
		if s[p] {
			granted = append(granted, p)
		}
	}
	return granted
}

// Grant is the part of a session the permission model inspects.
type Grant struct {
	Role        Role
	Permissions PermissionSet
}
