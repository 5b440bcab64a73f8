package access

// IsFullAdmin reports whether the grant belongs to a full admin.
func IsFullAdmin(g *Grant) bool {
	return g != nil && g.Role == RoleAdmin
}

// HasPermission reports whether the grant holds key. Full admins hold every
// key; sub-admins hold only keys mapped to true; all other roles hold none.
func HasPermission(g *Grant, key Permission) bool {
	if g == nil {
		return false
	}
	if IsFullAdmin(g) {
		return true
	}
	if g.Role != RoleSubAdmin {
		return false
	}
	return g.Permissions[key]
}

// IsRouteAllowed reports whether the grant may open route.
func IsRouteAllowed(g *Grant, route Route) bool {
	if g == nil {
		return false
	}
	if IsFullAdmin(g) {
		return true
	}
	required, ok := RequiredPermission(route)
	if !ok {
		return true
	}
	return HasPermission(g, required)
}

// FirstAllowedAdminRoute picks the landing screen for the grant. The profile
// screen carries no requirement, so it is the fallback.
func FirstAllowedAdminRoute(g *Grant) Route {
	for _, route := range landingOrder {
		if IsRouteAllowed(g, route) {
			return route
		}
	}
	return RouteProfile
}
