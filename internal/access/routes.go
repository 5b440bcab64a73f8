package access

// Route identifies an admin screen of the console shell.
type Route string

// Admin routes.
const (
	RouteDashboard Route = "admindashboard"
	RouteOrders    Route = "adminordersmanagement"
	RouteProducts  Route = "adminproductmanagement"
	RouteDelivery  Route = "admindeliverymanagement"
	RouteUsers     Route = "adminusermanagement"
	RouteSubAdmins Route = "adminsubadminmanagement"
	RouteProfile   Route = "adminprofile"
)

// routePermissions lists routes that need a specific grant. Routes missing
// here are open to every admin-tier role.
var routePermissions = map[Route]Permission{
	RouteDashboard: PermOrders,
	RouteOrders:    PermOrders,
	RouteProducts:  PermProducts,
	RouteDelivery:  PermDelivery,
	RouteUsers:     PermUsers,
}

// landingOrder is the preference order used to pick a landing screen.
var landingOrder = []Route{
	RouteDashboard,
	RouteOrders,
	RouteProducts,
	RouteDelivery,
	RouteProfile,
}

// Routes lists every known admin route.
func Routes() []Route {
	return []Route{
		RouteDashboard,
		RouteOrders,
		RouteProducts,
		RouteDelivery,
		RouteUsers,
		RouteSubAdmins,
		RouteProfile,
	}
}

// Known reports whether r is an admin route.
func (r Route) Known() bool {
	for _, known := range Routes() {
		if r == known {
			return true
		}
	}
	return false
}

// Path returns the console path used by the shell for the route.
func (r Route) Path() string {
	return "/admin/routes/" + string(r)
}

// RequiredPermission returns the grant a route needs, if any.
func RequiredPermission(r Route) (Permission, bool) {
	p, ok := routePermissions[r]
	return p, ok
}
