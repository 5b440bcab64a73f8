// Package guard decides whether the current session may open an admin
// screen or run an admin operation.
package guard

import (
	"sync"

	"github.com/cylinderhub/cylinderhub/internal/access"
	"github.com/cylinderhub/cylinderhub/internal/session"
)

// State is the outcome of a guard evaluation.
type State int

// Guard states. Loading is the only non-terminal one.
const (
	Loading State = iota
	Allowed
	Denied
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	}
	return "unknown"
}

// Reasons attached to denials.
const (
	ReasonNoSession  = "no_session"
	ReasonRole       = "role"
	ReasonPermission = "permission"
	ReasonFullAdmin  = "full_admin"
)

// Requirement describes what guarded content needs beyond an admin-tier
// session. The zero value admits any admin or sub-admin.
type Requirement struct {
	Permission access.Permission
	FullAdmin  bool
}

// NeedPermission requires the permission key p.
func NeedPermission(p access.Permission) Requirement {
	return Requirement{Permission: p}
}

// NeedFullAdmin requires the full admin role.
func NeedFullAdmin() Requirement {
	return Requirement{FullAdmin: true}
}

// RequirementFor returns the requirement guarding route.
func RequirementFor(route access.Route) Requirement {
	if route == access.RouteSubAdmins {
		return NeedFullAdmin()
	}
	if p, ok := access.RequiredPermission(route); ok {
		return NeedPermission(p)
	}
	return Requirement{}
}

// String labels the requirement for logs and metrics.
func (r Requirement) String() string {
	switch {
	case r.FullAdmin:
		return "full_admin"
	case r.Permission != "":
		return "perm:" + string(r.Permission)
	}
	return "admin_tier"
}

// Decision is the result of evaluating a requirement.
type Decision struct {
	State  State
	Reason string
}

// Decide evaluates req against snap. It has no side effects.
func Decide(snap session.Snapshot, req Requirement) Decision {
	if snap.Loading {
		return Decision{State: Loading}
	}
	grant := snap.Session.Grant()
	switch {
	case grant == nil:
		return Decision{State: Denied, Reason: ReasonNoSession}
	case !access.IsAdminTier(grant.Role):
		return Decision{State: Denied, Reason: ReasonRole}
	case req.FullAdmin && !access.IsFullAdmin(grant):
		return Decision{State: Denied, Reason: ReasonFullAdmin}
	case req.Permission != "" && !access.HasPermission(grant, req.Permission):
		return Decision{State: Denied, Reason: ReasonPermission}
	}
	return Decision{State: Allowed}
}

// Gate is the per-mount guard state machine: it starts in Loading and
// settles once on Allowed or Denied.
type Gate struct {
	req Requirement

	mu       sync.Mutex
	decision Decision
	settled  bool
}

// NewGate constructs a Gate for req.
func NewGate(req Requirement) *Gate {
	return &Gate{req: req}
}

// Resolve evaluates snap unless the gate already settled, in which case the
// settled decision is returned unchanged.
func (g *Gate) Resolve(snap session.Snapshot) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.settled {
		return g.decision
	}
	d := Decide(snap, g.req)
	g.decision = d
	g.settled = d.State != Loading
	return d
}

// State returns the current gate state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision.State
}

// Redirect is the navigation command a caller issues after a denial.
type Redirect struct {
	Location string `json:"redirect"`
	Message  string `json:"error"`
	Reason   string `json:"reason"`
}

// Denial builds the fallback navigation for a denied decision.
func Denial(d Decision) Redirect {
	msg := "You do not have access to this section."
	switch d.Reason {
	case ReasonNoSession:
		msg = "Please sign in to continue."
	case ReasonFullAdmin:
		msg = "Only the main admin can manage this section."
	}
	return Redirect{Location: access.RouteProfile.Path(), Message: msg, Reason: d.Reason}
}
