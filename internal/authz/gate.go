package authz

import "fmt"

// Action enumerates the operations guarded by the gate.
type Action string

const (
	ActionClose               Action = "close"
	ActionReopen              Action = "reopen"
	ActionPermanentClose      Action = "permanent_close"
	ActionChangeConfig        Action = "change_config"
	ActionOverrideRestriction Action = "override_restriction"
)

// Well-known roles. System Manager is the single super-role: only it may
// permanently close a period.
const (
	RoleSystemManager   = "System Manager"
	RoleAccountsManager = "Accounts Manager"
)

// RoleConfig carries the mutable role assignments from the closing
// configuration. Zero values fall back to Accounts Manager.
type RoleConfig struct {
	ClosingRole string
	ReopenRole  string
}

func (c RoleConfig) closingRole() string {
	if c.ClosingRole == "" {
		return RoleAccountsManager
	}
	return c.ClosingRole
}

func (c RoleConfig) reopenRole() string {
	if c.ReopenRole == "" {
		return RoleAccountsManager
	}
	return c.ReopenRole
}

// Decision is the structured allow/deny result. On deny it names the role
// that would have been sufficient and the caller's actual roles, so the UI
// can render an actionable error.
type Decision struct {
	Allowed      bool
	RequiredRole string
	UserRoles    []string
	Reason       string
}

// Gate evaluates the period closing rule table.
type Gate struct{}

// NewGate constructs a Gate.
func NewGate() Gate {
	return Gate{}
}

// Authorize resolves identity roles against the rule table for the action.
func (Gate) Authorize(id Identity, action Action, cfg RoleConfig) Decision {
	switch action {
	case ActionClose:
		return decide(id, RoleSystemManager, cfg.closingRole())
	case ActionReopen:
		return decide(id, RoleSystemManager, cfg.reopenRole())
	case ActionPermanentClose:
		return decide(id, RoleSystemManager)
	case ActionChangeConfig:
		return decide(id, RoleSystemManager, RoleAccountsManager)
	case ActionOverrideRestriction:
		return decide(id, RoleSystemManager, cfg.reopenRole())
	default:
		return Decision{
			Allowed:   false,
			UserRoles: id.Roles,
			Reason:    fmt.Sprintf("unknown action %q", action),
		}
	}
}

func decide(id Identity, sufficient ...string) Decision {
	if id.HasAnyRole(sufficient...) {
		return Decision{Allowed: true, UserRoles: id.Roles}
	}
	required := sufficient[len(sufficient)-1]
	return Decision{
		Allowed:      false,
		RequiredRole: required,
		UserRoles:    id.Roles,
		Reason:       fmt.Sprintf("required role: %s", required),
	}
}
