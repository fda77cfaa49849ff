// Package access provides the capability checks shared by the ledger and
// settlement engine: the role/permission matrix, component pause switches,
// reentrancy guards, and admin grant verification.
package access

// Role identifies the capability class of a caller.
type Role string

const (
	// RoleAnyone is an unauthenticated participant-facing caller.
	RoleAnyone Role = "anyone"
	// RoleEngine is the settlement engine capability.
	RoleEngine Role = "engine"
	// RoleAdmin is an operator holding a valid admin grant.
	RoleAdmin Role = "admin"
)

// Action identifies a mutating operation on the access-controlled surface.
type Action string

const (
	// ActionRegisterClaim covers single and batch claim registration.
	ActionRegisterClaim Action = "register_claim"
	// ActionMarkRevealed is the ledger mutation reserved for the engine.
	ActionMarkRevealed Action = "mark_revealed"
	// ActionRevealAndSettle covers single and batch settlement.
	ActionRevealAndSettle Action = "reveal_and_settle"
	// ActionPause halts a component.
	ActionPause Action = "pause"
	// ActionUnpause resumes a component.
	ActionUnpause Action = "unpause"
)

// Can reports whether the role may perform the action.
//
// The matrix is evaluated at the start of every mutating operation and is
// deliberately explicit: new actions default to denied until added here.
func Can(role Role, action Action) bool {
	switch action {
	case ActionRegisterClaim, ActionRevealAndSettle:
		return role == RoleAnyone || role == RoleEngine || role == RoleAdmin
	case ActionMarkRevealed:
		return role == RoleEngine
	case ActionPause, ActionUnpause:
		return role == RoleAdmin
	default:
		return false
	}
}
