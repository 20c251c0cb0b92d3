package auth

import (
	"fmt"
)

// Role is the caller's role within an assignment. The set is closed.
type Role string

const (
	// RoleLearner is a student taking an assignment.
	RoleLearner Role = "learner"
	// RoleAuthor is an instructor authoring or grading an assignment.
	RoleAuthor Role = "author"
)

// ParseRole maps a claim value onto a Role. Unknown values are rejected
// rather than defaulted so a token can never gain a role it did not carry.
func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleLearner, RoleAuthor:
		return Role(value), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, value)
	}
}

// UserSession represents an authenticated caller.
//
// A UserSession is only constructed by a successful strategy: either a
// verified token whose claims passed decodeClaims, or the fixed development
// session from the mock strategy. It is never partially populated and is
// treated as immutable once attached to a request context.
type UserSession struct {
	// UserID is the opaque, caller-unique identifier.
	UserID string

	// Role is the caller's role for AssignmentID.
	Role Role

	// AssignmentID is the assignment the token was scoped to.
	AssignmentID int

	// GroupID is the caller's tenant/group scope.
	GroupID string

	// GradingCallbackRequired is set when the token carried the flag.
	// Nil means the claim was absent.
	GradingCallbackRequired *bool
}

// Development identity returned by the mock strategy.
const (
	DevelopmentUserID       = "dev-author"
	DevelopmentGroupID      = "dev-group"
	DevelopmentAssignmentID = 1
)

// DevelopmentSession returns the fixed identity used when the mock-auth
// gate is open. Each call returns a fresh value.
func DevelopmentSession() *UserSession {
	callback := false
	return &UserSession{
		UserID:                  DevelopmentUserID,
		Role:                    RoleAuthor,
		AssignmentID:            DevelopmentAssignmentID,
		GroupID:                 DevelopmentGroupID,
		GradingCallbackRequired: &callback,
	}
}
