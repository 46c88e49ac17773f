package models

// Role identifies one member of the agent pipeline.
type Role string

const (
	// RoleArchitect plans the overall approach before code is written.
	RoleArchitect Role = "architect"
	// RoleCoder implements the task.
	RoleCoder Role = "coder"
	// RoleReviewer reviews the implementation for correctness and style.
	RoleReviewer Role = "reviewer"
	// RoleSecurity audits the changes for security issues.
	RoleSecurity Role = "security"
	// RoleDocumenter updates documentation for the changes.
	RoleDocumenter Role = "documenter"
	// RoleTester writes and runs tests against the changes.
	RoleTester Role = "tester"
	// RolePerformance checks the changes for performance regressions.
	RolePerformance Role = "performance"
)

// Valid returns true if the role is a known pipeline member.
func (r Role) Valid() bool {
	switch r {
	case RoleArchitect, RoleCoder, RoleReviewer, RoleSecurity,
		RoleDocumenter, RoleTester, RolePerformance:
		return true
	default:
		return false
	}
}

// DefaultOrder returns the fixed default pipeline ordering.
// The slice is a fresh copy; callers may mutate it.
func DefaultOrder() []Role {
	return []Role{
		RoleArchitect,
		RoleCoder,
		RoleReviewer,
		RoleSecurity,
		RoleDocumenter,
		RoleTester,
		RolePerformance,
	}
}
