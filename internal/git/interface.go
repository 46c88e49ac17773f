// Package git provides an interface for git operations.
package git

// Runner defines the git operations relay performs against the project
// repository. Implementations shell out to the git CLI; tests use fakes.
type Runner interface {
	// Run executes an arbitrary git command with the given arguments.
	Run(args ...string) (string, error)
	// CurrentBranch returns the name of the current branch.
	CurrentBranch() (string, error)
	// BranchExists returns true if the local branch exists.
	BranchExists(name string) (bool, error)
	// DeleteBranch deletes the specified local branch.
	DeleteBranch(name string) error
	// Push pushes the branch to the named remote, setting upstream.
	Push(remote, branch string) error
	// DeleteRemoteBranch deletes the branch on the named remote.
	DeleteRemoteBranch(remote, branch string) error
	// RemoteURL returns the URL configured for the named remote.
	RemoteURL(remote string) (string, error)
}
