package git

import "time"

// Inspector examines local clones. Network operations go through the git
// CLI so exotic server features keep working; reading repository state
// stays in-process.
type Inspector interface {
	// Valid reports whether path holds a repository with a resolvable
	// HEAD. An interrupted clone leaves a .git directory without one.
	Valid(path string) bool
	// HeadRevision returns the full hash HEAD points at.
	HeadRevision(path string) (string, error)
	// CommitTime returns the committer timestamp of the HEAD commit.
	CommitTime(path string) (time.Time, error)
	// IsShallow reports whether the clone has cut-off history.
	IsShallow(path string) (bool, error)
}

// Ensure RepoInspector implements Inspector
var _ Inspector = (*RepoInspector)(nil)
