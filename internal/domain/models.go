package domain

import (
	"fmt"
	"strings"
	"time"
)

// Descriptor is the immutable input to a fetch operation: where the resource
// lives, what it is called, and any strategy-specific options. It is
// constructed by the caller's package model and read-only to this subsystem,
// except for Version's commit-tracking field which VCS strategies update
// after a successful head fetch.
type Descriptor struct {
	URL     string
	Name    string
	Version *Version
	Meta    Meta
}

// Version models a resource version. A head version tracks the tip of a
// repository instead of a fixed release and records the commit it resolved
// to on the last fetch.
type Version struct {
	raw    string
	head   bool
	commit string
}

// NewVersion creates a Version from its string form, kept verbatim.
func NewVersion(raw string) *Version {
	return &Version{raw: raw}
}

// NewHeadVersion creates a version that tracks the repository head.
func NewHeadVersion() *Version {
	return &Version{head: true}
}

// IsHead reports whether this version tracks a repository head.
func (v *Version) IsHead() bool {
	return v != nil && v.head
}

// UpdateCommit records the commit a head fetch resolved to. This is the only
// observable mutation the download layer performs on a descriptor. Empty
// identifiers are ignored (some systems cannot report one).
func (v *Version) UpdateCommit(commit string) {
	if v == nil || commit == "" {
		return
	}
	v.commit = commit
}

// Commit returns the commit recorded by the last head fetch, if any.
func (v *Version) Commit() string {
	if v == nil {
		return ""
	}
	return v.commit
}

func (v *Version) String() string {
	if v == nil {
		return ""
	}
	if v.head {
		if v.commit != "" {
			return "HEAD-" + shortCommit(v.commit)
		}
		return "HEAD"
	}
	return v.raw
}

func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}

// RefType classifies a VCS ref selector.
type RefType string

const (
	// RefNone means no explicit ref was requested (system default).
	RefNone RefType = ""
	// RefTag selects a tag.
	RefTag RefType = "tag"
	// RefBranch selects a branch.
	RefBranch RefType = "branch"
	// RefRevision selects a single revision.
	RefRevision RefType = "revision"
	// RefRevisions selects per-module revisions (multi-module checkouts).
	RefRevisions RefType = "revisions"
)

// Ref is a resolved VCS pointer: which kind of selector the descriptor
// carries and its value. Revisions holds the module→revision map for
// multi-module checkouts; its "trunk" entry pins the main checkout.
type Ref struct {
	Type      RefType
	Value     string
	Revisions map[string]string
}

// TrunkKey names the main-checkout entry in a multi-module revision map.
const TrunkKey = "trunk"

// Resolution is the outcome of a header-only probe of one URL: everything a
// strategy needs to name the cache entry and judge freshness without
// transferring the body.
type Resolution struct {
	URL          string    // final URL after following redirects
	Basename     string    // from Content-Disposition or the URL, may be empty
	LastModified time.Time // zero when the origin did not report one
	Size         int64     // Content-Length, negative when unreported
	ContentType  string
	Redirected   bool
}

// IsTextual reports whether the probed content type denotes dynamically
// generated text, which exempts the entry from freshness checks.
func (r *Resolution) IsTextual() bool {
	return strings.Contains(r.ContentType, "text")
}

// StageResult describes what staging a cached artifact produced.
type StageResult struct {
	Entries int    // top-level entries extracted or copied
	WorkDir string // destination, or its single top-level directory
}

func (r *StageResult) String() string {
	return fmt.Sprintf("%d entries in %s", r.Entries, r.WorkDir)
}
