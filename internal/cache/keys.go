package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"strings"
)

// Key prefixes for the remote lookups gofer memoizes.
const (
	PrefixCommit = "commit"
	PrefixBranch = "branch"
)

// CommitKey generates a cache key for a commit lookup on a repository ref.
// The ref rides outside the hashed URL; normalization would otherwise strip
// it as a fragment and collapse all refs of one repository into one key.
func CommitKey(repoURL, ref string) string {
	return GenerateKeyWithPrefix(PrefixCommit, repoURL) + "#" + ref
}

// BranchKey generates a cache key for a default-branch lookup.
func BranchKey(repoURL string) string {
	return GenerateKeyWithPrefix(PrefixBranch, repoURL)
}

// GenerateKey hashes a normalized URL into a stable key, so spelling
// variants of the same location (casing, default ports, trailing slashes)
// share one entry.
func GenerateKey(rawURL string) string {
	sum := sha256.Sum256([]byte(normalizeForKey(rawURL)))
	return hex.EncodeToString(sum[:])
}

// GenerateKeyWithPrefix namespaces a key by lookup kind.
func GenerateKeyWithPrefix(prefix, rawURL string) string {
	return prefix + ":" + GenerateKey(rawURL)
}

func normalizeForKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if u.Scheme == "" {
		u.Scheme = "https"
	}
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && u.Port() == "80") ||
		(u.Scheme == "https" && u.Port() == "443") {
		u.Host = u.Hostname()
	}

	switch u.Path {
	case "":
		u.Path = "/"
	default:
		u.Path = path.Clean(u.Path)
		if u.Path != "/" {
			u.Path = strings.TrimSuffix(u.Path, "/")
		}
	}

	u.Fragment = ""
	return u.String()
}
