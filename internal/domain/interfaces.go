package domain

import (
	"context"
	"time"
)

// Prober resolves a URL's transfer metadata without downloading the body.
type Prober interface {
	// Probe issues a header-only request (HEAD, falling back to a ranged
	// GET) and reports the resolution after following redirects.
	Probe(ctx context.Context, url string, opts RequestOptions) (*Resolution, error)
}

// Downloader transfers a URL's body to a local file.
type Downloader interface {
	// Download writes the response body to dest, resuming a partial file
	// when opts.Resume is set and the origin supports ranges.
	Download(ctx context.Context, url, dest string, opts DownloadOptions) error
}

// Getter fetches a small response body into memory, for API lookups such as
// mirror selection. Large artifact transfers go through Downloader instead.
type Getter interface {
	Get(ctx context.Context, url string, opts RequestOptions) ([]byte, error)
}

// Command describes one subprocess invocation.
type Command struct {
	Name string
	Args []string
	Dir  string   // working directory, empty for the caller's
	Env  []string // extra KEY=VALUE pairs appended to the environment
}

// RunResult captures a finished subprocess.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes local commands on behalf of strategies. Deadlines arrive
// through the context; expiry kills the process and surfaces a TimeoutError.
type Runner interface {
	// Run executes cmd and returns its captured output. A non-zero exit
	// yields a CommandError alongside the result.
	Run(ctx context.Context, cmd Command) (*RunResult, error)
	// LookPath reports the absolute path of an executable, or an error
	// when it is not installed.
	LookPath(name string) (string, error)
}

// Unpacker stages a cached artifact into a destination directory: archives
// are detected by content and extracted, directories are copied, anything
// else is copied verbatim.
type Unpacker interface {
	Stage(ctx context.Context, source, dest string) (*StageResult, error)
}

// MetadataCache is the read-through store for remote API metadata (not for
// downloaded artifacts, which live as plain files under the cache root).
type MetadataCache interface {
	// Get retrieves a value, ErrCacheMiss when absent or expired
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores a value with a TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Has checks if a key exists
	Has(ctx context.Context, key string) bool
	// Delete removes a key
	Delete(ctx context.Context, key string) error
	// Close releases store resources
	Close() error
}
