package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrCacheMiss indicates a metadata cache miss
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheExpired indicates the cached entry has expired
	ErrCacheExpired = errors.New("cache entry expired")

	// ErrNotModified indicates the remote resource matched the cached copy
	ErrNotModified = errors.New("not modified")

	// ErrTimeout indicates a deadline was exceeded
	ErrTimeout = errors.New("timeout")

	// ErrLockHeld indicates another process holds the download lock
	ErrLockHeld = errors.New("download lock held")

	// ErrInvalidURL indicates an invalid URL was provided
	ErrInvalidURL = errors.New("invalid URL")

	// ErrUnknownStrategy indicates an unrecognized symbolic strategy tag
	ErrUnknownStrategy = errors.New("unknown download strategy")

	// ErrNoCache indicates no cached artifact exists for the resource
	ErrNoCache = errors.New("resource not cached")
)

// StrategyResolutionError reports a symbolic strategy tag outside the
// supported set.
type StrategyResolutionError struct {
	Tag string
}

func (e *StrategyResolutionError) Error() string {
	return fmt.Sprintf("unknown download strategy tag %q", e.Tag)
}

func (e *StrategyResolutionError) Unwrap() error {
	return ErrUnknownStrategy
}

// NewStrategyResolutionError creates a new StrategyResolutionError
func NewStrategyResolutionError(tag string) *StrategyResolutionError {
	return &StrategyResolutionError{Tag: tag}
}

// DownloadError represents a transport failure after every candidate URL
// (primary plus mirrors) was tried, or a blocked insecure redirect.
type DownloadError struct {
	URL   string
	Tried int // candidate URLs attempted, including the primary
	Err   error
}

func (e *DownloadError) Error() string {
	if e.Tried > 1 {
		return fmt.Sprintf("download failed for %s after trying %d URLs (all mirrors exhausted): %v", e.URL, e.Tried, e.Err)
	}
	return fmt.Sprintf("download failed for %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// NewDownloadError creates a new DownloadError
func NewDownloadError(url string, tried int, err error) *DownloadError {
	return &DownloadError{
		URL:   url,
		Tried: tried,
		Err:   err,
	}
}

// ToolMissingError reports a required local tool that is not installed.
type ToolMissingError struct {
	Tool string
	Err  error
}

func (e *ToolMissingError) Error() string {
	return fmt.Sprintf("required tool %q is not installed: %v", e.Tool, e.Err)
}

func (e *ToolMissingError) Unwrap() error {
	return e.Err
}

// NewToolMissingError creates a new ToolMissingError
func NewToolMissingError(tool string, err error) *ToolMissingError {
	return &ToolMissingError{
		Tool: tool,
		Err:  err,
	}
}

// TagMismatchError reports a post-fetch integrity failure: the repository
// resolved to a revision other than the one pinned for the requested tag.
type TagMismatchError struct {
	Ref      string
	Expected string
	Actual   string
}

func (e *TagMismatchError) Error() string {
	return fmt.Sprintf("tag %q was expected at revision %s but resolved to %s", e.Ref, e.Expected, e.Actual)
}

// NewTagMismatchError creates a new TagMismatchError
func NewTagMismatchError(ref, expected, actual string) *TagMismatchError {
	return &TagMismatchError{
		Ref:      ref,
		Expected: expected,
		Actual:   actual,
	}
}

// TimeoutError reports an operation that exceeded its deadline. It is
// distinguishable from a generic transport failure.
type TimeoutError struct {
	Op  string
	URL string
	Err error
}

func (e *TimeoutError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s timed out for %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// Is reports ErrTimeout so callers can match without the concrete type.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// NewTimeoutError creates a new TimeoutError
func NewTimeoutError(op, url string, err error) *TimeoutError {
	return &TimeoutError{
		Op:  op,
		URL: url,
		Err: err,
	}
}

// EmptyArchiveError reports a staged archive that produced no entries.
type EmptyArchiveError struct {
	Path string
}

func (e *EmptyArchiveError) Error() string {
	return fmt.Sprintf("empty archive: %s", e.Path)
}

// NewEmptyArchiveError creates a new EmptyArchiveError
func NewEmptyArchiveError(path string) *EmptyArchiveError {
	return &EmptyArchiveError{Path: path}
}

// MirrorResolutionError reports an unparsable mirror-list endpoint.
type MirrorResolutionError struct {
	URL string
	Err error
}

func (e *MirrorResolutionError) Error() string {
	return fmt.Sprintf("mirror list at %s could not be resolved: %v", e.URL, e.Err)
}

func (e *MirrorResolutionError) Unwrap() error {
	return e.Err
}

// NewMirrorResolutionError creates a new MirrorResolutionError
func NewMirrorResolutionError(url string, err error) *MirrorResolutionError {
	return &MirrorResolutionError{
		URL: url,
		Err: err,
	}
}

// LockHeldError reports a download lock owned by another process.
type LockHeldError struct {
	Path string
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("a download for %s is already in progress", e.Path)
}

func (e *LockHeldError) Unwrap() error {
	return ErrLockHeld
}

// NewLockHeldError creates a new LockHeldError
func NewLockHeldError(path string) *LockHeldError {
	return &LockHeldError{Path: path}
}

// CommandError represents a subprocess that exited non-zero.
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("command %q failed: %v: %s", e.Command, e.Err, e.Stderr)
	}
	return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new CommandError
func NewCommandError(command, stderr string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Stderr:  stderr,
		Err:     err,
	}
}

// IsTimeout checks whether err carries a deadline expiry anywhere in its
// chain, including context errors surfaced by transports and subprocesses.
func IsTimeout(err error) bool {
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// RetryableError marks a failure that may succeed on another attempt, such
// as rate limiting or a transient upstream error.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError wraps err as retryable
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err}
}

// IsRetryable checks whether err was marked retryable
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
