package strategies

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goferpkg/gofer/internal/domain"
)

var _ Strategy = (*SystemCurlStrategy)(nil)

// SystemCurlStrategy transfers with the local curl binary instead of the
// built-in HTTP client, for origins that depend on curl-specific transfer
// behavior. Probing, caching, and mirror fallback stay with the engine.
type SystemCurlStrategy struct {
	*CurlStrategy
}

// NewSystemCurlStrategy creates the curl-binary download strategy.
func NewSystemCurlStrategy(desc *domain.Descriptor, deps *Dependencies) *SystemCurlStrategy {
	s := NewCurlStrategy(desc, deps)
	strategy := &SystemCurlStrategy{CurlStrategy: s}
	s.transfer = strategy.curlDownload
	return strategy
}

func (s *SystemCurlStrategy) Name() string { return "system-curl" }

func (s *SystemCurlStrategy) curlDownload(ctx context.Context, rawURL, dest string, opts domain.DownloadOptions) error {
	curl, err := s.Deps.Runner.LookPath("curl")
	if err != nil {
		return err
	}

	cmd := domain.Command{Name: curl, Args: s.curlArgs(rawURL, dest, opts)}
	if _, err := s.Deps.Runner.Run(ctx, cmd); err != nil {
		return err
	}
	return nil
}

func (s *SystemCurlStrategy) curlArgs(rawURL, dest string, opts domain.DownloadOptions) []string {
	args := []string{
		"--fail",
		"--location",
		"--remote-time",
		"--output", dest,
	}
	if opts.Resume {
		args = append(args, "--continue-at", "-")
	}
	if opts.Quiet {
		args = append(args, "--silent")
	} else {
		args = append(args, "--progress-bar")
	}
	if ua := s.Deps.Config.HTTP.UserAgent; ua != "" {
		args = append(args, "--user-agent", ua)
	}
	if timeout := s.Deps.Config.HTTP.ConnectTimeout; timeout > 0 {
		args = append(args, "--connect-timeout", strconv.Itoa(int(timeout.Seconds())))
	}
	if opts.Referer != "" {
		args = append(args, "--referer", opts.Referer)
	}

	names := make([]string, 0, len(opts.Headers))
	for name := range opts.Headers {
		if opts.StripAuth && strings.EqualFold(name, "Authorization") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		args = append(args, "--header", fmt.Sprintf("%s: %s", name, opts.Headers[name]))
	}

	if len(opts.Cookies) > 0 && !opts.StripAuth {
		pairs := make([]string, 0, len(opts.Cookies))
		for name, value := range opts.Cookies {
			pairs = append(pairs, name+"="+value)
		}
		sort.Strings(pairs)
		args = append(args, "--cookie", strings.Join(pairs, "; "))
	}
	if opts.User != "" && !opts.StripAuth {
		args = append(args, "--user", opts.User)
	}

	return append(args, rawURL)
}
