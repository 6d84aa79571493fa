package app

import (
	"regexp"

	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/strategies"
	"github.com/goferpkg/gofer/internal/strategies/vcs"
)

// StrategyType names a concrete download strategy.
type StrategyType string

// Available strategy types
const (
	StrategyCurl       StrategyType = "curl"
	StrategySystemCurl StrategyType = "system-curl"
	StrategyRegistry   StrategyType = "registry"
	StrategyApache     StrategyType = "apache"
	StrategyPost       StrategyType = "post"
	StrategyNoUnzip    StrategyType = "nounzip"
	StrategyGit        StrategyType = "git"
	StrategyGithub     StrategyType = "github"
	StrategySvn        StrategyType = "svn"
	StrategyHg         StrategyType = "hg"
	StrategyBzr        StrategyType = "bzr"
	StrategyCvs        StrategyType = "cvs"
	StrategyFossil     StrategyType = "fossil"
)

// urlRules maps URL shapes to strategies; the first match wins. Order
// matters: a GitHub clone URL must win over the generic .git suffix, and
// an OCI blob over plain HTTPS.
var urlRules = []struct {
	pattern  *regexp.Regexp
	strategy StrategyType
}{
	{regexp.MustCompile(`^https?://ghcr\.io/v2/.+/blobs/sha256:[0-9a-f]{64}$`), StrategyRegistry},
	{regexp.MustCompile(`^https?://github\.com/[^/]+/[^/]+\.git$`), StrategyGithub},
	{regexp.MustCompile(`^https?://.+\.git$`), StrategyGit},
	{regexp.MustCompile(`^git://`), StrategyGit},
	{regexp.MustCompile(`^git@`), StrategyGit},
	{regexp.MustCompile(`^ssh://git@`), StrategyGit},
	{regexp.MustCompile(`^https?://www\.apache\.org/dyn/closer\.(cgi|lua)`), StrategyApache},
	{regexp.MustCompile(`^svn://`), StrategySvn},
	{regexp.MustCompile(`^svn\+https?://`), StrategySvn},
	{regexp.MustCompile(`^https?://svn\.[^/]+`), StrategySvn},
	{regexp.MustCompile(`^https?://[^/]*apache\.org/repos/asf`), StrategySvn},
	{regexp.MustCompile(`^cvs://`), StrategyCvs},
	{regexp.MustCompile(`^hg://`), StrategyHg},
	{regexp.MustCompile(`^https?://hg\.[^/]+`), StrategyHg},
	{regexp.MustCompile(`^https?://[^/]+/hgweb/`), StrategyHg},
	{regexp.MustCompile(`^bzr://`), StrategyBzr},
	{regexp.MustCompile(`^fossil://`), StrategyFossil},
}

// DetectStrategy picks a strategy from the URL shape alone. It always
// returns a usable strategy; anything unrecognized is fetched over HTTP.
func DetectStrategy(url string) StrategyType {
	for _, rule := range urlRules {
		if rule.pattern.MatchString(url) {
			return rule.strategy
		}
	}
	return StrategyCurl
}

// ResolveStrategy picks the strategy for a descriptor. An explicit tag
// wins over URL inspection and may name any strategy; the strategy names
// double as the tags descriptors have historically carried (git, hg, bzr,
// svn, cvs, fossil, curl, system-curl, post, nounzip). Unknown tags fail.
func ResolveStrategy(url, tag string) (StrategyType, error) {
	if tag == "" {
		return DetectStrategy(url), nil
	}
	t := StrategyType(tag)
	if !IsValidStrategy(t) {
		return "", domain.NewStrategyResolutionError(tag)
	}
	return t, nil
}

// IsValidStrategy reports whether t names a known strategy.
func IsValidStrategy(t StrategyType) bool {
	switch t {
	case StrategyCurl, StrategySystemCurl, StrategyRegistry, StrategyApache,
		StrategyPost, StrategyNoUnzip, StrategyGit, StrategyGithub,
		StrategySvn, StrategyHg, StrategyBzr, StrategyCvs, StrategyFossil:
		return true
	}
	return false
}

// AllStrategyTypes lists every strategy type in a stable order.
func AllStrategyTypes() []StrategyType {
	return []StrategyType{
		StrategyCurl, StrategySystemCurl, StrategyRegistry, StrategyApache,
		StrategyPost, StrategyNoUnzip, StrategyGit, StrategyGithub,
		StrategySvn, StrategyHg, StrategyBzr, StrategyCvs, StrategyFossil,
	}
}

// CreateStrategy instantiates the strategy bound to one descriptor.
func CreateStrategy(t StrategyType, desc *domain.Descriptor, deps *strategies.Dependencies) (strategies.Strategy, error) {
	switch t {
	case StrategyCurl:
		return strategies.NewCurlStrategy(desc, deps), nil
	case StrategySystemCurl:
		return strategies.NewSystemCurlStrategy(desc, deps), nil
	case StrategyRegistry:
		return strategies.NewRegistryStrategy(desc, deps), nil
	case StrategyApache:
		return strategies.NewApacheStrategy(desc, deps), nil
	case StrategyPost:
		return strategies.NewPostStrategy(desc, deps), nil
	case StrategyNoUnzip:
		return strategies.NewNoUnzipStrategy(desc, deps), nil
	case StrategyGit:
		return vcs.NewGitStrategy(desc, deps), nil
	case StrategyGithub:
		return vcs.NewGithubStrategy(desc, deps), nil
	case StrategySvn:
		return vcs.NewSvnStrategy(desc, deps), nil
	case StrategyHg:
		return vcs.NewHgStrategy(desc, deps), nil
	case StrategyBzr:
		return vcs.NewBzrStrategy(desc, deps), nil
	case StrategyCvs:
		return vcs.NewCvsStrategy(desc, deps), nil
	case StrategyFossil:
		return vcs.NewFossilStrategy(desc, deps), nil
	default:
		return nil, domain.NewStrategyResolutionError(string(t))
	}
}
