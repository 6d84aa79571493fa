package app

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/goferpkg/gofer/internal/domain"
)

// ToolCheck reports the availability of one system tool.
type ToolCheck struct {
	Tool    string
	Path    string
	Version string // first line of the tool's version output
	Warning string
	Err     error
}

// Ok reports whether the tool is installed and answered a version probe.
func (c ToolCheck) Ok() bool { return c.Err == nil }

// toolProbes lists the tools strategies shell out to, with the arguments
// that print a version string.
var toolProbes = []struct {
	tool string
	args []string
}{
	{"curl", []string{"--version"}},
	{"git", []string{"--version"}},
	{"svn", []string{"--version", "--quiet"}},
	{"hg", []string{"version", "-q"}},
	{"bzr", []string{"--version"}},
	{"cvs", []string{"--version"}},
	{"fossil", []string{"version"}},
}

var (
	toolVersionPattern = regexp.MustCompile(`\d+(?:\.\d+)+`)

	// Sparse checkouts need cone mode, which git grew in 2.25.
	minSparseGit = goversion.Must(goversion.NewVersion("2.25"))
)

// Doctor probes each system tool the strategies shell out to and reports
// what it found. A missing tool is not fatal; it only matters for the
// strategies a descriptor actually selects.
func (o *Orchestrator) Doctor(ctx context.Context) []ToolCheck {
	checks := make([]ToolCheck, 0, len(toolProbes))
	for _, probe := range toolProbes {
		checks = append(checks, o.checkTool(ctx, probe.tool, probe.args))
	}
	return checks
}

func (o *Orchestrator) checkTool(ctx context.Context, tool string, args []string) ToolCheck {
	check := ToolCheck{Tool: tool}

	path, err := o.deps.Runner.LookPath(tool)
	if err != nil {
		check.Err = err
		return check
	}
	check.Path = path

	result, err := o.deps.Runner.Run(ctx, domain.Command{Name: tool, Args: args})
	if err != nil {
		check.Err = err
		return check
	}
	check.Version = firstLine(result.Stdout)

	if tool == "git" {
		if v, err := parseToolVersion(check.Version); err == nil && v.LessThan(minSparseGit) {
			check.Warning = fmt.Sprintf("git %s cannot do sparse checkouts (needs >= %s)", v, minSparseGit)
		}
	}
	return check
}

func parseToolVersion(line string) (*goversion.Version, error) {
	match := toolVersionPattern.FindString(line)
	if match == "" {
		return nil, fmt.Errorf("no version in %q", line)
	}
	return goversion.NewVersion(match)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
