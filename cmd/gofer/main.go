package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goferpkg/gofer/internal/app"
	"github.com/goferpkg/gofer/internal/config"
	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/manifest"
	"github.com/goferpkg/gofer/pkg/version"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gofer",
	Short: "Fetch and cache source artifacts from HTTP and VCS origins",
	Long: `Gofer downloads source artifacts (tarballs, registry blobs, repository
checkouts) into a shared cache, picking the right download strategy from
the URL or from an explicit strategy tag.

Examples:
  gofer fetch https://example.com/pkg-1.0.tar.gz --name pkg --version 1.0
  gofer fetch https://github.com/golang/go.git --head --only-path src
  gofer fetch --manifest resources.yaml --continue-on-error
  gofer stage https://example.com/pkg-1.0.tar.gz --dest ./build
  gofer resolve svn+https://svn.example.org/project
  gofer clear-cache --all`,
	Version: version.Short(),
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.config/gofer/config.yaml)")
	rootCmd.PersistentFlags().String("cache-dir", "", "Download cache directory")
	rootCmd.PersistentFlags().IntP("concurrency", "j", config.DefaultConcurrency, "Parallel downloads for manifest fetches")
	rootCmd.PersistentFlags().Duration("timeout", config.DefaultHTTPTimeout, "Overall HTTP transfer timeout")
	rootCmd.PersistentFlags().String("github-token", "", "GitHub API token for private repositories")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress progress and informational output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("cache_dir", rootCmd.PersistentFlags().Lookup("cache-dir"))
	_ = viper.BindPFlag("concurrency", rootCmd.PersistentFlags().Lookup("concurrency"))
	_ = viper.BindPFlag("http.timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("github.token", rootCmd.PersistentFlags().Lookup("github-token"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))

	addDescriptorFlags(fetchCmd)
	fetchCmd.Flags().String("manifest", "", "Fetch every resource listed in a manifest file")
	fetchCmd.Flags().Bool("continue-on-error", false, "Keep fetching remaining manifest resources after one fails")
	fetchCmd.Flags().Bool("wait-lock", false, "Wait for a competing download of the same resource instead of failing")

	addDescriptorFlags(stageCmd)
	stageCmd.Flags().String("dest", ".", "Directory to stage the artifact into")
	stageCmd.Flags().Bool("wait-lock", false, "Wait for a competing download of the same resource instead of failing")

	addDescriptorFlags(clearCacheCmd)
	clearCacheCmd.Flags().Bool("all", false, "Remove every entry in the cache")

	resolveCmd.Flags().StringP("strategy", "s", "", "Strategy tag to validate instead of detecting one")

	// Add subcommands
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(clearCacheCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// addDescriptorFlags registers the flags shared by every command that
// builds a resource descriptor from the command line.
func addDescriptorFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("name", "", "Resource name used in cache entry naming (default derives from the URL)")
	f.String("version", "", "Resource version used in cache entry naming")
	f.Bool("head", false, "Track the repository tip instead of a fixed version")
	f.StringP("strategy", "s", "", "Force a download strategy instead of detecting one from the URL")
	f.StringArray("mirror", nil, "Alternate URL serving the same artifact (repeatable)")
	f.StringArray("header", nil, "Extra request header as 'Name: value' (repeatable)")
	f.StringArray("cookie", nil, "Request cookie as name=value (repeatable)")
	f.String("referer", "", "Referer header to send")
	f.String("user", "", "Credentials as user:password for basic auth")
	f.StringArray("post-data", nil, "POST payload field as key=value (repeatable)")
	f.Bool("post-json", false, "Send --post-data fields as a JSON object instead of a form")
	f.String("tag", "", "Tag to check out")
	f.String("branch", "", "Branch to check out")
	f.String("revision", "", "Revision to check out")
	f.StringArray("only-path", nil, "Restrict git checkouts to this path prefix (repeatable)")
	f.Bool("submodules", false, "Also clone git submodules")
	f.Bool("trust-cert", false, "Accept an untrusted server certificate (svn)")
	f.String("module", "", "Module name override (cvs)")
}

// descriptorFromFlags turns the descriptor flag set plus a URL argument into
// a descriptor and the strategy tag to resolve it with.
func descriptorFromFlags(cmd *cobra.Command, url string) (*domain.Descriptor, string, error) {
	f := cmd.Flags()

	name, _ := f.GetString("name")
	rawVersion, _ := f.GetString("version")
	head, _ := f.GetBool("head")
	strategyTag, _ := f.GetString("strategy")
	mirrors, _ := f.GetStringArray("mirror")
	headers, _ := f.GetStringArray("header")
	rawCookies, _ := f.GetStringArray("cookie")
	referer, _ := f.GetString("referer")
	user, _ := f.GetString("user")
	rawData, _ := f.GetStringArray("post-data")
	dataJSON, _ := f.GetBool("post-json")
	tag, _ := f.GetString("tag")
	branch, _ := f.GetString("branch")
	revision, _ := f.GetString("revision")
	onlyPaths, _ := f.GetStringArray("only-path")
	submodules, _ := f.GetBool("submodules")
	trustCert, _ := f.GetBool("trust-cert")
	module, _ := f.GetString("module")

	cookies, err := parsePairs(rawCookies)
	if err != nil {
		return nil, "", fmt.Errorf("invalid --cookie: %w", err)
	}
	data, err := parsePairs(rawData)
	if err != nil {
		return nil, "", fmt.Errorf("invalid --post-data: %w", err)
	}

	var ver *domain.Version
	switch {
	case head || strings.EqualFold(rawVersion, "HEAD"):
		ver = domain.NewHeadVersion()
	case rawVersion != "":
		ver = domain.NewVersion(rawVersion)
	}

	desc := &domain.Descriptor{
		URL:     url,
		Name:    name,
		Version: ver,
		Meta: domain.Meta{
			Mirrors:    mirrors,
			Cookies:    cookies,
			Referer:    referer,
			User:       user,
			Headers:    headers,
			Data:       data,
			DataJSON:   dataJSON,
			Tag:        tag,
			Branch:     branch,
			Revision:   revision,
			Submodules: submodules,
			OnlyPaths:  onlyPaths,
			TrustCert:  trustCert,
			Module:     module,
		},
	}
	return desc, strategyTag, nil
}

// parsePairs parses repeatable key=value flag values into a map.
func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		m[key] = value
	}
	return m, nil
}

// manifestRequests converts manifest resources into fetch requests.
func manifestRequests(resources []manifest.Resource) []app.Request {
	reqs := make([]app.Request, len(resources))
	for i, r := range resources {
		reqs[i] = app.Request{Descriptor: r.Descriptor(), Tag: r.Strategy}
	}
	return reqs
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "Interrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Download a resource into the cache",
	Long: `Fetch downloads a single URL, or every resource in a manifest, into the
download cache. Artifacts that are already cached are revalidated against
the origin instead of being downloaded again.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFetch,
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	manifestPath, _ := cmd.Flags().GetString("manifest")
	if manifestPath == "" && len(args) == 0 {
		return cmd.Help()
	}

	var mcfg *manifest.Config
	if manifestPath != "" {
		mcfg, err = manifest.Load(manifestPath)
		if err != nil {
			return err
		}
		if mcfg.Options.Concurrency > 0 {
			cfg.Concurrency = mcfg.Options.Concurrency
		}
	}

	waitLock, _ := cmd.Flags().GetBool("wait-lock")

	orch, err := app.NewOrchestrator(app.OrchestratorOptions{
		Config:      cfg,
		Verbose:     verbose,
		WaitForLock: waitLock,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	defer orch.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if mcfg != nil {
		continueOnError := mcfg.Options.ContinueOnError
		if cmd.Flags().Changed("continue-on-error") {
			continueOnError, _ = cmd.Flags().GetBool("continue-on-error")
		}
		return orch.FetchAll(ctx, manifestRequests(mcfg.Resources), continueOnError)
	}

	desc, tag, err := descriptorFromFlags(cmd, args[0])
	if err != nil {
		return err
	}

	strategy, err := orch.Fetch(ctx, app.Request{Descriptor: desc, Tag: tag})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), strategy.CachedLocation())
	return nil
}

var stageCmd = &cobra.Command{
	Use:   "stage [url]",
	Short: "Download a resource and unpack it into a directory",
	Long: `Stage fetches a resource (or reuses the cached copy) and materializes it
into the destination directory: archives are unpacked, repository checkouts
are copied out of the cache, and plain files are copied verbatim. The
resulting working directory is printed on success.`,
	Args: cobra.ExactArgs(1),
	RunE: runStage,
}

func runStage(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	desc, tag, err := descriptorFromFlags(cmd, args[0])
	if err != nil {
		return err
	}

	dest, _ := cmd.Flags().GetString("dest")
	waitLock, _ := cmd.Flags().GetBool("wait-lock")

	orch, err := app.NewOrchestrator(app.OrchestratorOptions{
		Config:      cfg,
		Verbose:     verbose,
		WaitForLock: waitLock,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	defer orch.Close()

	ctx, cancel := signalContext()
	defer cancel()

	workdir, err := orch.Stage(ctx, app.Request{Descriptor: desc, Tag: tag}, dest)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), workdir)
	return nil
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache [url]",
	Short: "Remove cached downloads",
	Long: `Clear-cache removes the cache entry for one URL, or the whole download
cache with --all. Pass the same --name, --version, and --strategy flags the
resource was fetched with so the entry resolves to the same cache path.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClearCache,
}

func runClearCache(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	if !all && len(args) == 0 {
		return fmt.Errorf("a url argument or --all is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	orch, err := app.NewOrchestrator(app.OrchestratorOptions{
		Config:  cfg,
		Verbose: verbose,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	defer orch.Close()

	if all {
		return orch.ClearAll()
	}

	desc, tag, err := descriptorFromFlags(cmd, args[0])
	if err != nil {
		return err
	}
	return orch.ClearCache(app.Request{Descriptor: desc, Tag: tag})
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [url]",
	Short: "Print the download strategy a URL resolves to",
	Long: `Resolve prints the name of the download strategy that would fetch the
given URL, either detected from the URL itself or forced with --strategy.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tag, _ := cmd.Flags().GetString("strategy")
		strategy, err := app.ResolveStrategy(args[0], tag)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(strategy))
		return nil
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the system tools download strategies shell out to",
	Long:  "Verifies that the version control tools used by download strategies are installed and recent enough.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Quiet = true

		orch, err := app.NewOrchestrator(app.OrchestratorOptions{Config: cfg})
		if err != nil {
			return fmt.Errorf("failed to create orchestrator: %w", err)
		}
		defer orch.Close()

		ctx, cancel := signalContext()
		defer cancel()

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "Checking system tools...")

		missing := 0
		for _, check := range orch.Doctor(ctx) {
			fmt.Fprintf(w, "  %s: ", check.Tool)
			switch {
			case !check.Ok():
				fmt.Fprintln(w, "NOT FOUND")
				missing++
			case check.Warning != "":
				fmt.Fprintf(w, "WARN %s (%s)\n", check.Version, check.Warning)
			default:
				fmt.Fprintf(w, "OK %s (%s)\n", check.Version, check.Path)
			}
		}

		fmt.Fprintln(w)
		if missing == 0 {
			fmt.Fprintln(w, "All tools present.")
		} else {
			fmt.Fprintf(w, "%d tool(s) missing. Only the strategies that shell out to them are affected.\n", missing)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Full())
	},
}
