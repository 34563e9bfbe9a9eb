package clicommon

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/clintharrison/gempm/pkg/config"
	"github.com/clintharrison/gempm/pkg/installer"
	"github.com/clintharrison/gempm/pkg/repository"
	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/sourceindex"
	"github.com/clintharrison/gempm/pkg/state"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

const (
	FlagConfig     = "config"
	FlagInstallDir = "install-dir"
	FlagCacheDir   = "cache-dir"
	FlagRepo       = "repo"
	FlagVerbose    = "verbose"
)

// AddGlobalFlags registers the flags every command understands on cmd.
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String(FlagConfig, "", "Config file (default $GEMPM_HOME/config.toml)")
	cmd.PersistentFlags().String(FlagInstallDir, "", "Installation directory")
	cmd.PersistentFlags().String(FlagCacheDir, "", "Directory for cached repository listings")
	cmd.PersistentFlags().StringArrayP(FlagRepo, "r", []string{},
		"Repository URL(s) or .gem directories to use (can be specified multiple times)")
	cmd.PersistentFlags().BoolP(FlagVerbose, "V", false, "Enable debug logging")
}

// LoadConfig reads the config file and applies any global flags given on
// the command line.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	path, err := flags.GetString(FlagConfig)
	if err != nil {
		return nil, errors.Annotate(err, "invalid config flag")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flags.Changed(FlagInstallDir) {
		if cfg.InstallDir, err = flags.GetString(FlagInstallDir); err != nil {
			return nil, errors.Annotate(err, "invalid install-dir flag")
		}
	}
	if flags.Changed(FlagCacheDir) {
		if cfg.CacheDir, err = flags.GetString(FlagCacheDir); err != nil {
			return nil, errors.Annotate(err, "invalid cache-dir flag")
		}
	}
	if flags.Changed(FlagRepo) {
		if cfg.Sources, err = flags.GetStringArray(FlagRepo); err != nil {
			return nil, errors.Annotate(err, "invalid repo flag")
		}
	}
	if flags.Changed(FlagVerbose) {
		if cfg.Verbose, err = flags.GetBool(FlagVerbose); err != nil {
			return nil, errors.Annotate(err, "invalid verbose flag")
		}
	}
	return cfg, nil
}

// Env is what a command needs to work with packages: the effective config,
// the installation directory and, when sources are configured, the
// repositories.
type Env struct {
	Config *config.Config
	Layout *state.Layout
	// Repo is nil when no sources are configured.
	Repo *repository.MultiRepository

	cache *repository.ListingCache
}

// NewEnv loads the config and opens the repositories. Close must be called
// when done.
func NewEnv(cmd *cobra.Command) (*Env, error) {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	env := &Env{
		Config: cfg,
		Layout: state.NewLayout(cfg.InstallDir, slog.Default()),
	}
	if len(cfg.Sources) == 0 {
		slog.Debug("no repositories configured")
		return env, nil
	}

	opts := []repository.HTTPOption{
		repository.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
	}
	if slices.ContainsFunc(cfg.Sources, isRemote) {
		cache, err := repository.OpenListingCache(cfg.CacheDir, slog.Default())
		if err != nil {
			// listings can still be fetched, just not cached
			slog.Warn("listing cache unavailable", "dir", cfg.CacheDir, "error", err)
		} else {
			env.cache = cache
			opts = append(opts, repository.WithListingCache(cache, cfg.CacheTTL))
		}
	}
	slog.Debug("using packages from repositories", "sources", cfg.Sources)
	env.Repo, err = repository.NewFromURLs(cfg.Sources, opts...)
	if err != nil {
		_ = env.Close()
		fmt.Fprintf(cmd.OutOrStderr(), "ERROR: Unable to create repositories:\n%v\n", err) //nolint:errcheck
		return nil, errors.Wrap(err, "failed to create repository from URLs")
	}
	return env, nil
}

func isRemote(source string) bool {
	return strings.Contains(source, "://")
}

func (e *Env) Close() error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Close()
}

// RequireRepo returns the repositories, or an error naming how to configure
// them.
func (e *Env) RequireRepo() (*repository.MultiRepository, error) {
	if e.Repo == nil {
		return nil, errors.New("no repositories configured; pass --repo or set sources in the config file")
	}
	return e.Repo, nil
}

// Installer builds an installer writing progress to the command's output.
// Extracted files are listed as well when verbose.
func (e *Env) Installer(cmd *cobra.Command) *installer.Installer {
	opts := []installer.Option{
		installer.WithOutput(cmd.OutOrStdout()),
		installer.WithLockTimeout(e.Config.LockTimeout),
	}
	if e.Config.Verbose {
		opts = append(opts, installer.WithFileListing(cmd.OutOrStderr()))
	}
	var repo repository.Repository
	if e.Repo != nil {
		repo = e.Repo
	}
	return installer.New(e.Layout, repo, opts...)
}

// Source selects which packages a command works on.
type Source int

const (
	SourceLocal Source = iota
	SourceRemote
	SourceBoth
)

func (s Source) String() string {
	switch s {
	case SourceRemote:
		return "remote"
	case SourceBoth:
		return "both"
	default:
		return "local"
	}
}

// AddSourceFlags adds --local, --remote and --both; def is used when none
// is given.
func AddSourceFlags(cmd *cobra.Command, def Source) {
	usage := func(s Source, text string) string {
		if s == def {
			return text + " (default)"
		}
		return text
	}
	cmd.Flags().BoolP("local", "l", false, usage(SourceLocal, "Use installed packages"))
	cmd.Flags().Bool("remote", false, usage(SourceRemote, "Use packages available from repositories"))
	cmd.Flags().BoolP("both", "b", false, usage(SourceBoth, "Use installed and available packages"))
	cmd.MarkFlagsMutuallyExclusive("local", "remote", "both")
}

// GetSource reads the flags added by AddSourceFlags.
func GetSource(cmd *cobra.Command, def Source) (Source, error) {
	for _, f := range []struct {
		name string
		src  Source
	}{{"local", SourceLocal}, {"remote", SourceRemote}, {"both", SourceBoth}} {
		on, err := cmd.Flags().GetBool(f.name)
		if err != nil {
			return def, errors.Annotatef(err, "invalid %s flag", f.name)
		}
		if on {
			return f.src, nil
		}
	}
	return def, nil
}

// Index loads the installed index, the remote one, or both merged with
// installed specs taking precedence.
func (e *Env) Index(cmd *cobra.Command, src Source) (*sourceindex.Index, error) {
	if src == SourceLocal {
		return e.Layout.Installed(cmd.Context())
	}
	repo, err := e.RequireRepo()
	if err != nil {
		return nil, err
	}
	remote, err := repository.Index(cmd.Context(), repo, slog.Default())
	if err != nil || src == SourceRemote {
		return remote, err
	}
	installed, err := e.Layout.Installed(cmd.Context())
	if err != nil {
		return nil, err
	}
	return sourceindex.Merge(installed, remote), nil
}

// PrintSpecList prints specs grouped by name, newest version first:
//
//	rake (0.9.0, 0.8.0)
//
// With details the summary and authors follow each name.
func PrintSpecList(w io.Writer, specs []*manifest.Spec, details bool) {
	for i := 0; i < len(specs); {
		j := i
		for j < len(specs) && specs[j].Name == specs[i].Name {
			j++
		}
		group := specs[i:j]
		versions := make([]string, 0, len(group))
		for k := len(group) - 1; k >= 0; k-- {
			v := group[k].Version.String()
			if p := group[k].Platform; p != "" && p != manifest.DefaultPlatform {
				v += " " + p
			}
			versions = append(versions, v)
		}
		fmt.Fprintf(w, "%s (%s)\n", specs[i].Name, strings.Join(versions, ", ")) //nolint:errcheck
		if details {
			latest := group[len(group)-1]
			if len(latest.Authors) > 0 {
				fmt.Fprintf(w, "    Author: %s\n", strings.Join(latest.Authors, ", ")) //nolint:errcheck
			}
			if latest.Homepage != "" {
				fmt.Fprintf(w, "    Homepage: %s\n", latest.Homepage) //nolint:errcheck
			}
			if latest.Summary != "" {
				fmt.Fprintf(w, "\n    %s\n", latest.Summary) //nolint:errcheck
			}
			fmt.Fprintln(w) //nolint:errcheck
		}
		i = j
	}
}
