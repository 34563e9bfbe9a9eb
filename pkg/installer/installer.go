// Package installer installs and removes packages in an installation
// directory. Every mutating operation holds the directory lock, plans against
// a snapshot of the installed specs, and checks the plan again right before
// touching the filesystem.
package installer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/clintharrison/gempm/pkg/gempkg"
	"github.com/clintharrison/gempm/pkg/repository"
	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/resolver"
	"github.com/clintharrison/gempm/pkg/sourceindex"
	"github.com/clintharrison/gempm/pkg/state"
	"github.com/pingcap/errors"
)

type Installer struct {
	layout      *state.Layout
	repo        repository.Repository
	logger      *slog.Logger
	out         io.Writer
	listing     io.Writer
	lockTimeout time.Duration
}

type Option func(*Installer)

func WithLogger(logger *slog.Logger) Option {
	return func(i *Installer) {
		i.logger = logger
	}
}

// WithOutput sets where progress messages ("Successfully installed ...") go.
func WithOutput(w io.Writer) Option {
	return func(i *Installer) {
		i.out = w
	}
}

// WithFileListing prints every extracted file to w.
func WithFileListing(w io.Writer) Option {
	return func(i *Installer) {
		i.listing = w
	}
}

// WithLockTimeout bounds how long to wait for another process holding the
// installation directory lock.
func WithLockTimeout(d time.Duration) Option {
	return func(i *Installer) {
		i.lockTimeout = d
	}
}

// New creates an Installer for layout. repo may be nil, in which case only
// archives given as local files can be installed.
func New(layout *state.Layout, repo repository.Repository, opts ...Option) *Installer {
	i := &Installer{
		layout:      layout,
		repo:        repo,
		logger:      slog.Default(),
		out:         io.Discard,
		listing:     io.Discard,
		lockTimeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

type InstallOptions struct {
	// LocalFiles are archive paths to install from. Each is requested at its
	// exact version and may satisfy dependencies of the others.
	LocalFiles         []string
	DryRun             bool
	Force              bool
	IgnoreDependencies bool
}

// Plan is the outcome of resolving an install request.
type Plan struct {
	// Install holds the specs to install, dependencies first.
	Install []*manifest.Spec
	// Satisfied holds already installed specs the request relies on.
	Satisfied []*manifest.Spec

	localPaths map[string]string
}

func (p *Plan) String() string {
	if len(p.Install) == 0 {
		return "nothing to install"
	}
	names := make([]string, len(p.Install))
	for i, s := range p.Install {
		names[i] = s.FullName()
	}
	return "install " + strings.Join(names, ", ")
}

// Plan resolves deps, plus any local files, against the installed and
// available specs without changing anything.
func (i *Installer) Plan(ctx context.Context, deps []manifest.Dependency, opts InstallOptions) (*Plan, error) {
	installed, err := i.layout.Installed(ctx)
	if err != nil {
		return nil, err
	}
	return i.plan(ctx, installed, deps, opts)
}

func (i *Installer) plan(
	ctx context.Context, installed *sourceindex.Index, deps []manifest.Dependency, opts InstallOptions,
) (*Plan, error) {
	plan := &Plan{localPaths: map[string]string{}}

	var extra []*manifest.Spec
	for _, f := range opts.LocalFiles {
		spec, err := gempkg.ReadSpec(f)
		if err != nil {
			return nil, errors.Wrapf(err, "gempkg.ReadSpec(%q)", f)
		}
		extra = append(extra, spec)
		plan.localPaths[spec.FullName()] = f
		deps = append(deps, manifest.Dependency{Name: spec.Name, Requirement: manifest.ExactRequirement(spec.Version)})
	}
	if len(deps) == 0 {
		return nil, errors.New("no packages given to install")
	}

	var available *sourceindex.Index
	if i.repo != nil {
		idx, err := repository.Index(ctx, i.repo, i.logger)
		if err != nil {
			return nil, err
		}
		i.logger.Debug("loaded available packages", "count", idx.Len())
		available = idx
	}

	resolveOpts := []resolver.ResolveOption{resolver.WithExtraSpecs(extra)}
	if !opts.Force {
		resolveOpts = append(resolveOpts, resolver.WithInstalled(installed.Specs()))
	}
	if opts.IgnoreDependencies {
		resolveOpts = append(resolveOpts, resolver.WithIgnoreDependencies())
	}
	r := resolver.NewResolver(available, resolver.WithResolverLogger(i.logger))
	resolved, err := r.Resolve(deps, resolveOpts...)
	if err != nil {
		return nil, err
	}

	toInstall := resolver.NewDependencyList(resolver.WithListLogger(i.logger))
	for _, s := range resolved {
		if _, ok := installed.Get(s.FullName()); ok && !opts.Force {
			plan.Satisfied = append(plan.Satisfied, s)
			continue
		}
		toInstall.Add(s)
	}
	plan.Install = toInstall.InstallOrder()
	return plan, nil
}

// Install resolves deps and installs everything the plan calls for. Unless
// dependencies are ignored, it refuses to install a spec whose dependencies
// would not all be present afterwards.
func (i *Installer) Install(ctx context.Context, deps []manifest.Dependency, opts InstallOptions) (*Plan, error) {
	unlock, err := i.layout.Lock(ctx, i.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock() //nolint:errcheck

	installed, err := i.layout.Installed(ctx)
	if err != nil {
		return nil, err
	}
	plan, err := i.plan(ctx, installed, deps, opts)
	if err != nil {
		return nil, err
	}

	if !opts.IgnoreDependencies {
		if err := i.verifyInstall(installed, plan); err != nil {
			return nil, err
		}
	}

	if opts.DryRun {
		for _, s := range plan.Install {
			fmt.Fprintf(i.out, "Would install %s\n", s.FullName()) //nolint:errcheck
		}
		return plan, nil
	}

	for _, s := range plan.Install {
		if err := i.installOne(ctx, s, plan.localPaths[s.FullName()]); err != nil {
			return nil, errors.Annotatef(err, "installing %s", s.FullName())
		}
		fmt.Fprintf(i.out, "Successfully installed %s\n", s.FullName()) //nolint:errcheck
	}
	if len(plan.Install) == 0 {
		fmt.Fprintln(i.out, "Nothing to install") //nolint:errcheck
	}
	return plan, nil
}

// verifyInstall checks that the installed set plus the plan is closed for
// every newly installed spec. Problems among specs that are already installed
// are not the plan's fault and are ignored.
func (i *Installer) verifyInstall(installed *sourceindex.Index, plan *Plan) error {
	after := resolver.NewDependencyList(resolver.WithListLogger(i.logger))
	after.Add(installed.Specs()...)
	after.Add(plan.Install...)
	if after.OK() {
		return nil
	}
	var unmet []resolver.Unmet
	for _, u := range after.Unsatisfied() {
		if slices.Contains(plan.Install, u.Spec) {
			unmet = append(unmet, u)
		}
	}
	if len(unmet) == 0 {
		i.logger.Warn("installed packages already have unsatisfied dependencies", "count", len(after.Unsatisfied()))
		return nil
	}
	return &resolver.UnsatisfiedDependencyError{Unmet: unmet}
}

func (i *Installer) installOne(ctx context.Context, spec *manifest.Spec, localPath string) error {
	archive := i.layout.CachePath(spec)
	if localPath != "" {
		archive = localPath
	} else {
		if i.repo == nil {
			return errors.Errorf("no repository to download %s from", spec.FullName())
		}
		if err := i.repo.Download(ctx, spec, archive, false); err != nil {
			return err
		}
	}

	pkg, err := gempkg.Open(archive)
	if err != nil {
		return errors.Wrapf(err, "gempkg.Open(%q)", archive)
	}
	defer pkg.Close() //nolint:errcheck
	if pkg.Spec.FullName() != spec.FullName() {
		return errors.Errorf("archive %s contains %s, expected %s", archive, pkg.Spec.FullName(), spec.FullName())
	}

	gemDir := i.layout.GemDir(spec)
	if err := os.RemoveAll(gemDir); err != nil {
		return errors.Wrapf(err, "os.RemoveAll(%q)", gemDir)
	}
	if err := pkg.ExtractAll(ctx, gemDir, false, i.listing); err != nil {
		return err
	}
	// the archive's own metadata carries the file manifest
	return i.layout.WriteSpec(pkg.Spec)
}

type UninstallOptions struct {
	// All removes every matching version instead of refusing when several
	// match.
	All                bool
	IgnoreDependencies bool
	DryRun             bool
}

// Uninstall removes the installed versions of name matching req. It returns
// the removed specs in removal order.
func (i *Installer) Uninstall(
	ctx context.Context, name string, req manifest.Requirement, opts UninstallOptions,
) ([]*manifest.Spec, error) {
	unlock, err := i.layout.Lock(ctx, i.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock() //nolint:errcheck

	installed, err := i.layout.Installed(ctx)
	if err != nil {
		return nil, err
	}
	candidates := installed.FindName(name, req)
	if len(candidates) == 0 {
		dep := manifest.Dependency{Name: name, Requirement: req}
		if req.IsAny() {
			return nil, &resolver.NotFoundError{FullName: name}
		}
		return nil, &resolver.NotFoundError{FullName: dep.String()}
	}
	if len(candidates) > 1 && !opts.All {
		return nil, &AmbiguousError{Name: name, Candidates: candidates}
	}

	return i.removeInOrder(ctx, candidates, opts.IgnoreDependencies, opts.DryRun, false)
}

// removeInOrder removes targets dependents first. Before each removal the
// installed set is loaded again and the removal re-checked. A refusal stops
// the run unless skipRefused is set, in which case the target is reported
// and left installed.
func (i *Installer) removeInOrder(
	ctx context.Context, targets []*manifest.Spec, ignoreDeps, dryRun, skipRefused bool,
) ([]*manifest.Spec, error) {
	order := resolver.NewDependencyList(resolver.WithListLogger(i.logger))
	order.Add(targets...)

	var simulated *resolver.DependencyList
	var removed []*manifest.Spec
	for _, target := range order.DependencyOrder() {
		current := simulated
		if current == nil {
			idx, err := i.layout.Installed(ctx)
			if err != nil {
				return removed, err
			}
			current = resolver.NewDependencyList(resolver.WithListLogger(i.logger))
			current.Add(idx.Specs()...)
			if dryRun {
				// nothing is removed for real, so track removals in memory
				simulated = current
			}
		}

		broken, err := current.Dependents(target.FullName())
		if resolver.IsNotFound(err) {
			i.logger.Warn("package disappeared before removal", "package", target.FullName())
			continue
		}
		if err != nil {
			return removed, err
		}
		if len(broken) > 0 && !ignoreDeps {
			refusal := &DependencyRemovalError{Spec: target, Dependents: broken}
			if !skipRefused {
				return removed, refusal
			}
			i.logger.Debug("skipping removal", "package", target.FullName(), "reason", refusal.Error())
			fmt.Fprintf(i.out, "Skipped %s: %s\n", target.FullName(), refusal.reason()) //nolint:errcheck
			continue
		}

		if dryRun {
			fmt.Fprintf(i.out, "Would remove %s\n", target.FullName()) //nolint:errcheck
			current.RemoveByName(target.FullName())
		} else {
			if err := i.layout.RemoveSpec(target); err != nil {
				return removed, errors.Annotatef(err, "removing %s", target.FullName())
			}
			fmt.Fprintf(i.out, "Successfully uninstalled %s\n", target.FullName()) //nolint:errcheck
		}
		removed = append(removed, target)
	}
	return removed, nil
}

// Cleanup removes every installed version that is not the newest of its
// package, limited to names when given. Versions something still depends on
// are skipped.
func (i *Installer) Cleanup(ctx context.Context, names []string, dryRun bool) ([]*manifest.Spec, error) {
	unlock, err := i.layout.Lock(ctx, i.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock() //nolint:errcheck

	installed, err := i.layout.Installed(ctx)
	if err != nil {
		return nil, err
	}
	latest := map[string]*manifest.Spec{}
	for _, s := range installed.Latest() {
		latest[s.Name] = s
	}
	var stale []*manifest.Spec
	for _, s := range installed.Specs() {
		if len(names) > 0 && !slices.Contains(names, s.Name) {
			continue
		}
		if latest[s.Name].FullName() != s.FullName() {
			stale = append(stale, s)
		}
	}
	if len(stale) == 0 {
		fmt.Fprintln(i.out, "Nothing to clean up") //nolint:errcheck
		return nil, nil
	}
	return i.removeInOrder(ctx, stale, false, dryRun, true)
}

// Outdated pairs an installed spec with a newer available one.
type Outdated struct {
	Installed *manifest.Spec
	Latest    *manifest.Spec
}

func (o Outdated) String() string {
	return fmt.Sprintf("%s (%s < %s)", o.Installed.Name, o.Installed.Version, o.Latest.Version)
}

// Outdated lists installed packages whose newest installed version is older
// than the newest available one, sorted by name.
func (i *Installer) Outdated(ctx context.Context) ([]Outdated, error) {
	if i.repo == nil {
		return nil, errors.New("no repositories configured")
	}
	installed, err := i.layout.Installed(ctx)
	if err != nil {
		return nil, err
	}
	available, err := repository.Index(ctx, i.repo, i.logger)
	if err != nil {
		return nil, err
	}
	var out []Outdated
	for _, s := range installed.Latest() {
		versions := available.FindName(s.Name, manifest.Requirement{})
		if len(versions) == 0 {
			continue
		}
		newest := versions[len(versions)-1]
		if s.Version.Less(newest.Version) {
			out = append(out, Outdated{Installed: s, Latest: newest})
		}
	}
	return out, nil
}

// Update installs the newest available version of each outdated package,
// limited to names when given. Older versions stay installed.
func (i *Installer) Update(ctx context.Context, names []string, opts InstallOptions) (*Plan, error) {
	outdated, err := i.Outdated(ctx)
	if err != nil {
		return nil, err
	}
	var deps []manifest.Dependency
	for _, o := range outdated {
		if len(names) > 0 && !slices.Contains(names, o.Installed.Name) {
			continue
		}
		deps = append(deps, manifest.Dependency{
			Name:        o.Installed.Name,
			Requirement: manifest.NewRequirement(manifest.Clause{Op: manifest.Greater, Version: o.Installed.Version}),
		})
	}
	if len(deps) == 0 {
		fmt.Fprintln(i.out, "Nothing to update") //nolint:errcheck
		return &Plan{}, nil
	}
	return i.Install(ctx, deps, opts)
}
