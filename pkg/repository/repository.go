package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/clintharrison/gempm/pkg/gempkg"
	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/sourceindex"
	"github.com/clintharrison/gempm/pkg/utilio"
	"github.com/clintharrison/gempm/pkg/version"
	"github.com/pingcap/errors"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

type Repository interface {
	fmt.Stringer
	ID() string
	FetchSpecs(ctx context.Context) ([]*manifest.Spec, error)
	Download(ctx context.Context, spec *manifest.Spec, destFile string, dryRun bool) error
}

// Listing is the document a remote repository serves: every spec it offers
// plus where to download each archive. Archive URLs may be relative to the
// listing's own URL.
type Listing struct {
	ID    string             `json:"id" yaml:"id"`
	Name  string             `json:"name,omitempty" yaml:"name,omitempty"`
	Specs []manifest.RawSpec `json:"specs" yaml:"specs"`
}

// ParseListing decodes a listing document, JSON or YAML.
func ParseListing(data []byte) (*Listing, error) {
	var l Listing
	if json.Valid(data) {
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, errors.Wrap(err, "json.Unmarshal() to Listing")
		}
		return &l, nil
	}
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, errors.Wrap(err, "yaml.Unmarshal() to Listing")
	}
	return &l, nil
}

// BuildListing describes every archive in dir as a listing whose archive
// URLs are relative to the directory, ready to be served next to them.
func BuildListing(ctx context.Context, id, dir string) (*Listing, error) {
	local := NewLocalFileRepository(dir)
	specs, err := local.FetchSpecs(ctx)
	if err != nil {
		return nil, err
	}
	l := &Listing{ID: id, Specs: make([]manifest.RawSpec, 0, len(specs))}
	slices.SortFunc(specs, manifest.CompareSpecs)
	for _, s := range specs {
		p, _ := local.PathFor(s)
		raw := s.Raw()
		raw.URL = filepath.Base(p)
		l.Specs = append(l.Specs, *raw)
	}
	return l, nil
}

const localFileRepoID = "$gemfile"

type LocalFileRepository struct {
	paths []string

	mu          sync.Mutex
	specs       []*manifest.Spec
	pathForSpec map[string]string
}

// NewLocalFileRepository serves .gem files. Each path is either an archive or
// a directory whose *.gem files are all served.
func NewLocalFileRepository(paths ...string) *LocalFileRepository {
	return &LocalFileRepository{
		paths:       paths,
		pathForSpec: make(map[string]string, len(paths)),
		specs:       nil,
	}
}

func (r *LocalFileRepository) String() string {
	return fmt.Sprintf("LocalFileRepository(%v)", r.paths)
}

func (r *LocalFileRepository) ID() string {
	return localFileRepoID
}

// PathFor returns the archive a fetched spec was read from.
func (r *LocalFileRepository) PathFor(spec *manifest.Spec) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pathForSpec[spec.FullName()]
	return p, ok
}

func (r *LocalFileRepository) Download(
	ctx context.Context, spec *manifest.Spec, destPath string, dryRun bool,
) error {
	slog.Debug("LocalFileRepository.Download()", "spec", spec.FullName(), "self", r)
	srcPath, ok := r.PathFor(spec)
	if !ok {
		return errors.Errorf("package %s not found in local file repository", spec.FullName())
	}
	if dryRun {
		slog.Info("[dry run] copying package", "spec", spec.FullName(), "from", srcPath, "to", destPath)
		return nil
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return errors.Wrapf(err, "os.Open(%q)", srcPath)
	}
	defer src.Close()

	return writeFile(ctx, destPath, src)
}

func (r *LocalFileRepository) FetchSpecs(ctx context.Context) ([]*manifest.Spec, error) {
	var archives []string
	for _, p := range r.paths {
		fi, err := os.Stat(p)
		if err != nil {
			return nil, errors.Wrapf(err, "os.Stat(%q)", p)
		}
		if !fi.IsDir() {
			archives = append(archives, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "*"+archiveExt))
		if err != nil {
			return nil, errors.Wrapf(err, "filepath.Glob(%q)", p)
		}
		slices.Sort(matches)
		archives = append(archives, matches...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs = nil
	clear(r.pathForSpec)
	for _, p := range archives {
		if err := ctx.Err(); err != nil {
			return nil, errors.AddStack(err)
		}
		spec, err := gempkg.ReadSpec(p)
		if err != nil {
			// one bad archive should not hide the rest of the directory
			slog.Warn("skipping unreadable package archive", "path", p, "error", err)
			continue
		}
		if other, dup := r.pathForSpec[spec.FullName()]; dup {
			slog.Warn("duplicate package archive, keeping the first", "spec", spec.FullName(), "kept", other, "ignored", p)
			continue
		}
		r.specs = append(r.specs, spec)
		r.pathForSpec[spec.FullName()] = p
	}
	return slices.Clone(r.specs), nil
}

const archiveExt = ".gem"

type HTTPOption func(*HTTPRepository)

// WithListingCache keeps fetched listings in cache. A cached listing younger
// than ttl is used without contacting the repository; an older one is only
// used when the repository cannot be reached.
func WithListingCache(cache *ListingCache, ttl time.Duration) HTTPOption {
	return func(r *HTTPRepository) {
		r.cache = cache
		r.ttl = ttl
	}
}

// DefaultHTTPTimeout bounds each request made without WithHTTPClient.
const DefaultHTTPTimeout = 30 * time.Second

// WithHTTPClient replaces the client used for listings and downloads.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(r *HTTPRepository) {
		r.client = client
	}
}

type HTTPRepository struct {
	url    *url.URL
	client *http.Client
	cache  *ListingCache
	ttl    time.Duration
	now    func() time.Time

	mu         sync.Mutex
	listing    *Listing
	urlForSpec map[string]*url.URL
}

func NewHTTPRepository(rawurl string, opts ...HTTPOption) (*HTTPRepository, error) {
	parsed, err := url.Parse(rawurl)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid URL %q", rawurl)
	}
	switch parsed.Scheme {
	case "http", "https", "file":
	default:
		return nil, errors.Errorf("invalid URL scheme %q in repo %q", parsed.Scheme, rawurl)
	}
	r := &HTTPRepository{
		url:        parsed,
		client:     &http.Client{Timeout: DefaultHTTPTimeout},
		now:        time.Now,
		urlForSpec: map[string]*url.URL{},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

func (r *HTTPRepository) String() string {
	return fmt.Sprintf("HTTPRepository(%v)", r.url)
}

// ID is the listing's id once fetched, and the URL before that.
func (r *HTTPRepository) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listing != nil && r.listing.ID != "" {
		return r.listing.ID
	}
	return r.url.String()
}

func (r *HTTPRepository) FetchSpecs(ctx context.Context) ([]*manifest.Spec, error) {
	data, err := r.listingData(ctx)
	if err != nil {
		return nil, err
	}
	listing, err := ParseListing(data)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read repository from %q", r.url.String())
	}

	specs := make([]*manifest.Spec, 0, len(listing.Specs))
	urls := make(map[string]*url.URL, len(listing.Specs))
	for i := range listing.Specs {
		raw := &listing.Specs[i]
		spec, err := raw.Spec()
		if err != nil {
			// one bad entry should not hide the rest of the repository
			slog.Warn("skipping malformed listing entry", "repo", r.url.String(), "name", raw.Name, "error", err)
			continue
		}
		if raw.URL == "" {
			slog.Warn("skipping listing entry without url", "repo", r.url.String(), "spec", spec.FullName())
			continue
		}
		ref, err := url.Parse(raw.URL)
		if err != nil {
			slog.Warn("skipping listing entry with bad url", "repo", r.url.String(), "spec", spec.FullName(), "error", err)
			continue
		}
		specs = append(specs, spec)
		urls[spec.FullName()] = r.url.ResolveReference(ref)
	}

	r.mu.Lock()
	r.listing = listing
	r.urlForSpec = urls
	r.mu.Unlock()
	slog.Debug("fetched listing", "repo", r.url.String(), "id", listing.ID, "specs", len(specs))
	return specs, nil
}

// ClearCachedListing drops this repository's listing from the cache, so the
// next fetch goes to the repository. It reports whether a cache is in use.
func (r *HTTPRepository) ClearCachedListing() (bool, error) {
	if r.cache == nil {
		return false, nil
	}
	return true, r.cache.Delete(r.url.String())
}

// listingData returns the raw listing document, from the cache when fresh.
func (r *HTTPRepository) listingData(ctx context.Context) ([]byte, error) {
	key := r.url.String()
	var cached []byte
	var haveCached bool
	if r.cache != nil {
		data, stored, ok, err := r.cache.Get(key)
		if err != nil {
			slog.Warn("listing cache unavailable", "repo", key, "error", err)
		} else if ok {
			cached, haveCached = data, true
			if r.ttl > 0 && r.now().Sub(stored) < r.ttl {
				slog.Debug("using cached listing", "repo", key, "stored", stored)
				return cached, nil
			}
		}
	}

	data, err := readFromURL(ctx, r.client, r.url, "application/json, application/yaml;q=0.9")
	if err != nil {
		if haveCached {
			slog.Warn("repository unreachable, using stale cached listing", "repo", key, "error", err)
			return cached, nil
		}
		return nil, errors.Annotatef(err, "failed to read repository from %q", key)
	}
	if r.cache != nil {
		if err := r.cache.Put(key, data, r.now()); err != nil {
			slog.Warn("failed to cache listing", "repo", key, "error", err)
		}
	}
	return data, nil
}

func (r *HTTPRepository) Download(
	ctx context.Context, spec *manifest.Spec, destPath string, dryRun bool,
) error {
	r.mu.Lock()
	src, ok := r.urlForSpec[spec.FullName()]
	r.mu.Unlock()
	if !ok {
		return errors.Errorf("package %s does not belong to repository %s", spec.FullName(), r.ID())
	}
	slog.Debug("HTTPRepository.Download()", "spec", spec.FullName(), "url", src.String())

	if dryRun {
		slog.Info("[dry run] downloading package", "spec", spec.FullName(), "from", src.String(), "to", destPath)
		return nil
	}

	body, err := openURL(ctx, r.client, src, "application/octet-stream")
	if err != nil {
		return err
	}
	defer body.Close() //nolint:errcheck
	return writeFile(ctx, destPath, body)
}

type MultiRepository struct {
	repos []Repository

	mu      sync.Mutex
	specs   []*manifest.Spec
	ownerOf map[string]Repository
}

var (
	_ Repository = (*LocalFileRepository)(nil)
	_ Repository = (*HTTPRepository)(nil)
	_ Repository = (*MultiRepository)(nil)
)

// NewMultiRepository creates a Repository which defers to multiple repositories in the order given.
func NewMultiRepository(repos ...Repository) *MultiRepository {
	return &MultiRepository{
		repos:   repos,
		specs:   nil,
		ownerOf: map[string]Repository{},
	}
}

func (r *MultiRepository) AddRepository(repo Repository) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repos = append(r.repos, repo)
	r.specs = nil // invalidate cached specs
}

func (r *MultiRepository) Repositories() []Repository {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.repos)
}

func (r *MultiRepository) String() string {
	return fmt.Sprintf("MultiRepository(%v)", r.repos)
}

func (r *MultiRepository) ID() string {
	return "<MultiRepository>"
}

func (r *MultiRepository) Download(
	ctx context.Context, spec *manifest.Spec, destPath string, dryRun bool,
) error {
	r.mu.Lock()
	owner, ok := r.ownerOf[spec.FullName()]
	r.mu.Unlock()
	if !ok {
		return errors.Errorf("package %s not found in any repository", spec.FullName())
	}
	slog.Debug("MultiRepository.Download() using repo", "repo", owner.ID(), "spec", spec.FullName())
	return errors.AddStack(owner.Download(ctx, spec, destPath, dryRun))
}

// FetchSpecs fetches every repository concurrently. Results keep repository
// order, and when two repositories offer the same full name the earlier one
// wins.
func (r *MultiRepository) FetchSpecs(ctx context.Context) ([]*manifest.Spec, error) {
	repos := r.Repositories()
	slog.Debug("fetching packages", "repos", repos)

	results := make([][]*manifest.Spec, len(repos))
	g, gctx := errgroup.WithContext(ctx)
	for i, repo := range repos {
		g.Go(func() error {
			specs, err := repo.FetchSpecs(gctx)
			if err != nil {
				return errors.Annotatef(err, "fetching %s", repo)
			}
			results[i] = specs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	specs := []*manifest.Spec{}
	owners := map[string]Repository{}
	for i, repoSpecs := range results {
		for _, s := range repoSpecs {
			if prev, dup := owners[s.FullName()]; dup {
				slog.Debug("package offered by several repositories", "spec", s.FullName(),
					"using", prev.ID(), "ignoring", repos[i].ID())
				continue
			}
			owners[s.FullName()] = repos[i]
			specs = append(specs, s)
		}
	}

	r.mu.Lock()
	r.specs = specs
	r.ownerOf = owners
	r.mu.Unlock()
	return slices.Clone(specs), nil
}

// NewFromURLs builds a MultiRepository from repository locations. Plain paths
// name local .gem files or directories; URLs name listing documents.
func NewFromURLs(urls []string, opts ...HTTPOption) (*MultiRepository, error) {
	multi := NewMultiRepository()
	for _, u := range urls {
		if !strings.Contains(u, "://") {
			multi.AddRepository(NewLocalFileRepository(u))
			continue
		}
		repo, err := NewHTTPRepository(u, opts...)
		if err != nil {
			return nil, err
		}
		multi.AddRepository(repo)
	}
	return multi, nil
}

// Index fetches repo into a fresh source index.
func Index(ctx context.Context, repo Repository, logger *slog.Logger) (*sourceindex.Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	idx := sourceindex.New(sourceindex.LoaderFunc(repo.FetchSpecs), sourceindex.WithLogger(logger))
	if err := idx.Refresh(ctx); err != nil {
		return nil, errors.Annotate(err, "failed to fetch packages from repositories")
	}
	return idx, nil
}

func openURL(ctx context.Context, client *http.Client, u *url.URL, accept string) (io.ReadCloser, error) {
	switch u.Scheme {
	case "http", "https":
		// TODO: use retryablehttp?
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, errors.Wrapf(err, "http.NewRequestWithContext(%q)", u.String())
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", version.FullVersion)

		resp, err := client.Do(req)
		if err != nil {
			return nil, errors.Wrapf(err, "http.Get(%q)", u.String())
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, errors.Errorf("http.Get(%q): unexpected status %s", u.String(), resp.Status)
		}
		return resp.Body, nil
	case "file":
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "os.Open(%q)", u.Path)
		}
		return f, nil
	default:
		return nil, errors.Errorf("unsupported URL scheme: %s", u.Scheme)
	}
}

func readFromURL(ctx context.Context, client *http.Client, u *url.URL, accept string) ([]byte, error) {
	body, err := openURL(ctx, client, u, accept)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck
	data, err := io.ReadAll(utilio.NewContextReader(ctx, body))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", u.String())
	}
	return data, nil
}

// writeFile copies r to destPath through a temporary file, so an interrupted
// download never leaves a truncated archive behind.
func writeFile(ctx context.Context, destPath string, r io.Reader) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "os.MkdirAll(%q)", dir)
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return errors.Wrapf(err, "os.CreateTemp(%q)", dir)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	_, err = io.Copy(tmp, utilio.NewContextReader(ctx, r))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "io.Copy() to %q", destPath)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return errors.Wrapf(err, "os.Rename(%q, %q)", tmp.Name(), destPath)
	}
	return nil
}
