package state

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/sourceindex"
	"github.com/gofrs/flock"
	"github.com/pingcap/errors"
)

const (
	SpecExt    = ".gemspec"
	ArchiveExt = ".gem"

	specDir  = "specifications"
	gemsDir  = "gems"
	cacheDir = "cache"
	lockFile = ".lock"
)

// Layout is the on-disk shape of an installation directory:
//
//	specifications/<full_name>.gemspec  installed spec (YAML)
//	gems/<full_name>/                   unpacked package files
//	cache/<full_name>.gem               downloaded archives
//	.lock                               advisory lock for mutations
type Layout struct {
	Root   string
	logger *slog.Logger
}

func NewLayout(root string, logger *slog.Logger) *Layout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Layout{Root: root, logger: logger}
}

func (l *Layout) SpecDir() string { return filepath.Join(l.Root, specDir) }

func (l *Layout) SpecPath(s *manifest.Spec) string {
	return filepath.Join(l.SpecDir(), s.FullName()+SpecExt)
}

func (l *Layout) GemDir(s *manifest.Spec) string {
	return filepath.Join(l.Root, gemsDir, s.FullName())
}

func (l *Layout) CachePath(s *manifest.Spec) string {
	return filepath.Join(l.Root, cacheDir, s.FullName()+ArchiveExt)
}

// LoadSpecs reads every installed spec. A missing specifications directory is
// an empty installation; unreadable or malformed spec files are skipped with
// a warning so one bad file does not hide the rest.
func (l *Layout) LoadSpecs(ctx context.Context) ([]*manifest.Spec, error) {
	entries, err := os.ReadDir(l.SpecDir())
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Debug("no specifications directory", "path", l.SpecDir())
			return nil, nil
		}
		return nil, errors.Wrapf(err, "os.ReadDir(%q)", l.SpecDir())
	}

	specs := make([]*manifest.Spec, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, errors.AddStack(err)
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), SpecExt) {
			continue
		}
		path := filepath.Join(l.SpecDir(), e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Warn("skipping unreadable spec file", "path", path, "error", err)
			continue
		}
		s, err := manifest.ParseSpecYAML(data)
		if err != nil {
			l.logger.Warn("skipping malformed spec file", "path", path, "error", err)
			continue
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// Installed returns a freshly loaded index of the installed specs.
func (l *Layout) Installed(ctx context.Context) (*sourceindex.Index, error) {
	idx := sourceindex.New(l, sourceindex.WithLogger(l.logger))
	if err := idx.Refresh(ctx); err != nil {
		return nil, errors.Annotate(err, "loading installed specs")
	}
	return idx, nil
}

// WriteSpec records s as installed. The file is written next to its final
// name and renamed into place so readers never see a partial spec.
func (l *Layout) WriteSpec(s *manifest.Spec) error {
	data, err := manifest.EncodeYAML(s)
	if err != nil {
		return errors.AddStack(err)
	}
	if err := os.MkdirAll(l.SpecDir(), 0o755); err != nil {
		return errors.Wrapf(err, "os.MkdirAll(%q)", l.SpecDir())
	}
	dest := l.SpecPath(s)
	tmp, err := os.CreateTemp(l.SpecDir(), ".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "os.CreateTemp(%q)", l.SpecDir())
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "writing %q", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %q", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return errors.Wrapf(err, "os.Rename(%q, %q)", tmp.Name(), dest)
	}
	l.logger.Debug("wrote spec", "path", dest)
	return nil
}

// RemoveSpec deletes the spec file and the unpacked files of s. Cached
// archives are left for cleanup.
func (l *Layout) RemoveSpec(s *manifest.Spec) error {
	if err := os.RemoveAll(l.GemDir(s)); err != nil {
		return errors.Wrapf(err, "os.RemoveAll(%q)", l.GemDir(s))
	}
	if err := os.Remove(l.SpecPath(s)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "os.Remove(%q)", l.SpecPath(s))
	}
	l.logger.Debug("removed spec", "full_name", s.FullName())
	return nil
}

// ErrLocked is returned by Lock when another process holds the lock past the
// timeout.
var ErrLocked = errors.New("installation directory is locked by another process")

const lockRetryDelay = 50 * time.Millisecond

// Lock takes the installation directory's advisory lock, waiting up to
// timeout. A zero timeout tries once. The returned func releases the lock.
func (l *Layout) Lock(ctx context.Context, timeout time.Duration) (func() error, error) {
	if err := os.MkdirAll(l.Root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "os.MkdirAll(%q)", l.Root)
	}
	fl := flock.New(filepath.Join(l.Root, lockFile))

	var locked bool
	var err error
	if timeout <= 0 {
		locked, err = fl.TryLock()
	} else {
		lockCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		locked, err = fl.TryLockContext(lockCtx, lockRetryDelay)
		if err != nil && lockCtx.Err() != nil && ctx.Err() == nil {
			// timed out waiting rather than failing outright
			err = nil
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "locking %q", fl.Path())
	}
	if !locked {
		return nil, errors.Trace(ErrLocked)
	}
	l.logger.Debug("acquired install lock", "path", fl.Path())
	return func() error {
		l.logger.Debug("releasing install lock", "path", fl.Path())
		return errors.AddStack(fl.Unlock())
	}, nil
}
