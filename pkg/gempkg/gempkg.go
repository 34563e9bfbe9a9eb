package gempkg

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/pingcap/errors"
	"github.com/ulikunitz/xz"
)

const (
	// MetadataName is the archive entry holding the spec. It must come first.
	MetadataName = "metadata.yaml"
	// DataDir prefixes every package file in the archive.
	DataDir = "data"
)

// Package is an opened .gem archive. The spec is read eagerly; the package
// files are streamed once by ExtractAll.
type Package struct {
	mu sync.Mutex

	Spec *manifest.Spec

	file      *os.File
	tarReader *tar.Reader

	closerFuncs []func() error
}

func Open(path string) (*Package, error) {
	pkg := &Package{} //nolint:exhaustruct // this is initialized as we go, to register closers

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "os.Open(%q)", path)
	}
	pkg.RegisterCloser(f.Close)
	pkg.file = f

	var r io.Reader
	r, err = xz.NewReader(f)
	if err != nil {
		slog.Debug("not xz compressed, trying gzip", "error", err)
		_, err = f.Seek(0, 0)
		if err != nil {
			return nil, errors.Wrapf(err, "f.Seek(0,0) for %q", path)
		}
		gz, gzErr := gzip.NewReader(f)
		if gzErr != nil {
			slog.Debug("not gzip compressed, using raw file", "error", gzErr)
			_, err = f.Seek(0, 0)
			if err != nil {
				return nil, errors.Wrapf(err, "f.Seek(0,0) for %q", path)
			}
			r = f
		} else {
			pkg.RegisterCloser(gz.Close)
			r = gz
		}
	}

	pkg.tarReader = tar.NewReader(r)

	err = pkg.ReadMetadata()
	if err != nil {
		cerr := pkg.Close()
		if cerr != nil {
			slog.Error("ReadMetadata()", "close_error", cerr, "read_error", err)
		}
		return nil, errors.Wrapf(err, "ReadMetadata() for %q", path)
	}

	return pkg, nil
}

// ReadSpec opens path just long enough to read its spec.
func ReadSpec(path string) (*manifest.Spec, error) {
	pkg, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer pkg.Close() //nolint:errcheck
	return pkg.Spec, nil
}

func (p *Package) ReadMetadata() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Spec != nil {
		return nil
	}

	for {
		entry, err := p.tarReader.Next()
		if err == io.EOF {
			return errors.Errorf("archive has no %s", MetadataName)
		}
		if err != nil {
			return errors.Wrapf(err, "tarReader.Next()")
		}
		name := strings.TrimPrefix(entry.Name, "./")
		if name == "" || name == "." {
			continue
		}
		if name != MetadataName {
			return errors.Errorf("%s must be the first archive entry, found %q", MetadataName, entry.Name)
		}
		if entry.Typeflag != tar.TypeReg {
			return fmt.Errorf("%s is not a regular file: %v", MetadataName, entry.Typeflag)
		}
		data, err := io.ReadAll(p.tarReader)
		if err != nil {
			return errors.Wrapf(err, "io.ReadAll() for %s", MetadataName)
		}
		s, err := manifest.ParseSpecYAML(data)
		if err != nil {
			return errors.Annotatef(err, "parsing %s", MetadataName)
		}
		p.Spec = s
		return nil
	}
}

func (p *Package) RegisterCloser(f func() error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closerFuncs = append(p.closerFuncs, f)
}

func (p *Package) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	// close in reverse: decompressors before the file underneath them
	for i := len(p.closerFuncs) - 1; i >= 0; i-- {
		cerr := p.closerFuncs[i]()
		if cerr != nil {
			err = cerr
		}
	}
	p.closerFuncs = nil
	return err
}
