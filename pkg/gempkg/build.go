package gempkg

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/clintharrison/gempm/pkg/utilio"
	"github.com/pingcap/errors"
	"github.com/ulikunitz/xz"
)

type BuildOption func(*options) error

type options struct {
	compressor func(io.WriteCloser) (io.WriteCloser, error)
}

func WithXZCompression(opts *options) error {
	opts.compressor = func(w io.WriteCloser) (io.WriteCloser, error) {
		return xz.NewWriter(w)
	}
	return nil
}

func WithGzipCompression(opts *options) error {
	opts.compressor = func(w io.WriteCloser) (io.WriteCloser, error) {
		return gzip.NewWriter(w), nil
	}
	return nil
}

// WithCompression picks a compressor by name: "xz", "gzip" or "none".
func WithCompression(name string) BuildOption {
	return func(opts *options) error {
		switch name {
		case "xz":
			return WithXZCompression(opts)
		case "gzip", "gz":
			return WithGzipCompression(opts)
		case "none", "":
			opts.compressor = nil
			return nil
		default:
			return errors.Errorf("unknown compression %q", name)
		}
	}
}

// Build packs rootPath into a .gem archive at dest. rootPath must contain a
// metadata.yaml spec; every other file becomes a package file and is listed
// in the archived spec's file manifest. The archived spec is returned.
func Build(ctx context.Context, rootPath string, dest string, optFuncs ...BuildOption) (*manifest.Spec, error) {
	opts := &options{} //nolint:exhaustruct
	for _, o := range optFuncs {
		err := o(opts)
		if err != nil {
			return nil, errors.Wrap(err, "applying build option")
		}
	}

	metadataPath := filepath.Join(rootPath, MetadataName)
	data, err := os.ReadFile(metadataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("%s must be present in the package directory", MetadataName)
		}
		return nil, errors.Wrapf(err, "os.ReadFile(%q)", metadataPath)
	}
	spec, err := manifest.ParseSpecYAML(data)
	if err != nil {
		return nil, errors.Annotatef(err, "parsing %q", metadataPath)
	}

	// the archive may be written inside the directory being packed
	skip := map[string]bool{metadataPath: true}
	if abs, err := filepath.Abs(dest); err == nil {
		if rootAbs, err := filepath.Abs(rootPath); err == nil {
			if rel, err := filepath.Rel(rootAbs, abs); err == nil && !strings.HasPrefix(rel, "..") {
				skip[filepath.Join(rootPath, rel)] = true
			}
		}
	}

	files, err := packageFiles(rootPath, skip)
	if err != nil {
		return nil, err
	}
	spec.Files = files
	metadata, err := manifest.EncodeYAML(spec)
	if err != nil {
		return nil, errors.AddStack(err)
	}

	df, err := os.Create(dest)
	if err != nil {
		return nil, errors.Wrapf(err, "opening destination file %q", dest)
	}
	defer df.Close()

	var compressw io.WriteCloser
	if opts.compressor != nil {
		compressw, err = opts.compressor(df)
		if err != nil {
			return nil, errors.Wrap(err, "creating compressor")
		}
	} else {
		compressw = nopWriteCloser{df}
	}

	tw := tar.NewWriter(compressw)
	if err := writeMetadata(tw, metadata); err != nil {
		return nil, err
	}

	// TODO: Refactor this once Go 1.25 is available, to use tar.NewWriter.AddFS directly?
	// I'm not sure how to mask the uid/timestamps though...
	err = filepath.WalkDir(rootPath, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if name == rootPath || skip[name] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		linkTarget := ""
		if typ := d.Type(); typ == fs.ModeSymlink {
			var err error
			linkTarget, err = os.Readlink(name)
			if err != nil {
				return err
			}
		} else if !typ.IsRegular() && typ != fs.ModeDir {
			return errors.New("tar: cannot add non-regular file")
		}
		h, err := tar.FileInfoHeader(info, linkTarget)
		if err != nil {
			return err
		}

		h, err = normalizeHeader(h, info, rootPath, name)
		if err != nil {
			return errors.Wrap(err, "normalizing tar header")
		}
		if err := tw.WriteHeader(h); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, utilio.NewContextReader(ctx, f))
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "walking package directory")
	}

	// flush in order: tar footer, then the compressor, then the file
	if err := tw.Close(); err != nil {
		return nil, errors.Wrap(err, "closing tar writer")
	}
	if err := compressw.Close(); err != nil {
		return nil, errors.Wrap(err, "closing compressor")
	}
	if err := df.Close(); err != nil {
		return nil, errors.Wrapf(err, "closing %q", dest)
	}
	return spec, nil
}

// packageFiles lists the regular files and symlinks under rootPath, slash
// separated and relative to it, in walk order.
func packageFiles(rootPath string, skip map[string]bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(rootPath, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || skip[name] {
			return nil
		}
		rel, err := filepath.Rel(rootPath, name)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing %q", rootPath)
	}
	return files, nil
}

var epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

func writeMetadata(tw *tar.Writer, metadata []byte) error {
	h := &tar.Header{ //nolint:exhaustruct
		Name:     MetadataName,
		Mode:     0o644,
		Size:     int64(len(metadata)),
		ModTime:  epoch,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatGNU,
	}
	if err := tw.WriteHeader(h); err != nil {
		return errors.Wrap(err, "writing metadata header")
	}
	if _, err := io.Copy(tw, bytes.NewReader(metadata)); err != nil {
		return errors.Wrap(err, "writing metadata")
	}
	return nil
}

func normalizeHeader(h *tar.Header, d fs.FileInfo, rootPath, name string) (*tar.Header, error) {
	// Make path relative to rootPath, under the data directory
	relPath, err := filepath.Rel(rootPath, name)
	if err != nil {
		return nil, err
	}
	h.Name = path.Join(DataDir, filepath.ToSlash(relPath))

	// Normalize metadata; no need to leak host info
	h.Uid = 0
	h.Gid = 0
	h.Uname = ""
	h.Gname = ""
	h.Mode = int64(h.Mode & 0o777)
	h.ModTime = epoch
	h.AccessTime = time.Time{}
	h.ChangeTime = time.Time{}
	h.Format = tar.FormatGNU

	// Only regular files have size
	if d.Mode().IsRegular() {
		h.Size = d.Size()
	} else if d.Mode().IsDir() {
		h.Size = 0
		h.Name = strings.TrimSuffix(h.Name, "/") + "/"
	}

	return h, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
