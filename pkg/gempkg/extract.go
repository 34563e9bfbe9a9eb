package gempkg

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/clintharrison/gempm/pkg/utilio"
	"github.com/pingcap/errors"
)

// ExtractAll writes the package files into targetDir, printing one listing
// line per entry to w. With test set nothing is written; only the listing is
// printed. Entries outside the data directory are skipped, and symlinks
// pointing out of the package directory are rejected.
func (p *Package) ExtractAll(ctx context.Context, targetDir string, test bool, w io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if targetDir == "" {
		return fmt.Errorf("no target directory specified")
	}
	if _, err := os.Stat(targetDir); err != nil {
		if test {
			slog.Info("would create output directory", "path", targetDir)
		} else {
			err := os.MkdirAll(targetDir, 0o755)
			if err != nil {
				return errors.Wrapf(err, "os.MkdirAll(%q)", targetDir)
			}
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return errors.AddStack(err)
		}
		entry, err := p.tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "tarReader.Next()")
		}
		name, ok := dataPath(entry.Name)
		if !ok {
			slog.Debug("skipping non-data entry", "name", entry.Name)
			continue
		}
		slog.Debug("extracting", "name", name, "type", entry.Typeflag, "size", entry.Size)
		if test {
			err := logEntry(w, name, entry)
			if err != nil {
				return err
			}
		} else {
			err := extractEntry(ctx, w, p.tarReader, name, entry, targetDir)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// dataPath maps an archive entry name to its path relative to the package
// directory. ok is false for entries outside the data directory, including
// names that only reach into it through "..", and for the data directory
// itself.
func dataPath(entryName string) (string, bool) {
	clean := path.Clean(strings.TrimPrefix(entryName, "./"))
	rel, found := strings.CutPrefix(clean, DataDir+"/")
	if !found || rel == "" {
		return "", false
	}
	return rel, true
}

// this is a slightly nicer-to-read order than random
var attrOrder = []string{
	"type", "mode", "size", "uid", "gid", "link",
}

func logEntry(w io.Writer, name string, entry *tar.Header) error {
	n := name
	if entry.Typeflag == tar.TypeDir {
		n += "/"
	}
	// replace whitespace with octal escapes.
	// this should maybe replace more than that, but for now this will do?
	for _, r := range []rune{'\t', '\n', '\v', '\f', '\r'} {
		n = strings.ReplaceAll(n, string(r), fmt.Sprintf("\\%o", r))
	}

	attrs := make(map[string]string)
	attrs["size"] = fmt.Sprintf("%d", entry.Size)
	attrs["mode"] = fmt.Sprintf("%o", entry.Mode)
	attrs["uid"] = fmt.Sprintf("%d", entry.Uid)
	attrs["gid"] = fmt.Sprintf("%d", entry.Gid)

	switch entry.Typeflag {
	case tar.TypeDir:
		attrs["type"] = "dir"
	case tar.TypeReg:
		attrs["type"] = "file"
	case tar.TypeLink:
		fallthrough
	case tar.TypeSymlink:
		attrs["type"] = "link"
		attrs["link"] = entry.Linkname
	default:
		slog.Error("UNSUPPORTED", "name", entry.Name, "type", entry.Typeflag)
		return fmt.Errorf("unsupported entry type: %v", entry.Typeflag)
	}

	var sb strings.Builder
	sb.WriteString(n)
	for _, k := range attrOrder {
		v, ok := attrs[k]
		if ok {
			fmt.Fprintf(&sb, " %s=%s", k, v)
		}
	}
	sb.WriteString("\n")
	_, err := io.WriteString(w, sb.String())
	return errors.AddStack(err)
}

func extractEntry(ctx context.Context, w io.Writer, r io.Reader, name string, entry *tar.Header, targetDir string) error {
	if err := logEntry(w, name, entry); err != nil {
		return err
	}

	fullPath := filepath.Join(targetDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return errors.Wrapf(err, "os.MkdirAll(%q)", filepath.Dir(fullPath))
	}

	switch entry.Typeflag {
	case tar.TypeDir:
		err := os.MkdirAll(fullPath, os.FileMode(entry.Mode).Perm()|0o700)
		if err != nil {
			return errors.Wrapf(err, "os.MkdirAll(%q)", fullPath)
		}
		return nil
	case tar.TypeReg:
		file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(entry.Mode).Perm())
		if err != nil {
			return errors.Wrapf(err, "os.OpenFile(%q)", fullPath)
		}
		defer file.Close()
		_, err = io.Copy(file, utilio.NewContextReader(ctx, r))
		if err != nil {
			return errors.Wrapf(err, "io.Copy(%q)", fullPath)
		}
		return nil
	case tar.TypeSymlink:
		// relative links must stay inside the package directory
		target := path.Join(path.Dir(name), entry.Linkname)
		if path.IsAbs(entry.Linkname) || target == ".." || strings.HasPrefix(target, "../") {
			return errors.Errorf("symlink %q -> %q escapes the package directory", name, entry.Linkname)
		}
		err := os.Symlink(entry.Linkname, fullPath)
		if err != nil {
			return errors.Wrapf(err, "os.Symlink(%q, %q)", entry.Linkname, fullPath)
		}
		return nil
	case tar.TypeLink:
		linkName, ok := dataPath(entry.Linkname)
		if !ok {
			return errors.Errorf("hard link %q -> %q points outside the package", name, entry.Linkname)
		}
		oldPath := filepath.Join(targetDir, filepath.FromSlash(linkName))
		err := os.Link(oldPath, fullPath)
		if err != nil {
			return errors.Wrapf(err, "os.Link(%q, %q)", oldPath, fullPath)
		}
		return nil
	default:
		return fmt.Errorf("package archive has unsupported entry type: %v", entry.Typeflag)
	}
}
