package clicommon

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/clintharrison/gempm/pkg/repository/manifest"
	"github.com/pingcap/errors"
)

var packageNameRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ParseConstraint reads a package argument with an optional inline
// requirement:
//
//	package-name
//	package-name=version (or ==)
//	package-name>=version
//	package-name~>1.2
//	package-name>=1.0.0,<2.0.0 (combined requirements)
//
// Any operator understood by manifest.ParseRequirement may be used.
func ParseConstraint(arg string) (manifest.Dependency, error) {
	name, req := arg, ""
	if i := strings.IndexAny(arg, "<>=!~"); i >= 0 {
		name, req = arg[:i], arg[i:]
	}
	name = strings.TrimSpace(name)
	if !packageNameRegexp.MatchString(name) {
		return manifest.Dependency{}, fmt.Errorf("unable to parse package name from arg %q", arg)
	}
	// "==" is accepted as a spelling of "="
	req = strings.ReplaceAll(req, "==", "=")
	d, err := manifest.NewDependency(name, req)
	if err != nil {
		return manifest.Dependency{}, errors.Annotatef(err, "unable to parse requirement from arg %q", arg)
	}
	return d, nil
}

// ConstraintsFromArgs parses every argument with ParseConstraint. versions,
// from the --version flag, apply to arguments without an inline requirement.
func ConstraintsFromArgs(args []string, versions []string) ([]manifest.Dependency, error) {
	var flagReq manifest.Requirement
	if len(versions) > 0 {
		var err error
		flagReq, err = manifest.ParseRequirement(versions...)
		if err != nil {
			return nil, errors.Annotate(err, "invalid --version")
		}
	}
	var deps []manifest.Dependency
	for _, arg := range args {
		d, err := ParseConstraint(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse constraint from arg %q", arg)
		}
		if d.Requirement.IsAny() {
			d.Requirement = flagReq
		}
		deps = append(deps, d)
	}
	return deps, nil
}

// FindFileArgs separates archive file arguments from package name arguments.
// An argument ending in .gem must exist.
func FindFileArgs(args []string) (fileArgs []string, rest []string, err error) {
	for _, arg := range args {
		fi, _ := os.Stat(arg)
		exists := fi != nil && fi.Mode().IsRegular()

		if strings.HasSuffix(arg, ".gem") || exists {
			if !exists {
				return nil, nil, fmt.Errorf("file %q does not exist", arg)
			}
			fileArgs = append(fileArgs, arg)
		} else {
			rest = append(rest, arg)
		}
	}
	return fileArgs, rest, nil
}
