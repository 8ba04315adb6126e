// SPDX-License-Identifier: EPL-2.0

// Package elfdeps resolves the non-system shared-library dependencies of an
// ELF binary.
//
// The declared dependency names are read straight from the binary's dynamic
// section (the DT_NEEDED list). Names matching a configurable system-library
// prefix table are assumed present on any target host and excluded; the
// remaining "foreign" names are located by searching an ordered list of
// candidate directories, first match wins. Resolution is a pure, read-only
// filesystem inspection: nothing is copied or modified here.
package elfdeps

import (
	"debug/elf"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultSystemPrefixes is the baseline allowlist of library-name prefixes
// assumed present on any glibc-based target host: the core C runtime,
// the dynamic loader, and the compiler runtime libraries. Platforms with a
// different baseline override this table through configuration.
var DefaultSystemPrefixes = []string{
	"libc.so",
	"libm.so",
	"libdl.so",
	"librt.so",
	"libpthread.so",
	"libutil.so",
	"libresolv.so",
	"libcrypt.so",
	"libnsl.so",
	"ld-linux",
	"libgcc_s.so",
	"libstdc++.so",
	"libgomp.so",
}

// interpreterRuntimePrefix matches the embedding interpreter's own shared
// library (e.g. libpython3.12.so.1.0). The target host's interpreter owns
// it, so it is never bundled even though it is not in the system table.
const interpreterRuntimePrefix = "libpython"

// ResolvedDependency maps a foreign dependency name to the single
// filesystem path it was located at.
type ResolvedDependency struct {
	// Name is the dependency name exactly as declared in DT_NEEDED.
	Name string

	// Path is the first match for Name across the resolver's search
	// directories.
	Path string
}

// Resolution is the outcome of resolving one binary: the foreign
// dependencies that were located, and the declared names that were not
// found in any candidate directory. Unresolved names are reported rather
// than failing resolution; the caller decides how loudly to complain.
type Resolution struct {
	Resolved   []ResolvedDependency
	Unresolved []string
}

// Resolver locates foreign shared-library dependencies.
type Resolver struct {
	// SystemPrefixes is the allowlist of name prefixes excluded from
	// bundling. Nil means DefaultSystemPrefixes.
	SystemPrefixes []string

	// SearchDirs is the ordered list of candidate directories searched
	// for each foreign name.
	SearchDirs []string
}

// New returns a Resolver over the given ordered search directories with the
// default system prefix table.
func New(searchDirs []string) *Resolver {
	return &Resolver{SearchDirs: searchDirs}
}

// Needed returns the DT_NEEDED names declared by the binary at path, in
// declaration order, without any filtering.
func Needed(path string) ([]string, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading dynamic section of %s: %w", path, err)
	}
	defer f.Close()

	libs, err := f.ImportedLibraries()
	if err != nil {
		return nil, fmt.Errorf("reading needed list of %s: %w", path, err)
	}
	return libs, nil
}

// Resolve reads the binary's declared dependency names, drops system and
// interpreter-runtime libraries, and locates each remaining name across the
// search directories. Names found nowhere end up in Resolution.Unresolved;
// this is not an error. The error return covers only failures to read the
// binary itself.
func (r *Resolver) Resolve(binaryPath string) (Resolution, error) {
	needed, err := Needed(binaryPath)
	if err != nil {
		return Resolution{}, err
	}

	var res Resolution
	seen := make(map[string]bool, len(needed))
	for _, name := range needed {
		if seen[name] {
			continue
		}
		seen[name] = true

		if r.IsSystem(name) {
			continue
		}

		if path, ok := r.locate(name); ok {
			res.Resolved = append(res.Resolved, ResolvedDependency{Name: name, Path: path})
		} else {
			res.Unresolved = append(res.Unresolved, name)
		}
	}

	sort.Slice(res.Resolved, func(i, j int) bool { return res.Resolved[i].Name < res.Resolved[j].Name })
	sort.Strings(res.Unresolved)
	return res, nil
}

// IsSystem reports whether name matches the system prefix table or the
// interpreter's own runtime library.
func (r *Resolver) IsSystem(name string) bool {
	if strings.HasPrefix(name, interpreterRuntimePrefix) {
		return true
	}
	prefixes := r.SystemPrefixes
	if prefixes == nil {
		prefixes = DefaultSystemPrefixes
	}
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// locate searches the candidate directories in order and returns the first
// existing regular file with exactly the given name.
func (r *Resolver) locate(name string) (string, bool) {
	for _, dir := range r.SearchDirs {
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		return candidate, true
	}
	return "", false
}
