// SPDX-License-Identifier: MPL-2.0

// Package scan locates packaging-relevant artifacts inside a native install
// tree whose internal layout is not contractually fixed.
//
// The scanner walks the tree once and classifies what it finds: shared
// libraries, executables, headers, build-system descriptor files, and
// runtime data. When the native build's installed-files manifest (one
// absolute path per line) is available it seeds executable discovery, which
// mirrors how the install step itself reports binaries; without it the
// scanner falls back to executable-bit probing.
package scan

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// ErrPackageDirNotFound indicates the interpreter package directory was
// absent from every known install-tree location. This is structural: with
// no package content there is nothing to assemble.
var ErrPackageDirNotFound = errors.New("interpreter package directory not found in install tree")

// Kind classifies a discovered artifact.
type Kind int

const (
	// KindSharedLibrary is a shared object (libfoo.so, libfoo.so.1.2.3).
	KindSharedLibrary Kind = iota
	// KindExecutable is a compiled utility or example binary.
	KindExecutable
	// KindHeader is a public header file.
	KindHeader
	// KindDescriptor is a CMake config or pkg-config descriptor file.
	KindDescriptor
	// KindData is a runtime data file under the product's share tree.
	KindData
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindSharedLibrary:
		return "shared library"
	case KindExecutable:
		return "executable"
	case KindHeader:
		return "header"
	case KindDescriptor:
		return "descriptor"
	case KindData:
		return "data file"
	default:
		return "unknown"
	}
}

// Artifact is a single file discovered in the install tree. Artifacts are
// immutable once scanned.
type Artifact struct {
	// Path is the absolute source path inside the install tree.
	Path string
	// Rel is Path relative to the install-tree root, slash-separated.
	Rel string
	// Name is the base file name.
	Name string
	// Kind is the logical artifact kind.
	Kind Kind
	// IsSymlink is true when the entry itself is a symbolic link.
	IsSymlink bool
	// Target is the fully resolved real path when IsSymlink is true.
	Target string
	// Mode is the file mode of the entry (of the link itself for symlinks).
	Mode fs.FileMode
}

// Result is the outcome of one scan: all classified artifacts plus the
// discovered executables as an explicit slice, so downstream consumers
// receive them as an argument rather than through shared state.
type Result struct {
	Artifacts   []Artifact
	Executables []Artifact
}

// bundledSkipExts are name suffixes excluded from executable bundling:
// sources and helper scripts that the install step drops next to compiled
// examples.
var bundledSkipExts = []string{".py", ".sh", ".cpp", ".h", ".txt"}

// Scanner locates artifacts in one install tree.
type Scanner struct {
	// Root is the install-tree root produced by the native install step.
	Root string
	// ManifestPath optionally points at the installed-files list (one
	// absolute path per line) used to seed executable discovery.
	ManifestPath string
	// Product is the product name, used to recognize the share data tree.
	Product string

	Logger *log.Logger
}

// New returns a Scanner over the given install tree.
func New(root, manifestPath, product string, logger *log.Logger) *Scanner {
	if logger == nil {
		logger = log.Default()
	}
	return &Scanner{Root: root, ManifestPath: manifestPath, Product: product, Logger: logger}
}

// Scan walks the install tree and returns every classified artifact. The
// walk order is deterministic (lexicographic per directory), so repeated
// scans of the same tree produce the same result.
func (s *Scanner) Scan() (*Result, error) {
	info, err := os.Stat(s.Root)
	if err != nil {
		return nil, fmt.Errorf("install tree: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("install tree %s is not a directory", s.Root)
	}

	res := &Result{}
	installed := s.installedBinaries()

	err = filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			s.Logger.Warn("skipping unreadable entry", "path", path, "error", walkErr)
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		art, ok := s.classify(path, rel, d, installed)
		if !ok {
			return nil
		}

		res.Artifacts = append(res.Artifacts, art)
		if art.Kind == KindExecutable {
			res.Executables = append(res.Executables, art)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning install tree: %w", err)
	}

	return res, nil
}

// classify maps one directory entry to an Artifact, or reports false for
// files the pipeline has no use for.
func (s *Scanner) classify(path, rel string, d fs.DirEntry, installed map[string]bool) (Artifact, bool) {
	name := d.Name()
	art := Artifact{Path: path, Rel: rel, Name: name}

	if info, err := d.Info(); err == nil {
		art.Mode = info.Mode()
	}
	if d.Type()&fs.ModeSymlink != 0 {
		art.IsSymlink = true
		if target, err := filepath.EvalSymlinks(path); err == nil {
			art.Target = target
		} else {
			s.Logger.Warn("dangling symlink in install tree", "path", path, "error", err)
			return Artifact{}, false
		}
	}

	// Everything under the product's share tree is data, whatever its
	// name looks like, so that check runs before the name-based ones.
	switch {
	case strings.Contains(rel, "share/"+s.Product+"/"):
		art.Kind = KindData
	case isSharedLibraryName(name):
		art.Kind = KindSharedLibrary
	case isHeaderName(name) && pathHasSegment(rel, "include"):
		art.Kind = KindHeader
	case strings.HasSuffix(name, ".cmake") || strings.HasSuffix(name, ".pc"):
		art.Kind = KindDescriptor
	case s.isBundledExecutable(path, rel, name, installed):
		art.Kind = KindExecutable
	default:
		return Artifact{}, false
	}

	return art, true
}

// isBundledExecutable applies the bundling filter for utilities and example
// binaries: located under a bin or examples path, not a source or helper
// script, and actually executable.
func (s *Scanner) isBundledExecutable(path, rel, name string, installed map[string]bool) bool {
	if !pathHasSegment(rel, "bin") && !pathHasSegment(rel, "examples") {
		return false
	}
	for _, ext := range bundledSkipExts {
		if strings.HasSuffix(name, ext) {
			return false
		}
	}
	if installed != nil {
		return installed[name]
	}
	return unix.Access(path, unix.X_OK) == nil
}

// installedBinaries parses the installed-files manifest into the set of
// binary base names found under bin or examples paths. Returns nil when no
// manifest was configured or it cannot be read, which switches executable
// discovery to executable-bit probing.
func (s *Scanner) installedBinaries() map[string]bool {
	if s.ManifestPath == "" {
		return nil
	}
	f, err := os.Open(s.ManifestPath)
	if err != nil {
		s.Logger.Warn("installed-files manifest unreadable, probing executable bits instead",
			"path", s.ManifestPath, "error", err)
		return nil
	}
	defer f.Close()

	names := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.Contains(line, "/bin/") || strings.Contains(line, "/examples/") {
			names[filepath.Base(line)] = true
		}
	}
	if err := scanner.Err(); err != nil {
		s.Logger.Warn("installed-files manifest truncated", "path", s.ManifestPath, "error", err)
	}
	return names
}

// isSharedLibraryName reports whether name looks like a shared object,
// either unversioned (libfoo.so) or versioned (libfoo.so.4.6.0). The
// versioned form requires a purely numeric dotted suffix, so names that
// merely contain ".so." somewhere (README.so.txt) do not match.
func isSharedLibraryName(name string) bool {
	if strings.HasSuffix(name, ".so") {
		return len(name) > len(".so")
	}
	idx := strings.Index(name, ".so.")
	if idx <= 0 {
		return false
	}
	version := name[idx+len(".so."):]
	if version == "" {
		return false
	}
	for _, r := range version {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// isHeaderName reports whether name is a public header.
func isHeaderName(name string) bool {
	for _, ext := range []string{".h", ".hpp", ".ipp"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// pathHasSegment reports whether the slash-separated rel path contains the
// given segment as a whole path element.
func pathHasSegment(rel, segment string) bool {
	for _, part := range strings.Split(rel, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

// packageDirStrategy is one known location pattern for the interpreter
// package directory. Strategies are tried in order; the first hit wins.
type packageDirStrategy struct {
	name string
	// parent constrains the directory's parent name; empty means any.
	parent string
}

// LocatePackageDir finds the interpreter package directory (the directory
// named pkg holding the Python sources and compiled extension) inside the
// install tree, trying known locations in order: a site-packages parent,
// then the Debian-style dist-packages parent, then any directory with the
// package name. The fallback actually used is logged so an unexpected tree
// layout is diagnosable from the run output.
func LocatePackageDir(root, pkg string, logger *log.Logger) (string, error) {
	if logger == nil {
		logger = log.Default()
	}

	strategies := []packageDirStrategy{
		{name: "site-packages", parent: "site-packages"},
		{name: "dist-packages", parent: "dist-packages"},
		{name: "any location", parent: ""},
	}

	for i, strat := range strategies {
		found := findDir(root, pkg, strat.parent)
		if found == "" {
			continue
		}
		if i > 0 {
			logger.Warn("package directory found through fallback location",
				"package", pkg, "strategy", strat.name, "path", found)
		}
		return found, nil
	}

	return "", fmt.Errorf("%w: package %q under %s", ErrPackageDirNotFound, pkg, root)
}

// findDir returns the first directory named name (with the given parent
// name, when non-empty) in deterministic walk order.
func findDir(root, name, parent string) string {
	var found string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if d.Name() != name {
			return nil
		}
		if parent != "" && filepath.Base(filepath.Dir(path)) != parent {
			return nil
		}
		found = path
		return fs.SkipAll
	})
	return found
}
