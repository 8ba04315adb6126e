// SPDX-License-Identifier: MPL-2.0

package layout

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"wheelwright/internal/scan"
)

// Planner places scanned artifacts into a Tree according to the Layout's
// fixed subtrees.
type Planner struct {
	Layout Layout
	Tree   *Tree

	logger *log.Logger
}

// NewPlanner returns a Planner writing into a fresh Tree.
func NewPlanner(l Layout, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.Default()
	}
	return &Planner{Layout: l, Tree: NewTree(logger), logger: logger}
}

// PlaceLibrary places a scanned shared library under the lib subtree and
// returns its archive path. Symlink policy: a symlink carrying the
// unversioned linker name (libfoo.so -> libfoo.so.4.6.0) is materialized as
// a real copy of its target under the unversioned name, because unpacking
// must not depend on symlink support at the destination. Any other symlink
// is skipped (empty return): its target, the versioned real file, is placed
// once under its own name.
func (p *Planner) PlaceLibrary(a scan.Artifact) (string, error) {
	rel := path.Join(p.Layout.LibDir(), a.Name)

	if a.IsSymlink {
		if !isLinkerNameLink(a.Name, a.Target) {
			p.logger.Debug("skipping versioned library symlink", "name", a.Name, "target", a.Target)
			return "", nil
		}
		if err := p.Tree.AddFile(rel, a.Target); err != nil {
			return "", fmt.Errorf("materializing linker-name symlink %s: %w", a.Name, err)
		}
		return rel, nil
	}

	if err := p.Tree.AddFile(rel, a.Path); err != nil {
		return "", err
	}
	return rel, nil
}

// PlaceDependency bundles a resolved foreign dependency under the lib
// subtree. A dependency already placed there (for an earlier consumer) is
// never copied again; every consumer references the same archive path.
func (p *Planner) PlaceDependency(name, sourcePath string) (string, error) {
	rel := path.Join(p.Layout.LibDir(), name)
	if p.Tree.Has(rel) {
		return rel, nil
	}
	if err := p.Tree.AddFile(rel, sourcePath); err != nil {
		return "", err
	}
	return rel, nil
}

// PlaceExecutable places a bundled utility or example binary under the
// scripts subtree.
func (p *Planner) PlaceExecutable(a scan.Artifact) (string, error) {
	src := a.Path
	if a.IsSymlink {
		src = a.Target
	}
	rel := path.Join(p.Layout.ScriptsDir(), a.Name)
	if err := p.Tree.AddFile(rel, src); err != nil {
		return "", err
	}
	return rel, nil
}

// PlaceHeader places a public header, preserving its path below the install
// tree's include directory.
func (p *Planner) PlaceHeader(a scan.Artifact) (string, error) {
	sub := a.Name
	if idx := strings.Index(a.Rel, "include/"); idx >= 0 {
		sub = a.Rel[idx+len("include/"):]
	}
	rel := path.Join(p.Layout.HeadersDir(), sub)
	if err := p.Tree.AddFile(rel, a.Path); err != nil {
		return "", err
	}
	return rel, nil
}

// PlaceDescriptor places a CMake config or pkg-config file into its
// descriptor directory.
func (p *Planner) PlaceDescriptor(a scan.Artifact) (string, error) {
	var rel string
	switch {
	case strings.HasSuffix(a.Name, ".cmake"):
		rel = path.Join(p.Layout.CMakeDir(), a.Name)
	case strings.HasSuffix(a.Name, ".pc"):
		rel = path.Join(p.Layout.PkgConfigDir(), a.Name)
	default:
		return "", fmt.Errorf("not a descriptor file: %s", a.Name)
	}
	if err := p.Tree.AddFile(rel, a.Path); err != nil {
		return "", err
	}
	return rel, nil
}

// PlaceData places a runtime data file twice: under the system-wide share
// subtree and, redundantly, under the interpreter package's own directory,
// so both system-level and interpreter-level consumers find it without a
// system install step.
func (p *Planner) PlaceData(a scan.Artifact) ([]string, error) {
	marker := "share/" + p.Layout.Name + "/"
	sub := a.Name
	if idx := strings.Index(a.Rel, marker); idx >= 0 {
		sub = a.Rel[idx+len(marker):]
	}

	content, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("reading data file %s: %w", a.Path, err)
	}
	mode := a.Mode.Perm()
	if mode == 0 {
		mode = 0o644
	}

	rels := []string{
		path.Join(p.Layout.ShareDir(), sub),
		path.Join(p.Layout.PackageShareDir(), sub),
	}
	for _, rel := range rels {
		p.Tree.Add(rel, content, mode, a.Path)
	}
	return rels, nil
}

// PlacePackageTree copies the interpreter package directory wholesale into
// the archive's site-packages subtree, skipping bytecode caches. Returns
// the archive paths of the placed files in walk order.
func (p *Planner) PlacePackageTree(pkgDir string) ([]string, error) {
	var placed []string
	err := filepath.WalkDir(pkgDir, func(fp string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if d.Name() == "__pycache__" {
				return fs.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(pkgDir, fp)
		if err != nil {
			return err
		}
		archiveRel := path.Join(p.Layout.PackageDir(), filepath.ToSlash(rel))
		if err := p.Tree.AddFile(archiveRel, fp); err != nil {
			return err
		}
		placed = append(placed, archiveRel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("placing interpreter package: %w", err)
	}
	return placed, nil
}

// PlacePackageFile places a generated file at the given path below the
// interpreter package directory.
func (p *Planner) PlacePackageFile(sub string, content []byte, mode fs.FileMode) string {
	rel := path.Join(p.Layout.PackageDir(), sub)
	p.Tree.Add(rel, content, mode, "")
	return rel
}

// isLinkerNameLink reports whether name is the unversioned linker name of
// the symlink's target: the bare .so name whose target adds a version
// suffix (libuhd.so -> libuhd.so.4.6.0).
func isLinkerNameLink(name, target string) bool {
	if !strings.HasSuffix(name, ".so") {
		return false
	}
	return strings.HasPrefix(filepath.Base(target), name+".")
}
