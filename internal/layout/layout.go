// SPDX-License-Identifier: MPL-2.0

// Package layout defines the internal directory structure of the output
// archive and places scanned artifacts into it.
//
// The archive follows the wheel convention: a metadata directory
// (<name>-<version>.dist-info) holding the manifest and package metadata,
// and a data directory (<name>-<version>.data) holding the relocatable
// payload: headers, scripts, shared libraries with their build-system
// descriptors, runtime data, and the interpreter package. Placement is
// deterministic: for a fixed input set the planner always produces the same
// relative paths and the same choice among duplicate candidates.
package layout

import "path"

// Layout computes the fixed target subtrees of the archive for one product.
type Layout struct {
	// Name is the product name (also the distribution name).
	Name string
	// Version is the product version string.
	Version string
	// PyVersion is the target interpreter version, e.g. "3.12".
	PyVersion string
	// Package is the interpreter package name, e.g. "uhd".
	Package string
}

// DistInfoDir is the metadata directory at the archive root.
func (l Layout) DistInfoDir() string {
	return l.Name + "-" + l.Version + ".dist-info"
}

// DataDir is the data directory at the archive root.
func (l Layout) DataDir() string {
	return l.Name + "-" + l.Version + ".data"
}

// HeadersDir holds the public headers.
func (l Layout) HeadersDir() string { return path.Join(l.DataDir(), "headers") }

// ScriptsDir holds the bundled executables and utilities.
func (l Layout) ScriptsDir() string { return path.Join(l.DataDir(), "scripts") }

// LibDir holds every bundled shared library. All consumers reference
// libraries by paths relative to this single subtree.
func (l Layout) LibDir() string { return path.Join(l.DataDir(), "lib") }

// CMakeDir holds the CMake package config files.
func (l Layout) CMakeDir() string { return path.Join(l.LibDir(), "cmake", l.Name) }

// PkgConfigDir holds the pkg-config descriptor files.
func (l Layout) PkgConfigDir() string { return path.Join(l.LibDir(), "pkgconfig") }

// ShareDir holds the system-wide copy of the runtime data.
func (l Layout) ShareDir() string { return path.Join(l.DataDir(), "share", l.Name) }

// SitePackagesDir is the interpreter site directory inside the archive.
// Its nesting under the lib subtree (lib -> pythonX.Y -> site-packages) is
// what the compiled extension's run path has to climb back out of.
func (l Layout) SitePackagesDir() string {
	return path.Join(l.LibDir(), "python"+l.PyVersion, "site-packages")
}

// PackageDir is the interpreter package directory inside the archive.
func (l Layout) PackageDir() string {
	return path.Join(l.SitePackagesDir(), l.Package)
}

// PackageShareDir is the redundant copy of the runtime data under the
// interpreter package itself, serving interpreter-level consumers without a
// system install step.
func (l Layout) PackageShareDir() string {
	return path.Join(l.PackageDir(), "share", l.Name)
}

// RecordPath is the manifest file's path inside the archive.
func (l Layout) RecordPath() string {
	return path.Join(l.DistInfoDir(), "RECORD")
}

// RunPathFor returns the runtime search-path expression for a binary placed
// in entryDir, pointing at the archive's lib subtree relative to the
// binary's own location via the loader's self-directory token. A binary
// placed in the lib subtree itself gets the bare token, so mutually
// dependent bundled libraries find each other with no absolute component.
func (l Layout) RunPathFor(entryDir string) string {
	rel := relPath(entryDir, l.LibDir())
	if rel == "." {
		return "$ORIGIN"
	}
	return "$ORIGIN/" + rel
}

// relPath computes the slash-separated relative path between two clean,
// slash-separated archive paths. Unlike filepath.Rel it never touches the
// host filesystem and is OS-independent, which keeps run paths identical
// across build hosts.
func relPath(from, to string) string {
	if from == to {
		return "."
	}
	fromParts := splitPath(from)
	toParts := splitPath(to)

	common := 0
	for common < len(fromParts) && common < len(toParts) && fromParts[common] == toParts[common] {
		common++
	}

	var parts []string
	for i := common; i < len(fromParts); i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, toParts[common:]...)
	if len(parts) == 0 {
		return "."
	}
	return path.Join(parts...)
}

func splitPath(p string) []string {
	if p == "" || p == "." {
		return nil
	}
	var parts []string
	for _, s := range splitOnSlash(p) {
		if s != "" && s != "." {
			parts = append(parts, s)
		}
	}
	return parts
}

func splitOnSlash(p string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			parts = append(parts, p[start:i])
			start = i + 1
		}
	}
	return parts
}
