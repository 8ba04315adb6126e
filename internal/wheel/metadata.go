// SPDX-License-Identifier: MPL-2.0

// Package wheel serializes a planned archive tree plus its manifest into
// the final wheel container, and verifies packed archives against their
// embedded manifest.
package wheel

import (
	"fmt"
	"sort"
	"strings"
)

// generator identifies this tool in the WHEEL file.
const generator = "wheelwright"

// Metadata is the distribution metadata embedded in the archive's
// dist-info directory.
type Metadata struct {
	// Name is the distribution name.
	Name string
	// Version is the distribution version.
	Version string
	// Summary is a one-line description.
	Summary string
	// License is the license identifier.
	License string
	// Requires lists requirement specifiers (e.g. "numpy<2").
	Requires []string
	// Tag is the compatibility tag (e.g. "py3-none-manylinux_2_35_x86_64").
	Tag string
}

// MetadataFile renders the METADATA file.
func (m Metadata) MetadataFile() []byte {
	var b strings.Builder
	b.WriteString("Metadata-Version: 2.1\n")
	fmt.Fprintf(&b, "Name: %s\n", m.Name)
	fmt.Fprintf(&b, "Version: %s\n", m.Version)
	if m.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", m.Summary)
	}
	if m.License != "" {
		fmt.Fprintf(&b, "License: %s\n", m.License)
	}
	for _, req := range m.Requires {
		fmt.Fprintf(&b, "Requires-Dist: %s\n", req)
	}
	return []byte(b.String())
}

// WheelFile renders the WHEEL file. Root-Is-Purelib is always false: the
// payload is platform-specific native code.
func (m Metadata) WheelFile() []byte {
	var b strings.Builder
	b.WriteString("Wheel-Version: 1.0\n")
	fmt.Fprintf(&b, "Generator: %s\n", generator)
	b.WriteString("Root-Is-Purelib: false\n")
	fmt.Fprintf(&b, "Tag: %s\n", m.Tag)
	return []byte(b.String())
}

// imagesDownloaderEntry is the utility that must always be reachable as a
// console script, even when the native build did not install a binary for
// it: the firmware image downloader ships as part of the interpreter
// package.
const imagesDownloaderEntry = "uhd_images_downloader"

// EntryPoints renders the entry_points.txt console-script section: one
// entry per bundled utility, dispatched through the generated CLI shim
// module. The image-downloader entry is appended when no bundled utility
// already provides it. Names are emitted sorted so the file is
// reproducible.
func EntryPoints(pkg string, utilities []string) []byte {
	shim := "_" + pkg + "_cli"

	names := make([]string, 0, len(utilities)+1)
	names = append(names, utilities...)

	found := false
	for _, u := range utilities {
		if u == imagesDownloaderEntry {
			found = true
			break
		}
	}
	if !found {
		names = append(names, imagesDownloaderEntry)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("[console_scripts]\n")
	for _, name := range names {
		fmt.Fprintf(&b, "%s = %s:main\n", name, shim)
	}
	return []byte(b.String())
}

// CLIShim renders the dispatch module referenced by the console-script
// entries: it locates the bundled binary named like the invoked entry
// point next to the installed package and executes it in place.
func CLIShim(pkg string) []byte {
	return []byte(fmt.Sprintf(`import os
import sys


def main():
    name = os.path.basename(sys.argv[0])
    here = os.path.dirname(os.path.abspath(__file__))
    candidates = [
        os.path.join(here, %[1]q, "utils", name),
        os.path.join(sys.prefix, "bin", name),
    ]
    for candidate in candidates:
        if os.path.isfile(candidate) and os.access(candidate, os.X_OK):
            os.execv(candidate, [candidate] + sys.argv[1:])
    sys.stderr.write("%%s: bundled binary not found\n" %% name)
    return 1


if __name__ == "__main__":
    sys.exit(main())
`, pkg))
}
