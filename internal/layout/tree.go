// SPDX-License-Identifier: MPL-2.0

package layout

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
)

// Entry is one planned archive file: its relative path inside the archive,
// its final content bytes, and the source it came from. Relative paths are
// unique within a Tree.
type Entry struct {
	// RelPath is the slash-separated path inside the archive.
	RelPath string
	// Content is the final byte content, after any run-path rewrite.
	Content []byte
	// Mode is the file mode the entry is staged and packed with.
	Mode fs.FileMode
	// Source is the originating install-tree path, empty for generated
	// files.
	Source string

	// digest is the content identity used for cheap duplicate detection.
	digest uint64
}

// Tree accumulates ArchiveEntry records. Inserting a second entry at an
// existing relative path is a no-op when the content is byte-identical;
// otherwise the first writer wins and the conflict is logged.
type Tree struct {
	entries map[string]*Entry
	logger  *log.Logger
}

// NewTree returns an empty Tree.
func NewTree(logger *log.Logger) *Tree {
	if logger == nil {
		logger = log.Default()
	}
	return &Tree{entries: make(map[string]*Entry), logger: logger}
}

// Add inserts an entry. It reports whether the entry was newly placed:
// false means the path was already occupied, either by identical content
// (silent deduplication) or by different content (first-writer-wins,
// logged as a naming conflict).
func (t *Tree) Add(relPath string, content []byte, mode fs.FileMode, source string) bool {
	relPath = path.Clean(relPath)
	digest := xxhash.Sum64(content)

	if existing, ok := t.entries[relPath]; ok {
		if existing.digest == digest && len(existing.Content) == len(content) {
			return false
		}
		t.logger.Warn("naming conflict in archive tree, keeping first writer",
			"path", relPath, "kept", existing.Source, "dropped", source)
		return false
	}

	t.entries[relPath] = &Entry{
		RelPath: relPath,
		Content: content,
		Mode:    mode,
		Source:  source,
		digest:  digest,
	}
	return true
}

// AddFile reads the file at sourcePath and inserts it at relPath,
// preserving its mode.
func (t *Tree) AddFile(relPath, sourcePath string) error {
	content, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", sourcePath, err)
	}
	info, err := os.Stat(sourcePath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", sourcePath, err)
	}
	t.Add(relPath, content, info.Mode().Perm(), sourcePath)
	return nil
}

// Has reports whether relPath is already occupied.
func (t *Tree) Has(relPath string) bool {
	_, ok := t.entries[path.Clean(relPath)]
	return ok
}

// Get returns the entry at relPath, or nil.
func (t *Tree) Get(relPath string) *Entry {
	return t.entries[path.Clean(relPath)]
}

// Replace swaps the content of an existing entry in place, preserving path,
// mode, and source. Used for run-path rewriting, which must not change an
// entry's identity or placement.
func (t *Tree) Replace(relPath string, content []byte) error {
	e, ok := t.entries[path.Clean(relPath)]
	if !ok {
		return fmt.Errorf("no archive entry at %s", relPath)
	}
	e.Content = content
	e.digest = xxhash.Sum64(content)
	return nil
}

// Len returns the number of entries.
func (t *Tree) Len() int { return len(t.entries) }

// Entries returns all entries sorted lexicographically by relative path.
func (t *Tree) Entries() []*Entry {
	out := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out
}

// WriteTo materializes the tree under dir, creating parent directories as
// needed. The destination is expected to be a fresh staging directory.
func (t *Tree) WriteTo(dir string) error {
	for _, e := range t.Entries() {
		dest := filepath.Join(dir, filepath.FromSlash(e.RelPath))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
		}
		mode := e.Mode
		if mode == 0 {
			mode = 0o644
		}
		if err := os.WriteFile(dest, e.Content, mode); err != nil {
			return fmt.Errorf("staging %s: %w", e.RelPath, err)
		}
	}
	return nil
}
