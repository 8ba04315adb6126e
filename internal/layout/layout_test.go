// SPDX-License-Identifier: MPL-2.0

package layout

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
)

func testLayout() Layout {
	return Layout{Name: "uhd", Version: "4.6.0", PyVersion: "3.12", Package: "uhd"}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestLayout_Subtrees(t *testing.T) {
	t.Parallel()

	l := testLayout()

	tests := []struct {
		got  string
		want string
	}{
		{l.DistInfoDir(), "uhd-4.6.0.dist-info"},
		{l.DataDir(), "uhd-4.6.0.data"},
		{l.HeadersDir(), "uhd-4.6.0.data/headers"},
		{l.ScriptsDir(), "uhd-4.6.0.data/scripts"},
		{l.LibDir(), "uhd-4.6.0.data/lib"},
		{l.CMakeDir(), "uhd-4.6.0.data/lib/cmake/uhd"},
		{l.PkgConfigDir(), "uhd-4.6.0.data/lib/pkgconfig"},
		{l.ShareDir(), "uhd-4.6.0.data/share/uhd"},
		{l.SitePackagesDir(), "uhd-4.6.0.data/lib/python3.12/site-packages"},
		{l.PackageDir(), "uhd-4.6.0.data/lib/python3.12/site-packages/uhd"},
		{l.PackageShareDir(), "uhd-4.6.0.data/lib/python3.12/site-packages/uhd/share/uhd"},
		{l.RecordPath(), "uhd-4.6.0.dist-info/RECORD"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestRunPathFor(t *testing.T) {
	t.Parallel()

	l := testLayout()

	tests := []struct {
		name     string
		entryDir string
		want     string
	}{
		// Bundled libraries are self-referential: siblings resolve with
		// no absolute component.
		{"bundled library", l.LibDir(), "$ORIGIN"},
		// Executables climb out of scripts/ and back into lib/.
		{"executable", l.ScriptsDir(), "$ORIGIN/../lib"},
		// The compiled extension climbs the fixed site-packages nesting:
		// package dir -> site dir -> interpreter dir -> lib.
		{"compiled extension", l.PackageDir(), "$ORIGIN/../../.."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := l.RunPathFor(tt.entryDir); got != tt.want {
				t.Errorf("RunPathFor(%s) = %q, want %q", tt.entryDir, got, tt.want)
			}
		})
	}
}

func TestRelPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to, want string
	}{
		{"a/b", "a/b", "."},
		{"a/b", "a/c", "../c"},
		{"a/b/c", "a", "../.."},
		{"a", "a/b/c", "b/c"},
		{"x", "y", "../y"},
	}

	for _, tt := range tests {
		if got := relPath(tt.from, tt.to); got != tt.want {
			t.Errorf("relPath(%q, %q) = %q, want %q", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTree_DeduplicatesIdenticalContent(t *testing.T) {
	t.Parallel()

	tree := NewTree(quietLogger())

	if !tree.Add("lib/libusb-1.0.so.0", []byte("usb"), 0o755, "/a/libusb-1.0.so.0") {
		t.Fatal("first insert rejected")
	}
	// Same path, same bytes: silent no-op.
	if tree.Add("lib/libusb-1.0.so.0", []byte("usb"), 0o755, "/b/libusb-1.0.so.0") {
		t.Error("duplicate insert reported as newly placed")
	}
	if tree.Len() != 1 {
		t.Errorf("tree has %d entries, want 1", tree.Len())
	}
}

func TestTree_FirstWriterWinsOnConflict(t *testing.T) {
	t.Parallel()

	tree := NewTree(quietLogger())
	tree.Add("scripts/tool", []byte("first"), 0o755, "/first/tool")
	tree.Add("scripts/tool", []byte("second"), 0o755, "/second/tool")

	e := tree.Get("scripts/tool")
	if e == nil {
		t.Fatal("entry missing")
	}
	if string(e.Content) != "first" {
		t.Errorf("content = %q, want the first writer's bytes", e.Content)
	}
	if e.Source != "/first/tool" {
		t.Errorf("source = %q, want /first/tool", e.Source)
	}
}

func TestTree_EntriesSortedLexicographically(t *testing.T) {
	t.Parallel()

	tree := NewTree(quietLogger())
	tree.Add("z/last", nil, 0o644, "")
	tree.Add("a/first", nil, 0o644, "")
	tree.Add("m/middle", nil, 0o644, "")

	entries := tree.Entries()
	want := []string{"a/first", "m/middle", "z/last"}
	for i, e := range entries {
		if e.RelPath != want[i] {
			t.Errorf("entries[%d] = %s, want %s", i, e.RelPath, want[i])
		}
	}
}

func TestTree_Replace(t *testing.T) {
	t.Parallel()

	tree := NewTree(quietLogger())
	tree.Add("lib/libuhd.so.4.6.0", []byte("before"), 0o755, "/src")

	if err := tree.Replace("lib/libuhd.so.4.6.0", []byte("after")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := string(tree.Get("lib/libuhd.so.4.6.0").Content); got != "after" {
		t.Errorf("content = %q after replace", got)
	}

	if err := tree.Replace("lib/missing.so", []byte("x")); err == nil {
		t.Error("replacing a missing entry must fail")
	}
}

func TestIsLinkerNameLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, target string
		want         bool
	}{
		{"libuhd.so", "/usr/lib/libuhd.so.4.6.0", true},
		{"libuhd.so.4", "/usr/lib/libuhd.so.4.6.0", false},
		{"libuhd.so.4.6.0", "/usr/lib/libuhd.so.4.6.0", false},
		{"libfoo.so", "/usr/lib/libbar.so.1", false},
	}

	for _, tt := range tests {
		if got := isLinkerNameLink(tt.name, tt.target); got != tt.want {
			t.Errorf("isLinkerNameLink(%q, %q) = %v, want %v", tt.name, tt.target, got, tt.want)
		}
	}
}
