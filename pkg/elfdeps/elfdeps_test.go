// SPDX-License-Identifier: EPL-2.0

package elfdeps

import (
	"os"
	"path/filepath"
	"testing"

	"wheelwright/internal/testutil/elftest"
)

// writeLib drops an empty regular file posing as a shared library.
func writeLib(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("not a real library"), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestResolve_FiltersSystemLibraries(t *testing.T) {
	t.Parallel()

	// Scenario: declared deps libusb, boost, libc; allowlist covers libc.
	dir := t.TempDir()
	bin := elftest.Write(t, dir, "rx_samples", elftest.SharedObject{
		Needed:  []string{"libusb-1.0.so.0", "libboost_program_options.so.1.74.0", "libc.so.6"},
		RunPath: "/work/build/lib",
	})

	libDir := t.TempDir()
	writeLib(t, libDir, "libusb-1.0.so.0")
	writeLib(t, libDir, "libboost_program_options.so.1.74.0")
	writeLib(t, libDir, "libc.so.6") // present, but must still be excluded

	r := New([]string{libDir})
	res, err := r.Resolve(bin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Resolved) != 2 {
		t.Fatalf("resolved %d deps, want 2: %+v", len(res.Resolved), res.Resolved)
	}
	if res.Resolved[0].Name != "libboost_program_options.so.1.74.0" {
		t.Errorf("resolved[0] = %q", res.Resolved[0].Name)
	}
	if res.Resolved[1].Name != "libusb-1.0.so.0" {
		t.Errorf("resolved[1] = %q", res.Resolved[1].Name)
	}
	if len(res.Unresolved) != 0 {
		t.Errorf("unresolved = %v, want none", res.Unresolved)
	}
}

func TestResolve_ReportsUnresolvedAsWarningNotError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bin := elftest.Write(t, dir, "libuhd.so.4.6.0", elftest.SharedObject{
		Needed:  []string{"libmystery.so.9"},
		RunPath: "/x",
	})

	r := New([]string{t.TempDir()})
	res, err := r.Resolve(bin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Resolved) != 0 {
		t.Errorf("resolved = %+v, want none", res.Resolved)
	}
	if len(res.Unresolved) != 1 || res.Unresolved[0] != "libmystery.so.9" {
		t.Errorf("unresolved = %v, want [libmystery.so.9]", res.Unresolved)
	}
}

func TestResolve_FirstSearchDirWins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bin := elftest.Write(t, dir, "app", elftest.SharedObject{
		Needed:  []string{"libfoo.so.1"},
		RunPath: "/x",
	})

	first := t.TempDir()
	second := t.TempDir()
	want := writeLib(t, first, "libfoo.so.1")
	writeLib(t, second, "libfoo.so.1")

	r := New([]string{first, second})
	res, err := r.Resolve(bin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Resolved) != 1 || res.Resolved[0].Path != want {
		t.Errorf("resolved = %+v, want path %s", res.Resolved, want)
	}
}

func TestResolve_SkipsDirectoriesMatchingName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bin := elftest.Write(t, dir, "app", elftest.SharedObject{
		Needed:  []string{"libbar.so.2"},
		RunPath: "/x",
	})

	// A directory with the dependency's name must not satisfy resolution.
	decoy := t.TempDir()
	if err := os.Mkdir(filepath.Join(decoy, "libbar.so.2"), 0o755); err != nil {
		t.Fatal(err)
	}
	real := t.TempDir()
	want := writeLib(t, real, "libbar.so.2")

	r := New([]string{decoy, real})
	res, err := r.Resolve(bin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Resolved) != 1 || res.Resolved[0].Path != want {
		t.Errorf("resolved = %+v, want path %s", res.Resolved, want)
	}
}

func TestResolve_ExcludesInterpreterRuntime(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bin := elftest.Write(t, dir, "libpyuhd.so", elftest.SharedObject{
		Needed:  []string{"libpython3.12.so.1.0", "libuhd.so.4.6.0"},
		RunPath: "/x",
	})

	libDir := t.TempDir()
	writeLib(t, libDir, "libpython3.12.so.1.0")
	writeLib(t, libDir, "libuhd.so.4.6.0")

	r := New([]string{libDir})
	res, err := r.Resolve(bin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Resolved) != 1 || res.Resolved[0].Name != "libuhd.so.4.6.0" {
		t.Errorf("resolved = %+v, want only libuhd.so.4.6.0", res.Resolved)
	}
}

func TestResolve_NonELFBinary(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "helper.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	r := New(nil)
	if _, err := r.Resolve(path); err == nil {
		t.Fatal("expected an error for a non-ELF input")
	}
}

func TestIsSystem(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{"libc.so.6", true},
		{"libm.so.6", true},
		{"libpthread.so.0", true},
		{"ld-linux-x86-64.so.2", true},
		{"libgcc_s.so.1", true},
		{"libstdc++.so.6", true},
		{"libpython3.10.so.1.0", true},
		{"libusb-1.0.so.0", false},
		{"libboost_system.so.1.74.0", false},
		{"libuhd.so.4.6.0", false},
	}

	r := New(nil)
	for _, tt := range tests {
		if got := r.IsSystem(tt.name); got != tt.want {
			t.Errorf("IsSystem(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsSystem_CustomTable(t *testing.T) {
	t.Parallel()

	r := &Resolver{SystemPrefixes: []string{"libbionic"}}
	if !r.IsSystem("libbionic.so") {
		t.Error("custom prefix not honored")
	}
	if r.IsSystem("libc.so.6") {
		t.Error("default table leaked into custom configuration")
	}
}
