// SPDX-License-Identifier: MPL-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValidOnceRootSet(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure without an install root")
	}
	cfg.Install.Root = "/opt/uhd"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsBadPythonVersion(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Install.Root = "/opt/uhd"
	cfg.Python.Version = "3.11.2"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of three-component interpreter version")
	}
	cfg.Python.Version = "3.12"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wheelwright.yaml")
	content := `product:
  name: uhd
  version: 4.6.0
python:
  version: "3.12"
install:
  root: /opt/uhd
  manifest: build/install_manifest.txt
output:
  dir: out
  platform_tag: manylinux_2_35_x86_64
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Product.Version != "4.6.0" {
		t.Errorf("version = %q", cfg.Product.Version)
	}
	if cfg.Python.Version != "3.12" {
		t.Errorf("python version = %q", cfg.Python.Version)
	}
	if cfg.Output.PlatformTag != "manylinux_2_35_x86_64" {
		t.Errorf("platform tag = %q", cfg.Output.PlatformTag)
	}
	// Defaults survive for keys the file leaves out.
	if len(cfg.Resolve.SystemPrefixes) == 0 {
		t.Error("system prefixes default was dropped")
	}
	if len(cfg.Python.Requires) == 0 {
		t.Error("requires default was dropped")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestDerivedPaths(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Install.Root = "/opt/uhd"

	if got := cfg.PackageName(); got != "uhd" {
		t.Errorf("PackageName() = %q", got)
	}
	cfg.Python.Package = "uhd4"
	if got := cfg.PackageName(); got != "uhd4" {
		t.Errorf("PackageName() with override = %q", got)
	}

	if got := cfg.ManifestPath(); got != "" {
		t.Errorf("ManifestPath() without manifest = %q", got)
	}
	cfg.Install.Manifest = "build/install_manifest.txt"
	if got := cfg.ManifestPath(); got != filepath.Join("/opt/uhd", "build", "install_manifest.txt") {
		t.Errorf("ManifestPath() = %q", got)
	}
	cfg.Install.Manifest = "/abs/manifest.txt"
	if got := cfg.ManifestPath(); got != "/abs/manifest.txt" {
		t.Errorf("absolute ManifestPath() = %q", got)
	}

	if got := cfg.StagingDir(); got != filepath.Join("dist", "staging") {
		t.Errorf("StagingDir() default = %q", got)
	}
	cfg.Output.Staging = "/tmp/stage"
	if got := cfg.StagingDir(); got != "/tmp/stage" {
		t.Errorf("StagingDir() override = %q", got)
	}
}

func TestWriteDefaultAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wheelwright.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	if err := WriteDefault(path); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "name: uhd") {
		t.Fatalf("rendered config missing product name:\n%s", data)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Product.Name != "uhd" {
		t.Errorf("reloaded name = %q", cfg.Product.Name)
	}
	if cfg.Output.Dir != "dist" {
		t.Errorf("reloaded output dir = %q", cfg.Output.Dir)
	}
}
