// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetVersionString(t *testing.T) {
	if got := getVersionString(); !strings.Contains(got, "dev") {
		t.Errorf("default version string = %q", got)
	}

	old := Version
	Version = "1.2.3"
	defer func() { Version = old }()
	if got := getVersionString(); !strings.Contains(got, "1.2.3") {
		t.Errorf("release version string = %q", got)
	}
}

func TestRootRegistersSubcommands(t *testing.T) {
	for _, name := range []string{"assemble", "verify", "inspect", "config"} {
		found := false
		for _, sub := range rootCmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVerifyCommandMissingArchive(t *testing.T) {
	cmd := verifyCmd
	cmd.SetOut(&bytes.Buffer{})
	if err := runVerify(cmd, []string{filepath.Join(t.TempDir(), "nope.whl")}); err == nil {
		t.Fatal("expected error for missing archive")
	}
}

func TestConfigInitWritesFile(t *testing.T) {
	oldCfg := cfgFile
	cfgFile = filepath.Join(t.TempDir(), "wheelwright.yaml")
	defer func() { cfgFile = oldCfg }()

	out := &bytes.Buffer{}
	configInitCmd.SetOut(out)
	if err := runConfigInit(configInitCmd, nil); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(cfgFile); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	// A second init must refuse to clobber the file.
	if err := runConfigInit(configInitCmd, nil); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
}
