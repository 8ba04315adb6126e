// SPDX-License-Identifier: MPL-2.0

// Package config loads and validates the packaging configuration: which
// product to package, where its native install tree lives, and how to
// resolve and tag the output archive.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"wheelwright/pkg/elfdeps"
)

const (
	// AppName is the application name.
	AppName = "wheelwright"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "wheelwright"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "yaml"
)

var pythonVersionRe = regexp.MustCompile(`^\d+\.\d+$`)

// Config is the full packaging configuration.
type Config struct {
	Product Product `mapstructure:"product" yaml:"product"`
	Python  Python  `mapstructure:"python" yaml:"python"`
	Install Install `mapstructure:"install" yaml:"install"`
	Resolve Resolve `mapstructure:"resolve" yaml:"resolve"`
	Output  Output  `mapstructure:"output" yaml:"output"`
}

// Product describes the distribution being packaged.
type Product struct {
	// Name is the distribution name (e.g. "uhd").
	Name string `mapstructure:"name" yaml:"name"`
	// Version is the distribution version. When empty the version is read
	// from the VERSION file inside the package directory.
	Version string `mapstructure:"version" yaml:"version,omitempty"`
	// Summary is a one-line description for the archive metadata.
	Summary string `mapstructure:"summary" yaml:"summary,omitempty"`
	// License is the license identifier for the archive metadata.
	License string `mapstructure:"license" yaml:"license,omitempty"`
}

// Python describes the interpreter binding the archive targets.
type Python struct {
	// Version is the interpreter version the compiled extension was built
	// against (e.g. "3.11").
	Version string `mapstructure:"version" yaml:"version"`
	// Package is the importable package name. Defaults to the product name.
	Package string `mapstructure:"package" yaml:"package,omitempty"`
	// Requires lists runtime requirement specifiers.
	Requires []string `mapstructure:"requires" yaml:"requires,omitempty"`
}

// Install locates the native build's install tree.
type Install struct {
	// Root is the install prefix the native build was installed into.
	Root string `mapstructure:"root" yaml:"root"`
	// Manifest is the path to the build system's install manifest,
	// relative to Root unless absolute. Optional.
	Manifest string `mapstructure:"manifest" yaml:"manifest,omitempty"`
}

// Resolve controls shared-library dependency resolution.
type Resolve struct {
	// SearchDirs are extra directories searched for dependency libraries,
	// in order, before the install tree's own lib directories.
	SearchDirs []string `mapstructure:"search_dirs" yaml:"search_dirs,omitempty"`
	// SystemPrefixes overrides the built-in set of library name prefixes
	// excluded from bundling. Empty means the built-in set.
	SystemPrefixes []string `mapstructure:"system_prefixes" yaml:"system_prefixes,omitempty"`
}

// Output controls where and how the archive is written.
type Output struct {
	// Dir is the directory the archive is written into.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// PlatformTag is the platform component of the archive compatibility
	// tag (e.g. "manylinux_2_35_x86_64").
	PlatformTag string `mapstructure:"platform_tag" yaml:"platform_tag"`
	// Staging is the directory the archive tree is materialized into
	// before packing. Defaults to a "staging" directory under Dir.
	Staging string `mapstructure:"staging" yaml:"staging,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Product: Product{
			Name: "uhd",
		},
		Python: Python{
			Version:  "3.11",
			Requires: []string{"numpy<2", "ruamel.yaml"},
		},
		Resolve: Resolve{
			SystemPrefixes: elfdeps.DefaultSystemPrefixes,
		},
		Output: Output{
			Dir:         "dist",
			PlatformTag: "linux_x86_64",
		},
	}
}

// Validate checks the configuration for structural problems. Path
// existence is not checked here: that is the pipeline's job, with better
// diagnostics.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Product,
		validation.Field(&c.Product.Name, validation.Required),
	); err != nil {
		return fmt.Errorf("product: %w", err)
	}
	if err := validation.ValidateStruct(&c.Python,
		validation.Field(&c.Python.Version, validation.Required,
			validation.Match(pythonVersionRe).Error("must look like '3.11'")),
	); err != nil {
		return fmt.Errorf("python: %w", err)
	}
	if err := validation.ValidateStruct(&c.Install,
		validation.Field(&c.Install.Root, validation.Required),
	); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if err := validation.ValidateStruct(&c.Output,
		validation.Field(&c.Output.Dir, validation.Required),
		validation.Field(&c.Output.PlatformTag, validation.Required),
	); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return nil
}

// PackageName returns the importable package name, defaulting to the
// product name.
func (c *Config) PackageName() string {
	if c.Python.Package != "" {
		return c.Python.Package
	}
	return c.Product.Name
}

// ManifestPath returns the absolute install-manifest path, or "" when no
// manifest is configured.
func (c *Config) ManifestPath() string {
	if c.Install.Manifest == "" {
		return ""
	}
	if filepath.IsAbs(c.Install.Manifest) {
		return c.Install.Manifest
	}
	return filepath.Join(c.Install.Root, c.Install.Manifest)
}

// StagingDir returns the staging directory, defaulting to "staging"
// under the output directory.
func (c *Config) StagingDir() string {
	if c.Output.Staging != "" {
		return c.Output.Staging
	}
	return filepath.Join(c.Output.Dir, "staging")
}

// Load reads the configuration. When path is empty, the config file is
// searched in the current directory and the user config directory; a
// missing file yields the defaults. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType(ConfigFileExt)

	defaults := Default()
	v.SetDefault("product.name", defaults.Product.Name)
	v.SetDefault("python.version", defaults.Python.Version)
	v.SetDefault("python.requires", defaults.Python.Requires)
	v.SetDefault("resolve.system_prefixes", defaults.Resolve.SystemPrefixes)
	v.SetDefault("output.dir", defaults.Output.Dir)
	v.SetDefault("output.platform_tag", defaults.Output.PlatformTag)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(ConfigFileName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, AppName))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Render serializes the configuration to YAML, as written by the config
// init command.
func (c *Config) Render() ([]byte, error) {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("rendering config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("rendering config: %w", err)
	}
	return []byte(b.String()), nil
}

// WriteDefault writes the built-in configuration to path, refusing to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	data, err := Default().Render()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
