// SPDX-License-Identifier: MPL-2.0

// Package assemble runs the full packaging pipeline: scan the native
// install tree, plan the archive layout, bundle and relocate shared
// libraries, generate metadata and the content manifest, and pack the
// final archive.
package assemble

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"wheelwright/internal/config"
	"wheelwright/internal/layout"
	"wheelwright/internal/manifest"
	"wheelwright/internal/scan"
	"wheelwright/internal/wheel"
	"wheelwright/pkg/elfdeps"
	"wheelwright/pkg/elfreloc"
)

// Warning records a recoverable per-binary problem: the pipeline keeps
// going and reports these at the end.
type Warning struct {
	// Binary is the archive path of the binary the problem applies to.
	Binary string
	// Dependency is the declared library name, when the problem concerns
	// one dependency.
	Dependency string
	// Message describes the problem.
	Message string
}

func (w Warning) String() string {
	if w.Dependency != "" {
		return fmt.Sprintf("%s: %s: %s", w.Binary, w.Dependency, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Binary, w.Message)
}

// Report summarizes one pipeline run.
type Report struct {
	// ArchivePath is the path of the written archive.
	ArchivePath string
	// Version is the product version that was packaged.
	Version string
	// Entries is the number of files in the archive.
	Entries int
	// BundledLibs are the foreign dependency names copied into the
	// archive, sorted.
	BundledLibs []string
	// Utilities are the bundled executable names, sorted.
	Utilities []string
	// Warnings are the recoverable problems encountered.
	Warnings []Warning
}

// Options configures one pipeline run.
type Options struct {
	Config *config.Config
	Logger *log.Logger
}

// Run executes the pipeline. It fails only on structural impossibilities
// (install tree missing, package directory nowhere, archive not
// writable); per-binary resolution and relocation problems are collected
// as Report.Warnings.
func Run(opts Options) (*Report, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	scanner := scan.New(cfg.Install.Root, cfg.ManifestPath(), cfg.Product.Name, logger)
	res, err := scanner.Scan()
	if err != nil {
		return nil, err
	}
	logger.Info("scanned install tree", "root", cfg.Install.Root, "artifacts", len(res.Artifacts))

	pkgDir, err := scan.LocatePackageDir(cfg.Install.Root, cfg.PackageName(), logger)
	if err != nil {
		return nil, err
	}

	version, err := resolveVersion(cfg, pkgDir)
	if err != nil {
		return nil, err
	}

	lay := layout.Layout{
		Name:      cfg.Product.Name,
		Version:   version,
		PyVersion: cfg.Python.Version,
		Package:   cfg.PackageName(),
	}
	planner := layout.NewPlanner(lay, logger)
	report := &Report{Version: version}

	if _, err := planner.PlacePackageTree(pkgDir); err != nil {
		return nil, err
	}

	if err := placeArtifacts(planner, res, pkgDir, report, logger); err != nil {
		return nil, err
	}

	needsRelocation := resolveDependencies(cfg, planner, report, logger)
	relocate(lay, planner, needsRelocation, report, logger)
	seedImageInventory(lay, planner)
	placeLicense(cfg, lay, planner, logger)
	placeMetadata(cfg, lay, planner, version, report)

	archivePath, err := stageAndPack(cfg, lay, planner, version, logger)
	if err != nil {
		return nil, err
	}

	report.ArchivePath = archivePath
	report.Entries = planner.Tree.Len()
	sort.Strings(report.BundledLibs)
	sort.Strings(report.Utilities)

	logger.Info("archive written", "path", archivePath, "entries", report.Entries,
		"bundled", len(report.BundledLibs), "warnings", len(report.Warnings))
	return report, nil
}

// resolveVersion returns the configured version, falling back to the
// VERSION file the build drops inside the interpreter package.
func resolveVersion(cfg *config.Config, pkgDir string) (string, error) {
	if cfg.Product.Version != "" {
		return cfg.Product.Version, nil
	}
	data, err := os.ReadFile(filepath.Join(pkgDir, "VERSION"))
	if err != nil {
		return "", fmt.Errorf("product version not configured and not readable from package: %w", err)
	}
	version := strings.TrimSpace(string(data))
	if version == "" {
		return "", errors.New("package VERSION file is empty")
	}
	return version, nil
}

// placeArtifacts routes every scanned artifact to its archive subtree.
// Files under the interpreter package directory are skipped here: the
// whole package tree is placed as one unit.
func placeArtifacts(planner *layout.Planner, res *scan.Result, pkgDir string, report *Report, logger *log.Logger) error {
	inPackage := func(p string) bool {
		return strings.HasPrefix(p, pkgDir+string(filepath.Separator))
	}

	for _, a := range res.Artifacts {
		if inPackage(a.Path) {
			continue
		}
		var err error
		switch a.Kind {
		case scan.KindSharedLibrary:
			_, err = planner.PlaceLibrary(a)
		case scan.KindHeader:
			_, err = planner.PlaceHeader(a)
		case scan.KindDescriptor:
			_, err = planner.PlaceDescriptor(a)
		case scan.KindData:
			_, err = planner.PlaceData(a)
		case scan.KindExecutable:
			// Placed below from the explicit executables slice.
		}
		if err != nil {
			return err
		}
	}

	for _, a := range res.Executables {
		if inPackage(a.Path) {
			continue
		}
		if _, err := planner.PlaceExecutable(a); err != nil {
			return err
		}
		report.Utilities = append(report.Utilities, a.Name)
	}

	logger.Debug("planned install artifacts", "entries", planner.Tree.Len())
	return nil
}

// resolveDependencies walks every planned binary, locates its foreign
// dependencies and bundles them, then keeps going over the newly bundled
// libraries until no binary adds anything. Unresolved names become
// warnings, not failures. The returned set holds the archive paths of
// binaries that declare foreign dependencies and therefore need a
// relocated run path.
func resolveDependencies(cfg *config.Config, planner *layout.Planner, report *Report, logger *log.Logger) map[string]bool {
	searchDirs := append([]string{}, cfg.Resolve.SearchDirs...)
	for _, sub := range []string{"lib", "lib64", "usr/lib"} {
		searchDirs = append(searchDirs, filepath.Join(cfg.Install.Root, sub))
	}

	resolver := elfdeps.New(searchDirs)
	if len(cfg.Resolve.SystemPrefixes) > 0 {
		resolver.SystemPrefixes = cfg.Resolve.SystemPrefixes
	}

	processed := make(map[string]bool)
	needsRelocation := make(map[string]bool)
	for {
		added := false
		for _, e := range planner.Tree.Entries() {
			if processed[e.RelPath] || e.Source == "" || !elfreloc.IsELF(e.Content) {
				continue
			}
			processed[e.RelPath] = true

			res, err := resolver.Resolve(e.Source)
			if err != nil {
				report.Warnings = append(report.Warnings, Warning{
					Binary:  e.RelPath,
					Message: fmt.Sprintf("dependency scan failed: %v", err),
				})
				continue
			}
			if len(res.Resolved) > 0 || len(res.Unresolved) > 0 {
				needsRelocation[e.RelPath] = true
			}
			for _, dep := range res.Resolved {
				fresh := !planner.Tree.Has(path.Join(planner.Layout.LibDir(), dep.Name))
				if _, err := planner.PlaceDependency(dep.Name, dep.Path); err != nil {
					report.Warnings = append(report.Warnings, Warning{
						Binary:     e.RelPath,
						Dependency: dep.Name,
						Message:    fmt.Sprintf("bundling failed: %v", err),
					})
					continue
				}
				if fresh {
					report.BundledLibs = append(report.BundledLibs, dep.Name)
					added = true
					logger.Debug("bundled dependency", "name", dep.Name, "from", dep.Path)
				}
			}
			for _, name := range res.Unresolved {
				report.Warnings = append(report.Warnings, Warning{
					Binary:     e.RelPath,
					Dependency: name,
					Message:    "not found in any search directory",
				})
			}
		}
		if !added {
			break
		}
	}
	return needsRelocation
}

// relocate rewrites the run path of every planned ELF entry so it points
// at the bundled library directory relative to the entry's own location.
// A binary that cannot be rewritten ships as it is, but never silently:
// when it declares foreign dependencies, a missing or undersized run-path
// slot produces a report warning, since the loader will not find the
// bundled copies through it.
func relocate(lay layout.Layout, planner *layout.Planner, needsRelocation map[string]bool, report *Report, logger *log.Logger) {
	for _, e := range planner.Tree.Entries() {
		if !elfreloc.IsELF(e.Content) {
			continue
		}
		runpath := lay.RunPathFor(path.Dir(e.RelPath))
		rewritten, err := elfreloc.Rewrite(e.Content, runpath)
		switch {
		case err == nil:
			if err := planner.Tree.Replace(e.RelPath, rewritten); err != nil {
				report.Warnings = append(report.Warnings, Warning{
					Binary:  e.RelPath,
					Message: fmt.Sprintf("relocation failed: %v", err),
				})
				continue
			}
			logger.Debug("rewrote run path", "entry", e.RelPath, "runpath", runpath)
		case errors.Is(err, elfreloc.ErrNoRunPath), errors.Is(err, elfreloc.ErrNoDynamic):
			if needsRelocation[e.RelPath] {
				report.Warnings = append(report.Warnings, Warning{
					Binary:  e.RelPath,
					Message: "no rewritable run path entry; bundled dependencies will not be found at load time",
				})
				continue
			}
			logger.Debug("no run path to rewrite", "entry", e.RelPath)
		case errors.Is(err, elfreloc.ErrRunPathTooLong):
			report.Warnings = append(report.Warnings, Warning{
				Binary:  e.RelPath,
				Message: fmt.Sprintf("existing run path slot too small for %q", runpath),
			})
		default:
			report.Warnings = append(report.Warnings, Warning{
				Binary:  e.RelPath,
				Message: fmt.Sprintf("relocation failed: %v", err),
			})
		}
	}
}

// seedImageInventory plants an empty firmware-image inventory when the
// install tree did not ship one, so the image downloader has a consistent
// starting state after installation.
func seedImageInventory(lay layout.Layout, planner *layout.Planner) {
	rel := path.Join(lay.ShareDir(), "images", "inventory.json")
	for _, e := range planner.Tree.Entries() {
		if strings.HasPrefix(e.RelPath, path.Join(lay.ShareDir(), "images")+"/") {
			return
		}
	}
	planner.Tree.Add(rel, []byte("{}\n"), 0o644, "")
	planner.Tree.Add(path.Join(lay.PackageShareDir(), "images", "inventory.json"), []byte("{}\n"), 0o644, "")
}

// placeLicense copies the product license into the metadata directory.
// The chain mirrors where native builds leave the file: the install root,
// then the host subtree, then the GNU-style COPYING name.
func placeLicense(cfg *config.Config, lay layout.Layout, planner *layout.Planner, logger *log.Logger) {
	for _, name := range []string{"LICENSE", filepath.Join("host", "LICENSE"), "COPYING"} {
		src := filepath.Join(cfg.Install.Root, name)
		if info, err := os.Stat(src); err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := planner.Tree.AddFile(path.Join(lay.DistInfoDir(), "LICENSE"), src); err == nil {
			return
		}
	}
	logger.Debug("no license file found at install root")
}

// placeMetadata generates the dist-info metadata files and the CLI shim
// module console scripts dispatch through.
func placeMetadata(cfg *config.Config, lay layout.Layout, planner *layout.Planner, version string, report *Report) {
	meta := wheel.Metadata{
		Name:     cfg.Product.Name,
		Version:  version,
		Summary:  cfg.Product.Summary,
		License:  cfg.Product.License,
		Requires: cfg.Python.Requires,
		Tag:      "py3-none-" + cfg.Output.PlatformTag,
	}
	planner.Tree.Add(path.Join(lay.DistInfoDir(), "METADATA"), meta.MetadataFile(), 0o644, "")
	planner.Tree.Add(path.Join(lay.DistInfoDir(), "WHEEL"), meta.WheelFile(), 0o644, "")
	planner.Tree.Add(path.Join(lay.DistInfoDir(), "entry_points.txt"),
		wheel.EntryPoints(lay.Package, report.Utilities), 0o644, "")
	planner.Tree.Add(path.Join(lay.SitePackagesDir(), "_"+lay.Package+"_cli.py"),
		wheel.CLIShim(lay.Package), 0o644, "")
}

// stageAndPack materializes the planned tree into the staging directory,
// generates the manifest, and packs the archive.
func stageAndPack(cfg *config.Config, lay layout.Layout, planner *layout.Planner, version string, logger *log.Logger) (string, error) {
	staging := cfg.StagingDir()
	if err := os.RemoveAll(staging); err != nil {
		return "", fmt.Errorf("clearing staging directory: %w", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", fmt.Errorf("creating staging directory: %w", err)
	}
	if err := planner.Tree.WriteTo(staging); err != nil {
		return "", err
	}

	records, err := manifest.Generate(staging, lay.RecordPath())
	if err != nil {
		return "", err
	}
	encoded, err := manifest.Encode(records)
	if err != nil {
		return "", err
	}
	recordFile := filepath.Join(staging, filepath.FromSlash(lay.RecordPath()))
	if err := os.MkdirAll(filepath.Dir(recordFile), 0o755); err != nil {
		return "", fmt.Errorf("creating metadata directory: %w", err)
	}
	if err := os.WriteFile(recordFile, encoded, 0o644); err != nil {
		return "", fmt.Errorf("writing record manifest: %w", err)
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	archive := filepath.Join(cfg.Output.Dir,
		fmt.Sprintf("%s-%s-py3-none-%s.whl", cfg.Product.Name, version, cfg.Output.PlatformTag))
	if err := wheel.Pack(archive, staging, records); err != nil {
		return "", err
	}
	logger.Debug("packed archive", "path", archive, "records", len(records))
	return archive, nil
}
