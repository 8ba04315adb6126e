// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"wheelwright/internal/assemble"
	"wheelwright/internal/config"
)

var (
	flagInstallRoot string
	flagVersion     string
	flagOutputDir   string
	flagPlatformTag string
	flagSearchDirs  []string

	assembleCmd = &cobra.Command{
		Use:   "assemble",
		Short: "Build the relocatable archive from a native install tree",
		Long: `Scan the configured install tree, bundle the product's foreign
shared-library dependencies, rewrite run paths, and pack everything into
a single archive sealed with a content manifest.

Unresolved dependencies and non-rewritable binaries are reported as
warnings; the archive is still produced.`,
		Args: cobra.NoArgs,
		RunE: runAssemble,
	}
)

func init() {
	assembleCmd.Flags().StringVar(&flagInstallRoot, "root", "", "install tree root (overrides config)")
	assembleCmd.Flags().StringVar(&flagVersion, "product-version", "", "product version (overrides config)")
	assembleCmd.Flags().StringVarP(&flagOutputDir, "output", "o", "", "output directory (overrides config)")
	assembleCmd.Flags().StringVar(&flagPlatformTag, "platform-tag", "", "platform compatibility tag (overrides config)")
	assembleCmd.Flags().StringSliceVar(&flagSearchDirs, "search-dir", nil, "extra dependency search directory (repeatable)")
}

func runAssemble(cmd *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if flagInstallRoot != "" {
		cfg.Install.Root = flagInstallRoot
	}
	if flagVersion != "" {
		cfg.Product.Version = flagVersion
	}
	if flagOutputDir != "" {
		cfg.Output.Dir = flagOutputDir
	}
	if flagPlatformTag != "" {
		cfg.Output.PlatformTag = flagPlatformTag
	}
	cfg.Resolve.SearchDirs = append(flagSearchDirs, cfg.Resolve.SearchDirs...)

	report, err := assemble.Run(assemble.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, SuccessStyle.Render("Archive written: ")+PathStyle.Render(report.ArchivePath))
	fmt.Fprintf(out, "  entries: %d\n", report.Entries)
	if len(report.BundledLibs) > 0 {
		fmt.Fprintf(out, "  bundled dependencies (%d):\n", len(report.BundledLibs))
		for _, name := range report.BundledLibs {
			fmt.Fprintf(out, "    %s\n", name)
		}
	}
	if len(report.Utilities) > 0 {
		fmt.Fprintf(out, "  bundled utilities (%d):\n", len(report.Utilities))
		for _, name := range report.Utilities {
			fmt.Fprintf(out, "    %s\n", name)
		}
	}
	for _, w := range report.Warnings {
		fmt.Fprintln(out, WarningStyle.Render("  warning: ")+w.String())
	}
	return nil
}
