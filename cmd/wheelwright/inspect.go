// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"wheelwright/internal/wheel"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <archive>",
	Short: "List an archive's manifest entries",
	Long: `Print every entry recorded in the archive's embedded manifest:
relative path, size, and content digest.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	records, err := wheel.ReadManifest(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, TitleStyle.Render(args[0]))
	for _, rec := range records {
		if rec.Size < 0 {
			fmt.Fprintf(out, "  %s\n", rec.Path)
			continue
		}
		fmt.Fprintf(out, "  %s  %d  %s\n", rec.Path, rec.Size, rec.Digest)
	}
	fmt.Fprintln(out, SubtitleStyle.Render(fmt.Sprintf("%d entries", len(records))))
	return nil
}
