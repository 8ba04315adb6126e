// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"wheelwright/internal/wheel"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <archive>",
	Short: "Check an archive against its embedded content manifest",
	Long: `Read the archive's embedded manifest and recompute every entry's
digest and size, in both directions: recorded entries must be present
and intact, and present entries must be recorded. Exits non-zero when
any mismatch is found.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	mismatches, err := wheel.Verify(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(mismatches) == 0 {
		fmt.Fprintln(out, SuccessStyle.Render("OK: ")+PathStyle.Render(args[0])+" matches its manifest")
		return nil
	}
	for _, m := range mismatches {
		fmt.Fprintln(out, ErrorStyle.Render("mismatch: ")+m.Path+": "+m.Reason)
	}
	return &ExitError{Code: 1, Err: fmt.Errorf("%d manifest mismatch(es)", len(mismatches))}
}
