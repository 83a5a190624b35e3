// SPDX-License-Identifier: Apache-2.0
package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file.mlir>...",
		Short: "Parse and verify files and report which transfers would be split",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			results, err := processFiles(cmd.Context(), args, jobs, check(cfg))
			if err != nil {
				return err
			}
			for _, r := range results {
				printDiagnostics(cmd.ErrOrStderr(), r)
			}
			return report(cmd.ErrOrStderr(), results, start)
		},
	}
}
