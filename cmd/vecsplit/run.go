// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	diag "vecsplit/internal/errors"
)

func newRunCommand() *cobra.Command {
	var inPlace bool

	cmd := &cobra.Command{
		Use:   "run <file.mlir>...",
		Short: "Apply the configured passes and print the resulting IR",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			results, err := processFiles(cmd.Context(), args, jobs, transform(cfg))
			if err != nil {
				return err
			}

			for _, r := range results {
				printDiagnostics(cmd.ErrOrStderr(), r)
				if r.failed {
					continue
				}
				if inPlace {
					if err := os.WriteFile(r.path, []byte(r.output), 0o644); err != nil {
						return err
					}
					continue
				}
				writeOutput(cmd.OutOrStdout(), r, len(results) > 1)
			}
			return report(cmd.ErrOrStderr(), results, start)
		},
	}

	cmd.Flags().BoolVarP(&inPlace, "in-place", "i", false, "overwrite the input files")
	return cmd
}

func writeOutput(w io.Writer, r *fileResult, header bool) {
	if header {
		fmt.Fprintf(w, "// ----- %s\n", r.path)
	}
	fmt.Fprint(w, r.output)
}

func printDiagnostics(w io.Writer, r *fileResult) {
	if len(r.diagnostics) == 0 {
		return
	}
	fmt.Fprint(w, diag.NewErrorReporter(r.path, r.source).FormatAll(r.diagnostics))
}
