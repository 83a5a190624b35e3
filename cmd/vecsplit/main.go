// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"vecsplit/internal/config"
	"vecsplit/internal/split"
)

var (
	configPath string
	strategy   string
	verbosity  int
	noColor    bool
	jobs       int
)

// errFilesFailed is returned once every per-file diagnostic was printed.
var errFilesFailed = errors.New("some files failed")

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if errors.Cause(err) != errFilesFailed {
			color.New(color.FgRed).Fprintf(os.Stderr, "error: %s\n", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "vecsplit",
		Short:         "Split out-of-bounds vector transfers into fast and slow paths",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			commonlog.Configure(verbosity, nil)
			if noColor {
				color.NoColor = true
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.FileName, "configuration file")
	flags.StringVarP(&strategy, "strategy", "s", "", "split strategy, overriding the configuration (none, force-in-bounds, copy-buffer, reissue-and-buffer)")
	flags.CountVarP(&verbosity, "verbose", "v", "log verbosity (repeat for more)")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.IntVarP(&jobs, "jobs", "j", 0, "files processed concurrently (0 means one per CPU)")

	root.AddCommand(newRunCommand(), newCheckCommand())
	return root
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if strategy != "" {
		if _, err := split.ParseStrategy(strategy); err != nil {
			return nil, err
		}
		cfg.Strategy = strategy
	}
	return cfg, nil
}

func report(w io.Writer, results []*fileResult, start time.Time) error {
	failed := 0
	for _, r := range results {
		if r.failed {
			failed++
		}
	}

	formattedDuration := formatDuration(time.Since(start))
	if failed > 0 {
		color.New(color.FgRed).Fprintf(w, "%d of %d files failed after %s\n", failed, len(results), formattedDuration)
		return errFilesFailed
	}
	color.New(color.FgGreen).Fprintf(w, "Successfully processed %d files in %s\n", len(results), formattedDuration)
	return nil
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return fmt.Sprintf("%.2fmin", d.Minutes())
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1000000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fμs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}
