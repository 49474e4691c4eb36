// Package cli implements the ud7convert command line tool.
package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/ud7-tracker/backend/internal/logger"
	"github.com/ud7-tracker/backend/internal/models"
	"github.com/ud7-tracker/backend/internal/parser"
)

// displayLayout is how times are printed to the console.
const displayLayout = "2006-01-02 15:04:05"

// NewRootCmd builds the ud7convert command tree.
func NewRootCmd(version string) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "ud7convert",
		Short: "Extract UD7 tracking episodes from HMI CSV logs",
		Long: `ud7convert merges the HMI CSV exports in a folder, cuts them into
tracking episodes and writes one worksheet and chart per episode.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(logger.Config{Level: logLevel, Stderr: true})
			cmd.SetContext(logger.WithContext(cmd.Context(), logger.L()))
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(newRangeCmd())
	root.AddCommand(newRunCmd())
	return root
}

// mergeDir merges the folder and reports skipped files on errOut.
func mergeDir(dir string, errOut io.Writer) (*models.MergedLog, error) {
	merged, err := parser.MergeFolder(dir, nil)
	if err != nil {
		return nil, err
	}
	for _, name := range merged.Skipped {
		fmt.Fprintf(errOut, "warning: skipped %s (not an HMI export)\n", name)
	}
	return merged, nil
}

func formatRange(r models.TimeRange) string {
	return fmt.Sprintf("%s .. %s", r.Start.Format(displayLayout), r.End.Format(displayLayout))
}

func parseBound(name, raw string) (time.Time, error) {
	t, err := parser.ParseWindowBound(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}
