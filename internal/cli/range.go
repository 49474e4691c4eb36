package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/ud7-tracker/backend/internal/tracking"
)

func newRangeCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "range",
		Short: "Print the time range covered by a folder of HMI logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				return fmt.Errorf("--dir is required")
			}
			merged, err := mergeDir(dir, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			window, ok := tracking.DefaultWindow(merged)
			if !ok {
				return tracking.ErrInputEmpty
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Files:          %s\n", strings.Join(merged.Files, ", "))
			fmt.Fprintf(out, "Records:        %d\n", len(merged.Records))
			fmt.Fprintf(out, "Time range:     %s\n", formatRange(*merged.TimeRange()))
			fmt.Fprintf(out, "Default window: %s\n", formatRange(window))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "folder holding the HMI CSV exports")
	return cmd
}
