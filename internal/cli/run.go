package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/ud7-tracker/backend/internal/export"
	"github.com/ud7-tracker/backend/internal/logger"
	"github.com/ud7-tracker/backend/internal/models"
	"github.com/ud7-tracker/backend/internal/tracking"
)

type runFlags struct {
	job      string
	dir      string
	start    string
	end      string
	channels []string
	xlsx     string
	plots    string
	noXLSX   bool
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Extract tracking episodes and export them",
		Long: `run merges the folder, extracts every tracking episode whose start marker
lies in the window and writes the workbook (and optional PNG plots).
The window defaults to the whole log.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			return runJob(cmd, job)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.job, "job", "", "YAML job file; flags override its fields")
	fl.StringVarP(&f.dir, "dir", "d", "", "folder holding the HMI CSV exports")
	fl.StringVar(&f.start, "start", "", "window start, YYYY-MM-DD HH:MM:SS")
	fl.StringVar(&f.end, "end", "", "window end, YYYY-MM-DD HH:MM:SS")
	fl.StringSliceVar(&f.channels, "channels", nil, "channels to export: FREQ, IFB, VFB (default FREQ,IFB)")
	fl.StringVar(&f.xlsx, "xlsx", "", "workbook path or folder (default <dir>/"+export.DefaultWorkbookName+")")
	fl.StringVar(&f.plots, "plots", "", "folder for one PNG plot per episode")
	fl.BoolVar(&f.noXLSX, "no-xlsx", false, "skip the workbook")
	return cmd
}

// resolve loads the job file, if any, and lays the explicitly set flags over it.
func (f *runFlags) resolve(cmd *cobra.Command) (*Job, error) {
	job := &Job{}
	if f.job != "" {
		loaded, err := LoadJob(f.job)
		if err != nil {
			return nil, err
		}
		job = loaded
	}

	changed := cmd.Flags().Changed
	if changed("dir") {
		job.Dir = f.dir
	}
	if changed("start") {
		job.Start = f.start
	}
	if changed("end") {
		job.End = f.end
	}
	if changed("channels") {
		job.Channels = f.channels
	}
	if changed("xlsx") {
		job.XLSX = f.xlsx
	}
	if changed("plots") {
		job.Plots = f.plots
	}
	if changed("no-xlsx") {
		job.NoXLSX = f.noXLSX
	}

	if job.Dir == "" {
		return nil, fmt.Errorf("--dir is required")
	}
	return job, nil
}

func runJob(cmd *cobra.Command, job *Job) error {
	log := logger.Get(cmd.Context())
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	mask := models.DefaultChannelMask
	if len(job.Channels) > 0 {
		m, err := models.ParseChannels(job.Channels)
		if err != nil {
			return err
		}
		mask = m
	}

	merged, err := mergeDir(job.Dir, errOut)
	if err != nil {
		return err
	}
	window, ok := tracking.DefaultWindow(merged)
	if !ok {
		return tracking.ErrInputEmpty
	}
	if job.Start != "" {
		if window.Start, err = parseBound("start", job.Start); err != nil {
			return err
		}
	}
	if job.End != "" {
		if window.End, err = parseBound("end", job.End); err != nil {
			return err
		}
	}
	log.Infof("[Run] %d records from %d files, window %s, channels %s",
		len(merged.Records), len(merged.Files), formatRange(window), mask)

	report, err := tracking.Analyze(merged, window, mask)
	if errors.Is(err, tracking.ErrNoEpisodesInWindow) {
		fmt.Fprintf(errOut, "warning: %v (%s)\n", err, formatRange(report.Window))
		return nil
	}
	if err != nil {
		return err
	}

	log.Infof("[Run] %d episodes, %d samples, %d diagnostics",
		len(report.Tables), report.SampleCount(), len(report.Diagnostics))

	fmt.Fprintf(out, "Window:   %s\n", formatRange(report.Window))
	fmt.Fprintf(out, "Episodes: %d\n", len(report.Tables))
	for _, label := range report.Labels() {
		fmt.Fprintf(out, "  %s\n", label)
	}
	printDiagnostics(out, report.Diagnostics)

	if !job.NoXLSX {
		path := job.XLSX
		if path == "" {
			path = job.Dir
		}
		if err := export.SaveWorkbook(path, report.Tables); err != nil {
			return err
		}
		fmt.Fprintf(out, "Workbook: %s\n", workbookPath(path))
	}

	if job.Plots != "" {
		if err := writePlots(job.Plots, report.Tables, errOut); err != nil {
			return err
		}
		fmt.Fprintf(out, "Plots:    %s\n", job.Plots)
	}
	return nil
}

func printDiagnostics(w io.Writer, diags []models.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	fmt.Fprintf(w, "Diagnostics:\n")
	for i, d := range diags {
		fmt.Fprintf(w, "  %d. %s: %s\n", i+1, d.Episode, d.Message)
	}
}

// workbookPath mirrors SaveWorkbook's choice of file name.
func workbookPath(path string) string {
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		return filepath.Join(path, export.DefaultWorkbookName)
	}
	return path
}

// writePlots writes one PNG per table, named like its worksheet so episodes
// sharing a label get distinct files.
func writePlots(dir string, tables []models.EpisodeTable, errOut io.Writer) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating plot folder: %w", err)
	}
	names := export.SheetNames(tables)
	for i, t := range tables {
		path := filepath.Join(dir, names[i]+".png")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating plot: %w", err)
		}
		err = export.RenderPlot(f, t)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if errors.Is(err, export.ErrNotEnoughSamples) {
			os.Remove(path)
			fmt.Fprintf(errOut, "warning: %s: %v\n", t.Label, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("plotting %s: %w", t.Label, err)
		}
	}
	return nil
}
