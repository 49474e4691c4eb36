package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ud7-tracker/backend/internal/models"
	"github.com/xuri/excelize/v2"
)

// DefaultWorkbookName is the file written into the input folder by default.
const DefaultWorkbookName = "UD7_HMI_Output.xlsx"

const (
	chartTitle      = "Track-Test"
	timeAxisFormat  = "h:mm:ss.000"
	timestampFormat = "yyyy-mm-dd hh:mm:ss.000"
	chartWidthPx    = 643 // 17 cm
	chartHeightPx   = 567 // 15 cm
	seriesLineWidth = 1
	maxSheetName    = 31
)

// ErrNoTables means there is nothing to write.
var ErrNoTables = errors.New("no episode tables to export")

// WriteWorkbook writes one sheet per table, each with its data and a line chart.
func WriteWorkbook(w io.Writer, tables []models.EpisodeTable) error {
	f, err := buildWorkbook(tables)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// SaveWorkbook writes the workbook to path. A directory path gets DefaultWorkbookName.
func SaveWorkbook(path string, tables []models.EpisodeTable) error {
	if st, err := os.Stat(path); path == "" || (err == nil && st.IsDir()) {
		path = filepath.Join(path, DefaultWorkbookName)
	}
	f, err := buildWorkbook(tables)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s (is it open in another program?): %w", path, err)
	}
	return nil
}

func buildWorkbook(tables []models.EpisodeTable) (*excelize.File, error) {
	if len(tables) == 0 {
		return nil, ErrNoTables
	}

	f := excelize.NewFile()
	tsStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr(timestampFormat)})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating timestamp style: %w", err)
	}

	names := SheetNames(tables)
	for i, table := range tables {
		sheet := names[i]
		if i == 0 {
			err = f.SetSheetName(f.GetSheetName(0), sheet)
		} else {
			_, err = f.NewSheet(sheet)
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("creating sheet %s: %w", sheet, err)
		}
		if err := writeTable(f, sheet, table, tsStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("sheet %s: %w", sheet, err)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeTable(f *excelize.File, sheet string, table models.EpisodeTable, tsStyle int) error {
	for r, row := range table.Cells() {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 24); err != nil {
		return err
	}
	if len(table.Rows) == 0 {
		return nil
	}

	last := len(table.Rows) + 1
	if err := f.SetCellStyle(sheet, "A2", fmt.Sprintf("A%d", last), tsStyle); err != nil {
		return err
	}

	primary, secondary := episodeCharts(sheet, table)
	if primary == nil {
		return nil
	}
	anchor, err := excelize.CoordinatesToCellName(len(table.Header)+1, 1)
	if err != nil {
		return err
	}
	if secondary != nil {
		return f.AddChart(sheet, anchor, primary, secondary)
	}
	return f.AddChart(sheet, anchor, primary)
}

// episodeCharts builds the primary line chart and, with more than one
// channel, a secondary-axis line chart to combine with it.
func episodeCharts(sheet string, table models.EpisodeTable) (*excelize.Chart, *excelize.Chart) {
	plan := planAxes(table)
	if plan.Primary == 0 || len(table.Header) < 2 {
		return nil, nil
	}
	last := len(table.Rows) + 1
	categories := rangeRef(sheet, 1, 2, last)

	primary := &excelize.Chart{
		Type:   excelize.Line,
		Series: []excelize.ChartSeries{lineSeries(sheet, plan.Primary, 2, last, categories)},
		Title:  []excelize.RichTextRun{{Text: chartTitle, Font: &excelize.Font{Size: 14}}},
		XAxis: excelize.ChartAxis{
			Title:  []excelize.RichTextRun{{Text: "Time"}},
			NumFmt: excelize.ChartNumFmt{CustomNumFmt: timeAxisFormat},
		},
		YAxis: excelize.ChartAxis{
			Title:          []excelize.RichTextRun{{Text: plan.Primary.Unit()}},
			MajorGridLines: true,
		},
		Legend:    excelize.ChartLegend{Position: "bottom"},
		Dimension: excelize.ChartDimension{Width: chartWidthPx, Height: chartHeightPx},
	}
	if plan.PrimaryOK {
		primary.YAxis.Minimum = floatPtr(plan.PrimaryBounds.Min)
		primary.YAxis.Maximum = floatPtr(plan.PrimaryBounds.Max)
		primary.YAxis.MajorUnit = plan.PrimaryBounds.MajorUnit
	}

	if len(plan.Secondary) == 0 {
		return primary, nil
	}

	secondary := &excelize.Chart{
		Type: excelize.Line,
		YAxis: excelize.ChartAxis{
			Secondary: true,
			Title:     []excelize.RichTextRun{{Text: plan.SecondaryTitle()}},
		},
	}
	for i, c := range plan.Secondary {
		secondary.Series = append(secondary.Series, lineSeries(sheet, c, 3+i, last, categories))
	}
	if plan.SecondaryOK {
		secondary.YAxis.Minimum = floatPtr(plan.SecondaryBound.Min)
		secondary.YAxis.Maximum = floatPtr(plan.SecondaryBound.Max)
	}
	return primary, secondary
}

func lineSeries(sheet string, c models.Channel, col, last int, categories string) excelize.ChartSeries {
	name, _ := excelize.CoordinatesToCellName(col, 1, true)
	return excelize.ChartSeries{
		Name:       quoteSheet(sheet) + "!" + name,
		Categories: categories,
		Values:     rangeRef(sheet, col, 2, last),
		Fill:       excelize.Fill{Type: "pattern", Color: []string{ChannelColor(c)}, Pattern: 1},
		Line:       excelize.ChartLine{Width: seriesLineWidth},
	}
}

func rangeRef(sheet string, col, from, to int) string {
	a, _ := excelize.CoordinatesToCellName(col, from, true)
	b, _ := excelize.CoordinatesToCellName(col, to, true)
	return quoteSheet(sheet) + "!" + a + ":" + b
}

func quoteSheet(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

// SheetNames derives valid, unique worksheet names from the table labels.
func SheetNames(tables []models.EpisodeTable) []string {
	seen := make(map[string]int, len(tables))
	names := make([]string, len(tables))
	for i, t := range tables {
		base := sanitizeSheetName(t.Label)
		if base == "" {
			base = fmt.Sprintf("Episode_%d", i+1)
		}
		name := base
		for n := 2; ; n++ {
			if _, dup := seen[strings.ToLower(name)]; !dup {
				break
			}
			suffix := fmt.Sprintf("_%d", n)
			if len(base)+len(suffix) > maxSheetName {
				name = base[:maxSheetName-len(suffix)] + suffix
			} else {
				name = base + suffix
			}
		}
		seen[strings.ToLower(name)] = i
		names[i] = name
	}
	return names
}

func sanitizeSheetName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	s = strings.Trim(s, "'")
	if len(s) > maxSheetName {
		s = s[:maxSheetName]
	}
	return s
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
