package export

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ud7-tracker/backend/internal/models"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	plotWidth  = 1200
	plotHeight = 600
)

// ErrNotEnoughSamples means a table has fewer than two rows to draw a line through.
var ErrNotEnoughSamples = errors.New("episode has fewer than two samples to plot")

// RenderPlot draws one episode as a PNG: the first channel against the left
// axis, the others against the right axis, titled with the episode label.
func RenderPlot(w io.Writer, table models.EpisodeTable) error {
	chs := table.Channels.Channels()
	if len(chs) == 0 {
		return fmt.Errorf("episode %s has no channels", table.Label)
	}
	if len(table.Rows) < 2 {
		return fmt.Errorf("%s: %w", table.Label, ErrNotEnoughSamples)
	}

	xs := make([]time.Time, len(table.Rows))
	for i, r := range table.Rows {
		xs[i] = r.Timestamp
	}

	series := make([]chart.Series, 0, len(chs))
	var primary, secondary valueSpan
	for i, c := range chs {
		col := table.Column(i)
		ys := make([]float64, len(col))
		for j, v := range col {
			ys[j] = float64(v)
			if i == 0 {
				primary.add(ys[j])
			} else {
				secondary.add(ys[j])
			}
		}
		ts := chart.TimeSeries{
			Name:    c.Tag(),
			XValues: xs,
			YValues: ys,
			Style:   lineStyle(drawing.ColorFromHex(ChannelColor(c))),
		}
		if i > 0 {
			ts.YAxis = chart.YAxisSecondary
		}
		series = append(series, ts)
	}

	ch := chart.Chart{
		Title:      table.Label,
		Width:      plotWidth,
		Height:     plotHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           "Timestamp",
			ValueFormatter: chart.TimeValueFormatterWithFormat("15:04:05"),
		},
		YAxis:  chart.YAxis{Name: chs[0].Tag() + chs[0].ShortUnit(), Range: primary.rangeFor(chs[0])},
		Series: series,
	}
	if len(chs) > 1 {
		name := chs[1].Tag() + chs[1].ShortUnit()
		if len(chs) > 2 {
			name += " / " + chs[2].Tag() + chs[2].ShortUnit()
		}
		ch.YAxisSecondary = chart.YAxis{Name: name, Range: secondary.rangeFor(chs[1])}
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("rendering %s: %w", table.Label, err)
	}
	return nil
}

func lineStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeColor: col,
		StrokeWidth: 1,
	}
}

// valueSpan tracks the extremes of the values drawn against one axis.
type valueSpan struct {
	min, max float64
	set      bool
}

func (v *valueSpan) add(x float64) {
	if !v.set || x < v.min {
		v.min = x
	}
	if !v.set || x > v.max {
		v.max = x
	}
	v.set = true
}

// rangeFor pads a flat line by one channel scale step so the axis has height.
func (v valueSpan) rangeFor(c models.Channel) *chart.ContinuousRange {
	lo, hi := v.min, v.max
	if lo == hi {
		step := float64(Scale(c))
		lo, hi = lo-step, hi+step
	}
	return &chart.ContinuousRange{Min: lo, Max: hi}
}
