package export

import (
	"strings"

	"github.com/ud7-tracker/backend/internal/models"
)

// settleSamples are dropped from bound calculations once an episode is long enough.
const settleSamples = 3

// Bounds is a value-axis range. MajorUnit is zero when the chart default applies.
type Bounds struct {
	Min       float64
	Max       float64
	MajorUnit float64
}

// AxisBounds computes the axis range for one channel column.
//
//	FREQ: [avg-2s, avg+s], gridlines every s/2
//	IFB:  [ceil(min)-s, ceil(max)+s]
//	VFB:  [0, 120]
//
// where s is the channel scale and ceil rounds up to a multiple of s.
// The first three values are ignored when there are more than four.
func AxisBounds(c models.Channel, values []int) (Bounds, bool) {
	if c == models.ChannelPower {
		return Bounds{Min: 0, Max: 120}, true
	}
	if len(values) > settleSamples+1 {
		values = values[settleSamples:]
	}
	if len(values) == 0 {
		return Bounds{}, false
	}

	s := Scale(c)
	switch c {
	case models.ChannelFrequency:
		sum := 0
		for _, v := range values {
			sum += v
		}
		avg := ceilTo(sum/len(values), s)
		return Bounds{
			Min:       float64(avg - 2*s),
			Max:       float64(avg + s),
			MajorUnit: float64(s) / 2,
		}, true
	case models.ChannelCurrent:
		lo, hi := values[0], values[0]
		for _, v := range values[1:] {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		return Bounds{
			Min: float64(ceilTo(lo, s) - s),
			Max: float64(ceilTo(hi, s) + s),
		}, true
	}
	return Bounds{}, false
}

// ceilTo rounds v up to the next multiple of step.
func ceilTo(v, step int) int {
	q := v / step
	if v%step != 0 && v > 0 {
		q++
	}
	return q * step
}

// axisPlan places the selected channels on the chart axes.
type axisPlan struct {
	Primary        models.Channel
	PrimaryBounds  Bounds
	PrimaryOK      bool
	Secondary      []models.Channel
	SecondaryBound Bounds
	SecondaryOK    bool
}

// planAxes puts the first channel on the primary axis and the rest on the
// secondary one. The secondary range follows the second channel; a third
// channel (power) only pins the secondary minimum to zero.
func planAxes(table models.EpisodeTable) axisPlan {
	chs := table.Channels.Channels()
	var p axisPlan
	if len(chs) == 0 {
		return p
	}
	p.Primary = chs[0]
	p.PrimaryBounds, p.PrimaryOK = AxisBounds(chs[0], table.Column(0))

	if len(chs) > 1 {
		p.Secondary = chs[1:]
		p.SecondaryBound, p.SecondaryOK = AxisBounds(chs[1], table.Column(1))
		if len(chs) > 2 && chs[2] == models.ChannelPower && p.SecondaryOK {
			p.SecondaryBound.Min = 0
		}
	}
	return p
}

// SecondaryTitle stacks the units of the secondary channels.
func (p axisPlan) SecondaryTitle() string {
	units := make([]string, len(p.Secondary))
	for i, c := range p.Secondary {
		units[i] = c.Unit()
	}
	return strings.Join(units, "\n")
}
