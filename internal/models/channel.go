package models

import (
	"fmt"
	"strings"
)

// Channel is one measured quantity of a tracking sample.
type Channel uint8

const (
	ChannelFrequency Channel = 1 << iota
	ChannelCurrent
	ChannelPower
)

// AllChannels lists the channels in export order.
var AllChannels = []Channel{ChannelFrequency, ChannelCurrent, ChannelPower}

// Tag returns the column tag used by the HMI for the channel.
func (c Channel) Tag() string {
	switch c {
	case ChannelFrequency:
		return "FREQ"
	case ChannelCurrent:
		return "IFB"
	case ChannelPower:
		return "VFB"
	default:
		return fmt.Sprintf("Channel(%d)", uint8(c))
	}
}

// Unit returns the axis title of the channel.
func (c Channel) Unit() string {
	switch c {
	case ChannelFrequency:
		return "Frequency [Hz]"
	case ChannelCurrent:
		return "Current [mA]"
	case ChannelPower:
		return "Power [%]"
	default:
		return ""
	}
}

// ShortUnit returns the bracketed unit suffix, e.g. " [Hz]".
func (c Channel) ShortUnit() string {
	switch c {
	case ChannelFrequency:
		return " [Hz]"
	case ChannelCurrent:
		return " [mA]"
	case ChannelPower:
		return " [%]"
	default:
		return ""
	}
}

// Value picks the channel out of a sample.
func (c Channel) Value(s Sample) int {
	switch c {
	case ChannelFrequency:
		return s.Frequency
	case ChannelCurrent:
		return s.Current
	case ChannelPower:
		return s.Power
	default:
		return 0
	}
}

// ChannelFromTag resolves an HMI column tag (case-insensitive).
func ChannelFromTag(tag string) (Channel, bool) {
	switch strings.ToUpper(strings.TrimSpace(tag)) {
	case "FREQ":
		return ChannelFrequency, true
	case "IFB":
		return ChannelCurrent, true
	case "VFB":
		return ChannelPower, true
	}
	return 0, false
}

// ChannelMask is a set of selected channels.
type ChannelMask uint8

// DefaultChannelMask selects frequency and current.
const DefaultChannelMask = ChannelMask(ChannelFrequency | ChannelCurrent)

// With returns the mask with c added.
func (m ChannelMask) With(c Channel) ChannelMask { return m | ChannelMask(c) }

// Has reports whether c is selected.
func (m ChannelMask) Has(c Channel) bool { return m&ChannelMask(c) != 0 }

// Empty reports whether nothing is selected.
func (m ChannelMask) Empty() bool {
	return m&ChannelMask(ChannelFrequency|ChannelCurrent|ChannelPower) == 0
}

// Channels returns the selected channels, always frequency, current, power order.
func (m ChannelMask) Channels() []Channel {
	out := make([]Channel, 0, len(AllChannels))
	for _, c := range AllChannels {
		if m.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Tags returns the column tags of the selected channels.
func (m ChannelMask) Tags() []string {
	chs := m.Channels()
	tags := make([]string, len(chs))
	for i, c := range chs {
		tags[i] = c.Tag()
	}
	return tags
}

// String joins the selected tags with commas.
func (m ChannelMask) String() string { return strings.Join(m.Tags(), ",") }

// ParseChannels builds a mask from column tags. Unknown tags are an error.
// Entries may themselves be comma separated.
func ParseChannels(tags []string) (ChannelMask, error) {
	var m ChannelMask
	for _, t := range tags {
		for _, part := range strings.Split(t, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			c, ok := ChannelFromTag(part)
			if !ok {
				return 0, fmt.Errorf("unknown channel %q (want FREQ, IFB or VFB)", part)
			}
			m = m.With(c)
		}
	}
	return m, nil
}
