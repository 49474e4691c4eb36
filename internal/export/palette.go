// Package export renders episode tables as XLSX workbooks and PNG plots.
package export

import "github.com/ud7-tracker/backend/internal/models"

// Chart colors, cycled by series index.
var colors = [...]string{
	"4F81BD", "C0504D", "9BBB59", "8064A2", "4BACC6", "F79646", "2C4D75", "772C2A", "5F7530", "4D3B62",
	"276A7C", "B65708", "729ACA", "CD7371", "AFC97A", "9983B5", "6FBDD1", "F9AB6B", "3A679C", "9F3B38",
	"7E9D40", "664F83", "358EA6", "F3740B", "95B3D7", "D99694", "C3D69B", "B3A2C7", "93CDDD", "FAC090",
	"254061", "632523", "4F6228", "403152", "215968", "984807", "84A7D1", "D38482", "B9CF8B", "A692BE",
	"81C5D7", "F9B67E", "335A88", "8B3431", "6F8938", "594573", "2E7C91", "D56509", "A7C0DE", "DFA8A6",
	"CDDDAC", "BFB2D0", "A5D6E2", "FBCBA3",
}

// Color returns the i-th palette color as RRGGBB, wrapping around.
func Color(i int) string {
	if i < 0 {
		i = -i
	}
	return colors[i%len(colors)]
}

// ChannelColor gives every channel a fixed color regardless of the selection:
// the palette slot of its place in the export order.
func ChannelColor(c models.Channel) string {
	for i, known := range models.AllChannels {
		if c == known {
			return Color(i)
		}
	}
	return Color(len(models.AllChannels) + int(c))
}

// Scale is the rounding step used for the channel's axis bounds.
func Scale(c models.Channel) int {
	switch c {
	case models.ChannelFrequency:
		return 500
	case models.ChannelCurrent:
		return 100
	case models.ChannelPower:
		return 50
	}
	return 1
}
