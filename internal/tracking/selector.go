package tracking

import "github.com/ud7-tracker/backend/internal/models"

// Select projects each episode onto the channels in mask.
// Values always come out in frequency, current, power order.
func Select(episodes []models.Episode, mask models.ChannelMask) ([]models.EpisodeTable, error) {
	if mask.Empty() {
		return nil, ErrNoChannelSelected
	}
	channels := mask.Channels()
	header := append([]string{models.SampleHeader[0]}, mask.Tags()...)

	tables := make([]models.EpisodeTable, len(episodes))
	for i, ep := range episodes {
		rows := make([]models.TableRow, len(ep.Samples))
		for j, s := range ep.Samples {
			values := make([]int, len(channels))
			for k, c := range channels {
				values[k] = c.Value(s)
			}
			rows[j] = models.TableRow{Timestamp: s.Timestamp, Values: values}
		}
		tables[i] = models.EpisodeTable{
			Label:       ep.Label,
			Channels:    mask,
			Header:      append([]string(nil), header...),
			Rows:        rows,
			Termination: ep.Termination,
			Diagnostic:  ep.Diagnostic,
		}
	}
	return tables, nil
}
