package tracking

import "errors"

var (
	// ErrInputEmpty means there were no records to segment.
	ErrInputEmpty = errors.New("no data: merged log has no records")

	// ErrNoEpisodesInWindow means no start-tracking marker fell inside the window.
	ErrNoEpisodesInWindow = errors.New("no tracking activity in range")

	// ErrNoChannelSelected means the channel mask selects nothing.
	ErrNoChannelSelected = errors.New("no channel selected")
)
