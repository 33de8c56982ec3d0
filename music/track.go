package music

import (
	"fmt"
	"strings"
)

// Track is a playable audio reference resolved by the relay. Immutable once
// created; Encoded carries the backend payload needed to start playback.
type Track struct {
	Title       string
	URI         string
	Encoded     string
	RequesterID string
	Duration    int64 // milliseconds
	Stream      bool
}

// FormatTime renders a millisecond offset as m:ss (or h:mm:ss past an hour).
func FormatTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatDuration renders a track length, or LIVE for streams.
func (t *Track) FormatDuration() string {
	if t.Stream {
		return "LIVE"
	}
	return FormatTime(t.Duration)
}

const progressSections = 12

// ProgressBar draws the playback position marker across a fixed-width bar.
func ProgressBar(position, duration int64) string {
	loc := int64(0)
	if duration > 0 {
		loc = (position*progressSections + duration/2) / duration
	}
	if loc >= progressSections {
		loc = progressSections - 1
	}

	var sb strings.Builder
	sb.WriteString("|")
	for i := int64(0); i < progressSections; i++ {
		if i == loc {
			sb.WriteString(":small_blue_diamond:")
		} else {
			sb.WriteString(":white_small_square:")
		}
	}
	sb.WriteString("|")
	return sb.String()
}
