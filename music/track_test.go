package music

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatTime(t *testing.T) {
	tests := []struct {
		name string
		ms   int64
		want string
	}{
		{"zero", 0, "0:00"},
		{"under a minute", 42000, "0:42"},
		{"minutes", 213000, "3:33"},
		{"exactly an hour", 3600000, "1:00:00"},
		{"over an hour", 3725000, "1:02:05"},
		{"negative clamps to zero", -5000, "0:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTime(tt.ms))
		})
	}
}

func TestTrack_FormatDuration(t *testing.T) {
	tr := &Track{Duration: 213000}
	assert.Equal(t, "3:33", tr.FormatDuration())

	live := &Track{Duration: 0, Stream: true}
	assert.Equal(t, "LIVE", live.FormatDuration())
}

func TestProgressBar(t *testing.T) {
	marker := ":small_blue_diamond:"

	start := ProgressBar(0, 180000)
	assert.Equal(t, 1, strings.Count(start, marker))
	assert.True(t, strings.HasPrefix(start, "|"+marker))

	end := ProgressBar(180000, 180000)
	assert.Equal(t, 1, strings.Count(end, marker))
	assert.True(t, strings.HasSuffix(end, marker+"|"))

	mid := ProgressBar(90000, 180000)
	assert.Equal(t, 1, strings.Count(mid, marker))
	assert.NotEqual(t, start, mid)
	assert.NotEqual(t, end, mid)

	// An unknown duration pins the marker at the start instead of dividing
	// by zero.
	assert.Equal(t, start, ProgressBar(5000, 0))
}
