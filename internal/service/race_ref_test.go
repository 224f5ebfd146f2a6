package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchRace(t *testing.T) {
	races := []RaceKey{
		{ID: "202405260511", Track: "東京", Number: 11},
		{ID: "202405260512", Track: "東京", Number: 12},
		{ID: "202405260811", Track: "京都", Number: 11},
	}

	tests := []struct {
		name string
		ref  string
		want int
	}{
		{name: "source id", ref: "202405260512", want: 1},
		{name: "bare number takes first track", ref: "11", want: 0},
		{name: "number with R", ref: "12R", want: 1},
		{name: "lower case r", ref: "12r", want: 1},
		{name: "full width", ref: "１２Ｒ", want: 1},
		{name: "track and number", ref: "京都11R", want: 2},
		{name: "track with space", ref: " 京都 11R ", want: 2},
		{name: "unknown track", ref: "中山11R", want: -1},
		{name: "unknown number", ref: "9", want: -1},
		{name: "no number", ref: "abc", want: -1},
		{name: "empty", ref: "", want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchRace(races, tt.ref))
		})
	}
}
