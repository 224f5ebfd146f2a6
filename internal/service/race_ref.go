package service

import "strings"

// RaceKey identifies a race for reference matching
type RaceKey struct {
	ID     string
	Track  string
	Number int
}

// MatchRace returns the index of the race named by ref, or -1. ref is a
// source race ID, a race number ("11", "11R", "１１Ｒ") or a track-qualified
// number ("東京11R"). An exact ID match wins over a number match.
func MatchRace(races []RaceKey, ref string) int {
	ref = CleanText(ref)
	if ref == "" {
		return -1
	}
	for i, r := range races {
		if r.ID == ref {
			return i
		}
	}

	number := ParseRaceNumber(ref)
	if number <= 0 {
		return -1
	}
	track := raceRefTrack(ref)
	for i, r := range races {
		if r.Number != number {
			continue
		}
		if track == "" || strings.Contains(r.Track, track) {
			return i
		}
	}
	return -1
}

// raceRefTrack strips the race number and its R suffix, leaving the track name.
func raceRefTrack(ref string) string {
	return strings.TrimSpace(strings.TrimRight(digitsPattern.ReplaceAllString(ref, ""), "Rr"))
}
