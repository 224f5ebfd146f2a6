package models

import (
	"strings"
	"time"
)

// Surface constants as published on JRA race cards
const (
	SurfaceTurf = "芝"
	SurfaceDirt = "ダート"
	SurfaceJump = "障害"
)

// RaceSnapshot is a race card captured at collection time. It is read-only
// once handed to the scoring pipeline.
type RaceSnapshot struct {
	ID             string       `json:"race_id"`
	Name           string       `json:"race_name" validate:"required"`
	Track          string       `json:"track" validate:"required"`
	RaceNumber     int          `json:"race_number"`
	Distance       int          `json:"distance" validate:"required,gt=0"`
	Surface        string       `json:"surface" validate:"required"`
	Grade          string       `json:"grade"`
	Class          string       `json:"class"`
	Weather        string       `json:"weather" validate:"required"`
	TrackCondition string       `json:"condition"`
	StartTime      time.Time    `json:"start_time" validate:"required"`
	Source         string       `json:"source"`
	Horses         []HorseEntry `json:"horses" validate:"required,min=1,dive"`
}

// NormalizedSurface maps the many spellings seen across sources to turf or dirt.
func (r *RaceSnapshot) NormalizedSurface() string {
	return NormalizeSurface(r.Surface)
}

// NormalizeSurface returns SurfaceTurf, SurfaceDirt, SurfaceJump or the input unchanged.
func NormalizeSurface(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(v, "芝") || strings.Contains(v, "turf"):
		return SurfaceTurf
	case strings.Contains(v, "ダ") || strings.Contains(v, "dirt"):
		return SurfaceDirt
	case strings.Contains(v, "障") || strings.Contains(v, "jump"):
		return SurfaceJump
	}
	return s
}

// ClassLevel returns the race class on the 1 (maiden) .. 8 (G1) ladder.
func (r *RaceSnapshot) ClassLevel() int {
	if lvl := ClassLevel(r.Grade); lvl > 0 {
		return lvl
	}
	return ClassLevel(r.Class)
}

// HorseCount returns the number of declared runners.
func (r *RaceSnapshot) HorseCount() int {
	return len(r.Horses)
}

// HorseByNumber looks up a runner by saddle-cloth number.
func (r *RaceSnapshot) HorseByNumber(number int) (HorseEntry, bool) {
	for _, h := range r.Horses {
		if h.Number == number {
			return h, true
		}
	}
	return HorseEntry{}, false
}

// IsEmpty reports whether the snapshot has nothing to score.
func (r *RaceSnapshot) IsEmpty() bool {
	return r == nil || len(r.Horses) == 0
}

var classLevels = map[string]int{
	"新馬":     1,
	"未勝利":    1,
	"maiden": 1,
	"1勝クラス":  2,
	"500万下":  2,
	"1win":   2,
	"2勝クラス":  3,
	"1000万下": 3,
	"2win":   3,
	"3勝クラス":  4,
	"1600万下": 4,
	"3win":   4,
	"オープン":   5,
	"op":     5,
	"open":   5,
	"l":      5,
	"g3":     6,
	"g2":     7,
	"g1":     8,
}

// ClassLevel maps a grade or class label onto the 1..8 ladder; 0 means unknown.
func ClassLevel(label string) int {
	v := strings.ToLower(strings.TrimSpace(label))
	if v == "" {
		return 0
	}
	v = strings.NewReplacer("ｇ", "g", "Ｇ", "g", "Ⅰ", "1", "Ⅱ", "2", "Ⅲ", "3").Replace(v)
	if lvl, ok := classLevels[v]; ok {
		return lvl
	}
	for _, key := range []string{"g1", "g2", "g3"} {
		if strings.Contains(v, key) {
			return classLevels[key]
		}
	}
	return 0
}
