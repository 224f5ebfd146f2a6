package scoring

import (
	"math"
	"sort"
	"strings"

	"github.com/yourusername/keiba-line-bot/internal/models"
	"gonum.org/v1/gonum/stat"
)

// Distance categories
const (
	DistanceSprint = "sprint"
	DistanceMile   = "mile"
	DistanceMiddle = "middle"
	DistanceLong   = "long"
)

// layoffDays marks a horse returning from a break.
const layoffDays = 90

func sortedByDate(recs []models.PerformanceRecord) []models.PerformanceRecord {
	out := make([]models.PerformanceRecord, len(recs))
	copy(out, recs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	return stat.Mean(vals, nil)
}

func stdDev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	return stat.StdDev(vals, nil)
}

// finishScore rates a past finish, with a grade bonus, capped at 100.
func finishScore(r models.PerformanceRecord) float64 {
	var score float64
	switch {
	case r.Finish <= 0:
		return models.NeutralScore
	case r.Finish == 1:
		score = 90
	case r.Finish == 2:
		score = 80
	case r.Finish == 3:
		score = 70
	case r.Finish <= 5:
		score = 60
	case r.FieldSize > 0 && r.Finish <= r.FieldSize/2:
		score = 50
	default:
		score = 40
	}
	return math.Min(100, score+gradeBonus(r.Grade))
}

func gradeBonus(grade string) float64 {
	switch models.ClassLevel(grade) {
	case 8:
		return 10
	case 7:
		return 5
	case 6:
		return 3
	}
	return 0
}

// singleRaceScore is the flat per-run rating used for averages.
func singleRaceScore(r models.PerformanceRecord) float64 {
	switch {
	case r.Finish <= 0:
		return models.NeutralScore
	case r.Finish == 1:
		return 85
	case r.Finish == 2:
		return 75
	case r.Finish == 3:
		return 65
	case r.Finish <= 5:
		return 55
	}
	return 45
}

func averageRaceScore(recs []models.PerformanceRecord) float64 {
	if len(recs) == 0 {
		return models.NeutralScore
	}
	vals := make([]float64, len(recs))
	for i, r := range recs {
		vals[i] = singleRaceScore(r)
	}
	return mean(vals)
}

func recent(recs []models.PerformanceRecord, n int) []models.PerformanceRecord {
	if len(recs) > n {
		return recs[:n]
	}
	return recs
}

func filter(recs []models.PerformanceRecord, keep func(models.PerformanceRecord) bool) []models.PerformanceRecord {
	var out []models.PerformanceRecord
	for _, r := range recs {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func winRate(recs []models.PerformanceRecord) float64 {
	if len(recs) == 0 {
		return 0
	}
	var wins int
	for _, r := range recs {
		if r.Won() {
			wins++
		}
	}
	return float64(wins) / float64(len(recs))
}

func placeRate(recs []models.PerformanceRecord) float64 {
	if len(recs) == 0 {
		return 0
	}
	var placed int
	for _, r := range recs {
		if r.Placed() {
			placed++
		}
	}
	return float64(placed) / float64(len(recs))
}

// rateScore maps a win rate onto a score using descending thresholds.
func rateScore(rate float64, thresholds [4]float64) float64 {
	switch {
	case rate >= thresholds[0]:
		return 90
	case rate >= thresholds[1]:
		return 80
	case rate >= thresholds[2]:
		return 70
	case rate >= thresholds[3]:
		return 60
	}
	return 45
}

// recordScore blends win and place rates into a 0-100 score, neutral without runs.
func recordScore(recs []models.PerformanceRecord) float64 {
	if len(recs) == 0 {
		return models.NeutralScore
	}
	return clamp(30+winRate(recs)*100+placeRate(recs)*40, 0, 100)
}

// distanceCategory buckets a distance in metres.
func distanceCategory(d int) string {
	switch {
	case d <= 1400:
		return DistanceSprint
	case d <= 1600:
		return DistanceMile
	case d <= 2000:
		return DistanceMiddle
	}
	return DistanceLong
}

func sameDistance(a, b int) bool {
	return distanceCategory(a) == distanceCategory(b)
}

func sameSurface(a, b string) bool {
	return models.NormalizeSurface(a) == models.NormalizeSurface(b)
}

func isHeavyTrack(condition string) bool {
	c := strings.TrimSpace(condition)
	return strings.Contains(c, "重") || strings.Contains(c, "不良") ||
		strings.EqualFold(c, "heavy") || strings.EqualFold(c, "yielding")
}

// consistency converts the spread of recent finishes into a score; steady runners score high.
func consistency(recs []models.PerformanceRecord) float64 {
	if len(recs) < 2 {
		return models.NeutralScore
	}
	vals := make([]float64, 0, len(recs))
	for _, r := range recs {
		if r.Finish > 0 {
			vals = append(vals, float64(r.Finish))
		}
	}
	if len(vals) < 2 {
		return models.NeutralScore
	}
	return clamp(100-stdDev(vals)*12, 0, 100)
}

// popularityScore converts popularity rank into a market-confidence score.
func popularityScore(popularity, fieldSize int) float64 {
	if popularity <= 0 {
		return models.NeutralScore
	}
	if fieldSize <= 1 {
		return 90
	}
	return clamp(95-float64(popularity-1)*(70/float64(fieldSize-1)), 20, 95)
}
