package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/datasource"
	"github.com/yourusername/keiba-line-bot/internal/models"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/width"
)

var (
	digitsPattern     = regexp.MustCompile(`\d+`)
	decimalPattern    = regexp.MustCompile(`\d+(?:\.\d+)?`)
	bodyWeightPattern = regexp.MustCompile(`(\d+)\s*\(\s*([+\-]?\d+)\s*\)`)
	spacePattern      = regexp.MustCompile(`\s+`)
	sexAgePattern     = regexp.MustCompile(`^(牡|牝|セ|せん|騸)?\s*(\d+)`)
)

// DataNormalizer turns raw collector output into race snapshots
type DataNormalizer struct {
	location *time.Location
	logger   *logrus.Logger
}

// NewDataNormalizer creates a new data normalizer. Start times are read in loc.
func NewDataNormalizer(loc *time.Location, logger *logrus.Logger) *DataNormalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &DataNormalizer{location: loc, logger: logger}
}

// NormalizeRace converts RaceData from any source to a RaceSnapshot
func (n *DataNormalizer) NormalizeRace(raw *datasource.RaceData) (*models.RaceSnapshot, error) {
	if raw == nil {
		return nil, fmt.Errorf("source race is nil")
	}

	date, err := time.ParseInLocation("20060102", strings.TrimSpace(raw.Date), n.location)
	if err != nil {
		return nil, fmt.Errorf("invalid race date %q: %w", raw.Date, err)
	}

	surface := CleanText(raw.Surface)
	if surface == "" {
		surface = CleanText(raw.Distance)
	}

	race := &models.RaceSnapshot{
		Name:           CleanText(raw.RaceName),
		Track:          CleanText(raw.Track),
		RaceNumber:     ParseRaceNumber(raw.RaceNumber),
		Distance:       ParseDistance(raw.Distance),
		Surface:        models.NormalizeSurface(surface),
		Grade:          CleanText(raw.Grade),
		Class:          CleanText(raw.Class),
		Weather:        CleanText(raw.Weather),
		TrackCondition: CleanText(raw.TrackCondition),
		StartTime:      n.startTime(date, raw.StartTime),
		Source:         raw.Source,
	}
	race.ID = raw.SourceID
	if race.ID == "" {
		race.ID = raceKey(race.Track, raw.Date, race.RaceNumber)
	}

	race.Horses = make([]models.HorseEntry, 0, len(raw.Runners))
	for i := range raw.Runners {
		horse, err := n.NormalizeRunner(&raw.Runners[i])
		if err != nil {
			n.logger.WithError(err).WithFields(logrus.Fields{
				"race_id": race.ID,
				"runner":  raw.Runners[i].Name,
			}).Warn("Skipping runner that could not be normalized")
			continue
		}
		race.Horses = append(race.Horses, horse)
	}

	return race, nil
}

// NormalizeRunner converts one runner row
func (n *DataNormalizer) NormalizeRunner(raw *datasource.RunnerData) (models.HorseEntry, error) {
	number := ParseInt(raw.Number)
	if number <= 0 {
		return models.HorseEntry{}, fmt.Errorf("invalid horse number %q", raw.Number)
	}
	name := CleanText(raw.Name)
	sex, age := ParseSexAge(raw.SexAge)
	body, change := ParseBodyWeight(raw.BodyWeight)

	horse := models.HorseEntry{
		ID:                raw.SourceID,
		Name:              name,
		Number:            number,
		Jockey:            CleanText(raw.Jockey),
		Trainer:           CleanText(raw.Trainer),
		Age:               age,
		Sex:               sex,
		Weight:            ParseFloat(raw.Weight),
		BodyWeight:        body,
		BodyWeightChange:  change,
		PostPosition:      ParseInt(raw.Barrier),
		Popularity:        ParseInt(raw.Popularity),
		Odds:              ParseFloat(raw.Odds),
		MorningOdds:       ParseFloat(raw.MorningOdds),
		Sire:              CleanText(raw.Sire),
		DamSire:           CleanText(raw.DamSire),
		PaddockGrade:      CleanText(raw.PaddockGrade),
		DaysSinceLastRace: ParseInt(raw.DaysSinceLastRace),
		Past:              raw.Past,
	}
	if horse.ID == "" && name != "" {
		horse.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("horse|"+name)).String()
	}
	return horse, nil
}

func (n *DataNormalizer) startTime(date time.Time, hhmm string) time.Time {
	t, err := time.ParseInLocation("15:04", CleanText(hhmm), n.location)
	if err != nil {
		return date
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, n.location)
}

func raceKey(track, date string, number int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s|%s|%d", track, date, number))).String()
}

// CleanText repairs mis-decoded Japanese, folds full-width ASCII and
// half-width kana, and collapses whitespace.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = repairEncoding(s)
	s = width.Fold.String(s)
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

func repairEncoding(s string) string {
	if !utf8.ValidString(s) {
		if out, err := japanese.ShiftJIS.NewDecoder().String(s); err == nil && utf8.ValidString(out) {
			return out
		}
		return strings.ToValidUTF8(s, "")
	}
	if !looksLatin1(s) {
		return s
	}
	// UTF-8 bytes that were read as Latin-1 somewhere upstream
	raw, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err == nil && utf8.ValidString(raw) {
		return raw
	}
	return s
}

func looksLatin1(s string) bool {
	high := false
	for _, r := range s {
		if r > 0xFF {
			return false
		}
		if r >= 0x80 {
			high = true
		}
	}
	return high
}

// ParseDistance extracts metres from labels such as "1600", "1600m" or "芝1600m".
func ParseDistance(s string) int {
	return ParseInt(s)
}

// ParseRaceNumber reads "11", "11R" or "東京11R".
func ParseRaceNumber(s string) int {
	return ParseInt(s)
}

// ParseInt returns the first run of digits in s, or 0.
func ParseInt(s string) int {
	m := digitsPattern.FindString(width.Fold.String(s))
	if m == "" {
		return 0
	}
	v, _ := strconv.Atoi(m)
	return v
}

// ParseFloat returns the first decimal number in s, or 0. Marks such as the
// apprentice weight allowances (▲ △ ☆ ◇) are ignored.
func ParseFloat(s string) float64 {
	m := decimalPattern.FindString(width.Fold.String(s))
	if m == "" {
		return 0
	}
	v, _ := strconv.ParseFloat(m, 64)
	return v
}

// ParseSexAge splits "牝5" into its sex label and age.
func ParseSexAge(s string) (string, int) {
	m := sexAgePattern.FindStringSubmatch(CleanText(s))
	if m == nil {
		return "", 0
	}
	age, _ := strconv.Atoi(m[2])
	sex := m[1]
	if sex == "せん" || sex == "騸" {
		sex = "セ"
	}
	return sex, age
}

// ParseBodyWeight splits "468(+2)" into the weight and the change since last run.
// Unweighed entries ("計不") give zeros.
func ParseBodyWeight(s string) (int, int) {
	s = CleanText(s)
	if m := bodyWeightPattern.FindStringSubmatch(s); m != nil {
		w, _ := strconv.Atoi(m[1])
		c, _ := strconv.Atoi(strings.TrimPrefix(m[2], "+"))
		return w, c
	}
	return ParseInt(s), 0
}
