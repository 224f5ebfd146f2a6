package service

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/keiba-line-bot/internal/datasource"
	"github.com/yourusername/keiba-line-bot/internal/models"
	"golang.org/x/text/encoding/japanese"
)

var jst = time.FixedZone("JST", 9*60*60)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func testRaceData(raceNumber string) datasource.RaceData {
	race := datasource.RaceData{
		SourceID:       "2024052605" + raceNumber,
		Source:         "mock",
		RaceName:       "東京優駿",
		Track:          "東京",
		RaceNumber:     raceNumber + "R",
		Date:           "20240526",
		StartTime:      "15:40",
		Grade:          "G1",
		Distance:       "芝2400m",
		Weather:        "晴",
		TrackCondition: "良",
	}
	odds := []string{"2.5", "4.0", "6.0", "8.0", "12.0", "15.0", "20.0", "30.0"}
	names := []string{"アカイホシ", "アオイソラ", "キイロイハナ", "シロイクモ", "クロイウマ", "ミドリノカゼ", "ムラサキノユメ", "ハイイロノツキ"}
	for i := 0; i < 8; i++ {
		race.Runners = append(race.Runners, datasource.RunnerData{
			Number:     string(rune('1' + i)),
			Barrier:    string(rune('1' + i/2)),
			Name:       names[i],
			SexAge:     "牡3",
			Weight:     "57.0",
			Jockey:     "武豊",
			Trainer:    "友道康夫",
			BodyWeight: "480(+2)",
			Popularity: string(rune('1' + i)),
			Odds:       odds[i],
			Sire:       "ディープインパクト",
		})
	}
	return race
}

func TestNormalizeRace(t *testing.T) {
	n := NewDataNormalizer(jst, quietLogger())
	raw := testRaceData("11")

	race, err := n.NormalizeRace(&raw)
	require.NoError(t, err)

	assert.Equal(t, "202405260511", race.ID)
	assert.Equal(t, "東京優駿", race.Name)
	assert.Equal(t, 11, race.RaceNumber)
	assert.Equal(t, 2400, race.Distance)
	assert.Equal(t, models.SurfaceTurf, race.Surface)
	assert.True(t, time.Date(2024, 5, 26, 15, 40, 0, 0, jst).Equal(race.StartTime), "start %s", race.StartTime)
	require.Len(t, race.Horses, 8)

	h := race.Horses[0]
	assert.Equal(t, 1, h.Number)
	assert.Equal(t, 1, h.PostPosition)
	assert.Equal(t, "牡", h.Sex)
	assert.Equal(t, 3, h.Age)
	assert.Equal(t, 57.0, h.Weight)
	assert.Equal(t, 480, h.BodyWeight)
	assert.Equal(t, 2, h.BodyWeightChange)
	assert.Equal(t, 2.5, h.Odds)
	assert.NotEmpty(t, h.ID)
}

func TestNormalizeRaceDerivesStableID(t *testing.T) {
	n := NewDataNormalizer(jst, quietLogger())
	raw := testRaceData("11")
	raw.SourceID = ""

	a, err := n.NormalizeRace(&raw)
	require.NoError(t, err)
	b, err := n.NormalizeRace(&raw)
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, a.ID, b.ID)
}

func TestNormalizeRaceSkipsUnnumberedRunner(t *testing.T) {
	n := NewDataNormalizer(jst, quietLogger())
	raw := testRaceData("11")
	raw.Runners[2].Number = "取消"

	race, err := n.NormalizeRace(&raw)
	require.NoError(t, err)
	assert.Len(t, race.Horses, 7)
}

func TestNormalizeRaceRejectsBadDate(t *testing.T) {
	n := NewDataNormalizer(jst, quietLogger())
	raw := testRaceData("11")
	raw.Date = "2024-05-26"

	_, err := n.NormalizeRace(&raw)
	assert.Error(t, err)

	_, err = n.NormalizeRace(nil)
	assert.Error(t, err)
}

func latin1Mojibake(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		b.WriteRune(rune(c))
	}
	return b.String()
}

func TestCleanText(t *testing.T) {
	sjis, err := japanese.ShiftJIS.NewEncoder().String("東京優駿")
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "full-width ascii folded", input: "ＮＨＫマイルＣ", want: "NHKマイルC"},
		{name: "half-width kana widened", input: "ﾃｽﾄ", want: "テスト"},
		{name: "whitespace collapsed", input: "  東京  優駿 ", want: "東京 優駿"},
		{name: "shift_jis bytes decoded", input: sjis, want: "東京優駿"},
		{name: "latin-1 mojibake repaired", input: latin1Mojibake("東京優駿"), want: "東京優駿"},
		{name: "plain latin kept", input: "Café", want: "Café"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.input))
		})
	}
}

func TestFieldParsers(t *testing.T) {
	t.Run("sex and age", func(t *testing.T) {
		sex, age := ParseSexAge("牝5")
		assert.Equal(t, "牝", sex)
		assert.Equal(t, 5, age)

		sex, age = ParseSexAge("せん4")
		assert.Equal(t, "セ", sex)
		assert.Equal(t, 4, age)

		sex, age = ParseSexAge("")
		assert.Empty(t, sex)
		assert.Zero(t, age)
	})

	t.Run("body weight", func(t *testing.T) {
		tests := []struct {
			input          string
			weight, change int
		}{
			{"468(+2)", 468, 2},
			{"480(-10)", 480, -10},
			{"500", 500, 0},
			{"計不", 0, 0},
		}
		for _, tt := range tests {
			w, c := ParseBodyWeight(tt.input)
			assert.Equal(t, tt.weight, w, tt.input)
			assert.Equal(t, tt.change, c, tt.input)
		}
	})

	t.Run("numbers", func(t *testing.T) {
		assert.Equal(t, 11, ParseRaceNumber("東京11R"))
		assert.Equal(t, 12, ParseRaceNumber("１２Ｒ"))
		assert.Equal(t, 1600, ParseDistance("ダ1600m"))
		assert.Equal(t, 55.0, ParseFloat("☆55.0"))
		assert.Zero(t, ParseFloat("---"))
		assert.Zero(t, ParseInt(""))
	})
}
