package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

func validSnapshot(t *testing.T) *models.RaceSnapshot {
	t.Helper()
	raw := testRaceData("11")
	race, err := NewDataNormalizer(jst, quietLogger()).NormalizeRace(&raw)
	require.NoError(t, err)
	return race
}

func TestValidateCleanRace(t *testing.T) {
	v := NewDataValidator(0, quietLogger())

	report := v.Validate(validSnapshot(t))

	assert.True(t, report.IsValid)
	assert.InDelta(t, 1.0, report.QualityScore, 1e-9)
	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Warnings)
}

func TestValidateQualityGate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(r *models.RaceSnapshot)
		valid       bool
		wantQuality float64
		wantError   string
		wantWarning string
	}{
		{
			name:        "duplicate number alone stays above threshold",
			mutate:      func(r *models.RaceSnapshot) { r.Horses[1].Number = r.Horses[0].Number },
			valid:       true,
			wantQuality: 0.95,
			wantError:   "duplicate horse number: 1",
		},
		{
			name: "duplicate number and missing weather fails",
			mutate: func(r *models.RaceSnapshot) {
				r.Horses[1].Number = r.Horses[0].Number
				r.Weather = ""
			},
			valid:     false,
			wantError: "RaceSnapshot.Weather failed required",
		},
		{
			name:        "missing jockey is a runner warning",
			mutate:      func(r *models.RaceSnapshot) { r.Horses[0].Jockey = "" },
			valid:       true,
			wantWarning: "RaceSnapshot.Horses[0].Jockey failed required",
			wantError:   "required fields incomplete",
		},
		{
			name:      "mojibake race name",
			mutate:    func(r *models.RaceSnapshot) { r.Name = "縺薙ｌ縺ｯ繝ｬ繝ｼ繧ｹ" },
			valid:     true,
			wantError: "race name encoding invalid",
		},
		{
			name:        "distance out of range",
			mutate:      func(r *models.RaceSnapshot) { r.Distance = 5000 },
			valid:       true,
			wantWarning: "distance out of range",
		},
		{
			name:        "popularity not dense",
			mutate:      func(r *models.RaceSnapshot) { r.Horses[7].Popularity = 12 },
			valid:       true,
			wantWarning: "popularity ranks are not dense",
		},
		{
			name:   "no runners",
			mutate: func(r *models.RaceSnapshot) { r.Horses = nil },
			valid:  false,
		},
	}

	v := NewDataValidator(DefaultMinQualityScore, quietLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			race := validSnapshot(t)
			tt.mutate(race)

			report := v.Validate(race)

			assert.Equal(t, tt.valid, report.IsValid, "quality %.3f", report.QualityScore)
			if tt.wantQuality > 0 {
				assert.InDelta(t, tt.wantQuality, report.QualityScore, 1e-9)
			}
			if tt.wantError != "" {
				assert.True(t, containsSubstring(report.Errors, tt.wantError), "errors: %v", report.Errors)
			}
			if tt.wantWarning != "" {
				assert.True(t, containsSubstring(report.Warnings, tt.wantWarning), "warnings: %v", report.Warnings)
			}
		})
	}
}

func containsSubstring(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func TestValidateNil(t *testing.T) {
	report := NewDataValidator(0, quietLogger()).Validate(nil)
	assert.False(t, report.IsValid)
	assert.NotEmpty(t, report.Errors)
}

func TestIsValidJapaneseText(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"", true},
		{"東京優駿", true},
		{"ディープインパクト", true},
		{"C.ルメール", true},
		{"Deep Impact", true},
		{"第91回東京優駿（GI）", true},
		{"縺ゅ≠", false},
		{"東京�", false},
		{"Ã©Ã¨", false},
		{"ABCDEFGHIJ東", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidJapaneseText(tt.input))
		})
	}
}

func TestValidateEvaluation(t *testing.T) {
	v := NewDataValidator(0, quietLogger())

	ok := v.ValidateEvaluation(models.AggregatedEvaluation{
		FinalScore:      72,
		Confidence:      0.8,
		Recommendations: []models.Recommendation{{Symbol: models.SymbolHonmei, HorseNumber: 3}},
	})
	assert.True(t, ok.Passed)
	assert.Empty(t, ok.Warnings)

	empty := v.ValidateEvaluation(models.AggregatedEvaluation{FinalScore: 40, Confidence: 0.5})
	assert.True(t, empty.Passed)
	assert.Contains(t, empty.Warnings, "no recommendations generated")

	bad := v.ValidateEvaluation(models.AggregatedEvaluation{FinalScore: 120, Confidence: 0.5})
	assert.False(t, bad.Passed)
}
