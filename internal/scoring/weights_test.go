package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

func TestDefaultWeights(t *testing.T) {
	w := DefaultWeights()
	assert.InDelta(t, 1.0, w.Total(), WeightTolerance)
	assert.Equal(t, models.ModuleJockeyTrainer, w.ByWeight()[0])
	assert.Equal(t, models.ModuleMarketEfficiency, w.ByWeight()[len(SystemModules)-1])
	assert.Zero(t, w.Of(models.ModuleChallengeJudgment))

	m := w.Map()
	m[models.ModuleBasicAnalysis] = 1
	assert.InDelta(t, 0.20, w.Of(models.ModuleBasicAnalysis), 1e-9, "Map must return a copy")
}

func TestNewWeightsValidation(t *testing.T) {
	valid := DefaultWeights().Map()

	tests := []struct {
		name    string
		mutate  func(map[models.ModuleName]float64)
		wantErr string
	}{
		{"valid", func(map[models.ModuleName]float64) {}, ""},
		{"unknown module", func(m map[models.ModuleName]float64) { m["lucky_number"] = 0 }, "unknown module"},
		{"missing module", func(m map[models.ModuleName]float64) {
			delete(m, models.ModuleDarkHorse)
			m[models.ModuleBasicAnalysis] += 0.05
		}, "missing weight"},
		{"negative", func(m map[models.ModuleName]float64) { m[models.ModulePreRaceInfo] = -0.03 }, "out of range"},
		{"does not sum", func(m map[models.ModuleName]float64) { m[models.ModuleBloodline] = 0.30 }, "sum to"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := make(map[models.ModuleName]float64, len(valid))
			for k, v := range valid {
				values[k] = v
			}
			tt.mutate(values)

			w, err := NewWeights(values)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotNil(t, w)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWeightsFromConfig(t *testing.T) {
	w, err := WeightsFromConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultWeights().Map(), w.Map())

	_, err = WeightsFromConfig(map[string]float64{"basic_analysis": 1.0})
	assert.Error(t, err)

	cfg := map[string]float64{
		"basic_analysis":    0.30,
		"jockey_trainer":    0.20,
		"ability_analysis":  0.15,
		"bloodline":         0.10,
		"performance_rate":  0.10,
		"dark_horse":        0.05,
		"pre_race_info":     0.05,
		"market_efficiency": 0.05,
	}
	w, err = WeightsFromConfig(cfg)
	require.NoError(t, err)
	assert.InDelta(t, 0.30, w.Of(models.ModuleBasicAnalysis), 1e-9)
}
