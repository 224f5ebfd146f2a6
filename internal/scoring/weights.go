package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/yourusername/keiba-line-bot/internal/models"
)

// WeightTolerance is the allowed drift of a weight table from 1.0.
const WeightTolerance = 1e-6

// SystemModules lists the weighted modules in pipeline order.
var SystemModules = []models.ModuleName{
	models.ModuleBasicAnalysis,
	models.ModuleJockeyTrainer,
	models.ModuleAbilityAnalysis,
	models.ModuleBloodline,
	models.ModulePerformanceRate,
	models.ModuleDarkHorse,
	models.ModulePreRaceInfo,
	models.ModuleMarketEfficiency,
}

var defaultWeights = map[models.ModuleName]float64{
	models.ModuleJockeyTrainer:    0.22,
	models.ModuleBasicAnalysis:    0.20,
	models.ModuleAbilityAnalysis:  0.18,
	models.ModuleBloodline:        0.15,
	models.ModulePerformanceRate:  0.15,
	models.ModuleDarkHorse:        0.05,
	models.ModulePreRaceInfo:      0.03,
	models.ModuleMarketEfficiency: 0.02,
}

// Weights is the immutable module weight table shared by the controller,
// the scorers and the aggregator.
type Weights struct {
	values map[models.ModuleName]float64
}

// DefaultWeights returns the production weight table.
func DefaultWeights() *Weights {
	w, err := NewWeights(defaultWeights)
	if err != nil {
		panic(err)
	}
	return w
}

// NewWeights copies and validates a weight table. Every system module must be
// present, weights must lie in [0,1] and sum to 1.
func NewWeights(values map[models.ModuleName]float64) (*Weights, error) {
	copied := make(map[models.ModuleName]float64, len(values))
	known := make(map[models.ModuleName]bool, len(SystemModules))
	for _, m := range SystemModules {
		known[m] = true
	}

	for name, v := range values {
		if !known[name] {
			return nil, fmt.Errorf("unknown module %q in weight table", name)
		}
		if v < 0 || v > 1 || math.IsNaN(v) {
			return nil, fmt.Errorf("weight for %s out of range: %v", name, v)
		}
		copied[name] = v
	}
	for _, m := range SystemModules {
		if _, ok := copied[m]; !ok {
			return nil, fmt.Errorf("missing weight for module %s", m)
		}
	}
	if err := checkSum(copied); err != nil {
		return nil, err
	}
	return &Weights{values: copied}, nil
}

// WeightsFromConfig builds a table from string keys as loaded from YAML.
func WeightsFromConfig(values map[string]float64) (*Weights, error) {
	if len(values) == 0 {
		return DefaultWeights(), nil
	}
	typed := make(map[models.ModuleName]float64, len(values))
	for k, v := range values {
		typed[models.ModuleName(k)] = v
	}
	return NewWeights(typed)
}

// Of returns the weight of a module, or 0 if it has none.
func (w *Weights) Of(name models.ModuleName) float64 {
	return w.values[name]
}

// Total returns the sum of all weights.
func (w *Weights) Total() float64 {
	return sum(w.values)
}

// Map returns a copy of the table.
func (w *Weights) Map() map[models.ModuleName]float64 {
	out := make(map[models.ModuleName]float64, len(w.values))
	for k, v := range w.values {
		out[k] = v
	}
	return out
}

// ByWeight returns module names ordered by descending weight.
func (w *Weights) ByWeight() []models.ModuleName {
	names := make([]models.ModuleName, 0, len(w.values))
	for k := range w.values {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		if w.values[names[i]] == w.values[names[j]] {
			return names[i] < names[j]
		}
		return w.values[names[i]] > w.values[names[j]]
	})
	return names
}

// CheckSubWeights verifies a module's sub-factor table sums to 1.
func CheckSubWeights(weights map[string]float64) error {
	return checkSum(weights)
}

func checkSum[K comparable](values map[K]float64) error {
	if total := sum(values); math.Abs(total-1.0) > WeightTolerance {
		return fmt.Errorf("weights sum to %.6f, expected 1.0", total)
	}
	return nil
}

func sum[K comparable](values map[K]float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
