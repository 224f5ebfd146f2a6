package scoring

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// BloodlineSubWeights weight the pedigree aptitudes.
var BloodlineSubWeights = map[string]float64{
	"distance_aptitude": 0.35,
	"surface_aptitude":  0.30,
	"class_aptitude":    0.20,
	"mating_theory":     0.15,
}

// Sire lines
const (
	LineSundaySilence = "サンデーサイレンス系"
	LineMrProspector  = "ミスタープロスペクター系"
	LineStormCat      = "ストームキャット系"
	LineNorthern      = "ノーザンダンサー系"
	LineNasrullah     = "ナスルーラ系"
	LineRibot         = "リボー系"
	LineNijinsky      = "ニジンスキー系"
	LineOther         = "その他"
)

type lineProfile struct {
	short, middle, long float64
	surface             string
	classType           string
}

var sireLines = map[string]lineProfile{
	LineSundaySilence: {0.8, 1.0, 0.6, models.SurfaceTurf, "g1"},
	LineMrProspector:  {1.2, 0.9, 0.5, models.SurfaceDirt, "graded"},
	LineStormCat:      {1.1, 0.8, 0.4, models.SurfaceDirt, ""},
	LineNorthern:      {0.9, 1.1, 0.8, models.SurfaceTurf, "g1"},
	LineNasrullah:     {0.9, 1.0, 0.9, "", "graded"},
	LineRibot:         {0.6, 1.0, 1.3, "", ""},
	LineNijinsky:      {0.7, 1.1, 1.2, "", ""},
	LineOther:         {0.9, 1.0, 0.9, "", ""},
}

// well known sires mapped to their line
var sireToLine = map[string]string{
	"ディープインパクト": LineSundaySilence,
	"ハーツクライ":    LineSundaySilence,
	"ステイゴールド":   LineSundaySilence,
	"オルフェーヴル":   LineSundaySilence,
	"ゴールドシップ":   LineSundaySilence,
	"キタサンブラック":  LineSundaySilence,
	"ブラックタイド":   LineSundaySilence,
	"キズナ":       LineSundaySilence,
	"キングカメハメハ":  LineMrProspector,
	"ロードカナロア":   LineMrProspector,
	"ドゥラメンテ":    LineMrProspector,
	"ルーラーシップ":   LineMrProspector,
	"ヘニーヒューズ":   LineStormCat,
	"ドレフォン":     LineStormCat,
	"フランケル":     LineNorthern,
	"ハービンジャー":   LineNorthern,
	"モーリス":      LineNasrullah,
	"エピファネイア":   LineNasrullah,
	"シンボリクリスエス": LineNasrullah,
}

// famous crosses of sire line × damsire line
var nicks = map[[2]string]bool{
	{LineSundaySilence, LineNorthern}:     true,
	{LineSundaySilence, LineMrProspector}: true,
	{LineMrProspector, LineSundaySilence}: true,
	{LineNasrullah, LineSundaySilence}:    true,
}

// BloodlineAnalysis rates pedigree aptitude for today's race
type BloodlineAnalysis struct {
	BaseScorer
}

// NewBloodlineAnalysis creates the bloodline module
func NewBloodlineAnalysis(weights *Weights, provider PerformanceProvider, logger *logrus.Logger) *BloodlineAnalysis {
	return &BloodlineAnalysis{BaseScorer: newBaseScorer(models.ModuleBloodline, weights, BloodlineSubWeights, provider, logger)}
}

// Score implements Scorer
func (b *BloodlineAnalysis) Score(ctx context.Context, race *models.RaceSnapshot) (models.ModuleResult, error) {
	start := time.Now()
	scores, err := b.scoreHorses(ctx, race, func(_ context.Context, race *models.RaceSnapshot, horse models.HorseEntry, _ []models.PerformanceRecord) (map[string]float64, error) {
		return pedigreeFactors(race, horse), nil
	})
	if err != nil {
		return models.ModuleResult{}, err
	}
	return b.result(start, scores, &models.FactorDetails{Scores: rankScores(scores)}), nil
}

// SireLine resolves a sire name or line label to a known sire line.
func SireLine(sire string) string {
	s := strings.TrimSpace(sire)
	if s == "" {
		return ""
	}
	if _, ok := sireLines[s]; ok {
		return s
	}
	if line, ok := sireToLine[s]; ok {
		return line
	}
	return LineOther
}

func pedigreeFactors(race *models.RaceSnapshot, horse models.HorseEntry) map[string]float64 {
	line := SireLine(horse.Sire)
	if line == "" {
		return map[string]float64{
			"distance_aptitude": models.NeutralScore,
			"surface_aptitude":  models.NeutralScore,
			"class_aptitude":    models.NeutralScore,
			"mating_theory":     models.NeutralScore,
		}
	}
	profile := sireLines[line]

	var mult float64
	switch {
	case race.Distance <= 1400:
		mult = profile.short
	case race.Distance <= 1800:
		mult = profile.middle
	default:
		mult = profile.long
	}

	surface := 55.0
	raceSurface := race.NormalizedSurface()
	switch {
	case profile.surface == "":
		surface = 70
	case profile.surface == raceSurface:
		surface = 80
	case raceSurface == models.SurfaceTurf || raceSurface == models.SurfaceDirt:
		surface = 45
	}

	class := 65.0
	switch lvl := race.ClassLevel(); {
	case lvl >= 7 && profile.classType == "g1":
		class = 85
	case lvl >= 6 && profile.classType != "":
		class = 75
	case lvl >= 6:
		class = 55
	}

	mating := models.NeutralScore
	if dam := SireLine(horse.DamSire); dam != "" {
		switch {
		case nicks[[2]string{line, dam}]:
			mating = 85
		case dam == line && line != LineOther:
			mating = 55
		default:
			mating = 70
		}
	}

	return map[string]float64{
		"distance_aptitude": 70 * mult,
		"surface_aptitude":  surface,
		"class_aptitude":    class,
		"mating_theory":     mating,
	}
}
