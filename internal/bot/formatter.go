package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yourusername/keiba-line-bot/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Disclaimer closes every message that carries stake suggestions.
const Disclaimer = "※投資は自己責任でお願いします"

// Fixed replies
const (
	UnknownCommandText = "🤔 申し訳ございません。コマンドが認識できませんでした。\n「ヘルプ」と入力してコマンド一覧をご確認ください。"
	SystemErrorText    = "❌ システムエラーが発生しました。しばらく時間をおいてから再度お試しください。"
	NoRacesText        = "📊 本日は推奨レースがありません"
)

var symbolLabels = map[string]string{
	models.SymbolHonmei: "本命",
	models.SymbolTaikou: "対抗",
	models.SymbolTanana: "単穴",
	models.SymbolNoBet:  "見送り",
}

var yen = message.NewPrinter(language.Japanese)

// FormatYen renders an amount as "¥11,200".
func FormatYen(d decimal.Decimal) string {
	return yen.Sprintf("¥%d", d.IntPart())
}

// Formatter renders prediction results as LINE text
type Formatter struct {
	location *time.Location
	maxRaces int
}

// NewFormatter creates a formatter. Start times are shown in loc; at most maxRaces
// races are listed per message.
func NewFormatter(loc *time.Location, maxRaces int) *Formatter {
	if loc == nil {
		loc = time.UTC
	}
	if maxRaces <= 0 {
		maxRaces = 5
	}
	return &Formatter{location: loc, maxRaces: maxRaces}
}

// FormatDay renders a full day's prediction.
func (f *Formatter) FormatDay(result *models.PredictionResult) string {
	if !result.Succeeded() {
		return f.FormatError(result)
	}
	if len(result.Races) == 0 {
		return NoRacesText
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🏇 %s 競馬AI予想\n", result.Date)

	for _, race := range topRaces(result.Races, f.maxRaces) {
		b.WriteString("\n")
		f.writeRace(&b, race)
	}

	b.WriteString("\n")
	f.writeSummary(&b, result)
	return b.String()
}

// FormatRace renders a single race of a result.
func (f *Formatter) FormatRace(race models.RacePrediction) string {
	var b strings.Builder
	f.writeRace(&b, race)
	if !race.Stakes.IsNoInvestment() {
		b.WriteString(Disclaimer)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatError explains an error-status result without internal detail.
func (f *Formatter) FormatError(result *models.PredictionResult) string {
	switch result.ErrorKind {
	case models.ErrorKindCollection:
		return fmt.Sprintf("📊 %s の開催レース情報が取得できませんでした", result.Date)
	case models.ErrorKindValidation:
		return "⚠️ レースデータの品質が基準に達しなかったため、予想を見送りました"
	case models.ErrorKindTimeout:
		return "⏳ 予想の生成に時間がかかりすぎました。しばらくしてから再度お試しください。"
	case models.ErrorKindNotFound:
		return "🔍 指定されたレースが見つかりませんでした"
	}
	return SystemErrorText
}

// FormatStats renders the stats reply for a day.
func (f *Formatter) FormatStats(date time.Time, result *models.PredictionResult, budget decimal.Decimal, cached int, hitRatio float64) string {
	invested := decimal.Zero
	if result != nil && result.Succeeded() {
		invested = result.Stakes.TotalAmount
	}
	remaining := budget.Sub(invested)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	var b strings.Builder
	b.WriteString("📈 予想統計情報\n\n")
	fmt.Fprintf(&b, "💰 本日の推奨投資額: %s\n", FormatYen(invested))
	fmt.Fprintf(&b, "📊 残り投資可能額: %s\n", FormatYen(remaining))
	fmt.Fprintf(&b, "🎯 キャッシュ済み予想: %d件 (ヒット率 %.0f%%)\n", cached, hitRatio*100)
	if result != nil && result.Succeeded() {
		fmt.Fprintf(&b, "🔎 分析レース数: %d (品質 %.1f)\n", len(result.Races), result.QualityScore)
	}
	fmt.Fprintf(&b, "\n📅 最終更新: %s", date.In(f.location).Format("2006-01-02 15:04"))
	return b.String()
}

// HelpText lists the chat commands.
func HelpText(budget decimal.Decimal, broadcastHour string) string {
	return "🏇 競馬AI予想Bot コマンド一覧\n\n" +
		"📊 「予想」「今日の予想」\n→ 本日のAI予想を表示\n\n" +
		"📅 「明日の予想」\n→ 明日のAI予想を表示\n\n" +
		"🏁 「レース 11」「レース 東京11R」\n→ 指定レースの予想を表示\n\n" +
		"📈 「統計」\n→ 予想成績を表示\n\n" +
		"❓ 「ヘルプ」\n→ このメッセージを表示\n\n" +
		fmt.Sprintf("🤖 毎日%sに自動で予想を配信します\n", broadcastHour) +
		fmt.Sprintf("💰 1日の投資上限: %s", FormatYen(budget))
}

func (f *Formatter) writeRace(b *strings.Builder, race models.RacePrediction) {
	eval := race.Evaluation

	fmt.Fprintf(b, "🏇 %s%dR %s\n", race.Track, race.RaceNumber, race.RaceName)
	if !race.StartTime.IsZero() {
		fmt.Fprintf(b, "⏰ %s発走\n", race.StartTime.In(f.location).Format("15:04"))
	}
	fmt.Fprintf(b, "📊 評価 %s (%.1f点) 信頼度 %.0f%%\n", eval.Grade, eval.FinalScore, eval.Confidence*100)

	for _, rec := range eval.Recommendations {
		label := symbolLabels[rec.Symbol]
		if rec.IsNoBet() || rec.HorseNumber == 0 {
			fmt.Fprintf(b, "%s%s\n", rec.Symbol, label)
			continue
		}
		fmt.Fprintf(b, "%s%s %d %s (%.1f)\n", rec.Symbol, label, rec.HorseNumber, rec.HorseName, rec.Score)
	}

	if race.Stakes.IsNoInvestment() || len(race.Stakes.Stakes) == 0 {
		fmt.Fprintf(b, "💤 %s\n", models.NoInvestmentMessage)
		return
	}
	b.WriteString("💰 推奨投資\n")
	for _, s := range race.Stakes.Stakes {
		fmt.Fprintf(b, "  %s %d番 %s (オッズ%.1f)\n", s.BetType.Label(), s.HorseNumber, FormatYen(s.Amount), s.Odds)
	}
}

func (f *Formatter) writeSummary(b *strings.Builder, result *models.PredictionResult) {
	invested := 0
	for _, r := range result.Races {
		if !r.Stakes.IsNoInvestment() && len(r.Stakes.Stakes) > 0 {
			invested++
		}
	}

	b.WriteString("📋 本日の投資サマリー\n")
	fmt.Fprintf(b, "💰 総投資額: %s / %s\n", FormatYen(result.Stakes.TotalAmount), FormatYen(result.Stakes.Budget))
	fmt.Fprintf(b, "🎯 推奨レース数: %d / %d\n", invested, len(result.Races))
	b.WriteString(Disclaimer)
}

// topRaces keeps the highest scoring races in start-time order.
func topRaces(races []models.RacePrediction, n int) []models.RacePrediction {
	if len(races) <= n {
		return races
	}
	keep := make(map[int]bool, n)
	for len(keep) < n {
		best := -1
		for i, r := range races {
			if keep[i] {
				continue
			}
			if best < 0 || r.Evaluation.FinalScore > races[best].Evaluation.FinalScore {
				best = i
			}
		}
		keep[best] = true
	}
	out := make([]models.RacePrediction, 0, n)
	for i, r := range races {
		if keep[i] {
			out = append(out, r)
		}
	}
	return out
}
