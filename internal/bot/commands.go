// Package bot turns chat commands and schedules into prediction replies.
package bot

import (
	"strings"
	"time"

	"golang.org/x/text/width"
)

// CommandKind identifies a chat command
type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandToday
	CommandTomorrow
	CommandRace
	CommandStats
	CommandHelp
)

// String returns the command name used in logs and metrics.
func (k CommandKind) String() string {
	switch k {
	case CommandToday:
		return "today"
	case CommandTomorrow:
		return "tomorrow"
	case CommandRace:
		return "race"
	case CommandStats:
		return "stats"
	case CommandHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Command is a parsed chat message
type Command struct {
	Kind    CommandKind
	Date    time.Time
	RaceRef string
}

var (
	todayWords    = []string{"予想", "今日の予想", "本日の予想", "prediction", "today"}
	tomorrowWords = []string{"明日の予想", "明日", "tomorrow"}
	statsWords    = []string{"統計", "成績", "stats"}
	helpWords     = []string{"ヘルプ", "help", "使い方", "?"}
	racePrefixes  = []string{"レース", "race"}
)

// ParseCommand interprets a message received at now. Full-width input is folded
// so "ｈｅｌｐ" and "レース１１" are understood.
func ParseCommand(text string, now time.Time) Command {
	msg := strings.ToLower(strings.TrimSpace(width.Fold.String(text)))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case matches(msg, todayWords):
		return Command{Kind: CommandToday, Date: today}
	case matches(msg, tomorrowWords):
		return Command{Kind: CommandTomorrow, Date: today.AddDate(0, 0, 1)}
	case matches(msg, statsWords):
		return Command{Kind: CommandStats, Date: today}
	case matches(msg, helpWords):
		return Command{Kind: CommandHelp}
	}

	for _, p := range racePrefixes {
		if ref, ok := strings.CutPrefix(msg, p); ok {
			ref = strings.TrimSpace(ref)
			if ref == "" {
				break
			}
			return Command{Kind: CommandRace, Date: today, RaceRef: strings.ToUpper(ref)}
		}
	}
	return Command{Kind: CommandUnknown}
}

func matches(msg string, words []string) bool {
	for _, w := range words {
		if msg == w {
			return true
		}
	}
	return false
}
