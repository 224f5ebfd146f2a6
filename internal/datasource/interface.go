// Package datasource collects race cards from racing web sites and fixtures.
package datasource

import (
	"context"
	"errors"
	"time"

	"github.com/yourusername/keiba-line-bot/internal/models"
)

// RaceCollector fetches the race cards published for a date
type RaceCollector interface {
	// Collect retrieves every race card for the date, details included
	Collect(ctx context.Context, date time.Time) ([]RaceData, error)

	// Name returns the name of the data source
	Name() string
}

// RaceData is a race card as scraped, before normalization. Text fields keep
// the source spelling; the normalizer owns parsing and repair.
type RaceData struct {
	SourceID       string       `json:"source_id"`
	Source         string       `json:"source"`
	RaceName       string       `json:"race_name"`
	Track          string       `json:"track"`
	RaceNumber     string       `json:"race_number"`
	Date           string       `json:"date"`       // YYYYMMDD
	StartTime      string       `json:"start_time"` // HH:MM, JST
	Grade          string       `json:"grade"`
	Class          string       `json:"class"`
	Distance       string       `json:"distance"` // "1600" or "芝1600m"
	Surface        string       `json:"surface"`
	Course         string       `json:"course"`
	Weather        string       `json:"weather"`
	TrackCondition string       `json:"condition"`
	DetailURL      string       `json:"detail_url,omitempty"`
	Runners        []RunnerData `json:"runners"`
	FetchedAt      time.Time    `json:"fetched_at"`
}

// RunnerData is one runner row from a race card
type RunnerData struct {
	SourceID          string                     `json:"source_id"`
	Number            string                     `json:"horse_number"`
	Barrier           string                     `json:"barrier"`
	Name              string                     `json:"horse_name"`
	SexAge            string                     `json:"sex_age"` // e.g. 牡4
	Weight            string                     `json:"weight"`
	Jockey            string                     `json:"jockey"`
	Trainer           string                     `json:"trainer"`
	BodyWeight        string                     `json:"body_weight"` // e.g. 480(+4)
	Popularity        string                     `json:"popularity"`
	Odds              string                     `json:"odds"`
	MorningOdds       string                     `json:"morning_odds,omitempty"`
	Sire              string                     `json:"sire"`
	DamSire           string                     `json:"dam_sire"`
	PaddockGrade      string                     `json:"paddock_grade,omitempty"`
	DaysSinceLastRace string                     `json:"days_since_last_race,omitempty"`
	Past              []models.PerformanceRecord `json:"past_performances,omitempty"`
}

// DataSourceError represents errors from data source operations
type DataSourceError struct {
	Source  string // Data source name
	Code    string // Error code (e.g., "rate_limit_exceeded")
	Message string // Error message
	Err     error  // Underlying error
}

func (e DataSourceError) Error() string {
	if e.Err != nil {
		return e.Source + ": " + e.Code + ": " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Source + ": " + e.Code + ": " + e.Message
}

// Unwrap exposes the underlying error.
func (e DataSourceError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrCodeRateLimitExceeded = "rate_limit_exceeded"
	ErrCodeNotFound          = "not_found"
	ErrCodeInvalidData       = "invalid_data"
	ErrCodeNetworkError      = "network_error"
	ErrCodeServerError       = "server_error"
	ErrCodeCircuitOpen       = "circuit_open"
	ErrCodeUnknown           = "unknown"
)

// Error constructors
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrNotFound          = errors.New("data not found")
	ErrInvalidData       = errors.New("invalid data format")
	ErrNetworkError      = errors.New("network error")
	ErrServerError       = errors.New("server error")
	ErrCircuitOpen       = errors.New("circuit breaker open")
)

// NewDataSourceError creates a new data source error
func NewDataSourceError(source, code, message string, err error) DataSourceError {
	return DataSourceError{
		Source:  source,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
