package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PredictionStatus is the terminal state of a prediction run
type PredictionStatus string

const (
	PredictionSuccess PredictionStatus = "success"
	PredictionError   PredictionStatus = "error"
)

// RacePrediction is the outcome for a single race within a run
type RacePrediction struct {
	RaceID        string               `json:"race_id"`
	RaceName      string               `json:"race_name"`
	Track         string               `json:"track"`
	RaceNumber    int                  `json:"race_number"`
	StartTime     time.Time            `json:"start_time"`
	Evaluation    AggregatedEvaluation `json:"evaluation"`
	Modules       []ModuleResult       `json:"modules"`
	Stakes        StakePlan            `json:"stakes"`
	QualityScore  float64              `json:"quality_score"`
	ExecutionTime time.Duration        `json:"execution_time"`
}

// PredictionResult is the payload handed to the messaging layer
type PredictionResult struct {
	RunID           uuid.UUID        `json:"run_id"`
	Status          PredictionStatus `json:"status"`
	Date            string           `json:"date"`
	Races           []RacePrediction `json:"races,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	Stakes          StakePlan        `json:"stakes"`
	QualityScore    float64          `json:"quality_score"`
	ExecutionTime   time.Duration    `json:"execution_time"`
	Timestamp       time.Time        `json:"timestamp"`
	Version         string           `json:"version"`
	Error           string           `json:"error,omitempty"`
	ErrorKind       string           `json:"error_kind,omitempty"`
}

// Succeeded reports a success payload.
func (p *PredictionResult) Succeeded() bool {
	return p.Status == PredictionSuccess
}

// ErrorResult builds the caller-facing error payload.
func ErrorResult(runID uuid.UUID, date string, err error, elapsed time.Duration) *PredictionResult {
	return &PredictionResult{
		RunID:         runID,
		Status:        PredictionError,
		Date:          date,
		ExecutionTime: elapsed,
		Timestamp:     time.Now(),
		Error:         err.Error(),
		ErrorKind:     ErrorKindOf(err),
	}
}

// Error kinds reported on error-status results
const (
	ErrorKindCollection = "collection_failure"
	ErrorKindValidation = "validation_failure"
	ErrorKindTimeout    = "timeout"
	ErrorKindNotFound   = "not_found"
	ErrorKindInternal   = "internal"
)

// ErrorKindOf classifies err against the pipeline error kinds.
func ErrorKindOf(err error) string {
	switch {
	case errors.Is(err, ErrCollectionFailure):
		return ErrorKindCollection
	case errors.Is(err, ErrValidationFailure), errors.Is(err, ErrEmptySnapshot):
		return ErrorKindValidation
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	}
	return ErrorKindInternal
}
