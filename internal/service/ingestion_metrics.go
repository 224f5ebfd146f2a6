package service

import (
	"fmt"
	"sync"
	"time"
)

// IngestionMetrics tracks statistics about past performance ingestion
type IngestionMetrics struct {
	mu               sync.RWMutex
	StartTime        time.Time
	Duration         time.Duration
	TotalRaces       int
	StoredRaces      int
	Records          int
	ValidationErrors int
	Errors           int
}

// NewIngestionMetrics creates a new metrics tracker
func NewIngestionMetrics() *IngestionMetrics {
	return &IngestionMetrics{
		StartTime: time.Now(),
	}
}

// Reset resets all metrics
func (m *IngestionMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StartTime = time.Now()
	m.Duration = 0
	m.TotalRaces = 0
	m.StoredRaces = 0
	m.Records = 0
	m.ValidationErrors = 0
	m.Errors = 0
}

// RecordRace increments the collected race count
func (m *IngestionMetrics) RecordRace() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalRaces++
}

// RecordStored increments the stored race count
func (m *IngestionMetrics) RecordStored() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StoredRaces++
}

// RecordRecords adds stored past performance rows
func (m *IngestionMetrics) RecordRecords(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records += n
}

// RecordError increments error count
func (m *IngestionMetrics) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors++
}

// RecordValidationError increments validation error count
func (m *IngestionMetrics) RecordValidationError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ValidationErrors++
}

// SetDuration records the run duration
func (m *IngestionMetrics) SetDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Duration = d
}

// String returns a formatted string representation of metrics
func (m *IngestionMetrics) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	successRate := float64(0)
	if m.TotalRaces > 0 {
		successRate = float64(m.StoredRaces) / float64(m.TotalRaces) * 100
	}

	return fmt.Sprintf(
		"IngestionMetrics{Total=%d, Stored=%d (%.1f%%), Records=%d, ValidationErrors=%d, Errors=%d, Duration=%v}",
		m.TotalRaces,
		m.StoredRaces,
		successRate,
		m.Records,
		m.ValidationErrors,
		m.Errors,
		m.Duration,
	)
}
