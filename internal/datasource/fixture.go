package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

const fixtureSourceName = "fixture"

// fixtureFile is the on-disk layout of a recorded race day
type fixtureFile struct {
	Date  string     `json:"date"`
	Races []RaceData `json:"races"`
}

// FixtureCollector serves race cards recorded as JSON. A directory path holds
// one YYYYMMDD.json file per day; a file path is served for every date.
type FixtureCollector struct {
	path   string
	logger *logrus.Logger
}

// NewFixtureCollector creates a collector over recorded race days
func NewFixtureCollector(path string, logger *logrus.Logger) *FixtureCollector {
	return &FixtureCollector{path: path, logger: logger}
}

// Name returns the data source name
func (c *FixtureCollector) Name() string {
	return fixtureSourceName
}

// Collect reads the fixture for the date. A missing day yields no races.
func (c *FixtureCollector) Collect(ctx context.Context, date time.Time) ([]RaceData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := c.path
	info, err := os.Stat(path)
	if err != nil {
		return nil, NewDataSourceError(fixtureSourceName, ErrCodeNotFound, "fixture path unavailable", err)
	}
	if info.IsDir() {
		path = filepath.Join(path, date.Format("20060102")+".json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.logger.WithField("path", path).Warn("No fixture for date")
			return nil, nil
		}
		return nil, NewDataSourceError(fixtureSourceName, ErrCodeUnknown, "failed to read fixture", err)
	}

	var f fixtureFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, NewDataSourceError(fixtureSourceName, ErrCodeInvalidData, fmt.Sprintf("failed to parse %s", path), fmt.Errorf("%w: %v", ErrInvalidData, err))
	}

	for i := range f.Races {
		if f.Races[i].Date == "" {
			f.Races[i].Date = date.Format("20060102")
		}
		if f.Races[i].Source == "" {
			f.Races[i].Source = fixtureSourceName
		}
		f.Races[i].FetchedAt = time.Now()
	}

	c.logger.WithFields(logrus.Fields{
		"path":  path,
		"races": len(f.Races),
	}).Debug("Loaded race fixture")
	return f.Races, nil
}
