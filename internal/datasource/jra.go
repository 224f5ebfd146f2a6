package datasource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/keiba-line-bot/internal/models"
	"golang.org/x/sync/errgroup"
)

const jraSourceName = "jra"

// JRACollector scrapes race lists and race cards from the JRA site
type JRACollector struct {
	httpClient    *RateLimitedHTTPClient
	baseURL       string
	maxConcurrent int
	logger        *logrus.Logger
}

// NewJRACollector creates a new JRA race card collector
func NewJRACollector(httpClient *RateLimitedHTTPClient, baseURL string, maxConcurrent int, logger *logrus.Logger) *JRACollector {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &JRACollector{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(baseURL, "/"),
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
}

// Name returns the data source name
func (c *JRACollector) Name() string {
	return jraSourceName
}

// Collect fetches the day's race list and every race card. Races whose card
// cannot be fetched or parsed are dropped.
func (c *JRACollector) Collect(ctx context.Context, date time.Time) ([]RaceData, error) {
	start := time.Now()
	listURL := fmt.Sprintf("%s/race/calendar/%s", c.baseURL, date.Format("20060102"))

	body, err := c.fetch(ctx, listURL)
	if err != nil {
		return nil, err
	}
	races, err := ParseRaceList(body, date)
	if err != nil {
		return nil, NewDataSourceError(jraSourceName, ErrCodeInvalidData, "failed to parse race list", err)
	}
	if len(races) == 0 {
		c.logger.WithField("date", date.Format("2006-01-02")).Warn("No races found for date")
		return nil, nil
	}

	ok := make([]bool, len(races))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrent)
	for i := range races {
		i := i
		g.Go(func() error {
			race := &races[i]
			if race.DetailURL == "" {
				race.DetailURL = fmt.Sprintf("%s/race/detail/%s", c.baseURL, race.SourceID)
			} else if strings.HasPrefix(race.DetailURL, "/") {
				race.DetailURL = c.baseURL + race.DetailURL
			}

			detail, err := c.fetch(gctx, race.DetailURL)
			if err != nil {
				c.logger.WithError(err).WithField("race_id", race.SourceID).Warn("Failed to fetch race card")
				return nil
			}
			if err := ParseRaceDetail(detail, race); err != nil {
				c.logger.WithError(err).WithField("race_id", race.SourceID).Warn("Failed to parse race card")
				return nil
			}
			race.FetchedAt = time.Now()
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, NewDataSourceError(jraSourceName, ErrCodeNetworkError, "collection interrupted", ctx.Err())
	}

	out := make([]RaceData, 0, len(races))
	for i, race := range races {
		if ok[i] {
			out = append(out, race)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"date":     date.Format("2006-01-02"),
		"listed":   len(races),
		"detailed": len(out),
		"duration": time.Since(start),
	}).Info("Race collection completed")
	return out, nil
}

func (c *JRACollector) fetch(ctx context.Context, url string) (string, error) {
	body, status, err := c.httpClient.GetBody(ctx, url)
	if err != nil {
		code := ErrCodeNetworkError
		switch {
		case status == http.StatusTooManyRequests:
			code = ErrCodeRateLimitExceeded
		case errors.Is(err, ErrCircuitOpen):
			code = ErrCodeCircuitOpen
		}
		return "", NewDataSourceError(jraSourceName, code, "failed to fetch "+url, err)
	}
	switch {
	case status == http.StatusNotFound:
		return "", NewDataSourceError(jraSourceName, ErrCodeNotFound, url, ErrNotFound)
	case status == http.StatusTooManyRequests:
		return "", NewDataSourceError(jraSourceName, ErrCodeRateLimitExceeded, url, ErrRateLimitExceeded)
	case status != http.StatusOK:
		return "", NewDataSourceError(jraSourceName, ErrCodeServerError, fmt.Sprintf("unexpected status %d", status), ErrServerError)
	}
	return body, nil
}

// ParseRaceList extracts div.race-item entries. Items without a race name are skipped.
func ParseRaceList(html string, date time.Time) ([]RaceData, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var races []RaceData
	doc.Find("div.race-item").Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.Find("h3").First().Text())
		if name == "" {
			return
		}
		href, _ := s.Find("a").First().Attr("href")
		races = append(races, RaceData{
			SourceID:   attr(s, "data-race-id"),
			Source:     jraSourceName,
			RaceName:   name,
			Track:      attr(s, "data-track"),
			RaceNumber: attr(s, "data-race-number"),
			Date:       date.Format("20060102"),
			StartTime:  attr(s, "data-start-time"),
			Grade:      attr(s, "data-grade"),
			Distance:   attr(s, "data-distance"),
			Surface:    attr(s, "data-surface"),
			DetailURL:  href,
		})
	})
	return races, nil
}

// ParseRaceDetail fills race conditions and runners from a race card page.
func ParseRaceDetail(html string, race *RaceData) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}

	header := doc.Find("div.race-header").First()
	if header.Length() > 0 {
		setIfEmpty(&race.Weather, attr(header, "data-weather"))
		setIfEmpty(&race.TrackCondition, attr(header, "data-condition"))
		setIfEmpty(&race.Class, attr(header, "data-class"))
		setIfEmpty(&race.Course, attr(header, "data-course"))
		setIfEmpty(&race.Distance, attr(header, "data-distance"))
		setIfEmpty(&race.Surface, attr(header, "data-surface"))
	}

	past := make(map[string][]models.PerformanceRecord)
	doc.Find("tr.past").Each(func(_ int, s *goquery.Selection) {
		number := attr(s, "data-horse-number")
		past[number] = append(past[number], parsePastRow(s))
	})

	race.Runners = race.Runners[:0]
	doc.Find("table.horse-list tr.horse").Each(func(_ int, s *goquery.Selection) {
		number := attr(s, "data-number")
		race.Runners = append(race.Runners, RunnerData{
			SourceID:          attr(s, "data-horse-id"),
			Number:            number,
			Barrier:           attr(s, "data-barrier"),
			Popularity:        attr(s, "data-popularity"),
			Odds:              attr(s, "data-odds"),
			Name:              cell(s, "horse-name"),
			SexAge:            cell(s, "sex-age"),
			Weight:            cell(s, "weight"),
			Jockey:            cell(s, "jockey"),
			Trainer:           cell(s, "trainer"),
			BodyWeight:        cell(s, "body-weight"),
			Sire:              cell(s, "sire"),
			DamSire:           cell(s, "dam-sire"),
			PaddockGrade:      attr(s, "data-paddock"),
			DaysSinceLastRace: attr(s, "data-days-since"),
			Past:              past[number],
		})
	})

	if len(race.Runners) == 0 {
		return fmt.Errorf("%w: race card has no runners", ErrInvalidData)
	}
	return nil
}

func parsePastRow(s *goquery.Selection) models.PerformanceRecord {
	date, _ := time.Parse("2006-01-02", attr(s, "data-date"))
	return models.PerformanceRecord{
		Date:           date,
		RaceName:       attr(s, "data-race-name"),
		Track:          attr(s, "data-track"),
		Distance:       atoi(attr(s, "data-distance")),
		Surface:        models.NormalizeSurface(attr(s, "data-surface")),
		Grade:          attr(s, "data-grade"),
		Class:          attr(s, "data-class"),
		TrackCondition: attr(s, "data-condition"),
		Finish:         atoi(attr(s, "data-finish")),
		FieldSize:      atoi(attr(s, "data-field-size")),
		Odds:           atof(attr(s, "data-odds")),
		Popularity:     atoi(attr(s, "data-popularity")),
		Jockey:         attr(s, "data-jockey"),
		Weight:         atof(attr(s, "data-weight")),
		FinalStretch:   atof(attr(s, "data-last3f")),
		Margin:         atof(attr(s, "data-margin")),
	}
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func cell(s *goquery.Selection, class string) string {
	return strings.TrimSpace(s.Find("td." + class).First().Text())
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}
