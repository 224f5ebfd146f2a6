package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/keiba-line-bot/internal/config"
	"golang.org/x/text/encoding/japanese"
)

const raceListHTML = `<html><body>
<div class="race-item" data-race-id="202410190511" data-track="東京" data-race-number="11"
     data-start-time="15:45" data-grade="G2" data-distance="1800" data-surface="芝">
  <h3>府中牝馬ステークス</h3>
</div>
<div class="race-item" data-race-id="202410190510" data-track="東京" data-race-number="10"
     data-start-time="15:01" data-distance="1400" data-surface="ダート">
  <h3>赤富士ステークス</h3><a href="/race/detail/custom10">detail</a>
</div>
<div class="race-item" data-race-id="202410190509"><h3></h3></div>
</body></html>`

const raceDetailHTML = `<html><body>
<div class="race-header" data-weather="晴" data-condition="良" data-class="オープン" data-course="左"></div>
<table class="horse-list"><tbody>
<tr class="horse" data-horse-id="2019104567" data-number="1" data-barrier="1" data-popularity="2" data-odds="4.1" data-paddock="A">
  <td class="horse-name">サクラヒメ</td><td class="sex-age">牝5</td><td class="weight">55.0</td>
  <td class="jockey">川田将雅</td><td class="trainer">中内田充正</td><td class="body-weight">468(+2)</td>
  <td class="sire">ディープインパクト</td><td class="dam-sire">キングカメハメハ</td>
</tr>
<tr class="horse" data-horse-id="2020101111" data-number="2" data-barrier="2" data-popularity="1" data-odds="2.8">
  <td class="horse-name">ミライノカゼ</td><td class="sex-age">牝4</td><td class="weight">54.0</td>
  <td class="jockey">ルメール</td><td class="trainer">木村哲也</td><td class="body-weight">452(-4)</td>
  <td class="sire">エピファネイア</td><td class="dam-sire">ハーツクライ</td>
</tr>
</tbody></table>
<table class="past-list"><tbody>
<tr class="past" data-horse-number="1" data-date="2024-09-15" data-track="中山" data-distance="1600"
    data-surface="芝" data-grade="G3" data-condition="良" data-finish="2" data-field-size="16"
    data-popularity="4" data-odds="8.2" data-jockey="川田将雅" data-weight="55" data-last3f="34.1"></tr>
</tbody></table>
</body></html>`

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testHTTPConfig() HTTPClientConfig {
	cfg := DefaultHTTPClientConfig()
	cfg.RateLimit = 1000
	cfg.Burst = 100
	cfg.MaxRetries = 0
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = time.Millisecond
	cfg.Timeout = 2 * time.Second
	return cfg
}

func jraServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/race/calendar/20241019", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, raceListHTML)
	})
	mux.HandleFunc("/race/detail/202410190511", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, raceDetailHTML)
	})
	mux.HandleFunc("/race/detail/custom10", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestJRACollectorCollect(t *testing.T) {
	srv := jraServer(t)
	client := NewRateLimitedHTTPClient(testHTTPConfig(), quietLogger())
	collector := NewJRACollector(client, srv.URL, 2, quietLogger())

	date := time.Date(2024, 10, 19, 0, 0, 0, 0, time.UTC)
	races, err := collector.Collect(context.Background(), date)
	require.NoError(t, err)
	require.Len(t, races, 1, "race 10 card is missing and must be dropped")

	race := races[0]
	assert.Equal(t, "府中牝馬ステークス", race.RaceName)
	assert.Equal(t, "東京", race.Track)
	assert.Equal(t, "11", race.RaceNumber)
	assert.Equal(t, "G2", race.Grade)
	assert.Equal(t, "晴", race.Weather)
	assert.Equal(t, "良", race.TrackCondition)
	assert.Equal(t, "20241019", race.Date)
	require.Len(t, race.Runners, 2)

	first := race.Runners[0]
	assert.Equal(t, "サクラヒメ", first.Name)
	assert.Equal(t, "牝5", first.SexAge)
	assert.Equal(t, "468(+2)", first.BodyWeight)
	assert.Equal(t, "4.1", first.Odds)
	assert.Equal(t, "A", first.PaddockGrade)
	require.Len(t, first.Past, 1)
	assert.Equal(t, 2, first.Past[0].Finish)
	assert.Equal(t, "芝", first.Past[0].Surface)
	assert.Empty(t, race.Runners[1].Past)
}

func TestJRACollectorNoRaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>本日の開催はありません</body></html>")
	}))
	defer srv.Close()

	collector := NewJRACollector(NewRateLimitedHTTPClient(testHTTPConfig(), quietLogger()), srv.URL, 2, quietLogger())
	races, err := collector.Collect(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, races)
}

func TestJRACollectorListNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	collector := NewJRACollector(NewRateLimitedHTTPClient(testHTTPConfig(), quietLogger()), srv.URL, 2, quietLogger())
	_, err := collector.Collect(context.Background(), time.Now())
	require.Error(t, err)

	var dsErr DataSourceError
	require.True(t, errors.As(err, &dsErr))
	assert.Equal(t, ErrCodeNotFound, dsErr.Code)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseRaceDetailWithoutRunners(t *testing.T) {
	race := &RaceData{}
	err := ParseRaceDetail("<html><body><div class=\"race-header\"></div></body></html>", race)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestDecodeBody(t *testing.T) {
	sjis, err := japanese.ShiftJIS.NewEncoder().String("東京優駿")
	require.NoError(t, err)
	euc, err := japanese.EUCJP.NewEncoder().String("有馬記念")
	require.NoError(t, err)

	tests := []struct {
		name        string
		raw         []byte
		contentType string
		want        string
	}{
		{"utf8 header", []byte("天皇賞"), "text/html; charset=utf-8", "天皇賞"},
		{"shift_jis header", []byte(sjis), "text/html; charset=Shift_JIS", "東京優駿"},
		{"euc-jp header", []byte(euc), "text/html; charset=EUC-JP", "有馬記念"},
		{"meta charset", []byte(`<meta charset="shift_jis">` + sjis), "text/html", `<meta charset="shift_jis">東京優駿`},
		{"sniffed shift_jis", []byte(sjis), "", "東京優駿"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBody(tt.raw, tt.contentType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPClientDecodesShiftJIS(t *testing.T) {
	body, err := japanese.ShiftJIS.NewEncoder().String("<h3>菊花賞</h3>")
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "keiba-line-bot/3.1", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=Shift_JIS")
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	client := NewRateLimitedHTTPClient(testHTTPConfig(), quietLogger())
	got, status, err := client.GetBody(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "<h3>菊花賞</h3>", got)
}

func TestHTTPClientCircuitBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testHTTPConfig()
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Minute
	client := NewRateLimitedHTTPClient(cfg, quietLogger())

	for i := 0; i < 2; i++ {
		_, err := client.Get(context.Background(), srv.URL)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, client.State())

	_, err := client.Get(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPClientRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cfg := testHTTPConfig()
	cfg.RateLimit = 0.001
	cfg.Burst = 1
	client := NewRateLimitedHTTPClient(cfg, quietLogger())

	_, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Get(ctx, srv.URL)
	assert.ErrorContains(t, err, "rate limiter")
}

func TestFixtureCollector(t *testing.T) {
	dir := t.TempDir()
	fixture := `{"date":"20241019","races":[{"source_id":"r1","race_name":"テスト特別","track":"東京","runners":[{"horse_number":"1","horse_name":"テストホース"}]}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20241019.json"), []byte(fixture), 0o600))

	collector := NewFixtureCollector(dir, quietLogger())
	races, err := collector.Collect(context.Background(), time.Date(2024, 10, 19, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, races, 1)
	assert.Equal(t, "テスト特別", races[0].RaceName)
	assert.Equal(t, fixtureSourceName, races[0].Source)
	assert.Equal(t, "20241019", races[0].Date)

	races, err = collector.Collect(context.Background(), time.Date(2024, 10, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, races)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "20241021.json"), []byte("{"), 0o600))
	_, err = collector.Collect(context.Background(), time.Date(2024, 10, 21, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestFactoryNewCollector(t *testing.T) {
	f := NewFactory(quietLogger())

	c, err := f.NewCollector(config.DataSourceConfig{Name: "jra", BaseURL: "https://www.jra.go.jp", MaxConcurrentFetches: 5})
	require.NoError(t, err)
	assert.Equal(t, "jra", c.Name())

	c, err = f.NewCollector(config.DataSourceConfig{Name: "fixture", FixturePath: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "fixture", c.Name())

	_, err = f.NewCollector(config.DataSourceConfig{Name: "fixture"})
	assert.Error(t, err)
	_, err = f.NewCollector(config.DataSourceConfig{Name: "netkeiba"})
	assert.ErrorContains(t, err, "unknown data source")
}
