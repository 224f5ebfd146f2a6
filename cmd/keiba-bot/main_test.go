package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadOutcomes(t *testing.T) {
	dir := t.TempDir()
	one := filepath.Join(dir, "one.json")
	many := filepath.Join(dir, "many.json")
	bad := filepath.Join(dir, "bad.json")

	require.NoError(t, os.WriteFile(one, []byte(`{"race_id":"202405260511","date":"2024-05-26T00:00:00+09:00","order":[3,7,1],"field_size":18,"win_payout":"600"}`), 0o644))
	require.NoError(t, os.WriteFile(many, []byte(`
[{"race_id":"a","date":"2024-05-26T00:00:00+09:00","order":[1]},
 {"race_id":"b","date":"2024-05-26T00:00:00+09:00","order":[2]}]`), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte(`{"race_id":`), 0o644))

	outcomes, err := readOutcomes(one)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, []int{3, 7, 1}, outcomes[0].Order)
	assert.Equal(t, "600", outcomes[0].WinPayout.String())

	outcomes, err = readOutcomes(many)
	require.NoError(t, err)
	assert.Len(t, outcomes, 2)

	_, err = readOutcomes(bad)
	assert.Error(t, err)

	_, err = readOutcomes(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	a := &app{loc: jst}

	d, err := a.parseDate("2024-05-26")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 26, 0, 0, 0, 0, jst), d)

	today, err := a.parseDate("")
	require.NoError(t, err)
	assert.Equal(t, jst, today.Location())
	assert.Zero(t, today.Hour())

	_, err = a.parseDate("26/05/2024")
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"predict", "race", "serve", "broadcast", "ingest", "settle", "review", "version"} {
		assert.True(t, names[want], want)
	}
}
