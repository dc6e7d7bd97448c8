package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krait/market"
)

func TestParseCandleRow(t *testing.T) {
	t.Parallel()

	c, err := parseCandleRow([]string{"2024-03-11T00:00:00Z", "100", "101", "99", "100.5", "1200"})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, c.Open, 1e-12)
	assert.InDelta(t, 101.0, c.High, 1e-12)
	assert.InDelta(t, 99.0, c.Low, 1e-12)
	assert.InDelta(t, 100.5, c.Close, 1e-12)
	assert.InDelta(t, 1200.0, c.Volume, 1e-12)
	assert.True(t, c.Time.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)))
}

func TestParseCandleRowUnixMillis(t *testing.T) {
	t.Parallel()

	c, err := parseCandleRow([]string{"1710115200000", "1", "2", "0.5", "1.5", "10"})
	require.NoError(t, err)
	assert.Equal(t, int64(1710115200000), c.Time.UnixMilli())
}

func TestParseCandleRowErrors(t *testing.T) {
	t.Parallel()

	_, err := parseCandleRow([]string{"2024-03-11T00:00:00Z", "100"})
	assert.Error(t, err)

	_, err = parseCandleRow([]string{"not-a-time", "1", "2", "0.5", "1.5", "10"})
	assert.Error(t, err)

	_, err = parseCandleRow([]string{"2024-03-11T00:00:00Z", "x", "2", "0.5", "1.5", "10"})
	assert.Error(t, err)
}

func TestLoadCandleDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	write("BTCUSDT_15m.csv", "time,open,high,low,close,volume\n2024-03-11T00:00:00Z,100,101,99,100.5,1200\n2024-03-11T00:15:00Z,100.5,102,100,101,1100\n")
	write("BTCUSDT_1h.csv", "2024-03-11T00:00:00Z,100,102,99,101,4800\n")

	data, err := loadCandleDir(dir, "BTCUSDT")
	require.NoError(t, err)

	assert.Len(t, data[market.TF15m], 2)
	assert.Len(t, data[market.TF1h], 1)
	_, has5m := data[market.TF5m]
	assert.False(t, has5m)
}

func TestLoadCandleDirMissingRequired(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BTCUSDT_15m.csv"), []byte("2024-03-11T00:00:00Z,100,101,99,100.5,1200\n"), 0644))

	_, err := loadCandleDir(dir, "BTCUSDT")
	assert.Error(t, err)
}
