package generator

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-analytics/internal/dataset"
)

func testOptions(dir string) Options {
	return Options{
		StocksDir:    filepath.Join(dir, "stocks"),
		PortfolioDir: filepath.Join(dir, "portfolio"),
		Symbols:      DefaultSymbols(),
		Start:        time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC),
		Periods:      250,
		Transactions: 100,
	}
}

func TestBusinessDays(t *testing.T) {
	days := BusinessDays(time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC), 6)
	require.Len(t, days, 6)
	assert.Equal(t, time.Date(2005, 1, 3, 0, 0, 0, 0, time.UTC), days[0])
	assert.Equal(t, time.Date(2005, 1, 10, 0, 0, 0, 0, time.UTC), days[5])
	for _, d := range days {
		assert.NotEqual(t, time.Saturday, d.Weekday())
		assert.NotEqual(t, time.Sunday, d.Weekday())
	}
}

func TestRunIsReproducible(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()

	_, err := New(testOptions(first), NewSource(42), zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	summary, err := New(testOptions(second), NewSource(42), zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, summary.Files, 5)
	assert.Equal(t, 4*250, summary.Rows)
	assert.Equal(t, 100, summary.Transactions)

	for _, rel := range []string{"stocks/AAPL.csv", "stocks/GOOGL.csv", "portfolio/" + PortfolioFile} {
		a, err := os.ReadFile(filepath.Join(first, rel))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(second, rel))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(a, b), rel)
	}
}

func TestDifferentSeedsDiffer(t *testing.T) {
	sym := DefaultSymbols()[0]
	dates := BusinessDays(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 50)

	a := New(Options{}, NewSource(1), zerolog.Nop()).Prices(sym, dates)
	b := New(Options{}, NewSource(2), zerolog.Nop()).Prices(sym, dates)
	assert.NotEqual(t, a, b)
}

func TestPricesRespectBounds(t *testing.T) {
	sym := Symbol{Ticker: "PENNY", Sector: "Misc", StartPrice: 6}
	dates := BusinessDays(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 2000)
	records := New(Options{}, NewSource(7), zerolog.Nop()).Prices(sym, dates)

	require.Len(t, records, 2000)
	assert.Equal(t, 6.0, records[0].Open)
	for _, rec := range records {
		assert.GreaterOrEqual(t, rec.Open, priceFloor)
		assert.GreaterOrEqual(t, rec.High, rec.Open)
		assert.LessOrEqual(t, rec.Low, rec.Open)
		assert.InDelta(t, rec.Open, rec.Close, 1)
		assert.GreaterOrEqual(t, rec.Volume, float64(minVolume))
		assert.Less(t, rec.Volume, float64(maxVolume))
		assert.Equal(t, "PENNY", rec.Company)
	}
}

func TestGeneratedFilesAreValidInput(t *testing.T) {
	dir := t.TempDir()
	_, err := New(testOptions(dir), NewSource(42), zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(dir, "stocks", "JPM.csv"))
	require.NoError(t, err)
	defer f.Close()

	records, err := dataset.ReadRecords(f)
	require.NoError(t, err)
	assert.Len(t, records, 250)
	assert.Equal(t, "Finance", records[0].Sector)
}

func TestTransactions(t *testing.T) {
	opts := testOptions(t.TempDir())
	dates := BusinessDays(opts.Start, 20)
	txs := New(opts, NewSource(3), zerolog.Nop()).Transactions(dates, 500)

	buys := 0
	for _, tx := range txs {
		if tx.Type == "BUY" {
			buys++
		} else {
			assert.Equal(t, "SELL", tx.Type)
		}
		assert.GreaterOrEqual(t, tx.Quantity, minQuantity)
		assert.Less(t, tx.Quantity, maxQuantity)
		assert.True(t, tx.Price.GreaterThanOrEqual(decimal.NewFromInt(50)))
		assert.True(t, tx.Price.LessThanOrEqual(decimal.NewFromInt(300)))
		assert.True(t, tx.Price.Equal(tx.Price.Round(2)))
	}
	assert.InDelta(t, 350, buys, 60)
}

func TestRunValidatesOptions(t *testing.T) {
	opts := testOptions(t.TempDir())
	opts.Periods = 0
	_, err := New(opts, NewSource(1), zerolog.Nop()).Run(context.Background())
	assert.Error(t, err)

	opts = testOptions(t.TempDir())
	opts.Symbols = nil
	_, err = New(opts, NewSource(1), zerolog.Nop()).Run(context.Background())
	assert.Error(t, err)
}
