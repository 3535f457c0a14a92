package analytics

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-analytics/internal/dataset"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func series(company string, closes ...float64) []dataset.Record {
	records := make([]dataset.Record, len(closes))
	for i, c := range closes {
		records[i] = dataset.Record{
			Date:    day0.AddDate(0, 0, i),
			Open:    c,
			High:    c + 1,
			Low:     c - 1,
			Close:   c,
			Volume:  1000,
			Company: company,
			Sector:  "Technology",
		}
	}
	return records
}

func rampCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i) + 3*math.Sin(float64(i))
	}
	return closes
}

func TestDailyReturn(t *testing.T) {
	rows := Compute(series("AAPL", 100, 110, 99), DefaultOptions())
	require.Len(t, rows, 3)

	assert.False(t, rows[0].DailyReturn.Valid)
	require.True(t, rows[1].DailyReturn.Valid)
	assert.InDelta(t, 0.10, rows[1].DailyReturn.Value, 1e-12)
	require.True(t, rows[2].DailyReturn.Valid)
	assert.InDelta(t, -0.10, rows[2].DailyReturn.Value, 1e-12)
}

func TestDailyReturnUndefinedAfterZeroClose(t *testing.T) {
	rows := Compute(series("X", 0, 5, 10), DefaultOptions())
	assert.False(t, rows[1].DailyReturn.Valid)
	assert.InDelta(t, 1.0, rows[2].DailyReturn.Value, 1e-12)
}

func TestWindowWarmup(t *testing.T) {
	rows := Compute(series("AAPL", rampCloses(35)...), DefaultOptions())
	require.Len(t, rows, 35)

	for i, row := range rows {
		assert.Equal(t, i >= 6, row.MAShort.Valid, "ma_7 at %d", i)
		assert.Equal(t, i >= 29, row.MALong.Valid, "ma_30 at %d", i)
		assert.Equal(t, i >= 30, row.Volatility.Valid, "volatility_30 at %d", i)
	}
}

func TestMovingAverageMatchesSMA(t *testing.T) {
	closes := rampCloses(80)
	rows := Compute(series("MSFT", closes...), DefaultOptions())

	for _, period := range []int{7, 30} {
		sma := helper.ChanToSlice(trend.NewSmaWithPeriod[float64](period).Compute(helper.SliceToChan(closes)))
		require.NotEmpty(t, sma)

		offset := len(closes) - len(sma)
		for i, want := range sma {
			row := rows[offset+i]
			got := row.MAShort
			if period == 30 {
				got = row.MALong
			}
			require.True(t, got.Valid, "period %d row %d", period, offset+i)
			assert.InDelta(t, want, got.Value, 1e-9, "period %d row %d", period, offset+i)
		}
	}
}

func TestVolatilityIsSampleStdDev(t *testing.T) {
	closes := rampCloses(60)
	rows := Compute(series("JPM", closes...), DefaultOptions())

	for i := 30; i < len(rows); i++ {
		returns := make([]float64, 0, 30)
		for j := i - 29; j <= i; j++ {
			returns = append(returns, (closes[j]-closes[j-1])/closes[j-1])
		}
		require.True(t, rows[i].Volatility.Valid)
		assert.InDelta(t, naiveStdDev(returns), rows[i].Volatility.Value, 1e-12, "row %d", i)
	}
}

func naiveStdDev(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

func TestGroupsAreIndependent(t *testing.T) {
	a := series("AAA", 10, 20, 30)
	b := series("BBB", 1, 2)
	// interleave and reverse dates within each company
	input := []dataset.Record{b[1], a[2], b[0], a[1], a[0]}

	rows := Compute(input, Options{ShortWindow: 2, LongWindow: 3, VolatilityWindow: 2})
	require.Len(t, rows, 5)

	companies := []string{rows[0].Company, rows[1].Company, rows[2].Company, rows[3].Company, rows[4].Company}
	assert.Equal(t, []string{"AAA", "AAA", "AAA", "BBB", "BBB"}, companies)
	assert.Equal(t, []float64{10, 20, 30, 1, 2}, []float64{rows[0].Close, rows[1].Close, rows[2].Close, rows[3].Close, rows[4].Close})

	assert.False(t, rows[3].DailyReturn.Valid, "first row of BBB must not see AAA history")
	assert.False(t, rows[3].MAShort.Valid)
	assert.InDelta(t, 1.5, rows[4].MAShort.Value, 1e-12)
	assert.InDelta(t, 20, rows[2].MALong.Value, 1e-12)
}

func TestSortIsStable(t *testing.T) {
	same := day0
	input := []dataset.Record{
		{Date: same, Close: 1, Company: "A", Sector: "first"},
		{Date: same.AddDate(0, 0, -1), Close: 2, Company: "A"},
		{Date: same, Close: 3, Company: "A", Sector: "second"},
	}
	sorted := SortRecords(input)
	assert.Equal(t, []float64{2, 1, 3}, []float64{sorted[0].Close, sorted[1].Close, sorted[2].Close})
	assert.Equal(t, 1.0, input[0].Close, "input must not be reordered")
}

func TestSameDayIntradayRowsKeepInputOrder(t *testing.T) {
	var input []dataset.Record
	for i, raw := range []string{"2024-01-02 16:00:00", "2024-01-02 09:30:00", "2024-01-01 12:00:00"} {
		date, ok := dataset.ParseDate(raw)
		require.True(t, ok, raw)
		input = append(input, dataset.Record{Date: date, Close: float64(i + 1), Company: "A"})
	}

	sorted := SortRecords(input)
	assert.Equal(t, []float64{3, 1, 2}, []float64{sorted[0].Close, sorted[1].Close, sorted[2].Close})
}

func TestComputeEmpty(t *testing.T) {
	assert.Empty(t, Compute(nil, DefaultOptions()))
}

func TestEngineRun(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "clean.csv")
	output := filepath.Join(dir, "out", "enriched.csv")

	f, err := os.Create(input)
	require.NoError(t, err)
	records := append(series("B", rampCloses(40)...), series("A", 100, 110, 99)...)
	require.NoError(t, dataset.WriteRecords(f, records))
	require.NoError(t, f.Close())

	engine := NewEngine(EngineOptions{InputPath: input, OutputPath: output, Windows: DefaultOptions()}, zerolog.Nop())
	res, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 43, len(res.Rows))
	assert.Equal(t, 2, res.Companies)

	out, err := os.Open(output)
	require.NoError(t, err)
	defer out.Close()
	rows, cols, err := dataset.ReadEnriched(out)
	require.NoError(t, err)
	assert.Equal(t, "ma_7", cols.MAShort)
	require.Len(t, rows, 43)
	assert.Equal(t, "A", rows[0].Company)
	assert.InDelta(t, 0.1, rows[1].DailyReturn.Value, 1e-12)
}

func TestEngineMissingColumn(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "clean.csv")
	require.NoError(t, os.WriteFile(input, []byte("date,open,high,low,volume,company,sector\n"), 0o644))

	engine := NewEngine(EngineOptions{InputPath: input, OutputPath: filepath.Join(dir, "out.csv"), Windows: DefaultOptions()}, zerolog.Nop())
	_, err := engine.Run(context.Background())

	var missing *dataset.MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{dataset.ColClose}, missing.Columns)
	assert.NoFileExists(t, filepath.Join(dir, "out.csv"))
}

func TestEngineRejectsBadWindows(t *testing.T) {
	engine := NewEngine(EngineOptions{Windows: Options{ShortWindow: 0, LongWindow: 30, VolatilityWindow: 30}}, zerolog.Nop())
	_, err := engine.Run(context.Background())
	assert.Error(t, err)
}

func TestOptionsValidateWindowOrder(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())
	assert.Error(t, Options{ShortWindow: 30, LongWindow: 30, VolatilityWindow: 30}.Validate())
	assert.Error(t, Options{ShortWindow: 30, LongWindow: 7, VolatilityWindow: 30}.Validate())
}
