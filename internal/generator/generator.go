package generator

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-analytics/internal/dataset"
)

const (
	priceFloor     = 5.0
	minVolume      = 1_000_000
	maxVolume      = 10_000_000
	buyProbability = 0.7
	minQuantity    = 5
	maxQuantity    = 50
	minTradePrice  = 50.0
	maxTradePrice  = 300.0

	// PortfolioFile is the name of the generated transactions file.
	PortfolioFile = "portfolio_transactions.csv"
)

// Symbol describes one synthetic instrument.
type Symbol struct {
	Ticker     string
	Sector     string
	StartPrice float64
}

// DefaultSymbols returns the four demo instruments.
func DefaultSymbols() []Symbol {
	return []Symbol{
		{Ticker: "AAPL", Sector: "Technology", StartPrice: 150},
		{Ticker: "MSFT", Sector: "Technology", StartPrice: 220},
		{Ticker: "JPM", Sector: "Finance", StartPrice: 100},
		{Ticker: "GOOGL", Sector: "Technology", StartPrice: 120},
	}
}

// Options control what is generated and where it is written.
type Options struct {
	StocksDir    string
	PortfolioDir string
	Symbols      []Symbol
	Start        time.Time
	Periods      int
	Transactions int
}

// Transaction is one synthetic portfolio trade.
type Transaction struct {
	Date     time.Time
	Stock    string
	Type     string
	Quantity int
	Price    decimal.Decimal
}

// Summary reports what a run produced.
type Summary struct {
	Files        []string
	Rows         int
	Transactions int
}

// Generator produces reproducible synthetic datasets from an explicit
// random source.
type Generator struct {
	opts   Options
	rng    *rand.Rand
	logger zerolog.Logger
}

// New constructs a Generator. The caller owns rng; equal seeds yield equal output.
func New(opts Options, rng *rand.Rand, logger zerolog.Logger) *Generator {
	return &Generator{opts: opts, rng: rng, logger: logger.With().Str("component", "generator").Logger()}
}

// NewSource returns the random source used for a given seed.
func NewSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Run writes one price file per symbol and the portfolio transactions file.
func (g *Generator) Run(ctx context.Context) (*Summary, error) {
	if g.opts.Periods <= 0 {
		return nil, fmt.Errorf("periods must be greater than zero")
	}
	if len(g.opts.Symbols) == 0 {
		return nil, fmt.Errorf("at least one symbol is required")
	}

	dates := BusinessDays(g.opts.Start, g.opts.Periods)
	summary := &Summary{}

	for _, sym := range g.opts.Symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records := g.Prices(sym, dates)
		path := filepath.Join(g.opts.StocksDir, sym.Ticker+".csv")
		if err := dataset.WriteFile(path, func(w io.Writer) error {
			return dataset.WriteRecords(w, records)
		}); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		summary.Files = append(summary.Files, path)
		summary.Rows += len(records)
		g.logger.Info().Str("symbol", sym.Ticker).Str("file", path).Int("rows", len(records)).Msg("price series written")
	}

	if g.opts.Transactions > 0 {
		txs := g.Transactions(dates, g.opts.Transactions)
		path := filepath.Join(g.opts.PortfolioDir, PortfolioFile)
		if err := dataset.WriteFile(path, func(w io.Writer) error {
			return WriteTransactions(w, txs)
		}); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		summary.Files = append(summary.Files, path)
		summary.Transactions = len(txs)
		g.logger.Info().Str("file", path).Int("transactions", len(txs)).Msg("portfolio transactions written")
	}

	return summary, nil
}

// Prices builds a floored random walk for one symbol.
func (g *Generator) Prices(sym Symbol, dates []time.Time) []dataset.Record {
	walk := make([]float64, len(dates))
	for i := range walk {
		if i == 0 {
			walk[i] = sym.StartPrice
			continue
		}
		walk[i] = math.Max(walk[i-1]+g.rng.NormFloat64(), priceFloor)
	}

	records := make([]dataset.Record, len(dates))
	for i, p := range walk {
		records[i] = dataset.Record{
			Date:    dates[i],
			Open:    p,
			High:    p + g.uniform(0, 2),
			Low:     p - g.uniform(0, 2),
			Close:   p + g.uniform(-1, 1),
			Volume:  float64(minVolume + g.rng.IntN(maxVolume-minVolume)),
			Company: sym.Ticker,
			Sector:  sym.Sector,
		}
	}
	return records
}

// Transactions draws n trades over the given dates across the configured symbols.
func (g *Generator) Transactions(dates []time.Time, n int) []Transaction {
	txs := make([]Transaction, n)
	for i := range txs {
		kind := "SELL"
		if g.rng.Float64() < buyProbability {
			kind = "BUY"
		}
		txs[i] = Transaction{
			Date:     dates[g.rng.IntN(len(dates))],
			Stock:    g.opts.Symbols[g.rng.IntN(len(g.opts.Symbols))].Ticker,
			Type:     kind,
			Quantity: minQuantity + g.rng.IntN(maxQuantity-minQuantity),
			Price:    decimal.NewFromFloat(g.uniform(minTradePrice, maxTradePrice)).Round(2),
		}
	}
	return txs
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*g.rng.Float64()
}

// BusinessDays returns n consecutive weekdays starting at start (or the next
// weekday if start falls on a weekend).
func BusinessDays(start time.Time, n int) []time.Time {
	days := make([]time.Time, 0, n)
	d := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	for len(days) < n {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return days
}

// WriteTransactions writes trades as CSV.
func WriteTransactions(w io.Writer, txs []Transaction) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"transaction_date", "stock", "transaction_type", "quantity", "price"}); err != nil {
		return err
	}
	for _, tx := range txs {
		record := []string{
			tx.Date.Format(dataset.DateLayout),
			tx.Stock,
			tx.Type,
			strconv.Itoa(tx.Quantity),
			tx.Price.StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
