package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Canonical column names of a price record.
const (
	ColDate    = "date"
	ColOpen    = "open"
	ColHigh    = "high"
	ColLow     = "low"
	ColClose   = "close"
	ColVolume  = "volume"
	ColCompany = "company"
	ColSector  = "sector"

	ColDailyReturn = "daily_return"
)

// DateLayout is the layout dates are written with.
const DateLayout = "2006-01-02"

// RequiredColumns lists the columns every record carries, in output order.
var RequiredColumns = []string{ColDate, ColOpen, ColHigh, ColLow, ColClose, ColVolume, ColCompany, ColSector}

// NumericColumns are coerced to float64 during ingestion.
var NumericColumns = []string{ColOpen, ColHigh, ColLow, ColClose, ColVolume}

var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
}

// Record is one validated (company, date) observation.
type Record struct {
	Date    time.Time
	Open    float64
	High    float64
	Low     float64
	Close   float64
	Volume  float64
	Company string
	Sector  string
}

// Float is a float64 that may be undefined.
type Float struct {
	Value float64
	Valid bool
}

// Some wraps a defined value.
func Some(v float64) Float {
	return Float{Value: v, Valid: true}
}

// String renders the value, or an empty string when undefined.
func (f Float) String() string {
	if !f.Valid {
		return ""
	}
	return FormatFloat(f.Value)
}

// Enriched is a record plus its rolling analytics.
type Enriched struct {
	Record
	DailyReturn Float
	MAShort     Float
	MALong      Float
	Volatility  Float
}

// DerivedColumns names the four analytics columns.
type DerivedColumns struct {
	DailyReturn string
	MAShort     string
	MALong      string
	Volatility  string
}

// DerivedNames builds column names for the given window sizes.
func DerivedNames(short, long, volatility int) DerivedColumns {
	return DerivedColumns{
		DailyReturn: ColDailyReturn,
		MAShort:     fmt.Sprintf("ma_%d", short),
		MALong:      fmt.Sprintf("ma_%d", long),
		Volatility:  fmt.Sprintf("volatility_%d", volatility),
	}
}

// Slice returns the names in output order.
func (d DerivedColumns) Slice() []string {
	return []string{d.DailyReturn, d.MAShort, d.MALong, d.Volatility}
}

// FormatFloat uses the shortest representation that round-trips.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseFloat parses a numeric cell. Blank, NaN and infinite values are missing.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseDate accepts the handful of layouts seen in raw exports and returns
// the calendar date as written, at midnight UTC. Offsets do not move the day
// and any time of day is dropped.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
