package market

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LoadCSV reads daily bars from a CSV file with a header row of at least
// date,open,high,low,close,volume. Extra numeric columns are kept as factor
// fields. Rows are deduplicated by date (last wins) and sorted ascending.
// UTF-8 BOM and UTF-16 encoded files are tolerated.
func LoadCSV(path string) ([]PriceBar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars csv: %w", err)
	}
	defer f.Close()
	return ReadBars(decodeTransparently(f))
}

// decodeTransparently wraps r with a UTF-16 decoder when a BOM is present.
func decodeTransparently(f *os.File) io.Reader {
	br := bufio.NewReader(f)
	head, _ := br.Peek(2)
	if len(head) >= 2 && ((head[0] == 0xFF && head[1] == 0xFE) || (head[0] == 0xFE && head[1] == 0xFF)) {
		f.Seek(0, 0)
		return transform.NewReader(f, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	}
	return transform.NewReader(br, unicode.BOMOverride(transform.Nop))
}

// ReadBars parses bar rows from r. See LoadCSV for the expected shape.
func ReadBars(r io.Reader) ([]PriceBar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "open", "high", "low", "close", "volume"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("bars csv missing required column %q", required)
		}
	}

	byDate := make(map[string]PriceBar)
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		bar, err := parseBar(header, cols, rec)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		byDate[bar.DateString()] = bar
	}

	bars := make([]PriceBar, 0, len(byDate))
	for _, b := range byDate {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	if len(bars) == 0 {
		return nil, fmt.Errorf("bars csv contains no data rows")
	}
	return bars, nil
}

func parseBar(header []string, cols map[string]int, rec []string) (PriceBar, error) {
	get := func(name string) string {
		i := cols[name]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	date, err := parseFlexibleDate(get("date"))
	if err != nil {
		return PriceBar{}, err
	}
	bar := PriceBar{Date: date}

	fields := []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
		{"volume", &bar.Volume},
	}
	for _, fld := range fields {
		v, err := decimal.NewFromString(get(fld.name))
		if err != nil {
			return PriceBar{}, fmt.Errorf("column %q: %w", fld.name, err)
		}
		*fld.dst = v
	}

	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		switch key {
		case "date", "open", "high", "low", "close", "volume":
			continue
		}
		if i >= len(rec) {
			continue
		}
		raw := strings.TrimSpace(rec[i])
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			continue // non-numeric vendor column, ignore
		}
		if bar.Factors == nil {
			bar.Factors = make(map[string]float64)
		}
		bar.Factors[key] = v.InexactFloat64()
	}
	return bar, nil
}

func parseFlexibleDate(s string) (time.Time, error) {
	for _, layout := range []string{DateLayout, "2006/01/02", "20060102", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
