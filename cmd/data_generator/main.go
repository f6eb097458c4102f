// Command data_generator writes a synthetic daily OHLC CSV for one A-share
// symbol, in the shape the bar loader reads. The walk alternates trending and
// sideways regimes and keeps every daily move inside the symbol's price limit
// band, so generated fixtures exercise the same paths as vendor data.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/buuzzy/AITrading/services/market"
)

func main() {
	var (
		out    = flag.String("out", "", "output CSV path (required)")
		symbol = flag.String("symbol", "000001", "instrument code, decides the limit band")
		days   = flag.Int("days", 500, "number of trading days to generate")
		start  = flag.String("start", "2023-01-02", "first calendar date (YYYY-MM-DD)")
		base   = flag.Float64("base", 10.0, "starting price")
		seed   = flag.Int64("seed", 42, "rng seed")
	)
	flag.Parse()
	if *out == "" {
		fmt.Fprintln(os.Stderr, "usage: data_generator -out bars.csv [-symbol 000001] [-days 500]")
		os.Exit(2)
	}

	startDay, err := market.ParseDate(*start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -start: %v\n", err)
		os.Exit(2)
	}

	code := market.NormalizeSymbol(*symbol)
	limit := market.LimitThreshold(code).InexactFloat64()
	rng := rand.New(rand.NewSource(*seed))

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", *out, err)
		os.Exit(1)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"date", "open", "high", "low", "close", "volume"}); err != nil {
		fmt.Fprintf(os.Stderr, "write header: %v\n", err)
		os.Exit(1)
	}

	price := *base
	day := startDay
	written := 0
	regimeLeft := 0
	drift := 0.0
	for written < *days {
		// weekends are closed; holidays are ignored, the weekday grid is
		// enough for synthetic fixtures
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			day = day.AddDate(0, 0, 1)
			continue
		}

		if regimeLeft == 0 {
			regimeLeft = 10 + rng.Intn(30)
			switch rng.Intn(3) {
			case 0:
				drift = 0.004 + rng.Float64()*0.006 // uptrend
			case 1:
				drift = -(0.004 + rng.Float64()*0.006) // downtrend
			default:
				drift = 0 // sideways
			}
		}
		regimeLeft--

		change := drift + rng.NormFloat64()*0.012
		// stay inside the band with headroom, with the occasional genuine
		// limit hit so sealed-board handling gets exercised
		band := limit * 0.95
		if rng.Float64() < 0.01 {
			band = limit
		}
		change = math.Max(-band, math.Min(band, change))

		open := round2(price * (1 + change*rng.Float64()*0.3))
		closePx := round2(price * (1 + change))
		hi := math.Max(open, closePx) * (1 + rng.Float64()*0.008)
		lo := math.Min(open, closePx) * (1 - rng.Float64()*0.008)
		hi = math.Min(hi, price*(1+limit))
		lo = math.Max(lo, price*(1-limit))
		volume := 80000 + rng.Intn(400000)

		row := []string{
			day.Format(market.DateLayout),
			decimal.NewFromFloat(open).StringFixed(2),
			decimal.NewFromFloat(round2(hi)).StringFixed(2),
			decimal.NewFromFloat(round2(lo)).StringFixed(2),
			decimal.NewFromFloat(closePx).StringFixed(2),
			fmt.Sprintf("%d", volume),
		}
		if err := w.Write(row); err != nil {
			fmt.Fprintf(os.Stderr, "write row: %v\n", err)
			os.Exit(1)
		}

		price = closePx
		if price < 1 {
			price = 1 // penny floor keeps lots affordable
		}
		day = day.AddDate(0, 0, 1)
		written++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "flush: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d bars for %s to %s\n", written, code, *out)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
