// Command import_ohlc bulk-loads a daily OHLCV CSV into the ohlc table over
// the ClickHouse HTTP interface.
package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	"github.com/buuzzy/AITrading/services/market"
	"github.com/buuzzy/AITrading/services/store"
)

func main() {
	csvPath := flag.String("csv", "", "daily OHLCV csv file")
	symbol := flag.String("symbol", "", "instrument code, e.g. 600519 or sh600519")
	chURL := flag.String("ch-url", "http://localhost:8123", "ClickHouse HTTP endpoint")
	chDB := flag.String("ch-db", "aitrading", "ClickHouse database")
	chUser := flag.String("ch-user", "default", "ClickHouse user")
	chPass := flag.String("ch-pass", "", "ClickHouse password")
	source := flag.String("source", "csv", "data source tag stored with each row")
	batchSize := flag.Int("batch", 1000, "rows per insert batch")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if *csvPath == "" || *symbol == "" {
		logger.Fatal("both -csv and -symbol are required")
	}
	code := market.NormalizeSymbol(*symbol)

	bars, err := market.LoadCSV(*csvPath)
	if err != nil {
		logger.Fatal("load csv", zap.Error(err))
	}

	ctx := context.Background()
	ing := store.NewBatchIngester(*chURL, *chDB, *chUser, *chPass, *batchSize)
	now := time.Now().UTC().Format(time.RFC3339)
	for _, b := range bars {
		row := store.OHLCRow{
			Symbol:     code,
			Date:       b.DateString(),
			Open:       b.Open.String(),
			High:       b.High.String(),
			Low:        b.Low.String(),
			Close:      b.Close.String(),
			Volume:     b.Volume.String(),
			Source:     *source,
			IngestedAt: now,
		}
		if err := ing.Add(ctx, row); err != nil {
			logger.Fatal("ingest batch", zap.Error(err))
		}
	}
	if err := ing.Close(ctx); err != nil {
		logger.Fatal("final flush", zap.Error(err))
	}
	logger.Info("import finished",
		zap.String("symbol", code),
		zap.Int("rows", len(bars)),
	)
}
