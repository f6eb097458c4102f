// Package arrowio writes run artifacts as Arrow IPC files: the bar history
// joined with the equity curve, one row per trading day, for downstream
// analysis tools that speak columnar formats.
package arrowio

import (
	"fmt"
	"math"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"github.com/buuzzy/AITrading/services/market"
	"github.com/buuzzy/AITrading/services/store"
)

var artifactSchema = arrow.NewSchema([]arrow.Field{
	{Name: "date", Type: arrow.BinaryTypes.String},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
	{Name: "cash", Type: arrow.PrimitiveTypes.Float64},
	{Name: "position_qty", Type: arrow.PrimitiveTypes.Int64},
	{Name: "total_asset", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// WriteRunArtifact writes one IPC file joining bars with daily metrics by
// date. Days without a metric (warm-up prefix) carry NaN equity columns.
func WriteRunArtifact(path string, bars []market.PriceBar, metrics []store.DailyMetric) error {
	byDate := make(map[string]store.DailyMetric, len(metrics))
	for _, m := range metrics {
		byDate[m.Date] = m
	}

	pool := memory.NewGoAllocator()
	b := array.NewRecordBuilder(pool, artifactSchema)
	defer b.Release()

	dates := b.Field(0).(*array.StringBuilder)
	opens := b.Field(1).(*array.Float64Builder)
	highs := b.Field(2).(*array.Float64Builder)
	lows := b.Field(3).(*array.Float64Builder)
	closes := b.Field(4).(*array.Float64Builder)
	volumes := b.Field(5).(*array.Float64Builder)
	cash := b.Field(6).(*array.Float64Builder)
	qty := b.Field(7).(*array.Int64Builder)
	total := b.Field(8).(*array.Float64Builder)

	for _, bar := range bars {
		date := bar.DateString()
		dates.Append(date)
		opens.Append(bar.Open.InexactFloat64())
		highs.Append(bar.High.InexactFloat64())
		lows.Append(bar.Low.InexactFloat64())
		closes.Append(bar.Close.InexactFloat64())
		volumes.Append(bar.Volume.InexactFloat64())
		if m, ok := byDate[date]; ok {
			cash.Append(m.Cash.InexactFloat64())
			qty.Append(m.PositionQty)
			total.Append(m.TotalAsset.InexactFloat64())
		} else {
			cash.Append(math.NaN())
			qty.Append(0)
			total.Append(math.NaN())
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create arrow artifact: %w", err)
	}
	defer f.Close()

	w, err := ipc.NewFileWriter(f, ipc.WithSchema(artifactSchema), ipc.WithAllocator(pool))
	if err != nil {
		return fmt.Errorf("open arrow writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		return fmt.Errorf("write arrow record: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close arrow writer: %w", err)
	}
	return nil
}
