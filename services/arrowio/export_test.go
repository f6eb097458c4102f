package arrowio

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/shopspring/decimal"

	"github.com/buuzzy/AITrading/services/market"
	"github.com/buuzzy/AITrading/services/store"
)

func TestWriteRunArtifactRoundTrip(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.PriceBar, 3)
	for i := range bars {
		p := decimal.NewFromInt(int64(10 + i))
		bars[i] = market.PriceBar{Date: base.AddDate(0, 0, i),
			Open: p, High: p, Low: p, Close: p, Volume: decimal.NewFromInt(1000)}
	}
	// only the last two days have metrics, the first is warm-up
	metrics := []store.DailyMetric{
		{Date: bars[1].DateString(), Cash: decimal.NewFromInt(90000),
			PositionQty: 200, TotalAsset: decimal.NewFromInt(92200)},
		{Date: bars[2].DateString(), Cash: decimal.NewFromInt(90000),
			PositionQty: 200, TotalAsset: decimal.NewFromInt(92400)},
	}

	path := filepath.Join(t.TempDir(), "run.arrow")
	if err := WriteRunArtifact(path, bars, metrics); err != nil {
		t.Fatalf("WriteRunArtifact: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer r.Close()

	if r.NumRecords() != 1 {
		t.Fatalf("records = %d", r.NumRecords())
	}
	rec, err := r.Record(0)
	if err != nil {
		t.Fatal(err)
	}
	if rec.NumRows() != 3 {
		t.Fatalf("rows = %d", rec.NumRows())
	}

	dates := rec.Column(0).(*array.String)
	if dates.Value(0) != "2024-01-01" || dates.Value(2) != "2024-01-03" {
		t.Fatalf("dates = %s..%s", dates.Value(0), dates.Value(2))
	}
	closes := rec.Column(4).(*array.Float64)
	if closes.Value(1) != 11 {
		t.Fatalf("close[1] = %v", closes.Value(1))
	}
	total := rec.Column(8).(*array.Float64)
	if !math.IsNaN(total.Value(0)) {
		t.Fatalf("warm-up day should have NaN equity, got %v", total.Value(0))
	}
	if total.Value(2) != 92400 {
		t.Fatalf("total[2] = %v", total.Value(2))
	}
	qty := rec.Column(7).(*array.Int64)
	if qty.Value(0) != 0 || qty.Value(1) != 200 {
		t.Fatalf("qty = %d,%d", qty.Value(0), qty.Value(1))
	}
}
