package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidatesWithSymbol(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing symbol must fail")
	}
	cfg.Symbol = "000001"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsBadRanges(t *testing.T) {
	cfg := Default()
	cfg.Symbol = "000001"

	cfg.InitialCash = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero cash must fail")
	}

	cfg = Default()
	cfg.Symbol = "000001"
	cfg.PositionPct = 150
	if err := cfg.Validate(); err == nil {
		t.Fatal("position pct over 100 must fail")
	}

	cfg = Default()
	cfg.Symbol = "000001"
	cfg.DowntrendCapPct = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero downtrend cap must fail")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	doc := []byte("symbol: \"600519\"\ninitial_cash: 50000\ncooldown_open_days: 5\n")
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Symbol != "600519" || cfg.InitialCash != 50000 || cfg.CooldownOpenDays != 5 {
		t.Fatalf("cfg = %+v", cfg)
	}
	// untouched fields keep their defaults
	if cfg.CommissionRate != 0.0003 || cfg.MaxBuysPerWindow != 2 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestSnapshotHashesAreStable(t *testing.T) {
	cfg := Default()
	cfg.Symbol = "000001"
	doc := []byte("entry_rules: []")

	a := NewSnapshot(cfg, doc)
	b := NewSnapshot(cfg, doc)
	if a.ConfigHash != b.ConfigHash || a.StrategyHash != b.StrategyHash {
		t.Fatal("snapshot hashes must be deterministic")
	}

	cfg.InitialCash++
	c := NewSnapshot(cfg, doc)
	if c.ConfigHash == a.ConfigHash {
		t.Fatal("config change must change the hash")
	}
	d := NewSnapshot(Default(), []byte("entry_rules: [x]"))
	if d.StrategyHash == a.StrategyHash {
		t.Fatal("strategy change must change the hash")
	}
}
