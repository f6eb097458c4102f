// Command worker polls the store for pending runs, loads the instrument
// history from the ohlc table and executes each run to completion. Several
// workers can share one store; the pending->running claim keeps them from
// doubling up on a run.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/buuzzy/AITrading/services/config"
	"github.com/buuzzy/AITrading/services/decision"
	"github.com/buuzzy/AITrading/services/driver"
	"github.com/buuzzy/AITrading/services/indicators"
	"github.com/buuzzy/AITrading/services/market"
	"github.com/buuzzy/AITrading/services/store"
	"github.com/buuzzy/AITrading/services/strategy"
)

func main() {
	chAddr := flag.String("ch-addr", "localhost:9000", "ClickHouse native address")
	chDB := flag.String("ch-db", "aitrading", "ClickHouse database")
	chUser := flag.String("ch-user", "default", "ClickHouse user")
	chPass := flag.String("ch-pass", "", "ClickHouse password")
	strategyPath := flag.String("strategy", "strategy.yaml", "strategy document (yaml or json)")
	configPath := flag.String("config", "", "optional run config yaml")
	providerName := flag.String("provider", "rules", "decision provider: rules or llm")
	llmURL := flag.String("llm-url", "", "LLM base URL (provider=llm)")
	llmModel := flag.String("llm-model", "", "LLM model name (provider=llm)")
	pollEvery := flag.Duration("poll", 5*time.Second, "pending-run poll interval")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	st, err := store.NewClickHouseStore(store.ClickHouseConfig{
		Addr:     *chAddr,
		Database: *chDB,
		Username: *chUser,
		Password: *chPass,
	}, logger)
	if err != nil {
		logger.Fatal("store connect failed", zap.Error(err))
	}
	defer st.Close()
	if err := st.EnsureSchema(context.Background()); err != nil {
		logger.Fatal("schema setup failed", zap.Error(err))
	}

	strategyDoc, err := os.ReadFile(*strategyPath)
	if err != nil {
		logger.Fatal("read strategy", zap.Error(err))
	}
	strategyCfg, err := strategy.ParseDocument(strategyDoc)
	if err != nil {
		logger.Fatal("parse strategy", zap.Error(err))
	}

	baseCfg := config.Default()
	if *configPath != "" {
		if baseCfg, err = config.Load(*configPath); err != nil {
			logger.Fatal("load config", zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("signal received, draining")
		cancel()
	}()

	logger.Info("worker started", zap.Duration("poll", *pollEvery))
	for {
		run, ok, err := st.ClaimPendingRun(ctx)
		if err != nil {
			logger.Error("claim failed", zap.Error(err))
		}
		if !ok {
			select {
			case <-ctx.Done():
				logger.Info("worker stopped")
				return
			case <-time.After(*pollEvery):
			}
			continue
		}

		rl := logger.With(zap.String("run_id", run.ID), zap.String("symbol", run.Symbol))
		rl.Info("run claimed")
		if err := executeRun(ctx, st, run, baseCfg, strategyCfg, strategyDoc,
			*providerName, *llmURL, *llmModel, rl); err != nil {
			rl.Error("run failed", zap.Error(err))
			if uerr := st.UpdateRunStatus(context.Background(), run.ID, store.StatusFailed, err.Error()); uerr != nil {
				rl.Error("status update failed", zap.Error(uerr))
			}
		}
		if ctx.Err() != nil {
			logger.Info("worker stopped")
			return
		}
	}
}

func executeRun(ctx context.Context, st *store.ClickHouseStore, run store.Run,
	baseCfg config.Config, strategyCfg *strategy.Config, strategyDoc []byte,
	providerName, llmURL, llmModel string, logger *zap.Logger) error {

	rows, err := st.LoadBars(ctx, run.Symbol)
	if err != nil {
		return err
	}
	bars := make([]market.PriceBar, 0, len(rows))
	for _, r := range rows {
		day, err := market.ParseDate(r.Date)
		if err != nil {
			logger.Warn("skipping bar with bad date", zap.String("date", r.Date))
			continue
		}
		bars = append(bars, market.PriceBar{
			Date:   day,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}

	cfg := baseCfg
	cfg.Symbol = run.Symbol
	cfg.StartDate = run.StartDate
	cfg.EndDate = run.EndDate
	if cash, _ := run.InitialCash.Float64(); cash > 0 {
		cfg.InitialCash = cash
	}

	var provider decision.Provider
	switch providerName {
	case "llm":
		provider = decision.NewLLMProvider(llmURL, os.Getenv("LLM_API_KEY"), llmModel, logger)
	default:
		eval, err := strategy.NewEvaluator(strategyCfg, indicators.NewLibrary(indicators.NewFrame(bars)))
		if err != nil {
			return err
		}
		provider = decision.NewRuleProvider(eval, cfg.CommissionRate, cfg.LotSize)
	}

	snap := config.NewSnapshot(cfg, strategyDoc)
	logger.Info("run starting",
		zap.String("config_hash", snap.ConfigHash),
		zap.String("strategy_hash", snap.StrategyHash),
	)

	d, err := driver.New(cfg, run.ID, bars, provider, st, logger)
	if err != nil {
		return err
	}
	summary, err := d.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("run finished",
		zap.Int("days", summary.DaysProcessed),
		zap.Int("closed_trades", summary.TradesWon+summary.TradesLost),
		zap.String("final_total_asset", summary.FinalTotalAsset.StringFixed(2)),
	)
	return nil
}
