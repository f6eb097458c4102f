// Command backtest runs a single-instrument backtest locally: bars from a
// CSV file, a YAML strategy document, decisions from the built-in rule
// evaluator or an OpenAI-compatible LLM endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/buuzzy/AITrading/services/arrowio"
	"github.com/buuzzy/AITrading/services/config"
	"github.com/buuzzy/AITrading/services/decision"
	"github.com/buuzzy/AITrading/services/driver"
	"github.com/buuzzy/AITrading/services/indicators"
	"github.com/buuzzy/AITrading/services/market"
	"github.com/buuzzy/AITrading/services/store"
	"github.com/buuzzy/AITrading/services/strategy"
)

func main() {
	csvPath := flag.String("csv", "", "Path to daily bars CSV (date,open,high,low,close,volume,...)")
	strategyPath := flag.String("strategy", "", "Path to YAML/JSON strategy document")
	configPath := flag.String("config", "", "Optional YAML config file")
	symbol := flag.String("symbol", "", "Instrument code, e.g. 600519")
	from := flag.String("from", "", "Start date (YYYY-MM-DD)")
	to := flag.String("to", "", "End date (YYYY-MM-DD)")
	cash := flag.Float64("cash", 100000, "Initial cash")
	providerName := flag.String("provider", "rules", "Decision provider: rules or llm")
	llmURL := flag.String("llm-url", "https://api.deepseek.com/v1", "LLM base URL (provider=llm)")
	llmModel := flag.String("llm-model", "deepseek-chat", "LLM model name (provider=llm)")
	arrowOut := flag.String("arrow-out", "", "Optional Arrow IPC artifact path")
	runID := flag.String("run-id", "", "Run ID; resumes an existing run when its checkpoint exists")
	verbose := flag.Bool("verbose", false, "Debug logging")
	flag.Parse()

	logger := buildLogger(*verbose)
	defer logger.Sync()

	if *csvPath == "" || *strategyPath == "" {
		fmt.Fprintln(os.Stderr, "usage: backtest -csv bars.csv -strategy strategy.yaml -symbol 600519 -from 2024-01-01 -to 2024-12-31")
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Fatal("config load failed", zap.Error(err))
		}
	}
	if *symbol != "" {
		cfg.Symbol = *symbol
	}
	if *from != "" {
		cfg.StartDate = *from
	}
	if *to != "" {
		cfg.EndDate = *to
	}
	if *cash > 0 {
		cfg.InitialCash = *cash
	}

	bars, err := market.LoadCSV(*csvPath)
	if err != nil {
		logger.Fatal("bars load failed", zap.Error(err))
	}
	strategyDoc, err := os.ReadFile(*strategyPath)
	if err != nil {
		logger.Fatal("strategy read failed", zap.Error(err))
	}
	stratCfg, err := strategy.ParseDocument(strategyDoc)
	if err != nil {
		logger.Fatal("strategy parse failed", zap.Error(err))
	}

	lib := indicators.NewLibrary(indicators.NewFrame(bars))
	eval, err := strategy.NewEvaluator(stratCfg, lib)
	if err != nil {
		logger.Fatal("strategy validation failed", zap.Error(err))
	}

	var provider decision.Provider
	switch *providerName {
	case "rules":
		provider = decision.NewRuleProvider(eval, cfg.CommissionRate, cfg.LotSize)
	case "llm":
		apiKey := os.Getenv("LLM_API_KEY")
		if apiKey == "" {
			logger.Fatal("provider=llm requires LLM_API_KEY")
		}
		provider = decision.NewLLMProvider(*llmURL, apiKey, *llmModel, logger)
	default:
		logger.Fatal("unknown provider", zap.String("provider", *providerName))
	}

	id := *runID
	if id == "" {
		id = uuid.New().String()
	}
	st := store.NewMemoryStore()
	snap := config.NewSnapshot(cfg, strategyDoc)
	err = st.CreateRun(context.Background(), store.Run{
		ID:           id,
		Symbol:       market.NormalizeSymbol(cfg.Symbol),
		Label:        stratCfg.Name,
		Status:       store.StatusRunning,
		StartDate:    cfg.StartDate,
		EndDate:      cfg.EndDate,
		InitialCash:  decimal.NewFromFloat(cfg.InitialCash),
		ConfigHash:   snap.ConfigHash,
		StrategyHash: snap.StrategyHash,
	})
	if err != nil {
		logger.Fatal("run create failed", zap.Error(err))
	}

	drv, err := driver.New(cfg, id, bars, provider, st, logger)
	if err != nil {
		logger.Fatal("driver build failed", zap.Error(err))
	}
	summary, err := drv.Run(context.Background())
	if err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}

	printSummary(summary)

	if *arrowOut != "" {
		if err := arrowio.WriteRunArtifact(*arrowOut, bars, st.ListDailyMetrics(id)); err != nil {
			logger.Error("arrow artifact write failed", zap.Error(err))
		} else {
			fmt.Printf("arrow artifact: %s\n", *arrowOut)
		}
	}
}

func buildLogger(verbose bool) *zap.Logger {
	if verbose {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, _ := zap.NewProduction()
	return l
}

func printSummary(s *driver.Summary) {
	fmt.Printf("run %s (%s)\n", s.RunID, s.Symbol)
	fmt.Printf("  days processed:    %d\n", s.DaysProcessed)
	fmt.Printf("  initial cash:      %s\n", s.InitialCash.StringFixed(2))
	fmt.Printf("  final total asset: %s\n", s.FinalTotalAsset.StringFixed(2))
	fmt.Printf("  realized pnl:      %s\n", s.RealizedPnL.StringFixed(2))
	fmt.Printf("  commission:        %s\n", s.Fees.Commission.StringFixed(2))
	fmt.Printf("  stamp duty:        %s\n", s.Fees.StampDuty.StringFixed(2))
	fmt.Printf("  transfer fee:      %s\n", s.Fees.TransferFee.StringFixed(2))
	fmt.Printf("  trades won/lost:   %d/%d\n", s.TradesWon, s.TradesLost)
	fmt.Printf("  gross profit/loss: %s / %s\n", s.GrossProfit.StringFixed(2), s.GrossLoss.StringFixed(2))
	fmt.Printf("  profit factor:     %s\n", s.ProfitFactor.StringFixed(2))
	fmt.Printf("  win rate:          %s%%\n", s.WinRate.StringFixed(1))
	if s.StopReason != "" {
		fmt.Printf("  stop reason:       %s\n", s.StopReason)
	}
}
