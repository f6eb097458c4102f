// Command server exposes the run-control HTTP API: create runs, query
// status, request stops. Workers pick pending runs from the same store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/buuzzy/AITrading/services/market"
	"github.com/buuzzy/AITrading/services/store"
)

func main() {
	port := flag.Int("port", 8080, "HTTP listen port")
	chAddr := flag.String("ch-addr", "localhost:9000", "ClickHouse native address")
	chDB := flag.String("ch-db", "aitrading", "ClickHouse database")
	chUser := flag.String("ch-user", "default", "ClickHouse user")
	chPass := flag.String("ch-pass", "", "ClickHouse password")
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

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := &runAPI{store: st, logger: logger}
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.POST("/api/runs", api.createRun)
	router.GET("/api/runs/:id", api.getRun)
	router.POST("/api/runs/:id/stop", api.stopRun)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: router,
	}
	go func() {
		logger.Info("control api listening", zap.Int("port", *port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

type runAPI struct {
	store  *store.ClickHouseStore
	logger *zap.Logger
}

type createRunRequest struct {
	Symbol      string  `json:"symbol" binding:"required"`
	StartDate   string  `json:"start_date" binding:"required"`
	EndDate     string  `json:"end_date" binding:"required"`
	InitialCash float64 `json:"initial_cash"`
	Label       string  `json:"label"`
}

func (a *runAPI) createRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := market.ParseDate(req.StartDate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad start_date"})
		return
	}
	if _, err := market.ParseDate(req.EndDate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad end_date"})
		return
	}
	if req.InitialCash <= 0 {
		req.InitialCash = 100000
	}

	run := store.Run{
		ID:          uuid.New().String(),
		Symbol:      market.NormalizeSymbol(req.Symbol),
		Label:       req.Label,
		Status:      store.StatusPending,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		InitialCash: decimal.NewFromFloat(req.InitialCash),
	}
	if err := a.store.CreateRun(c.Request.Context(), run); err != nil {
		a.logger.Error("run create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	a.logger.Info("run created",
		zap.String("run_id", run.ID),
		zap.String("symbol", run.Symbol),
	)
	c.JSON(http.StatusCreated, gin.H{"run_id": run.ID, "status": run.Status})
}

func (a *runAPI) getRun(c *gin.Context) {
	run, err := a.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":      run.ID,
		"symbol":      run.Symbol,
		"label":       run.Label,
		"status":      run.Status,
		"start_date":  run.StartDate,
		"end_date":    run.EndDate,
		"stop_reason": run.StopReason,
		"updated_at":  run.UpdatedAt,
	})
}

func (a *runAPI) stopRun(c *gin.Context) {
	id := c.Param("id")
	if err := a.store.UpdateRunStatus(c.Request.Context(), id, store.StatusStopped, "stop requested via api"); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	a.logger.Info("stop requested", zap.String("run_id", id))
	c.JSON(http.StatusOK, gin.H{"run_id": id, "status": store.StatusStopped})
}
