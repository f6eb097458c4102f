// Command nightly_audit runs data-quality checks against the backtest
// database: OHLC sanity, coverage gaps, run/metric consistency and stuck
// workers. It prints one line per check and exits nonzero when any check
// fails, so it can run from cron and page on a bad night.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

type result struct {
	name    string
	status  string // PASS, WARN or FAIL
	message string
}

type audit struct {
	conn   driver.Conn
	db     string
	logger *zap.Logger
}

func main() {
	var (
		chAddr = flag.String("ch-addr", "localhost:9000", "clickhouse native address")
		chDB   = flag.String("ch-db", "aitrading", "clickhouse database")
		chUser = flag.String("ch-user", "default", "clickhouse user")
		chPass = flag.String("ch-pass", "", "clickhouse password")
		stale  = flag.Duration("stale-after", 24*time.Hour, "running run with no update for this long counts as stuck")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{*chAddr},
		Auth: clickhouse.Auth{
			Database: *chDB,
			Username: *chUser,
			Password: *chPass,
		},
		DialTimeout: 10 * time.Second,
	})
	if err != nil {
		logger.Fatal("clickhouse open failed", zap.Error(err))
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a := &audit{conn: conn, db: *chDB, logger: logger}
	checks := []func(context.Context) result{
		a.ohlcSanity,
		a.ohlcGaps,
		a.runMetricConsistency,
		a.completedRunCheckpoints,
		func(ctx context.Context) result { return a.stuckRuns(ctx, *stale) },
	}

	failed := false
	for _, check := range checks {
		r := check(ctx)
		a.logger.Info("audit check",
			zap.String("check", r.name),
			zap.String("status", r.status),
			zap.String("message", r.message),
		)
		fmt.Printf("%-24s %-4s %s\n", r.name, r.status, r.message)
		if r.status == "FAIL" {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

// ohlcSanity flags bars whose price fields contradict each other.
func (a *audit) ohlcSanity(ctx context.Context) result {
	q := fmt.Sprintf(`SELECT count() FROM %s.ohlc FINAL
		WHERE high < low OR high < open OR high < close
		   OR low > open OR low > close OR close <= 0`, a.db)
	var bad uint64
	if err := a.conn.QueryRow(ctx, q).Scan(&bad); err != nil {
		return result{"ohlc_sanity", "FAIL", err.Error()}
	}
	if bad > 0 {
		return result{"ohlc_sanity", "FAIL", fmt.Sprintf("%d bars with inconsistent OHLC", bad)}
	}
	return result{"ohlc_sanity", "PASS", "all bars consistent"}
}

// ohlcGaps reports symbols with suspiciously large holes in their history.
// Holidays produce gaps of a week or so; anything past two weeks usually
// means a broken import.
func (a *audit) ohlcGaps(ctx context.Context) result {
	q := fmt.Sprintf(`SELECT symbol, max(gap) FROM (
			SELECT symbol,
			       dateDiff('day',
			           lagInFrame(toDate(date)) OVER (PARTITION BY symbol ORDER BY date),
			           toDate(date)) AS gap
			FROM %s.ohlc FINAL
		) WHERE gap > 15 GROUP BY symbol`, a.db)
	rows, err := a.conn.Query(ctx, q)
	if err != nil {
		return result{"ohlc_gaps", "FAIL", err.Error()}
	}
	defer rows.Close()
	n := 0
	worst := ""
	for rows.Next() {
		var symbol string
		var gap int64
		if err := rows.Scan(&symbol, &gap); err != nil {
			return result{"ohlc_gaps", "FAIL", err.Error()}
		}
		n++
		worst = fmt.Sprintf("%s misses %d days", symbol, gap)
	}
	if err := rows.Err(); err != nil {
		return result{"ohlc_gaps", "FAIL", err.Error()}
	}
	if n > 0 {
		return result{"ohlc_gaps", "WARN", fmt.Sprintf("%d symbols with >15 day holes, e.g. %s", n, worst)}
	}
	return result{"ohlc_gaps", "PASS", "no coverage holes"}
}

// runMetricConsistency verifies every trade row has its equity-curve twin.
// The driver writes both in the same settle step, so a mismatch means lost
// writes.
func (a *audit) runMetricConsistency(ctx context.Context) result {
	q := fmt.Sprintf(`SELECT count() FROM (
			SELECT t.run_id, t.days AS trade_days, m.days AS metric_days FROM
			  (SELECT run_id, uniqExact(date) AS days FROM %s.trades FINAL GROUP BY run_id) AS t
			  LEFT JOIN
			  (SELECT run_id, uniqExact(date) AS days FROM %s.daily_metrics FINAL GROUP BY run_id) AS m
			  USING run_id
			WHERE trade_days != metric_days
		)`, a.db, a.db)
	var bad uint64
	if err := a.conn.QueryRow(ctx, q).Scan(&bad); err != nil {
		return result{"run_metric_consistency", "FAIL", err.Error()}
	}
	if bad > 0 {
		return result{"run_metric_consistency", "FAIL", fmt.Sprintf("%d runs with trade/metric day mismatch", bad)}
	}
	return result{"run_metric_consistency", "PASS", "trades and metrics agree"}
}

// completedRunCheckpoints warns about completed runs whose checkpoint stops
// short of the configured end date. That is legitimate when the data feed
// simply ends earlier, hence WARN rather than FAIL.
func (a *audit) completedRunCheckpoints(ctx context.Context) result {
	q := fmt.Sprintf(`SELECT count() FROM %s.runs AS r FINAL
		INNER JOIN %s.checkpoints AS c ON r.run_id = c.run_id
		WHERE r.status = 'completed' AND c.last_processed_date < r.end_date`, a.db, a.db)
	var short uint64
	if err := a.conn.QueryRow(ctx, q).Scan(&short); err != nil {
		return result{"completed_checkpoints", "FAIL", err.Error()}
	}
	if short > 0 {
		return result{"completed_checkpoints", "WARN", fmt.Sprintf("%d completed runs stopped before end_date", short)}
	}
	return result{"completed_checkpoints", "PASS", "checkpoints reach end dates"}
}

// stuckRuns finds runs still marked running with no recent progress. A
// resumable run survives a worker crash, but the row stays running until
// someone reclaims or stops it.
func (a *audit) stuckRuns(ctx context.Context, staleAfter time.Duration) result {
	q := fmt.Sprintf(`SELECT count() FROM %s.runs FINAL
		WHERE status = 'running' AND updated_at < now() - INTERVAL %d SECOND`,
		a.db, int64(staleAfter.Seconds()))
	var stuck uint64
	if err := a.conn.QueryRow(ctx, q).Scan(&stuck); err != nil {
		return result{"stuck_runs", "FAIL", err.Error()}
	}
	if stuck > 0 {
		return result{"stuck_runs", "WARN", fmt.Sprintf("%d runs running with no update for %s", stuck, staleAfter)}
	}
	return result{"stuck_runs", "PASS", "no stuck runs"}
}
