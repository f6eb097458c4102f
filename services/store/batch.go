package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// OHLCRow is one daily bar in wire form for bulk ingestion. Prices stay
// strings so the database parses them into decimals without a float detour.
type OHLCRow struct {
	Symbol     string `json:"symbol"`
	Date       string `json:"date"`
	Open       string `json:"open"`
	High       string `json:"high"`
	Low        string `json:"low"`
	Close      string `json:"close"`
	Volume     string `json:"volume"`
	Source     string `json:"source"`
	IngestedAt string `json:"ingested_at"`
}

// BatchIngester bulk-loads OHLC rows over the ClickHouse HTTP interface as
// gzipped JSONEachRow. It buffers rows and flushes full batches; Close
// flushes the remainder.
type BatchIngester struct {
	baseURL    string
	database   string
	username   string
	password   string
	httpClient *http.Client
	buffer     []OHLCRow
	batchSize  int
}

// NewBatchIngester targets the HTTP endpoint (e.g. "http://localhost:8123").
func NewBatchIngester(baseURL, database, username, password string, batchSize int) *BatchIngester {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if database == "" {
		database = "aitrading"
	}
	return &BatchIngester{
		baseURL:   baseURL,
		database:  database,
		username:  username,
		password:  password,
		batchSize: batchSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		buffer: make([]OHLCRow, 0, batchSize),
	}
}

// Add buffers one row, flushing when the batch fills.
func (c *BatchIngester) Add(ctx context.Context, row OHLCRow) error {
	c.buffer = append(c.buffer, row)
	if len(c.buffer) >= c.batchSize {
		return c.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered rows.
func (c *BatchIngester) Flush(ctx context.Context) error {
	if len(c.buffer) == 0 {
		return nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, row := range c.buffer {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal ohlc row: %w", err)
		}
		if _, err := gz.Write(data); err != nil {
			return fmt.Errorf("gzip ohlc row: %w", err)
		}
		if _, err := gz.Write([]byte("\n")); err != nil {
			return fmt.Errorf("gzip ohlc row: %w", err)
		}
	}
	gz.Close()

	query := fmt.Sprintf("INSERT INTO %s.ohlc FORMAT JSONEachRow", c.database)
	settings := "input_format_null_as_default=1&date_time_input_format=best_effort"
	endpoint := fmt.Sprintf("%s/?query=%s&%s", c.baseURL, url.QueryEscape(query), settings)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return fmt.Errorf("build ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Content-Encoding", "gzip")
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("X-ClickHouse-Settings", "max_insert_block_size=1000000,input_format_allow_errors_num=0,insert_deduplicate=1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ingest request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("clickhouse ingest error %d: %s", resp.StatusCode, string(body))
	}

	c.buffer = c.buffer[:0]
	return nil
}

// Close flushes any remaining rows.
func (c *BatchIngester) Close(ctx context.Context) error {
	return c.Flush(ctx)
}
