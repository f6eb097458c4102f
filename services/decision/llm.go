package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LLMProvider calls an OpenAI-compatible chat-completions endpoint and parses
// the model's JSON reply into a Decision. Malformed replies fall back to hold
// rather than being interpreted loosely.
type LLMProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *zap.Logger

	// MaxRetries bounds the per-day retry loop; backoff doubles per
	// attempt and is capped by MaxBackoff.
	MaxRetries int
	MaxBackoff time.Duration

	// sleep is swappable for tests. It must return early when ctx ends.
	sleep func(ctx context.Context, d time.Duration) error
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NewLLMProvider builds a provider against base URL (e.g.
// "https://api.deepseek.com/v1") with the given model name.
func NewLLMProvider(baseURL, apiKey, model string, logger *zap.Logger) *LLMProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 90 * time.Second},
		logger:     logger,
		MaxRetries: 3,
		MaxBackoff: 60 * time.Second,
		sleep:      sleepCtx,
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// tradeSignalArgs is the versioned wire contract the model must emit.
type tradeSignalArgs struct {
	Signal                string      `json:"signal"`
	Quantity              json.Number `json:"quantity"`
	Confidence            json.Number `json:"confidence"`
	StopLoss              json.Number `json:"stop_loss"`
	ProfitTarget          json.Number `json:"profit_target"`
	Leverage              json.Number `json:"leverage"`
	InvalidationCondition string      `json:"invalidation_condition"`
	Rationale             string      `json:"rationale"`
}

// Decide prompts the model with the day's context and parses its reply,
// retrying transient failures with bounded exponential backoff.
func (p *LLMProvider) Decide(ctx context.Context, day *Context) (Decision, error) {
	prompt, err := json.MarshalIndent(buildPromptPayload(day), "", "  ")
	if err != nil {
		return Decision{}, fmt.Errorf("marshal decision context: %w", err)
	}
	req := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(prompt)},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
			p.logger.Warn("decision provider retry",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			if err := p.sleep(ctx, backoff); err != nil {
				return Decision{}, err
			}
		}
		d, err := p.callOnce(ctx, req)
		if err == nil {
			return d, nil
		}
		lastErr = err
	}
	return Decision{}, fmt.Errorf("decision provider failed after %d attempts: %w", p.MaxRetries+1, lastErr)
}

func (p *LLMProvider) callOnce(ctx context.Context, req chatRequest) (Decision, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Decision{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Decision{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return Decision{}, fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Decision{}, fmt.Errorf("read chat completion: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Decision{}, fmt.Errorf("chat completion status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return Decision{}, fmt.Errorf("decode chat completion: %w", err)
	}
	if len(cr.Choices) == 0 {
		return Decision{}, fmt.Errorf("chat completion has no choices")
	}
	return ParseDecisionJSON(cr.Choices[0].Message.Content, p.logger), nil
}

// ParseDecisionJSON extracts a Decision from model output. Any validation
// failure degrades to hold with zero quantity; the model never gets an
// eval-style interpretation.
func ParseDecisionJSON(content string, logger *zap.Logger) Decision {
	if logger == nil {
		logger = zap.NewNop()
	}
	hold := Decision{Signal: SignalHold, Leverage: 1}

	text := strings.TrimSpace(content)
	// Tolerate fenced output.
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		logger.Warn("unparseable decision payload, holding", zap.Error(err))
		return hold
	}
	payload := []byte(text)
	if inner, ok := envelope["trade_signal_args"]; ok {
		payload = inner
	}

	var args tradeSignalArgs
	if err := json.Unmarshal(payload, &args); err != nil {
		logger.Warn("malformed trade_signal_args, holding", zap.Error(err))
		return hold
	}

	d := Decision{
		Signal:       NormalizeSignal(args.Signal),
		QuantityLots: parseLots(args.Quantity),
		Confidence:   numOr(args.Confidence, 0),
		StopLoss:     numOr(args.StopLoss, 0),
		ProfitTarget: numOr(args.ProfitTarget, 0),
		Leverage:     numOr(args.Leverage, 1),
		Invalidation: args.InvalidationCondition,
		Rationale:    args.Rationale,
	}
	if d.Signal != SignalHold && d.QuantityLots < 0 {
		d.QuantityLots = 0
	}
	return d
}

func parseLots(n json.Number) int64 {
	if n == "" {
		return 0
	}
	if v, err := n.Int64(); err == nil {
		return v
	}
	if f, err := n.Float64(); err == nil {
		return int64(f)
	}
	return 0
}

func numOr(n json.Number, def float64) float64 {
	if n == "" {
		return def
	}
	if f, err := strconv.ParseFloat(n.String(), 64); err == nil {
		return f
	}
	return def
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func buildPromptPayload(day *Context) map[string]any {
	payload := map[string]any{
		"symbol":           day.Symbol,
		"date":             day.Date,
		"current_price":    day.Price,
		"indicators":       day.Indicators,
		"strategy_flags":   day.Flags,
		"account":          day.Account,
		"max_buyable_lots": day.MaxBuyableLots,
		"allowed_actions":  day.AllowedActions,
		"recent_trades":    day.RecentTrades,
	}
	if day.Position != nil {
		payload["position"] = day.Position
	}
	if day.Advisory != "" {
		payload["technical_advisory"] = day.Advisory
	}
	return payload
}

const systemPrompt = `You are a disciplined A-share trading assistant. ` +
	`Reply with a single JSON object {"trade_signal_args": {"signal": "buy|sell|hold", ` +
	`"quantity": <board lots>, "confidence": <0-1>, "stop_loss": <price>, ` +
	`"profit_target": <price>, "leverage": 1.0, "invalidation_condition": "<text>", ` +
	`"rationale": "<text>"}}. Quantity is in board lots of 100 shares. ` +
	`Respect the allowed_actions list; prefer hold when uncertain.`
