package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"solana-trading-agent/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = 800 * time.Millisecond
	DefaultMaxDelay   = 8 * time.Second
	DefaultModel      = "gpt-4o-mini"
)

const systemPrompt = `You are a trading signal reviewer for Solana tokens.
You receive a JSON array of draft signals. For each, judge whether the stated
strength is justified and reply with ONLY a JSON array, one object per input
signal, of the form:
{"token_address": string, "strength": number in [0,1], "rationale": string,
 "sentiment": optional number in [0,1], "price_target": optional number,
 "stop_loss": optional number}`

// ChatClient submits signal batches to an OpenAI-compatible chat
// completions endpoint for review. Works against OpenAI, DeepSeek, Qwen
// and similar providers.
type ChatClient struct {
	baseURL    string
	apiKey     string
	model      string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	headers    map[string]string
}

// ChatOption configures ChatClient.
type ChatOption func(*ChatClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ChatOption {
	return func(c *ChatClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for 429/5xx responses.
func WithMaxRetries(n int) ChatOption {
	return func(c *ChatClient) {
		c.maxRetries = n
	}
}

// WithModel sets the model name sent in requests.
func WithModel(model string) ChatOption {
	return func(c *ChatClient) {
		c.model = model
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ChatOption {
	return func(c *ChatClient) {
		c.client = client
	}
}

// WithHeader adds an extra request header, e.g. for gateway routing.
func WithHeader(key, value string) ChatOption {
	return func(c *ChatClient) {
		c.headers[key] = value
	}
}

// NewChatClient creates a chat completions client. baseURL is the API
// root (with or without a trailing /chat/completions, both accepted).
func NewChatClient(baseURL, apiKey string, opts ...ChatOption) *ChatClient {
	url := strings.TrimRight(baseURL, "/")
	url = strings.TrimSuffix(url, "/chat/completions")

	c := &ChatClient{
		baseURL:    url + "/chat/completions",
		apiKey:     apiKey,
		model:      DefaultModel,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
		headers:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type signalPayload struct {
	TokenAddress string   `json:"token_address"`
	Type         string   `json:"type"`
	Strength     float64  `json:"strength"`
	Strategy     string   `json:"strategy"`
	Reasons      []string `json:"reasons"`
}

// EnhanceSignals sends the batch in one request and parses the model's
// per-token adjustments. Any transport, decode, or format failure is
// returned as an error; nothing is partially applied.
func (c *ChatClient) EnhanceSignals(ctx context.Context, signals []*domain.Signal) ([]Adjustment, error) {
	if len(signals) == 0 {
		return nil, nil
	}

	payload := make([]signalPayload, len(signals))
	for i, sig := range signals {
		payload[i] = signalPayload{
			TokenAddress: sig.TokenAddress,
			Type:         string(sig.Type),
			Strength:     sig.Strength,
			Strategy:     sig.Strategy,
			Reasons:      sig.Reasons,
		}
	}
	userPrompt, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal signals: %w", err)
	}

	content, err := c.complete(ctx, string(userPrompt))
	if err != nil {
		return nil, err
	}
	return parseAdjustments(content)
}

// complete performs the chat call with retries and exponential backoff
// on 429 and 5xx responses.
func (c *ChatClient) complete(ctx context.Context, userPrompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			// Client errors are not retried.
			return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}

		content := gjson.GetBytes(respBody, "choices.0.message.content")
		if !content.Exists() || content.String() == "" {
			return "", fmt.Errorf("empty completion")
		}
		return content.String(), nil
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// parseAdjustments extracts the adjustment array from the completion.
// Models sometimes wrap the JSON in prose or a code fence, so the
// parser falls back to the outermost bracketed span.
func parseAdjustments(content string) ([]Adjustment, error) {
	raw := extractArray(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON array in completion")
	}

	parsed := gjson.Parse(raw)
	var adjustments []Adjustment
	var badEntry error
	parsed.ForEach(func(_, value gjson.Result) bool {
		addr := strings.TrimSpace(value.Get("token_address").String())
		if addr == "" {
			badEntry = fmt.Errorf("adjustment missing token_address")
			return false
		}
		strength := value.Get("strength")
		if !strength.Exists() {
			badEntry = fmt.Errorf("adjustment for %s missing strength", addr)
			return false
		}

		adj := Adjustment{
			TokenAddress: addr,
			Strength:     domain.Clamp01(strength.Float()),
			Rationale:    value.Get("rationale").String(),
		}
		enh := &domain.Enhancement{Rationale: adj.Rationale}
		if v := value.Get("sentiment"); v.Exists() {
			f := v.Float()
			enh.Sentiment = &f
		}
		if v := value.Get("price_target"); v.Exists() {
			f := v.Float()
			enh.PriceTarget = &f
		}
		if v := value.Get("stop_loss"); v.Exists() {
			f := v.Float()
			enh.StopLoss = &f
		}
		adj.Enhancement = enh

		adjustments = append(adjustments, adj)
		return true
	})
	if badEntry != nil {
		return nil, badEntry
	}
	return adjustments, nil
}

// extractArray returns the JSON array inside content, tolerating code
// fences and surrounding prose. Empty string when none is found.
func extractArray(content string) string {
	content = strings.TrimSpace(content)
	if gjson.Valid(content) {
		parsed := gjson.Parse(content)
		if parsed.IsArray() {
			return content
		}
		if arr := parsed.Get("adjustments"); arr.Exists() && arr.IsArray() {
			return arr.Raw
		}
	}

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return ""
	}
	candidate := content[start : end+1]
	if !gjson.Valid(candidate) || !gjson.Parse(candidate).IsArray() {
		return ""
	}
	return candidate
}

var _ Enhancer = (*ChatClient)(nil)
