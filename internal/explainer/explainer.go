// Package explainer asks a chat-completions model for a short, level-aware
// explanation of a single transaction.
package explainer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mbd888/txbuddy/internal/circuitbreaker"
	"github.com/mbd888/txbuddy/internal/traces"
)

const breakerKey = "llm"

var (
	ErrNotConfigured = errors.New("language model not configured")
	ErrEmptyResponse = errors.New("empty model response")
)

// TxData is the transaction summary embedded in the prompt.
type TxData struct {
	Value       string `json:"value"`   // ETH, decimal string
	GasCost     string `json:"gasCost"` // ETH, decimal string
	Status      uint64 `json:"status"`
	To          string `json:"to"`
	From        string `json:"from"`
	Hash        string `json:"hash"`
	Input       string `json:"input"`
	GasUsed     string `json:"gasUsed"`
	Type        string `json:"type"`
	BlockNumber uint64 `json:"blockNumber"`
	GasPrice    string `json:"gasPrice"` // wei
	MethodID    string `json:"methodId"`
	Nonce       uint64 `json:"nonce"`
	Success     bool   `json:"success"`
	EventCount  int    `json:"eventCount"`
}

// Explainer turns a transaction into prose for a user of a given level.
// Failures come back as text, never as an error.
type Explainer interface {
	Explain(ctx context.Context, tx TxData, userLevel int) string
}

// Tier picks the explanation register for a user level.
func Tier(level int) string {
	switch {
	case level < 30:
		return "simple"
	case level < 70:
		return "technical"
	default:
		return "expert"
	}
}

// Prompt renders the system prompt for tx at userLevel.
func Prompt(tx TxData, userLevel int) string {
	data, _ := json.MarshalIndent(tx, "", "  ")
	var b strings.Builder
	b.WriteString("You are analyzing a single specific Ethereum transaction.\n")
	b.WriteString("Focus ONLY on these transaction details:\n")
	b.Write(data)
	fmt.Fprintf(&b, "\n\nUser knowledge level: %d/100\n\n", userLevel)
	b.WriteString("PROVIDE:\n")
	fmt.Fprintf(&b, "1. A single %s explanation\n", Tier(userLevel))
	b.WriteString("2. ONLY describe what THIS SPECIFIC transaction does\n")
	b.WriteString("3. Base your analysis on the actual data provided above\n")
	b.WriteString("4. Max 3 sentences\n\n")
	b.WriteString("DO NOT:\n")
	b.WriteString("- Ask for more information\n")
	b.WriteString("- Give generic responses\n")
	b.WriteString("- Talk about risks or recommendations\n")
	b.WriteString("- Add greetings or default responses\n\n")
	b.WriteString("IMPORTANT: Use the real transaction data to explain what happened.")
	return b.String()
}

// FailureText is what callers store when the model could not answer.
func FailureText(err error) string {
	return "Error analyzing transaction: " + err.Error()
}

// Config for the chat-completions client
type Config struct {
	BaseURL string // e.g. https://api.openai.com/v1
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client implements Explainer against an OpenAI-compatible API.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

var _ Explainer = (*Client)(nil)

// New creates a client. An empty APIKey yields a client whose every answer
// is the not-configured failure text.
func New(cfg Config, breaker *circuitbreaker.Breaker, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if breaker == nil {
		breaker = circuitbreaker.New(5, 30*time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		logger:  logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Explain implements Explainer.
func (c *Client) Explain(ctx context.Context, tx TxData, userLevel int) string {
	ctx, span := traces.StartSpan(ctx, "explainer.Explain", traces.TxHash(tx.Hash), traces.UserLevel(userLevel))
	text, err := c.complete(ctx, Prompt(tx, userLevel))
	traces.End(span, err)
	if err != nil {
		c.logger.Warn("explanation failed", "tx", tx.Hash, "error", err)
		return FailureText(err)
	}
	return text
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: "Analyze this transaction."},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	var text string
	err = c.breaker.Do(breakerKey, countable, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("model request failed: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("failed to read model response: %w", err)
		}

		var out chatResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return &statusError{code: resp.StatusCode, msg: "undecodable response"}
		}
		if resp.StatusCode != http.StatusOK {
			msg := http.StatusText(resp.StatusCode)
			if out.Error != nil && out.Error.Message != "" {
				msg = out.Error.Message
			}
			return &statusError{code: resp.StatusCode, msg: msg}
		}
		if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
			return ErrEmptyResponse
		}
		text = strings.TrimSpace(out.Choices[0].Message.Content)
		return nil
	})
	return text, err
}

type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("model API returned %d: %s", e.code, e.msg)
}

// Client errors (bad request, auth) are our problem, not the upstream's,
// and do not count toward opening the circuit.
func countable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return !errors.Is(err, ErrEmptyResponse)
}
