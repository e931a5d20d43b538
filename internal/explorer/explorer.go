// Package explorer talks to an Etherscan-compatible block explorer API
// (Basescan by default) for per-address transaction lists and contract
// verification status.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mbd888/txbuddy/internal/circuitbreaker"
	"github.com/mbd888/txbuddy/internal/traces"
)

const (
	breakerKey       = "explorer"
	notVerifiedText  = "Contract source code not verified"
	noTxMessage      = "No transactions found"
	defaultTimeout   = 10 * time.Second
	defaultCacheSize = 1024
)

var ErrAPI = errors.New("explorer api error")

// TxRef is one entry of an address transaction list.
type TxRef struct {
	Hash        string `json:"hash"`
	BlockNumber uint64 `json:"blockNumber"`
	From        string `json:"from"`
	To          string `json:"to"`
}

// API is the explorer surface the engine consumes.
type API interface {
	// ListTransactions returns transactions touching address in blocks
	// [fromBlock, toBlock], oldest first.
	ListTransactions(ctx context.Context, address string, fromBlock, toBlock uint64) ([]TxRef, error)
	// IsVerifiedContract reports whether address has verified source. Any
	// failure yields false.
	IsVerifiedContract(ctx context.Context, address string) bool
}

// Config for the explorer client
type Config struct {
	BaseURL   string
	APIKey    string
	CacheSize int
	Timeout   time.Duration
}

// Client implements API over HTTP.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *circuitbreaker.Breaker
	cache   *lru.Cache[string, bool]
	logger  *slog.Logger
}

var _ API = (*Client)(nil)

// Option configures the client
type Option func(*Client)

// WithHTTPClient swaps the transport (tests use httptest servers).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBreaker shares a circuit breaker with other upstream clients.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates an explorer client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("explorer base URL required")
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cache, err := lru.New[string, bool](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification cache: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.New(5, 30*time.Second),
		cache:   cache,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type apiTx struct {
	Hash        string `json:"hash"`
	BlockNumber string `json:"blockNumber"`
	From        string `json:"from"`
	To          string `json:"to"`
}

// ListTransactions calls module=account&action=txlist.
func (c *Client) ListTransactions(ctx context.Context, address string, fromBlock, toBlock uint64) ([]TxRef, error) {
	ctx, span := traces.StartSpan(ctx, "explorer.ListTransactions", traces.Address(address), traces.Block(toBlock))
	var err error
	defer func() { traces.End(span, err) }()

	params := url.Values{
		"module":     {"account"},
		"action":     {"txlist"},
		"address":    {address},
		"startblock": {strconv.FormatUint(fromBlock, 10)},
		"endblock":   {strconv.FormatUint(toBlock, 10)},
		"sort":       {"asc"},
	}

	var resp *apiResponse
	resp, err = c.call(ctx, params)
	if err != nil {
		return nil, err
	}

	if resp.Status != "1" {
		if strings.EqualFold(resp.Message, noTxMessage) {
			return nil, nil
		}
		err = fmt.Errorf("%w: txlist: %s", ErrAPI, describe(resp))
		return nil, err
	}

	var raw []apiTx
	if err = json.Unmarshal(resp.Result, &raw); err != nil {
		err = fmt.Errorf("failed to decode txlist result: %w", err)
		return nil, err
	}

	out := make([]TxRef, 0, len(raw))
	for _, tx := range raw {
		block, perr := strconv.ParseUint(tx.BlockNumber, 10, 64)
		if perr != nil {
			c.logger.Warn("skipping txlist entry with bad block number", "tx", tx.Hash, "block", tx.BlockNumber)
			continue
		}
		out = append(out, TxRef{
			Hash:        strings.ToLower(tx.Hash),
			BlockNumber: block,
			From:        strings.ToLower(tx.From),
			To:          strings.ToLower(tx.To),
		})
	}
	return out, nil
}

// IsVerifiedContract calls module=contract&action=getabi. Definite answers
// are cached; failures are not, and read as unverified.
func (c *Client) IsVerifiedContract(ctx context.Context, address string) bool {
	address = strings.ToLower(address)
	if address == "" {
		return false
	}
	if v, ok := c.cache.Get(address); ok {
		return v
	}

	ctx, span := traces.StartSpan(ctx, "explorer.IsVerifiedContract", traces.Address(address))
	params := url.Values{
		"module":  {"contract"},
		"action":  {"getabi"},
		"address": {address},
	}
	resp, err := c.call(ctx, params)
	traces.End(span, err)
	if err != nil {
		c.logger.Warn("contract verification lookup failed", "address", address, "error", err)
		return false
	}

	var result string
	_ = json.Unmarshal(resp.Result, &result)

	switch {
	case resp.Status == "1" && result != notVerifiedText:
		c.cache.Add(address, true)
		return true
	case result == notVerifiedText:
		c.cache.Add(address, false)
		return false
	default:
		// rate limits and key errors come back as status 0 with a message
		c.logger.Warn("contract verification lookup rejected", "address", address, "detail", describe(resp))
		return false
	}
}

// Ping is a health probe: it asks for an empty range on the zero address.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListTransactions(ctx, "0x0000000000000000000000000000000000000000", 0, 0)
	return err
}

func (c *Client) call(ctx context.Context, params url.Values) (*apiResponse, error) {
	params.Set("apikey", c.cfg.APIKey)
	endpoint := c.cfg.BaseURL + "?" + params.Encode()

	var out *apiResponse
	err := c.breaker.Do(breakerKey, nil, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("explorer request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("%w: status %d", ErrAPI, resp.StatusCode)
		}

		var body apiResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("failed to decode explorer response: %w", err)
		}
		out = &body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func describe(r *apiResponse) string {
	var s string
	if err := json.Unmarshal(r.Result, &s); err == nil && s != "" {
		return r.Message + ": " + s
	}
	return r.Message
}
