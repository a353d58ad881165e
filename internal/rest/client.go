package rest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"bitmex-client/internal/errs"
	"bitmex-client/pkg/types"
)

const apiPathPrefix = "/api/v1"

// Config configures the signed REST client.
type Config struct {
	BaseURL     string
	ApiKey      string
	ApiSecret   string
	AuthSkewSec int
	Timeout     time.Duration
}

// Client is the signed BitMEX REST client. It handles request signing, rate
// limiting by endpoint category, and response classification; retry policy
// for order placement lives one layer up, since the reconcile path must
// never retry while a plain placement retries exactly once.
type Client struct {
	http   *resty.Client
	rl     *RateLimiter
	secret string
	apiKey string
	skew   int
	logger *slog.Logger
}

// NewClient builds a REST client bound to cfg.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		rl:     NewRateLimiter(),
		secret: cfg.ApiSecret,
		apiKey: cfg.ApiKey,
		skew:   cfg.AuthSkewSec,
		logger: logger.With("component", "rest"),
	}
}

// bucketCategory selects which token bucket gates a request.
type bucketCategory int

const (
	bucketTrading bucketCategory = iota
	bucketQuery
)

func (c *Client) bucket(cat bucketCategory) *TokenBucket {
	if cat == bucketQuery {
		return c.rl.Query
	}
	return c.rl.Trading
}

// sign computes the api-signature header value for one request.
func (c *Client) sign(verb, path string, expires int64, body string) string {
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(verb + apiPathPrefix + path + strconv.FormatInt(expires, 10) + body))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) authHeaders(verb, path string, body string) map[string]string {
	expires := time.Now().Unix() + int64(c.skew)
	return map[string]string{
		"api-key":      c.apiKey,
		"api-expires":  strconv.FormatInt(expires, 10),
		"api-signature": c.sign(verb, path, expires, body),
	}
}

// do issues a signed request and decodes the JSON response into result (if
// non-nil). path must include any query string, since the query string is
// part of the signed payload.
func (c *Client) do(ctx context.Context, cat bucketCategory, verb, path string, body interface{}, result interface{}) error {
	if err := c.bucket(cat).Wait(ctx); err != nil {
		return errs.Wrap(errs.Timeout, err, "rate limiter wait cancelled")
	}

	var bodyStr string
	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errs.Wrap(errs.Validation, err, "marshal request body")
		}
		bodyBytes = b
		bodyStr = string(b)
	}

	headers := c.authHeaders(verb, path, bodyStr)

	req := c.http.R().SetContext(ctx).SetHeaders(headers)
	if bodyBytes != nil {
		req = req.SetBody(bodyBytes)
	}

	resp, err := req.Execute(verb, path)
	if err != nil {
		return errs.Wrap(errs.Network, err, "execute request")
	}

	if resp.StatusCode() >= 200 && resp.StatusCode() < 300 {
		if result != nil && len(resp.Body()) > 0 {
			if err := json.Unmarshal(resp.Body(), result); err != nil {
				return errs.Wrap(errs.Unknown, err, "decode response body")
			}
		}
		return nil
	}

	return classifyResponse(resp)
}

const bodySnippetLimit = 512

// classifyResponse turns a non-2xx resty.Response into a classified
// *errs.Error, attaching a bounded body snippet, the request id, and (for
// 429s) a parsed retry hint.
func classifyResponse(resp *resty.Response) error {
	status := resp.StatusCode()
	cat := errs.Classify(status)

	snippet := string(resp.Body())
	if len(snippet) > bodySnippetLimit {
		snippet = snippet[:bodySnippetLimit]
	}

	requestID := resp.Header().Get("x-request-id")
	if requestID == "" {
		requestID = resp.Header().Get("x-correlation-id")
	}

	var e *errs.Error
	if cat == errs.RateLimit {
		e = errs.NewRateLimit(parseRetryAfter(resp.Header(), time.Now()), snippet)
	} else {
		e = errs.New(cat, snippet)
	}
	e.RequestID = requestID
	return e
}

// parseRetryAfter extracts a retry delay from whichever of the four header
// variants BitMEX may send, across absolute-epoch and relative-seconds
// forms.
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if d, ok := parseRetryAfterValue(v, now, time.Second); ok {
			return d
		}
	}
	if v := h.Get("Retry-After-Ms"); v != "" {
		if d, ok := parseRetryAfterValue(v, now, time.Millisecond); ok {
			return d
		}
	}
	if v := h.Get("X-Retry-After-Ms"); v != "" {
		if d, ok := parseRetryAfterValue(v, now, time.Millisecond); ok {
			return d
		}
	}
	if v := h.Get("X-Rate-Limit-Reset"); v != "" {
		if d, ok := parseRetryAfterValue(v, now, time.Second); ok {
			return d
		}
	}
	return 0
}

// parseRetryAfterValue interprets a numeric header value as either a
// relative duration (in unit) or an absolute epoch timestamp, distinguished
// by magnitude: a value large enough to be an epoch timestamp in the
// header's own unit is treated as absolute.
func parseRetryAfterValue(raw string, now time.Time, unit time.Duration) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}

	const epochThresholdSec = 1_000_000_000 // ~2001-09-09, well above any relative delay
	var asEpochUnit int64
	switch unit {
	case time.Millisecond:
		asEpochUnit = epochThresholdSec * 1000
	default:
		asEpochUnit = epochThresholdSec
	}

	if n >= asEpochUnit {
		target := time.Unix(0, n*int64(unit))
		d := target.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	d := time.Duration(n) * unit
	if d < 0 {
		d = 0
	}
	return d, true
}

// PlaceOrder submits POST /order.
func (c *Client) PlaceOrder(ctx context.Context, req types.PlaceOrderRequest) (*types.OrderRow, error) {
	var result types.OrderRow
	if err := c.do(ctx, bucketTrading, http.MethodPost, "/order", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AmendOrder submits PUT /order.
func (c *Client) AmendOrder(ctx context.Context, req types.AmendOrderRequest) (*types.OrderRow, error) {
	var result types.OrderRow
	if err := c.do(ctx, bucketTrading, http.MethodPut, "/order", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelOrder submits DELETE /order?orderID=... and returns every row
// BitMEX reports as cancelled.
func (c *Client) CancelOrder(ctx context.Context, orderID string) ([]types.OrderRow, error) {
	path := fmt.Sprintf("/order?orderID=%s", orderID)
	var result []types.OrderRow
	if err := c.do(ctx, bucketTrading, http.MethodDelete, path, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetOrderByClOrdID issues the reconciliation query GET
// /order?clOrdID=... . It carries its own caller-supplied timeout via ctx
// and is never retried by this client.
func (c *Client) GetOrderByClOrdID(ctx context.Context, clOrdID string) ([]types.OrderRow, error) {
	path := fmt.Sprintf("/order?clOrdID=%s", clOrdID)
	var result []types.OrderRow
	if err := c.do(ctx, bucketQuery, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}
