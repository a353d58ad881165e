package rest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"bitmex-client/internal/errs"
	"bitmex-client/pkg/types"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return NewClient(Config{
		BaseURL:     srv.URL + apiPathPrefix,
		ApiKey:      "test-key",
		ApiSecret:   "test-secret",
		AuthSkewSec: 5,
		Timeout:     2 * time.Second,
	}, slog.Default())
}

func TestClientSignsRequestWithExpectedHeaders(t *testing.T) {
	t.Parallel()

	var gotPath, gotExpires, gotSig, gotKey string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotExpires = r.Header.Get("api-expires")
		gotSig = r.Header.Get("api-signature")
		gotKey = r.Header.Get("api-key")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"orderID":"abc"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.PlaceOrder(t.Context(), types.PlaceOrderRequest{Symbol: "XBTUSD", Side: types.Buy, OrderQty: "100", OrdType: "Market"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotKey != "test-key" {
		t.Fatalf("api-key header = %q", gotKey)
	}
	if gotPath != apiPathPrefix+"/order" {
		t.Fatalf("request path = %q", gotPath)
	}

	expires, err := strconv.ParseInt(gotExpires, 10, 64)
	if err != nil {
		t.Fatalf("api-expires not numeric: %v", err)
	}

	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte("POST" + apiPathPrefix + "/order" + gotExpires + string(gotBody)))
	wantSig := hex.EncodeToString(mac.Sum(nil))
	if gotSig != wantSig {
		t.Fatalf("api-signature mismatch: got %s want %s", gotSig, wantSig)
	}

	if expires < time.Now().Unix() {
		t.Fatal("expires should be in the future given the skew")
	}
}

func TestPlaceOrderDecodesResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(types.OrderRow{OrderID: "order-1", Symbol: "XBTUSD"})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	row, err := c.PlaceOrder(t.Context(), types.PlaceOrderRequest{Symbol: "XBTUSD", Side: types.Buy, OrderQty: "100", OrdType: "Market"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.OrderID != "order-1" {
		t.Fatalf("orderID = %q", row.OrderID)
	}
}

func TestClientClassifiesNonRateLimitStatuses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status   int
		wantCat  errs.Category
	}{
		{http.StatusUnauthorized, errs.Auth},
		{http.StatusRequestTimeout, errs.Timeout},
		{http.StatusConflict, errs.OrderRejected},
		{http.StatusUnprocessableEntity, errs.OrderRejected},
		{http.StatusBadRequest, errs.Validation},
		{http.StatusInternalServerError, errs.ExchangeDown},
	}

	for _, c := range cases {
		c := c
		t.Run(strconv.Itoa(c.status), func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(c.status)
				w.Write([]byte(`{"error":{"message":"boom"}}`))
			}))
			defer srv.Close()

			client := testClient(t, srv)
			_, err := client.PlaceOrder(t.Context(), types.PlaceOrderRequest{Symbol: "XBTUSD", Side: types.Buy, OrderQty: "1", OrdType: "Market"})
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := errs.CategoryOf(err); got != c.wantCat {
				t.Fatalf("category = %v, want %v", got, c.wantCat)
			}
		})
	}
}

func TestClientParsesRetryAfterOnRateLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	client := testClient(t, srv)
	_, err := client.PlaceOrder(t.Context(), types.PlaceOrderRequest{Symbol: "XBTUSD", Side: types.Buy, OrderQty: "1", OrdType: "Market"})
	if err == nil {
		t.Fatal("expected rate-limit error")
	}
	e, ok := err.(*errs.Error)
	if !ok {
		t.Fatalf("expected *errs.Error, got %T", err)
	}
	if e.Category != errs.RateLimit {
		t.Fatalf("category = %v", e.Category)
	}
	if e.RetryAfter != time.Second {
		t.Fatalf("retryAfter = %v, want 1s", e.RetryAfter)
	}
}

func TestClientAttachesRequestID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-request-id", "req-123")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad"}`))
	}))
	defer srv.Close()

	client := testClient(t, srv)
	_, err := client.PlaceOrder(t.Context(), types.PlaceOrderRequest{Symbol: "XBTUSD", Side: types.Buy, OrderQty: "1", OrdType: "Market"})
	e, ok := err.(*errs.Error)
	if !ok {
		t.Fatalf("expected *errs.Error, got %T", err)
	}
	if e.RequestID != "req-123" {
		t.Fatalf("requestID = %q", e.RequestID)
	}
}

func TestGetOrderByClOrdIDSendsQueryString(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]types.OrderRow{{OrderID: "o1", ClOrdID: "C1"}})
	}))
	defer srv.Close()

	client := testClient(t, srv)
	rows, err := client.GetOrderByClOrdID(t.Context(), "C1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].ClOrdID != "C1" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if gotPath != apiPathPrefix+"/order?clOrdID=C1" {
		t.Fatalf("path = %q", gotPath)
	}
}

func TestParseRetryAfterVariants(t *testing.T) {
	t.Parallel()
	now := time.Unix(1_700_000_000, 0)

	cases := []struct {
		name   string
		header func(http.Header)
		want   time.Duration
	}{
		{
			name:   "relative seconds",
			header: func(h http.Header) { h.Set("Retry-After", "3") },
			want:   3 * time.Second,
		},
		{
			name:   "relative ms",
			header: func(h http.Header) { h.Set("Retry-After-Ms", "1500") },
			want:   1500 * time.Millisecond,
		},
		{
			name:   "x-retry-after-ms",
			header: func(h http.Header) { h.Set("X-Retry-After-Ms", "250") },
			want:   250 * time.Millisecond,
		},
		{
			name:   "absolute epoch seconds",
			header: func(h http.Header) { h.Set("X-Rate-Limit-Reset", strconv.FormatInt(now.Add(5*time.Second).Unix(), 10)) },
			want:   5 * time.Second,
		},
		{
			name:   "no headers",
			header: func(http.Header) {},
			want:   0,
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			h := http.Header{}
			c.header(h)
			got := parseRetryAfter(h, now)
			if got != c.want {
				t.Fatalf("parseRetryAfter() = %v, want %v", got, c.want)
			}
		})
	}
}
