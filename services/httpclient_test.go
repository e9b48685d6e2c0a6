package services_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ghdlabs/ghd-market-maker/domain"
	"github.com/ghdlabs/ghd-market-maker/services"
	"github.com/stretchr/testify/assert"
)

type testHTTPCredentials struct {
	url string
}

func (credentials *testHTTPCredentials) GetHTTPURL() string {
	return credentials.url
}

func (credentials *testHTTPCredentials) GetSymbol() string {
	return "GHDUSDT"
}

type testLimiter struct {
	mu        sync.Mutex
	coolDowns []time.Duration
}

func (limiter *testLimiter) Wait(ctx context.Context) error {
	return nil
}

func (limiter *testLimiter) CoolDown(duration time.Duration) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	limiter.coolDowns = append(limiter.coolDowns, duration)
}

type testClientLogger struct{}

func (testClientLogger *testClientLogger) Debugf(format string, args ...interface{}) {}
func (testClientLogger *testClientLogger) Warnf(format string, args ...interface{})  {}

func newTestClient(url string, limiter *testLimiter, retry services.RetryPolicy) *services.HTTPClient {
	signer := services.NewSigner(&testSignerCredentials{key: "testkey", secret: "testsecret"})
	return services.NewHTTPClient(&testHTTPCredentials{url: url}, signer, limiter, retry, &testClientLogger{})
}

func defaultRetry() services.RetryPolicy {
	return services.RetryPolicy{
		MaxAttempts:    3,
		BaseBackoff:    time.Millisecond,
		RequestTimeout: time.Second,
		CoolDown:       10 * time.Millisecond,
	}
}

func testOrder() domain.Order {
	return domain.Order{
		ClientOrderID: "client-1",
		Side:          domain.SideBuy,
		Price:         99.9,
		Quantity:      5,
	}
}

func TestPlaceOrderSignsRequest(t *testing.T) {
	var seen http.Header
	var body []byte

	server := httptest.NewServer(http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		seen = req.Header.Clone()
		body, _ = io.ReadAll(req.Body)

		resp.WriteHeader(http.StatusCreated)
		fmt.Fprint(resp, `{"id":"1","clientOrderId":"client-1","status":"NEW"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, &testLimiter{}, defaultRetry())

	result, err := client.PlaceOrder(context.Background(), testOrder())
	assert.Nil(t, err)
	assert.Equal(t, services.PlaceAccepted, result.Outcome)
	assert.Equal(t, "1", result.ExchangeOrderID)

	assert.Equal(t, "testkey", seen.Get("X-API-KEY"))
	assert.NotEmpty(t, seen.Get("X-TIMESTAMP"))

	// verify the signature exactly the way the exchange does
	mac := hmac.New(sha256.New, []byte("testsecret"))
	mac.Write([]byte(seen.Get("X-TIMESTAMP") + "POST" + "/orders" + string(body)))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), seen.Get("X-SIGNATURE"))
}

func TestPlaceOrderRetriesWithSameClientOrderID(t *testing.T) {
	var requests []string
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		var payload struct {
			ClientOrderID string `json:"clientOrderId"`
		}
		json.NewDecoder(req.Body).Decode(&payload)

		mu.Lock()
		requests = append(requests, payload.ClientOrderID)
		count := len(requests)
		mu.Unlock()

		if count == 1 {
			resp.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp.WriteHeader(http.StatusCreated)
		fmt.Fprint(resp, `{"id":"7","clientOrderId":"client-1","status":"NEW"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, &testLimiter{}, defaultRetry())

	result, err := client.PlaceOrder(context.Background(), testOrder())
	assert.Nil(t, err)
	assert.Equal(t, services.PlaceAccepted, result.Outcome)
	assert.Equal(t, []string{"client-1", "client-1"}, requests)
}

func TestPlaceOrderDuplicateIsAcknowledgment(t *testing.T) {
	// a simulated exchange that dedupes by clientOrderId: resubmitting the
	// same id never creates a second live order
	live := map[string]string{}
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		var payload struct {
			ClientOrderID string `json:"clientOrderId"`
		}
		json.NewDecoder(req.Body).Decode(&payload)

		mu.Lock()
		defer mu.Unlock()

		if id, ok := live[payload.ClientOrderID]; ok {
			resp.WriteHeader(http.StatusConflict)
			fmt.Fprintf(resp, `{"id":%q,"clientOrderId":%q,"status":"NEW"}`, id, payload.ClientOrderID)
			return
		}
		live[payload.ClientOrderID] = fmt.Sprintf("ex-%d", len(live)+1)
		resp.WriteHeader(http.StatusCreated)
		fmt.Fprintf(resp, `{"id":%q,"clientOrderId":%q,"status":"NEW"}`, live[payload.ClientOrderID], payload.ClientOrderID)
	}))
	defer server.Close()

	client := newTestClient(server.URL, &testLimiter{}, defaultRetry())

	first, err := client.PlaceOrder(context.Background(), testOrder())
	assert.Nil(t, err)
	second, err := client.PlaceOrder(context.Background(), testOrder())
	assert.Nil(t, err)

	assert.Equal(t, services.PlaceAccepted, first.Outcome)
	assert.Equal(t, services.PlaceAccepted, second.Outcome)
	assert.Equal(t, first.ExchangeOrderID, second.ExchangeOrderID)
	assert.Equal(t, 1, len(live))
}

func TestPlaceOrderRejectionIsNotRetried(t *testing.T) {
	var requests int
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		resp.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(resp, `{"error":"quantity below minimum"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, &testLimiter{}, defaultRetry())

	result, err := client.PlaceOrder(context.Background(), testOrder())
	assert.Nil(t, err)
	assert.Equal(t, services.PlaceRejected, result.Outcome)
	assert.Equal(t, "quantity below minimum", result.Reason)
	assert.Equal(t, 1, requests)
}

func TestPlaceOrderUnknownAfterTimeouts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	retry := defaultRetry()
	retry.MaxAttempts = 2
	retry.RequestTimeout = 10 * time.Millisecond

	client := newTestClient(server.URL, &testLimiter{}, retry)

	result, err := client.PlaceOrder(context.Background(), testOrder())
	assert.Nil(t, err)
	assert.Equal(t, services.PlaceUnknown, result.Outcome)
}

func TestRateLimitTriggersCoolDown(t *testing.T) {
	var requests int
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		mu.Lock()
		requests++
		count := requests
		mu.Unlock()

		if count == 1 {
			resp.WriteHeader(http.StatusTooManyRequests)
			return
		}
		resp.WriteHeader(http.StatusCreated)
		fmt.Fprint(resp, `{"id":"1","clientOrderId":"client-1","status":"NEW"}`)
	}))
	defer server.Close()

	limiter := &testLimiter{}
	client := newTestClient(server.URL, limiter, defaultRetry())

	result, err := client.PlaceOrder(context.Background(), testOrder())
	assert.Nil(t, err)
	assert.Equal(t, services.PlaceAccepted, result.Outcome)
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, limiter.coolDowns)
}

func TestAuthenticationFailureIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		resp.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(resp, `{"error":"invalid signature"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, &testLimiter{}, defaultRetry())

	_, err := client.PlaceOrder(context.Background(), testOrder())
	assert.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestCancelOrderOutcomes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/orders/1":
			fmt.Fprint(resp, `{"id":"1","status":"CANCELLED"}`)
		case "/orders/2":
			fmt.Fprint(resp, `{"id":"2","status":"FILLED"}`)
		default:
			resp.WriteHeader(http.StatusNotFound)
			fmt.Fprint(resp, `{"error":"not found"}`)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, &testLimiter{}, defaultRetry())

	cancelled, err := client.CancelOrder(context.Background(), "1")
	assert.Nil(t, err)
	assert.Equal(t, services.CancelDone, cancelled.Outcome)

	filled, err := client.CancelOrder(context.Background(), "2")
	assert.Nil(t, err)
	assert.Equal(t, services.CancelAlreadyTerminal, filled.Outcome)
	assert.Equal(t, domain.StatusFilled, filled.Status)

	missing, err := client.CancelOrder(context.Background(), "3")
	assert.Nil(t, err)
	assert.Equal(t, services.CancelNotFound, missing.Outcome)
}

func TestOpenOrdersAndTickerAndBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/orders":
			assert.Equal(t, "GHDUSDT", req.URL.Query().Get("symbol"))
			fmt.Fprint(resp, `[{"id":"1","clientOrderId":"a","side":"BUY","price":99.9,"quantity":5,"executedQuantity":1,"status":"PARTIALLY_FILLED"}]`)
		case "/ticker":
			fmt.Fprint(resp, `{"bid":99.95,"ask":100.05,"ts":1700000000000}`)
		case "/account/balance":
			fmt.Fprint(resp, `{"balances":[{"asset":"GHD","free":1000,"locked":0}]}`)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, &testLimiter{}, defaultRetry())

	orders, err := client.OpenOrders(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, 1, len(orders))
	assert.Equal(t, "a", orders[0].ClientOrderID)
	assert.Equal(t, domain.StatusPartiallyFilled, orders[0].Status)
	assert.Equal(t, 1.0, orders[0].FilledQuantity)

	ticker, err := client.GetTicker(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, 99.95, ticker.Bid)

	balances, err := client.GetBalance(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, "GHD", balances[0].Asset)
	assert.Equal(t, 1000.0, balances[0].Free)
}
