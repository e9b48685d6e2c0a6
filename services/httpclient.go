package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/ghdlabs/ghd-market-maker/domain"
)

type httpCredentials interface {
	GetHTTPURL() string
	GetSymbol() string
}

type requestSigner interface {
	Sign(method string, path string, body string, timestamp int64) map[string]string
}

type callLimiter interface {
	Wait(ctx context.Context) error
	CoolDown(duration time.Duration)
}

type httpClientLogger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// RetryPolicy bounds retries of idempotent calls. Backoff is exponential
// with jitter starting from BaseBackoff.
type RetryPolicy struct {
	MaxAttempts    int
	BaseBackoff    time.Duration
	RequestTimeout time.Duration
	CoolDown       time.Duration
}

type PlaceOutcome int

const (
	// PlaceAccepted means the exchange acknowledged the order, either on
	// this attempt or on an earlier one it deduplicated by clientOrderId.
	PlaceAccepted PlaceOutcome = iota
	// PlaceRejected is terminal for the order and never retried.
	PlaceRejected
	// PlaceUnknown means every attempt timed out. The order may or may not
	// be resting; the caller must reconcile before touching it again.
	PlaceUnknown
)

type PlaceResult struct {
	Outcome         PlaceOutcome
	ExchangeOrderID string
	Status          domain.OrderStatus
	Reason          string
}

type CancelOutcome int

const (
	CancelDone CancelOutcome = iota
	CancelAlreadyTerminal
	CancelNotFound
	CancelUnknown
)

type CancelResult struct {
	Outcome CancelOutcome
	Status  domain.OrderStatus
}

type Ticker struct {
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Timestamp int64   `json:"ts"`
}

type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// HTTPClient is the typed exchange REST client. Every call is signed,
// carries a monotonically increasing timestamp, respects the shared rate
// limit and retries transient failures for idempotent operations only.
type HTTPClient struct {
	credentials httpCredentials
	signer      requestSigner
	limiter     callLimiter
	retry       RetryPolicy
	client      *http.Client
	logger      httpClientLogger

	timestampMu   sync.Mutex
	lastTimestamp int64
}

func NewHTTPClient(httpCredentials httpCredentials, signer requestSigner, limiter callLimiter, retry RetryPolicy, logger httpClientLogger) *HTTPClient {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &HTTPClient{
		credentials: httpCredentials,
		signer:      signer,
		limiter:     limiter,
		retry:       retry,
		client:      &http.Client{},
		logger:      logger,
	}
}

type placeRequest struct {
	Symbol        string      `json:"symbol"`
	ClientOrderID string      `json:"clientOrderId"`
	Side          domain.Side `json:"side"`
	Price         float64     `json:"price"`
	Quantity      float64     `json:"quantity"`
	TimeInForce   string      `json:"timeInForce"`
}

type orderPayload struct {
	ID               string  `json:"id"`
	ClientOrderID    string  `json:"clientOrderId"`
	Symbol           string  `json:"symbol"`
	Side             string  `json:"side"`
	Price            float64 `json:"price"`
	Quantity         float64 `json:"quantity"`
	ExecutedQuantity float64 `json:"executedQuantity"`
	Status           string  `json:"status"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// PlaceOrder submits the order. Retries reuse the same clientOrderId so the
// exchange can deduplicate; a 409 carrying the existing order is therefore
// treated as the original acknowledgment, never as a new order.
func (client *HTTPClient) PlaceOrder(ctx context.Context, order domain.Order) (PlaceResult, error) {
	body, err := json.Marshal(placeRequest{
		Symbol:        client.credentials.GetSymbol(),
		ClientOrderID: order.ClientOrderID,
		Side:          order.Side,
		Price:         order.Price,
		Quantity:      order.Quantity,
		TimeInForce:   "GTC",
	})
	if err != nil {
		return PlaceResult{}, err
	}

	status, respBody, err := client.do(ctx, http.MethodPost, "/orders", "", body, true)
	if err != nil {
		if domain.IsTransient(err) || errors.Is(err, domain.ErrRateLimited) {
			client.logger.Warnf("place %s outcome unknown: %v", order.ClientOrderID, err)
			return PlaceResult{Outcome: PlaceUnknown}, nil
		}
		return PlaceResult{}, err
	}

	switch {
	case status == http.StatusCreated || status == http.StatusOK || status == http.StatusConflict:
		var payload orderPayload
		if err := json.Unmarshal(respBody, &payload); err != nil {
			return PlaceResult{Outcome: PlaceUnknown}, nil
		}
		return PlaceResult{
			Outcome:         PlaceAccepted,
			ExchangeOrderID: payload.ID,
			Status:          exchangeStatus(payload.Status),
		}, nil
	default:
		var payload errorPayload
		_ = json.Unmarshal(respBody, &payload)
		if payload.Error == "" {
			payload.Error = fmt.Sprintf("status %d", status)
		}
		return PlaceResult{Outcome: PlaceRejected, Reason: payload.Error}, nil
	}
}

// CancelOrder cancels by exchange order id. Naturally idempotent.
func (client *HTTPClient) CancelOrder(ctx context.Context, exchangeOrderID string) (CancelResult, error) {
	status, respBody, err := client.do(ctx, http.MethodDelete, "/orders/"+exchangeOrderID, "", nil, true)
	if err != nil {
		if domain.IsTransient(err) || errors.Is(err, domain.ErrRateLimited) {
			client.logger.Warnf("cancel %s outcome unknown: %v", exchangeOrderID, err)
			return CancelResult{Outcome: CancelUnknown}, nil
		}
		return CancelResult{}, err
	}

	switch status {
	case http.StatusOK:
		var payload orderPayload
		if err := json.Unmarshal(respBody, &payload); err != nil {
			return CancelResult{Outcome: CancelUnknown}, nil
		}
		mapped := exchangeStatus(payload.Status)
		if mapped == domain.StatusCancelled {
			return CancelResult{Outcome: CancelDone, Status: mapped}, nil
		}
		return CancelResult{Outcome: CancelAlreadyTerminal, Status: mapped}, nil
	case http.StatusNotFound:
		return CancelResult{Outcome: CancelNotFound}, nil
	default:
		return CancelResult{Outcome: CancelUnknown}, nil
	}
}

// OpenOrders returns every order the exchange believes is resting for the
// configured symbol. Its answer is authoritative during reconciliation.
func (client *HTTPClient) OpenOrders(ctx context.Context) ([]domain.Order, error) {
	status, respBody, err := client.do(ctx, http.MethodGet, "/orders", "symbol="+client.credentials.GetSymbol(), nil, true)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &domain.TransientError{Err: fmt.Errorf("open orders: status %d", status)}
	}

	var payloads []orderPayload
	if err := json.Unmarshal(respBody, &payloads); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(payloads))
	for _, payload := range payloads {
		orders = append(orders, domain.Order{
			ClientOrderID:   payload.ClientOrderID,
			ExchangeOrderID: payload.ID,
			Symbol:          payload.Symbol,
			Side:            domain.Side(payload.Side),
			Price:           payload.Price,
			Quantity:        payload.Quantity,
			FilledQuantity:  payload.ExecutedQuantity,
			Status:          exchangeStatus(payload.Status),
		})
	}
	return orders, nil
}

func (client *HTTPClient) GetTicker(ctx context.Context) (Ticker, error) {
	status, respBody, err := client.do(ctx, http.MethodGet, "/ticker", "symbol="+client.credentials.GetSymbol(), nil, true)
	if err != nil {
		return Ticker{}, err
	}
	if status != http.StatusOK {
		return Ticker{}, &domain.TransientError{Err: fmt.Errorf("ticker: status %d", status)}
	}

	var ticker Ticker
	if err := json.Unmarshal(respBody, &ticker); err != nil {
		return Ticker{}, err
	}
	return ticker, nil
}

func (client *HTTPClient) GetBalance(ctx context.Context) ([]Balance, error) {
	status, respBody, err := client.do(ctx, http.MethodGet, "/account/balance", "", nil, true)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &domain.TransientError{Err: fmt.Errorf("balance: status %d", status)}
	}

	var payload struct {
		Balances []Balance `json:"balances"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, err
	}
	return payload.Balances, nil
}

// do sends one signed request under the retry discipline: transient network
// failures and 5xx responses retry with backoff for idempotent calls, a 429
// starts the shared cool-down, 401/403 is fatal, anything else is returned
// to the caller as-is.
func (client *HTTPClient) do(ctx context.Context, method string, path string, query string, body []byte, idempotent bool) (int, []byte, error) {
	var lastErr error

	for attempt := 0; attempt < client.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := client.sleep(ctx, client.backoff(attempt)); err != nil {
				return 0, nil, err
			}
		}
		if err := client.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}

		status, respBody, err := client.send(ctx, method, path, query, body)
		if err != nil {
			lastErr = &domain.TransientError{Err: err}
			client.logger.Debugf("%s %s attempt %d: %v", method, path, attempt+1, err)
			if !idempotent {
				break
			}
			continue
		}

		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return status, respBody, domain.ErrAuthentication
		}
		if status == http.StatusTooManyRequests {
			client.limiter.CoolDown(client.retry.CoolDown)
			lastErr = domain.ErrRateLimited
			client.logger.Warnf("%s %s rate limited, cooling down %s", method, path, client.retry.CoolDown)
			continue
		}
		if status >= 500 {
			lastErr = &domain.TransientError{Err: fmt.Errorf("status %d", status)}
			client.logger.Debugf("%s %s attempt %d: status %d", method, path, attempt+1, status)
			if !idempotent {
				break
			}
			continue
		}

		return status, respBody, nil
	}

	if lastErr == nil {
		lastErr = &domain.TransientError{Err: errors.New("no attempts made")}
	}
	return 0, nil, lastErr
}

func (client *HTTPClient) send(ctx context.Context, method string, path string, query string, body []byte) (int, []byte, error) {
	requestCtx, cancel := context.WithTimeout(ctx, client.retry.RequestTimeout)
	defer cancel()

	url := client.credentials.GetHTTPURL() + path
	if query != "" {
		url += "?" + query
	}

	request, err := http.NewRequestWithContext(requestCtx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}

	// the signature covers the path only, never the query string
	for name, value := range client.signer.Sign(method, path, string(body), client.timestamp()) {
		request.Header.Set(name, value)
	}
	if len(body) > 0 {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.client.Do(request)
	if err != nil {
		return 0, nil, err
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return 0, nil, err
	}
	return response.StatusCode, respBody, nil
}

// timestamp returns unix milliseconds, strictly increasing across calls.
func (client *HTTPClient) timestamp() int64 {
	client.timestampMu.Lock()
	defer client.timestampMu.Unlock()

	now := time.Now().UnixMilli()
	if now <= client.lastTimestamp {
		now = client.lastTimestamp + 1
	}
	client.lastTimestamp = now
	return now
}

func (client *HTTPClient) backoff(attempt int) time.Duration {
	base := client.retry.BaseBackoff << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(client.retry.BaseBackoff) + 1))
	return base + jitter
}

func (client *HTTPClient) sleep(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func exchangeStatus(status string) domain.OrderStatus {
	switch status {
	case "NEW":
		return domain.StatusOpen
	case "PARTIALLY_FILLED":
		return domain.StatusPartiallyFilled
	case "FILLED":
		return domain.StatusFilled
	case "CANCELLED":
		return domain.StatusCancelled
	case "REJECTED":
		return domain.StatusRejected
	}
	return domain.StatusOpen
}
