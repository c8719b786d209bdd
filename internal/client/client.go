// Package client executes JSON calls against the resolved Alezia backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/takuphilchan/alezia-client/internal/connection"
	"github.com/takuphilchan/alezia-client/internal/logging"
	"github.com/takuphilchan/alezia-client/internal/metrics"
)

// maxResponse caps a response body
const maxResponse = 16 << 20

// Options configures a Client
type Options struct {
	Handle    *connection.Handle
	Timeout   time.Duration // Whole-call deadline, 0 for none
	Transport http.RoundTripper

	BreakerFailures int           // Consecutive transport failures before opening, <= 0 disables
	BreakerTimeout  time.Duration // How long the breaker stays open
	RateLimit       float64       // Requests per second, 0 for unlimited
	RequestID       bool          // Send X-Request-ID

	Logger  *logging.Logger
	Metrics *metrics.ClientMetrics
}

// Client issues requests to handle.BaseURL + path. It holds no per-call
// state; the endpoint is read from the handle on every call.
type Client struct {
	handle     *connection.Handle
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	requestID  bool
	logger     *logging.Logger
	metrics    *metrics.ClientMetrics
}

// New creates a client
func New(opts Options) *Client {
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: func(req *http.Request) (*url.URL, error) {
				return nil, nil // Explicitly bypass all proxies for the local backend
			},
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	c := &Client{
		handle: opts.Handle,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		requestID: opts.RequestID,
		logger:    logging.OrDefault(opts.Logger).With(map[string]any{"component": "client"}),
		metrics:   opts.Metrics,
	}

	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit * 2)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	if opts.BreakerFailures > 0 {
		c.breaker = c.newBreaker(uint32(opts.BreakerFailures), opts.BreakerTimeout)
	}

	return c
}

func (c *Client) newBreaker(failures uint32, timeout time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "alezia-backend",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Only a missing response counts against the backend
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransport(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if c.metrics != nil {
				c.metrics.BreakerState.Set(breakerGauge(to))
			}
			fields := map[string]any{"from": from.String(), "to": to.String()}
			if to == gobreaker.StateOpen {
				c.logger.Warn("circuit breaker opened", fields)
			} else {
				c.logger.Info("circuit breaker state changed", fields)
			}
		},
	})
}

func breakerGauge(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Handle returns the connection handle the client reads its endpoint from
func (c *Client) Handle() *connection.Handle {
	return c.handle
}

// BreakerState returns closed, half-open or open; "disabled" without a breaker
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// Get issues a GET and decodes the response into out
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put issues a PUT with a JSON body
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Delete issues a DELETE
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Request performs a call and returns the raw JSON body
func (c *Client) Request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, method, path, body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Do performs one JSON call. A non-2xx answer yields *RemoteError; no answer
// at all yields *TransportError. out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var base string
	if c.handle != nil {
		base = c.handle.BaseURL()
	}
	if base == "" {
		return &TransportError{Method: method, URL: path, Err: ErrNotResolved}
	}
	target := strings.TrimRight(base, "/") + path

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s request: %w", method, path, err)
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait for %s %s: %w", method, path, err)
		}
	}

	timer := metrics.NewTimer()
	data, status, err := c.execute(ctx, method, path, target, payload)
	c.record(method, path, status, err, timer)
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) execute(ctx context.Context, method, path, target string, payload []byte) ([]byte, int, error) {
	if c.breaker == nil {
		return c.send(ctx, method, path, target, payload)
	}

	var status int
	result, err := c.breaker.Execute(func() (interface{}, error) {
		data, code, err := c.send(ctx, method, path, target, payload)
		status = code
		return data, err
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, 0, &TransportError{Method: method, URL: target, Err: ErrCircuitOpen}
	}
	if err != nil {
		return nil, status, err
	}
	return result.([]byte), status, nil
}

func (c *Client) send(ctx context.Context, method, path, target string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.requestID {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &TransportError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return nil, resp.StatusCode, &TransportError{Method: method, URL: target, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, newRemoteError(method, path, resp.StatusCode, data)
	}
	return data, resp.StatusCode, nil
}

func (c *Client) record(method, path string, status int, err error, timer *metrics.Timer) {
	class := statusClass(status)
	if transportErr := AsTransportError(err); transportErr != nil {
		class = "transport"
		if transportErr.Err == ErrCircuitOpen {
			class = "circuit_open"
		}
	}

	if c.metrics != nil {
		c.metrics.RequestsTotal.Inc(method, class)
		timer.ObserveDuration(c.metrics.RequestDuration, method)
	}

	fields := map[string]any{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": int64(timer.Seconds() * 1000),
	}
	switch {
	case class == "transport" || class == "circuit_open":
		fields["error"] = err
		c.logger.Warn("backend unreachable", fields)
	case err != nil:
		fields["error"] = err
		c.logger.Debug("backend returned error", fields)
	default:
		c.logger.Debug("backend request", fields)
	}
}

func statusClass(status int) string {
	if status == 0 {
		return "none"
	}
	return strconv.Itoa(status/100) + "xx"
}
