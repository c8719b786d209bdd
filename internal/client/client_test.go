package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/takuphilchan/alezia-client/internal/connection"
	"github.com/takuphilchan/alezia-client/internal/logging"
	"github.com/takuphilchan/alezia-client/internal/metrics"
)

func newTestClient(baseURL string, opts Options) *Client {
	h := connection.New(baseURL)
	opts.Handle = h
	opts.Logger = logging.New(io.Discard)
	return New(opts)
}

// deadURL returns a base URL nothing listens on
func deadURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return "http://" + addr
}

func TestDoDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		if _, err := uuid.Parse(r.Header.Get("X-Request-ID")); err != nil {
			t.Errorf("Expected a UUID request id, got %q", r.Header.Get("X-Request-ID"))
		}
		if r.Method != http.MethodPost || r.URL.Path != "/chat/session" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["character_id"] != float64(3) {
			t.Errorf("Expected character_id 3, got %v", body["character_id"])
		}
		w.Write([]byte(`{"id": 12, "character_id": 3}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, Options{RequestID: true})

	var out struct {
		ID          int `json:"id"`
		CharacterID int `json:"character_id"`
	}
	if err := c.Post(context.Background(), "/chat/session", map[string]int{"character_id": 3}, &out); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if out.ID != 12 {
		t.Errorf("Expected id 12, got %d", out.ID)
	}
}

func TestRemoteErrorWithDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"no session"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, Options{})
	_, err := c.Request(context.Background(), http.MethodPost, "/chat/99/message", map[string]string{"content": "hi"})

	remoteErr := AsRemoteError(err)
	if remoteErr == nil {
		t.Fatalf("Expected RemoteError, got %T: %v", err, err)
	}
	if remoteErr.Detail != "no session" {
		t.Errorf("Expected detail 'no session', got %q", remoteErr.Detail)
	}
	if remoteErr.StatusCode != 404 || !remoteErr.NotFound() {
		t.Errorf("Expected 404, got %d", remoteErr.StatusCode)
	}
	if err.Error() != "no session" {
		t.Errorf("Expected error text to be the detail, got %q", err.Error())
	}
	if IsTransport(err) {
		t.Error("Remote error must not be classified as transport")
	}
}

func TestRemoteErrorWithoutDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`Internal Server Error`))
	}))
	defer server.Close()

	err := newTestClient(server.URL, Options{}).Get(context.Background(), "/characters", nil)

	remoteErr := AsRemoteError(err)
	if remoteErr == nil {
		t.Fatalf("Expected RemoteError, got %v", err)
	}
	if remoteErr.StatusCode != 500 || remoteErr.Detail != "" {
		t.Errorf("Expected bare 500, got %+v", remoteErr)
	}
	if err.Error() != "backend returned status 500" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

func TestParseDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string", `{"detail":"Character 4 not found"}`, "Character 4 not found"},
		{"validation", `{"detail":[{"loc":["body","content"],"msg":"field required","type":"value_error.missing"},{"loc":["query","limit"],"msg":"not an integer"}]}`,
			"content: field required; query.limit: not an integer"},
		{"object", `{"detail": {"code": 7}}`, `{"code":7}`},
		{"null", `{"detail":null}`, ""},
		{"missing", `{"error":"x"}`, ""},
		{"not json", `oops`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseDetail([]byte(tt.body)); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	c := newTestClient(deadURL(t), Options{})

	err := c.Get(context.Background(), "/universes", nil)

	transportErr := AsTransportError(err)
	if transportErr == nil {
		t.Fatalf("Expected TransportError, got %T: %v", err, err)
	}
	if transportErr.Method != http.MethodGet {
		t.Errorf("Expected GET, got %s", transportErr.Method)
	}
	if AsRemoteError(err) != nil {
		t.Error("Transport error must not be a RemoteError")
	}
}

func TestUsesCurrentHandleEndpoint(t *testing.T) {
	var hitsA, hitsB atomic.Int32
	a := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitsA.Add(1)
		w.Write([]byte(`[]`))
	}))
	defer a.Close()
	b := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitsB.Add(1)
		w.Write([]byte(`[]`))
	}))
	defer b.Close()

	c := newTestClient(a.URL, Options{})
	c.Get(context.Background(), "/universes", nil)

	c.Handle().SetResolution(b.URL, true, connection.SourceScan, time.Now())
	c.Get(context.Background(), "/universes", nil)

	if hitsA.Load() != 1 || hitsB.Load() != 1 {
		t.Errorf("Expected one call per endpoint, got a=%d b=%d", hitsA.Load(), hitsB.Load())
	}
}

func TestEndpointSwitchDuringCalls(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`[]`))
	})
	a := httptest.NewServer(handler)
	defer a.Close()
	b := httptest.NewServer(handler)
	defer b.Close()

	c := newTestClient(a.URL, Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			url := a.URL
			if i%2 == 0 {
				url = b.URL
			}
			c.Handle().SetResolution(url, true, connection.SourceScan, time.Now())
		}
	}()

	const calls = 50
	for i := 0; i < calls; i++ {
		if err := c.Get(context.Background(), "/universes", nil); err != nil {
			t.Fatalf("Call %d failed while the endpoint switched: %v", i, err)
		}
	}
	<-done

	if hits.Load() != calls {
		t.Errorf("Expected %d backend hits, got %d", calls, hits.Load())
	}
}

func TestRequestReturnsRawJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","tables":["characters"]}`))
	}))
	defer server.Close()

	raw, err := newTestClient(server.URL, Options{}).Request(context.Background(), http.MethodGet, "/system/check-database", nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if string(raw) != `{"status":"ok","tables":["characters"]}` {
		t.Errorf("Unexpected body %s", raw)
	}
}

func TestEmptyBodyLeavesOutUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	out := map[string]string{"keep": "me"}
	if err := newTestClient(server.URL, Options{}).Delete(context.Background(), "/memory/memories/3", &out); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if out["keep"] != "me" {
		t.Error("Empty response must not clobber out")
	}
}

func TestDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	var out map[string]any
	err := newTestClient(server.URL, Options{}).Get(context.Background(), "/characters/1", &out)
	if err == nil || IsTransport(err) || AsRemoteError(err) != nil {
		t.Errorf("Expected a plain decode error, got %v", err)
	}
}

func TestBreakerOpensOnTransportFailures(t *testing.T) {
	m := metrics.NewClientMetrics()
	c := newTestClient(deadURL(t), Options{
		BreakerFailures: 3,
		BreakerTimeout:  time.Minute,
		Metrics:         m,
	})

	for i := 0; i < 3; i++ {
		err := c.Get(context.Background(), "/characters", nil)
		if errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("Breaker opened early on call %d", i+1)
		}
	}

	err := c.Get(context.Background(), "/characters", nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Expected ErrCircuitOpen, got %v", err)
	}
	if !IsTransport(err) {
		t.Error("Open circuit should surface as a transport error")
	}
	if c.BreakerState() != "open" {
		t.Errorf("Expected open breaker, got %s", c.BreakerState())
	}
	if m.BreakerState.Value() != 2 {
		t.Errorf("Expected breaker gauge 2, got %g", m.BreakerState.Value())
	}
	if m.RequestsTotal.Value("GET", "circuit_open") != 1 {
		t.Error("Expected circuit_open request to be counted")
	}
}

func TestBreakerIgnoresRemoteErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Character 9 not found"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, Options{BreakerFailures: 2, BreakerTimeout: time.Minute})

	for i := 0; i < 5; i++ {
		err := c.Get(context.Background(), "/characters/9", nil)
		if AsRemoteError(err) == nil {
			t.Fatalf("Call %d: expected RemoteError, got %v", i+1, err)
		}
	}
	if c.BreakerState() != "closed" {
		t.Errorf("Remote errors must not trip the breaker, state %s", c.BreakerState())
	}
}

func TestBreakerDisabled(t *testing.T) {
	c := newTestClient(deadURL(t), Options{})
	if c.BreakerState() != "disabled" {
		t.Errorf("Expected disabled breaker, got %s", c.BreakerState())
	}
}

func TestRateLimitHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, Options{RateLimit: 0.1}) // burst of 1

	if err := c.Get(context.Background(), "/health", nil); err != nil {
		t.Fatalf("First call should pass: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Get(ctx, "/health", nil)
	if err == nil {
		t.Fatal("Expected rate limit wait to fail within the deadline")
	}
	if IsTransport(err) {
		t.Error("Rate limit failure is local, not a transport error")
	}
}

func TestRequestMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	m := metrics.NewClientMetrics()
	c := newTestClient(server.URL, Options{Metrics: m})
	c.Get(context.Background(), "/universes", nil)

	if m.RequestsTotal.Value("GET", "2xx") != 1 {
		t.Error("Expected one 2xx GET")
	}
	if m.RequestDuration.Count("GET") != 1 {
		t.Error("Expected one latency observation")
	}
}
