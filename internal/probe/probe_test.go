package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/takuphilchan/alezia-client/internal/metrics"
)

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return u.Hostname(), port
}

func TestProbeStatuses(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		want    Status
		backend string
		reason  Reason
	}{
		{"healthy", 200, `{"status":"healthy","api":"ok"}`, StatusHealthy, "healthy", ReasonNone},
		{"degraded", 200, `{"status":"degraded","database":"error"}`, StatusDegraded, "degraded", ReasonNone},
		{"server error", 500, `{"status":"healthy"}`, StatusUnreachable, "", ReasonBadStatus},
		{"not found", 404, `{"detail":"Not Found"}`, StatusUnreachable, "", ReasonBadStatus},
		{"malformed", 200, `<html>`, StatusUnreachable, "", ReasonMalformed},
		{"missing status", 200, `{"api":"ok"}`, StatusUnreachable, "", ReasonMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("Expected /health, got %s", r.URL.Path)
				}
				if ct := r.Header.Get("Content-Type"); ct != "application/json" {
					t.Errorf("Expected JSON content type, got %q", ct)
				}
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			host, port := hostPort(t, server.URL)
			status := New(Options{Timeout: 200 * time.Millisecond}).Probe(context.Background(), host, port)

			if status.Status != tt.want {
				t.Errorf("Expected status %s, got %s", tt.want, status.Status)
			}
			if status.Backend != tt.backend {
				t.Errorf("Expected backend status %q, got %q", tt.backend, status.Backend)
			}
			if status.Reason != tt.reason {
				t.Errorf("Expected reason %q, got %q", tt.reason, status.Reason)
			}
		})
	}
}

func TestProbeRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	status := New(Options{Timeout: 200 * time.Millisecond}).Probe(context.Background(), "127.0.0.1", port)

	if status.Status != StatusUnreachable {
		t.Errorf("Expected unreachable, got %s", status.Status)
	}
	if status.Reason != ReasonRefused {
		t.Errorf("Expected refused, got %q", status.Reason)
	}
}

func TestProbeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	start := time.Now()
	status := New(Options{Timeout: 50 * time.Millisecond}).ProbeURL(context.Background(), server.URL)

	if status.Status != StatusUnreachable || status.Reason != ReasonTimeout {
		t.Errorf("Expected unreachable/timeout, got %s/%s", status.Status, status.Reason)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Probe did not honor its timeout: took %v", elapsed)
	}
}

func TestTimeoutIsCapped(t *testing.T) {
	p := New(Options{Timeout: 5 * time.Second})
	if p.Timeout() != MaxTimeout {
		t.Errorf("Expected timeout capped at %v, got %v", MaxTimeout, p.Timeout())
	}
	if New(Options{}).Timeout() != MaxTimeout {
		t.Error("Expected zero timeout to default to the cap")
	}
}

func TestBaseURL(t *testing.T) {
	p := New(Options{})
	if got := p.BaseURL("localhost", 8004); got != "http://localhost:8004" {
		t.Errorf("Expected http://localhost:8004, got %s", got)
	}
	if got := p.BaseURL("::1", 8000); got != "http://[::1]:8000" {
		t.Errorf("Expected bracketed IPv6 host, got %s", got)
	}
	if got := New(Options{Scheme: "https"}).BaseURL("api.local", 8001); got != "https://api.local:8001" {
		t.Errorf("Expected https scheme, got %s", got)
	}
}

func TestProbeRecordsMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer server.Close()

	m := metrics.NewClientMetrics()
	p := New(Options{Metrics: m})
	p.ProbeURL(context.Background(), server.URL)
	p.ProbeURL(context.Background(), server.URL+"/")

	if got := m.ProbesTotal.Value("healthy"); got != 2 {
		t.Errorf("Expected 2 healthy probes, got %g", got)
	}
	if m.ProbeDuration.Count() != 2 {
		t.Errorf("Expected 2 latency observations, got %d", m.ProbeDuration.Count())
	}
}

func TestCheckModel(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		body       string
		wantLoaded bool
		wantOK     bool
	}{
		{"status ok", 200, `{"status":"ok","model":"mistral"}`, true, true},
		{"loaded flag", 200, `{"loaded":true}`, true, true},
		{"not loaded", 200, `{"status":"error","loaded":false}`, false, true},
		{"server error", 503, `{"detail":"LLM offline"}`, false, false},
		{"malformed", 200, `nope`, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/system/check-llm" {
					t.Errorf("Expected /system/check-llm, got %s", r.URL.Path)
				}
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			loaded, ok := New(Options{}).CheckModel(context.Background(), server.URL)
			if loaded != tt.wantLoaded || ok != tt.wantOK {
				t.Errorf("Expected (%v, %v), got (%v, %v)", tt.wantLoaded, tt.wantOK, loaded, ok)
			}
		})
	}
}
