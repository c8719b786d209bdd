package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	gnet "github.com/shirou/gopsutil/v3/net"
)

// ErrNoHint means a hint source had nothing to offer
var ErrNoHint = errors.New("discovery: no port hint")

// HintSource publishes the port a co-located backend actually bound to
type HintSource interface {
	Port(ctx context.Context) (int, error)
}

// HintFunc adapts a function to HintSource
type HintFunc func(ctx context.Context) (int, error)

// Port calls f
func (f HintFunc) Port(ctx context.Context) (int, error) {
	return f(ctx)
}

// ParsePort parses a hint body: a single decimal port number
func ParsePort(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port hint %q", s)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port hint %d out of range", port)
	}
	return port, nil
}

// HTTPHint reads the port from a plaintext resource such as
// http://localhost:8080/api_port.txt
type HTTPHint struct {
	URL    string
	Client *http.Client
}

var hintHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			return nil, nil
		},
		DisableKeepAlives: true,
	},
}

// Port fetches and parses the hint resource
func (h HTTPHint) Port(ctx context.Context) (int, error) {
	if h.URL == "" {
		return 0, ErrNoHint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")

	client := h.Client
	if client == nil {
		client = hintHTTPClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch port hint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, ErrNoHint
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("port hint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return 0, fmt.Errorf("failed to read port hint: %w", err)
	}
	return ParsePort(string(body))
}

// FileHint reads the port from a file written by the backend launcher
type FileHint struct {
	Path string
}

// Port reads and parses the hint file
func (h FileHint) Port(ctx context.Context) (int, error) {
	if h.Path == "" {
		return 0, ErrNoHint
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	data, err := os.ReadFile(h.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNoHint
		}
		return 0, fmt.Errorf("failed to read port hint file: %w", err)
	}
	return ParsePort(string(data))
}

// ListenerHint picks the lowest port in the band with a local socket in
// LISTEN state. It only applies when the backend host is the local machine.
type ListenerHint struct {
	Host  string
	Start int
	End   int
}

// Port inspects local listening TCP sockets
func (h ListenerHint) Port(ctx context.Context) (int, error) {
	if !isLoopback(h.Host) {
		return 0, ErrNoHint
	}

	conns, err := gnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return 0, fmt.Errorf("failed to list listening sockets: %w", err)
	}

	best := 0
	for _, c := range conns {
		if c.Status != "LISTEN" {
			continue
		}
		port := int(c.Laddr.Port)
		if port < h.Start || port > h.End {
			continue
		}
		if best == 0 || port < best {
			best = port
		}
	}
	if best == 0 {
		return 0, ErrNoHint
	}
	return best, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

type firstOf []HintSource

// FirstOf returns a source yielding the first port any of sources provide
func FirstOf(sources ...HintSource) HintSource {
	var list firstOf
	for _, s := range sources {
		if s != nil {
			list = append(list, s)
		}
	}
	return list
}

func (f firstOf) Port(ctx context.Context) (int, error) {
	var errs []error
	for _, s := range f {
		port, err := s.Port(ctx)
		if err == nil {
			return port, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if !errors.Is(err, ErrNoHint) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return 0, ErrNoHint
}
