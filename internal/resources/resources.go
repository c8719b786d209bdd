// Package resources exposes typed operations over the backend's resource
// groups. Each facade is a thin wrapper around one shared client.
package resources

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/takuphilchan/alezia-client/internal/client"
	"github.com/takuphilchan/alezia-client/internal/logging"
	"github.com/takuphilchan/alezia-client/internal/metrics"
	"github.com/takuphilchan/alezia-client/pkg/api"
)

// ErrInvalidArgument is returned before any request is sent
var ErrInvalidArgument = errors.New("invalid argument")

// Doer is the request capability the facades need. *client.Client implements it.
type Doer interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

// Options configures the facades
type Options struct {
	Fallback client.Fallback // Chat only; nil disables synthetic responses
	Logger   *logging.Logger
	Metrics  *metrics.ClientMetrics
}

// Service groups every resource facade
type Service struct {
	Characters *Characters
	Universes  *Universes
	Chat       *Chat
	Memories   *Memories
	Traits     *Traits
	System     *System
}

// New builds all facades over one client
func New(c Doer, opts Options) *Service {
	logger := logging.OrDefault(opts.Logger).With(map[string]any{"component": "resources"})
	return &Service{
		Characters: &Characters{c: c},
		Universes:  &Universes{c: c},
		Chat:       &Chat{c: c, fallback: opts.Fallback, logger: logger, metrics: opts.Metrics},
		Memories:   &Memories{c: c},
		Traits:     &Traits{c: c},
		System:     &System{c: c},
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func requireID(name string, id api.ID) error {
	if id == "" {
		return invalid("%s must not be empty", name)
	}
	return nil
}

// pathf builds a path, escaping every argument as a single segment
func pathf(format string, segments ...any) string {
	escaped := make([]any, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(fmt.Sprint(s))
	}
	return fmt.Sprintf(format, escaped...)
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
