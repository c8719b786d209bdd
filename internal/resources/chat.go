package resources

import (
	"context"
	"net/http"
	"strings"

	"github.com/takuphilchan/alezia-client/internal/client"
	"github.com/takuphilchan/alezia-client/internal/logging"
	"github.com/takuphilchan/alezia-client/internal/metrics"
	"github.com/takuphilchan/alezia-client/pkg/api"
)

// Chat wraps /chat. CreateSession and SendMessage may be answered by the
// fallback when the backend cannot be reached; such results have Mock set.
type Chat struct {
	c        Doer
	fallback client.Fallback
	logger   *logging.Logger
	metrics  *metrics.ClientMetrics
}

// CreateSession opens a chat session with a character
func (r *Chat) CreateSession(ctx context.Context, characterID api.ID) (*api.ChatSession, error) {
	if err := requireID("character id", characterID); err != nil {
		return nil, err
	}

	var out api.ChatSession
	err := r.c.Do(ctx, http.MethodPost, "/chat/session", api.SessionCreateRequest{CharacterID: characterID}, &out)
	if err == nil {
		return &out, nil
	}
	if !r.useFallback(ctx, err, "create_session") {
		return nil, err
	}
	return r.fallback.CreateSession(ctx, characterID)
}

// SendMessage posts a user message and returns the character's reply
func (r *Chat) SendMessage(ctx context.Context, sessionID api.ID, content string) (*api.ChatMessage, error) {
	if err := requireID("session id", sessionID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, invalid("message content must not be empty")
	}

	var out api.ChatMessage
	err := r.c.Do(ctx, http.MethodPost, pathf("/chat/%s/message", sessionID), api.MessageRequest{Content: content}, &out)
	if err == nil {
		return &out, nil
	}
	if !r.useFallback(ctx, err, "send_message") {
		return nil, err
	}
	return r.fallback.SendMessage(ctx, sessionID, content)
}

// History returns the messages of a session, oldest first
func (r *Chat) History(ctx context.Context, sessionID api.ID) ([]api.ChatMessage, error) {
	if err := requireID("session id", sessionID); err != nil {
		return nil, err
	}

	var out api.SessionHistory
	if err := r.c.Do(ctx, http.MethodGet, pathf("/chat/%s/history", sessionID), nil, &out); err != nil {
		return nil, err
	}
	if out.Messages == nil {
		return []api.ChatMessage{}, nil
	}
	return out.Messages, nil
}

// useFallback reports whether err should be answered synthetically.
// Only a missing response qualifies; remote errors and caller cancellation
// always propagate.
func (r *Chat) useFallback(ctx context.Context, err error, operation string) bool {
	if r.fallback == nil || !client.IsTransport(err) || ctx.Err() != nil {
		return false
	}
	if r.metrics != nil {
		r.metrics.FallbacksTotal.Inc(operation)
	}
	r.logger.Warn("backend unreachable, serving synthetic response", map[string]any{
		"operation": operation,
		"error":     err,
	})
	return true
}
