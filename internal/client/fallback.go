package client

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/takuphilchan/alezia-client/pkg/api"
)

// Fallback synthesizes responses for chat operations when the backend
// cannot be reached. Everything it returns must carry Mock=true.
type Fallback interface {
	CreateSession(ctx context.Context, characterID api.ID) (*api.ChatSession, error)
	SendMessage(ctx context.Context, sessionID api.ID, content string) (*api.ChatMessage, error)
}

// MockFallback produces canned replies chosen by keyword. Equal inputs give
// equal content and ids.
type MockFallback struct {
	Now func() time.Time
}

// NewMockFallback creates a MockFallback using the wall clock
func NewMockFallback() *MockFallback {
	return &MockFallback{Now: time.Now}
}

func (m *MockFallback) now() time.Time {
	if m == nil || m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

// CreateSession returns a synthetic, active session
func (m *MockFallback) CreateSession(ctx context.Context, characterID api.ID) (*api.ChatSession, error) {
	return &api.ChatSession{
		ID:          api.IntID(mockID("session", characterID.String())),
		CharacterID: characterID,
		StartTime:   api.Timestamp{Time: m.now().UTC()},
		Active:      true,
		Mock:        true,
	}, nil
}

// SendMessage returns a synthetic assistant reply
func (m *MockFallback) SendMessage(ctx context.Context, sessionID api.ID, content string) (*api.ChatMessage, error) {
	return &api.ChatMessage{
		ID:        api.IntID(mockID("message", sessionID.String(), content)),
		SessionID: sessionID,
		Content:   MockReply(content),
		Sender:    "assistant",
		Timestamp: api.Timestamp{Time: m.now().UTC()},
		Mock:      true,
	}, nil
}

// MockReply picks a canned reply for a user message
func MockReply(message string) string {
	lower := strings.ToLower(message)
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	}) {
		words[w] = true
	}

	switch {
	case anyWord(words, "hello", "hi", "hey", "bonjour", "salut"):
		return "Hello! I'm glad to meet you. How can I help you today?"
	case words["how"] && anyWord(words, "you", "going"),
		words["comment"] && anyWord(words, "tu", "va", "vas"):
		return "I'm doing very well, thanks for asking! And how are you?"
	case anyWord(words, "like", "love", "prefer", "aime", "préfère"):
		return "That's interesting, what you say about your preferences. Personally, I enjoy discovering new things."
	case strings.Contains(lower, "?"):
		return "That's an interesting question. Let me think about it... With a little more information I could give you a better answer."
	case utf8.RuneCountInString(message) < 10:
		return "I'm listening. Feel free to tell me more about what interests you."
	default:
		return fmt.Sprintf("I understand what you're saying about \"%s...\". That's a subject worth exploring. Can you tell me more?", prefix(message, 20))
	}
}

func anyWord(words map[string]bool, candidates ...string) bool {
	for _, c := range candidates {
		if words[c] {
			return true
		}
	}
	return false
}

// prefix returns the first n runes of s
func prefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// mockID derives a stable id in [1, 1000] from its parts
func mockID(parts ...string) int {
	h := fnv.New32a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return int(h.Sum32()%1000) + 1
}
