package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ID is a backend identifier. Older backend builds send integers, newer ones
// send strings, so both decode into the same value.
type ID string

// UnmarshalJSON accepts a JSON string or number
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", string(data), err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers so integer-keyed backends accept them
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

// IntID formats an integer id
func IntID(n int) ID { return ID(strconv.Itoa(n)) }

// Timestamp decodes backend datetimes, which may omit the zone offset
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON accepts RFC 3339 and naive ISO 8601 datetimes
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		// null and non-string values decode to the zero time
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

// MarshalJSON writes RFC 3339, or null for the zero time
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status   string `json:"status"` // "healthy" when the API is fully up
	API      string `json:"api,omitempty"`
	Database string `json:"database,omitempty"`
	Message  string `json:"message,omitempty"`
}

// LLMStatusResponse is returned by GET /system/check-llm.
// Backends report either status "ok" or a loaded flag.
type LLMStatusResponse struct {
	Status string `json:"status,omitempty"`
	Loaded *bool  `json:"loaded,omitempty"`
	Model  string `json:"model,omitempty"`
}

// IsLoaded reports whether the backend says its model is ready
func (r LLMStatusResponse) IsLoaded() bool {
	return r.Status == "ok" || (r.Loaded != nil && *r.Loaded)
}

// DatabaseStatusResponse is returned by GET /system/check-database
type DatabaseStatusResponse struct {
	Status       string   `json:"status"`
	Tables       []string `json:"tables,omitempty"`
	DatabasePath string   `json:"database_path,omitempty"`
}

// ErrorResponse is the error envelope used by the backend
type ErrorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// Character is a playable character
type Character struct {
	ID          ID        `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Personality string    `json:"personality,omitempty"`
	Backstory   string    `json:"backstory,omitempty"`
	UniverseID  *int      `json:"universe_id,omitempty"`
	Universe    string    `json:"universe,omitempty"`
	CreatedAt   Timestamp `json:"created_at,omitempty"`
}

// CharacterCreateRequest creates or updates a character
type CharacterCreateRequest struct {
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Personality   string           `json:"personality"`
	Backstory     string           `json:"backstory,omitempty"`
	UniverseID    *int             `json:"universe_id,omitempty"`
	InitialTraits []map[string]any `json:"initial_traits,omitempty"`
}

// CharacterCreateResponse is returned by POST /characters
type CharacterCreateResponse struct {
	ID      ID     `json:"id"`
	Message string `json:"message,omitempty"`
}

// MessageResponse is a generic acknowledgement body
type MessageResponse struct {
	Message string `json:"message"`
}

// CharacterState is the live state of a character
type CharacterState struct {
	CharacterID        ID                 `json:"character_id"`
	Mood               string             `json:"mood"`
	CurrentContext     map[string]any     `json:"current_context,omitempty"`
	RelationshipToUser map[string]any     `json:"relationship_to_user,omitempty"`
	ActiveTraits       map[string]float64 `json:"active_traits,omitempty"`
}

// Universe groups characters under a shared setting
type Universe struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}

// ChatSession is a conversation between the user and one character
type ChatSession struct {
	ID          ID        `json:"id"`
	CharacterID ID        `json:"character_id"`
	UserID      string    `json:"user_id,omitempty"`
	StartTime   Timestamp `json:"start_time,omitempty"`
	Active      bool      `json:"active,omitempty"`

	// Mock marks a locally synthesized session
	Mock bool `json:"mock,omitempty"`
}

// SessionCreateRequest is the body of POST /chat/session
type SessionCreateRequest struct {
	CharacterID ID `json:"character_id"`
}

// MessageRequest is the body of POST /chat/{id}/message
type MessageRequest struct {
	Content string `json:"content"`
}

// ChatMessage is one message of a session
type ChatMessage struct {
	ID        ID             `json:"id"`
	SessionID ID             `json:"session_id,omitempty"`
	Content   string         `json:"content"`
	Sender    string         `json:"sender,omitempty"` // "user" or "assistant"
	Timestamp Timestamp      `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// Mock marks a locally synthesized reply
	Mock bool `json:"mock,omitempty"`
}

// SessionHistory is returned by GET /chat/{id}/history
type SessionHistory struct {
	ID       ID            `json:"id,omitempty"`
	Messages []ChatMessage `json:"messages"`
}

// Memory is something a character remembers
type Memory struct {
	ID           ID             `json:"id"`
	CharacterID  ID             `json:"character_id"`
	Type         string         `json:"type,omitempty"`
	Content      string         `json:"content"`
	Importance   float64        `json:"importance"`
	Source       string         `json:"source,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    Timestamp      `json:"created_at,omitempty"`
	LastAccessed *Timestamp     `json:"last_accessed,omitempty"`
	AccessCount  int            `json:"access_count,omitempty"`
}

// MemoryCreateRequest is the body of POST /memory/character/{id}/memories
type MemoryCreateRequest struct {
	CharacterID ID             `json:"character_id"`
	Type        string         `json:"type,omitempty"`
	Content     string         `json:"content"`
	Importance  float64        `json:"importance,omitempty"`
	Source      string         `json:"source,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ImportanceRequest is the body of PUT /memory/memories/{id}/importance
type ImportanceRequest struct {
	Importance float64 `json:"importance"`
}

// RetrievedMemory is a memory ranked against a query
type RetrievedMemory struct {
	Memory          Memory  `json:"memory"`
	RelevanceScore  float64 `json:"relevance_score"`
	SimilarityScore float64 `json:"similarity_score"`
	RecencyScore    float64 `json:"recency_score"`
	ImportanceScore float64 `json:"importance_score"`
}

// Fact is a subject/predicate/object triple extracted from memories
type Fact struct {
	ID             ID        `json:"id"`
	CharacterID    ID        `json:"character_id"`
	Subject        string    `json:"subject"`
	Predicate      string    `json:"predicate"`
	Object         string    `json:"object"`
	Confidence     float64   `json:"confidence"`
	SourceMemoryID *ID       `json:"source_memory_id,omitempty"`
	CreatedAt      Timestamp `json:"created_at,omitempty"`
	LastConfirmed  Timestamp `json:"last_confirmed,omitempty"`
}

// MemoryCreateResponse is returned by POST /memory/character/{id}/memories
type MemoryCreateResponse struct {
	ID      ID   `json:"id"`
	Success bool `json:"success"`
}

// SuccessResponse is the generic {success} acknowledgement of the memory routes
type SuccessResponse struct {
	Success    bool     `json:"success"`
	Importance *float64 `json:"importance,omitempty"` // Set by importance updates, after clamping
}

// MaintenanceResult reports what a memory maintenance cycle did
type MaintenanceResult struct {
	Success    bool           `json:"success"`
	Statistics map[string]any `json:"statistics,omitempty"`
}

// Trait is one personality trait of a character
type Trait struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"` // -1.0 to 1.0
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description,omitempty"`
	Volatility  float64 `json:"volatility,omitempty"`
}

// PersonalityTraits is returned by GET /characters/{id}/traits
type PersonalityTraits struct {
	CharacterID ID        `json:"character_id,omitempty"`
	Traits      []Trait   `json:"traits"`
	LastUpdated Timestamp `json:"last_updated,omitempty"`
}

// TraitChange is one entry of a character's trait history
type TraitChange struct {
	TraitName    string    `json:"trait_name"`
	OldValue     float64   `json:"old_value"`
	NewValue     float64   `json:"new_value"`
	ChangeAmount float64   `json:"change_amount"`
	Reason       string    `json:"reason"`
	Timestamp    Timestamp `json:"timestamp"`
}

// TraitUpdateRequest is the body of PUT /characters/{id}/traits/{name}
type TraitUpdateRequest struct {
	Value  float64 `json:"value"`
	Reason string  `json:"reason"`
}

// TraitUpdateResponse is returned by PUT /characters/{id}/traits/{name}
type TraitUpdateResponse struct {
	Message  string  `json:"message"`
	NewValue float64 `json:"new_value"`
}
