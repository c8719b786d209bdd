package resources

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/takuphilchan/alezia-client/pkg/api"
)

// Importance bounds accepted by the backend
const (
	MinImportance = 0.0
	MaxImportance = 10.0
)

// Memories wraps /memory
type Memories struct {
	c Doer
}

// List returns up to limit memories of a character; limit <= 0 uses the backend default
func (r *Memories) List(ctx context.Context, characterID api.ID, limit int) ([]api.Memory, error) {
	if err := requireID("character id", characterID); err != nil {
		return nil, err
	}

	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var out []api.Memory
	if err := r.c.Do(ctx, http.MethodGet, withQuery(pathf("/memory/character/%s/memories", characterID), q), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Facts returns extracted facts, optionally only those about subject
func (r *Memories) Facts(ctx context.Context, characterID api.ID, subject string) ([]api.Fact, error) {
	if err := requireID("character id", characterID); err != nil {
		return nil, err
	}

	q := url.Values{}
	if subject != "" {
		q.Set("subject", subject)
	}

	var out []api.Fact
	if err := r.c.Do(ctx, http.MethodGet, withQuery(pathf("/memory/character/%s/facts", characterID), q), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create stores a new memory for a character
func (r *Memories) Create(ctx context.Context, characterID api.ID, req api.MemoryCreateRequest) (*api.MemoryCreateResponse, error) {
	if err := requireID("character id", characterID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, invalid("memory content must not be empty")
	}
	if err := checkImportance(req.Importance); err != nil {
		return nil, err
	}
	// The backend rejects bodies whose character differs from the URL
	req.CharacterID = characterID

	var out api.MemoryCreateResponse
	if err := r.c.Do(ctx, http.MethodPost, pathf("/memory/character/%s/memories", characterID), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns one memory
func (r *Memories) Get(ctx context.Context, memoryID api.ID) (*api.Memory, error) {
	if err := requireID("memory id", memoryID); err != nil {
		return nil, err
	}
	var out api.Memory
	if err := r.c.Do(ctx, http.MethodGet, pathf("/memory/memories/%s", memoryID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateImportance sets a memory's importance in [0, 10]
func (r *Memories) UpdateImportance(ctx context.Context, memoryID api.ID, importance float64) (*api.SuccessResponse, error) {
	if err := requireID("memory id", memoryID); err != nil {
		return nil, err
	}
	if err := checkImportance(importance); err != nil {
		return nil, err
	}

	var out api.SuccessResponse
	if err := r.c.Do(ctx, http.MethodPut, pathf("/memory/memories/%s/importance", memoryID), api.ImportanceRequest{Importance: importance}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a memory
func (r *Memories) Delete(ctx context.Context, memoryID api.ID) (*api.SuccessResponse, error) {
	if err := requireID("memory id", memoryID); err != nil {
		return nil, err
	}
	var out api.SuccessResponse
	if err := r.c.Do(ctx, http.MethodDelete, pathf("/memory/memories/%s", memoryID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Maintenance runs a consolidation cycle over a character's memories
func (r *Memories) Maintenance(ctx context.Context, characterID api.ID) (*api.MaintenanceResult, error) {
	if err := requireID("character id", characterID); err != nil {
		return nil, err
	}
	var out api.MaintenanceResult
	if err := r.c.Do(ctx, http.MethodPost, pathf("/memory/character/%s/maintenance", characterID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RelevantOptions tunes memory retrieval
type RelevantOptions struct {
	Limit            int
	RecencyWeight    float64 // 0 to 1
	ImportanceWeight float64 // 0 to 1
}

// DefaultRelevantOptions matches the backend defaults
func DefaultRelevantOptions() RelevantOptions {
	return RelevantOptions{Limit: 5, RecencyWeight: 0.3, ImportanceWeight: 0.4}
}

// Relevant ranks a character's memories against query
func (r *Memories) Relevant(ctx context.Context, characterID api.ID, query string, opts RelevantOptions) ([]api.RetrievedMemory, error) {
	if err := requireID("character id", characterID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, invalid("query must not be empty")
	}
	if opts.RecencyWeight < 0 || opts.RecencyWeight > 1 {
		return nil, invalid("recency weight %g outside [0, 1]", opts.RecencyWeight)
	}
	if opts.ImportanceWeight < 0 || opts.ImportanceWeight > 1 {
		return nil, invalid("importance weight %g outside [0, 1]", opts.ImportanceWeight)
	}

	q := url.Values{}
	q.Set("query", query)
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	q.Set("recency_weight", strconv.FormatFloat(opts.RecencyWeight, 'f', -1, 64))
	q.Set("importance_weight", strconv.FormatFloat(opts.ImportanceWeight, 'f', -1, 64))

	var out []api.RetrievedMemory
	if err := r.c.Do(ctx, http.MethodGet, withQuery(pathf("/memory/character/%s/relevant", characterID), q), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func checkImportance(v float64) error {
	if v < MinImportance || v > MaxImportance {
		return invalid("importance %g outside [%g, %g]", v, MinImportance, MaxImportance)
	}
	return nil
}
