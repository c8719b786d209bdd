package resources

import (
	"context"
	"net/http"

	"github.com/takuphilchan/alezia-client/pkg/api"
)

// System wraps /health and /system
type System struct {
	c Doer
}

// Health returns the backend's own health report
func (r *System) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	if err := r.c.Do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckDatabase reports database connectivity and tables
func (r *System) CheckDatabase(ctx context.Context) (*api.DatabaseStatusResponse, error) {
	var out api.DatabaseStatusResponse
	if err := r.c.Do(ctx, http.MethodGet, "/system/check-database", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckLLM reports whether the language model is available
func (r *System) CheckLLM(ctx context.Context) (*api.LLMStatusResponse, error) {
	var out api.LLMStatusResponse
	if err := r.c.Do(ctx, http.MethodGet, "/system/check-llm", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
