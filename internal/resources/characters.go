package resources

import (
	"context"
	"net/http"
	"strings"

	"github.com/takuphilchan/alezia-client/pkg/api"
)

// Characters wraps /characters
type Characters struct {
	c Doer
}

// List returns every character
func (r *Characters) List(ctx context.Context) ([]api.Character, error) {
	var out []api.Character
	if err := r.c.Do(ctx, http.MethodGet, "/characters", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one character
func (r *Characters) Get(ctx context.Context, id api.ID) (*api.Character, error) {
	if err := requireID("character id", id); err != nil {
		return nil, err
	}
	var out api.Character
	if err := r.c.Do(ctx, http.MethodGet, pathf("/characters/%s", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create creates a character. The backend only answers with the new id, so
// the returned character echoes the request fields.
func (r *Characters) Create(ctx context.Context, req api.CharacterCreateRequest) (*api.Character, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, invalid("character name must not be empty")
	}

	var created api.CharacterCreateResponse
	if err := r.c.Do(ctx, http.MethodPost, "/characters", req, &created); err != nil {
		return nil, err
	}
	return &api.Character{
		ID:          created.ID,
		Name:        req.Name,
		Description: req.Description,
		Personality: req.Personality,
		Backstory:   req.Backstory,
		UniverseID:  req.UniverseID,
	}, nil
}

// Update replaces a character's editable fields
func (r *Characters) Update(ctx context.Context, id api.ID, req api.CharacterCreateRequest) (*api.Character, error) {
	if err := requireID("character id", id); err != nil {
		return nil, err
	}
	var out api.Character
	if err := r.c.Do(ctx, http.MethodPut, pathf("/characters/%s", id), req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return &out, nil
}

// Delete removes a character
func (r *Characters) Delete(ctx context.Context, id api.ID) (*api.MessageResponse, error) {
	if err := requireID("character id", id); err != nil {
		return nil, err
	}
	var out api.MessageResponse
	if err := r.c.Do(ctx, http.MethodDelete, pathf("/characters/%s", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// State returns the character's current mood and active traits
func (r *Characters) State(ctx context.Context, id api.ID) (*api.CharacterState, error) {
	if err := requireID("character id", id); err != nil {
		return nil, err
	}
	var out api.CharacterState
	if err := r.c.Do(ctx, http.MethodGet, pathf("/characters/%s/state", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Universes wraps /universes
type Universes struct {
	c Doer
}

// List returns every universe
func (r *Universes) List(ctx context.Context) ([]api.Universe, error) {
	var out []api.Universe
	if err := r.c.Do(ctx, http.MethodGet, "/universes", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
