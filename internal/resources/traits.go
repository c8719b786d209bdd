package resources

import (
	"context"
	"net/http"
	"net/url"

	"github.com/takuphilchan/alezia-client/pkg/api"
)

// Traits wraps /characters/{id}/traits
type Traits struct {
	c Doer
}

// List returns a character's personality traits
func (r *Traits) List(ctx context.Context, characterID api.ID) (*api.PersonalityTraits, error) {
	if err := requireID("character id", characterID); err != nil {
		return nil, err
	}
	var out api.PersonalityTraits
	if err := r.c.Do(ctx, http.MethodGet, pathf("/characters/%s/traits", characterID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns trait changes, optionally for one trait only
func (r *Traits) History(ctx context.Context, characterID api.ID, traitName string) ([]api.TraitChange, error) {
	if err := requireID("character id", characterID); err != nil {
		return nil, err
	}

	q := url.Values{}
	if traitName != "" {
		q.Set("trait_name", traitName)
	}

	var out []api.TraitChange
	if err := r.c.Do(ctx, http.MethodGet, withQuery(pathf("/characters/%s/traits/history", characterID), q), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update sets a trait to value in [-1, 1]
func (r *Traits) Update(ctx context.Context, characterID api.ID, traitName string, value float64, reason string) (*api.TraitUpdateResponse, error) {
	if err := requireID("character id", characterID); err != nil {
		return nil, err
	}
	if n := len(traitName); n < 2 || n > 50 {
		return nil, invalid("trait name must be 2-50 characters, got %q", traitName)
	}
	if value < -1 || value > 1 {
		return nil, invalid("trait value %g outside [-1, 1]", value)
	}

	var out api.TraitUpdateResponse
	body := api.TraitUpdateRequest{Value: value, Reason: reason}
	if err := r.c.Do(ctx, http.MethodPut, pathf("/characters/%s/traits/%s", characterID, traitName), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
