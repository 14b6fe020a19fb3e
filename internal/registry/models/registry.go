package models

import (
	"encoding/json"
	"time"

	id "caseregistry/pkg/domain"
	dErrors "caseregistry/pkg/domain-errors"
	platformstrings "caseregistry/pkg/platform/strings"
)

// Registry is the aggregate root for a cross-domain data registry.
//
// A registry is owned by a single domain but is used across domains based on
// invitations sent from the owning domain. Dependent entities (invitations,
// grants, permissions, audit entries) belong exclusively to their registry
// and are removed with it.
//
// Invariants:
//   - Name is non-empty and at most 255 characters
//   - (Domain, Slug) is unique across all registries
//   - An inactive registry grants no access regardless of invitation or
//     grant state; access checks consult IsActive first
type Registry struct {
	ID          id.RegistryID   `json:"id"`
	Domain      id.Domain       `json:"domain"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description,omitempty"`
	IsActive    bool            `json:"is_active"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	CreatedOn   time.Time       `json:"created_on"`
	ModifiedOn  time.Time       `json:"modified_on"`
}

// NewRegistry constructs an active registry owned by domain. The slug is
// derived from the name with the given stop words removed; uniqueness of
// (domain, slug) is the store's concern.
func NewRegistry(domain id.Domain, name string, stopWords map[string]struct{}, now time.Time) (*Registry, error) {
	if domain == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "owning domain is required")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "registry name cannot be empty")
	}
	if len(name) > 255 {
		return nil, dErrors.New(dErrors.CodeValidation, "registry name must be 255 characters or less")
	}
	slug := platformstrings.Slugify(name, stopWords)
	if slug == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "registry name must contain at least one non-stop word")
	}
	return &Registry{
		ID:         id.NewRegistryID(),
		Domain:     domain,
		Name:       name,
		Slug:       slug,
		IsActive:   true,
		CreatedOn:  now,
		ModifiedOn: now,
	}, nil
}

// CheckOwnership fails unless domain is the registry's owning domain. Which
// operations require ownership is the caller's decision; this only exposes
// the predicate.
func (r *Registry) CheckOwnership(domain id.Domain) error {
	if r.Domain != domain {
		return dErrors.New(dErrors.CodeForbidden, "registry is not owned by this domain")
	}
	return nil
}

// ApplyActivation flips the registry active. Returns false when the registry
// is already active, in which case no audit entry must be written.
func (r *Registry) ApplyActivation(now time.Time) bool {
	if r.IsActive {
		return false
	}
	r.IsActive = true
	r.ModifiedOn = now
	return true
}

// ApplyDeactivation flips the registry inactive. Returns false on no-op.
func (r *Registry) ApplyDeactivation(now time.Time) bool {
	if !r.IsActive {
		return false
	}
	r.IsActive = false
	r.ModifiedOn = now
	return true
}

// ApplySchema replaces the registry schema, returning the previous value for
// the audit trail.
func (r *Registry) ApplySchema(schema json.RawMessage, now time.Time) json.RawMessage {
	old := r.Schema
	r.Schema = schema
	r.ModifiedOn = now
	return old
}
