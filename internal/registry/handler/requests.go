package handler

import (
	"encoding/json"
	"strings"

	"caseregistry/internal/registry/models"
	id "caseregistry/pkg/domain"
	dErrors "caseregistry/pkg/domain-errors"
)

// CreateRegistryRequest is the HTTP request body for POST /domains/{domain}/registries.
type CreateRegistryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Validate validates and normalizes the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateRegistryRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(r.Name) > 255 {
		return dErrors.New(dErrors.CodeValidation, "name must be at most 255 characters")
	}
	r.Description = strings.TrimSpace(r.Description)
	return nil
}

// InviteDomainRequest is the HTTP request body for inviting a domain.
type InviteDomainRequest struct {
	Domain string `json:"domain"`
}

func (r *InviteDomainRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Domain = strings.TrimSpace(r.Domain)
	if r.Domain == "" {
		return dErrors.New(dErrors.CodeValidation, "domain is required")
	}
	return nil
}

// CreateGrantRequest is the HTTP request body for creating a grant.
type CreateGrantRequest struct {
	ToDomains []string `json:"to_domains"`
}

func (r *CreateGrantRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.ToDomains) == 0 {
		return dErrors.New(dErrors.CodeValidation, "to_domains is required")
	}
	return nil
}

// GranteeDomains returns the typed grantee list.
func (r *CreateGrantRequest) GranteeDomains() []id.Domain {
	domains := make([]id.Domain, len(r.ToDomains))
	copy(domains, r.ToDomains)
	return domains
}

// SetSchemaRequest is the HTTP request body for replacing the registry schema.
type SetSchemaRequest struct {
	Schema json.RawMessage `json:"schema"`
}

func (r *SetSchemaRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Schema) == 0 {
		return dErrors.New(dErrors.CodeValidation, "schema is required")
	}
	if !json.Valid(r.Schema) {
		return dErrors.New(dErrors.CodeValidation, "schema must be valid JSON")
	}
	return nil
}

// SetPermissionRequest is the HTTP request body for restricting registry use
// within a domain. An empty group ID clears the restriction.
type SetPermissionRequest struct {
	Domain          string `json:"domain"`
	ReadOnlyGroupID string `json:"read_only_group_id"`
}

func (r *SetPermissionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Domain = strings.TrimSpace(r.Domain)
	if r.Domain == "" {
		return dErrors.New(dErrors.CodeValidation, "domain is required")
	}
	return nil
}

// LogDataAccessRequest is the HTTP request body for recording a
// registry-backed data read.
type LogDataAccessRequest struct {
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Filters      json.RawMessage `json:"filters"`

	parsedResource models.DataResource
}

func (r *LogDataAccessRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.ResourceID = strings.TrimSpace(r.ResourceID)
	if r.ResourceID == "" {
		return dErrors.New(dErrors.CodeValidation, "resource_id is required")
	}
	switch strings.TrimSpace(r.ResourceType) {
	case "ucr":
		r.parsedResource = models.ReportConfig{ID: r.ResourceID}
	case "application":
		r.parsedResource = models.Application{ID: r.ResourceID}
	default:
		return dErrors.New(dErrors.CodeValidation, "resource_type must be one of: ucr, application")
	}
	if len(r.Filters) > 0 && !json.Valid(r.Filters) {
		return dErrors.New(dErrors.CodeValidation, "filters must be valid JSON")
	}
	return nil
}

// ParsedResource returns the validated data resource.
func (r *LogDataAccessRequest) ParsedResource() models.DataResource {
	return r.parsedResource
}
