package handler

import (
	"encoding/json"
	"time"

	"caseregistry/internal/registry/models"
)

// RegistryResponse is the HTTP representation of a registry.
type RegistryResponse struct {
	ID          string          `json:"id"`
	Domain      string          `json:"domain"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description,omitempty"`
	IsActive    bool            `json:"is_active"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	CreatedOn   time.Time       `json:"created_on"`
	ModifiedOn  time.Time       `json:"modified_on"`
}

func fromRegistry(registry *models.Registry) RegistryResponse {
	return RegistryResponse{
		ID:          registry.ID.String(),
		Domain:      registry.Domain,
		Name:        registry.Name,
		Slug:        registry.Slug,
		Description: registry.Description,
		IsActive:    registry.IsActive,
		Schema:      registry.Schema,
		CreatedOn:   registry.CreatedOn,
		ModifiedOn:  registry.ModifiedOn,
	}
}

func fromRegistries(registries []*models.Registry) []RegistryResponse {
	out := make([]RegistryResponse, len(registries))
	for i, registry := range registries {
		out[i] = fromRegistry(registry)
	}
	return out
}

// InvitationResponse is the HTTP representation of an invitation.
type InvitationResponse struct {
	ID         string    `json:"id"`
	RegistryID string    `json:"registry_id"`
	Domain     string    `json:"domain"`
	Status     string    `json:"status"`
	CreatedOn  time.Time `json:"created_on"`
	ModifiedOn time.Time `json:"modified_on"`
}

func fromInvitation(invitation *models.Invitation) InvitationResponse {
	return InvitationResponse{
		ID:         invitation.ID.String(),
		RegistryID: invitation.RegistryID.String(),
		Domain:     invitation.Domain,
		Status:     string(invitation.Status),
		CreatedOn:  invitation.CreatedOn,
		ModifiedOn: invitation.ModifiedOn,
	}
}

// GrantResponse is the HTTP representation of a grant.
type GrantResponse struct {
	ID         string    `json:"id"`
	RegistryID string    `json:"registry_id"`
	FromDomain string    `json:"from_domain"`
	ToDomains  []string  `json:"to_domains"`
	CreatedOn  time.Time `json:"created_on"`
}

func fromGrant(grant *models.Grant) GrantResponse {
	return GrantResponse{
		ID:         grant.ID.String(),
		RegistryID: grant.RegistryID.String(),
		FromDomain: grant.FromDomain,
		ToDomains:  grant.ToDomains,
		CreatedOn:  grant.CreatedOn,
	}
}

// DomainSetResponse carries a set of domains as a sorted JSON list.
type DomainSetResponse struct {
	Domains []string `json:"domains"`
}

// PermissionResponse is the HTTP representation of a domain's permission.
type PermissionResponse struct {
	RegistryID      string `json:"registry_id"`
	Domain          string `json:"domain"`
	ReadOnlyGroupID string `json:"read_only_group_id,omitempty"`
}

// AuditEntryResponse is the HTTP representation of one audit log row.
type AuditEntryResponse struct {
	ID                int64           `json:"id"`
	Date              time.Time       `json:"date"`
	Action            string          `json:"action"`
	Domain            string          `json:"domain"`
	User              string          `json:"user"`
	RelatedObjectID   string          `json:"related_object_id"`
	RelatedObjectType string          `json:"related_object_type"`
	Detail            json.RawMessage `json:"detail,omitempty"`
}

func fromAuditEntries(entries []*models.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, len(entries))
	for i, entry := range entries {
		out[i] = AuditEntryResponse{
			ID:                entry.ID,
			Date:              entry.Date,
			Action:            string(entry.Action),
			Domain:            entry.Domain,
			User:              entry.User.String(),
			RelatedObjectID:   entry.RelatedObjectID,
			RelatedObjectType: string(entry.RelatedObjectType),
			Detail:            entry.Detail,
		}
	}
	return out
}
