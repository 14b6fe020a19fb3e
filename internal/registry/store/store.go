// Package store defines the persistence contract for the registry aggregate.
//
// Implementations return pkg/platform/sentinel errors for infrastructure
// facts (ErrNotFound, ErrConflict); the service layer translates them into
// domain errors. Uniqueness of (domain, slug) and (registry, domain) is
// enforced by the store so concurrent creation surfaces as ErrConflict
// rather than duplicate rows.
package store

import (
	"context"

	"caseregistry/internal/registry/models"
	id "caseregistry/pkg/domain"
)

// RegistryFilter narrows registry list queries.
type RegistryFilter struct {
	// ActiveOnly limits results to active (true) or inactive (false)
	// registries when set.
	ActiveOnly *bool
	// Slug limits results to a single slug when non-empty.
	Slug string
	// RequireGrants limits results to registries in which the querying
	// domain is the target of at least one grant.
	RequireGrants bool
}

// Store persists the registry aggregate: registries plus their invitations,
// grants, permissions, and append-only audit entries. Deleting a registry
// cascades to all dependents.
type Store interface {
	CreateRegistry(ctx context.Context, registry *models.Registry) error
	GetRegistry(ctx context.Context, registryID id.RegistryID) (*models.Registry, error)
	UpdateRegistry(ctx context.Context, registry *models.Registry) error
	DeleteRegistry(ctx context.Context, registryID id.RegistryID) error
	// ListOwnedBy returns registries owned by domain. Only the ActiveOnly
	// filter field applies.
	ListOwnedBy(ctx context.Context, domain id.Domain, filter RegistryFilter) ([]*models.Registry, error)
	// ListAccessibleTo returns active registries in which domain holds an
	// accepted invitation, optionally narrowed by slug or to registries
	// granting data to domain.
	ListAccessibleTo(ctx context.Context, domain id.Domain, filter RegistryFilter) ([]*models.Registry, error)

	CreateInvitation(ctx context.Context, invitation *models.Invitation) error
	GetInvitation(ctx context.Context, invitationID id.InvitationID) (*models.Invitation, error)
	// FindInvitation returns the invitation for (registry, domain). With the
	// uniqueness constraint there is at most one; should duplicates ever
	// exist the earliest-created row wins deterministically.
	FindInvitation(ctx context.Context, registryID id.RegistryID, domain id.Domain) (*models.Invitation, error)
	UpdateInvitation(ctx context.Context, invitation *models.Invitation) error
	DeleteInvitation(ctx context.Context, invitationID id.InvitationID) error
	ListInvitations(ctx context.Context, registryID id.RegistryID) ([]*models.Invitation, error)

	CreateGrant(ctx context.Context, grant *models.Grant) error
	GetGrant(ctx context.Context, grantID id.GrantID) (*models.Grant, error)
	DeleteGrant(ctx context.Context, grantID id.GrantID) error
	ListGrants(ctx context.Context, registryID id.RegistryID) ([]*models.Grant, error)
	// ListGrantsTo returns grants in the registry whose target set contains
	// domain.
	ListGrantsTo(ctx context.Context, registryID id.RegistryID, domain id.Domain) ([]*models.Grant, error)

	UpsertPermission(ctx context.Context, permission *models.Permission) error
	// GetPermission returns ErrNotFound when the domain is unrestricted.
	GetPermission(ctx context.Context, registryID id.RegistryID, domain id.Domain) (*models.Permission, error)

	// AppendAuditEntry writes one immutable audit row, assigning entry.ID.
	AppendAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	// ListAuditEntries returns the registry's audit trail, newest first.
	ListAuditEntries(ctx context.Context, registryID id.RegistryID) ([]*models.AuditEntry, error)
}
