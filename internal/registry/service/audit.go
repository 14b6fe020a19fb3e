package service

import (
	"context"
	"encoding/json"

	"caseregistry/internal/registry/models"
	"caseregistry/internal/registry/store"
	id "caseregistry/pkg/domain"
	platformaudit "caseregistry/pkg/platform/audit"
	"caseregistry/pkg/requestcontext"
)

// EventForwarder receives committed audit entries for asynchronous fan-out.
// The in-transaction audit row is the durable record; forwarding is best
// effort and must never fail the mutation.
type EventForwarder interface {
	Emit(ctx context.Context, event platformaudit.Event)
}

// auditRecorder writes registry audit rows. It is constructed with the
// service (not lazily) so its lifetime is tied to the store it writes
// through; record must run inside the mutation's transaction.
type auditRecorder struct {
	store     store.Store
	forwarder EventForwarder
}

func newAuditRecorder(st store.Store, forwarder EventForwarder) *auditRecorder {
	return &auditRecorder{store: st, forwarder: forwarder}
}

// record appends one audit row. The returned entry carries the assigned ID.
func (a *auditRecorder) record(ctx context.Context, entry *models.AuditEntry) (*models.AuditEntry, error) {
	entry.Date = requestcontext.Now(ctx)
	entry.User = requestcontext.UserID(ctx)
	if err := a.store.AppendAuditEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (a *auditRecorder) registryActivated(ctx context.Context, registry *models.Registry, activated bool) (*models.AuditEntry, error) {
	action := models.ActionActivated
	if !activated {
		action = models.ActionDeactivated
	}
	return a.record(ctx, &models.AuditEntry{
		RegistryID:        registry.ID,
		Action:            action,
		Domain:            registry.Domain,
		RelatedObjectID:   registry.ID.String(),
		RelatedObjectType: models.RelatedRegistry,
	})
}

func (a *auditRecorder) invitationAdded(ctx context.Context, registryID id.RegistryID, invitation *models.Invitation) (*models.AuditEntry, error) {
	return a.record(ctx, &models.AuditEntry{
		RegistryID:        registryID,
		Action:            models.ActionInvitationAdded,
		Domain:            invitation.Domain,
		RelatedObjectID:   invitation.ID.String(),
		RelatedObjectType: models.RelatedInvitation,
		Detail:            mustDetail(map[string]any{}),
	})
}

func (a *auditRecorder) invitationRemoved(ctx context.Context, registryID id.RegistryID, invitation *models.Invitation) (*models.AuditEntry, error) {
	return a.record(ctx, &models.AuditEntry{
		RegistryID:        registryID,
		Action:            models.ActionInvitationRemoved,
		Domain:            invitation.Domain,
		RelatedObjectID:   invitation.ID.String(),
		RelatedObjectType: models.RelatedInvitation,
		Detail:            mustDetail(map[string]any{"invitation_status": invitation.Status}),
	})
}

func (a *auditRecorder) invitationResolved(ctx context.Context, invitation *models.Invitation, accepted bool) (*models.AuditEntry, error) {
	action := models.ActionInvitationAccepted
	if !accepted {
		action = models.ActionInvitationRejected
	}
	return a.record(ctx, &models.AuditEntry{
		RegistryID:        invitation.RegistryID,
		Action:            action,
		Domain:            invitation.Domain,
		RelatedObjectID:   invitation.ID.String(),
		RelatedObjectType: models.RelatedInvitation,
	})
}

func (a *auditRecorder) grantChanged(ctx context.Context, grant *models.Grant, added bool) (*models.AuditEntry, error) {
	action := models.ActionGrantAdded
	if !added {
		action = models.ActionGrantRemoved
	}
	return a.record(ctx, &models.AuditEntry{
		RegistryID:        grant.RegistryID,
		Action:            action,
		Domain:            grant.FromDomain,
		RelatedObjectID:   grant.ID.String(),
		RelatedObjectType: models.RelatedGrant,
		Detail:            mustDetail(map[string]any{"to_domains": grant.ToDomains}),
	})
}

func (a *auditRecorder) schemaChanged(ctx context.Context, registry *models.Registry, newSchema, oldSchema json.RawMessage) (*models.AuditEntry, error) {
	return a.record(ctx, &models.AuditEntry{
		RegistryID:        registry.ID,
		Action:            models.ActionSchemaChanged,
		Domain:            registry.Domain,
		RelatedObjectID:   registry.ID.String(),
		RelatedObjectType: models.RelatedRegistry,
		Detail: mustDetail(map[string]any{
			"new_schema": rawOrNull(newSchema),
			"old_schema": rawOrNull(oldSchema),
		}),
	})
}

func (a *auditRecorder) dataAccessed(ctx context.Context, registryID id.RegistryID, domain id.Domain, objectID string, objectType models.RelatedObjectType, filters json.RawMessage) (*models.AuditEntry, error) {
	return a.record(ctx, &models.AuditEntry{
		RegistryID:        registryID,
		Action:            models.ActionDataAccessed,
		Domain:            domain,
		RelatedObjectID:   objectID,
		RelatedObjectType: objectType,
		Detail:            filters,
	})
}

// forward hands a committed entry to the async forwarder. Call only after
// the transaction has committed.
func (a *auditRecorder) forward(ctx context.Context, registry *models.Registry, entry *models.AuditEntry) {
	if a.forwarder == nil || entry == nil {
		return
	}
	a.forwarder.Emit(ctx, platformaudit.Event{
		Timestamp:         entry.Date,
		Registry:          registry.Slug,
		Domain:            entry.Domain,
		User:              entry.User.String(),
		Action:            string(entry.Action),
		RelatedObjectID:   entry.RelatedObjectID,
		RelatedObjectType: string(entry.RelatedObjectType),
		Detail:            entry.Detail,
		RequestID:         requestcontext.RequestID(ctx),
	})
}

func mustDetail(detail map[string]any) json.RawMessage {
	raw, err := json.Marshal(detail)
	if err != nil {
		// detail maps are built from plain values; marshal cannot fail
		return json.RawMessage(`{}`)
	}
	return raw
}

func rawOrNull(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
