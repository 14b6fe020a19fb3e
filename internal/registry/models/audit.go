package models

import (
	"encoding/json"
	"time"

	id "caseregistry/pkg/domain"
)

// AuditAction classifies user-level registry interactions (not system level).
type AuditAction string

const (
	ActionActivated          AuditAction = "activated"
	ActionDeactivated        AuditAction = "deactivated"
	ActionInvitationAdded    AuditAction = "invitation_added"
	ActionInvitationRemoved  AuditAction = "invitation_removed"
	ActionInvitationAccepted AuditAction = "invitation_accepted"
	ActionInvitationRejected AuditAction = "invitation_rejected"
	ActionGrantAdded         AuditAction = "grant_added"
	ActionGrantRemoved       AuditAction = "grant_removed"
	ActionSchemaChanged      AuditAction = "schema"
	ActionDataAccessed       AuditAction = "data_accessed"
)

// RelatedObjectType tags the entity an audit entry refers to.
type RelatedObjectType string

const (
	RelatedRegistry    RelatedObjectType = "registry"
	RelatedInvitation  RelatedObjectType = "invitation"
	RelatedGrant       RelatedObjectType = "grant"
	RelatedReport      RelatedObjectType = "ucr"
	RelatedApplication RelatedObjectType = "application"
)

// AuditEntry is one row of the append-only registry audit log. Entries are
// written in the same transaction as the mutation they record and are never
// updated or deleted.
type AuditEntry struct {
	ID                int64             `json:"id"`
	RegistryID        id.RegistryID     `json:"registry_id"`
	Date              time.Time         `json:"date"`
	Action            AuditAction       `json:"action"`
	Domain            id.Domain         `json:"domain"`
	User              id.UserID         `json:"user"`
	RelatedObjectID   string            `json:"related_object_id"`
	RelatedObjectType RelatedObjectType `json:"related_object_type"`
	Detail            json.RawMessage   `json:"detail,omitempty"`
}

// DataResource is the closed set of objects whose registry-backed reads are
// recorded as data_accessed entries. Callers resolve the concrete variant
// before invoking the core; there is no runtime attribute probing.
type DataResource interface {
	auditRef() (objectID string, objectType RelatedObjectType)
}

// ReportConfig identifies a custom report configuration reading through the
// registry.
type ReportConfig struct {
	ID string
}

// Application identifies a mobile application performing registry-backed
// case search.
type Application struct {
	ID string
}

func (r ReportConfig) auditRef() (string, RelatedObjectType) { return r.ID, RelatedReport }
func (a Application) auditRef() (string, RelatedObjectType)  { return a.ID, RelatedApplication }

// ResolveDataResource returns the audit reference of a resource, or ok=false
// when the resource is absent or carries no identifier. Callers treat false
// as a programmer error in the calling layer.
func ResolveDataResource(resource DataResource) (objectID string, objectType RelatedObjectType, ok bool) {
	if resource == nil {
		return "", "", false
	}
	objectID, objectType = resource.auditRef()
	if objectID == "" {
		return "", "", false
	}
	return objectID, objectType, true
}
