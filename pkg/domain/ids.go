// Package domain defines the typed identifiers shared across features.
//
// UUID-backed IDs get distinct Go types so a grant ID can never be passed
// where an invitation ID is expected. Domains and cases are identified by
// externally-assigned strings (a tenant name, a case GUID from the case
// store) and stay string-typed.
package domain

import (
	"github.com/google/uuid"

	dErrors "caseregistry/pkg/domain-errors"
)

type (
	// RegistryID identifies a data registry.
	RegistryID uuid.UUID
	// InvitationID identifies a registry invitation.
	InvitationID uuid.UUID
	// GrantID identifies a registry grant.
	GrantID uuid.UUID
	// UserID identifies the acting user attributed in audit entries. The
	// core never authenticates it; it is supplied by the request layer.
	UserID uuid.UUID
)

// Domain is a tenant name. Domains are created and validated outside this
// system, so no parsing is enforced here beyond non-emptiness at call sites.
type Domain = string

// CaseID identifies a case record in the external case store.
type CaseID = string

func (id RegistryID) String() string   { return uuid.UUID(id).String() }
func (id InvitationID) String() string { return uuid.UUID(id).String() }
func (id GrantID) String() string      { return uuid.UUID(id).String() }
func (id UserID) String() string       { return uuid.UUID(id).String() }

func (id RegistryID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id InvitationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id GrantID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

// NewRegistryID returns a fresh random registry ID.
func NewRegistryID() RegistryID { return RegistryID(uuid.New()) }

// NewInvitationID returns a fresh random invitation ID.
func NewInvitationID() InvitationID { return InvitationID(uuid.New()) }

// NewGrantID returns a fresh random grant ID.
func NewGrantID() GrantID { return GrantID(uuid.New()) }

// NewUserID returns a fresh random user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// ParseRegistryID parses a registry ID from its string form. IDs must be
// valid, non-nil UUIDs; anything else is an input error at the trust boundary.
func ParseRegistryID(s string) (RegistryID, error) {
	u, err := parseUUID(s, "registry id")
	return RegistryID(u), err
}

// ParseUserID parses an acting-user ID from its string form.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseInvitationID parses an invitation ID from its string form.
func ParseInvitationID(s string) (InvitationID, error) {
	u, err := parseUUID(s, "invitation id")
	return InvitationID(u), err
}

// ParseGrantID parses a grant ID from its string form.
func ParseGrantID(s string) (GrantID, error) {
	u, err := parseUUID(s, "grant id")
	return GrantID(u), err
}

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be the nil UUID", kind)
	}
	return u, nil
}
