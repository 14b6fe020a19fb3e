package models

import (
	"time"

	id "caseregistry/pkg/domain"
	dErrors "caseregistry/pkg/domain-errors"
)

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
)

// Invitation records a domain's membership in a registry. The owning domain
// creates invitations which the invited domains accept or reject. Without an
// accepted invitation a domain cannot access any feature of the registry.
//
// Status transitions: pending -> accepted | rejected. Accepted and rejected
// are terminal; re-applying the current terminal state is a no-op (no audit
// entry), flipping between terminal states is an invariant violation.
type Invitation struct {
	ID         id.InvitationID  `json:"id"`
	RegistryID id.RegistryID    `json:"registry_id"`
	Domain     id.Domain        `json:"domain"`
	Status     InvitationStatus `json:"status"`
	CreatedOn  time.Time        `json:"created_on"`
	ModifiedOn time.Time        `json:"modified_on"`
}

// NewInvitation constructs an invitation in the given initial status. The
// owning domain's self-invitation starts accepted; all others start pending.
func NewInvitation(registryID id.RegistryID, domain id.Domain, status InvitationStatus, now time.Time) (*Invitation, error) {
	if domain == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "invited domain is required")
	}
	return &Invitation{
		ID:         id.NewInvitationID(),
		RegistryID: registryID,
		Domain:     domain,
		Status:     status,
		CreatedOn:  now,
		ModifiedOn: now,
	}, nil
}

func (i *Invitation) Accepted() bool { return i.Status == InvitationAccepted }

// ApplyAccept transitions to accepted. Returns false on a no-op (already
// accepted) and an error when the invitation was already rejected.
func (i *Invitation) ApplyAccept(now time.Time) (bool, error) {
	return i.transition(InvitationAccepted, now)
}

// ApplyReject transitions to rejected. Returns false on a no-op (already
// rejected) and an error when the invitation was already accepted.
func (i *Invitation) ApplyReject(now time.Time) (bool, error) {
	return i.transition(InvitationRejected, now)
}

func (i *Invitation) transition(target InvitationStatus, now time.Time) (bool, error) {
	if i.Status == target {
		return false, nil
	}
	if i.Status != InvitationPending {
		return false, dErrors.Newf(dErrors.CodeInvariantViolation,
			"invitation is already %s", i.Status)
	}
	i.Status = target
	i.ModifiedOn = now
	return true, nil
}
