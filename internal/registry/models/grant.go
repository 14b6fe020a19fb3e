package models

import (
	"time"

	id "caseregistry/pkg/domain"
	dErrors "caseregistry/pkg/domain-errors"
	platformstrings "caseregistry/pkg/platform/strings"
)

// Grant authorizes the grantor domain's data to be visible to the grantee
// domains within a registry. Ownership of the grant lies with the granting
// domain.
//
// A grant's existence does not imply the grantees hold accepted invitations;
// access checks verify invitation state and grants independently.
type Grant struct {
	ID         id.GrantID    `json:"id"`
	RegistryID id.RegistryID `json:"registry_id"`
	FromDomain id.Domain     `json:"from_domain"`
	ToDomains  []id.Domain   `json:"to_domains"`
	CreatedOn  time.Time     `json:"created_on"`
}

// NewGrant constructs a grant from fromDomain to toDomains, deduplicating
// the grantee list. Whether fromDomain actually participates in the registry
// is checked by the service against invitation state.
func NewGrant(registryID id.RegistryID, fromDomain id.Domain, toDomains []id.Domain, now time.Time) (*Grant, error) {
	if fromDomain == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "granting domain is required")
	}
	deduped := platformstrings.DedupeAndTrim(toDomains)
	if len(deduped) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "grant requires at least one grantee domain")
	}
	return &Grant{
		ID:         id.NewGrantID(),
		RegistryID: registryID,
		FromDomain: fromDomain,
		ToDomains:  deduped,
		CreatedOn:  now,
	}, nil
}

// Targets reports whether the grant makes data visible to domain.
func (g *Grant) Targets(domain id.Domain) bool {
	for _, to := range g.ToDomains {
		if to == domain {
			return true
		}
	}
	return false
}

// Permission restricts which users within an already-access-granted domain
// may use the registry. Absence of a permission row means no restriction;
// enforcement of the group itself is delegated to the authorization layer.
type Permission struct {
	RegistryID      id.RegistryID `json:"registry_id"`
	Domain          id.Domain     `json:"domain"`
	ReadOnlyGroupID string        `json:"read_only_group_id,omitempty"`
}
