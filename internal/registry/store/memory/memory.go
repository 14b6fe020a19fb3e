// Package memory provides an in-memory registry store for tests and local
// development. It mirrors the Postgres store's constraint behavior, including
// unique-violation sentinels, so services behave identically against either.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"caseregistry/internal/registry/models"
	"caseregistry/internal/registry/store"
	id "caseregistry/pkg/domain"
	"caseregistry/pkg/platform/sentinel"
)

// InMemory implements store.Store with mutex-serialized maps.
type InMemory struct {
	mu          sync.RWMutex
	registries  map[id.RegistryID]*models.Registry
	invitations map[id.InvitationID]*models.Invitation
	grants      map[id.GrantID]*models.Grant
	permissions map[permissionKey]*models.Permission
	audit       []*models.AuditEntry
	nextAuditID int64
	invSeq      int64
	invOrder    map[id.InvitationID]int64
}

type permissionKey struct {
	registry id.RegistryID
	domain   id.Domain
}

func NewInMemory() *InMemory {
	return &InMemory{
		registries:  make(map[id.RegistryID]*models.Registry),
		invitations: make(map[id.InvitationID]*models.Invitation),
		grants:      make(map[id.GrantID]*models.Grant),
		permissions: make(map[permissionKey]*models.Permission),
		invOrder:    make(map[id.InvitationID]int64),
		nextAuditID: 1,
	}
}

func (s *InMemory) CreateRegistry(_ context.Context, registry *models.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.registries {
		if existing.Domain == registry.Domain && existing.Slug == registry.Slug {
			return sentinel.ErrConflict
		}
	}
	s.registries[registry.ID] = cloneRegistry(registry)
	return nil
}

func (s *InMemory) GetRegistry(_ context.Context, registryID id.RegistryID) (*models.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	registry, ok := s.registries[registryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRegistry(registry), nil
}

func (s *InMemory) UpdateRegistry(_ context.Context, registry *models.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registries[registry.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.registries[registry.ID] = cloneRegistry(registry)
	return nil
}

func (s *InMemory) DeleteRegistry(_ context.Context, registryID id.RegistryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registries[registryID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.registries, registryID)
	// cascade to dependents
	for invID, inv := range s.invitations {
		if inv.RegistryID == registryID {
			delete(s.invitations, invID)
			delete(s.invOrder, invID)
		}
	}
	for grantID, grant := range s.grants {
		if grant.RegistryID == registryID {
			delete(s.grants, grantID)
		}
	}
	for key := range s.permissions {
		if key.registry == registryID {
			delete(s.permissions, key)
		}
	}
	kept := s.audit[:0]
	for _, entry := range s.audit {
		if entry.RegistryID != registryID {
			kept = append(kept, entry)
		}
	}
	s.audit = kept
	return nil
}

func (s *InMemory) ListOwnedBy(_ context.Context, domain id.Domain, filter store.RegistryFilter) ([]*models.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*models.Registry
	for _, registry := range s.registries {
		if registry.Domain != domain {
			continue
		}
		if filter.ActiveOnly != nil && registry.IsActive != *filter.ActiveOnly {
			continue
		}
		result = append(result, cloneRegistry(registry))
	}
	sortRegistries(result)
	return result, nil
}

func (s *InMemory) ListAccessibleTo(_ context.Context, domain id.Domain, filter store.RegistryFilter) ([]*models.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*models.Registry
	for _, registry := range s.registries {
		if !registry.IsActive {
			continue
		}
		if filter.Slug != "" && registry.Slug != filter.Slug {
			continue
		}
		if !s.hasAcceptedInvitation(registry.ID, domain) {
			continue
		}
		if filter.RequireGrants && !s.hasGrantTo(registry.ID, domain) {
			continue
		}
		result = append(result, cloneRegistry(registry))
	}
	sortRegistries(result)
	return result, nil
}

func (s *InMemory) CreateInvitation(_ context.Context, invitation *models.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.invitations {
		if existing.RegistryID == invitation.RegistryID && existing.Domain == invitation.Domain {
			return sentinel.ErrConflict
		}
	}
	s.invSeq++
	s.invitations[invitation.ID] = cloneInvitation(invitation)
	s.invOrder[invitation.ID] = s.invSeq
	return nil
}

func (s *InMemory) GetInvitation(_ context.Context, invitationID id.InvitationID) (*models.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	invitation, ok := s.invitations[invitationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneInvitation(invitation), nil
}

func (s *InMemory) FindInvitation(_ context.Context, registryID id.RegistryID, domain id.Domain) (*models.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Invitation
	var foundSeq int64
	for invID, invitation := range s.invitations {
		if invitation.RegistryID != registryID || invitation.Domain != domain {
			continue
		}
		seq := s.invOrder[invID]
		if found == nil || seq < foundSeq {
			found = invitation
			foundSeq = seq
		}
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	return cloneInvitation(found), nil
}

func (s *InMemory) UpdateInvitation(_ context.Context, invitation *models.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invitations[invitation.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.invitations[invitation.ID] = cloneInvitation(invitation)
	return nil
}

func (s *InMemory) DeleteInvitation(_ context.Context, invitationID id.InvitationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invitations[invitationID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.invitations, invitationID)
	delete(s.invOrder, invitationID)
	return nil
}

func (s *InMemory) ListInvitations(_ context.Context, registryID id.RegistryID) ([]*models.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*models.Invitation
	for _, invitation := range s.invitations {
		if invitation.RegistryID == registryID {
			result = append(result, cloneInvitation(invitation))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return s.invOrder[result[i].ID] < s.invOrder[result[j].ID]
	})
	return result, nil
}

func (s *InMemory) CreateGrant(_ context.Context, grant *models.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grant.ID] = cloneGrant(grant)
	return nil
}

func (s *InMemory) GetGrant(_ context.Context, grantID id.GrantID) (*models.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grant, ok := s.grants[grantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneGrant(grant), nil
}

func (s *InMemory) DeleteGrant(_ context.Context, grantID id.GrantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[grantID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.grants, grantID)
	return nil
}

func (s *InMemory) ListGrants(_ context.Context, registryID id.RegistryID) ([]*models.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*models.Grant
	for _, grant := range s.grants {
		if grant.RegistryID == registryID {
			result = append(result, cloneGrant(grant))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedOn.Before(result[j].CreatedOn) })
	return result, nil
}

func (s *InMemory) ListGrantsTo(_ context.Context, registryID id.RegistryID, domain id.Domain) ([]*models.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*models.Grant
	for _, grant := range s.grants {
		if grant.RegistryID == registryID && grant.Targets(domain) {
			result = append(result, cloneGrant(grant))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedOn.Before(result[j].CreatedOn) })
	return result, nil
}

func (s *InMemory) UpsertPermission(_ context.Context, permission *models.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := permissionKey{registry: permission.RegistryID, domain: permission.Domain}
	clone := *permission
	s.permissions[key] = &clone
	return nil
}

func (s *InMemory) GetPermission(_ context.Context, registryID id.RegistryID, domain id.Domain) (*models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	permission, ok := s.permissions[permissionKey{registry: registryID, domain: domain}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *permission
	return &clone, nil
}

func (s *InMemory) AppendAuditEntry(_ context.Context, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.nextAuditID
	s.nextAuditID++
	clone := *entry
	clone.Detail = append(json.RawMessage(nil), entry.Detail...)
	s.audit = append(s.audit, &clone)
	return nil
}

func (s *InMemory) ListAuditEntries(_ context.Context, registryID id.RegistryID) ([]*models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*models.AuditEntry
	for _, entry := range s.audit {
		if entry.RegistryID == registryID {
			clone := *entry
			result = append(result, &clone)
		}
	}
	// newest first; entry IDs are assigned in append order
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (s *InMemory) hasAcceptedInvitation(registryID id.RegistryID, domain id.Domain) bool {
	for _, invitation := range s.invitations {
		if invitation.RegistryID == registryID && invitation.Domain == domain && invitation.Accepted() {
			return true
		}
	}
	return false
}

func (s *InMemory) hasGrantTo(registryID id.RegistryID, domain id.Domain) bool {
	for _, grant := range s.grants {
		if grant.RegistryID == registryID && grant.Targets(domain) {
			return true
		}
	}
	return false
}

func sortRegistries(registries []*models.Registry) {
	sort.Slice(registries, func(i, j int) bool {
		if registries[i].CreatedOn.Equal(registries[j].CreatedOn) {
			return registries[i].Slug < registries[j].Slug
		}
		return registries[i].CreatedOn.Before(registries[j].CreatedOn)
	})
}

func cloneRegistry(registry *models.Registry) *models.Registry {
	clone := *registry
	clone.Schema = append(json.RawMessage(nil), registry.Schema...)
	return &clone
}

func cloneInvitation(invitation *models.Invitation) *models.Invitation {
	clone := *invitation
	return &clone
}

func cloneGrant(grant *models.Grant) *models.Grant {
	clone := *grant
	clone.ToDomains = append([]id.Domain(nil), grant.ToDomains...)
	return &clone
}
