package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"caseregistry/internal/registry/models"
	"caseregistry/internal/registry/store"
	id "caseregistry/pkg/domain"
	"caseregistry/pkg/platform/sentinel"
)

type RegistryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *RegistryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestRegistryStoreSuite(t *testing.T) {
	suite.Run(t, new(RegistryStoreSuite))
}

func (s *RegistryStoreSuite) newRegistry(domain id.Domain, name string) *models.Registry {
	reg, err := models.NewRegistry(domain, name, nil, time.Now().UTC())
	s.Require().NoError(err)
	return reg
}

func (s *RegistryStoreSuite) newInvitation(registryID id.RegistryID, domain id.Domain, status models.InvitationStatus) *models.Invitation {
	inv, err := models.NewInvitation(registryID, domain, status, time.Now().UTC())
	s.Require().NoError(err)
	return inv
}

// TestRegistryCreationAndLookups verifies create, fetch and the slug
// uniqueness constraint.
func (s *RegistryStoreSuite) TestRegistryCreationAndLookups() {
	s.Run("creates and finds registry by ID", func() {
		reg := s.newRegistry("alpha", "Referral Registry")
		s.Require().NoError(s.store.CreateRegistry(s.ctx, reg))

		found, err := s.store.GetRegistry(s.ctx, reg.ID)
		s.Require().NoError(err)
		s.Equal(reg.Slug, found.Slug)
	})

	s.Run("returns ErrNotFound for unknown ID", func() {
		_, err := s.store.GetRegistry(s.ctx, id.NewRegistryID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects duplicate (domain, slug)", func() {
		first := s.newRegistry("gamma", "Patient Registry")
		second := s.newRegistry("gamma", "Patient Registry")

		s.Require().NoError(s.store.CreateRegistry(s.ctx, first))
		s.Require().ErrorIs(s.store.CreateRegistry(s.ctx, second), sentinel.ErrConflict)
	})

	s.Run("same slug allowed across domains", func() {
		first := s.newRegistry("delta", "Shared Registry")
		second := s.newRegistry("epsilon", "Shared Registry")

		s.Require().NoError(s.store.CreateRegistry(s.ctx, first))
		s.Require().NoError(s.store.CreateRegistry(s.ctx, second))
	})
}

// TestInvitationUniqueness verifies the (registry, domain) constraint and
// deterministic lookup order.
func (s *RegistryStoreSuite) TestInvitationUniqueness() {
	reg := s.newRegistry("alpha", "Invitations")
	s.Require().NoError(s.store.CreateRegistry(s.ctx, reg))

	s.Run("rejects duplicate (registry, domain)", func() {
		first := s.newInvitation(reg.ID, "beta", models.InvitationPending)
		second := s.newInvitation(reg.ID, "beta", models.InvitationPending)

		s.Require().NoError(s.store.CreateInvitation(s.ctx, first))
		s.Require().ErrorIs(s.store.CreateInvitation(s.ctx, second), sentinel.ErrConflict)
	})

	s.Run("finds invitation by registry and domain", func() {
		found, err := s.store.FindInvitation(s.ctx, reg.ID, "beta")
		s.Require().NoError(err)
		s.Equal(id.Domain("beta"), found.Domain)
	})

	s.Run("missing invitation returns ErrNotFound", func() {
		_, err := s.store.FindInvitation(s.ctx, reg.ID, "nobody")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("lists invitations in creation order", func() {
		later := s.newInvitation(reg.ID, "gamma", models.InvitationPending)
		s.Require().NoError(s.store.CreateInvitation(s.ctx, later))

		invitations, err := s.store.ListInvitations(s.ctx, reg.ID)
		s.Require().NoError(err)
		s.Require().Len(invitations, 2)
		s.Equal(id.Domain("beta"), invitations[0].Domain)
		s.Equal(id.Domain("gamma"), invitations[1].Domain)
	})
}

// TestAccessibleTo verifies the accessibility query respects the active flag,
// invitation status, slug filter, and grant requirement.
func (s *RegistryStoreSuite) TestAccessibleTo() {
	now := time.Now().UTC()
	reg := s.newRegistry("alpha", "Visible Registry")
	s.Require().NoError(s.store.CreateRegistry(s.ctx, reg))

	inv := s.newInvitation(reg.ID, "beta", models.InvitationAccepted)
	s.Require().NoError(s.store.CreateInvitation(s.ctx, inv))

	s.Run("accepted invitation on active registry is visible", func() {
		registries, err := s.store.ListAccessibleTo(s.ctx, "beta", store.RegistryFilter{})
		s.Require().NoError(err)
		s.Len(registries, 1)
	})

	s.Run("slug filter narrows results", func() {
		registries, err := s.store.ListAccessibleTo(s.ctx, "beta", store.RegistryFilter{Slug: "other"})
		s.Require().NoError(err)
		s.Empty(registries)
	})

	s.Run("grant requirement excludes registries without grants", func() {
		registries, err := s.store.ListAccessibleTo(s.ctx, "beta", store.RegistryFilter{RequireGrants: true})
		s.Require().NoError(err)
		s.Empty(registries)

		grant, err := models.NewGrant(reg.ID, "alpha", []id.Domain{"beta"}, now)
		s.Require().NoError(err)
		s.Require().NoError(s.store.CreateGrant(s.ctx, grant))

		registries, err = s.store.ListAccessibleTo(s.ctx, "beta", store.RegistryFilter{RequireGrants: true})
		s.Require().NoError(err)
		s.Len(registries, 1)
	})

	s.Run("inactive registry is never accessible", func() {
		reg.ApplyDeactivation(now)
		s.Require().NoError(s.store.UpdateRegistry(s.ctx, reg))

		registries, err := s.store.ListAccessibleTo(s.ctx, "beta", store.RegistryFilter{})
		s.Require().NoError(err)
		s.Empty(registries)
	})

	s.Run("pending invitation is not accessible", func() {
		reg.ApplyActivation(now)
		s.Require().NoError(s.store.UpdateRegistry(s.ctx, reg))

		pending := s.newInvitation(reg.ID, "gamma", models.InvitationPending)
		s.Require().NoError(s.store.CreateInvitation(s.ctx, pending))

		registries, err := s.store.ListAccessibleTo(s.ctx, "gamma", store.RegistryFilter{})
		s.Require().NoError(err)
		s.Empty(registries)
	})
}

// TestGrantsTo verifies grant target queries.
func (s *RegistryStoreSuite) TestGrantsTo() {
	now := time.Now().UTC()
	reg := s.newRegistry("alpha", "Grants")
	s.Require().NoError(s.store.CreateRegistry(s.ctx, reg))

	grant, err := models.NewGrant(reg.ID, "alpha", []id.Domain{"beta", "gamma"}, now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateGrant(s.ctx, grant))

	grants, err := s.store.ListGrantsTo(s.ctx, reg.ID, "beta")
	s.Require().NoError(err)
	s.Require().Len(grants, 1)
	s.Equal(id.Domain("alpha"), grants[0].FromDomain)

	grants, err = s.store.ListGrantsTo(s.ctx, reg.ID, "alpha")
	s.Require().NoError(err)
	s.Empty(grants)
}

// TestPermissions verifies the unrestricted-by-default permission contract.
func (s *RegistryStoreSuite) TestPermissions() {
	reg := s.newRegistry("alpha", "Permissions")
	s.Require().NoError(s.store.CreateRegistry(s.ctx, reg))

	_, err := s.store.GetPermission(s.ctx, reg.ID, "beta")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	perm := &models.Permission{RegistryID: reg.ID, Domain: "beta", ReadOnlyGroupID: "group-1"}
	s.Require().NoError(s.store.UpsertPermission(s.ctx, perm))

	found, err := s.store.GetPermission(s.ctx, reg.ID, "beta")
	s.Require().NoError(err)
	s.Equal("group-1", found.ReadOnlyGroupID)

	perm.ReadOnlyGroupID = "group-2"
	s.Require().NoError(s.store.UpsertPermission(s.ctx, perm))

	found, err = s.store.GetPermission(s.ctx, reg.ID, "beta")
	s.Require().NoError(err)
	s.Equal("group-2", found.ReadOnlyGroupID)
}

// TestAuditAppendOnly verifies ID assignment and newest-first listing.
func (s *RegistryStoreSuite) TestAuditAppendOnly() {
	reg := s.newRegistry("alpha", "Audit")
	s.Require().NoError(s.store.CreateRegistry(s.ctx, reg))

	first := &models.AuditEntry{RegistryID: reg.ID, Action: models.ActionActivated, Domain: "alpha"}
	second := &models.AuditEntry{RegistryID: reg.ID, Action: models.ActionDeactivated, Domain: "alpha"}

	s.Require().NoError(s.store.AppendAuditEntry(s.ctx, first))
	s.Require().NoError(s.store.AppendAuditEntry(s.ctx, second))
	s.Greater(second.ID, first.ID)

	entries, err := s.store.ListAuditEntries(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(models.ActionDeactivated, entries[0].Action)
	s.Equal(models.ActionActivated, entries[1].Action)
}

// TestCascadeDelete verifies registry deletion removes all dependents.
func (s *RegistryStoreSuite) TestCascadeDelete() {
	now := time.Now().UTC()
	reg := s.newRegistry("alpha", "Doomed")
	s.Require().NoError(s.store.CreateRegistry(s.ctx, reg))

	inv := s.newInvitation(reg.ID, "beta", models.InvitationAccepted)
	s.Require().NoError(s.store.CreateInvitation(s.ctx, inv))
	grant, err := models.NewGrant(reg.ID, "alpha", []id.Domain{"beta"}, now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateGrant(s.ctx, grant))
	s.Require().NoError(s.store.AppendAuditEntry(s.ctx, &models.AuditEntry{RegistryID: reg.ID, Action: models.ActionActivated}))

	s.Require().NoError(s.store.DeleteRegistry(s.ctx, reg.ID))

	_, err = s.store.GetInvitation(s.ctx, inv.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.GetGrant(s.ctx, grant.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	entries, err := s.store.ListAuditEntries(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Empty(entries)
}
