// Package service implements the registry access controller.
//
// Every mutation runs inside a transaction and writes exactly one audit row;
// idempotent no-ops (re-activating an active registry, re-accepting an
// accepted invitation) write none. Committed entries are additionally handed
// to an async forwarder for downstream consumers; forwarding never affects
// the mutation's outcome.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"caseregistry/internal/registry/metrics"
	"caseregistry/internal/registry/models"
	"caseregistry/internal/registry/store"
	id "caseregistry/pkg/domain"
	dErrors "caseregistry/pkg/domain-errors"
	"caseregistry/pkg/platform/sentinel"
	"caseregistry/pkg/platform/tx"
	"caseregistry/pkg/requestcontext"
)

// Service coordinates registry mutations, access checks and audit emission.
type Service struct {
	store     store.Store
	txRunner  tx.Runner
	audit     *auditRecorder
	logger    *slog.Logger
	metrics   *metrics.Metrics
	stopWords map[string]struct{}
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithForwarder attaches an async sink that receives committed audit entries.
func WithForwarder(forwarder EventForwarder) Option {
	return func(s *Service) { s.audit.forwarder = forwarder }
}

// WithStopWords sets the words dropped during slug derivation.
func WithStopWords(words []string) Option {
	return func(s *Service) {
		s.stopWords = make(map[string]struct{}, len(words))
		for _, w := range words {
			s.stopWords[w] = struct{}{}
		}
	}
}

func New(st store.Store, txRunner tx.Runner, opts ...Option) *Service {
	s := &Service{
		store:    st,
		txRunner: txRunner,
		audit:    newAuditRecorder(st, nil),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create provisions a registry owned by domain together with the owner's
// auto-accepted invitation. The invitation is what later access checks key
// on, so the owner participates from the first moment.
func (s *Service) Create(ctx context.Context, domain id.Domain, name, description string) (*models.Registry, error) {
	now := requestcontext.Now(ctx)
	registry, err := models.NewRegistry(domain, name, s.stopWords, now)
	if err != nil {
		return nil, err
	}
	registry.Description = description

	invitation, err := models.NewInvitation(registry.ID, domain, models.InvitationAccepted, now)
	if err != nil {
		return nil, err
	}

	var entry *models.AuditEntry
	err = s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateRegistry(ctx, registry); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodeConflict,
					"registry with slug %q already exists in domain %q", registry.Slug, domain)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "creating registry")
		}
		if err := s.store.CreateInvitation(ctx, invitation); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "creating owner invitation")
		}
		entry, err = s.audit.invitationAdded(ctx, registry.ID, invitation)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "recording audit entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, registry, entry)
	if s.metrics != nil {
		s.metrics.IncrementRegistriesCreated()
	}
	s.logger.InfoContext(ctx, "registry created",
		slog.String("registry_id", registry.ID.String()),
		slog.String("domain", registry.Domain),
		slog.String("slug", registry.Slug))
	return registry, nil
}

// Activate flips the registry active. Idempotent: activating an active
// registry succeeds without writing an audit entry.
func (s *Service) Activate(ctx context.Context, registryID id.RegistryID) (*models.Registry, error) {
	return s.setActive(ctx, registryID, true)
}

// Deactivate flips the registry inactive, revoking all access until it is
// activated again. Idempotent like Activate.
func (s *Service) Deactivate(ctx context.Context, registryID id.RegistryID) (*models.Registry, error) {
	return s.setActive(ctx, registryID, false)
}

func (s *Service) setActive(ctx context.Context, registryID id.RegistryID, active bool) (*models.Registry, error) {
	var (
		registry *models.Registry
		entry    *models.AuditEntry
	)
	err := s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		registry, err = s.getRegistry(ctx, registryID)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		var changed bool
		if active {
			changed = registry.ApplyActivation(now)
		} else {
			changed = registry.ApplyDeactivation(now)
		}
		if !changed {
			return nil
		}
		if err := s.store.UpdateRegistry(ctx, registry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "updating registry")
		}
		entry, err = s.audit.registryActivated(ctx, registry, active)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "recording audit entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, registry, entry)
	return registry, nil
}

// Get returns the registry without any access gating. Callers that act on
// behalf of a non-owning domain pair it with CheckAccess.
func (s *Service) Get(ctx context.Context, registryID id.RegistryID) (*models.Registry, error) {
	return s.getRegistry(ctx, registryID)
}

// CheckAccess reports whether domain may use the registry: the registry must
// be active and the domain must hold an accepted invitation. Grants are
// deliberately not consulted; they scope which data is visible, not whether
// the registry is usable at all.
func (s *Service) CheckAccess(ctx context.Context, registryID id.RegistryID, domain id.Domain) error {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveCheckAccess(start)
		}
	}()

	registry, err := s.getRegistry(ctx, registryID)
	if err != nil {
		return err
	}
	if !registry.IsActive {
		return s.deny(ctx, registry, domain, "registry is not active")
	}
	invitation, err := s.store.FindInvitation(ctx, registryID, domain)
	if errors.Is(err, sentinel.ErrNotFound) {
		return s.deny(ctx, registry, domain, "domain is not invited to this registry")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "looking up invitation")
	}
	if !invitation.Accepted() {
		return s.deny(ctx, registry, domain, "domain has not accepted its invitation")
	}
	return nil
}

func (s *Service) deny(ctx context.Context, registry *models.Registry, domain id.Domain, reason string) error {
	if s.metrics != nil {
		s.metrics.IncrementAccessDenied()
	}
	s.logger.InfoContext(ctx, "registry access denied",
		slog.String("registry_id", registry.ID.String()),
		slog.String("domain", domain),
		slog.String("reason", reason))
	return dErrors.New(dErrors.CodeForbidden, reason)
}

// CheckOwnership fails with a forbidden error unless domain owns the
// registry.
func (s *Service) CheckOwnership(ctx context.Context, registryID id.RegistryID, domain id.Domain) error {
	registry, err := s.getRegistry(ctx, registryID)
	if err != nil {
		return err
	}
	return registry.CheckOwnership(domain)
}

// GetGrantedDomains returns the set of domains that granted their data to
// domain within the registry. Access is checked first: a domain that cannot
// use the registry learns nothing about its grants.
func (s *Service) GetGrantedDomains(ctx context.Context, registryID id.RegistryID, domain id.Domain) (map[id.Domain]struct{}, error) {
	if err := s.CheckAccess(ctx, registryID, domain); err != nil {
		return nil, err
	}
	grants, err := s.store.ListGrantsTo(ctx, registryID, domain)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing grants")
	}
	granted := make(map[id.Domain]struct{}, len(grants))
	for _, grant := range grants {
		granted[grant.FromDomain] = struct{}{}
	}
	return granted, nil
}

// GetParticipatingDomains returns the domains holding accepted invitations.
func (s *Service) GetParticipatingDomains(ctx context.Context, registryID id.RegistryID) (map[id.Domain]struct{}, error) {
	if _, err := s.getRegistry(ctx, registryID); err != nil {
		return nil, err
	}
	invitations, err := s.store.ListInvitations(ctx, registryID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing invitations")
	}
	participating := make(map[id.Domain]struct{})
	for _, invitation := range invitations {
		if invitation.Accepted() {
			participating[invitation.Domain] = struct{}{}
		}
	}
	return participating, nil
}

// InviteDomain adds a pending invitation for domain. Ownership gating happens
// at the transport layer via CheckOwnership.
func (s *Service) InviteDomain(ctx context.Context, registryID id.RegistryID, domain id.Domain) (*models.Invitation, error) {
	var (
		registry   *models.Registry
		invitation *models.Invitation
		entry      *models.AuditEntry
	)
	err := s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		registry, err = s.getRegistry(ctx, registryID)
		if err != nil {
			return err
		}
		invitation, err = models.NewInvitation(registryID, domain, models.InvitationPending, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := s.store.CreateInvitation(ctx, invitation); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodeConflict, "domain %q is already invited", domain)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "creating invitation")
		}
		entry, err = s.audit.invitationAdded(ctx, registryID, invitation)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "recording audit entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, registry, entry)
	return invitation, nil
}

// RemoveInvitation deletes an invitation, recording its status at removal
// time in the audit detail.
func (s *Service) RemoveInvitation(ctx context.Context, registryID id.RegistryID, invitationID id.InvitationID) error {
	var (
		registry *models.Registry
		entry    *models.AuditEntry
	)
	err := s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		registry, err = s.getRegistry(ctx, registryID)
		if err != nil {
			return err
		}
		invitation, err := s.getInvitation(ctx, registryID, invitationID)
		if err != nil {
			return err
		}
		if err := s.store.DeleteInvitation(ctx, invitationID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "deleting invitation")
		}
		entry, err = s.audit.invitationRemoved(ctx, registryID, invitation)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "recording audit entry")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, registry, entry)
	return nil
}

// AcceptInvitation transitions domain's invitation to accepted. Re-accepting
// is a no-op; accepting a rejected invitation is an invariant violation.
func (s *Service) AcceptInvitation(ctx context.Context, registryID id.RegistryID, domain id.Domain) (*models.Invitation, error) {
	return s.resolveInvitation(ctx, registryID, domain, true)
}

// RejectInvitation transitions domain's invitation to rejected, symmetrical
// to AcceptInvitation.
func (s *Service) RejectInvitation(ctx context.Context, registryID id.RegistryID, domain id.Domain) (*models.Invitation, error) {
	return s.resolveInvitation(ctx, registryID, domain, false)
}

func (s *Service) resolveInvitation(ctx context.Context, registryID id.RegistryID, domain id.Domain, accept bool) (*models.Invitation, error) {
	var (
		registry   *models.Registry
		invitation *models.Invitation
		entry      *models.AuditEntry
	)
	err := s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		registry, err = s.getRegistry(ctx, registryID)
		if err != nil {
			return err
		}
		invitation, err = s.findInvitation(ctx, registryID, domain)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		var changed bool
		if accept {
			changed, err = invitation.ApplyAccept(now)
		} else {
			changed, err = invitation.ApplyReject(now)
		}
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if err := s.store.UpdateInvitation(ctx, invitation); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "updating invitation")
		}
		entry, err = s.audit.invitationResolved(ctx, invitation, accept)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "recording audit entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, registry, entry)
	return invitation, nil
}

// CreateGrant shares fromDomain's data with toDomains. The grantor must
// itself participate in the registry (hold an accepted invitation); the
// grantees need not, since a grant only takes effect once they do.
func (s *Service) CreateGrant(ctx context.Context, registryID id.RegistryID, fromDomain id.Domain, toDomains []id.Domain) (*models.Grant, error) {
	var (
		registry *models.Registry
		grant    *models.Grant
		entry    *models.AuditEntry
	)
	err := s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		registry, err = s.getRegistry(ctx, registryID)
		if err != nil {
			return err
		}
		invitation, err := s.store.FindInvitation(ctx, registryID, fromDomain)
		if errors.Is(err, sentinel.ErrNotFound) || (err == nil && !invitation.Accepted()) {
			return dErrors.New(dErrors.CodeForbidden, "granting domain does not participate in this registry")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "looking up grantor invitation")
		}
		grant, err = models.NewGrant(registryID, fromDomain, toDomains, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := s.store.CreateGrant(ctx, grant); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "creating grant")
		}
		entry, err = s.audit.grantChanged(ctx, grant, true)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "recording audit entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, registry, entry)
	return grant, nil
}

// RemoveGrant deletes a grant. Only the granting domain may remove it.
func (s *Service) RemoveGrant(ctx context.Context, registryID id.RegistryID, grantID id.GrantID, fromDomain id.Domain) error {
	var (
		registry *models.Registry
		entry    *models.AuditEntry
	)
	err := s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		registry, err = s.getRegistry(ctx, registryID)
		if err != nil {
			return err
		}
		grant, err := s.store.GetGrant(ctx, grantID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "grant not found")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "loading grant")
		}
		if grant.RegistryID != registryID {
			return dErrors.New(dErrors.CodeNotFound, "grant not found")
		}
		if grant.FromDomain != fromDomain {
			return dErrors.New(dErrors.CodeForbidden, "grant is not owned by this domain")
		}
		if err := s.store.DeleteGrant(ctx, grantID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "deleting grant")
		}
		entry, err = s.audit.grantChanged(ctx, grant, false)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "recording audit entry")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, registry, entry)
	return nil
}

// SetSchema replaces the registry's case-type schema, keeping the previous
// value in the audit detail.
func (s *Service) SetSchema(ctx context.Context, registryID id.RegistryID, schema json.RawMessage) (*models.Registry, error) {
	var (
		registry *models.Registry
		entry    *models.AuditEntry
	)
	err := s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		registry, err = s.getRegistry(ctx, registryID)
		if err != nil {
			return err
		}
		old := registry.ApplySchema(schema, requestcontext.Now(ctx))
		if err := s.store.UpdateRegistry(ctx, registry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "updating registry")
		}
		entry, err = s.audit.schemaChanged(ctx, registry, schema, old)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "recording audit entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, registry, entry)
	return registry, nil
}

// SetPermission restricts registry use within domain to a user group. An
// empty group ID clears the restriction back to unrestricted.
func (s *Service) SetPermission(ctx context.Context, registryID id.RegistryID, domain id.Domain, readOnlyGroupID string) error {
	return s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.getRegistry(ctx, registryID); err != nil {
			return err
		}
		permission := &models.Permission{
			RegistryID:      registryID,
			Domain:          domain,
			ReadOnlyGroupID: readOnlyGroupID,
		}
		if err := s.store.UpsertPermission(ctx, permission); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "upserting permission")
		}
		return nil
	})
}

// GetPermission returns domain's permission row. Absence is not an error;
// the returned permission has an empty group ID, meaning unrestricted.
func (s *Service) GetPermission(ctx context.Context, registryID id.RegistryID, domain id.Domain) (*models.Permission, error) {
	if _, err := s.getRegistry(ctx, registryID); err != nil {
		return nil, err
	}
	permission, err := s.store.GetPermission(ctx, registryID, domain)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &models.Permission{RegistryID: registryID, Domain: domain}, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading permission")
	}
	return permission, nil
}

// LogDataAccess records a registry-backed read of domain-external data. The
// access check runs first so denied domains leave no data_accessed trace; a
// resource without an identifier is a bug in the calling layer and is logged
// before the error returns.
func (s *Service) LogDataAccess(ctx context.Context, registryID id.RegistryID, domain id.Domain, resource models.DataResource, filters json.RawMessage) error {
	if err := s.CheckAccess(ctx, registryID, domain); err != nil {
		return err
	}
	objectID, objectType, ok := models.ResolveDataResource(resource)
	if !ok {
		s.logger.ErrorContext(ctx, "data access logged with unusable resource",
			slog.String("registry_id", registryID.String()),
			slog.String("domain", domain),
			slog.Any("resource", resource))
		return dErrors.New(dErrors.CodeInvalidInput, "data access resource carries no identifier")
	}

	var (
		registry *models.Registry
		entry    *models.AuditEntry
	)
	err := s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		registry, err = s.getRegistry(ctx, registryID)
		if err != nil {
			return err
		}
		entry, err = s.audit.dataAccessed(ctx, registryID, domain, objectID, objectType, filters)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "recording audit entry")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, registry, entry)
	return nil
}

// ListAuditLogs returns the registry's audit trail, newest first. Ownership
// gating happens at the transport layer.
func (s *Service) ListAuditLogs(ctx context.Context, registryID id.RegistryID) ([]*models.AuditEntry, error) {
	if _, err := s.getRegistry(ctx, registryID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListAuditEntries(ctx, registryID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing audit entries")
	}
	return entries, nil
}

// OwnedBy lists registries owned by domain, optionally filtered by the
// active flag.
func (s *Service) OwnedBy(ctx context.Context, domain id.Domain, activeOnly *bool) ([]*models.Registry, error) {
	registries, err := s.store.ListOwnedBy(ctx, domain, store.RegistryFilter{ActiveOnly: activeOnly})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing owned registries")
	}
	return registries, nil
}

// AccessibleTo lists active registries in which domain holds an accepted
// invitation, optionally narrowed to one slug or to registries granting data
// to domain.
func (s *Service) AccessibleTo(ctx context.Context, domain id.Domain, slug string, requireGrants bool) ([]*models.Registry, error) {
	registries, err := s.store.ListAccessibleTo(ctx, domain, store.RegistryFilter{Slug: slug, RequireGrants: requireGrants})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing accessible registries")
	}
	return registries, nil
}

func (s *Service) getRegistry(ctx context.Context, registryID id.RegistryID) (*models.Registry, error) {
	registry, err := s.store.GetRegistry(ctx, registryID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "registry not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading registry")
	}
	return registry, nil
}

func (s *Service) getInvitation(ctx context.Context, registryID id.RegistryID, invitationID id.InvitationID) (*models.Invitation, error) {
	invitation, err := s.store.GetInvitation(ctx, invitationID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "invitation not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading invitation")
	}
	if invitation.RegistryID != registryID {
		return nil, dErrors.New(dErrors.CodeNotFound, "invitation not found")
	}
	return invitation, nil
}

func (s *Service) findInvitation(ctx context.Context, registryID id.RegistryID, domain id.Domain) (*models.Invitation, error) {
	invitation, err := s.store.FindInvitation(ctx, registryID, domain)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "domain is not invited to this registry")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "looking up invitation")
	}
	return invitation, nil
}

// afterCommit runs post-commit bookkeeping for a mutation that wrote an
// audit entry. A nil entry means the mutation was a no-op.
func (s *Service) afterCommit(ctx context.Context, registry *models.Registry, entry *models.AuditEntry) {
	if entry == nil {
		return
	}
	if s.metrics != nil {
		s.metrics.IncrementAuditEntries()
	}
	s.audit.forward(ctx, registry, entry)
}
