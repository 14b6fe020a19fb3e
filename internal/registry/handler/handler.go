// Package handler exposes the registry service over HTTP.
//
// All routes are scoped under /domains/{domain} so the acting domain is part
// of the URL; the acting user comes from the auth middleware. Ownership
// gating lives here: the service exposes CheckOwnership and the handler
// decides which routes require it.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"caseregistry/internal/registry/models"
	id "caseregistry/pkg/domain"
	dErrors "caseregistry/pkg/domain-errors"
	"caseregistry/pkg/platform/httputil"
	"caseregistry/pkg/requestcontext"
)

// Service defines the registry operations the handler depends on.
type Service interface {
	Create(ctx context.Context, domain id.Domain, name, description string) (*models.Registry, error)
	Get(ctx context.Context, registryID id.RegistryID) (*models.Registry, error)
	Activate(ctx context.Context, registryID id.RegistryID) (*models.Registry, error)
	Deactivate(ctx context.Context, registryID id.RegistryID) (*models.Registry, error)
	CheckAccess(ctx context.Context, registryID id.RegistryID, domain id.Domain) error
	CheckOwnership(ctx context.Context, registryID id.RegistryID, domain id.Domain) error
	GetGrantedDomains(ctx context.Context, registryID id.RegistryID, domain id.Domain) (map[id.Domain]struct{}, error)
	GetParticipatingDomains(ctx context.Context, registryID id.RegistryID) (map[id.Domain]struct{}, error)
	InviteDomain(ctx context.Context, registryID id.RegistryID, domain id.Domain) (*models.Invitation, error)
	RemoveInvitation(ctx context.Context, registryID id.RegistryID, invitationID id.InvitationID) error
	AcceptInvitation(ctx context.Context, registryID id.RegistryID, domain id.Domain) (*models.Invitation, error)
	RejectInvitation(ctx context.Context, registryID id.RegistryID, domain id.Domain) (*models.Invitation, error)
	CreateGrant(ctx context.Context, registryID id.RegistryID, fromDomain id.Domain, toDomains []id.Domain) (*models.Grant, error)
	RemoveGrant(ctx context.Context, registryID id.RegistryID, grantID id.GrantID, fromDomain id.Domain) error
	SetSchema(ctx context.Context, registryID id.RegistryID, schema json.RawMessage) (*models.Registry, error)
	SetPermission(ctx context.Context, registryID id.RegistryID, domain id.Domain, readOnlyGroupID string) error
	GetPermission(ctx context.Context, registryID id.RegistryID, domain id.Domain) (*models.Permission, error)
	LogDataAccess(ctx context.Context, registryID id.RegistryID, domain id.Domain, resource models.DataResource, filters json.RawMessage) error
	ListAuditLogs(ctx context.Context, registryID id.RegistryID) ([]*models.AuditEntry, error)
	OwnedBy(ctx context.Context, domain id.Domain, activeOnly *bool) ([]*models.Registry, error)
	AccessibleTo(ctx context.Context, domain id.Domain, slug string, requireGrants bool) ([]*models.Registry, error)
}

// Handler wires registry endpoints to the registry service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts registry endpoints on the router. The router is expected
// to already carry the actor auth middleware.
func (h *Handler) Register(r chi.Router) {
	r.Route("/domains/{domain}/registries", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleListOwned)
		r.Get("/accessible", h.HandleListAccessible)

		r.Route("/{registryID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Post("/activate", h.HandleActivate)
			r.Post("/deactivate", h.HandleDeactivate)
			r.Get("/granted-domains", h.HandleGrantedDomains)
			r.Get("/participating-domains", h.HandleParticipatingDomains)

			r.Post("/invitations", h.HandleInvite)
			r.Delete("/invitations/{invitationID}", h.HandleRemoveInvitation)
			r.Post("/invitations/accept", h.HandleAcceptInvitation)
			r.Post("/invitations/reject", h.HandleRejectInvitation)

			r.Post("/grants", h.HandleCreateGrant)
			r.Delete("/grants/{grantID}", h.HandleRemoveGrant)

			r.Put("/schema", h.HandleSetSchema)
			r.Put("/permissions", h.HandleSetPermission)
			r.Get("/permissions/{target}", h.HandleGetPermission)

			r.Post("/data-access", h.HandleLogDataAccess)
			r.Get("/audit", h.HandleListAudit)
		})
	})
}

// pathScope extracts the acting domain and registry ID from the URL.
func (h *Handler) pathScope(w http.ResponseWriter, r *http.Request) (id.Domain, id.RegistryID, bool) {
	domain := chi.URLParam(r, "domain")
	if domain == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "domain is required"))
		return "", id.RegistryID{}, false
	}
	registryID, err := id.ParseRegistryID(chi.URLParam(r, "registryID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed registry ID"))
		return "", id.RegistryID{}, false
	}
	return domain, registryID, true
}

// requireOwnership gates owner-only routes.
func (h *Handler) requireOwnership(w http.ResponseWriter, r *http.Request, registryID id.RegistryID, domain id.Domain) bool {
	if err := h.service.CheckOwnership(r.Context(), registryID, domain); err != nil {
		httputil.WriteError(w, err)
		return false
	}
	return true
}

// HandleCreate handles POST /domains/{domain}/registries.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	domain := chi.URLParam(r, "domain")

	req, ok := httputil.DecodeAndPrepare[CreateRegistryRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	registry, err := h.service.Create(ctx, domain, req.Name, req.Description)
	if err != nil {
		h.logger.ErrorContext(ctx, "registry creation failed",
			"request_id", requestID,
			"domain", domain,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromRegistry(registry))
}

// HandleListOwned handles GET /domains/{domain}/registries.
func (h *Handler) HandleListOwned(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	var activeOnly *bool
	switch r.URL.Query().Get("is_active") {
	case "true":
		v := true
		activeOnly = &v
	case "false":
		v := false
		activeOnly = &v
	}

	registries, err := h.service.OwnedBy(r.Context(), domain, activeOnly)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromRegistries(registries))
}

// HandleListAccessible handles GET /domains/{domain}/registries/accessible.
func (h *Handler) HandleListAccessible(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	query := r.URL.Query()

	registries, err := h.service.AccessibleTo(r.Context(), domain,
		query.Get("slug"), query.Get("has_grants") == "true")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromRegistries(registries))
}

// HandleGet handles GET /domains/{domain}/registries/{registryID}. Owners see
// their registry unconditionally; other domains only with access.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	domain, registryID, ok := h.pathScope(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if err := h.service.CheckOwnership(ctx, registryID, domain); err != nil {
		if !dErrors.HasCode(err, dErrors.CodeForbidden) {
			httputil.WriteError(w, err)
			return
		}
		if err := h.service.CheckAccess(ctx, registryID, domain); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	registry, err := h.service.Get(ctx, registryID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromRegistry(registry))
}

// HandleActivate handles POST .../{registryID}/activate (owner only).
func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	h.handleSetActive(w, r, true)
}

// HandleDeactivate handles POST .../{registryID}/deactivate (owner only).
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.handleSetActive(w, r, false)
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request, active bool) {
	domain, registryID, ok := h.pathScope(w, r)
	if !ok {
		return
	}
	if !h.requireOwnership(w, r, registryID, domain) {
		return
	}

	var (
		registry *models.Registry
		err      error
	)
	if active {
		registry, err = h.service.Activate(r.Context(), registryID)
	} else {
		registry, err = h.service.Deactivate(r.Context(), registryID)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromRegistry(registry))
}

// HandleGrantedDomains handles GET .../{registryID}/granted-domains.
func (h *Handler) HandleGrantedDomains(w http.ResponseWriter, r *http.Request) {
	domain, registryID, ok := h.pathScope(w, r)
	if !ok {
		return
	}
	granted, err := h.service.GetGrantedDomains(r.Context(), registryID, domain)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, domainSet(granted))
}

// HandleParticipatingDomains handles GET .../{registryID}/participating-domains.
// Visible to any domain with registry access.
func (h *Handler) HandleParticipatingDomains(w http.ResponseWriter, r *http.Request) {
	domain, registryID, ok := h.pathScope(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := h.service.CheckAccess(ctx, registryID, domain); err != nil {
		httputil.WriteError(w, err)
		return
	}
	participating, err := h.service.GetParticipatingDomains(ctx, registryID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, domainSet(participating))
}

// HandleInvite handles POST .../{registryID}/invitations (owner only).
func (h *Handler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	domain, registryID, ok := h.pathScope(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if !h.requireOwnership(w, r, registryID, domain) {
		return
	}

	req, ok := httputil.DecodeAndPrepare[InviteDomainRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	invitation, err := h.service.InviteDomain(ctx, registryID, req.Domain)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromInvitation(invitation))
}

// HandleRemoveInvitation handles DELETE .../invitations/{invitationID} (owner only).
func (h *Handler) HandleRemoveInvitation(w http.ResponseWriter, r *http.Request) {
	domain, registryID, ok := h.pathScope(w, r)
	if !ok {
		return
	}
	invitationID, err := id.ParseInvitationID(chi.URLParam(r, "invitationID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed invitation ID"))
		return
	}
	if !h.requireOwnership(w, r, registryID, domain) {
		return
	}

	if err := h.service.RemoveInvitation(r.Context(), registryID, invitationID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAcceptInvitation handles POST .../invitations/accept. The acting
// domain resolves its own invitation.
func (h *Handler) HandleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	h.handleResolveInvitation(w, r, true)
}

// HandleRejectInvitation handles POST .../invitations/reject.
func (h *Handler) HandleRejectInvitation(w http.ResponseWriter, r *http.Request) {
	h.handleResolveInvitation(w, r, false)
}

func (h *Handler) handleResolveInvitation(w http.ResponseWriter, r *http.Request, accept bool) {
	domain, registryID, ok := h.pathScope(w, r)
	if !ok {
		return
	}

	var (
		invitation *models.Invitation
		err        error
	)
	if accept {
		invitation, err = h.service.AcceptInvitation(r.Context(), registryID, domain)
	} else {
		invitation, err = h.service.RejectInvitation(r.Context(), registryID, domain)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromInvitation(invitation))
}

// HandleCreateGrant handles POST .../{registryID}/grants. The acting domain
// is the grantor.
func (h *Handler) HandleCreateGrant(w http.ResponseWriter, r *http.Request) {
	domain, registryID, ok := h.pathScope(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[CreateGrantRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	grant, err := h.service.CreateGrant(ctx, registryID, domain, req.GranteeDomains())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromGrant(grant))
}

// HandleRemoveGrant handles DELETE .../grants/{grantID}.
func (h *Handler) HandleRemoveGrant(w http.ResponseWriter, r *http.Request) {
	domain, registryID, ok := h.pathScope(w, r)
	if !ok {
		return
	}
	grantID, err := id.ParseGrantID(chi.URLParam(r, "grantID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed grant ID"))
		return
	}

	if err := h.service.RemoveGrant(r.Context(), registryID, grantID, domain); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetSchema handles PUT .../{registryID}/schema (owner only).
func (h *Handler) HandleSetSchema(w http.ResponseWriter, r *http.Request) {
	domain, registryID, ok := h.pathScope(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if !h.requireOwnership(w, r, registryID, domain) {
		return
	}

	req, ok := httputil.DecodeAndPrepare[SetSchemaRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	registry, err := h.service.SetSchema(ctx, registryID, req.Schema)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromRegistry(registry))
}

// HandleSetPermission handles PUT .../{registryID}/permissions (owner only).
func (h *Handler) HandleSetPermission(w http.ResponseWriter, r *http.Request) {
	domain, registryID, ok := h.pathScope(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if !h.requireOwnership(w, r, registryID, domain) {
		return
	}

	req, ok := httputil.DecodeAndPrepare[SetPermissionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.SetPermission(ctx, registryID, req.Domain, req.ReadOnlyGroupID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetPermission handles GET .../{registryID}/permissions/{target}
// (owner only).
func (h *Handler) HandleGetPermission(w http.ResponseWriter, r *http.Request) {
	domain, registryID, ok := h.pathScope(w, r)
	if !ok {
		return
	}
	if !h.requireOwnership(w, r, registryID, domain) {
		return
	}

	permission, err := h.service.GetPermission(r.Context(), registryID, chi.URLParam(r, "target"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PermissionResponse{
		RegistryID:      permission.RegistryID.String(),
		Domain:          permission.Domain,
		ReadOnlyGroupID: permission.ReadOnlyGroupID,
	})
}

// HandleLogDataAccess handles POST .../{registryID}/data-access.
func (h *Handler) HandleLogDataAccess(w http.ResponseWriter, r *http.Request) {
	domain, registryID, ok := h.pathScope(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[LogDataAccessRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.LogDataAccess(ctx, registryID, domain, req.ParsedResource(), req.Filters); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListAudit handles GET .../{registryID}/audit (owner only).
func (h *Handler) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	domain, registryID, ok := h.pathScope(w, r)
	if !ok {
		return
	}
	if !h.requireOwnership(w, r, registryID, domain) {
		return
	}

	entries, err := h.service.ListAuditLogs(r.Context(), registryID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromAuditEntries(entries))
}

func domainSet(domains map[id.Domain]struct{}) DomainSetResponse {
	out := make([]string, 0, len(domains))
	for domain := range domains {
		out = append(out, domain)
	}
	sort.Strings(out)
	return DomainSetResponse{Domains: out}
}
