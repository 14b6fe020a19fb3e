package casegraph

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "caseregistry/pkg/domain-errors"
	"caseregistry/pkg/platform/httputil"
)

// Handler exposes hierarchy builds over HTTP.
type Handler struct {
	builder *Builder
}

func NewHandler(builder *Builder) *Handler {
	return &Handler{builder: builder}
}

// Register mounts the hierarchy endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/domains/{domain}/cases/{caseID}/hierarchy", h.HandleHierarchy)
}

// EntryResponse is the HTTP representation of one hierarchy row. A nil case
// with placeholder=true marks an unresolved ancestor.
type EntryResponse struct {
	Case        *CaseResponse `json:"case,omitempty"`
	Placeholder bool          `json:"placeholder,omitempty"`
	ParentID    string        `json:"parent_id,omitempty"`
	Index       *IndexInfo    `json:"index,omitempty"`
	IsCurrent   bool          `json:"is_current,omitempty"`
}

// CaseResponse is the case summary rendered per hierarchy row.
type CaseResponse struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	CaseType string     `json:"case_type"`
	Closed   bool       `json:"closed"`
	OpenedOn *time.Time `json:"opened_on,omitempty"`
	ClosedOn *time.Time `json:"closed_on,omitempty"`
}

// HierarchyResponse is the response body for a hierarchy build.
type HierarchyResponse struct {
	Entries         []EntryResponse `json:"entries"`
	LookupFailures  []string        `json:"lookup_failures,omitempty"`
	CyclesTruncated int             `json:"cycles_truncated,omitempty"`
}

// HandleHierarchy handles GET /domains/{domain}/cases/{caseID}/hierarchy.
// Cases outside the requested domain are indistinguishable from missing
// ones.
func (h *Handler) HandleHierarchy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domain := chi.URLParam(r, "domain")
	caseID := chi.URLParam(r, "caseID")
	if caseID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "case ID is required"))
		return
	}

	result, err := h.builder.Build(ctx, caseID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if root := currentCase(result); root == nil || root.Domain != domain {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "case not found"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, fromResult(result))
}

func currentCase(result *Result) *Case {
	for _, entry := range result.Entries {
		if entry.IsCurrent {
			return entry.Case
		}
	}
	return nil
}

func fromResult(result *Result) HierarchyResponse {
	resp := HierarchyResponse{
		Entries:         make([]EntryResponse, len(result.Entries)),
		LookupFailures:  result.LookupFailures,
		CyclesTruncated: result.CyclesTruncated,
	}
	for i, entry := range result.Entries {
		out := EntryResponse{
			Placeholder: entry.Placeholder(),
			ParentID:    entry.ParentID,
			Index:       entry.Index,
			IsCurrent:   entry.IsCurrent,
		}
		if entry.Case != nil {
			out.Case = &CaseResponse{
				ID:       entry.Case.ID,
				Name:     entry.Case.Name,
				CaseType: entry.Case.CaseType,
				Closed:   entry.Case.Closed,
				OpenedOn: timeOrNil(entry.Case.OpenedOn),
				ClosedOn: timeOrNil(entry.Case.ClosedOn),
			}
		}
		resp.Entries[i] = out
	}
	return resp
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
