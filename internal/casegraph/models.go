// Package casegraph flattens a case reference graph into a deterministic,
// cycle-safe display order.
//
// Cases reference each other through indices: a case's live indices point at
// its parents (ancestors), its reverse indices point at the cases that
// reference it (children). The builder walks the reverse side depth-first
// and resolves the live side one hop flat.
package casegraph

import (
	"time"

	id "caseregistry/pkg/domain"
)

// CaseIndex is one directed reference between cases. Identifier and
// Relationship are the labels the referencing case recorded; ReferencedID is
// the case the index points at.
type CaseIndex struct {
	CaseID       id.CaseID `json:"case_id"`
	Identifier   string    `json:"identifier"`
	Relationship string    `json:"relationship"`
	ReferencedID id.CaseID `json:"referenced_id"`
}

// Case is a read-only snapshot of a case record from the external case
// store. The builder never mutates cases; display annotations live on the
// traversal entries instead.
type Case struct {
	ID       id.CaseID `json:"id"`
	Domain   id.Domain `json:"domain"`
	Name     string    `json:"name"`
	CaseType string    `json:"case_type"`
	Closed   bool      `json:"closed"`
	OpenedOn time.Time `json:"opened_on"`
	ClosedOn time.Time `json:"closed_on"`

	// LiveIndices point at this case's parents; ReverseIndices at the
	// cases referencing it (its children in display terms).
	LiveIndices    []CaseIndex `json:"live_indices"`
	ReverseIndices []CaseIndex `json:"reverse_indices"`
}

// IndexInfo is the index metadata attached to an entry when a matching
// reference exists on the root case.
type IndexInfo struct {
	Identifier   string `json:"identifier"`
	Relationship string `json:"relationship"`
	IsAncestor   bool   `json:"is_ancestor"`
}

// Entry is one row of the flattened hierarchy. Placeholder entries stand in
// for ancestor references that could not be resolved and carry a nil Case.
type Entry struct {
	Case *Case `json:"case"`
	// ParentID is the structural parent used for tree rendering. Set once
	// during traversal and never overwritten.
	ParentID  id.CaseID  `json:"parent_id,omitempty"`
	Index     *IndexInfo `json:"index,omitempty"`
	IsCurrent bool       `json:"is_current,omitempty"`
}

// Placeholder reports whether the entry marks an unresolved ancestor.
func (e *Entry) Placeholder() bool { return e.Case == nil }

// Result is the ordered outcome of a hierarchy build: ancestors first
// (placeholders included), then the root and its descendants depth-first.
type Result struct {
	Entries []*Entry
	// LookupFailures lists descendant case IDs whose records were missing.
	// Each failed branch is excluded; sibling branches are unaffected.
	LookupFailures []id.CaseID
	// CyclesTruncated counts references skipped because their target was
	// already visited.
	CyclesTruncated int
}
