package casegraph

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	id "caseregistry/pkg/domain"
	dErrors "caseregistry/pkg/domain-errors"
	"caseregistry/pkg/platform/sentinel"
)

// Builder flattens case hierarchies. It holds no per-build state, so one
// builder serves concurrent requests.
type Builder struct {
	store  CaseStore
	logger *slog.Logger
}

type BuilderOption func(*Builder)

func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = logger }
}

func NewBuilder(store CaseStore, opts ...BuilderOption) *Builder {
	b := &Builder{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build resolves the case's ancestors one hop flat and its descendants
// depth-first, returning the combined display order. The root case must
// exist; everything else degrades per reference (ancestor placeholders,
// excluded descendant branches, truncated cycles).
func (b *Builder) Build(ctx context.Context, rootID id.CaseID) (*Result, error) {
	root, err := b.store.Get(ctx, rootID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "case not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading case")
	}

	walk := &traversal{
		store:   b.store,
		logger:  b.logger,
		visited: make(map[id.CaseID]struct{}),
	}
	descendants, err := walk.descend(ctx, root)
	if err != nil {
		return nil, err
	}
	descendants[0].IsCurrent = true

	ancestors, lastParentID := b.resolveAncestors(ctx, root)

	// Descendants that gained no structural parent during traversal hang
	// off the last resolved ancestor in flat display.
	if lastParentID != "" {
		for _, entry := range descendants {
			if entry.ParentID == "" {
				entry.ParentID = lastParentID
			}
		}
	}

	// Attach the root's reverse index metadata to matching descendants.
	reverse := make(map[id.CaseID]CaseIndex, len(root.ReverseIndices))
	for _, index := range root.ReverseIndices {
		reverse[index.ReferencedID] = index
	}
	for _, entry := range descendants {
		if index, ok := reverse[entry.Case.ID]; ok {
			entry.Index = &IndexInfo{
				Identifier:   index.Identifier,
				Relationship: index.Relationship,
				IsAncestor:   false,
			}
		}
	}

	return &Result{
		Entries:         append(ancestors, descendants...),
		LookupFailures:  walk.failures,
		CyclesTruncated: walk.cycles,
	}, nil
}

// resolveAncestors collects the root's parents as a flat list. A missing
// parent record is expected (soft-deleted or cross-domain) and yields a
// placeholder entry instead of failing the build. The returned parent ID is
// the last resolved one, matching flat display conventions.
func (b *Builder) resolveAncestors(ctx context.Context, root *Case) ([]*Entry, id.CaseID) {
	var (
		ancestors    []*Entry
		lastParentID id.CaseID
	)
	for _, index := range root.LiveIndices {
		info := &IndexInfo{
			Identifier:   index.Identifier,
			Relationship: index.Relationship,
			IsAncestor:   true,
		}
		parent, err := b.store.Get(ctx, index.ReferencedID)
		if err != nil {
			if !errors.Is(err, sentinel.ErrNotFound) {
				b.logger.WarnContext(ctx, "ancestor lookup failed, treating as unresolved",
					slog.String("case_id", root.ID),
					slog.String("referenced_id", index.ReferencedID),
					slog.Any("error", err))
			}
			ancestors = append(ancestors, &Entry{Index: info})
			lastParentID = ""
			continue
		}
		ancestors = append(ancestors, &Entry{Case: parent, Index: info})
		lastParentID = parent.ID
	}
	return ancestors, lastParentID
}

// traversal carries the shared state of one descendant walk. The visited set
// is mutated only in the sequential merge phase, so exclusion decisions are
// deterministic regardless of fetch interleaving.
type traversal struct {
	store    CaseStore
	logger   *slog.Logger
	visited  map[id.CaseID]struct{}
	failures []id.CaseID
	cycles   int
}

type branch struct {
	root    *Case
	entries []*Entry
}

// descend returns c followed by its fully-flattened subtree. Child records
// are fetched in parallel; recursion, sorting and merging stay sequential.
func (t *traversal) descend(ctx context.Context, c *Case) ([]*Entry, error) {
	t.visited[c.ID] = struct{}{}

	fetched, err := t.fetchChildren(ctx, c)
	if err != nil {
		return nil, err
	}

	var branches []branch
	for i, index := range c.ReverseIndices {
		if index.ReferencedID == "" {
			continue
		}
		if _, seen := t.visited[index.ReferencedID]; seen {
			t.cycles++
			t.logger.WarnContext(ctx, "case reference cycle truncated",
				slog.String("case_id", c.ID),
				slog.String("referenced_id", index.ReferencedID))
			continue
		}
		child := fetched[i]
		if child == nil {
			t.failures = append(t.failures, index.ReferencedID)
			t.logger.WarnContext(ctx, "descendant case missing, branch excluded",
				slog.String("case_id", c.ID),
				slog.String("referenced_id", index.ReferencedID))
			continue
		}
		entries, err := t.descend(ctx, child)
		if err != nil {
			return nil, err
		}
		branches = append(branches, branch{root: child, entries: entries})
	}

	sort.SliceStable(branches, func(i, j int) bool {
		return lessCases(branches[i].root, branches[j].root)
	})

	out := []*Entry{{Case: c}}
	for _, br := range branches {
		if br.entries[0].ParentID == "" {
			br.entries[0].ParentID = c.ID
		}
		out = append(out, br.entries...)
	}
	return out, nil
}

// fetchChildren resolves the reverse index targets of c in parallel,
// indexed by position. Targets already visited or empty stay nil; so do
// missing records, which the sequential phase records as failures.
func (t *traversal) fetchChildren(ctx context.Context, c *Case) ([]*Case, error) {
	fetched := make([]*Case, len(c.ReverseIndices))
	g, gctx := errgroup.WithContext(ctx)
	for i, index := range c.ReverseIndices {
		if index.ReferencedID == "" {
			continue
		}
		if _, seen := t.visited[index.ReferencedID]; seen {
			continue
		}
		i, index := i, index
		g.Go(func() error {
			child, err := t.store.Get(gctx, index.ReferencedID)
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "loading descendant case")
			}
			fetched[i] = child
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fetched, nil
}

// lessCases orders siblings: open before closed, open ascending by
// opened-on with the zero time first, closed by most-recently-closed first.
func lessCases(a, b *Case) bool {
	if a.Closed != b.Closed {
		return !a.Closed
	}
	if a.Closed {
		return a.ClosedOn.After(b.ClosedOn)
	}
	return a.OpenedOn.Before(b.OpenedOn)
}
