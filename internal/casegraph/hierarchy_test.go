package casegraph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "caseregistry/pkg/domain"
	dErrors "caseregistry/pkg/domain-errors"
)

type HierarchySuite struct {
	suite.Suite
	store   *InMemoryCaseStore
	builder *Builder
	ctx     context.Context
}

func (s *HierarchySuite) SetupTest() {
	s.store = NewInMemoryCaseStore()
	s.builder = NewBuilder(s.store)
	s.ctx = context.Background()
}

func TestHierarchySuite(t *testing.T) {
	suite.Run(t, new(HierarchySuite))
}

func (s *HierarchySuite) addCase(c *Case) *Case {
	if c.Domain == "" {
		c.Domain = "alpha"
	}
	s.store.Put(c)
	return c
}

// link registers child as a reverse-index target of parent.
func (s *HierarchySuite) link(parent, child *Case, identifier string) {
	parent.ReverseIndices = append(parent.ReverseIndices, CaseIndex{
		CaseID:       child.ID,
		Identifier:   identifier,
		Relationship: "child",
		ReferencedID: child.ID,
	})
	s.store.Put(parent)
}

func entryIDs(entries []*Entry) []id.CaseID {
	ids := make([]id.CaseID, len(entries))
	for i, entry := range entries {
		if entry.Case == nil {
			ids[i] = "<placeholder>"
			continue
		}
		ids[i] = entry.Case.ID
	}
	return ids
}

func at(day int) time.Time {
	return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
}

// TestSiblingOrder covers the open/closed sort contract.
func (s *HierarchySuite) TestSiblingOrder() {
	s.Run("open siblings order by ascending opened-on", func() {
		root := s.addCase(&Case{ID: "root"})
		a := s.addCase(&Case{ID: "a", OpenedOn: at(10)})
		b := s.addCase(&Case{ID: "b", OpenedOn: at(5)})
		s.link(root, a, "a-ref")
		s.link(root, b, "b-ref")

		result, err := s.builder.Build(s.ctx, "root")
		s.Require().NoError(err)
		s.Equal([]id.CaseID{"root", "b", "a"}, entryIDs(result.Entries))
	})

	s.Run("missing opened-on sorts first among open siblings", func() {
		root := s.addCase(&Case{ID: "root2"})
		dated := s.addCase(&Case{ID: "dated", OpenedOn: at(1)})
		undated := s.addCase(&Case{ID: "undated"})
		s.link(root, dated, "dated-ref")
		s.link(root, undated, "undated-ref")

		result, err := s.builder.Build(s.ctx, "root2")
		s.Require().NoError(err)
		s.Equal([]id.CaseID{"root2", "undated", "dated"}, entryIDs(result.Entries))
	})

	s.Run("open precedes closed regardless of timestamps", func() {
		root := s.addCase(&Case{ID: "root3"})
		closed := s.addCase(&Case{ID: "closed", Closed: true, OpenedOn: at(1), ClosedOn: at(2)})
		open := s.addCase(&Case{ID: "open", OpenedOn: at(20)})
		s.link(root, closed, "closed-ref")
		s.link(root, open, "open-ref")

		result, err := s.builder.Build(s.ctx, "root3")
		s.Require().NoError(err)
		s.Equal([]id.CaseID{"root3", "open", "closed"}, entryIDs(result.Entries))
	})

	s.Run("closed siblings order most-recently-closed first", func() {
		root := s.addCase(&Case{ID: "root4"})
		early := s.addCase(&Case{ID: "early", Closed: true, ClosedOn: at(3)})
		late := s.addCase(&Case{ID: "late", Closed: true, ClosedOn: at(9)})
		s.link(root, early, "early-ref")
		s.link(root, late, "late-ref")

		result, err := s.builder.Build(s.ctx, "root4")
		s.Require().NoError(err)
		s.Equal([]id.CaseID{"root4", "late", "early"}, entryIDs(result.Entries))
	})
}

// TestDepthFirstFlattening verifies each parent is immediately followed by
// its fully-flattened subtree and annotated with structural parents.
func (s *HierarchySuite) TestDepthFirstFlattening() {
	root := s.addCase(&Case{ID: "root"})
	first := s.addCase(&Case{ID: "first", OpenedOn: at(1)})
	second := s.addCase(&Case{ID: "second", OpenedOn: at(2)})
	grandchild := s.addCase(&Case{ID: "grandchild"})
	s.link(root, first, "first-ref")
	s.link(root, second, "second-ref")
	s.link(first, grandchild, "grandchild-ref")

	result, err := s.builder.Build(s.ctx, "root")
	s.Require().NoError(err)
	s.Equal([]id.CaseID{"root", "first", "grandchild", "second"}, entryIDs(result.Entries))

	byID := make(map[id.CaseID]*Entry)
	for _, entry := range result.Entries {
		byID[entry.Case.ID] = entry
	}
	s.Empty(byID["root"].ParentID)
	s.Equal(id.CaseID("root"), byID["first"].ParentID)
	s.Equal(id.CaseID("first"), byID["grandchild"].ParentID)
	s.Equal(id.CaseID("root"), byID["second"].ParentID)

	s.Run("root entry is marked current", func() {
		s.True(byID["root"].IsCurrent)
		s.False(byID["first"].IsCurrent)
	})

	s.Run("direct descendants carry index metadata", func() {
		s.Require().NotNil(byID["first"].Index)
		s.Equal("first-ref", byID["first"].Index.Identifier)
		s.False(byID["first"].Index.IsAncestor)
		s.Nil(byID["grandchild"].Index, "only the root's own references are annotated")
	})
}

// TestCycleTruncation verifies cyclic references terminate with each case
// emitted exactly once.
func (s *HierarchySuite) TestCycleTruncation() {
	s.Run("two-cycle back to the root", func() {
		root := s.addCase(&Case{ID: "root"})
		a := s.addCase(&Case{ID: "a", OpenedOn: at(1)})
		b := s.addCase(&Case{ID: "b", OpenedOn: at(2)})
		s.link(root, a, "a-ref")
		s.link(root, b, "b-ref")
		s.link(b, root, "back-ref")

		result, err := s.builder.Build(s.ctx, "root")
		s.Require().NoError(err)
		s.Equal([]id.CaseID{"root", "a", "b"}, entryIDs(result.Entries))
		s.Equal(1, result.CyclesTruncated)
	})

	s.Run("self-referencing case", func() {
		loner := s.addCase(&Case{ID: "loner"})
		s.link(loner, loner, "self-ref")

		result, err := s.builder.Build(s.ctx, "loner")
		s.Require().NoError(err)
		s.Equal([]id.CaseID{"loner"}, entryIDs(result.Entries))
		s.Equal(1, result.CyclesTruncated)
	})
}

// TestAncestors verifies flat one-hop ancestor resolution and placeholders.
func (s *HierarchySuite) TestAncestors() {
	s.Run("resolved ancestors are prepended with metadata", func() {
		s.addCase(&Case{ID: "parent"})
		child := s.addCase(&Case{
			ID: "child",
			LiveIndices: []CaseIndex{{
				CaseID: "child", Identifier: "parent-ref", Relationship: "child", ReferencedID: "parent",
			}},
		})
		grandchild := s.addCase(&Case{ID: "grandchild"})
		s.link(child, grandchild, "gc-ref")

		result, err := s.builder.Build(s.ctx, "child")
		s.Require().NoError(err)
		s.Equal([]id.CaseID{"parent", "child", "grandchild"}, entryIDs(result.Entries))

		s.Require().NotNil(result.Entries[0].Index)
		s.True(result.Entries[0].Index.IsAncestor)
		s.Equal("parent-ref", result.Entries[0].Index.Identifier)

		s.Run("root hangs off the resolved ancestor", func() {
			s.Equal(id.CaseID("parent"), result.Entries[1].ParentID)
			s.Equal(id.CaseID("child"), result.Entries[2].ParentID,
				"traversal annotations are not overwritten")
		})
	})

	s.Run("missing ancestor becomes a placeholder without failing", func() {
		orphan := s.addCase(&Case{
			ID: "orphan",
			LiveIndices: []CaseIndex{{
				CaseID: "orphan", Identifier: "gone-ref", Relationship: "child", ReferencedID: "gone",
			}},
		})
		s.Require().NotNil(orphan)

		result, err := s.builder.Build(s.ctx, "orphan")
		s.Require().NoError(err)
		s.Require().Len(result.Entries, 2)
		s.True(result.Entries[0].Placeholder())
		s.Equal("gone-ref", result.Entries[0].Index.Identifier)
		s.Equal(id.CaseID("orphan"), result.Entries[1].Case.ID)
		s.Empty(result.Entries[1].ParentID, "no parent annotation when the ancestor is unresolved")
	})

	s.Run("ancestors are not recursively expanded", func() {
		grandparent := s.addCase(&Case{ID: "gp"})
		s.Require().NotNil(grandparent)
		parent := s.addCase(&Case{
			ID: "mid",
			LiveIndices: []CaseIndex{{
				CaseID: "mid", Identifier: "gp-ref", Relationship: "child", ReferencedID: "gp",
			}},
		})
		s.Require().NotNil(parent)
		child := s.addCase(&Case{
			ID: "leaf",
			LiveIndices: []CaseIndex{{
				CaseID: "leaf", Identifier: "mid-ref", Relationship: "child", ReferencedID: "mid",
			}},
		})
		s.Require().NotNil(child)

		result, err := s.builder.Build(s.ctx, "leaf")
		s.Require().NoError(err)
		s.Equal([]id.CaseID{"mid", "leaf"}, entryIDs(result.Entries), "grandparent stays out of a one-hop resolution")
	})
}

// TestLookupFailures verifies broken descendant branches are excluded
// without affecting siblings.
func (s *HierarchySuite) TestLookupFailures() {
	root := s.addCase(&Case{ID: "root"})
	present := s.addCase(&Case{ID: "present"})
	ghost := &Case{ID: "ghost"}
	s.link(root, ghost, "ghost-ref")
	s.link(root, present, "present-ref")

	result, err := s.builder.Build(s.ctx, "root")
	s.Require().NoError(err)
	s.Equal([]id.CaseID{"root", "present"}, entryIDs(result.Entries))
	s.Equal([]id.CaseID{"ghost"}, result.LookupFailures)
}

// TestMissingRoot verifies the only hard failure mode.
func (s *HierarchySuite) TestMissingRoot() {
	_, err := s.builder.Build(s.ctx, "nope")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
