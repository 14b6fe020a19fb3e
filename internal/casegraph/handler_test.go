package casegraph

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newHierarchyServer(t *testing.T, store *InMemoryCaseStore) *httptest.Server {
	t.Helper()
	router := chi.NewRouter()
	NewHandler(NewBuilder(store)).Register(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestHandleHierarchy(t *testing.T) {
	store := NewInMemoryCaseStore()
	opened := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	store.Put(&Case{
		ID: "root", Domain: "alpha", Name: "Root", CaseType: "patient", OpenedOn: opened,
		ReverseIndices: []CaseIndex{
			{CaseID: "kid", Identifier: "kid-ref", Relationship: "child", ReferencedID: "kid"},
		},
	})
	store.Put(&Case{ID: "kid", Domain: "alpha", Name: "Kid", CaseType: "referral"})
	server := newHierarchyServer(t, store)

	t.Run("returns the flattened hierarchy", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/domains/alpha/cases/root/hierarchy")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body HierarchyResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body.Entries, 2)
		require.Equal(t, "root", body.Entries[0].Case.ID)
		require.True(t, body.Entries[0].IsCurrent)
		require.Equal(t, "kid", body.Entries[1].Case.ID)
		require.Equal(t, "root", body.Entries[1].ParentID)
		require.Equal(t, "kid-ref", body.Entries[1].Index.Identifier)
	})

	t.Run("case from another domain reads as missing", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/domains/beta/cases/root/hierarchy")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown case is not found", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/domains/alpha/cases/missing/hierarchy")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
