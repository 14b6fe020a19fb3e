package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "caseregistry/pkg/domain"
	dErrors "caseregistry/pkg/domain-errors"
)

var testStopWords = map[string]struct{}{"the": {}, "project": {}}

func TestNewRegistry(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("derives slug without stop words", func(t *testing.T) {
		reg, err := NewRegistry("alpha", "The Referral Project Registry", testStopWords, now)
		require.NoError(t, err)
		assert.Equal(t, "referral-registry", reg.Slug)
		assert.True(t, reg.IsActive)
		assert.Equal(t, now, reg.CreatedOn)
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := NewRegistry("alpha", "", testStopWords, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects name made only of stop words", func(t *testing.T) {
		_, err := NewRegistry("alpha", "The Project", testStopWords, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestRegistryOwnership(t *testing.T) {
	reg := &Registry{Domain: "alpha"}
	assert.NoError(t, reg.CheckOwnership("alpha"))

	err := reg.CheckOwnership("beta")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestRegistryActivationIsIdempotent(t *testing.T) {
	now := time.Now().UTC()
	reg := &Registry{IsActive: true}

	assert.False(t, reg.ApplyActivation(now), "activating an active registry is a no-op")
	assert.True(t, reg.ApplyDeactivation(now))
	assert.False(t, reg.ApplyDeactivation(now), "deactivating an inactive registry is a no-op")
	assert.True(t, reg.ApplyActivation(now))
}

func TestInvitationTransitions(t *testing.T) {
	now := time.Now().UTC()

	t.Run("pending accepts once", func(t *testing.T) {
		inv, err := NewInvitation(id.NewRegistryID(), "beta", InvitationPending, now)
		require.NoError(t, err)

		changed, err := inv.ApplyAccept(now)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.True(t, inv.Accepted())

		changed, err = inv.ApplyAccept(now)
		require.NoError(t, err)
		assert.False(t, changed, "re-accepting is a no-op")
	})

	t.Run("terminal states cannot flip", func(t *testing.T) {
		inv, err := NewInvitation(id.NewRegistryID(), "beta", InvitationPending, now)
		require.NoError(t, err)

		_, err = inv.ApplyReject(now)
		require.NoError(t, err)

		_, err = inv.ApplyAccept(now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestNewGrantDedupesTargets(t *testing.T) {
	now := time.Now().UTC()
	grant, err := NewGrant(id.NewRegistryID(), "alpha", []id.Domain{"beta", " beta ", "gamma"}, now)
	require.NoError(t, err)
	assert.Equal(t, []id.Domain{"beta", "gamma"}, grant.ToDomains)
	assert.True(t, grant.Targets("beta"))
	assert.False(t, grant.Targets("alpha"))
}

func TestResolveDataResource(t *testing.T) {
	t.Run("report config resolves to ucr", func(t *testing.T) {
		objectID, objectType, ok := ResolveDataResource(ReportConfig{ID: "report-1"})
		require.True(t, ok)
		assert.Equal(t, "report-1", objectID)
		assert.Equal(t, RelatedReport, objectType)
	})

	t.Run("application resolves to application", func(t *testing.T) {
		_, objectType, ok := ResolveDataResource(Application{ID: "app-1"})
		require.True(t, ok)
		assert.Equal(t, RelatedApplication, objectType)
	})

	t.Run("nil resource is not resolvable", func(t *testing.T) {
		_, _, ok := ResolveDataResource(nil)
		assert.False(t, ok)
	})

	t.Run("missing identifier is not resolvable", func(t *testing.T) {
		_, _, ok := ResolveDataResource(ReportConfig{})
		assert.False(t, ok)
	})
}
