package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	t.Run("removes duplicates and empties", func(t *testing.T) {
		got := DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
		assert.Equal(t, []string{"foo", "bar"}, got)
	})

	t.Run("preserves order", func(t *testing.T) {
		got := DedupeAndTrim([]string{"c", "a", "b", "a"})
		assert.Equal(t, []string{"c", "a", "b"}, got)
	})

	t.Run("empty input passes through", func(t *testing.T) {
		assert.Empty(t, DedupeAndTrim(nil))
	})
}

func TestSlugify(t *testing.T) {
	stops := map[string]struct{}{"the": {}, "of": {}}

	t.Run("lowercases and hyphenates", func(t *testing.T) {
		assert.Equal(t, "patient-referrals-2024", Slugify("Patient Referrals 2024", nil))
	})

	t.Run("collapses punctuation runs", func(t *testing.T) {
		assert.Equal(t, "a-b-c", Slugify("a -- b...c", nil))
	})

	t.Run("drops stop words", func(t *testing.T) {
		assert.Equal(t, "registry-cases", Slugify("The Registry of Cases", stops))
	})

	t.Run("no leading or trailing hyphen", func(t *testing.T) {
		assert.Equal(t, "abc", Slugify("  abc!  ", nil))
	})

	t.Run("empty text yields empty slug", func(t *testing.T) {
		assert.Equal(t, "", Slugify("", stops))
	})
}
