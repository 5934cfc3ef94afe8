package polling

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollster/internal/models"
)

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()

	apollo, err := r.Lookup("apollo")
	require.NoError(t, err)
	assert.Equal(t, "/startRequest", apollo.StartPath)
	assert.Equal(t, "/queryRequest/abc123", apollo.QueryURL("abc123"))
	assert.Equal(t, "/endRequest/abc123", apollo.EndURL("abc123"))
	assert.Equal(t, http.MethodGet, apollo.Method)
	assert.True(t, apollo.Legacy())

	land, err := r.Lookup("socrates-land")
	require.NoError(t, err)
	assert.Equal(t, SpeedLong, land.Speed)

	hooks, err := r.Lookup("marketing-hooks-image")
	require.NoError(t, err)
	assert.Equal(t, "/marketing-hooks/image/start", hooks.StartPath)
	assert.Equal(t, "/marketing-hooks/image/query/t", hooks.QueryURL("t"))
	assert.Equal(t, http.MethodPost, hooks.Method)
	assert.False(t, hooks.Legacy())

	ad, err := r.Lookup("ad-social-image")
	require.NoError(t, err)
	assert.Equal(t, "/adSocialImage/end/t", ad.EndURL("t"))

	_, err = r.Lookup("missing")
	assert.ErrorIs(t, err, models.ErrUnknownKind)
}

func TestKind_EscapesToken(t *testing.T) {
	k := ResourceKind("faq", "/faq/", SpeedFast)
	assert.Equal(t, "/faq/start", k.StartPath)
	assert.Equal(t, "/faq/query/a%2Fb%20c", k.QueryURL("a/b c"))
}

func TestRegistry_ListSorted(t *testing.T) {
	kinds := NewRegistry(
		ResourceKind("seo", "seo", SpeedFast),
		ResourceKind("faq", "faq", SpeedFast),
		ResourceKind("hero", "hero", SpeedFast),
	).List()

	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.Name)
	}
	assert.Equal(t, []string{"faq", "hero", "seo"}, names)
	assert.Len(t, DefaultRegistry().List(), len(DefaultKinds()))
}
