package heuristics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mywebintelligence/mwi/internal/config"
	"github.com/mywebintelligence/mwi/internal/store/memstore"
)

func newDefault(t *testing.T) *Normalizer {
	t.Helper()
	n, err := New(config.DefaultHeuristics)
	require.NoError(t, err)
	return n
}

func TestDomainNamePlainHost(t *testing.T) {
	t.Parallel()

	n := newDefault(t)
	assert.Equal(t, "www.example.org", n.DomainName("https://www.example.org/page?x=1"))
	assert.Equal(t, "example.org", n.DomainName("http://example.org"))
}

func TestDomainNameSocialAccounts(t *testing.T) {
	t.Parallel()

	n := newDefault(t)
	assert.Equal(t, "m.facebook.com/someuser",
		n.DomainName("https://m.facebook.com/someuser?ref=feed"))
	assert.Equal(t, "www.youtube.com/somechannel",
		n.DomainName("https://www.youtube.com/somechannel/videos"))
}

func TestDomainNameExcludedSegmentsKeepHost(t *testing.T) {
	t.Parallel()

	n := newDefault(t)
	assert.Equal(t, "www.youtube.com",
		n.DomainName("https://www.youtube.com/watch?v=abc123"))
	assert.Equal(t, "www.facebook.com",
		n.DomainName("https://www.facebook.com/permalink.php?story_fbid=1"))
}

func TestNewRejectsBadPattern(t *testing.T) {
	t.Parallel()

	_, err := New(map[string]string{"example.org": "(["})
	require.Error(t, err)
}

func TestUpdateRekeysExpressions(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	ctx := context.Background()

	land, err := st.CreateLand(ctx, "A", "", "fr")
	require.NoError(t, err)
	d, err := st.GetOrCreateDomain(ctx, "m.facebook.com")
	require.NoError(t, err)
	e, _, err := st.UpsertExpression(ctx, land.ID, d.ID, "https://m.facebook.com/someuser/posts", 0)
	require.NoError(t, err)
	plain, _, err := st.UpsertExpression(ctx, land.ID, d.ID, "https://example.org/page", 0)
	require.NoError(t, err)

	n := newDefault(t)
	updated, err := n.Update(ctx, st, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	got, err := st.GetExpression(ctx, e.ID)
	require.NoError(t, err)
	name, err := st.DomainNameByID(ctx, got.DomainID)
	require.NoError(t, err)
	assert.Equal(t, "m.facebook.com/someuser", name)

	got, err = st.GetExpression(ctx, plain.ID)
	require.NoError(t, err)
	name, err = st.DomainNameByID(ctx, got.DomainID)
	require.NoError(t, err)
	assert.Equal(t, "example.org", name)
}
