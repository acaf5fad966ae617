package static

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/crawl"
)

var _ crawl.TargetLister = (*Lister)(nil)

func TestListerReturnsStableCopies(t *testing.T) {
	t.Parallel()

	src := []crawl.Target{
		{ID: "a", URL: "https://a.example.com", Tags: map[string]string{"k": "v"}},
		{ID: "b", URL: "https://b.example.com"},
	}
	l := New(src)
	src[0].ID = "mutated"

	first, err := l.ListTargets(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a", first[0].ID)

	first[0].Tags["k"] = "changed"
	second, err := l.ListTargets(context.Background())
	require.NoError(t, err)
	require.Equal(t, "v", second[0].Tags["k"])
	require.Len(t, second, 2)
}

func TestListerEmptyAndCanceled(t *testing.T) {
	t.Parallel()

	got, err := New(nil).ListTargets(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(nil).ListTargets(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
