package crawl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingBuilder struct {
	calls [][]Target
	err   error
}

func (b *recordingBuilder) Build(_ context.Context, targets []Target) error {
	b.calls = append(b.calls, append([]Target(nil), targets...))
	return b.err
}

func TestExecutorPassesSliceThrough(t *testing.T) {
	t.Parallel()

	builder := &recordingBuilder{}
	exec := NewExecutor(builder)
	targets := []Target{{ID: "a"}, {ID: "b"}}

	require.NoError(t, exec.Execute(context.Background(), targets))
	require.Len(t, builder.calls, 1)
	require.Equal(t, targets, builder.calls[0])
}

func TestExecutorPropagatesBuilderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("upstream catalog timed out")
	exec := NewExecutor(&recordingBuilder{err: boom})

	err := exec.Execute(context.Background(), []Target{{ID: "a"}})
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "upstream catalog timed out")
}

func TestExecutorWithoutBuilder(t *testing.T) {
	t.Parallel()

	var exec *Executor
	require.Error(t, exec.Execute(context.Background(), nil))
	require.Error(t, NewExecutor(nil).Execute(context.Background(), nil))
}
