package chunk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidInputs(t *testing.T) {
	t.Parallel()

	_, err := New(0, 0, 10)
	require.ErrorIs(t, err, ErrInvalidSize)

	_, err = New(0, -3, 10)
	require.ErrorIs(t, err, ErrInvalidSize)

	_, err = New(-1, 5, 10)
	require.ErrorIs(t, err, ErrInvalidIndex)
}

func TestPlanTwelveItemsSizeFive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		index   int
		start   int
		end     int
		hasMore bool
	}{
		{index: 0, start: 0, end: 5, hasMore: true},
		{index: 1, start: 5, end: 10, hasMore: true},
		{index: 2, start: 10, end: 12, hasMore: false},
	}

	for _, tt := range tests {
		p, err := New(tt.index, 5, 12)
		require.NoError(t, err)
		require.Equal(t, tt.start, p.Start, "chunk %d start", tt.index)
		require.Equal(t, tt.end, p.End, "chunk %d end", tt.index)
		require.Equal(t, tt.hasMore, p.HasMore, "chunk %d hasMore", tt.index)
		require.Equal(t, 3, p.TotalChunks)
		require.False(t, p.Empty())
	}

	last, err := New(2, 5, 12)
	require.NoError(t, err)
	_, ok := last.Next()
	require.False(t, ok)

	first, err := New(0, 5, 12)
	require.NoError(t, err)
	next, ok := first.Next()
	require.True(t, ok)
	require.Equal(t, 1, next)
}

func TestPlanPastEndIsEmpty(t *testing.T) {
	t.Parallel()

	p, err := New(5, 10, 12)
	require.NoError(t, err)
	require.True(t, p.Empty())
	require.False(t, p.HasMore)
	require.Equal(t, 0, p.Len())
	require.Equal(t, 2, p.TotalChunks)
	require.Empty(t, Select([]int{1, 2, 3}, p))
}

func TestPlanZeroItems(t *testing.T) {
	t.Parallel()

	p, err := New(0, 5, 0)
	require.NoError(t, err)
	require.True(t, p.Empty())
	require.False(t, p.HasMore)
	require.Equal(t, 0, p.TotalChunks)
}

func TestPlanHugeIndexDoesNotOverflow(t *testing.T) {
	t.Parallel()

	p, err := New(int(^uint(0)>>1), 7, 12)
	require.NoError(t, err)
	require.True(t, p.Empty())
	require.False(t, p.HasMore)
}

// TestPlansCoverUniverseExactlyOnce walks every chain and checks the union of
// the selected ranges is [0, total) with no gaps or overlaps.
func TestPlansCoverUniverseExactlyOnce(t *testing.T) {
	t.Parallel()

	for total := 0; total <= 40; total++ {
		for size := 1; size <= 12; size++ {
			seen := make([]int, total)
			chunks := 0
			for index := 0; ; index++ {
				p, err := New(index, size, total)
				require.NoError(t, err)

				nextStart := (index + 1) * size
				require.Equal(t, nextStart < total, p.HasMore, "total=%d size=%d index=%d", total, size, index)

				for i := p.Start; i < p.End; i++ {
					seen[i]++
				}
				if !p.Empty() {
					chunks++
				}
				if !p.HasMore {
					break
				}
			}
			for i, n := range seen {
				require.Equal(t, 1, n, "total=%d size=%d item=%d", total, size, i)
			}

			p, err := New(0, size, total)
			require.NoError(t, err)
			require.Equal(t, chunks, p.TotalChunks, "total=%d size=%d", total, size)
			require.Equal(t, total == 0, p.TotalChunks == 0)
		}
	}
}

func TestSelectReturnsPlannedSlice(t *testing.T) {
	t.Parallel()

	items := []string{"a", "b", "c", "d", "e", "f", "g"}
	p, err := New(1, 3, len(items))
	require.NoError(t, err)
	require.Equal(t, []string{"d", "e", "f"}, Select(items, p))

	p, err = New(2, 3, len(items))
	require.NoError(t, err)
	require.Equal(t, []string{"g"}, Select(items, p))
}

func TestPlanIsDeterministic(t *testing.T) {
	t.Parallel()

	a, err := New(3, 4, 50)
	require.NoError(t, err)
	b, err := New(3, 4, 50)
	require.NoError(t, err)
	require.Equal(t, a, b)
}
