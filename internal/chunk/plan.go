// Package chunk maps a chunk index onto a bounded slice of the target universe.
package chunk

import "errors"

var (
	// ErrInvalidSize is returned when the chunk size is below one.
	ErrInvalidSize = errors.New("chunk size must be >= 1")
	// ErrInvalidIndex is returned when the chunk index is negative.
	ErrInvalidIndex = errors.New("chunk index must be >= 0")
)

// Plan describes the slice of work selected for one chunk. It is fully
// determined by Index, Size and TotalItems.
type Plan struct {
	Index       int
	Size        int
	TotalItems  int
	Start       int
	End         int
	HasMore     bool
	TotalChunks int
}

// New computes the plan for the given chunk index. A start index at or past
// TotalItems yields an empty plan with HasMore=false; that is the terminal
// state of a chain, not an error.
func New(index, size, totalItems int) (Plan, error) {
	if size < 1 {
		return Plan{}, ErrInvalidSize
	}
	if index < 0 {
		return Plan{}, ErrInvalidIndex
	}
	if totalItems < 0 {
		totalItems = 0
	}

	start := index * size
	// Overflow on absurd indexes is treated as "past the end".
	if index != 0 && start/index != size {
		start = totalItems
	}
	end := min(start+size, totalItems)
	if end < start {
		end = start
	}

	return Plan{
		Index:       index,
		Size:        size,
		TotalItems:  totalItems,
		Start:       start,
		End:         end,
		HasMore:     end < totalItems,
		TotalChunks: totalChunks(totalItems, size),
	}, nil
}

// Empty reports whether the plan selects no items.
func (p Plan) Empty() bool {
	return p.Start >= p.TotalItems
}

// Len returns the number of items selected by the plan.
func (p Plan) Len() int {
	return p.End - p.Start
}

// Next returns the index of the following chunk, or false when the chain ends here.
func (p Plan) Next() (int, bool) {
	if !p.HasMore {
		return 0, false
	}
	return p.Index + 1, true
}

// Select returns the sub-slice of items covered by p. The result aliases items.
func Select[T any](items []T, p Plan) []T {
	if p.Empty() || p.Start >= len(items) {
		return items[:0:0]
	}
	end := min(p.End, len(items))
	return items[p.Start:end]
}

func totalChunks(totalItems, size int) int {
	if totalItems == 0 {
		return 0
	}
	return (totalItems + size - 1) / size
}
