package indexer

import "math"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len returns the number of blocks in the range.
func (r BlockRange) Len() uint64 {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// Window returns [cursor, cursor+step] clamped to head. ok is false when
// cursor is already past head.
func Window(cursor, step, head uint64) (BlockRange, bool) {
	if cursor > head {
		return BlockRange{}, false
	}
	to := head
	if step < math.MaxUint64-cursor && cursor+step < head {
		to = cursor + step
	}
	return BlockRange{From: cursor, To: to}, true
}
