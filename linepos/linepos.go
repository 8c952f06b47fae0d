package linepos

import (
	"errors"
	"math"
)

// Offsets are stored as 32-bit deltas against a per-block 64-bit anchor.
// A block is sealed once full; sealed blocks are shared between an Array
// and its snapshots.
const BlockSize = 256

// MaxLines bounds the number of indexed lines. Growing past it reports
// ErrNoMemory instead of allocating without limit.
const MaxLines = math.MaxUint32

var ErrNoMemory = errors.New("linepos: line index capacity exhausted")

type block struct {
	anchor int64
	deltas []uint32
}

// Array is an append-only sequence of line-end byte offsets. Offsets must be
// appended non-decreasing. Lookup and append are O(1) amortized.
//
// Array itself is not synchronized; callers serialize access (the indexing
// data store does it under its own mutex).
type Array struct {
	blocks []*block
	length int
}

func New() *Array {
	return &Array{}
}

// Append adds a single line-end offset.
func (a *Array) Append(offset int64) error {
	if a.length >= MaxLines {
		return ErrNoMemory
	}
	b := a.tail()
	if b == nil || len(b.deltas) == BlockSize || offset-b.anchor > math.MaxUint32 {
		b = &block{anchor: offset, deltas: make([]uint32, 0, BlockSize)}
		a.blocks = append(a.blocks, b)
	}
	b.deltas = append(b.deltas, uint32(offset-b.anchor))
	a.length++
	return nil
}

// AppendBatch folds a Fast buffer produced by one parsed block.
func (a *Array) AppendBatch(fast *Fast) error {
	for _, off := range fast.offsets {
		if err := a.Append(off); err != nil {
			return err
		}
	}
	return nil
}

func (a *Array) Len() int {
	return a.length
}

// At returns the end offset of line i. The start offset of line i is
// At(i-1), or zero for the first line.
func (a *Array) At(i int) int64 {
	b := a.blocks[i/BlockSize]
	return b.anchor + int64(b.deltas[i%BlockSize])
}

// LastOrZero returns the last stored offset, or zero when empty.
func (a *Array) LastOrZero() int64 {
	if a.length == 0 {
		return 0
	}
	return a.At(a.length - 1)
}

func (a *Array) Clear() {
	a.blocks = nil
	a.length = 0
}

// Snapshot returns a read-only copy sharing all sealed blocks with the
// receiver. Only the unsealed tail block is copied, so snapshots are cheap
// regardless of index size. The snapshot stays valid while the original
// keeps appending.
func (a *Array) Snapshot() *Array {
	s := &Array{length: a.length}
	if len(a.blocks) == 0 {
		return s
	}
	s.blocks = make([]*block, len(a.blocks))
	copy(s.blocks, a.blocks)
	tail := a.blocks[len(a.blocks)-1]
	if len(tail.deltas) < BlockSize {
		cp := &block{anchor: tail.anchor, deltas: make([]uint32, len(tail.deltas))}
		copy(cp.deltas, tail.deltas)
		s.blocks[len(s.blocks)-1] = cp
	}
	return s
}

func (a *Array) tail() *block {
	if len(a.blocks) == 0 {
		return nil
	}
	return a.blocks[len(a.blocks)-1]
}

// Fast is a short buffer of offsets from parsing a single block. It is built
// without locking and merged into an Array under the store mutex.
type Fast struct {
	offsets []int64
}

func NewFast() *Fast {
	return &Fast{}
}

func (f *Fast) Append(offset int64) {
	f.offsets = append(f.offsets, offset)
}

func (f *Fast) Len() int {
	return len(f.offsets)
}

func (f *Fast) At(i int) int64 {
	return f.offsets[i]
}

func (f *Fast) Reset() {
	f.offsets = f.offsets[:0]
}
