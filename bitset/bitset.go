package bitset

import (
	"fmt"
	"math/bits"
)

func NewBitSet(len uint64) BitSet {
	words := (len + 63) / 64
	bits := make([]uint64, words)
	return bits
}

type BitSet []uint64

func (b BitSet) IsSet(index uint64) bool {
	wordPosition := index / 64
	bitPosition := index % 64
	mask := uint64(1) << bitPosition

	return (b[wordPosition] & mask) != 0
}

func (b BitSet) Set(index uint64) {
	wordPosition := index / 64
	bitPosition := index % 64
	mask := uint64(1) << bitPosition

	b[wordPosition] |= mask
}

func (b BitSet) Unset(index uint64) {
	wordPosition := index / 64
	bitPosition := index % 64
	mask := uint64(1) << bitPosition

	b[wordPosition] = b[wordPosition] &^ mask

}

// NextSet returns the index of the lowest set bit at or above index.
// The second return value is false when no such bit exists.
func (b BitSet) NextSet(index uint64) (uint64, bool) {
	wordPosition := index / 64
	if wordPosition >= uint64(len(b)) {
		return 0, false
	}

	word := b[wordPosition] >> (index % 64)
	if word != 0 {
		return index + uint64(bits.TrailingZeros64(word)), true
	}
	for w := wordPosition + 1; w < uint64(len(b)); w++ {
		if b[w] != 0 {
			return w*64 + uint64(bits.TrailingZeros64(b[w])), true
		}
	}
	return 0, false
}

// PrevSet returns the index of the highest set bit at or below index.
// The second return value is false when no such bit exists.
func (b BitSet) PrevSet(index uint64) (uint64, bool) {
	wordPosition := index / 64
	if wordPosition >= uint64(len(b)) {
		return 0, false
	}

	word := b[wordPosition] << (63 - index%64)
	if word != 0 {
		return index - uint64(bits.LeadingZeros64(word)), true
	}
	for w := int(wordPosition) - 1; w >= 0; w-- {
		if b[w] != 0 {
			return uint64(w)*64 + 63 - uint64(bits.LeadingZeros64(b[w])), true
		}
	}
	return 0, false
}

// Empty reports whether no bit is set.
func (b BitSet) Empty() bool {
	for _, w := range b {
		if w != 0 {
			return false
		}
	}
	return true
}

func (b BitSet) Clear() {
	for i := range b {
		b[i] = 0
	}
}

func (b BitSet) SetFrom(o BitSet) {
	if len(b) != len(o) {
		panic(fmt.Sprintf("bitsets must be same size: got %d vs %d", len(b), len(o)))
	}
	copy(b, o)
}
