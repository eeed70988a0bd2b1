// Package tickbitmap indexes initialized ticks in word-paged bitmaps. Ticks
// are compressed by the pair's tick spacing, one bit per spaced tick, and
// lookups scan within a page before walking to the neighbouring pages. It is
// a drop-in alternative to the sorted-slice index in ticktable.
package tickbitmap

import (
	"sort"

	"github.com/defistate/clmm-go/bitset"
)

// pageBits is the number of compressed ticks per bitmap page.
const pageBits = 256

// Index is a bitmap-backed next-initialized-tick index. Only multiples of
// the tick spacing are ever added; lookups accept arbitrary ticks.
type Index struct {
	tickSpacing int
	pages       map[int]bitset.BitSet
	pageKeys    []int // sorted keys of pages
}

func NewIndex(tickSpacing int) *Index {
	return &Index{
		tickSpacing: tickSpacing,
		pages:       make(map[int]bitset.BitSet),
	}
}

// floorDiv rounds toward negative infinity, so negative ticks land on the
// correct page and bit.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func (x *Index) position(tick int) (page int, bit uint64) {
	compressed := floorDiv(tick, x.tickSpacing)
	page = floorDiv(compressed, pageBits)
	return page, uint64(compressed - page*pageBits)
}

func (x *Index) Add(tick int) {
	page, bit := x.position(tick)
	bs, ok := x.pages[page]
	if !ok {
		bs = bitset.NewBitSet(pageBits)
		x.pages[page] = bs
		i := sort.SearchInts(x.pageKeys, page)
		x.pageKeys = append(x.pageKeys, 0)
		copy(x.pageKeys[i+1:], x.pageKeys[i:])
		x.pageKeys[i] = page
	}
	bs.Set(bit)
}

func (x *Index) Remove(tick int) {
	page, bit := x.position(tick)
	bs, ok := x.pages[page]
	if !ok {
		return
	}
	bs.Unset(bit)
	if bs.Empty() {
		delete(x.pages, page)
		i := sort.SearchInts(x.pageKeys, page)
		if i < len(x.pageKeys) && x.pageKeys[i] == page {
			x.pageKeys = append(x.pageKeys[:i], x.pageKeys[i+1:]...)
		}
	}
}

// NextInitialized returns, for lte=true, the largest initialized tick at or
// below tick; for lte=false, the smallest strictly above it.
func (x *Index) NextInitialized(tick int, lte bool) (int, bool) {
	if len(x.pageKeys) == 0 {
		return 0, false
	}

	var compressed int
	if lte {
		compressed = floorDiv(tick, x.tickSpacing)
	} else {
		compressed = floorDiv(tick, x.tickSpacing) + 1
	}
	page := floorDiv(compressed, pageBits)
	bit := uint64(compressed - page*pageBits)

	if lte {
		// Scan down: the starting page from its bit, then whole pages.
		i := sort.SearchInts(x.pageKeys, page)
		if i < len(x.pageKeys) && x.pageKeys[i] == page {
			if b, ok := x.pages[page].PrevSet(bit); ok {
				return x.tickAt(page, b), true
			}
			i--
		} else {
			i--
		}
		if i < 0 {
			return 0, false
		}
		p := x.pageKeys[i]
		b, _ := x.pages[p].PrevSet(pageBits - 1) // pages are never empty
		return x.tickAt(p, b), true
	}

	// Scan up.
	i := sort.SearchInts(x.pageKeys, page)
	if i < len(x.pageKeys) && x.pageKeys[i] == page {
		if b, ok := x.pages[page].NextSet(bit); ok {
			return x.tickAt(page, b), true
		}
		i++
	}
	if i >= len(x.pageKeys) {
		return 0, false
	}
	p := x.pageKeys[i]
	b, _ := x.pages[p].NextSet(0)
	return x.tickAt(p, b), true
}

func (x *Index) tickAt(page int, bit uint64) int {
	return (page*pageBits + int(bit)) * x.tickSpacing
}
