package ticktable

import "sort"

// SortedIndex tracks initialized ticks in a sorted slice and answers
// directional lookups with binary search. It is the default NextTickIndex.
type SortedIndex struct {
	ticks []int
}

func NewSortedIndex() *SortedIndex {
	return &SortedIndex{}
}

func (s *SortedIndex) Add(tick int) {
	i := sort.SearchInts(s.ticks, tick)
	if i < len(s.ticks) && s.ticks[i] == tick {
		return
	}
	s.ticks = append(s.ticks, 0)
	copy(s.ticks[i+1:], s.ticks[i:])
	s.ticks[i] = tick
}

func (s *SortedIndex) Remove(tick int) {
	i := sort.SearchInts(s.ticks, tick)
	if i >= len(s.ticks) || s.ticks[i] != tick {
		return
	}
	s.ticks = append(s.ticks[:i], s.ticks[i+1:]...)
}

func (s *SortedIndex) NextInitialized(tick int, lte bool) (int, bool) {
	if len(s.ticks) == 0 {
		return 0, false
	}
	if lte {
		// Smallest index with ticks[i] >= tick; the answer is there when it
		// is an exact hit, otherwise one to its left.
		i := sort.SearchInts(s.ticks, tick)
		if i < len(s.ticks) && s.ticks[i] == tick {
			return tick, true
		}
		if i == 0 {
			return 0, false
		}
		return s.ticks[i-1], true
	}
	// Smallest index with ticks[i] > tick.
	i := sort.Search(len(s.ticks), func(i int) bool { return s.ticks[i] > tick })
	if i >= len(s.ticks) {
		return 0, false
	}
	return s.ticks[i], true
}
