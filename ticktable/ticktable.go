// Package ticktable maintains the per-tick state of a concentrated-liquidity
// pair: gross and net liquidity per initialized tick, the outside fee-growth
// and seconds snapshots, and the fee-growth-inside computation over a tick
// range. Discovery of the next initialized tick in a swap's direction of
// travel goes through the pluggable NextTickIndex; the sorted-slice
// implementation in this package is the default.
package ticktable

import (
	"errors"
	"math/big"
	"sort"

	"github.com/holiman/uint256"

	"github.com/defistate/clmm-go/liquiditymath"
)

// ErrLiquidityGrossOverflow is returned when an update would push a tick's
// gross liquidity above the per-tick maximum.
var ErrLiquidityGrossOverflow = errors.New("LO: liquidity gross exceeds max per tick")

// Info is the state carried by one initialized tick. A tick is initialized
// iff it has an entry in the table, and an entry exists iff LiquidityGross
// is non-zero.
type Info struct {
	// LiquidityGross is the total position liquidity referencing this tick
	// as either endpoint.
	LiquidityGross *uint256.Int

	// LiquidityNet is added to active liquidity when the price crosses the
	// tick left to right, subtracted right to left.
	LiquidityNet *big.Int

	// FeeGrowthOutside0X128 and FeeGrowthOutside1X128 track growth on the
	// opposite side of the current price, relative to this tick, as of the
	// last time the tick was touched. Q128.128, wraps mod 2^256.
	FeeGrowthOutside0X128 *uint256.Int
	FeeGrowthOutside1X128 *uint256.Int

	// SecondsOutside is the seconds analogue of the outside growth
	// snapshots. Wraps at 2^32.
	SecondsOutside uint32
}

func newInfo() *Info {
	return &Info{
		LiquidityGross:        new(uint256.Int),
		LiquidityNet:          new(big.Int),
		FeeGrowthOutside0X128: new(uint256.Int),
		FeeGrowthOutside1X128: new(uint256.Int),
	}
}

// clone returns a deep copy, for read-only views and snapshots.
func (i *Info) clone() Info {
	return Info{
		LiquidityGross:        new(uint256.Int).Set(i.LiquidityGross),
		LiquidityNet:          new(big.Int).Set(i.LiquidityNet),
		FeeGrowthOutside0X128: new(uint256.Int).Set(i.FeeGrowthOutside0X128),
		FeeGrowthOutside1X128: new(uint256.Int).Set(i.FeeGrowthOutside1X128),
		SecondsOutside:        i.SecondsOutside,
	}
}

// NextTickIndex locates initialized ticks in a direction of travel. Add and
// Remove are driven by the table as ticks flip; implementations must keep
// NextInitialized consistent with the set of added ticks.
type NextTickIndex interface {
	Add(tick int)
	Remove(tick int)

	// NextInitialized returns, for lte=true, the largest initialized tick
	// at or below tick; for lte=false, the smallest initialized tick
	// strictly above it. found is false when no such tick exists.
	NextInitialized(tick int, lte bool) (next int, found bool)
}

// Table holds all initialized ticks of one pair.
type Table struct {
	ticks               map[int]*Info
	index               NextTickIndex
	maxLiquidityPerTick *uint256.Int
}

// New builds an empty table capped at maxLiquidityPerTick gross liquidity
// per tick. A nil index falls back to a fresh SortedIndex.
func New(maxLiquidityPerTick *uint256.Int, index NextTickIndex) *Table {
	if index == nil {
		index = NewSortedIndex()
	}
	return &Table{
		ticks:               make(map[int]*Info),
		index:               index,
		maxLiquidityPerTick: new(uint256.Int).Set(maxLiquidityPerTick),
	}
}

// Get returns a copy of the tick's state and whether the tick is initialized.
func (t *Table) Get(tick int) (Info, bool) {
	info, ok := t.ticks[tick]
	if !ok {
		return Info{}, false
	}
	return info.clone(), true
}

// Len returns the number of initialized ticks.
func (t *Table) Len() int {
	return len(t.ticks)
}

// All returns the initialized ticks in ascending order with copies of their
// state. Used by snapshots and the console views.
func (t *Table) All() ([]int, []Info) {
	indices := make([]int, 0, len(t.ticks))
	for i := range t.ticks {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	infos := make([]Info, len(indices))
	for n, i := range indices {
		infos[n] = t.ticks[i].clone()
	}
	return indices, infos
}

// NextInitialized exposes the underlying index lookup.
func (t *Table) NextInitialized(tick int, lte bool) (int, bool) {
	return t.index.NextInitialized(tick, lte)
}

// Update applies a liquidity delta to tick as one endpoint of a position.
// upper selects which endpoint: net liquidity rises by delta at the lower
// tick and falls by delta at the upper one. On first initialization of a
// tick at or below tickCurrent the outside snapshots are seeded from the
// current global counters; above, they start at zero. flipped reports
// whether the tick changed between initialized and uninitialized, which the
// caller uses to drive Clear.
func (t *Table) Update(
	tick, tickCurrent int,
	liquidityDelta *big.Int,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int,
	secondsNow uint32,
	upper bool,
) (flipped bool, err error) {
	info, existed := t.ticks[tick]
	if !existed {
		info = newInfo()
	}

	grossAfter := new(uint256.Int)
	if err := liquiditymath.AddDelta(grossAfter, info.LiquidityGross, liquidityDelta); err != nil {
		return false, err
	}
	if grossAfter.Gt(t.maxLiquidityPerTick) {
		return false, ErrLiquidityGrossOverflow
	}

	flipped = grossAfter.IsZero() != info.LiquidityGross.IsZero()

	if info.LiquidityGross.IsZero() && !grossAfter.IsZero() {
		// First initialization: by convention all growth to date happened
		// below the tick, so ticks at or below the current price take the
		// global counters as their outside snapshot.
		if tick <= tickCurrent {
			info.FeeGrowthOutside0X128.Set(feeGrowthGlobal0X128)
			info.FeeGrowthOutside1X128.Set(feeGrowthGlobal1X128)
			info.SecondsOutside = secondsNow
		}
	}

	info.LiquidityGross.Set(grossAfter)
	if upper {
		info.LiquidityNet.Sub(info.LiquidityNet, liquidityDelta)
	} else {
		info.LiquidityNet.Add(info.LiquidityNet, liquidityDelta)
	}

	if !existed {
		t.ticks[tick] = info
		t.index.Add(tick)
	}
	return flipped, nil
}

// Clear removes the tick entirely. The engine calls it when an update
// flipped the tick to uninitialized.
func (t *Table) Clear(tick int) {
	if _, ok := t.ticks[tick]; !ok {
		return
	}
	delete(t.ticks, tick)
	t.index.Remove(tick)
}

// Cross flips the tick's outside snapshots as the price moves through it and
// returns the net liquidity to apply to active liquidity. The caller negates
// the result when crossing right to left.
func (t *Table) Cross(
	tick int,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int,
	secondsNow uint32,
) *big.Int {
	info, ok := t.ticks[tick]
	if !ok {
		return new(big.Int)
	}
	info.FeeGrowthOutside0X128.Sub(feeGrowthGlobal0X128, info.FeeGrowthOutside0X128)
	info.FeeGrowthOutside1X128.Sub(feeGrowthGlobal1X128, info.FeeGrowthOutside1X128)
	info.SecondsOutside = secondsNow - info.SecondsOutside
	return new(big.Int).Set(info.LiquidityNet)
}

// FeeGrowthInside writes into inside0/inside1 the fee growth accumulated
// within [tickLower, tickUpper] since inception, in Q128.128 mod 2^256.
// Uninitialized boundary ticks contribute a zero outside snapshot.
func (t *Table) FeeGrowthInside(
	inside0, inside1 *uint256.Int,
	tickLower, tickUpper, tickCurrent int,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int,
) {
	var lower0, lower1, upper0, upper1 uint256.Int
	if info, ok := t.ticks[tickLower]; ok {
		lower0.Set(info.FeeGrowthOutside0X128)
		lower1.Set(info.FeeGrowthOutside1X128)
	}
	if info, ok := t.ticks[tickUpper]; ok {
		upper0.Set(info.FeeGrowthOutside0X128)
		upper1.Set(info.FeeGrowthOutside1X128)
	}

	var below0, below1, above0, above1 uint256.Int
	if tickCurrent >= tickLower {
		below0.Set(&lower0)
		below1.Set(&lower1)
	} else {
		below0.Sub(feeGrowthGlobal0X128, &lower0)
		below1.Sub(feeGrowthGlobal1X128, &lower1)
	}
	if tickCurrent < tickUpper {
		above0.Set(&upper0)
		above1.Set(&upper1)
	} else {
		above0.Sub(feeGrowthGlobal0X128, &upper0)
		above1.Sub(feeGrowthGlobal1X128, &upper1)
	}

	inside0.Sub(feeGrowthGlobal0X128, &below0)
	inside0.Sub(inside0, &above0)
	inside1.Sub(feeGrowthGlobal1X128, &below1)
	inside1.Sub(inside1, &above1)
}
