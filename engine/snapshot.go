package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/clmm-go/position"
	"github.com/defistate/clmm-go/ticktable"
)

// Snapshot is a deep copy of a pair's observable state, taken between
// operations. Snapshots are detached: later pair activity never mutates one.
type Snapshot struct {
	SqrtPriceX96       *uint256.Int `json:"sqrtPriceX96"`
	Tick               int          `json:"tick"`
	BlockTimestampLast uint32       `json:"blockTimestampLast"`
	TickCumulativeLast int64        `json:"tickCumulativeLast"`

	Liquidity            *uint256.Int   `json:"liquidity"`
	FeeGrowthGlobal0X128 *uint256.Int   `json:"feeGrowthGlobal0X128"`
	FeeGrowthGlobal1X128 *uint256.Int   `json:"feeGrowthGlobal1X128"`
	FeeToFees0           *uint256.Int   `json:"feeToFees0"`
	FeeToFees1           *uint256.Int   `json:"feeToFees1"`
	FeeTo                common.Address `json:"feeTo"`

	TickIndices []int            `json:"tickIndices"`
	Ticks       []ticktable.Info `json:"ticks"`

	PositionKeys []position.Key  `json:"positionKeys"`
	Positions    []position.Info `json:"positions"`
}

// Snapshot deep-copies the pair's state.
func (p *Pair) Snapshot() *Snapshot {
	tickIndices, ticks := p.ticks.All()
	positionKeys, positions := p.positions.All()
	return &Snapshot{
		SqrtPriceX96:         new(uint256.Int).Set(&p.slot0.sqrtPriceX96),
		Tick:                 p.slot0.tick,
		BlockTimestampLast:   p.slot0.blockTimestampLast,
		TickCumulativeLast:   p.slot0.tickCumulativeLast,
		Liquidity:            new(uint256.Int).Set(&p.liquidity),
		FeeGrowthGlobal0X128: new(uint256.Int).Set(&p.feeGrowthGlobal0X128),
		FeeGrowthGlobal1X128: new(uint256.Int).Set(&p.feeGrowthGlobal1X128),
		FeeToFees0:           new(uint256.Int).Set(&p.feeToFees0),
		FeeToFees1:           new(uint256.Int).Set(&p.feeToFees1),
		FeeTo:                p.feeTo,
		TickIndices:          tickIndices,
		Ticks:                ticks,
		PositionKeys:         positionKeys,
		Positions:            positions,
	}
}

// SnapshotDiff summarizes the changes between two snapshots of the same
// pair.
type SnapshotDiff struct {
	// ChangedFields lists pair-wide scalar fields whose values differ,
	// as "name: old -> new".
	ChangedFields []string `json:"changedFields,omitempty"`

	CreatedTicks []int `json:"createdTicks,omitempty"`
	ClearedTicks []int `json:"clearedTicks,omitempty"`
	ChangedTicks []int `json:"changedTicks,omitempty"`

	TouchedPositions []position.Key `json:"touchedPositions,omitempty"`
}

// Empty reports whether no change was observed.
func (d *SnapshotDiff) Empty() bool {
	return len(d.ChangedFields) == 0 &&
		len(d.CreatedTicks) == 0 && len(d.ClearedTicks) == 0 && len(d.ChangedTicks) == 0 &&
		len(d.TouchedPositions) == 0
}

// DiffSnapshots compares two snapshots taken from the same pair, old first.
func DiffSnapshots(old, new *Snapshot) *SnapshotDiff {
	diff := &SnapshotDiff{}

	scalar := func(name string, changed bool, oldVal, newVal any) {
		if changed {
			diff.ChangedFields = append(diff.ChangedFields, fmt.Sprintf("%s: %v -> %v", name, oldVal, newVal))
		}
	}
	scalar("sqrtPriceX96", !old.SqrtPriceX96.Eq(new.SqrtPriceX96), old.SqrtPriceX96.Dec(), new.SqrtPriceX96.Dec())
	scalar("tick", old.Tick != new.Tick, old.Tick, new.Tick)
	scalar("blockTimestampLast", old.BlockTimestampLast != new.BlockTimestampLast, old.BlockTimestampLast, new.BlockTimestampLast)
	scalar("tickCumulativeLast", old.TickCumulativeLast != new.TickCumulativeLast, old.TickCumulativeLast, new.TickCumulativeLast)
	scalar("liquidity", !old.Liquidity.Eq(new.Liquidity), old.Liquidity.Dec(), new.Liquidity.Dec())
	scalar("feeGrowthGlobal0X128", !old.FeeGrowthGlobal0X128.Eq(new.FeeGrowthGlobal0X128), old.FeeGrowthGlobal0X128.Dec(), new.FeeGrowthGlobal0X128.Dec())
	scalar("feeGrowthGlobal1X128", !old.FeeGrowthGlobal1X128.Eq(new.FeeGrowthGlobal1X128), old.FeeGrowthGlobal1X128.Dec(), new.FeeGrowthGlobal1X128.Dec())
	scalar("feeToFees0", !old.FeeToFees0.Eq(new.FeeToFees0), old.FeeToFees0.Dec(), new.FeeToFees0.Dec())
	scalar("feeToFees1", !old.FeeToFees1.Eq(new.FeeToFees1), old.FeeToFees1.Dec(), new.FeeToFees1.Dec())
	scalar("feeTo", old.FeeTo != new.FeeTo, old.FeeTo.Hex(), new.FeeTo.Hex())

	oldTicks := tickInfoByIndex(old)
	newTicks := tickInfoByIndex(new)
	for n, i := range new.TickIndices {
		oldInfo, ok := oldTicks[i]
		if !ok {
			diff.CreatedTicks = append(diff.CreatedTicks, i)
			continue
		}
		if !sameTick(oldInfo, new.Ticks[n]) {
			diff.ChangedTicks = append(diff.ChangedTicks, i)
		}
	}
	for _, i := range old.TickIndices {
		if _, ok := newTicks[i]; !ok {
			diff.ClearedTicks = append(diff.ClearedTicks, i)
		}
	}

	oldPositions := make(map[position.Key]position.Info, len(old.PositionKeys))
	for n, k := range old.PositionKeys {
		oldPositions[k] = old.Positions[n]
	}
	for n, k := range new.PositionKeys {
		oldInfo, ok := oldPositions[k]
		if !ok || !samePosition(oldInfo, new.Positions[n]) {
			diff.TouchedPositions = append(diff.TouchedPositions, k)
		}
	}

	return diff
}

func tickInfoByIndex(s *Snapshot) map[int]ticktable.Info {
	out := make(map[int]ticktable.Info, len(s.TickIndices))
	for n, i := range s.TickIndices {
		out[i] = s.Ticks[n]
	}
	return out
}

func sameTick(a, b ticktable.Info) bool {
	return a.LiquidityGross.Eq(b.LiquidityGross) &&
		a.LiquidityNet.Cmp(b.LiquidityNet) == 0 &&
		a.FeeGrowthOutside0X128.Eq(b.FeeGrowthOutside0X128) &&
		a.FeeGrowthOutside1X128.Eq(b.FeeGrowthOutside1X128) &&
		a.SecondsOutside == b.SecondsOutside
}

func samePosition(a, b position.Info) bool {
	return a.Liquidity.Eq(b.Liquidity) &&
		a.FeeGrowthInside0LastX128.Eq(b.FeeGrowthInside0LastX128) &&
		a.FeeGrowthInside1LastX128.Eq(b.FeeGrowthInside1LastX128) &&
		a.FeesOwed0.Eq(b.FeesOwed0) &&
		a.FeesOwed1.Eq(b.FeesOwed1)
}
