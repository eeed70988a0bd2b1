// Package position is the per-owner, per-range liquidity ledger of a pair.
// A position is keyed by (owner, tickLower, tickUpper); it tracks its
// liquidity, the inside fee-growth snapshots taken at its last touch, and
// the fees owed to the owner. Positions are created lazily by the first
// mint with positive liquidity and persist at zero liquidity so accrued
// fees remain collectible.
package position

import (
	"bytes"
	"errors"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/clmm-go/fullmath"
	"github.com/defistate/clmm-go/liquiditymath"
)

// ErrNoPosition is returned for a fees-only update of a position that holds
// no liquidity, whether it was never minted or fully burned.
var ErrNoPosition = errors.New("NP: position has no liquidity to poke")

// Key identifies one position.
type Key struct {
	Owner     common.Address
	TickLower int
	TickUpper int
}

// Info is one position's state.
type Info struct {
	Liquidity *uint256.Int

	// FeeGrowthInside0LastX128 and FeeGrowthInside1LastX128 are the
	// inside-growth values observed at the last update. Q128.128.
	FeeGrowthInside0LastX128 *uint256.Int
	FeeGrowthInside1LastX128 *uint256.Int

	// FeesOwed0 and FeesOwed1 accumulate until collected.
	FeesOwed0 *uint256.Int
	FeesOwed1 *uint256.Int
}

func newInfo() *Info {
	return &Info{
		Liquidity:                new(uint256.Int),
		FeeGrowthInside0LastX128: new(uint256.Int),
		FeeGrowthInside1LastX128: new(uint256.Int),
		FeesOwed0:                new(uint256.Int),
		FeesOwed1:                new(uint256.Int),
	}
}

func (p *Info) clone() Info {
	return Info{
		Liquidity:                new(uint256.Int).Set(p.Liquidity),
		FeeGrowthInside0LastX128: new(uint256.Int).Set(p.FeeGrowthInside0LastX128),
		FeeGrowthInside1LastX128: new(uint256.Int).Set(p.FeeGrowthInside1LastX128),
		FeesOwed0:                new(uint256.Int).Set(p.FeesOwed0),
		FeesOwed1:                new(uint256.Int).Set(p.FeesOwed1),
	}
}

// Ledger holds every position of one pair.
type Ledger struct {
	positions map[Key]*Info
}

func NewLedger() *Ledger {
	return &Ledger{positions: make(map[Key]*Info)}
}

// Get returns a copy of the position's state and whether it exists.
func (l *Ledger) Get(key Key) (Info, bool) {
	p, ok := l.positions[key]
	if !ok {
		return Info{}, false
	}
	return p.clone(), true
}

// Len returns the number of tracked positions.
func (l *Ledger) Len() int {
	return len(l.positions)
}

// All returns every position in a deterministic order (owner bytes, then
// lower, then upper), with copied state.
func (l *Ledger) All() ([]Key, []Info) {
	keys := make([]Key, 0, len(l.positions))
	for k := range l.positions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := bytes.Compare(keys[i].Owner[:], keys[j].Owner[:]); c != 0 {
			return c < 0
		}
		if keys[i].TickLower != keys[j].TickLower {
			return keys[i].TickLower < keys[j].TickLower
		}
		return keys[i].TickUpper < keys[j].TickUpper
	})
	infos := make([]Info, len(keys))
	for n, k := range keys {
		infos[n] = l.positions[k].clone()
	}
	return keys, infos
}

// Update applies a liquidity delta and settles fees accrued since the last
// touch, given the current inside growth over the position's range. When
// protocolFeeDenominator is non-zero, 1/denominator of each accrued amount
// (floored) is withheld and returned; the remainder is credited to the
// position. A zero delta on a zero-liquidity position fails with
// ErrNoPosition.
func (l *Ledger) Update(
	key Key,
	liquidityDelta *big.Int,
	feeGrowthInside0X128, feeGrowthInside1X128 *uint256.Int,
	protocolFeeDenominator uint64,
) (protocol0, protocol1 *uint256.Int, err error) {
	p, exists := l.positions[key]
	if !exists {
		if liquidityDelta.Sign() <= 0 {
			return nil, nil, ErrNoPosition
		}
		p = newInfo()
	}

	if liquidityDelta.Sign() == 0 && p.Liquidity.IsZero() {
		return nil, nil, ErrNoPosition
	}

	liquidityNext := new(uint256.Int)
	if err := liquiditymath.AddDelta(liquidityNext, p.Liquidity, liquidityDelta); err != nil {
		return nil, nil, err
	}

	protocol0 = new(uint256.Int)
	protocol1 = new(uint256.Int)
	if err := settleOwed(p.FeesOwed0, protocol0, feeGrowthInside0X128, p.FeeGrowthInside0LastX128, p.Liquidity, protocolFeeDenominator); err != nil {
		return nil, nil, err
	}
	if err := settleOwed(p.FeesOwed1, protocol1, feeGrowthInside1X128, p.FeeGrowthInside1LastX128, p.Liquidity, protocolFeeDenominator); err != nil {
		return nil, nil, err
	}

	emptied := liquidityNext.IsZero() && !p.Liquidity.IsZero()
	p.Liquidity.Set(liquidityNext)
	if emptied {
		p.FeeGrowthInside0LastX128.Clear()
		p.FeeGrowthInside1LastX128.Clear()
	} else {
		p.FeeGrowthInside0LastX128.Set(feeGrowthInside0X128)
		p.FeeGrowthInside1LastX128.Set(feeGrowthInside1X128)
	}

	if !exists {
		l.positions[key] = p
	}
	return protocol0, protocol1, nil
}

// settleOwed credits the fees accrued since the last snapshot, minus the
// protocol's floored share, wrapping the growth delta mod 2^256.
func settleOwed(owed, protocol, insideNow, insideLast, liquidity *uint256.Int, protocolFeeDenominator uint64) error {
	var delta, accrued uint256.Int
	delta.Sub(insideNow, insideLast)
	if err := fullmath.MulDiv(&accrued, &delta, liquidity, fullmath.Q128); err != nil {
		return err
	}
	if accrued.IsZero() {
		return nil
	}
	if protocolFeeDenominator > 0 {
		var cut uint256.Int
		cut.Div(&accrued, uint256.NewInt(protocolFeeDenominator))
		protocol.Set(&cut)
		accrued.Sub(&accrued, &cut)
	}
	owed.Add(owed, &accrued)
	return nil
}

// Credit adds directly to the position's owed balances. Burns use it to
// make principal collectible alongside accrued fees.
func (l *Ledger) Credit(key Key, amount0, amount1 *uint256.Int) {
	p, ok := l.positions[key]
	if !ok {
		return
	}
	p.FeesOwed0.Add(p.FeesOwed0, amount0)
	p.FeesOwed1.Add(p.FeesOwed1, amount1)
}

// Collect pops up to the requested amounts from the position's owed fees.
// A missing position collects nothing.
func (l *Ledger) Collect(key Key, amount0Requested, amount1Requested *uint256.Int) (collected0, collected1 *uint256.Int) {
	collected0 = new(uint256.Int)
	collected1 = new(uint256.Int)
	p, ok := l.positions[key]
	if !ok {
		return collected0, collected1
	}
	pop(collected0, p.FeesOwed0, amount0Requested)
	pop(collected1, p.FeesOwed1, amount1Requested)
	return collected0, collected1
}

func pop(dest, owed, requested *uint256.Int) {
	if requested.Lt(owed) {
		dest.Set(requested)
	} else {
		dest.Set(owed)
	}
	owed.Sub(owed, dest)
}
