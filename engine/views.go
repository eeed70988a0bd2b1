package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/clmm-go/position"
	"github.com/defistate/clmm-go/ticktable"
)

// Slot0View is a copy of the pair's hot state.
type Slot0View struct {
	SqrtPriceX96       *uint256.Int
	Tick               int
	BlockTimestampLast uint32
	TickCumulativeLast int64
	Unlocked           bool
}

func (p *Pair) Slot0() Slot0View {
	return Slot0View{
		SqrtPriceX96:       new(uint256.Int).Set(&p.slot0.sqrtPriceX96),
		Tick:               p.slot0.tick,
		BlockTimestampLast: p.slot0.blockTimestampLast,
		TickCumulativeLast: p.slot0.tickCumulativeLast,
		Unlocked:           p.slot0.unlocked,
	}
}

// Liquidity returns the in-range liquidity.
func (p *Pair) Liquidity() *uint256.Int {
	return new(uint256.Int).Set(&p.liquidity)
}

// FeeGrowthGlobals returns the two Q128.128 global fee-growth counters.
func (p *Pair) FeeGrowthGlobals() (g0, g1 *uint256.Int) {
	return new(uint256.Int).Set(&p.feeGrowthGlobal0X128), new(uint256.Int).Set(&p.feeGrowthGlobal1X128)
}

// ProtocolFees returns the accumulated, uncollected protocol fees.
func (p *Pair) ProtocolFees() (f0, f1 *uint256.Int) {
	return new(uint256.Int).Set(&p.feeToFees0), new(uint256.Int).Set(&p.feeToFees1)
}

func (p *Pair) FeeTo() common.Address {
	return p.feeTo
}

// Cumulatives returns the tick cumulative extrapolated to the current
// clock with the current tick, without mutating the accumulator, and the
// timestamp it corresponds to.
func (p *Pair) Cumulatives() (tickCumulative int64, blockTimestamp uint32) {
	now := p.clock()
	elapsed := int64(now - p.slot0.blockTimestampLast)
	return wrap56(p.slot0.tickCumulativeLast + int64(p.slot0.tick)*elapsed), now
}

// Tick returns a copy of one initialized tick's state.
func (p *Pair) Tick(i int) (ticktable.Info, bool) {
	return p.ticks.Get(i)
}

// Position returns a copy of one position's state.
func (p *Pair) Position(owner common.Address, tickLower, tickUpper int) (position.Info, bool) {
	return p.positions.Get(position.Key{Owner: owner, TickLower: tickLower, TickUpper: tickUpper})
}

// VirtualReserves derives the local constant-product reserves implied by
// the active liquidity and price: reserve0 = L·2^96/√P, reserve1 = L·√P/2^96.
func (p *Pair) VirtualReserves() (reserve0, reserve1 *big.Int) {
	liquidity := p.liquidity.ToBig()
	sqrtPrice := p.slot0.sqrtPriceX96.ToBig()
	reserve0 = new(big.Int)
	reserve1 = new(big.Int)
	if sqrtPrice.Sign() == 0 {
		return reserve0, reserve1
	}
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)
	reserve0.Div(new(big.Int).Mul(liquidity, q96), sqrtPrice)
	reserve1.Div(new(big.Int).Mul(liquidity, sqrtPrice), q96)
	return reserve0, reserve1
}

// SpotPrice returns (√P / 2^96)² — token1 per token0.
func (p *Pair) SpotPrice() *big.Float {
	sqrt := new(big.Float).SetInt(p.slot0.sqrtPriceX96.ToBig())
	sqrt.Quo(sqrt, new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96)))
	return new(big.Float).Mul(sqrt, sqrt)
}
