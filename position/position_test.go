package position

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/clmm-go/fullmath"
	"github.com/defistate/clmm-go/liquiditymath"
)

var wallet = common.HexToAddress("0x1111111111111111111111111111111111111111")

func testKey() Key {
	return Key{Owner: wallet, TickLower: -60, TickUpper: 60}
}

// growthFor returns the inside growth that accrues exactly `fees` on
// `liquidity`: fees * 2^128 / liquidity, rounded up so the floor multiply
// recovers fees.
func growthFor(t *testing.T, fees, liquidity uint64) *uint256.Int {
	t.Helper()
	g := new(uint256.Int)
	require.NoError(t, fullmath.MulDivRoundingUp(g, uint256.NewInt(fees), fullmath.Q128, uint256.NewInt(liquidity)))
	return g
}

func TestLedger_LazyCreation(t *testing.T) {
	l := NewLedger()
	zero := new(uint256.Int)

	t.Run("poke before any mint fails", func(t *testing.T) {
		_, _, err := l.Update(testKey(), big.NewInt(0), zero, zero, 0)
		require.ErrorIs(t, err, ErrNoPosition)
		assert.Equal(t, 0, l.Len())
	})

	t.Run("burn before any mint fails", func(t *testing.T) {
		_, _, err := l.Update(testKey(), big.NewInt(-1), zero, zero, 0)
		require.ErrorIs(t, err, ErrNoPosition)
	})

	t.Run("mint creates with zeroed snapshots", func(t *testing.T) {
		_, _, err := l.Update(testKey(), big.NewInt(1000), zero, zero, 0)
		require.NoError(t, err)

		p, ok := l.Get(testKey())
		require.True(t, ok)
		assert.Equal(t, "1000", p.Liquidity.Dec())
		assert.True(t, p.FeeGrowthInside0LastX128.IsZero())
		assert.True(t, p.FeesOwed0.IsZero())
	})
}

func TestLedger_FeeAccrual(t *testing.T) {
	l := NewLedger()
	zero := new(uint256.Int)
	_, _, err := l.Update(testKey(), big.NewInt(1_000_000), zero, zero, 0)
	require.NoError(t, err)

	g0 := growthFor(t, 5000, 1_000_000)
	g1 := growthFor(t, 300, 1_000_000)

	t.Run("poke credits growth since last snapshot", func(t *testing.T) {
		_, _, err := l.Update(testKey(), big.NewInt(0), g0, g1, 0)
		require.NoError(t, err)

		p, _ := l.Get(testKey())
		assert.Equal(t, "5000", p.FeesOwed0.Dec())
		assert.Equal(t, "300", p.FeesOwed1.Dec())
		assert.True(t, p.FeeGrowthInside0LastX128.Eq(g0), "snapshot advanced")
	})

	t.Run("repeat poke at same growth credits nothing", func(t *testing.T) {
		_, _, err := l.Update(testKey(), big.NewInt(0), g0, g1, 0)
		require.NoError(t, err)
		p, _ := l.Get(testKey())
		assert.Equal(t, "5000", p.FeesOwed0.Dec())
	})

	t.Run("wrapped growth delta still accrues", func(t *testing.T) {
		// Seed a fresh position whose last snapshot sits near the top of
		// the ring, then observe a small wrapped global.
		key := Key{Owner: wallet, TickLower: 0, TickUpper: 60}
		nearMax := new(uint256.Int).Sub(new(uint256.Int).Neg(uint256.NewInt(1)), uint256.NewInt(5))
		_, _, err := l.Update(key, big.NewInt(1_000_000), nearMax, zero, 0)
		require.NoError(t, err)

		wrapped := new(uint256.Int).Add(nearMax, growthFor(t, 77, 1_000_000))
		_, _, err = l.Update(key, big.NewInt(0), wrapped, zero, 0)
		require.NoError(t, err)

		p, _ := l.Get(key)
		assert.Equal(t, "77", p.FeesOwed0.Dec())
	})
}

func TestLedger_ProtocolCut(t *testing.T) {
	l := NewLedger()
	zero := new(uint256.Int)
	_, _, err := l.Update(testKey(), big.NewInt(1_000_000), zero, zero, 0)
	require.NoError(t, err)

	// 599999999999999 accrued with a sixth withheld: the floored cut is
	// 99999999999999 and the position keeps exactly 500000000000000.
	g := new(uint256.Int)
	require.NoError(t, fullmath.MulDivRoundingUp(g, uint256.MustFromDecimal("599999999999999"), fullmath.Q128, uint256.NewInt(1_000_000)))

	cut0, cut1, err := l.Update(testKey(), big.NewInt(0), g, zero, 6)
	require.NoError(t, err)
	assert.Equal(t, "99999999999999", cut0.Dec())
	assert.True(t, cut1.IsZero())

	p, _ := l.Get(testKey())
	assert.Equal(t, "500000000000000", p.FeesOwed0.Dec())
}

func TestLedger_BurnToZeroResetsSnapshots(t *testing.T) {
	l := NewLedger()
	zero := new(uint256.Int)
	_, _, err := l.Update(testKey(), big.NewInt(500), zero, zero, 0)
	require.NoError(t, err)

	g := growthFor(t, 100, 500)
	_, _, err = l.Update(testKey(), big.NewInt(-500), g, g, 0)
	require.NoError(t, err)

	p, ok := l.Get(testKey())
	require.True(t, ok, "position persists at zero liquidity")
	assert.True(t, p.Liquidity.IsZero())
	assert.True(t, p.FeeGrowthInside0LastX128.IsZero(), "snapshots reset on emptying")
	assert.Equal(t, "100", p.FeesOwed0.Dec(), "owed fees survive the burn")

	t.Run("poke after full burn fails", func(t *testing.T) {
		_, _, err := l.Update(testKey(), big.NewInt(0), g, g, 0)
		require.ErrorIs(t, err, ErrNoPosition)
	})

	t.Run("over-burn underflows", func(t *testing.T) {
		_, _, err := l.Update(testKey(), big.NewInt(-1), g, g, 0)
		require.ErrorIs(t, err, liquiditymath.ErrLiquiditySub)
	})
}

func TestLedger_Collect(t *testing.T) {
	l := NewLedger()
	zero := new(uint256.Int)
	_, _, err := l.Update(testKey(), big.NewInt(1_000_000), zero, zero, 0)
	require.NoError(t, err)
	_, _, err = l.Update(testKey(), big.NewInt(0), growthFor(t, 900, 1_000_000), growthFor(t, 40, 1_000_000), 0)
	require.NoError(t, err)

	t.Run("capped by request", func(t *testing.T) {
		c0, c1 := l.Collect(testKey(), uint256.NewInt(250), uint256.NewInt(1000))
		assert.Equal(t, "250", c0.Dec())
		assert.Equal(t, "40", c1.Dec())

		p, _ := l.Get(testKey())
		assert.Equal(t, "650", p.FeesOwed0.Dec())
		assert.True(t, p.FeesOwed1.IsZero())
	})

	t.Run("missing position collects nothing", func(t *testing.T) {
		c0, c1 := l.Collect(Key{Owner: wallet, TickLower: 1, TickUpper: 2}, uint256.NewInt(10), uint256.NewInt(10))
		assert.True(t, c0.IsZero())
		assert.True(t, c1.IsZero())
	})
}

func TestLedger_AllIsDeterministic(t *testing.T) {
	l := NewLedger()
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	zero := new(uint256.Int)
	for _, k := range []Key{
		{Owner: other, TickLower: 0, TickUpper: 60},
		{Owner: wallet, TickLower: -60, TickUpper: 0},
		{Owner: wallet, TickLower: -60, TickUpper: 60},
	} {
		_, _, err := l.Update(k, big.NewInt(1), zero, zero, 0)
		require.NoError(t, err)
	}

	keys, infos := l.All()
	require.Len(t, keys, 3)
	require.Len(t, infos, 3)
	assert.Equal(t, Key{Owner: wallet, TickLower: -60, TickUpper: 0}, keys[0])
	assert.Equal(t, Key{Owner: wallet, TickLower: -60, TickUpper: 60}, keys[1])
	assert.Equal(t, Key{Owner: other, TickLower: 0, TickUpper: 60}, keys[2])
}
