package engine

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/clmm-go/tickmath"
	"github.com/defistate/clmm-go/ticktable"
)

var (
	ownerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	pairAddr   = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	walletAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	otherAddr  = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// maxRequest asks collect for everything.
var maxRequest = new(uint256.Int).Neg(uint256.NewInt(1))

type fixture struct {
	pair   *Pair
	token0 *MemToken
	token1 *MemToken
	log    *EventLog
	wallet *Payer
	other  *Payer
}

func newFixture(t *testing.T, fee uint64, tickSpacing int) *fixture {
	t.Helper()
	token0 := NewMemToken(common.HexToAddress("0x0000000000000000000000000000000000000001"))
	token1 := NewMemToken(common.HexToAddress("0x0000000000000000000000000000000000000002"))
	funds := uint256.MustFromDecimal("100000000000000000000000000000000000000")
	for _, account := range []common.Address{walletAddr, otherAddr} {
		token0.Mint(account, funds)
		token1.Mint(account, funds)
	}

	log := NewEventLog(0)
	pair, err := New(Config{
		Token0:      token0,
		Token1:      token1,
		PairAddress: pairAddr,
		Owner:       ownerAddr,
		Fee:         fee,
		TickSpacing: tickSpacing,
		Sink:        log,
	})
	require.NoError(t, err)
	require.NoError(t, pair.SetTime(0))

	return &fixture{
		pair:   pair,
		token0: token0,
		token1: token1,
		log:    log,
		wallet: &Payer{Account: walletAddr, Token0: token0, Token1: token1, Pair: pairAddr},
		other:  &Payer{Account: otherAddr, Token0: token0, Token1: token1, Pair: pairAddr},
	}
}

func (f *fixture) init(t *testing.T, price *uint256.Int) {
	t.Helper()
	require.NoError(t, f.pair.Initialize(context.Background(), walletAddr, price))
}

func (f *fixture) pairBalances(t *testing.T) (b0, b1 *uint256.Int) {
	t.Helper()
	ctx := context.Background()
	b0, err := f.token0.BalanceOf(ctx, pairAddr)
	require.NoError(t, err)
	b1, err = f.token1.BalanceOf(ctx, pairAddr)
	require.NoError(t, err)
	return b0, b1
}

func encodePriceSqrt(reserve1, reserve0 int64) *uint256.Int {
	num := new(big.Int).Mul(big.NewInt(reserve1), new(big.Int).Lsh(big.NewInt(1), 192))
	ratio := new(big.Int).Div(num, big.NewInt(reserve0))
	return uint256.MustFromBig(new(big.Int).Sqrt(ratio))
}

func e18(x int64) *uint256.Int {
	v := new(big.Int).Mul(big.NewInt(x), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	return uint256.MustFromBig(v)
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()

	t.Run("at 1:2 lands on tick -6932 and mints the dead unit", func(t *testing.T) {
		f := newFixture(t, 3000, 60)
		f.init(t, encodePriceSqrt(1, 2))

		slot := f.pair.Slot0()
		assert.Equal(t, -6932, slot.Tick)
		assert.True(t, slot.Unlocked)
		assert.Equal(t, "1", f.pair.Liquidity().Dec())

		dead, ok := f.pair.Position(common.Address{}, tickmath.MinUsableTick(60), tickmath.MaxUsableTick(60))
		require.True(t, ok)
		assert.Equal(t, "1", dead.Liquidity.Dec())

		b0, b1 := f.pairBalances(t)
		assert.Equal(t, "2", b0.Dec())
		assert.Equal(t, "1", b1.Dec())
	})

	t.Run("twice fails", func(t *testing.T) {
		f := newFixture(t, 3000, 60)
		f.init(t, encodePriceSqrt(1, 2))
		err := f.pair.Initialize(ctx, walletAddr, encodePriceSqrt(1, 2))
		require.ErrorIs(t, err, ErrAlreadyInitialized)
	})

	t.Run("price outside the tick domain fails", func(t *testing.T) {
		f := newFixture(t, 3000, 60)
		err := f.pair.Initialize(ctx, walletAddr, uint256.NewInt(123))
		require.ErrorIs(t, err, tickmath.ErrSqrtPriceOutOfBounds)
	})

	t.Run("price below the usable range fails", func(t *testing.T) {
		f := newFixture(t, 3000, 60)
		var ratio uint256.Int
		require.NoError(t, tickmath.GetSqrtRatioAtTick(&ratio, tickmath.MinUsableTick(60)))
		ratio.SubUint64(&ratio, 1)
		err := f.pair.Initialize(ctx, walletAddr, &ratio)
		require.ErrorIs(t, err, ErrPriceBelowRange)
	})

	t.Run("price at the usable upper bound fails", func(t *testing.T) {
		f := newFixture(t, 3000, 60)
		var ratio uint256.Int
		require.NoError(t, tickmath.GetSqrtRatioAtTick(&ratio, tickmath.MaxUsableTick(60)))
		err := f.pair.Initialize(ctx, walletAddr, &ratio)
		require.ErrorIs(t, err, ErrPriceAboveRange)
	})

	t.Run("every mutator is locked before initialization", func(t *testing.T) {
		f := newFixture(t, 3000, 60)
		_, _, err := f.pair.Mint(ctx, walletAddr, walletAddr, -60, 60, uint256.NewInt(1))
		require.ErrorIs(t, err, ErrLocked)
		_, _, err = f.pair.Burn(ctx, walletAddr, -60, 60, uint256.NewInt(1))
		require.ErrorIs(t, err, ErrLocked)
		_, _, err = f.pair.SwapExact0For1(ctx, walletAddr, uint256.NewInt(1), f.wallet, nil)
		require.ErrorIs(t, err, ErrLocked)
		_, _, err = f.pair.Collect(ctx, walletAddr, -60, 60, walletAddr, maxRequest, maxRequest)
		require.ErrorIs(t, err, ErrLocked)
		require.ErrorIs(t, f.pair.SetFeeTo(ownerAddr, otherAddr), ErrLocked)
		stray := NewMemToken(common.HexToAddress("0x0000000000000000000000000000000000000003"))
		require.ErrorIs(t, f.pair.Recover(ctx, ownerAddr, stray, otherAddr, uint256.NewInt(1)), ErrLocked)
		require.NoError(t, f.pair.SetTime(7), "the clock hook stays usable before initialization")
	})
}

// reinitToken re-enters Initialize from inside the transfer that funds the
// dead position, at a different price than the outer call.
type reinitToken struct {
	*MemToken
	pair     *Pair
	price    *uint256.Int
	fired    bool
	observed error
}

func (t *reinitToken) TransferFrom(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if !t.fired {
		t.fired = true
		t.observed = t.pair.Initialize(ctx, from, t.price)
	}
	return t.MemToken.TransferFrom(ctx, from, to, amount)
}

func TestInitializeReentrancy(t *testing.T) {
	ctx := context.Background()
	token0 := &reinitToken{
		MemToken: NewMemToken(common.HexToAddress("0x0000000000000000000000000000000000000001")),
		price:    encodePriceSqrt(1, 1),
	}
	token1 := NewMemToken(common.HexToAddress("0x0000000000000000000000000000000000000002"))
	funds := uint256.MustFromDecimal("100000000000000000000000000000000000000")
	token0.Mint(walletAddr, funds)
	token1.Mint(walletAddr, funds)

	log := NewEventLog(0)
	pair, err := New(Config{
		Token0:      token0,
		Token1:      token1,
		PairAddress: pairAddr,
		Owner:       ownerAddr,
		Fee:         3000,
		TickSpacing: 60,
		Sink:        log,
	})
	require.NoError(t, err)
	require.NoError(t, pair.SetTime(0))
	token0.pair = pair

	require.NoError(t, pair.Initialize(ctx, walletAddr, encodePriceSqrt(1, 2)))
	require.True(t, token0.fired)
	require.ErrorIs(t, token0.observed, ErrLocked, "nested initialize rejected")

	slot := pair.Slot0()
	assert.Equal(t, -6932, slot.Tick, "the outer price stands")
	assert.Equal(t, "1", pair.Liquidity().Dec())
	dead, ok := pair.Position(common.Address{}, tickmath.MinUsableTick(60), tickmath.MaxUsableTick(60))
	require.True(t, ok)
	assert.Equal(t, "1", dead.Liquidity.Dec(), "the dead unit is minted once")
	assert.Len(t, log.All(), 1)
}

func TestMintAmounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3000, 60)
	f.init(t, encodePriceSqrt(1, 10))
	minTick := tickmath.MinUsableTick(60)
	maxTick := tickmath.MaxUsableTick(60)

	_, _, err := f.pair.Mint(ctx, walletAddr, walletAddr, minTick, maxTick, uint256.NewInt(3161))
	require.NoError(t, err)
	b0, b1 := f.pairBalances(t)
	assert.Equal(t, "10000", b0.Dec())
	assert.Equal(t, "1001", b1.Dec())

	t.Run("entirely above the price takes only token0", func(t *testing.T) {
		a0, a1, err := f.pair.Mint(ctx, walletAddr, walletAddr, -22980, 0, uint256.NewInt(10000))
		require.NoError(t, err)
		assert.Equal(t, "21549", a0.String())
		assert.Equal(t, "0", a1.String())
	})

	t.Run("straddling the price takes both", func(t *testing.T) {
		a0, a1, err := f.pair.Mint(ctx, walletAddr, walletAddr, minTick+60, maxTick-60, uint256.NewInt(100))
		require.NoError(t, err)
		assert.Equal(t, "317", a0.String())
		assert.Equal(t, "32", a1.String())
	})
}

func TestMintValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3000, 60)
	f.init(t, encodePriceSqrt(1, 1))
	one := uint256.NewInt(1)

	cases := []struct {
		name   string
		lower  int
		upper  int
		target error
	}{
		{"lower not below upper", 60, 60, ErrTickLowerNotBelowUpper},
		{"lower below usable range", tickmath.MinUsableTick(60) - 60, 0, ErrTickLowerTooSmall},
		{"upper above usable range", 0, tickmath.MaxUsableTick(60) + 60, ErrTickUpperTooLarge},
		{"unaligned lower", -61, 60, ErrTickNotSpaced},
		{"unaligned upper", -60, 61, ErrTickNotSpaced},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, err := f.pair.Mint(ctx, walletAddr, walletAddr, c.lower, c.upper, one)
			require.ErrorIs(t, err, c.target)
		})
	}

	t.Run("per-tick capacity", func(t *testing.T) {
		over := new(uint256.Int).AddUint64(tickmath.MaxLiquidityPerTick(60), 1)
		_, _, err := f.pair.Mint(ctx, walletAddr, walletAddr, -60, 60, over)
		require.ErrorIs(t, err, ticktable.ErrLiquidityGrossOverflow)
	})
}

func TestFeeAccrual(t *testing.T) {
	ctx := context.Background()
	minTick := tickmath.MinUsableTick(60)
	maxTick := tickmath.MaxUsableTick(60)

	setup := func(t *testing.T) *fixture {
		f := newFixture(t, 600, 60)
		f.init(t, encodePriceSqrt(1, 1))
		_, _, err := f.pair.Mint(ctx, walletAddr, walletAddr, minTick, maxTick, e18(1000))
		require.NoError(t, err)
		return f
	}
	poke := func(t *testing.T, f *fixture) {
		_, _, err := f.pair.Mint(ctx, walletAddr, walletAddr, minTick, maxTick, uint256.NewInt(0))
		require.NoError(t, err)
	}

	t.Run("one swap accrues the full fee to the position", func(t *testing.T) {
		f := setup(t)
		a0, a1, err := f.pair.SwapExact0For1(ctx, walletAddr, e18(1), f.wallet, nil)
		require.NoError(t, err)
		assert.Equal(t, "1000000000000000000", a0.String())
		assert.Equal(t, "-998402196844473633", a1.String())

		poke(t, f)
		c0, c1, err := f.pair.Collect(ctx, walletAddr, minTick, maxTick, walletAddr, maxRequest, maxRequest)
		require.NoError(t, err)
		assert.Equal(t, "599999999999999", c0.Dec())
		assert.Equal(t, "0", c1.Dec())
	})

	t.Run("two sequential swaps accrue one wei short of double", func(t *testing.T) {
		f := setup(t)
		total := new(uint256.Int)
		for i := 0; i < 2; i++ {
			_, _, err := f.pair.SwapExact0For1(ctx, walletAddr, e18(1), f.wallet, nil)
			require.NoError(t, err)
			poke(t, f)
			c0, _, err := f.pair.Collect(ctx, walletAddr, minTick, maxTick, walletAddr, maxRequest, maxRequest)
			require.NoError(t, err)
			total.Add(total, c0)
		}
		assert.Equal(t, "1199999999999998", total.Dec())
	})

	t.Run("protocol fee takes a floored sixth at credit time", func(t *testing.T) {
		f := setup(t)
		require.NoError(t, f.pair.SetFeeTo(ownerAddr, otherAddr))

		_, _, err := f.pair.SwapExact0For1(ctx, walletAddr, e18(1), f.wallet, nil)
		require.NoError(t, err)
		poke(t, f)

		c0, c1, err := f.pair.Collect(ctx, walletAddr, minTick, maxTick, walletAddr, maxRequest, maxRequest)
		require.NoError(t, err)
		assert.Equal(t, "500000000000000", c0.Dec())
		assert.Equal(t, "0", c1.Dec())

		f0, f1 := f.pair.ProtocolFees()
		assert.Equal(t, "99999999999999", f0.Dec())
		assert.Equal(t, "0", f1.Dec())

		p0, p1, err := f.pair.CollectProtocol(ctx, ownerAddr, otherAddr, maxRequest, maxRequest)
		require.NoError(t, err)
		assert.Equal(t, "99999999999999", p0.Dec())
		assert.Equal(t, "0", p1.Dec())
		f0, _ = f.pair.ProtocolFees()
		assert.True(t, f0.IsZero())
	})

	t.Run("collect is capped by the requested amounts", func(t *testing.T) {
		f := setup(t)
		_, _, err := f.pair.SwapExact0For1(ctx, walletAddr, e18(1), f.wallet, nil)
		require.NoError(t, err)
		poke(t, f)

		c0, _, err := f.pair.Collect(ctx, walletAddr, minTick, maxTick, walletAddr, uint256.NewInt(100), maxRequest)
		require.NoError(t, err)
		assert.Equal(t, "100", c0.Dec())

		c0, _, err = f.pair.Collect(ctx, walletAddr, minTick, maxTick, walletAddr, maxRequest, maxRequest)
		require.NoError(t, err)
		assert.Equal(t, "599999999999899", c0.Dec())
	})
}

// A tiny exact-input swap that lands one price unit below a boundary must
// cross that boundary exactly once.
func TestTickTransitionSingleFire(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3000, 1)
	require.NoError(t, f.pair.SetTime(100))

	var boundary uint256.Int
	require.NoError(t, tickmath.GetSqrtRatioAtTick(&boundary, -24081))
	start := new(uint256.Int).AddUint64(&boundary, 1)
	f.init(t, start)
	require.Equal(t, -24081, f.pair.Slot0().Tick)

	_, _, err := f.pair.Mint(ctx, walletAddr, walletAddr, -24082, -24080, e18(1000))
	require.NoError(t, err)
	_, _, err = f.pair.Mint(ctx, walletAddr, walletAddr, -24082, -24081, e18(1000))
	require.NoError(t, err)

	info, ok := f.pair.Tick(-24081)
	require.True(t, ok)
	require.Equal(t, uint32(100), info.SecondsOutside)

	a0, a1, err := f.pair.SwapExact0For1(ctx, walletAddr, uint256.NewInt(3), f.wallet, nil)
	require.NoError(t, err)
	assert.Equal(t, "3", a0.String())
	assert.Equal(t, "0", a1.String())

	slot := f.pair.Slot0()
	assert.Equal(t, -24082, slot.Tick)
	assert.True(t, slot.SqrtPriceX96.Eq(&boundary), "price stops exactly on the boundary ratio")
	assert.Equal(t, "2000000000000000000001", f.pair.Liquidity().Dec())

	info, ok = f.pair.Tick(-24081)
	require.True(t, ok)
	assert.Equal(t, uint32(0), info.SecondsOutside, "outside counter flipped by the crossing")
}

func TestLimitOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3000, 60)
	f.init(t, encodePriceSqrt(1, 1))
	minTick := tickmath.MinUsableTick(60)
	maxTick := tickmath.MaxUsableTick(60)

	// Background liquidity so the pair carries exactly 2e18 with the dead
	// unit included.
	background := new(uint256.Int).SubUint64(e18(2), 1)
	_, _, err := f.pair.Mint(ctx, walletAddr, walletAddr, minTick, maxTick, background)
	require.NoError(t, err)
	require.Equal(t, "2000000000000000000", f.pair.Liquidity().Dec())

	a0, a1, err := f.pair.Mint(ctx, walletAddr, walletAddr, 0, 120, e18(1))
	require.NoError(t, err)
	assert.Equal(t, "5981737760509663", a0.String())
	assert.Equal(t, "0", a1.String())

	_, _, err = f.pair.SwapExact1For0(ctx, otherAddr, e18(2), f.other, nil)
	require.NoError(t, err)
	assert.Greater(t, f.pair.Slot0().Tick, 120, "price moved through the order range")

	b0, b1, err := f.pair.Burn(ctx, walletAddr, 0, 120, e18(1))
	require.NoError(t, err)
	assert.Equal(t, "0", b0.String())
	assert.Equal(t, "6017734268818165", b1.String())

	c0, c1, err := f.pair.Collect(ctx, walletAddr, 0, 120, walletAddr, maxRequest, maxRequest)
	require.NoError(t, err)
	assert.Equal(t, "0", c0.Dec())
	assert.Equal(t, "6035841794200767", c1.Dec(), "principal plus swap fees")
}

func TestTickCumulative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3000, 60)
	f.init(t, encodePriceSqrt(1, 1))
	background := new(uint256.Int).SubUint64(e18(2), 1)
	_, _, err := f.pair.Mint(ctx, walletAddr, walletAddr, tickmath.MinUsableTick(60), tickmath.MaxUsableTick(60), background)
	require.NoError(t, err)

	tc, _ := f.pair.Cumulatives()
	assert.Equal(t, int64(0), tc)
	require.NoError(t, f.pair.SetTime(10))
	tc, now := f.pair.Cumulatives()
	assert.Equal(t, int64(0), tc, "tick zero accrues nothing")
	assert.Equal(t, uint32(10), now)

	require.NoError(t, f.pair.SetTime(4))
	_, _, err = f.pair.SwapExact0For1(ctx, walletAddr, uint256.MustFromDecimal("500000000000000000"), f.wallet, nil)
	require.NoError(t, err)
	require.Equal(t, -4452, f.pair.Slot0().Tick)

	require.NoError(t, f.pair.SetTime(10))
	_, _, err = f.pair.SwapExact1For0(ctx, walletAddr, uint256.MustFromDecimal("250000000000000000"), f.wallet, nil)
	require.NoError(t, err)
	require.Equal(t, -1558, f.pair.Slot0().Tick)

	tc, _ = f.pair.Cumulatives()
	assert.Equal(t, int64(-27156), tc, "-4452*4 + -1558*6")
	assert.Equal(t, int64(-27156), f.pair.Slot0().TickCumulativeLast)
}
