// Package engine implements a concentrated-liquidity pair: a single-owner,
// single-threaded state machine over a tick table and a position ledger.
// Every externally visible operation is a method on Pair; helpers mutate
// only through these methods. The swap fee accrues to global Q128.128
// growth counters during swaps and is split with the protocol (one sixth,
// floored) when a position is credited.
package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/clmm-go/liquiditymath"
	"github.com/defistate/clmm-go/position"
	"github.com/defistate/clmm-go/sqrtpricemath"
	"github.com/defistate/clmm-go/tickmath"
	"github.com/defistate/clmm-go/ticktable"
)

// protocolFeeDenominator is the LP-fee fraction diverted to feeTo while set.
const protocolFeeDenominator = 6

// slot0 is the hot state read by every operation.
type slot0 struct {
	sqrtPriceX96       uint256.Int
	tick               int
	blockTimestampLast uint32
	tickCumulativeLast int64 // signed 56-bit, wraps
	unlocked           bool
}

// Pair is one concentrated-liquidity pair. It is not safe for concurrent
// use; all methods are synchronous and atomic from the caller's view.
type Pair struct {
	token0      Token
	token1      Token
	pairAddress common.Address
	owner       common.Address
	fee         uint64
	tickSpacing int

	minTick             int
	maxTick             int
	maxLiquidityPerTick *uint256.Int

	slot0                slot0
	liquidity            uint256.Int
	feeGrowthGlobal0X128 uint256.Int
	feeGrowthGlobal1X128 uint256.Int
	feeToFees0           uint256.Int
	feeToFees1           uint256.Int
	feeTo                common.Address

	ticks        *ticktable.Table
	positions    *position.Ledger
	initializing bool

	clock   func() uint32
	logger  Logger
	sink    EventSink
	metrics *Metrics
}

// New builds an uninitialized pair from the config. Every mutator except
// Initialize fails with ErrLocked until Initialize succeeds.
func New(cfg Config) (*Pair, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = wallClock
	}

	minTick := tickmath.MinUsableTick(cfg.TickSpacing)
	maxTick := tickmath.MaxUsableTick(cfg.TickSpacing)
	maxLiquidity := tickmath.MaxLiquidityPerTick(cfg.TickSpacing)

	return &Pair{
		token0:              cfg.Token0,
		token1:              cfg.Token1,
		pairAddress:         cfg.PairAddress,
		owner:               cfg.Owner,
		fee:                 cfg.Fee,
		tickSpacing:         cfg.TickSpacing,
		minTick:             minTick,
		maxTick:             maxTick,
		maxLiquidityPerTick: maxLiquidity,
		ticks:               ticktable.New(maxLiquidity, cfg.Index),
		positions:           position.NewLedger(),
		clock:               clock,
		logger:              logger,
		sink:                cfg.Sink,
		metrics:             cfg.Metrics,
	}, nil
}

// deadOwner holds the unremovable unit of liquidity minted at
// initialization so active liquidity can never divide by zero.
var deadOwner = common.Address{}

// Initialize sets the starting price, derives the tick, and debits the cost
// of a one-wei full-range position owned by the zero address.
func (p *Pair) Initialize(ctx context.Context, sender common.Address, sqrtPriceX96 *uint256.Int) error {
	if p.busy() {
		p.metrics.observeError("initialize")
		return ErrLocked
	}
	if !p.slot0.sqrtPriceX96.IsZero() {
		p.metrics.observeError("initialize")
		return ErrAlreadyInitialized
	}
	// The lock flag stays false until the price is set, so the debit below
	// runs outside it; initializing closes that window against a token that
	// re-enters from its transfer.
	p.initializing = true
	defer func() { p.initializing = false }()

	tick, err := tickmath.GetTickAtSqrtRatio(sqrtPriceX96)
	if err != nil {
		p.metrics.observeError("initialize")
		return err
	}
	var minRatio, maxRatio uint256.Int
	if err := tickmath.GetSqrtRatioAtTick(&minRatio, p.minTick); err != nil {
		return err
	}
	if err := tickmath.GetSqrtRatioAtTick(&maxRatio, p.maxTick); err != nil {
		return err
	}
	if sqrtPriceX96.Lt(&minRatio) {
		p.metrics.observeError("initialize")
		return ErrPriceBelowRange
	}
	if !sqrtPriceX96.Lt(&maxRatio) {
		p.metrics.observeError("initialize")
		return ErrPriceAboveRange
	}

	deadAmount := uint256.NewInt(1)
	amount0, amount1, _, err := p.amountsForLiquidity(tick, sqrtPriceX96, p.minTick, p.maxTick, deadAmount.ToBig())
	if err != nil {
		return err
	}
	if err := p.debit(ctx, sender, amount0, amount1); err != nil {
		p.metrics.observeError("initialize")
		return err
	}

	now := p.clock()
	p.slot0.sqrtPriceX96.Set(sqrtPriceX96)
	p.slot0.tick = tick
	p.slot0.blockTimestampLast = now
	p.slot0.tickCumulativeLast = 0
	p.slot0.unlocked = true

	if err := p.applyModify(deadOwner, p.minTick, p.maxTick, deadAmount.ToBig(), now); err != nil {
		return err
	}

	p.logger.Info("pair initialized", "sqrtPriceX96", sqrtPriceX96.Dec(), "tick", tick)
	p.metrics.observeOp("initialize")
	p.observeState()
	p.publish(Initialized{SqrtPriceX96: new(uint256.Int).Set(sqrtPriceX96), Tick: tick})
	return nil
}

// Mint adds liquidity to owner's position over [tickLower, tickUpper],
// debiting the required token amounts from sender. A zero amount is a poke:
// it refreshes the position's fee snapshots and requires the position to
// hold liquidity.
func (p *Pair) Mint(ctx context.Context, sender, owner common.Address, tickLower, tickUpper int, amount *uint256.Int) (amount0, amount1 *big.Int, err error) {
	if err := p.lock(); err != nil {
		p.metrics.observeError("mint")
		return nil, nil, err
	}
	defer p.unlock()

	if err := p.checkTicks(tickLower, tickUpper); err != nil {
		p.metrics.observeError("mint")
		return nil, nil, err
	}

	delta := amount.ToBig()
	now := p.clock()

	if amount.Sign() > 0 {
		// Capacity check up front so the transfer happens only when the
		// state mutation cannot fail.
		if err := p.checkTickCapacity(tickLower, amount); err != nil {
			p.metrics.observeError("mint")
			return nil, nil, err
		}
		if err := p.checkTickCapacity(tickUpper, amount); err != nil {
			p.metrics.observeError("mint")
			return nil, nil, err
		}
		amount0, amount1, _, err = p.amountsForLiquidity(p.slot0.tick, &p.slot0.sqrtPriceX96, tickLower, tickUpper, delta)
		if err != nil {
			return nil, nil, err
		}
		if err := p.debit(ctx, sender, amount0, amount1); err != nil {
			p.metrics.observeError("mint")
			return nil, nil, err
		}
	} else {
		amount0, amount1 = new(big.Int), new(big.Int)
	}

	if err := p.applyModify(owner, tickLower, tickUpper, delta, now); err != nil {
		p.metrics.observeError("mint")
		return nil, nil, err
	}

	p.logger.Debug("mint", "owner", owner.Hex(), "tickLower", tickLower, "tickUpper", tickUpper,
		"amount", amount.Dec(), "amount0", amount0.String(), "amount1", amount1.String())
	p.metrics.observeOp("mint")
	p.observeState()
	p.publish(MintEvent{
		Sender: sender, Owner: owner,
		TickLower: tickLower, TickUpper: tickUpper,
		Amount:  new(uint256.Int).Set(amount),
		Amount0: new(big.Int).Set(amount0), Amount1: new(big.Int).Set(amount1),
	})
	return amount0, amount1, nil
}

// Burn removes liquidity from owner's position. Tokens are not transferred;
// the principal amounts become collectible owed balances. A zero amount is
// a poke through the burn path.
func (p *Pair) Burn(ctx context.Context, owner common.Address, tickLower, tickUpper int, amount *uint256.Int) (amount0, amount1 *big.Int, err error) {
	_ = ctx
	if err := p.lock(); err != nil {
		p.metrics.observeError("burn")
		return nil, nil, err
	}
	defer p.unlock()

	if err := p.checkTicks(tickLower, tickUpper); err != nil {
		p.metrics.observeError("burn")
		return nil, nil, err
	}

	key := position.Key{Owner: owner, TickLower: tickLower, TickUpper: tickUpper}
	if amount.Sign() > 0 {
		pos, ok := p.positions.Get(key)
		if !ok || pos.Liquidity.Lt(amount) {
			p.metrics.observeError("burn")
			return nil, nil, ErrBurnExceedsLiquidity
		}
	}

	delta := new(big.Int).Neg(amount.ToBig())
	now := p.clock()

	amount0, amount1 = new(big.Int), new(big.Int)
	if amount.Sign() > 0 {
		amount0, amount1, _, err = p.amountsForLiquidity(p.slot0.tick, &p.slot0.sqrtPriceX96, tickLower, tickUpper, delta)
		if err != nil {
			return nil, nil, err
		}
	}

	if err := p.applyModify(owner, tickLower, tickUpper, delta, now); err != nil {
		p.metrics.observeError("burn")
		return nil, nil, err
	}

	// Credit the withdrawn principal; collect pays it out later.
	credited0 := new(big.Int).Neg(amount0)
	credited1 := new(big.Int).Neg(amount1)
	c0, _ := uint256.FromBig(credited0)
	c1, _ := uint256.FromBig(credited1)
	p.positions.Credit(key, c0, c1)

	p.logger.Debug("burn", "owner", owner.Hex(), "tickLower", tickLower, "tickUpper", tickUpper,
		"amount", amount.Dec(), "amount0", credited0.String(), "amount1", credited1.String())
	p.metrics.observeOp("burn")
	p.observeState()
	p.publish(BurnEvent{
		Owner:     owner,
		TickLower: tickLower, TickUpper: tickUpper,
		Amount:  new(uint256.Int).Set(amount),
		Amount0: credited0, Amount1: credited1,
	})
	return credited0, credited1, nil
}

// Collect pays out up to the requested amounts from the owner's owed
// balances to recipient. A position that was never created collects
// nothing.
func (p *Pair) Collect(ctx context.Context, owner common.Address, tickLower, tickUpper int, recipient common.Address, amount0Requested, amount1Requested *uint256.Int) (collected0, collected1 *uint256.Int, err error) {
	if err := p.lock(); err != nil {
		p.metrics.observeError("collect")
		return nil, nil, err
	}
	defer p.unlock()

	key := position.Key{Owner: owner, TickLower: tickLower, TickUpper: tickUpper}
	collected0, collected1 = p.previewCollect(key, amount0Requested, amount1Requested)

	if err := p.payOut(ctx, recipient, collected0, collected1); err != nil {
		p.metrics.observeError("collect")
		return nil, nil, err
	}
	p.positions.Collect(key, collected0, collected1)

	p.logger.Debug("collect", "owner", owner.Hex(), "recipient", recipient.Hex(),
		"amount0", collected0.Dec(), "amount1", collected1.Dec())
	p.metrics.observeOp("collect")
	p.publish(CollectEvent{
		Owner: owner, Recipient: recipient,
		TickLower: tickLower, TickUpper: tickUpper,
		Amount0: new(uint256.Int).Set(collected0), Amount1: new(uint256.Int).Set(collected1),
	})
	return collected0, collected1, nil
}

// CollectProtocol pays accumulated protocol fees to recipient. Owner only.
func (p *Pair) CollectProtocol(ctx context.Context, sender, recipient common.Address, amount0Requested, amount1Requested *uint256.Int) (collected0, collected1 *uint256.Int, err error) {
	if sender != p.owner {
		p.metrics.observeError("collectProtocol")
		return nil, nil, ErrOnlyOwner
	}
	if err := p.lock(); err != nil {
		p.metrics.observeError("collectProtocol")
		return nil, nil, err
	}
	defer p.unlock()

	collected0 = minUint256(amount0Requested, &p.feeToFees0)
	collected1 = minUint256(amount1Requested, &p.feeToFees1)

	if err := p.payOut(ctx, recipient, collected0, collected1); err != nil {
		p.metrics.observeError("collectProtocol")
		return nil, nil, err
	}
	p.feeToFees0.Sub(&p.feeToFees0, collected0)
	p.feeToFees1.Sub(&p.feeToFees1, collected1)

	p.logger.Info("protocol fees collected", "recipient", recipient.Hex(),
		"amount0", collected0.Dec(), "amount1", collected1.Dec())
	p.metrics.observeOp("collectProtocol")
	return collected0, collected1, nil
}

// SetFeeTo switches protocol fees on (non-zero address) or off. Owner only.
func (p *Pair) SetFeeTo(sender, feeTo common.Address) error {
	if sender != p.owner {
		p.metrics.observeError("setFeeTo")
		return ErrOnlyOwner
	}
	if err := p.lock(); err != nil {
		p.metrics.observeError("setFeeTo")
		return err
	}
	defer p.unlock()

	old := p.feeTo
	p.feeTo = feeTo
	p.logger.Info("feeTo changed", "old", old.Hex(), "new", feeTo.Hex())
	p.metrics.observeOp("setFeeTo")
	p.publish(SetFeeToEvent{Old: old, New: feeTo})
	return nil
}

// SetTime freezes the pair's clock at t. Testing hook; fails with ErrLocked
// while another mutator is in flight so a callback cannot move time
// mid-operation.
func (p *Pair) SetTime(t uint32) error {
	if p.busy() {
		return ErrLocked
	}
	p.clock = func() uint32 { return t }
	return nil
}

// Recover transfers a stray token out of the pair's account. Owner only;
// the pair's own tokens are protected.
func (p *Pair) Recover(ctx context.Context, sender common.Address, token Token, to common.Address, amount *uint256.Int) error {
	if sender != p.owner {
		p.metrics.observeError("recover")
		return ErrOnlyOwner
	}
	if err := p.lock(); err != nil {
		p.metrics.observeError("recover")
		return err
	}
	defer p.unlock()

	if token.Address() == p.token0.Address() || token.Address() == p.token1.Address() {
		p.metrics.observeError("recover")
		return ErrProtectedToken
	}
	if err := token.TransferFrom(ctx, p.pairAddress, to, amount); err != nil {
		p.metrics.observeError("recover")
		return err
	}
	p.logger.Warn("token recovered", "token", token.Address().Hex(), "to", to.Hex(), "amount", amount.Dec())
	p.metrics.observeOp("recover")
	return nil
}

// --- internals ---

func (p *Pair) lock() error {
	if !p.slot0.unlocked {
		return ErrLocked
	}
	p.slot0.unlocked = false
	return nil
}

func (p *Pair) unlock() {
	p.slot0.unlocked = true
}

// busy reports whether a mutating entry is currently in flight. Before
// initialization the unlocked flag is false without anything running, so a
// held lock is only inferred from it once a price exists.
func (p *Pair) busy() bool {
	if p.initializing {
		return true
	}
	return !p.slot0.unlocked && !p.slot0.sqrtPriceX96.IsZero()
}

func (p *Pair) checkTicks(tickLower, tickUpper int) error {
	if tickLower >= tickUpper {
		return ErrTickLowerNotBelowUpper
	}
	if tickLower < p.minTick {
		return ErrTickLowerTooSmall
	}
	if tickUpper > p.maxTick {
		return ErrTickUpperTooLarge
	}
	if tickLower%p.tickSpacing != 0 || tickUpper%p.tickSpacing != 0 {
		return ErrTickNotSpaced
	}
	return nil
}

// checkTickCapacity rejects a mint that would exceed the per-tick gross
// liquidity cap, before any transfer has happened.
func (p *Pair) checkTickCapacity(tick int, amount *uint256.Int) error {
	gross := new(uint256.Int)
	if info, ok := p.ticks.Get(tick); ok {
		gross.Set(info.LiquidityGross)
	}
	var overflow bool
	if _, overflow = gross.AddOverflow(gross, amount); overflow || gross.Gt(p.maxLiquidityPerTick) {
		return ticktable.ErrLiquidityGrossOverflow
	}
	return nil
}

// applyModify is the state-mutating half of mint/burn/poke. Its failure
// modes must all be pre-validated by the caller, so a mid-way error cannot
// leave external transfers and internal state disagreeing.
func (p *Pair) applyModify(owner common.Address, tickLower, tickUpper int, liquidityDelta *big.Int, now uint32) error {
	var flippedLower, flippedUpper bool
	if liquidityDelta.Sign() != 0 {
		var err error
		flippedLower, err = p.ticks.Update(tickLower, p.slot0.tick, liquidityDelta,
			&p.feeGrowthGlobal0X128, &p.feeGrowthGlobal1X128, now, false)
		if err != nil {
			return err
		}
		flippedUpper, err = p.ticks.Update(tickUpper, p.slot0.tick, liquidityDelta,
			&p.feeGrowthGlobal0X128, &p.feeGrowthGlobal1X128, now, true)
		if err != nil {
			return err
		}
	}

	var inside0, inside1 uint256.Int
	p.ticks.FeeGrowthInside(&inside0, &inside1, tickLower, tickUpper, p.slot0.tick,
		&p.feeGrowthGlobal0X128, &p.feeGrowthGlobal1X128)

	var cutDenominator uint64
	if p.feeTo != (common.Address{}) {
		cutDenominator = protocolFeeDenominator
	}
	key := position.Key{Owner: owner, TickLower: tickLower, TickUpper: tickUpper}
	cut0, cut1, err := p.positions.Update(key, liquidityDelta, &inside0, &inside1, cutDenominator)
	if err != nil {
		return err
	}
	p.feeToFees0.Add(&p.feeToFees0, cut0)
	p.feeToFees1.Add(&p.feeToFees1, cut1)

	if liquidityDelta.Sign() < 0 {
		if flippedLower {
			p.ticks.Clear(tickLower)
		}
		if flippedUpper {
			p.ticks.Clear(tickUpper)
		}
	}

	if liquidityDelta.Sign() != 0 && tickLower <= p.slot0.tick && p.slot0.tick < tickUpper {
		if err := liquiditymath.AddDelta(&p.liquidity, &p.liquidity, liquidityDelta); err != nil {
			return err
		}
	}
	return nil
}

// amountsForLiquidity prices a liquidity delta over [tickLower, tickUpper]
// at the given tick and sqrt price. Deposits round up, withdrawals round
// down; signs follow the delta.
func (p *Pair) amountsForLiquidity(tick int, sqrtPriceX96 *uint256.Int, tickLower, tickUpper int, liquidityDelta *big.Int) (amount0, amount1 *big.Int, inRange bool, err error) {
	amount0, amount1 = new(big.Int), new(big.Int)
	if liquidityDelta.Sign() == 0 {
		return amount0, amount1, false, nil
	}

	var ratioLower, ratioUpper uint256.Int
	if err := tickmath.GetSqrtRatioAtTick(&ratioLower, tickLower); err != nil {
		return nil, nil, false, err
	}
	if err := tickmath.GetSqrtRatioAtTick(&ratioUpper, tickUpper); err != nil {
		return nil, nil, false, err
	}

	roundUp := liquidityDelta.Sign() > 0
	magnitude, _ := uint256.FromBig(new(big.Int).Abs(liquidityDelta))

	var a0, a1 uint256.Int
	switch {
	case tick < tickLower:
		if err := sqrtpricemath.GetAmount0Delta(&a0, &ratioLower, &ratioUpper, magnitude, roundUp); err != nil {
			return nil, nil, false, err
		}
	case tick < tickUpper:
		if err := sqrtpricemath.GetAmount0Delta(&a0, sqrtPriceX96, &ratioUpper, magnitude, roundUp); err != nil {
			return nil, nil, false, err
		}
		if err := sqrtpricemath.GetAmount1Delta(&a1, &ratioLower, sqrtPriceX96, magnitude, roundUp); err != nil {
			return nil, nil, false, err
		}
		inRange = true
	default:
		if err := sqrtpricemath.GetAmount1Delta(&a1, &ratioLower, &ratioUpper, magnitude, roundUp); err != nil {
			return nil, nil, false, err
		}
	}

	amount0 = a0.ToBig()
	amount1 = a1.ToBig()
	if liquidityDelta.Sign() < 0 {
		amount0.Neg(amount0)
		amount1.Neg(amount1)
	}
	return amount0, amount1, inRange, nil
}

// debit pulls the non-negative amounts from payer into the pair.
func (p *Pair) debit(ctx context.Context, payer common.Address, amount0, amount1 *big.Int) error {
	if amount0.Sign() > 0 {
		a, _ := uint256.FromBig(amount0)
		if err := p.token0.TransferFrom(ctx, payer, p.pairAddress, a); err != nil {
			return fmt.Errorf("debit token0: %w", err)
		}
	}
	if amount1.Sign() > 0 {
		a, _ := uint256.FromBig(amount1)
		if err := p.token1.TransferFrom(ctx, payer, p.pairAddress, a); err != nil {
			return fmt.Errorf("debit token1: %w", err)
		}
	}
	return nil
}

// payOut moves amounts from the pair to recipient.
func (p *Pair) payOut(ctx context.Context, recipient common.Address, amount0, amount1 *uint256.Int) error {
	if !amount0.IsZero() {
		if err := p.token0.TransferFrom(ctx, p.pairAddress, recipient, amount0); err != nil {
			return fmt.Errorf("pay token0: %w", err)
		}
	}
	if !amount1.IsZero() {
		if err := p.token1.TransferFrom(ctx, p.pairAddress, recipient, amount1); err != nil {
			return fmt.Errorf("pay token1: %w", err)
		}
	}
	return nil
}

func (p *Pair) previewCollect(key position.Key, amount0Requested, amount1Requested *uint256.Int) (*uint256.Int, *uint256.Int) {
	pos, ok := p.positions.Get(key)
	if !ok {
		return new(uint256.Int), new(uint256.Int)
	}
	return minUint256(amount0Requested, pos.FeesOwed0), minUint256(amount1Requested, pos.FeesOwed1)
}

func minUint256(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

func (p *Pair) publish(e Event) {
	if p.sink != nil {
		p.sink.Publish(e)
	}
}

func (p *Pair) observeState() {
	liq, _ := new(big.Float).SetInt(p.liquidity.ToBig()).Float64()
	p.metrics.observeState(liq, p.slot0.tick)
}

// wrap56 reduces the tick cumulative to its signed 56-bit ring.
func wrap56(v int64) int64 {
	return (v << 8) >> 8
}
