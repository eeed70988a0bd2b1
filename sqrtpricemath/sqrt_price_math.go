package sqrtpricemath

import (
	"errors"
	"sync"

	"github.com/holiman/uint256"

	"github.com/defistate/clmm-go/fullmath"
)

// Resolution is the number of fractional bits in the Q64.96 format.
const Resolution = 96

var (
	ErrLiquidityZero = errors.New("liquidity must be greater than zero")
	ErrSqrtPriceZero = errors.New("sqrt price must be greater than zero")
	// ErrPriceOverflow is returned when the requested amount pushes the
	// price outside the representable range.
	ErrPriceOverflow = errors.New("next sqrt price overflows")

	one = uint256.NewInt(1)
)

// sqrtPriceMath holds reusable integers so the hot paths stay allocation-free.
// Instances are managed by a sync.Pool for safe concurrent use.
type sqrtPriceMath struct {
	product     *uint256.Int
	numerator1  *uint256.Int
	numerator2  *uint256.Int
	denominator *uint256.Int
	quotient    *uint256.Int
	term        *uint256.Int
}

var pool = sync.Pool{
	New: func() any {
		return &sqrtPriceMath{
			product:     new(uint256.Int),
			numerator1:  new(uint256.Int),
			numerator2:  new(uint256.Int),
			denominator: new(uint256.Int),
			quotient:    new(uint256.Int),
			term:        new(uint256.Int),
		}
	},
}

// GetNextSqrtPriceFromAmount0RoundingUp writes the price after adding
// (or removing) a delta of token0 at fixed liquidity. Rounding is toward
// a higher price so the pair never under-collects token0.
func GetNextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amount *uint256.Int, add bool) error {
	s := pool.Get().(*sqrtPriceMath)
	defer pool.Put(s)
	return s.nextFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amount, add)
}

// GetNextSqrtPriceFromAmount1RoundingDown writes the price after adding
// (or removing) a delta of token1 at fixed liquidity, rounding toward a
// lower price.
func GetNextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amount *uint256.Int, add bool) error {
	s := pool.Get().(*sqrtPriceMath)
	defer pool.Put(s)
	return s.nextFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amount, add)
}

// GetNextSqrtPriceFromInput writes the price reached by spending amountIn
// of the input token.
func GetNextSqrtPriceFromInput(dest, sqrtPX96, liquidity, amountIn *uint256.Int, zeroForOne bool) error {
	if sqrtPX96.IsZero() {
		return ErrSqrtPriceZero
	}
	if liquidity.IsZero() {
		return ErrLiquidityZero
	}

	if zeroForOne {
		return GetNextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amountIn, true)
	}
	return GetNextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput writes the price reached by paying out
// amountOut of the output token.
func GetNextSqrtPriceFromOutput(dest, sqrtPX96, liquidity, amountOut *uint256.Int, zeroForOne bool) error {
	if sqrtPX96.IsZero() {
		return ErrSqrtPriceZero
	}
	if liquidity.IsZero() {
		return ErrLiquidityZero
	}

	if zeroForOne {
		return GetNextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amountOut, false)
	}
	return GetNextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amountOut, false)
}

// GetAmount0Delta writes the token0 amount covered by liquidity between the
// two prices. roundUp selects the reserve-in rounding convention.
func GetAmount0Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) error {
	s := pool.Get().(*sqrtPriceMath)
	defer pool.Put(s)
	return s.amount0Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity, roundUp)
}

// GetAmount1Delta writes the token1 amount covered by liquidity between the
// two prices.
func GetAmount1Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) error {
	s := pool.Get().(*sqrtPriceMath)
	defer pool.Put(s)
	return s.amount1Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity, roundUp)
}

func (s *sqrtPriceMath) nextFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amount *uint256.Int, add bool) error {
	if amount.IsZero() {
		dest.Set(sqrtPX96)
		return nil
	}

	s.numerator1.Lsh(liquidity, Resolution)
	s.product.Mul(amount, sqrtPX96) // wraps mod 2^256; checked below

	if add {
		if s.quotient.Div(s.product, amount).Eq(sqrtPX96) {
			s.denominator.Add(s.numerator1, s.product)
			if !s.denominator.Lt(s.numerator1) {
				return fullmath.MulDivRoundingUp(dest, s.numerator1, sqrtPX96, s.denominator)
			}
		}
		// The product overflowed; fall back to the order-of-operations that
		// cannot, at the cost of one unit of precision in the denominator.
		s.denominator.Div(s.numerator1, sqrtPX96)
		s.denominator.Add(s.denominator, amount)
		return fullmath.DivRoundingUp(dest, s.numerator1, s.denominator)
	}

	if !s.quotient.Div(s.product, amount).Eq(sqrtPX96) || !s.numerator1.Gt(s.product) {
		return ErrPriceOverflow
	}
	s.denominator.Sub(s.numerator1, s.product)
	return fullmath.MulDivRoundingUp(dest, s.numerator1, sqrtPX96, s.denominator)
}

func (s *sqrtPriceMath) nextFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amount *uint256.Int, add bool) error {
	if add {
		if err := fullmath.MulDiv(s.quotient, amount, fullmath.Q96, liquidity); err != nil {
			return err
		}
		if _, overflow := dest.AddOverflow(sqrtPX96, s.quotient); overflow {
			return ErrPriceOverflow
		}
		return nil
	}

	if err := fullmath.MulDivRoundingUp(s.quotient, amount, fullmath.Q96, liquidity); err != nil {
		return err
	}
	if !sqrtPX96.Gt(s.quotient) {
		return ErrPriceOverflow
	}
	dest.Sub(sqrtPX96, s.quotient)
	return nil
}

func (s *sqrtPriceMath) amount0Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) error {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.IsZero() {
		return ErrSqrtPriceZero
	}

	s.numerator1.Lsh(liquidity, Resolution)
	s.numerator2.Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		if err := fullmath.MulDivRoundingUp(s.term, s.numerator1, s.numerator2, sqrtRatioBX96); err != nil {
			return err
		}
		return fullmath.DivRoundingUp(dest, s.term, sqrtRatioAX96)
	}
	if err := fullmath.MulDiv(s.term, s.numerator1, s.numerator2, sqrtRatioBX96); err != nil {
		return err
	}
	dest.Div(s.term, sqrtRatioAX96)
	return nil
}

func (s *sqrtPriceMath) amount1Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) error {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	s.numerator2.Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return fullmath.MulDivRoundingUp(dest, liquidity, s.numerator2, fullmath.Q96)
	}
	return fullmath.MulDiv(dest, liquidity, s.numerator2, fullmath.Q96)
}
