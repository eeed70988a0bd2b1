package fullmath

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// Q96 is 2^96, the scale of a Q64.96 sqrt price.
	Q96 = uint256.MustFromHex("0x1000000000000000000000000")
	// Q128 is 2^128, the scale of a Q128.128 fee growth counter.
	Q128 = uint256.MustFromHex("0x100000000000000000000000000000000")
	// MaxUint128 bounds liquidity and owed-fee magnitudes.
	MaxUint128 = uint256.MustFromHex("0xffffffffffffffffffffffffffffffff")
	// MaxUint256 is the largest representable value.
	MaxUint256 = uint256.MustFromHex("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")

	ErrDenominatorZero = errors.New("denominator must be greater than zero")
	ErrOverflow        = errors.New("mulDiv result exceeds 256 bits")

	one = uint256.NewInt(1)
)

// MulDiv writes floor(a*b/denominator) into dest. The product is taken at
// full 512-bit precision, so a*b may exceed 256 bits as long as the
// quotient does not.
func MulDiv(dest, a, b, denominator *uint256.Int) error {
	if denominator.IsZero() {
		return ErrDenominatorZero
	}
	if _, overflow := dest.MulDivOverflow(a, b, denominator); overflow {
		return ErrOverflow
	}
	return nil
}

// MulDivRoundingUp is MulDiv with the quotient rounded toward positive
// infinity.
func MulDivRoundingUp(dest, a, b, denominator *uint256.Int) error {
	if denominator.IsZero() {
		return ErrDenominatorZero
	}
	var rem uint256.Int
	rem.MulMod(a, b, denominator)
	if _, overflow := dest.MulDivOverflow(a, b, denominator); overflow {
		return ErrOverflow
	}
	if !rem.IsZero() {
		if dest.Eq(MaxUint256) {
			return ErrOverflow
		}
		dest.Add(dest, one)
	}
	return nil
}

// DivRoundingUp writes ceil(a/b) into dest.
func DivRoundingUp(dest, a, b *uint256.Int) error {
	if b.IsZero() {
		return ErrDenominatorZero
	}
	var rem uint256.Int
	dest.DivMod(a, b, &rem)
	if !rem.IsZero() {
		dest.Add(dest, one)
	}
	return nil
}
