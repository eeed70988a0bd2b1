package liquiditymath

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// maxUint128 is the maximum value liquidity may take (2^128 - 1).
	maxUint128 = uint256.MustFromHex("0xffffffffffffffffffffffffffffffff")

	ErrLiquiditySub = errors.New("LS: liquidity delta underflows")
	ErrLiquidityAdd = errors.New("LA: liquidity delta overflows uint128")
)

// AddDelta writes x + delta into dest, where x is an unsigned uint128
// liquidity amount and delta is signed. The arithmetic is checked: a
// negative delta larger than x fails with ErrLiquiditySub, a result above
// 2^128-1 fails with ErrLiquidityAdd. dest may alias x; its value is
// unspecified when an error is returned.
func AddDelta(dest, x *uint256.Int, delta *big.Int) error {
	mag, overflow := uint256.FromBig(new(big.Int).Abs(delta))
	if delta.Sign() < 0 {
		if overflow || x.Lt(mag) {
			return ErrLiquiditySub
		}
		dest.Sub(x, mag)
		return nil
	}
	if overflow {
		return ErrLiquidityAdd
	}
	dest.Add(x, mag)
	if dest.Gt(maxUint128) {
		return ErrLiquidityAdd
	}
	return nil
}
