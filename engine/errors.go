package engine

import "errors"

// Engine-level failure conditions. Each message carries a short stable tag
// callers can match on in addition to errors.Is. The math and state packages
// own their tags (R in tickmath, LS/LA in liquiditymath, LO in ticktable,
// NP in position).
var (
	ErrAlreadyInitialized = errors.New("AI: pair already initialized")
	ErrLocked             = errors.New("LOK: pair locked or not initialized")
	ErrPriceBelowRange    = errors.New("MIN: price below the usable tick range")
	ErrPriceAboveRange    = errors.New("MAX: price at or above the usable tick range")

	ErrTickLowerNotBelowUpper = errors.New("TLU: tickLower must be below tickUpper")
	ErrTickLowerTooSmall      = errors.New("TLM: tickLower below the usable range")
	ErrTickUpperTooLarge      = errors.New("TUM: tickUpper above the usable range")
	ErrTickNotSpaced          = errors.New("TS: tick is not a multiple of the tick spacing")

	ErrBurnExceedsLiquidity = errors.New("CP: burn amount exceeds position liquidity")
	ErrOnlyOwner            = errors.New("OO: caller is not the pair owner")
	ErrProtectedToken       = errors.New("TOK: cannot recover a pair token")

	ErrInsufficientInput0 = errors.New("M0: token0 input not received")
	ErrInsufficientInput1 = errors.New("M1: token1 input not received")
)
