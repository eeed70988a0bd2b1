package engine

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/clmm-go/swapmath"
	"github.com/defistate/clmm-go/ticktable"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// nopLogger is the default when no logger is configured.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Config describes one pair. Token0 and Token1 are the pair's assets in
// canonical order; prices are token1 per token0.
type Config struct {
	Token0 Token
	Token1 Token

	// PairAddress is the account holding the pair's reserves.
	PairAddress common.Address

	// Owner gates SetFeeTo, CollectProtocol and Recover.
	Owner common.Address

	// Fee is the swap fee in hundredths of a bip (parts per million).
	Fee uint64

	// TickSpacing restricts position endpoints to its multiples.
	TickSpacing int

	// Index supplies the next-initialized-tick lookup strategy. Nil selects
	// the sorted-slice default.
	Index ticktable.NextTickIndex

	// Clock reads the current timestamp. Nil means wall clock; SetTime
	// replaces it with a frozen value.
	Clock func() uint32

	Logger  Logger
	Sink    EventSink
	Metrics *Metrics
}

func (c *Config) validate() error {
	if c.Token0 == nil || c.Token1 == nil {
		return errors.New("config: Token0 and Token1 cannot be nil")
	}
	if c.Token0.Address() == c.Token1.Address() {
		return errors.New("config: Token0 and Token1 must differ")
	}
	if c.Fee >= swapmath.FeeDenominator {
		return errors.New("config: Fee must be below one million ppm")
	}
	if c.TickSpacing < 1 {
		return errors.New("config: TickSpacing must be at least 1")
	}
	return nil
}

// defaultTickSpacings maps the standard fee tiers to their tick spacings.
var defaultTickSpacings = map[uint64]int{
	600:   12,
	3000:  60,
	10000: 200,
}

// DefaultTickSpacing returns the canonical tick spacing for a fee tier,
// false for nonstandard tiers.
func DefaultTickSpacing(fee uint64) (int, bool) {
	s, ok := defaultTickSpacings[fee]
	return s, ok
}

func wallClock() uint32 {
	return uint32(time.Now().Unix())
}
