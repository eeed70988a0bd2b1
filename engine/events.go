package engine

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Event is an observable side effect of a committed operation.
type Event interface {
	Name() string
}

// EventSink receives events synchronously after each commit.
type EventSink interface {
	Publish(Event)
}

type Initialized struct {
	SqrtPriceX96 *uint256.Int `json:"sqrtPriceX96"`
	Tick         int          `json:"tick"`
}

func (Initialized) Name() string { return "Initialized" }

type MintEvent struct {
	Sender    common.Address `json:"sender"`
	Owner     common.Address `json:"owner"`
	TickLower int            `json:"tickLower"`
	TickUpper int            `json:"tickUpper"`
	Amount    *uint256.Int   `json:"amount"`
	Amount0   *big.Int       `json:"amount0"`
	Amount1   *big.Int       `json:"amount1"`
}

func (MintEvent) Name() string { return "Mint" }

type BurnEvent struct {
	Owner     common.Address `json:"owner"`
	TickLower int            `json:"tickLower"`
	TickUpper int            `json:"tickUpper"`
	Amount    *uint256.Int   `json:"amount"`
	Amount0   *big.Int       `json:"amount0"`
	Amount1   *big.Int       `json:"amount1"`
}

func (BurnEvent) Name() string { return "Burn" }

type CollectEvent struct {
	Owner     common.Address `json:"owner"`
	Recipient common.Address `json:"recipient"`
	TickLower int            `json:"tickLower"`
	TickUpper int            `json:"tickUpper"`
	Amount0   *uint256.Int   `json:"amount0"`
	Amount1   *uint256.Int   `json:"amount1"`
}

func (CollectEvent) Name() string { return "Collect" }

type SwapEvent struct {
	Sender       common.Address `json:"sender"`
	Recipient    common.Address `json:"recipient"`
	Amount0      *big.Int       `json:"amount0"`
	Amount1      *big.Int       `json:"amount1"`
	SqrtPriceX96 *uint256.Int   `json:"sqrtPriceX96"`
	Tick         int            `json:"tick"`
}

func (SwapEvent) Name() string { return "Swap" }

type SetFeeToEvent struct {
	Old common.Address `json:"old"`
	New common.Address `json:"new"`
}

func (SetFeeToEvent) Name() string { return "SetFeeTo" }

// EventLog is a bounded in-memory sink for tests and the command-line tools.
// When full it drops the oldest events.
type EventLog struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewEventLog builds a log keeping at most limit events; limit <= 0 means
// unbounded.
func NewEventLog(limit int) *EventLog {
	return &EventLog{limit: limit}
}

func (l *EventLog) Publish(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	if l.limit > 0 && len(l.events) > l.limit {
		l.events = l.events[len(l.events)-l.limit:]
	}
}

// All returns a copy of the retained events in order.
func (l *EventLog) All() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// TakeAll returns the retained events and clears the log.
func (l *EventLog) TakeAll() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.events
	l.events = nil
	return out
}
