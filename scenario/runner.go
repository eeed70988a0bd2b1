package scenario

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/clmm-go/engine"
	"github.com/defistate/clmm-go/tickbitmap"
)

// maxCollect requests everything owed.
var maxCollect = new(uint256.Int).Neg(uint256.NewInt(1))

// StepResult records the outcome of one executed step. Amounts follow the
// engine's sign convention: positive owed to the pair, negative paid out.
type StepResult struct {
	Index   int    `json:"index"`
	Op      string `json:"op"`
	Actor   string `json:"actor,omitempty"`
	Amount0 string `json:"amount0,omitempty"`
	Amount1 string `json:"amount1,omitempty"`
}

// NamedEvent tags an event with its name so the JSON output stays
// self-describing.
type NamedEvent struct {
	Name  string       `json:"name"`
	Event engine.Event `json:"event"`
}

// Result is the outcome of a full run.
type Result struct {
	Steps    []StepResult     `json:"steps"`
	Snapshot *engine.Snapshot `json:"snapshot"`
	Events   []NamedEvent     `json:"events"`
}

// Runner executes a scenario against a fresh in-memory pair.
type Runner struct {
	scenario *Scenario
	pair     *engine.Pair
	token0   *engine.MemToken
	token1   *engine.MemToken
	log      *engine.EventLog
	owner    common.Address
	actors   map[string]*engine.Payer
}

// NewRunner builds the pair, tokens and actor accounts for one scenario.
// Actor addresses are derived from their names, so runs are reproducible.
func NewRunner(s *Scenario, logger engine.Logger, metrics *engine.Metrics) (*Runner, error) {
	token0 := engine.NewMemToken(actorAddress("token0"))
	token1 := engine.NewMemToken(actorAddress("token1"))
	pairAddr := actorAddress("pair")
	owner := actorAddress("owner")
	if s.Owner != "" {
		owner = actorAddress(s.Owner)
	}

	tickSpacing := s.TickSpacing
	if tickSpacing == 0 {
		spacing, ok := engine.DefaultTickSpacing(s.Fee)
		if !ok {
			return nil, fmt.Errorf("scenario: no default tick spacing for fee %d", s.Fee)
		}
		tickSpacing = spacing
	}

	log := engine.NewEventLog(0)
	pair, err := engine.New(engine.Config{
		Token0:      token0,
		Token1:      token1,
		PairAddress: pairAddr,
		Owner:       owner,
		Fee:         s.Fee,
		TickSpacing: tickSpacing,
		Index:       tickbitmap.NewIndex(tickSpacing),
		Logger:      logger,
		Sink:        log,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, err
	}
	if err := pair.SetTime(0); err != nil {
		return nil, err
	}

	actors := make(map[string]*engine.Payer, len(s.Actors))
	for _, a := range s.Actors {
		addr := actorAddress(a.Name)
		if a.Balance0 != "" {
			b, err := uint256.FromDecimal(a.Balance0)
			if err != nil {
				return nil, fmt.Errorf("scenario: actor %s balance0: %w", a.Name, err)
			}
			token0.Mint(addr, b)
		}
		if a.Balance1 != "" {
			b, err := uint256.FromDecimal(a.Balance1)
			if err != nil {
				return nil, fmt.Errorf("scenario: actor %s balance1: %w", a.Name, err)
			}
			token1.Mint(addr, b)
		}
		actors[a.Name] = &engine.Payer{Account: addr, Token0: token0, Token1: token1, Pair: pairAddr}
	}

	return &Runner{
		scenario: s,
		pair:     pair,
		token0:   token0,
		token1:   token1,
		log:      log,
		owner:    owner,
		actors:   actors,
	}, nil
}

// Pair exposes the underlying pair for inspection after a run.
func (r *Runner) Pair() *engine.Pair { return r.pair }

// Run executes every step in order. The first failing step aborts the run.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	result := &Result{}
	for i, step := range r.scenario.Steps {
		amount0, amount1, err := r.runStep(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("scenario: step %d (%s): %w", i, step.Op, err)
		}
		sr := StepResult{Index: i, Op: step.Op, Actor: step.Actor}
		if amount0 != nil {
			sr.Amount0 = amount0.String()
		}
		if amount1 != nil {
			sr.Amount1 = amount1.String()
		}
		result.Steps = append(result.Steps, sr)
	}
	result.Snapshot = r.pair.Snapshot()
	for _, e := range r.log.All() {
		result.Events = append(result.Events, NamedEvent{Name: e.Name(), Event: e})
	}
	return result, nil
}

func (r *Runner) runStep(ctx context.Context, step Step) (amount0, amount1 *big.Int, err error) {
	switch step.Op {
	case "set-time":
		return nil, nil, r.pair.SetTime(step.Time)

	case "set-fee-to":
		feeTo := common.Address{}
		if step.FeeTo != "" {
			feeTo = actorAddress(step.FeeTo)
		}
		return nil, nil, r.pair.SetFeeTo(r.owner, feeTo)

	case "initialize":
		actor, err := r.actor(step)
		if err != nil {
			return nil, nil, err
		}
		price, err := uint256.FromDecimal(step.SqrtPriceX96)
		if err != nil {
			return nil, nil, fmt.Errorf("sqrtPriceX96: %w", err)
		}
		return nil, nil, r.pair.Initialize(ctx, actor.Account, price)

	case "mint":
		actor, err := r.actor(step)
		if err != nil {
			return nil, nil, err
		}
		amount, err := parseAmount(step.Amount)
		if err != nil {
			return nil, nil, err
		}
		return r.pair.Mint(ctx, actor.Account, actor.Account, step.TickLower, step.TickUpper, amount)

	case "burn":
		actor, err := r.actor(step)
		if err != nil {
			return nil, nil, err
		}
		amount, err := parseAmount(step.Amount)
		if err != nil {
			return nil, nil, err
		}
		return r.pair.Burn(ctx, actor.Account, step.TickLower, step.TickUpper, amount)

	case "collect":
		actor, err := r.actor(step)
		if err != nil {
			return nil, nil, err
		}
		c0, c1, err := r.pair.Collect(ctx, actor.Account, step.TickLower, step.TickUpper, actor.Account, maxCollect, maxCollect)
		if err != nil {
			return nil, nil, err
		}
		return c0.ToBig(), c1.ToBig(), nil

	case "collect-protocol":
		c0, c1, err := r.pair.CollectProtocol(ctx, r.owner, r.owner, maxCollect, maxCollect)
		if err != nil {
			return nil, nil, err
		}
		return c0.ToBig(), c1.ToBig(), nil

	case "swap":
		actor, err := r.actor(step)
		if err != nil {
			return nil, nil, err
		}
		amount, err := parseAmount(step.Amount)
		if err != nil {
			return nil, nil, err
		}
		switch {
		case step.ZeroForOne && !step.ExactOutput:
			return r.pair.SwapExact0For1(ctx, actor.Account, amount, actor, nil)
		case step.ZeroForOne && step.ExactOutput:
			return r.pair.Swap0ForExact1(ctx, actor.Account, amount, actor, nil)
		case !step.ZeroForOne && !step.ExactOutput:
			return r.pair.SwapExact1For0(ctx, actor.Account, amount, actor, nil)
		default:
			return r.pair.Swap1ForExact0(ctx, actor.Account, amount, actor, nil)
		}
	}
	return nil, nil, fmt.Errorf("unknown op %q", step.Op)
}

func (r *Runner) actor(step Step) (*engine.Payer, error) {
	actor, ok := r.actors[step.Actor]
	if !ok {
		return nil, fmt.Errorf("unknown actor %q", step.Actor)
	}
	return actor, nil
}

func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	return amount, nil
}

// actorAddress derives a stable address from a name.
func actorAddress(name string) common.Address {
	sum := sha256.Sum256([]byte("clmm-scenario:" + name))
	return common.BytesToAddress(sum[12:])
}
