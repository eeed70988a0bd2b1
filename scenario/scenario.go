// Package scenario loads and replays scripted pair sessions. A scenario
// file names the pair parameters, the acting accounts with their starting
// balances, and an ordered list of steps to run against a fresh pair.
package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Actor is a named account with starting balances in both tokens.
type Actor struct {
	Name     string `json:"name"`
	Balance0 string `json:"balance0,omitempty"`
	Balance1 string `json:"balance1,omitempty"`
}

// Step is one operation in the script. Op selects which of the remaining
// fields apply.
type Step struct {
	// Op is one of initialize, mint, burn, collect, swap, set-time,
	// set-fee-to, collect-protocol.
	Op    string `json:"op"`
	Actor string `json:"actor,omitempty"`

	SqrtPriceX96 string `json:"sqrtPriceX96,omitempty"`

	TickLower int    `json:"tickLower,omitempty"`
	TickUpper int    `json:"tickUpper,omitempty"`
	Amount    string `json:"amount,omitempty"`

	// Swap direction and mode. ExactOutput interprets Amount as the
	// requested output instead of the provided input.
	ZeroForOne  bool `json:"zeroForOne,omitempty"`
	ExactOutput bool `json:"exactOutput,omitempty"`

	Time  uint32 `json:"time,omitempty"`
	FeeTo string `json:"feeTo,omitempty"`
}

// Scenario is a complete replayable session.
type Scenario struct {
	Fee         uint64  `json:"fee"`
	TickSpacing int     `json:"tickSpacing,omitempty"`
	Owner       string  `json:"owner,omitempty"`
	Actors      []Actor `json:"actors"`
	Steps       []Step  `json:"steps"`
}

// Load reads a scenario from a JSON file.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a scenario from JSON.
func Parse(r io.Reader) (*Scenario, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	s := &Scenario{}
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("scenario: decode: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scenario) validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario: no steps")
	}
	for i, step := range s.Steps {
		switch step.Op {
		case "initialize", "mint", "burn", "collect", "swap", "set-time", "set-fee-to", "collect-protocol":
		default:
			return fmt.Errorf("scenario: step %d: unknown op %q", i, step.Op)
		}
	}
	return nil
}
