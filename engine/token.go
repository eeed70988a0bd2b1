package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is the asset abstraction the pair settles against. The engine never
// implements transfers itself; failures propagate and abort the operation.
// All moves name both accounts explicitly, so the pair pays out via
// TransferFrom of its own address.
type Token interface {
	Address() common.Address
	BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error)
	TransferFrom(ctx context.Context, from, to common.Address, amount *uint256.Int) error
}

// Recipient is the receiving party of a swap.
type Recipient interface {
	Address() common.Address
}

// SwapCallback is implemented by swap recipients that owe the input side.
// The engine invokes OnSwap with the signed deltas (positive = owed by the
// recipient, negative = paid to it) and then re-checks its input balance;
// a shortfall fails the swap and the output is never paid.
type SwapCallback interface {
	OnSwap(ctx context.Context, sender common.Address, amount0, amount1 *big.Int, data []byte) error
}

// Account is a plain swap recipient with no payment behavior.
type Account common.Address

func (a Account) Address() common.Address { return common.Address(a) }

// Payer is a swap recipient that settles what it owes from its own balance
// during the callback.
type Payer struct {
	Account common.Address
	Token0  Token
	Token1  Token
	Pair    common.Address
}

func (p *Payer) Address() common.Address { return p.Account }

func (p *Payer) OnSwap(ctx context.Context, _ common.Address, amount0, amount1 *big.Int, _ []byte) error {
	if amount0.Sign() > 0 {
		owed, _ := uint256.FromBig(amount0)
		if err := p.Token0.TransferFrom(ctx, p.Account, p.Pair, owed); err != nil {
			return err
		}
	}
	if amount1.Sign() > 0 {
		owed, _ := uint256.FromBig(amount1)
		if err := p.Token1.TransferFrom(ctx, p.Account, p.Pair, owed); err != nil {
			return err
		}
	}
	return nil
}

// MemToken is an in-memory Token used by tests and the command-line tools.
// Any caller may move any account's funds; it models balances, not
// authorization.
type MemToken struct {
	addr common.Address

	mu       sync.Mutex
	balances map[common.Address]*uint256.Int
}

func NewMemToken(addr common.Address) *MemToken {
	return &MemToken{
		addr:     addr,
		balances: make(map[common.Address]*uint256.Int),
	}
}

func (t *MemToken) Address() common.Address { return t.addr }

// Mint credits an account out of thin air.
func (t *MemToken) Mint(account common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(account, amount)
}

func (t *MemToken) BalanceOf(_ context.Context, account common.Address) (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.balances[account]; ok {
		return new(uint256.Int).Set(b), nil
	}
	return new(uint256.Int), nil
}

func (t *MemToken) TransferFrom(_ context.Context, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.balances[from]
	if !ok || b.Lt(amount) {
		return fmt.Errorf("token %s: insufficient balance on %s", t.addr.Hex(), from.Hex())
	}
	b.Sub(b, amount)
	t.credit(to, amount)
	return nil
}

func (t *MemToken) credit(account common.Address, amount *uint256.Int) {
	if b, ok := t.balances[account]; ok {
		b.Add(b, amount)
		return
	}
	t.balances[account] = new(uint256.Int).Set(amount)
}
