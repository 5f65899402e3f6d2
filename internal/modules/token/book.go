// Package token keeps fungible balances for one denomination: the vault's
// underlying asset and the vault share token both live in a Book.
package token

import (
	"sync"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/state"
)

const codespace = "token"

var (
	ErrInsufficientBalance   = errorsmod.Register(codespace, 2, "insufficient balance")
	ErrInsufficientAllowance = errorsmod.Register(codespace, 3, "insufficient allowance")
)

// Book is an in-memory balance ledger with ERC-20 style allowances.
type Book struct {
	mu         sync.RWMutex
	denom      string
	balances   map[domain.Address]sdkmath.Int
	allowances map[domain.Address]map[domain.Address]sdkmath.Int
	supply     sdkmath.Int
}

// NewBook creates an empty book for denom
func NewBook(denom string) *Book {
	return &Book{
		denom:      denom,
		balances:   make(map[domain.Address]sdkmath.Int),
		allowances: make(map[domain.Address]map[domain.Address]sdkmath.Int),
		supply:     sdkmath.ZeroInt(),
	}
}

// Denom returns the denomination tracked by the book
func (b *Book) Denom() string {
	return b.denom
}

// BalanceOf returns the balance of addr (zero when unknown)
func (b *Book) BalanceOf(addr domain.Address) sdkmath.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balanceOf(addr)
}

// TotalSupply returns the sum of all balances
func (b *Book) TotalSupply() sdkmath.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.supply
}

// Allowance returns how much spender may move on behalf of owner
func (b *Book) Allowance(owner, spender domain.Address) sdkmath.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if byOwner, ok := b.allowances[owner]; ok {
		if amount, ok := byOwner[spender]; ok {
			return amount
		}
	}
	return sdkmath.ZeroInt()
}

// Mint credits amount to to and grows the supply
func (b *Book) Mint(to domain.Address, amount sdkmath.Int) error {
	if to.IsZero() {
		return domain.ErrZeroAddress.Wrap("mint recipient")
	}
	if err := checkAmount(amount); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[to] = b.balanceOf(to).Add(amount)
	b.supply = b.supply.Add(amount)
	return nil
}

// Burn debits amount from from and shrinks the supply
func (b *Book) Burn(from domain.Address, amount sdkmath.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	balance := b.balanceOf(from)
	if balance.LT(amount) {
		return ErrInsufficientBalance.Wrapf("%s has %s %s, burning %s", from, balance, b.denom, amount)
	}
	b.balances[from] = balance.Sub(amount)
	b.supply = b.supply.Sub(amount)
	return nil
}

// Transfer moves amount between two accounts
func (b *Book) Transfer(from, to domain.Address, amount sdkmath.Int) error {
	if to.IsZero() {
		return domain.ErrZeroAddress.Wrap("transfer recipient")
	}
	if err := checkAmount(amount); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transfer(from, to, amount)
}

// Approve sets the allowance of spender over owner's balance
func (b *Book) Approve(owner, spender domain.Address, amount sdkmath.Int) error {
	if owner.IsZero() || spender.IsZero() {
		return domain.ErrZeroAddress.Wrap("approve")
	}
	if err := checkAmount(amount); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.allowances[owner]; !ok {
		b.allowances[owner] = make(map[domain.Address]sdkmath.Int)
	}
	b.allowances[owner][spender] = amount
	return nil
}

// SpendAllowance consumes amount of spender's allowance over owner.
// An owner spending for itself needs no allowance.
func (b *Book) SpendAllowance(owner, spender domain.Address, amount sdkmath.Int) error {
	if owner == spender {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	current := sdkmath.ZeroInt()
	if byOwner, ok := b.allowances[owner]; ok {
		if a, ok := byOwner[spender]; ok {
			current = a
		}
	}
	if current.LT(amount) {
		return ErrInsufficientAllowance.Wrapf("%s may spend %s of %s, needs %s", spender, current, owner, amount)
	}
	b.allowances[owner][spender] = current.Sub(amount)
	return nil
}

// TransferFrom moves owner's funds on behalf of spender
func (b *Book) TransferFrom(spender, from, to domain.Address, amount sdkmath.Int) error {
	if err := b.SpendAllowance(from, spender, amount); err != nil {
		return err
	}
	return b.Transfer(from, to, amount)
}

// Checkpoint implements state.Participant
func (b *Book) Checkpoint() state.Restorer {
	b.mu.RLock()
	balances := make(map[domain.Address]sdkmath.Int, len(b.balances))
	for k, v := range b.balances {
		balances[k] = v
	}
	allowances := make(map[domain.Address]map[domain.Address]sdkmath.Int, len(b.allowances))
	for owner, bySpender := range b.allowances {
		copied := make(map[domain.Address]sdkmath.Int, len(bySpender))
		for spender, v := range bySpender {
			copied[spender] = v
		}
		allowances[owner] = copied
	}
	supply := b.supply
	b.mu.RUnlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.balances = balances
		b.allowances = allowances
		b.supply = supply
	}
}

func (b *Book) transfer(from, to domain.Address, amount sdkmath.Int) error {
	balance := b.balanceOf(from)
	if balance.LT(amount) {
		return ErrInsufficientBalance.Wrapf("%s has %s %s, sending %s", from, balance, b.denom, amount)
	}
	b.balances[from] = balance.Sub(amount)
	b.balances[to] = b.balanceOf(to).Add(amount)
	return nil
}

func (b *Book) balanceOf(addr domain.Address) sdkmath.Int {
	if balance, ok := b.balances[addr]; ok {
		return balance
	}
	return sdkmath.ZeroInt()
}

func checkAmount(amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return domain.ErrInvalidAmount.Wrapf("amount %v", amount)
	}
	return nil
}
