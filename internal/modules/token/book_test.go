package token

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/givevault/internal/domain"
)

const (
	alice domain.Address = "alice"
	bob   domain.Address = "bob"
)

func TestBook_MintTransferBurn(t *testing.T) {
	b := NewBook("usdc")

	require.NoError(t, b.Mint(alice, sdkmath.NewInt(100)))
	require.NoError(t, b.Transfer(alice, bob, sdkmath.NewInt(40)))
	require.NoError(t, b.Burn(bob, sdkmath.NewInt(10)))

	assert.Equal(t, sdkmath.NewInt(60), b.BalanceOf(alice))
	assert.Equal(t, sdkmath.NewInt(30), b.BalanceOf(bob))
	assert.Equal(t, sdkmath.NewInt(90), b.TotalSupply())
}

func TestBook_TransferInsufficientBalance(t *testing.T) {
	b := NewBook("usdc")
	require.NoError(t, b.Mint(alice, sdkmath.NewInt(5)))

	err := b.Transfer(alice, bob, sdkmath.NewInt(6))

	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, sdkmath.NewInt(5), b.BalanceOf(alice))
	assert.True(t, b.BalanceOf(bob).IsZero())
}

func TestBook_RejectsZeroRecipientAndNegativeAmounts(t *testing.T) {
	b := NewBook("usdc")

	assert.ErrorIs(t, b.Mint("", sdkmath.NewInt(1)), domain.ErrZeroAddress)
	assert.ErrorIs(t, b.Mint(alice, sdkmath.NewInt(-1)), domain.ErrInvalidAmount)
}

func TestBook_Allowances(t *testing.T) {
	b := NewBook("shares")
	require.NoError(t, b.Mint(alice, sdkmath.NewInt(100)))
	require.NoError(t, b.Approve(alice, bob, sdkmath.NewInt(30)))

	require.NoError(t, b.TransferFrom(bob, alice, bob, sdkmath.NewInt(20)))
	assert.Equal(t, sdkmath.NewInt(10), b.Allowance(alice, bob))

	err := b.TransferFrom(bob, alice, bob, sdkmath.NewInt(11))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	// owners never need an allowance for themselves
	assert.NoError(t, b.SpendAllowance(alice, alice, sdkmath.NewInt(1_000)))
}

func TestBook_CheckpointRestores(t *testing.T) {
	b := NewBook("usdc")
	require.NoError(t, b.Mint(alice, sdkmath.NewInt(100)))
	require.NoError(t, b.Approve(alice, bob, sdkmath.NewInt(5)))

	restore := b.Checkpoint()
	require.NoError(t, b.Transfer(alice, bob, sdkmath.NewInt(50)))
	require.NoError(t, b.Approve(alice, bob, sdkmath.NewInt(0)))
	require.NoError(t, b.Mint(bob, sdkmath.NewInt(7)))
	restore()

	assert.Equal(t, sdkmath.NewInt(100), b.BalanceOf(alice))
	assert.True(t, b.BalanceOf(bob).IsZero())
	assert.Equal(t, sdkmath.NewInt(5), b.Allowance(alice, bob))
	assert.Equal(t, sdkmath.NewInt(100), b.TotalSupply())
}
