package briefcase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSellPartialSuccess(t *testing.T) {
	nk := newFakeNakama()
	bc, _ := newTestBriefcase(t, nk)
	inventory := bc.GetInventorySystem()
	economy := bc.GetEconomySystem()

	apple := &Item{Key: "apple", Type: ItemTypeFood, Name: "Apple", SellPrice: 10}
	relic := &Item{Key: "relic", Type: ItemTypeGeneric, Name: "Relic", CannotSell: true, SellPrice: 999}
	seedInventory(t, nk, inventory, "alice", apple.Clone(), apple.Clone(), relic.Clone())

	result, err := economy.Sell(context.Background(), newTestLogger(), nk, "alice", []SellEntry{
		{Key: "apple", All: true},
		{Key: "relic", Amount: 1},
		{Key: "ghost", Amount: 1},
	})
	require.NoError(t, err)

	require.Len(t, result.Receipts, 1)
	assert.Equal(t, 2, result.Receipts[0].Amount)
	assert.Equal(t, int64(20), result.Total)
	assert.Equal(t, int64(20), result.Balance)
	assert.Len(t, result.Failures, 2)

	inv, _, err := inventory.Load(context.Background(), newTestLogger(), nk, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, inv.Amount("apple"))
	// The unsellable relic stayed put.
	assert.Equal(t, 1, inv.Amount("relic"))
}

func TestSellUnsellableIsIdempotent(t *testing.T) {
	nk := newFakeNakama()
	bc, _ := newTestBriefcase(t, nk)
	economy := bc.GetEconomySystem()
	seedInventory(t, nk, bc.GetInventorySystem(), "alice",
		&Item{Key: "relic", InstanceID: "r1", Type: ItemTypeGeneric, Name: "Relic", CannotSell: true})

	for i := 0; i < 2; i++ {
		result, err := economy.Sell(context.Background(), newTestLogger(), nk, "alice", []SellEntry{{Key: "relic", Amount: 1}})
		require.NoError(t, err)
		assert.Zero(t, result.Total)
		assert.Len(t, result.Failures, 1)
	}
	assert.Empty(t, nk.wallets["alice"])
}

func TestTossShortfallAndRefusal(t *testing.T) {
	nk := newFakeNakama()
	bc, _ := newTestBriefcase(t, nk)
	economy := bc.GetEconomySystem()
	seedInventory(t, nk, bc.GetInventorySystem(), "alice",
		&Item{Key: "rock", InstanceID: "k1", Type: ItemTypeGeneric, Name: "Rock"},
		&Item{Key: "rock", InstanceID: "k2", Type: ItemTypeGeneric, Name: "Rock", CannotToss: true})

	result, err := economy.Toss(context.Background(), newTestLogger(), nk, "alice", "rock", 5, false)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Requested)
	assert.Len(t, result.Tossed, 1)
	assert.Len(t, result.Refused, 1)
	assert.Equal(t, 1, result.Remaining)
}

func TestTossMissingKey(t *testing.T) {
	nk := newFakeNakama()
	bc, _ := newTestBriefcase(t, nk)

	_, err := bc.GetEconomySystem().Toss(context.Background(), newTestLogger(), nk, "alice", "ghost", 1, false)
	assert.Equal(t, ErrItemNotFound, err)
}

func TestTransferMovesItems(t *testing.T) {
	nk := newFakeNakama()
	nk.addUser("bob", "bob")
	bc, _ := newTestBriefcase(t, nk)
	inventory := bc.GetInventorySystem()
	seedInventory(t, nk, inventory, "alice",
		&Item{Key: "apple", InstanceID: "a1", Type: ItemTypeFood, Name: "Apple"},
		&Item{Key: "apple", InstanceID: "a2", Type: ItemTypeFood, Name: "Apple"})
	seedInventory(t, nk, inventory, "bob")

	result, err := bc.GetEconomySystem().Transfer(context.Background(), newTestLogger(), nk, "alice", "bob", "apple", 2, false)
	require.NoError(t, err)
	assert.Len(t, result.Sent, 2)

	aliceInv, _, _ := inventory.Load(context.Background(), newTestLogger(), nk, "alice")
	bobInv, _, _ := inventory.Load(context.Background(), newTestLogger(), nk, "bob")
	assert.Equal(t, 0, aliceInv.Amount("apple"))
	assert.Equal(t, 2, bobInv.Amount("apple"))
}

func TestTransferRejectsSelfAndUnknownRecipient(t *testing.T) {
	nk := newFakeNakama()
	bc, _ := newTestBriefcase(t, nk)

	_, err := bc.GetEconomySystem().Transfer(context.Background(), newTestLogger(), nk, "alice", "alice", "apple", 1, false)
	assert.Equal(t, ErrSelfTargetRejected, err)

	_, err = bc.GetEconomySystem().Transfer(context.Background(), newTestLogger(), nk, "alice", "nobody", "apple", 1, false)
	assert.Equal(t, ErrUserNotFound, err)
}

func TestTransferRespectsRecipientCapacity(t *testing.T) {
	nk := newFakeNakama()
	nk.addUser("bob", "bob")
	bc, _ := newTestBriefcase(t, nk)
	inventory := bc.GetInventorySystem()

	full := make([]*Item, inventory.Config().Limit)
	for i := range full {
		full[i] = testItem("pebble", ItemTypeGeneric)
	}
	seedInventory(t, nk, inventory, "bob", full...)
	seedInventory(t, nk, inventory, "alice", testItem("apple", ItemTypeFood))

	_, err := bc.GetEconomySystem().Transfer(context.Background(), newTestLogger(), nk, "alice", "bob", "apple", 1, false)
	assert.Equal(t, ErrCapacityExceeded, err)

	aliceInv, _, _ := inventory.Load(context.Background(), newTestLogger(), nk, "alice")
	assert.Equal(t, 1, aliceInv.Amount("apple"))
}

func TestTransferConvertsCheques(t *testing.T) {
	nk := newFakeNakama()
	nk.addUser("bob", "bob")
	bc, _ := newTestBriefcase(t, nk)
	inventory := bc.GetInventorySystem()
	seedInventory(t, nk, inventory, "alice",
		&Item{Key: "cheque", InstanceID: "c1", Type: ItemTypeCheque, Name: "Cheque", ChequeAmount: 500})
	seedInventory(t, nk, inventory, "bob")

	result, err := bc.GetEconomySystem().Transfer(context.Background(), newTestLogger(), nk, "alice", "bob", "cheque", 1, false)
	require.NoError(t, err)
	assert.Empty(t, result.Sent)
	assert.Equal(t, int64(500), result.ChequeCredit)
	assert.Equal(t, int64(500), nk.wallets["bob"]["money"])

	bobInv, _, _ := inventory.Load(context.Background(), newTestLogger(), nk, "bob")
	assert.Equal(t, 0, bobInv.Amount("cheque"))
}

func TestTransferSkipsUnsendable(t *testing.T) {
	nk := newFakeNakama()
	nk.addUser("bob", "bob")
	bc, _ := newTestBriefcase(t, nk)
	inventory := bc.GetInventorySystem()
	seedInventory(t, nk, inventory, "alice",
		&Item{Key: "badge", InstanceID: "b1", Type: ItemTypeGeneric, Name: "Badge", CannotSend: true},
		&Item{Key: "badge", InstanceID: "b2", Type: ItemTypeGeneric, Name: "Badge"})
	seedInventory(t, nk, inventory, "bob")

	result, err := bc.GetEconomySystem().Transfer(context.Background(), newTestLogger(), nk, "alice", "bob", "badge", 2, false)
	require.NoError(t, err)
	assert.Len(t, result.Sent, 1)
	assert.Len(t, result.Refused, 1)

	aliceInv, _, _ := inventory.Load(context.Background(), newTestLogger(), nk, "alice")
	assert.Equal(t, 1, aliceInv.Amount("badge"))
}
