package briefcase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTreasure(t *testing.T, nk *fakeNakamaModule, bc *briefcaseImpl) {
	t.Helper()
	bc.SetItemGenerator(&scriptedGenerator{queue: []*Item{
		{Key: "gem", Type: ItemTypeGeneric, Name: "Gem"},
	}})
	seedInventory(t, nk, bc.GetInventorySystem(), "alice",
		&Item{Key: "chest", InstanceID: "t1", Type: ItemTypeTreasure, Name: "Chest", TreasureCount: 3})
}

func TestTreasureFirstPickConsumesTreasure(t *testing.T) {
	nk := newFakeNakama()
	bc, messenger := newTestBriefcase(t, nk)
	seedTreasure(t, nk, bc)

	result, err := bc.GetConsumeSystem().Use(context.Background(), newTestLogger(), nk, "alice", []string{"chest"})
	require.NoError(t, err)
	require.NotEmpty(t, result.MessageID)
	assert.Contains(t, result.Message, "❓1")
	assert.Contains(t, result.Message, "❓3")

	reply, err := bc.GetInteractionsSystem().Resume(context.Background(), newTestLogger(), nk, "alice", result.MessageID, "2")
	require.NoError(t, err)
	assert.Contains(t, reply, "Slot 2 held Gem")
	assert.Contains(t, reply, "retry")
	// A fresh prompt carries the loop forward.
	assert.NotEqual(t, result.MessageID, messenger.last().messageID)

	inv, _, _ := bc.GetInventorySystem().Load(context.Background(), newTestLogger(), nk, "alice")
	assert.Equal(t, 0, inv.Amount("chest"))
	assert.Equal(t, 1, inv.Amount("gem"))
}

func TestTreasureDuplicatePickRejected(t *testing.T) {
	nk := newFakeNakama()
	bc, messenger := newTestBriefcase(t, nk)
	seedTreasure(t, nk, bc)
	nk.setWallet("alice", map[string]int64{"gems": 10})

	result, err := bc.GetConsumeSystem().Use(context.Background(), newTestLogger(), nk, "alice", []string{"chest"})
	require.NoError(t, err)
	_, err = bc.GetInteractionsSystem().Resume(context.Background(), newTestLogger(), nk, "alice", result.MessageID, "2")
	require.NoError(t, err)

	next := messenger.last().messageID
	reply, err := bc.GetInteractionsSystem().Resume(context.Background(), newTestLogger(), nk, "alice", next, "retry 2")
	require.NoError(t, err)
	assert.Contains(t, reply, "already revealed")
	// The prompt stays live for another try.
	assert.Equal(t, next, messenger.last().messageID)
}

func TestTreasurePaidRetryDebitsGems(t *testing.T) {
	nk := newFakeNakama()
	bc, messenger := newTestBriefcase(t, nk)
	seedTreasure(t, nk, bc)

	result, err := bc.GetConsumeSystem().Use(context.Background(), newTestLogger(), nk, "alice", []string{"chest"})
	require.NoError(t, err)
	_, err = bc.GetInteractionsSystem().Resume(context.Background(), newTestLogger(), nk, "alice", result.MessageID, "1")
	require.NoError(t, err)

	// Broke: the retry is refused.
	next := messenger.last().messageID
	reply, err := bc.GetInteractionsSystem().Resume(context.Background(), newTestLogger(), nk, "alice", next, "retry 2")
	require.NoError(t, err)
	assert.Contains(t, reply, "only have 0")

	nk.setWallet("alice", map[string]int64{"gems": 5})
	reply, err = bc.GetInteractionsSystem().Resume(context.Background(), newTestLogger(), nk, "alice", next, "retry 2")
	require.NoError(t, err)
	assert.Contains(t, reply, "Slot 2 held Gem")
	assert.Equal(t, int64(3), nk.wallets["alice"]["gems"])

	// Last slot: the loop ends without a new prompt.
	next = messenger.last().messageID
	reply, err = bc.GetInteractionsSystem().Resume(context.Background(), newTestLogger(), nk, "alice", next, "retry 3")
	require.NoError(t, err)
	assert.Contains(t, reply, "picked clean")

	inv, _, _ := bc.GetInventorySystem().Load(context.Background(), newTestLogger(), nk, "alice")
	assert.Equal(t, 3, inv.Amount("gem"))
	assert.Equal(t, int64(1), nk.wallets["alice"]["gems"])
}

func TestTreasureOpenRefusedWhenFull(t *testing.T) {
	nk := newFakeNakama()
	bc, _ := newTestBriefcase(t, nk)
	bc.GetInventorySystem().Config().Limit = 1
	generator := &scriptedGenerator{}
	bc.SetItemGenerator(generator)
	seedInventory(t, nk, bc.GetInventorySystem(), "alice",
		&Item{Key: "chest", InstanceID: "t1", Type: ItemTypeTreasure, Name: "Chest", TreasureCount: 3})

	_, err := bc.GetConsumeSystem().Use(context.Background(), newTestLogger(), nk, "alice", []string{"chest"})
	assert.Equal(t, ErrCapacityExceeded, err)
	// No reward grid was minted for the refused open.
	assert.Equal(t, 0, generator.calls)

	inv, _, _ := bc.GetInventorySystem().Load(context.Background(), newTestLogger(), nk, "alice")
	assert.Equal(t, 1, inv.Amount("chest"))
}

func TestTreasurePaidRetryRefundsWhenFull(t *testing.T) {
	nk := newFakeNakama()
	bc, messenger := newTestBriefcase(t, nk)
	bc.GetInventorySystem().Config().Limit = 2
	seedTreasure(t, nk, bc)
	nk.setWallet("alice", map[string]int64{"gems": 5})

	result, err := bc.GetConsumeSystem().Use(context.Background(), newTestLogger(), nk, "alice", []string{"chest"})
	require.NoError(t, err)
	_, err = bc.GetInteractionsSystem().Resume(context.Background(), newTestLogger(), nk, "alice", result.MessageID, "1")
	require.NoError(t, err)

	// Fill the last slot so the next reward has nowhere to go.
	_, err = bc.GetInventorySystem().MutateOwner(context.Background(), newTestLogger(), nk, "alice", func(inv *Inventory) error {
		return inv.Add(&Item{Key: "brick", InstanceID: "b1", Type: ItemTypeGeneric, Name: "Brick"})
	})
	require.NoError(t, err)

	next := messenger.last().messageID
	reply, err := bc.GetInteractionsSystem().Resume(context.Background(), newTestLogger(), nk, "alice", next, "retry 2")
	require.NoError(t, err)
	assert.Contains(t, reply, "full")
	// The debit was returned and the prompt stays live.
	assert.Equal(t, int64(5), nk.wallets["alice"]["gems"])

	_, err = bc.GetInventorySystem().MutateOwner(context.Background(), newTestLogger(), nk, "alice", func(inv *Inventory) error {
		inv.RemoveOne("brick")
		return nil
	})
	require.NoError(t, err)

	reply, err = bc.GetInteractionsSystem().Resume(context.Background(), newTestLogger(), nk, "alice", next, "retry 2")
	require.NoError(t, err)
	assert.Contains(t, reply, "Slot 2 held Gem")
	assert.Equal(t, int64(3), nk.wallets["alice"]["gems"])
}

func TestTreasureStaleWhenChestVanished(t *testing.T) {
	nk := newFakeNakama()
	bc, _ := newTestBriefcase(t, nk)
	seedTreasure(t, nk, bc)

	result, err := bc.GetConsumeSystem().Use(context.Background(), newTestLogger(), nk, "alice", []string{"chest"})
	require.NoError(t, err)

	_, err = bc.GetInventorySystem().MutateOwner(context.Background(), newTestLogger(), nk, "alice", func(inv *Inventory) error {
		inv.RemoveOne("chest")
		return nil
	})
	require.NoError(t, err)

	_, err = bc.GetInteractionsSystem().Resume(context.Background(), newTestLogger(), nk, "alice", result.MessageID, "1")
	assert.Equal(t, ErrStaleInteraction, err)
}
