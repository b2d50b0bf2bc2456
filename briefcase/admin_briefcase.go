package briefcase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"
)

// Admin verbs. All of them sit behind the admin gate in Dispatch; none is
// reachable by a regular user.

// cmdAddItem clones an item template the target already holds, granting fresh
// instances of it.
func (p *briefcaseImpl) cmdAddItem(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, args []string) (*UseResult, error) {
	if len(args) < 2 {
		return &UseResult{Message: "Usage: add_item <uid> <key>*<amount>"}, nil
	}
	target := args[0]
	key, amount, all, err := parseItemToken(args[1])
	if err != nil || all {
		return nil, ErrInvalidAmount
	}

	inventory := p.GetInventorySystem()
	_, err = inventory.MutateOwner(ctx, logger, nk, target, func(inv *Inventory) error {
		template := inv.GetOne(key)
		if template == nil {
			return ErrItemNotFound
		}
		clones := make([]*Item, 0, amount)
		for i := 0; i < amount; i++ {
			clones = append(clones, template.Clone())
		}
		return inv.AddAll(clones)
	})
	if err != nil {
		return nil, err
	}
	return &UseResult{Message: fmt.Sprintf("Granted %d× %s to %s.", amount, key, p.displayName(ctx, nk, target))}, nil
}

func (p *briefcaseImpl) cmdRemoveItem(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, args []string) (*UseResult, error) {
	if len(args) < 2 {
		return &UseResult{Message: "Usage: remove_item <uid> <key>*<amount|all>"}, nil
	}
	target := args[0]
	key, amount, all, err := parseItemToken(args[1])
	if err != nil {
		return nil, err
	}

	removed := 0
	inventory := p.GetInventorySystem()
	_, err = inventory.MutateOwner(ctx, logger, nk, target, func(inv *Inventory) error {
		held := inv.Amount(key)
		if held == 0 {
			return ErrItemNotFound
		}
		want := amount
		if all {
			want = held
		}
		removed = len(inv.RemoveByKey(key, want))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &UseResult{Message: fmt.Sprintf("Revoked %d× %s from %s.", removed, key, p.displayName(ctx, nk, target))}, nil
}

func (p *briefcaseImpl) cmdClearInventory(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, args []string) (*UseResult, error) {
	if len(args) < 1 {
		return &UseResult{Message: "Usage: clear_inventory <uid>"}, nil
	}
	target := args[0]

	cleared := 0
	inventory := p.GetInventorySystem()
	_, err := inventory.MutateOwner(ctx, logger, nk, target, func(inv *Inventory) error {
		cleared = inv.Len()
		inv.items = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &UseResult{Message: fmt.Sprintf("Cleared %s from %s's briefcase.", plural(cleared, "item"), p.displayName(ctx, nk, target))}, nil
}

var makeItemRequired = []string{"key", "name", "type", "icon", "sell_price"}

// cmdMakeItem mints a brand-new item template directly into a target's
// inventory. Required fields are validated all at once so a malformed command
// reports every gap in a single reply.
func (p *briefcaseImpl) cmdMakeItem(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, args []string) (*UseResult, error) {
	if len(args) < 2 {
		return &UseResult{Message: "Usage: make_item <uid> key=<k> name=<n> type=<t> icon=<i> sell_price=<p> [flavor=...] [amount=<n>]"}, nil
	}
	target := args[0]

	fields := map[string]string{}
	for _, token := range args[1:] {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		fields[parts[0]] = parts[1]
	}

	var missing []string
	for _, required := range makeItemRequired {
		if fields[required] == "" {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return &UseResult{Message: "❌ make_item is missing: " + strings.Join(missing, ", ")}, nil
	}

	sellPrice, err := strconv.ParseInt(fields["sell_price"], 10, 64)
	if err != nil || sellPrice < 0 {
		return nil, ErrInvalidAmount
	}
	amount := 1
	if fields["amount"] != "" {
		if amount, err = strconv.Atoi(fields["amount"]); err != nil || amount < 1 {
			return nil, ErrInvalidAmount
		}
	}

	flavor := fields["flavor"]
	if flavor == "" {
		flavor = "A curious thing of unknown provenance."
	}
	template := &Item{
		Key:        fields["key"],
		Type:       ItemType(fields["type"]),
		Name:       fields["name"],
		Icon:       fields["icon"],
		FlavorText: flavor,
		SellPrice:  sellPrice,
	}

	inventory := p.GetInventorySystem()
	_, err = inventory.MutateOwner(ctx, logger, nk, target, func(inv *Inventory) error {
		if inv.Has(template.Key) {
			return ErrBadInput
		}
		clones := make([]*Item, 0, amount)
		for i := 0; i < amount; i++ {
			clones = append(clones, template.Clone())
		}
		return inv.AddAll(clones)
	})
	if err != nil {
		if err == ErrBadInput {
			return &UseResult{Message: fmt.Sprintf("❌ %s already holds an item with key \"%s\".", p.displayName(ctx, nk, target), template.Key)}, nil
		}
		return nil, err
	}
	return &UseResult{Message: fmt.Sprintf("Minted %d× %s for %s.", amount, template.DisplayName(), p.displayName(ctx, nk, target))}, nil
}
