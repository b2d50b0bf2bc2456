package briefcase

import (
	"context"
	"fmt"
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"
)

// Gear slot layout shared with the GearService collaborator.
const (
	slotWeapon = 0
	slotArmor  = 1
)

func slotForType(t ItemType) int {
	if t == ItemTypeArmor {
		return slotArmor
	}
	return slotWeapon
}

type equipPayload struct {
	ItemKey    string
	InstanceID string
	Unequip    bool
	SlotType   ItemType
}

// promptEquip starts the equip flow for an item (or an unequip when item is
// nil). Inline args name the target pet directly; otherwise the user is
// prompted with a stat-delta preview per pet.
func (c *ConsumeSystemImpl) promptEquip(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, item *Item, slotType ItemType, args []string) (*UseResult, error) {
	gear := c.briefcase.GearService()
	if gear == nil {
		return nil, ErrSystemNotAvailable
	}

	pets, err := gear.ListPets(ctx, logger, nk, userID)
	if err != nil {
		logger.Error("failed to list pets for user %s: %v", userID, err)
		return nil, ErrInternal
	}
	if len(pets) == 0 {
		return &UseResult{Message: "You don't have any pets to equip."}, nil
	}

	payload := &equipPayload{Unequip: item == nil, SlotType: slotType}
	if item != nil {
		payload.ItemKey = item.Key
		payload.InstanceID = item.InstanceID
	}

	if len(args) > 0 {
		pet := findPet(pets, strings.Join(args, " "))
		if pet == nil {
			return &UseResult{Message: fmt.Sprintf("You don't have a pet named \"%s\".", strings.Join(args, " "))}, nil
		}
		reply, err := c.applyEquip(ctx, logger, nk, userID, payload, pet)
		if err != nil {
			return nil, err
		}
		return &UseResult{Message: reply}, nil
	}

	var sb strings.Builder
	if item != nil {
		fmt.Fprintf(&sb, "Who should wield the %s? Reply with a pet's name:\n", item.DisplayName())
	} else {
		fmt.Fprintf(&sb, "Whose %s should come off? Reply with a pet's name:\n", slotType)
	}
	for _, pet := range pets {
		line := "• " + pet.Name
		if item != nil {
			before, after, err := gear.Preview(ctx, logger, nk, userID, pet.Key, slotForType(slotType), item)
			if err == nil {
				line += fmt.Sprintf(" (ATK %+d, DEF %+d, MAGIC %+d)",
					after.Atk-before.Atk, after.Def-before.Def, after.Magic-before.Magic)
			}
		}
		sb.WriteString(line + "\n")
	}

	messageID, err := c.send(ctx, logger, nk, userID, sb.String())
	if err != nil {
		return nil, err
	}
	c.briefcase.GetInteractionsSystem().Register(&Interaction{
		MessageID: messageID,
		Variant:   InteractionEquipTarget,
		AuthorID:  userID,
		Payload:   payload,
	})
	return &UseResult{Message: sb.String(), MessageID: messageID}, nil
}

func (c *ConsumeSystemImpl) resumeEquip(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, inter *Interaction, senderID, text string) (string, bool, error) {
	payload, ok := inter.Payload.(*equipPayload)
	if !ok {
		return "", true, ErrInternal
	}
	gear := c.briefcase.GearService()
	if gear == nil {
		return "", true, ErrSystemNotAvailable
	}

	pets, err := gear.ListPets(ctx, logger, nk, senderID)
	if err != nil {
		return "", true, ErrInternal
	}
	pet := findPet(pets, strings.TrimSpace(text))
	if pet == nil {
		return fmt.Sprintf("No pet named \"%s\". Reply with one of your pets' names.", strings.TrimSpace(text)), false, nil
	}

	reply, err := c.applyEquip(ctx, logger, nk, senderID, payload, pet)
	if err != nil {
		return "", true, err
	}
	return reply, true, nil
}

// applyEquip performs the actual slot change. The item leaves the inventory
// under the owner lock before the gear service commits, so a sell or toss
// racing a late prompt reply cannot duplicate or strand it.
func (c *ConsumeSystemImpl) applyEquip(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, payload *equipPayload, pet *Pet) (string, error) {
	gear := c.briefcase.GearService()
	inventory := c.briefcase.GetInventorySystem()
	slot := slotForType(payload.SlotType)

	if payload.Unequip {
		// The freed gear comes back as an item, so a full inventory blocks it.
		inv, _, err := inventory.Load(ctx, logger, nk, userID)
		if err != nil {
			return "", err
		}
		if inv.Room() < 1 {
			return "", ErrCapacityExceeded
		}
		previous, err := gear.Unequip(ctx, logger, nk, userID, pet.Key, slot, payload.SlotType)
		if err != nil {
			logger.Error("unequip failed for user %s pet %s: %v", userID, pet.Key, err)
			return "", ErrInternal
		}
		if previous == nil {
			return fmt.Sprintf("%s has nothing equipped there.", pet.Name), nil
		}
		if _, err := inventory.MutateOwner(ctx, logger, nk, userID, func(inv *Inventory) error {
			return inv.Add(previous)
		}); err != nil {
			return "", err
		}
		return fmt.Sprintf("You take the %s off %s.", previous.DisplayName(), pet.Name), nil
	}

	var item *Item
	if _, err := inventory.MutateOwner(ctx, logger, nk, userID, func(inv *Inventory) error {
		item = inv.RemoveInstance(payload.InstanceID)
		if item == nil {
			item = inv.RemoveOne(payload.ItemKey)
		}
		if item == nil {
			return ErrStaleInteraction
		}
		return nil
	}); err != nil {
		return "", err
	}

	previous, err := gear.Equip(ctx, logger, nk, userID, pet.Key, slot, item)
	if err != nil {
		logger.Error("equip failed for user %s pet %s: %v", userID, pet.Key, err)
		if _, restoreErr := inventory.MutateOwner(ctx, logger, nk, userID, func(inv *Inventory) error {
			return inv.Add(item)
		}); restoreErr != nil {
			logger.Error("failed to return %s to user %s after equip error: %v", item.Key, userID, restoreErr)
		}
		return "", ErrInternal
	}

	if previous != nil {
		// The equipped item just freed a slot for the displaced gear.
		if _, err := inventory.MutateOwner(ctx, logger, nk, userID, func(inv *Inventory) error {
			return inv.Add(previous)
		}); err != nil {
			return "", err
		}
	}

	msg := fmt.Sprintf("⚔️ %s now wields the %s.", pet.Name, item.DisplayName())
	if previous != nil {
		msg += fmt.Sprintf(" The %s goes back into your briefcase.", previous.DisplayName())
	}
	return msg, nil
}

func findPet(pets []*Pet, name string) *Pet {
	for _, pet := range pets {
		if strings.EqualFold(pet.Name, name) || strings.EqualFold(pet.Key, name) {
			return pet
		}
	}
	return nil
}
