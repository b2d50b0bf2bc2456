package briefcase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"
)

type treasurePayload struct {
	SourceKey        string
	SourceInstanceID string
	Slots            []*Item
	Claimed          []bool
	// Consumed flips after the first reveal; later picks cost gems.
	Consumed bool
}

func (p *treasurePayload) unclaimed() int {
	n := 0
	for _, claimed := range p.Claimed {
		if !claimed {
			n++
		}
	}
	return n
}

func (p *treasurePayload) grid() string {
	cells := make([]string, 0, len(p.Slots))
	for idx, slot := range p.Slots {
		if p.Claimed[idx] {
			cells = append(cells, slot.DisplayName())
		} else {
			cells = append(cells, fmt.Sprintf("❓%d", idx+1))
		}
	}
	return strings.Join(cells, " | ")
}

// openTreasure starts the treasure reveal flow: a shuffled grid of hidden
// rewards the user picks from by number. The treasure itself is consumed on
// the first reveal.
func (c *ConsumeSystemImpl) openTreasure(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, inv *Inventory, item *Item) (*UseResult, error) {
	// Rewards land one at a time, so one free slot is enough, but it has to
	// be there before the grid is generated.
	if inv.Room() < 1 {
		return nil, ErrCapacityExceeded
	}

	count := item.TreasureCount
	if count <= 0 {
		count = c.config.TreasureCount
	}
	slots, err := c.generate(ctx, logger, nk, userID, item, count)
	if err != nil {
		return nil, err
	}
	rand.Shuffle(len(slots), func(i, j int) {
		slots[i], slots[j] = slots[j], slots[i]
	})

	payload := &treasurePayload{
		SourceKey:        item.Key,
		SourceInstanceID: item.InstanceID,
		Slots:            slots,
		Claimed:          make([]bool, len(slots)),
	}

	text := fmt.Sprintf("🪙 You pry the %s open. Pick a slot, reply with its number:\n%s",
		item.DisplayName(), payload.grid())
	messageID, err := c.send(ctx, logger, nk, userID, text)
	if err != nil {
		return nil, err
	}
	c.briefcase.GetInteractionsSystem().Register(&Interaction{
		MessageID: messageID,
		Variant:   InteractionTreasurePick,
		AuthorID:  userID,
		Payload:   payload,
	})
	return &UseResult{Message: text, MessageID: messageID}, nil
}

func (c *ConsumeSystemImpl) resumeTreasure(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, inter *Interaction, senderID, text string) (string, bool, error) {
	payload, ok := inter.Payload.(*treasurePayload)
	if !ok {
		return "", true, ErrInternal
	}

	economy := c.briefcase.GetEconomySystem()
	gemKey := economy.Config().GemCurrencyKey
	cost := c.config.GemRetryCost

	fields := strings.Fields(strings.ToLower(text))
	var pickToken string
	if payload.Consumed {
		// Every pick after the first is a paid retry.
		if len(fields) != 2 || fields[0] != "retry" {
			return fmt.Sprintf("Another pick costs %d %s. Reply \"retry <number>\".", cost, gemKey), false, nil
		}
		pickToken = fields[1]
	} else {
		if len(fields) != 1 {
			return "Reply with just the slot number.", false, nil
		}
		pickToken = fields[0]
	}

	pick, err := strconv.Atoi(pickToken)
	if err != nil || pick < 1 || pick > len(payload.Slots) {
		return fmt.Sprintf("Pick a slot between 1 and %d.", len(payload.Slots)), false, nil
	}
	if payload.Claimed[pick-1] {
		return fmt.Sprintf("Slot %d is already revealed. Pick another.", pick), false, nil
	}

	if payload.Consumed {
		balance, err := economy.WalletBalance(ctx, logger, nk, senderID, gemKey)
		if err != nil {
			return "", true, err
		}
		if balance < cost {
			return fmt.Sprintf("You need %d %s for another pick, but only have %d.", cost, gemKey, balance), false, nil
		}
	}

	reward := payload.Slots[pick-1]
	firstReveal := !payload.Consumed

	// A retry is paid up front so a failed reveal can never be a free pick.
	// The debit is refunded when the reveal does not commit.
	if !firstReveal {
		if _, err := economy.GrantCurrencies(ctx, logger, nk, senderID, map[string]int64{gemKey: -cost}, "briefcase_treasure_retry"); err != nil {
			logger.Error("treasure retry debit failed for user %s: %v", senderID, err)
			return "", true, ErrInternal
		}
	}

	inventory := c.briefcase.GetInventorySystem()
	if _, err := inventory.MutateOwner(ctx, logger, nk, senderID, func(inv *Inventory) error {
		if firstReveal {
			if removed := inv.RemoveInstance(payload.SourceInstanceID); removed == nil {
				if inv.RemoveOne(payload.SourceKey) == nil {
					return ErrStaleInteraction
				}
			}
		}
		return inv.Add(reward)
	}); err != nil {
		if !firstReveal {
			if _, refundErr := economy.GrantCurrencies(ctx, logger, nk, senderID, map[string]int64{gemKey: cost}, "briefcase_treasure_refund"); refundErr != nil {
				logger.Error("treasure retry refund failed for user %s: %v", senderID, refundErr)
			}
		}
		if errors.Is(err, ErrCapacityExceeded) {
			return "Your briefcase is full! Toss something, then pick again.", false, nil
		}
		return "", true, err
	}

	payload.Claimed[pick-1] = true
	payload.Consumed = true

	var sb strings.Builder
	fmt.Fprintf(&sb, "✨ Slot %d held %s! It's yours.\n%s\n", pick, reward.DisplayName(), payload.grid())

	if payload.unclaimed() == 0 {
		sb.WriteString("The treasure is picked clean.")
		return sb.String(), true, nil
	}

	fmt.Fprintf(&sb, "Reply \"retry <number>\" to reveal another slot for %d %s.", cost, gemKey)
	messageID, err := c.send(ctx, logger, nk, senderID, sb.String())
	if err != nil {
		// The reward is already granted; just end the loop.
		return sb.String(), true, nil
	}
	c.briefcase.GetInteractionsSystem().Register(&Interaction{
		MessageID: messageID,
		Variant:   InteractionTreasurePick,
		AuthorID:  senderID,
		Payload:   payload,
	})
	return sb.String(), true, nil
}
