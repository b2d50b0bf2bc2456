package briefcase

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"
)

// ConsumeConfig is the data definition for the ConsumeSystem.
type ConsumeConfig struct {
	// TreasureCount is the number of slots in a treasure reveal grid. Default 20.
	TreasureCount int `json:"treasure_count,omitempty"`
	// GemRetryCost is the gem price of one extra treasure pick. Default 2.
	GemRetryCost int64 `json:"gem_retry_cost,omitempty"`
	// PackMin/PackMax bound pack yields when the template does not. Defaults 3 and 5.
	PackMin int `json:"pack_min,omitempty"`
	PackMax int `json:"pack_max,omitempty"`
	// RoulettePreview is the number of candidates shown on a roulette spin.
	// The winner is always the middle one. Default 5.
	RoulettePreview int `json:"roulette_preview,omitempty"`
}

// UseResult is the outcome of a use command. MessageID is set when a prompt was
// sent and the flow is suspended awaiting a reply to it.
type UseResult struct {
	Message   string `json:"message"`
	MessageID string `json:"message_id,omitempty"`
}

// The ConsumeSystem resolves what using an item means for its type.
type ConsumeSystem interface {
	System

	// Use dispatches a use command: args[0] is the item key (may be absent),
	// the rest are type-specific arguments.
	Use(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, args []string) (*UseResult, error)

	// Config returns the typed system configuration.
	Config() *ConsumeConfig

	// SetBriefcase links the system to its registry.
	SetBriefcase(b Briefcase)
}

var _ ConsumeSystem = &ConsumeSystemImpl{}

const unequipPrefix = "--unequip"

// ConsumeSystemImpl implements the consume system.
type ConsumeSystemImpl struct {
	config    *ConsumeConfig
	briefcase Briefcase
}

// NewConsumeSystem creates the consume system with its configuration.
func NewConsumeSystem(config *ConsumeConfig) *ConsumeSystemImpl {
	if config == nil {
		config = &ConsumeConfig{}
	}
	if config.TreasureCount <= 0 {
		config.TreasureCount = 20
	}
	if config.GemRetryCost <= 0 {
		config.GemRetryCost = 2
	}
	if config.PackMin <= 0 {
		config.PackMin = 3
	}
	if config.PackMax < config.PackMin {
		config.PackMax = config.PackMin + 2
	}
	if config.RoulettePreview <= 0 {
		config.RoulettePreview = 5
	}
	return &ConsumeSystemImpl{config: config}
}

func (c *ConsumeSystemImpl) GetType() SystemType {
	return SystemTypeConsume
}

func (c *ConsumeSystemImpl) GetConfig() any {
	return c.config
}

func (c *ConsumeSystemImpl) Config() *ConsumeConfig {
	return c.config
}

func (c *ConsumeSystemImpl) SetBriefcase(b Briefcase) {
	c.briefcase = b
}

func (c *ConsumeSystemImpl) registerResumers(interactions InteractionsSystem) {
	interactions.RegisterResumer(InteractionItemPick, c.resumeItemPick)
	interactions.RegisterResumer(InteractionEquipTarget, c.resumeEquip)
	interactions.RegisterResumer(InteractionTreasurePick, c.resumeTreasure)
}

// send delivers a prompt through the configured messenger.
func (c *ConsumeSystemImpl) send(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, text string) (string, error) {
	messenger := c.briefcase.Messenger()
	if messenger == nil {
		return "", ErrSystemNotAvailable
	}
	messageID, err := messenger.Send(ctx, logger, nk, userID, text)
	if err != nil {
		logger.Error("failed to send prompt to user %s: %v", userID, err)
		return "", ErrInternal
	}
	return messageID, nil
}

func (c *ConsumeSystemImpl) Use(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, args []string) (*UseResult, error) {
	key := ""
	if len(args) > 0 {
		key = args[0]
	}

	if strings.HasPrefix(key, unequipPrefix) {
		slotType := ItemTypeWeapon
		if strings.HasSuffix(key, "_armor") {
			slotType = ItemTypeArmor
		}
		return c.promptEquip(ctx, logger, nk, userID, nil, slotType, args[1:])
	}

	inventory := c.briefcase.GetInventorySystem()
	inv, _, err := inventory.Load(ctx, logger, nk, userID)
	if err != nil {
		return nil, err
	}

	item := inv.GetOne(key)
	if item == nil {
		return c.promptItemPick(ctx, logger, nk, userID, inv, key)
	}

	switch {
	case item.Type.IsPetFood():
		return &UseResult{Message: c.flavorReply(item, fmt.Sprintf("You eat the %s. Delicious!", item.DisplayName()))}, nil
	case item.Type == ItemTypePet:
		return &UseResult{Message: c.flavorReply(item, fmt.Sprintf("%s looks at you expectantly. Maybe it's hungry?", item.DisplayName()))}, nil
	case item.Type == ItemTypePotion:
		return &UseResult{Message: c.flavorReply(item, fmt.Sprintf("You drink the %s and feel invigorated.", item.DisplayName()))}, nil
	case item.Type.IsEquippable():
		return c.promptEquip(ctx, logger, nk, userID, item, item.Type, args[1:])
	case item.Type == ItemTypeCheque:
		return c.cashCheque(ctx, logger, nk, userID, item)
	case item.Type == ItemTypeTreasure:
		return c.openTreasure(ctx, logger, nk, userID, inv, item)
	case item.Type == ItemTypePack:
		return c.expandPack(ctx, logger, nk, userID, inv, item)
	case item.Type == ItemTypeZip:
		return c.expandZip(ctx, logger, nk, userID, item)
	case item.Type == ItemTypeRoulette:
		return c.spinRoulette(ctx, logger, nk, userID, inv, item)
	}

	for _, plugin := range c.briefcase.UsagePlugins(item.Type) {
		reply, claimed, err := plugin(ctx, logger, nk, &UsagePluginArg{UserID: userID, Item: item, Args: args[1:]})
		if err != nil {
			return nil, err
		}
		if claimed {
			return &UseResult{Message: reply}, nil
		}
	}

	if item.UseText != "" {
		return &UseResult{Message: item.UseText}, nil
	}
	return &UseResult{Message: fmt.Sprintf("You fiddle with the %s, but can't figure out what it does.", item.DisplayName())}, nil
}

func (c *ConsumeSystemImpl) flavorReply(item *Item, fallback string) string {
	if item.UseText != "" {
		return item.UseText
	}
	if item.FlavorText != "" {
		return item.FlavorText
	}
	return fallback
}

func (c *ConsumeSystemImpl) cashCheque(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, item *Item) (*UseResult, error) {
	if item.ChequeAmount <= 0 {
		return nil, ErrInvalidCheque
	}

	inventory := c.briefcase.GetInventorySystem()
	var amount int64
	_, err := inventory.MutateOwner(ctx, logger, nk, userID, func(inv *Inventory) error {
		held := inv.RemoveInstance(item.InstanceID)
		if held == nil || held.Type != ItemTypeCheque {
			return ErrItemNotFound
		}
		if held.ChequeAmount <= 0 {
			return ErrInvalidCheque
		}
		amount = held.ChequeAmount
		return nil
	})
	if err != nil {
		return nil, err
	}

	economy := c.briefcase.GetEconomySystem()
	updated, err := economy.GrantCurrencies(ctx, logger, nk, userID, map[string]int64{economy.Config().CurrencyKey: amount}, "briefcase_cheque")
	if err != nil {
		return nil, err
	}
	balance := updated[economy.Config().CurrencyKey]
	return &UseResult{Message: fmt.Sprintf("💸 You cash the %s for $%d. New balance: $%d.", item.DisplayName(), amount, balance)}, nil
}

// packYield decides how many items a pack produces. A bounded template yields
// a fixed count, the template minimum floored at the system minimum and capped
// at the template maximum. Unbounded packs roll within the system defaults.
func (c *ConsumeSystemImpl) packYield(item *Item) int {
	if item.PackMax > 0 {
		min := item.PackMin
		if min < c.config.PackMin {
			min = c.config.PackMin
		}
		if min > item.PackMax {
			return item.PackMax
		}
		return min
	}
	return c.config.PackMin + rand.Intn(c.config.PackMax-c.config.PackMin+1)
}

func (c *ConsumeSystemImpl) generate(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, item *Item, count int) ([]*Item, error) {
	generator := c.briefcase.ItemGenerator()
	if generator == nil {
		return nil, ErrSystemNotAvailable
	}
	poolKey := item.PoolKey
	if poolKey == "" {
		poolKey = item.Key
	}
	out := make([]*Item, 0, count)
	for i := 0; i < count; i++ {
		generated, err := generator.Generate(ctx, logger, nk, userID, poolKey)
		if err != nil {
			logger.Error("item generation from pool %q failed: %v", poolKey, err)
			return nil, ErrInternal
		}
		out = append(out, generated.Clone())
	}
	return out, nil
}

func (c *ConsumeSystemImpl) expandPack(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, inv *Inventory, item *Item) (*UseResult, error) {
	// Capacity is reserved against the template's upper bound before the
	// generator mints anything, so a refused expansion has no side effects.
	reserve := item.PackMax
	if reserve <= 0 {
		reserve = c.config.PackMax
	}
	if inv.Room() < reserve {
		return nil, ErrCapacityExceeded
	}

	yield, err := c.generate(ctx, logger, nk, userID, item, c.packYield(item))
	if err != nil {
		return nil, err
	}

	inventory := c.briefcase.GetInventorySystem()
	_, err = inventory.MutateOwner(ctx, logger, nk, userID, func(inv *Inventory) error {
		if inv.RemoveInstance(item.InstanceID) == nil {
			return ErrItemNotFound
		}
		return inv.AddAll(yield)
	})
	if err != nil {
		return nil, err
	}

	return &UseResult{Message: fmt.Sprintf("🎁 You tear open the %s and find:\n%s", item.DisplayName(), itemLines(yield))}, nil
}

func (c *ConsumeSystemImpl) expandZip(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, item *Item) (*UseResult, error) {
	if len(item.ZipContents) == 0 {
		return nil, ErrMalformedContainer
	}
	yield := make([]*Item, 0, len(item.ZipContents))
	for _, inner := range item.ZipContents {
		yield = append(yield, inner.Clone())
	}

	inventory := c.briefcase.GetInventorySystem()
	_, err := inventory.MutateOwner(ctx, logger, nk, userID, func(inv *Inventory) error {
		if inv.RemoveInstance(item.InstanceID) == nil {
			return ErrItemNotFound
		}
		return inv.AddAll(yield)
	})
	if err != nil {
		return nil, err
	}

	return &UseResult{Message: fmt.Sprintf("🗜️ You unzip the %s and unpack:\n%s", item.DisplayName(), itemLines(yield))}, nil
}

func (c *ConsumeSystemImpl) spinRoulette(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, inv *Inventory, item *Item) (*UseResult, error) {
	// One slot for the prize, checked before the wheel is populated.
	if inv.Room() < 1 {
		return nil, ErrCapacityExceeded
	}

	preview, err := c.generate(ctx, logger, nk, userID, item, c.config.RoulettePreview)
	if err != nil {
		return nil, err
	}
	winner := preview[len(preview)/2]

	inventory := c.briefcase.GetInventorySystem()
	_, err = inventory.MutateOwner(ctx, logger, nk, userID, func(inv *Inventory) error {
		if inv.RemoveInstance(item.InstanceID) == nil {
			return ErrItemNotFound
		}
		return inv.Add(winner)
	})
	if err != nil {
		return nil, err
	}

	strip := make([]string, 0, len(preview))
	for idx, candidate := range preview {
		label := candidate.DisplayName()
		if idx == len(preview)/2 {
			label = "▶ " + label + " ◀"
		}
		strip = append(strip, label)
	}
	return &UseResult{Message: fmt.Sprintf("🎰 The wheel spins...\n%s\nYou won %s!", strings.Join(strip, " | "), winner.DisplayName())}, nil
}

type itemPickPayload struct {
	MissingKey string
}

// promptItemPick lists the user's items and suspends on a numeric pick. It is
// the fallback when use is invoked with no key, or with a key the user does
// not hold.
func (c *ConsumeSystemImpl) promptItemPick(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, inv *Inventory, missingKey string) (*UseResult, error) {
	if inv.Len() == 0 {
		return nil, ErrItemNotFound
	}

	var sb strings.Builder
	if missingKey != "" {
		fmt.Fprintf(&sb, "You don't have a \"%s\". ", missingKey)
	}
	sb.WriteString("Reply with the number of the item to use:\n")
	for idx, item := range inv.Items() {
		fmt.Fprintf(&sb, "%d. %s\n", idx+1, item.DisplayName())
	}

	messageID, err := c.send(ctx, logger, nk, userID, sb.String())
	if err != nil {
		return nil, err
	}
	c.briefcase.GetInteractionsSystem().Register(&Interaction{
		MessageID: messageID,
		Variant:   InteractionItemPick,
		AuthorID:  userID,
		Payload:   &itemPickPayload{MissingKey: missingKey},
	})
	return &UseResult{Message: sb.String(), MessageID: messageID}, nil
}

func (c *ConsumeSystemImpl) resumeItemPick(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, inter *Interaction, senderID, text string) (string, bool, error) {
	pick, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return "Reply with just the number of the item.", false, nil
	}

	inventory := c.briefcase.GetInventorySystem()
	inv, _, err := inventory.Load(ctx, logger, nk, senderID)
	if err != nil {
		return "", true, err
	}
	item := inv.ByIndex(pick)
	if item == nil {
		return fmt.Sprintf("There's no item number %d. Pick between 1 and %d.", pick, inv.Len()), false, nil
	}

	result, err := c.Use(ctx, logger, nk, senderID, []string{item.Key})
	if err != nil {
		return "", true, err
	}
	return result.Message, true, nil
}
