package briefcase

import (
	"context"

	"github.com/heroiclabs/nakama-common/runtime"
)

var (
	ErrInternal           = runtime.NewError("internal error occurred", INTERNAL)
	ErrBadInput           = runtime.NewError("bad input", INVALID_ARGUMENT)
	ErrNoSessionUser      = runtime.NewError("no user ID in session", INVALID_ARGUMENT)
	ErrPayloadDecode      = runtime.NewError("cannot decode json", INTERNAL)
	ErrPayloadEncode      = runtime.NewError("cannot encode json", INTERNAL)
	ErrSystemNotAvailable = runtime.NewError("system not available", INTERNAL)

	ErrItemNotFound       = runtime.NewError("item not found", NOT_FOUND)
	ErrUserNotFound       = runtime.NewError("user not found", NOT_FOUND)
	ErrCapacityExceeded   = runtime.NewError("inventory capacity exceeded", FAILED_PRECONDITION)
	ErrInsufficientAmount = runtime.NewError("insufficient item amount", FAILED_PRECONDITION)
	ErrInvalidAmount      = runtime.NewError("invalid amount", INVALID_ARGUMENT)
	ErrUnauthorized       = runtime.NewError("admin permissions required", PERMISSION_DENIED)
	ErrMalformedContainer = runtime.NewError("container contents are malformed", INVALID_ARGUMENT)
	ErrSelfTargetRejected = runtime.NewError("cannot target yourself", INVALID_ARGUMENT)
	ErrStaleInteraction   = runtime.NewError("interaction is no longer valid", FAILED_PRECONDITION)
	ErrInvalidCheque      = runtime.NewError("cheque has no cash value", INVALID_ARGUMENT)
	ErrVersionConflict    = runtime.NewError("storage version conflict", FAILED_PRECONDITION)
	ErrReadonlyInventory  = runtime.NewError("inventory is read-only", FAILED_PRECONDITION)
)

// The SystemType identifies each of the briefcase gameplay systems.
type SystemType uint

const (
	SystemTypeUnknown SystemType = iota
	SystemTypeInventory
	SystemTypeEconomy
	SystemTypeConsume
	SystemTypeInteractions
	SystemTypeTrade
)

// A System is a base type for a briefcase gameplay system.
type System interface {
	// GetType provides the runtime type of the gameplay system.
	GetType() SystemType

	// GetConfig returns the configuration type of the gameplay system.
	GetConfig() any
}

// The SystemConfig describes the configuration that each gameplay system must use to configure itself.
type SystemConfig interface {
	// GetType returns the runtime type of the gameplay system.
	GetType() SystemType

	// GetConfigFile returns the configuration file used for the data definitions in the gameplay system.
	GetConfigFile() string

	// GetRegister returns true if the gameplay system's RPCs should be registered with the game server.
	GetRegister() bool
}

var _ SystemConfig = &systemConfig{}

type systemConfig struct {
	systemType SystemType
	configFile string
	register   bool
}

func (sc *systemConfig) GetType() SystemType {
	return sc.systemType
}
func (sc *systemConfig) GetConfigFile() string {
	return sc.configFile
}
func (sc *systemConfig) GetRegister() bool {
	return sc.register
}

// WithInventorySystem configures an InventorySystem type and optionally registers its RPCs with the game server.
func WithInventorySystem(configFile string, register bool) SystemConfig {
	return &systemConfig{
		systemType: SystemTypeInventory,
		configFile: configFile,
		register:   register,
	}
}

// WithEconomySystem configures an EconomySystem type and optionally registers its RPCs with the game server.
func WithEconomySystem(configFile string, register bool) SystemConfig {
	return &systemConfig{
		systemType: SystemTypeEconomy,
		configFile: configFile,
		register:   register,
	}
}

// WithConsumeSystem configures a ConsumeSystem type and optionally registers its RPCs with the game server.
func WithConsumeSystem(configFile string, register bool) SystemConfig {
	return &systemConfig{
		systemType: SystemTypeConsume,
		configFile: configFile,
		register:   register,
	}
}

// WithInteractionsSystem configures an InteractionsSystem type.
func WithInteractionsSystem(configFile string, register bool) SystemConfig {
	return &systemConfig{
		systemType: SystemTypeInteractions,
		configFile: configFile,
		register:   register,
	}
}

// WithTradeSystem configures a TradeSystem type and optionally registers its RPCs with the game server.
func WithTradeSystem(configFile string, register bool) SystemConfig {
	return &systemConfig{
		systemType: SystemTypeTrade,
		configFile: configFile,
		register:   register,
	}
}

// Briefcase provides a type which combines all briefcase gameplay systems.
type Briefcase interface {
	GetInventorySystem() InventorySystem
	GetEconomySystem() EconomySystem
	GetConsumeSystem() ConsumeSystem
	GetInteractionsSystem() InteractionsSystem
	GetTradeSystem() TradeSystem

	// SetItemGenerator sets the reward pool generator used by treasure, pack, and roulette items.
	SetItemGenerator(generator ItemGenerator)

	// SetGearService sets the pet equipment collaborator used by the equip sub-protocol.
	SetGearService(gear GearService)

	// SetMessenger sets the outbound messaging channel used for prompts that await a reply.
	SetMessenger(messenger Messenger)

	// RegisterUsagePlugin adds a handler for an item type the consume dispatcher does not claim itself.
	RegisterUsagePlugin(itemType ItemType, fn UsagePluginFn)

	// UsagePlugins returns the registered handlers for an item type.
	UsagePlugins(itemType ItemType) []UsagePluginFn

	// ItemGenerator returns the configured reward pool generator, or nil.
	ItemGenerator() ItemGenerator

	// GearService returns the configured gear collaborator, or nil.
	GearService() GearService

	// Messenger returns the configured outbound messaging channel.
	Messenger() Messenger

	// Close releases background resources held by the systems.
	Close()
}

// ItemGenerator mints one freshly-instantiated item from a reward pool.
//
// The distribution logic behind each pool key is external to the briefcase core.
type ItemGenerator interface {
	Generate(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, poolKey string) (*Item, error)
}

// Pet identifies one equippable companion owned by a user.
type Pet struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// GearStats is a combat stat snapshot computed by the gear collaborator.
type GearStats struct {
	Atk   int32 `json:"atk"`
	Def   int32 `json:"def"`
	Magic int32 `json:"magic"`
}

// GearService manages per-pet equipment slots. The briefcase core only equips and
// unequips; stat computation and slot layout belong to the collaborator.
type GearService interface {
	// ListPets returns the user's pets in display order.
	ListPets(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string) ([]*Pet, error)

	// Preview computes the stat change equipping item into the slot would cause.
	Preview(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, petKey string, slot int, item *Item) (before GearStats, after GearStats, err error)

	// Equip places the item into the slot and returns the previously-equipped item, if any.
	Equip(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, petKey string, slot int, item *Item) (previous *Item, err error)

	// Unequip clears the slot of the given type and returns the previously-equipped item, if any.
	Unequip(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, petKey string, slot int, slotType ItemType) (previous *Item, err error)
}

// Messenger delivers a message to a user and reports the outbound message id so a
// pending interaction can later be matched against a reply to it.
type Messenger interface {
	Send(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, text string) (messageID string, err error)
}
