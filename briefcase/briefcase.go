package briefcase

import (
	"context"
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

var _ Briefcase = &briefcaseImpl{}

type briefcaseImpl struct {
	inventorySystem    InventorySystem
	economySystem      EconomySystem
	consumeSystem      ConsumeSystem
	interactionsSystem InteractionsSystem
	tradeSystem        TradeSystem

	generator ItemGenerator
	gear      GearService
	messenger Messenger
	plugins   *usagePluginRegistry
	commands  []*command
}

// Init initializes the briefcase systems from their configurations and
// registers the RPC endpoints with the game server.
func Init(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, initializer runtime.Initializer, configs ...SystemConfig) (Briefcase, error) {
	p := &briefcaseImpl{
		plugins:   newUsagePluginRegistry(),
		messenger: &notificationMessenger{},
	}

	var (
		consume  *ConsumeSystemImpl
		trade    *TradeSystemImpl
		register bool
	)
	for _, config := range configs {
		if config.GetRegister() {
			register = true
		}
		switch config.GetType() {
		case SystemTypeInventory:
			cfg := &InventoryConfig{}
			if err := loadSystemConfig(logger, config.GetConfigFile(), cfg); err != nil {
				return nil, err
			}
			p.inventorySystem = NewInventorySystem(cfg)
		case SystemTypeEconomy:
			cfg := &EconomyConfig{}
			if err := loadSystemConfig(logger, config.GetConfigFile(), cfg); err != nil {
				return nil, err
			}
			p.economySystem = NewEconomySystem(cfg)
		case SystemTypeConsume:
			cfg := &ConsumeConfig{}
			if err := loadSystemConfig(logger, config.GetConfigFile(), cfg); err != nil {
				return nil, err
			}
			consume = NewConsumeSystem(cfg)
			p.consumeSystem = consume
		case SystemTypeInteractions:
			cfg := &InteractionsConfig{}
			if err := loadSystemConfig(logger, config.GetConfigFile(), cfg); err != nil {
				return nil, err
			}
			p.interactionsSystem = NewInteractionsSystem(cfg)
		case SystemTypeTrade:
			cfg := &TradeConfig{}
			if err := loadSystemConfig(logger, config.GetConfigFile(), cfg); err != nil {
				return nil, err
			}
			trade = NewTradeSystem(cfg)
			p.tradeSystem = trade
		default:
			logger.Warn("ignoring unknown system config type %d", config.GetType())
		}
	}

	// Every system must exist for the command surface to dispatch; unlisted
	// ones come up on defaults.
	if p.inventorySystem == nil {
		p.inventorySystem = NewInventorySystem(nil)
	}
	if p.economySystem == nil {
		p.economySystem = NewEconomySystem(nil)
	}
	if consume == nil {
		consume = NewConsumeSystem(nil)
		p.consumeSystem = consume
	}
	if p.interactionsSystem == nil {
		p.interactionsSystem = NewInteractionsSystem(nil)
	}
	if trade == nil {
		trade = NewTradeSystem(nil)
		p.tradeSystem = trade
	}

	p.economySystem.SetBriefcase(p)
	consume.SetBriefcase(p)
	trade.SetBriefcase(p)
	consume.registerResumers(p.interactionsSystem)
	trade.registerResumers(p.interactionsSystem)
	p.buildCommands()

	if register && initializer != nil {
		if err := registerRpcs(initializer, p); err != nil {
			return nil, err
		}
	}

	logger.Info("briefcase systems initialized (limit=%d, collection=%q)",
		p.inventorySystem.Config().Limit, p.inventorySystem.Config().Collection)
	return p, nil
}

func loadSystemConfig(logger runtime.Logger, configFile string, out any) error {
	if configFile == "" {
		return nil
	}
	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		logger.Warn("config file %q not found, using defaults", configFile)
		return nil
	}
	if err != nil {
		logger.Error("failed to read config file %q: %v", configFile, err)
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		logger.Error("failed to parse config file %q: %v", configFile, err)
		return err
	}
	return nil
}

func (p *briefcaseImpl) GetInventorySystem() InventorySystem {
	return p.inventorySystem
}

func (p *briefcaseImpl) GetEconomySystem() EconomySystem {
	return p.economySystem
}

func (p *briefcaseImpl) GetConsumeSystem() ConsumeSystem {
	return p.consumeSystem
}

func (p *briefcaseImpl) GetInteractionsSystem() InteractionsSystem {
	return p.interactionsSystem
}

func (p *briefcaseImpl) GetTradeSystem() TradeSystem {
	return p.tradeSystem
}

func (p *briefcaseImpl) SetItemGenerator(generator ItemGenerator) {
	p.generator = generator
}

func (p *briefcaseImpl) SetGearService(gear GearService) {
	p.gear = gear
}

func (p *briefcaseImpl) SetMessenger(messenger Messenger) {
	p.messenger = messenger
}

func (p *briefcaseImpl) RegisterUsagePlugin(itemType ItemType, fn UsagePluginFn) {
	p.plugins.register(itemType, fn)
}

func (p *briefcaseImpl) UsagePlugins(itemType ItemType) []UsagePluginFn {
	return p.plugins.resolve(itemType)
}

func (p *briefcaseImpl) ItemGenerator() ItemGenerator {
	return p.generator
}

func (p *briefcaseImpl) GearService() GearService {
	return p.gear
}

func (p *briefcaseImpl) Messenger() Messenger {
	return p.messenger
}

func (p *briefcaseImpl) Close() {
	p.interactionsSystem.Stop()
}

// notificationMessenger is the default prompt transport: a persistent in-app
// notification. Hosts with a real chat channel swap in their own Messenger.
type notificationMessenger struct{}

func (m *notificationMessenger) Send(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, text string) (string, error) {
	messageID := uuid.New().String()
	content := map[string]interface{}{
		"text":       text,
		"message_id": messageID,
	}
	if err := nk.NotificationSend(ctx, userID, "briefcase", content, 100, "", true); err != nil {
		return "", err
	}
	return messageID, nil
}
