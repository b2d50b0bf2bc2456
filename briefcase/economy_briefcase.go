package briefcase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"
)

// EconomyConfig is the data definition for the EconomySystem.
type EconomyConfig struct {
	// CurrencyKey is the wallet currency credited by sells and cheques.
	// Default "money".
	CurrencyKey string `json:"currency_key,omitempty"`
	// GemCurrencyKey is the wallet currency spent on treasure retries.
	// Default "gems".
	GemCurrencyKey string `json:"gem_currency_key,omitempty"`
}

// SellEntry is one `key*amount` token of a sell command.
type SellEntry struct {
	Key    string
	Amount int
	All    bool
}

// SellReceipt reports one successfully-sold batch.
type SellReceipt struct {
	Item   *Item
	Amount int
	Earned int64
}

// SellResult reports the outcome of a multi-entry sell, including the entries
// that could not be honored.
type SellResult struct {
	Receipts []*SellReceipt
	Total    int64
	Failures []string
	Balance  int64
}

// TossResult reports the outcome of a toss, including instances refused by
// their cannot-toss flag.
type TossResult struct {
	Tossed    []*Item
	Refused   []*Item
	Requested int
	Remaining int
}

// TransferResult reports the outcome of a transfer: instances moved, cheque
// value converted into the recipient's wallet, and instances refused by their
// cannot-send flag.
type TransferResult struct {
	Sent          []*Item
	Refused       []*Item
	ChequeCredit  int64
	RecipientName string
}

// The EconomySystem converts items into currency and moves them between owners.
type EconomySystem interface {
	System

	// Sell liquidates the given entries, crediting the configured currency.
	// Entries that cannot be honored fail individually without aborting the
	// rest.
	Sell(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, entries []SellEntry) (*SellResult, error)

	// Toss permanently destroys up to amount instances of a key.
	Toss(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, key string, amount int, all bool) (*TossResult, error)

	// Transfer moves instances of a key from sender to recipient. Cheques
	// convert into recipient currency instead of moving.
	Transfer(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, senderID, recipientID, key string, amount int, all bool) (*TransferResult, error)

	// GrantCurrencies applies a wallet changeset and returns updated balances.
	GrantCurrencies(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, changeset map[string]int64, reason string) (map[string]int64, error)

	// WalletBalance reads a single currency balance from an account wallet.
	WalletBalance(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, currency string) (int64, error)

	// Config returns the typed system configuration.
	Config() *EconomyConfig

	// SetBriefcase links the system to its registry.
	SetBriefcase(b Briefcase)
}

var _ EconomySystem = &EconomySystemImpl{}

// EconomySystemImpl implements the economy system.
type EconomySystemImpl struct {
	config    *EconomyConfig
	briefcase Briefcase
}

// NewEconomySystem creates the economy system with its configuration.
func NewEconomySystem(config *EconomyConfig) *EconomySystemImpl {
	if config == nil {
		config = &EconomyConfig{}
	}
	if config.CurrencyKey == "" {
		config.CurrencyKey = "money"
	}
	if config.GemCurrencyKey == "" {
		config.GemCurrencyKey = "gems"
	}
	return &EconomySystemImpl{config: config}
}

func (e *EconomySystemImpl) GetType() SystemType {
	return SystemTypeEconomy
}

func (e *EconomySystemImpl) GetConfig() any {
	return e.config
}

func (e *EconomySystemImpl) Config() *EconomyConfig {
	return e.config
}

func (e *EconomySystemImpl) SetBriefcase(b Briefcase) {
	e.briefcase = b
}

func (e *EconomySystemImpl) GrantCurrencies(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, changeset map[string]int64, reason string) (map[string]int64, error) {
	metadata := map[string]interface{}{"reason": reason}
	updated, _, err := nk.WalletUpdate(ctx, userID, changeset, metadata, true)
	if err != nil {
		logger.Error("wallet update failed for user %s: %v", userID, err)
		return nil, ErrInternal
	}
	return updated, nil
}

func (e *EconomySystemImpl) WalletBalance(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, currency string) (int64, error) {
	account, err := nk.AccountGetId(ctx, userID)
	if err != nil {
		logger.Error("failed to read account %s: %v", userID, err)
		return 0, ErrUserNotFound
	}
	wallet := map[string]int64{}
	if account.GetWallet() != "" {
		if err := json.Unmarshal([]byte(account.GetWallet()), &wallet); err != nil {
			logger.Error("malformed wallet for user %s: %v", userID, err)
			return 0, ErrInternal
		}
	}
	return wallet[currency], nil
}

func (e *EconomySystemImpl) Sell(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, entries []SellEntry) (*SellResult, error) {
	if len(entries) == 0 {
		return nil, ErrBadInput
	}

	inventory := e.briefcase.GetInventorySystem()
	result := &SellResult{}

	_, err := inventory.MutateOwner(ctx, logger, nk, userID, func(inv *Inventory) error {
		// Reset per attempt so a CAS retry does not double-count.
		result.Receipts = result.Receipts[:0]
		result.Failures = result.Failures[:0]
		result.Total = 0

		for _, entry := range entries {
			held := inv.Amount(entry.Key)
			if held == 0 {
				result.Failures = append(result.Failures, fmt.Sprintf("You don't have any \"%s\".", entry.Key))
				continue
			}
			amount := entry.Amount
			if entry.All {
				amount = held
			}
			if amount < 1 || amount > held {
				result.Failures = append(result.Failures, fmt.Sprintf("Invalid amount for \"%s\", you have %d.", entry.Key, held))
				continue
			}

			receipt := &SellReceipt{Amount: 0}
			for _, item := range inv.Get(entry.Key)[:amount] {
				if item.CannotSell || item.SellPrice <= 0 {
					continue
				}
				inv.RemoveInstance(item.InstanceID)
				receipt.Item = item
				receipt.Amount++
				receipt.Earned += item.SellPrice
			}
			if receipt.Amount == 0 {
				result.Failures = append(result.Failures, fmt.Sprintf("\"%s\" cannot be sold.", entry.Key))
				continue
			}
			result.Receipts = append(result.Receipts, receipt)
			result.Total += receipt.Earned
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Total > 0 {
		updated, err := e.GrantCurrencies(ctx, logger, nk, userID, map[string]int64{e.config.CurrencyKey: result.Total}, "briefcase_sell")
		if err != nil {
			return nil, err
		}
		result.Balance = updated[e.config.CurrencyKey]
	} else {
		balance, err := e.WalletBalance(ctx, logger, nk, userID, e.config.CurrencyKey)
		if err == nil {
			result.Balance = balance
		}
	}
	return result, nil
}

func (e *EconomySystemImpl) Toss(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, key string, amount int, all bool) (*TossResult, error) {
	inventory := e.briefcase.GetInventorySystem()
	result := &TossResult{}

	inv, err := inventory.MutateOwner(ctx, logger, nk, userID, func(inv *Inventory) error {
		result.Tossed = result.Tossed[:0]
		result.Refused = result.Refused[:0]

		held := inv.Amount(key)
		if held == 0 {
			return ErrItemNotFound
		}
		want := amount
		if all {
			want = held
		}
		if want < 1 {
			return ErrInvalidAmount
		}
		result.Requested = want
		if want > held {
			want = held
		}

		for _, item := range inv.Get(key)[:want] {
			if item.CannotToss {
				result.Refused = append(result.Refused, item)
				continue
			}
			inv.RemoveInstance(item.InstanceID)
			result.Tossed = append(result.Tossed, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Remaining = inv.Amount(key)
	return result, nil
}

func (e *EconomySystemImpl) Transfer(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, senderID, recipientID, key string, amount int, all bool) (*TransferResult, error) {
	if senderID == recipientID {
		return nil, ErrSelfTargetRejected
	}

	users, err := nk.UsersGetId(ctx, []string{recipientID}, nil)
	if err != nil || len(users) == 0 {
		return nil, ErrUserNotFound
	}
	recipientName := users[0].GetDisplayName()
	if recipientName == "" {
		recipientName = users[0].GetUsername()
	}

	inventory := e.briefcase.GetInventorySystem()
	result := &TransferResult{RecipientName: recipientName}

	_, _, err = inventory.MutateOwners(ctx, logger, nk, senderID, recipientID, func(sender, recipient *Inventory) error {
		result.Sent = result.Sent[:0]
		result.Refused = result.Refused[:0]
		result.ChequeCredit = 0

		held := sender.Amount(key)
		if held == 0 {
			return ErrItemNotFound
		}
		want := amount
		if all {
			want = held
		}
		if want < 1 || want > held {
			return ErrInvalidAmount
		}
		if recipient.Room() < want {
			return ErrCapacityExceeded
		}

		for _, item := range sender.Get(key)[:want] {
			if item.CannotSend {
				result.Refused = append(result.Refused, item)
				continue
			}
			sender.RemoveInstance(item.InstanceID)
			if item.Type == ItemTypeCheque {
				// Cheques never arrive as items; their value lands in the
				// recipient's wallet instead.
				if item.ChequeAmount <= 0 {
					return ErrInvalidCheque
				}
				result.ChequeCredit += item.ChequeAmount
				continue
			}
			if err := recipient.Add(item); err != nil {
				return err
			}
			result.Sent = append(result.Sent, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.ChequeCredit > 0 {
		if _, err := e.GrantCurrencies(ctx, logger, nk, recipientID, map[string]int64{e.config.CurrencyKey: result.ChequeCredit}, "briefcase_cheque_transfer"); err != nil {
			return nil, err
		}
	}
	return result, nil
}
