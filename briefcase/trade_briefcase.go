package briefcase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"
)

// TradeConfig is the data definition for the TradeSystem.
type TradeConfig struct {
	// DisableWildcard forbids open trades that anyone may accept.
	DisableWildcard bool `json:"disable_wildcard,omitempty"`
}

// The TradeSystem runs the two-party item swap protocol.
type TradeSystem interface {
	System

	// Propose opens a trade. An empty counterpartyID makes a wildcard trade
	// anyone but the proposer may accept. Holdings are checked advisorily at
	// proposal time and re-validated at acceptance.
	Propose(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, proposerID, counterpartyID, offerKey string, offerAmount int, wantKey string, wantAmount int) (message string, messageID string, err error)

	// Config returns the typed system configuration.
	Config() *TradeConfig

	// SetBriefcase links the system to its registry.
	SetBriefcase(b Briefcase)
}

var _ TradeSystem = &TradeSystemImpl{}

type tradePayload struct {
	ProposerID     string
	CounterpartyID string
	OfferKey       string
	OfferAmount    int
	WantKey        string
	WantAmount     int
}

// TradeSystemImpl implements the trade system.
type TradeSystemImpl struct {
	config    *TradeConfig
	briefcase Briefcase
}

// NewTradeSystem creates the trade system with its configuration.
func NewTradeSystem(config *TradeConfig) *TradeSystemImpl {
	if config == nil {
		config = &TradeConfig{}
	}
	return &TradeSystemImpl{config: config}
}

func (t *TradeSystemImpl) GetType() SystemType {
	return SystemTypeTrade
}

func (t *TradeSystemImpl) GetConfig() any {
	return t.config
}

func (t *TradeSystemImpl) Config() *TradeConfig {
	return t.config
}

func (t *TradeSystemImpl) SetBriefcase(b Briefcase) {
	t.briefcase = b
}

func (t *TradeSystemImpl) registerResumers(interactions InteractionsSystem) {
	interactions.RegisterResumer(InteractionTradeReply, t.resumeTrade)
}

func (t *TradeSystemImpl) Propose(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, proposerID, counterpartyID, offerKey string, offerAmount int, wantKey string, wantAmount int) (string, string, error) {
	if offerAmount < 1 || wantAmount < 1 {
		return "", "", ErrInvalidAmount
	}
	if counterpartyID == proposerID {
		return "", "", ErrSelfTargetRejected
	}
	if counterpartyID == "" && t.config.DisableWildcard {
		return "", "", ErrBadInput
	}
	if counterpartyID != "" {
		users, err := nk.UsersGetId(ctx, []string{counterpartyID}, nil)
		if err != nil || len(users) == 0 {
			return "", "", ErrUserNotFound
		}
	}

	// Advisory only. The binding check happens again at acceptance, against
	// live inventories.
	inventory := t.briefcase.GetInventorySystem()
	inv, _, err := inventory.Load(ctx, logger, nk, proposerID)
	if err != nil {
		return "", "", err
	}
	if !inv.HasAmount(offerKey, offerAmount) {
		return "", "", ErrInsufficientAmount
	}

	target := counterpartyID
	audience := "Anyone"
	if counterpartyID == "" {
		target = proposerID
	} else {
		audience = "You"
	}
	text := fmt.Sprintf("🤝 Trade offer: %d× %s for %d× %s. %s can reply \"accept\" to seal it, or anything else to decline.",
		offerAmount, offerKey, wantAmount, wantKey, audience)

	messenger := t.briefcase.Messenger()
	if messenger == nil {
		return "", "", ErrSystemNotAvailable
	}
	messageID, err := messenger.Send(ctx, logger, nk, target, text)
	if err != nil {
		logger.Error("failed to send trade offer from user %s: %v", proposerID, err)
		return "", "", ErrInternal
	}

	t.briefcase.GetInteractionsSystem().Register(&Interaction{
		MessageID: messageID,
		Variant:   InteractionTradeReply,
		AuthorID:  counterpartyID,
		Payload: &tradePayload{
			ProposerID:     proposerID,
			CounterpartyID: counterpartyID,
			OfferKey:       offerKey,
			OfferAmount:    offerAmount,
			WantKey:        wantKey,
			WantAmount:     wantAmount,
		},
	})
	return text, messageID, nil
}

func (t *TradeSystemImpl) resumeTrade(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, inter *Interaction, senderID, text string) (string, bool, error) {
	payload, ok := inter.Payload.(*tradePayload)
	if !ok {
		return "", true, ErrInternal
	}

	reply := strings.ToLower(strings.TrimSpace(text))
	if senderID == payload.ProposerID {
		if reply == "cancel" {
			return "Trade offer withdrawn.", true, nil
		}
		return "You can't accept your own trade.", false, nil
	}

	if reply != "accept" {
		return "Trade declined.", true, nil
	}

	message, err := t.settle(ctx, logger, nk, payload, senderID)
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientAmount):
			return "The trade fell through: one side no longer holds the goods.", true, nil
		case errors.Is(err, ErrCapacityExceeded):
			return "The trade fell through: not enough room to receive the goods.", true, nil
		}
		return "", true, err
	}
	return message, true, nil
}

// settle swaps the goods all-or-nothing. Both inventories re-validate under
// their locks and both documents commit in a single storage write.
func (t *TradeSystemImpl) settle(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, payload *tradePayload, accepterID string) (string, error) {
	inventory := t.briefcase.GetInventorySystem()

	_, _, err := inventory.MutateOwners(ctx, logger, nk, payload.ProposerID, accepterID, func(proposer, accepter *Inventory) error {
		if !proposer.HasAmount(payload.OfferKey, payload.OfferAmount) {
			return ErrInsufficientAmount
		}
		if !accepter.HasAmount(payload.WantKey, payload.WantAmount) {
			return ErrInsufficientAmount
		}
		offered := proposer.RemoveByKey(payload.OfferKey, payload.OfferAmount)
		wanted := accepter.RemoveByKey(payload.WantKey, payload.WantAmount)
		if err := proposer.AddAll(wanted); err != nil {
			return err
		}
		return accepter.AddAll(offered)
	})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("🤝 Deal! %d× %s traded for %d× %s.",
		payload.OfferAmount, payload.OfferKey, payload.WantAmount, payload.WantKey), nil
}
