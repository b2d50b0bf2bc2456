package briefcase

import (
	"context"
	"sync"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/robfig/cron/v3"
)

// InteractionVariant names the protocol a pending interaction belongs to.
type InteractionVariant string

const (
	InteractionEquipTarget  InteractionVariant = "equip-target-selection"
	InteractionTreasurePick InteractionVariant = "treasure-pick"
	InteractionTradeReply   InteractionVariant = "trade-response"
	InteractionItemPick     InteractionVariant = "generic-item-pick"
)

// Interaction is one suspended conversation step, keyed by the outbound message
// id the user is expected to reply to.
type Interaction struct {
	MessageID string
	Variant   InteractionVariant
	// AuthorID restricts who may resume the interaction. Empty means anyone
	// (wildcard trades).
	AuthorID  string
	Payload   any
	CreatedAt time.Time

	inFlight bool
}

// ResumeFn handles a reply to a pending interaction. The returned reply text is
// sent back to the replier; done reports whether the interaction is finished
// and should be discarded.
type ResumeFn func(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, inter *Interaction, senderID, text string) (reply string, done bool, err error)

// InteractionsConfig is the data definition for the InteractionsSystem.
type InteractionsConfig struct {
	// TTLSec is how long a pending interaction stays claimable. Default 900.
	TTLSec int64 `json:"ttl_sec,omitempty"`
	// SweepSchedule is the cron schedule of the expiry sweep. Default every minute.
	SweepSchedule string `json:"sweep_schedule,omitempty"`
}

// The InteractionsSystem tracks suspended conversation steps and routes replies
// back into the protocol that created them.
type InteractionsSystem interface {
	System

	// Register stores a pending interaction under its message id.
	Register(inter *Interaction)

	// RegisterResumer binds a reply handler to an interaction variant.
	RegisterResumer(variant InteractionVariant, fn ResumeFn)

	// Resume routes a reply to the matching pending interaction. Replies that
	// match nothing, or that come from a sender the interaction is not
	// addressed to, are ignored and return an empty reply.
	Resume(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, senderID, messageID, text string) (string, error)

	// Remove discards a pending interaction, if present.
	Remove(messageID string)

	// Sweep discards interactions older than the TTL and returns how many.
	Sweep(now time.Time) int

	// Len returns the number of pending interactions.
	Len() int

	// Stop halts the background sweep.
	Stop()
}

var _ InteractionsSystem = &InteractionsSystemImpl{}

// InteractionsSystemImpl implements the interactions system.
type InteractionsSystemImpl struct {
	sync.Mutex
	config   *InteractionsConfig
	pending  map[string]*Interaction
	resumers map[InteractionVariant]ResumeFn
	cron     *cron.Cron
}

// NewInteractionsSystem creates the interactions system and starts its sweep job.
func NewInteractionsSystem(config *InteractionsConfig) *InteractionsSystemImpl {
	if config == nil {
		config = &InteractionsConfig{}
	}
	if config.TTLSec <= 0 {
		config.TTLSec = 900
	}
	if config.SweepSchedule == "" {
		config.SweepSchedule = "* * * * *"
	}

	i := &InteractionsSystemImpl{
		config:   config,
		pending:  make(map[string]*Interaction),
		resumers: make(map[InteractionVariant]ResumeFn),
		cron:     cron.New(),
	}
	_, _ = i.cron.AddFunc(config.SweepSchedule, func() {
		i.Sweep(time.Now())
	})
	i.cron.Start()
	return i
}

func (i *InteractionsSystemImpl) GetType() SystemType {
	return SystemTypeInteractions
}

func (i *InteractionsSystemImpl) GetConfig() any {
	return i.config
}

func (i *InteractionsSystemImpl) Register(inter *Interaction) {
	if inter == nil || inter.MessageID == "" {
		return
	}
	if inter.CreatedAt.IsZero() {
		inter.CreatedAt = time.Now()
	}
	i.Lock()
	i.pending[inter.MessageID] = inter
	i.Unlock()
}

func (i *InteractionsSystemImpl) RegisterResumer(variant InteractionVariant, fn ResumeFn) {
	i.Lock()
	i.resumers[variant] = fn
	i.Unlock()
}

func (i *InteractionsSystemImpl) Resume(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, senderID, messageID, text string) (string, error) {
	now := time.Now()

	i.Lock()
	inter, ok := i.pending[messageID]
	if ok && now.Sub(inter.CreatedAt) > time.Duration(i.config.TTLSec)*time.Second {
		delete(i.pending, messageID)
		ok = false
	}
	if !ok {
		i.Unlock()
		return "", nil
	}
	if inter.AuthorID != "" && inter.AuthorID != senderID {
		i.Unlock()
		return "", nil
	}
	if inter.inFlight {
		// Another reply claimed this interaction first.
		i.Unlock()
		return "", ErrStaleInteraction
	}
	inter.inFlight = true
	fn := i.resumers[inter.Variant]
	i.Unlock()

	if fn == nil {
		logger.Error("no resumer registered for interaction variant %q", inter.Variant)
		i.Remove(messageID)
		return "", ErrInternal
	}

	reply, done, err := fn(ctx, logger, nk, inter, senderID, text)

	i.Lock()
	if done {
		delete(i.pending, messageID)
	} else {
		inter.inFlight = false
	}
	i.Unlock()

	return reply, err
}

func (i *InteractionsSystemImpl) Remove(messageID string) {
	i.Lock()
	delete(i.pending, messageID)
	i.Unlock()
}

func (i *InteractionsSystemImpl) Sweep(now time.Time) int {
	ttl := time.Duration(i.config.TTLSec) * time.Second

	i.Lock()
	defer i.Unlock()
	removed := 0
	for id, inter := range i.pending {
		if now.Sub(inter.CreatedAt) > ttl && !inter.inFlight {
			delete(i.pending, id)
			removed++
		}
	}
	return removed
}

func (i *InteractionsSystemImpl) Len() int {
	i.Lock()
	defer i.Unlock()
	return len(i.pending)
}

func (i *InteractionsSystemImpl) Stop() {
	i.cron.Stop()
}
