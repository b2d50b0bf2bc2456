package briefcase

import (
	"context"
	"sync"

	"github.com/heroiclabs/nakama-common/runtime"
)

// UsagePluginArg carries the item and owner context for a plugin invocation.
type UsagePluginArg struct {
	UserID string
	Item   *Item
	// Args are the raw command tokens after the item key.
	Args []string
}

// UsagePluginFn handles use of an item type the consume dispatcher does not
// claim itself. The returned reply is sent to the user when claimed is true;
// unclaimed invocations fall through to the next plugin.
type UsagePluginFn func(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, arg *UsagePluginArg) (reply string, claimed bool, err error)

type usagePluginRegistry struct {
	sync.RWMutex
	plugins map[ItemType][]UsagePluginFn
}

func newUsagePluginRegistry() *usagePluginRegistry {
	return &usagePluginRegistry{plugins: make(map[ItemType][]UsagePluginFn)}
}

func (r *usagePluginRegistry) register(itemType ItemType, fn UsagePluginFn) {
	if fn == nil {
		return
	}
	r.Lock()
	r.plugins[itemType] = append(r.plugins[itemType], fn)
	r.Unlock()
}

func (r *usagePluginRegistry) resolve(itemType ItemType) []UsagePluginFn {
	r.RLock()
	defer r.RUnlock()
	return r.plugins[itemType]
}
