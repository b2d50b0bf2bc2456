package briefcase

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"

	"github.com/heroiclabs/nakama-common/runtime"
)

// InventoryConfig is the data definition for the InventorySystem.
type InventoryConfig struct {
	// Collection is the storage collection holding inventory documents.
	Collection string `json:"collection,omitempty"`
	// InventoryKey is the storage key of the inventory document inside an
	// owner's account store.
	InventoryKey string `json:"inventory_key,omitempty"`
	// InventoryName and InventoryIcon decorate reply headers.
	InventoryName string `json:"inventory_name,omitempty"`
	InventoryIcon string `json:"inventory_icon,omitempty"`
	// Limit caps the number of item instances per owner. Default 36.
	Limit int `json:"limit,omitempty"`
	// Readonly disables every mutating command, leaving list/all/inspect/top.
	Readonly bool `json:"readonly,omitempty"`
	// HideCollectibles suppresses the wallet rollup at the end of `all`.
	HideCollectibles bool `json:"hide_collectibles,omitempty"`
	// IgnoreFeatures lists command keys to disable entirely.
	IgnoreFeatures []string `json:"ignore_features,omitempty"`
	// AdminUserIDs lists the user ids allowed to run admin verbs.
	AdminUserIDs []string `json:"admin_user_ids,omitempty"`
}

// The InventorySystem persists per-owner inventories and serializes their
// mutation.
type InventorySystem interface {
	System

	// Config returns the typed system configuration.
	Config() *InventoryConfig

	// Load reads an owner's inventory and its storage version. A missing
	// document yields an empty inventory with a create-only version.
	Load(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string) (*Inventory, string, error)

	// Save writes an owner's inventory using the version from the preceding
	// Load as a compare-and-swap condition.
	Save(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, inv *Inventory, version string) error

	// MutateOwner runs fn over a freshly-loaded inventory under the owner's
	// lock and persists the result. Conflicting concurrent writers are retried
	// a bounded number of times.
	MutateOwner(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, fn func(inv *Inventory) error) (*Inventory, error)

	// MutateOwners runs fn over two owners' inventories under both locks and
	// commits both documents in one atomic storage write.
	MutateOwners(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userIDA, userIDB string, fn func(a, b *Inventory) error) (*Inventory, *Inventory, error)

	// Grant adds freshly-cloned copies of the given items to an owner.
	Grant(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, items []*Item) (*Inventory, error)

	// ListAll pages through every inventory document in the collection.
	ListAll(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule) (map[string]*Inventory, error)

	// IsAdmin reports whether the user may run admin verbs.
	IsAdmin(userID string) bool
}

var _ InventorySystem = &InventorySystemImpl{}

// versionCreateOnly makes a storage write succeed only if the object does not
// exist yet.
const versionCreateOnly = "*"

const mutateRetries = 3

type inventoryDocument struct {
	Items []*Item `json:"items"`
}

// InventorySystemImpl implements the inventory system.
type InventorySystemImpl struct {
	config *InventoryConfig
	locks  [64]sync.Mutex
}

// NewInventorySystem creates the inventory system with its configuration.
func NewInventorySystem(config *InventoryConfig) *InventorySystemImpl {
	if config == nil {
		config = &InventoryConfig{}
	}
	if config.Collection == "" {
		config.Collection = "briefcase"
	}
	if config.InventoryKey == "" {
		config.InventoryKey = "inventory"
	}
	if config.InventoryName == "" {
		config.InventoryName = "Briefcase"
	}
	if config.Limit == 0 {
		config.Limit = 36
	}
	return &InventorySystemImpl{config: config}
}

func (i *InventorySystemImpl) GetType() SystemType {
	return SystemTypeInventory
}

func (i *InventorySystemImpl) GetConfig() any {
	return i.config
}

func (i *InventorySystemImpl) Config() *InventoryConfig {
	return i.config
}

func (i *InventorySystemImpl) IsAdmin(userID string) bool {
	for _, id := range i.config.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (i *InventorySystemImpl) lockIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(i.locks)))
}

func (i *InventorySystemImpl) Load(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string) (*Inventory, string, error) {
	objects, err := nk.StorageRead(ctx, []*runtime.StorageRead{{
		Collection: i.config.Collection,
		Key:        i.config.InventoryKey,
		UserID:     userID,
	}})
	if err != nil {
		logger.Error("failed to read inventory for user %s: %v", userID, err)
		return nil, "", ErrInternal
	}
	inv := NewInventory(i.config.Limit)
	if len(objects) == 0 {
		return inv, versionCreateOnly, nil
	}

	var doc inventoryDocument
	if err := json.Unmarshal([]byte(objects[0].GetValue()), &doc); err != nil {
		logger.Error("failed to unmarshal inventory for user %s: %v", userID, err)
		return nil, "", ErrInternal
	}
	inv.items = doc.Items
	return inv, objects[0].GetVersion(), nil
}

func (i *InventorySystemImpl) storageWrite(userID string, inv *Inventory, version string) (*runtime.StorageWrite, error) {
	value, err := json.Marshal(&inventoryDocument{Items: inv.items})
	if err != nil {
		return nil, ErrPayloadEncode
	}
	return &runtime.StorageWrite{
		Collection:      i.config.Collection,
		Key:             i.config.InventoryKey,
		UserID:          userID,
		Value:           string(value),
		Version:         version,
		PermissionRead:  1,
		PermissionWrite: 0,
	}, nil
}

func (i *InventorySystemImpl) Save(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, inv *Inventory, version string) error {
	write, err := i.storageWrite(userID, inv, version)
	if err != nil {
		return err
	}
	if _, err := nk.StorageWrite(ctx, []*runtime.StorageWrite{write}); err != nil {
		logger.Warn("conditional inventory write rejected for user %s: %v", userID, err)
		return ErrVersionConflict
	}
	return nil
}

func (i *InventorySystemImpl) MutateOwner(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, fn func(inv *Inventory) error) (*Inventory, error) {
	idx := i.lockIndex(userID)
	i.locks[idx].Lock()
	defer i.locks[idx].Unlock()

	var lastErr error
	for attempt := 0; attempt < mutateRetries; attempt++ {
		inv, version, err := i.Load(ctx, logger, nk, userID)
		if err != nil {
			return nil, err
		}
		if err := fn(inv); err != nil {
			return nil, err
		}
		if err := i.Save(ctx, logger, nk, userID, inv, version); err != nil {
			lastErr = err
			continue
		}
		return inv, nil
	}
	logger.Error("inventory mutation for user %s did not commit after %d attempts", userID, mutateRetries)
	return nil, lastErr
}

func (i *InventorySystemImpl) MutateOwners(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userIDA, userIDB string, fn func(a, b *Inventory) error) (*Inventory, *Inventory, error) {
	idxA, idxB := i.lockIndex(userIDA), i.lockIndex(userIDB)
	// Lock in index order so concurrent pairs cannot deadlock.
	if idxA > idxB {
		idxA, idxB = idxB, idxA
	}
	i.locks[idxA].Lock()
	defer i.locks[idxA].Unlock()
	if idxB != idxA {
		i.locks[idxB].Lock()
		defer i.locks[idxB].Unlock()
	}

	var lastErr error
	for attempt := 0; attempt < mutateRetries; attempt++ {
		invA, versionA, err := i.Load(ctx, logger, nk, userIDA)
		if err != nil {
			return nil, nil, err
		}
		invB, versionB, err := i.Load(ctx, logger, nk, userIDB)
		if err != nil {
			return nil, nil, err
		}
		if err := fn(invA, invB); err != nil {
			return nil, nil, err
		}
		writeA, err := i.storageWrite(userIDA, invA, versionA)
		if err != nil {
			return nil, nil, err
		}
		writeB, err := i.storageWrite(userIDB, invB, versionB)
		if err != nil {
			return nil, nil, err
		}
		// Both documents commit in one batch, or neither does.
		if _, err := nk.StorageWrite(ctx, []*runtime.StorageWrite{writeA, writeB}); err != nil {
			logger.Warn("two-owner inventory write rejected (%s, %s): %v", userIDA, userIDB, err)
			lastErr = ErrVersionConflict
			continue
		}
		return invA, invB, nil
	}
	return nil, nil, lastErr
}

func (i *InventorySystemImpl) Grant(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, items []*Item) (*Inventory, error) {
	clones := make([]*Item, 0, len(items))
	for _, item := range items {
		clones = append(clones, item.Clone())
	}
	return i.MutateOwner(ctx, logger, nk, userID, func(inv *Inventory) error {
		return inv.AddAll(clones)
	})
}

func (i *InventorySystemImpl) ListAll(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule) (map[string]*Inventory, error) {
	out := make(map[string]*Inventory)
	cursor := ""
	for {
		objects, nextCursor, err := nk.StorageList(ctx, "", "", i.config.Collection, 100, cursor)
		if err != nil {
			logger.Error("failed to list inventory collection: %v", err)
			return nil, ErrInternal
		}
		for _, object := range objects {
			if object.GetKey() != i.config.InventoryKey {
				continue
			}
			var doc inventoryDocument
			if err := json.Unmarshal([]byte(object.GetValue()), &doc); err != nil {
				logger.Warn("skipping malformed inventory document for user %s: %v", object.GetUserId(), err)
				continue
			}
			inv := NewInventory(i.config.Limit)
			inv.items = doc.Items
			out[object.GetUserId()] = inv
		}
		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}
	return out, nil
}
