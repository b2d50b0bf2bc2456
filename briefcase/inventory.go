package briefcase

import (
	"strings"

	"github.com/google/uuid"
)

// ItemType tags an item template with its behavioral variant.
type ItemType string

const (
	ItemTypeGeneric  ItemType = "generic"
	ItemTypeFood     ItemType = "food"
	ItemTypeAnyFood  ItemType = "any_food"
	ItemTypePet      ItemType = "pet"
	ItemTypeWeapon   ItemType = "weapon"
	ItemTypeArmor    ItemType = "armor"
	ItemTypeCheque   ItemType = "cheque"
	ItemTypePotion   ItemType = "potion"
	ItemTypeTreasure ItemType = "treasure"
	ItemTypePack     ItemType = "pack"
	ItemTypeZip      ItemType = "zip"
	ItemTypeRoulette ItemType = "roulette_pack"
)

// IsPetFood reports whether the type is edible by a pet: "food", "any_food", or
// any "<species>_food" variant.
func (t ItemType) IsPetFood() bool {
	return t == ItemTypeFood || strings.HasSuffix(string(t), "_food")
}

// IsEquippable reports whether the type occupies a gear slot.
func (t ItemType) IsEquippable() bool {
	return t == ItemTypeWeapon || t == ItemTypeArmor
}

// Item is one owned instance of an item template. Template fields (key, name,
// prices, flags, kind-specific payload) are copied into every instance;
// InstanceID alone distinguishes instances sharing a key.
type Item struct {
	Key        string   `json:"key"`
	InstanceID string   `json:"instance_id,omitempty"`
	Type       ItemType `json:"type"`
	Name       string   `json:"name"`
	Icon       string   `json:"icon,omitempty"`
	FlavorText string   `json:"flavor_text,omitempty"`
	UseText    string   `json:"use_text,omitempty"`

	SellPrice  int64 `json:"sell_price,omitempty"`
	CannotSell bool  `json:"cannot_sell,omitempty"`
	CannotToss bool  `json:"cannot_toss,omitempty"`
	CannotSend bool  `json:"cannot_send,omitempty"`

	// Gear stats, meaningful for weapon/armor types.
	Atk   int32 `json:"atk,omitempty"`
	Def   int32 `json:"def,omitempty"`
	Magic int32 `json:"magic,omitempty"`

	// Food payload.
	Heal       int32 `json:"heal,omitempty"`
	Saturation int64 `json:"saturation,omitempty"`

	// Cheque payload.
	ChequeAmount int64 `json:"cheque_amount,omitempty"`

	// Container payloads.
	PoolKey       string  `json:"pool_key,omitempty"`
	TreasureCount int     `json:"treasure_count,omitempty"`
	PackMin       int     `json:"pack_min,omitempty"`
	PackMax       int     `json:"pack_max,omitempty"`
	ZipContents   []*Item `json:"zip_contents,omitempty"`
}

// Clone returns a copy of the item with a fresh instance id.
func (i *Item) Clone() *Item {
	dup := *i
	dup.InstanceID = uuid.New().String()
	if len(i.ZipContents) > 0 {
		dup.ZipContents = make([]*Item, 0, len(i.ZipContents))
		for _, inner := range i.ZipContents {
			dup.ZipContents = append(dup.ZipContents, inner.Clone())
		}
	}
	return &dup
}

// DisplayName returns the icon-decorated name used in replies.
func (i *Item) DisplayName() string {
	if i.Icon == "" {
		return i.Name
	}
	return i.Icon + " " + i.Name
}

// GroupedItem is one row of a per-key rollup of an inventory.
type GroupedItem struct {
	Item   *Item
	Amount int
}

// Inventory is an ordered multiset of item instances bounded by a capacity.
// It is a pure in-memory structure; persistence belongs to the InventorySystem.
type Inventory struct {
	items []*Item
	limit int
}

// NewInventory creates an empty inventory with the given capacity. A
// non-positive limit means unbounded.
func NewInventory(limit int) *Inventory {
	return &Inventory{limit: limit}
}

// Len returns the number of item instances held.
func (inv *Inventory) Len() int {
	return len(inv.items)
}

// Limit returns the capacity, or 0 when unbounded.
func (inv *Inventory) Limit() int {
	return inv.limit
}

// Room returns how many more instances fit. Unbounded inventories report a
// large positive value.
func (inv *Inventory) Room() int {
	if inv.limit <= 0 {
		return int(^uint(0) >> 1)
	}
	return inv.limit - len(inv.items)
}

// Items returns the backing slice in insertion order. Callers must not mutate it.
func (inv *Inventory) Items() []*Item {
	return inv.items
}

// Add appends one instance, enforcing capacity.
func (inv *Inventory) Add(item *Item) error {
	if inv.limit > 0 && len(inv.items)+1 > inv.limit {
		return ErrCapacityExceeded
	}
	inv.items = append(inv.items, item)
	return nil
}

// AddAll appends every instance or none: capacity is checked against the whole
// batch before the first append.
func (inv *Inventory) AddAll(items []*Item) error {
	if inv.limit > 0 && len(inv.items)+len(items) > inv.limit {
		return ErrCapacityExceeded
	}
	inv.items = append(inv.items, items...)
	return nil
}

// Get returns every instance with the given key, in order.
func (inv *Inventory) Get(key string) []*Item {
	var out []*Item
	for _, item := range inv.items {
		if item.Key == key {
			out = append(out, item)
		}
	}
	return out
}

// GetOne returns the first instance with the given key, or nil.
func (inv *Inventory) GetOne(key string) *Item {
	for _, item := range inv.items {
		if item.Key == key {
			return item
		}
	}
	return nil
}

// ByIndex returns the instance at a 1-based position, or nil when out of range.
func (inv *Inventory) ByIndex(index int) *Item {
	if index < 1 || index > len(inv.items) {
		return nil
	}
	return inv.items[index-1]
}

// ByName returns the first instance whose display name matches exactly,
// case-insensitively, or nil.
func (inv *Inventory) ByName(name string) *Item {
	for _, item := range inv.items {
		if strings.EqualFold(item.Name, name) {
			return item
		}
	}
	return nil
}

// Amount returns the number of instances sharing the given key.
func (inv *Inventory) Amount(key string) int {
	n := 0
	for _, item := range inv.items {
		if item.Key == key {
			n++
		}
	}
	return n
}

// Has reports whether at least one instance with the key is held.
func (inv *Inventory) Has(key string) bool {
	return inv.Amount(key) > 0
}

// HasAmount reports whether at least amount instances with the key are held.
func (inv *Inventory) HasAmount(key string, amount int) bool {
	if amount < 1 {
		return false
	}
	return inv.Amount(key) >= amount
}

// RemoveInstance removes the instance with the given instance id and returns it.
func (inv *Inventory) RemoveInstance(instanceID string) *Item {
	for idx, item := range inv.items {
		if item.InstanceID == instanceID {
			inv.items = append(inv.items[:idx], inv.items[idx+1:]...)
			return item
		}
	}
	return nil
}

// RemoveOne removes the first instance with the given key and returns it, or
// nil when the key is absent.
func (inv *Inventory) RemoveOne(key string) *Item {
	for idx, item := range inv.items {
		if item.Key == key {
			inv.items = append(inv.items[:idx], inv.items[idx+1:]...)
			return item
		}
	}
	return nil
}

// RemoveByKey removes up to amount instances with the given key, in order, and
// returns the removed instances. Fewer than amount may be removed when the key
// runs out.
func (inv *Inventory) RemoveByKey(key string, amount int) []*Item {
	if amount < 1 {
		return nil
	}
	removed := make([]*Item, 0, amount)
	kept := inv.items[:0]
	for _, item := range inv.items {
		if item.Key == key && len(removed) < amount {
			removed = append(removed, item)
			continue
		}
		kept = append(kept, item)
	}
	inv.items = kept
	return removed
}

// Grouped rolls the inventory up by key, preserving first-seen order. The
// representative item of each row is the first instance of its key.
func (inv *Inventory) Grouped() []*GroupedItem {
	rows := make([]*GroupedItem, 0, len(inv.items))
	byKey := make(map[string]*GroupedItem, len(inv.items))
	for _, item := range inv.items {
		if row, ok := byKey[item.Key]; ok {
			row.Amount++
			continue
		}
		row := &GroupedItem{Item: item, Amount: 1}
		byKey[item.Key] = row
		rows = append(rows, row)
	}
	return rows
}
