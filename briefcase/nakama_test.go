package briefcase

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeNakamaModule is a test double for runtime.NakamaModule backed by maps.
// Storage honors version compare-and-swap so the conflict paths are testable.
type fakeNakamaModule struct {
	runtime.NakamaModule
	sync.Mutex
	storage       map[string]*storedObject // collection:key:userID -> object
	wallets       map[string]map[string]int64
	users         map[string]*api.User
	notifications []string
}

type storedObject struct {
	value   string
	version int
}

func newFakeNakama() *fakeNakamaModule {
	return &fakeNakamaModule{
		storage: make(map[string]*storedObject),
		wallets: make(map[string]map[string]int64),
		users:   make(map[string]*api.User),
	}
}

func storageKey(collection, key, userID string) string {
	return collection + ":" + key + ":" + userID
}

func (n *fakeNakamaModule) addUser(userID, username string) {
	n.Lock()
	defer n.Unlock()
	n.users[userID] = &api.User{Id: userID, Username: username}
}

func (n *fakeNakamaModule) setWallet(userID string, balances map[string]int64) {
	n.Lock()
	defer n.Unlock()
	n.wallets[userID] = balances
}

func (n *fakeNakamaModule) StorageRead(ctx context.Context, reads []*runtime.StorageRead) ([]*api.StorageObject, error) {
	n.Lock()
	defer n.Unlock()
	result := make([]*api.StorageObject, 0, len(reads))
	for _, read := range reads {
		object, exists := n.storage[storageKey(read.Collection, read.Key, read.UserID)]
		if !exists {
			continue
		}
		result = append(result, &api.StorageObject{
			Collection: read.Collection,
			Key:        read.Key,
			UserId:     read.UserID,
			Value:      object.value,
			Version:    strconv.Itoa(object.version),
		})
	}
	return result, nil
}

func (n *fakeNakamaModule) StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error) {
	n.Lock()
	defer n.Unlock()
	// Validate the whole batch before applying any of it.
	for _, write := range writes {
		object, exists := n.storage[storageKey(write.Collection, write.Key, write.UserID)]
		switch write.Version {
		case "":
		case "*":
			if exists {
				return nil, errors.New("storage rejection: object already exists")
			}
		default:
			if !exists || strconv.Itoa(object.version) != write.Version {
				return nil, errors.New("storage rejection: version mismatch")
			}
		}
	}
	acks := make([]*api.StorageObjectAck, 0, len(writes))
	for _, write := range writes {
		key := storageKey(write.Collection, write.Key, write.UserID)
		object, exists := n.storage[key]
		if !exists {
			object = &storedObject{}
			n.storage[key] = object
		}
		object.value = write.Value
		object.version++
		acks = append(acks, &api.StorageObjectAck{
			Collection: write.Collection,
			Key:        write.Key,
			UserId:     write.UserID,
			Version:    strconv.Itoa(object.version),
		})
	}
	return acks, nil
}

func (n *fakeNakamaModule) StorageList(ctx context.Context, callerID, userID, collection string, limit int, cursor string) ([]*api.StorageObject, string, error) {
	n.Lock()
	defer n.Unlock()
	result := make([]*api.StorageObject, 0)
	for key, object := range n.storage {
		parts := strings.SplitN(key, ":", 3)
		if parts[0] != collection {
			continue
		}
		if userID != "" && parts[2] != userID {
			continue
		}
		result = append(result, &api.StorageObject{
			Collection: parts[0],
			Key:        parts[1],
			UserId:     parts[2],
			Value:      object.value,
			Version:    strconv.Itoa(object.version),
		})
	}
	return result, "", nil
}

func (n *fakeNakamaModule) WalletUpdate(ctx context.Context, userID string, changeset map[string]int64, metadata map[string]interface{}, updateLedger bool) (map[string]int64, map[string]int64, error) {
	n.Lock()
	defer n.Unlock()
	wallet := n.wallets[userID]
	if wallet == nil {
		wallet = make(map[string]int64)
		n.wallets[userID] = wallet
	}
	previous := make(map[string]int64, len(wallet))
	for currency, balance := range wallet {
		previous[currency] = balance
	}
	for currency, delta := range changeset {
		if wallet[currency]+delta < 0 {
			return nil, nil, errors.New("wallet rejection: insufficient funds")
		}
	}
	for currency, delta := range changeset {
		wallet[currency] += delta
	}
	updated := make(map[string]int64, len(wallet))
	for currency, balance := range wallet {
		updated[currency] = balance
	}
	return updated, previous, nil
}

func (n *fakeNakamaModule) AccountGetId(ctx context.Context, userID string) (*api.Account, error) {
	n.Lock()
	defer n.Unlock()
	user := n.users[userID]
	if user == nil {
		user = &api.User{Id: userID, Username: userID}
	}
	wallet, err := json.Marshal(n.wallets[userID])
	if err != nil {
		return nil, err
	}
	return &api.Account{User: user, Wallet: string(wallet)}, nil
}

func (n *fakeNakamaModule) UsersGetId(ctx context.Context, userIDs []string, facebookIDs []string) ([]*api.User, error) {
	n.Lock()
	defer n.Unlock()
	result := make([]*api.User, 0, len(userIDs))
	for _, id := range userIDs {
		if user, ok := n.users[id]; ok {
			result = append(result, user)
		}
	}
	return result, nil
}

func (n *fakeNakamaModule) NotificationSend(ctx context.Context, userID, subject string, content map[string]interface{}, code int, sender string, persistent bool) error {
	n.Lock()
	defer n.Unlock()
	n.notifications = append(n.notifications, userID+": "+subject)
	return nil
}

// testLogger adapts zap to runtime.Logger.
type testLogger struct {
	z *zap.SugaredLogger
}

func newTestLogger() *testLogger {
	return &testLogger{z: zap.NewNop().Sugar()}
}

func (l *testLogger) Debug(format string, v ...interface{})                   { l.z.Debugf(format, v...) }
func (l *testLogger) Info(format string, v ...interface{})                    { l.z.Infof(format, v...) }
func (l *testLogger) Warn(format string, v ...interface{})                    { l.z.Warnf(format, v...) }
func (l *testLogger) Error(format string, v ...interface{})                   { l.z.Errorf(format, v...) }
func (l *testLogger) WithField(key string, v interface{}) runtime.Logger      { return l }
func (l *testLogger) WithFields(fields map[string]interface{}) runtime.Logger { return l }
func (l *testLogger) Fields() map[string]interface{}                          { return nil }

// fakeMessenger records outbound prompts and hands back generated message ids.
type fakeMessenger struct {
	sync.Mutex
	sent []sentPrompt
}

type sentPrompt struct {
	userID    string
	text      string
	messageID string
}

func (m *fakeMessenger) Send(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, text string) (string, error) {
	m.Lock()
	defer m.Unlock()
	prompt := sentPrompt{userID: userID, text: text, messageID: uuid.New().String()}
	m.sent = append(m.sent, prompt)
	return prompt.messageID, nil
}

func (m *fakeMessenger) last() sentPrompt {
	m.Lock()
	defer m.Unlock()
	return m.sent[len(m.sent)-1]
}

// scriptedGenerator deals items from a fixed queue, cycling when it runs out,
// and counts how often it was asked to mint.
type scriptedGenerator struct {
	queue []*Item
	next  int
	calls int
}

func (g *scriptedGenerator) Generate(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, poolKey string) (*Item, error) {
	g.calls++
	if len(g.queue) == 0 {
		return &Item{Key: poolKey + "_drop", Type: ItemTypeGeneric, Name: "Drop"}, nil
	}
	item := g.queue[g.next%len(g.queue)]
	g.next++
	return item, nil
}

// fakeGear is a single-pet gear collaborator with two slots. equipErr makes
// Equip fail; onEquip runs just before an equip commits.
type fakeGear struct {
	pets     []*Pet
	equipped map[string]map[int]*Item
	equipErr error
	onEquip  func()
}

func newFakeGear(pets ...*Pet) *fakeGear {
	return &fakeGear{pets: pets, equipped: make(map[string]map[int]*Item)}
}

func (g *fakeGear) ListPets(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string) ([]*Pet, error) {
	return g.pets, nil
}

func (g *fakeGear) Preview(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, petKey string, slot int, item *Item) (GearStats, GearStats, error) {
	before := GearStats{}
	if current := g.equipped[petKey][slot]; current != nil {
		before = GearStats{Atk: current.Atk, Def: current.Def, Magic: current.Magic}
	}
	return before, GearStats{Atk: item.Atk, Def: item.Def, Magic: item.Magic}, nil
}

func (g *fakeGear) Equip(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, petKey string, slot int, item *Item) (*Item, error) {
	if g.onEquip != nil {
		g.onEquip()
	}
	if g.equipErr != nil {
		return nil, g.equipErr
	}
	slots := g.equipped[petKey]
	if slots == nil {
		slots = make(map[int]*Item)
		g.equipped[petKey] = slots
	}
	previous := slots[slot]
	slots[slot] = item
	return previous, nil
}

func (g *fakeGear) Unequip(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, petKey string, slot int, slotType ItemType) (*Item, error) {
	slots := g.equipped[petKey]
	if slots == nil {
		return nil, nil
	}
	previous := slots[slot]
	delete(slots, slot)
	return previous, nil
}

// newTestBriefcase builds a fully-wired registry on defaults, with a fake
// messenger and scripted generator, for exercising the systems end to end.
func newTestBriefcase(t *testing.T, nk *fakeNakamaModule) (*briefcaseImpl, *fakeMessenger) {
	t.Helper()
	bc, err := Init(context.Background(), newTestLogger(), nk, nil,
		WithInventorySystem("", false),
		WithEconomySystem("", false),
		WithConsumeSystem("", false),
		WithInteractionsSystem("", false),
		WithTradeSystem("", false),
	)
	require.NoError(t, err)
	t.Cleanup(bc.Close)

	messenger := &fakeMessenger{}
	bc.SetMessenger(messenger)
	bc.SetItemGenerator(&scriptedGenerator{})
	return bc.(*briefcaseImpl), messenger
}

// seedInventory writes an inventory document directly, bypassing the mutators.
func seedInventory(t *testing.T, nk *fakeNakamaModule, system InventorySystem, userID string, items ...*Item) {
	t.Helper()
	inv := NewInventory(system.Config().Limit)
	for _, item := range items {
		if item.InstanceID == "" {
			item.InstanceID = uuid.New().String()
		}
		require.NoError(t, inv.Add(item))
	}
	require.NoError(t, system.Save(context.Background(), newTestLogger(), nk, userID, inv, versionCreateOnly))
}
