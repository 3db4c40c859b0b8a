package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"

	"scratchgems/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBlobStore keeps blobs in memory and counts writes. failNext
// makes the next Save return an error, exercising the conflict retry.
type fakeBlobStore struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	saves    int
	failNext bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (f *fakeBlobStore) Load(ctx context.Context, name string, dest any) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.blobs[name]
	if !ok {
		return ""
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return ""
	}
	return "sha-" + name
}

func (f *fakeBlobStore) Save(ctx context.Context, name string, data any, sha string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return sha, errors.New("revision conflict")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return sha, err
	}
	f.blobs[name] = raw
	f.saves++
	return "sha-" + name + "-" + strconv.Itoa(f.saves), nil
}

func newTestStore(t *testing.T) (*Store, *fakeBlobStore) {
	t.Helper()
	blobs := newFakeBlobStore()
	return Load(context.Background(), blobs), blobs
}

func TestBalance_DefaultForUnseenIdentity(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Equal(t, 100, store.Balance("never seen"))
	// The read path must not materialize the default
	assert.False(t, store.HasBalance("never seen"))
	assert.Equal(t, 0, store.UserCount())
}

func TestSetBalance_StoresRawAndRoundsOnRead(t *testing.T) {
	store, blobs := newTestStore(t)
	store.SetBalance(context.Background(), "Alice Smith", 70.4)
	assert.Equal(t, 70, store.Balance("alicesmith"))
	assert.Equal(t, 1, blobs.saves, "every mutation persists once")

	// Raw value survives a reload
	reloaded := Load(context.Background(), blobs)
	raw, ok := reloaded.BalancesSnapshot()["alicesmith"]
	require.True(t, ok)
	assert.Equal(t, 70.4, raw)
}

func TestEnsureBalance_MaterializesDefault(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Equal(t, 100, store.EnsureBalance(context.Background(), "Alice Smith"))
	assert.True(t, store.HasBalance("alicesmith"))
	assert.Equal(t, 1, store.UserCount())
}

func TestPersist_RetriesOnceOnConflict(t *testing.T) {
	store, blobs := newTestStore(t)
	blobs.failNext = true
	store.SetBalance(context.Background(), "alice", 50)
	// The retry refreshed the revision and wrote through
	assert.Equal(t, 1, blobs.saves)
	assert.Equal(t, 50, store.Balance("alice"))
}

func TestLeaderboard_TopTenDescending(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 12; i++ {
		store.SetBalance(ctx, "user"+strconv.Itoa(i), float64(i*10))
	}
	top := store.Leaderboard(10)
	require.Len(t, top, 10)
	assert.Equal(t, "user12", top[0].Name)
	assert.Equal(t, 120, top[0].Balance)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].Balance, top[i].Balance)
	}
	// The two lowest balances fell off
	for _, e := range top {
		assert.NotEqual(t, "user1", e.Name)
		assert.NotEqual(t, "user2", e.Name)
	}
}

func TestNotifications_PlaceholderAndOrder(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	assert.Equal(t, []string{"No notifications!"}, store.Notifications("alice"))

	store.AppendNotification(ctx, "alice", "first")
	store.AppendNotification(ctx, "alice", "second")
	assert.Equal(t, []string{"first", "second"}, store.Notifications("Alice"))
}

func TestPreferences_RoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Equal(t, domain.Preferences{Theme: "blue", Mute: "False"}, store.Preferences("alice"))

	prefs := domain.Preferences{Theme: "dark", Mute: "False"}
	store.SetPreferences(context.Background(), "alice", prefs)
	assert.Equal(t, prefs, store.Preferences("alice"))
	assert.Equal(t, []string{"dark", "False"}, store.Preferences("alice").Values())
}

func TestRecordTransaction_IDAndLookup(t *testing.T) {
	store, _ := newTestStore(t)
	tx := store.RecordTransaction(context.Background(), "alice", "bob", 30)
	assert.Equal(t, strconv.FormatInt(tx.Timestamp, 10)+"_alice", tx.ID)
	assert.Equal(t, 30.0, tx.Amount)

	all := store.Transactions()
	require.Len(t, all, 1)
	assert.Equal(t, tx, all[0])

	assert.Len(t, store.TransactionsFor("alice"), 1)
	assert.Len(t, store.TransactionsFor("Bob"), 1)
	assert.Empty(t, store.TransactionsFor("carol"))
}

func TestCreateCredential_Once(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	assert.True(t, store.CreateCredential(ctx, "dave", "pw1"))
	assert.False(t, store.CreateCredential(ctx, "dave", "pw2"))

	secret, ok := store.Credential("dave")
	require.True(t, ok)
	assert.Equal(t, "pw1", secret)
}

func TestTotalBalance_RoundedSum(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	store.SetBalance(ctx, "a", 10.3)
	store.SetBalance(ctx, "b", 20.4)
	assert.Equal(t, 31, store.TotalBalance())
	assert.Equal(t, []string{"a", "b"}, store.Users())
	assert.Equal(t, map[string]int{"a": 10, "b": 20}, store.BalancesRounded())
}
