package ledger

import (
	"context" // Context for blob store round trips
	"math"    // Rounding balances for display
	"sort"    // Leaderboard and transaction ordering
	"strconv" // Transaction identifiers
	"sync"    // One mutex per mapping
	"time"    // Transaction identifiers

	"scratchgems/internal/domain" // Ledger record types

	"github.com/sirupsen/logrus" // Logging library
)

// Blob names in the database repository. The credentials blob keeps
// its historical name.
const (
	BalancesBlob      = "dict_balances"
	NotificationsBlob = "dict_notifications"
	TransactionsBlob  = "dict_transactions"
	PreferencesBlob   = "dict_preferences"
	CredentialsBlob   = "ps_us"
)

// DefaultBalance is granted to any identity seen for the first time
const DefaultBalance = 100.0

// noNotifications is the placeholder returned for an identity with an
// empty notification sequence
var noNotifications = []string{"No notifications!"}

// BlobStore is the persistence backend: load a named mapping with its
// revision, save it back under an optimistic revision precondition.
type BlobStore interface {
	Load(ctx context.Context, name string, dest any) string
	Save(ctx context.Context, name string, data any, sha string) (string, error)
}

// Store holds the five ledger mappings in memory, each guarded by its
// own mutex and paired with the last known blob revision. Memory is
// the source of truth; every mutation pushes the whole mapping back to
// the blob store before returning.
type Store struct {
	blobs BlobStore // Persistence backend

	balMu    sync.Mutex         // Guards balances and balSha
	balances map[string]float64 // Identity -> raw balance
	balSha   string             // Last known balances revision

	notifMu sync.Mutex          // Guards notifications and notifSha
	notifs  map[string][]string // Identity -> ordered messages, oldest first
	notifSha string             // Last known notifications revision

	txMu  sync.Mutex                    // Guards transactions and txSha
	txs   map[string]domain.Transaction // Transaction id -> record, append-only
	txSha string                        // Last known transactions revision

	prefMu  sync.Mutex                     // Guards preferences and prefSha
	prefs   map[string]domain.Preferences  // Identity -> preferences
	prefSha string                         // Last known preferences revision

	credMu  sync.Mutex        // Guards credentials and credSha
	creds   map[string]string // Identity -> shared secret
	credSha string            // Last known credentials revision
}

// Load fetches all five mappings from the blob store once, at process
// start. Missing or unreachable blobs come back empty; the service
// still starts.
func Load(ctx context.Context, blobs BlobStore) *Store {
	s := &Store{
		blobs:    blobs,
		balances: make(map[string]float64),
		notifs:   make(map[string][]string),
		txs:      make(map[string]domain.Transaction),
		prefs:    make(map[string]domain.Preferences),
		creds:    make(map[string]string),
	}
	s.balSha = blobs.Load(ctx, BalancesBlob, &s.balances)
	s.notifSha = blobs.Load(ctx, NotificationsBlob, &s.notifs)
	s.txSha = blobs.Load(ctx, TransactionsBlob, &s.txs)
	s.prefSha = blobs.Load(ctx, PreferencesBlob, &s.prefs)
	s.credSha = blobs.Load(ctx, CredentialsBlob, &s.creds)
	logrus.WithFields(logrus.Fields{
		"users":        len(s.creds),    // Known credentials
		"balances":     len(s.balances), // Known balances
		"transactions": len(s.txs),      // Recorded transactions
	}).Info("Ledger loaded")
	return s
}

// persist writes one full mapping back to the blob store, updating the
// revision in place. On a revision conflict it refreshes the remote
// revision and retries once, keeping the in-memory mapping
// authoritative (last writer wins). Caller must hold the mapping's
// mutex.
func (s *Store) persist(ctx context.Context, name string, data any, sha *string) {
	newSha, err := s.blobs.Save(ctx, name, data, *sha)
	if err != nil {
		// Stale revision: fetch the current one, discard the remote
		// data, and write our mapping over it
		var discard map[string]any
		fresh := s.blobs.Load(ctx, name, &discard)
		newSha, err = s.blobs.Save(ctx, name, data, fresh)
		if err != nil {
			logrus.WithFields(logrus.Fields{"blob": name, "error": err.Error()}).Error("Persist failed after conflict retry")
			return
		}
	}
	*sha = newSha // Remember the revision for the next write
}

// --------------------- Balances ---------------------

// Balance returns the identity's balance rounded for display, or the
// default for an identity never seen. The default is not written back
// by this read path.
func (s *Store) Balance(user string) int {
	s.balMu.Lock()
	defer s.balMu.Unlock()
	if v, ok := s.balances[Normalize(user)]; ok {
		return int(math.Round(v))
	}
	return int(DefaultBalance)
}

// rawBalance returns the stored unrounded balance and whether the
// identity exists
func (s *Store) rawBalance(user string) (float64, bool) {
	s.balMu.Lock()
	defer s.balMu.Unlock()
	v, ok := s.balances[Normalize(user)]
	return v, ok
}

// HasBalance reports whether the identity has a materialized balance
func (s *Store) HasBalance(user string) bool {
	_, ok := s.rawBalance(user)
	return ok
}

// SetBalance stores a raw balance and persists the whole mapping
func (s *Store) SetBalance(ctx context.Context, user string, amount float64) {
	s.balMu.Lock()
	defer s.balMu.Unlock()
	s.balances[Normalize(user)] = amount
	s.persist(ctx, BalancesBlob, s.balances, &s.balSha)
}

// EnsureBalance materializes the default balance for an unseen
// identity and returns the rounded balance either way
func (s *Store) EnsureBalance(ctx context.Context, user string) int {
	if !s.HasBalance(user) {
		s.SetBalance(ctx, user, DefaultBalance)
	}
	return s.Balance(user)
}

// UserCount returns the number of identities holding a balance
func (s *Store) UserCount() int {
	s.balMu.Lock()
	defer s.balMu.Unlock()
	return len(s.balances)
}

// TotalBalance returns the rounded sum of all balances
func (s *Store) TotalBalance() int {
	s.balMu.Lock()
	defer s.balMu.Unlock()
	var sum float64
	for _, v := range s.balances {
		sum += v
	}
	return int(math.Round(sum))
}

// Users lists every identity holding a balance, sorted for stable
// output
func (s *Store) Users() []string {
	s.balMu.Lock()
	defer s.balMu.Unlock()
	users := make([]string, 0, len(s.balances))
	for k := range s.balances {
		users = append(users, k)
	}
	sort.Strings(users)
	return users
}

// BalancesRounded returns a copy of the balances map rounded for
// display
func (s *Store) BalancesRounded() map[string]int {
	s.balMu.Lock()
	defer s.balMu.Unlock()
	out := make(map[string]int, len(s.balances))
	for k, v := range s.balances {
		out[k] = int(math.Round(v))
	}
	return out
}

// BalancesSnapshot returns a copy of the raw balances map
func (s *Store) BalancesSnapshot() map[string]float64 {
	s.balMu.Lock()
	defer s.balMu.Unlock()
	out := make(map[string]float64, len(s.balances))
	for k, v := range s.balances {
		out[k] = v
	}
	return out
}

// LeaderboardEntry is one row of the leaderboard
type LeaderboardEntry struct {
	Name    string // Identity
	Balance int    // Truncated balance, as the clients render it
}

// Leaderboard returns at most n identities ordered by balance
// descending; ties keep their name order so the output is stable
func (s *Store) Leaderboard(n int) []LeaderboardEntry {
	type row struct {
		name string  // Identity
		raw  float64 // Unrounded balance for ordering
	}
	s.balMu.Lock()
	rows := make([]row, 0, len(s.balances))
	for k, v := range s.balances {
		rows = append(rows, row{name: k, raw: v})
	}
	s.balMu.Unlock()
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].raw > rows[j].raw })
	if len(rows) > n {
		rows = rows[:n]
	}
	entries := make([]LeaderboardEntry, len(rows))
	for i, r := range rows {
		entries[i] = LeaderboardEntry{Name: r.name, Balance: int(r.raw)}
	}
	return entries
}

// --------------------- Notifications ---------------------

// AppendNotification appends one message to the identity's sequence
// and persists the whole mapping
func (s *Store) AppendNotification(ctx context.Context, user, message string) {
	s.notifMu.Lock()
	defer s.notifMu.Unlock()
	key := Normalize(user)
	s.notifs[key] = append(s.notifs[key], message)
	s.persist(ctx, NotificationsBlob, s.notifs, &s.notifSha)
}

// Notifications returns a copy of the identity's messages, oldest
// first, or the placeholder if there are none
func (s *Store) Notifications(user string) []string {
	s.notifMu.Lock()
	defer s.notifMu.Unlock()
	msgs, ok := s.notifs[Normalize(user)]
	if !ok || len(msgs) == 0 {
		return append([]string(nil), noNotifications...)
	}
	return append([]string(nil), msgs...)
}

// NotificationsSnapshot returns a copy of the notifications map
func (s *Store) NotificationsSnapshot() map[string][]string {
	s.notifMu.Lock()
	defer s.notifMu.Unlock()
	out := make(map[string][]string, len(s.notifs))
	for k, v := range s.notifs {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// --------------------- Transactions ---------------------

// RecordTransaction appends one transfer record and persists the whole
// mapping. The identifier is epoch seconds joined with the sender, so
// rapid repeated transfers from one sender within a second collide and
// the later record wins; left as-is to keep ids stable for clients.
func (s *Store) RecordTransaction(ctx context.Context, from, to string, amount float64) domain.Transaction {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	now := time.Now().Unix()
	tx := domain.Transaction{
		Timestamp: now,                                        // Epoch seconds
		ID:        strconv.FormatInt(now, 10) + "_" + from,    // Seconds + sender
		From:      from,                                       // Sender identity
		To:        to,                                         // Recipient identity
		Amount:    amount,                                     // Transferred amount
	}
	s.txs[tx.ID] = tx
	s.persist(ctx, TransactionsBlob, s.txs, &s.txSha)
	return tx
}

// Transactions returns every record ordered by creation time
func (s *Store) Transactions() []domain.Transaction {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	out := make([]domain.Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// TransactionsFor returns the records where the identity is sender or
// recipient, ordered by creation time
func (s *Store) TransactionsFor(user string) []domain.Transaction {
	key := Normalize(user)
	all := s.Transactions()
	out := make([]domain.Transaction, 0)
	for _, tx := range all {
		if Normalize(tx.From) == key || Normalize(tx.To) == key {
			out = append(out, tx)
		}
	}
	return out
}

// TransactionsSnapshot returns a copy of the transactions map
func (s *Store) TransactionsSnapshot() map[string]domain.Transaction {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	out := make(map[string]domain.Transaction, len(s.txs))
	for k, v := range s.txs {
		out[k] = v
	}
	return out
}

// --------------------- Preferences ---------------------

// SetPreferences overwrites the identity's preferences, no merging,
// and persists the whole mapping
func (s *Store) SetPreferences(ctx context.Context, user string, prefs domain.Preferences) {
	s.prefMu.Lock()
	defer s.prefMu.Unlock()
	s.prefs[Normalize(user)] = prefs
	s.persist(ctx, PreferencesBlob, s.prefs, &s.prefSha)
}

// Preferences returns the identity's preferences or the defaults
func (s *Store) Preferences(user string) domain.Preferences {
	s.prefMu.Lock()
	defer s.prefMu.Unlock()
	if p, ok := s.prefs[Normalize(user)]; ok {
		return p
	}
	return domain.DefaultPreferences()
}

// PreferencesSnapshot returns a copy of the preferences map
func (s *Store) PreferencesSnapshot() map[string]domain.Preferences {
	s.prefMu.Lock()
	defer s.prefMu.Unlock()
	out := make(map[string]domain.Preferences, len(s.prefs))
	for k, v := range s.prefs {
		out[k] = v
	}
	return out
}

// --------------------- Credentials ---------------------

// Credential returns the identity's shared secret and whether one
// exists
func (s *Store) Credential(user string) (string, bool) {
	s.credMu.Lock()
	defer s.credMu.Unlock()
	secret, ok := s.creds[Normalize(user)]
	return secret, ok
}

// CreateCredential stores a credential for a new identity and persists
// the whole mapping. Returns false, untouched, if the identity already
// has one; credentials are created once and never rotated here.
func (s *Store) CreateCredential(ctx context.Context, user, password string) bool {
	s.credMu.Lock()
	defer s.credMu.Unlock()
	key := Normalize(user)
	if _, ok := s.creds[key]; ok {
		return false
	}
	s.creds[key] = password
	s.persist(ctx, CredentialsBlob, s.creds, &s.credSha)
	return true
}

// CredentialsSnapshot returns a copy of the credentials map
func (s *Store) CredentialsSnapshot() map[string]string {
	s.credMu.Lock()
	defer s.credMu.Unlock()
	out := make(map[string]string, len(s.creds))
	for k, v := range s.creds {
		out[k] = v
	}
	return out
}
