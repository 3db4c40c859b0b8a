package backup

import (
	"context" // Context for blob store writes
	"sync"    // Guards backup revisions
	"time"    // Snapshot timing

	"scratchgems/internal/ledger" // Ledger snapshots

	"github.com/robfig/cron/v3"  // Cron scheduler
	"github.com/sirupsen/logrus" // Logging library
)

// Runner periodically snapshots all five ledger mappings into
// backup-prefixed blobs, so a corrupted live blob can be restored from
// the last snapshot. Backups are whole-mapping copies, same as the
// live persistence.
type Runner struct {
	store *ledger.Store    // Ledger state to snapshot
	blobs ledger.BlobStore // Persistence backend
	cron  *cron.Cron       // Scheduler

	mu   sync.Mutex        // Guards shas
	shas map[string]string // Last known backup blob revisions
}

// New creates a backup runner
func New(store *ledger.Store, blobs ledger.BlobStore) *Runner {
	return &Runner{
		store: store,                   // Ledger state
		blobs: blobs,                   // Persistence backend
		cron:  cron.New(),              // Standard five-field schedule
		shas:  make(map[string]string), // Backup revisions
	}
}

// Start schedules snapshots on the given cron expression
func (r *Runner) Start(schedule string) error {
	_, err := r.cron.AddFunc(schedule, func() {
		r.Snapshot(context.Background())
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	logrus.WithField("schedule", schedule).Info("Backups scheduled")
	return nil
}

// Stop halts the scheduler; a snapshot already running finishes
func (r *Runner) Stop() {
	r.cron.Stop()
}

// Snapshot writes one backup of every mapping
func (r *Runner) Snapshot(ctx context.Context) {
	start := time.Now()
	r.save(ctx, ledger.BalancesBlob, r.store.BalancesSnapshot())
	r.save(ctx, ledger.NotificationsBlob, r.store.NotificationsSnapshot())
	r.save(ctx, ledger.TransactionsBlob, r.store.TransactionsSnapshot())
	r.save(ctx, ledger.PreferencesBlob, r.store.PreferencesSnapshot())
	r.save(ctx, ledger.CredentialsBlob, r.store.CredentialsSnapshot())
	logrus.WithField("took", time.Since(start).String()).Info("Backup snapshot written")
}

// save writes one mapping under its backup name, refreshing the
// revision and retrying once on a conflict
func (r *Runner) save(ctx context.Context, name string, data any) {
	backupName := "backup_" + name
	r.mu.Lock()
	sha := r.shas[backupName]
	r.mu.Unlock()
	newSha, err := r.blobs.Save(ctx, backupName, data, sha)
	if err != nil {
		// Stale revision: fetch the current one and write over it
		var discard map[string]any
		fresh := r.blobs.Load(ctx, backupName, &discard)
		newSha, err = r.blobs.Save(ctx, backupName, data, fresh)
		if err != nil {
			logrus.WithFields(logrus.Fields{"blob": backupName, "error": err.Error()}).Error("Backup write failed")
			return
		}
	}
	r.mu.Lock()
	r.shas[backupName] = newSha
	r.mu.Unlock()
}
