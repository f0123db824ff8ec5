// Package daemon provides the sync orchestrator that drives full sync
// cycles against the remote.
//
// The orchestrator:
// 1. Runs pull, push and queue drain in strict order per cycle
// 2. Guards cycles with an atomic mutex so only one runs at a time
// 3. Records cycle history and cumulative stats after every cycle
// 4. Reacts to a periodic ticker, connectivity-restored and focus
//    events, and explicit force-sync requests
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/notecam/fieldsync/internal/model"
	"github.com/notecam/fieldsync/internal/queue"
	"github.com/notecam/fieldsync/internal/reconcile"
	"github.com/notecam/fieldsync/internal/remote"
	"github.com/notecam/fieldsync/internal/store"
)

// Notifier receives user-visible sync events. Implementations must not
// block; they are called after the sync mutex has been released.
type Notifier interface {
	// CycleFinished is called after every cycle with its outcome and
	// the current status snapshot.
	CycleFinished(rec model.CycleRecord, status model.SyncStatus)

	// ZoneFlagged is called when a zone has been marked for manual
	// resolution during a cycle.
	ZoneFlagged(code string)
}

// LogNotifier writes sync events to a logger. It is the default when no
// other notifier is configured.
type LogNotifier struct {
	Logger *log.Logger
}

func (n LogNotifier) CycleFinished(rec model.CycleRecord, _ model.SyncStatus) {
	if rec.Success {
		n.Logger.Printf("Sync complete: %d items in %s", rec.ItemsSynced, rec.Duration)
		return
	}
	n.Logger.Printf("Sync failed: %s", rec.Error)
}

func (n LogNotifier) ZoneFlagged(code string) {
	n.Logger.Printf("Zone %s needs manual review", code)
}

// Config holds configuration for the orchestrator.
type Config struct {
	// Interval is how often the periodic ticker triggers a cycle.
	Interval time.Duration

	// Logger for orchestrator activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: 30 * time.Second,
		Logger:   log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// Orchestrator drives sync cycles and owns the sync mutex.
type Orchestrator struct {
	store     *store.Store
	remote    remote.Store
	engine    *reconcile.Engine
	processor *queue.Processor
	config    *Config

	notifiers []Notifier

	// syncing is the cycle mutex. A second trigger while a cycle runs
	// is dropped, not queued.
	syncing atomic.Bool

	// connected mirrors the last TestConnection result.
	connected atomic.Bool

	// mu guards the in-memory status fields below.
	mu           sync.Mutex
	lastSyncTime *time.Time
	lastRecord   *model.CycleRecord

	trigger chan string
}

// New creates an Orchestrator. If config is nil, DefaultConfig is used.
func New(st *store.Store, rs remote.Store, eng *reconcile.Engine, proc *queue.Processor, config *Config) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	o := &Orchestrator{
		store:     st,
		remote:    rs,
		engine:    eng,
		processor: proc,
		config:    config,
		trigger:   make(chan string, 8),
	}
	o.lastSyncTime = st.LastSyncTime()
	o.notifiers = []Notifier{LogNotifier{Logger: config.Logger}}
	return o
}

// AddNotifier registers an additional notifier. Not safe to call after
// Start.
func (o *Orchestrator) AddNotifier(n Notifier) {
	o.notifiers = append(o.notifiers, n)
}

// Start runs the trigger loop: one immediate cycle, then one per ticker
// interval or external trigger. Blocks until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.config.Logger.Printf("Starting sync loop (interval %s)", o.config.Interval)

	o.RunCycle(ctx)

	ticker := time.NewTicker(o.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.config.Logger.Println("Sync loop stopped")
			return nil
		case <-ticker.C:
			o.RunCycle(ctx)
		case reason := <-o.trigger:
			o.config.Logger.Printf("Sync triggered: %s", reason)
			o.RunCycle(ctx)
		}
	}
}

// Online signals that connectivity was restored. Triggers a cycle when
// the loop is running.
func (o *Orchestrator) Online() { o.poke("connectivity restored") }

// Focus signals that the application regained focus.
func (o *Orchestrator) Focus() { o.poke("focus") }

// ForceSync requests an immediate cycle.
func (o *Orchestrator) ForceSync() { o.poke("forced") }

func (o *Orchestrator) poke(reason string) {
	select {
	case o.trigger <- reason:
	default:
		// A trigger is already pending; one cycle covers both.
	}
}

// RunCycle executes one full sync cycle: connectivity check, pull, push,
// queue drain. Returns the cycle record, or false when another cycle is
// already running.
func (o *Orchestrator) RunCycle(ctx context.Context) (model.CycleRecord, bool) {
	if !o.syncing.CompareAndSwap(false, true) {
		o.config.Logger.Println("Sync already in progress, skipping")
		return model.CycleRecord{}, false
	}

	started := time.Now()
	rec := model.CycleRecord{Timestamp: started}
	var flagged []string

	func() {
		defer o.syncing.Store(false)

		if err := o.remote.TestConnection(ctx); err != nil {
			o.connected.Store(false)
			rec.Error = fmt.Sprintf("offline: %v", err)
			rec.Duration = time.Since(started)
			o.recordCycle(rec)
			return
		}
		o.connected.Store(true)

		since := o.store.LastSyncTime()

		pulled, pullErr := o.engine.Pull(ctx)
		rec.ItemsSynced += pulled.Total()

		pushed, pushErr := o.engine.Push(ctx, since)
		rec.ItemsSynced += pushed.Pushed
		flagged = pushed.Flagged

		drained, drainErr := o.processor.Drain(ctx)
		rec.ItemsSynced += drained.Delivered
		rec.RetryCount = drained.Retried

		// A full local disk degrades the subsystem to in-memory
		// operation; the cycle itself still succeeded.
		pullErr = quotaAsWarning(pullErr, &rec, o.config.Logger)
		pushErr = quotaAsWarning(pushErr, &rec, o.config.Logger)
		drainErr = quotaAsWarning(drainErr, &rec, o.config.Logger)

		switch {
		case pullErr != nil:
			rec.Error = fmt.Sprintf("pull: %v", pullErr)
		case pushErr != nil:
			rec.Error = fmt.Sprintf("push: %v", pushErr)
		case drainErr != nil:
			rec.Error = fmt.Sprintf("queue: %v", drainErr)
		default:
			rec.Success = true
		}
		rec.Duration = time.Since(started)

		o.recordCycle(rec)
	}()

	// Notifications happen after the mutex is released so a slow
	// notifier cannot stall the next cycle.
	status := o.Status()
	for _, n := range o.notifiers {
		n.CycleFinished(rec, status)
		for _, code := range flagged {
			n.ZoneFlagged(code)
		}
	}
	return rec, true
}

// quotaAsWarning strips a storage-quota failure out of err, keeping it on
// the record as a warning instead. Everything else passes through.
func quotaAsWarning(err error, rec *model.CycleRecord, logger *log.Logger) error {
	if err == nil || !errors.Is(err, store.ErrQuotaExceeded) {
		return err
	}
	rec.Error = fmt.Sprintf("warning: %v", err)
	logger.Printf("WARNING: %v", err)
	return nil
}

// recordCycle persists the cycle outcome, the cumulative stats and, on
// success, the last sync time.
func (o *Orchestrator) recordCycle(rec model.CycleRecord) {
	if err := o.store.AppendHistory(rec); err != nil {
		o.config.Logger.Printf("WARNING: failed to record history: %v", err)
	}

	stats := o.store.Stats()
	stats.TotalSyncs++
	if rec.Success {
		stats.SuccessfulSyncs++
		stats.LastError = ""
		stats.TotalDataSynced += rec.ItemsSynced
	} else {
		stats.FailedSyncs++
		stats.LastError = rec.Error
	}
	if err := o.store.PutStats(stats); err != nil {
		o.config.Logger.Printf("WARNING: failed to record stats: %v", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastRecord = &rec
	if rec.Success {
		t := rec.Timestamp
		o.lastSyncTime = &t
		if err := o.store.SetLastSyncTime(t); err != nil {
			o.config.Logger.Printf("WARNING: failed to record last sync time: %v", err)
		}
	}
}

// Status returns a read-only snapshot of the sync state.
func (o *Orchestrator) Status() model.SyncStatus {
	o.mu.Lock()
	last := o.lastSyncTime
	rec := o.lastRecord
	o.mu.Unlock()

	qLen, err := o.store.QueueLength(context.Background())
	if err != nil {
		o.config.Logger.Printf("WARNING: failed to read queue length: %v", err)
	}

	conn := "offline"
	if o.connected.Load() {
		conn = "online"
	}
	status := model.SyncStatus{
		IsSyncing:    o.syncing.Load(),
		LastSyncTime: last,
		QueueLength:  qLen,
		Stats:        o.store.Stats(),
		Connection:   conn,
	}
	if rec != nil {
		status.RetryCount = rec.RetryCount
	}
	return status
}
