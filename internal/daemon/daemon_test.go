package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/notecam/fieldsync/internal/model"
	"github.com/notecam/fieldsync/internal/queue"
	"github.com/notecam/fieldsync/internal/reconcile"
	"github.com/notecam/fieldsync/internal/remote"
	"github.com/notecam/fieldsync/internal/store"
)

// fakeRemote implements remote.Store; TestConnection is hookable, every
// other method succeeds doing nothing.
type fakeRemote struct {
	testConnection func() error
	fetchUsers     func() ([]model.User, error)
}

func (f *fakeRemote) TestConnection(context.Context) error {
	if f.testConnection != nil {
		return f.testConnection()
	}
	return nil
}

func (f *fakeRemote) FetchUsers(context.Context) ([]model.User, error) {
	if f.fetchUsers != nil {
		return f.fetchUsers()
	}
	return nil, nil
}
func (f *fakeRemote) CreateUser(context.Context, model.User) error                { return nil }
func (f *fakeRemote) UpdateUser(context.Context, string, remote.UserUpdate) error { return nil }
func (f *fakeRemote) DeleteUser(context.Context, string) error                    { return nil }
func (f *fakeRemote) FetchZones(context.Context) ([]model.Zone, error)            { return nil, nil }
func (f *fakeRemote) CreateZone(context.Context, model.Zone) error                { return nil }
func (f *fakeRemote) UpdateZone(context.Context, int64, remote.ZoneUpdate) error  { return nil }
func (f *fakeRemote) DeleteZone(context.Context, int64) error                     { return nil }
func (f *fakeRemote) FetchReports(context.Context, remote.ReportFilter) ([]model.Report, error) {
	return nil, nil
}
func (f *fakeRemote) CreateReport(context.Context, model.Report) error               { return nil }
func (f *fakeRemote) UpdateReport(context.Context, int64, remote.ReportUpdate) error { return nil }
func (f *fakeRemote) DeleteReport(context.Context, int64) error                      { return nil }
func (f *fakeRemote) UploadPhoto(context.Context, []byte, remote.PhotoMeta) (string, error) {
	return "", nil
}
func (f *fakeRemote) DeletePhoto(context.Context, string) error { return nil }

var _ remote.Store = (*fakeRemote)(nil)

func setupTestOrchestrator(t *testing.T, rem remote.Store) (*Orchestrator, *store.Store) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := log.New(io.Discard, "", 0)
	proc := queue.New(s, rem, queue.Config{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffCap:  time.Millisecond,
		Logger:      logger,
	})
	eng := reconcile.New(s, rem, proc, logger)

	o := New(s, rem, eng, proc, &Config{
		Interval: time.Hour,
		Logger:   logger,
	})
	o.notifiers = nil
	return o, s
}

func TestRunCycleSuccess(t *testing.T) {
	rem := &fakeRemote{
		fetchUsers: func() ([]model.User, error) {
			return []model.User{
				{Username: "jdoe", Password: "pw", Role: model.RoleEmployee},
				{Username: "admin", Password: "pw", Role: model.RoleAdmin},
			}, nil
		},
	}
	o, s := setupTestOrchestrator(t, rem)

	rec, ran := o.RunCycle(context.Background())
	if !ran {
		t.Fatal("cycle did not run")
	}
	if !rec.Success {
		t.Fatalf("cycle failed: %s", rec.Error)
	}
	// First cycle: 2 users pulled, then pushed back because there is no
	// last-sync cutoff yet.
	if rec.ItemsSynced != 4 {
		t.Errorf("expected 4 items synced, got %d", rec.ItemsSynced)
	}

	if s.LastSyncTime() == nil {
		t.Error("last sync time not recorded on success")
	}
	stats := s.Stats()
	if stats.TotalSyncs != 1 || stats.SuccessfulSyncs != 1 || stats.FailedSyncs != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if history := s.History(); len(history) != 1 || !history[0].Success {
		t.Errorf("unexpected history: %+v", history)
	}
}

func TestRunCycleOfflineShortCircuits(t *testing.T) {
	fetched := false
	rem := &fakeRemote{
		testConnection: func() error {
			return fmt.Errorf("down: %w", remote.ErrNetworkUnavailable)
		},
		fetchUsers: func() ([]model.User, error) {
			fetched = true
			return nil, nil
		},
	}
	o, s := setupTestOrchestrator(t, rem)

	rec, ran := o.RunCycle(context.Background())
	if !ran {
		t.Fatal("cycle did not run")
	}
	if rec.Success {
		t.Error("offline cycle reported success")
	}
	if fetched {
		t.Error("offline cycle still pulled collections")
	}
	if s.LastSyncTime() != nil {
		t.Error("offline cycle set last sync time")
	}
	stats := s.Stats()
	if stats.FailedSyncs != 1 || stats.LastError == "" {
		t.Errorf("offline cycle not recorded in stats: %+v", stats)
	}

	status := o.Status()
	if status.Connection != "offline" {
		t.Errorf("expected offline connection state, got %s", status.Connection)
	}
}

func TestRunCycleMutualExclusion(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	rem := &fakeRemote{
		testConnection: func() error {
			close(entered)
			<-release
			return nil
		},
	}
	o, _ := setupTestOrchestrator(t, rem)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.RunCycle(context.Background())
	}()

	<-entered
	// A second trigger while the first cycle holds the mutex is
	// dropped, not queued.
	if _, ran := o.RunCycle(context.Background()); ran {
		t.Error("second cycle ran while the first held the mutex")
	}
	if !o.Status().IsSyncing {
		t.Error("status does not report the running cycle")
	}

	close(release)
	wg.Wait()

	if o.Status().IsSyncing {
		t.Error("mutex not released after cycle")
	}
}

func TestQuotaExceededIsWarningNotFailure(t *testing.T) {
	logger := log.New(io.Discard, "", 0)

	var rec model.CycleRecord
	err := fmt.Errorf("users: %w", store.ErrQuotaExceeded)
	if got := quotaAsWarning(err, &rec, logger); got != nil {
		t.Errorf("quota failure not demoted: %v", got)
	}
	if rec.Error == "" {
		t.Error("quota warning not recorded on the cycle")
	}

	// Everything else passes through untouched.
	rec = model.CycleRecord{}
	other := fmt.Errorf("pull: %w", remote.ErrNetworkUnavailable)
	if got := quotaAsWarning(other, &rec, logger); got != other {
		t.Errorf("non-quota error was altered: %v", got)
	}
	if rec.Error != "" {
		t.Errorf("non-quota error recorded as warning: %q", rec.Error)
	}
	if got := quotaAsWarning(nil, &rec, logger); got != nil {
		t.Errorf("nil error was altered: %v", got)
	}
}

func TestStatusSnapshot(t *testing.T) {
	o, s := setupTestOrchestrator(t, &fakeRemote{})

	if _, err := s.Enqueue(context.Background(), model.ItemUser, []byte(`{}`)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	status := o.Status()
	if status.IsSyncing {
		t.Error("idle orchestrator reports syncing")
	}
	if status.QueueLength != 1 {
		t.Errorf("expected queue length 1, got %d", status.QueueLength)
	}
	if status.LastSyncTime != nil {
		t.Errorf("expected no last sync time, got %v", status.LastSyncTime)
	}
}
