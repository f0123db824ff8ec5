// Package reconcile provides the two-directional merge between the local
// store and the remote store adapter.
//
// Pull fetches each remote collection and merges it into the local store
// with last-write-wins by timestamp: a remote entity absent locally is
// inserted, and a present one overwrites the local copy only when the
// remote timestamp is newer. Each collection commits atomically, so a
// failure in one entity category never corrupts another.
//
// Push finds local entities modified since the last successful cycle and
// applies them remotely one by one. Per-item failures are isolated: a
// retriable failure hands the item to the sync queue, a semantic
// rejection flags the entity for manual resolution, and neither aborts
// the remaining items.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/notecam/fieldsync/internal/model"
	"github.com/notecam/fieldsync/internal/queue"
	"github.com/notecam/fieldsync/internal/remote"
	"github.com/notecam/fieldsync/internal/store"
)

// Engine reconciles local and remote state.
type Engine struct {
	store  *store.Store
	remote remote.Store
	queue  *queue.Processor
	logger *log.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// New creates an Engine. If logger is nil, a default stderr logger is
// used.
func New(st *store.Store, rs remote.Store, qp *queue.Processor, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[reconcile] ", log.LstdFlags)
	}
	return &Engine{
		store:  st,
		remote: rs,
		queue:  qp,
		logger: logger,
		now:    time.Now,
	}
}

// PullResult counts the entities merged per collection in one pull.
type PullResult struct {
	Users   int
	Areas   int
	Reports int
}

// Total returns the summed merge count.
func (r PullResult) Total() int {
	return r.Users + r.Areas + r.Reports
}

// Pull fetches every remote collection and merges it into the local
// store. Collection failures are isolated from each other, except that
// an unreachable or unauthenticated remote aborts the rest of the pull.
func (e *Engine) Pull(ctx context.Context) (PullResult, error) {
	var result PullResult
	var firstErr error

	record := func(collection string, err error) bool {
		e.logger.Printf("WARNING: pull %s failed: %v", collection, err)
		if firstErr == nil {
			firstErr = err
		}
		// No point continuing when the remote is gone or auth is dead.
		return errors.Is(err, remote.ErrNetworkUnavailable) || errors.Is(err, remote.ErrAuthExpired)
	}

	users, err := e.remote.FetchUsers(ctx)
	if err != nil {
		if record("users", err) {
			return result, firstErr
		}
	} else {
		n, err := e.mergeUsers(users)
		if err != nil {
			record("users", err)
		} else {
			result.Users = n
		}
	}

	zones, err := e.remote.FetchZones(ctx)
	if err != nil {
		if record("areas", err) {
			return result, firstErr
		}
	} else {
		n, err := e.mergeZones(zones)
		if err != nil {
			record("areas", err)
		} else {
			result.Areas = n
		}
	}

	reports, err := e.remote.FetchReports(ctx, remote.ReportFilter{Limit: 1000})
	if err != nil {
		if record("reports", err) {
			return result, firstErr
		}
	} else {
		n, err := e.mergeReports(reports)
		if err != nil {
			record("reports", err)
		} else {
			result.Reports = n
		}
	}

	e.logger.Printf("Pull complete: users=%d areas=%d reports=%d",
		result.Users, result.Areas, result.Reports)
	return result, firstErr
}

// mergeUsers merges remote users into the local mapping and commits it
// in one write.
func (e *Engine) mergeUsers(remoteUsers []model.User) (int, error) {
	local := e.store.Users()
	merged := 0

	for _, ru := range remoteUsers {
		lu, exists := local[ru.Username]
		if exists && !newer(ru.UpdatedAt, ru.CreatedAt, lu.UpdatedAt, lu.CreatedAt) {
			continue
		}
		local[ru.Username] = ru
		merged++
	}

	if merged == 0 {
		return 0, nil
	}
	if err := e.store.PutUsers(local); err != nil {
		return 0, err
	}
	return merged, nil
}

// mergeZones merges remote zones into the local sequence by id.
func (e *Engine) mergeZones(remoteZones []model.Zone) (int, error) {
	local := e.store.Areas()
	merged := 0

	for _, rz := range remoteZones {
		idx := -1
		for i := range local {
			if local[i].ID == rz.ID {
				idx = i
				break
			}
		}
		if idx == -1 {
			local = append(local, rz)
			merged++
			continue
		}
		if !newer(rz.UpdatedAt, rz.CreatedAt, local[idx].UpdatedAt, local[idx].CreatedAt) {
			continue
		}
		// The manual-resolution flag is local state; a remote overwrite
		// clears it only because the remote row is now authoritative.
		local[idx] = rz
		merged++
	}

	if merged == 0 {
		return 0, nil
	}
	if err := e.store.PutAreas(local); err != nil {
		return 0, err
	}
	return merged, nil
}

// mergeReports merges remote reports into the local sequence by id.
// Reports arriving from the remote are by definition synced.
func (e *Engine) mergeReports(remoteReports []model.Report) (int, error) {
	local := e.store.Reports()
	merged := 0

	for _, rr := range remoteReports {
		rr.RemoteSynced = true

		idx := -1
		for i := range local {
			if local[i].ID == rr.ID {
				idx = i
				break
			}
		}
		if idx == -1 {
			local = append(local, rr)
			merged++
			continue
		}
		if !newer(rr.UpdatedAt, rr.CreatedAt, local[idx].UpdatedAt, local[idx].CreatedAt) {
			// Remote row exists even when the local copy wins the merge.
			if !local[idx].RemoteSynced {
				local[idx].RemoteSynced = true
				merged++
			}
			continue
		}
		local[idx] = rr
		merged++
	}

	if merged == 0 {
		return 0, nil
	}
	if err := e.store.PutReports(local); err != nil {
		return 0, err
	}
	return merged, nil
}

// newer reports whether the remote timestamps beat the local ones under
// last-write-wins. UpdatedAt is preferred; CreatedAt is the fallback for
// rows that never recorded an update.
func newer(remoteUpdated, remoteCreated, localUpdated, localCreated time.Time) bool {
	rt := remoteUpdated
	if rt.IsZero() {
		rt = remoteCreated
	}
	lt := localUpdated
	if lt.IsZero() {
		lt = localCreated
	}
	return rt.After(lt)
}

// PushResult summarizes one push.
type PushResult struct {
	Pushed int
	// Flagged lists zone codes rejected by the remote and marked for
	// manual resolution.
	Flagged []string
}

// Push applies local entities modified since the given time to the
// remote. A nil since means everything is a candidate. Per-item failures
// are isolated; only auth expiry aborts the remaining items.
func (e *Engine) Push(ctx context.Context, since *time.Time) (PushResult, error) {
	var result PushResult

	if err := e.pushUsers(ctx, since, &result); err != nil {
		return result, err
	}
	if err := e.pushZones(ctx, since, &result); err != nil {
		return result, err
	}
	if err := e.pushReports(ctx, since, &result); err != nil {
		return result, err
	}

	e.logger.Printf("Push complete: pushed=%d flagged=%d", result.Pushed, len(result.Flagged))
	return result, nil
}

func modifiedSince(updated, created time.Time, since *time.Time) bool {
	if since == nil {
		return true
	}
	t := updated
	if t.IsZero() {
		t = created
	}
	return t.After(*since)
}

func (e *Engine) pushUsers(ctx context.Context, since *time.Time, result *PushResult) error {
	for _, u := range e.store.Users() {
		if !modifiedSince(u.UpdatedAt, u.CreatedAt, since) {
			continue
		}
		err := e.remote.CreateUser(ctx, u)
		switch {
		case err == nil:
			result.Pushed++
		case errors.Is(err, remote.ErrAuthExpired):
			return err
		case remote.Retriable(err):
			if qErr := e.queue.Enqueue(ctx, model.ItemUser, u); qErr != nil {
				e.logger.Printf("WARNING: failed to queue user %s: %v", u.Username, qErr)
			}
		default:
			e.logger.Printf("WARNING: push user %s rejected: %v", u.Username, err)
		}
	}
	return nil
}

func (e *Engine) pushZones(ctx context.Context, since *time.Time, result *PushResult) error {
	zones := e.store.Areas()
	dirty := false

	for i := range zones {
		z := zones[i]
		if z.NeedsReview || !modifiedSince(z.UpdatedAt, z.CreatedAt, since) {
			continue
		}
		err := e.remote.CreateZone(ctx, z)
		switch {
		case err == nil:
			result.Pushed++
		case errors.Is(err, remote.ErrAuthExpired):
			if dirty {
				if sErr := e.store.PutAreas(zones); sErr != nil {
					e.logger.Printf("WARNING: failed to persist flagged zones: %v", sErr)
				}
			}
			return err
		case errors.Is(err, remote.ErrRemoteRejected):
			// Most likely a code collision created on another device.
			// Flag for manual resolution; never drop, never duplicate.
			zones[i].NeedsReview = true
			zones[i].UpdatedAt = e.now()
			dirty = true
			result.Flagged = append(result.Flagged, z.Code)
			e.logger.Printf("Zone %s rejected by remote, flagged for review: %v", z.Code, err)
		case remote.Retriable(err):
			if qErr := e.queue.Enqueue(ctx, model.ItemArea, z); qErr != nil {
				e.logger.Printf("WARNING: failed to queue zone %s: %v", z.Code, qErr)
			}
		}
	}

	if dirty {
		if err := e.store.PutAreas(zones); err != nil {
			e.logger.Printf("WARNING: failed to persist flagged zones: %v", err)
		}
	}
	return nil
}

func (e *Engine) pushReports(ctx context.Context, since *time.Time, result *PushResult) error {
	reports := e.store.Reports()
	dirty := false

	for i := range reports {
		r := reports[i]
		if !modifiedSince(r.UpdatedAt, r.CreatedAt, since) {
			continue
		}

		err := e.applyReport(ctx, r)
		switch {
		case err == nil:
			if !reports[i].RemoteSynced {
				reports[i].RemoteSynced = true
				dirty = true
			}
			result.Pushed++
		case errors.Is(err, remote.ErrAuthExpired):
			if dirty {
				if sErr := e.store.PutReports(reports); sErr != nil {
					e.logger.Printf("WARNING: failed to persist report flags: %v", sErr)
				}
			}
			return err
		case remote.Retriable(err):
			if qErr := e.queue.Enqueue(ctx, model.ItemReport, r); qErr != nil {
				e.logger.Printf("WARNING: failed to queue report %d: %v", r.ID, qErr)
			}
		default:
			e.logger.Printf("WARNING: push report %d rejected: %v", r.ID, err)
		}
	}

	if dirty {
		if err := e.store.PutReports(reports); err != nil {
			e.logger.Printf("WARNING: failed to persist report flags: %v", err)
		}
	}
	return nil
}

// applyReport sends one report remotely, preserving the two-phase
// protocol: a report the remote already holds is patched by id, never
// re-created.
func (e *Engine) applyReport(ctx context.Context, r model.Report) error {
	if r.RemoteSynced {
		if r.Status != model.StatusComplete {
			// Nothing to update on a before_only report the remote
			// already has.
			return nil
		}
		status := r.Status
		return e.remote.UpdateReport(ctx, r.ID, remote.ReportUpdate{
			NumberAfter:    r.NumberAfter,
			Status:         &status,
			CompletionDate: r.CompletionDate,
			AfterPhotos:    r.AfterPhotos,
		})
	}
	return e.remote.CreateReport(ctx, r)
}

// nextID generates a locally unique id from unix milliseconds, used when
// an entity is created offline before the remote can assign one.
func (e *Engine) nextID() int64 {
	return e.now().UnixMilli()
}

var errNotFound = fmt.Errorf("not found")
