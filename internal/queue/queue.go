// Package queue provides at-least-once delivery of mutations that could
// not be applied to the remote immediately.
//
// Items are persisted to the local store's sync_queue table before any
// network attempt, so an enqueue followed by a crash loses nothing. A
// drain works on a single snapshot of due items: enqueues that happen
// while a drain runs are picked up by the next invocation, which keeps a
// single pass bounded.
//
// Per-item state machine:
//
//	pending -> processing -> (success: removed)
//	                       | (retriable failure: pending, attempts+1, backoff)
//	                       | (attempts >= max or rejected: failed-permanent)
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/notecam/fieldsync/internal/model"
	"github.com/notecam/fieldsync/internal/remote"
	"github.com/notecam/fieldsync/internal/store"
)

// Config tunes retry behavior.
type Config struct {
	// MaxAttempts before an item is evicted as failed-permanent.
	MaxAttempts int

	// BackoffBase is the first retry delay; each retry doubles it.
	BackoffBase time.Duration

	// BackoffCap bounds the doubled delay.
	BackoffCap time.Duration

	// Logger for drain activity.
	Logger *log.Logger
}

// DefaultConfig returns the retry defaults: 5 attempts, 5s base delay
// doubling up to 5 minutes.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		BackoffBase: 5 * time.Second,
		BackoffCap:  5 * time.Minute,
		Logger:      log.New(os.Stderr, "[queue] ", log.LstdFlags),
	}
}

// Processor drains the durable queue against the remote store.
type Processor struct {
	store  *store.Store
	remote remote.Store
	config Config

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Processor. Zero-valued config fields fall back to
// DefaultConfig values.
func New(st *store.Store, rs remote.Store, config Config) *Processor {
	def := DefaultConfig()
	if config.MaxAttempts == 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.BackoffBase == 0 {
		config.BackoffBase = def.BackoffBase
	}
	if config.BackoffCap == 0 {
		config.BackoffCap = def.BackoffCap
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	return &Processor{
		store:  st,
		remote: rs,
		config: config,
		now:    time.Now,
	}
}

// Enqueue persists a mutation for later delivery. The payload must be one
// of model.User, model.Zone, model.Report or model.PhotoUpload, matching
// the item type.
func (p *Processor) Enqueue(ctx context.Context, itemType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", itemType, err)
	}
	id, err := p.store.Enqueue(ctx, itemType, data)
	if err != nil {
		return err
	}
	p.config.Logger.Printf("Enqueued %s item %d", itemType, id)
	return nil
}

// DrainReport summarizes one drain invocation. Evicted items reached the
// attempt ceiling or were semantically rejected; they must be surfaced to
// the user, not silently discarded.
type DrainReport struct {
	Delivered int
	Retried   int
	Evicted   []model.QueueItem
}

// Drain processes the current snapshot of due items once. Individual item
// failures never abort the remaining items; only a store-level failure
// returns an error.
func (p *Processor) Drain(ctx context.Context) (DrainReport, error) {
	var report DrainReport

	// Items claimed by a drain that never recorded an outcome would
	// otherwise stay in processing forever.
	if n, err := p.store.ResetProcessing(ctx); err != nil {
		return report, err
	} else if n > 0 {
		p.config.Logger.Printf("Recovered %d items left in processing", n)
	}

	items, err := p.store.PendingItems(ctx, p.now())
	if err != nil {
		return report, err
	}
	if len(items) == 0 {
		return report, nil
	}

	p.config.Logger.Printf("Draining %d queued items", len(items))

	for _, item := range items {
		if err := p.store.MarkProcessing(ctx, item.ID); err != nil {
			p.config.Logger.Printf("WARNING: failed to mark item %d processing: %v", item.ID, err)
			continue
		}

		err := p.deliver(ctx, item)
		switch {
		case err == nil:
			if err := p.store.DeleteItem(ctx, item.ID); err != nil {
				p.config.Logger.Printf("WARNING: failed to remove delivered item %d: %v", item.ID, err)
				continue
			}
			report.Delivered++

		case errors.Is(err, remote.ErrRemoteRejected):
			// Retrying a semantically rejected write is never correct.
			p.evict(ctx, &report, item, err)

		case remote.Retriable(err):
			attempts := item.Attempts + 1
			if attempts >= p.config.MaxAttempts {
				p.evict(ctx, &report, item, err)
				continue
			}
			next := p.now().Add(p.backoff(attempts))
			if err2 := p.store.MarkRetry(ctx, item.ID, attempts, next, err.Error()); err2 != nil {
				p.config.Logger.Printf("WARNING: failed to reschedule item %d: %v", item.ID, err2)
				continue
			}
			p.config.Logger.Printf("Item %d failed (attempt %d/%d), retry at %s: %v",
				item.ID, attempts, p.config.MaxAttempts, next.Format(time.RFC3339), err)
			report.Retried++

		default:
			// Unclassified failures are treated as permanent rather than
			// retried blindly.
			p.evict(ctx, &report, item, err)
		}
	}

	p.config.Logger.Printf("Drain complete: delivered=%d retried=%d evicted=%d",
		report.Delivered, report.Retried, len(report.Evicted))
	return report, nil
}

// evict marks an item failed-permanent and records it in the report.
func (p *Processor) evict(ctx context.Context, report *DrainReport, item model.QueueItem, cause error) {
	if err := p.store.MarkFailedPermanent(ctx, item.ID, cause.Error()); err != nil {
		p.config.Logger.Printf("WARNING: failed to evict item %d: %v", item.ID, err)
		return
	}
	item.Status = model.QueueFailedPermanent
	item.LastError = cause.Error()
	report.Evicted = append(report.Evicted, item)
	p.config.Logger.Printf("Item %d (%s) evicted after %d attempts: %v",
		item.ID, item.Type, item.Attempts, cause)
}

// deliver applies a single queued mutation to the remote.
func (p *Processor) deliver(ctx context.Context, item model.QueueItem) error {
	switch item.Type {
	case model.ItemUser:
		var u model.User
		if err := json.Unmarshal(item.Payload, &u); err != nil {
			return fmt.Errorf("corrupt user payload: %w: %v", remote.ErrRemoteRejected, err)
		}
		return p.remote.CreateUser(ctx, u)

	case model.ItemArea:
		var z model.Zone
		if err := json.Unmarshal(item.Payload, &z); err != nil {
			return fmt.Errorf("corrupt area payload: %w: %v", remote.ErrRemoteRejected, err)
		}
		return p.remote.CreateZone(ctx, z)

	case model.ItemReport:
		var r model.Report
		if err := json.Unmarshal(item.Payload, &r); err != nil {
			return fmt.Errorf("corrupt report payload: %w: %v", remote.ErrRemoteRejected, err)
		}
		return p.deliverReport(ctx, r)

	case model.ItemPhoto:
		var up model.PhotoUpload
		if err := json.Unmarshal(item.Payload, &up); err != nil {
			return fmt.Errorf("corrupt photo payload: %w: %v", remote.ErrRemoteRejected, err)
		}
		return p.deliverPhoto(ctx, up)

	default:
		return fmt.Errorf("unsupported item type %q: %w", item.Type, remote.ErrRemoteRejected)
	}
}

// deliverReport creates or updates the remote row. A report already known
// to the remote (phase-2 completion queued offline) must be an update on
// the same id, never a second create.
func (p *Processor) deliverReport(ctx context.Context, r model.Report) error {
	if r.RemoteSynced && r.Status == model.StatusComplete {
		status := r.Status
		return p.remote.UpdateReport(ctx, r.ID, remote.ReportUpdate{
			NumberAfter:    r.NumberAfter,
			Status:         &status,
			CompletionDate: r.CompletionDate,
			AfterPhotos:    r.AfterPhotos,
		})
	}
	if err := p.remote.CreateReport(ctx, r); err != nil {
		return err
	}
	p.markReportSynced(r.ID)
	return nil
}

// deliverPhoto uploads the blob and flips the photo's local status to
// uploaded with its public URL.
func (p *Processor) deliverPhoto(ctx context.Context, up model.PhotoUpload) error {
	publicURL, err := p.remote.UploadPhoto(ctx, up.Blob, remote.PhotoMeta{
		UserID:   up.UserID,
		ZoneCode: up.ZoneCode,
		ReportID: up.Photo.ReportID,
		Type:     up.Photo.Type,
		Index:    up.Photo.Index,
		Location: up.Photo.Location,
		Taken:    up.Photo.Timestamp,
	})
	if err != nil {
		return err
	}
	p.markPhotoUploaded(up.Photo, publicURL)
	return nil
}

// markReportSynced flips the local RemoteSynced flag after a successful
// create so later mutations become updates.
func (p *Processor) markReportSynced(reportID int64) {
	reports := p.store.Reports()
	for i := range reports {
		if reports[i].ID == reportID {
			reports[i].RemoteSynced = true
			if err := p.store.PutReports(reports); err != nil {
				p.config.Logger.Printf("WARNING: failed to flag report %d synced: %v", reportID, err)
			}
			return
		}
	}
}

// markPhotoUploaded records the uploaded status and public URL on the
// owning report's photo entry.
func (p *Processor) markPhotoUploaded(photo model.Photo, publicURL string) {
	reports := p.store.Reports()
	for i := range reports {
		if reports[i].ID != photo.ReportID {
			continue
		}
		updatePhotoSlot(reports[i].BeforePhotos, photo, publicURL)
		updatePhotoSlot(reports[i].AfterPhotos, photo, publicURL)
		if err := p.store.PutReports(reports); err != nil {
			p.config.Logger.Printf("WARNING: failed to record uploaded photo %s: %v", photo.ID, err)
		}
		return
	}
}

func updatePhotoSlot(photos []model.Photo, uploaded model.Photo, publicURL string) {
	for i := range photos {
		if photos[i].ID == uploaded.ID {
			photos[i].Status = model.PhotoUploaded
			photos[i].PublicURL = publicURL
		}
	}
}

// backoff returns the capped exponential delay for the given attempt
// count: base * 2^(attempts-1), capped.
func (p *Processor) backoff(attempts int) time.Duration {
	d := p.config.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= p.config.BackoffCap {
			return p.config.BackoffCap
		}
	}
	if d > p.config.BackoffCap {
		return p.config.BackoffCap
	}
	return d
}
