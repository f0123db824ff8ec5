package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/notecam/fieldsync/internal/model"
	"github.com/notecam/fieldsync/internal/remote"
)

// Local mutation entry points. Every operation persists locally first,
// then attempts the remote write; a retriable remote failure hands the
// item to the sync queue so the local change is never lost.

// ErrDuplicateZoneCode is returned when a zone code already exists
// locally. The check runs before any mutation or network use.
var ErrDuplicateZoneCode = errors.New("zone code already exists")

// ErrDuplicateUsername is returned when a username already exists
// locally.
var ErrDuplicateUsername = errors.New("username already exists")

// CreateUser registers a new user locally and pushes it to the remote.
func (e *Engine) CreateUser(ctx context.Context, u model.User) error {
	if u.Username == "" || u.Password == "" {
		return fmt.Errorf("username and password are required")
	}
	if !u.Role.Valid() {
		return fmt.Errorf("invalid role %q", u.Role)
	}

	users := e.store.Users()
	if _, exists := users[u.Username]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateUsername, u.Username)
	}

	now := e.now()
	u.CreatedAt = now
	u.UpdatedAt = now
	users[u.Username] = u
	if err := e.store.PutUsers(users); err != nil {
		return err
	}

	if err := e.remote.CreateUser(ctx, u); err != nil {
		return e.deferOnRetriable(ctx, model.ItemUser, u, err,
			fmt.Sprintf("user %s", u.Username))
	}
	return nil
}

// UpdateUser applies a mutation to an existing user and pushes the
// result. The mutate callback receives the stored copy.
func (e *Engine) UpdateUser(ctx context.Context, username string, mutate func(*model.User)) error {
	users := e.store.Users()
	u, exists := users[username]
	if !exists {
		return fmt.Errorf("user %s: %w", username, errNotFound)
	}

	mutate(&u)
	u.Username = username
	u.UpdatedAt = e.now()
	users[username] = u
	if err := e.store.PutUsers(users); err != nil {
		return err
	}

	if err := e.remote.CreateUser(ctx, u); err != nil {
		return e.deferOnRetriable(ctx, model.ItemUser, u, err,
			fmt.Sprintf("user %s", username))
	}
	return nil
}

// DeleteUser removes a user locally and remotely. Zones assigned to the
// deleted user are unassigned, not deleted.
func (e *Engine) DeleteUser(ctx context.Context, username string) error {
	users := e.store.Users()
	if _, exists := users[username]; !exists {
		return fmt.Errorf("user %s: %w", username, errNotFound)
	}
	delete(users, username)
	if err := e.store.PutUsers(users); err != nil {
		return err
	}

	zones := e.store.Areas()
	dirty := false
	for i := range zones {
		if zones[i].Employee == username {
			zones[i].Employee = ""
			zones[i].UpdatedAt = e.now()
			dirty = true
		}
	}
	if dirty {
		if err := e.store.PutAreas(zones); err != nil {
			return err
		}
	}

	if err := e.remote.DeleteUser(ctx, username); err != nil {
		// Deletes have no queue representation; the next full push
		// cannot resurrect the user because it is gone locally.
		e.logger.Printf("WARNING: remote delete of user %s failed: %v", username, err)
	}
	return nil
}

// CreateZone registers a new zone. Code uniqueness is enforced locally
// before anything is written or sent.
func (e *Engine) CreateZone(ctx context.Context, z model.Zone) (model.Zone, error) {
	z.Code = strings.TrimSpace(z.Code)
	if z.Code == "" || z.Name == "" {
		return model.Zone{}, fmt.Errorf("zone code and name are required")
	}

	zones := e.store.Areas()
	for _, existing := range zones {
		if strings.EqualFold(existing.Code, z.Code) {
			return model.Zone{}, fmt.Errorf("%w: %s", ErrDuplicateZoneCode, z.Code)
		}
	}

	now := e.now()
	if z.ID == 0 {
		z.ID = e.nextID()
	}
	z.CreatedAt = now
	z.UpdatedAt = now
	z.IsActive = true
	z.NeedsReview = false

	zones = append(zones, z)
	if err := e.store.PutAreas(zones); err != nil {
		return model.Zone{}, err
	}
	if err := e.reassignZone(z.Code, "", z.Employee); err != nil {
		return model.Zone{}, err
	}

	if err := e.remote.CreateZone(ctx, z); err != nil {
		if errors.Is(err, remote.ErrRemoteRejected) {
			// Another device won the race for this code. Keep the data,
			// flag it, let an admin decide.
			return z, e.flagZone(z.ID, err)
		}
		return z, e.deferOnRetriable(ctx, model.ItemArea, z, err,
			fmt.Sprintf("zone %s", z.Code))
	}
	return z, nil
}

// UpdateZone applies a mutation to an existing zone and pushes the
// result.
func (e *Engine) UpdateZone(ctx context.Context, id int64, mutate func(*model.Zone)) error {
	zones := e.store.Areas()
	idx := -1
	for i := range zones {
		if zones[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("zone %d: %w", id, errNotFound)
	}

	prevOwner := zones[idx].Employee
	mutate(&zones[idx])
	zones[idx].ID = id
	zones[idx].UpdatedAt = e.now()
	if err := e.store.PutAreas(zones); err != nil {
		return err
	}
	if err := e.reassignZone(zones[idx].Code, prevOwner, zones[idx].Employee); err != nil {
		return err
	}

	z := zones[idx]
	if err := e.remote.CreateZone(ctx, z); err != nil {
		if errors.Is(err, remote.ErrRemoteRejected) {
			return e.flagZone(id, err)
		}
		return e.deferOnRetriable(ctx, model.ItemArea, z, err,
			fmt.Sprintf("zone %s", z.Code))
	}
	return nil
}

// ResolveZone clears the manual-resolution flag after an admin has
// fixed the conflict, then re-pushes the zone.
func (e *Engine) ResolveZone(ctx context.Context, id int64) error {
	return e.UpdateZone(ctx, id, func(z *model.Zone) {
		z.NeedsReview = false
	})
}

// DeleteZone removes a zone locally and remotely.
func (e *Engine) DeleteZone(ctx context.Context, id int64) error {
	zones := e.store.Areas()
	idx := -1
	for i := range zones {
		if zones[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("zone %d: %w", id, errNotFound)
	}

	removed := zones[idx]
	zones = append(zones[:idx], zones[idx+1:]...)
	if err := e.store.PutAreas(zones); err != nil {
		return err
	}
	if err := e.reassignZone(removed.Code, removed.Employee, ""); err != nil {
		return err
	}

	if err := e.remote.DeleteZone(ctx, id); err != nil {
		e.logger.Printf("WARNING: remote delete of zone %d failed: %v", id, err)
	}
	return nil
}

// reassignZone reflects a change of zone ownership onto the users'
// assigned-zone lists: code leaves fromUser's list and joins toUser's.
// Unknown or empty usernames on either side are skipped. Touched users
// get a fresh UpdatedAt so the next push carries them.
func (e *Engine) reassignZone(code, fromUser, toUser string) error {
	if fromUser == toUser {
		return nil
	}
	users := e.store.Users()
	dirty := false

	if u, ok := users[fromUser]; ok {
		kept := make([]string, 0, len(u.AssignedAreas))
		for _, c := range u.AssignedAreas {
			if !strings.EqualFold(c, code) {
				kept = append(kept, c)
			}
		}
		if len(kept) != len(u.AssignedAreas) {
			u.AssignedAreas = kept
			u.UpdatedAt = e.now()
			users[fromUser] = u
			dirty = true
		}
	}

	if u, ok := users[toUser]; ok {
		present := false
		for _, c := range u.AssignedAreas {
			if strings.EqualFold(c, code) {
				present = true
				break
			}
		}
		if !present {
			u.AssignedAreas = append(u.AssignedAreas, code)
			u.UpdatedAt = e.now()
			users[toUser] = u
			dirty = true
		}
	}

	if !dirty {
		return nil
	}
	return e.store.PutUsers(users)
}

// flagZone marks a zone for manual resolution and returns the original
// rejection wrapped with the zone id.
func (e *Engine) flagZone(id int64, cause error) error {
	zones := e.store.Areas()
	for i := range zones {
		if zones[i].ID == id {
			zones[i].NeedsReview = true
			zones[i].UpdatedAt = e.now()
			if err := e.store.PutAreas(zones); err != nil {
				return err
			}
			break
		}
	}
	e.logger.Printf("Zone %d flagged for manual resolution: %v", id, cause)
	return fmt.Errorf("zone %d needs review: %w", id, cause)
}

// SubmitReport records phase one of a report: the before photos and
// count. The user's draft is cleared once the report is persisted.
func (e *Engine) SubmitReport(ctx context.Context, r model.Report) (model.Report, error) {
	now := e.now()
	if r.ID == 0 {
		r.ID = e.nextID()
	}
	r.Status = model.StatusBeforeOnly
	r.NumberAfter = nil
	r.CompletionDate = nil
	r.RemoteSynced = false
	r.CreatedAt = now
	r.UpdatedAt = now

	if err := r.Validate(); err != nil {
		return model.Report{}, err
	}

	reports := append(e.store.Reports(), r)
	if err := e.store.PutReports(reports); err != nil {
		return model.Report{}, err
	}
	if err := e.store.RemoveDraft(r.Employee); err != nil {
		e.logger.Printf("WARNING: failed to clear draft for %s: %v", r.Employee, err)
	}

	if err := e.remote.CreateReport(ctx, r); err != nil {
		return r, e.deferOnRetriable(ctx, model.ItemReport, r, err,
			fmt.Sprintf("report %d", r.ID))
	}
	r.RemoteSynced = true
	if err := e.markSynced(r.ID); err != nil {
		return r, err
	}
	return r, nil
}

// CompleteReport records phase two: the after photos, count and
// completion date. Completing an already complete report is an error.
func (e *Engine) CompleteReport(ctx context.Context, reportID int64, numberAfter int, afterPhotos []model.Photo) (model.Report, error) {
	reports := e.store.Reports()
	idx := -1
	for i := range reports {
		if reports[i].ID == reportID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return model.Report{}, fmt.Errorf("report %d: %w", reportID, errNotFound)
	}

	if err := reports[idx].Complete(numberAfter, afterPhotos, e.now()); err != nil {
		return model.Report{}, err
	}
	if err := e.store.PutReports(reports); err != nil {
		return model.Report{}, err
	}

	r := reports[idx]
	if err := e.applyReport(ctx, r); err != nil {
		return r, e.deferOnRetriable(ctx, model.ItemReport, r, err,
			fmt.Sprintf("report %d", r.ID))
	}
	if !r.RemoteSynced {
		r.RemoteSynced = true
		if err := e.markSynced(r.ID); err != nil {
			return r, err
		}
	}
	return r, nil
}

// UploadPhoto attempts an immediate upload and falls back to the queue
// when the remote is unreachable. The photo stays attached to its
// report either way, pending until the upload lands.
func (e *Engine) UploadPhoto(ctx context.Context, up model.PhotoUpload) error {
	publicURL, err := e.remote.UploadPhoto(ctx, up.Blob, remote.PhotoMeta{
		UserID:   up.UserID,
		ZoneCode: up.ZoneCode,
		ReportID: up.Photo.ReportID,
		Type:     up.Photo.Type,
		Index:    up.Photo.Index,
		Location: up.Photo.Location,
		Taken:    up.Photo.Timestamp,
	})
	if err != nil {
		return e.deferOnRetriable(ctx, model.ItemPhoto, up, err,
			fmt.Sprintf("photo %s", up.Photo.ID))
	}
	return e.markPhotoUploaded(up.Photo, publicURL)
}

// markSynced flips the remote-synced flag on a stored report.
func (e *Engine) markSynced(reportID int64) error {
	reports := e.store.Reports()
	for i := range reports {
		if reports[i].ID == reportID {
			if reports[i].RemoteSynced {
				return nil
			}
			reports[i].RemoteSynced = true
			return e.store.PutReports(reports)
		}
	}
	return nil
}

// markPhotoUploaded records the public URL on the stored photo.
func (e *Engine) markPhotoUploaded(photo model.Photo, publicURL string) error {
	reports := e.store.Reports()
	for i := range reports {
		if reports[i].ID != photo.ReportID {
			continue
		}
		phase := reports[i].BeforePhotos
		if photo.Type == model.PhotoAfter {
			phase = reports[i].AfterPhotos
		}
		for j := range phase {
			if phase[j].ID == photo.ID {
				phase[j].PublicURL = publicURL
				phase[j].Status = model.PhotoUploaded
				return e.store.PutReports(reports)
			}
		}
	}
	return nil
}

// deferOnRetriable queues the item when the failure is retriable and
// returns nil, or returns the original error when it is not.
func (e *Engine) deferOnRetriable(ctx context.Context, itemType string, payload interface{}, cause error, what string) error {
	if !remote.Retriable(cause) {
		return cause
	}
	if err := e.queue.Enqueue(ctx, itemType, payload); err != nil {
		return fmt.Errorf("failed to queue %s after %v: %w", what, cause, err)
	}
	e.logger.Printf("Deferred %s to queue: %v", what, cause)
	return nil
}
