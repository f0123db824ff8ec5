package remote

import (
	"time"

	"github.com/notecam/fieldsync/internal/model"
)

// Wire structs mirror the remote schema's snake_case column names. The
// translation between local and remote shapes is this explicit mapping
// table and nothing else; round-trip identity (local -> remote -> local)
// is covered by tests for every mapped field.
//
// Local-only fields, never sent to the remote:
//   - Zone.NeedsReview (manual-resolution flag)
//   - Report.RemoteSynced (create-vs-update discriminator)
//   - Photo.FilePath is sent as file_path so the bucket object can be
//     located, mirroring the photos_metadata table.

type userWire struct {
	Username      string    `json:"username"`
	Password      string    `json:"password"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	AssignedAreas []string  `json:"assigned_areas"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func userToWire(u model.User) userWire {
	return userWire{
		Username:      u.Username,
		Password:      u.Password,
		Name:          u.Name,
		Role:          string(u.Role),
		AssignedAreas: u.AssignedAreas,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func userFromWire(w userWire) model.User {
	return model.User{
		Username:      w.Username,
		Password:      w.Password,
		Name:          w.Name,
		Role:          model.Role(w.Role),
		AssignedAreas: w.AssignedAreas,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
}

type zoneWire struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Employee  string    `json:"employee"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func zoneToWire(z model.Zone) zoneWire {
	return zoneWire{
		ID:        z.ID,
		Code:      z.Code,
		Name:      z.Name,
		Employee:  z.Employee,
		IsActive:  z.IsActive,
		CreatedAt: z.CreatedAt,
		UpdatedAt: z.UpdatedAt,
	}
}

func zoneFromWire(w zoneWire) model.Zone {
	return model.Zone{
		ID:        w.ID,
		Code:      w.Code,
		Name:      w.Name,
		Employee:  w.Employee,
		IsActive:  w.IsActive,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

type locationWire struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Elevation float64   `json:"elevation,omitempty"`
	Precision float64   `json:"precision,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func locationToWire(l model.Location) locationWire {
	return locationWire(l)
}

func locationFromWire(w locationWire) model.Location {
	return model.Location(w)
}

type photoWire struct {
	ID        string       `json:"id"`
	ReportID  int64        `json:"report_id"`
	PhotoType string       `json:"photo_type"`
	Index     int          `json:"photo_index"`
	FilePath  string       `json:"file_path,omitempty"`
	PublicURL string       `json:"public_url,omitempty"`
	Location  locationWire `json:"location"`
	Timestamp time.Time    `json:"timestamp"`
	Status    string       `json:"upload_status"`
}

func photoToWire(p model.Photo) photoWire {
	return photoWire{
		ID:        p.ID,
		ReportID:  p.ReportID,
		PhotoType: p.Type,
		Index:     p.Index,
		FilePath:  p.FilePath,
		PublicURL: p.PublicURL,
		Location:  locationToWire(p.Location),
		Timestamp: p.Timestamp,
		Status:    p.Status,
	}
}

func photoFromWire(w photoWire) model.Photo {
	return model.Photo{
		ID:        w.ID,
		ReportID:  w.ReportID,
		Type:      w.PhotoType,
		Index:     w.Index,
		FilePath:  w.FilePath,
		PublicURL: w.PublicURL,
		Location:  locationFromWire(w.Location),
		Timestamp: w.Timestamp,
		Status:    w.Status,
	}
}

type reportWire struct {
	ID             int64        `json:"id"`
	Employee       string       `json:"employee"`
	EmployeeName   string       `json:"employee_name"`
	Area           string       `json:"area"`
	AreaCode       string       `json:"area_code"`
	NoteCode       string       `json:"note_code,omitempty"`
	NumberBefore   int          `json:"number_before"`
	NumberAfter    *int         `json:"number_after,omitempty"`
	Location       locationWire `json:"location"`
	BeforePhotos   []photoWire  `json:"before_photos,omitempty"`
	AfterPhotos    []photoWire  `json:"after_photos,omitempty"`
	Status         string       `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	CompletionDate *time.Time   `json:"completion_date,omitempty"`
}

func reportToWire(r model.Report) reportWire {
	return reportWire{
		ID:             r.ID,
		Employee:       r.Employee,
		EmployeeName:   r.EmployeeName,
		Area:           r.Area,
		AreaCode:       r.AreaCode,
		NoteCode:       r.NoteCode,
		NumberBefore:   r.NumberBefore,
		NumberAfter:    r.NumberAfter,
		Location:       locationToWire(r.Location),
		BeforePhotos:   photosToWire(r.BeforePhotos),
		AfterPhotos:    photosToWire(r.AfterPhotos),
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		CompletionDate: r.CompletionDate,
	}
}

func reportFromWire(w reportWire) model.Report {
	return model.Report{
		ID:             w.ID,
		Employee:       w.Employee,
		EmployeeName:   w.EmployeeName,
		Area:           w.Area,
		AreaCode:       w.AreaCode,
		NoteCode:       w.NoteCode,
		NumberBefore:   w.NumberBefore,
		NumberAfter:    w.NumberAfter,
		Location:       locationFromWire(w.Location),
		BeforePhotos:   photosFromWire(w.BeforePhotos),
		AfterPhotos:    photosFromWire(w.AfterPhotos),
		Status:         w.Status,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
		CompletionDate: w.CompletionDate,
	}
}

func photosToWire(photos []model.Photo) []photoWire {
	if photos == nil {
		return nil
	}
	wires := make([]photoWire, 0, len(photos))
	for _, p := range photos {
		wires = append(wires, photoToWire(p))
	}
	return wires
}

func photosFromWire(wires []photoWire) []model.Photo {
	if wires == nil {
		return nil
	}
	photos := make([]model.Photo, 0, len(wires))
	for _, w := range wires {
		photos = append(photos, photoFromWire(w))
	}
	return photos
}
