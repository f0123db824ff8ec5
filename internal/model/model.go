// Package model provides the entity types shared by the local store,
// the remote adapter and the reconciliation engine.
//
// Entities carry flat fields with last-write-wins semantics: timestamps
// (CreatedAt/UpdatedAt) are the only conflict-resolution input, so every
// mutation must bump UpdatedAt. JSON tags use the local camelCase naming;
// the remote snake_case naming lives in the remote package's wire structs.
package model

import (
	"fmt"
	"time"
)

// Role is the access level of a user account.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleEmployee   Role = "employee"
	RoleSupervisor Role = "supervisor"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEmployee, RoleSupervisor:
		return true
	}
	return false
}

// User is an account keyed by username. Users are stored locally as a
// mapping username -> User, so Username is duplicated into the value for
// convenience when pushing to the remote table.
type User struct {
	Username      string    `json:"username"`
	Password      string    `json:"password"` // opaque credential, compared verbatim
	Role          Role      `json:"role"`
	Name          string    `json:"name"`
	AssignedAreas []string  `json:"assignedAreas"` // zone codes owned by this user
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Validate checks required user fields.
func (u *User) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("username is required")
	}
	if u.Password == "" {
		return fmt.Errorf("password is required")
	}
	if !u.Role.Valid() {
		return fmt.Errorf("invalid role %q", u.Role)
	}
	return nil
}

// Zone is a geographic work unit assigned to exactly one employee.
//
// Code is the business key and must be globally unique across all zones;
// the reconciliation engine enforces this locally before any network
// attempt, and the remote table enforces it with a unique constraint.
type Zone struct {
	// ID is remote-assigned, or generated from unix milliseconds when the
	// zone is created offline.
	ID int64 `json:"id"`

	Code     string `json:"code"`
	Name     string `json:"name"`
	Employee string `json:"employee"` // owning user's username
	IsActive bool   `json:"isActive"`

	// NeedsReview is set when a push was rejected by the remote with a
	// constraint violation (e.g. duplicate code created on another device).
	// Such zones are excluded from further pushes until resolved.
	NeedsReview bool `json:"needsReview,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks required zone fields.
func (z *Zone) Validate() error {
	if z.Code == "" {
		return fmt.Errorf("code is required")
	}
	if z.Name == "" {
		return fmt.Errorf("name is required")
	}
	if z.Employee == "" {
		return fmt.Errorf("employee is required")
	}
	return nil
}

// Location is a GPS snapshot captured with a photo or report.
type Location struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Elevation float64   `json:"elevation,omitempty"`
	Precision float64   `json:"precision,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Report status values. A report transitions before_only -> complete
// exactly once and is never mutated after completion except by deletion.
const (
	StatusBeforeOnly = "before_only"
	StatusComplete   = "complete"
)

// MaxPhotosPerPhase is the number of photo slots per report phase.
const MaxPhotosPerPhase = 5

// Report is a two-phase field report. Phase 1 captures the "before"
// numbers and photos; phase 2 completes the report with "after" data.
type Report struct {
	// ID is remote-assigned, or generated from unix milliseconds when the
	// report is submitted offline. Phase 2 must target the same ID.
	ID int64 `json:"id"`

	Employee     string `json:"employee"`
	EmployeeName string `json:"employeeName"`
	Area         string `json:"area"`     // denormalized zone name at creation time
	AreaCode     string `json:"areaCode"` // denormalized zone code at creation time
	NoteCode     string `json:"noteCode,omitempty"`

	NumberBefore int  `json:"numberBefore"`
	NumberAfter  *int `json:"numberAfter,omitempty"` // nil until phase 2

	Location Location `json:"location"`

	BeforePhotos []Photo `json:"beforePhotos,omitempty"` // ordered, at most 5
	AfterPhotos  []Photo `json:"afterPhotos,omitempty"`  // ordered, at most 5

	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	CompletionDate *time.Time `json:"completionDate,omitempty"`

	// RemoteSynced records that the remote row exists, so later mutations
	// (phase-2 completion in particular) issue an update, never a create.
	RemoteSynced bool `json:"remoteSynced,omitempty"`
}

// Validate checks report invariants that hold in both phases.
func (r *Report) Validate() error {
	if r.Employee == "" {
		return fmt.Errorf("employee is required")
	}
	if r.AreaCode == "" {
		return fmt.Errorf("areaCode is required")
	}
	if r.NumberBefore < 0 || r.NumberBefore > 8 {
		return fmt.Errorf("numberBefore must be between 0 and 8 (got %d)", r.NumberBefore)
	}
	if r.NumberAfter != nil && (*r.NumberAfter < 0 || *r.NumberAfter > 8) {
		return fmt.Errorf("numberAfter must be between 0 and 8 (got %d)", *r.NumberAfter)
	}
	if len(r.BeforePhotos) > MaxPhotosPerPhase {
		return fmt.Errorf("at most %d before photos allowed (got %d)", MaxPhotosPerPhase, len(r.BeforePhotos))
	}
	if len(r.AfterPhotos) > MaxPhotosPerPhase {
		return fmt.Errorf("at most %d after photos allowed (got %d)", MaxPhotosPerPhase, len(r.AfterPhotos))
	}
	switch r.Status {
	case StatusBeforeOnly, StatusComplete:
	default:
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if r.Status == StatusComplete && r.NumberAfter == nil {
		return fmt.Errorf("complete report requires numberAfter")
	}
	return nil
}

// Complete performs the before_only -> complete transition. It is the only
// place numberAfter, after photos and the completion date are set, and it
// refuses to run twice so completion stays monotonic.
func (r *Report) Complete(numberAfter int, afterPhotos []Photo, now time.Time) error {
	if r.Status == StatusComplete {
		return fmt.Errorf("report %d is already complete", r.ID)
	}
	if numberAfter < 0 || numberAfter > 8 {
		return fmt.Errorf("numberAfter must be between 0 and 8 (got %d)", numberAfter)
	}
	if len(afterPhotos) > MaxPhotosPerPhase {
		return fmt.Errorf("at most %d after photos allowed (got %d)", MaxPhotosPerPhase, len(afterPhotos))
	}

	n := numberAfter
	r.NumberAfter = &n
	r.AfterPhotos = afterPhotos
	r.Status = StatusComplete
	r.CompletionDate = &now
	r.UpdatedAt = now
	return nil
}

// Photo upload status values.
const (
	PhotoPending  = "pending"
	PhotoUploaded = "uploaded"
	PhotoFailed   = "failed"
)

// Photo phase values.
const (
	PhotoBefore = "before"
	PhotoAfter  = "after"
)

// Photo is a captured image reference. The binary content lives either in
// the remote bucket (PublicURL set, status uploaded) or is still local
// (FilePath set, status pending) awaiting upload via the sync queue.
type Photo struct {
	ID        string    `json:"id"`
	ReportID  int64     `json:"reportId"`
	Type      string    `json:"type"`  // before|after
	Index     int       `json:"index"` // 0-4 within its type
	FilePath  string    `json:"filePath,omitempty"`
	PublicURL string    `json:"publicUrl,omitempty"`
	Location  Location  `json:"location"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"` // pending|uploaded|failed
}

// Validate checks photo invariants.
func (p *Photo) Validate() error {
	if p.Type != PhotoBefore && p.Type != PhotoAfter {
		return fmt.Errorf("invalid photo type %q", p.Type)
	}
	if p.Index < 0 || p.Index >= MaxPhotosPerPhase {
		return fmt.Errorf("photo index must be between 0 and %d (got %d)", MaxPhotosPerPhase-1, p.Index)
	}
	return nil
}

// Draft is a per-user in-progress report, persisted so an interrupted
// phase survives a restart. Step 1 is the before phase, step 2 the after
// phase targeting ReportID.
type Draft struct {
	Username     string  `json:"username"`
	Step         int     `json:"step"`
	ReportID     int64   `json:"reportId,omitempty"`
	AreaCode     string  `json:"areaCode,omitempty"`
	NumberBefore *int    `json:"numberBefore,omitempty"`
	NumberAfter  *int    `json:"numberAfter,omitempty"`
	BeforePhotos []Photo `json:"beforePhotos,omitempty"`
	AfterPhotos  []Photo `json:"afterPhotos,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
