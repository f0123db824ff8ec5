// Package remote provides the adapter between in-memory entities and the
// hosted backend: a PostgREST-style relational API plus a storage bucket
// for photo binaries.
//
// The adapter owns the field-name translation between the local camelCase
// shapes and the remote snake_case schema (wire.go) and maps every failure
// to the error taxonomy in errors.go. It never mutates the local store.
package remote

import (
	"context"
	"time"

	"github.com/notecam/fieldsync/internal/model"
)

// UserUpdate is a partial user update. Nil fields are left untouched.
type UserUpdate struct {
	Password      *string   `json:"password,omitempty"`
	Name          *string   `json:"name,omitempty"`
	Role          *string   `json:"role,omitempty"`
	AssignedAreas *[]string `json:"assigned_areas,omitempty"`
}

// ZoneUpdate is a partial zone update. Nil fields are left untouched.
type ZoneUpdate struct {
	Name     *string `json:"name,omitempty"`
	Employee *string `json:"employee,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// ReportUpdate is a partial report update, used by the phase-2 completion
// protocol: it targets an existing row by id and never creates a new one.
// The client translates it to the remote snake_case shape on send.
type ReportUpdate struct {
	NumberAfter    *int
	Status         *string
	CompletionDate *time.Time
	AfterPhotos    []model.Photo
}

// ReportFilter narrows FetchReports. Zero values mean no filtering.
type ReportFilter struct {
	Employee string
	AreaCode string
	Status   string
	Limit    int
}

// PhotoMeta accompanies a photo blob upload. The storage object path is
// derived from it as {userID}/{zoneCode}/{filename}.
type PhotoMeta struct {
	UserID   string
	ZoneCode string
	ReportID int64
	Type     string
	Index    int
	Location model.Location
	Taken    time.Time
}

// Store is the remote CRUD surface consumed by the reconciliation engine
// and the sync queue. Implementations must classify every failure with
// the package's error taxonomy and must not panic across this boundary.
type Store interface {
	// TestConnection performs a lightweight read to confirm reachability.
	// A failure here short-circuits the sync cycle as offline before any
	// partial writes are attempted.
	TestConnection(ctx context.Context) error

	FetchUsers(ctx context.Context) ([]model.User, error)
	CreateUser(ctx context.Context, u model.User) error
	UpdateUser(ctx context.Context, username string, patch UserUpdate) error
	DeleteUser(ctx context.Context, username string) error

	FetchZones(ctx context.Context) ([]model.Zone, error)
	CreateZone(ctx context.Context, z model.Zone) error
	UpdateZone(ctx context.Context, id int64, patch ZoneUpdate) error
	DeleteZone(ctx context.Context, id int64) error

	FetchReports(ctx context.Context, filter ReportFilter) ([]model.Report, error)
	CreateReport(ctx context.Context, r model.Report) error
	UpdateReport(ctx context.Context, id int64, patch ReportUpdate) error
	DeleteReport(ctx context.Context, id int64) error

	// UploadPhoto stores the blob in the bucket, records its metadata row
	// and returns the public URL of the stored object.
	UploadPhoto(ctx context.Context, blob []byte, meta PhotoMeta) (string, error)
	DeletePhoto(ctx context.Context, objectPath string) error
}
