package model

import (
	"encoding/json"
	"time"
)

// Queue item types. Each names the entity kind the payload decodes to.
const (
	ItemUser   = "user"
	ItemArea   = "area"
	ItemReport = "report"
	ItemPhoto  = "photo"
)

// Queue item states.
const (
	QueuePending         = "pending"
	QueueProcessing      = "processing"
	QueueFailedPermanent = "failed-permanent"
)

// QueueItem is a durable record of a mutation that could not be applied
// to the remote immediately. Attempts increments monotonically; items
// exceeding the retry threshold are marked failed-permanent and surfaced
// rather than retried forever.
type QueueItem struct {
	ID            int64           `json:"id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	EnqueuedAt    time.Time       `json:"enqueuedAt"`
	Attempts      int             `json:"attempts"`
	NextAttemptAt time.Time       `json:"nextAttemptAt"`
	Status        string          `json:"status"`
	LastError     string          `json:"lastError,omitempty"`
}

// PhotoUpload is the payload of an ItemPhoto queue item. The blob travels
// base64-encoded inside the payload so the queue row is self-contained
// and survives the spool file being cleaned up.
type PhotoUpload struct {
	Photo    Photo  `json:"photo"`
	UserID   string `json:"userId"`
	ZoneCode string `json:"zoneCode"`
	Blob     []byte `json:"blob"` // JPEG bytes, base64 in JSON
}

// SyncStats is the cumulative counters block persisted under sync_stats.
type SyncStats struct {
	TotalSyncs      int    `json:"totalSyncs"`
	SuccessfulSyncs int    `json:"successfulSyncs"`
	FailedSyncs     int    `json:"failedSyncs"`
	LastError       string `json:"lastError,omitempty"`
	TotalDataSynced int    `json:"totalDataSynced"`
}

// CycleRecord is one sync cycle outcome kept in the sync_history ring
// (most recent 50 retained).
type CycleRecord struct {
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	ItemsSynced int           `json:"itemsSynced"`
	RetryCount  int           `json:"retryCount"`
}

// SyncHistoryLimit caps the persisted cycle history.
const SyncHistoryLimit = 50

// SyncStatus is the read-only snapshot exposed to UI consumers.
type SyncStatus struct {
	IsSyncing    bool       `json:"isSyncing"`
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`
	QueueLength  int        `json:"queueLength"`
	RetryCount   int        `json:"retryCount"`
	Stats        SyncStats  `json:"stats"`
	Connection   string     `json:"connection"` // online|offline
}
