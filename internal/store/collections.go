package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/notecam/fieldsync/internal/model"
)

// Logical collection keys. Values under these keys are JSON documents
// matching the shapes in the model package.
const (
	ColUsers       = "users"
	ColAreas       = "areas"
	ColReports     = "reports"
	ColSyncHistory = "sync_history"
	ColSyncStats   = "sync_stats"
	ColLastSync    = "last_sync_time"

	draftPrefix = "draft:"
)

// Users returns the username -> User mapping. A missing or corrupt
// collection yields an empty map, never an error.
func (s *Store) Users() map[string]model.User {
	users := make(map[string]model.User)
	if raw, ok := s.Get(ColUsers); ok {
		if err := json.Unmarshal(raw, &users); err != nil {
			return make(map[string]model.User)
		}
	}
	return users
}

// PutUsers persists the full users mapping.
func (s *Store) PutUsers(users map[string]model.User) error {
	return s.putJSON(ColUsers, users)
}

// Areas returns the zone sequence. Missing or corrupt yields empty.
func (s *Store) Areas() []model.Zone {
	var areas []model.Zone
	if raw, ok := s.Get(ColAreas); ok {
		if err := json.Unmarshal(raw, &areas); err != nil {
			return nil
		}
	}
	return areas
}

// PutAreas persists the full zone sequence.
func (s *Store) PutAreas(areas []model.Zone) error {
	return s.putJSON(ColAreas, areas)
}

// Reports returns the report sequence. Missing or corrupt yields empty.
func (s *Store) Reports() []model.Report {
	var reports []model.Report
	if raw, ok := s.Get(ColReports); ok {
		if err := json.Unmarshal(raw, &reports); err != nil {
			return nil
		}
	}
	return reports
}

// PutReports persists the full report sequence.
func (s *Store) PutReports(reports []model.Report) error {
	return s.putJSON(ColReports, reports)
}

// Stats returns the cumulative sync stats, zero-valued when absent.
func (s *Store) Stats() model.SyncStats {
	var stats model.SyncStats
	if raw, ok := s.Get(ColSyncStats); ok {
		_ = json.Unmarshal(raw, &stats)
	}
	return stats
}

// PutStats persists the cumulative sync stats.
func (s *Store) PutStats(stats model.SyncStats) error {
	return s.putJSON(ColSyncStats, stats)
}

// History returns the persisted cycle history, oldest first.
func (s *Store) History() []model.CycleRecord {
	var history []model.CycleRecord
	if raw, ok := s.Get(ColSyncHistory); ok {
		if err := json.Unmarshal(raw, &history); err != nil {
			return nil
		}
	}
	return history
}

// AppendHistory records a cycle outcome, retaining only the most recent
// model.SyncHistoryLimit entries.
func (s *Store) AppendHistory(rec model.CycleRecord) error {
	history := append(s.History(), rec)
	if len(history) > model.SyncHistoryLimit {
		history = history[len(history)-model.SyncHistoryLimit:]
	}
	return s.putJSON(ColSyncHistory, history)
}

// LastSyncTime returns the last successful cycle time, or nil when no
// cycle has succeeded yet.
func (s *Store) LastSyncTime() *time.Time {
	raw, ok := s.Get(ColLastSync)
	if !ok {
		return nil
	}
	var iso string
	if err := json.Unmarshal(raw, &iso); err != nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return nil
	}
	return &t
}

// SetLastSyncTime persists the last successful cycle time as ISO-8601.
func (s *Store) SetLastSyncTime(t time.Time) error {
	return s.putJSON(ColLastSync, t.UTC().Format(time.RFC3339))
}

// Draft returns the in-progress report draft for a user, or nil.
func (s *Store) Draft(username string) *model.Draft {
	raw, ok := s.Get(draftPrefix + username)
	if !ok {
		return nil
	}
	var d model.Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil
	}
	return &d
}

// PutDraft persists a user's in-progress report draft.
func (s *Store) PutDraft(d model.Draft) error {
	if d.Username == "" {
		return fmt.Errorf("draft requires a username")
	}
	return s.putJSON(draftPrefix+d.Username, d)
}

// RemoveDraft deletes a user's draft once the report phase is submitted.
func (s *Store) RemoveDraft(username string) error {
	return s.Remove(draftPrefix + username)
}

// putJSON marshals v and writes it under the collection key.
func (s *Store) putJSON(collection string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", collection, err)
	}
	return s.Put(collection, data)
}
