// Package spool provides the photo spool watcher.
//
// The camera collaborator drops captured photos into a spool directory
// as a pair of files: the JPEG blob and a sidecar JSON document with
// the photo metadata. The watcher:
// 1. Watches the spool directory for new sidecar files
// 2. Debounces rapid writes so half-written pairs are not picked up
// 3. Hands each completed pair to the upload function
// 4. Moves pairs that are rejected outright into a failed/ subdirectory
package spool

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/notecam/fieldsync/internal/model"
)

// Sidecar is the JSON document the camera writes next to each JPEG. The
// blob file shares the sidecar's base name with a .jpg extension.
type Sidecar struct {
	Photo    model.Photo `json:"photo"`
	UserID   string      `json:"userId"`
	ZoneCode string      `json:"zoneCode"`
}

// UploadFunc receives one completed photo pair. A nil return means the
// upload was accepted (delivered or durably queued) and the pair may be
// removed from the spool.
type UploadFunc func(ctx context.Context, up model.PhotoUpload) error

// Config holds configuration for the watcher.
type Config struct {
	// DebounceInterval is how long a pair must sit unchanged before it
	// is processed. This batches the blob and sidecar writes together.
	DebounceInterval time.Duration

	// Logger for watcher activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 200 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[spool] ", log.LstdFlags),
	}
}

// Watcher monitors the spool directory and feeds photo pairs to the
// upload function.
type Watcher struct {
	dir    string
	upload UploadFunc
	config *Config

	watcher *fsnotify.Watcher

	pending   map[string]time.Time // sidecar path -> last event
	pendingMu sync.Mutex

	wg sync.WaitGroup
}

// New creates a Watcher for the given spool directory. The directory is
// created if it does not exist.
func New(dir string, upload UploadFunc, config *Config) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("spool directory cannot be empty")
	}
	if upload == nil {
		return nil, fmt.Errorf("upload function cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := os.MkdirAll(filepath.Join(dir, "failed"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		dir:     dir,
		upload:  upload,
		config:  config,
		watcher: fsw,
		pending: make(map[string]time.Time),
	}, nil
}

// Start begins watching. It first sweeps pairs already sitting in the
// spool from a previous run, then blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch spool directory: %w", err)
	}
	w.config.Logger.Printf("Watching spool: %s", w.dir)

	if err := w.sweep(ctx); err != nil {
		w.config.Logger.Printf("WARNING: initial sweep failed: %v", err)
	}

	w.wg.Add(2)
	go w.watchEvents(ctx)
	go w.processPending(ctx)

	<-ctx.Done()
	if err := w.watcher.Close(); err != nil {
		w.config.Logger.Printf("Error closing watcher: %v", err)
	}
	w.wg.Wait()
	w.config.Logger.Println("Spool watcher stopped")
	return nil
}

// sweep queues every sidecar already present in the spool.
func (w *Watcher) sweep(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		w.process(ctx, filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

// watchEvents monitors filesystem events and queues sidecar changes.
func (w *Watcher) watchEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			// The sidecar is the trigger; the blob write just refreshes
			// the debounce window for its pair.
			path := event.Name
			if filepath.Ext(path) == ".jpg" {
				path = sidecarFor(path)
			} else if filepath.Ext(path) != ".json" {
				continue
			}
			w.pendingMu.Lock()
			w.pending[path] = time.Now()
			w.pendingMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processPending handles debounced pairs on a ticker.
func (w *Watcher) processPending(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pendingMu.Lock()
			now := time.Now()
			var due []string
			for path, queuedAt := range w.pending {
				if now.Sub(queuedAt) < w.config.DebounceInterval {
					continue
				}
				due = append(due, path)
				delete(w.pending, path)
			}
			w.pendingMu.Unlock()

			for _, path := range due {
				w.process(ctx, path)
			}
		}
	}
}

// process reads one sidecar/blob pair and hands it to the upload
// function. Accepted pairs are removed from the spool; rejected pairs
// move to failed/.
func (w *Watcher) process(ctx context.Context, sidecarPath string) {
	blobPath := blobFor(sidecarPath)

	raw, err := os.ReadFile(sidecarPath)
	if err != nil {
		if !os.IsNotExist(err) {
			w.config.Logger.Printf("Error reading sidecar %s: %v", sidecarPath, err)
		}
		return
	}

	var sc Sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		w.config.Logger.Printf("Corrupt sidecar %s: %v", sidecarPath, err)
		w.quarantine(sidecarPath, blobPath)
		return
	}

	blob, err := os.ReadFile(blobPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Blob not written yet; the next event re-queues the pair.
			return
		}
		w.config.Logger.Printf("Error reading blob %s: %v", blobPath, err)
		return
	}

	up := model.PhotoUpload{
		Photo:    sc.Photo,
		UserID:   sc.UserID,
		ZoneCode: sc.ZoneCode,
		Blob:     blob,
	}
	if err := w.upload(ctx, up); err != nil {
		w.config.Logger.Printf("Photo %s rejected: %v", sc.Photo.ID, err)
		w.quarantine(sidecarPath, blobPath)
		return
	}

	w.config.Logger.Printf("Photo %s accepted (%d bytes)", sc.Photo.ID, len(blob))
	for _, p := range []string{sidecarPath, blobPath} {
		if err := os.Remove(p); err != nil {
			w.config.Logger.Printf("Error removing %s: %v", p, err)
		}
	}
}

// quarantine moves a bad pair into failed/ so it stops being retried.
func (w *Watcher) quarantine(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		dst := filepath.Join(w.dir, "failed", filepath.Base(p))
		if err := os.Rename(p, dst); err != nil {
			w.config.Logger.Printf("Error quarantining %s: %v", p, err)
		}
	}
}

func sidecarFor(blobPath string) string {
	return strings.TrimSuffix(blobPath, filepath.Ext(blobPath)) + ".json"
}

func blobFor(sidecarPath string) string {
	return strings.TrimSuffix(sidecarPath, filepath.Ext(sidecarPath)) + ".jpg"
}
