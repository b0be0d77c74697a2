// Package heartbeat maintains the liveness gate file consulted before a
// reconcile cycle and rewritten after a successful run.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// File is a file-backed heartbeat. The blob content is opaque to the
// rest of the pipeline; only readability before a run and a fresh write
// after one matter.
type File struct {
	path string
	now  func() time.Time
}

// NewFile creates a heartbeat at path.
func NewFile(path string) *File {
	return &File{path: path, now: time.Now}
}

// Check verifies the heartbeat file exists and is readable. Reconcile
// refuses to run when the gate is missing.
func (f *File) Check(_ context.Context) error {
	content, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("heartbeat gate %s: %w", f.path, err)
	}
	slog.Debug("heartbeat gate ok", "path", f.path, "bytes", len(content))
	return nil
}

// Update rewrites the heartbeat with the current UTC timestamp.
func (f *File) Update(_ context.Context) error {
	timestamp := f.now().UTC().Format("2006-01-02 15:04:05 UTC")
	content := fmt.Sprintf("<html><body>status-sentry heartbeat: Last updated %s</body></html>", timestamp)

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace heartbeat: %w", err)
	}
	return nil
}

// Init creates the heartbeat file if it does not exist yet, so the first
// reconcile cycle can pass the gate on a fresh deployment.
func (f *File) Init() error {
	if _, err := os.Stat(f.path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create heartbeat dir: %w", err)
	}
	return f.Update(context.Background())
}
