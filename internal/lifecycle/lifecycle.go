// Package lifecycle signals process state to an external orchestrator
// through flag files. The orchestrator watches the flag directory:
// app.initializing while the process wires its dependencies, app.ready once
// it serves traffic, app.stopping during graceful shutdown. A clean exit
// leaves no flags behind.
package lifecycle

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Flag file names, in order of appearance.
const (
	FlagInitializing = "app.initializing"
	FlagReady        = "app.ready"
	FlagStopping     = "app.stopping"
)

// Signaler manages the flag files of one process. A zero flag directory
// disables signaling entirely.
type Signaler struct {
	dir    string
	logger *slog.Logger
}

func New(dir string, logger *slog.Logger) *Signaler {
	return &Signaler{dir: dir, logger: logger}
}

// Initializing marks the process as starting up. Stale flags from a crashed
// predecessor are cleared first.
func (s *Signaler) Initializing() error {
	if s.dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create flag dir: %w", err)
	}
	s.clear()
	return s.write(FlagInitializing)
}

// Ready marks the process as serving traffic, replacing the initializing
// flag.
func (s *Signaler) Ready() error {
	if s.dir == "" {
		return nil
	}
	s.remove(FlagInitializing)
	return s.write(FlagReady)
}

// Stopping marks the process as shutting down, replacing the ready flag.
func (s *Signaler) Stopping() error {
	if s.dir == "" {
		return nil
	}
	s.remove(FlagReady)
	return s.write(FlagStopping)
}

// Stopped removes all flags on clean exit.
func (s *Signaler) Stopped() {
	if s.dir == "" {
		return
	}
	s.clear()
}

func (s *Signaler) write(name string) error {
	content := fmt.Sprintf("pid=%d\nat=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write flag %s: %w", name, err)
	}
	return nil
}

func (s *Signaler) remove(name string) {
	path := filepath.Join(s.dir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("remove flag file", "flag", name, "error", err)
	}
}

func (s *Signaler) clear() {
	for _, name := range []string{FlagInitializing, FlagReady, FlagStopping} {
		s.remove(name)
	}
}
