package runlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-ps"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/wallet-pass/internal/logger"
)

const (
	// MarkerFilename marks that a run is writing into the directory right now.
	MarkerFilename = ".wallet-pass.lock"

	// DefaultLifetime is the age after which a marker of a live process is ignored as well.
	DefaultLifetime = 2 * time.Hour

	markerMode os.FileMode = 0o600
	dirMode    os.FileMode = 0o755
)

// ErrLocked is returned when another live run holds the directory.
var ErrLocked = errors.New("another run is using the output directory")

// Marker is the content of the marker file.
type Marker struct {
	PID       int       `yaml:"pid"`
	Hostname  string    `yaml:"hostname"`
	RunID     string    `yaml:"run_id"`
	StartedAt time.Time `yaml:"started_at"`
}

// Lock is a held run lock.
type Lock struct {
	path   string
	marker Marker
}

// Acquire takes the lock on dir for runID. A lifetime of zero uses DefaultLifetime.
func Acquire(ctx context.Context, dir, runID string, lifetime time.Duration) (*Lock, error) {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}

	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(dir, MarkerFilename)

	if held, err := IsHeld(ctx, path, lifetime); err != nil {
		return nil, err
	} else if held {
		return nil, ErrLocked
	}

	hostname, _ := os.Hostname()

	lock := &Lock{
		path: path,
		marker: Marker{
			PID:       os.Getpid(),
			Hostname:  hostname,
			RunID:     runID,
			StartedAt: time.Now().UTC(),
		},
	}

	contents, err := yaml.Marshal(&lock.marker)
	if err != nil {
		return nil, fmt.Errorf("encode run marker: %w", err)
	}

	if err = publish(path, contents); err != nil {
		if errors.Is(err, os.ErrExist) {
			// Lost the race against another run starting at the same moment.
			return nil, ErrLocked
		}

		return nil, err
	}

	return lock, nil
}

// publish writes contents to a temporary file next to path and links it into
// place, so the marker is never visible without its contents.
func publish(path string, contents []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), MarkerFilename+".*")
	if err != nil {
		return fmt.Errorf("create run marker: %w", err)
	}

	staged := f.Name()

	defer func() {
		_ = os.Remove(staged)
	}()

	if _, err = f.Write(contents); err != nil {
		_ = f.Close()

		return fmt.Errorf("write run marker: %w", err)
	}

	if err = f.Chmod(markerMode); err != nil {
		_ = f.Close()

		return fmt.Errorf("write run marker: %w", err)
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("close run marker: %w", err)
	}

	if err = os.Link(staged, path); err != nil {
		return fmt.Errorf("publish run marker: %w", err)
	}

	return nil
}

// Marker returns what the lock wrote to disk.
func (l *Lock) Marker() Marker {
	return l.marker
}

// Release removes the marker. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove run marker: %w", err)
	}

	return nil
}

// IsHeld reports whether the marker at path belongs to a live run.
// A stale marker is removed.
func IsHeld(ctx context.Context, path string, lifetime time.Duration) (bool, error) {
	logger.Debug(ctx, "Checking for the presence of a run marker")

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("inspect run marker: %w", err)
	}

	marker, readErr := readMarker(path)

	switch {
	case readErr != nil:
		logger.WarnKV(ctx, "The run marker is unreadable, treating it as stale", "error", readErr)
	case time.Since(info.ModTime()) > lifetime:
		logger.InfoKV(ctx, "The run marker is too old, taking over", "pid", marker.PID, "run_id", marker.RunID)
	case !processAlive(marker.PID):
		logger.InfoKV(ctx, "The run marker belongs to a finished process, taking over",
			"pid", marker.PID, "run_id", marker.RunID)
	default:
		return true, nil
	}

	if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return true, fmt.Errorf("remove stale run marker: %w", err)
	}

	return false, nil
}

func readMarker(path string) (Marker, error) {
	var marker Marker

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return marker, err
	}

	if err = yaml.Unmarshal(contents, &marker); err != nil {
		return marker, err
	}

	return marker, nil
}

// processAlive looks the PID up in the process table.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		// Without a process table the marker is trusted.
		return true
	}

	return process != nil
}
