// Package theme manages swizzled templates: project-local copies of theme
// templates tracked in a provenance registry so upstream changes can be
// applied without clobbering local edits.
package theme

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bengal-ssg/bengal/internal/config"
)

// Record is one swizzled template in the registry. Target is the
// project-relative path of the local copy; Source identifies where the bytes
// came from. Both checksums are SHA-256 hex of the file at swizzle time, so
// a freshly swizzled record always has LocalChecksum == UpstreamChecksum.
type Record struct {
	Target           string    `json:"target"`
	Source           string    `json:"source"`
	Theme            string    `json:"theme"`
	UpstreamChecksum string    `json:"upstream_checksum"`
	LocalChecksum    string    `json:"local_checksum"`
	Timestamp        time.Time `json:"timestamp"`
}

// State describes a swizzled template relative to its upstream.
type State string

const (
	// StateCurrent: the local copy matches the recorded upstream, which is
	// still what the theme ships.
	StateCurrent State = "up-to-date"
	// StateOutdated: the upstream changed and the local copy is untouched,
	// so swizzle-update may replace it.
	StateOutdated State = "update-available"
	// StateModified: the local copy was edited; updates never touch it.
	StateModified State = "modified"
	// StateDiverged: both the local copy and the upstream changed.
	StateDiverged State = "diverged"
	// StateMissing: the local copy was deleted.
	StateMissing State = "missing"
	// StateOrphaned: the upstream template no longer exists.
	StateOrphaned State = "upstream-missing"
)

// Status pairs a registry record with its computed state.
type Status struct {
	Record Record
	State  State
}

// UpdateResult reports what swizzle-update did with one record.
type UpdateResult struct {
	Target  string
	State   State
	Updated bool
}

// Manager performs swizzle operations against one site.
type Manager struct {
	cfg *config.Config
	log *slog.Logger
}

// NewManager creates a manager for the given site.
func NewManager(cfg *config.Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{cfg: cfg, log: log}
}

func (m *Manager) registryPath() string {
	return filepath.Join(m.cfg.StatePath(), "themes", "sources.json")
}

// loadRegistry reads the registry, returning an empty slice when none exists.
func (m *Manager) loadRegistry() ([]Record, error) {
	data, err := os.ReadFile(m.registryPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading swizzle registry: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing swizzle registry %s: %w", m.registryPath(), err)
	}
	return records, nil
}

// saveRegistry writes the registry atomically, sorted by target.
func (m *Manager) saveRegistry(records []Record) error {
	sort.Slice(records, func(i, j int) bool { return records[i].Target < records[j].Target })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding swizzle registry: %w", err)
	}
	data = append(data, '\n')

	path := m.registryPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating registry directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing swizzle registry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing swizzle registry: %w", err)
	}
	return nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// fileChecksum returns the SHA-256 of a file, or "" when it does not exist.
func fileChecksum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return checksum(data), nil
}
