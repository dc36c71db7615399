package theme

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bengal-ssg/bengal/internal/embedded"
)

// EmbeddedTheme is the Theme value recorded when a template was swizzled
// from the built-in default theme rather than an installed one.
const EmbeddedTheme = "embedded"

// normalizeName turns user input into an engine-relative template name.
// Both "_default/single.html" and "templates/_default/single.html" work.
func normalizeName(name string) (string, error) {
	name = path.Clean(filepath.ToSlash(strings.TrimSpace(name)))
	name = strings.TrimPrefix(name, "templates/")
	if name == "" || name == "." || name == ".." ||
		strings.HasPrefix(name, "../") || path.IsAbs(name) {
		return "", fmt.Errorf("invalid template name %q", name)
	}
	return name, nil
}

// upstream resolves the theme's current copy of a template: the installed
// theme's file when present, the embedded default theme otherwise.
func (m *Manager) upstream(name string) (data []byte, source, themeName string, err error) {
	themePath := filepath.Join(m.cfg.ThemePath(), "templates", filepath.FromSlash(name))
	if data, err := os.ReadFile(themePath); err == nil {
		source := path.Join(filepath.ToSlash(m.cfg.Theme.Dir), m.cfg.Theme.Name, "templates", name)
		return data, source, m.cfg.Theme.Name, nil
	}
	if data, err := fs.ReadFile(embedded.Templates(), name); err == nil {
		return data, "embedded:" + name, EmbeddedTheme, nil
	}
	return nil, "", "", fmt.Errorf("template %q not found in theme %q or the embedded theme",
		name, m.cfg.Theme.Name)
}

// targetPath returns the absolute and project-relative paths of a swizzled
// template's local copy.
func (m *Manager) targetPath(name string) (abs, rel string) {
	return filepath.Join(m.cfg.TemplatesPath(), filepath.FromSlash(name)), path.Join("templates", name)
}

// Swizzle copies a theme template into the project's templates/ directory
// and records its provenance. Re-swizzling a registered template refreshes
// it from upstream; an unregistered file already at the target is an error.
func (m *Manager) Swizzle(name string) (*Record, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	data, source, themeName, err := m.upstream(name)
	if err != nil {
		return nil, err
	}

	records, err := m.loadRegistry()
	if err != nil {
		return nil, err
	}

	abs, rel := m.targetPath(name)
	registered := -1
	for i, r := range records {
		if r.Target == rel {
			registered = i
			break
		}
	}
	if registered == -1 {
		if _, err := os.Stat(abs); err == nil {
			return nil, fmt.Errorf("%s already exists and is not a swizzled template; remove it first", rel)
		}
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("creating template directory: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", rel, err)
	}

	sum := checksum(data)
	rec := Record{
		Target:           rel,
		Source:           source,
		Theme:            themeName,
		UpstreamChecksum: sum,
		LocalChecksum:    sum,
		Timestamp:        time.Now().UTC(),
	}
	if registered >= 0 {
		records[registered] = rec
	} else {
		records = append(records, rec)
	}
	if err := m.saveRegistry(records); err != nil {
		return nil, err
	}

	m.log.Info("swizzled template", "template", name, "theme", themeName, "target", rel)
	return &rec, nil
}

// status computes one record's state against the filesystem and upstream.
func (m *Manager) status(rec Record) (Status, error) {
	abs := filepath.Join(m.cfg.RootPath, filepath.FromSlash(rec.Target))
	localSum, err := fileChecksum(abs)
	if err != nil {
		return Status{}, fmt.Errorf("reading %s: %w", rec.Target, err)
	}
	if localSum == "" {
		return Status{Record: rec, State: StateMissing}, nil
	}

	name := strings.TrimPrefix(rec.Target, "templates/")
	upData, _, _, err := m.upstream(name)
	if err != nil {
		return Status{Record: rec, State: StateOrphaned}, nil
	}
	upSum := checksum(upData)

	localClean := localSum == rec.UpstreamChecksum
	upstreamSame := upSum == rec.UpstreamChecksum
	switch {
	case localClean && upstreamSame:
		return Status{Record: rec, State: StateCurrent}, nil
	case localClean && !upstreamSame:
		return Status{Record: rec, State: StateOutdated}, nil
	case !localClean && upstreamSame:
		return Status{Record: rec, State: StateModified}, nil
	default:
		return Status{Record: rec, State: StateDiverged}, nil
	}
}

// List reports every swizzled template and its update state, sorted by
// target.
func (m *Manager) List() ([]Status, error) {
	records, err := m.loadRegistry()
	if err != nil {
		return nil, err
	}
	statuses := make([]Status, 0, len(records))
	for _, rec := range records {
		st, err := m.status(rec)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// Update re-copies every swizzled template whose upstream changed while the
// local copy is byte-identical to the recorded upstream. Anything locally
// modified, diverged, or missing is reported untouched.
func (m *Manager) Update() ([]UpdateResult, error) {
	records, err := m.loadRegistry()
	if err != nil {
		return nil, err
	}

	results := make([]UpdateResult, 0, len(records))
	changed := false
	for i, rec := range records {
		st, err := m.status(rec)
		if err != nil {
			return nil, err
		}
		if st.State != StateOutdated {
			results = append(results, UpdateResult{Target: rec.Target, State: st.State})
			continue
		}

		name := strings.TrimPrefix(rec.Target, "templates/")
		data, source, themeName, err := m.upstream(name)
		if err != nil {
			return nil, err
		}
		abs := filepath.Join(m.cfg.RootPath, filepath.FromSlash(rec.Target))
		if err := os.WriteFile(abs, data, 0o644); err != nil {
			return nil, fmt.Errorf("updating %s: %w", rec.Target, err)
		}

		sum := checksum(data)
		records[i].Source = source
		records[i].Theme = themeName
		records[i].UpstreamChecksum = sum
		records[i].LocalChecksum = sum
		records[i].Timestamp = time.Now().UTC()
		changed = true

		m.log.Info("updated swizzled template", "target", rec.Target, "theme", themeName)
		results = append(results, UpdateResult{Target: rec.Target, State: StateCurrent, Updated: true})
	}

	if changed {
		if err := m.saveRegistry(records); err != nil {
			return nil, err
		}
	}
	return results, nil
}
