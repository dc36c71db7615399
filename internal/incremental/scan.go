package incremental

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bengal-ssg/bengal/internal/cache"
	"github.com/bengal-ssg/bengal/internal/config"
)

// Scanner produces the cold-start change set by diffing the source tree
// against the cached fingerprints. Warm dev-server builds get their changes
// from the watcher instead; CLI rebuilds always scan.
type Scanner struct {
	cfg *config.Config
	mgr *cache.Manager
	cls *Classifier
}

// NewScanner builds a scanner over the given cache.
func NewScanner(cfg *config.Config, mgr *cache.Manager) *Scanner {
	return &Scanner{cfg: cfg, mgr: mgr, cls: NewClassifier(cfg)}
}

// Scan walks every source root, compares each file against its cached
// fingerprint, and returns the classified changes plus the complete current
// fingerprint map for staging at finalize. Cached paths that no longer exist
// become removals.
func (s *Scanner) Scan() ([]Change, map[string]cache.Fingerprint, error) {
	cached, err := s.mgr.AllFingerprints()
	if err != nil {
		return nil, nil, err
	}

	var changes []Change
	current := make(map[string]cache.Fingerprint, len(cached))

	for _, root := range s.roots() {
		err := filepath.WalkDir(root, func(abs string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := s.cls.Rel(abs)
			if err != nil {
				return err
			}
			// Overlapping roots (watch paths inside content) visit once.
			if _, seen := current[rel]; seen {
				return nil
			}

			old, known := cached[rel]
			if !known {
				fp, err := FingerprintFile(abs)
				if err != nil {
					return err
				}
				current[rel] = fp
				changes = append(changes, Change{
					Path: rel,
					Op:   OpCreate,
					Kind: s.cls.Classify(rel),
					New:  fp,
				})
				return nil
			}

			changed, fp, err := FingerprintChanged(abs, old)
			if err != nil {
				return err
			}
			current[rel] = fp
			if changed {
				changes = append(changes, Change{
					Path: rel,
					Op:   OpWrite,
					Kind: s.cls.Classify(rel),
					Old:  old,
					New:  fp,
				})
			}
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("scanning %s: %w", root, err)
		}
	}

	// Anything fingerprinted before but not seen now is gone.
	removed := make([]string, 0)
	for rel := range cached {
		if _, ok := current[rel]; !ok {
			removed = append(removed, rel)
		}
	}
	sort.Strings(removed)
	for _, rel := range removed {
		changes = append(changes, Change{
			Path: rel,
			Op:   OpRemove,
			Kind: s.cls.Classify(rel),
			Old:  cached[rel],
		})
	}

	return changes, current, nil
}

// roots lists the directories whose files are fingerprinted. Missing
// directories are skipped by the walk.
func (s *Scanner) roots() []string {
	roots := []string{
		s.cfg.ContentPath(),
		s.cfg.TemplatesPath(),
		filepath.Join(s.cfg.ThemePath(), "templates"),
		s.cfg.DataPath(),
		s.cfg.AssetsPath(),
		s.cfg.GeneratedPath(),
	}
	for _, wp := range s.cfg.Content.WatchPaths {
		if filepath.IsAbs(wp) {
			roots = append(roots, wp)
		} else {
			roots = append(roots, filepath.Join(s.cfg.RootPath, wp))
		}
	}
	return roots
}
