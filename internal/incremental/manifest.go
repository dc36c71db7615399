package incremental

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/bengal-ssg/bengal/internal/cache"
)

// BuildManifest is the explainable record of one build: which pages were
// re-rendered, why, and what was skipped. It is the source for --explain
// output and for the compact manifest persisted in the cache.
type BuildManifest struct {
	BuildID     string         `json:"build_id"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Incremental bool           `json:"incremental"`
	FullReason  string         `json:"full_reason,omitempty"`
	Entries     []*Entry       `json:"entries"`
	Assets      []AssetChange  `json:"asset_changes,omitempty"`
	Skipped     []string       `json:"skipped"`
	Summary     map[Reason]int `json:"summary"`
}

// NewBuildID returns a fresh build identifier.
func NewBuildID() string { return uuid.NewString() }

// FromPlan flattens a rebuild plan into a manifest. Entries share pointers
// with the plan, so durations recorded by the renderer appear in the
// manifest without copying.
func FromPlan(buildID string, plan *Plan, started time.Time) *BuildManifest {
	m := &BuildManifest{
		BuildID:     buildID,
		StartedAt:   started,
		FinishedAt:  time.Now(),
		Incremental: !plan.Full,
		Entries:     make([]*Entry, 0, len(plan.Entries)),
		Assets:      append([]AssetChange(nil), plan.Assets...),
		Skipped:     append([]string(nil), plan.Skipped...),
		Summary:     make(map[Reason]int),
	}
	for _, key := range plan.Keys() {
		e := plan.Entries[key]
		m.Entries = append(m.Entries, e)
		m.Summary[e.Reason]++
	}
	sort.Strings(m.Skipped)
	if plan.Full && len(m.Entries) > 0 {
		m.FullReason = m.Entries[0].Trigger
	}
	return m
}

// Rebuilt returns how many pages the build re-rendered.
func (m *BuildManifest) Rebuilt() int { return len(m.Entries) }

// CacheRecord converts the manifest into the compact form stored in the
// build cache.
func (m *BuildManifest) CacheRecord(configHash string) *cache.Manifest {
	reasons := make(map[string]string, len(m.Entries))
	for _, e := range m.Entries {
		reasons[e.Key] = string(e.Reason)
	}
	return &cache.Manifest{
		BuildID:    m.BuildID,
		StartedAt:  m.StartedAt.UnixNano(),
		FinishedAt: m.FinishedAt.UnixNano(),
		Full:       !m.Incremental,
		ConfigHash: configHash,
		Reasons:    reasons,
		Rebuilt:    len(m.Entries),
		Skipped:    len(m.Skipped),
	}
}

// WriteExplain prints the human-readable build explanation: a per-reason
// summary, one row per rebuilt page, and the asset fingerprint transitions.
// Skipped pages are summarized by count; the JSON form lists them
// individually.
func (m *BuildManifest) WriteExplain(w io.Writer) error {
	mode := "incremental"
	if !m.Incremental {
		mode = "full"
	}
	fmt.Fprintf(w, "build %s (%s)\n", m.BuildID, mode)
	fmt.Fprintf(w, "rebuilt %d page(s), skipped %d, took %s\n\n",
		len(m.Entries), len(m.Skipped), m.FinishedAt.Sub(m.StartedAt).Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REASON\tPAGES")
	for _, r := range Reasons() {
		if n := m.Summary[r]; n > 0 {
			fmt.Fprintf(tw, "%s\t%d\n", r, n)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(m.Entries) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PAGE\tREASON\tTRIGGER\tTIME")
		for _, e := range m.Entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\n", e.Key, e.Reason, e.Trigger, e.DurationMS)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(w, "\nnothing to rebuild")
	}

	if len(m.Assets) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ASSET\tOLD\tNEW")
		for _, a := range m.Assets {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Key, shortHash(a.OldHash), shortHash(a.NewHash))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(m.Skipped) > 0 {
		fmt.Fprintf(w, "\nskipped %d unchanged page(s)\n", len(m.Skipped))
	}
	return nil
}

// shortHash truncates a content hash to the prefix length fingerprinted
// filenames use.
func shortHash(h string) string {
	if h == "" {
		return "-"
	}
	if len(h) > 8 {
		h = h[:8]
	}
	return h
}

// WriteExplainJSON prints the machine-readable form of the manifest.
func (m *BuildManifest) WriteExplainJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}
