package incremental

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func testPlan() *Plan {
	plan := &Plan{Entries: make(map[string]*Entry)}
	plan.add("docs/install.md", ReasonContentChanged, "content/docs/install.md")
	plan.add("docs/config.md", ReasonAdjacentNav, "docs/install.md")
	plan.add("docs/_index.md", ReasonContentChanged, "docs/install.md")
	plan.Skipped = []string{"blog/first.md", "_index.md"}
	plan.Assets = []AssetChange{
		{Key: "css/style.css", OldHash: "aaaa1111bbbb2222", NewHash: "cccc3333dddd4444"},
	}
	return plan
}

func TestFromPlan(t *testing.T) {
	plan := testPlan()
	started := time.Now().Add(-time.Second)

	m := FromPlan("build-1", plan, started)

	if !m.Incremental {
		t.Error("Incremental = false for a non-full plan")
	}
	if m.Rebuilt() != 3 {
		t.Errorf("Rebuilt = %d, want 3", m.Rebuilt())
	}
	wantOrder := []string{"docs/_index.md", "docs/config.md", "docs/install.md"}
	for i, e := range m.Entries {
		if e.Key != wantOrder[i] {
			t.Errorf("Entries[%d] = %s, want %s", i, e.Key, wantOrder[i])
		}
	}
	if m.Summary[ReasonContentChanged] != 2 || m.Summary[ReasonAdjacentNav] != 1 {
		t.Errorf("Summary = %v", m.Summary)
	}
	if len(m.Skipped) != 2 || m.Skipped[0] != "_index.md" {
		t.Errorf("Skipped = %v", m.Skipped)
	}
	if len(m.Assets) != 1 || m.Assets[0].Key != "css/style.css" {
		t.Errorf("Assets = %v", m.Assets)
	}

	// Durations recorded on the plan flow into the manifest.
	plan.Entries["docs/install.md"].DurationMS = 42
	for _, e := range m.Entries {
		if e.Key == "docs/install.md" && e.DurationMS != 42 {
			t.Errorf("DurationMS = %d, want 42", e.DurationMS)
		}
	}
}

func TestManifestCacheRecord(t *testing.T) {
	m := FromPlan("build-2", testPlan(), time.Now())
	rec := m.CacheRecord("cfg-hash")

	if rec.BuildID != "build-2" || rec.Full || rec.ConfigHash != "cfg-hash" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Rebuilt != 3 || rec.Skipped != 2 {
		t.Errorf("counts = %d rebuilt, %d skipped", rec.Rebuilt, rec.Skipped)
	}
	if rec.Reasons["docs/config.md"] != string(ReasonAdjacentNav) {
		t.Errorf("Reasons = %v", rec.Reasons)
	}
}

func TestWriteExplain(t *testing.T) {
	m := FromPlan("build-3", testPlan(), time.Now())
	m.Entries[0].DurationMS = 7

	var buf bytes.Buffer
	if err := m.WriteExplain(&buf); err != nil {
		t.Fatalf("WriteExplain: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"build build-3 (incremental)",
		"rebuilt 3 page(s), skipped 2",
		"CONTENT_CHANGED",
		"ADJACENT_NAV_CHANGED",
		"docs/install.md",
		"content/docs/install.md",
		"7ms",
		"css/style.css",
		"aaaa1111",
		"cccc3333",
		"skipped 2 unchanged page(s)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("explain output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "aaaa1111bbbb2222") {
		t.Errorf("asset hashes should be truncated:\n%s", out)
	}
}

func TestWriteExplainEmptyPlan(t *testing.T) {
	plan := &Plan{Entries: map[string]*Entry{}, Skipped: []string{"a.md"}}
	m := FromPlan("build-4", plan, time.Now())

	var buf bytes.Buffer
	if err := m.WriteExplain(&buf); err != nil {
		t.Fatalf("WriteExplain: %v", err)
	}
	if !strings.Contains(buf.String(), "nothing to rebuild") {
		t.Errorf("explain output = %q", buf.String())
	}
}

func TestWriteExplainJSON(t *testing.T) {
	m := FromPlan("build-5", testPlan(), time.Now())

	var buf bytes.Buffer
	if err := m.WriteExplainJSON(&buf); err != nil {
		t.Fatalf("WriteExplainJSON: %v", err)
	}

	var decoded struct {
		BuildID     string `json:"build_id"`
		Incremental bool   `json:"incremental"`
		Entries     []struct {
			Key    string `json:"key"`
			Reason string `json:"reason"`
		} `json:"entries"`
		Assets []struct {
			Key     string `json:"key"`
			OldHash string `json:"old_hash"`
			NewHash string `json:"new_hash"`
		} `json:"asset_changes"`
		Skipped []string       `json:"skipped"`
		Summary map[string]int `json:"summary"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.BuildID != "build-5" || !decoded.Incremental {
		t.Errorf("decoded header = %+v", decoded)
	}
	if len(decoded.Entries) != 3 || decoded.Entries[0].Reason != string(ReasonContentChanged) {
		t.Errorf("decoded entries = %+v", decoded.Entries)
	}
	if decoded.Summary[string(ReasonContentChanged)] != 2 {
		t.Errorf("decoded summary = %v", decoded.Summary)
	}

	// The JSON form keeps full hashes; truncation is display-only.
	if len(decoded.Assets) != 1 || decoded.Assets[0].OldHash != "aaaa1111bbbb2222" {
		t.Errorf("decoded asset changes = %+v", decoded.Assets)
	}
}
