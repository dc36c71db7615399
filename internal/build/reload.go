package build

import "sort"

// ReloadAction tells a connected dev-server client what to do after a build.
type ReloadAction string

const (
	// ReloadNone means nothing the browser can see changed.
	ReloadNone ReloadAction = "none"
	// ReloadCSS means only stylesheets changed; clients swap them in place
	// without a navigation.
	ReloadCSS ReloadAction = "reload-css"
	// ReloadFull means at least one non-CSS output changed.
	ReloadFull ReloadAction = "reload"
)

// ReloadDecision is the outcome of diffing a build's outputs against the
// previous build's snapshot.
type ReloadDecision struct {
	Action  ReloadAction `json:"action"`
	Changed []string     `json:"changed,omitempty"`
	CSS     []string     `json:"css,omitempty"`
}

// DecideReload compares the files a build wrote against the output snapshot
// recorded by the previous build. A write whose content hash matches the
// snapshot does not count as a change. All changes CSS means the client can
// hot-swap stylesheets; anything else forces a full reload; no changes at
// all means the browser has nothing to do.
func DecideReload(prev map[string]string, recs []OutputRecord) ReloadDecision {
	d := ReloadDecision{Action: ReloadNone}
	cssOnly := true
	for _, r := range recs {
		if prev[r.Path] == r.Hash {
			continue
		}
		d.Changed = append(d.Changed, r.Path)
		if r.Kind == KindCSS {
			d.CSS = append(d.CSS, r.Path)
		} else {
			cssOnly = false
		}
	}
	if len(d.Changed) == 0 {
		return d
	}
	sort.Strings(d.Changed)
	sort.Strings(d.CSS)
	if cssOnly {
		d.Action = ReloadCSS
	} else {
		d.Action = ReloadFull
		d.CSS = nil
	}
	return d
}
