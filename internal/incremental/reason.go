// Package incremental decides which pages a build must re-render. It
// fingerprints sources, maintains the dependency graph recorded by the
// render pipeline, classifies changed paths, and expands them through the
// reverse indexes into a per-page rebuild plan with a reason for every
// entry.
package incremental

// Reason explains why a page was included in a build. The values appear in
// rebuild manifests, explain output, and the cache event log.
type Reason string

const (
	ReasonContentChanged  Reason = "CONTENT_CHANGED"
	ReasonTemplateChanged Reason = "TEMPLATE_CHANGED"
	ReasonAssetChanged    Reason = "ASSET_FINGERPRINT_CHANGED"
	ReasonDataFileChanged Reason = "DATA_FILE_CHANGED"
	ReasonCascade         Reason = "CASCADE_DEPENDENCY"
	ReasonNavChanged      Reason = "NAV_CHANGED"
	ReasonCrossVersion    Reason = "CROSS_VERSION_DEPENDENCY"
	ReasonAdjacentNav     Reason = "ADJACENT_NAV_CHANGED"
	ReasonForced          Reason = "FORCED"
	ReasonOutputMissing   Reason = "OUTPUT_MISSING"
	ReasonFullRebuild     Reason = "FULL_REBUILD"
)

// Reasons lists every value in manifest display order.
func Reasons() []Reason {
	return []Reason{
		ReasonContentChanged,
		ReasonTemplateChanged,
		ReasonAssetChanged,
		ReasonDataFileChanged,
		ReasonCascade,
		ReasonNavChanged,
		ReasonCrossVersion,
		ReasonAdjacentNav,
		ReasonForced,
		ReasonOutputMissing,
		ReasonFullRebuild,
	}
}

func (r Reason) String() string { return string(r) }
