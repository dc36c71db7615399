package render

import "github.com/bengal-ssg/bengal/internal/incremental"

// trackerSink forwards the edges template functions observe into the
// dependency tracker. The tracker is already safe for concurrent use.
type trackerSink struct {
	t *incremental.Tracker
}

func (s trackerSink) Template(pageKey, name string) { s.t.AddTemplate(pageKey, name) }
func (s trackerSink) Asset(pageKey, assetKey string) {
	s.t.AddAsset(pageKey, assetKey)
}
func (s trackerSink) Data(pageKey, name string)      { s.t.AddData(pageKey, name) }
func (s trackerSink) Page(pageKey, targetKey string) { s.t.AddPage(pageKey, targetKey) }
