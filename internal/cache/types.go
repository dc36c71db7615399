package cache

import (
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"
)

// InlineHTMLThreshold is the size above which rendered HTML moves out of the
// bbolt record into the content-addressed store. Small bodies stay inline to
// avoid a second read on the hot path.
const InlineHTMLThreshold = 32 * 1024

// Fingerprint identifies one observed state of a source file. Size and MTime
// are cheap pre-checks; Hash is authoritative. A file whose size and mtime
// both match its cached fingerprint is assumed unchanged without hashing.
type Fingerprint struct {
	Size  int64  `msgpack:"size"`
	MTime int64  `msgpack:"mtime"` // unix nanoseconds
	Hash  string `msgpack:"hash"`  // blake3 hex of file contents
}

// Eq reports whether two fingerprints describe the same content. Hash wins
// when both sides carry one.
func (f Fingerprint) Eq(other Fingerprint) bool {
	if f.Hash != "" && other.Hash != "" {
		return f.Hash == other.Hash
	}
	return f.Size == other.Size && f.MTime == other.MTime
}

// PageRecord caches the parse and render state of a single page keyed by its
// canonical page key. Rendered HTML under InlineHTMLThreshold is stored
// inline; larger bodies live in the content store under HTMLHash.
type PageRecord struct {
	Key         string      `msgpack:"key"`
	SourcePath  string      `msgpack:"source_path"`
	Fingerprint Fingerprint `msgpack:"fingerprint"`

	// ContentHash is the blake3 hex of the final rendered body, used for
	// output-equality checks and the bengal:content-hash meta tag.
	ContentHash string `msgpack:"content_hash"`

	InlineHTML []byte `msgpack:"inline_html,omitempty"`
	HTMLHash   string `msgpack:"html_hash,omitempty"`

	TOC      []byte   `msgpack:"toc,omitempty"`
	Links    []string `msgpack:"links,omitempty"`
	Template string   `msgpack:"template,omitempty"`

	// ParserVersion is the markdown pipeline version that produced the
	// cached body. Records from an older parser are re-parsed even when the
	// source fingerprint still matches.
	ParserVersion int `msgpack:"parser_version,omitempty"`

	// Digests the incremental classifier compares across builds: BodyHash
	// covers the raw markdown body, NavDigest the navigation-affecting
	// frontmatter keys, CascadeDigest the page's cascade block.
	BodyHash      string `msgpack:"body_hash,omitempty"`
	NavDigest     string `msgpack:"nav_digest,omitempty"`
	CascadeDigest string `msgpack:"cascade_digest,omitempty"`

	RenderedAt int64 `msgpack:"rendered_at"`
}

// Inline reports whether the record carries its HTML inline.
func (r *PageRecord) Inline() bool { return r.HTMLHash == "" }

// DepRecord holds the forward dependency edges recorded while rendering one
// page. The reverse indexes are derived from these at write time.
type DepRecord struct {
	Key       string   `msgpack:"key"`
	Templates []string `msgpack:"templates,omitempty"`
	DataFiles []string `msgpack:"data_files,omitempty"`
	Assets    []string `msgpack:"assets,omitempty"`
	Pages     []string `msgpack:"pages,omitempty"`
}

// Empty reports whether the record carries no edges at all.
func (d *DepRecord) Empty() bool {
	return len(d.Templates) == 0 && len(d.DataFiles) == 0 &&
		len(d.Assets) == 0 && len(d.Pages) == 0
}

// OutputRecord tracks where a page was last written and what the file hashed
// to, so missing or tampered outputs can be detected without re-rendering.
type OutputRecord struct {
	Key       string   `msgpack:"key"`
	Path      string   `msgpack:"path"`
	Hash      string   `msgpack:"hash"`
	Size      int64    `msgpack:"size"`
	WrittenAt int64    `msgpack:"written_at"`
	Aliases   []string `msgpack:"aliases,omitempty"`
}

// AssetRecord caches the fingerprinted name of a processed asset so
// unchanged assets skip minification and image processing on rebuilds.
type AssetRecord struct {
	Source      string      `msgpack:"source"`
	Fingerprint Fingerprint `msgpack:"fingerprint"`
	Output      string      `msgpack:"output"`
	Hashed      string      `msgpack:"hashed"` // fingerprinted public name
	Variants    []string    `msgpack:"variants,omitempty"`
}

// Manifest records what one build decided and why, keyed by the build's
// UUID. Reasons is pageKey -> rebuild reason string.
type Manifest struct {
	BuildID    string            `msgpack:"build_id"`
	StartedAt  int64             `msgpack:"started_at"`
	FinishedAt int64             `msgpack:"finished_at"`
	Full       bool              `msgpack:"full"`
	ConfigHash string            `msgpack:"config_hash"`
	Reasons    map[string]string `msgpack:"reasons,omitempty"`
	Rebuilt    int               `msgpack:"rebuilt"`
	Skipped    int               `msgpack:"skipped"`
}

// Event is one entry in the bounded invalidation log. Seq is assigned from
// the bucket sequence at append time.
type Event struct {
	Seq     uint64 `msgpack:"seq"`
	Time    int64  `msgpack:"time"`
	Kind    string `msgpack:"kind"` // invalidate, evict, reset, commit
	Key     string `msgpack:"key,omitempty"`
	Reason  string `msgpack:"reason,omitempty"`
	BuildID string `msgpack:"build_id,omitempty"`
}

// Stats summarizes cache contents for `bengal cache stats` and debug output.
type Stats struct {
	Pages        int   `msgpack:"pages"`
	Fingerprints int   `msgpack:"fingerprints"`
	Outputs      int   `msgpack:"outputs"`
	Assets       int   `msgpack:"assets"`
	Events       int   `msgpack:"events"`
	StoreObjects int   `msgpack:"store_objects"`
	StoreBytes   int64 `msgpack:"store_bytes"`
}

// HashContent returns the blake3 hex digest of data.
func HashContent(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Encode serializes a record with msgpack.
func Encode(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}
	return data, nil
}

// Decode deserializes a msgpack record into v.
func Decode(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("msgpack decode: %w", err)
	}
	return nil
}
