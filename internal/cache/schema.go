package cache

// Bucket names. Composite-key buckets use "<dep>/<pageKey>" keys with empty
// values and are scanned by prefix.
const (
	// Core buckets
	BucketPages        = "pages"        // {pageKey} -> PageRecord
	BucketFingerprints = "fingerprints" // {path} -> Fingerprint
	BucketDeps         = "deps"         // {pageKey} -> DepRecord
	BucketOutputs      = "outputs"      // {pageKey} -> OutputRecord
	BucketAssets       = "assets"       // {assetKey} -> AssetRecord

	// Reverse dependency indexes (set-based, value is empty)
	BucketRevTemplates = "rev_templates" // {template}/{pageKey} -> empty
	BucketRevData      = "rev_data"      // {dataPath}/{pageKey} -> empty
	BucketRevAssets    = "rev_assets"    // {assetKey}/{pageKey} -> empty
	BucketRevPages     = "rev_pages"     // {targetKey}/{pageKey} -> empty

	// Build history
	BucketManifests = "manifests" // {buildID} -> Manifest
	BucketEvents    = "events"    // {seq BigEndian} -> Event

	// Global metadata
	BucketMeta = "meta" // schema_version, cache_id, config_hash, ...

	// Meta keys
	KeySchemaVersion    = "schema_version"
	KeyCacheID          = "cache_id"
	KeyConfigHash       = "config_hash"
	KeyNavSignature     = "nav_signature"
	KeyTaxonomySnapshot = "taxonomy_snapshot"
	KeyOutputSnapshot   = "output_snapshot"
	KeyLastBuildID      = "last_build_id"
	KeyBuildCount       = "build_count"
)

// SchemaVersion is bumped whenever record layouts change incompatibly; a
// mismatch discards the cache and forces a full build.
const SchemaVersion = 1

// MaxEvents bounds the invalidation event log; the oldest entries are
// dropped first.
const MaxEvents = 10000

// AllBuckets returns all bucket names for initialization.
func AllBuckets() []string {
	return []string{
		BucketPages,
		BucketFingerprints,
		BucketDeps,
		BucketOutputs,
		BucketAssets,
		BucketRevTemplates,
		BucketRevData,
		BucketRevAssets,
		BucketRevPages,
		BucketManifests,
		BucketEvents,
		BucketMeta,
	}
}
