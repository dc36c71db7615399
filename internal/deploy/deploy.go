// Package deploy syncs the rendered site to an S3 bucket, optionally fronted
// by a CloudFront distribution.
//
// Change detection compares SHA-256 content hashes recorded in a manifest
// object stored in the bucket itself. S3 ETags are not usable for this:
// multipart uploads and server-side encryption both break the ETag-is-MD5
// assumption, so the object listing only establishes which keys exist and
// the manifest carries the hashes.
package deploy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileEntry is one file under the output directory, keyed the way it will be
// stored in the bucket.
type FileEntry struct {
	Path         string // slash-separated key relative to the output dir
	ContentType  string
	CacheControl string
	Hash         string // hex SHA-256 of the file content
}

// Plan is the computed difference between the local output directory and the
// bucket's recorded state.
type Plan struct {
	Dir     string      // output directory the plan was built from
	Uploads []FileEntry // new or changed files
	Deletes []string    // remote keys with no local counterpart
	Skipped int         // local files already up to date

	remote map[string]string // remote key -> hash at plan time
}

// Changed reports whether applying the plan would mutate the bucket.
func (p *Plan) Changed() bool {
	return len(p.Uploads) > 0 || len(p.Deletes) > 0
}

// Result summarizes an applied plan. Per-file failures are collected in
// Errors; the sync continues past them.
type Result struct {
	Uploaded int
	Deleted  int
	Skipped  int
	Errors   []error
}

// S3Client is the bucket surface the deployer needs.
type S3Client interface {
	PutObject(ctx context.Context, key string, body io.Reader, contentType, cacheControl, sha256Hash string) error
	DeleteObject(ctx context.Context, key string) error
	// RemoteState returns every content key in the bucket mapped to the
	// hash recorded for it in the deploy manifest. Keys the manifest does
	// not cover map to the empty string, which never matches a local hash.
	RemoteState(ctx context.Context) (map[string]string, error)
	// PutManifest replaces the deploy manifest with the given key -> hash
	// set.
	PutManifest(ctx context.Context, hashes map[string]string) error
}

// CloudFrontClient creates cache invalidations.
type CloudFrontClient interface {
	CreateInvalidation(ctx context.Context, distributionID string, paths []string) error
}

// CloudFrontFunctionClient manages the viewer-request function that rewrites
// clean URLs to their index.html objects.
type CloudFrontFunctionClient interface {
	// EnsureURLRewriteFunction creates or updates the named function,
	// publishes it, and associates it with the distribution's default
	// cache behavior. Returns the function ARN.
	EnsureURLRewriteFunction(ctx context.Context, distributionID, functionName, functionCode string) (string, error)
}

// HeadersPolicyClient manages the response headers policy that applies the
// security header set at the edge.
type HeadersPolicyClient interface {
	EnsureResponseHeadersPolicy(ctx context.Context, distributionID string, cfg ResponseHeadersConfig) error
}

// Options configure a Deployer beyond its AWS clients.
type Options struct {
	Distribution string // CloudFront distribution ID; empty disables all edge steps
	URLRewrite   bool   // manage the index.html rewrite function
	Headers      bool   // manage the security response headers policy
	CSP          string // Content-Security-Policy value for the headers policy
	Logger       *slog.Logger
}

// Deployer plans and applies bucket syncs.
type Deployer struct {
	s3      S3Client
	cf      CloudFrontClient
	fn      CloudFrontFunctionClient
	headers HeadersPolicyClient
	opts    Options
	log     *slog.Logger
}

// NewDeployer wires a Deployer. The CloudFront clients may be nil when no
// distribution is configured.
func NewDeployer(s3 S3Client, cf CloudFrontClient, fn CloudFrontFunctionClient, headers HeadersPolicyClient, opts Options) *Deployer {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Deployer{s3: s3, cf: cf, fn: fn, headers: headers, opts: opts, log: log}
}

// BuildPlan scans dir and diffs it against the bucket's recorded state.
func (d *Deployer) BuildPlan(ctx context.Context, dir string) (*Plan, error) {
	local, err := ScanFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	remote, err := d.s3.RemoteState(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading remote state: %w", err)
	}
	uploads, deletes := Diff(local, remote)

	return &Plan{
		Dir:     dir,
		Uploads: uploads,
		Deletes: deletes,
		Skipped: len(local) - len(uploads),
		remote:  remote,
	}, nil
}

// Apply executes the plan: uploads and deletes first, then the manifest
// write, then the CloudFront steps. The manifest is rebuilt from the remote
// state plus the mutations that actually succeeded, so the next plan diffs
// against the bucket's real contents even after a partial failure.
func (d *Deployer) Apply(ctx context.Context, plan *Plan) (*Result, error) {
	res := &Result{Skipped: plan.Skipped}

	manifest := make(map[string]string, len(plan.remote)+len(plan.Uploads))
	for key, hash := range plan.remote {
		manifest[key] = hash
	}

	for _, entry := range plan.Uploads {
		if err := d.upload(ctx, plan.Dir, entry); err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		manifest[entry.Path] = entry.Hash
		res.Uploaded++
		d.log.Debug("uploaded", "key", entry.Path, "type", entry.ContentType)
	}

	for _, key := range plan.Deletes {
		if err := d.s3.DeleteObject(ctx, key); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("deleting %s: %w", key, err))
			continue
		}
		delete(manifest, key)
		res.Deleted++
		d.log.Debug("deleted", "key", key)
	}

	if plan.Changed() {
		if err := d.s3.PutManifest(ctx, manifest); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("writing manifest: %w", err))
		}
	}

	if d.opts.Distribution != "" {
		d.applyEdge(ctx, plan, res)
	}
	return res, nil
}

// applyEdge runs the CloudFront steps. The function and headers policy are
// ensured on every apply so configuration drift heals itself; invalidations
// only happen when the bucket actually changed.
func (d *Deployer) applyEdge(ctx context.Context, plan *Plan, res *Result) {
	dist := d.opts.Distribution

	if d.opts.URLRewrite && d.fn != nil {
		arn, err := d.fn.EnsureURLRewriteFunction(ctx, dist, urlRewriteFunctionName, URLRewriteFunctionCode)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("url rewrite function: %w", err))
		} else {
			d.log.Debug("url rewrite function live", "arn", arn)
		}
	}

	if d.opts.Headers && d.headers != nil {
		if err := d.headers.EnsureResponseHeadersPolicy(ctx, dist, DefaultResponseHeaders(d.opts.CSP)); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("response headers policy: %w", err))
		} else {
			d.log.Debug("response headers policy ensured", "distribution", dist)
		}
	}

	if plan.Changed() && d.cf != nil {
		if err := d.cf.CreateInvalidation(ctx, dist, []string{"/*"}); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("invalidation: %w", err))
		} else {
			d.log.Info("invalidated distribution", "id", dist)
		}
	}
}

func (d *Deployer) upload(ctx context.Context, dir string, entry FileEntry) error {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(entry.Path)))
	if err != nil {
		return fmt.Errorf("opening %s: %w", entry.Path, err)
	}
	defer f.Close()

	if err := d.s3.PutObject(ctx, entry.Path, f, entry.ContentType, entry.CacheControl, entry.Hash); err != nil {
		return fmt.Errorf("uploading %s: %w", entry.Path, err)
	}
	return nil
}

// ScanFiles walks the output directory and returns an entry per file, in
// lexical key order.
func ScanFiles(dir string) ([]FileEntry, error) {
	var entries []FileEntry

	err := filepath.WalkDir(dir, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return fmt.Errorf("relativizing %s: %w", path, err)
		}
		hash, err := HashFile(path)
		if err != nil {
			return err
		}

		ext := filepath.Ext(path)
		entries = append(entries, FileEntry{
			Path:         filepath.ToSlash(rel),
			ContentType:  ContentTypeForExt(ext),
			CacheControl: CacheControlForExt(ext),
			Hash:         hash,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning files: %w", err)
	}
	return entries, nil
}

// Diff splits local files into those needing upload and remote keys needing
// deletion. A remote hash of "" (key present but not in the manifest) never
// matches, forcing a re-upload that repairs the manifest entry.
func Diff(local []FileEntry, remote map[string]string) (uploads []FileEntry, deletes []string) {
	localSet := make(map[string]struct{}, len(local))
	for _, entry := range local {
		localSet[entry.Path] = struct{}{}
		if remote[entry.Path] != entry.Hash {
			uploads = append(uploads, entry)
		}
	}
	for key := range remote {
		if _, ok := localSet[key]; !ok {
			deletes = append(deletes, key)
		}
	}
	sort.Strings(deletes)
	return uploads, deletes
}

// HashFile returns the hex SHA-256 of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ContentTypeForExt maps a file extension (with leading dot) to the MIME
// type sent as Content-Type. Types the generator emits are pinned here so a
// host's mime registry cannot change them; anything else falls back to the
// platform lookup.
func ContentTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js", ".mjs":
		return "application/javascript; charset=utf-8"
	case ".json":
		return "application/json; charset=utf-8"
	case ".xml":
		return "application/xml; charset=utf-8"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".avif":
		return "image/avif"
	case ".ico":
		return "image/x-icon"
	case ".woff":
		return "font/woff"
	case ".woff2":
		return "font/woff2"
	case ".ttf":
		return "font/ttf"
	case ".otf":
		return "font/otf"
	case ".pdf":
		return "application/pdf"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mp3":
		return "audio/mpeg"
	case ".wasm":
		return "application/wasm"
	}

	if ct := mime.TypeByExtension(strings.ToLower(ext)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// CacheControlForExt maps a file extension (with leading dot) to the
// Cache-Control header stored on the object. HTML must revalidate on every
// request since page URLs are stable across content changes; fingerprinted
// CSS and JS are immutable; images get a day; everything else an hour.
func CacheControlForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".html", ".htm":
		return "public, max-age=0, must-revalidate"
	case ".css", ".js", ".mjs":
		return "public, max-age=31536000, immutable"
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".avif", ".svg", ".ico":
		return "public, max-age=86400"
	default:
		return "public, max-age=3600"
	}
}
