// Package scaffold creates new Bengal sites and content files on disk.
package scaffold

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// nowFunc is the function used to get the current time.
// It is a package-level variable so tests can override it.
var nowFunc = time.Now

var (
	multiHyphen  = regexp.MustCompile(`-{2,}`)
	datePrefixRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-`)
)

// Slugify converts a title string into a URL-friendly slug.
// It lowercases the input, replaces spaces with hyphens, strips characters
// that are not letters, digits, or hyphens, collapses multiple hyphens,
// and trims leading/trailing hyphens. Unicode letters are preserved.
func Slugify(title string) string {
	// Normalize Unicode to NFC form (e.g., combining accents become precomposed).
	s := norm.NFC.String(title)
	s = strings.ToLower(s)

	// Replace spaces and underscores with hyphens.
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")

	// Keep only letters, digits, and hyphens.
	var buf strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			buf.WriteRune(r)
		}
	}
	s = multiHyphen.ReplaceAllString(buf.String(), "-")

	return strings.Trim(s, "-")
}

// TitleFromPath derives a human-readable title from a content path:
// "docs/getting-started.md" becomes "Getting Started". A leading
// YYYY-MM-DD- date prefix is dropped, and index files take their title
// from the directory that contains them.
func TitleFromPath(p string) string {
	p = filepath.ToSlash(p)
	base := strings.TrimSuffix(path.Base(p), path.Ext(p))
	if base == "index" || base == "_index" {
		if dir := path.Dir(p); dir != "." && dir != "/" {
			base = path.Base(dir)
		} else {
			base = "Home"
		}
	}
	base = datePrefixRe.ReplaceAllString(base, "")
	base = strings.ReplaceAll(base, "-", " ")
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return ""
	}
	return cases.Title(language.English).String(base)
}

// NewSite creates a new site at dir with a starter bengal.yaml, sample
// content, and the standard directory layout. It returns an error if the
// path already exists.
func NewSite(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("directory %q already exists", dir)
	}

	dirs := []string{
		filepath.Join(dir, "content", "blog"),
		filepath.Join(dir, "templates"),
		filepath.Join(dir, "assets"),
		filepath.Join(dir, "data"),
		filepath.Join(dir, "themes"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating directory %q: %w", d, err)
		}
	}

	now := nowFunc()
	title := filepath.Base(dir)

	files := []siteFile{
		{"bengal.yaml", fmt.Sprintf(siteConfig, title)},
		{".gitignore", gitignore},
		{"content/_index.md", homeStub},
		{"content/about.md", fmt.Sprintf(aboutStub, now.Format(time.RFC3339))},
		{"content/blog/_index.md", blogIndexStub},
		{
			"content/blog/" + now.Format("2006-01-02") + "-hello-world.md",
			fmt.Sprintf(firstPostStub, now.Format(time.RFC3339)),
		},
	}
	return writeSiteFiles(dir, files)
}

// NewPage scaffolds a Markdown page inside the site rooted at root. The
// name is a content-relative path such as "docs/getting-started" or
// "blog/2025-06-01-release.md"; the .md extension is added when missing,
// a leading content/ is tolerated, and the final path segment is slugified.
// The created file's path relative to root is returned.
func NewPage(root, name string) (string, error) {
	rel, title, err := pagePath(name)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(root, filepath.FromSlash(rel))
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("page %s already exists", rel)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", rel, err)
	}

	body := fmt.Sprintf(pageStub, title, nowFunc().Format(time.RFC3339))
	if err := os.WriteFile(dst, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", rel, err)
	}
	return rel, nil
}

// pagePath normalizes a user-supplied page name into a content-relative
// slash path ending in .md, plus the title derived from it.
func pagePath(name string) (rel, title string, err error) {
	clean := path.Clean(filepath.ToSlash(strings.TrimSpace(name)))
	if clean == "" || clean == "." || clean == ".." ||
		strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return "", "", fmt.Errorf("invalid page path %q", name)
	}
	clean = strings.TrimPrefix(clean, "content/")

	ext := path.Ext(clean)
	if ext != "" && ext != ".md" {
		return "", "", fmt.Errorf("page %q must be a Markdown file", name)
	}
	base := strings.TrimSuffix(path.Base(clean), ext)

	// _index and index are structural names; slugifying them would turn a
	// section index into an ordinary page.
	slug := base
	if base != "index" && base != "_index" {
		slug = Slugify(base)
	}
	if slug == "" {
		return "", "", fmt.Errorf("cannot derive a file name from %q", name)
	}

	title = TitleFromPath(clean)
	rel = slug + ".md"
	if dir := path.Dir(clean); dir != "." {
		rel = dir + "/" + rel
	}
	return "content/" + rel, title, nil
}

// siteFile is one scaffolded file: a root-relative slash path and its body.
type siteFile struct {
	path    string
	content string
}

func writeSiteFiles(root string, files []siteFile) error {
	for _, f := range files {
		dst := filepath.Join(root, filepath.FromSlash(f.path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", f.path, err)
		}
		if err := os.WriteFile(dst, []byte(f.content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", f.path, err)
		}
	}
	return nil
}

const siteConfig = `# Site configuration. Every key is optional; defaults apply to anything
# left out.
site:
  title: %q
  baseurl: "http://localhost:1313"
  language: "en"
  description: ""
  author: ""

theme:
  name: "default"

build:
  output_dir: "public"
  # auto reuses the build cache when one is present. Set true or false to
  # force the choice.
  incremental: auto

menu:
  main:
    - name: "Home"
      url: "/"
      weight: 1
    - name: "Blog"
      url: "/blog/"
      weight: 2
    - name: "About"
      url: "/about/"
      weight: 3
`

const gitignore = `/public/
/.bengal/
`

const homeStub = `---
title: "Welcome"
---

Welcome to your new Bengal site. This is the homepage; edit
` + "`content/_index.md`" + ` to change it, or create your first post with:

` + "```sh" + `
bengal new page blog/my-first-post
` + "```" + `
`

const aboutStub = `---
title: "About"
date: %s
description: ""
---

Write something about yourself or this site here.
`

const blogIndexStub = `---
title: "Blog"
description: ""
---
`

const firstPostStub = `---
title: "Hello World"
date: %s
draft: true
tags: []
categories: []
description: ""
---

Write your post content here. Drafts are skipped by ` + "`bengal build`" + `;
preview them with ` + "`bengal serve --drafts`" + `.
`

const pageStub = `---
title: %q
date: %s
draft: true
description: ""
---

Write your page content here.
`
