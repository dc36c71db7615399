package scaffold

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
)

// Seed banner dimensions. Wide enough for list-page covers, small enough
// that a fresh site builds instantly.
const (
	heroWidth  = 800
	heroHeight = 300
)

// NewSiteSeeded creates a new site (like NewSite) and then pre-populates it
// with a sample content set: a documentation section with cross-references,
// tagged blog posts, page bundles with generated cover images, and a data
// file. A fresh site then exercises the full default theme on first build.
func NewSiteSeeded(dir string) error {
	if err := NewSite(dir); err != nil {
		return err
	}
	if err := writeSiteFiles(dir, seedFiles); err != nil {
		return err
	}

	for _, b := range seedBundles {
		bdir := filepath.Join(dir, filepath.FromSlash(b.dir))
		if err := os.MkdirAll(bdir, 0o755); err != nil {
			return fmt.Errorf("creating bundle directory %s: %w", b.dir, err)
		}
		if err := os.WriteFile(filepath.Join(bdir, "index.md"), []byte(b.index), 0o644); err != nil {
			return fmt.Errorf("writing %s/index.md: %w", b.dir, err)
		}
		if err := writeHeroImage(filepath.Join(bdir, "hero.png"), b.top, b.bottom); err != nil {
			return fmt.Errorf("writing hero image for %s: %w", b.dir, err)
		}
	}
	return nil
}

// writeHeroImage renders a gradient banner with a faint dot grid, so seeded
// page bundles get a cover image without shipping binary fixtures.
func writeHeroImage(dest string, top, bottom color.RGBA) error {
	dc := gg.NewContext(heroWidth, heroHeight)

	for y := 0; y < heroHeight; y++ {
		t := float64(y) / float64(heroHeight-1)
		r := float64(top.R)*(1-t) + float64(bottom.R)*t
		g := float64(top.G)*(1-t) + float64(bottom.G)*t
		b := float64(top.B)*(1-t) + float64(bottom.B)*t
		dc.SetRGB255(int(r), int(g), int(b))
		dc.DrawRectangle(0, float64(y), heroWidth, 1)
		dc.Fill()
	}

	dc.SetColor(color.RGBA{R: 255, G: 255, B: 255, A: 26})
	const spacing = 40
	for x := spacing / 2; x < heroWidth; x += spacing {
		for y := spacing / 2; y < heroHeight; y += spacing {
			dc.DrawCircle(float64(x), float64(y), 2)
			dc.Fill()
		}
	}

	return dc.SavePNG(dest)
}

// seedBundle is one page bundle: an index.md plus a generated hero.png.
type seedBundle struct {
	dir         string
	index       string
	top, bottom color.RGBA
}

var seedFiles = []siteFile{
	// Homepage (overrides the stub written by NewSite).
	{
		path: "content/_index.md",
		content: `---
title: "Welcome"
description: "A sample Bengal site demonstrating the default theme."
---

Welcome to your new Bengal site! This sample content was created with
` + "`bengal new site --seed`" + ` so every part of the default theme has
something to render.

Start with [[docs/getting-started]], browse the blog, or read the about
page.
`,
	},
	// About page (overrides the stub written by NewSite).
	{
		path: "content/about.md",
		content: `---
title: "About"
date: 2025-06-01T09:00:00Z
description: "What this site is and how it was made."
---

This site is generated by [Bengal](https://github.com/bengal-ssg/bengal),
a static site generator written in Go. Content lives in ` + "`content/`" + `,
templates come from the embedded default theme, and ` + "`bengal serve`" + `
rebuilds the site on every save.

Replace this page with your own story.
`,
	},
	// Blog section listing.
	{
		path: "content/blog/_index.md",
		content: `---
title: "Blog"
description: "Notes on building and shipping static sites."
---
`,
	},
	// Documentation section.
	{
		path: "content/docs/_index.md",
		content: `---
title: "Documentation"
description: "Guides for building and publishing your site."
---
`,
	},
	{
		path: "content/docs/getting-started.md",
		content: `---
title: "Getting Started"
weight: 1
description: "Create a site, add a page, and preview it locally."
---

## Create a site

` + "```sh" + `
bengal new site mysite
cd mysite
bengal serve
` + "```" + `

Open [http://localhost:1313](http://localhost:1313). The dev server watches
` + "`content/`, `templates/`, and `assets/`" + ` and reloads the browser on
every save.

## Add a page

` + "```sh" + `
bengal new page docs/installation
` + "```" + `

The file lands in ` + "`content/docs/installation.md`" + ` with frontmatter
filled in. New pages start as drafts; pass ` + "`--drafts`" + ` to
` + "`bengal serve`" + ` to preview them.

## Publish

` + "`bengal build`" + ` writes the finished site to ` + "`public/`" + `.
Continue with [[docs/configuration]] to adjust the defaults.
`,
	},
	{
		path: "content/docs/configuration.md",
		content: `---
title: "Configuration"
weight: 2
description: "The bengal.yaml keys you are most likely to change."
---

Bengal reads ` + "`bengal.yaml`" + ` from the site root. Defaults cover
everything, so the file only needs the keys you want to change.

| Key | Default | Effect |
|-----|---------|--------|
| ` + "`site.title`" + ` | ` + "`\"\"`" + ` | Shown in the header and feeds |
| ` + "`site.baseurl`" + ` | ` + "`\"\"`" + ` | Absolute URL prefix for links and feeds |
| ` + "`build.output_dir`" + ` | ` + "`public`" + ` | Where the built site is written |
| ` + "`build.incremental`" + ` | ` + "`auto`" + ` | Reuse the build cache when present |
| ` + "`theme.name`" + ` | ` + "`default`" + ` | Theme directory under ` + "`themes/`" + ` |
| ` + "`assets.fingerprint`" + ` | ` + "`true`" + ` | Content-hash asset filenames |

Set ` + "`site.baseurl`" + ` to your production domain before deploying.

New here? Begin with [[Getting Started]].
`,
	},
	// Flat blog posts. Bundles with cover images are written separately.
	{
		path: "content/blog/2025-04-20-markdown-cheatsheet.md",
		content: `---
title: "A Markdown Cheatsheet"
date: 2025-04-20T11:00:00Z
tags: ["markdown", "tutorial"]
categories: ["writing"]
description: "The handful of Markdown constructs that cover most writing."
---

Markdown is the lingua franca of technical writing. These are the constructs
you will reach for every day.

## Headings

Start sections with ` + "`##`" + `. Reserve ` + "`#`" + ` for the document
title, which the template injects for you.

## Code blocks

Always name the language so syntax highlighting kicks in:

` + "```python" + `
def greet(name: str) -> str:
    return f"Hello, {name}!"
` + "```" + `

## Tables

| Feature    | Supported |
|------------|-----------|
| Tables     | Yes       |
| Footnotes  | Yes       |
| Task lists | Yes       |

## Footnotes

Cite sources without breaking the flow of a sentence.[^1]

[^1]: Like this.
`,
	},
	{
		path: "content/blog/2025-05-30-why-incremental-builds.md",
		content: `---
title: "Why Incremental Builds Matter"
date: 2025-05-30T09:00:00Z
tags: ["performance"]
categories: ["internals"]
description: "How Bengal rebuilds only the pages your edit actually touched."
---

A full rebuild re-renders every page on every save. That is fine for ten
pages and painful for a thousand. Bengal keeps a build cache under
` + "`.bengal/cache`" + ` that records, for each output, the content, template,
and data inputs it was rendered from.

On the next build, only pages whose inputs changed are re-rendered. Editing
one post re-renders that post, the lists that mention it, and nothing else.

> The fastest work is the work you skip.

Incremental mode defaults to ` + "`auto`" + `: the cache is used whenever one
is present. Pass ` + "`--force`" + ` to ` + "`bengal build`" + ` when you want
a clean slate.
`,
	},
	// Sample data file, exposed to templates as .Data.links.
	{
		path: "data/links.yaml",
		content: `- name: "Bengal on GitHub"
  url: "https://github.com/bengal-ssg/bengal"
- name: "Go"
  url: "https://go.dev"
- name: "CommonMark"
  url: "https://commonmark.org"
`,
	},
}

var seedBundles = []seedBundle{
	{
		dir: "content/blog/2025-01-15-hello-bengal",
		index: `---
title: "Hello, Bengal"
date: 2025-01-15T09:00:00Z
tags: ["bengal", "tutorial"]
categories: ["announcements"]
description: "A quick tour of the site you are looking at."
cover:
  image: hero.png
  alt: "Blue banner for Hello, Bengal"
---

![Blue banner](hero.png)

This post lives in a page bundle: a directory with an ` + "`index.md`" + `
and its resources side by side. The banner above is ` + "`hero.png`" + ` from
the same directory, copied to the output next to the rendered page.

## What you get

- **Markdown in, HTML out** with syntax highlighting and heading anchors
- **Live reload** during ` + "`bengal serve`" + `
- **Tags and categories** generating listing pages automatically
- **RSS and Atom feeds** plus a client-side search index

## Where to go next

The [[docs/getting-started]] guide walks through the everyday commands, and
[[docs/configuration]] covers the knobs.
`,
		top:    color.RGBA{R: 0x29, G: 0x63, B: 0xD0, A: 0xFF},
		bottom: color.RGBA{R: 0x12, G: 0x2C, B: 0x5E, A: 0xFF},
	},
	{
		dir: "content/blog/2025-03-05-deploying-your-site",
		index: `---
title: "Deploying Your Site"
date: 2025-03-05T08:00:00Z
tags: ["devops"]
categories: ["guides"]
description: "Ship the public/ directory to S3, Cloudflare Pages, or any CDN."
cover:
  image: hero.png
  alt: "Teal banner for Deploying Your Site"
---

![Teal banner](hero.png)

Once ` + "`bengal build`" + ` has written ` + "`public/`" + `, deploying is
just copying files.

## Amazon S3 + CloudFront

` + "`bengal deploy`" + ` syncs ` + "`public/`" + ` to an S3 bucket and
invalidates the CloudFront distribution in front of it. Configure the bucket
and distribution under ` + "`deploy:`" + ` in ` + "`bengal.yaml`" + `.

## Cloudflare Pages and Netlify

Both deploy straight from Git on their free tiers. Point them at your
repository, set the build command to ` + "`bengal build`" + ` and the output
directory to ` + "`public`" + `, and every push goes live.

## Before you ship

- Set ` + "`site.baseurl`" + ` to the production domain
- Run with ` + "`--minify`" + ` to shrink HTML, CSS, and JS
- Check the build output for unresolved reference warnings
`,
		top:    color.RGBA{R: 0x0D, G: 0x94, B: 0x88, A: 0xFF},
		bottom: color.RGBA{R: 0x06, G: 0x43, B: 0x3D, A: 0xFF},
	},
}
