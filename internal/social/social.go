// Package social renders the og:image preview cards for pages. Every input
// to a card comes from the page and the site config, never from the clock,
// so rebuilding an unchanged page reproduces identical bytes and the output
// collector skips the write.
package social

import (
	"bytes"
	"fmt"
	"image/color"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/content"
)

const (
	cardWidth  = 1200
	cardHeight = 630

	marginX   = 80.0
	headerY   = 96.0
	titleY    = 210.0
	titleSize = 72.0
	descSize  = 34.0
	brandSize = 30.0
	dateSize  = 26.0
)

// Card palette. social_cards.font_path swaps the typography, not the colors.
var (
	bgTop     = color.NRGBA{R: 0x1a, G: 0x1a, B: 0x2e, A: 0xff}
	bgBottom  = color.NRGBA{R: 0x16, G: 0x21, B: 0x3e, A: 0xff}
	accent    = color.NRGBA{R: 0xe9, G: 0x4e, B: 0x77, A: 0xff}
	textMain  = color.NRGBA{R: 0xf5, G: 0xf5, B: 0xf5, A: 0xff}
	textFaded = color.NRGBA{R: 0xf5, G: 0xf5, B: 0xf5, A: 0xbf}
	dotColor  = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0x12}
)

// Generator draws cards for one build. Fonts are parsed once at
// construction; Card itself is cheap enough to call per page.
type Generator struct {
	cfg     *config.Config
	regular *truetype.Font
	bold    *truetype.Font
	format  string
}

// NewGenerator parses the card fonts and validates the output format. With
// no social_cards.font_path the builtin Go fonts are used; a configured path
// replaces both weights.
func NewGenerator(cfg *config.Config) (*Generator, error) {
	g := &Generator{cfg: cfg}

	switch f := strings.ToLower(cfg.SocialCards.Format); f {
	case "", "png":
		g.format = "png"
	case "webp":
		g.format = "webp"
	default:
		return nil, fmt.Errorf("unsupported card format %q (want png or webp)", f)
	}

	if path := cfg.SocialCards.FontPath; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading card font: %w", err)
		}
		f, err := truetype.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parsing card font %s: %w", path, err)
		}
		g.regular, g.bold = f, f
		return g, nil
	}

	reg, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing builtin regular font: %w", err)
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing builtin bold font: %w", err)
	}
	g.regular, g.bold = reg, bold
	return g, nil
}

// Card renders the page's card and returns the encoded image along with its
// output-relative path.
func (g *Generator) Card(p *content.Page) ([]byte, string, error) {
	dc := gg.NewContext(cardWidth, cardHeight)

	drawBackground(dc)
	drawDots(dc)

	// Accent rule between the header and the title block.
	dc.SetColor(accent)
	dc.DrawRectangle(marginX, titleY-58, 120, 6)
	dc.Fill()

	// Site name top left, date top right.
	dc.SetFontFace(g.face(g.bold, brandSize))
	dc.SetColor(textMain)
	dc.DrawString(g.cfg.Site.Title, marginX, headerY)

	if !p.Date.IsZero() {
		dc.SetFontFace(g.face(g.regular, dateSize))
		dc.SetColor(textFaded)
		date := p.Date.Format("January 2, 2006")
		w, _ := dc.MeasureString(date)
		dc.DrawString(date, cardWidth-marginX-w, headerY)
	}

	title := p.Title
	if title == "" {
		title = g.cfg.Site.Title
	}
	maxWidth := cardWidth - marginX*2
	dc.SetFontFace(g.face(g.bold, titleSize))
	dc.SetColor(textMain)
	dc.DrawStringWrapped(title, marginX, titleY, 0, 0, maxWidth, 1.15, gg.AlignLeft)

	lines := len(dc.WordWrap(title, maxWidth))
	descY := titleY + float64(lines)*titleSize*1.15 + 40

	desc := content.MetaDescription(p.Summary, 160)
	if desc == "" {
		desc = content.MetaDescription(g.cfg.Site.Description, 160)
	}
	if desc != "" && descY < cardHeight-120 {
		dc.SetFontFace(g.face(g.regular, descSize))
		dc.SetColor(textFaded)
		dc.DrawStringWrapped(desc, marginX, descY, 0, 0, maxWidth, 1.4, gg.AlignLeft)
	}

	var buf bytes.Buffer
	var err error
	switch g.format {
	case "webp":
		err = webp.Encode(&buf, dc.Image(), &webp.Options{Lossless: false, Quality: 85})
	default:
		err = dc.EncodePNG(&buf)
	}
	if err != nil {
		return nil, "", fmt.Errorf("encoding card: %w", err)
	}
	return buf.Bytes(), g.relPath(p), nil
}

func (g *Generator) face(f *truetype.Font, points float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{Size: points, DPI: 72})
}

// relPath places cards under social/ with a slug derived from the page URL,
// so /posts/first/ maps to social/posts-first.png.
func (g *Generator) relPath(p *content.Page) string {
	slug := strings.Trim(p.URL, "/")
	if slug == "" {
		slug = "index"
	}
	slug = strings.ReplaceAll(slug, "/", "-")
	return "social/" + slug + "." + g.format
}

// drawBackground paints a vertical two-stop gradient, one strip per row.
func drawBackground(dc *gg.Context) {
	for y := 0; y < cardHeight; y++ {
		t := float64(y) / float64(cardHeight-1)
		r := float64(bgTop.R)*(1-t) + float64(bgBottom.R)*t
		gr := float64(bgTop.G)*(1-t) + float64(bgBottom.G)*t
		b := float64(bgTop.B)*(1-t) + float64(bgBottom.B)*t
		dc.SetRGB255(int(r), int(gr), int(b))
		dc.DrawRectangle(0, float64(y), cardWidth, 1)
		dc.Fill()
	}
}

// drawDots overlays a faint dot grid so large flat areas read as texture in
// small link previews.
func drawDots(dc *gg.Context) {
	dc.SetColor(dotColor)
	const spacing = 36
	for x := spacing / 2; x < cardWidth; x += spacing {
		for y := spacing / 2; y < cardHeight; y += spacing {
			dc.DrawCircle(float64(x), float64(y), 2)
			dc.Fill()
		}
	}
}
