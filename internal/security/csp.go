// Package security builds Content-Security-Policy values and the nonces that
// authorize inline scripts. The dev server applies DevPolicy per response;
// deploy pushes ProdPolicy to the edge as a response headers policy.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/bengal-ssg/bengal/internal/config"
)

// GenerateNonce produces a 16-byte cryptographically random nonce,
// returned base64-encoded.
func GenerateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// CSPPolicy holds the directives for a Content-Security-Policy header.
type CSPPolicy struct {
	DefaultSrc  []string
	ScriptSrc   []string
	StyleSrc    []string
	ImgSrc      []string
	FontSrc     []string
	ConnectSrc  []string
	ManifestSrc []string
	BaseURI     []string
	FormAction  []string
	FrameAnc    []string
}

// String serializes the policy to a CSP header value, skipping empty
// directives.
func (p *CSPPolicy) String() string {
	var directives []string
	add := func(name string, values []string) {
		if len(values) > 0 {
			directives = append(directives, name+" "+strings.Join(values, " "))
		}
	}
	add("default-src", p.DefaultSrc)
	add("script-src", p.ScriptSrc)
	add("style-src", p.StyleSrc)
	add("img-src", p.ImgSrc)
	add("font-src", p.FontSrc)
	add("connect-src", p.ConnectSrc)
	add("manifest-src", p.ManifestSrc)
	add("base-uri", p.BaseURI)
	add("form-action", p.FormAction)
	add("frame-ancestors", p.FrameAnc)
	return strings.Join(directives, "; ")
}

// DevPolicy returns the CSP applied by the development server. The nonce
// authorizes the injected live-reload script; connect-src admits the reload
// WebSocket under whichever host the site is reached by.
func DevPolicy(nonce string) *CSPPolicy {
	return &CSPPolicy{
		DefaultSrc:  []string{"'none'"},
		ScriptSrc:   []string{"'self'", fmt.Sprintf("'nonce-%s'", nonce)},
		StyleSrc:    []string{"'self'", "'unsafe-inline'"},
		ImgSrc:      []string{"'self'", "data:"},
		FontSrc:     []string{"'self'"},
		ConnectSrc:  []string{"'self'", "ws:", "wss:"},
		ManifestSrc: []string{"'self'"},
		BaseURI:     []string{"'self'"},
		FormAction:  []string{"'self'"},
		FrameAnc:    []string{"'none'"},
	}
}

// ProdPolicy returns the CSP deployed with the published site. Inline scripts
// carry no nonce in production, so they must be externalized. Extra sources
// from the deploy configuration are appended.
func ProdPolicy(extra *config.CSPConfig) *CSPPolicy {
	p := &CSPPolicy{
		DefaultSrc:  []string{"'none'"},
		ScriptSrc:   []string{"'self'"},
		StyleSrc:    []string{"'self'", "'unsafe-inline'"},
		ImgSrc:      []string{"'self'", "data:"},
		FontSrc:     []string{"'self'"},
		ConnectSrc:  []string{"'self'"},
		ManifestSrc: []string{"'self'"},
		BaseURI:     []string{"'self'"},
		FormAction:  []string{"'self'"},
		FrameAnc:    []string{"'none'"},
	}
	if extra != nil {
		p.ScriptSrc = append(p.ScriptSrc, extra.ScriptSrc...)
		p.StyleSrc = append(p.StyleSrc, extra.StyleSrc...)
		p.ImgSrc = append(p.ImgSrc, extra.ImgSrc...)
		p.FontSrc = append(p.FontSrc, extra.FontSrc...)
		p.ConnectSrc = append(p.ConnectSrc, extra.ConnectSrc...)
	}
	return p
}
