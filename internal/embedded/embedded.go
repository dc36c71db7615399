// Package embedded carries the built-in default theme: enough templates and
// CSS to render any site with no theme configured. Theme and project
// templates override these name-by-name through the engine's layering.
package embedded

import (
	"embed"
	"io/fs"
)

//go:embed templates assets
var themeFS embed.FS

// Templates returns the default template tree. Names are engine-relative:
// index.html, _default/single.html, partials/head.html, and so on.
func Templates() fs.FS {
	sub, err := fs.Sub(themeFS, "templates")
	if err != nil {
		panic("embedded templates missing: " + err.Error())
	}
	return sub
}

// Assets returns the default theme's static files. Paths map directly
// beneath the output assets/ directory.
func Assets() fs.FS {
	sub, err := fs.Sub(themeFS, "assets")
	if err != nil {
		panic("embedded assets missing: " + err.Error())
	}
	return sub
}
