package content

import (
	"path/filepath"
	"strings"
)

// AssetType classifies an asset by extension.
type AssetType string

const (
	AssetCSS   AssetType = "css"
	AssetJS    AssetType = "js"
	AssetImage AssetType = "image"
	AssetFont  AssetType = "font"
	AssetData  AssetType = "data"
	AssetOther AssetType = "other"
)

// Asset is a non-Markdown file copied or transformed into the output tree.
type Asset struct {
	SourcePath string // absolute path on disk
	Key        string // assets-relative slash path (e.g., "css/style.css")
	Type       AssetType
	OutputPath string // output-relative path, set by the asset pipeline
	Hash       string // content hash, set when fingerprinting is enabled
	// FingerprintedName is the hashed filename (e.g., "style.4f2a91cd.css"),
	// empty when fingerprinting is disabled.
	FingerprintedName string
}

// URL returns the asset's output URL, honoring the fingerprinted name when
// one was assigned.
func (a *Asset) URL() string {
	if a.OutputPath != "" {
		return "/" + filepath.ToSlash(a.OutputPath)
	}
	return "/" + a.Key
}

// AssetTypeFor maps a filename to its asset type.
func AssetTypeFor(name string) AssetType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".css":
		return AssetCSS
	case ".js", ".mjs":
		return AssetJS
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".ico", ".avif":
		return AssetImage
	case ".woff", ".woff2", ".ttf", ".otf", ".eot":
		return AssetFont
	case ".json", ".yaml", ".yml", ".toml", ".csv", ".xml":
		return AssetData
	default:
		return AssetOther
	}
}
