package utils

import (
	"mime"
	"path/filepath"
	"strings"
)

// text formats common in mod packs that mime does not know about
var textExts = map[string]struct{}{
	".cfg":        {},
	".conf":       {},
	".toml":       {},
	".properties": {},
	".json5":      {},
	".snbt":       {},
	".mcmeta":     {},
	".yaml":       {},
	".yml":        {},
	".md":         {},
	".txt":        {},
}

// DetectContentType guesses a Content-Type from the file name.
func DetectContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := textExts[ext]; ok {
		return "text/plain; charset=utf-8"
	}
	if ext == ".jar" {
		return "application/java-archive"
	}
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		return mimeType
	}
	return "application/octet-stream"
}
