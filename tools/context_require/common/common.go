package common

import (
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
)

// Loaders maps module file extensions to the esbuild loader used to turn
// them into CommonJS before execution. Extensions missing from the table are
// executed as plain CommonJS.
var Loaders = map[string]api.Loader{
	".js":   api.LoaderJS,
	".cjs":  api.LoaderJS,
	".mjs":  api.LoaderJS,
	".jsx":  api.LoaderJSX,
	".ts":   api.LoaderTS,
	".cts":  api.LoaderTS,
	".mts":  api.LoaderTS,
	".tsx":  api.LoaderTSX,
	".json": api.LoaderJSON,
	".txt":  api.LoaderText,
	".md":   api.LoaderText,
}

// LoaderForFile returns the esbuild loader for a given file path.
func LoaderForFile(path string) api.Loader {
	if loader, ok := Loaders[filepath.Ext(path)]; ok {
		return loader
	}
	return api.LoaderJS
}

// NeedsTransform reports whether files handled by loader must go through
// esbuild before they can run as CommonJS.
func NeedsTransform(loader api.Loader) bool {
	switch loader {
	case api.LoaderTS, api.LoaderTSX, api.LoaderJSX, api.LoaderText:
		return true
	}
	return false
}

// Unique returns items with later duplicates removed, keeping order.
func Unique(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
