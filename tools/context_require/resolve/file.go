package resolve

import (
	"os"
	"path/filepath"
)

// resolveFile resolves a path candidate: the file itself, then the file with
// each extension appended, then, for directories, the directory's package
// entry or its index file.
func (s *session) resolveFile(file string) (Resolution, bool) {
	info, err := os.Stat(file)
	if err == nil && info.Mode().IsRegular() {
		return Resolution{Path: file}, true
	}
	if resolved, ok := s.resolveExtensions(file); ok {
		return Resolution{Path: resolved}, true
	}
	if err == nil && info.IsDir() {
		return s.resolveDir(file)
	}
	return Resolution{}, false
}

// resolveDir resolves a directory through its package.json, falling back to
// index plus each extension.
func (s *session) resolveDir(dir string) (Resolution, bool) {
	if pkg := s.readPackage(dir); pkg != nil {
		if res, ok := s.resolveWithPackage(pkg, dir, "."); ok {
			return res, true
		}
	}
	if resolved, ok := s.resolveExtensions(filepath.Join(dir, "index")); ok {
		return Resolution{Path: resolved}, true
	}
	return Resolution{}, false
}

// resolveExtensions returns the first file+ext that exists, in extension
// order.
func (s *session) resolveExtensions(file string) (string, bool) {
	for _, ext := range s.extensions {
		candidate := file + ext
		if isFile(candidate) {
			return candidate, true
		}
	}
	return "", false
}
