package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrInvalidPackage is returned by ReadPackage when a package.json exists but
// cannot be read or parsed. Resolution treats such a directory as having no
// package at all.
var ErrInvalidPackage = errors.New("invalid package.json")

// exportValue represents a node in a package.json exports or imports tree.
// Each node is a string path (leaf), an array of fallbacks, or an object of
// condition/subpath keys to child nodes. Object keys keep their document
// order because condition matching depends on it.
type exportValue struct {
	Path  string
	Array []*exportValue
	Keys  []string
	Map   map[string]*exportValue
}

func (v *exportValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &v.Path)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		v.Array = make([]*exportValue, 0, len(items))
		for _, raw := range items {
			child := &exportValue{}
			if err := child.UnmarshalJSON(raw); err != nil {
				return err
			}
			v.Array = append(v.Array, child)
		}
		return nil
	case '{':
		dec := json.NewDecoder(bytes.NewReader(data))
		if _, err := dec.Token(); err != nil {
			return err
		}
		v.Map = make(map[string]*exportValue)
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return err
			}
			key, ok := tok.(string)
			if !ok {
				return fmt.Errorf("unexpected object key %v", tok)
			}
			child := &exportValue{}
			if err := dec.Decode(child); err != nil {
				return err
			}
			if _, dup := v.Map[key]; !dup {
				v.Keys = append(v.Keys, key)
			}
			v.Map[key] = child
		}
		return nil
	}
	// null, booleans and numbers never produce a target.
	return nil
}

// empty reports whether the value is absent or can never produce a target.
func (v *exportValue) empty() bool {
	return v == nil || (v.Path == "" && v.Array == nil && v.Map == nil)
}

// BrowserEntry is a single value from an object-form "browser" field.
type BrowserEntry struct {
	// Target is the replacement specifier.
	Target string
	// Ignore is set for `false` entries: the module is replaced by an empty one.
	Ignore bool
}

// BrowserField is the legacy "browser" field of a package.json. It is either
// a single replacement for the package root or a mapping of in-package
// specifiers to replacements.
type BrowserField struct {
	Root    string
	Entries map[string]BrowserEntry
}

// IsRootRemap reports whether the field was declared as a plain string.
func (b *BrowserField) IsRootRemap() bool {
	return b.Entries == nil
}

// Lookup returns the entry declared for key, if any.
func (b *BrowserField) Lookup(key string) (BrowserEntry, bool) {
	e, ok := b.Entries[key]
	return e, ok
}

func (b *BrowserField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &b.Root)
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		b.Entries = make(map[string]BrowserEntry, len(raw))
		for key, val := range raw {
			var target string
			if err := json.Unmarshal(val, &target); err == nil {
				b.Entries[key] = BrowserEntry{Target: target}
				continue
			}
			if bytes.Equal(bytes.TrimSpace(val), []byte("false")) {
				b.Entries[key] = BrowserEntry{Ignore: true}
			}
		}
	}
	return nil
}

// Package holds the package.json fields used for module resolution.
type Package struct {
	Dir     string
	Name    string
	Main    string
	Exports *exportValue
	Imports *exportValue
	Browser *BrowserField
}

// HasExports reports whether the package declares an exports field. When it
// does, "main" and "browser" are never consulted.
func (p *Package) HasExports() bool {
	return !p.Exports.empty()
}

// ReadPackage reads and parses dir/package.json. A missing file yields a nil
// package and a nil error; unreadable or malformed files yield an error
// wrapping ErrInvalidPackage.
func ReadPackage(dir string) (*Package, error) {
	file := filepath.Join(dir, "package.json")
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		var pathErr *os.PathError
		if errors.As(err, &pathErr) && isNotDirErr(pathErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPackage, file, err)
	}

	// Decode field by field so that an oddly typed field (a numeric "main",
	// say) does not hide the rest of the package.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPackage, file, err)
	}

	pkg := &Package{Dir: dir}
	if raw, ok := fields["name"]; ok {
		_ = json.Unmarshal(raw, &pkg.Name)
	}
	if raw, ok := fields["main"]; ok {
		_ = json.Unmarshal(raw, &pkg.Main)
	}
	if raw, ok := fields["exports"]; ok {
		exports := &exportValue{}
		if err := exports.UnmarshalJSON(raw); err == nil && !exports.empty() {
			pkg.Exports = exports
		}
	}
	if raw, ok := fields["imports"]; ok {
		imports := &exportValue{}
		if err := imports.UnmarshalJSON(raw); err == nil && imports.Map != nil {
			pkg.Imports = imports
		}
	}
	if raw, ok := fields["browser"]; ok {
		browser := &BrowserField{}
		if err := browser.UnmarshalJSON(raw); err == nil && (browser.Root != "" || browser.Entries != nil) {
			pkg.Browser = browser
		}
	}
	return pkg, nil
}

// isNotDirErr reports errors caused by a path component being a regular
// file, e.g. reading "index.js/package.json".
func isNotDirErr(err *os.PathError) bool {
	info, statErr := os.Stat(filepath.Dir(err.Path))
	return statErr == nil && !info.IsDir()
}

// cachedPackage is a cache slot; pkg and err are both nil for directories
// without a package.json.
type cachedPackage struct {
	pkg *Package
	err error
}

// PackageCache memoizes ReadPackage by absolute directory. It is safe for
// concurrent use. The cache reflects the filesystem at the time of the first
// read of each directory; call Reset when that snapshot is no longer valid.
type PackageCache struct {
	mu   sync.Mutex
	pkgs map[string]cachedPackage
}

// NewPackageCache returns an empty cache.
func NewPackageCache() *PackageCache {
	return &PackageCache{pkgs: make(map[string]cachedPackage)}
}

// Read returns the package in dir, consulting the cache first. A nil cache
// reads straight from disk.
func (c *PackageCache) Read(dir string) (*Package, error) {
	if c == nil {
		return ReadPackage(dir)
	}
	c.mu.Lock()
	entry, ok := c.pkgs[dir]
	c.mu.Unlock()
	if ok {
		return entry.pkg, entry.err
	}

	pkg, err := ReadPackage(dir)

	c.mu.Lock()
	c.pkgs[dir] = cachedPackage{pkg: pkg, err: err}
	c.mu.Unlock()
	return pkg, err
}

// Len returns the number of cached directories.
func (c *PackageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pkgs)
}

// Reset drops every cached entry.
func (c *PackageCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pkgs = make(map[string]cachedPackage)
}
