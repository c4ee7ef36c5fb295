// Package resolve implements CommonJS module resolution for code that runs in
// a browser-like environment: Node's node_modules lookup plus package.json
// "exports"/"imports" maps, the legacy "browser" field and extension probing.
package resolve

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mlrawlings/jsdom-context-require/tools/context_require/common"
)

// DefaultExtensions is the probing order used when Options.Extensions is empty.
var DefaultExtensions = []string{".js", ".json"}

// Resolution is the result of a successful Resolve. Exactly one of Path and
// Noop is set: Noop marks a module the package excluded from browser builds
// with a `false` browser-field entry; it loads as an empty object.
type Resolution struct {
	Path string
	Noop bool
}

func (r Resolution) String() string {
	if r.Noop {
		return "(noop)"
	}
	return r.Path
}

// Options configures a Resolver.
type Options struct {
	// Extensions are appended, in order, to paths that do not name a file.
	Extensions []string
	// Conditions are the active conditions for exports and imports maps.
	Conditions []string
	// Cache, if set, memoizes package.json reads across calls.
	Cache *common.PackageCache
	// Logger receives debug output about skipped packages and failures.
	Logger *log.Logger
}

// Resolver resolves module specifiers. It holds no mutable state of its own
// and is safe for concurrent use as long as its cache is.
type Resolver struct {
	extensions []string
	conditions []string
	cache      *common.PackageCache
	logger     *log.Logger
}

// New returns a Resolver for opts.
func New(opts Options) *Resolver {
	r := &Resolver{
		extensions: common.Unique(opts.Extensions),
		conditions: common.Unique(opts.Conditions),
		cache:      opts.Cache,
		logger:     opts.Logger,
	}
	if len(r.extensions) == 0 {
		r.extensions = DefaultExtensions
	}
	if len(r.conditions) == 0 {
		r.conditions = common.DefaultConditions
	}
	return r
}

// Extensions returns the probing order in use.
func (r *Resolver) Extensions() []string {
	return r.extensions
}

// Resolve returns the file that specifier refers to when required from the
// directory from. Successful results are absolute and symlink-free. Every
// failure is an *Error matching ErrNotFound.
func (r *Resolver) Resolve(specifier, from string) (Resolution, error) {
	if abs, err := filepath.Abs(from); err == nil {
		from = abs
	}
	s := &session{Resolver: r, visiting: make(map[string]bool)}
	res, err := s.resolve(specifier, from)
	if err != nil {
		if r.logger != nil {
			r.logger.Debug("resolution failed", "specifier", specifier, "from", from, "err", err)
		}
		return Resolution{}, &Error{Specifier: specifier, From: from, Cause: err}
	}
	return res, nil
}

// session carries the state of a single top-level Resolve call.
type session struct {
	*Resolver
	// visiting holds the package entries being resolved, so that "main" or
	// browser-field targets pointing back at themselves fail instead of
	// recursing forever.
	visiting map[string]bool
}

func (s *session) resolve(specifier, from string) (Resolution, error) {
	if specifier == "" {
		return Resolution{}, ErrNotFound
	}

	var (
		res Resolution
		ok  bool
	)
	switch {
	case specifier[0] == '.':
		res, ok = s.resolveFile(joinPath(from, specifier))
	case specifier[0] == '#':
		res, ok = s.resolveImport(specifier, from)
	case filepath.IsAbs(specifier):
		res, ok = s.resolveFile(specifier)
	default:
		res, ok = s.resolvePackage(specifier, from)
	}
	if !ok {
		return Resolution{}, ErrNotFound
	}
	if res.Noop {
		return res, nil
	}
	real, err := realPath(res.Path)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Path: real}, nil
}

// resolveImport resolves an internal "#name" specifier through the imports
// field of the package.json in from. There is no fallback when the field
// has no match.
func (s *session) resolveImport(specifier, from string) (Resolution, bool) {
	pkg := s.readPackage(from)
	if pkg == nil {
		return Resolution{}, false
	}
	target, ok := pkg.ResolveImports(specifier, s.conditions)
	if !ok {
		return Resolution{}, false
	}
	if isBare(target) {
		return s.resolvePackage(target, from)
	}
	file := filepath.Join(from, target)
	if !isFile(file) {
		return Resolution{}, false
	}
	return Resolution{Path: file}, true
}

// resolvePackage looks for the package named by specifier in each
// node_modules directory, nearest first. The first directory holding the
// package decides the result, even when resolution inside it fails.
func (s *session) resolvePackage(specifier, from string) (Resolution, bool) {
	name, subpath := splitSpecifier(specifier)
	for _, modulesDir := range NodeModulesPaths(from) {
		moduleDir := filepath.Join(modulesDir, name)
		if pkg := s.readPackage(moduleDir); pkg != nil {
			return s.resolveWithPackage(pkg, moduleDir, "."+subpath)
		}
	}
	return Resolution{}, false
}

// resolveWithPackage resolves id ("." or "./sub") inside a package. An
// exports field is authoritative; otherwise the browser field and main are
// applied before probing the filesystem.
func (s *session) resolveWithPackage(pkg *common.Package, moduleDir, id string) (Resolution, bool) {
	key := moduleDir + "\x00" + id
	if s.visiting[key] {
		return Resolution{}, false
	}
	s.visiting[key] = true
	defer delete(s.visiting, key)

	if pkg.HasExports() {
		target, ok := pkg.ResolveExports(id, s.conditions)
		if !ok {
			return Resolution{}, false
		}
		file := filepath.Join(moduleDir, target)
		if !isFile(file) {
			return Resolution{}, false
		}
		return Resolution{Path: file}, true
	}

	if entry, ok := remapBrowser(pkg.Browser, id, s.extensions); ok {
		if entry.Ignore {
			return Resolution{Noop: true}, true
		}
		return s.resolveReplacement(moduleDir, entry.Target)
	}

	if id == "." || id == "./" {
		main := pkg.Main
		if main == "" {
			main = "./index"
		}
		return s.resolveFile(joinPath(moduleDir, main))
	}
	return s.resolveFile(joinPath(moduleDir, id))
}

// resolveReplacement resolves a browser-field target. Targets are paths
// inside the package; a target that is not a file there but looks like a
// package name is resolved as a bare specifier from the package.
func (s *session) resolveReplacement(moduleDir, target string) (Resolution, bool) {
	if res, ok := s.resolveFile(joinPath(moduleDir, target)); ok {
		return res, true
	}
	if isBare(target) {
		return s.resolvePackage(target, moduleDir)
	}
	return Resolution{}, false
}

// readPackage returns the package in dir, or nil when there is none or it
// cannot be parsed.
func (s *session) readPackage(dir string) *common.Package {
	pkg, err := s.cache.Read(dir)
	if err != nil {
		if s.logger != nil {
			s.logger.Debug("ignoring package.json", "dir", dir, "err", err)
		}
		return nil
	}
	return pkg
}

// splitSpecifier splits a bare specifier into its package name and the
// remaining subpath ("" or "/sub/path").
//
//	splitSpecifier("lodash/map")     // "lodash", "/map"
//	splitSpecifier("@scope/pkg/x")   // "@scope/pkg", "/x"
func splitSpecifier(specifier string) (name, subpath string) {
	i := strings.IndexByte(specifier, '/')
	if i < 0 {
		return specifier, ""
	}
	if specifier[0] == '@' && i < len(specifier)-1 {
		j := strings.IndexByte(specifier[i+1:], '/')
		if j < 0 {
			return specifier, ""
		}
		i += j + 1
	}
	return specifier[:i], specifier[i:]
}

// isBare reports whether target names a package rather than a path.
func isBare(target string) bool {
	return target != "" && target[0] != '.' && target[0] != '/' && target[0] != '#' && !filepath.IsAbs(target)
}

// joinPath joins elem onto dir, keeping a trailing slash so that "./x/" is
// only ever resolved as a directory.
func joinPath(dir, elem string) string {
	p := filepath.Join(dir, elem)
	if (strings.HasSuffix(elem, "/") || strings.HasSuffix(elem, string(filepath.Separator))) &&
		!strings.HasSuffix(p, string(filepath.Separator)) {
		p += string(filepath.Separator)
	}
	return p
}

// realPath returns the absolute, symlink-free form of file.
func realPath(file string) (string, error) {
	real, err := filepath.EvalSymlinks(file)
	if err != nil {
		return "", ErrBrokenSymlink
	}
	abs, err := filepath.Abs(real)
	if err != nil {
		return "", ErrBrokenSymlink
	}
	return abs, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
