package resolve

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/mlrawlings/jsdom-context-require/tools/context_require/common"
)

// writeTree creates files under root. Paths use forward slashes.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// tempRoot returns a symlink-free temporary directory.
func tempRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return root
}

func mustResolve(t *testing.T, r *Resolver, specifier, from string) Resolution {
	t.Helper()
	res, err := r.Resolve(specifier, from)
	if err != nil {
		t.Fatalf("Resolve(%q, %q): %v", specifier, from, err)
	}
	return res
}

func TestResolve_Relative(t *testing.T) {
	root := tempRoot(t)
	writeTree(t, root, map[string]string{
		"a.js":                  "",
		"data.json":             "{}",
		"both.js":               "",
		"both.json":             "",
		"dir/index.js":          "",
		"withpkg/package.json":  `{"main": "./lib/main"}`,
		"withpkg/lib/main.js":   "",
		"withpkg/index.js":      "",
		"badpkg/package.json":   `{not json`,
		"badpkg/index.js":       "",
		"selfmain/package.json": `{"main": "."}`,
		"selfmain/index.js":     "",
	})
	r := New(Options{})

	tests := []struct {
		specifier string
		want      string
	}{
		{"./a.js", "a.js"},
		{"./a", "a.js"},
		{"./data", "data.json"},
		{"./both", "both.js"},
		{"./dir", "dir/index.js"},
		{"./dir/", "dir/index.js"},
		{"./withpkg", "withpkg/lib/main.js"},
		{"./badpkg", "badpkg/index.js"},
		{"./selfmain", "selfmain/index.js"},
		{"./dir/../a", "a.js"},
	}
	for _, tt := range tests {
		res := mustResolve(t, r, tt.specifier, root)
		want := filepath.Join(root, filepath.FromSlash(tt.want))
		if res.Path != want || res.Noop {
			t.Errorf("Resolve(%q) = %v, want %s", tt.specifier, res, want)
		}
	}

	for _, spec := range []string{"./missing", "./a.js/", "./dir/nope"} {
		if _, err := r.Resolve(spec, root); !errors.Is(err, ErrNotFound) {
			t.Errorf("Resolve(%q) error = %v, want ErrNotFound", spec, err)
		}
	}
}

func TestResolve_ExtensionOrder(t *testing.T) {
	root := tempRoot(t)
	writeTree(t, root, map[string]string{
		"x.js":  "",
		"x.txt": "",
	})

	res := mustResolve(t, New(Options{Extensions: []string{".txt", ".js"}}), "./x", root)
	if want := filepath.Join(root, "x.txt"); res.Path != want {
		t.Errorf("Resolve(./x) = %s, want %s", res.Path, want)
	}
	res = mustResolve(t, New(Options{}), "./x", root)
	if want := filepath.Join(root, "x.js"); res.Path != want {
		t.Errorf("Resolve(./x) = %s, want %s", res.Path, want)
	}
}

func TestResolve_TrailingSlashMatchesDirectory(t *testing.T) {
	root := tempRoot(t)
	writeTree(t, root, map[string]string{
		"x/index.js": "",
	})
	r := New(Options{})
	a := mustResolve(t, r, "./x", root)
	b := mustResolve(t, r, "./x/", root)
	if a != b {
		t.Errorf("Resolve(./x) = %v, Resolve(./x/) = %v", a, b)
	}
}

func TestResolve_Packages(t *testing.T) {
	root := tempRoot(t)
	writeTree(t, root, map[string]string{
		// browser field object form
		"node_modules/foo/package.json": `{"browser": {"./a.js": "./b.js", "./ignored.js": false, "./stream.js": "readable"}}`,
		"node_modules/foo/a.js":         "",
		"node_modules/foo/b.js":         "",
		"node_modules/foo/ignored.js":   "",
		"node_modules/foo/index.js":     "",
		// exports take precedence over main and browser
		"node_modules/exp/package.json": `{"main": "./main.js", "browser": {"./esm.js": "./browser.js"}, "exports": {".": "./esm.js", "./feature": {"browser": "./feature-browser.js", "default": "./feature.js"}}}`,
		"node_modules/exp/main.js":            "",
		"node_modules/exp/esm.js":             "",
		"node_modules/exp/browser.js":         "",
		"node_modules/exp/feature.js":         "",
		"node_modules/exp/feature-browser.js": "",
		// string browser field
		"node_modules/str/package.json": `{"main": "./node.js", "browser": "./web.js"}`,
		"node_modules/str/node.js":      "",
		"node_modules/str/web.js":       "",
		"node_modules/str/util.js":      "",
		// main without extension
		"node_modules/mainpkg/package.json":  `{"main": "lib/entry"}`,
		"node_modules/mainpkg/lib/entry.js":  "",
		// scoped
		"node_modules/@scope/pkg/package.json": `{}`,
		"node_modules/@scope/pkg/index.js":     "",
		"node_modules/@scope/pkg/sub/x.js":     "",
		// bare browser replacement target
		"node_modules/readable/package.json": `{"main": "readable.js"}`,
		"node_modules/readable/readable.js":  "",
		// whole-package ignore
		"node_modules/nofs/package.json": `{"browser": {".": false}}`,
	})
	r := New(Options{Conditions: []string{"default", "require", "browser"}})
	nm := filepath.Join(root, "node_modules")

	tests := []struct {
		specifier string
		want      string
	}{
		{"foo/a.js", "foo/b.js"},
		{"foo/a", "foo/b.js"},
		{"foo", "foo/index.js"},
		{"foo/stream.js", "readable/readable.js"},
		{"exp", "exp/esm.js"},
		{"exp/feature", "exp/feature-browser.js"},
		{"str", "str/web.js"},
		{"str/util", "str/util.js"},
		{"mainpkg", "mainpkg/lib/entry.js"},
		{"@scope/pkg", "@scope/pkg/index.js"},
		{"@scope/pkg/sub/x", "@scope/pkg/sub/x.js"},
	}
	for _, tt := range tests {
		res := mustResolve(t, r, tt.specifier, root)
		want := filepath.Join(nm, filepath.FromSlash(tt.want))
		if res.Path != want {
			t.Errorf("Resolve(%q) = %v, want %s", tt.specifier, res, want)
		}
	}

	for _, spec := range []string{"foo/ignored.js", "foo/ignored", "nofs"} {
		res := mustResolve(t, r, spec, root)
		if !res.Noop || res.Path != "" {
			t.Errorf("Resolve(%q) = %+v, want the no-op module", spec, res)
		}
	}

	// exports is authoritative: no fallback to main or to files on disk.
	for _, spec := range []string{"exp/main.js", "exp/browser.js", "exp/missing"} {
		if _, err := r.Resolve(spec, root); !errors.Is(err, ErrNotFound) {
			t.Errorf("Resolve(%q) error = %v, want ErrNotFound", spec, err)
		}
	}
}

func TestResolve_ExportsIgnoresMain(t *testing.T) {
	root := tempRoot(t)
	writeTree(t, root, map[string]string{
		"node_modules/foo/package.json": `{"main": "./main.js", "exports": {".": "./esm.js"}}`,
		"node_modules/foo/main.js":      "",
		"node_modules/foo/esm.js":       "",
	})
	r := New(Options{Conditions: []string{"default", "require"}})
	res := mustResolve(t, r, "foo", root)
	if want := filepath.Join(root, "node_modules", "foo", "esm.js"); res.Path != want {
		t.Errorf("Resolve(foo) = %s, want %s", res.Path, want)
	}
}

func TestResolve_NearestNodeModulesWins(t *testing.T) {
	root := tempRoot(t)
	writeTree(t, root, map[string]string{
		"node_modules/dep/package.json":         `{}`,
		"node_modules/dep/index.js":             "",
		"node_modules/only-far/package.json":    `{}`,
		"node_modules/only-far/index.js":        "",
		"node_modules/shadow/package.json":      `{}`,
		"node_modules/shadow/feature.js":        "",
		"app/node_modules/dep/package.json":     `{}`,
		"app/node_modules/dep/index.js":         "",
		"app/node_modules/shadow/package.json":  `{}`,
		"app/node_modules/nopkg/index.js":       "",
		"app/src/main.js":                       "",
	})
	r := New(Options{})
	from := filepath.Join(root, "app", "src")

	res := mustResolve(t, r, "dep", from)
	if want := filepath.Join(root, "app", "node_modules", "dep", "index.js"); res.Path != want {
		t.Errorf("Resolve(dep) = %s, want %s", res.Path, want)
	}
	res = mustResolve(t, r, "only-far", from)
	if want := filepath.Join(root, "node_modules", "only-far", "index.js"); res.Path != want {
		t.Errorf("Resolve(only-far) = %s, want %s", res.Path, want)
	}

	// The nearest package decides, even when it lacks the file.
	if _, err := r.Resolve("shadow/feature", from); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(shadow/feature) error = %v, want ErrNotFound", err)
	}

	// Directories without a package.json are not packages.
	if _, err := r.Resolve("nopkg", from); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(nopkg) error = %v, want ErrNotFound", err)
	}
}

func TestResolve_Imports(t *testing.T) {
	root := tempRoot(t)
	writeTree(t, root, map[string]string{
		"package.json":                 `{"imports": {"#util": "./lib/util.js", "#dep": "dep", "#gone": "./gone.js"}}`,
		"lib/util.js":                  "",
		"node_modules/dep/package.json": `{}`,
		"node_modules/dep/index.js":     "",
		"sub/file.js":                   "",
	})
	r := New(Options{})

	res := mustResolve(t, r, "#util", root)
	if want := filepath.Join(root, "lib", "util.js"); res.Path != want {
		t.Errorf("Resolve(#util) = %s, want %s", res.Path, want)
	}
	res = mustResolve(t, r, "#dep", root)
	if want := filepath.Join(root, "node_modules", "dep", "index.js"); res.Path != want {
		t.Errorf("Resolve(#dep) = %s, want %s", res.Path, want)
	}

	for _, tt := range []struct{ specifier, from string }{
		{"#missing", root},
		{"#gone", root},
		{"#util", filepath.Join(root, "sub")},
	} {
		if _, err := r.Resolve(tt.specifier, tt.from); !errors.Is(err, ErrNotFound) {
			t.Errorf("Resolve(%q, %q) error = %v, want ErrNotFound", tt.specifier, tt.from, err)
		}
	}
}

func TestResolve_Errors(t *testing.T) {
	root := tempRoot(t)
	r := New(Options{})

	_, err := r.Resolve("does-not-exist/sub", root)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	var resErr *Error
	if !errors.As(err, &resErr) {
		t.Fatalf("error %T is not *Error", err)
	}
	if resErr.Specifier != "does-not-exist/sub" || resErr.From != root {
		t.Errorf("error = %+v", resErr)
	}
	if !strings.Contains(err.Error(), "does-not-exist/sub") {
		t.Errorf("error message %q does not name the specifier", err.Error())
	}

	if _, err := r.Resolve("", root); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(\"\") error = %v, want ErrNotFound", err)
	}
}

func TestResolve_Symlinks(t *testing.T) {
	root := tempRoot(t)
	writeTree(t, root, map[string]string{
		"packages/foo/package.json": `{"main": "main.js"}`,
		"packages/foo/main.js":      "",
		"real.js":                   "",
	})
	if err := os.MkdirAll(filepath.Join(root, "node_modules"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "packages", "foo"), filepath.Join(root, "node_modules", "foo")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "real.js"), filepath.Join(root, "link.js")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "missing.js"), filepath.Join(root, "broken.js")); err != nil {
		t.Fatal(err)
	}
	r := New(Options{})

	res := mustResolve(t, r, "foo", root)
	if want := filepath.Join(root, "packages", "foo", "main.js"); res.Path != want {
		t.Errorf("Resolve(foo) = %s, want %s", res.Path, want)
	}
	res = mustResolve(t, r, "./link", root)
	if want := filepath.Join(root, "real.js"); res.Path != want {
		t.Errorf("Resolve(./link) = %s, want %s", res.Path, want)
	}
	if _, err := r.Resolve("./broken.js", root); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(./broken.js) error = %v, want ErrNotFound", err)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	root := tempRoot(t)
	writeTree(t, root, map[string]string{
		"node_modules/foo/package.json": `{"browser": {"./a.js": "./b.js"}}`,
		"node_modules/foo/a.js":         "",
		"node_modules/foo/b.js":         "",
		"lib/index.js":                  "",
	})
	r := New(Options{})
	for _, spec := range []string{"foo/a.js", "./lib"} {
		first := mustResolve(t, r, spec, root)
		again := mustResolve(t, r, "./"+filepath.Base(first.Path), filepath.Dir(first.Path))
		if again != first {
			t.Errorf("re-resolving %s gave %s", first.Path, again.Path)
		}
	}
}

func TestResolve_AbsoluteSpecifier(t *testing.T) {
	root := tempRoot(t)
	writeTree(t, root, map[string]string{"abs.js": ""})
	res := mustResolve(t, New(Options{}), filepath.Join(root, "abs"), t.TempDir())
	if want := filepath.Join(root, "abs.js"); res.Path != want {
		t.Errorf("Resolve(abs) = %s, want %s", res.Path, want)
	}
}

func TestResolve_SharedCache(t *testing.T) {
	root := tempRoot(t)
	writeTree(t, root, map[string]string{
		"node_modules/a/package.json": `{}`,
		"node_modules/a/index.js":     "",
		"node_modules/b/package.json": `{"main": "b.js"}`,
		"node_modules/b/b.js":         "",
	})
	cache := common.NewPackageCache()
	r := New(Options{Cache: cache})

	specs := []string{"a", "b", "a", "missing", "b"}
	results, err := ResolveAll(context.Background(), r, root, specs)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != len(specs) {
		t.Fatalf("got %d results, want %d", len(results), len(specs))
	}
	for i, res := range results {
		if res.Specifier != specs[i] {
			t.Errorf("results[%d].Specifier = %q, want %q", i, res.Specifier, specs[i])
		}
	}
	if results[0].Resolution != results[2].Resolution {
		t.Errorf("a resolved differently: %v vs %v", results[0].Resolution, results[2].Resolution)
	}
	if !errors.Is(results[3].Err, ErrNotFound) {
		t.Errorf("missing error = %v, want ErrNotFound", results[3].Err)
	}
	if cache.Len() == 0 {
		t.Error("expected package.json reads to be cached")
	}
}

func TestRun(t *testing.T) {
	root := tempRoot(t)
	writeTree(t, root, map[string]string{
		"node_modules/a/package.json": `{}`,
		"node_modules/a/index.js":     "",
	})

	var out bytes.Buffer
	if err := Run(Args{Dir: root, Specifiers: []string{"a"}, Out: &out}); err != nil {
		t.Fatal(err)
	}
	want := "a\t" + filepath.Join(root, "node_modules", "a", "index.js") + "\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}

	var logs bytes.Buffer
	logger := log.NewWithOptions(&logs, log.Options{})
	if err := Run(Args{Dir: root, Specifiers: []string{"a", "nope"}, Out: &out, Logger: logger}); err == nil {
		t.Error("expected an error when a specifier fails")
	}
	if !strings.Contains(logs.String(), "nope") {
		t.Errorf("failure for %q not logged: %q", "nope", logs.String())
	}
}
