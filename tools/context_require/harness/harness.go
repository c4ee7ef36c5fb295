// Package harness runs CommonJS modules inside a goja runtime whose global
// object stands in for a browser window. Modules are located with the
// resolve package, so package.json "browser" and "exports" fields are
// honored the way a bundler would honor them.
//
// A Harness is single-threaded: a goja runtime must not be used from more
// than one goroutine at a time.
package harness

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dop251/goja"

	"github.com/mlrawlings/jsdom-context-require/tools/context_require/common"
	"github.com/mlrawlings/jsdom-context-require/tools/context_require/resolve"
)

// maxPendingRounds bounds RunPending so a callback that keeps rescheduling
// itself cannot hang the caller.
const maxPendingRounds = 10000

// LoadFunc populates m from the file at path, typically with m.SetExports.
type LoadFunc func(h *Harness, m *Module, path string) error

// Loader handles every module file with extension Ext.
type Loader struct {
	Ext  string
	Load LoadFunc
}

// Options configures a Harness.
type Options struct {
	// Dir is the directory top-level Require calls resolve from.
	Dir string
	// Loaders are custom extension hooks. Their extensions are probed before
	// Extensions and the defaults, in declaration order.
	Loaders []Loader
	// Extensions are additional extensions to probe, e.g. ".ts".
	Extensions []string
	// Conditions are the active exports/imports conditions.
	Conditions []string
	// Env becomes process.env.
	Env map[string]string
	// Console receives console.* output. Nil discards it.
	Console io.Writer
	// BeforeParse runs once the globals are installed, before any module loads.
	BeforeParse func(h *Harness)
	// Cache is shared with the resolver; nil gives the harness its own.
	Cache  *common.PackageCache
	Logger *log.Logger
}

// LoadError attributes a failed require to the specifier and directory it
// was issued from.
type LoadError struct {
	Specifier string
	From      string
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("require(%q) from %s: %v", e.Specifier, e.From, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Harness owns one JavaScript global scope and the modules loaded into it.
type Harness struct {
	vm       *goja.Runtime
	dir      string
	resolver *resolve.Resolver
	loaders  map[string]LoadFunc
	modules  map[string]*Module
	remaps   map[string]map[string]string
	noop     *goja.Object
	pending  []pendingCall
	console  io.Writer
	logger   *log.Logger
}

type pendingCall struct {
	fn   goja.Callable
	args []goja.Value
}

// New creates a harness with a fresh global scope.
func New(opts Options) (*Harness, error) {
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("harness: %s is not a directory", dir)
	}

	cache := opts.Cache
	if cache == nil {
		cache = common.NewPackageCache()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	console := opts.Console
	if console == nil {
		console = io.Discard
	}

	h := &Harness{
		vm:      goja.New(),
		dir:     dir,
		loaders: make(map[string]LoadFunc, len(opts.Loaders)),
		modules: make(map[string]*Module),
		remaps:  make(map[string]map[string]string),
		console: console,
		logger:  logger,
	}

	exts := make([]string, 0, len(opts.Loaders)+len(opts.Extensions)+len(resolve.DefaultExtensions))
	for _, l := range opts.Loaders {
		if l.Ext == "" || l.Load == nil {
			return nil, fmt.Errorf("harness: loader needs an extension and a load function")
		}
		h.loaders[l.Ext] = l.Load
		exts = append(exts, l.Ext)
	}
	exts = append(exts, opts.Extensions...)
	exts = append(exts, resolve.DefaultExtensions...)

	h.resolver = resolve.New(resolve.Options{
		Extensions: common.Unique(exts),
		Conditions: opts.Conditions,
		Cache:      cache,
		Logger:     logger,
	})

	if err := h.setupWindow(opts.Env); err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}
	if opts.BeforeParse != nil {
		opts.BeforeParse(h)
	}
	return h, nil
}

// VM returns the underlying goja runtime.
func (h *Harness) VM() *goja.Runtime {
	return h.vm
}

// Window returns the global object, which modules see as window, self and
// global.
func (h *Harness) Window() *goja.Object {
	return h.vm.GlobalObject()
}

// Resolver returns the resolver used for require calls.
func (h *Harness) Resolver() *resolve.Resolver {
	return h.resolver
}

// Require loads specifier relative to the harness directory and returns its
// exports. Callbacks queued with setImmediate during the load run before
// Require returns.
func (h *Harness) Require(specifier string) (goja.Value, error) {
	exports, err := h.load(specifier, h.dir)
	if err != nil {
		return nil, err
	}
	if err := h.RunPending(); err != nil {
		return nil, err
	}
	return exports, nil
}

// RunPending drains the setImmediate queue, including callbacks queued by
// the callbacks themselves.
func (h *Harness) RunPending() error {
	for round := 0; len(h.pending) > 0; round++ {
		if round == maxPendingRounds {
			h.pending = nil
			return fmt.Errorf("harness: setImmediate queue did not settle after %d rounds", maxPendingRounds)
		}
		calls := h.pending
		h.pending = nil
		for _, c := range calls {
			if _, err := c.fn(goja.Undefined(), c.args...); err != nil {
				return fmt.Errorf("harness: setImmediate callback: %w", err)
			}
		}
	}
	return nil
}

// JSON serializes v with the runtime's JSON.stringify.
func (h *Harness) JSON(v goja.Value, indent string) (string, error) {
	stringify, ok := goja.AssertFunction(h.vm.Get("JSON").ToObject(h.vm).Get("stringify"))
	if !ok {
		return "", fmt.Errorf("harness: JSON.stringify is not a function")
	}
	out, err := stringify(goja.Undefined(), v, goja.Undefined(), h.vm.ToValue(indent))
	if err != nil {
		return "", err
	}
	if goja.IsUndefined(out) {
		return "undefined", nil
	}
	return out.String(), nil
}

// setupWindow installs the globals commonly shimmed by bundlers.
func (h *Harness) setupWindow(env map[string]string) error {
	vm := h.vm
	global := vm.GlobalObject()
	for _, name := range []string{"window", "self", "global"} {
		if err := vm.Set(name, global); err != nil {
			return err
		}
	}

	envObj := vm.NewObject()
	for k, v := range env {
		if err := envObj.Set(k, v); err != nil {
			return err
		}
	}
	process := vm.NewObject()
	_ = process.Set("browser", true)
	_ = process.Set("env", envObj)
	_ = process.Set("nextTick", h.schedule)
	if err := vm.Set("process", process); err != nil {
		return err
	}
	if err := vm.Set("setImmediate", h.schedule); err != nil {
		return err
	}
	if err := h.installBuffer(); err != nil {
		return err
	}

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		prefix := ""
		if level != "log" {
			prefix = level + ": "
		}
		_ = console.Set(level, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			fmt.Fprintln(h.console, prefix+strings.Join(parts, " "))
			return goja.Undefined()
		})
	}
	return vm.Set("console", console)
}

// schedule implements setImmediate and process.nextTick.
func (h *Harness) schedule(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(h.vm.NewTypeError("callback must be a function"))
	}
	var args []goja.Value
	if len(call.Arguments) > 1 {
		args = append(args, call.Arguments[1:]...)
	}
	h.pending = append(h.pending, pendingCall{fn: fn, args: args})
	return goja.Undefined()
}
