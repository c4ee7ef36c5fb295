package harness

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dop251/goja"

	"github.com/mlrawlings/jsdom-context-require/tools/context_require/common"
	"github.com/mlrawlings/jsdom-context-require/tools/context_require/transpile"
)

// Module is a loaded module: the `module` object its code sees.
type Module struct {
	Filename string
	obj      *goja.Object
}

// Exports returns the current module.exports.
func (m *Module) Exports() goja.Value {
	return m.obj.Get("exports")
}

// SetExports replaces module.exports. Go values are converted by the runtime
// that owns the module.
func (m *Module) SetExports(v goja.Value) {
	_ = m.obj.Set("exports", v)
}

func (h *Harness) newModule(filename string) *Module {
	obj := h.vm.NewObject()
	_ = obj.Set("id", filename)
	_ = obj.Set("filename", filename)
	_ = obj.Set("exports", h.vm.NewObject())
	_ = obj.Set("loaded", false)
	return &Module{Filename: filename, obj: obj}
}

// load resolves specifier from dir and returns the module's exports,
// executing it first if this is the first request for that file.
func (h *Harness) load(specifier, dir string) (goja.Value, error) {
	res, err := h.resolver.Resolve(specifier, dir)
	if err != nil {
		return nil, &LoadError{Specifier: specifier, From: dir, Err: err}
	}
	if res.Noop {
		return h.noopExports(), nil
	}

	path := h.remap(dir, res.Path)
	if m, ok := h.modules[path]; ok {
		// Cycles see whatever the module has exported so far.
		return m.Exports(), nil
	}

	h.logger.Debug("loading module", "specifier", specifier, "path", path)
	m := h.newModule(path)
	h.modules[path] = m
	if err := h.execute(m); err != nil {
		delete(h.modules, path)
		return nil, &LoadError{Specifier: specifier, From: dir, Err: err}
	}
	_ = m.obj.Set("loaded", true)
	return m.Exports(), nil
}

// noopExports returns the exports of the module substituted for files a
// package excludes from browser builds.
func (h *Harness) noopExports() goja.Value {
	if h.noop == nil {
		h.noop = h.vm.NewObject()
	}
	return h.noop
}

// execute runs the loader for m's extension.
func (h *Harness) execute(m *Module) (err error) {
	// goja can panic on some malformed input while compiling.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("executing %s: %v", m.Filename, p)
		}
	}()

	ext := filepath.Ext(m.Filename)
	if load, ok := h.loaders[ext]; ok {
		return load(h, m, m.Filename)
	}

	source, err := os.ReadFile(m.Filename)
	if err != nil {
		return err
	}

	if ext == ".json" {
		return h.loadJSON(m, source)
	}

	loader := common.LoaderForFile(m.Filename)
	if common.NeedsTransform(loader) || ext == ".mjs" {
		if source, err = transpile.TransformWith(source, m.Filename, loader); err != nil {
			return err
		}
	}
	return h.runCommonJS(m, string(source))
}

func (h *Harness) loadJSON(m *Module, source []byte) error {
	parse, ok := goja.AssertFunction(h.vm.Get("JSON").ToObject(h.vm).Get("parse"))
	if !ok {
		return fmt.Errorf("JSON.parse is not a function")
	}
	v, err := parse(goja.Undefined(), h.vm.ToValue(string(source)))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", m.Filename, err)
	}
	m.SetExports(v)
	return nil
}

// runCommonJS evaluates source inside the usual CommonJS function wrapper.
func (h *Harness) runCommonJS(m *Module, source string) error {
	wrapped := "(function (exports, require, module, __filename, __dirname) {" + source + "\n})"
	program, err := goja.Compile(m.Filename, wrapped, false)
	if err != nil {
		return err
	}
	fnValue, err := h.vm.RunProgram(program)
	if err != nil {
		return err
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return fmt.Errorf("module wrapper for %s is not a function", m.Filename)
	}

	exports := m.Exports()
	_, err = fn(exports,
		exports,
		h.requireFunc(filepath.Dir(m.Filename)),
		m.obj,
		h.vm.ToValue(m.Filename),
		h.vm.ToValue(filepath.Dir(m.Filename)),
	)
	return err
}

// requireFunc builds the require function handed to modules in dir.
func (h *Harness) requireFunc(dir string) *goja.Object {
	require := h.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		exports, err := h.load(call.Argument(0).String(), dir)
		if err != nil {
			panic(h.vm.NewGoError(err))
		}
		return exports
	}).ToObject(h.vm)

	_ = require.Set("resolve", func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		res, err := h.resolver.Resolve(specifier, dir)
		if err != nil {
			panic(h.vm.NewGoError(&LoadError{Specifier: specifier, From: dir, Err: err}))
		}
		return h.vm.ToValue(res.String())
	})
	return require
}
