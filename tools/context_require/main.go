package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/thought-machine/go-flags"

	"github.com/mlrawlings/jsdom-context-require/tools/context_require/config"
	"github.com/mlrawlings/jsdom-context-require/tools/context_require/harness"
	"github.com/mlrawlings/jsdom-context-require/tools/context_require/resolve"
	"github.com/mlrawlings/jsdom-context-require/tools/context_require/transpile"
)

var opts = struct {
	Usage string

	Verbose bool `short:"v" long:"verbose" description:"Log resolution and loading details to stderr"`

	Resolve struct {
		Dir        string   `short:"d" long:"dir" default:"." description:"Directory to resolve from"`
		Extensions []string `short:"x" long:"ext" description:"Extension to probe, in order (default .js, .json)"`
		Conditions []string `short:"c" long:"condition" description:"Active exports/imports condition (default: default, require, browser)"`
		Args       struct {
			Specifiers []string `positional-arg-name:"specifier" required:"1" description:"Specifiers to resolve"`
		} `positional-args:"true"`
	} `command:"resolve" alias:"r" description:"Resolve module specifiers the way the harness would"`

	Run struct {
		Dir        string   `short:"d" long:"dir" default:"." description:"Directory to resolve the entry from"`
		Config     string   `long:"config" description:"Path to a context-require.yaml file"`
		Extensions []string `short:"x" long:"ext" description:"Additional extension to probe"`
		Conditions []string `short:"c" long:"condition" description:"Active exports/imports condition"`
		EnvFile    string   `long:"env-file" description:"Base .env file used to populate process.env"`
		Mode       string   `long:"mode" description:"Mode for .env.[mode] files"`
		EnvPrefix  string   `long:"env-prefix" description:"Only expose env variables with this prefix"`
		Args       struct {
			Entry string `positional-arg-name:"entry" required:"true" description:"Module to load"`
		} `positional-args:"true"`
	} `command:"run" description:"Load a module in a browser-like global scope and print its exports as JSON"`

	Transpile struct {
		OutDir string `short:"o" long:"out-dir" required:"true" description:"Output directory for transpiled files"`
		Args   struct {
			Sources []string `positional-arg-name:"sources" description:"Source files to transpile"`
		} `positional-args:"true"`
	} `command:"transpile" alias:"t" description:"Transpile TS/JSX/ESM files to CommonJS"`
}{
	Usage: `
context_require loads CommonJS modules into a browser-like global scope.

It provides three operations:
  - resolve:   Resolve specifiers using node_modules, exports/imports and browser fields
  - run:       Load a module in the harness and print its exports
  - transpile: Convert TS/JSX/ESM sources to CommonJS
`,
}

var logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "context_require"})

var subCommands = map[string]func() int{
	"resolve": func() int {
		if err := resolve.Run(resolve.Args{
			Dir:        opts.Resolve.Dir,
			Extensions: opts.Resolve.Extensions,
			Conditions: opts.Resolve.Conditions,
			Specifiers: opts.Resolve.Args.Specifiers,
			Logger:     logger,
		}); err != nil {
			logger.Fatal(err)
		}
		return 0
	},
	"run": func() int {
		if err := harness.Run(harness.Args{
			Dir:        opts.Run.Dir,
			Entry:      opts.Run.Args.Entry,
			ConfigFile: opts.Run.Config,
			Extensions: opts.Run.Extensions,
			Conditions: opts.Run.Conditions,
			Env: config.Env{
				File:   opts.Run.EnvFile,
				Mode:   opts.Run.Mode,
				Prefix: opts.Run.EnvPrefix,
			},
			Logger: logger,
		}); err != nil {
			logger.Fatal(err)
		}
		return 0
	},
	"transpile": func() int {
		if err := transpile.Run(transpile.Args{
			OutDir: opts.Transpile.OutDir,
			Srcs:   opts.Transpile.Args.Sources,
		}); err != nil {
			logger.Fatal(err)
		}
		return 0
	},
}

func main() {
	p := flags.NewParser(&opts, flags.Default)
	if _, err := p.Parse(); err != nil {
		os.Exit(1)
	}
	if p.Active == nil {
		p.WriteHelp(os.Stderr)
		os.Exit(1)
	}
	if opts.Verbose {
		logger.SetLevel(log.DebugLevel)
	}
	os.Exit(subCommands[p.Active.Name]())
}
