package harness

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/mlrawlings/jsdom-context-require/tools/context_require/common"
	"github.com/mlrawlings/jsdom-context-require/tools/context_require/config"
)

// Args holds the arguments for the run subcommand.
type Args struct {
	Dir        string
	Entry      string
	ConfigFile string
	Extensions []string
	Conditions []string
	Env        config.Env
	Out        io.Writer
	Logger     *log.Logger
}

// Run loads Entry in a new harness and prints its exports as JSON.
func Run(args Args) error {
	out := args.Out
	if out == nil {
		out = os.Stdout
	}

	var (
		cfg *config.Config
		err error
	)
	if args.ConfigFile != "" {
		cfg, err = config.Load(args.ConfigFile)
	} else {
		cfg, err = config.LoadDefault(args.Dir)
	}
	if err != nil {
		return err
	}
	cfg.Merge(args.Extensions, args.Conditions, args.Env)

	var env map[string]string
	if cfg.Env.File != "" {
		if env, err = common.LoadEnvFiles(cfg.Env.File, cfg.Env.Mode, cfg.Env.Prefix); err != nil {
			return fmt.Errorf("failed to load env files: %w", err)
		}
	}

	h, err := New(Options{
		Dir:        args.Dir,
		Extensions: cfg.Extensions,
		Conditions: cfg.Conditions,
		Env:        env,
		Console:    os.Stderr,
		Logger:     args.Logger,
	})
	if err != nil {
		return err
	}

	exports, err := h.Require(args.Entry)
	if err != nil {
		return err
	}
	encoded, err := h.JSON(exports, "  ")
	if err != nil {
		return fmt.Errorf("failed to encode exports of %s: %w", args.Entry, err)
	}
	_, err = fmt.Fprintln(out, encoded)
	return err
}
