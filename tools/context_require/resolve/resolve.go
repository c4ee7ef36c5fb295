package resolve

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/mlrawlings/jsdom-context-require/tools/context_require/common"
)

// Args holds the arguments for the resolve subcommand.
type Args struct {
	Dir        string
	Extensions []string
	Conditions []string
	Specifiers []string
	Out        io.Writer
	Logger     *log.Logger
}

// Result pairs a specifier with the outcome of resolving it.
type Result struct {
	Specifier  string
	Resolution Resolution
	Err        error
}

// ResolveAll resolves every specifier from dir concurrently. Results are
// returned in input order and share a single package.json cache.
func ResolveAll(ctx context.Context, r *Resolver, dir string, specifiers []string) ([]Result, error) {
	results := make([]Result, len(specifiers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, spec := range specifiers {
		i, spec := i, spec
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := r.Resolve(spec, dir)
			results[i] = Result{Specifier: spec, Resolution: res, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Run executes the resolve subcommand, printing one "specifier<TAB>path"
// line per specifier.
func Run(args Args) error {
	out := args.Out
	if out == nil {
		out = os.Stdout
	}

	logger := args.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{})
	}

	r := New(Options{
		Extensions: args.Extensions,
		Conditions: args.Conditions,
		Cache:      common.NewPackageCache(),
		Logger:     logger,
	})

	results, err := ResolveAll(context.Background(), r, args.Dir, args.Specifiers)
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			logger.Error("unresolved specifier", "specifier", res.Specifier, "err", res.Err)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", res.Specifier, res.Resolution)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d specifiers could not be resolved", failed, len(results))
	}
	return nil
}
