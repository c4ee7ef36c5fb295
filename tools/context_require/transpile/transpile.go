// Package transpile turns TypeScript, JSX, ES module and text sources into
// CommonJS that the harness can execute.
package transpile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/mlrawlings/jsdom-context-require/tools/context_require/common"
)

// Args holds the arguments for the transpile subcommand.
type Args struct {
	OutDir string
	Srcs   []string
}

// Error collects the messages esbuild reported for one file.
type Error struct {
	File     string
	Messages []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("transpilation failed for %s:\n  %s", e.File, strings.Join(e.Messages, "\n  "))
}

// Transform converts source, read from file, into CommonJS. The loader is
// chosen from the file extension.
func Transform(source []byte, file string) ([]byte, error) {
	return TransformWith(source, file, common.LoaderForFile(file))
}

// TransformWith converts source into CommonJS using an explicit loader.
func TransformWith(source []byte, file string, loader api.Loader) ([]byte, error) {
	result := api.Transform(string(source), api.TransformOptions{
		Loader:     loader,
		Format:     api.FormatCommonJS,
		Target:     api.ES2017,
		JSX:        api.JSXTransform,
		Sourcemap:  api.SourceMapInline,
		SourceRoot: filepath.Dir(file),
		Sourcefile: filepath.Base(file),
		LogLevel:   api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			if e.Location != nil {
				msgs = append(msgs, fmt.Sprintf("%s:%d:%d: %s", file, e.Location.Line, e.Location.Column, e.Text))
			} else {
				msgs = append(msgs, fmt.Sprintf("%s: %s", file, e.Text))
			}
		}
		return nil, &Error{File: file, Messages: msgs}
	}
	return result.Code, nil
}

// Run transpiles each source into OutDir as a .js CommonJS file. Plain
// CommonJS sources are copied as-is.
func Run(args Args) error {
	if err := os.MkdirAll(args.OutDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, src := range args.Srcs {
		data, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", src, err)
		}

		ext := filepath.Ext(src)
		loader := common.LoaderForFile(src)
		out := data
		if common.NeedsTransform(loader) || ext == ".mjs" {
			if out, err = TransformWith(data, src, loader); err != nil {
				return err
			}
		}

		outName := strings.TrimSuffix(filepath.Base(src), ext) + ".js"
		if loader == api.LoaderJSON {
			outName = filepath.Base(src)
		}
		outPath := filepath.Join(args.OutDir, outName)
		if err := os.WriteFile(outPath, out, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", outPath, err)
		}
	}
	return nil
}
