// SPDX-License-Identifier: Apache-2.0
package main

import (
	"context"
	"os"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"vecsplit/internal/config"
	diag "vecsplit/internal/errors"
	"vecsplit/internal/ir"
	"vecsplit/internal/parser"
)

type fileResult struct {
	path        string
	source      string
	output      string // transformed IR, run only
	diagnostics []diag.CompilerError
	failed      bool
}

func (r *fileResult) fail(diags ...diag.CompilerError) {
	r.diagnostics = append(r.diagnostics, diags...)
	r.failed = true
}

// processFiles runs fn on every file, at most limit at a time, and returns
// the results in argument order. Per-file problems end up in the result; the
// error is only for files that cannot be read.
func processFiles(ctx context.Context, paths []string, limit int, fn func(r *fileResult)) ([]*fileResult, error) {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	results := make([]*fileResult, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			source, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			r := &fileResult{path: path, source: string(source)}
			fn(r)
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// load parses and verifies r.source, recording diagnostics on failure.
func load(r *fileResult) *ir.Program {
	program, parseErrs := parser.ParseSource(r.path, r.source)
	if len(parseErrs) > 0 {
		r.fail(diag.ParseErrors(parseErrs)...)
		return nil
	}
	if verifyErrs := ir.Verify(program); len(verifyErrs) > 0 {
		r.fail(diag.VerifyErrors(diag.ErrorVerify, verifyErrs)...)
		return nil
	}
	return program
}

// transform runs the configured pipeline over the file.
func transform(cfg *config.Config) func(r *fileResult) {
	return func(r *fileResult) {
		program := load(r)
		if program == nil {
			return
		}
		pipeline, err := cfg.Pipeline()
		if err != nil {
			r.fail(diag.TransformError(ir.Location{}, err))
			return
		}
		if _, err := pipeline.Run(program); err != nil {
			r.fail(diag.TransformError(ir.Location{File: r.path}, err))
			return
		}
		if verifyErrs := ir.Verify(program); len(verifyErrs) > 0 {
			r.fail(diag.VerifyErrors(diag.ErrorVerifyAfterTransform, verifyErrs)...)
			return
		}
		r.output = ir.Print(program)
	}
}

// check reports what the split would do without changing anything.
func check(cfg *config.Config) func(r *fileResult) {
	return func(r *fileResult) {
		program := load(r)
		if program == nil {
			return
		}
		opts, err := cfg.Options()
		if err != nil {
			r.fail(diag.TransformError(ir.Location{}, err))
			return
		}
		r.diagnostics = append(r.diagnostics, diag.TransferNotes(program, opts, cfg.SplitFilter())...)
	}
}
