package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vecsplit/internal/config"
	diag "vecsplit/internal/errors"
)

const kernel = `func @copy(%A: memref<?xf32>, %i: index, %pad: f32) -> (vector<4xf32>) {
  %v = vector.transfer_read(%A, %i, %pad) <{in_bounds = [false], permutation_map = affine_map<(d0) -> (d0)>}> : vector<4xf32>
  func.return(%v)
}
`

func init() {
	color.NoColor = true
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunPrintsTransformedIR(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "kernel.mlir", kernel)

	stdout, stderr, err := execute(t, "run", "--config", filepath.Join(dir, "missing.yaml"), path)
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, "memref.alloca")
	assert.Contains(t, stdout, "scf.if")
	assert.Contains(t, stdout, "in_bounds = [true]")
	assert.NotContains(t, stdout, "// -----")
	assert.Contains(t, stderr, "Successfully processed 1 files")
}

func TestRunStrategyOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "kernel.mlir", kernel)
	cfg := writeFile(t, dir, "cfg.yaml", "strategy: copy-buffer\n")

	stdout, _, err := execute(t, "run", "-c", cfg, "--strategy", "force-in-bounds", path)
	require.NoError(t, err)
	assert.NotContains(t, stdout, "scf.if")
	assert.Contains(t, stdout, "in_bounds = [true]")

	_, _, err = execute(t, "run", "-c", cfg, "--strategy", "sideways", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown split strategy")
}

func TestRunInPlaceWithSeveralFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.mlir", kernel)
	b := writeFile(t, dir, "b.mlir", kernel)

	stdout, _, err := execute(t, "run", "-c", filepath.Join(dir, "none.yaml"), "-i", "-j", "2", a, b)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	for _, path := range []string{a, b} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "scf.if")
	}
}

func TestRunReportsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.mlir", kernel)
	bad := writeFile(t, dir, "bad.mlir", "func @f( {\n")

	stdout, stderr, err := execute(t, "run", "-c", filepath.Join(dir, "none.yaml"), good, bad)
	require.Error(t, err)
	assert.Equal(t, errFilesFailed, errors.Cause(err))
	assert.Contains(t, stdout, "// ----- "+good)
	assert.NotContains(t, stdout, "// ----- "+bad)
	assert.Contains(t, stderr, "error["+diag.ErrorSyntax+"]")
	assert.Contains(t, stderr, "1 of 2 files failed")
}

func TestCheckReportsCandidates(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "kernel.mlir", kernel)

	stdout, stderr, err := execute(t, "check", "-c", filepath.Join(dir, "none.yaml"), path)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "note["+diag.NoteSplitCandidate+"]")
	assert.Contains(t, stderr, "kernel.mlir:2:3")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, kernel, string(data))
}

func TestProcessFilesMissingFile(t *testing.T) {
	_, err := processFiles(context.Background(), []string{filepath.Join(t.TempDir(), "nope.mlir")}, 1, check(config.Default()))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(errors.Cause(err)))
}

func TestTransformVerifiesOutput(t *testing.T) {
	r := &fileResult{path: "kernel.mlir", source: kernel}
	transform(config.Default())(r)
	require.False(t, r.failed, "%v", r.diagnostics)
	assert.Empty(t, r.diagnostics)
	assert.NotEmpty(t, r.output)
}
