package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "tensorexec "+version+"\n", out)
}

func TestConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("num_workers: 3\nblas: blocked\n"), 0o600))

	out, err := execute(t, "config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "num_workers: 3")
	assert.Contains(t, out, "blas: blocked")
	assert.Contains(t, out, "# TENSOREXEC_NUM_WORKERS=")

	_, err = execute(t, "config", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBenchCommand(t *testing.T) {
	t.Setenv("TENSOREXEC_NUM_WORKERS", "2")
	out, err := execute(t, "bench", "--size", "8", "--iters", "2", "--metrics")
	require.NoError(t, err)
	for _, op := range []string{"matmul", "reducesum", "add"} {
		assert.Contains(t, out, op)
	}
	assert.Contains(t, out, "tensorexec_")

	_, err = execute(t, "bench", "--size", "0")
	assert.Error(t, err)
}
