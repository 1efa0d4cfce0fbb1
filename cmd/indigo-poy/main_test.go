package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorusys/indigo-proof-of-yield/internal/cache"
)

const testStakeAddress = "stake1uyehkck0lajq8gr28t9uxnuvgcqrc6070x3k9r8048z8y5gh6ffgw"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitMismatch, exitCode(fmt.Errorf("verify: %w", errMismatch)))
	assert.Equal(t, exitFailure, exitCode(cache.ErrCacheMiss))
	assert.Equal(t, exitFailure, exitCode(errors.New("boom")))
}

func TestDigestPathFor(t *testing.T) {
	assert.Equal(t, filepath.Join("reports", "x.sha256"), digestPathFor(filepath.Join("reports", "x.bundle.json")))
	assert.Equal(t, filepath.Join("reports", "x.sha256"), digestPathFor(filepath.Join("reports", "x.json")))
	assert.Equal(t, "x.sha256", digestPathFor("x.bundle.json"))
}

func TestDemoReportVerifies(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "report", "--demo", "--reports-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "demo.html"))

	html, err := os.ReadFile(filepath.Join(dir, "demo.html"))
	require.NoError(t, err)
	digest, err := os.ReadFile(filepath.Join(dir, "demo.sha256"))
	require.NoError(t, err)
	assert.Contains(t, string(html), strings.TrimSpace(string(digest)))

	bundlePath := filepath.Join(dir, "demo.bundle.json")
	out, err = execute(t, "verify", "--bundle", bundlePath)
	require.NoError(t, err)
	assert.Equal(t, "OK\t"+strings.TrimSpace(string(digest))+"\n", out)

	data, err := os.ReadFile(bundlePath)
	require.NoError(t, err)
	mutated := bytes.Replace(data, []byte(`"d1"`), []byte(`"e1"`), 1)
	require.NotEqual(t, data, mutated)
	require.NoError(t, os.WriteFile(bundlePath, mutated, 0o644))

	out, err = execute(t, "verify", "--bundle", bundlePath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errMismatch))
	assert.Equal(t, exitMismatch, exitCode(err))
	assert.True(t, strings.HasPrefix(out, "MISMATCH"))
}

func TestDemoReportIsReproducible(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	_, err := execute(t, "report", "--demo", "--reports-dir", first)
	require.NoError(t, err)
	_, err = execute(t, "report", "--demo", "--reports-dir", second)
	require.NoError(t, err)

	a, err := os.ReadFile(filepath.Join(first, "demo.sha256"))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(second, "demo.sha256"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestComputeOfflineMissFails(t *testing.T) {
	_, err := execute(t, "compute",
		"--stake-address", testStakeAddress,
		"--cache-backend", "memory",
		"--offline",
		"--reports-dir", t.TempDir(),
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cache.ErrCacheMiss))
	assert.Equal(t, exitFailure, exitCode(err))
}

func TestComputeRequiresScope(t *testing.T) {
	_, err := execute(t, "compute", "--cache-backend", "memory", "--offline")
	require.Error(t, err)
	assert.Equal(t, exitFailure, exitCode(err))
}

func TestVerifyRequiresBundle(t *testing.T) {
	_, err := execute(t, "verify")
	require.Error(t, err)
}
