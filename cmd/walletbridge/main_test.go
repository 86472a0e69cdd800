package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-ctap/walletbridge/internal/config"
	"github.com/go-ctap/walletbridge/pkg/credentials"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestConfigInitThenShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletbridge.yaml")

	out, err := run(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = run(t, "--config", path, "config", "init")
	require.Error(t, err)

	_, err = run(t, "--config", path, "config", "init", "--force")
	require.NoError(t, err)

	out, err = run(t, "--config", path, "--listen", "127.0.0.1:9999", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "127.0.0.1:9999")
	assert.Contains(t, out, "poll_interval: 500ms")
}

func TestFlagsOverrideAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletbridge.yaml")
	require.NoError(t, config.Default().Save(path))

	flags := &globalFlags{configFile: path, logLevel: "debug"}
	cfg, err := flags.load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)

	flags.logLevel = "loud"
	_, err = flags.load()
	require.ErrorIs(t, err, config.ErrInvalid)

	flags = &globalFlags{configFile: filepath.Join(t.TempDir(), "missing.yaml")}
	_, err = flags.load()
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestScriptCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletbridge.yaml")
	cfg := config.Default()
	cfg.Bridge.Name = "walletBridge"
	require.NoError(t, cfg.Save(path))

	out, err := run(t, "--config", path, "--listen", "127.0.0.1:9000", "script")
	require.NoError(t, err)
	assert.Contains(t, out, `'walletBridge'`)
	assert.Contains(t, out, `'http://127.0.0.1:9000'`)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "walletbridge (devel)\n", out)
}

func TestChooseFrom(t *testing.T) {
	candidates := []credentials.Candidate{
		{Name: "alice", DisplayName: "Alice"},
		{Name: "bob", DisplayName: "Bob"},
	}

	var out bytes.Buffer
	idx, err := chooseFrom(strings.NewReader("7\nnope\n2\n"), &out, "wallet.example", candidates)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Contains(t, out.String(), "wallet.example")
	assert.Contains(t, out.String(), `"7" is not a choice`)

	_, err = chooseFrom(strings.NewReader("\n"), &out, "wallet.example", candidates)
	require.ErrorIs(t, err, credentials.ErrSelectionCancelled)

	_, err = chooseFrom(strings.NewReader(""), &out, "wallet.example", candidates)
	require.ErrorIs(t, err, credentials.ErrSelectionCancelled)

	_, err = chooseFrom(strings.NewReader("3"), &out, "wallet.example", candidates)
	require.ErrorIs(t, err, credentials.ErrSelectionCancelled)
}
