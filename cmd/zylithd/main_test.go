package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ZYLITH_ENABLE_AUDIT", "false")
	t.Setenv("ZYLITH_LOG_LEVEL", "error")

	cfg := filepath.Join(t.TempDir(), "zylith.json")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfg, "--env", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "zylithd dev")
}

func TestDevnetDeposit(t *testing.T) {
	out, err := run(t, "--json", "deposit", "--asset", "token1", "--amount", "250")
	require.NoError(t, err)

	var res struct {
		Note noteView `json:"note"`
		Tx   string   `json:"tx"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "250", res.Note.Amount)
	assert.Equal(t, "0x7002", res.Note.Asset)
	require.NotNil(t, res.Note.TreeIndex)
	assert.Equal(t, uint64(0), *res.Note.TreeIndex)
	assert.NotEmpty(t, res.Tx)
}

func TestDepositRejectsUnknownAsset(t *testing.T) {
	_, err := run(t, "deposit", "--asset", "0x1234", "--amount", "1")
	assert.ErrorContains(t, err, "not a pool token")
}

func TestInvalidBackend(t *testing.T) {
	_, err := run(t, "--backend", "carrier-pigeon", "balance")
	assert.ErrorContains(t, err, "unknown backend")
}

func TestHealthOnDevnet(t *testing.T) {
	out, err := run(t, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "overall: healthy")
	assert.Contains(t, out, "pool")
	assert.Contains(t, out, "tree")
}

func TestDemo(t *testing.T) {
	if testing.Short() {
		t.Skip("compiles every circuit")
	}
	out, err := run(t, "demo", "--amount", "1000")
	require.NoError(t, err)
	assert.Contains(t, out, "1. deposited 1000 of token0")
	assert.Contains(t, out, "3. swapped into 1000 of token1")
	assert.Contains(t, out, "4. collected 3 in fees")
	assert.Contains(t, out, "5. withdrew 500 of token1")
}
