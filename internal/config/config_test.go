package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, 10*time.Minute, c.SwapProofTimeout())
	assert.Equal(t, 2*time.Minute, c.ProofTimeout())
	assert.Equal(t, "0x9001", c.Pool)
	assert.Equal(t, int64(0x9001), c.Addresses().Pool.Int64())
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)
	assert.FileExists(t, path)

	c.LedgerBackend = LedgerLevelDB
	c.ProofTimeoutSeconds = 5
	require.NoError(t, SaveConfig(c, path))

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, LedgerLevelDB, again.LedgerBackend)
	assert.Equal(t, 5*time.Second, again.ProofTimeout())
}

func TestLoadConfigKeepsDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"backend":"remote"}`), 0o644))
	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, BackendRemote, c.Backend)
	assert.Equal(t, 600, c.SwapProofTimeoutSeconds)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ZYLITH_BACKEND":               "remote",
		"ZYLITH_ASP_URL":               "http://asp:3000",
		"ZYLITH_PROOF_TIMEOUT_SECONDS": "30",
		"ZYLITH_LOG_JSON":              "true",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	c := DefaultConfig()
	require.NoError(t, c.ApplyEnv(lookup))
	assert.Equal(t, BackendRemote, c.Backend)
	assert.Equal(t, "http://asp:3000", c.ASPURL)
	assert.Equal(t, 30, c.ProofTimeoutSeconds)
	assert.True(t, c.LogJSON)
	require.NoError(t, c.Validate())

	env["ZYLITH_ASP_BURST"] = "many"
	assert.Error(t, DefaultConfig().ApplyEnv(lookup))
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ZYLITH_TEST_ONLY_KEY=hello\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("ZYLITH_TEST_ONLY_KEY") })

	require.NoError(t, LoadEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "hello", os.Getenv("ZYLITH_TEST_ONLY_KEY"))
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"backend":   func(c *Config) { c.Backend = "cloud" },
		"ledger":    func(c *Config) { c.LedgerBackend = "sqlite" },
		"address":   func(c *Config) { c.Pool = "pool" },
		"level":     func(c *Config) { c.LogLevel = "loud" },
		"timeout":   func(c *Config) { c.SwapProofTimeoutSeconds = 0 },
		"funds":     func(c *Config) { c.DevnetFunds = "lots" },
		"remote":    func(c *Config) { c.Backend = BackendRemote; c.ASPURL = "" },
		"ratelimit": func(c *Config) { c.ASPBurst = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
