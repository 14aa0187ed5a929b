package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Negotiation.MaxRounds)
	assert.Equal(t, "rules", cfg.Oracle.Provider)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "market.yaml")
	yamlDoc := `
simulation:
  seed: 7
  agents: 300
finance:
  max_dti: 0.4
negotiation:
  max_rounds: 5
oracle:
  timeout: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	t.Setenv("MARKETSIM_NEGOTIATION_MAX_ROUNDS", "7")
	t.Setenv("MARKETSIM_DB_PATH", filepath.Join(dir, "x.db"))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(7), cfg.Simulation.Seed)
	assert.Equal(t, 300, cfg.Simulation.Agents)
	assert.InDelta(t, 0.4, cfg.Finance.MaxDTI, 1e-9)
	assert.Equal(t, 7, cfg.Negotiation.MaxRounds, "environment overrides the file")
	assert.Equal(t, 3*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, filepath.Join(dir, "x.db"), cfg.Persistence.Path)
	// Untouched values keep their defaults.
	assert.Equal(t, 30, cfg.Finance.TermYears)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad buyer default", func(c *Config) { c.Negotiation.BuyerDefault = "panic" }, "buyer_default"},
		{"bad seller default", func(c *Config) { c.Negotiation.SellerDefault = "" }, "seller_default"},
		{"bad provider", func(c *Config) { c.Oracle.Provider = "crystal-ball" }, "oracle.provider"},
		{"zero rounds", func(c *Config) { c.Negotiation.MaxRounds = 0 }, "max_rounds"},
		{"floor above list", func(c *Config) { c.Funnel.FloorRatio = 1.2 }, "floor_ratio"},
		{"down payment zero", func(c *Config) { c.Finance.DownPaymentRatio = 0 }, "down_payment_ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOracleConfigRedactsKey(t *testing.T) {
	c := OracleConfig{Provider: "anthropic", APIKey: "sk-ant-abcdefghijklmnop"}
	s := c.String()
	assert.False(t, strings.Contains(s, "abcdefghijkl"))
	assert.Contains(t, s, "sk-a...mnop")
	assert.Equal(t, "(set)", OracleConfig{APIKey: "short"}.RedactedAPIKey())
	assert.Equal(t, "", OracleConfig{}.RedactedAPIKey())
}
