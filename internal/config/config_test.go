package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDatabaseURL(t *testing.T) {
	tests := []struct {
		in      string
		dialect string
		dsn     string
		wantErr bool
	}{
		{"postgres://u:p@localhost:5432/gov", DatabaseSchemePostgres, "postgres://u:p@localhost:5432/gov", false},
		{"postgresql://localhost/gov", DatabaseSchemePostgres, "postgresql://localhost/gov", false},
		{"sqlite://data/gov.db", DatabaseSchemeSqlite, "data/gov.db", false},
		{"sqlite://:memory:", DatabaseSchemeSqlite, ":memory:", false},
		{"mysql://localhost/gov", "", "", true},
	}
	for _, tt := range tests {
		dialect, dsn, err := parseDatabaseURL(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.dialect, dialect)
		assert.Equal(t, tt.dsn, dsn)
	}
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgres://admin@db:5432/gov", maskDSN(DatabaseSchemePostgres, "postgres://admin:hunter2@db:5432/gov"))
	assert.Equal(t, "host=db user=admin password=***", maskDSN(DatabaseSchemePostgres, "host=db user=admin password=hunter2"))
	assert.Equal(t, "gov.db", maskDSN(DatabaseSchemeSqlite, "gov.db"))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://gov.db")
	t.Setenv("ETH_RPC_URL", "http://eth.local:8545")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DatabaseSchemeSqlite, cfg.DBDialect)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 2*time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, 3, cfg.DigestSize)
	assert.Equal(t, "base", cfg.SourceChain)
	assert.Equal(t, "ethereum", cfg.FallbackChain)
	assert.Equal(t, "http://eth.local:8545", cfg.Chains["ethereum"].RPCURL)
	assert.Equal(t, "ethereum", cfg.Protocols["uniswap"])
}

func TestLoadRoutingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	doc := `
fallbackChain: optimism
chains:
  cosmoshub:
    chainId: cosmoshub-4
    kind: cosmos
    rpcUrl: http://cosmos.local:26657
protocols:
  Atom: cosmoshub
  ENS: ethereum
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "optimism", cfg.FallbackChain)
	hub := cfg.Chains["cosmoshub"]
	assert.Equal(t, ChainKindCosmos, hub.Kind)
	assert.Equal(t, "cosmoshub", hub.Name)
	assert.Equal(t, "cosmoshub", cfg.Protocols["atom"])
	assert.Equal(t, "ethereum", cfg.Protocols["ens"])
}

func TestValidateRejectsUnknownRoute(t *testing.T) {
	cfg := Config{
		SourceChain:   "base",
		FallbackChain: "ethereum",
		DigestSize:    3,
		Chains:        DefaultChains(),
		Protocols:     map[string]string{"gnosis": "gnosis-chain"},
	}
	assert.Error(t, cfg.Validate())

	cfg.Protocols = DefaultProtocols()
	assert.NoError(t, cfg.Validate())
}

func TestDebugStringMasksPassword(t *testing.T) {
	cfg := Config{DBDialect: DatabaseSchemePostgres, DBDsn: "postgres://gov:secret@db/gov", Chains: DefaultChains()}
	assert.NotContains(t, cfg.DebugString(), "secret")
	assert.Contains(t, cfg.DebugString(), "chains=arbitrum,base,ethereum,optimism,polygon")
}

func TestRoutingOverrideKeepsBuiltInFields(t *testing.T) {
	cfg := Config{Chains: DefaultChains(), Protocols: DefaultProtocols()}
	builtIn := cfg.Chains["ethereum"]
	require.NotZero(t, builtIn.Selector)

	require.NoError(t, cfg.mergeRouting([]byte(`
chains:
  Ethereum:
    rpcUrl: https://eth.example.org
`)))
	eth := cfg.Chains["ethereum"]
	assert.Equal(t, "https://eth.example.org", eth.RPCURL)
	assert.Equal(t, builtIn.Selector, eth.Selector)
	assert.Equal(t, builtIn.ChainID, eth.ChainID)
	assert.Equal(t, builtIn.Kind, eth.Kind)

	require.NoError(t, cfg.mergeRouting([]byte(`
chains:
  ethereum:
    selector: 42
`)))
	assert.EqualValues(t, 42, cfg.Chains["ethereum"].Selector)
	assert.Equal(t, "https://eth.example.org", cfg.Chains["ethereum"].RPCURL)
}
