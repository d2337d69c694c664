// Package config loads runtime configuration from the environment and an
// optional YAML file holding the chain routing table.
package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

const (
	// DatabaseSchemePostgres is the postgres database scheme identifier
	DatabaseSchemePostgres = "postgres"
	// DatabaseSchemeSqlite is the embedded sqlite scheme identifier
	DatabaseSchemeSqlite = "sqlite"
)

// Chain kinds decide how a destination receipt is looked up.
const (
	ChainKindEVM    = "evm"
	ChainKindCosmos = "cosmos"
)

// ChainConfig describes one chain a vote can be relayed to.
type ChainConfig struct {
	Name     string `yaml:"-"`
	ChainID  string `yaml:"chainId"`
	Kind     string `yaml:"kind"`
	RPCURL   string `yaml:"rpcUrl"`
	Selector uint64 `yaml:"selector"` // CCIP chain selector
}

type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBDialect   string `ignored:"true"` // postgres or sqlite
	DBDsn       string `ignored:"true"` // DSN string passed to GORM driver

	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	CronSecret string `envconfig:"CRON_SECRET"`
	ConfigFile string `envconfig:"CONFIG_FILE"`
	Debug      bool   `envconfig:"DEBUG"`

	AggregatorURL string `envconfig:"BOARDROOM_API_URL" default:"https://api.boardroom.info/v1"`
	AggregatorKey string `envconfig:"BOARDROOM_API_KEY"`

	LLMURL   string `envconfig:"OPENAI_API_URL" default:"https://api.openai.com/v1"`
	LLMKey   string `envconfig:"OPENAI_API_KEY"`
	LLMModel string `envconfig:"OPENAI_MODEL" default:"gpt-4"`

	PostmarkURL   string `envconfig:"POSTMARK_API_URL" default:"https://api.postmarkapp.com"`
	PostmarkToken string `envconfig:"POSTMARK_API_TOKEN"`
	EmailFrom     string `envconfig:"EMAIL_FROM" default:"governance@agent-dao.com"`
	EmailReplyTo  string `envconfig:"EMAIL_REPLY_TO" default:"reply@agent-dao.com"`

	RelayerURL string `envconfig:"RELAYER_URL"`
	RelayerKey string `envconfig:"RELAYER_API_KEY"`
	CCIPAPIURL string `envconfig:"CCIP_API_URL" default:"https://ccip.chain.link/api"`

	EthRPCURL      string `envconfig:"ETH_RPC_URL"`
	BaseRPCURL     string `envconfig:"BASE_RPC_URL"`
	OptimismRPCURL string `envconfig:"OPTIMISM_RPC_URL"`
	ArbitrumRPCURL string `envconfig:"ARBITRUM_RPC_URL"`
	PolygonRPCURL  string `envconfig:"POLYGON_RPC_URL"`

	SourceChain         string        `envconfig:"SOURCE_CHAIN" default:"base"`
	FallbackChain       string        `envconfig:"FALLBACK_CHAIN" default:"ethereum"`
	ReconcileInterval   time.Duration `envconfig:"RECONCILE_INTERVAL" default:"2m"`
	ExternalCallTimeout time.Duration `envconfig:"EXTERNAL_CALL_TIMEOUT" default:"15s"`
	DigestSize          int           `envconfig:"DIGEST_SIZE" default:"3"`
	ProposalCacheSize   int           `envconfig:"PROPOSAL_CACHE_SIZE" default:"512"`

	Chains    map[string]ChainConfig `ignored:"true"`
	Protocols map[string]string      `ignored:"true"` // protocol -> chain name
}

// routingFile is the shape of CONFIG_FILE.
type routingFile struct {
	SourceChain   string                 `yaml:"sourceChain"`
	FallbackChain string                 `yaml:"fallbackChain"`
	Chains        map[string]ChainConfig `yaml:"chains"`
	Protocols     map[string]string      `yaml:"protocols"`
}

// parseDatabaseURL interprets DATABASE_URL and returns (dialect, dsn).
// Supported schemes: postgres, postgresql, sqlite.
func parseDatabaseURL(databaseURL string) (string, string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", err
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case DatabaseSchemePostgres, "postgresql":
		// GORM postgres driver accepts URL DSN as-is
		return DatabaseSchemePostgres, databaseURL, nil
	case DatabaseSchemeSqlite:
		// sqlite://relative/path.db, sqlite:///abs/path.db, sqlite://:memory:
		dsn := strings.TrimPrefix(databaseURL, u.Scheme+"://")
		if dsn == "" {
			return "", "", xerrors.Errorf("sqlite DATABASE_URL needs a path")
		}
		return DatabaseSchemeSqlite, dsn, nil
	default:
		return "", "", xerrors.Errorf("unsupported DATABASE_URL scheme: %s", u.Scheme)
	}
}

// DefaultChains is the built-in chain table. RPC URLs come from the
// environment; selectors are the public CCIP chain selectors.
func DefaultChains() map[string]ChainConfig {
	return map[string]ChainConfig{
		"ethereum": {Name: "ethereum", ChainID: "1", Kind: ChainKindEVM, Selector: 5009297550715157269},
		"base":     {Name: "base", ChainID: "8453", Kind: ChainKindEVM, Selector: 15971525489660198786},
		"optimism": {Name: "optimism", ChainID: "10", Kind: ChainKindEVM, Selector: 3734403246176062136},
		"arbitrum": {Name: "arbitrum", ChainID: "42161", Kind: ChainKindEVM, Selector: 4949039107694359620},
		"polygon":  {Name: "polygon", ChainID: "137", Kind: ChainKindEVM, Selector: 4051577828743386545},
	}
}

// DefaultProtocols maps DAO protocol names to destination chain names.
func DefaultProtocols() map[string]string {
	return map[string]string{
		"uniswap":  "ethereum",
		"aave":     "ethereum",
		"compound": "ethereum",
		"optimism": "optimism",
		"arbitrum": "arbitrum",
		"polygon":  "polygon",
	}
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, xerrors.Errorf("read environment: %w", err)
	}

	if dbURL := strings.TrimSpace(cfg.DatabaseURL); dbURL != "" {
		if dialect, dsn, err := parseDatabaseURL(dbURL); err == nil {
			cfg.DBDialect = dialect
			cfg.DBDsn = dsn
		} else {
			fmt.Fprintf(os.Stderr, "warning: invalid DATABASE_URL, disabling persistence: %v\n", err)
		}
	}

	cfg.Chains = DefaultChains()
	cfg.Protocols = DefaultProtocols()
	cfg.applyRPCEnv()

	if cfg.ConfigFile != "" {
		if err := cfg.loadRoutingFile(cfg.ConfigFile); err != nil {
			return cfg, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyRPCEnv() {
	for name, rpc := range map[string]string{
		"ethereum": c.EthRPCURL,
		"base":     c.BaseRPCURL,
		"optimism": c.OptimismRPCURL,
		"arbitrum": c.ArbitrumRPCURL,
		"polygon":  c.PolygonRPCURL,
	} {
		if rpc == "" {
			continue
		}
		ch := c.Chains[name]
		ch.RPCURL = rpc
		c.Chains[name] = ch
	}
}

func (c *Config) loadRoutingFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Errorf("read config file %s: %w", path, err)
	}
	return c.mergeRouting(data)
}

// mergeRouting overlays a YAML routing document on the current tables.
func (c *Config) mergeRouting(data []byte) error {
	var rf routingFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return xerrors.Errorf("parse routing config: %w", err)
	}
	if rf.SourceChain != "" {
		c.SourceChain = rf.SourceChain
	}
	if rf.FallbackChain != "" {
		c.FallbackChain = rf.FallbackChain
	}
	for name, ch := range rf.Chains {
		name = strings.ToLower(name)
		ch.Name = name
		// fields left out of an override keep their built-in values
		if existing, ok := c.Chains[name]; ok {
			if ch.RPCURL == "" {
				ch.RPCURL = existing.RPCURL
			}
			if ch.Selector == 0 {
				ch.Selector = existing.Selector
			}
			if ch.ChainID == "" {
				ch.ChainID = existing.ChainID
			}
			if ch.Kind == "" {
				ch.Kind = existing.Kind
			}
		}
		if ch.Kind == "" {
			ch.Kind = ChainKindEVM
		}
		c.Chains[name] = ch
	}
	for proto, chain := range rf.Protocols {
		c.Protocols[strings.ToLower(proto)] = strings.ToLower(chain)
	}
	return nil
}

// Validate checks that every routing entry points at a known chain.
func (c Config) Validate() error {
	if _, ok := c.Chains[c.SourceChain]; !ok {
		return xerrors.Errorf("source chain %q is not configured", c.SourceChain)
	}
	if _, ok := c.Chains[c.FallbackChain]; !ok {
		return xerrors.Errorf("fallback chain %q is not configured", c.FallbackChain)
	}
	for proto, chain := range c.Protocols {
		if _, ok := c.Chains[chain]; !ok {
			return xerrors.Errorf("protocol %q routes to unknown chain %q", proto, chain)
		}
	}
	for name, ch := range c.Chains {
		if ch.Kind != ChainKindEVM && ch.Kind != ChainKindCosmos {
			return xerrors.Errorf("chain %q has unsupported kind %q", name, ch.Kind)
		}
	}
	if c.DigestSize <= 0 {
		return xerrors.Errorf("DIGEST_SIZE must be positive")
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("listen=%s db=%s source=%s fallback=%s", c.ListenAddr, c.DBDialect, c.SourceChain, c.FallbackChain)
}

// DebugString returns a human-friendly configuration string with masked secrets.
func (c Config) DebugString() string {
	chains := make([]string, 0, len(c.Chains))
	for name := range c.Chains {
		chains = append(chains, name)
	}
	sort.Strings(chains)
	return fmt.Sprintf(
		"listen=%s db=%s dsn=%s aggregator=%s relayer=%s ccip=%s source=%s fallback=%s chains=%s reconcile=%s",
		c.ListenAddr,
		c.DBDialect,
		maskDSN(c.DBDialect, c.DBDsn),
		c.AggregatorURL,
		c.RelayerURL,
		c.CCIPAPIURL,
		c.SourceChain,
		c.FallbackChain,
		strings.Join(chains, ","),
		c.ReconcileInterval,
	)
}

func maskDSN(dialect, dsn string) string {
	switch strings.ToLower(dialect) {
	case DatabaseSchemePostgres:
		if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
			if u.User != nil {
				username := u.User.Username()
				u.User = url.User(username)
			}
			return u.String()
		}
		// Fallback for DSN as key-value list
		parts := strings.Fields(dsn)
		for i, p := range parts {
			lower := strings.ToLower(p)
			if strings.HasPrefix(lower, "password=") {
				parts[i] = "password=***"
			}
		}
		return strings.Join(parts, " ")
	default:
		return dsn
	}
}
