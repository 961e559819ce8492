// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Liquidity LiquidityConfig `mapstructure:"liquidity"`
	Search    SearchConfig    `mapstructure:"search"`
	Solver    SolverConfig    `mapstructure:"solver"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Health    HealthConfig    `mapstructure:"health"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	TUIMode     bool   `mapstructure:"-"` // set at runtime from flags
}

// LoggingConfig controls the logger and its optional rotating file sink.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// EthereumConfig holds Ethereum node configuration. Both URLs are optional; without them the
// detector runs on a fixed interval and only snapshot sources are usable.
type EthereumConfig struct {
	WebSocketURL string        `mapstructure:"websocket_url"`
	HTTPURL      string        `mapstructure:"http_url"`
	ChainID      uint64        `mapstructure:"chain_id"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Enabled reports whether any node endpoint is configured.
func (c *EthereumConfig) Enabled() bool {
	return c.WebSocketURL != "" || c.HTTPURL != ""
}

// Liquidity source kinds.
const (
	SourceSnapshot  = "snapshot"
	SourceUniswapV2 = "uniswapv2"
)

// LiquidityConfig selects and configures the pool source.
type LiquidityConfig struct {
	Source            string        `mapstructure:"source"`
	SnapshotPath      string        `mapstructure:"snapshot_path"` // file path or http(s) URL
	Pairs             []string      `mapstructure:"pairs"`         // uniswapv2 pair addresses
	Fee               float64       `mapstructure:"fee"`           // uniswapv2 fee factor
	FeedURL           string        `mapstructure:"feed_url"`      // optional reserve-update websocket
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

// PairAddresses returns the configured pair addresses.
func (c *LiquidityConfig) PairAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.Pairs))
	for _, p := range c.Pairs {
		out = append(out, common.HexToAddress(p))
	}
	return out
}

// FeeDecimal returns the uniswapv2 fee factor as decimal.Decimal.
func (c *LiquidityConfig) FeeDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.Fee)
}

// Constraint formulations and linking modes.
const (
	FormulationTangent = "tangent"
	FormulationSOC     = "soc"

	LinkingStrict  = "strict"
	LinkingRelaxed = "relaxed"
)

// SearchConfig drives cycle enumeration, constraint building and selection.
type SearchConfig struct {
	StartTokens    []string           `mapstructure:"start_tokens"`
	MaxCycleLength int                `mapstructure:"max_cycle_length"`
	MaxCycles      int                `mapstructure:"max_cycles"`
	Workers        int                `mapstructure:"workers"`
	Formulation    string             `mapstructure:"formulation"`
	Linking        string             `mapstructure:"linking"`
	TradeCap       float64            `mapstructure:"trade_cap"`
	Budget         float64            `mapstructure:"budget"`
	MaxSelected    int                `mapstructure:"max_selected"`
	MinProfit      float64            `mapstructure:"min_profit"`
	MarketValues   map[string]float64 `mapstructure:"market_values"`
	Prefilter      bool               `mapstructure:"prefilter"`
	Interval       time.Duration      `mapstructure:"interval"`
}

// StartTokenAddresses returns the configured start tokens.
func (c *SearchConfig) StartTokenAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.StartTokens))
	for _, s := range c.StartTokens {
		out = append(out, common.HexToAddress(s))
	}
	return out
}

// MarketValueMap returns numéraire values keyed by token address.
func (c *SearchConfig) MarketValueMap() map[common.Address]float64 {
	out := make(map[common.Address]float64, len(c.MarketValues))
	for k, v := range c.MarketValues {
		out[common.HexToAddress(k)] = v
	}
	return out
}

// BudgetDecimal returns the selection budget as decimal.Decimal.
func (c *SearchConfig) BudgetDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.Budget)
}

// TradeCapDecimal returns the per-pool trade cap fraction as decimal.Decimal.
func (c *SearchConfig) TradeCapDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.TradeCap)
}

// MinProfitDecimal returns the minimum reportable profit as decimal.Decimal.
func (c *SearchConfig) MinProfitDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinProfit)
}

// SolverConfig bounds every solve.
type SolverConfig struct {
	Tolerance     float64       `mapstructure:"tolerance"`
	ConeTolerance float64       `mapstructure:"cone_tolerance"`
	MaxIterations int           `mapstructure:"max_iterations"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryRelaxed  bool          `mapstructure:"retry_relaxed"`
	RelaxFactor   float64       `mapstructure:"relax_factor"`
}

// StorageConfig configures report history persistence.
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceProvider  string `mapstructure:"trace_provider"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// HealthConfig configures the health endpoint server.
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.name", "ARB_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "ARB_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("logging.level", "ARB_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("logging.file", "ARB_LOG_FILE")

	v.BindEnv("ethereum.websocket_url", "ARB_ETH_WS_URL", "ETH_WS_URL")
	v.BindEnv("ethereum.http_url", "ARB_ETH_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("ethereum.chain_id", "ARB_ETH_CHAIN_ID", "ETH_CHAIN_ID")

	v.BindEnv("liquidity.source", "ARB_LIQUIDITY_SOURCE")
	v.BindEnv("liquidity.snapshot_path", "ARB_SNAPSHOT", "ARB_SNAPSHOT_PATH")
	v.BindEnv("liquidity.pairs", "ARB_PAIRS")
	v.BindEnv("liquidity.feed_url", "ARB_FEED_URL")

	v.BindEnv("search.start_tokens", "ARB_START_TOKENS")
	v.BindEnv("search.formulation", "ARB_FORMULATION")
	v.BindEnv("search.workers", "ARB_WORKERS")
	v.BindEnv("search.budget", "ARB_BUDGET")

	v.BindEnv("storage.enabled", "ARB_STORAGE_ENABLED")
	v.BindEnv("storage.path", "ARB_STORAGE_PATH")

	v.BindEnv("telemetry.enabled", "ARB_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "ARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "ARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cfmm-arb")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.poll_interval", "12s")

	v.SetDefault("liquidity.source", SourceSnapshot)
	v.SetDefault("liquidity.snapshot_path", "pools.yaml")
	v.SetDefault("liquidity.fee", 0.997)
	v.SetDefault("liquidity.requests_per_second", 20)
	v.SetDefault("liquidity.cache_ttl", "1h")

	v.SetDefault("search.max_cycle_length", 4)
	v.SetDefault("search.max_cycles", 10000)
	v.SetDefault("search.workers", 8)
	v.SetDefault("search.formulation", FormulationTangent)
	v.SetDefault("search.linking", LinkingStrict)
	v.SetDefault("search.trade_cap", 0.1)
	v.SetDefault("search.budget", 0)
	v.SetDefault("search.max_selected", 1)
	v.SetDefault("search.min_profit", 0)
	v.SetDefault("search.prefilter", true)
	v.SetDefault("search.interval", "12s")

	v.SetDefault("solver.tolerance", 1e-10)
	v.SetDefault("solver.cone_tolerance", 1e-9)
	v.SetDefault("solver.max_iterations", 500)
	v.SetDefault("solver.timeout", "2s")
	v.SetDefault("solver.retry_relaxed", true)
	v.SetDefault("solver.relax_factor", 100)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.path", "data/history.db")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "cfmm-arb")
	v.SetDefault("telemetry.trace_provider", "zipkin")
	v.SetDefault("telemetry.prometheus_port", 9090)

	v.SetDefault("health.port", 8081)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Liquidity.Source {
	case SourceSnapshot:
		if c.Liquidity.SnapshotPath == "" {
			return fmt.Errorf("liquidity.snapshot_path is required for the snapshot source")
		}
	case SourceUniswapV2:
		if c.Ethereum.HTTPURL == "" && c.Ethereum.WebSocketURL == "" {
			return fmt.Errorf("ethereum endpoint is required for the uniswapv2 source")
		}
		if len(c.Liquidity.Pairs) == 0 {
			return fmt.Errorf("liquidity.pairs cannot be empty for the uniswapv2 source")
		}
		for _, p := range c.Liquidity.Pairs {
			if !common.IsHexAddress(p) {
				return fmt.Errorf("invalid pair address: %s", p)
			}
		}
	default:
		return fmt.Errorf("unknown liquidity.source: %q", c.Liquidity.Source)
	}

	if c.Liquidity.Fee <= 0 || c.Liquidity.Fee > 1 {
		return fmt.Errorf("liquidity.fee must be in (0,1], got %v", c.Liquidity.Fee)
	}

	if len(c.Search.StartTokens) == 0 {
		return fmt.Errorf("search.start_tokens cannot be empty")
	}
	for _, tok := range c.Search.StartTokens {
		if !common.IsHexAddress(tok) {
			return fmt.Errorf("invalid start token: %s", tok)
		}
	}
	switch c.Search.Formulation {
	case FormulationTangent, FormulationSOC:
	default:
		return fmt.Errorf("search.formulation must be %q or %q", FormulationTangent, FormulationSOC)
	}
	switch c.Search.Linking {
	case LinkingStrict, LinkingRelaxed:
	default:
		return fmt.Errorf("search.linking must be %q or %q", LinkingStrict, LinkingRelaxed)
	}
	if c.Search.MaxCycleLength < 0 || (c.Search.MaxCycleLength > 0 && c.Search.MaxCycleLength < 2) {
		return fmt.Errorf("search.max_cycle_length must be 0 (unlimited) or >= 2")
	}
	if c.Search.Workers < 1 {
		return fmt.Errorf("search.workers must be >= 1")
	}
	if c.Search.TradeCap < 0 || c.Search.TradeCap > 1 {
		return fmt.Errorf("search.trade_cap must be in [0,1]")
	}
	if c.Search.Budget < 0 {
		return fmt.Errorf("search.budget cannot be negative")
	}
	if c.Search.MaxSelected < 1 {
		return fmt.Errorf("search.max_selected must be >= 1")
	}
	for k, val := range c.Search.MarketValues {
		if !common.IsHexAddress(k) {
			return fmt.Errorf("invalid market value token: %s", k)
		}
		if val < 0 {
			return fmt.Errorf("market value for %s cannot be negative", k)
		}
	}

	if c.Solver.Tolerance <= 0 || c.Solver.ConeTolerance <= 0 {
		return fmt.Errorf("solver tolerances must be positive")
	}
	if c.Solver.MaxIterations < 1 {
		return fmt.Errorf("solver.max_iterations must be >= 1")
	}
	if c.Solver.Timeout <= 0 {
		return fmt.Errorf("solver.timeout must be positive")
	}
	if c.Solver.RetryRelaxed && c.Solver.RelaxFactor <= 1 {
		return fmt.Errorf("solver.relax_factor must be > 1 when retry_relaxed is set")
	}
	return nil
}
