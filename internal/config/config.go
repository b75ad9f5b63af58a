package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the arbitrage engine.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	RPC        RPCConfig        `mapstructure:"rpc"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Gas        GasConfig        `mapstructure:"gas"`
	Timing     TimingConfig     `mapstructure:"timing"`
	Profit     ProfitConfig     `mapstructure:"profit"`
	Scanner    ScannerConfig    `mapstructure:"scanner"`
	Venues     []VenueConfig    `mapstructure:"venues"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig contains API server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// RPCConfig contains chain RPC configuration.
type RPCConfig struct {
	URL            string        `mapstructure:"url"`
	WSURL          string        `mapstructure:"ws_url"`
	PrivateKey     string        `mapstructure:"private_key"`
	ChainID        int64         `mapstructure:"chain_id"`
	ReceiptTimeout time.Duration `mapstructure:"receipt_timeout"`
	ReceiptPoll    time.Duration `mapstructure:"receipt_poll"`
}

// DedupConfig contains dedup/aggregation engine configuration.
type DedupConfig struct {
	MaxCacheSize int           `mapstructure:"max_cache_size"`
	DedupWindow  time.Duration `mapstructure:"dedup_window"`
	CacheTimeout time.Duration `mapstructure:"cache_timeout"`
	Lightweight  bool          `mapstructure:"lightweight"`
}

// RiskConfig contains risk controller limits. Amounts are wei strings.
type RiskConfig struct {
	MaxDailyLoss           string        `mapstructure:"max_daily_loss"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	MaxDrawdown            float64       `mapstructure:"max_drawdown"`
	MinBalance             string        `mapstructure:"min_balance"`
	CooldownPeriod         time.Duration `mapstructure:"cooldown_period"`
}

// GasConfig contains gas controller thresholds.
type GasConfig struct {
	MaxGasPriceGwei      float64       `mapstructure:"max_gas_price_gwei"`
	TargetGasPriceGwei   float64       `mapstructure:"target_gas_price_gwei"`
	PeakHourMultiplier   float64       `mapstructure:"peak_hour_multiplier"`
	HistoricalBlockCount int           `mapstructure:"historical_block_count"`
	CacheTimeout         time.Duration `mapstructure:"cache_timeout"`
	CompetitiveMarkup    float64       `mapstructure:"competitive_markup"`
}

// TimingConfig contains anti-frontrunning timing parameters.
type TimingConfig struct {
	MinTimeBetweenTrades time.Duration `mapstructure:"min_time_between_trades"`
	MaxRandomDelay       time.Duration `mapstructure:"max_random_delay"`
	BundleSize           int           `mapstructure:"bundle_size"`
	SlippageMultiplier   float64       `mapstructure:"slippage_multiplier"`
	SlippageCapBps       int64         `mapstructure:"slippage_cap_bps"`
}

// ProfitConfig contains loan sizing parameters.
type ProfitConfig struct {
	MaxReservesBps int64 `mapstructure:"max_reserves_bps"`
	DrawBps        int64 `mapstructure:"draw_bps"`
}

// ScannerConfig contains scan loop configuration.
type ScannerConfig struct {
	ScanInterval    time.Duration `mapstructure:"scan_interval"`
	MinProfitBps    int64         `mapstructure:"min_profit_bps"`
	ProbeAmount     string        `mapstructure:"probe_amount"`
	SpeedMultiplier float64       `mapstructure:"speed_multiplier"`
	Cycles          []CycleConfig `mapstructure:"cycles"`
}

// CycleConfig is one configured arbitrage cycle: a cyclic token path with
// one venue per hop.
type CycleConfig struct {
	Path   []string `mapstructure:"path"`
	Venues []string `mapstructure:"venues"`
}

// VenueConfig describes one quoting venue: a V2-style router plus the pool
// address per directed pair key ("0xtokenin-0xtokenout", lowercase).
type VenueConfig struct {
	Name   string            `mapstructure:"name"`
	Router string            `mapstructure:"router"`
	Pools  map[string]string `mapstructure:"pools"`
}

// PipelineConfig contains orchestrator and worker pool configuration.
type PipelineConfig struct {
	RevalidationToleranceBps int64         `mapstructure:"revalidation_tolerance_bps"`
	BaseSlippageBps          int64         `mapstructure:"base_slippage_bps"`
	GasUnits                 uint64        `mapstructure:"gas_units"`
	SimulationTimeout        time.Duration `mapstructure:"simulation_timeout"`
	BroadcastTimeout         time.Duration `mapstructure:"broadcast_timeout"`
	BundleMaxWait            time.Duration `mapstructure:"bundle_max_wait"`
	Contract                 string        `mapstructure:"contract"`
	WorkerPoolSize           int           `mapstructure:"worker_pool_size"`
	QueueCapacity            int           `mapstructure:"queue_capacity"`
}

// MonitoringConfig contains metrics configuration.
type MonitoringConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// RPC defaults
	viper.SetDefault("rpc.url", "https://mainnet.base.org")
	viper.SetDefault("rpc.ws_url", "")
	viper.SetDefault("rpc.chain_id", 8453)
	viper.SetDefault("rpc.receipt_timeout", "30s")
	viper.SetDefault("rpc.receipt_poll", "1s")

	// Dedup defaults
	viper.SetDefault("dedup.max_cache_size", 20000)
	viper.SetDefault("dedup.dedup_window", "5s")
	viper.SetDefault("dedup.cache_timeout", "30s")
	viper.SetDefault("dedup.lightweight", false)

	// Risk defaults
	viper.SetDefault("risk.max_daily_loss", "50000000000000000") // 0.05 ETH
	viper.SetDefault("risk.max_consecutive_failures", 3)
	viper.SetDefault("risk.max_drawdown", 0.10)
	viper.SetDefault("risk.min_balance", "10000000000000000") // 0.01 ETH
	viper.SetDefault("risk.cooldown_period", "30m")

	// Gas defaults
	viper.SetDefault("gas.max_gas_price_gwei", 100.0)
	viper.SetDefault("gas.target_gas_price_gwei", 30.0)
	viper.SetDefault("gas.peak_hour_multiplier", 1.5)
	viper.SetDefault("gas.historical_block_count", 20)
	viper.SetDefault("gas.cache_timeout", "30s")
	viper.SetDefault("gas.competitive_markup", 0.10)

	// Timing defaults
	viper.SetDefault("timing.min_time_between_trades", "30s")
	viper.SetDefault("timing.max_random_delay", "5s")
	viper.SetDefault("timing.bundle_size", 3)
	viper.SetDefault("timing.slippage_multiplier", 1.5)
	viper.SetDefault("timing.slippage_cap_bps", 200)

	// Profit defaults
	viper.SetDefault("profit.max_reserves_bps", 1500)
	viper.SetDefault("profit.draw_bps", 5000)

	// Scanner defaults
	viper.SetDefault("scanner.scan_interval", "3s")
	viper.SetDefault("scanner.min_profit_bps", 50)
	viper.SetDefault("scanner.probe_amount", "1000000000000000000") // 1 ETH
	viper.SetDefault("scanner.speed_multiplier", 3.0)

	// Pipeline defaults
	viper.SetDefault("pipeline.revalidation_tolerance_bps", 9500)
	viper.SetDefault("pipeline.base_slippage_bps", 50)
	viper.SetDefault("pipeline.gas_units", 400000)
	viper.SetDefault("pipeline.simulation_timeout", "5s")
	viper.SetDefault("pipeline.broadcast_timeout", "30s")
	viper.SetDefault("pipeline.bundle_max_wait", "2s")
	viper.SetDefault("pipeline.worker_pool_size", 8)
	viper.SetDefault("pipeline.queue_capacity", 1000)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_port", 9090)
}
