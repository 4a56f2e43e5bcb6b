// Package config defines all configuration for the Flox event distribution
// core. Config is loaded from a YAML file (default: configs/config.yaml)
// with overrides via FLOX_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Bus        BusConfig        `mapstructure:"bus"`
	Pool       PoolConfig       `mapstructure:"pool"`
	Book       BookConfig       `mapstructure:"book"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Router     RouterConfig     `mapstructure:"router"`
	Replay     ReplayConfig     `mapstructure:"replay"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// BackoffKind enumerates the bus suspension back-off policies.
type BackoffKind string

const (
	BackoffAggressive BackoffKind = "aggressive"
	BackoffRelaxed    BackoffKind = "relaxed"
	BackoffAdaptive   BackoffKind = "adaptive"
)

// BusConfig tunes one event bus instance. Capacity is validated as a power
// of two by Validate(); MaxConsumers bounds how many Subscribe calls succeed
// before Start.
type BusConfig struct {
	Capacity      int           `mapstructure:"capacity"`
	MaxConsumers  int           `mapstructure:"max_consumers"`
	Backoff       BackoffKind   `mapstructure:"backoff"`
	DrainOnStop   bool          `mapstructure:"drain_on_stop"`
	RealtimePrio  bool          `mapstructure:"realtime_priority"`
	AffinityPlan  []int         `mapstructure:"affinity_plan"` // consumer index -> OS core id, empty = no pinning
	PublishDeadline time.Duration `mapstructure:"publish_deadline"`
}

// PoolConfig sizes one object pool.
type PoolConfig struct {
	Capacity   int `mapstructure:"capacity"`
	ArenaBytes int `mapstructure:"arena_bytes"` // per-object arena for variable-sized payloads
}

// BookConfig sizes one N-level order book.
type BookConfig struct {
	MaxLevels      int     `mapstructure:"max_levels"`
	TickSize       float64 `mapstructure:"tick_size"`
	HysteresisTicks int    `mapstructure:"hysteresis_ticks"`
}

// AggregatorConfig parameterises one bar aggregator.
type AggregatorConfig struct {
	PolicyKind   string        `mapstructure:"policy_kind"` // time|tick|volume|range|renko|heikin_ashi
	Interval     time.Duration `mapstructure:"interval"`    // for time/heikin_ashi
	TickCount    int           `mapstructure:"tick_count"`  // for tick
	VolumeThresh float64       `mapstructure:"volume_threshold"`
	RangeTicks   int           `mapstructure:"range_ticks"`
	BrickTicks   int           `mapstructure:"brick_ticks"` // for renko
	MaxSymbols   int           `mapstructure:"max_symbols"`
	MatrixDepth  int           `mapstructure:"matrix_depth"`
}

// RouterStrategy enumerates order routing strategies.
type RouterStrategy string

const (
	RouteBestPrice     RouterStrategy = "best_price"
	RouteLowestLatency RouterStrategy = "lowest_latency"
	RouteLargestSize   RouterStrategy = "largest_size"
	RouteRoundRobin    RouterStrategy = "round_robin"
	RouteExplicit      RouterStrategy = "explicit"
)

// FailoverPolicy enumerates router failover behaviours.
type FailoverPolicy string

const (
	FailoverReject  FailoverPolicy = "reject"
	FailoverFailover FailoverPolicy = "failover"
	FailoverNotify  FailoverPolicy = "notify"
)

// RouterConfig configures the multi-exchange order router.
type RouterConfig struct {
	Strategy RouterStrategy `mapstructure:"strategy"`
	Failover FailoverPolicy `mapstructure:"failover"`
}

// ReplayConfig configures the segment codec.
type ReplayConfig struct {
	DataDir         string `mapstructure:"data_dir"`
	CompressBlocks  int    `mapstructure:"compress_block_frames"` // 0 = no compression
	WriteIndex      bool   `mapstructure:"write_index"`
}

// LoggingConfig selects slog level/format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the Prometheus counter/gauge surface. Metrics are
// entirely optional: a nil-safe no-op recorder is used when disabled.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads config from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FLOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if dir := os.Getenv("FLOX_REPLAY_DATA_DIR"); dir != "" {
		cfg.Replay.DataDir = dir
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bus.capacity", 4096)
	v.SetDefault("bus.max_consumers", 8)
	v.SetDefault("bus.backoff", BackoffAdaptive)
	v.SetDefault("bus.drain_on_stop", true)
	v.SetDefault("pool.capacity", 1024)
	v.SetDefault("pool.arena_bytes", 4096)
	v.SetDefault("book.max_levels", 2000)
	v.SetDefault("book.hysteresis_ticks", 64)
	v.SetDefault("aggregator.policy_kind", "time")
	v.SetDefault("aggregator.max_symbols", 4096)
	v.SetDefault("aggregator.matrix_depth", 256)
	v.SetDefault("router.strategy", RouteBestPrice)
	v.SetDefault("router.failover", FailoverFailover)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Bus.Capacity <= 0 || c.Bus.Capacity&(c.Bus.Capacity-1) != 0 {
		return fmt.Errorf("bus.capacity must be a power of two, got %d", c.Bus.Capacity)
	}
	if c.Bus.MaxConsumers <= 0 {
		return fmt.Errorf("bus.max_consumers must be > 0")
	}
	switch c.Bus.Backoff {
	case BackoffAggressive, BackoffRelaxed, BackoffAdaptive:
	default:
		return fmt.Errorf("bus.backoff must be one of: aggressive, relaxed, adaptive")
	}
	if c.Pool.Capacity <= 0 {
		return fmt.Errorf("pool.capacity must be > 0")
	}
	if c.Book.MaxLevels <= 0 {
		return fmt.Errorf("book.max_levels must be > 0")
	}
	if c.Book.TickSize <= 0 {
		return fmt.Errorf("book.tick_size must be > 0")
	}
	switch c.Router.Strategy {
	case RouteBestPrice, RouteLowestLatency, RouteLargestSize, RouteRoundRobin, RouteExplicit:
	default:
		return fmt.Errorf("router.strategy invalid: %s", c.Router.Strategy)
	}
	switch c.Router.Failover {
	case FailoverReject, FailoverFailover, FailoverNotify:
	default:
		return fmt.Errorf("router.failover invalid: %s", c.Router.Failover)
	}
	return nil
}
