// Package config defines all configuration for the pipeline and the replay
// sandbox. Config is loaded from a YAML file with sensitive fields
// overridable via INFRAWATCH_* environment variables.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"solana-infra-watch/internal/domain"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	Chain         ChainConfig         `mapstructure:"chain"`
	Oracle        OracleConfig        `mapstructure:"oracle"`
	Detection     DetectionConfig     `mapstructure:"detection"`
	Absorption    AbsorptionConfig    `mapstructure:"absorption"`
	Stabilization StabilizationConfig `mapstructure:"stabilization"`
	Scoring       ScoringConfig       `mapstructure:"scoring"`
	Execution     ExecutionConfig     `mapstructure:"execution"`
	Capital       CapitalConfig       `mapstructure:"capital"`
	Replay        ReplayConfig        `mapstructure:"replay"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ChainConfig holds the Solana endpoints and the DEX programs to watch.
//
//   - Programs: program IDs to subscribe to; empty uses the built-in registry.
//   - RequestsPerSec: initial RPC rate before adaptive adjustment.
//   - MaxRetries: bounded backoff attempts for transient errors.
//   - MaxTrackedPools: LRU bound of the pool state store; an evicted pool
//     rebuilds on its next swap.
type ChainConfig struct {
	RPCEndpoint     string   `mapstructure:"rpc_endpoint"`
	WSEndpoint      string   `mapstructure:"ws_endpoint"`
	Programs        []string `mapstructure:"programs"`
	RequestsPerSec  float64  `mapstructure:"requests_per_sec"`
	MaxRetries      int      `mapstructure:"max_retries"`
	MaxTrackedPools int      `mapstructure:"max_tracked_pools"`
}

// OracleConfig points at the optional market-data oracle. When disabled or
// unreachable, consumers degrade to reserve-only liquidity metrics.
type OracleConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BaseURL   string `mapstructure:"base_url"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

// DetectionConfig tunes the large-sell detector.
//
//   - MinSellFraction/MaxSellFraction: a sell qualifies when its base value
//     divided by the pool's base reserve falls inside [min, max]. The band
//     excludes both noise and panic dumps. Fractions in [0,1].
//   - AbsorptionWindowSlots: observation window length after a qualifying sell.
//   - MaxResponseLatencySlots: buys later than this after the sell are never
//     attributed to it.
//   - PreEventPriceWindowSec: rolling window for the pre-event average price.
//   - RetentionSlots: finalized sell events are kept this long for reporting.
type DetectionConfig struct {
	MinSellFraction         float64 `mapstructure:"min_sell_fraction"`
	MaxSellFraction         float64 `mapstructure:"max_sell_fraction"`
	AbsorptionWindowSlots   int64   `mapstructure:"absorption_window_slots"`
	MaxResponseLatencySlots int64   `mapstructure:"max_response_latency_slots"`
	PreEventPriceWindowSec  int64   `mapstructure:"pre_event_price_window_sec"`
	RetentionSlots          int64   `mapstructure:"retention_slots"`
}

// AbsorptionConfig bounds the meaningful-absorption band, fractions of the
// triggering sell's base amount, both in [0,1].
type AbsorptionConfig struct {
	MinAbsorption float64 `mapstructure:"min_absorption"`
	MaxAbsorption float64 `mapstructure:"max_absorption"`
}

// StabilizationConfig tunes the post-absorption validator.
//
//   - StabilizationWindowSlots: how far past the observation window to look.
//   - MaxPriceDropPct: stabilization tolerates recovery down to -maxDrop.
//   - MinContractionPct: required volume contraction vs the event window.
//   - NewLowTolerance: fraction below postEventPrice that counts as a new low.
type StabilizationConfig struct {
	StabilizationWindowSlots int64   `mapstructure:"stabilization_window_slots"`
	MaxPriceDropPct          float64 `mapstructure:"max_price_drop_pct"`
	MinContractionPct        float64 `mapstructure:"min_contraction_pct"`
	NewLowTolerance          float64 `mapstructure:"new_low_tolerance"`
}

// ScoringConfig gates classification and drives decay.
type ScoringConfig struct {
	MinEvents            int     `mapstructure:"min_events"`
	MinTokens            int     `mapstructure:"min_tokens"`
	MinStabilizationRate float64 `mapstructure:"min_stabilization_rate"`
	MinConfidence        float64 `mapstructure:"min_confidence"`
	MaxTrackedWallets    int     `mapstructure:"max_tracked_wallets"`
	MaxEvidencePerWallet int     `mapstructure:"max_evidence_per_wallet"`
	DecayDays            float64 `mapstructure:"decay_days"`
	DecayStep            float64 `mapstructure:"decay_step"`
}

// ExecutionConfig configures the sandbox fill simulator. Mode names a preset
// (idealized | realistic | stress); fields explicitly present in the YAML
// override the preset's values.
type ExecutionConfig struct {
	Mode             string  `mapstructure:"mode"`
	LatencySlots     int64   `mapstructure:"latency_slots"`
	SlippageModel    string  `mapstructure:"slippage_model"`
	SlippageBps      float64 `mapstructure:"slippage_bps"`
	QuoteStaleProb   float64 `mapstructure:"quote_stale_prob"`
	RouteFailProb    float64 `mapstructure:"route_fail_prob"`
	PartialFillProb  float64 `mapstructure:"partial_fill_prob"`
	PartialFillRatio float64 `mapstructure:"partial_fill_ratio"`
	LpFeeBps         float64 `mapstructure:"lp_fee_bps"`
	PriorityFee      float64 `mapstructure:"priority_fee"`
}

// Params converts the config into domain execution parameters.
func (e ExecutionConfig) Params() domain.ExecutionParams {
	return domain.ExecutionParams{
		Mode:             e.Mode,
		LatencySlots:     e.LatencySlots,
		SlippageModel:    e.SlippageModel,
		SlippageBps:      e.SlippageBps,
		QuoteStaleProb:   e.QuoteStaleProb,
		RouteFailProb:    e.RouteFailProb,
		PartialFillProb:  e.PartialFillProb,
		PartialFillRatio: e.PartialFillRatio,
		LpFeeBps:         e.LpFeeBps,
		PriorityFee:      e.PriorityFee,
	}
}

// CapitalConfig caps the virtual portfolio.
type CapitalConfig struct {
	StartingCapitalBase    float64 `mapstructure:"starting_capital_base"`
	MaxPositionSizeBase    float64 `mapstructure:"max_position_size_base"`
	MaxConcurrentPositions int     `mapstructure:"max_concurrent_positions"`
	RiskPerTradePct        float64 `mapstructure:"risk_per_trade_pct"`
}

// ReplayConfig drives the sandbox run. Slot/time bounds of 0 mean unset;
// times are Unix seconds. Speed is one of "1x", "10x", "100x", "max".
type ReplayConfig struct {
	DatasetPath string `mapstructure:"dataset_path"`
	StartSlot   int64  `mapstructure:"start_slot"`
	EndSlot     int64  `mapstructure:"end_slot"`
	StartTime   int64  `mapstructure:"start_time"`
	EndTime     int64  `mapstructure:"end_time"`
	Speed       string `mapstructure:"speed"`
	OutputDir   string `mapstructure:"output_dir"`
	Seed        uint32 `mapstructure:"seed"`
}

// StorageConfig selects optional persistence backends. Empty DSN = memory only.
type StorageConfig struct {
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`
}

// ServerConfig controls the live-mode status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig: Level is a zerolog level name, Format is "json" or "console".
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NewLogger builds the process logger. An unknown level falls back to info
// rather than failing startup.
func (l LoggingConfig) NewLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var w io.Writer = os.Stderr
	if l.Format == "console" {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Load reads config from a YAML file with env var overrides. Sensitive
// fields use env vars: INFRAWATCH_RPC_ENDPOINT, INFRAWATCH_WS_ENDPOINT,
// INFRAWATCH_POSTGRES_DSN, INFRAWATCH_CLICKHOUSE_DSN, INFRAWATCH_ORACLE_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("INFRAWATCH")
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

	applyExecutionMode(v, &cfg.Execution)

	// Override sensitive fields from env
	if ep := os.Getenv("INFRAWATCH_RPC_ENDPOINT"); ep != "" {
		cfg.Chain.RPCEndpoint = ep
	}
	if ep := os.Getenv("INFRAWATCH_WS_ENDPOINT"); ep != "" {
		cfg.Chain.WSEndpoint = ep
	}
	if dsn := os.Getenv("INFRAWATCH_POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if dsn := os.Getenv("INFRAWATCH_CLICKHOUSE_DSN"); dsn != "" {
		cfg.Storage.ClickHouseDSN = dsn
	}
	if u := os.Getenv("INFRAWATCH_ORACLE_URL"); u != "" {
		cfg.Oracle.BaseURL = u
	}

	return &cfg, nil
}

// Default returns the configuration used when a knob is absent from the file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	applyExecutionMode(v, &cfg.Execution)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chain.requests_per_sec", 8.0)
	v.SetDefault("chain.max_retries", 5)

	v.SetDefault("oracle.enabled", false)
	v.SetDefault("oracle.timeout_ms", 2000)

	v.SetDefault("detection.min_sell_fraction", 0.01)
	v.SetDefault("detection.max_sell_fraction", 0.25)
	v.SetDefault("detection.absorption_window_slots", 75)   // ~30s at 400ms slots
	v.SetDefault("detection.max_response_latency_slots", 50)
	v.SetDefault("detection.pre_event_price_window_sec", 30)
	v.SetDefault("detection.retention_slots", 3000)

	v.SetDefault("absorption.min_absorption", 0.25)
	v.SetDefault("absorption.max_absorption", 1.0)

	v.SetDefault("stabilization.stabilization_window_slots", 150)
	v.SetDefault("stabilization.max_price_drop_pct", 3.0)
	v.SetDefault("stabilization.min_contraction_pct", 20.0)
	v.SetDefault("stabilization.new_low_tolerance", 0.02)

	v.SetDefault("scoring.min_events", 3)
	v.SetDefault("scoring.min_tokens", 2)
	v.SetDefault("scoring.min_stabilization_rate", 0.6)
	v.SetDefault("scoring.min_confidence", 40.0)
	v.SetDefault("scoring.max_tracked_wallets", 10000)
	v.SetDefault("scoring.max_evidence_per_wallet", 50)
	v.SetDefault("scoring.decay_days", 7.0)
	v.SetDefault("scoring.decay_step", 10.0)

	v.SetDefault("execution.mode", domain.ModeRealistic)

	v.SetDefault("capital.starting_capital_base", 100.0)
	v.SetDefault("capital.max_position_size_base", 5.0)
	v.SetDefault("capital.max_concurrent_positions", 5)
	v.SetDefault("capital.risk_per_trade_pct", 2.0)

	v.SetDefault("replay.speed", "max")
	v.SetDefault("replay.output_dir", "reports")
	v.SetDefault("replay.seed", 12345)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// applyExecutionMode seeds execution fields from the named preset; keys the
// file sets explicitly win over the preset.
func applyExecutionMode(v *viper.Viper, e *ExecutionConfig) {
	preset, ok := domain.ParamsForMode(e.Mode)
	if !ok {
		return // Validate reports the bad mode
	}
	if !v.IsSet("execution.latency_slots") {
		e.LatencySlots = preset.LatencySlots
	}
	if !v.IsSet("execution.slippage_model") {
		e.SlippageModel = preset.SlippageModel
	}
	if !v.IsSet("execution.slippage_bps") {
		e.SlippageBps = preset.SlippageBps
	}
	if !v.IsSet("execution.quote_stale_prob") {
		e.QuoteStaleProb = preset.QuoteStaleProb
	}
	if !v.IsSet("execution.route_fail_prob") {
		e.RouteFailProb = preset.RouteFailProb
	}
	if !v.IsSet("execution.partial_fill_prob") {
		e.PartialFillProb = preset.PartialFillProb
	}
	if !v.IsSet("execution.partial_fill_ratio") {
		e.PartialFillRatio = preset.PartialFillRatio
	}
	if !v.IsSet("execution.lp_fee_bps") {
		e.LpFeeBps = preset.LpFeeBps
	}
	if !v.IsSet("execution.priority_fee") {
		e.PriorityFee = preset.PriorityFee
	}
}

// Validate checks all value ranges. Invalid configuration fails startup.
func (c *Config) Validate() error {
	d := c.Detection
	if d.MinSellFraction < 0 || d.MinSellFraction > 1 {
		return fmt.Errorf("detection.min_sell_fraction must be in [0,1], got %v", d.MinSellFraction)
	}
	if d.MaxSellFraction < d.MinSellFraction || d.MaxSellFraction > 1 {
		return fmt.Errorf("detection.max_sell_fraction must be in [min_sell_fraction,1], got %v", d.MaxSellFraction)
	}
	if d.AbsorptionWindowSlots <= 0 {
		return fmt.Errorf("detection.absorption_window_slots must be > 0")
	}
	if d.MaxResponseLatencySlots <= 0 {
		return fmt.Errorf("detection.max_response_latency_slots must be > 0")
	}
	if d.PreEventPriceWindowSec <= 0 {
		return fmt.Errorf("detection.pre_event_price_window_sec must be > 0")
	}

	a := c.Absorption
	if a.MinAbsorption < 0 || a.MinAbsorption > 1 {
		return fmt.Errorf("absorption.min_absorption must be in [0,1], got %v", a.MinAbsorption)
	}
	if a.MaxAbsorption < a.MinAbsorption || a.MaxAbsorption > 1 {
		return fmt.Errorf("absorption.max_absorption must be in [min_absorption,1], got %v", a.MaxAbsorption)
	}

	s := c.Stabilization
	if s.StabilizationWindowSlots <= 0 {
		return fmt.Errorf("stabilization.stabilization_window_slots must be > 0")
	}
	if s.MaxPriceDropPct < 0 {
		return fmt.Errorf("stabilization.max_price_drop_pct must be >= 0")
	}
	if s.MinContractionPct < 0 || s.MinContractionPct > 100 {
		return fmt.Errorf("stabilization.min_contraction_pct must be in [0,100]")
	}
	if s.NewLowTolerance < 0 || s.NewLowTolerance > 1 {
		return fmt.Errorf("stabilization.new_low_tolerance must be in [0,1]")
	}

	sc := c.Scoring
	if sc.MinEvents < 1 {
		return fmt.Errorf("scoring.min_events must be >= 1")
	}
	if sc.MinTokens < 1 {
		return fmt.Errorf("scoring.min_tokens must be >= 1")
	}
	if sc.MinStabilizationRate < 0 || sc.MinStabilizationRate > 1 {
		return fmt.Errorf("scoring.min_stabilization_rate must be in [0,1]")
	}
	if sc.MinConfidence < 0 || sc.MinConfidence > 100 {
		return fmt.Errorf("scoring.min_confidence must be in [0,100]")
	}
	if sc.MaxTrackedWallets <= 0 {
		return fmt.Errorf("scoring.max_tracked_wallets must be > 0")
	}
	if sc.MaxEvidencePerWallet <= 0 {
		return fmt.Errorf("scoring.max_evidence_per_wallet must be > 0")
	}
	if sc.DecayDays <= 0 {
		return fmt.Errorf("scoring.decay_days must be > 0")
	}
	if sc.DecayStep <= 0 {
		return fmt.Errorf("scoring.decay_step must be > 0")
	}

	e := c.Execution
	if _, ok := domain.ParamsForMode(e.Mode); !ok {
		return fmt.Errorf("execution.mode must be one of: idealized, realistic, stress; got %q", e.Mode)
	}
	switch e.SlippageModel {
	case domain.SlippageNone, domain.SlippageConstant, domain.SlippageReserves:
	default:
		return fmt.Errorf("execution.slippage_model must be one of: none, constant, reserves; got %q", e.SlippageModel)
	}
	if e.LatencySlots < 0 {
		return fmt.Errorf("execution.latency_slots must be >= 0")
	}
	if e.SlippageBps < 0 {
		return fmt.Errorf("execution.slippage_bps must be >= 0")
	}
	for name, p := range map[string]float64{
		"execution.quote_stale_prob":  e.QuoteStaleProb,
		"execution.route_fail_prob":   e.RouteFailProb,
		"execution.partial_fill_prob": e.PartialFillProb,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, p)
		}
	}
	if e.PartialFillRatio <= 0 || e.PartialFillRatio > 1 {
		return fmt.Errorf("execution.partial_fill_ratio must be in (0,1]")
	}
	if e.LpFeeBps < 0 || e.PriorityFee < 0 {
		return fmt.Errorf("execution fees must be >= 0")
	}

	cl := c.Capital
	if cl.StartingCapitalBase <= 0 {
		return fmt.Errorf("capital.starting_capital_base must be > 0")
	}
	if cl.MaxPositionSizeBase <= 0 {
		return fmt.Errorf("capital.max_position_size_base must be > 0")
	}
	if cl.MaxConcurrentPositions < 1 {
		return fmt.Errorf("capital.max_concurrent_positions must be >= 1")
	}
	if cl.RiskPerTradePct <= 0 || cl.RiskPerTradePct > 100 {
		return fmt.Errorf("capital.risk_per_trade_pct must be in (0,100]")
	}

	r := c.Replay
	switch r.Speed {
	case "1x", "10x", "100x", "max":
	default:
		return fmt.Errorf("replay.speed must be one of: 1x, 10x, 100x, max; got %q", r.Speed)
	}
	if r.StartSlot < 0 || r.EndSlot < 0 {
		return fmt.Errorf("replay slot bounds must be >= 0")
	}
	if r.EndSlot > 0 && r.StartSlot > r.EndSlot {
		return fmt.Errorf("replay.start_slot must be <= replay.end_slot")
	}
	if r.EndTime > 0 && r.StartTime > r.EndTime {
		return fmt.Errorf("replay.start_time must be <= replay.end_time")
	}

	if c.Chain.RequestsPerSec <= 0 {
		return fmt.Errorf("chain.requests_per_sec must be > 0")
	}
	if c.Chain.MaxRetries < 0 {
		return fmt.Errorf("chain.max_retries must be >= 0")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port must be a valid port")
	}
	return nil
}
