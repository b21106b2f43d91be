// Package config centralises runtime configuration for spawnpool.
package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/coachpo/spawnpool/errs"
	"github.com/coachpo/spawnpool/internal/observability"
	"github.com/coachpo/spawnpool/internal/pool"
	"github.com/coachpo/spawnpool/internal/telemetry"
)

// Environment identifies the runtime environment.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// Default pool keys used by the simulation.
const (
	PoolProjectile = "projectile"
	PoolImpact     = "impact"
	PoolMarker     = "marker"
)

// LogSettings configures the zap logger.
type LogSettings struct {
	Level       string `yaml:"level"`
	Encoding    string `yaml:"encoding"`
	Development bool   `yaml:"development"`
}

// TelemetrySettings configures the OTLP metric exporter.
type TelemetrySettings struct {
	Enabled        bool          `yaml:"enabled"`
	OTLPEndpoint   string        `yaml:"otlpEndpoint"`
	Insecure       bool          `yaml:"insecure"`
	MetricInterval time.Duration `yaml:"metricInterval"`
	ServiceName    string        `yaml:"serviceName"`
}

// ClockSettings configures the frame clock.
type ClockSettings struct {
	TimeScale     float64       `yaml:"timeScale"`
	FrameInterval time.Duration `yaml:"frameInterval"`
}

// SimulationSettings drives the run command.
type SimulationSettings struct {
	Duration      time.Duration `yaml:"duration"`
	SpawnPerFrame int           `yaml:"spawnPerFrame"`
	Lifetime      time.Duration `yaml:"lifetime"`
	WorldLength   time.Duration `yaml:"worldLength"`
	StatsInterval time.Duration `yaml:"statsInterval"`
}

// PoolSettings is the creation-time configuration of one pool.
type PoolSettings struct {
	InitialSize   int    `yaml:"initialSize"`
	Discipline    string `yaml:"discipline"`
	ContainerName string `yaml:"containerName"`
	Persistent    bool   `yaml:"persistent"`
	Foreign       string `yaml:"foreign"`
}

// Settings contains the configuration tree loaded from defaults, an optional
// YAML file and environment overrides.
type Settings struct {
	Environment Environment             `yaml:"environment"`
	Log         LogSettings             `yaml:"log"`
	Telemetry   TelemetrySettings       `yaml:"telemetry"`
	Clock       ClockSettings           `yaml:"clock"`
	Simulation  SimulationSettings      `yaml:"simulation"`
	Pools       map[string]PoolSettings `yaml:"pools"`
}

// Default returns the default configuration.
func Default() Settings {
	return Settings{
		Environment: EnvDev,
		Log: LogSettings{
			Level:    "info",
			Encoding: "console",
		},
		Telemetry: TelemetrySettings{
			Enabled:        false,
			OTLPEndpoint:   "localhost:4318",
			Insecure:       true,
			MetricInterval: 30 * time.Second,
			ServiceName:    "spawnpool",
		},
		Clock: ClockSettings{
			TimeScale:     1,
			FrameInterval: 16 * time.Millisecond,
		},
		Simulation: SimulationSettings{
			Duration:      10 * time.Second,
			SpawnPerFrame: 4,
			Lifetime:      750 * time.Millisecond,
			WorldLength:   4 * time.Second,
			StatsInterval: time.Second,
		},
		Pools: map[string]PoolSettings{
			PoolProjectile: {InitialSize: 32, Discipline: "stack"},
			PoolImpact:     {InitialSize: 8, Discipline: "queue"},
			PoolMarker:     {Discipline: "stack", Persistent: true, ContainerName: "Markers"},
		},
	}
}

// FromEnv loads configuration values from environment variables, overriding defaults.
func FromEnv() Settings {
	cfg := Default()
	applyEnv(&cfg)
	return cfg
}

func applyEnv(cfg *Settings) {
	if env := strings.TrimSpace(os.Getenv("SPAWNPOOL_ENV")); env != "" {
		cfg.Environment = Environment(strings.ToLower(env))
	}
	if v := strings.TrimSpace(os.Getenv("SPAWNPOOL_LOG_LEVEL")); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("SPAWNPOOL_LOG_ENCODING")); v != "" {
		cfg.Log.Encoding = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("SPAWNPOOL_TIME_SCALE")); v != "" {
		if scale, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Clock.TimeScale = scale
		}
	}
	if v := strings.TrimSpace(os.Getenv("SPAWNPOOL_FRAME_INTERVAL")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.Clock.FrameInterval = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("SPAWNPOOL_DURATION")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.Simulation.Duration = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_ENABLED")); v != "" {
		cfg.Telemetry.Enabled = v == "true"
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); v != "" {
		cfg.Telemetry.Insecure = v == "true"
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")); v != "" {
		cfg.Telemetry.ServiceName = v
	}
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies the provided Option set to a copy of the base Settings.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base.clone()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEnvironment configures the top-level environment.
func WithEnvironment(env Environment) Option {
	return func(s *Settings) {
		if env != "" {
			s.Environment = env
		}
	}
}

// WithLogLevel overrides the log level.
func WithLogLevel(level string) Option {
	level = strings.ToLower(strings.TrimSpace(level))
	return func(s *Settings) {
		if level != "" {
			s.Log.Level = level
		}
	}
}

// WithTimeScale overrides the scaled-time multiplier.
func WithTimeScale(scale float64) Option {
	return func(s *Settings) { s.Clock.TimeScale = scale }
}

// WithDuration overrides how long the simulation runs.
func WithDuration(d time.Duration) Option {
	return func(s *Settings) {
		if d > 0 {
			s.Simulation.Duration = d
		}
	}
}

// WithPool sets or replaces the settings of one pool.
func WithPool(name string, ps PoolSettings) Option {
	name = strings.TrimSpace(name)
	return func(s *Settings) {
		if name == "" {
			return
		}
		if s.Pools == nil {
			s.Pools = make(map[string]PoolSettings)
		}
		s.Pools[name] = ps
	}
}

// Pool returns the settings for name, or the zero settings when absent.
func (s Settings) Pool(name string) (PoolSettings, bool) {
	ps, ok := s.Pools[name]
	return ps, ok
}

// PoolNames lists the configured pools in sorted order.
func (s Settings) PoolNames() []string {
	names := make([]string, 0, len(s.Pools))
	for name := range s.Pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoggerConfig maps the log settings onto the observability logger config.
func (s Settings) LoggerConfig() observability.Config {
	return observability.Config{
		Level:       s.Log.Level,
		Development: s.Log.Development,
		Encoding:    s.Log.Encoding,
	}
}

// TelemetryConfig maps the telemetry settings onto the provider config.
func (s Settings) TelemetryConfig() telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.Enabled = s.Telemetry.Enabled
	cfg.OTLPEndpoint = s.Telemetry.OTLPEndpoint
	cfg.OTLPInsecure = s.Telemetry.Insecure
	if s.Telemetry.MetricInterval > 0 {
		cfg.ExportInterval = s.Telemetry.MetricInterval
	}
	if s.Telemetry.ServiceName != "" {
		cfg.ServiceName = s.Telemetry.ServiceName
	}
	cfg.Environment = string(s.Environment)
	return cfg
}

// Validate performs semantic validation on the settings.
func (s Settings) Validate() error {
	switch s.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return invalid("environment", "must be dev|staging|prod, got %q", s.Environment)
	}
	if s.Clock.TimeScale < 0 {
		return invalid("clock.timeScale", "must be >=0")
	}
	if s.Clock.FrameInterval <= 0 {
		return invalid("clock.frameInterval", "must be >0")
	}
	if s.Simulation.Duration <= 0 {
		return invalid("simulation.duration", "must be >0")
	}
	if s.Simulation.SpawnPerFrame < 0 {
		return invalid("simulation.spawnPerFrame", "must be >=0")
	}
	if s.Simulation.Lifetime <= 0 {
		return invalid("simulation.lifetime", "must be >0")
	}
	if s.Simulation.WorldLength < 0 {
		return invalid("simulation.worldLength", "must be >=0")
	}
	if s.Telemetry.Enabled && strings.TrimSpace(s.Telemetry.OTLPEndpoint) == "" {
		return invalid("telemetry.otlpEndpoint", "required when telemetry is enabled")
	}
	for _, name := range s.PoolNames() {
		if _, err := s.Pools[name].Options(); err != nil {
			return errs.New("config", errs.CodeConfig,
				errs.WithMessage("invalid pool settings"),
				errs.WithField("pool", name),
				errs.WithCause(err))
		}
	}
	return nil
}

// Options converts the settings into pool creation options.
func (p PoolSettings) Options() ([]pool.Option, error) {
	if p.InitialSize < 0 {
		return nil, invalid("initialSize", "must be >=0, got %d", p.InitialSize)
	}
	discipline, err := pool.ParseDiscipline(p.Discipline)
	if err != nil {
		return nil, err
	}
	foreign, err := pool.ParseForeignPolicy(p.Foreign)
	if err != nil {
		return nil, err
	}
	opts := []pool.Option{
		pool.WithInitialSize(p.InitialSize),
		pool.WithDiscipline(discipline),
		pool.WithForeignPolicy(foreign),
	}
	if name := strings.TrimSpace(p.ContainerName); name != "" {
		opts = append(opts, pool.WithContainerName(name))
	}
	if p.Persistent {
		opts = append(opts, pool.Persistent())
	}
	return opts, nil
}

func (s Settings) clone() Settings {
	out := s
	if s.Pools != nil {
		out.Pools = make(map[string]PoolSettings, len(s.Pools))
		for k, v := range s.Pools {
			out.Pools[k] = v
		}
	}
	return out
}

func invalid(field, format string, args ...any) error {
	return errs.New("config", errs.CodeConfig,
		errs.WithMessagef(format, args...),
		errs.WithField("field", field))
}
