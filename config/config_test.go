package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/spawnpool/errs"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.Equal(t, EnvDev, cfg.Environment)
	require.NoError(t, cfg.Validate())
	require.Equal(t, []string{PoolImpact, PoolMarker, PoolProjectile}, cfg.PoolNames())

	marker, ok := cfg.Pool(PoolMarker)
	require.True(t, ok)
	require.True(t, marker.Persistent)
}

func TestFromEnvOverridesValues(t *testing.T) {
	t.Setenv("SPAWNPOOL_ENV", "STAGING")
	t.Setenv("SPAWNPOOL_LOG_LEVEL", "DEBUG")
	t.Setenv("SPAWNPOOL_TIME_SCALE", "0.5")
	t.Setenv("SPAWNPOOL_FRAME_INTERVAL", "20ms")
	t.Setenv("SPAWNPOOL_DURATION", "3s")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")

	cfg := FromEnv()
	require.Equal(t, EnvStaging, cfg.Environment)
	require.Equal(t, "debug", cfg.Log.Level)
	require.InDelta(t, 0.5, cfg.Clock.TimeScale, 1e-9)
	require.Equal(t, 20*time.Millisecond, cfg.Clock.FrameInterval)
	require.Equal(t, 3*time.Second, cfg.Simulation.Duration)
	require.True(t, cfg.Telemetry.Enabled)
	require.Equal(t, "collector:4318", cfg.Telemetry.OTLPEndpoint)

	tc := cfg.TelemetryConfig()
	require.True(t, tc.Enabled)
	require.Equal(t, "staging", tc.Environment)
}

func TestFromEnvIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("SPAWNPOOL_TIME_SCALE", "fast")
	t.Setenv("SPAWNPOOL_DURATION", "forever")

	cfg := FromEnv()
	require.InDelta(t, 1.0, cfg.Clock.TimeScale, 1e-9)
	require.Equal(t, Default().Simulation.Duration, cfg.Simulation.Duration)
}

func TestApplyDoesNotMutateBase(t *testing.T) {
	base := Default()
	cfg := Apply(base,
		WithEnvironment(EnvProd),
		WithLogLevel(" WARN "),
		WithTimeScale(2),
		WithDuration(time.Minute),
		WithPool("spark", PoolSettings{InitialSize: 2, Discipline: "queue"}),
	)

	require.Equal(t, EnvProd, cfg.Environment)
	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, time.Minute, cfg.Simulation.Duration)
	_, ok := cfg.Pool("spark")
	require.True(t, ok)

	_, ok = base.Pool("spark")
	require.False(t, ok)
	require.Equal(t, EnvDev, base.Environment)
}

func TestDecodeMergesOverDefaults(t *testing.T) {
	doc := `
environment: prod
clock:
  timeScale: 0.25
simulation:
  lifetime: 2s
pools:
  projectile:
    initialSize: 4
    discipline: queue
    foreign: ignore
`
	cfg, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, EnvProd, cfg.Environment)
	require.InDelta(t, 0.25, cfg.Clock.TimeScale, 1e-9)
	require.Equal(t, 2*time.Second, cfg.Simulation.Lifetime)
	require.Equal(t, Default().Clock.FrameInterval, cfg.Clock.FrameInterval)

	projectile, _ := cfg.Pool(PoolProjectile)
	require.Equal(t, PoolSettings{InitialSize: 4, Discipline: "queue", Foreign: "ignore"}, projectile)
	_, ok := cfg.Pool(PoolMarker)
	require.True(t, ok)
}

func TestDecodeRejectsMalformedYAML(t *testing.T) {
	_, err := Decode(strings.NewReader("pools: [unterminated"))
	require.True(t, errs.Is(err, errs.CodeConfig))
}

func TestLoadAppliesEnvOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spawnpool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: staging\nlog:\n  level: warn\n"), 0o600))
	t.Setenv("SPAWNPOOL_LOG_LEVEL", "error")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, EnvStaging, cfg.Environment)
	require.Equal(t, "error", cfg.Log.Level)
}

func TestLoadUsesConfigEnvVar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spawnpool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: prod\n"), 0o600))
	t.Setenv("SPAWNPOOL_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, EnvProd, cfg.Environment)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.True(t, errs.Is(err, errs.CodeConfig))
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cases := map[string]Option{
		"environment":   WithEnvironment("qa"),
		"time scale":    WithTimeScale(-1),
		"discipline":    WithPool("spark", PoolSettings{Discipline: "heap"}),
		"foreign":       WithPool("spark", PoolSettings{Foreign: "keep"}),
		"negative size": WithPool("spark", PoolSettings{InitialSize: -3}),
		"frame interval": func(s *Settings) {
			s.Clock.FrameInterval = 0
		},
		"otlp endpoint": func(s *Settings) {
			s.Telemetry.Enabled = true
			s.Telemetry.OTLPEndpoint = " "
		},
	}
	for name, opt := range cases {
		t.Run(name, func(t *testing.T) {
			err := Apply(Default(), opt).Validate()
			require.Error(t, err)
			require.True(t, errs.Is(err, errs.CodeConfig) || errs.Is(err, errs.CodeInvalidArgument), err.Error())
		})
	}
}

func TestPoolSettingsOptions(t *testing.T) {
	opts, err := PoolSettings{
		InitialSize:   2,
		Discipline:    "queue",
		ContainerName: "Sparks",
		Persistent:    true,
	}.Options()
	require.NoError(t, err)
	require.Len(t, opts, 5)

	_, err = PoolSettings{Discipline: "heap"}.Options()
	require.True(t, errs.Is(err, errs.CodeInvalidArgument))

	defaults, err := PoolSettings{}.Options()
	require.NoError(t, err)
	require.Len(t, defaults, 3)
}

func TestEncodeRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Default()))
	require.Contains(t, buf.String(), "frameInterval: 16ms")

	cfg, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}
