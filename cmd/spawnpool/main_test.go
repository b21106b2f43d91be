package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestConfigCommandPrintsYAML(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs([]string{"config"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "environment: dev")
	require.Contains(t, out.String(), "projectile:")
}

func TestRunCommandPrintsSummary(t *testing.T) {
	t.Setenv("SPAWNPOOL_FRAME_INTERVAL", "1ms")
	t.Setenv("SPAWNPOOL_LOG_LEVEL", "error")

	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs([]string{"run", "--duration", "30ms", "--log-level", "error"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	var summary struct {
		Frames   uint64 `json:"frames"`
		Fired    int    `json:"fired"`
		Failures int    `json:"failures"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &summary))
	require.Positive(t, summary.Frames)
	require.Positive(t, summary.Fired)
	require.Zero(t, summary.Failures)
}

func TestRunCommandRejectsBadTimeScale(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs([]string{"run", "--time-scale", "-2"})
	require.Error(t, root.ExecuteContext(context.Background()))
}

func TestRunCommandStreamsStatsBeforeSummary(t *testing.T) {
	t.Setenv("SPAWNPOOL_FRAME_INTERVAL", "1ms")

	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs([]string{"run", "--duration", "20ms", "--log-level", "error", "--stats"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 2)

	var stats []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &stats))
	require.NotEmpty(t, stats)
	require.Equal(t, "projectile Pool", stats[0].Name)
	require.True(t, strings.HasPrefix(lines[len(lines)-1], "{"))
}
