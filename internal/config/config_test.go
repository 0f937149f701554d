package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Capture.Interfaces = []string{"eth0", "eth1"}
	cfg.Flow.MaxFlows = 500

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestFlowTrackerOptionsOnlyAppliedWhenSet(t *testing.T) {
	var empty FlowConfig
	require.Empty(t, empty.FlowTrackerOptions())

	full := FlowConfig{MaxFlows: 100, FlowTimeout: 30}
	require.Len(t, full.FlowTrackerOptions(), 2)
}
