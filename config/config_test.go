package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfigFile(t *testing.T, values map[string]interface{}) string {
	t.Helper()
	data, err := yaml.Marshal(values)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "actorcore.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, map[string]interface{}{
		"parallelism":      4,
		"mailbox_capacity": 256,
		"throughput":       10,
		"shard_count":      64,
		"virtual_nodes":    50,
		"tick":             "20ms",
		"ask_timeout":      "2s",
	})

	cfg, err := New(path, nil).Load()
	require.NoError(t, err)
	require.Equal(t, 4, cfg.DefaultParallelism)
	require.Equal(t, 256, cfg.DefaultMailboxCapacity)
	require.Equal(t, 10, cfg.Throughput)
	require.Equal(t, 64, cfg.ShardCount)
	require.Equal(t, 50, cfg.VirtualNodes)
	require.Equal(t, 20*time.Millisecond, cfg.Tick)
	require.Equal(t, 2*time.Second, cfg.AskTimeout)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, map[string]interface{}{"throughput": 10})
	t.Setenv("ACTORCORE_THROUGHPUT", "25")

	cfg, err := New(path, nil).Load()
	require.NoError(t, err)
	require.Equal(t, 25, cfg.Throughput)
}

func TestFlagsOverrideEverything(t *testing.T) {
	path := writeConfigFile(t, map[string]interface{}{"shard_count": 64})
	t.Setenv("ACTORCORE_SHARD_COUNT", "32")

	l := New(path, nil)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, l.BindFlags(fs))
	require.NoError(t, fs.Parse([]string{"--shard-count=16"}))

	cfg, err := l.Load()
	require.NoError(t, err)
	require.Equal(t, 16, cfg.ShardCount)
}

func TestWatchDeliversHotValues(t *testing.T) {
	path := writeConfigFile(t, map[string]interface{}{
		"throughput":  5,
		"ask_timeout": "1s",
	})

	l := New(path, nil)
	_, err := l.Load()
	require.NoError(t, err)

	hot := make(chan HotValues, 4)
	l.Watch(func(v HotValues) { hot <- v })

	data, err := yaml.Marshal(map[string]interface{}{
		"throughput":  9,
		"ask_timeout": "3s",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	select {
	case v := <-hot:
		require.Equal(t, 9, v.Throughput)
		require.Equal(t, 3*time.Second, v.AskTimeout)
	case <-time.After(5 * time.Second):
		t.Fatal("config change never observed")
	}
}
