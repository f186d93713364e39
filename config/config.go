// Package config loads system.Config from a file, environment variables,
// and flags through viper, with hot reload of the fields that can change
// safely at runtime. Identity-shaping fields (shard count, virtual nodes,
// parallelism) are fixed for the life of a system; a reload that changes
// them logs a warning and keeps the running values.
package config

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/actorforge/actorcore/system"
)

const envPrefix = "ACTORCORE"

// File mirrors the on-disk shape of a system configuration.
type File struct {
	Parallelism     int           `mapstructure:"parallelism"`
	MailboxCapacity int           `mapstructure:"mailbox_capacity"`
	Throughput      int           `mapstructure:"throughput"`
	ShardCount      int           `mapstructure:"shard_count"`
	VirtualNodes    int           `mapstructure:"virtual_nodes"`
	Tick            time.Duration `mapstructure:"tick"`
	AskTimeout      time.Duration `mapstructure:"ask_timeout"`
}

// Loader reads and watches one configuration source.
type Loader struct {
	v      *viper.Viper
	logger *slog.Logger

	mu      sync.Mutex
	current File
	onHot   func(HotValues)
}

// HotValues are the fields a running system may pick up without restart.
type HotValues struct {
	Throughput int
	AskTimeout time.Duration
}

// BindFlags registers the standard command-line flags on fs and wires them
// into the loader's precedence chain (flags > env > file > defaults).
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	fs.Int("parallelism", 0, "default dispatcher worker count (0 = NumCPU)")
	fs.Int("mailbox-capacity", 0, "default mailbox capacity (0 = 1000)")
	fs.Int("throughput", 0, "dispatcher quantum (0 = 5)")
	fs.Int("shard-count", 0, "shard keyspace size, power of two (0 = 128)")
	fs.Int("virtual-nodes", 0, "hash ring virtual nodes per member (0 = 100)")
	fs.Duration("tick", 0, "scheduler granularity (0 = 10ms)")
	fs.Duration("ask-timeout", 0, "default ask window (0 = 5s)")

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if bindErr := l.v.BindPFlag(key, f); bindErr != nil && err == nil {
			err = bindErr
		}
	})
	return err
}

// New creates a loader. path may be empty for env/flags-only operation.
func New(path string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	}
	return &Loader{v: v, logger: logger}
}

// Load reads the configuration and returns the resulting system.Config.
func (l *Loader) Load() (system.Config, error) {
	if l.v.ConfigFileUsed() != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return system.Config{}, err
		}
	}
	var f File
	if err := l.v.Unmarshal(&f); err != nil {
		return system.Config{}, err
	}

	l.mu.Lock()
	l.current = f
	l.mu.Unlock()

	return system.Config{
		DefaultParallelism:     f.Parallelism,
		DefaultMailboxCapacity: f.MailboxCapacity,
		Throughput:             f.Throughput,
		ShardCount:             f.ShardCount,
		VirtualNodes:           f.VirtualNodes,
		Tick:                   f.Tick,
		AskTimeout:             f.AskTimeout,
		Logger:                 l.logger,
	}, nil
}

// Watch re-reads the file on change and invokes onHot with the reloadable
// fields. Changes to identity fields are logged and ignored until restart.
func (l *Loader) Watch(onHot func(HotValues)) {
	l.mu.Lock()
	l.onHot = onHot
	l.mu.Unlock()

	l.v.OnConfigChange(func(fsnotify.Event) {
		var next File
		if err := l.v.Unmarshal(&next); err != nil {
			l.logger.Warn("config reload failed", "error", err)
			return
		}

		l.mu.Lock()
		prev := l.current
		l.current = next
		cb := l.onHot
		l.mu.Unlock()

		if next.ShardCount != prev.ShardCount ||
			next.VirtualNodes != prev.VirtualNodes ||
			next.Parallelism != prev.Parallelism ||
			next.MailboxCapacity != prev.MailboxCapacity {
			l.logger.Warn("config reload changed fixed fields; restart required to apply",
				"shard_count", next.ShardCount,
				"virtual_nodes", next.VirtualNodes)
		}
		if cb != nil {
			cb(HotValues{Throughput: next.Throughput, AskTimeout: next.AskTimeout})
		}
	})
	l.v.WatchConfig()
}
