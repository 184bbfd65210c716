package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSource       = "events.json"
	DefaultTarget       = "kafka://localhost:9092/device-events"
	DefaultInterval     = time.Minute
	DefaultFlushTimeout = 30 * time.Second
)

type Logger struct {
	Level string `yaml:"level"`
}

type Global struct {
	Logger Logger `yaml:"logger"`
}

type Source struct {
	URI     string `yaml:"uri"`
	Lenient bool   `yaml:"lenient"`
}

type Sync struct {
	Interval time.Duration `yaml:"interval"`
	Timezone string        `yaml:"timezone"`
}

type Target struct {
	URI          string        `yaml:"uri"`
	FlushTimeout time.Duration `yaml:"flush_timeout"`
}

type Replay struct {
	Global Global `yaml:"global"`
	Source Source `yaml:"source"`
	Sync   Sync   `yaml:"sync"`
	Target Target `yaml:"target"`
}

func Default() *Replay {
	return &Replay{
		Global: Global{
			Logger: Logger{Level: "info"},
		},
		Source: Source{
			URI: DefaultSource,
		},
		Sync: Sync{
			Interval: DefaultInterval,
			Timezone: "Local",
		},
		Target: Target{
			URI:          DefaultTarget,
			FlushTimeout: DefaultFlushTimeout,
		},
	}
}

// NewReplayFromFile reads a YAML config. Keys missing from the file keep their defaults.
func NewReplayFromFile(fpath string) (*Replay, error) {
	bs, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}

	replay := Default()
	if err := yaml.Unmarshal(bs, replay); err != nil {
		return nil, err
	}

	return replay, nil
}

const EnvPrefix = "REPLAY"

// Keys are the flag names that can also be set through REPLAY_* variables,
// e.g. sync-interval is REPLAY_SYNC_INTERVAL.
var Keys = []string{
	"config",
	"source",
	"lenient",
	"target",
	"flush-timeout",
	"sync-interval",
	"timezone",
	"log-level",
}

func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, key := range Keys {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			return err
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return nil
}

// Load builds the config from the file named by the "config" key, then applies
// any flag or REPLAY_* environment value that was set.
func Load(v *viper.Viper) (*Replay, error) {
	c := Default()
	if path := v.GetString("config"); path != "" {
		var err error
		c, err = NewReplayFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if v.IsSet("source") {
		c.Source.URI = v.GetString("source")
	}
	if v.IsSet("lenient") {
		c.Source.Lenient = v.GetBool("lenient")
	}
	if v.IsSet("target") {
		c.Target.URI = v.GetString("target")
	}
	if v.IsSet("flush-timeout") {
		c.Target.FlushTimeout = v.GetDuration("flush-timeout")
	}
	if v.IsSet("sync-interval") {
		c.Sync.Interval = v.GetDuration("sync-interval")
	}
	if v.IsSet("timezone") {
		c.Sync.Timezone = v.GetString("timezone")
	}
	if v.IsSet("log-level") {
		c.Global.Logger.Level = v.GetString("log-level")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Replay) Validate() error {
	if r.Source.URI == "" {
		return fmt.Errorf("source uri is required")
	}
	if r.Target.URI == "" {
		return fmt.Errorf("target uri is required")
	}
	if r.Sync.Interval < 0 {
		return fmt.Errorf("sync interval must not be negative: %s", r.Sync.Interval)
	}
	if r.Target.FlushTimeout <= 0 {
		return fmt.Errorf("flush timeout must be positive: %s", r.Target.FlushTimeout)
	}
	if _, err := r.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", r.Sync.Timezone, err)
	}
	if _, err := zapcore.ParseLevel(r.Global.Logger.Level); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone. Empty and "Local" mean the machine's zone.
func (r *Replay) Location() (*time.Location, error) {
	switch r.Sync.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(r.Sync.Timezone)
	}
}
