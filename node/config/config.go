// Package config loads node configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/brawlpit/arena/core/rules"
	"github.com/brawlpit/arena/node/deadline"
	"github.com/brawlpit/arena/node/store"
)

// RedisConfig holds the Redis connection settings shared by the store, the
// event bus and the profile source.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RulesConfig holds the defaults applied to battle.created events that omit
// ruleset fields.
type RulesConfig struct {
	TurnSeconds   int `mapstructure:"turnSeconds"`
	NoActionLimit int `mapstructure:"noActionLimit"`
}

// WorkerConfig holds the deadline worker knobs.
type WorkerConfig struct {
	BatchSize    int           `mapstructure:"batchSize"`
	LeaseTTL     time.Duration `mapstructure:"leaseTtl"`
	IdleDelayMin time.Duration `mapstructure:"idleDelayMin"`
	IdleDelayMax time.Duration `mapstructure:"idleDelayMax"`
	BacklogDelay time.Duration `mapstructure:"backlogDelay"`
	ErrorDelay   time.Duration `mapstructure:"errorDelay"`
}

// StoreConfig holds the store tuning knobs.
type StoreConfig struct {
	ActionTTL     time.Duration `mapstructure:"actionTtl"`
	PostponeDelay time.Duration `mapstructure:"postponeDelay"`
}

// Config is the full node configuration.
type Config struct {
	RPCAddr     string       `mapstructure:"rpcAddr"`
	MetricsAddr string       `mapstructure:"metricsAddr"`
	Redis       RedisConfig  `mapstructure:"redis"`
	Rules       RulesConfig  `mapstructure:"rules"`
	Worker      WorkerConfig `mapstructure:"worker"`
	Store       StoreConfig  `mapstructure:"store"`
}

// Default returns the configuration used when no file overrides anything.
func Default() Config {
	wd := deadline.DefaultConfig()
	return Config{
		RPCAddr:     ":8080",
		MetricsAddr: ":9090",
		Redis:       RedisConfig{Addr: "127.0.0.1:6379"},
		Rules: RulesConfig{
			TurnSeconds:   rules.DefaultTurnSeconds,
			NoActionLimit: rules.DefaultNoActionLimit,
		},
		Worker: WorkerConfig{
			BatchSize:    wd.BatchSize,
			LeaseTTL:     wd.LeaseTTL,
			IdleDelayMin: wd.IdleDelayMin,
			IdleDelayMax: wd.IdleDelayMax,
			BacklogDelay: wd.BacklogDelay,
			ErrorDelay:   wd.ErrorDelay,
		},
		Store: StoreConfig{
			ActionTTL:     time.Hour,
			PostponeDelay: 200 * time.Millisecond,
		},
	}
}

// Load reads the config file at path, falling back to defaults for any value
// the file omits. Environment variables prefixed with ARENA_ override file
// values (ARENA_REDIS_ADDR overrides redis.addr). An empty path loads pure
// defaults plus environment overrides.
func Load(path string) (Config, error) {
	vp := viper.New()
	setDefaults(vp)

	vp.SetEnvPrefix("ARENA")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	if path != "" {
		vp.SetConfigFile(path)
		if err := vp.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// WorkerConfig converts to the deadline worker's config type.
func (c Config) WorkerConfig() deadline.Config {
	return deadline.Config{
		BatchSize:    c.Worker.BatchSize,
		LeaseTTL:     c.Worker.LeaseTTL,
		IdleDelayMin: c.Worker.IdleDelayMin,
		IdleDelayMax: c.Worker.IdleDelayMax,
		BacklogDelay: c.Worker.BacklogDelay,
		ErrorDelay:   c.Worker.ErrorDelay,
	}
}

// StoreOptions converts to the store's options type.
func (c Config) StoreOptions() store.Options {
	return store.Options{
		ActionTTL:     c.Store.ActionTTL,
		PostponeDelay: c.Store.PostponeDelay,
	}
}

func setDefaults(vp *viper.Viper) {
	d := Default()
	vp.SetDefault("rpcAddr", d.RPCAddr)
	vp.SetDefault("metricsAddr", d.MetricsAddr)
	vp.SetDefault("redis.addr", d.Redis.Addr)
	vp.SetDefault("redis.password", d.Redis.Password)
	vp.SetDefault("redis.db", d.Redis.DB)
	vp.SetDefault("rules.turnSeconds", d.Rules.TurnSeconds)
	vp.SetDefault("rules.noActionLimit", d.Rules.NoActionLimit)
	vp.SetDefault("worker.batchSize", d.Worker.BatchSize)
	vp.SetDefault("worker.leaseTtl", d.Worker.LeaseTTL)
	vp.SetDefault("worker.idleDelayMin", d.Worker.IdleDelayMin)
	vp.SetDefault("worker.idleDelayMax", d.Worker.IdleDelayMax)
	vp.SetDefault("worker.backlogDelay", d.Worker.BacklogDelay)
	vp.SetDefault("worker.errorDelay", d.Worker.ErrorDelay)
	vp.SetDefault("store.actionTtl", d.Store.ActionTTL)
	vp.SetDefault("store.postponeDelay", d.Store.PostponeDelay)
}
