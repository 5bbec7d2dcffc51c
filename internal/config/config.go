package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Chain  ChainConfig  `mapstructure:"chain"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Feed   FeedConfig   `mapstructure:"feed"`
	Cron   CronConfig   `mapstructure:"cron"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// ChainConfig pins the target network explicitly. An RPC endpoint serving a
// different chain id is rejected at connect time, not silently accepted.
type ChainConfig struct {
	RPCURLs         []string      `mapstructure:"rpc_urls"`
	ContractAddress string        `mapstructure:"contract_address"`
	ChainID         uint64        `mapstructure:"chain_id"`
	NetworkName     string        `mapstructure:"network_name"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	BlockInterval   time.Duration `mapstructure:"block_interval"`
}

type SyncConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Historical        bool          `mapstructure:"historical"`
	DeploymentBlock   uint64        `mapstructure:"deployment_block"`
	MaxLookbackBlocks uint64        `mapstructure:"max_lookback_blocks"`
	ChunkPause        time.Duration `mapstructure:"chunk_pause"`
	QueueSize         int           `mapstructure:"queue_size"`
	HeadLagWarnBlocks uint64        `mapstructure:"head_lag_warn_blocks"`
}

type FeedConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	SubscriberBuf int  `mapstructure:"subscriber_buf"`
}

type CronConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	StateSnapshot string `mapstructure:"state_snapshot"`
	HeadLagProbe  string `mapstructure:"head_lag_probe"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ORACLEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("chain.rpc_urls", []string{})
	v.SetDefault("chain.contract_address", "")
	v.SetDefault("chain.chain_id", 56)
	v.SetDefault("chain.network_name", "bsc")
	v.SetDefault("chain.request_timeout", "15s")
	v.SetDefault("chain.block_interval", "3s")
	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.historical", true)
	v.SetDefault("sync.deployment_block", 0)
	v.SetDefault("sync.max_lookback_blocks", 200000)
	v.SetDefault("sync.chunk_pause", "500ms")
	v.SetDefault("sync.queue_size", 256)
	v.SetDefault("sync.head_lag_warn_blocks", 50)
	v.SetDefault("feed.enabled", true)
	v.SetDefault("feed.subscriber_buf", 32)
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.state_snapshot", "@every 1m")
	v.SetDefault("cron.head_lag_probe", "@every 30s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
