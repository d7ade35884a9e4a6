package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Servers  []ServerConfig `mapstructure:"servers" yaml:"servers"`
	Feeds    []FeedConfig   `mapstructure:"feeds" yaml:"feeds"`
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	RPC      RPCConfig      `mapstructure:"rpc" yaml:"rpc"`
	Speed    SpeedConfig    `mapstructure:"speed" yaml:"speed"`

	Port string `mapstructure:"port" yaml:"port"`
}

type ServerConfig struct {
	ID            string `mapstructure:"id" yaml:"id"`
	Host          string `mapstructure:"host" yaml:"host"`
	Port          int    `mapstructure:"port" yaml:"port"`
	Username      string `mapstructure:"username" yaml:"username"`
	Password      string `mapstructure:"password" yaml:"password"`
	TLS           bool   `mapstructure:"tls" yaml:"tls"`
	MaxConnection int    `mapstructure:"max_connections" yaml:"max_connections"`
	// Level is the failover tier: 0 = primary, 1 = first backup, etc.
	// Servers at the same level are tried in undefined order before the
	// scheduler advances to the next level.
	Level       int    `mapstructure:"level" yaml:"level"`
	GroupFilter string `mapstructure:"group_filter" yaml:"group_filter"`
}

// FeedConfig is one configured RSS/newznab-attr feed source (§4.9).
type FeedConfig struct {
	Name     string `mapstructure:"name" yaml:"name"`
	URL      string `mapstructure:"url" yaml:"url"`
	Interval int    `mapstructure:"interval_minutes" yaml:"interval_minutes"`
	Filter   string `mapstructure:"filter" yaml:"filter"`
	Category string `mapstructure:"category" yaml:"category"`
	Priority int    `mapstructure:"priority" yaml:"priority"`
	Pause    bool   `mapstructure:"pause" yaml:"pause"`
}

type DownloadConfig struct {
	OutDir            string   `mapstructure:"out_dir" yaml:"out_dir"`
	CompletedDir      string   `mapstructure:"completed_dir" yaml:"completed_dir"`
	CleanupExtensions []string `mapstructure:"cleanup_extensions" yaml:"cleanup_extensions"`

	// RenameBroken, WriteBrokenLog, CriticalHealth and PauseOnPoorHealth
	// configure the assembler's broken-file and health-gate policy (§4.7).
	RenameBroken      bool `mapstructure:"rename_broken" yaml:"rename_broken"`
	WriteBrokenLog    bool `mapstructure:"write_broken_log" yaml:"write_broken_log"`
	CriticalHealth    int  `mapstructure:"critical_health" yaml:"critical_health"`
	PauseOnPoorHealth bool `mapstructure:"pause_on_poor_health" yaml:"pause_on_poor_health"`

	ArticleRetries        int `mapstructure:"article_retries" yaml:"article_retries"`
	ArticleConnectRetries int `mapstructure:"article_connect_retries" yaml:"article_connect_retries"`

	// RetryIntervalSeconds is the scheduler's retry_interval (§4.4/§5): the
	// delay between a failed article attempt and its next eligible
	// redispatch after a ConnectError or a CRC/decode failure. NotFound
	// failover to the next server level is redispatched without this delay.
	RetryIntervalSeconds int `mapstructure:"retry_interval_seconds" yaml:"retry_interval_seconds"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

// StoreConfig selects the metadata backend (§A4). Driver is "sqlite"
// (default) or "postgres"; DSN is only consulted for the latter.
type StoreConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	DSN        string `mapstructure:"dsn" yaml:"dsn"`
	BlobDir    string `mapstructure:"blob_dir" yaml:"blob_dir"`
}

// RPCConfig configures the binary command server (§4.12).
type RPCConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// SpeedConfig bounds C11's throttle; zero means unlimited.
type SpeedConfig struct {
	LimitBytesPerSecond int64 `mapstructure:"limit_bytes_per_second" yaml:"limit_bytes_per_second"`
}

func Load(path string) (*Config, error) {

	if path == "" {
		path = "config.yaml"
	}

	// 1. Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// FALLBACK: If we are in Docker (or similar) and didn't provide a flag, check /config/config.yaml
		if path == "config.yaml" {
			if _, errEx := os.Stat("/config/config.yaml"); errEx == nil {
				path = "/config/config.yaml"
			} else if _, errEx := os.Stat("config.yaml.example"); errEx == nil {
				// If config.yaml is missing but example exists, give a helpful error
				return nil, fmt.Errorf("configuration file 'config.yaml' not found\n\n" +
					"To fix this, run:\n" +
					"  cp config.yaml.example config.yaml\n" +
					"Then edit it with your Usenet credentials.")
			} else {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
		} else {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	v := viper.New()

	// Set Defaults
	v.SetDefault("port", "8080")
	v.SetDefault("download.out_dir", "./downloads")
	v.SetDefault("download.completed_dir", "./downloads/completed")
	v.SetDefault("download.cleanup_extensions", []string{"nzb", "par2", "sfv", "nfo"}) // sane default for completed cleanup
	v.SetDefault("log.path", "gonzbd.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "./data/gonzbd.db")
	v.SetDefault("store.blob_dir", "./data/nzb")
	v.SetDefault("rpc.host", "127.0.0.1")
	v.SetDefault("rpc.port", 6789)
	v.SetDefault("download.critical_health", 900)
	v.SetDefault("download.article_retries", 3)
	v.SetDefault("download.article_connect_retries", 5)
	v.SetDefault("download.retry_interval_seconds", 10)

	// Read config File
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	// Support Environment Variables
	v.SetEnvPrefix("GONZB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Servers) == 0 {
		return errors.New("at least one server must be configured")
	}

	for i, s := range c.Servers {
		if s.ID == "" {
			return fmt.Errorf("server[%d] requires a unique ID", i)
		}

		if s.Host == "" {
			return fmt.Errorf("server %s: host is required", s.ID)
		}

		if s.Port == 0 {
			return fmt.Errorf("server %s: port is required", s.ID)
		}

		if s.TLS && s.Port == 119 {
			fmt.Println("Warning: TLS is enabled but port is set to 119 (standard non-TLS)")
		}

		if s.MaxConnection <= 0 {
			// Default to a sane value
			c.Servers[i].MaxConnection = 10
		}
	}

	if c.Download.OutDir == "" {
		c.Download.OutDir = "./downloads"
	}

	for i, f := range c.Feeds {
		if f.Name == "" {
			return fmt.Errorf("feed[%d] requires a unique name", i)
		}
		if f.URL == "" {
			return fmt.Errorf("feed %s: url is required", f.Name)
		}
		if f.Interval <= 0 {
			c.Feeds[i].Interval = 15
		}
	}

	return nil
}
