package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type ClientConfig struct {
	ServerURL     string        `mapstructure:"server_url"`
	ICEServers    []string      `mapstructure:"ice_servers"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`
	MediaPath     string        `mapstructure:"media_path"`
	RecordPath    string        `mapstructure:"record_path"`
	APIURL        string        `mapstructure:"api_url"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	AutoSelect    bool          `mapstructure:"auto_select"`
	LogLevel      string        `mapstructure:"log_level"`
}

// clientFlagKeys maps command line flag names to config keys.
var clientFlagKeys = map[string]string{
	"server":         "server_url",
	"ice":            "ice_servers",
	"stats-interval": "stats_interval",
	"media":          "media_path",
	"record":         "record_path",
	"api":            "api_url",
	"dial-timeout":   "dial_timeout",
	"auto":           "auto_select",
	"log-level":      "log_level",
}

// DefaultStatsInterval is the latency sampling period of a connected session.
const DefaultStatsInterval = time.Second

func clientDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "ws://localhost:5000/api/ws/signal")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("stats_interval", DefaultStatsInterval)
	v.SetDefault("media_path", "")
	v.SetDefault("record_path", "")
	v.SetDefault("api_url", "http://localhost:8000")
	v.SetDefault("dial_timeout", "10s")
	v.SetDefault("auto_select", false)
	v.SetDefault("log_level", "info")
}

// LoadClient reads the client config file (optional) and overlays any flags
// that were set on the command line.
func LoadClient(fileName string, flags *pflag.FlagSet) (*ClientConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	clientDefaults(v)

	v.SetEnvPrefix("ROBOCAST")
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range clientFlagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if fileName != "" {
		v.SetConfigFile(fileName)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read client config %s: %w", fileName, err)
		}
		log.Debug().Str("module", "config").Str("file", fileName).Msg("loaded client config")
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if cfg.StatsInterval <= 0 {
		return nil, fmt.Errorf("stats_interval must be positive, got %s", cfg.StatsInterval)
	}
	return &cfg, nil
}
