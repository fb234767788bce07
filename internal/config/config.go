package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode        string        `mapstructure:"mode"`
	ServerURL   string        `mapstructure:"server_url"`
	RoomID      string        `mapstructure:"room_id"`
	PeerID      string        `mapstructure:"peer_id"`
	DisplayName string        `mapstructure:"display_name"`
	Produce     bool          `mapstructure:"produce"`
	Consume     bool          `mapstructure:"consume"`
	ForceTCP    bool          `mapstructure:"force_tcp"`
	RPCTimeout  time.Duration `mapstructure:"rpc_timeout"`
	APIAddr     string        `mapstructure:"api_addr"`
	STUNServers []string      `mapstructure:"stun_servers"`
}

// Options carries CLI flag overrides; empty fields fall through to the
// config file, environment and defaults.
type Options struct {
	ServerURL   string
	RoomID      string
	DisplayName string
	Mode        string
}

func Load(opts Options) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("server_url", "wss://localhost:4443")
	v.SetDefault("display_name", "guest")
	v.SetDefault("produce", true)
	v.SetDefault("consume", true)
	v.SetDefault("force_tcp", false)
	v.SetDefault("rpc_timeout", "15s")
	v.SetDefault("api_addr", ":8090")
	v.SetDefault("stun_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetEnvPrefix("roomclient")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err == nil {
		fmt.Printf("loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// CLI flags win over everything else.
	if opts.ServerURL != "" {
		cfg.ServerURL = opts.ServerURL
	}
	if opts.RoomID != "" {
		cfg.RoomID = opts.RoomID
	}
	if opts.DisplayName != "" {
		cfg.DisplayName = opts.DisplayName
	}
	if opts.Mode != "" {
		cfg.Mode = opts.Mode
	}

	// A saved display-name preference beats the default but not an
	// explicit flag or config entry.
	if opts.DisplayName == "" && !v.InConfig("display_name") {
		if saved, err := LoadDisplayNamePref(); err == nil && saved != "" {
			cfg.DisplayName = saved
		}
	}

	return &cfg, nil
}
