package replisync

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// SocketConfig names the two addresses a WebRTC-style transport needs:
// a signaling address for session negotiation and a data address for
// the resulting data channel. Opaque to the core; passed through to
// whatever transport is plugged in.
type SocketConfig struct {
	SignalingAddr string `mapstructure:"signaling_addr"`
	DataAddr      string `mapstructure:"data_addr"`
}

// LinkCondition optionally simulates an unreliable link on top of the
// real transport. Nil means no conditioning.
type LinkCondition struct {
	Latency time.Duration `mapstructure:"latency"`
	Jitter  time.Duration `mapstructure:"jitter"`
	Loss    float64       `mapstructure:"loss"`
}

// Config holds the tunables spec §6 enumerates.
type Config struct {
	TickInterval      time.Duration  `mapstructure:"tick_interval"`
	HeartbeatInterval time.Duration  `mapstructure:"heartbeat_interval"`
	DisconnectTimeout time.Duration  `mapstructure:"disconnect_timeout"`
	Socket            SocketConfig   `mapstructure:"socket"`
	LinkCondition     *LinkCondition `mapstructure:"link_condition"`
}

// Validate enforces the one hard constraint spec §6 names: the
// disconnect timeout must give at least two heartbeats worth of grace,
// or a single dropped heartbeat packet would false-positive a timeout.
func (c Config) Validate() error {
	if c.DisconnectTimeout < 2*c.HeartbeatInterval {
		return fmt.Errorf("replisync: disconnect_timeout (%s) must be >= 2x heartbeat_interval (%s)",
			c.DisconnectTimeout, c.HeartbeatInterval)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("replisync: tick_interval must be positive, got %s", c.TickInterval)
	}
	if c.LinkCondition != nil && (c.LinkCondition.Loss < 0 || c.LinkCondition.Loss > 1) {
		return fmt.Errorf("replisync: link_condition.loss must be in [0,1], got %v", c.LinkCondition.Loss)
	}
	return nil
}

// LoadConfig reads configuration from environment variables (prefixed
// REPLISYNC_) and an optional config file, applying defaults, then
// validates the result.
func LoadConfig(configName string, configPaths ...string) (Config, error) {
	v := viper.New()

	v.SetDefault("tick_interval", 16*time.Millisecond)
	v.SetDefault("heartbeat_interval", 1*time.Second)
	v.SetDefault("disconnect_timeout", 10*time.Second)
	v.SetDefault("socket.signaling_addr", "0.0.0.0:14191")
	v.SetDefault("socket.data_addr", "0.0.0.0:14192")

	if configName != "" {
		v.SetConfigName(configName)
	} else {
		v.SetConfigName("replisync")
	}
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	if len(configPaths) == 0 {
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("REPLISYNC")
	v.AutomaticEnv()

	// Config file is optional; a missing file just means defaults +
	// environment overrides apply.
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("replisync: config unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
