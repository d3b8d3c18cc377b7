package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pitchside/livematch/internal/live/bridge"
	"github.com/pitchside/livematch/internal/live/gateway"
)

// Config is the gateway server configuration: YAML file first,
// environment variables override.
type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Gateway struct {
		WriteTimeoutSec int   `yaml:"write_timeout_sec"`
		ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
		PingIntervalSec int   `yaml:"ping_interval_sec"`
		MaxMessageBytes int64 `yaml:"max_message_bytes"`
		SendBufferSize  int   `yaml:"send_buffer_size"`
	} `yaml:"gateway"`

	Bridge struct {
		Enabled       bool   `yaml:"enabled"`
		URL           string `yaml:"url"`
		Stream        string `yaml:"stream"`
		SubjectPrefix string `yaml:"subject_prefix"`
		QueueSize     int    `yaml:"queue_size"`
	} `yaml:"bridge"`

	Telemetry struct {
		Enabled     bool   `yaml:"enabled"`
		ServiceName string `yaml:"service_name"`
	} `yaml:"telemetry"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8081"
	cfg.Server.AllowedOrigins = []string{"*"}

	gw := gateway.DefaultConnectionConfig()
	cfg.Gateway.WriteTimeoutSec = int(gw.WriteTimeout / time.Second)
	cfg.Gateway.ReadTimeoutSec = int(gw.ReadTimeout / time.Second)
	cfg.Gateway.PingIntervalSec = int(gw.PingInterval / time.Second)
	cfg.Gateway.MaxMessageBytes = gw.MaxMessageSize
	cfg.Gateway.SendBufferSize = gw.SendBufferSize

	js := bridge.DefaultJetStreamConfig()
	cfg.Bridge.Enabled = false
	cfg.Bridge.URL = js.URL
	cfg.Bridge.Stream = js.StreamName
	cfg.Bridge.SubjectPrefix = js.SubjectPrefix
	cfg.Bridge.QueueSize = bridge.DefaultRelayConfig().QueueSize

	cfg.Telemetry.Enabled = true
	cfg.Telemetry.ServiceName = "livematch-gateway"
	return cfg
}

// loadServerConfig reads CONFIG_PATH (default config.yaml) when the
// file exists, then applies environment overrides. A missing file is
// fine; everything has a default.
func loadServerConfig() (*Config, error) {
	cfg := defaultConfig()

	path := getEnv("CONFIG_PATH", "config.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Bridge.Enabled = getEnvAsBool("BRIDGE_ENABLED", cfg.Bridge.Enabled)
	cfg.Bridge.URL = getEnv("NATS_URL", cfg.Bridge.URL)
	cfg.Bridge.Stream = getEnv("BRIDGE_STREAM", cfg.Bridge.Stream)
	cfg.Bridge.QueueSize = getEnvAsInt("BRIDGE_QUEUE_SIZE", cfg.Bridge.QueueSize)
	cfg.Telemetry.Enabled = getEnvAsBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ServiceName = getEnv("TELEMETRY_SERVICE_NAME", cfg.Telemetry.ServiceName)

	return cfg, nil
}

// connectionConfig translates the flat config keys into the gateway's
// transport settings.
func (c *Config) connectionConfig() gateway.ConnectionConfig {
	gw := gateway.DefaultConnectionConfig()
	if c.Gateway.WriteTimeoutSec > 0 {
		gw.WriteTimeout = time.Duration(c.Gateway.WriteTimeoutSec) * time.Second
	}
	if c.Gateway.ReadTimeoutSec > 0 {
		gw.ReadTimeout = time.Duration(c.Gateway.ReadTimeoutSec) * time.Second
	}
	if c.Gateway.PingIntervalSec > 0 {
		gw.PingInterval = time.Duration(c.Gateway.PingIntervalSec) * time.Second
	}
	if c.Gateway.MaxMessageBytes > 0 {
		gw.MaxMessageSize = c.Gateway.MaxMessageBytes
	}
	if c.Gateway.SendBufferSize > 0 {
		gw.SendBufferSize = c.Gateway.SendBufferSize
	}
	return gw
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
