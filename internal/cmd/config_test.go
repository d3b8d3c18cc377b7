package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pitchside/livematch/internal/live/bridge"
	"github.com/pitchside/livematch/internal/live/gateway"
)

func missingConfigPath(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
}

func TestLoadServerConfigDefaults(t *testing.T) {
	missingConfigPath(t)

	cfg, err := loadServerConfig()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != "8081" {
		t.Fatalf("expected default port 8081, got %s", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Fatalf("expected allow-all origins by default, got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Bridge.Enabled {
		t.Fatal("expected the bridge to be disabled by default")
	}

	js := bridge.DefaultJetStreamConfig()
	if cfg.Bridge.URL != js.URL {
		t.Fatalf("expected bridge url %s, got %s", js.URL, cfg.Bridge.URL)
	}
	if cfg.Bridge.Stream != js.StreamName {
		t.Fatalf("expected stream %s, got %s", js.StreamName, cfg.Bridge.Stream)
	}
	if cfg.Bridge.QueueSize != bridge.DefaultRelayConfig().QueueSize {
		t.Fatalf("expected default relay queue size, got %d", cfg.Bridge.QueueSize)
	}

	if !cfg.Telemetry.Enabled {
		t.Fatal("expected telemetry enabled by default")
	}
	if cfg.Telemetry.ServiceName != "livematch-gateway" {
		t.Fatalf("expected default service name, got %s", cfg.Telemetry.ServiceName)
	}

	gw := gateway.DefaultConnectionConfig()
	if got := time.Duration(cfg.Gateway.PingIntervalSec) * time.Second; got != gw.PingInterval {
		t.Fatalf("expected default ping interval %s, got %s", gw.PingInterval, got)
	}
	if cfg.Gateway.MaxMessageBytes != gw.MaxMessageSize {
		t.Fatalf("expected default max message size %d, got %d", gw.MaxMessageSize, cfg.Gateway.MaxMessageBytes)
	}
}

func TestLoadServerConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`server:
  port: "9000"
  allowed_origins:
    - https://pitchside.app
gateway:
  ping_interval_sec: 15
bridge:
  enabled: true
  url: nats://bridge:4222
  stream: LIVE
  queue_size: 256
telemetry:
  enabled: false
  service_name: edge-gateway
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := loadServerConfig()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != "9000" {
		t.Fatalf("expected port 9000 from file, got %s", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://pitchside.app" {
		t.Fatalf("expected origins from file, got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Gateway.PingIntervalSec != 15 {
		t.Fatalf("expected ping interval 15 from file, got %d", cfg.Gateway.PingIntervalSec)
	}
	if !cfg.Bridge.Enabled || cfg.Bridge.URL != "nats://bridge:4222" || cfg.Bridge.Stream != "LIVE" {
		t.Fatalf("expected bridge settings from file, got %+v", cfg.Bridge)
	}
	if cfg.Bridge.QueueSize != 256 {
		t.Fatalf("expected queue size 256 from file, got %d", cfg.Bridge.QueueSize)
	}
	if cfg.Telemetry.Enabled || cfg.Telemetry.ServiceName != "edge-gateway" {
		t.Fatalf("expected telemetry settings from file, got %+v", cfg.Telemetry)
	}

	// Keys the file does not mention keep their defaults.
	if cfg.Gateway.MaxMessageBytes != gateway.DefaultConnectionConfig().MaxMessageSize {
		t.Fatalf("expected untouched keys to keep defaults, got %d", cfg.Gateway.MaxMessageBytes)
	}
}

func TestLoadServerConfigEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`server:
  port: "9000"
bridge:
  url: nats://from-file:4222
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("PORT", "7000")
	t.Setenv("NATS_URL", "nats://from-env:4222")
	t.Setenv("BRIDGE_ENABLED", "true")
	t.Setenv("BRIDGE_QUEUE_SIZE", "64")
	t.Setenv("TELEMETRY_ENABLED", "false")

	cfg, err := loadServerConfig()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != "7000" {
		t.Fatalf("expected env port 7000, got %s", cfg.Server.Port)
	}
	if cfg.Bridge.URL != "nats://from-env:4222" {
		t.Fatalf("expected env nats url, got %s", cfg.Bridge.URL)
	}
	if !cfg.Bridge.Enabled {
		t.Fatal("expected BRIDGE_ENABLED=true to take effect")
	}
	if cfg.Bridge.QueueSize != 64 {
		t.Fatalf("expected queue size 64 from env, got %d", cfg.Bridge.QueueSize)
	}
	if cfg.Telemetry.Enabled {
		t.Fatal("expected TELEMETRY_ENABLED=false to take effect")
	}
}

func TestLoadServerConfigMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	if _, err := loadServerConfig(); err == nil {
		t.Fatal("expected an error for a malformed config file")
	}
}

func TestConnectionConfigTranslation(t *testing.T) {
	cfg := &Config{}
	cfg.Gateway.WriteTimeoutSec = 5
	cfg.Gateway.ReadTimeoutSec = 90
	cfg.Gateway.SendBufferSize = 512

	gw := cfg.connectionConfig()
	if gw.WriteTimeout != 5*time.Second {
		t.Fatalf("expected write timeout 5s, got %s", gw.WriteTimeout)
	}
	if gw.ReadTimeout != 90*time.Second {
		t.Fatalf("expected read timeout 90s, got %s", gw.ReadTimeout)
	}
	if gw.SendBufferSize != 512 {
		t.Fatalf("expected send buffer 512, got %d", gw.SendBufferSize)
	}

	// Unset keys fall back to the transport defaults.
	def := gateway.DefaultConnectionConfig()
	if gw.PingInterval != def.PingInterval {
		t.Fatalf("expected default ping interval, got %s", gw.PingInterval)
	}
	if gw.MaxMessageSize != def.MaxMessageSize {
		t.Fatalf("expected default max message size, got %d", gw.MaxMessageSize)
	}
}

func TestGetEnvAsIntFallsBack(t *testing.T) {
	t.Setenv("LIVEMATCH_TEST_INT", "not-a-number")
	if got := getEnvAsInt("LIVEMATCH_TEST_INT", 42); got != 42 {
		t.Fatalf("expected fallback 42 on garbage, got %d", got)
	}

	t.Setenv("LIVEMATCH_TEST_INT", "17")
	if got := getEnvAsInt("LIVEMATCH_TEST_INT", 42); got != 17 {
		t.Fatalf("expected 17, got %d", got)
	}
}

func TestGetEnvAsBoolFallsBack(t *testing.T) {
	t.Setenv("LIVEMATCH_TEST_BOOL", "maybe")
	if got := getEnvAsBool("LIVEMATCH_TEST_BOOL", true); got != true {
		t.Fatal("expected fallback true on garbage")
	}

	t.Setenv("LIVEMATCH_TEST_BOOL", "false")
	if got := getEnvAsBool("LIVEMATCH_TEST_BOOL", true); got != false {
		t.Fatal("expected parsed false")
	}
}
