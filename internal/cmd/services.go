package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/pitchside/livematch/internal/live/bridge"
	"github.com/pitchside/livematch/internal/live/gateway"
	"github.com/pitchside/livematch/internal/metrics"
)

type Services struct {
	Gateway *gateway.Service
	Relay   *bridge.Relay
	Metrics *metrics.Recorder

	promHandler     http.Handler
	metricsShutdown func(context.Context) error
}

func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Telemetry → bridge publisher → relay → gateway

	recorder, promHandler, metricsShutdown, err := metrics.Setup(ctx, metrics.TelemetryConfig{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	var publisher bridge.Publisher = bridge.NoopPublisher{}
	if cfg.Bridge.Enabled {
		jsCfg := bridge.DefaultJetStreamConfig()
		jsCfg.URL = cfg.Bridge.URL
		jsCfg.StreamName = cfg.Bridge.Stream
		jsCfg.SubjectPrefix = cfg.Bridge.SubjectPrefix

		publisher, err = bridge.NewJetStreamPublisher(jsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect bridge publisher: %w", err)
		}
		log.Info().
			Str("url", jsCfg.URL).
			Str("stream", jsCfg.StreamName).
			Msg("bridge publisher connected")
	} else {
		log.Info().Msg("bridge disabled, accepted mutations stay in-process")
	}

	relayCfg := bridge.DefaultRelayConfig()
	if cfg.Bridge.QueueSize > 0 {
		relayCfg.QueueSize = cfg.Bridge.QueueSize
	}
	relay := bridge.NewRelay(publisher, relayCfg, recorder)

	gatewayService := gateway.NewService(gateway.Config{
		ConnectionConfig: cfg.connectionConfig(),
	}, relay, recorder)

	return &Services{
		Gateway:         gatewayService,
		Relay:           relay,
		Metrics:         recorder,
		promHandler:     promHandler,
		metricsShutdown: metricsShutdown,
	}, nil
}
