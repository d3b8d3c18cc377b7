package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// TelemetryConfig controls how metrics are exported.
type TelemetryConfig struct {
	Enabled     bool
	ServiceName string
}

// Setup configures OpenTelemetry metrics with a Prometheus exporter.
// It returns a Recorder, the Prometheus HTTP handler, and a shutdown
// function. With telemetry disabled the recorder still counts in
// memory and the handler is nil.
func Setup(ctx context.Context, cfg TelemetryConfig) (*Recorder, http.Handler, func(context.Context) error, error) {
	if !cfg.Enabled {
		return NewRecorder(), nil, func(context.Context) error { return nil }, nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "livematch-gateway"
	}

	promReader, promHandler, err := prometheusComponents()
	if err != nil {
		return nil, nil, nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promReader),
		sdkmetric.WithResource(res),
	)

	otelInst, err := newOtelInstruments(provider)
	if err != nil {
		return nil, nil, nil, err
	}

	rec := newRecorder(otelInst)
	shutdown := func(c context.Context) error {
		return provider.Shutdown(c)
	}

	return rec, promHandler, shutdown, nil
}

func prometheusComponents() (sdkmetric.Reader, http.Handler, error) {
	reg := prometheus.NewRegistry()
	promExp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}
	return promExp, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

type otelInstruments struct {
	ctx context.Context

	connectionsTotal  metric.Int64Counter
	connectionsActive metric.Int64UpDownCounter
	roomJoins         metric.Int64Counter
	roomMembers       metric.Int64UpDownCounter
	commands          metric.Int64Counter
	commandsRejected  metric.Int64Counter
	broadcasts        metric.Int64Counter
	broadcastFanout   metric.Int64Histogram
	broadcastsDropped metric.Int64Counter
	matchEvents       metric.Int64Counter
	reportsSubmitted  metric.Int64Counter
	bridgePublishes   metric.Int64Counter
	bridgeLatencyMs   metric.Float64Histogram
	relayDropped      metric.Int64Counter
	relayDepth        metric.Int64Histogram
}

func newOtelInstruments(provider metric.MeterProvider) (*otelInstruments, error) {
	meter := provider.Meter("livematch-gateway")
	ctx := context.Background()

	connectionsTotal, err := meter.Int64Counter("livematch_connections_total")
	if err != nil {
		return nil, err
	}
	connectionsActive, err := meter.Int64UpDownCounter("livematch_connections_active")
	if err != nil {
		return nil, err
	}
	roomJoins, err := meter.Int64Counter("livematch_room_joins_total")
	if err != nil {
		return nil, err
	}
	roomMembers, err := meter.Int64UpDownCounter("livematch_room_members_active")
	if err != nil {
		return nil, err
	}
	commands, err := meter.Int64Counter("livematch_commands_total")
	if err != nil {
		return nil, err
	}
	commandsRejected, err := meter.Int64Counter("livematch_commands_rejected_total")
	if err != nil {
		return nil, err
	}
	broadcasts, err := meter.Int64Counter("livematch_broadcasts_total")
	if err != nil {
		return nil, err
	}
	broadcastFanout, err := meter.Int64Histogram("livematch_broadcast_receivers")
	if err != nil {
		return nil, err
	}
	broadcastsDropped, err := meter.Int64Counter("livematch_broadcasts_dropped_total")
	if err != nil {
		return nil, err
	}
	matchEvents, err := meter.Int64Counter("livematch_match_events_total")
	if err != nil {
		return nil, err
	}
	reportsSubmitted, err := meter.Int64Counter("livematch_reports_submitted_total")
	if err != nil {
		return nil, err
	}
	bridgePublishes, err := meter.Int64Counter("livematch_bridge_publishes_total")
	if err != nil {
		return nil, err
	}
	bridgeLatency, err := meter.Float64Histogram("livematch_bridge_publish_duration_ms")
	if err != nil {
		return nil, err
	}
	relayDropped, err := meter.Int64Counter("livematch_bridge_relay_dropped_total")
	if err != nil {
		return nil, err
	}
	relayDepth, err := meter.Int64Histogram("livematch_bridge_relay_depth")
	if err != nil {
		return nil, err
	}

	return &otelInstruments{
		ctx:               ctx,
		connectionsTotal:  connectionsTotal,
		connectionsActive: connectionsActive,
		roomJoins:         roomJoins,
		roomMembers:       roomMembers,
		commands:          commands,
		commandsRejected:  commandsRejected,
		broadcasts:        broadcasts,
		broadcastFanout:   broadcastFanout,
		broadcastsDropped: broadcastsDropped,
		matchEvents:       matchEvents,
		reportsSubmitted:  reportsSubmitted,
		bridgePublishes:   bridgePublishes,
		bridgeLatencyMs:   bridgeLatency,
		relayDropped:      relayDropped,
		relayDepth:        relayDepth,
	}, nil
}

func (o *otelInstruments) recordConnection(delta int64) {
	if o == nil {
		return
	}
	if delta > 0 {
		o.connectionsTotal.Add(o.ctx, delta)
	}
	o.connectionsActive.Add(o.ctx, delta)
}

func (o *otelInstruments) recordRoomMember(delta int64) {
	if o == nil {
		return
	}
	if delta > 0 {
		o.roomJoins.Add(o.ctx, delta)
	}
	o.roomMembers.Add(o.ctx, delta)
}

func (o *otelInstruments) recordCommand(commandType string) {
	if o == nil {
		return
	}
	o.commands.Add(o.ctx, 1, metric.WithAttributes(
		attribute.String(AttrCommandType, commandType),
	))
}

func (o *otelInstruments) recordCommandRejected(commandType, reason string) {
	if o == nil {
		return
	}
	o.commandsRejected.Add(o.ctx, 1, metric.WithAttributes(
		attribute.String(AttrCommandType, commandType),
		attribute.String(AttrReason, reason),
	))
}

func (o *otelInstruments) recordBroadcast(messageType string, receivers int) {
	if o == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrMessageType, messageType))
	o.broadcasts.Add(o.ctx, 1, attrs)
	o.broadcastFanout.Record(o.ctx, int64(receivers), attrs)
}

func (o *otelInstruments) recordBroadcastDropped(messageType string) {
	if o == nil {
		return
	}
	o.broadcastsDropped.Add(o.ctx, 1, metric.WithAttributes(
		attribute.String(AttrMessageType, messageType),
	))
}

func (o *otelInstruments) recordMatchEvent(eventType string) {
	if o == nil {
		return
	}
	o.matchEvents.Add(o.ctx, 1, metric.WithAttributes(
		attribute.String(AttrEventType, eventType),
	))
}

func (o *otelInstruments) recordReportSubmitted() {
	if o == nil {
		return
	}
	o.reportsSubmitted.Add(o.ctx, 1)
}

func (o *otelInstruments) recordPublish(messageType string, success bool, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrMessageType, messageType),
		attribute.Bool(AttrSuccess, success),
	)
	o.bridgePublishes.Add(o.ctx, 1, attrs)
	o.bridgeLatencyMs.Record(o.ctx, float64(duration.Milliseconds()), attrs)
}

func (o *otelInstruments) recordRelayDropped(messageType string) {
	if o == nil {
		return
	}
	o.relayDropped.Add(o.ctx, 1, metric.WithAttributes(
		attribute.String(AttrMessageType, messageType),
	))
}

func (o *otelInstruments) recordRelayDepth(depth int) {
	if o == nil {
		return
	}
	o.relayDepth.Record(o.ctx, int64(depth))
}
