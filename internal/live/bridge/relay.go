package bridge

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pitchside/livematch/internal/live/protocol"
)

// MetricsCollector defines the interface for collecting bridge metrics
type MetricsCollector interface {
	RecordPublish(messageType string, success bool, duration time.Duration)
	RecordRelayDropped(messageType string)
	RecordRelayDepth(depth int)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordPublish(messageType string, success bool, duration time.Duration) {
}
func (n *NoOpMetricsCollector) RecordRelayDropped(messageType string) {}
func (n *NoOpMetricsCollector) RecordRelayDepth(depth int)            {}

// RelayConfig holds tuning for the publish relay.
type RelayConfig struct {
	// QueueSize is the enqueue buffer; the room service never blocks on
	// the broker, so a full buffer drops the message instead.
	QueueSize int
	// PublishTimeout bounds one publish attempt.
	PublishTimeout time.Duration
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		QueueSize:      1024,
		PublishTimeout: 5 * time.Second,
	}
}

// Relay decouples the room service from the broker: rooms enqueue
// accepted messages under their lock, a single relay goroutine
// publishes them in order. Losing a message here is acceptable; the
// stream is a downstream feed, not the broadcast path itself.
type Relay struct {
	publisher Publisher
	config    RelayConfig
	metrics   MetricsCollector
	queue     chan protocol.Envelope
}

// NewRelay wraps publisher with an asynchronous queue.
func NewRelay(publisher Publisher, config RelayConfig, metrics MetricsCollector) *Relay {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultRelayConfig().QueueSize
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = DefaultRelayConfig().PublishTimeout
	}
	return &Relay{
		publisher: publisher,
		config:    config,
		metrics:   metrics,
		queue:     make(chan protocol.Envelope, config.QueueSize),
	}
}

// Enqueue queues an envelope for publication without blocking.
func (r *Relay) Enqueue(env protocol.Envelope) {
	select {
	case r.queue <- env:
		r.metrics.RecordRelayDepth(len(r.queue))
	default:
		r.metrics.RecordRelayDropped(string(env.Type))
		log.Warn().
			Str("type", string(env.Type)).
			Str("match_id", env.MatchID).
			Msg("relay queue full, dropping message")
	}
}

// Start drains the queue until ctx is cancelled, then closes the
// publisher.
func (r *Relay) Start(ctx context.Context) {
	log.Info().Msg("bridge relay started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("bridge relay shutting down")
			if err := r.publisher.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close publisher")
			}
			return
		case env := <-r.queue:
			r.publish(env)
		}
	}
}

func (r *Relay) publish(env protocol.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.PublishTimeout)
	defer cancel()

	start := time.Now()
	err := r.publisher.Publish(ctx, env)
	r.metrics.RecordPublish(string(env.Type), err == nil, time.Since(start))

	if err != nil {
		log.Error().
			Err(err).
			Str("type", string(env.Type)).
			Str("match_id", env.MatchID).
			Str("message_id", env.ID).
			Msg("failed to publish message")
	}
}
