package metrics

import (
	"sync"
	"time"
)

// Recorder captures lightweight, in-memory metrics about the gateway
// and the bridge, and forwards them to OpenTelemetry instruments when
// telemetry is enabled. It satisfies the gateway and bridge collector
// interfaces, so one recorder serves the whole process.
type Recorder struct {
	mu     sync.Mutex
	counts map[string]int64
	otel   *otelInstruments
}

// NewRecorder returns a recorder with no telemetry backend; counts are
// still tracked in memory.
func NewRecorder() *Recorder {
	return newRecorder(nil)
}

func newRecorder(otel *otelInstruments) *Recorder {
	return &Recorder{
		counts: make(map[string]int64),
		otel:   otel,
	}
}

// Count returns the in-memory total for one key, e.g.
// "commands.update_score" or "connections_active".
func (r *Recorder) Count(key string) int64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func (r *Recorder) add(key string, delta int64) {
	r.mu.Lock()
	r.counts[key] += delta
	r.mu.Unlock()
}

// RecordConnectionOpened tracks one accepted WebSocket connection.
func (r *Recorder) RecordConnectionOpened() {
	if r == nil {
		return
	}
	r.add("connections_total", 1)
	r.add("connections_active", 1)
	if r.otel != nil {
		r.otel.recordConnection(1)
	}
}

// RecordConnectionClosed tracks one torn-down WebSocket connection.
func (r *Recorder) RecordConnectionClosed() {
	if r == nil {
		return
	}
	r.add("connections_active", -1)
	if r.otel != nil {
		r.otel.recordConnection(-1)
	}
}

// RecordRoomJoin tracks one reporter joining a match room.
func (r *Recorder) RecordRoomJoin(matchID string) {
	if r == nil {
		return
	}
	r.add("room_joins_total", 1)
	r.add("room_members_active", 1)
	if r.otel != nil {
		r.otel.recordRoomMember(1)
	}
}

// RecordRoomLeave tracks one reporter leaving a match room.
func (r *Recorder) RecordRoomLeave(matchID string) {
	if r == nil {
		return
	}
	r.add("room_members_active", -1)
	if r.otel != nil {
		r.otel.recordRoomMember(-1)
	}
}

// RecordCommand tracks one inbound client command by type.
func (r *Recorder) RecordCommand(commandType string) {
	if r == nil {
		return
	}
	r.add("commands."+commandType, 1)
	if r.otel != nil {
		r.otel.recordCommand(commandType)
	}
}

// RecordCommandRejected tracks one rejected command with its reason.
func (r *Recorder) RecordCommandRejected(commandType, reason string) {
	if r == nil {
		return
	}
	r.add("rejected."+commandType+"."+reason, 1)
	if r.otel != nil {
		r.otel.recordCommandRejected(commandType, reason)
	}
}

// RecordBroadcast tracks one room fan-out and its receiver count.
func (r *Recorder) RecordBroadcast(messageType string, receivers int) {
	if r == nil {
		return
	}
	r.add("broadcasts."+messageType, 1)
	if r.otel != nil {
		r.otel.recordBroadcast(messageType, receivers)
	}
}

// RecordBroadcastDropped tracks one broadcast lost to backpressure.
func (r *Recorder) RecordBroadcastDropped(messageType string) {
	if r == nil {
		return
	}
	r.add("broadcasts_dropped."+messageType, 1)
	if r.otel != nil {
		r.otel.recordBroadcastDropped(messageType)
	}
}

// RecordMatchEvent tracks one accepted match event by type.
func (r *Recorder) RecordMatchEvent(eventType string) {
	if r == nil {
		return
	}
	r.add("match_events."+eventType, 1)
	if r.otel != nil {
		r.otel.recordMatchEvent(eventType)
	}
}

// RecordReportSubmitted tracks one finalized match report.
func (r *Recorder) RecordReportSubmitted(matchID string) {
	if r == nil {
		return
	}
	r.add("reports_submitted_total", 1)
	if r.otel != nil {
		r.otel.recordReportSubmitted()
	}
}

// RecordPublish tracks one bridge publish attempt and its latency.
func (r *Recorder) RecordPublish(messageType string, success bool, duration time.Duration) {
	if r == nil {
		return
	}
	key := "bridge_publishes." + messageType
	if !success {
		key = "bridge_publish_errors." + messageType
	}
	r.add(key, 1)
	if r.otel != nil {
		r.otel.recordPublish(messageType, success, duration)
	}
}

// RecordRelayDropped tracks one message lost because the relay queue
// was full.
func (r *Recorder) RecordRelayDropped(messageType string) {
	if r == nil {
		return
	}
	r.add("bridge_relay_dropped."+messageType, 1)
	if r.otel != nil {
		r.otel.recordRelayDropped(messageType)
	}
}

// RecordRelayDepth tracks the observed relay queue depth.
func (r *Recorder) RecordRelayDepth(depth int) {
	if r == nil || r.otel == nil {
		return
	}
	r.otel.recordRelayDepth(depth)
}
