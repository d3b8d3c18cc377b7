package gateway

// MetricsCollector defines the interface for collecting gateway metrics
type MetricsCollector interface {
	RecordConnectionOpened()
	RecordConnectionClosed()
	RecordRoomJoin(matchID string)
	RecordRoomLeave(matchID string)
	RecordCommand(commandType string)
	RecordCommandRejected(commandType, reason string)
	RecordBroadcast(messageType string, receivers int)
	RecordBroadcastDropped(messageType string)
	RecordMatchEvent(eventType string)
	RecordReportSubmitted(matchID string)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordConnectionOpened()                            {}
func (n *NoOpMetricsCollector) RecordConnectionClosed()                            {}
func (n *NoOpMetricsCollector) RecordRoomJoin(matchID string)                      {}
func (n *NoOpMetricsCollector) RecordRoomLeave(matchID string)                     {}
func (n *NoOpMetricsCollector) RecordCommand(commandType string)                   {}
func (n *NoOpMetricsCollector) RecordCommandRejected(commandType, reason string)   {}
func (n *NoOpMetricsCollector) RecordBroadcast(messageType string, receivers int)  {}
func (n *NoOpMetricsCollector) RecordBroadcastDropped(messageType string)          {}
func (n *NoOpMetricsCollector) RecordMatchEvent(eventType string)                  {}
func (n *NoOpMetricsCollector) RecordReportSubmitted(matchID string)               {}
