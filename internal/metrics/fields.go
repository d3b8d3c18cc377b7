package metrics

// Attribute keys shared by every instrument. Match and user IDs are
// deliberately not labels: their cardinality is unbounded.
const (
	AttrMessageType = "message_type"
	AttrCommandType = "command_type"
	AttrEventType   = "event_type"
	AttrReason      = "reason"
	AttrSuccess     = "success"
)
