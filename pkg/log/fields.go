package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Realtime layer
	FieldClientID = "client_id"
	FieldChannel  = "channel"
	FieldEventID  = "event_id"
	FieldRole     = "role"

	// Service
	FieldService = "service"
)
