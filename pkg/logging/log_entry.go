package logging

// LogEntry represents a structured log record with fields particularly relevant to experiment operations
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Experiment-specific fields
	TestID    string // The A/B test being operated on
	VariantID string // The variant involved, if any
	Latency   int64  // Operation duration in milliseconds

	// General structured data
	Fields map[string]interface{}
}
