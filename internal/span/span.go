// Package span defines the immutable record emitted for one completed
// invocation of an instrumented WebAssembly export.
package span

import (
	"time"

	"github.com/google/uuid"
)

// Span is a completed invocation record. Spans are built once, at exit time,
// and passed by value from the correlator to the exporter.
type Span struct {
	ID            uuid.UUID `json:"id"`
	CorrelationID uuid.UUID `json:"correlation_id"`
	RuntimeID     uuid.UUID `json:"runtime_id"`
	FunctionName  string    `json:"function_name"`
	StartTimeNs   int64     `json:"start_time_ns"`
	EndTimeNs     int64     `json:"end_time_ns,omitempty"` // 0 until the call has returned
	MemoryBytes   uint64    `json:"memory_bytes"`          // reserved, always 0
	Status        Status    `json:"status"`
}

// Ended reports whether the end timestamp is present.
func (s Span) Ended() bool {
	return s.EndTimeNs != 0
}

// Valid reports whether the span can be exported: it has ended and its end
// is strictly after its start.
func (s Span) Valid() bool {
	return s.Ended() && s.EndTimeNs > s.StartTimeNs
}

// Duration returns end minus start, or zero if the span has not ended.
func (s Span) Duration() time.Duration {
	if !s.Ended() {
		return 0
	}
	return time.Duration(s.EndTimeNs - s.StartTimeNs)
}

// StartTime returns the start timestamp as a time.Time.
func (s Span) StartTime() time.Time {
	return time.Unix(0, s.StartTimeNs)
}

// EndTime returns the end timestamp, or the zero time if absent.
func (s Span) EndTime() time.Time {
	if !s.Ended() {
		return time.Time{}
	}
	return time.Unix(0, s.EndTimeNs)
}
