package span

import (
	"encoding/json"
	"fmt"
)

// StatusKind enumerates span outcomes.
type StatusKind int

const (
	KindStarted StatusKind = iota
	KindCompleted
	KindFailed
)

var kindNames = map[StatusKind]string{
	KindStarted:   "started",
	KindCompleted: "completed",
	KindFailed:    "failed",
}

// String implements fmt.Stringer.
func (k StatusKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("StatusKind(%d)", int(k))
}

// Status is the outcome of an invocation. Reason is only set for failures.
type Status struct {
	Kind   StatusKind
	Reason string
}

// Started is the status of an invocation that has not returned.
func Started() Status { return Status{Kind: KindStarted} }

// Completed is the status of an invocation that returned without error.
func Completed() Status { return Status{Kind: KindCompleted} }

// Failed is the status of an invocation that returned an error or trapped.
func Failed(reason string) Status { return Status{Kind: KindFailed, Reason: reason} }

// IsTerminal reports whether the status is Completed or Failed.
func (s Status) IsTerminal() bool {
	return s.Kind == KindCompleted || s.Kind == KindFailed
}

// String implements fmt.Stringer.
func (s Status) String() string {
	if s.Kind == KindFailed {
		return fmt.Sprintf("failed(%s)", s.Reason)
	}
	return s.Kind.String()
}

type statusJSON struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(statusJSON{Kind: s.Kind.String(), Reason: s.Reason})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw statusJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for kind, name := range kindNames {
		if name == raw.Kind {
			*s = Status{Kind: kind, Reason: raw.Reason}
			return nil
		}
	}
	return fmt.Errorf("unknown span status %q", raw.Kind)
}
