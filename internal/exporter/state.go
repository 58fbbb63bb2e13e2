package exporter

// State is a phase of the exporter lifecycle. States only move forward:
//
//	Configuring -> Ready -> Draining -> ShuttingDown -> Terminated
//	Configuring -> Failed
type State int32

const (
	StateConfiguring State = iota
	StateReady
	StateDraining
	StateShuttingDown
	StateTerminated
	StateFailed
)

var stateNames = [...]string{
	StateConfiguring:  "configuring",
	StateReady:        "ready",
	StateDraining:     "draining",
	StateShuttingDown: "shutting_down",
	StateTerminated:   "terminated",
	StateFailed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Final reports whether no further transitions can happen.
func (s State) Final() bool {
	return s == StateTerminated || s == StateFailed
}
