package raid

// State is a channel's position in its lifecycle:
//
//	created -> connecting -> connected | connect_failed
//	connected -> single_send -> done
//	connected -> loop_active -> loop_stopped
//
// Any sleep interrupted by shutdown moves the channel to exhausted.
type State int

const (
	StateCreated State = iota
	StateConnecting
	StateConnected
	StateConnectFailed
	StateSingleSend
	StateLoopActive
	StateLoopStopped
	StateDone
	StateExhausted
)

var stateNames = [...]string{
	StateCreated:       "created",
	StateConnecting:    "connecting",
	StateConnected:     "connected",
	StateConnectFailed: "connect_failed",
	StateSingleSend:    "single_send",
	StateLoopActive:    "loop_active",
	StateLoopStopped:   "loop_stopped",
	StateDone:          "done",
	StateExhausted:     "exhausted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	switch s {
	case StateConnectFailed, StateLoopStopped, StateDone, StateExhausted:
		return true
	}
	return false
}
