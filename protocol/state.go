package protocol

import "strings"

// State tracks one session's position in the conversation lifecycle.
// Transitions are driven entirely by inbound frame types and connection
// events; there are no timers. Both the relay and the voice client walk the
// same machine from the frames they observe.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateConfiguring
	StateReady
	StateStreaming
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateConfiguring:
		return "configuring"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// Advance returns the state after observing a downlink frame of the given
// type. Frame types with no bearing on the lifecycle leave the state as is.
func Advance(s State, frameType string) State {
	if s.Terminal() {
		return s
	}

	switch frameType {
	case TypeSessionCreated:
		if s == StateConnected {
			return StateConfiguring
		}
	case TypeSessionUpdated:
		if s == StateConfiguring {
			return StateReady
		}
	case TypeResponseDone:
		if s == StateStreaming {
			return StateReady
		}
	default:
		// Any response.* delta marks the session as streaming.
		if strings.HasPrefix(frameType, "response.") && strings.HasSuffix(frameType, ".delta") {
			if s == StateReady || s == StateStreaming {
				return StateStreaming
			}
		}
	}
	return s
}
