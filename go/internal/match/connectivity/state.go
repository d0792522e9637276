package connectivity

// State is the connection state reported to the match engine.
type State string

const (
	StateConnected    State = "CONNECTED"
	StateDisconnected State = "DISCONNECTED"
	StateReconnecting State = "RECONNECTING"
	StateFailed       State = "FAILED"
)

// IsDown reports whether the link is currently unusable.
func (s State) IsDown() bool {
	return s != StateConnected
}
