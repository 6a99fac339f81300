package streaming

// ConnectionState represents the lifecycle state of one stream connection.
// Closed and Failed are terminal for a connection manager instance; a
// fresh Connect call is required to leave either, and is permitted even
// from Failed.
type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateConnecting   ConnectionState = "connecting"
	StateStreaming    ConnectionState = "streaming"
	StateReconnecting ConnectionState = "reconnecting"
	StateClosed       ConnectionState = "closed"
	StateFailed       ConnectionState = "failed"
)

// String returns the string representation of the state
func (s ConnectionState) String() string {
	return string(s)
}

// IsTerminal reports whether the state ends the connection lifecycle
func (s ConnectionState) IsTerminal() bool {
	return s == StateClosed || s == StateFailed
}

// IsActive reports whether a transport is open or being opened
func (s ConnectionState) IsActive() bool {
	switch s {
	case StateConnecting, StateStreaming, StateReconnecting:
		return true
	default:
		return false
	}
}
