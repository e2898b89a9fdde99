package models

// ConnectionState represents the lifecycle state of the live chat connection
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateOpen
	StateClosed
	StateErrored
)

// String returns a human-readable string representation of the connection state
func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateOpen:
		return "Open"
	case StateClosed:
		return "Closed"
	case StateErrored:
		return "Errored"
	default:
		return "Unknown"
	}
}

// Live returns true while a transport handle is pending or open
func (s ConnectionState) Live() bool {
	return s == StateConnecting || s == StateOpen
}
