package domain

// Phase represents the current stage of a match
type Phase string

const (
	PhaseWaiting Phase = "waiting" // No match started yet
	PhaseRunning Phase = "running" // Agents roam, kills happen
	PhaseMeeting Phase = "meeting" // Emergency meeting, markets frozen
	PhaseEnded   Phase = "ended"   // Winner revealed, markets resolved
)

// String returns the string representation of the phase
func (p Phase) String() string {
	return string(p)
}

// InProgress reports whether a match is running or in a meeting
func (p Phase) InProgress() bool {
	return p == PhaseRunning || p == PhaseMeeting
}

// ConnectionStatus is the state of the upstream event feed
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// Valid reports whether s is a known status
func (s ConnectionStatus) Valid() bool {
	switch s {
	case StatusConnecting, StatusConnected, StatusDisconnected:
		return true
	}
	return false
}
