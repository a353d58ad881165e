// Package transport implements the WebSocket connection lifecycle: connect,
// reconnect with exponential backoff, ping/pong keepalive, the nested
// authentication sub-state-machine, and the outbound send buffer with
// private-channel gating. Inbound frames are handled in arrival order by
// one read loop per connection; outbound writes come from the calling
// goroutines and are serialized by a connection mutex.
package transport

// State is the top-level connection lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosing      State = "closing"
	StateReconnecting State = "reconnecting"
)

// AuthState is the nested authentication sub-state, meaningful only while
// State is StateOpen.
type AuthState string

const (
	AuthUnauthed AuthState = "unauthed"
	AuthAuthing  AuthState = "authing"
	AuthAuthed   AuthState = "authed"
)
