// Package session tracks the connection state of independent messaging
// sessions.
//
// Components
//
//   - Registry: owns every live [Session], keyed by id. GetOrCreate builds a
//     session, registers it and bootstraps its transport in the background.
//   - Lifecycle: consumes the transport's events for one session, in arrival
//     order, and applies the state machine below.
//   - Waiter: blocks a caller until a session is connected, shows a
//     handshake payload, or a timeout elapses.
//
// State machine
//
//	initializing -> qr_pending -> connected
//	initializing -> connected
//	any          -> auth_failed   (terminal, credential directory deleted)
//	any          -> disconnected  (terminal, credential directory kept)
//
// Terminal transitions remove the session from the registry in the same
// step. A bootstrap failure removes the session without a terminal status.
//
// Ownership
//
// Only the lifecycle goroutine of a session writes its fields. Every other
// reader takes a [Snapshot].
package session
