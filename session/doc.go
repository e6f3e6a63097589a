// Package session contains the coordinator that turns browser login and
// tunnel supervision into one race-free connection lifecycle.
//
// # State Ownership
//
// The Coordinator is the only writer of session state. The login driver
// and the tunnel supervisor report facts (cookie captured, interface up,
// process exited); the coordinator decides what those facts mean for the
// lifecycle and publishes every transition to subscribers.
//
// # Operations
//
// Connect, Disconnect, and Cancel return immediately. Each accepted
// Connect creates one operation goroutine that owns the session until it
// comes to rest again at Idle or Failed; Disconnect and Cancel reach the
// in-flight operation through its cancellation context. A Disconnect
// that lands while a connect is still in flight is a cancellation, not
// an error: the browser and any tunnel process are torn down and the
// state returns to Idle.
//
// # Cookie Reuse
//
// A stored cookie that is fresh enough skips the login entirely. When
// the gateway rejects a cookie the coordinator purges it and logs in
// again, at most once per attempt; a second rejection is terminal.
package session
