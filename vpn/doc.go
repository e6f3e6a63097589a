// Package vpn supervises the external openconnect process for Campus VPN.
//
// This package implements the tunnel half of a session:
//
//   - Process supervision: spawning openconnect with the session cookie,
//     streaming its output, and reaping it on shutdown
//   - Privilege escalation: resolving sudo, sudo-rs, or pkexec and
//     collecting the escalation password when one is needed
//   - Interactive prompts: recognizing password and challenge prompts in
//     the output stream and relaying them to a Prompter, with the answer
//     written back on stdin
//   - Liveness: deciding whether the tunnel is usable by checking the
//     tunnel network interface, never the process table
//   - Teardown: terminating openconnect and confirming nothing survived
//
// # Architecture
//
// The package is organized around two main types:
//
//   - Supervisor: owns at most one tunnel at a time and enforces that the
//     previous process is fully reaped before a new one may start
//   - Tunnel: one running openconnect process, streaming lifecycle events
//     (log lines, interface up, interface down, process exited)
//
// # Tunnel Flow
//
// A typical tunnel flow:
//
//  1. The session coordinator calls Supervisor.Start() with a cookie
//  2. The supervisor resolves openconnect and an escalation tool
//  3. openconnect starts; readers stream output, a watchdog polls the
//     tunnel interface
//  4. The coordinator reacts to TunnelUp, TunnelDown, and TunnelExited
//  5. Supervisor.Stop() terminates and reaps the process
//
// # Liveness
//
// openconnect runs under an escalation wrapper, so its PID tells us little:
// the wrapper may exit while the elevated child lives on. The only signal
// treated as truth is the tunnel interface itself - present and up means
// connected, absent means not.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. The Supervisor
// uses internal locking to protect shared state.
package vpn
