// Package common provides shared constants, types, utilities, and interfaces
// used throughout the Campus VPN application.
//
// This package serves as the foundation for cross-cutting concerns:
//
//   - Constants: Application-wide constants like timeouts, file names, and retry bounds
//   - Errors: Sentinel errors for consistent error handling across packages
//   - State: The session state machine, failure taxonomy, and credential prompt types
//   - Interfaces: Abstractions for login, tunnel supervision, credential storage, and prompting
//   - Logger: Structured logging with multiple output destinations
//   - Utils: Common utility functions for file operations and string manipulation
//
// # Usage
//
// Import the package to access shared functionality:
//
//	import "github.com/yllada/campus-vpn/common"
//
//	// Use constants
//	timeout := common.EstablishTimeout
//
//	// Use logger
//	common.LogInfo("Starting login against %s", gatewayURL)
//
//	// Check errors
//	if errors.Is(err, common.ErrCredentialRejected) {
//	    // Purge the cookie and log in again
//	}
//
// # Design Principles
//
// This package follows several design principles:
//
//   - Single Responsibility: Each file handles one concern
//   - Interface Segregation: Small, focused interfaces
//   - Open/Closed: Extensible through interfaces, not modification
//   - Dependency Inversion: High-level modules depend on abstractions
package common
