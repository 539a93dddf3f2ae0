// Package wserr defines the error kinds shared across the gateway core, per
// the error handling design in spec §7. Kinds are sentinel errors rather
// than distinct types so callers can compare with errors.Is while still
// wrapping context with fmt.Errorf("...: %w", wserr.Bad).
package wserr

import "errors"

var (
	// Bad marks a protocol-level violation: malformed HTTP, an invalid
	// frame, or an unexpected opcode.
	Bad = errors.New("protocol violation")

	// Invalid marks a programmer error: a nil handle or a value used
	// against the wrong container.
	Invalid = errors.New("invalid usage")

	// OutOfMemory marks an allocation failure.
	OutOfMemory = errors.New("out of memory")

	// Disconnected marks that a backing service (Redis) is unreachable.
	Disconnected = errors.New("backing service disconnected")
)

// Is reports whether err carries kind anywhere in its chain.
func Is(err, kind error) bool { return errors.Is(err, kind) }
