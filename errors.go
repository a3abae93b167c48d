package datatables

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration marks a static misconfiguration of a table
	// definition, option or asset setting.
	ErrInvalidConfiguration = errors.New("datatables: invalid configuration")
	ErrInvalidArgument      = errors.New("datatables: invalid argument")
	ErrDuplicateColumn      = errors.New("datatables: duplicate column")
	ErrOutOfRange           = errors.New("datatables: column index out of range")
	ErrNotFound             = errors.New("datatables: column not found")
	// ErrBadRequest marks a malformed widget AJAX payload.
	ErrBadRequest = errors.New("datatables: malformed request")

	ErrUnknownDefinition = errors.New("datatables: unknown table definition")
	ErrForeignDefinition = errors.New("datatables: definition outside namespace")
)

// ErrServerSideRequired is returned when a definition tries to turn off
// server-side processing. Everything in this package assumes it is on.
var ErrServerSideRequired = &InvariantError{Invariant: "server-side processing cannot be disabled"}

// InvariantError is an enforced rule of the system being violated by
// application code. Callers should treat it as fatal at startup.
type InvariantError struct {
	Invariant string
}

func (e *InvariantError) Error() string {
	return "datatables: invariant violated: " + e.Invariant
}

// ConfigurationError reports an application wiring mistake while resolving
// a table definition, such as an unknown or foreign definition reference.
type ConfigurationError struct {
	Ref string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("datatables: definition %q: %v", e.Ref, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsRequestError reports whether err was caused by the shape of a client
// request rather than by the server configuration.
func IsRequestError(err error) bool {
	return errors.Is(err, ErrBadRequest) || errors.Is(err, ErrOutOfRange) || errors.Is(err, ErrInvalidArgument)
}
