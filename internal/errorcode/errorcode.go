// Package errorcode defines the closed status taxonomy that the
// Supervisor's recovery escalation is built on. These are not wrapped
// Go errors: they are outcomes a caller branches on and escalates or
// stops on, not something a caller unwraps with errors.Is.
package errorcode

// Code is a classified outcome of an operation in the escalation ladder.
type Code int

const (
	// Success indicates the operation completed as expected.
	Success Code = iota
	// HostUnreachable indicates the DUT could not be reached at all
	// (the dial failed or timed out at the transport level; an active
	// refusal is reported as ConnectionError instead).
	HostUnreachable
	// RemoteShellConnectionError indicates a remote shell session failed
	// mid-dialog in a way that is not retryable: a prompt never matched
	// within the deadline (a real login failure), or a caller's retry
	// budget for RemoteShellEOF was exhausted.
	RemoteShellConnectionError
	// RemoteShellEOF indicates the connection dropped mid-dialog (the
	// remote closed the session before a prompt matched). Unlike
	// RemoteShellConnectionError, this is retryable.
	RemoteShellEOF
	// HTTPError indicates a power switch HTTP request returned a non-2xx
	// status.
	HTTPError
	// ConnectionError indicates a power switch request failed to connect,
	// or the DUT actively refused a remote shell dial or ping.
	ConnectionError
	// TimeoutError indicates a power switch request timed out.
	TimeoutError
	// GeneralError is a catch-all for a power switch command that failed
	// in a way that isn't one of the above.
	GeneralError
	// MaxAppReboot indicates the soft-app-reboot retry budget is spent.
	MaxAppReboot
	// MaxOSReboot indicates the soft-OS-reboot retry budget is spent.
	MaxOSReboot
	// DisabledSoftOSReboot indicates the DUT config disables OS reboots.
	DisabledSoftOSReboot
	// ThreadEventSet indicates the operation observed the stop signal and
	// unwound without touching the DUT again.
	ThreadEventSet
	// InvalidState indicates a precondition violation that is fatal to
	// the Supervisor (never expected to occur in correct operation).
	InvalidState
	// EmptyCatalog indicates a CommandRotator was constructed from catalog
	// files that together contain zero commands.
	EmptyCatalog
)

// String implements fmt.Stringer.
func (c Code) String() string {
	switch c {
	case Success:
		return "Success"
	case HostUnreachable:
		return "HostUnreachable"
	case RemoteShellConnectionError:
		return "RemoteShellConnectionError"
	case RemoteShellEOF:
		return "RemoteShellEOF"
	case HTTPError:
		return "HTTPError"
	case ConnectionError:
		return "ConnectionError"
	case TimeoutError:
		return "TimeoutError"
	case GeneralError:
		return "GeneralError"
	case MaxAppReboot:
		return "MaxAppReboot"
	case MaxOSReboot:
		return "MaxOSReboot"
	case DisabledSoftOSReboot:
		return "DisabledSoftOSReboot"
	case ThreadEventSet:
		return "ThreadEventSet"
	case InvalidState:
		return "InvalidState"
	case EmptyCatalog:
		return "EmptyCatalog"
	default:
		return "Unknown"
	}
}
