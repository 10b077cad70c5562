package extension

// State is the lifecycle state of an extension.
type State int

// Extension states.
const (
	// StateDiscovered - known to the runtime, never activated.
	StateDiscovered State = iota

	// StateActivating - the activation hook is running.
	StateActivating

	// StateActive - activated and serving.
	StateActive

	// StateDeactivating - the deactivation hook or cleanup is running.
	StateDeactivating

	// StateInactive - deactivated; may be activated again.
	StateInactive

	// StateError - activation or deactivation failed, or the policy denied
	// it. May be activated again.
	StateError
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateDeactivating:
		return "deactivating"
	case StateInactive:
		return "inactive"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// IsBusy reports whether a transition is in progress.
func (s State) IsBusy() bool {
	return s == StateActivating || s == StateDeactivating
}

// Failure reasons recorded on extensions in StateError.
const (
	ReasonPolicyDenied       = "policy-denied"
	ReasonEntryPointMissing  = "entry-point-missing"
	ReasonActivationFailed   = "activation-failed"
	ReasonActivationTimeout  = "activation-timeout"
	ReasonDeactivationFailed = "deactivation-failed"
	ReasonDisposeFailed      = "dispose-failed"
	ReasonShutdown           = "shutdown"
)
