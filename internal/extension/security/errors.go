package security

import (
	"errors"
	"fmt"
	"strings"
)

// Security errors.
var (
	// ErrPolicyDenied is returned when a request violates the sandbox policy.
	ErrPolicyDenied = errors.New("policy denied")

	// ErrCapabilityDenied is returned when an owner uses a group it was not granted.
	ErrCapabilityDenied = errors.New("capability denied")

	// ErrRateLimited is returned when an owner exceeds its call budget.
	ErrRateLimited = errors.New("capability call rate exceeded")

	// ErrUnknownGroup is returned for group names outside the known set.
	ErrUnknownGroup = errors.New("unknown capability group")

	// ErrInvalidPolicy is returned by Policy.Validate.
	ErrInvalidPolicy = errors.New("invalid policy")
)

// Violation is one reason a request was denied.
type Violation struct {
	Kind   string
	Detail string
}

// String returns "kind: detail".
func (v Violation) String() string {
	return v.Kind + ": " + v.Detail
}

// Violation kinds.
const (
	ViolationGroup  = "group"
	ViolationModule = "module"
	ViolationMemory = "memory"
	ViolationCPU    = "cpu"
	ViolationEngine = "engine"
)

// PolicyError lists every violation found in a request.
type PolicyError struct {
	ExtensionID string
	Violations  []Violation
}

// Error implements the error interface.
func (e *PolicyError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	if e.ExtensionID == "" {
		return fmt.Sprintf("policy denied: %s", strings.Join(parts, "; "))
	}
	return fmt.Sprintf("policy denied for %s: %s", e.ExtensionID, strings.Join(parts, "; "))
}

// Unwrap returns ErrPolicyDenied.
func (e *PolicyError) Unwrap() error {
	return ErrPolicyDenied
}

// CapabilityError reports a denied group use at run time.
type CapabilityError struct {
	Owner     string
	Group     Group
	Operation string
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("capability %q required for %s (owner %s)", e.Group, e.Operation, e.Owner)
	}
	return fmt.Sprintf("capability %q not granted to %s", e.Group, e.Owner)
}

// Unwrap returns ErrCapabilityDenied.
func (e *CapabilityError) Unwrap() error {
	return ErrCapabilityDenied
}
