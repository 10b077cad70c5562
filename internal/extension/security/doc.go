// Package security declares the sandbox policy applied to extensions.
//
// A Policy lists the capability groups an extension may use, the host
// modules it must not load and the resource ceilings it must stay under.
// The lifecycle controller checks a manifest's request against the policy
// before loading any extension code. At run time a Gate holds the granted
// groups per owner and a call limiter consulted by the capability surface.
//
// OS-level enforcement is not implemented here. Enforcer is the hook for
// it; NoopEnforcer only records that a policy was attached.
package security
