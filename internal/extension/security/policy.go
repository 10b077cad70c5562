package security

import (
	"fmt"
	"sort"
	"strings"
)

// Default ceilings.
const (
	DefaultMemoryCeilingBytes uint64  = 512 << 20
	DefaultCPUSharePercent    float64 = 80
	DefaultCallsPerSecond     float64 = 0
	DefaultCallBurst                  = 64
)

// DefaultDeniedModules are the host modules no extension may load.
var DefaultDeniedModules = []string{"child_process", "cluster", "worker_threads"}

// Policy is an immutable sandbox policy. Build one with NewPolicy or
// DefaultPolicy and derive variants with With.
type Policy struct {
	allowed        map[Group]struct{}
	denied         map[string]struct{}
	memoryCeiling  uint64
	cpuShare       float64
	callsPerSecond float64
	callBurst      int
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithAllowedGroups replaces the allowed group set.
func WithAllowedGroups(groups ...Group) PolicyOption {
	return func(p *Policy) {
		p.allowed = make(map[Group]struct{}, len(groups))
		for _, g := range groups {
			p.allowed[g] = struct{}{}
		}
	}
}

// WithDeniedModules replaces the denied module set.
func WithDeniedModules(modules ...string) PolicyOption {
	return func(p *Policy) {
		p.denied = make(map[string]struct{}, len(modules))
		for _, m := range modules {
			p.denied[m] = struct{}{}
		}
	}
}

// WithMemoryCeiling sets the memory ceiling in bytes.
func WithMemoryCeiling(bytes uint64) PolicyOption {
	return func(p *Policy) {
		p.memoryCeiling = bytes
	}
}

// WithCPUShare sets the CPU share ceiling in percent.
func WithCPUShare(percent float64) PolicyOption {
	return func(p *Policy) {
		p.cpuShare = percent
	}
}

// WithCallRate limits capability calls per owner. A rate of zero means
// unlimited.
func WithCallRate(perSecond float64, burst int) PolicyOption {
	return func(p *Policy) {
		p.callsPerSecond = perSecond
		p.callBurst = burst
	}
}

// NewPolicy builds a policy starting from DefaultPolicy.
func NewPolicy(opts ...PolicyOption) Policy {
	return DefaultPolicy().With(opts...)
}

// DefaultPolicy allows every group, denies process-spawning modules and
// caps memory at 512 MiB and CPU at 80%.
func DefaultPolicy() Policy {
	p := Policy{
		memoryCeiling:  DefaultMemoryCeilingBytes,
		cpuShare:       DefaultCPUSharePercent,
		callsPerSecond: DefaultCallsPerSecond,
		callBurst:      DefaultCallBurst,
	}
	WithAllowedGroups(AllGroups()...)(&p)
	WithDeniedModules(DefaultDeniedModules...)(&p)
	return p
}

// With returns a copy of p with opts applied. p is not modified.
func (p Policy) With(opts ...PolicyOption) Policy {
	c := p.clone()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (p Policy) clone() Policy {
	c := p
	c.allowed = make(map[Group]struct{}, len(p.allowed))
	for g := range p.allowed {
		c.allowed[g] = struct{}{}
	}
	c.denied = make(map[string]struct{}, len(p.denied))
	for m := range p.denied {
		c.denied[m] = struct{}{}
	}
	return c
}

// AllowedGroups returns the allowed groups sorted.
func (p Policy) AllowedGroups() []Group {
	groups := make([]Group, 0, len(p.allowed))
	for g := range p.allowed {
		groups = append(groups, g)
	}
	sortGroups(groups)
	return groups
}

// Allows reports whether g is allowed.
func (p Policy) Allows(g Group) bool {
	_, ok := p.allowed[g]
	return ok
}

// DeniedModules returns the denied modules sorted.
func (p Policy) DeniedModules() []string {
	mods := make([]string, 0, len(p.denied))
	for m := range p.denied {
		mods = append(mods, m)
	}
	sort.Strings(mods)
	return mods
}

// Denies reports whether module is denied.
func (p Policy) Denies(module string) bool {
	_, ok := p.denied[module]
	return ok
}

// MemoryCeilingBytes returns the memory ceiling.
func (p Policy) MemoryCeilingBytes() uint64 { return p.memoryCeiling }

// CPUSharePercent returns the CPU share ceiling.
func (p Policy) CPUSharePercent() float64 { return p.cpuShare }

// CallsPerSecond returns the per-owner call rate; zero is unlimited.
func (p Policy) CallsPerSecond() float64 { return p.callsPerSecond }

// CallBurst returns the per-owner call burst.
func (p Policy) CallBurst() int { return p.callBurst }

// Validate checks that the policy values are in range.
func (p Policy) Validate() error {
	var problems []string
	for g := range p.allowed {
		if !g.Valid() {
			problems = append(problems, fmt.Sprintf("unknown group %q", g))
		}
	}
	if p.memoryCeiling == 0 {
		problems = append(problems, "memory ceiling must be positive")
	}
	if p.cpuShare <= 0 || p.cpuShare > 100 {
		problems = append(problems, fmt.Sprintf("cpu share %.1f outside (0,100]", p.cpuShare))
	}
	if p.callsPerSecond < 0 {
		problems = append(problems, "call rate must not be negative")
	}
	if p.callsPerSecond > 0 && p.callBurst < 1 {
		problems = append(problems, "call burst must be at least 1")
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrInvalidPolicy, strings.Join(problems, "; "))
	}
	return nil
}

// Request is what an extension asks for in its manifest.
type Request struct {
	ExtensionID string
	Groups      []Group
	Modules     []string
	MemoryBytes uint64
	CPUPercent  float64
}

// Check returns nil if req fits the policy, otherwise a *PolicyError
// listing every violation.
func (p Policy) Check(req Request) error {
	var violations []Violation

	for _, g := range req.Groups {
		if !p.Allows(g) {
			violations = append(violations, Violation{Kind: ViolationGroup, Detail: fmt.Sprintf("group %q not allowed", g)})
		}
	}
	for _, m := range req.Modules {
		if p.Denies(m) {
			violations = append(violations, Violation{Kind: ViolationModule, Detail: fmt.Sprintf("module %q denied", m)})
		}
	}
	if req.MemoryBytes > p.memoryCeiling {
		violations = append(violations, Violation{
			Kind:   ViolationMemory,
			Detail: fmt.Sprintf("requested %d bytes exceeds ceiling %d", req.MemoryBytes, p.memoryCeiling),
		})
	}
	if req.CPUPercent > p.cpuShare {
		violations = append(violations, Violation{
			Kind:   ViolationCPU,
			Detail: fmt.Sprintf("requested %.1f%% exceeds ceiling %.1f%%", req.CPUPercent, p.cpuShare),
		})
	}

	if len(violations) == 0 {
		return nil
	}
	return &PolicyError{ExtensionID: req.ExtensionID, Violations: violations}
}

// Grantable returns the groups an extension receives after a successful
// Check: the requested groups, or every allowed group when none were
// requested.
func (p Policy) Grantable(req Request) []Group {
	if len(req.Groups) == 0 {
		return p.AllowedGroups()
	}
	seen := make(map[Group]struct{}, len(req.Groups))
	out := make([]Group, 0, len(req.Groups))
	for _, g := range req.Groups {
		if _, dup := seen[g]; dup || !p.Allows(g) {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	sortGroups(out)
	return out
}
