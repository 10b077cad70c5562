package security

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, AllGroups(), p.AllowedGroups())
	assert.Equal(t, []string{"child_process", "cluster", "worker_threads"}, p.DeniedModules())
	assert.Equal(t, uint64(512<<20), p.MemoryCeilingBytes())
	assert.Equal(t, 80.0, p.CPUSharePercent())
	assert.NoError(t, p.Validate())
}

func TestPolicyWithDoesNotMutate(t *testing.T) {
	base := DefaultPolicy()
	narrow := base.With(WithAllowedGroups(GroupWindow), WithMemoryCeiling(1<<20))

	assert.True(t, base.Allows(GroupDebug))
	assert.False(t, narrow.Allows(GroupDebug))
	assert.Equal(t, DefaultMemoryCeilingBytes, base.MemoryCeilingBytes())
	assert.Equal(t, uint64(1<<20), narrow.MemoryCeilingBytes())

	groups := narrow.AllowedGroups()
	groups[0] = GroupEnv
	assert.Equal(t, []Group{GroupWindow}, narrow.AllowedGroups())
}

func TestPolicyCheck(t *testing.T) {
	p := NewPolicy(WithAllowedGroups(GroupWindow, GroupCommands))

	tests := []struct {
		name  string
		req   Request
		kinds []string
	}{
		{
			name: "within policy",
			req:  Request{Groups: []Group{GroupWindow}, MemoryBytes: 1 << 20, CPUPercent: 10},
		},
		{
			name: "empty request",
			req:  Request{},
		},
		{
			name:  "group outside allowed",
			req:   Request{Groups: []Group{GroupWindow, GroupDebug}},
			kinds: []string{ViolationGroup},
		},
		{
			name:  "denied module",
			req:   Request{Modules: []string{"fs", "child_process"}},
			kinds: []string{ViolationModule},
		},
		{
			name:  "memory over ceiling",
			req:   Request{MemoryBytes: DefaultMemoryCeilingBytes + 1},
			kinds: []string{ViolationMemory},
		},
		{
			name:  "memory at ceiling",
			req:   Request{MemoryBytes: DefaultMemoryCeilingBytes},
			kinds: nil,
		},
		{
			name:  "every violation reported",
			req:   Request{Groups: []Group{GroupSCM}, Modules: []string{"cluster"}, MemoryBytes: 1 << 40, CPUPercent: 99},
			kinds: []string{ViolationGroup, ViolationModule, ViolationMemory, ViolationCPU},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.ExtensionID = "demo.ext"
			err := p.Check(tt.req)
			if len(tt.kinds) == 0 {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrPolicyDenied)

			var pe *PolicyError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, "demo.ext", pe.ExtensionID)
			kinds := make([]string, len(pe.Violations))
			for i, v := range pe.Violations {
				kinds[i] = v.Kind
			}
			assert.Equal(t, tt.kinds, kinds)
			assert.Contains(t, err.Error(), "demo.ext")
		})
	}
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name string
		p    Policy
		ok   bool
	}{
		{"default", DefaultPolicy(), true},
		{"zero memory", NewPolicy(WithMemoryCeiling(0)), false},
		{"cpu over 100", NewPolicy(WithCPUShare(150)), false},
		{"cpu zero", NewPolicy(WithCPUShare(0)), false},
		{"negative rate", NewPolicy(WithCallRate(-1, 1)), false},
		{"rate without burst", NewPolicy(WithCallRate(10, 0)), false},
		{"rate with burst", NewPolicy(WithCallRate(10, 5)), true},
		{"unknown group", NewPolicy(WithAllowedGroups("bogus")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidPolicy)
			}
		})
	}
}

func TestGrantable(t *testing.T) {
	p := NewPolicy(WithAllowedGroups(GroupWindow, GroupCommands, GroupEnv))

	assert.Equal(t, []Group{GroupCommands, GroupEnv, GroupWindow}, p.Grantable(Request{}))
	assert.Equal(t, []Group{GroupWindow}, p.Grantable(Request{Groups: []Group{GroupWindow, GroupWindow}}))
}

func TestParseGroups(t *testing.T) {
	groups, err := ParseGroups([]string{"window", "scm"})
	require.NoError(t, err)
	assert.Equal(t, []Group{GroupWindow, GroupSCM}, groups)

	_, err = ParseGroups([]string{"window", "filesystem"})
	assert.ErrorIs(t, err, ErrUnknownGroup)
}

func TestGroupInfo(t *testing.T) {
	for _, g := range AllGroups() {
		info, ok := g.Info()
		require.True(t, ok, g)
		assert.Equal(t, g, info.Name)
		assert.NotEmpty(t, info.DisplayName)
		assert.NotEqual(t, "unknown", info.RiskLevel.String())
	}
	_, ok := Group("nope").Info()
	assert.False(t, ok)
}
