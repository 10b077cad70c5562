package security

import (
	"fmt"
	"sort"
)

// Group is a capability group of the extension surface.
type Group string

// Capability groups.
const (
	GroupWindow    Group = "window"
	GroupWorkspace Group = "workspace"
	GroupCommands  Group = "commands"
	GroupLanguages Group = "languages"
	GroupDebug     Group = "debug"
	GroupTasks     Group = "tasks"
	GroupSCM       Group = "scm"
	GroupEnv       Group = "env"
)

// RiskLevel indicates how much of the host a group exposes.
type RiskLevel int

const (
	// RiskLow groups only touch extension-owned state.
	RiskLow RiskLevel = iota

	// RiskMedium groups observe or change workspace state.
	RiskMedium

	// RiskHigh groups reach outside the host process.
	RiskHigh
)

// String returns a string representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// GroupInfo describes a capability group.
type GroupInfo struct {
	Name        Group
	DisplayName string
	Description string
	RiskLevel   RiskLevel
}

var groupRegistry = map[Group]GroupInfo{
	GroupWindow: {
		Name:        GroupWindow,
		DisplayName: "Window",
		Description: "Messages, output channels, status bar, terminals and webviews",
		RiskLevel:   RiskLow,
	},
	GroupWorkspace: {
		Name:        GroupWorkspace,
		DisplayName: "Workspace",
		Description: "Workspace folders, configuration, file search and watchers",
		RiskLevel:   RiskMedium,
	},
	GroupCommands: {
		Name:        GroupCommands,
		DisplayName: "Commands",
		Description: "Register and execute commands",
		RiskLevel:   RiskLow,
	},
	GroupLanguages: {
		Name:        GroupLanguages,
		DisplayName: "Languages",
		Description: "Language providers and diagnostics",
		RiskLevel:   RiskLow,
	},
	GroupDebug: {
		Name:        GroupDebug,
		DisplayName: "Debug",
		Description: "Debug sessions, configuration providers and breakpoints",
		RiskLevel:   RiskMedium,
	},
	GroupTasks: {
		Name:        GroupTasks,
		DisplayName: "Tasks",
		Description: "Task providers and task execution",
		RiskLevel:   RiskMedium,
	},
	GroupSCM: {
		Name:        GroupSCM,
		DisplayName: "Source Control",
		Description: "Source control providers",
		RiskLevel:   RiskLow,
	},
	GroupEnv: {
		Name:        GroupEnv,
		DisplayName: "Environment",
		Description: "Host identity, clipboard and external URIs",
		RiskLevel:   RiskHigh,
	},
}

// Valid reports whether g is a known group.
func (g Group) Valid() bool {
	_, ok := groupRegistry[g]
	return ok
}

// String returns the group name.
func (g Group) String() string {
	return string(g)
}

// Info returns metadata about g.
func (g Group) Info() (GroupInfo, bool) {
	info, ok := groupRegistry[g]
	return info, ok
}

// AllGroups returns every known group sorted by name.
func AllGroups() []Group {
	groups := make([]Group, 0, len(groupRegistry))
	for g := range groupRegistry {
		groups = append(groups, g)
	}
	sortGroups(groups)
	return groups
}

// ParseGroups converts names to groups, rejecting unknown ones.
func ParseGroups(names []string) ([]Group, error) {
	groups := make([]Group, 0, len(names))
	for _, n := range names {
		g := Group(n)
		if !g.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, n)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func sortGroups(groups []Group) {
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
}
