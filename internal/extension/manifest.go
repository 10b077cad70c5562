package extension

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dshills/exthost/internal/extension/security"
)

// ManifestFile is the manifest file name inside an extension directory.
const ManifestFile = "extension.json"

// DefaultMain is the entry point used when a manifest names none.
const DefaultMain = "init.lua"

// Activation events understood by the runtime.
const (
	EventAny               = "*"
	EventStartup           = "onStartup"
	EventCommandPrefix     = "onCommand:"
	EventLanguagePrefix    = "onLanguage:"
	EventWorkspaceContains = "workspaceContains:"
)

//go:embed manifest.schema.json
var manifestSchemaJSON []byte

const manifestSchemaURL = "https://exthost.local/schemas/extension.schema.json"

var (
	schemaOnce     sync.Once
	manifestSchema *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(manifestSchemaURL, bytes.NewReader(manifestSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("manifest schema load failed: %w", err)
			return
		}
		manifestSchema, schemaErr = c.Compile(manifestSchemaURL)
	})
	return manifestSchema, schemaErr
}

// Manifest describes an extension. It is read from extension.json.
type Manifest struct {
	ExplicitID  string `json:"id,omitempty"`
	Name        string `json:"name"`
	Publisher   string `json:"publisher,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`

	// Main is the entry point, relative to the install directory for
	// scripts or a registered module name for Go extensions.
	Main string `json:"main,omitempty"`

	Engines          Engines     `json:"engines,omitempty"`
	Capabilities     []string    `json:"capabilities,omitempty"`
	HostModules      []string    `json:"hostModules,omitempty"`
	ActivationEvents []string    `json:"activationEvents,omitempty"`
	Resources        Resources   `json:"resources,omitempty"`
	Contributes      Contributes `json:"contributes,omitempty"`
}

// Engines constrains the host versions an extension runs on.
type Engines struct {
	Host string `json:"host,omitempty"`
}

// Resources is what the extension asks of the sandbox.
type Resources struct {
	MemoryBytes uint64  `json:"memoryBytes,omitempty"`
	CPUPercent  float64 `json:"cpuPercent,omitempty"`
}

// Contributes lists static contributions.
type Contributes struct {
	Commands []CommandContribution `json:"commands,omitempty"`
}

// CommandContribution declares a command the extension provides.
type CommandContribution struct {
	Command  string `json:"command"`
	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
}

// ParseManifest decodes and validates manifest JSON.
func ParseManifest(data []byte) (*Manifest, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifest reads and validates the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// LoadManifestFromDir reads dir/extension.json.
func LoadManifestFromDir(dir string) (*Manifest, error) {
	return LoadManifest(filepath.Join(dir, ManifestFile))
}

func (m *Manifest) applyDefaults() {
	if m.Main == "" {
		m.Main = DefaultMain
	}
}

// Validate runs the checks the schema cannot express.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidManifest)
	}
	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return fmt.Errorf("%w: version %q: %v", ErrInvalidManifest, m.Version, err)
	}
	if m.Engines.Host != "" {
		if _, err := semver.NewConstraint(m.Engines.Host); err != nil {
			return fmt.Errorf("%w: engines.host %q: %v", ErrInvalidManifest, m.Engines.Host, err)
		}
	}
	if filepath.IsAbs(m.Main) || strings.HasPrefix(filepath.ToSlash(filepath.Clean(m.Main)), "../") {
		return fmt.Errorf("%w: main %q must stay inside the extension directory", ErrInvalidManifest, m.Main)
	}
	if _, err := security.ParseGroups(m.Capabilities); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	seen := make(map[string]bool, len(m.Contributes.Commands))
	for i, c := range m.Contributes.Commands {
		if c.Command == "" {
			return fmt.Errorf("%w: command at index %d has no id", ErrInvalidManifest, i)
		}
		if seen[c.Command] {
			return fmt.Errorf("%w: command %q contributed twice", ErrInvalidManifest, c.Command)
		}
		seen[c.Command] = true
	}
	return nil
}

// ID returns the extension id: the explicit id, else publisher.name,
// else name.
func (m *Manifest) ID() string {
	switch {
	case m.ExplicitID != "":
		return m.ExplicitID
	case m.Publisher != "":
		return m.Publisher + "." + m.Name
	default:
		return m.Name
	}
}

// SemVer returns the parsed version.
func (m *Manifest) SemVer() (*semver.Version, error) {
	return semver.StrictNewVersion(m.Version)
}

// CheckEngine reports whether hostVersion satisfies engines.host. An empty
// constraint accepts every host.
func (m *Manifest) CheckEngine(hostVersion string) error {
	if m.Engines.Host == "" {
		return nil
	}
	c, err := semver.NewConstraint(m.Engines.Host)
	if err != nil {
		return fmt.Errorf("engines.host %q: %w", m.Engines.Host, err)
	}
	v, err := semver.NewVersion(hostVersion)
	if err != nil {
		return fmt.Errorf("host version %q: %w", hostVersion, err)
	}
	if ok, errs := c.Validate(v); !ok {
		if len(errs) > 0 {
			return errs[0]
		}
		return fmt.Errorf("host %s does not satisfy %s", hostVersion, m.Engines.Host)
	}
	return nil
}

// Groups returns the requested capability groups.
func (m *Manifest) Groups() []security.Group {
	groups, _ := security.ParseGroups(m.Capabilities)
	return groups
}

// Request returns the sandbox request the manifest makes.
func (m *Manifest) Request() security.Request {
	return security.Request{
		ExtensionID: m.ID(),
		Groups:      m.Groups(),
		Modules:     slices.Clone(m.HostModules),
		MemoryBytes: m.Resources.MemoryBytes,
		CPUPercent:  m.Resources.CPUPercent,
	}
}

// HasActivationEvent reports whether event activates the extension. "*"
// matches every event.
func (m *Manifest) HasActivationEvent(event string) bool {
	for _, e := range m.ActivationEvents {
		if e == EventAny || e == event {
			return true
		}
	}
	return false
}

// ContributesCommand reports whether id is a contributed command.
func (m *Manifest) ContributesCommand(id string) bool {
	for _, c := range m.Contributes.Commands {
		if c.Command == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Capabilities = slices.Clone(m.Capabilities)
	c.HostModules = slices.Clone(m.HostModules)
	c.ActivationEvents = slices.Clone(m.ActivationEvents)
	c.Contributes.Commands = slices.Clone(m.Contributes.Commands)
	return &c
}

// String returns "displayName vVersion".
func (m *Manifest) String() string {
	display := m.DisplayName
	if display == "" {
		display = m.ID()
	}
	return fmt.Sprintf("%s v%s", display, m.Version)
}
