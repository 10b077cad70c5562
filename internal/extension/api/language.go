package api

import (
	"context"
	"path"
	"strings"
)

// ProviderKind selects the language feature a provider serves.
type ProviderKind string

// Provider kinds.
const (
	ProviderCompletion ProviderKind = "completion"
	ProviderHover      ProviderKind = "hover"
	ProviderDefinition ProviderKind = "definition"
	ProviderReferences ProviderKind = "references"
	ProviderCodeAction ProviderKind = "codeAction"
	ProviderFormatting ProviderKind = "formatting"
	ProviderRename     ProviderKind = "rename"
)

// DocumentFilter matches documents by language, scheme or path pattern.
// Empty fields match anything; at least one field must be set.
type DocumentFilter struct {
	Language string
	Scheme   string
	Pattern  string
}

// DocumentSelector matches a document if any of its filters does.
type DocumentSelector []DocumentFilter

// Validate checks the selector is usable.
func (s DocumentSelector) Validate() error {
	if len(s) == 0 {
		return invalid("empty document selector")
	}
	for i, f := range s {
		if f.Language == "" && f.Scheme == "" && f.Pattern == "" {
			return invalid("document filter %d matches nothing specific", i)
		}
		if f.Pattern != "" {
			if _, err := path.Match(f.Pattern, ""); err != nil {
				return invalid("document filter %d: bad pattern %q", i, f.Pattern)
			}
		}
	}
	return nil
}

// Matches reports whether doc is selected.
func (s DocumentSelector) Matches(doc TextDocument) bool {
	for _, f := range s {
		if f.matches(doc) {
			return true
		}
	}
	return false
}

func (f DocumentFilter) matches(doc TextDocument) bool {
	if f.Language != "" && f.Language != "*" && !strings.EqualFold(f.Language, doc.LanguageID) {
		return false
	}
	if f.Scheme != "" && f.Scheme != doc.URI.Scheme {
		return false
	}
	if f.Pattern != "" {
		ok, _ := path.Match(f.Pattern, doc.URI.Path)
		if !ok {
			ok, _ = path.Match(f.Pattern, path.Base(doc.URI.Path))
		}
		if !ok {
			return false
		}
	}
	return true
}

// TextDocument is a snapshot of a document passed to providers.
type TextDocument struct {
	URI        URI
	LanguageID string
	Version    int
	Text       string
}

// Location is a range inside a resource.
type Location struct {
	URI   URI
	Range Range
}

// TextEdit replaces Range with NewText.
type TextEdit struct {
	Range   Range
	NewText string
}

// CompletionItem is one completion proposal.
type CompletionItem struct {
	Label      string
	Detail     string
	InsertText string
}

// Hover is hover content for a position.
type Hover struct {
	Contents []string
	Range    *Range
}

// CodeAction is a fix or refactoring.
type CodeAction struct {
	Title   string
	Command string
	Edits   []TextEdit
}

// CompletionProvider serves ProviderCompletion.
type CompletionProvider interface {
	ProvideCompletionItems(ctx context.Context, doc TextDocument, pos Position) ([]CompletionItem, error)
}

// HoverProvider serves ProviderHover.
type HoverProvider interface {
	ProvideHover(ctx context.Context, doc TextDocument, pos Position) (*Hover, error)
}

// DefinitionProvider serves ProviderDefinition.
type DefinitionProvider interface {
	ProvideDefinition(ctx context.Context, doc TextDocument, pos Position) ([]Location, error)
}

// ReferenceProvider serves ProviderReferences.
type ReferenceProvider interface {
	ProvideReferences(ctx context.Context, doc TextDocument, pos Position) ([]Location, error)
}

// CodeActionProvider serves ProviderCodeAction.
type CodeActionProvider interface {
	ProvideCodeActions(ctx context.Context, doc TextDocument, rng Range) ([]CodeAction, error)
}

// FormattingProvider serves ProviderFormatting.
type FormattingProvider interface {
	ProvideFormattingEdits(ctx context.Context, doc TextDocument) ([]TextEdit, error)
}

// RenameProvider serves ProviderRename.
type RenameProvider interface {
	ProvideRenameEdits(ctx context.Context, doc TextDocument, pos Position, newName string) ([]TextEdit, error)
}

// checkProvider verifies p implements the interface for kind.
func checkProvider(kind ProviderKind, p any) error {
	if p == nil {
		return invalid("nil %s provider", kind)
	}
	var ok bool
	switch kind {
	case ProviderCompletion:
		_, ok = p.(CompletionProvider)
	case ProviderHover:
		_, ok = p.(HoverProvider)
	case ProviderDefinition:
		_, ok = p.(DefinitionProvider)
	case ProviderReferences:
		_, ok = p.(ReferenceProvider)
	case ProviderCodeAction:
		_, ok = p.(CodeActionProvider)
	case ProviderFormatting:
		_, ok = p.(FormattingProvider)
	case ProviderRename:
		_, ok = p.(RenameProvider)
	default:
		return invalid("unknown provider kind %q", kind)
	}
	if !ok {
		return invalid("provider %T does not implement %s", p, kind)
	}
	return nil
}

// DiagnosticSeverity ranks a diagnostic.
type DiagnosticSeverity int

// Diagnostic severities.
const (
	DiagnosticError DiagnosticSeverity = iota
	DiagnosticWarning
	DiagnosticInformation
	DiagnosticHint
)

// Diagnostic is a problem reported for a range of a resource.
type Diagnostic struct {
	Range    Range
	Message  string
	Severity DiagnosticSeverity
	Source   string
	Code     string
}

// knownLanguages is what Languages() reports.
var knownLanguages = []string{
	"bat", "c", "cpp", "csharp", "css", "go", "html", "java", "javascript",
	"json", "kotlin", "less", "markdown", "php", "plaintext", "powershell",
	"python", "ruby", "rust", "scala", "scss", "shell", "sql", "swift",
	"typescript", "xml", "yaml",
}
