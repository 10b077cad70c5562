package api

import "context"

// Prompter answers interactive requests on behalf of the UI layer.
type Prompter interface {
	// PromptMessage returns the chosen item, or "" if dismissed.
	PromptMessage(ctx context.Context, owner string, severity Severity, message string, items []string) (string, error)

	// PromptQuickPick returns the chosen item, or "" if cancelled.
	PromptQuickPick(ctx context.Context, owner string, items []string, opts QuickPickOptions) (string, error)

	// PromptInput returns the entered text.
	PromptInput(ctx context.Context, owner string, opts InputBoxOptions) (string, error)
}

// AutoPrompter answers without a user: the first item, or the input
// box's initial value.
type AutoPrompter struct{}

// PromptMessage returns the first item.
func (AutoPrompter) PromptMessage(_ context.Context, _ string, _ Severity, _ string, items []string) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	return items[0], nil
}

// PromptQuickPick returns the first item.
func (AutoPrompter) PromptQuickPick(_ context.Context, _ string, items []string, _ QuickPickOptions) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	return items[0], nil
}

// PromptInput returns opts.Value.
func (AutoPrompter) PromptInput(_ context.Context, _ string, opts InputBoxOptions) (string, error) {
	return opts.Value, nil
}
