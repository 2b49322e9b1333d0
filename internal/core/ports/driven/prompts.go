package driven

// PromptStore serves the LLM prompt templates. Users may edit them, so a
// store falls back to the built-in text when an edited template is unusable.
type PromptStore interface {
	Load(name string) (string, error)

	// Reload drops cached templates so edits on disk take effect.
	Reload()
}

// Template names. Each templated prompt is filled with fmt.Sprintf.
const (
	// PromptQueryOptimize takes the recent conversation and the question.
	PromptQueryOptimize = "query_optimize"

	// PromptSynthesis takes the wrapped references and the question.
	PromptSynthesis = "synthesis"

	// PromptSynthesisSystem has no placeholders.
	PromptSynthesisSystem = "synthesis_system"
)

// PromptStoreAware is implemented by services whose prompts can be replaced
// after construction. Without a store they use the built-in templates.
type PromptStoreAware interface {
	SetPromptStore(store PromptStore)
}
