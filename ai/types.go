package ai

// MessageRole identifies the speaker of a prompt message.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one entry of an assembled prompt.
type Message struct {
	Role    MessageRole
	Content string
}

// GenerateOptions are handed through to the language model untouched.
// Zero values leave the backend default in place.
type GenerateOptions struct {
	Temperature   float64
	MaxTokens     int // num_predict for Ollama
	ContextWindow int // num_ctx for Ollama
}
