package mock

import (
	"context"
	"sync"

	"github.com/poiesic/pagewise/ai"
)

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, the content of the last user message is echoed back.
	GenerateFunc func(ctx context.Context, messages []ai.Message, opts ai.GenerateOptions) (string, error)

	mu       sync.Mutex
	prompts  [][]ai.Message
	lastOpts ai.GenerateOptions
}

var _ ai.Generator = (*MockGenerator)(nil)

// NewMockGenerator creates a generator that echoes the question.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate records the prompt and produces an answer.
func (m *MockGenerator) Generate(ctx context.Context, messages []ai.Message, opts ai.GenerateOptions) (string, error) {
	m.mu.Lock()
	prompt := make([]ai.Message, len(messages))
	copy(prompt, messages)
	m.prompts = append(m.prompts, prompt)
	m.lastOpts = opts
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, messages, opts)
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == ai.MessageRoleUser {
			return "echo: " + messages[i].Content, nil
		}
	}
	return "echo", nil
}

// CallCount returns how many times Generate was invoked.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// LastPrompt returns the messages of the most recent call, or nil.
func (m *MockGenerator) LastPrompt() []ai.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return nil
	}
	return m.prompts[len(m.prompts)-1]
}

// LastOptions returns the options of the most recent call.
func (m *MockGenerator) LastOptions() ai.GenerateOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOpts
}

// Reset clears recorded prompts and injected behavior.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = nil
	m.GenerateFunc = nil
}
