package mocks

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/getkin/kin-openapi/openapi3"
)

// ProviderStep is one scripted provider response.
type ProviderStep struct {
	Text string
	Err  error
	// Hang makes the call ignore ctx and block until the mock is released.
	Hang bool
}

// MockProvider implements generation.Provider for testing.
type MockProvider struct {
	// GenerateFn overrides all scripted behaviour when set.
	GenerateFn func(ctx context.Context, prompt string, schema *openapi3.Schema) (string, error)

	// Steps are consumed one per call; the last step repeats once exhausted.
	Steps []ProviderStep

	mu      sync.Mutex
	calls   int
	prompts []string

	inFlight    atomic.Int64
	maxInFlight atomic.Int64

	releaseOnce sync.Once
	release     chan struct{}
}

// NewScriptedProvider returns a MockProvider that plays steps in order.
func NewScriptedProvider(steps ...ProviderStep) *MockProvider {
	return &MockProvider{Steps: steps}
}

// Generate implements generation.Provider.
func (m *MockProvider) Generate(ctx context.Context, prompt string, schema *openapi3.Schema) (string, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		peak := m.maxInFlight.Load()
		if n <= peak || m.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	m.mu.Lock()
	idx := m.calls
	m.calls++
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, prompt, schema)
	}

	if len(m.Steps) == 0 {
		return "", nil
	}
	if idx >= len(m.Steps) {
		idx = len(m.Steps) - 1
	}
	step := m.Steps[idx]

	if step.Hang {
		<-m.releaseChan()
	}
	return step.Text, step.Err
}

func (m *MockProvider) releaseChan() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.release == nil {
		m.release = make(chan struct{})
	}
	return m.release
}

// Release unblocks every hanging call, current and future.
func (m *MockProvider) Release() {
	ch := m.releaseChan()
	m.releaseOnce.Do(func() { close(ch) })
}

// Calls returns how many times Generate was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns the prompts passed to Generate in call order.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// InFlight returns the number of calls currently executing.
func (m *MockProvider) InFlight() int {
	return int(m.inFlight.Load())
}

// MaxInFlight returns the peak number of concurrent calls observed.
func (m *MockProvider) MaxInFlight() int {
	return int(m.maxInFlight.Load())
}
