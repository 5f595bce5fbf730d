package enrollsync

import (
	"sync"
)

// Hook function types for stage events
type (
	// StageStartedHook is called before a stage runs
	StageStartedHook func(stage string)

	// StageFinishedHook is called after a stage ran, with its outcome
	StageFinishedHook func(outcome StageOutcome)
)

// hooks manages stage callbacks
type hooks struct {
	mu              sync.RWMutex
	onStageStarted  []StageStartedHook
	onStageFinished []StageFinishedHook
}

// newHooks creates a new hooks instance
func newHooks() *hooks {
	return &hooks{}
}

// OnStageStarted registers a callback for when a stage starts
func (h *hooks) OnStageStarted(fn StageStartedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onStageStarted = append(h.onStageStarted, fn)
}

// OnStageFinished registers a callback for when a stage finishes
func (h *hooks) OnStageFinished(fn StageFinishedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onStageFinished = append(h.onStageFinished, fn)
}

func (h *hooks) started(stage string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onStageStarted {
		fn(stage)
	}
}

func (h *hooks) finished(outcome StageOutcome) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onStageFinished {
		fn(outcome)
	}
}
