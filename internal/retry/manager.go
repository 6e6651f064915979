package retry

import "sync"

// TaskState tracks dispatch attempts for a single task.
type TaskState struct {
	TaskID     string `json:"task_id"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
	LastError  string `json:"last_error,omitempty"`
	Succeeded  bool   `json:"succeeded,omitempty"`
}

// Manager holds retry state per task for the orchestrator. It is safe for
// concurrent use.
type Manager struct {
	mu     sync.RWMutex
	states map[string]*TaskState
}

// NewManager creates an empty retry manager.
func NewManager() *Manager {
	return &Manager{states: make(map[string]*TaskState)}
}

// GetOrCreateState returns the retry state for a task, creating it with the
// given budget if it does not exist yet.
func (m *Manager) GetOrCreateState(taskID string, maxRetries int) *TaskState {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[taskID]
	if !ok {
		state = &TaskState{TaskID: taskID, MaxRetries: maxRetries}
		m.states[taskID] = state
	}
	return state
}

// ShouldRetry reports whether a task still has retry budget remaining.
func (m *Manager) ShouldRetry(taskID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[taskID]
	if !ok {
		return false
	}
	return !state.Succeeded && state.RetryCount < state.MaxRetries
}

// RecordAttempt records the outcome of a dispatch attempt. A success marks
// the task done; a failure consumes one retry and stores the error message.
func (m *Manager) RecordAttempt(taskID string, success bool, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[taskID]
	if !ok {
		return
	}
	if success {
		state.Succeeded = true
		return
	}
	state.RetryCount++
	state.LastError = errMsg
}

// FailedTasks returns the IDs of tasks that exhausted their budget without
// succeeding.
func (m *Manager) FailedTasks() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var failed []string
	for id, state := range m.states {
		if !state.Succeeded && state.RetryCount >= state.MaxRetries {
			failed = append(failed, id)
		}
	}
	return failed
}

// Reset clears the retry state for a task, used when a paused task is
// requeued with a fresh budget.
func (m *Manager) Reset(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, taskID)
}
