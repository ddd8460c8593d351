package procmeta

import (
	"sync"
)

// Manager manages task metadata lifecycle.
// It provides command-query separation for metadata access.
type Manager struct {
	mu       sync.RWMutex
	metadata map[int]*TaskMetadata // PID -> task metadata
}

// NewManager creates a new task metadata manager.
func NewManager() *Manager {
	return &Manager{
		metadata: make(map[int]*TaskMetadata),
	}
}

// Get retrieves metadata for a PID (query).
// Returns nil if no metadata exists for this PID.
func (m *Manager) Get(pid int) *TaskMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata[pid]
}

// Comm returns the command name of a PID (query).
// Returns UnknownComm if the PID was never seen. PID 0 is the idle task.
func (m *Manager) Comm(pid int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if md := m.metadata[pid]; md != nil {
		return md.Comm
	}
	if pid == 0 {
		return "<idle>"
	}
	return UnknownComm
}

// Len returns the number of known PIDs (query).
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.metadata)
}

// Set stores metadata for a PID (command).
// If metadata already exists, it is replaced.
func (m *Manager) Set(pid int, metadata *TaskMetadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[pid] = metadata
}

// SetComm records a command name for a PID (command).
// Empty names are ignored.
func (m *Manager) SetComm(pid int, comm string, source Source) {
	if comm == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[pid] = &TaskMetadata{Comm: comm, Source: source}
}

// Delete removes all data for a PID (command).
// This should be called when a task exits.
func (m *Manager) Delete(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.metadata, pid)
}
