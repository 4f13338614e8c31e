// Package devicestore provides the device-local media the local store writes
// through: an in-memory map with a byte quota and a bbolt file.
package devicestore

import (
	"fmt"
	"sync"

	"github.com/resume-services/questionnaire-hub/internal/qsync/localstore"
)

// Memory is a map-backed medium. A positive quota caps the total size of all
// stored values, the way browser storage does.
type Memory struct {
	mu    sync.RWMutex
	data  map[string]string
	quota int
	used  int
}

func NewMemory(quota int) *Memory {
	return &Memory{data: make(map[string]string), quota: quota}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.used - len(m.data[key]) + len(value)
	if m.quota > 0 && next > m.quota {
		return fmt.Errorf("%w: %d of %d bytes", localstore.ErrQuotaExceeded, next, m.quota)
	}
	m.data[key] = value
	m.used = next
	return nil
}

// Used returns the total size of stored values in bytes.
func (m *Memory) Used() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}
