package feed

import (
	"sort"
	"strings"
	"sync"
)

// Allowlist is the set of process IDs the oracle answers.
// Process IDs are base64url and compared exactly.
type Allowlist struct {
	ids map[string]struct{}
	mu  sync.RWMutex
}

// NewAllowlist creates an allowlist from ids. Blank entries are ignored.
func NewAllowlist(ids ...string) *Allowlist {
	a := &Allowlist{ids: make(map[string]struct{})}
	a.AddBatch(ids)
	return a
}

// ParseAllowlist builds an allowlist from a comma-separated list.
func ParseAllowlist(csv string) *Allowlist {
	return NewAllowlist(strings.Split(csv, ",")...)
}

// Contains checks if a process is allowed.
func (a *Allowlist) Contains(id string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.ids[id]
	return ok
}

// AddBatch adds multiple process IDs.
func (a *Allowlist) AddBatch(ids []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		a.ids[id] = struct{}{}
	}
}

// Size returns the number of allowed processes.
func (a *Allowlist) Size() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.ids)
}

// IDs returns the allowed process IDs, sorted.
func (a *Allowlist) IDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result := make([]string, 0, len(a.ids))
	for id := range a.ids {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}
