package parser

import (
	"sync"
)

// StringIntern deduplicates the small set of strings repeated on every
// telemetry row: mount status, pulse directions and error codes. A
// multi-hour guide log carries tens of thousands of frames but only a
// handful of distinct values for those columns.
type StringIntern struct {
	mu   sync.RWMutex
	pool map[string]string
}

// MaxInternPoolSize bounds the pool. Past it, strings are returned as-is.
const MaxInternPoolSize = 4096

func NewStringIntern() *StringIntern {
	return &StringIntern{pool: make(map[string]string, 64)}
}

// Intern returns the pooled copy of s, adding s if it is new.
func (si *StringIntern) Intern(s string) string {
	if s == "" {
		return ""
	}
	si.mu.RLock()
	pooled, ok := si.pool[s]
	full := len(si.pool) >= MaxInternPoolSize
	si.mu.RUnlock()
	if ok {
		return pooled
	}
	if full {
		return s
	}

	si.mu.Lock()
	defer si.mu.Unlock()
	if pooled, ok := si.pool[s]; ok {
		return pooled
	}
	if len(si.pool) >= MaxInternPoolSize {
		return s
	}
	si.pool[s] = s
	return s
}

// Len returns the number of pooled strings.
func (si *StringIntern) Len() int {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return len(si.pool)
}

func (si *StringIntern) Clear() {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.pool = make(map[string]string, 64)
}

// Shared by every PHD2 parser so concurrent parses reuse the same copies.
var globalIntern = NewStringIntern()

func GetGlobalIntern() *StringIntern {
	return globalIntern
}

// ResetGlobalIntern empties the shared pool.
func ResetGlobalIntern() {
	globalIntern.Clear()
}
