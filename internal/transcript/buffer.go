// Package transcript holds the ordered transcript and persists snapshots of it.
package transcript

import (
	"strings"
	"sync"
)

// DefaultSeparator joins fragments in FullText.
const DefaultSeparator = " "

// Buffer is a thread-safe, append-only sequence of text fragments. Fragments
// keep their arrival order and are only removed by Clear.
type Buffer struct {
	mu        sync.RWMutex
	fragments []string
	sep       string
}

// NewBuffer creates an empty buffer joined by sep. An empty sep selects
// DefaultSeparator.
func NewBuffer(sep string) *Buffer {
	if sep == "" {
		sep = DefaultSeparator
	}
	return &Buffer{sep: sep}
}

// Push appends one fragment.
func (b *Buffer) Push(text string) {
	b.mu.Lock()
	b.fragments = append(b.fragments, text)
	b.mu.Unlock()
}

// FullText returns all fragments joined by the separator as one consistent
// snapshot.
func (b *Buffer) FullText() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return strings.Join(b.fragments, b.sep)
}

// Fragments returns a copy of the stored fragments.
func (b *Buffer) Fragments() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.fragments...)
}

// Clear removes every fragment and returns what was removed.
func (b *Buffer) Clear() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := b.fragments
	b.fragments = nil
	return removed
}

// Len returns the number of fragments.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.fragments)
}
