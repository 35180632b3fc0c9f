// Package itembank holds the calibrated item pool supplied by the external
// item bank. The Bank owns the canonical records; callers only ever get
// copies.
package itembank

import (
	"sort"
	"sync"

	"github.com/abhisek/adaptiq/internal/irt"
)

// Entry is one item with its calibration and classification.
type Entry struct {
	Params      irt.ItemParameters
	Subject     string `validate:"required"`
	Grade       string `validate:"required"`
	Skill       string
	ContentArea string
}

// Bank is an in-memory, concurrency-safe item bank. Replace swaps the
// whole contents atomically.
type Bank struct {
	mu      sync.RWMutex
	entries map[string]Entry
	version string
}

// New returns a bank holding entries.
func New(entries ...Entry) *Bank {
	b := &Bank{}
	b.Replace("", entries)
	return b
}

// Replace swaps the bank contents.
func (b *Bank) Replace(version string, entries []Entry) {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.Params.ID] = e
	}
	b.mu.Lock()
	b.entries = m
	b.version = version
	b.mu.Unlock()
}

// Version is the format version the current contents were loaded with.
func (b *Bank) Version() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// Len returns the number of items.
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Lookup implements irt.ItemLookup.
func (b *Bank) Lookup(id string) (irt.ItemParameters, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[id]
	return e.Params, ok
}

// Entry returns the full record for id.
func (b *Bank) Entry(id string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[id]
	return e, ok
}

// Pool returns the calibration of every item for subject and grade, sorted
// by id. Empty subject or grade match everything.
func (b *Bank) Pool(subject, grade string) []irt.ItemParameters {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]irt.ItemParameters, 0, len(b.entries))
	for _, e := range b.entries {
		if subject != "" && e.Subject != subject {
			continue
		}
		if grade != "" && e.Grade != grade {
			continue
		}
		out = append(out, e.Params)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SkillMap returns item id → skill for items that name one.
func (b *Bank) SkillMap() map[string]string {
	return b.project(func(e Entry) string { return e.Skill })
}

// ContentAreas returns item id → content area for items that name one.
func (b *Bank) ContentAreas() map[string]string {
	return b.project(func(e Entry) string { return e.ContentArea })
}

func (b *Bank) project(field func(Entry) string) map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string)
	for id, e := range b.entries {
		if v := field(e); v != "" {
			out[id] = v
		}
	}
	return out
}
