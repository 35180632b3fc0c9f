// Package exposure tracks how often each item has been administered across
// all sessions. Counts are shared by every session and only need atomic
// increments; readers may observe values that are one update stale.
package exposure

import (
	"sync"
	"sync/atomic"
)

// Reader exposes the counts the item selector needs.
type Reader interface {
	Count(itemID string) int64
	TotalAssessments() int64
}

// Rate returns count/total for an item, or 0 when no assessment has run.
func Rate(r Reader, itemID string) float64 {
	total := r.TotalAssessments()
	if total <= 0 {
		return 0
	}
	return float64(r.Count(itemID)) / float64(total)
}

// Counter is an in-memory, lock-free exposure counter.
type Counter struct {
	counts sync.Map // map[string]*atomic.Int64
	total  atomic.Int64
}

// NewCounter returns an empty counter.
func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) slot(itemID string) *atomic.Int64 {
	if v, ok := c.counts.Load(itemID); ok {
		return v.(*atomic.Int64)
	}
	v, _ := c.counts.LoadOrStore(itemID, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// Count implements Reader.
func (c *Counter) Count(itemID string) int64 {
	if v, ok := c.counts.Load(itemID); ok {
		return v.(*atomic.Int64).Load()
	}
	return 0
}

// TotalAssessments implements Reader.
func (c *Counter) TotalAssessments() int64 {
	return c.total.Load()
}

// Increment records one administration of itemID and returns the new count.
func (c *Counter) Increment(itemID string) int64 {
	return c.slot(itemID).Add(1)
}

// RecordAssessment records the start of one assessment.
func (c *Counter) RecordAssessment() int64 {
	return c.total.Add(1)
}

// Load seeds the counter from persisted values, adding to what is present.
func (c *Counter) Load(counts map[string]int64, total int64) {
	for id, n := range counts {
		c.slot(id).Add(n)
	}
	c.total.Add(total)
}

// Snapshot copies the current counts.
func (c *Counter) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	c.counts.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return out
}
