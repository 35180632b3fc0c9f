package exposure

// Tracker combines the in-memory counter used for selection with optional
// delivery to an external store.
type Tracker struct {
	counter   *Counter
	forwarder *Forwarder
}

// NewTracker wraps counter. forwarder may be nil.
func NewTracker(counter *Counter, forwarder *Forwarder) *Tracker {
	if counter == nil {
		counter = NewCounter()
	}
	return &Tracker{counter: counter, forwarder: forwarder}
}

// Count implements Reader.
func (t *Tracker) Count(itemID string) int64 { return t.counter.Count(itemID) }

// TotalAssessments implements Reader.
func (t *Tracker) TotalAssessments() int64 { return t.counter.TotalAssessments() }

// RecordExposure counts one administration of itemID.
func (t *Tracker) RecordExposure(itemID string) {
	t.counter.Increment(itemID)
	if t.forwarder != nil {
		t.forwarder.Exposed(itemID)
	}
}

// RecordAssessment counts the start of one assessment.
func (t *Tracker) RecordAssessment() {
	t.counter.RecordAssessment()
	if t.forwarder != nil {
		t.forwarder.AssessmentStarted()
	}
}

// Counter returns the underlying counter.
func (t *Tracker) Counter() *Counter { return t.counter }
