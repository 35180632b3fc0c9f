package session

import (
	"github.com/abhisek/adaptiq/internal/irt"
	"github.com/abhisek/adaptiq/internal/mastery"
	"github.com/abhisek/adaptiq/internal/stopping"
)

// Progress is the read-only view returned by Manager.Progress.
type Progress struct {
	Session  Session
	Stats    stopping.Stats
	Decision stopping.Decision
}

// SubmitResult is returned by Manager.SubmitResponse.
type SubmitResult struct {
	Response Response
	Stats    stopping.Stats
	Decision stopping.Decision

	// NextItem is nil once the session has completed.
	NextItem *irt.ItemParameters

	// Final is set when this submission completed the session.
	Final *FinalReport
}

// Completed reports whether the submission ended the session.
func (r *SubmitResult) Completed() bool { return r.Final != nil }

// StartResult is returned by Manager.Start.
type StartResult struct {
	Session Session

	// Item is the first item to present. It is nil when the pool was
	// empty and the session completed immediately.
	Item *irt.ItemParameters

	// Final is set when the session completed during start.
	Final *FinalReport
}

// FinalReport is the frozen outcome of a completed session.
type FinalReport struct {
	Snapshot Snapshot
	Stats    stopping.Stats

	// Theta and StandardError come from EAP over the full history.
	Theta         float64
	StandardError float64

	Diagnostics *mastery.Report
}
