package models

// JobStatus represents the current stage of a processing job.
type JobStatus string

const (
	StatusPending         JobStatus = "pending"
	StatusTranscribing    JobStatus = "transcribing"
	StatusExtracting      JobStatus = "extracting"
	StatusCreatingTickets JobStatus = "creating_tickets"
	StatusCompleted       JobStatus = "completed"
	StatusFailed          JobStatus = "failed"
)

// Stage checkpoints. Progress only takes these values on the success path.
const (
	ProgressStart       = 0
	ProgressTranscribed = 30
	ProgressExtracted   = 60
	ProgressDone        = 100
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive reports whether a job in this status still owns its meeting.
func (s JobStatus) IsActive() bool {
	switch s {
	case StatusPending, StatusTranscribing, StatusExtracting, StatusCreatingTickets:
		return true
	default:
		return false
	}
}

// CanTransition enforces the job state machine edges.
func CanTransition(from, to JobStatus) bool {
	if to == StatusFailed {
		return from.IsActive()
	}
	switch from {
	case StatusPending:
		return to == StatusTranscribing
	case StatusTranscribing:
		return to == StatusExtracting
	case StatusExtracting:
		return to == StatusCreatingTickets
	case StatusCreatingTickets:
		return to == StatusCompleted
	default:
		return false
	}
}
