// Package store persists meetings, jobs, requirements and tickets.
//
// Two implementations exist: an in-memory store used when no database is
// configured (and in tests), and a Postgres store backed by lib/pq. Both
// enforce the same invariants: one ticket per requirement, one active job
// per meeting, and no writes to a job once it reached a terminal status.
package store

import (
	"context"

	"meetingToJira/internal/models"
)

// Repository is the record capability set used by the service and the orchestrator.
type Repository interface {
	CreateMeeting(ctx context.Context, m *models.Meeting) error
	GetMeeting(ctx context.Context, id string) (models.Meeting, error)
	ListMeetings(ctx context.Context, limit, offset int) ([]models.Meeting, error)
	SaveTranscription(ctx context.Context, meetingID string, t models.Transcript) error
	MarkProcessed(ctx context.Context, meetingID string) error

	CreateJob(ctx context.Context, j *models.Job) error
	GetJob(ctx context.Context, id string) (models.Job, error)
	LatestJob(ctx context.Context, meetingID string) (models.Job, error)
	UpdateJob(ctx context.Context, j models.Job) error

	CreateRequirement(ctx context.Context, r *models.Requirement) error
	GetRequirement(ctx context.Context, id string) (models.Requirement, error)
	ListRequirements(ctx context.Context, meetingID string) ([]models.Requirement, error)

	// CreateTicket persists t and links it to its requirement in one step.
	// It fails with models.ErrAlreadyExists if the requirement already has a ticket.
	CreateTicket(ctx context.Context, t *models.Ticket) error
	ListTickets(ctx context.Context, meetingID string) ([]models.Ticket, error)
}

// Session is a Repository bound to one persistence handle for the lifetime of a job run.
type Session interface {
	Repository
	Close() error
}

// Store is the process-wide record store.
type Store interface {
	Repository
	Session(ctx context.Context) (Session, error)
	Close() error
}
