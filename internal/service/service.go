// Package service implements the operations exposed over HTTP: uploads,
// processing control, status polling and ticket management.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"meetingToJira/internal/jira"
	"meetingToJira/internal/models"
	"meetingToJira/internal/orchestrator"
	"meetingToJira/internal/store"
)

// Submitter queues job runs.
type Submitter interface {
	Submit(task orchestrator.Task) error
	Cancel(jobID string) bool
}

// ProjectLister lists tracker projects.
type ProjectLister interface {
	Projects(ctx context.Context) ([]jira.Project, error)
}

// Options carries upload limits and defaults.
type Options struct {
	UploadsDir        string
	MaxUploadBytes    int64
	SupportedFormats  []string
	DefaultProjectKey string
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Service struct {
	store    store.Store
	pool     Submitter
	tickets  orchestrator.TicketCreator
	projects ProjectLister
	opts     Options
	logger   *slog.Logger
}

func New(st store.Store, pool Submitter, tickets orchestrator.TicketCreator, projects ProjectLister, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		pool:     pool,
		tickets:  tickets,
		projects: projects,
		opts:     opts,
		logger:   logger,
	}
}

// StartProcessing creates a pending job for the meeting and queues it. It
// returns as soon as the job is queued. A job the pool rejects is recorded
// as failed and the rejection is returned.
func (s *Service) StartProcessing(ctx context.Context, meetingID, audioPath, projectKey string, assignee *string) (models.Job, error) {
	projectKey, err := s.projectKey(projectKey)
	if err != nil {
		return models.Job{}, err
	}

	job := models.Job{
		MeetingID: meetingID,
		Status:    models.StatusPending,
		Progress:  models.ProgressStart,
		Message:   "Queued for processing",
	}
	if err := s.store.CreateJob(ctx, &job); err != nil {
		return models.Job{}, err
	}

	err = s.pool.Submit(orchestrator.Task{
		JobID:      job.ID,
		MeetingID:  meetingID,
		AudioPath:  audioPath,
		ProjectKey: projectKey,
		Assignee:   assignee,
	})
	if err != nil {
		job.Status = models.StatusFailed
		job.Message = "rejected: " + err.Error()
		if uerr := s.store.UpdateJob(context.WithoutCancel(ctx), job); uerr != nil {
			s.logger.Error("failed to record rejected job", "job_id", job.ID, "error", uerr)
		}
		s.logger.Warn("job rejected", "job_id", job.ID, "meeting_id", meetingID, "error", err)
		return job, err
	}

	s.logger.Info("job queued", "job_id", job.ID, "meeting_id", meetingID, "project_key", projectKey)
	return job, nil
}

// Reprocess starts a new job for an existing meeting.
func (s *Service) Reprocess(ctx context.Context, meetingID, projectKey string, assignee *string) (models.Job, error) {
	m, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return models.Job{}, err
	}
	return s.StartProcessing(ctx, m.ID, m.FilePath, projectKey, assignee)
}

// CancelJob aborts an active job. A job the pool no longer knows about, for
// example one left active by a previous process, is marked failed directly.
func (s *Service) CancelJob(ctx context.Context, jobID string) (models.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}
	if job.Status.IsTerminal() {
		return job, fmt.Errorf("job %s is %s: %w", job.ID, job.Status, models.ErrJobTerminal)
	}
	if s.pool.Cancel(jobID) {
		s.logger.Info("job cancel requested", "job_id", jobID)
		return job, nil
	}

	job.Status = models.StatusFailed
	job.Message = "cancelled"
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return models.Job{}, err
	}
	return s.store.GetJob(ctx, jobID)
}

// GetStatus reports the meeting and its latest job. A meeting without any
// job reports pending at 0.
func (s *Service) GetStatus(ctx context.Context, meetingID string) (models.StatusReport, error) {
	m, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return models.StatusReport{}, err
	}
	report := models.StatusReport{
		MeetingID: m.ID,
		FileName:  m.OriginalFileName,
		Status:    string(models.StatusPending),
		Processed: m.Processed,
		CreatedAt: m.CreatedAt,
	}
	job, err := s.store.LatestJob(ctx, meetingID)
	switch {
	case err == nil:
		report.Status = string(job.Status)
		report.Progress = job.Progress
		report.Message = job.Message
	case !errors.Is(err, models.ErrNotFound):
		return models.StatusReport{}, err
	}
	return report, nil
}

func (s *Service) GetMeeting(ctx context.Context, meetingID string) (models.Meeting, error) {
	return s.store.GetMeeting(ctx, meetingID)
}

// ListMeetings pages through meetings, newest first. A non-positive limit
// selects the default page size.
func (s *Service) ListMeetings(ctx context.Context, limit, offset int) ([]models.Meeting, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must be >= 0", models.ErrValidation)
	}
	return s.store.ListMeetings(ctx, limit, offset)
}

// ListRequirements returns the meeting's requirements in creation order.
func (s *Service) ListRequirements(ctx context.Context, meetingID string) ([]models.Requirement, error) {
	if _, err := s.store.GetMeeting(ctx, meetingID); err != nil {
		return nil, err
	}
	reqs, err := s.store.ListRequirements(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("requirements for meeting %s: %w", meetingID, models.ErrNotFound)
	}
	return reqs, nil
}

// ListTickets returns the tickets linked to the meeting's requirements.
func (s *Service) ListTickets(ctx context.Context, meetingID string) ([]models.Ticket, error) {
	if _, err := s.store.GetMeeting(ctx, meetingID); err != nil {
		return nil, err
	}
	return s.store.ListTickets(ctx, meetingID)
}

// CreateTicketForRequirement files a ticket for one requirement that has none.
func (s *Service) CreateTicketForRequirement(ctx context.Context, requirementID, projectKey string, assignee *string) (models.Ticket, error) {
	projectKey, err := s.projectKey(projectKey)
	if err != nil {
		return models.Ticket{}, err
	}
	req, err := s.store.GetRequirement(ctx, requirementID)
	if err != nil {
		return models.Ticket{}, err
	}
	if req.TicketKey != "" {
		return models.Ticket{}, fmt.Errorf("requirement %s already has ticket %s: %w", req.ID, req.TicketKey, models.ErrAlreadyExists)
	}

	var res *models.TicketResult
	for _, r := range s.tickets.CreateTickets(ctx, []models.Requirement{req}, projectKey, assignee) {
		if r.RequirementID == req.ID {
			r := r
			res = &r
			break
		}
	}
	switch {
	case res == nil:
		return models.Ticket{}, &models.StageError{Kind: models.KindTicketItem, Stage: models.StatusCreatingTickets, Message: req.ID, Err: errors.New("no result returned")}
	case res.Err != nil:
		return models.Ticket{}, &models.StageError{Kind: models.KindTicketItem, Stage: models.StatusCreatingTickets, Message: req.ID, Err: res.Err}
	}

	t := models.Ticket{
		RequirementID: req.ID,
		Key:           res.Key,
		URL:           res.URL,
		Summary:       res.Summary,
		Status:        res.Status,
	}
	if err := s.store.CreateTicket(ctx, &t); err != nil {
		return models.Ticket{}, err
	}
	s.logger.Info("ticket created", "requirement_id", req.ID, "key", t.Key)
	return t, nil
}

// Projects lists the tracker projects available for ticket creation.
func (s *Service) Projects(ctx context.Context) ([]jira.Project, error) {
	return s.projects.Projects(ctx)
}

// projectKey applies the default and upper-cases the key.
func (s *Service) projectKey(key string) (string, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		key = s.opts.DefaultProjectKey
	}
	if !projectKeyRe.MatchString(key) {
		return "", fmt.Errorf("%w: invalid project key %q", models.ErrValidation, key)
	}
	return key, nil
}
