// Package orchestrator drives one processing job through its stages:
// transcribe, extract requirements, create tickets. Every status and
// progress change is persisted before the next stage starts so a
// concurrent status poll always sees the latest checkpoint.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"meetingToJira/internal/models"
	"meetingToJira/internal/store"
)

// Transcriber turns a stored recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (models.Transcript, error)
}

// Extractor turns transcript text into requirement candidates.
// A returned error aborts the extraction stage; a candidate with Err set is
// dropped on its own.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]models.RequirementCandidate, error)
}

// TicketCreator files one ticket per requirement and reports per-item results.
type TicketCreator interface {
	CreateTickets(ctx context.Context, reqs []models.Requirement, projectKey string, assignee *string) []models.TicketResult
}

// Timeouts bound each stage. Zero means no stage deadline.
type Timeouts struct {
	Transcribe time.Duration
	Extract    time.Duration
	Tickets    time.Duration
}

// Task identifies one job run.
type Task struct {
	JobID      string
	MeetingID  string
	AudioPath  string
	ProjectKey string
	Assignee   *string
}

const (
	msgCancelled = "cancelled"
	msgTimedOut  = "timed out"
)

type Orchestrator struct {
	store       store.Store
	transcriber Transcriber
	extractor   Extractor
	tickets     TicketCreator
	timeouts    Timeouts
	logger      *slog.Logger
}

func New(st store.Store, t Transcriber, e Extractor, c TicketCreator, timeouts Timeouts, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:       st,
		transcriber: t,
		extractor:   e,
		tickets:     c,
		timeouts:    timeouts,
		logger:      logger,
	}
}

// Run executes the job identified by task and returns its final record.
// Failures are recorded on the job; the returned error only reports what
// made the job fail or why its state could not be persisted.
func (o *Orchestrator) Run(ctx context.Context, task Task) (job models.Job, err error) {
	sess, err := o.store.Session(ctx)
	if err != nil {
		return models.Job{}, fmt.Errorf("open session for job %s: %w", task.JobID, err)
	}
	defer sess.Close()

	job, err = sess.GetJob(ctx, task.JobID)
	if err != nil {
		return models.Job{}, err
	}
	if job.Status != models.StatusPending {
		return job, fmt.Errorf("job %s is %s, not pending: %w", job.ID, job.Status, models.ErrValidation)
	}

	r := &run{
		Orchestrator: o,
		sess:         sess,
		task:         task,
		job:          job,
		logger:       o.logger.With("job_id", task.JobID, "meeting_id", task.MeetingID),
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = r.fail(ctx, nil, fmt.Errorf("panic: %v", rec))
			job = r.job
		}
	}()

	err = r.execute(ctx)
	return r.job, err
}

type run struct {
	*Orchestrator
	sess   store.Session
	task   Task
	job    models.Job
	logger *slog.Logger
}

func (r *run) execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return r.fail(ctx, nil, err)
	}
	r.logger.Info("job started")
	if err := r.advance(ctx, models.StatusTranscribing, models.ProgressStart, "Starting transcription", nil); err != nil {
		return r.fail(ctx, nil, err)
	}

	transcript, err := r.transcribe(ctx)
	if err != nil {
		return err
	}

	reqs, dropped, err := r.extract(ctx, transcript)
	if err != nil {
		return err
	}

	tickets, err := r.createTickets(ctx, reqs)
	if err != nil {
		return err
	}

	if err := r.sess.MarkProcessed(ctx, r.task.MeetingID); err != nil {
		return r.fail(ctx, nil, err)
	}
	result := &models.JobResult{
		TranscriptionConfidence: transcript.Confidence,
		RequirementCount:        len(reqs),
		TicketCount:             tickets.Succeeded(),
		FailedTicketCount:       tickets.Failed(),
		DroppedCandidateCount:   dropped,
	}
	msg := fmt.Sprintf("Processing complete. Created %d tickets.", tickets.Succeeded())
	if err := r.advance(ctx, models.StatusCompleted, models.ProgressDone, msg, result); err != nil {
		return r.fail(ctx, nil, err)
	}
	r.logger.Info("job completed",
		"requirements", len(reqs),
		"tickets", tickets.Succeeded(),
		"failed_tickets", tickets.Failed(),
		"dropped_candidates", dropped,
	)
	return nil
}

func (r *run) transcribe(ctx context.Context) (models.Transcript, error) {
	stageCtx, cancel := withTimeout(ctx, r.timeouts.Transcribe)
	defer cancel()

	transcript, err := r.transcriber.Transcribe(stageCtx, r.task.AudioPath)
	if err == nil {
		err = stageCtx.Err()
	}
	if err != nil {
		return models.Transcript{}, r.fail(ctx, stageCtx, &models.StageError{
			Kind:    models.KindTranscription,
			Stage:   models.StatusTranscribing,
			Message: "transcribe audio",
			Err:     err,
		})
	}

	if err := r.sess.SaveTranscription(ctx, r.task.MeetingID, transcript); err != nil {
		return models.Transcript{}, r.fail(ctx, nil, err)
	}
	if err := r.advance(ctx, models.StatusExtracting, models.ProgressTranscribed, "Transcription complete, extracting requirements", nil); err != nil {
		return models.Transcript{}, r.fail(ctx, nil, err)
	}
	return transcript, nil
}

// extract persists every valid candidate in extractor order and returns them
// with the number of dropped candidates.
func (r *run) extract(ctx context.Context, transcript models.Transcript) ([]models.Requirement, int, error) {
	stageCtx, cancel := withTimeout(ctx, r.timeouts.Extract)
	defer cancel()

	candidates, err := r.extractor.Extract(stageCtx, transcript.Text)
	if err == nil {
		err = stageCtx.Err()
	}
	if err != nil {
		return nil, 0, r.fail(ctx, stageCtx, &models.StageError{
			Kind:    models.KindExtractionStage,
			Stage:   models.StatusExtracting,
			Message: "extract requirements",
			Err:     err,
		})
	}

	var (
		outcome BatchOutcome
		reqs    []models.Requirement
	)
	for i, c := range candidates {
		key := fmt.Sprintf("candidate-%d", i)
		req, err := c.Validate(r.task.MeetingID)
		if err == nil {
			err = r.sess.CreateRequirement(ctx, &req)
		}
		if err != nil {
			err = &models.StageError{Kind: models.KindExtractionItem, Stage: models.StatusExtracting, Message: key, Err: err}
			r.logger.Warn("dropping requirement candidate", "index", i, "error", err)
			outcome.Add(key, err)
			continue
		}
		outcome.Add(req.ID, nil)
		reqs = append(reqs, req)
	}

	if err := r.advance(ctx, models.StatusCreatingTickets, models.ProgressExtracted, "Requirements extracted, creating tickets", nil); err != nil {
		return nil, 0, r.fail(ctx, nil, err)
	}
	return reqs, outcome.Failed(), nil
}

func (r *run) createTickets(ctx context.Context, reqs []models.Requirement) (BatchOutcome, error) {
	var outcome BatchOutcome
	if len(reqs) == 0 {
		return outcome, nil
	}

	stageCtx, cancel := withTimeout(ctx, r.timeouts.Tickets)
	defer cancel()

	results := r.tickets.CreateTickets(stageCtx, reqs, r.task.ProjectKey, r.task.Assignee)
	stageErr := stageCtx.Err()

	// Issues the tracker already created are linked even when the stage was
	// cut short, so they are never filed twice.
	persistCtx := ctx
	if stageErr != nil {
		persistCtx = context.WithoutCancel(ctx)
	}

	byReq := make(map[string]models.TicketResult, len(results))
	for _, res := range results {
		byReq[res.RequirementID] = res
	}

	for _, req := range reqs {
		res, ok := byReq[req.ID]
		var err error
		switch {
		case !ok:
			err = errors.New("no result returned")
		case res.Err != nil:
			err = res.Err
		default:
			t := models.Ticket{
				RequirementID: req.ID,
				Key:           res.Key,
				URL:           res.URL,
				Summary:       res.Summary,
				Status:        res.Status,
			}
			err = r.sess.CreateTicket(persistCtx, &t)
		}
		if err != nil {
			err = &models.StageError{Kind: models.KindTicketItem, Stage: models.StatusCreatingTickets, Message: req.ID, Err: err}
			if stageErr == nil {
				r.logger.Warn("ticket creation failed", "requirement_id", req.ID, "error", err)
			}
		}
		outcome.Add(req.ID, err)
	}
	if stageErr != nil {
		r.logger.Warn("ticket stage interrupted", "linked", outcome.Succeeded(), "requested", len(reqs))
		return outcome, r.fail(ctx, stageCtx, stageErr)
	}
	return outcome, nil
}

// advance persists a forward transition. Progress never decreases.
func (r *run) advance(ctx context.Context, to models.JobStatus, progress int, msg string, result *models.JobResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !models.CanTransition(r.job.Status, to) {
		return fmt.Errorf("job %s: illegal transition %s -> %s", r.job.ID, r.job.Status, to)
	}
	next := r.job
	next.Status = to
	next.Progress = max(progress, r.job.Progress)
	next.Message = msg
	if result != nil {
		next.Result = result
	}
	if err := r.sess.UpdateJob(ctx, next); err != nil {
		return fmt.Errorf("persist %s: %w", to, err)
	}
	r.job = next
	r.logger.Debug("job advanced", "status", to, "progress", next.Progress)
	return nil
}

// fail records the job as failed and returns cause. stageCtx, when set, is
// the stage's own context and distinguishes a stage deadline from a plain
// stage error. Progress is left at its last checkpoint.
func (r *run) fail(ctx context.Context, stageCtx context.Context, cause error) error {
	msg := failureMessage(ctx, stageCtx, cause)
	r.logger.Error("job failed", "status", r.job.Status, "message", msg, "error", cause)

	if !models.CanTransition(r.job.Status, models.StatusFailed) {
		return cause
	}
	next := r.job
	next.Status = models.StatusFailed
	next.Message = msg
	if err := r.sess.UpdateJob(context.WithoutCancel(ctx), next); err != nil {
		r.logger.Error("persist job failure", "error", err)
		return errors.Join(cause, err)
	}
	r.job = next
	return cause
}

func failureMessage(ctx, stageCtx context.Context, cause error) string {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return msgCancelled
	case ctx.Err() != nil:
		return msgTimedOut
	case stageCtx != nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded):
		return msgTimedOut
	case errors.Is(cause, context.DeadlineExceeded):
		return msgTimedOut
	default:
		return "Processing failed: " + cause.Error()
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
