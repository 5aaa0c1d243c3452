package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"meetingToJira/internal/models"
)

// Memory keeps all records in process memory.
type Memory struct {
	mu sync.RWMutex

	meetings     map[string]*models.Meeting
	jobs         map[string]*models.Job
	requirements map[string]*models.Requirement
	tickets      map[string]*models.Ticket

	// insertion order, used for stable listings
	jobOrder []string
	reqOrder []string
	seq      map[string]int

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		meetings:     make(map[string]*models.Meeting),
		jobs:         make(map[string]*models.Job),
		requirements: make(map[string]*models.Requirement),
		tickets:      make(map[string]*models.Ticket),
		seq:          make(map[string]int),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Session returns a handle sharing the same records; closing it is a no-op.
func (s *Memory) Session(ctx context.Context) (Session, error) {
	return memorySession{s}, nil
}

func (s *Memory) Close() error { return nil }

type memorySession struct{ *Memory }

func (memorySession) Close() error { return nil }

func (s *Memory) CreateMeeting(ctx context.Context, m *models.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if _, ok := s.meetings[m.ID]; ok {
		return fmt.Errorf("meeting %s: %w", m.ID, models.ErrAlreadyExists)
	}
	now := s.now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	clone := *m
	s.meetings[m.ID] = &clone
	s.seq[m.ID] = len(s.seq)
	return nil
}

func (s *Memory) GetMeeting(ctx context.Context, id string) (models.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[id]
	if !ok {
		return models.Meeting{}, fmt.Errorf("meeting %s: %w", id, models.ErrNotFound)
	}
	return *m, nil
}

// ListMeetings returns meetings newest first.
func (s *Memory) ListMeetings(ctx context.Context, limit, offset int) ([]models.Meeting, error) {
	s.mu.RLock()
	out := make([]models.Meeting, 0, len(s.meetings))
	for _, m := range s.meetings {
		out = append(out, *m)
	}
	seq := make(map[string]int, len(s.seq))
	for k, v := range s.seq {
		seq[k] = v
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return seq[out[i].ID] > seq[out[j].ID]
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, limit, offset), nil
}

func (s *Memory) SaveTranscription(ctx context.Context, meetingID string, t models.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[meetingID]
	if !ok {
		return fmt.Errorf("meeting %s: %w", meetingID, models.ErrNotFound)
	}
	confidence := t.Confidence
	m.TranscriptionText = t.Text
	m.TranscriptionConfidence = &confidence
	if t.Duration != nil {
		d := *t.Duration
		m.Duration = &d
	}
	m.UpdatedAt = s.now()
	return nil
}

func (s *Memory) MarkProcessed(ctx context.Context, meetingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[meetingID]
	if !ok {
		return fmt.Errorf("meeting %s: %w", meetingID, models.ErrNotFound)
	}
	m.Processed = true
	m.UpdatedAt = s.now()
	return nil
}

func (s *Memory) CreateJob(ctx context.Context, j *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meetings[j.MeetingID]; !ok {
		return fmt.Errorf("meeting %s: %w", j.MeetingID, models.ErrNotFound)
	}
	for _, existing := range s.jobs {
		if existing.MeetingID == j.MeetingID && existing.Status.IsActive() {
			return fmt.Errorf("meeting %s has active job %s: %w", j.MeetingID, existing.ID, models.ErrAlreadyExists)
		}
	}

	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = models.StatusPending
	}
	now := s.now()
	j.CreatedAt = now
	j.UpdatedAt = now
	clone := cloneJob(*j)
	s.jobs[j.ID] = &clone
	s.jobOrder = append(s.jobOrder, j.ID)
	return nil
}

func (s *Memory) GetJob(ctx context.Context, id string) (models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return cloneJob(*j), nil
}

// LatestJob returns the most recently created job of a meeting.
func (s *Memory) LatestJob(ctx context.Context, meetingID string) (models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.jobOrder) - 1; i >= 0; i-- {
		if j := s.jobs[s.jobOrder[i]]; j.MeetingID == meetingID {
			return cloneJob(*j), nil
		}
	}
	return models.Job{}, fmt.Errorf("job for meeting %s: %w", meetingID, models.ErrNotFound)
}

func (s *Memory) UpdateJob(ctx context.Context, j models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[j.ID]
	if !ok {
		return fmt.Errorf("job %s: %w", j.ID, models.ErrNotFound)
	}
	if current.Status.IsTerminal() {
		return fmt.Errorf("job %s: %w", j.ID, models.ErrJobTerminal)
	}
	current.Status = j.Status
	current.Progress = j.Progress
	current.Message = j.Message
	if j.Result != nil {
		r := *j.Result
		current.Result = &r
	}
	current.UpdatedAt = s.now()
	return nil
}

func (s *Memory) CreateRequirement(ctx context.Context, r *models.Requirement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meetings[r.MeetingID]; !ok {
		return fmt.Errorf("meeting %s: %w", r.MeetingID, models.ErrNotFound)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = s.now()
	clone := cloneRequirement(*r)
	s.requirements[r.ID] = &clone
	s.reqOrder = append(s.reqOrder, r.ID)
	return nil
}

func (s *Memory) GetRequirement(ctx context.Context, id string) (models.Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requirements[id]
	if !ok {
		return models.Requirement{}, fmt.Errorf("requirement %s: %w", id, models.ErrNotFound)
	}
	return cloneRequirement(*r), nil
}

// ListRequirements returns a meeting's requirements in creation order.
func (s *Memory) ListRequirements(ctx context.Context, meetingID string) ([]models.Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Requirement, 0)
	for _, id := range s.reqOrder {
		if r := s.requirements[id]; r.MeetingID == meetingID {
			out = append(out, cloneRequirement(*r))
		}
	}
	return out, nil
}

func (s *Memory) CreateTicket(ctx context.Context, t *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requirements[t.RequirementID]
	if !ok {
		return fmt.Errorf("requirement %s: %w", t.RequirementID, models.ErrNotFound)
	}
	if r.TicketKey != "" {
		return fmt.Errorf("requirement %s already linked to %s: %w", r.ID, r.TicketKey, models.ErrAlreadyExists)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = s.now()
	clone := *t
	s.tickets[t.ID] = &clone
	r.TicketKey = t.Key
	return nil
}

// ListTickets joins a meeting's requirements to their tickets, in requirement order.
func (s *Memory) ListTickets(ctx context.Context, meetingID string) ([]models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byRequirement := make(map[string]*models.Ticket, len(s.tickets))
	for _, t := range s.tickets {
		byRequirement[t.RequirementID] = t
	}
	out := make([]models.Ticket, 0)
	for _, id := range s.reqOrder {
		if s.requirements[id].MeetingID != meetingID {
			continue
		}
		if t, ok := byRequirement[id]; ok {
			out = append(out, *t)
		}
	}
	return out, nil
}

func cloneJob(j models.Job) models.Job {
	if j.Result != nil {
		r := *j.Result
		j.Result = &r
	}
	return j
}

func cloneRequirement(r models.Requirement) models.Requirement {
	r.Labels = append([]string{}, r.Labels...)
	r.AcceptanceCriteria = append([]string{}, r.AcceptanceCriteria...)
	return r
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
