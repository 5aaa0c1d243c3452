package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"meetingToJira/internal/jira"
	"meetingToJira/internal/models"
	"meetingToJira/internal/orchestrator"
	"meetingToJira/internal/store"
)

type fakePool struct {
	mu        sync.Mutex
	submitted []orchestrator.Task
	err       error
	known     map[string]bool
}

func (f *fakePool) Submit(task orchestrator.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, task)
	return nil
}

func (f *fakePool) Cancel(jobID string) bool { return f.known[jobID] }

type fakeTickets struct {
	calls int
	err   error
}

func (f *fakeTickets) CreateTickets(ctx context.Context, reqs []models.Requirement, projectKey string, assignee *string) []models.TicketResult {
	f.calls++
	out := make([]models.TicketResult, 0, len(reqs))
	for _, r := range reqs {
		if f.err != nil {
			out = append(out, models.TicketResult{RequirementID: r.ID, Err: f.err})
			continue
		}
		out = append(out, models.TicketResult{RequirementID: r.ID, Key: projectKey + "-7", URL: "https://jira.example/browse/" + projectKey + "-7", Summary: r.Summary, Status: "To Do"})
	}
	return out
}

type fakeProjects struct{}

func (fakeProjects) Projects(ctx context.Context) ([]jira.Project, error) {
	return []jira.Project{{Key: "PROJ", Name: "Project"}}, nil
}

type fixture struct {
	svc     *Service
	store   *store.Memory
	pool    *fakePool
	tickets *fakeTickets
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   store.NewMemory(),
		pool:    &fakePool{known: map[string]bool{}},
		tickets: &fakeTickets{},
		dir:     filepath.Join(t.TempDir(), "uploads"),
	}
	f.svc = New(f.store, f.pool, f.tickets, fakeProjects{}, Options{
		UploadsDir:        f.dir,
		MaxUploadBytes:    16,
		SupportedFormats:  []string{"mp3", "wav", "mp4", "m4a", "webm"},
		DefaultProjectKey: "PROJ",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *fixture) meeting(t *testing.T) models.Meeting {
	t.Helper()
	m := models.Meeting{OriginalFileName: "standup.mp3", FileName: "x.mp3", FilePath: "/tmp/x.mp3"}
	if err := f.store.CreateMeeting(context.Background(), &m); err != nil {
		t.Fatalf("CreateMeeting() error = %v", err)
	}
	return m
}

func (f *fixture) requirement(t *testing.T, meetingID string) models.Requirement {
	t.Helper()
	r := models.Requirement{MeetingID: meetingID, Text: "t", Summary: "CSV export", Type: models.RequirementFeature, Priority: models.PriorityMedium, Confidence: 0.8}
	if err := f.store.CreateRequirement(context.Background(), &r); err != nil {
		t.Fatalf("CreateRequirement() error = %v", err)
	}
	return r
}

func TestUploadMeetingQueuesJob(t *testing.T) {
	f := newFixture(t)
	assignee := "jdoe"
	m, job, err := f.svc.UploadMeeting(context.Background(), Upload{
		FileName: "Weekly Sync.MP3",
		Body:     strings.NewReader("audio-bytes"),
		Assignee: &assignee,
	})
	if err != nil {
		t.Fatalf("UploadMeeting() error = %v", err)
	}
	if m.FileName != m.ID+".mp3" || m.OriginalFileName != "Weekly Sync.MP3" {
		t.Fatalf("meeting = %+v", m)
	}
	data, err := os.ReadFile(filepath.Join(f.dir, m.FileName))
	if err != nil || string(data) != "audio-bytes" {
		t.Fatalf("stored file = %q, %v", data, err)
	}
	if job.Status != models.StatusPending || job.MeetingID != m.ID {
		t.Fatalf("job = %+v", job)
	}
	if len(f.pool.submitted) != 1 {
		t.Fatalf("submitted = %d, want 1", len(f.pool.submitted))
	}
	task := f.pool.submitted[0]
	if task.ProjectKey != "PROJ" || task.AudioPath != m.FilePath || task.Assignee == nil || *task.Assignee != "jdoe" {
		t.Fatalf("task = %+v", task)
	}
}

func TestUploadMeetingValidation(t *testing.T) {
	cases := map[string]Upload{
		"unsupported format": {FileName: "notes.txt", Body: strings.NewReader("x")},
		"no extension":       {FileName: "recording", Body: strings.NewReader("x")},
		"too large":          {FileName: "a.wav", Body: strings.NewReader(strings.Repeat("x", 17))},
		"empty":              {FileName: "a.wav", Body: strings.NewReader("")},
		"bad project key":    {FileName: "a.wav", Body: strings.NewReader("x"), ProjectKey: "not a key"},
	}
	for name, up := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			if _, _, err := f.svc.UploadMeeting(context.Background(), up); !errors.Is(err, models.ErrValidation) {
				t.Fatalf("UploadMeeting() error = %v, want ErrValidation", err)
			}
			if got, _ := f.store.ListMeetings(context.Background(), 10, 0); len(got) != 0 {
				t.Fatalf("meetings created on invalid upload: %d", len(got))
			}
			entries, _ := os.ReadDir(f.dir)
			if len(entries) != 0 {
				t.Fatalf("files left behind: %d", len(entries))
			}
		})
	}
}

func TestStartProcessingQueueFull(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t)
	f.pool.err = orchestrator.ErrQueueFull

	job, err := f.svc.StartProcessing(context.Background(), m.ID, m.FilePath, "", nil)
	if !errors.Is(err, orchestrator.ErrQueueFull) {
		t.Fatalf("StartProcessing() error = %v, want ErrQueueFull", err)
	}
	stored, _ := f.store.GetJob(context.Background(), job.ID)
	if stored.Status != models.StatusFailed || stored.Message != "rejected: worker queue is full" {
		t.Fatalf("stored job = %+v", stored)
	}

	f.pool.err = nil
	if _, err := f.svc.StartProcessing(context.Background(), m.ID, m.FilePath, "", nil); err != nil {
		t.Fatalf("retry after rejection error = %v", err)
	}
}

func TestReprocessWhileActive(t *testing.T) {
	f := newFixture(t)
	m := f.meeting(t)
	if _, err := f.svc.Reprocess(context.Background(), m.ID, "", nil); err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if _, err := f.svc.Reprocess(context.Background(), m.ID, "", nil); !errors.Is(err, models.ErrAlreadyExists) {
		t.Fatalf("second Reprocess() error = %v, want ErrAlreadyExists", err)
	}
	if _, err := f.svc.Reprocess(context.Background(), "missing", "", nil); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("Reprocess(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestCancelJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	running := f.meeting(t)
	job, _ := f.svc.StartProcessing(ctx, running.ID, running.FilePath, "", nil)
	f.pool.known[job.ID] = true
	if _, err := f.svc.CancelJob(ctx, job.ID); err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}

	orphan := f.meeting(t)
	stale, _ := f.svc.StartProcessing(ctx, orphan.ID, orphan.FilePath, "", nil)
	got, err := f.svc.CancelJob(ctx, stale.ID)
	if err != nil {
		t.Fatalf("CancelJob(orphan) error = %v", err)
	}
	if got.Status != models.StatusFailed || got.Message != "cancelled" {
		t.Fatalf("orphan job = %+v", got)
	}
	if _, err := f.svc.CancelJob(ctx, stale.ID); !errors.Is(err, models.ErrJobTerminal) {
		t.Fatalf("CancelJob(terminal) error = %v, want ErrJobTerminal", err)
	}
	if _, err := f.svc.CancelJob(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("CancelJob(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.GetStatus(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("GetStatus(unknown) error = %v, want ErrNotFound", err)
	}
	if got, _ := f.store.ListMeetings(ctx, 10, 0); len(got) != 0 {
		t.Fatal("GetStatus created a meeting")
	}

	m := f.meeting(t)
	report, err := f.svc.GetStatus(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if report.Status != "pending" || report.Progress != 0 || report.FileName != "standup.mp3" {
		t.Fatalf("report without job = %+v", report)
	}

	job, _ := f.svc.StartProcessing(ctx, m.ID, m.FilePath, "", nil)
	job.Status = models.StatusTranscribing
	job.Message = "Starting transcription"
	_ = f.store.UpdateJob(ctx, job)
	job.Status = models.StatusExtracting
	job.Progress = 30
	job.Message = "Transcription complete, extracting requirements"
	_ = f.store.UpdateJob(ctx, job)

	report, _ = f.svc.GetStatus(ctx, m.ID)
	if report.Status != "extracting" || report.Progress != 30 || report.Message != job.Message {
		t.Fatalf("report = %+v", report)
	}
}

func TestCreateTicketForRequirementOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.meeting(t)
	r := f.requirement(t, m.ID)

	ticket, err := f.svc.CreateTicketForRequirement(ctx, r.ID, "ops", nil)
	if err != nil {
		t.Fatalf("CreateTicketForRequirement() error = %v", err)
	}
	if ticket.Key != "OPS-7" || ticket.RequirementID != r.ID {
		t.Fatalf("ticket = %+v", ticket)
	}
	if _, err := f.svc.CreateTicketForRequirement(ctx, r.ID, "", nil); !errors.Is(err, models.ErrAlreadyExists) {
		t.Fatalf("second call error = %v, want ErrAlreadyExists", err)
	}
	if f.tickets.calls != 1 {
		t.Fatalf("tracker calls = %d, want 1", f.tickets.calls)
	}
	tickets, _ := f.svc.ListTickets(ctx, m.ID)
	if len(tickets) != 1 {
		t.Fatalf("tickets = %d, want 1", len(tickets))
	}
	if _, err := f.svc.CreateTicketForRequirement(ctx, "missing", "", nil); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("unknown requirement error = %v, want ErrNotFound", err)
	}
}

func TestCreateTicketForRequirementTrackerFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.meeting(t)
	r := f.requirement(t, m.ID)
	f.tickets.err = errors.New("project does not exist")

	_, err := f.svc.CreateTicketForRequirement(ctx, r.ID, "", nil)
	var se *models.StageError
	if !errors.As(err, &se) || se.Kind != models.KindTicketItem {
		t.Fatalf("error = %v, want ticket_item StageError", err)
	}
	if got, _ := f.store.GetRequirement(ctx, r.ID); got.TicketKey != "" {
		t.Fatalf("requirement linked after failure: %q", got.TicketKey)
	}

	f.tickets.err = nil
	if _, err := f.svc.CreateTicketForRequirement(ctx, r.ID, "", nil); err != nil {
		t.Fatalf("retry error = %v", err)
	}
}

func TestListRequirements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.meeting(t)
	if _, err := f.svc.ListRequirements(ctx, m.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("empty ListRequirements() error = %v, want ErrNotFound", err)
	}
	f.requirement(t, m.ID)
	got, err := f.svc.ListRequirements(ctx, m.ID)
	if err != nil || len(got) != 1 {
		t.Fatalf("ListRequirements() = %v, %v", got, err)
	}
}

func TestListMeetingsPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.meeting(t)
	}
	got, err := f.svc.ListMeetings(ctx, 0, 0)
	if err != nil || len(got) != 3 {
		t.Fatalf("ListMeetings() = %d, %v", len(got), err)
	}
	if _, err := f.svc.ListMeetings(ctx, 10, -1); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("negative offset error = %v", err)
	}
}
