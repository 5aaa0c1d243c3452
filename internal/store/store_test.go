package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"meetingToJira/internal/models"
)

// runRepositoryContract exercises the invariants every Store must hold.
func runRepositoryContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	newMeeting := func(t *testing.T) models.Meeting {
		t.Helper()
		m := models.Meeting{OriginalFileName: "standup.mp3", FileName: "x.mp3", FilePath: "/tmp/x.mp3"}
		if err := s.CreateMeeting(ctx, &m); err != nil {
			t.Fatalf("CreateMeeting() error = %v", err)
		}
		return m
	}

	t.Run("unknown ids", func(t *testing.T) {
		if _, err := s.GetMeeting(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("GetMeeting error = %v, want ErrNotFound", err)
		}
		if _, err := s.GetRequirement(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("GetRequirement error = %v, want ErrNotFound", err)
		}
		if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("GetJob error = %v, want ErrNotFound", err)
		}
	})

	t.Run("transcription", func(t *testing.T) {
		m := newMeeting(t)
		duration := 61.5
		if err := s.SaveTranscription(ctx, m.ID, models.Transcript{Text: "hello", Confidence: 0.7, Duration: &duration}); err != nil {
			t.Fatalf("SaveTranscription() error = %v", err)
		}
		if err := s.MarkProcessed(ctx, m.ID); err != nil {
			t.Fatalf("MarkProcessed() error = %v", err)
		}
		got, err := s.GetMeeting(ctx, m.ID)
		if err != nil {
			t.Fatalf("GetMeeting() error = %v", err)
		}
		if got.TranscriptionText != "hello" || got.TranscriptionConfidence == nil || *got.TranscriptionConfidence != 0.7 {
			t.Fatalf("unexpected transcription: %+v", got)
		}
		if got.Duration == nil || *got.Duration != 61.5 || !got.Processed {
			t.Fatalf("unexpected meeting: %+v", got)
		}
	})

	t.Run("one active job per meeting", func(t *testing.T) {
		m := newMeeting(t)
		first := models.Job{MeetingID: m.ID}
		if err := s.CreateJob(ctx, &first); err != nil {
			t.Fatalf("CreateJob() error = %v", err)
		}
		if first.Status != models.StatusPending {
			t.Fatalf("status = %s, want pending", first.Status)
		}
		second := models.Job{MeetingID: m.ID}
		if err := s.CreateJob(ctx, &second); !errors.Is(err, models.ErrAlreadyExists) {
			t.Fatalf("second CreateJob() error = %v, want ErrAlreadyExists", err)
		}

		first.Status = models.StatusFailed
		first.Message = "Processing failed: boom"
		if err := s.UpdateJob(ctx, first); err != nil {
			t.Fatalf("UpdateJob() error = %v", err)
		}
		if err := s.UpdateJob(ctx, first); !errors.Is(err, models.ErrJobTerminal) {
			t.Fatalf("UpdateJob() on terminal job error = %v, want ErrJobTerminal", err)
		}

		retry := models.Job{MeetingID: m.ID}
		if err := s.CreateJob(ctx, &retry); err != nil {
			t.Fatalf("CreateJob() after failure error = %v", err)
		}
		latest, err := s.LatestJob(ctx, m.ID)
		if err != nil {
			t.Fatalf("LatestJob() error = %v", err)
		}
		if latest.ID != retry.ID {
			t.Fatalf("latest job = %s, want %s", latest.ID, retry.ID)
		}
	})

	t.Run("one ticket per requirement", func(t *testing.T) {
		m := newMeeting(t)
		var ids []string
		for _, summary := range []string{"first", "second", "third"} {
			r := models.Requirement{
				MeetingID: m.ID, Text: summary, Summary: summary,
				Type: models.RequirementTask, Priority: models.PriorityMedium,
				Labels: []string{"a"}, Confidence: 0.8,
			}
			if err := s.CreateRequirement(ctx, &r); err != nil {
				t.Fatalf("CreateRequirement() error = %v", err)
			}
			ids = append(ids, r.ID)
		}

		reqs, err := s.ListRequirements(ctx, m.ID)
		if err != nil {
			t.Fatalf("ListRequirements() error = %v", err)
		}
		if len(reqs) != 3 || reqs[0].Summary != "first" || reqs[2].Summary != "third" {
			t.Fatalf("unexpected requirement order: %+v", reqs)
		}

		ticket := models.Ticket{RequirementID: ids[1], Key: "PROJ-1", URL: "https://jira/browse/PROJ-1", Summary: "second", Status: "To Do"}
		if err := s.CreateTicket(ctx, &ticket); err != nil {
			t.Fatalf("CreateTicket() error = %v", err)
		}
		dup := models.Ticket{RequirementID: ids[1], Key: "PROJ-2", URL: "u", Summary: "second", Status: "To Do"}
		if err := s.CreateTicket(ctx, &dup); !errors.Is(err, models.ErrAlreadyExists) {
			t.Fatalf("duplicate CreateTicket() error = %v, want ErrAlreadyExists", err)
		}
		orphan := models.Ticket{RequirementID: "missing", Key: "PROJ-3", URL: "u", Summary: "x", Status: "To Do"}
		if err := s.CreateTicket(ctx, &orphan); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("orphan CreateTicket() error = %v, want ErrNotFound", err)
		}

		tickets, err := s.ListTickets(ctx, m.ID)
		if err != nil {
			t.Fatalf("ListTickets() error = %v", err)
		}
		if len(tickets) != 1 || tickets[0].Key != "PROJ-1" {
			t.Fatalf("tickets = %+v, want only PROJ-1", tickets)
		}
		linked, err := s.GetRequirement(ctx, ids[1])
		if err != nil {
			t.Fatalf("GetRequirement() error = %v", err)
		}
		if linked.TicketKey != "PROJ-1" {
			t.Fatalf("ticket key = %q, want PROJ-1", linked.TicketKey)
		}
	})

	t.Run("session shares records", func(t *testing.T) {
		m := newMeeting(t)
		sess, err := s.Session(ctx)
		if err != nil {
			t.Fatalf("Session() error = %v", err)
		}
		defer sess.Close()
		if _, err := sess.GetMeeting(ctx, m.ID); err != nil {
			t.Fatalf("session GetMeeting() error = %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runRepositoryContract(t, NewMemory())
}

func TestMemoryListMeetingsNewestFirst(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		m := models.Meeting{OriginalFileName: name}
		if err := s.CreateMeeting(ctx, &m); err != nil {
			t.Fatalf("CreateMeeting() error = %v", err)
		}
	}

	got, err := s.ListMeetings(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListMeetings() error = %v", err)
	}
	if len(got) != 2 || got[0].OriginalFileName != "c.mp3" || got[1].OriginalFileName != "b.mp3" {
		t.Fatalf("unexpected page: %+v", got)
	}

	got, _ = s.ListMeetings(ctx, 2, 2)
	if len(got) != 1 || got[0].OriginalFileName != "a.mp3" {
		t.Fatalf("unexpected second page: %+v", got)
	}
	if got, _ := s.ListMeetings(ctx, 2, 10); len(got) != 0 {
		t.Fatalf("offset past end returned %d meetings", len(got))
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	m := models.Meeting{OriginalFileName: "a.mp3"}
	_ = s.CreateMeeting(ctx, &m)
	r := models.Requirement{MeetingID: m.ID, Labels: []string{"x"}}
	if err := s.CreateRequirement(ctx, &r); err != nil {
		t.Fatalf("CreateRequirement() error = %v", err)
	}

	got, _ := s.GetRequirement(ctx, r.ID)
	got.Labels[0] = "mutated"

	again, _ := s.GetRequirement(ctx, r.ID)
	if again.Labels[0] != "x" {
		t.Fatalf("stored labels mutated through returned copy: %v", again.Labels)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := OpenPostgres(context.Background(), dsn)
	if err != nil {
		t.Fatalf("OpenPostgres() error = %v", err)
	}
	defer s.Close()
	runRepositoryContract(t, s)
}
