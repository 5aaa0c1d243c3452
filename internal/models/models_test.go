package models

import (
	"errors"
	"testing"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestCandidateValidateDefaults(t *testing.T) {
	req, err := RequirementCandidate{Summary: "Add export"}.Validate("m-1")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if req.MeetingID != "m-1" {
		t.Fatalf("meeting id = %q, want m-1", req.MeetingID)
	}
	if req.Type != RequirementTask {
		t.Fatalf("type = %q, want task", req.Type)
	}
	if req.Priority != PriorityMedium {
		t.Fatalf("priority = %q, want Medium", req.Priority)
	}
	if req.Confidence != DefaultConfidence {
		t.Fatalf("confidence = %v, want %v", req.Confidence, DefaultConfidence)
	}
	if req.Text != DefaultRequirementText {
		t.Fatalf("text = %q, want %q", req.Text, DefaultRequirementText)
	}
	if req.Labels == nil || req.AcceptanceCriteria == nil {
		t.Fatal("expected non-nil label and criteria slices")
	}
}

func TestCandidateValidateNormalizes(t *testing.T) {
	req, err := RequirementCandidate{
		Text:       " we need sso ",
		Summary:    "SSO",
		Type:       "Feature",
		Priority:   strPtr("high"),
		Labels:     []string{"auth", " ", "sso"},
		Confidence: floatPtr(0.95),
		Timestamp:  strPtr("[00:12:01]"),
	}.Validate("m-1")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if req.Type != RequirementFeature || req.Priority != PriorityHigh {
		t.Fatalf("type/priority = %q/%q", req.Type, req.Priority)
	}
	if req.Text != "we need sso" {
		t.Fatalf("text = %q", req.Text)
	}
	if len(req.Labels) != 2 {
		t.Fatalf("labels = %v, want 2 entries", req.Labels)
	}
	if req.Timestamp != "[00:12:01]" {
		t.Fatalf("timestamp = %q", req.Timestamp)
	}
}

func TestCandidateValidateRejects(t *testing.T) {
	cases := map[string]RequirementCandidate{
		"unknown type":     {Type: "chore"},
		"unknown priority": {Priority: strPtr("urgent")},
		"confidence range": {Confidence: floatPtr(1.5)},
		"decode error":     {Err: errors.New("labels: want array")},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := c.Validate("m-1"); !errors.Is(err, ErrValidation) {
				t.Fatalf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	path := []JobStatus{StatusPending, StatusTranscribing, StatusExtracting, StatusCreatingTickets, StatusCompleted}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Fatalf("expected %s -> %s to be allowed", path[i], path[i+1])
		}
		if !CanTransition(path[i], StatusFailed) {
			t.Fatalf("expected %s -> failed to be allowed", path[i])
		}
	}

	if CanTransition(StatusPending, StatusCompleted) {
		t.Fatal("pending -> completed should be rejected")
	}
	for _, terminal := range []JobStatus{StatusCompleted, StatusFailed} {
		for _, to := range path {
			if CanTransition(terminal, to) {
				t.Fatalf("%s -> %s should be rejected", terminal, to)
			}
		}
		if CanTransition(terminal, StatusFailed) {
			t.Fatalf("%s -> failed should be rejected", terminal)
		}
	}
}

func TestIsStageFatal(t *testing.T) {
	fatal := &StageError{Kind: KindTranscription, Stage: StatusTranscribing, Message: "boom"}
	if !IsStageFatal(fatal) {
		t.Fatal("transcription error should be stage fatal")
	}
	item := &StageError{Kind: KindTicketItem, Message: "rejected"}
	if IsStageFatal(item) {
		t.Fatal("ticket item error should not be stage fatal")
	}
	if IsStageFatal(errors.New("plain")) {
		t.Fatal("plain error should not be stage fatal")
	}
}
