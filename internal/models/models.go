package models

import "time"

// Meeting is one uploaded recording and its derived transcript.
type Meeting struct {
	ID                      string    `json:"id"`
	OriginalFileName        string    `json:"original_file_name"`
	FileName                string    `json:"file_name"`
	FilePath                string    `json:"file_path"`
	Duration                *float64  `json:"duration,omitempty"`
	TranscriptionText       string    `json:"transcription_text,omitempty"`
	TranscriptionConfidence *float64  `json:"transcription_confidence,omitempty"`
	Processed               bool      `json:"processed"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// Job is one processing attempt for a meeting.
type Job struct {
	ID        string     `json:"id"`
	MeetingID string     `json:"meeting_id"`
	Status    JobStatus  `json:"status"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message"`
	Result    *JobResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// JobResult summarizes a completed run.
type JobResult struct {
	TranscriptionConfidence float64 `json:"transcription_confidence"`
	RequirementCount        int     `json:"requirement_count"`
	TicketCount             int     `json:"ticket_count"`
	FailedTicketCount       int     `json:"failed_ticket_count"`
	DroppedCandidateCount   int     `json:"dropped_candidate_count"`
}

// RequirementType is the category assigned by the extractor.
type RequirementType string

const (
	RequirementFeature RequirementType = "feature"
	RequirementBug     RequirementType = "bug"
	RequirementTask    RequirementType = "task"
	RequirementStory   RequirementType = "story"
	RequirementEpic    RequirementType = "epic"
)

// Priority of an extracted requirement.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// Requirement is one actionable item extracted from a transcript.
type Requirement struct {
	ID                 string          `json:"id"`
	MeetingID          string          `json:"meeting_id"`
	Text               string          `json:"text"`
	Summary            string          `json:"summary"`
	Description        string          `json:"description"`
	Type               RequirementType `json:"type"`
	Priority           Priority        `json:"priority,omitempty"`
	Labels             []string        `json:"labels"`
	AcceptanceCriteria []string        `json:"acceptance_criteria"`
	Confidence         float64         `json:"confidence"`
	Timestamp          string          `json:"timestamp,omitempty"`
	TicketKey          string          `json:"jira_ticket_key,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Ticket is an issue-tracker record linked to exactly one requirement.
type Ticket struct {
	ID            string    `json:"id"`
	RequirementID string    `json:"requirement_id"`
	Key           string    `json:"ticket_key"`
	URL           string    `json:"url"`
	Summary       string    `json:"summary"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Transcript is what a transcriber returns for one recording.
type Transcript struct {
	Text       string
	Confidence float64
	Duration   *float64
}

// TicketResult is the per-requirement outcome of a ticket creation batch.
// Err is set when the tracker rejected the item.
type TicketResult struct {
	RequirementID string
	Key           string
	URL           string
	Summary       string
	Status        string
	Err           error
}

// StatusReport is the polling view of a meeting and its latest job.
type StatusReport struct {
	MeetingID string    `json:"meeting_id"`
	FileName  string    `json:"file_name"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Processed bool      `json:"processed"`
	CreatedAt time.Time `json:"created_at"`
}
