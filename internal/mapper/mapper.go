// Package mapper turns extracted requirements into issue-tracker fields.
// Everything here is pure: no I/O, no shared state.
package mapper

import (
	"fmt"
	"strings"

	"meetingToJira/internal/models"
)

// Labels appended to every ticket created from a meeting.
const (
	LabelMeetingDerived = "meeting_derived"
	LabelAutoGenerated  = "auto-generated"
)

const sourceFooter = "*Source:* Meeting transcription (auto-generated)"

// Fields is the tracker-facing shape of one requirement.
type Fields struct {
	ProjectKey  string
	Summary     string
	Description string
	IssueType   string
	Labels      []string
	Assignee    *string
}

// Map builds ticket fields for req in projectKey.
func Map(req models.Requirement, projectKey string, assignee *string) Fields {
	return Fields{
		ProjectKey:  projectKey,
		Summary:     req.Summary,
		Description: Description(req),
		IssueType:   IssueType(req.Type),
		Labels:      Labels(req.Labels),
		Assignee:    assignee,
	}
}

// IssueType maps a requirement type to a tracker issue type, defaulting to Task.
func IssueType(t models.RequirementType) string {
	switch models.RequirementType(strings.ToLower(string(t))) {
	case models.RequirementFeature, models.RequirementStory:
		return "Story"
	case models.RequirementBug:
		return "Bug"
	case models.RequirementEpic:
		return "Epic"
	default:
		return "Task"
	}
}

// Description renders the ticket body.
func Description(req models.Requirement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Original Requirement:*\n%s\n\n", req.Text)
	fmt.Fprintf(&b, "*Description:*\n%s\n\n", req.Description)

	if len(req.AcceptanceCriteria) > 0 {
		b.WriteString("*Acceptance Criteria:*\n")
		for i, criterion := range req.AcceptanceCriteria {
			fmt.Fprintf(&b, "%d. %s\n", i+1, criterion)
		}
		b.WriteString("\n")
	}

	if req.Timestamp != "" {
		fmt.Fprintf(&b, "*Mentioned at:* %s\n", req.Timestamp)
	}

	fmt.Fprintf(&b, "*Confidence Score:* %.2f\n", req.Confidence)
	b.WriteString(sourceFooter)
	return b.String()
}

// Labels returns own labels first, then the provenance labels, without duplicates.
func Labels(own []string) []string {
	out := make([]string, 0, len(own)+2)
	seen := make(map[string]struct{}, len(own)+2)
	for _, label := range append(append([]string{}, own...), LabelMeetingDerived, LabelAutoGenerated) {
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out
}
