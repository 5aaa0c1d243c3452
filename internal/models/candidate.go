package models

import (
	"fmt"
	"strings"
)

// Defaults applied when the extractor omits a field.
const (
	DefaultRequirementText = "N/A"
	DefaultConfidence      = 0.8
	DefaultPriority        = PriorityMedium
	DefaultRequirementType = RequirementTask
)

// RequirementCandidate is one unvalidated item returned by an extractor.
// Err is set by the extractor when the raw item could not be decoded.
type RequirementCandidate struct {
	Text               string   `json:"text"`
	Summary            string   `json:"summary"`
	Description        string   `json:"description"`
	Type               string   `json:"type"`
	Priority           *string  `json:"priority"`
	Labels             []string `json:"labels"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	Confidence         *float64 `json:"confidence"`
	Timestamp          *string  `json:"timestamp"`

	Err error `json:"-"`
}

// Validate turns a candidate into a Requirement for meetingID, substituting
// defaults for missing fields. Unknown type or priority values and
// out-of-range confidence are rejected with ErrValidation.
func (c RequirementCandidate) Validate(meetingID string) (Requirement, error) {
	if c.Err != nil {
		return Requirement{}, fmt.Errorf("%w: %v", ErrValidation, c.Err)
	}

	reqType, err := ParseRequirementType(c.Type)
	if err != nil {
		return Requirement{}, err
	}

	priority := DefaultPriority
	if c.Priority != nil && strings.TrimSpace(*c.Priority) != "" {
		priority, err = ParsePriority(*c.Priority)
		if err != nil {
			return Requirement{}, err
		}
	}

	confidence := DefaultConfidence
	if c.Confidence != nil {
		confidence = *c.Confidence
		if confidence < 0 || confidence > 1 {
			return Requirement{}, fmt.Errorf("%w: confidence %.2f outside [0,1]", ErrValidation, confidence)
		}
	}

	req := Requirement{
		MeetingID:          meetingID,
		Text:               orDefault(c.Text, DefaultRequirementText),
		Summary:            orDefault(c.Summary, DefaultRequirementText),
		Description:        strings.TrimSpace(c.Description),
		Type:               reqType,
		Priority:           priority,
		Labels:             cleanList(c.Labels),
		AcceptanceCriteria: cleanList(c.AcceptanceCriteria),
		Confidence:         confidence,
	}
	if c.Timestamp != nil {
		req.Timestamp = strings.TrimSpace(*c.Timestamp)
	}
	return req, nil
}

// ParseRequirementType accepts the five known types case-insensitively.
// An empty value maps to task.
func ParseRequirementType(v string) (RequirementType, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return DefaultRequirementType, nil
	}
	switch t := RequirementType(v); t {
	case RequirementFeature, RequirementBug, RequirementTask, RequirementStory, RequirementEpic:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown requirement type %q", ErrValidation, v)
}

// ParsePriority accepts Low, Medium, High and Critical case-insensitively.
func ParsePriority(v string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	}
	return "", fmt.Errorf("%w: unknown priority %q", ErrValidation, v)
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
