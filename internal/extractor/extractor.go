// Package extractor asks an OpenAI-compatible chat completions endpoint to
// pull actionable requirements out of a meeting transcript.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"meetingToJira/internal/config"
	"meetingToJira/internal/httpclient"
	"meetingToJira/internal/models"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string    `json:"model"`
	Messages       []message `json:"messages"`
	Temperature    float32   `json:"temperature"`
	ResponseFormat any       `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// Service extracts requirement candidates from transcripts.
type Service struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float32
	http        *http.Client
	logger      *slog.Logger
}

func NewService(cfg config.LLMConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		http:        httpclient.New(0),
		logger:      logger,
	}
}

// Extract returns one candidate per item in the model's answer, in answer
// order. Items that cannot be decoded come back with Err set. An unreachable
// endpoint or an answer that is not a JSON object fails the whole call.
func (s *Service) Extract(ctx context.Context, text string) ([]models.RequirementCandidate, error) {
	cleaned := CleanTranscript(text)
	if cleaned == "" {
		return nil, nil
	}

	content, err := s.chat(ctx, chatRequest{
		Model: s.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(cleaned)},
		},
		Temperature:    s.temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, err
	}

	candidates, err := decodeCandidates(content)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("requirements extracted", "candidates", len(candidates))
	return candidates, nil
}

func (s *Service) chat(ctx context.Context, req chatRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &httpclient.APIError{Service: "llm", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("response missing choices")
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("response empty")
	}
	return content, nil
}

// decodeCandidates parses {"requirements": [...]}. A missing key means no
// requirements were found.
func decodeCandidates(content string) ([]models.RequirementCandidate, error) {
	content = stripCodeFence(content)
	var envelope struct {
		Requirements []json.RawMessage `json:"requirements"`
	}
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		return nil, fmt.Errorf("malformed extraction response: %w", err)
	}

	out := make([]models.RequirementCandidate, 0, len(envelope.Requirements))
	for i, raw := range envelope.Requirements {
		var c models.RequirementCandidate
		if err := json.Unmarshal(raw, &c); err != nil {
			c = models.RequirementCandidate{Err: fmt.Errorf("item %d: %w", i, err)}
		}
		out = append(out, c)
	}
	return out, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	fillerRe     = regexp.MustCompile(`(?i)\b(um|uh|er|ah|like|you know)\b`)
	slangRe      = regexp.MustCompile(`(?i)\b(gonna|wanna|gotta)\b`)
	expansions   = map[string]string{"gonna": "going to", "wanna": "want to", "gotta": "got to"}
)

// CleanTranscript drops filler words, expands spoken contractions and
// collapses whitespace.
func CleanTranscript(text string) string {
	text = fillerRe.ReplaceAllString(text, "")
	text = slangRe.ReplaceAllStringFunc(text, func(m string) string {
		return expansions[strings.ToLower(m)]
	})
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}
