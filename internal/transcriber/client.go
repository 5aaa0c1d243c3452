// Package transcriber sends recordings to an OpenAI-compatible
// /audio/transcriptions endpoint and scores the result.
package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"meetingToJira/internal/config"
	"meetingToJira/internal/httpclient"
	"meetingToJira/internal/models"
)

// Client is a Whisper API client.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	prep    *Preprocessor
	logger  *slog.Logger
}

func New(cfg config.WhisperConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   model,
		http:    httpclient.New(0),
		prep:    NewPreprocessor(cfg.FFmpegPath, cfg.FFprobePath),
		logger:  logger,
	}
}

type segment struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type verboseTranscription struct {
	Text     string    `json:"text"`
	Duration float64   `json:"duration"`
	Segments []segment `json:"segments"`
}

// Transcribe converts the recording if needed, uploads it, and returns the
// text with a confidence score and duration.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (models.Transcript, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return models.Transcript{}, fmt.Errorf("audio file: %w", err)
	}

	path, cleanup, err := c.prep.Prepare(ctx, audioPath)
	if err != nil {
		return models.Transcript{}, fmt.Errorf("preprocess audio: %w", err)
	}
	defer cleanup()

	decoded, err := c.upload(ctx, path)
	if err != nil {
		return models.Transcript{}, err
	}

	t := models.Transcript{
		Text:       strings.TrimSpace(decoded.Text),
		Confidence: confidence(decoded.Segments),
	}
	if decoded.Duration > 0 {
		d := decoded.Duration
		t.Duration = &d
	} else if d, err := c.prep.ProbeDuration(ctx, audioPath); err == nil {
		t.Duration = &d
	} else {
		c.logger.Warn("could not probe duration", "path", audioPath, "error", err)
	}
	return t, nil
}

func (c *Client) upload(ctx context.Context, path string) (verboseTranscription, error) {
	f, err := os.Open(path)
	if err != nil {
		return verboseTranscription{}, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return verboseTranscription{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return verboseTranscription{}, fmt.Errorf("copy audio: %w", err)
	}
	_ = mw.WriteField("model", c.model)
	_ = mw.WriteField("response_format", "verbose_json")
	if err := mw.Close(); err != nil {
		return verboseTranscription{}, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return verboseTranscription{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return verboseTranscription{}, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return verboseTranscription{}, &httpclient.APIError{Service: "transcription", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var decoded verboseTranscription
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return verboseTranscription{}, fmt.Errorf("decode transcription: %w", err)
	}
	return decoded, nil
}

// confidence averages per-segment confidence. Segments without a score are
// estimated from their length; no segments at all yields 0.8.
func confidence(segments []segment) float64 {
	if len(segments) == 0 {
		return models.DefaultConfidence
	}
	var total float64
	for _, s := range segments {
		if s.Confidence != nil {
			total += *s.Confidence
			continue
		}
		total += min(0.9, 0.6+float64(len(s.Text))/100)
	}
	return total / float64(len(segments))
}
