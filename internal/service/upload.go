package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"meetingToJira/internal/models"
)

var projectKeyRe = regexp.MustCompile(`^[A-Z][A-Z0-9_]{0,9}$`)

// Upload is one recording received from a client.
type Upload struct {
	FileName   string
	Body       io.Reader
	ProjectKey string
	Assignee   *string
}

// UploadMeeting validates and stores the recording, creates its meeting and
// queues the first processing job.
func (s *Service) UploadMeeting(ctx context.Context, up Upload) (models.Meeting, models.Job, error) {
	ext, err := s.validateExtension(up.FileName)
	if err != nil {
		return models.Meeting{}, models.Job{}, err
	}
	if _, err := s.projectKey(up.ProjectKey); err != nil {
		return models.Meeting{}, models.Job{}, err
	}

	if err := os.MkdirAll(s.opts.UploadsDir, 0o755); err != nil {
		return models.Meeting{}, models.Job{}, fmt.Errorf("create uploads dir: %w", err)
	}
	id := uuid.NewString()
	stored := id + ext
	path := filepath.Join(s.opts.UploadsDir, stored)
	if err := s.saveFile(path, up.Body); err != nil {
		return models.Meeting{}, models.Job{}, err
	}

	m := models.Meeting{
		ID:               id,
		OriginalFileName: up.FileName,
		FileName:         stored,
		FilePath:         path,
	}
	if err := s.store.CreateMeeting(ctx, &m); err != nil {
		_ = os.Remove(path)
		return models.Meeting{}, models.Job{}, err
	}
	s.logger.Info("meeting uploaded", "meeting_id", m.ID, "file", m.OriginalFileName)

	job, err := s.StartProcessing(ctx, m.ID, m.FilePath, up.ProjectKey, up.Assignee)
	return m, job, err
}

func (s *Service) validateExtension(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return "", fmt.Errorf("%w: file has no extension", models.ErrValidation)
	}
	for _, f := range s.opts.SupportedFormats {
		if strings.EqualFold(strings.TrimPrefix(f, "."), ext[1:]) {
			return ext, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported file format %s, supported: %s", models.ErrValidation, ext, strings.Join(s.opts.SupportedFormats, ", "))
}

// saveFile writes body to path, rejecting bodies over the upload limit.
func (s *Service) saveFile(path string, body io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	n, err := io.Copy(dst, io.LimitReader(body, s.opts.MaxUploadBytes+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	switch {
	case err != nil:
		_ = os.Remove(path)
		return fmt.Errorf("save upload: %w", err)
	case n > s.opts.MaxUploadBytes:
		_ = os.Remove(path)
		return fmt.Errorf("%w: file exceeds %d bytes", models.ErrValidation, s.opts.MaxUploadBytes)
	case n == 0:
		_ = os.Remove(path)
		return fmt.Errorf("%w: file is empty", models.ErrValidation)
	}
	return nil
}
