package transcriber

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Formats the transcription endpoint accepts without conversion.
var directFormats = map[string]bool{".mp3": true, ".wav": true, ".m4a": true}

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for tests.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		return res, err
	}
	return res, nil
}

// Preprocessor converts recordings to a compact mono mp3 with ffmpeg and
// reads their duration with ffprobe.
type Preprocessor struct {
	ffmpegPath  string
	ffprobePath string
	runner      commandRunner
	tempDir     string
}

func NewPreprocessor(ffmpegPath, ffprobePath string) *Preprocessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Preprocessor{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, runner: execRunner{}}
}

// Prepare returns a path the transcription endpoint can read. Files already
// in a direct format are returned unchanged; anything else is converted into
// a temporary directory that cleanup removes.
func (p *Preprocessor) Prepare(ctx context.Context, inputPath string) (path string, cleanup func(), err error) {
	noop := func() {}
	ext := strings.ToLower(filepath.Ext(inputPath))
	if directFormats[ext] {
		return inputPath, noop, nil
	}

	dir, err := os.MkdirTemp(p.tempDir, "meeting-audio-*")
	if err != nil {
		return "", noop, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup = func() { _ = os.RemoveAll(dir) }

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	out := filepath.Join(dir, base+".mp3")
	res, err := p.runner.Run(ctx, p.ffmpegPath, conversionArgs(inputPath, out)...)
	if err != nil {
		cleanup()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", noop, ctxErr
		}
		if line := lastLine(res.Stderr); line != "" {
			return "", noop, fmt.Errorf("ffmpeg failed (exit %d): %s", res.ExitCode, line)
		}
		return "", noop, fmt.Errorf("ffmpeg failed: %w", err)
	}
	return out, cleanup, nil
}

// ProbeDuration returns the media duration in seconds.
func (p *Preprocessor) ProbeDuration(ctx context.Context, inputPath string) (float64, error) {
	res, err := p.runner.Run(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe error: %w", err)
	}
	val := strings.TrimSpace(res.Stdout)
	if val == "" {
		return 0, errors.New("empty duration response")
	}
	dur, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration from ffprobe: %w", err)
	}
	return dur, nil
}

// conversionArgs resamples to 16 kHz mono mp3 at 64 kbps.
func conversionArgs(inputPath, outputPath string) []string {
	return []string{
		"-y", "-i", inputPath,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-codec:a", "libmp3lame",
		"-b:a", "64k",
		outputPath,
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
