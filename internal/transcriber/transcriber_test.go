package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meetingToJira/internal/config"
	"meetingToJira/internal/httpclient"
)

type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (commandResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.WhisperConfig{BaseURL: srv.URL + "/", APIKey: "secret"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTranscribeUploadsDirectFormat(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "standup.mp3")
	mustWriteFile(t, audio, "ID3-audio")

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("auth = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.FormValue("model") != "whisper-1" || r.FormValue("response_format") != "verbose_json" {
			t.Errorf("form = %v", r.MultipartForm.Value)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			data, _ := io.ReadAll(f)
			if hdr.Filename != "standup.mp3" || string(data) != "ID3-audio" {
				t.Errorf("file = %s %q", hdr.Filename, data)
			}
		}
		fmt.Fprint(w, `{"text":"  we need csv export ","duration":42.5,"segments":[{"text":"we need","confidence":0.9},{"text":"csv export","confidence":0.7}]}`)
	})

	got, err := c.Transcribe(context.Background(), audio)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got.Text != "we need csv export" {
		t.Fatalf("text = %q", got.Text)
	}
	if math.Abs(got.Confidence-0.8) > 1e-9 {
		t.Fatalf("confidence = %v, want 0.8", got.Confidence)
	}
	if got.Duration == nil || *got.Duration != 42.5 {
		t.Fatalf("duration = %v", got.Duration)
	}
}

func TestTranscribeConvertsOtherFormats(t *testing.T) {
	root := t.TempDir()
	video := filepath.Join(root, "recording.webm")
	mustWriteFile(t, video, "webm")

	var uploaded string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, hdr, err := r.FormFile("file")
		if err == nil {
			uploaded = hdr.Filename
		}
		fmt.Fprint(w, `{"text":"hi","segments":[]}`)
	})
	c.prep.tempDir = root
	var converted string
	c.prep.runner = &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		switch name {
		case "ffmpeg":
			if args[2] != video {
				t.Errorf("ffmpeg input = %s", args[2])
			}
			converted = args[len(args)-1]
			mustWriteFile(t, converted, "mp3")
			return commandResult{}, nil
		case "ffprobe":
			return commandResult{Stdout: "12.25\n"}, nil
		}
		return commandResult{}, fmt.Errorf("unexpected command %s", name)
	}}

	got, err := c.Transcribe(context.Background(), video)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if uploaded != "recording.mp3" {
		t.Fatalf("uploaded = %q, want recording.mp3", uploaded)
	}
	if got.Confidence != 0.8 {
		t.Fatalf("confidence = %v, want default 0.8", got.Confidence)
	}
	if got.Duration == nil || *got.Duration != 12.25 {
		t.Fatalf("duration = %v, want probed 12.25", got.Duration)
	}
	if _, err := os.Stat(converted); !os.IsNotExist(err) {
		t.Fatalf("converted file not cleaned up: %v", err)
	}
}

func TestTranscribeFailures(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})
		if _, err := c.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.mp3")); err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("api error", func(t *testing.T) {
		audio := filepath.Join(t.TempDir(), "a.wav")
		mustWriteFile(t, audio, "wav")
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid file format", http.StatusBadRequest)
		})
		_, err := c.Transcribe(context.Background(), audio)
		var apiErr *httpclient.APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
			t.Fatalf("error = %v, want APIError 400", err)
		}
		if !strings.Contains(err.Error(), "invalid file format") {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("ffmpeg failure", func(t *testing.T) {
		video := filepath.Join(t.TempDir(), "a.mp4")
		mustWriteFile(t, video, "mp4")
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})
		c.prep.runner = &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			return commandResult{Stderr: "header\nInvalid data found when processing input\n", ExitCode: 1}, errors.New("exit status 1")
		}}
		_, err := c.Transcribe(context.Background(), video)
		if err == nil || !strings.Contains(err.Error(), "Invalid data found") {
			t.Fatalf("error = %v", err)
		}
	})
}

func TestConfidence(t *testing.T) {
	score := func(v float64) *float64 { return &v }
	cases := []struct {
		name     string
		segments []segment
		want     float64
	}{
		{"none", nil, 0.8},
		{"scored", []segment{{Confidence: score(0.5)}, {Confidence: score(1)}}, 0.75},
		{"short unscored", []segment{{Text: strings.Repeat("a", 10)}}, 0.7},
		{"long unscored capped", []segment{{Text: strings.Repeat("a", 80)}}, 0.9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := confidence(tc.segments); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("confidence = %v, want %v", got, tc.want)
			}
		})
	}
}
