package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"meetingToJira/internal/jira"
	"meetingToJira/internal/models"
	"meetingToJira/internal/orchestrator"
	"meetingToJira/internal/service"
	"meetingToJira/templates"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	defaultMaxUploadBytes = 500 * 1024 * 1024
	multipartMemory       = 32 << 20
	requestTimeout        = 30 * time.Minute
)

type App struct {
	logger *slog.Logger
	router *chi.Mux
	svc    *service.Service

	maxUploadBytes    int64
	defaultProjectKey string
	formats           []string
}

func NewApp(logger *slog.Logger, svc *service.Service, opts service.Options) *App {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	app := &App{
		logger:            logger,
		router:            chi.NewRouter(),
		svc:               svc,
		maxUploadBytes:    opts.MaxUploadBytes,
		defaultProjectKey: opts.DefaultProjectKey,
		formats:           opts.SupportedFormats,
	}
	app.registerRoutes()
	return app
}

func (a *App) Router() http.Handler {
	return a.router
}

func (a *App) registerRoutes() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.RealIP)
	a.router.Use(a.requestLogger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Timeout(requestTimeout))
	a.router.Use(a.corsMiddleware)

	a.router.Get("/", a.index)
	a.router.Get("/meeting/{id}", a.meetingPage)
	a.router.Get("/healthz", a.health)

	a.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/upload", a.upload)
		r.Get("/meetings", a.listMeetings)
		r.Get("/meetings/{id}/status", a.status)
		r.Get("/meetings/{id}/requirements", a.requirements)
		r.Get("/meetings/{id}/tickets", a.tickets)
		r.Post("/meetings/{id}/process", a.process)
		r.Post("/jobs/{id}/cancel", a.cancelJob)
		r.Post("/requirements/{id}/create-ticket", a.createTicket)
		r.Get("/projects", a.projects)
	})
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "timestamp": time.Now().Format(time.RFC3339)})
}

func (a *App) index(w http.ResponseWriter, r *http.Request) {
	meetings, err := a.svc.ListMeetings(r.Context(), 20, 0)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.render(w, r, templates.IndexPage(meetings, a.defaultProjectKey, a.formats))
}

func (a *App) meetingPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := a.svc.GetStatus(r.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	view := templates.MeetingView{Status: report}
	if reqs, err := a.svc.ListRequirements(r.Context(), id); err == nil {
		view.Requirements = reqs
	}
	if tickets, err := a.svc.ListTickets(r.Context(), id); err == nil {
		view.Tickets = tickets
	}
	a.render(w, r, templates.MeetingPage(view))
}

func (a *App) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		a.logger.Warn("invalid multipart upload", "error", err)
		a.respondJSON(w, http.StatusBadRequest, errorBody("invalid upload or file larger than "+strconv.FormatInt(a.maxUploadBytes>>20, 10)+"MB"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		a.respondJSON(w, http.StatusBadRequest, errorBody("file is required"))
		return
	}
	defer file.Close()

	meeting, job, err := a.svc.UploadMeeting(r.Context(), service.Upload{
		FileName:   sanitizeFileName(header.Filename),
		Body:       file,
		ProjectKey: r.FormValue("project_key"),
		Assignee:   optional(r.FormValue("assignee")),
	})
	if err != nil {
		if meeting.ID != "" {
			a.logger.Warn("meeting stored but not queued", "meeting_id", meeting.ID, "error", err)
		}
		a.respondError(w, r, err)
		return
	}

	if wantsHTML(r) {
		http.Redirect(w, r, "/meeting/"+meeting.ID, http.StatusSeeOther)
		return
	}
	a.respondJSON(w, http.StatusAccepted, map[string]string{
		"meeting_id": meeting.ID,
		"job_id":     job.ID,
		"status":     string(job.Status),
		"message":    "File uploaded successfully. Processing started.",
	})
}

func (a *App) listMeetings(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	meetings, err := a.svc.ListMeetings(r.Context(), limit, offset)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	if meetings == nil {
		meetings = []models.Meeting{}
	}
	a.respondJSON(w, http.StatusOK, meetings)
}

func (a *App) status(w http.ResponseWriter, r *http.Request) {
	report, err := a.svc.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondJSON(w, http.StatusOK, report)
}

func (a *App) requirements(w http.ResponseWriter, r *http.Request) {
	reqs, err := a.svc.ListRequirements(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondJSON(w, http.StatusOK, reqs)
}

func (a *App) tickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := a.svc.ListTickets(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	a.respondJSON(w, http.StatusOK, tickets)
}

func (a *App) process(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := a.svc.Reprocess(r.Context(), id, r.FormValue("project_key"), optional(r.FormValue("assignee")))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	if wantsHTML(r) {
		http.Redirect(w, r, "/meeting/"+id, http.StatusSeeOther)
		return
	}
	a.respondJSON(w, http.StatusAccepted, job)
}

func (a *App) cancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.svc.CancelJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondJSON(w, http.StatusAccepted, job)
}

func (a *App) createTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := a.svc.CreateTicketForRequirement(r.Context(), chi.URLParam(r, "id"), r.FormValue("project_key"), optional(r.FormValue("assignee")))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondJSON(w, http.StatusCreated, ticket)
}

func (a *App) projects(w http.ResponseWriter, r *http.Request) {
	projects, err := a.svc.Projects(r.Context())
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	if projects == nil {
		projects = []jira.Project{}
	}
	a.respondJSON(w, http.StatusOK, projects)
}

func (a *App) render(w http.ResponseWriter, r *http.Request, component templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(r.Context(), w); err != nil {
		a.logger.Error("failed to render template", "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}

func (a *App) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("failed to encode json", "error", err)
	}
}

func (a *App) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		a.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		msg = "internal error"
	}
	a.respondJSON(w, code, errorBody(msg))
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyExists), errors.Is(err, models.ErrJobTerminal):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrQueueFull), errors.Is(err, orchestrator.ErrPoolClosed), errors.Is(err, jira.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Join(models.ErrValidation, errors.New(key+" must be an integer"))
	}
	return n, nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// wantsHTML reports whether the request came from a browser form.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(strings.ReplaceAll(name, "\\", "/")))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
	if name == "" || name == "." {
		return "recording.bin"
	}
	return name
}

func (a *App) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (a *App) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
