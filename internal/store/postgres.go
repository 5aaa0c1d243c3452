package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"meetingToJira/internal/models"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// querier is satisfied by both *sql.DB and *sql.Conn.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Postgres is the lib/pq backed store.
type Postgres struct {
	pgRepo
	db *sql.DB
}

// OpenPostgres connects to dsn, pings it, and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Postgres{pgRepo: pgRepo{q: db, now: utcNow}, db: db}, nil
}

// Session checks out a dedicated connection from the pool.
func (p *Postgres) Session(ctx context.Context) (Session, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &pgSession{pgRepo: pgRepo{q: conn, now: p.now}, conn: conn}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

type pgSession struct {
	pgRepo
	conn *sql.Conn
}

func (s *pgSession) Close() error { return s.conn.Close() }

type pgRepo struct {
	q   querier
	now func() time.Time
}

func utcNow() time.Time { return time.Now().UTC() }

func (r pgRepo) CreateMeeting(ctx context.Context, m *models.Meeting) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := r.now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO meetings (id, filename, original_filename, file_path, duration, processed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.FileName, m.OriginalFileName, m.FilePath, m.Duration, m.Processed, m.CreatedAt, m.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("meeting %s: %w", m.ID, models.ErrAlreadyExists)
	}
	return err
}

const meetingColumns = `id, filename, original_filename, file_path, duration,
	transcription_text, transcription_confidence, processed, created_at, updated_at`

func scanMeeting(row interface{ Scan(...any) error }) (models.Meeting, error) {
	var (
		m          models.Meeting
		duration   sql.NullFloat64
		text       sql.NullString
		confidence sql.NullFloat64
	)
	if err := row.Scan(&m.ID, &m.FileName, &m.OriginalFileName, &m.FilePath, &duration,
		&text, &confidence, &m.Processed, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return models.Meeting{}, err
	}
	m.Duration = nullableFloat(duration)
	m.TranscriptionText = text.String
	m.TranscriptionConfidence = nullableFloat(confidence)
	return m, nil
}

func (r pgRepo) GetMeeting(ctx context.Context, id string) (models.Meeting, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Meeting{}, fmt.Errorf("meeting %s: %w", id, models.ErrNotFound)
	}
	return m, err
}

func (r pgRepo) ListMeetings(ctx context.Context, limit, offset int) ([]models.Meeting, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		ORDER BY created_at DESC
		LIMIT $1
		OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Meeting{}
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r pgRepo) SaveTranscription(ctx context.Context, meetingID string, t models.Transcript) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE meetings
		SET transcription_text = $2,
		    transcription_confidence = $3,
		    duration = COALESCE($4, duration),
		    updated_at = $5
		WHERE id = $1
	`, meetingID, t.Text, t.Confidence, t.Duration, r.now())
	return requireRow(res, err, "meeting", meetingID)
}

func (r pgRepo) MarkProcessed(ctx context.Context, meetingID string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE meetings SET processed = TRUE, updated_at = $2 WHERE id = $1
	`, meetingID, r.now())
	return requireRow(res, err, "meeting", meetingID)
}

func (r pgRepo) CreateJob(ctx context.Context, j *models.Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = models.StatusPending
	}
	now := r.now()
	j.CreatedAt = now
	j.UpdatedAt = now

	result, err := marshalResult(j.Result)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO processing_jobs (id, meeting_id, status, progress, message, result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, j.ID, j.MeetingID, string(j.Status), j.Progress, j.Message, result, j.CreatedAt, j.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("meeting %s has an active job: %w", j.MeetingID, models.ErrAlreadyExists)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return fmt.Errorf("meeting %s: %w", j.MeetingID, models.ErrNotFound)
	}
	return err
}

const jobColumns = `id, meeting_id, status, progress, message, result, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (models.Job, error) {
	var (
		j      models.Job
		status string
		result []byte
	)
	if err := row.Scan(&j.ID, &j.MeetingID, &status, &j.Progress, &j.Message, &result, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return models.Job{}, err
	}
	j.Status = models.JobStatus(status)
	if len(result) > 0 {
		var jr models.JobResult
		if err := json.Unmarshal(result, &jr); err != nil {
			return models.Job{}, fmt.Errorf("decode job result: %w", err)
		}
		j.Result = &jr
	}
	return j, nil
}

func (r pgRepo) GetJob(ctx context.Context, id string) (models.Job, error) {
	j, err := scanJob(r.q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM processing_jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Job{}, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return j, err
}

func (r pgRepo) LatestJob(ctx context.Context, meetingID string) (models.Job, error) {
	j, err := scanJob(r.q.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM processing_jobs
		WHERE meeting_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, meetingID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Job{}, fmt.Errorf("job for meeting %s: %w", meetingID, models.ErrNotFound)
	}
	return j, err
}

// UpdateJob writes status, progress, message and result unless the stored job is terminal.
func (r pgRepo) UpdateJob(ctx context.Context, j models.Job) error {
	result, err := marshalResult(j.Result)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status = $2,
		    progress = $3,
		    message = $4,
		    result = COALESCE($5, result),
		    updated_at = $6
		WHERE id = $1
		  AND status NOT IN ('completed', 'failed')
	`, j.ID, string(j.Status), j.Progress, j.Message, result, r.now())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM processing_jobs WHERE id = $1)`, j.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("job %s: %w", j.ID, models.ErrNotFound)
	}
	return fmt.Errorf("job %s: %w", j.ID, models.ErrJobTerminal)
}

func (r pgRepo) CreateRequirement(ctx context.Context, req *models.Requirement) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.CreatedAt = r.now()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO requirements (
			id, meeting_id, text, summary, description, requirement_type, priority,
			labels, acceptance_criteria, confidence, timestamp, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		req.ID,
		req.MeetingID,
		req.Text,
		req.Summary,
		req.Description,
		string(req.Type),
		nullString(string(req.Priority)),
		pq.Array(nonNil(req.Labels)),
		pq.Array(nonNil(req.AcceptanceCriteria)),
		req.Confidence,
		nullString(req.Timestamp),
		req.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return fmt.Errorf("meeting %s: %w", req.MeetingID, models.ErrNotFound)
	}
	return err
}

const requirementColumns = `id, meeting_id, text, summary, description, requirement_type, priority,
	labels, acceptance_criteria, confidence, timestamp, jira_ticket_key, created_at`

func scanRequirement(row interface{ Scan(...any) error }) (models.Requirement, error) {
	var (
		req       models.Requirement
		reqType   string
		priority  sql.NullString
		timestamp sql.NullString
		ticketKey sql.NullString
	)
	if err := row.Scan(
		&req.ID,
		&req.MeetingID,
		&req.Text,
		&req.Summary,
		&req.Description,
		&reqType,
		&priority,
		pq.Array(&req.Labels),
		pq.Array(&req.AcceptanceCriteria),
		&req.Confidence,
		&timestamp,
		&ticketKey,
		&req.CreatedAt,
	); err != nil {
		return models.Requirement{}, err
	}
	req.Type = models.RequirementType(reqType)
	req.Priority = models.Priority(priority.String)
	req.Timestamp = timestamp.String
	req.TicketKey = ticketKey.String
	req.Labels = nonNil(req.Labels)
	req.AcceptanceCriteria = nonNil(req.AcceptanceCriteria)
	return req, nil
}

func (r pgRepo) GetRequirement(ctx context.Context, id string) (models.Requirement, error) {
	req, err := scanRequirement(r.q.QueryRowContext(ctx, `SELECT `+requirementColumns+` FROM requirements WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Requirement{}, fmt.Errorf("requirement %s: %w", id, models.ErrNotFound)
	}
	return req, err
}

func (r pgRepo) ListRequirements(ctx context.Context, meetingID string) ([]models.Requirement, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+requirementColumns+`
		FROM requirements
		WHERE meeting_id = $1
		ORDER BY seq
	`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Requirement{}
	for rows.Next() {
		req, err := scanRequirement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// CreateTicket links the requirement and inserts the ticket in one transaction.
func (r pgRepo) CreateTicket(ctx context.Context, t *models.Ticket) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = r.now()

	tx, err := r.q.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE requirements
		SET jira_ticket_key = $2
		WHERE id = $1
		  AND jira_ticket_key IS NULL
	`, t.RequirementID, t.Key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM requirements WHERE id = $1)`, t.RequirementID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("requirement %s: %w", t.RequirementID, models.ErrNotFound)
		}
		return fmt.Errorf("requirement %s: %w", t.RequirementID, models.ErrAlreadyExists)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jira_tickets (id, requirement_id, ticket_key, url, summary, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.RequirementID, t.Key, t.URL, t.Summary, t.Status, t.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("requirement %s: %w", t.RequirementID, models.ErrAlreadyExists)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (r pgRepo) ListTickets(ctx context.Context, meetingID string) ([]models.Ticket, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT t.id, t.requirement_id, t.ticket_key, t.url, t.summary, t.status, t.created_at
		FROM jira_tickets t
		JOIN requirements r ON r.id = t.requirement_id
		WHERE r.meeting_id = $1
		ORDER BY r.seq
	`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Ticket{}
	for rows.Next() {
		var t models.Ticket
		if err := rows.Scan(&t.ID, &t.RequirementID, &t.Key, &t.URL, &t.Summary, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, err error, kind, id string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// marshalResult encodes the result as text; lib/pq would send []byte as bytea.
func marshalResult(r *models.JobResult) (sql.NullString, error) {
	if r == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode job result: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
