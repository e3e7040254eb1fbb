package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mikeboe/deep-research/pkg/research"
)

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusThrottled = "throttled"
	StatusCancelled = "cancelled"
)

// Job is a persisted research run.
type Job struct {
	ID          uuid.UUID      `json:"id"`
	Topic       string         `json:"topic"`
	Answers     []string       `json:"answers"`
	Breadth     int            `json:"breadth"`
	Depth       int            `json:"depth"`
	Strategy    string         `json:"strategy"`
	Status      string         `json:"status"`
	Progress    int            `json:"progress"`
	Step        string         `json:"step"`
	Plan        *research.Plan `json:"plan,omitempty"`
	Learnings   []string       `json:"learnings,omitempty"`
	VisitedURLs []string       `json:"visitedUrls,omitempty"`
	Title       string         `json:"title,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	Report      *string        `json:"report,omitempty"`
	Error       *string        `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Terminal reports whether the job will not change any more.
func (j *Job) Terminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusThrottled, StatusCancelled:
		return true
	}
	return false
}

// JobOutcome is what a finished run stores.
type JobOutcome struct {
	Status      string
	Learnings   []string
	VisitedURLs []string
	Title       string
	Summary     string
	Report      string
	Error       string
}

// LogEntry is one record of a job's log.
type LogEntry struct {
	ID        int64          `json:"id"`
	JobID     uuid.UUID      `json:"job_id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

const jobColumns = `id, topic, answers, breadth, depth, strategy, status, progress, step,
	plan, learnings, visited_urls, title, summary, report, error, created_at, updated_at`

// CreateJob inserts job and fills in its timestamps.
func (db *PostgresDB) CreateJob(ctx context.Context, job *Job) error {
	answers, err := json.Marshal(nonNil(job.Answers))
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}
	var plan []byte
	if job.Plan != nil {
		if plan, err = json.Marshal(job.Plan); err != nil {
			return fmt.Errorf("failed to marshal plan: %w", err)
		}
	}

	query := `
		INSERT INTO research_jobs (id, topic, answers, breadth, depth, strategy, status, plan)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err = db.Pool.QueryRow(ctx, query,
		job.ID, job.Topic, answers, job.Breadth, job.Depth, job.Strategy, job.Status, plan,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob returns the job with id or ErrNotFound.
func (db *PostgresDB) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM research_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs first.
func (db *PostgresDB) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+jobColumns+` FROM research_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateJobProgress records the status, overall percent and current step.
func (db *PostgresDB) UpdateJobProgress(ctx context.Context, id uuid.UUID, status string, progress int, step string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE research_jobs
		SET status = $2, progress = $3, step = $4, updated_at = NOW()
		WHERE id = $1
	`, id, status, progress, step)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// SaveJobPlan stores the plan a job runs.
func (db *PostgresDB) SaveJobPlan(ctx context.Context, id uuid.UUID, plan research.Plan) error {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	if _, err := db.Pool.Exec(ctx,
		`UPDATE research_jobs SET plan = $2, updated_at = NOW() WHERE id = $1`, id, planJSON); err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

// FinishJob stores the outcome of a run. Completed jobs are set to 100%.
func (db *PostgresDB) FinishJob(ctx context.Context, id uuid.UUID, out JobOutcome) error {
	learnings, err := json.Marshal(nonNil(out.Learnings))
	if err != nil {
		return fmt.Errorf("failed to marshal learnings: %w", err)
	}
	urls, err := json.Marshal(nonNil(out.VisitedURLs))
	if err != nil {
		return fmt.Errorf("failed to marshal visited urls: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		UPDATE research_jobs
		SET status = $2,
			learnings = $3,
			visited_urls = $4,
			title = $5,
			summary = $6,
			report = NULLIF($7, ''),
			error = NULLIF($8, ''),
			progress = CASE WHEN $2 = 'completed' THEN 100 ELSE progress END,
			updated_at = NOW()
		WHERE id = $1
	`, id, out.Status, learnings, urls, out.Title, out.Summary, out.Report, out.Error)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

// InsertLog appends one log record to a job.
func (db *PostgresDB) InsertLog(ctx context.Context, entry LogEntry) error {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		meta = []byte("{}")
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO research_logs (job_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.JobID, entry.Timestamp, entry.Level, entry.Message, meta)
	return err
}

// ListLogs returns a job's log in insertion order.
func (db *PostgresDB) ListLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, job_id, timestamp, level, message, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		var meta []byte
		if err := rows.Scan(&l.ID, &l.JobID, &l.Timestamp, &l.Level, &l.Message, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &l.Metadata)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var answers, plan, learnings, urls []byte
	err := row.Scan(
		&j.ID, &j.Topic, &answers, &j.Breadth, &j.Depth, &j.Strategy, &j.Status, &j.Progress, &j.Step,
		&plan, &learnings, &urls, &j.Title, &j.Summary, &j.Report, &j.Error, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalColumn(answers, &j.Answers); err != nil {
		return nil, fmt.Errorf("answers: %w", err)
	}
	if len(plan) > 0 && string(plan) != "null" {
		j.Plan = &research.Plan{}
		if err := json.Unmarshal(plan, j.Plan); err != nil {
			return nil, fmt.Errorf("plan: %w", err)
		}
	}
	if err := unmarshalColumn(learnings, &j.Learnings); err != nil {
		return nil, fmt.Errorf("learnings: %w", err)
	}
	if err := unmarshalColumn(urls, &j.VisitedURLs); err != nil {
		return nil, fmt.Errorf("visited urls: %w", err)
	}
	return &j, nil
}

func unmarshalColumn(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
