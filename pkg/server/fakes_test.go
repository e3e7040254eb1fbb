package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
)

// memStore keeps jobs and logs in memory.
type memStore struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*database.Job
	logs     []database.LogEntry
	progress map[uuid.UUID][]int
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     make(map[uuid.UUID]*database.Job),
		progress: make(map[uuid.UUID][]int),
	}
}

func (m *memStore) CreateJob(ctx context.Context, job *database.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) put(job database.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = &job
}

func (m *memStore) GetJob(ctx context.Context, id uuid.UUID) (*database.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, database.ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) ListJobs(ctx context.Context, limit int) ([]database.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Job
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (m *memStore) UpdateJobProgress(ctx context.Context, id uuid.UUID, status string, progress int, step string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return database.ErrNotFound
	}
	j.Status, j.Progress, j.Step = status, progress, step
	m.progress[id] = append(m.progress[id], progress)
	return nil
}

func (m *memStore) SaveJobPlan(ctx context.Context, id uuid.UUID, plan research.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id].Plan = &plan
	return nil
}

func (m *memStore) FinishJob(ctx context.Context, id uuid.UUID, out database.JobOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Status = out.Status
	j.Learnings = out.Learnings
	j.VisitedURLs = out.VisitedURLs
	j.Title = out.Title
	j.Summary = out.Summary
	if out.Report != "" {
		j.Report = &out.Report
	}
	if out.Error != "" {
		j.Error = &out.Error
	}
	if out.Status == database.StatusCompleted {
		j.Progress = 100
	}
	return nil
}

func (m *memStore) InsertLog(ctx context.Context, entry database.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, entry)
	return nil
}

func (m *memStore) ListLogs(ctx context.Context, jobID uuid.UUID) ([]database.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.LogEntry
	for _, l := range m.logs {
		if l.JobID == jobID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) progressOf(id uuid.UUID) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.progress[id]...)
}

// fakeResearcher returns scripted results.
type fakeResearcher struct {
	mu        sync.Mutex
	questions []research.Question
	plan      research.Plan
	planCalls int
	run       func(ctx context.Context, req research.Request, obs research.Observer) (research.Result, error)
	lastReq   research.Request
	report    string
	reportErr error
}

func (f *fakeResearcher) GenerateQuestions(ctx context.Context, topic string, breadth, depth int) ([]research.Question, error) {
	return f.questions, nil
}

func (f *fakeResearcher) GeneratePlan(ctx context.Context, topic string, answers []string) research.Plan {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.planCalls++
	return f.plan
}

func (f *fakeResearcher) Run(ctx context.Context, req research.Request, obs research.Observer) (research.Result, error) {
	f.mu.Lock()
	f.lastReq = req
	run := f.run
	f.mu.Unlock()
	if run == nil {
		return research.Result{}, nil
	}
	return run(ctx, req, obs)
}

func (f *fakeResearcher) WriteReport(ctx context.Context, prompt string, learnings, visitedURLs []string) (string, error) {
	return f.report, f.reportErr
}

func newTestService(store *memStore, fr *fakeResearcher) *Service {
	svc := NewService(store, func(*slog.Logger) Researcher { return fr })
	svc.Logger = slog.New(slog.DiscardHandler)
	return svc
}

var testPlan = research.Plan{
	Title: "Caffeine",
	Sections: []research.Section{
		{Heading: "Introduction", Queries: []string{"caffeine sleep onset", "caffeine half-life"}},
	},
	EstimatedDepth:   2,
	EstimatedBreadth: 4,
}
