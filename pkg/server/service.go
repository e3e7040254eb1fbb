package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
)

// Store persists jobs and their logs.
type Store interface {
	LogWriter
	CreateJob(ctx context.Context, job *database.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*database.Job, error)
	ListJobs(ctx context.Context, limit int) ([]database.Job, error)
	UpdateJobProgress(ctx context.Context, id uuid.UUID, status string, progress int, step string) error
	SaveJobPlan(ctx context.Context, id uuid.UUID, plan research.Plan) error
	FinishJob(ctx context.Context, id uuid.UUID, out database.JobOutcome) error
	ListLogs(ctx context.Context, jobID uuid.UUID) ([]database.LogEntry, error)
}

// Researcher is the part of the research engine the service drives.
type Researcher interface {
	GenerateQuestions(ctx context.Context, topic string, breadth, depth int) ([]research.Question, error)
	GeneratePlan(ctx context.Context, topic string, answers []string) research.Plan
	Run(ctx context.Context, req research.Request, obs research.Observer) (research.Result, error)
	WriteReport(ctx context.Context, prompt string, learnings, visitedURLs []string) (string, error)
}

// ResearcherFactory returns a researcher that logs to logger.
type ResearcherFactory func(logger *slog.Logger) Researcher

const listLimit = 100

// Service runs research jobs in the background and tracks them until they
// finish.
type Service struct {
	store         Store
	newResearcher ResearcherFactory
	Events        *Broadcaster
	Logger        *slog.Logger

	// DefaultStrategy is used for jobs that do not name one.
	DefaultStrategy string

	baseCtx context.Context
	stopAll context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
}

func NewService(store Store, newResearcher ResearcherFactory) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:           store,
		newResearcher:   newResearcher,
		Events:          NewBroadcaster(32),
		Logger:          slog.Default(),
		DefaultStrategy: research.StrategyPlan,
		baseCtx:         ctx,
		stopAll:         cancel,
		running:         make(map[uuid.UUID]context.CancelFunc),
	}
}

type QuestionsRequest struct {
	Query   string `json:"query" binding:"required"`
	Breadth int    `json:"breadth"`
	Depth   int    `json:"depth"`
}

type PlanRequest struct {
	Query   string   `json:"query" binding:"required" jsonschema:"The research topic"`
	Answers []string `json:"answers,omitempty" jsonschema:"Answers to the clarifying questions"`
}

type CreateJobRequest struct {
	Query    string         `json:"query" binding:"required"`
	Answers  []string       `json:"answers"`
	Breadth  int            `json:"breadth"`
	Depth    int            `json:"depth"`
	Plan     *research.Plan `json:"plan"`
	Strategy string         `json:"strategy" binding:"omitempty,oneof=plan frontier"`
}

// Questions asks the model for clarifying questions about a topic.
func (s *Service) Questions(ctx context.Context, req QuestionsRequest) ([]research.Question, error) {
	breadth, depth := withDefaults(req.Breadth, req.Depth)
	return s.newResearcher(s.Logger).GenerateQuestions(ctx, req.Query, breadth, depth)
}

// Plan drafts a research plan. It never fails; a fallback plan is returned
// when the model cannot produce one.
func (s *Service) Plan(ctx context.Context, req PlanRequest) research.Plan {
	return s.newResearcher(s.Logger).GeneratePlan(ctx, req.Query, req.Answers)
}

// CreateJob validates req, stores a pending job and starts it.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*database.Job, error) {
	breadth, depth := withDefaults(req.Breadth, req.Depth)
	strategy := strings.ToLower(strings.TrimSpace(req.Strategy))
	if strategy == "" {
		strategy = s.DefaultStrategy
	}
	rreq := research.Request{
		Topic:    strings.TrimSpace(req.Query),
		Answers:  req.Answers,
		Breadth:  breadth,
		Depth:    depth,
		Plan:     req.Plan,
		Strategy: strategy,
	}
	if err := rreq.Validate(); err != nil {
		return nil, err
	}

	job := &database.Job{
		ID:       uuid.New(),
		Topic:    rreq.Topic,
		Answers:  rreq.Answers,
		Breadth:  breadth,
		Depth:    depth,
		Strategy: strategy,
		Status:   database.StatusPending,
		Plan:     rreq.Plan,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(s.baseCtx)
	s.mu.Lock()
	s.running[job.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runJob(jobCtx, job.ID, rreq)

	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*database.Job, error) {
	return s.store.GetJob(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context) ([]database.Job, error) {
	return s.store.ListJobs(ctx, listLimit)
}

func (s *Service) GetJobLogs(ctx context.Context, id uuid.UUID) ([]database.LogEntry, error) {
	return s.store.ListLogs(ctx, id)
}

// Cancel stops a running job. It reports false when the job is not running
// in this process.
func (s *Service) Cancel(id uuid.UUID) bool {
	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Shutdown cancels every running job and waits for them to record their
// final status, or for ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stopAll()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) runJob(ctx context.Context, id uuid.UUID, req research.Request) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}()

	// Status writes must land even after the run is cancelled.
	persist := context.WithoutCancel(ctx)

	stdout := s.Logger.Handler().WithAttrs([]slog.Attr{slog.String("job_id", id.String())})
	logger := slog.New(NewDBLogHandler(s.store, id, stdout))
	r := s.newResearcher(logger)
	start := time.Now()

	s.progress(persist, id, 5, "Starting research")

	if req.Strategy == research.StrategyPlan {
		if req.Plan == nil {
			s.progress(persist, id, 10, "Generating research plan")
			plan := r.GeneratePlan(ctx, req.Topic, req.Answers)
			req.Plan = &plan
			if err := s.store.SaveJobPlan(persist, id, plan); err != nil {
				logger.Warn("Failed to save research plan", "error", err)
			}
		}
		s.Events.Publish(Event{Type: EventPlan, JobID: id, Progress: 15, Data: req.Plan})
		s.progress(persist, id, 15, "Research plan ready")
	} else {
		s.progress(persist, id, 15, "Exploring follow-up questions")
	}

	updates := make(chan research.Progress, 16)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for p := range updates {
			s.progress(persist, id, driverProgress(p.Percent), p.Label)
		}
	}()
	res, err := r.Run(ctx, req, research.ChannelObserver(updates))
	close(updates)
	<-drained

	if err != nil {
		s.fail(persist, id, logger, res, err)
		return
	}

	s.progress(persist, id, 90, "Writing final report")
	report, err := r.WriteReport(ctx, research.ReportPrompt(req.Topic, req.Answers), res.Learnings, res.VisitedURLs)
	if err != nil {
		s.fail(persist, id, logger, res, err)
		return
	}

	out := database.JobOutcome{
		Status:      database.StatusCompleted,
		Learnings:   res.Learnings,
		VisitedURLs: res.VisitedURLs,
		Title:       research.ReportTitle(report),
		Summary:     research.ReportSummary(report),
		Report:      report,
	}
	if err := s.store.FinishJob(persist, id, out); err != nil {
		logger.Error("Failed to store report", "error", err)
	}
	logger.Info("Research job completed", "learnings", len(res.Learnings), "sources", len(res.VisitedURLs), "duration", time.Since(start))
	s.Events.Publish(Event{
		Type:     EventComplete,
		JobID:    id,
		Progress: 100,
		Step:     "Research complete",
		Status:   database.StatusCompleted,
		Data:     map[string]string{"title": out.Title, "summary": out.Summary},
	})
}

// fail records a stopped run, keeping what was learned before it stopped.
func (s *Service) fail(ctx context.Context, id uuid.UUID, logger *slog.Logger, res research.Result, err error) {
	status := statusFor(err)
	logger.Error("Research job stopped", "status", status, "error", err)

	out := database.JobOutcome{
		Status:      status,
		Learnings:   res.Learnings,
		VisitedURLs: res.VisitedURLs,
		Error:       errorMessage(status, err),
	}
	if ferr := s.store.FinishJob(ctx, id, out); ferr != nil {
		logger.Error("Failed to store job failure", "error", ferr)
	}
	s.Events.Publish(Event{
		Type:   EventError,
		JobID:  id,
		Status: status,
		Step:   out.Error,
	})
}

func (s *Service) progress(ctx context.Context, id uuid.UUID, percent int, step string) {
	if err := s.store.UpdateJobProgress(ctx, id, database.StatusRunning, percent, step); err != nil {
		s.Logger.Warn("Failed to update job progress", "job_id", id, "error", err)
	}
	s.Events.Publish(Event{Type: EventProgress, JobID: id, Progress: percent, Step: step, Status: database.StatusRunning})
}

// driverProgress maps a run's own percentage onto the 15-90 band of the job.
func driverProgress(p int) int {
	return min(15+int(math.Round(float64(p)*0.75)), 90)
}

func statusFor(err error) string {
	switch {
	case errors.Is(err, research.ErrRateLimited):
		return database.StatusThrottled
	case errors.Is(err, context.Canceled):
		return database.StatusCancelled
	default:
		return database.StatusFailed
	}
}

func errorMessage(status string, err error) string {
	switch status {
	case database.StatusThrottled:
		return fmt.Sprintf("The search provider is rate limiting requests. Please try again later. (%v)", err)
	case database.StatusCancelled:
		return "Research was cancelled"
	default:
		return err.Error()
	}
}

func withDefaults(breadth, depth int) (int, int) {
	if breadth == 0 {
		breadth = research.DefaultBreadth
	}
	if depth == 0 {
		depth = research.DefaultDepth
	}
	return breadth, depth
}
