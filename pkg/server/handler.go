package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikeboe/deep-research/pkg/chat"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
)

type Handler struct {
	Service *Service
	// Chat and MCP are optional.
	Chat *chat.Service
	MCP  http.Handler

	// KeepAlive is the interval of SSE pings.
	KeepAlive time.Duration
}

func NewHandler(s *Service, c *chat.Service, mcpHandler http.Handler) *Handler {
	return &Handler{Service: s, Chat: c, MCP: mcpHandler, KeepAlive: 15 * time.Second}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if h.MCP != nil {
		r.Any("/mcp", gin.WrapH(h.MCP))
	}

	api := r.Group("/api")
	{
		api.POST("/research/questions", h.questions)
		api.POST("/research/plan", h.plan)
		api.POST("/research", h.createJob)
		api.GET("/research", h.listJobs)
		api.GET("/research/:id", h.getJob)
		api.GET("/research/:id/logs", h.getJobLogs)
		api.GET("/research/:id/events", h.jobEvents)
		api.POST("/research/:id/cancel", h.cancelJob)

		if h.Chat != nil {
			api.POST("/chat/conversations", h.createConversation)
			api.GET("/chat/conversations", h.listConversations)
			api.GET("/chat/conversations/:id/messages", h.getMessages)
			api.POST("/chat/conversations/:id/messages", h.sendMessage)
		}
	}
}

func (h *Handler) questions(c *gin.Context) {
	req, ok := bindJSON[QuestionsRequest](c)
	if !ok {
		return
	}
	questions, err := h.Service.Questions(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

func (h *Handler) plan(c *gin.Context) {
	req, ok := bindJSON[PlanRequest](c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.Service.Plan(c.Request.Context(), req))
}

func (h *Handler) createJob(c *gin.Context) {
	req, ok := bindJSON[CreateJobRequest](c)
	if !ok {
		return
	}

	job, err := h.Service.CreateJob(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (h *Handler) listJobs(c *gin.Context) {
	jobs, err := h.Service.ListJobs(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if jobs == nil {
		jobs = []database.Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handler) getJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	job, err := h.Service.GetJob(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) getJobLogs(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	logs, err := h.Service.GetJobLogs(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if logs == nil {
		logs = []database.LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

func (h *Handler) cancelJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if h.Service.Cancel(id) {
		c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "cancelling"})
		return
	}
	job, err := h.Service.GetJob(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusConflict, gin.H{"error": "job is not running", "status": job.Status})
}

// jobEvents streams a job's progress as server-sent events until the job
// finishes or the client goes away.
func (h *Handler) jobEvents(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	// Subscribe before reading the job so no transition is missed.
	events, unsubscribe := h.Service.Events.Subscribe(id)
	defer unsubscribe()

	job, err := h.Service.GetJob(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	current := snapshot(job)
	c.SSEvent(current.Type, current)
	c.Writer.Flush()
	if current.Terminal() {
		return
	}

	ticker := time.NewTicker(h.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case ev := <-events:
			c.SSEvent(ev.Type, ev)
			c.Writer.Flush()
			if ev.Terminal() {
				return
			}
		case <-ticker.C:
			// A slow client may have missed the terminal event.
			if job, err := h.Service.GetJob(c.Request.Context(), id); err == nil && job.Terminal() {
				final := snapshot(job)
				c.SSEvent(final.Type, final)
				c.Writer.Flush()
				return
			}
			c.SSEvent("ping", gin.H{"time": time.Now().Unix()})
			c.Writer.Flush()
		}
	}
}

func snapshot(job *database.Job) Event {
	ev := Event{Type: EventProgress, JobID: job.ID, Progress: job.Progress, Step: job.Step, Status: job.Status}
	switch {
	case job.Status == database.StatusCompleted:
		ev.Type = EventComplete
		ev.Data = map[string]string{"title": job.Title, "summary": job.Summary}
	case job.Terminal():
		ev.Type = EventError
		if job.Error != nil {
			ev.Step = *job.Error
		}
	}
	return ev
}

func (h *Handler) createConversation(c *gin.Context) {
	conv, err := h.Chat.CreateConversation(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *Handler) listConversations(c *gin.Context) {
	convs, err := h.Chat.ListConversations(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if convs == nil {
		convs = []database.Conversation{}
	}
	c.JSON(http.StatusOK, convs)
}

func (h *Handler) getMessages(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	msgs, err := h.Chat.GetHistory(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if msgs == nil {
		msgs = []database.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) sendMessage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	req, ok := bindJSON[sendMessageRequest](c)
	if !ok {
		return
	}

	next, err := h.Chat.SendMessage(c.Request.Context(), id, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	for event, err := range next {
		if err != nil {
			event = chat.StreamEvent{Type: "error", Payload: err.Error()}
		}
		data, merr := json.Marshal(event)
		if merr != nil {
			return
		}
		_, _ = c.Writer.Write([]byte("data: "))
		_, _ = c.Writer.Write(data)
		_, _ = c.Writer.Write([]byte("\n\n"))
		c.Writer.Flush()
		if err != nil {
			return
		}
	}
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// bindJSON decodes and validates the request body, answering 400 on failure.
func bindJSON[T any](c *gin.Context) (T, bool) {
	var req T
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}
	return req, true
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return uuid.Nil, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, research.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
