package api

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	authstore "github.com/taskflow/taskflow/internal/auth/store"
	boardstore "github.com/taskflow/taskflow/internal/board/store"
	"github.com/taskflow/taskflow/internal/common/errors"
	"github.com/taskflow/taskflow/internal/common/logger"
	"github.com/taskflow/taskflow/internal/dispatch"
)

// Handler contains the HTTP handlers for the board and auth APIs.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	boards     *boardstore.Store
	sessions   *authstore.Store
	logger     *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(d *dispatch.Dispatcher, boards *boardstore.Store, sessions *authstore.Store, log *logger.Logger) *Handler {
	return &Handler{
		dispatcher: d,
		boards:     boards,
		sessions:   sessions,
		logger:     log,
	}
}

// respondError translates dispatcher errors into HTTP responses. Superseded
// flights are reported as 409 without logging noise: they are the normal
// outcome of latest-wins sequencing.
func (h *Handler) respondError(c *gin.Context, err error) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	h.logger.Error("unhandled request error", zap.Error(err))
	appErr = errors.InternalError("internal error", err)
	c.JSON(appErr.HTTPStatus, appErr)
}

// Board endpoints

// LoadBoard performs the one-shot startup load.
// POST /api/v1/board/load
func (h *Handler) LoadBoard(c *gin.Context) {
	board, err := h.dispatcher.LoadBoard(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	_, flags := h.boards.Snapshot()
	c.JSON(http.StatusOK, BoardResponse{
		Sections: board.Sections,
		Tasks:    board.Tasks,
		Flags:    flags,
	})
}

// GetBoard returns the current board snapshot and flags.
// GET /api/v1/board
func (h *Handler) GetBoard(c *gin.Context) {
	board, flags := h.boards.Snapshot()
	c.JSON(http.StatusOK, BoardResponse{
		Sections: board.Sections,
		Tasks:    board.Tasks,
		Flags:    flags,
	})
}

// AddSection creates a new section
// POST /api/v1/board/sections
func (h *Handler) AddSection(c *gin.Context) {
	var req AddSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	section, err := h.dispatcher.AddSection(c.Request.Context(), req.Title)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, section)
}

// RenameSection updates a section title
// PUT /api/v1/board/sections/:sectionId
func (h *Handler) RenameSection(c *gin.Context) {
	sectionID := c.Param("sectionId")

	var req RenameSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if err := h.dispatcher.RenameSection(c.Request.Context(), sectionID, req.Title); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteSection removes a section and its tasks
// DELETE /api/v1/board/sections/:sectionId
func (h *Handler) DeleteSection(c *gin.Context) {
	sectionID := c.Param("sectionId")

	if err := h.dispatcher.DeleteSection(c.Request.Context(), sectionID); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ReorderSections replaces the section ordering
// PUT /api/v1/board/sections/reorder
func (h *Handler) ReorderSections(c *gin.Context) {
	var req ReorderSectionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if err := h.dispatcher.ReorderSections(c.Request.Context(), req.Sections); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// AddTask creates a task at the end of a section
// POST /api/v1/board/sections/:sectionId/tasks
func (h *Handler) AddTask(c *gin.Context) {
	sectionID := c.Param("sectionId")

	var req AddTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	task, err := h.dispatcher.AddTask(c.Request.Context(), sectionID, req.Title, req.Description)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, task)
}

// UpdateTask shallow-merges updates into a task. A missing task yields 204
// with nothing applied.
// PUT /api/v1/board/sections/:sectionId/tasks/:taskId
func (h *Handler) UpdateTask(c *gin.Context) {
	sectionID := c.Param("sectionId")
	taskID := c.Param("taskId")

	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	updates := boardstore.TaskUpdates{
		Title:       req.Title,
		Description: req.Description,
		IsFavorite:  req.IsFavorite,
	}

	task, found, err := h.dispatcher.UpdateTask(c.Request.Context(), sectionID, taskID, updates)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !found {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, task)
}

// DeleteTask removes a task. A missing task yields 204 with nothing removed.
// DELETE /api/v1/board/sections/:sectionId/tasks/:taskId
func (h *Handler) DeleteTask(c *gin.Context) {
	sectionID := c.Param("sectionId")
	taskID := c.Param("taskId")

	if _, err := h.dispatcher.DeleteTask(c.Request.Context(), sectionID, taskID); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// MoveTask relocates a task between or within sections
// PUT /api/v1/board/tasks/move
func (h *Handler) MoveTask(c *gin.Context) {
	var req MoveTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	task, err := h.dispatcher.MoveTask(
		c.Request.Context(),
		req.SourceSectionID,
		req.DestSectionID,
		*req.SourceIndex,
		*req.DestIndex,
	)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// ReorderTasks replaces one section's task list
// PUT /api/v1/board/sections/:sectionId/tasks/reorder
func (h *Handler) ReorderTasks(c *gin.Context) {
	sectionID := c.Param("sectionId")

	var req ReorderTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if err := h.dispatcher.ReorderTasks(c.Request.Context(), sectionID, req.Tasks); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Read views

// ListTasks returns every task on the board in display order.
// GET /api/v1/tasks
func (h *Handler) ListTasks(c *gin.Context) {
	tasks := h.boards.AllTasks()
	c.JSON(http.StatusOK, TasksResponse{Tasks: tasks, Total: len(tasks)})
}

// ListFavorites returns the favorited tasks in display order.
// GET /api/v1/tasks/favorites
func (h *Handler) ListFavorites(c *gin.Context) {
	tasks := h.boards.Favorites()
	c.JSON(http.StatusOK, TasksResponse{Tasks: tasks, Total: len(tasks)})
}

// ListCalendar returns tasks created on the given day, defaulting to today.
// GET /api/v1/tasks/calendar?date=YYYY-MM-DD
func (h *Handler) ListCalendar(c *gin.Context) {
	day := time.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			appErr := errors.Validation("date", "must be YYYY-MM-DD")
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		day = parsed
	}

	tasks := h.boards.TasksOn(day)
	c.JSON(http.StatusOK, TasksResponse{Tasks: tasks, Total: len(tasks)})
}

// SearchTasks filters tasks by title or description, case-insensitively.
// The query is also recorded as the board's current filter text.
// GET /api/v1/tasks/search?q=...
func (h *Handler) SearchTasks(c *gin.Context) {
	q := c.Query("q")
	h.boards.SetSearchQuery(q)

	tasks := h.boards.Search(q)
	c.JSON(http.StatusOK, TasksResponse{Tasks: tasks, Total: len(tasks)})
}

// Auth endpoints

// Login authenticates and installs a session
// POST /api/v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	user, session, err := h.dispatcher.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":    user,
		"session": session,
	})
}

// RefreshToken replaces the session with a freshly minted one
// POST /api/v1/auth/refresh
func (h *Handler) RefreshToken(c *gin.Context) {
	session, err := h.dispatcher.RefreshToken(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// Logout clears the session and persisted records
// POST /api/v1/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	if err := h.dispatcher.Logout(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetSession returns the current auth state
// GET /api/v1/auth/session
func (h *Handler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, SessionResponse{State: h.sessions.State()})
}

// UpdateProfile merges username/email into the current user
// PUT /api/v1/auth/profile
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	user, err := h.dispatcher.UpdateProfile(c.Request.Context(), req.Username, req.Email)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// HealthCheck returns service health
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
