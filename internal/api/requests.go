// Package api provides the HTTP facade the view layer consumes: the intent
// surface, the read views, and the websocket outcome stream.
package api

import (
	authstore "github.com/taskflow/taskflow/internal/auth/store"
	"github.com/taskflow/taskflow/internal/board/models"
	"github.com/taskflow/taskflow/internal/board/store"
)

// LoginRequest for authenticating a user
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest for merging profile fields
type UpdateProfileRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// AddSectionRequest for creating a section
type AddSectionRequest struct {
	Title string `json:"title" binding:"required"`
}

// RenameSectionRequest for renaming a section
type RenameSectionRequest struct {
	Title string `json:"title" binding:"required"`
}

// ReorderSectionsRequest carries the full replacement section ordering
type ReorderSectionsRequest struct {
	Sections []models.Section `json:"sections" binding:"required"`
}

// AddTaskRequest for creating a task
type AddTaskRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// UpdateTaskRequest is a partial task update; favoriting is an update
// with isFavorite toggled by the caller
type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	IsFavorite  *bool   `json:"isFavorite,omitempty"`
}

// MoveTaskRequest for relocating a task between (or within) sections
type MoveTaskRequest struct {
	SourceSectionID string `json:"sourceSectionId" binding:"required"`
	DestSectionID   string `json:"destSectionId" binding:"required"`
	SourceIndex     *int   `json:"sourceIndex" binding:"required"`
	DestIndex       *int   `json:"destIndex" binding:"required"`
}

// ReorderTasksRequest carries the full replacement task list for a section
type ReorderTasksRequest struct {
	Tasks []models.Task `json:"tasks" binding:"required"`
}

// Response types

// BoardResponse is the board snapshot plus the sequencer flags
type BoardResponse struct {
	Sections []models.Section         `json:"sections"`
	Tasks    map[string][]models.Task `json:"tasks"`
	Flags    store.Flags              `json:"flags"`
}

// TasksResponse for the read views
type TasksResponse struct {
	Tasks []models.Task `json:"tasks"`
	Total int           `json:"total"`
}

// SessionResponse is the current auth state
type SessionResponse struct {
	State authstore.State `json:"state"`
}
