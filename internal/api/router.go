package api

import (
	"github.com/gin-gonic/gin"

	authstore "github.com/taskflow/taskflow/internal/auth/store"
	boardstore "github.com/taskflow/taskflow/internal/board/store"
	"github.com/taskflow/taskflow/internal/common/logger"
	"github.com/taskflow/taskflow/internal/dispatch"
)

// SetupRoutes configures the board and auth API routes
func SetupRoutes(
	router *gin.RouterGroup,
	d *dispatch.Dispatcher,
	boards *boardstore.Store,
	sessions *authstore.Store,
	log *logger.Logger,
) {
	handler := NewHandler(d, boards, sessions, log)

	// Board routes
	board := router.Group("/board")
	{
		board.POST("/load", handler.LoadBoard)
		board.GET("", handler.GetBoard)

		board.POST("/sections", handler.AddSection)
		board.PUT("/sections/reorder", handler.ReorderSections)
		board.PUT("/sections/:sectionId", handler.RenameSection)
		board.DELETE("/sections/:sectionId", handler.DeleteSection)

		board.POST("/sections/:sectionId/tasks", handler.AddTask)
		board.PUT("/sections/:sectionId/tasks/reorder", handler.ReorderTasks)
		board.PUT("/sections/:sectionId/tasks/:taskId", handler.UpdateTask)
		board.DELETE("/sections/:sectionId/tasks/:taskId", handler.DeleteTask)
		board.PUT("/tasks/move", handler.MoveTask)
	}

	// Read views
	tasks := router.Group("/tasks")
	{
		tasks.GET("", handler.ListTasks)
		tasks.GET("/favorites", handler.ListFavorites)
		tasks.GET("/calendar", handler.ListCalendar)
		tasks.GET("/search", handler.SearchTasks)
	}

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/login", handler.Login)
		auth.POST("/refresh", handler.RefreshToken)
		auth.POST("/logout", handler.Logout)
		auth.GET("/session", handler.GetSession)
		auth.PUT("/profile", handler.UpdateProfile)
	}
}
