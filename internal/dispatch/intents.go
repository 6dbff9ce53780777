package dispatch

// Intent identifies a mutating request routed through the dispatcher.
// Latest-wins cancellation is scoped per intent type: a new dispatch of an
// intent supersedes any in-flight instance of the same intent.
type Intent string

// Board intents
const (
	IntentLoadBoard       Intent = "loadKanban"
	IntentAddSection      Intent = "addSection"
	IntentRenameSection   Intent = "updateSection"
	IntentDeleteSection   Intent = "deleteSection"
	IntentReorderSections Intent = "reorderSections"
	IntentAddTask         Intent = "addTask"
	IntentUpdateTask      Intent = "updateTask"
	IntentDeleteTask      Intent = "deleteTask"
	IntentMoveTask        Intent = "moveTask"
	IntentReorderTasks    Intent = "reorderTasks"
)

// Auth intents
const (
	IntentLogin         Intent = "login"
	IntentRefreshToken  Intent = "refreshToken"
	IntentLogout        Intent = "logout"
	IntentUpdateProfile Intent = "updateProfile"
)

// Event subjects published on the outcome bus.
const (
	SubjectBoardPrefix = "board."
	SubjectAuthPrefix  = "auth."
)
