// Package dispatch implements the effect sequencer. Every mutating intent
// runs here: mark pending, perform the simulated asynchronous work, apply
// the outcome to the owning store, and re-serialize the affected records
// through the persistence gateway. Stores never do I/O; the sequencer
// never retains state beyond its in-flight bookkeeping.
package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/auth"
	authmodels "github.com/taskflow/taskflow/internal/auth/models"
	authstore "github.com/taskflow/taskflow/internal/auth/store"
	boardmodels "github.com/taskflow/taskflow/internal/board/models"
	boardstore "github.com/taskflow/taskflow/internal/board/store"
	"github.com/taskflow/taskflow/internal/common/errors"
	"github.com/taskflow/taskflow/internal/common/ids"
	"github.com/taskflow/taskflow/internal/common/logger"
	"github.com/taskflow/taskflow/internal/events/bus"
	"github.com/taskflow/taskflow/internal/storage"
)

// Config holds the artificial delay model. The shorter reorder delay keeps
// drag gestures responsive.
type Config struct {
	SaveDelay    time.Duration
	ReorderDelay time.Duration
	Clock        func() time.Time
}

// Dispatcher sequences intents with per-intent-type latest-wins semantics.
type Dispatcher struct {
	boards   *boardstore.Store
	sessions *authstore.Store
	gateway  *storage.Gateway
	authn    *auth.Authenticator
	bus      bus.EventBus
	ids      ids.Generator
	logger   *logger.Logger

	saveDelay    time.Duration
	reorderDelay time.Duration
	clock        func() time.Time

	mu      sync.Mutex
	gens    map[Intent]uint64
	cancels map[Intent]context.CancelFunc
	loaded  bool

	// commitMu serializes outcome application + persistence so a commit is
	// atomic with respect to the generation check.
	commitMu sync.Mutex
}

// NewDispatcher creates the effect sequencer.
func NewDispatcher(
	boards *boardstore.Store,
	sessions *authstore.Store,
	gateway *storage.Gateway,
	authn *auth.Authenticator,
	eventBus bus.EventBus,
	gen ids.Generator,
	cfg Config,
	log *logger.Logger,
) *Dispatcher {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Dispatcher{
		boards:       boards,
		sessions:     sessions,
		gateway:      gateway,
		authn:        authn,
		bus:          eventBus,
		ids:          gen,
		logger:       log,
		saveDelay:    cfg.SaveDelay,
		reorderDelay: cfg.ReorderDelay,
		clock:        clock,
		gens:         make(map[Intent]uint64),
		cancels:      make(map[Intent]context.CancelFunc),
	}
}

// begin registers a new flight for the intent, cancelling any in-flight
// instance of the same intent type.
func (d *Dispatcher) begin(parent context.Context, intent Intent) (context.Context, context.CancelFunc, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cancel, ok := d.cancels[intent]; ok {
		cancel()
	}
	d.gens[intent]++
	gen := d.gens[intent]

	ctx, cancel := context.WithCancel(parent)
	d.cancels[intent] = cancel
	return ctx, cancel, gen
}

// current reports whether gen is still the latest flight for the intent.
func (d *Dispatcher) current(intent Intent, gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gens[intent] == gen
}

// sleep models the simulated API delay. It resolves early when the flight
// is superseded or the caller goes away.
func (d *Dispatcher) sleep(ctx context.Context, intent Intent, gen uint64, delay time.Duration) error {
	if delay <= 0 {
		if err := ctx.Err(); err != nil {
			return d.cancelError(intent, gen, err)
		}
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return d.cancelError(intent, gen, ctx.Err())
	}
}

func (d *Dispatcher) cancelError(intent Intent, gen uint64, cause error) error {
	if !d.current(intent, gen) {
		return errors.Superseded(string(intent))
	}
	return errors.Wrap(cause, string(intent)+" cancelled")
}

// abortSave resolves the pending flag when a board flight ends before its
// commit. A superseded flight leaves the flags to its successor.
func (d *Dispatcher) abortSave(err error) error {
	if !errors.IsSuperseded(err) {
		d.boards.FailSave(errMessage(err))
	}
	return err
}

// requireLoaded gates every board mutation until the one-shot load has run.
func (d *Dispatcher) requireLoaded() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		return errors.Conflict("board not loaded")
	}
	return nil
}

func (d *Dispatcher) publish(subject, eventType string, data map[string]interface{}) {
	event := bus.NewEvent(eventType, "dispatcher", data)
	if err := d.bus.Publish(context.Background(), subject, event); err != nil {
		d.logger.Warn("failed to publish outcome event",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}

// commitBoard applies a board mutation and re-serializes the entire board.
// A superseded flight is suppressed here: its mutation is never applied and
// nothing is written to the gateway.
func (d *Dispatcher) commitBoard(ctx context.Context, intent Intent, gen uint64, apply func() error) error {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()

	if !d.current(intent, gen) {
		return errors.Superseded(string(intent))
	}

	if err := apply(); err != nil {
		d.boards.FailSave(err.Error())
		d.publish(SubjectBoardPrefix+string(intent), "saveError", map[string]interface{}{
			"intent": string(intent),
			"error":  err.Error(),
		})
		return err
	}

	// The mutation is applied; the write must not be aborted by a late
	// cancellation, a newer flight overwrites the record anyway.
	snapshot, _ := d.boards.Snapshot()
	if err := d.gateway.SaveBoard(context.WithoutCancel(ctx), snapshot); err != nil {
		perr := errors.Persistence("failed to save board", err)
		d.boards.FailSave(perr.Message)
		d.publish(SubjectBoardPrefix+string(intent), "saveError", map[string]interface{}{
			"intent": string(intent),
			"error":  perr.Message,
		})
		return perr
	}

	d.boards.CompleteSave()
	d.publish(SubjectBoardPrefix+string(intent), string(intent)+"Success", map[string]interface{}{
		"intent": string(intent),
	})
	return nil
}

// LoadBoard performs the one-shot startup load: read the persisted board,
// fall back to the default three-section board (persisting it immediately),
// and install the result. Mutations are rejected until this has completed.
func (d *Dispatcher) LoadBoard(ctx context.Context) (*boardmodels.Board, error) {
	d.mu.Lock()
	if d.loaded {
		d.mu.Unlock()
		return nil, errors.Conflict("board already loaded")
	}
	d.mu.Unlock()

	fctx, cancel, gen := d.begin(ctx, IntentLoadBoard)
	defer cancel()

	d.boards.BeginLoad()
	if err := d.sleep(fctx, IntentLoadBoard, gen, d.saveDelay); err != nil {
		d.boards.FailLoad(err.Error())
		return nil, err
	}

	board, err := d.gateway.LoadBoard(fctx)
	if err == storage.ErrNotFound {
		board = boardmodels.DefaultBoard()
		if err := d.gateway.SaveBoard(fctx, board); err != nil {
			perr := errors.Persistence("failed to persist default board", err)
			d.boards.FailLoad(perr.Message)
			d.publish(SubjectBoardPrefix+string(IntentLoadBoard), "loadKanbanFailure", map[string]interface{}{
				"error": perr.Message,
			})
			return nil, perr
		}
	} else if err != nil {
		perr := errors.Persistence("failed to load board", err)
		d.boards.FailLoad(perr.Message)
		d.publish(SubjectBoardPrefix+string(IntentLoadBoard), "loadKanbanFailure", map[string]interface{}{
			"error": perr.Message,
		})
		return nil, perr
	}

	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	if !d.current(IntentLoadBoard, gen) {
		return nil, errors.Superseded(string(IntentLoadBoard))
	}
	if err := d.boards.Load(board); err != nil {
		d.boards.FailLoad(err.Error())
		return nil, err
	}

	d.mu.Lock()
	d.loaded = true
	d.mu.Unlock()

	d.publish(SubjectBoardPrefix+string(IntentLoadBoard), "loadKanbanSuccess", map[string]interface{}{
		"sections": len(board.Sections),
		"tasks":    board.TaskCount(),
	})
	d.logger.Info("board loaded",
		zap.Int("sections", len(board.Sections)),
		zap.Int("tasks", board.TaskCount()),
	)
	return board, nil
}

// AddSection creates a section with a fresh id and the next order value.
func (d *Dispatcher) AddSection(ctx context.Context, title string) (*boardmodels.Section, error) {
	if err := d.requireLoaded(); err != nil {
		return nil, err
	}
	if title == "" {
		return nil, errors.Validation("title", "must not be empty")
	}

	fctx, cancel, gen := d.begin(ctx, IntentAddSection)
	defer cancel()

	d.boards.BeginSave()
	if err := d.sleep(fctx, IntentAddSection, gen, d.saveDelay); err != nil {
		return nil, d.abortSave(err)
	}

	var section boardmodels.Section
	err := d.commitBoard(fctx, IntentAddSection, gen, func() error {
		snapshot, _ := d.boards.Snapshot()
		section = boardmodels.Section{
			ID:    d.ids.NewSectionID(),
			Title: title,
			Order: snapshot.NextOrder(),
		}
		return d.boards.AddSection(section)
	})
	if err != nil {
		return nil, err
	}
	return &section, nil
}

// RenameSection updates a section title. An unchanged title still makes the
// round trip; validation is the caller's responsibility.
func (d *Dispatcher) RenameSection(ctx context.Context, id, title string) error {
	if err := d.requireLoaded(); err != nil {
		return err
	}
	if title == "" {
		return errors.Validation("title", "must not be empty")
	}

	fctx, cancel, gen := d.begin(ctx, IntentRenameSection)
	defer cancel()

	d.boards.BeginSave()
	if err := d.sleep(fctx, IntentRenameSection, gen, d.saveDelay); err != nil {
		return d.abortSave(err)
	}
	return d.commitBoard(fctx, IntentRenameSection, gen, func() error {
		return d.boards.RenameSection(id, title)
	})
}

// DeleteSection removes a section and discards its tasks.
func (d *Dispatcher) DeleteSection(ctx context.Context, id string) error {
	if err := d.requireLoaded(); err != nil {
		return err
	}

	fctx, cancel, gen := d.begin(ctx, IntentDeleteSection)
	defer cancel()

	d.boards.BeginSave()
	if err := d.sleep(fctx, IntentDeleteSection, gen, d.saveDelay); err != nil {
		return d.abortSave(err)
	}
	return d.commitBoard(fctx, IntentDeleteSection, gen, func() error {
		return d.boards.DeleteSection(id)
	})
}

// ReorderSections wholesale-replaces the section ordering.
func (d *Dispatcher) ReorderSections(ctx context.Context, sections []boardmodels.Section) error {
	if err := d.requireLoaded(); err != nil {
		return err
	}

	fctx, cancel, gen := d.begin(ctx, IntentReorderSections)
	defer cancel()

	d.boards.BeginSave()
	if err := d.sleep(fctx, IntentReorderSections, gen, d.reorderDelay); err != nil {
		return d.abortSave(err)
	}
	return d.commitBoard(fctx, IntentReorderSections, gen, func() error {
		return d.boards.ReorderSections(sections)
	})
}

// AddTask creates a task at the end of the section's list.
func (d *Dispatcher) AddTask(ctx context.Context, sectionID, title, description string) (*boardmodels.Task, error) {
	if err := d.requireLoaded(); err != nil {
		return nil, err
	}
	if title == "" {
		return nil, errors.Validation("title", "must not be empty")
	}

	fctx, cancel, gen := d.begin(ctx, IntentAddTask)
	defer cancel()

	d.boards.BeginSave()
	if err := d.sleep(fctx, IntentAddTask, gen, d.saveDelay); err != nil {
		return nil, d.abortSave(err)
	}

	task := boardmodels.NewTask(d.ids.NewTaskID(), sectionID, title, description, d.clock())
	err := d.commitBoard(fctx, IntentAddTask, gen, func() error {
		return d.boards.AddTask(sectionID, task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask shallow-merges updates into a task and refreshes its UpdatedAt.
// A missing task is a no-op; the returned task is zero in that case.
func (d *Dispatcher) UpdateTask(ctx context.Context, sectionID, taskID string, updates boardstore.TaskUpdates) (boardmodels.Task, bool, error) {
	if err := d.requireLoaded(); err != nil {
		return boardmodels.Task{}, false, err
	}

	fctx, cancel, gen := d.begin(ctx, IntentUpdateTask)
	defer cancel()

	d.boards.BeginSave()
	if err := d.sleep(fctx, IntentUpdateTask, gen, d.saveDelay); err != nil {
		return boardmodels.Task{}, false, d.abortSave(err)
	}

	var (
		task  boardmodels.Task
		found bool
	)
	err := d.commitBoard(fctx, IntentUpdateTask, gen, func() error {
		task, found = d.boards.UpdateTask(sectionID, taskID, updates, d.clock())
		return nil
	})
	return task, found, err
}

// DeleteTask removes a task by id. A missing task is a no-op.
func (d *Dispatcher) DeleteTask(ctx context.Context, sectionID, taskID string) (bool, error) {
	if err := d.requireLoaded(); err != nil {
		return false, err
	}

	fctx, cancel, gen := d.begin(ctx, IntentDeleteTask)
	defer cancel()

	d.boards.BeginSave()
	if err := d.sleep(fctx, IntentDeleteTask, gen, d.saveDelay); err != nil {
		return false, d.abortSave(err)
	}

	var removed bool
	err := d.commitBoard(fctx, IntentDeleteTask, gen, func() error {
		removed = d.boards.DeleteTask(sectionID, taskID)
		return nil
	})
	return removed, err
}

// MoveTask relocates the task at sourceIndex to destIndex in the
// destination section, rewriting its status.
func (d *Dispatcher) MoveTask(ctx context.Context, sourceSectionID, destSectionID string, sourceIndex, destIndex int) (*boardmodels.Task, error) {
	if err := d.requireLoaded(); err != nil {
		return nil, err
	}

	fctx, cancel, gen := d.begin(ctx, IntentMoveTask)
	defer cancel()

	d.boards.BeginSave()
	if err := d.sleep(fctx, IntentMoveTask, gen, d.reorderDelay); err != nil {
		return nil, d.abortSave(err)
	}

	var task boardmodels.Task
	err := d.commitBoard(fctx, IntentMoveTask, gen, func() error {
		var applyErr error
		task, applyErr = d.boards.MoveTask(sourceSectionID, destSectionID, sourceIndex, destIndex)
		return applyErr
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// ReorderTasks wholesale-replaces one section's task list.
func (d *Dispatcher) ReorderTasks(ctx context.Context, sectionID string, tasks []boardmodels.Task) error {
	if err := d.requireLoaded(); err != nil {
		return err
	}

	fctx, cancel, gen := d.begin(ctx, IntentReorderTasks)
	defer cancel()

	d.boards.BeginSave()
	if err := d.sleep(fctx, IntentReorderTasks, gen, d.reorderDelay); err != nil {
		return d.abortSave(err)
	}
	return d.commitBoard(fctx, IntentReorderTasks, gen, func() error {
		return d.boards.ReorderTasks(sectionID, tasks)
	})
}

// Login validates credentials against the simulated collaborator, persists
// the session and user records, and installs them in the session manager.
func (d *Dispatcher) Login(ctx context.Context, username, password string) (*authmodels.User, *authmodels.Session, error) {
	fctx, cancel, gen := d.begin(ctx, IntentLogin)
	defer cancel()

	d.sessions.BeginLogin()
	if err := d.sleep(fctx, IntentLogin, gen, d.saveDelay); err != nil {
		if !errors.IsSuperseded(err) {
			d.sessions.FailLogin(errMessage(err))
		}
		return nil, nil, err
	}

	user, session, err := d.authn.Login(username, password)
	if err != nil {
		d.sessions.FailLogin(errMessage(err))
		d.publish(SubjectAuthPrefix+string(IntentLogin), "loginFailure", map[string]interface{}{
			"error": errMessage(err),
		})
		return nil, nil, err
	}

	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	if !d.current(IntentLogin, gen) {
		return nil, nil, errors.Superseded(string(IntentLogin))
	}

	wctx := context.WithoutCancel(fctx)
	if err := d.gateway.SaveSession(wctx, &session); err != nil {
		perr := errors.Persistence("failed to persist session", err)
		d.sessions.FailLogin(perr.Message)
		return nil, nil, perr
	}
	if err := d.gateway.SaveUser(wctx, &user); err != nil {
		perr := errors.Persistence("failed to persist user", err)
		d.sessions.FailLogin(perr.Message)
		return nil, nil, perr
	}

	d.sessions.CompleteLogin(user, session)
	d.publish(SubjectAuthPrefix+string(IntentLogin), "loginSuccess", map[string]interface{}{
		"username": user.Username,
	})
	d.logger.Info("user logged in", zap.String("username", user.Username))
	return &user, &session, nil
}

// RefreshToken replaces the persisted session with a freshly minted one.
// It fails fast, without the collaborator call, when no session is
// persisted, the refresh token is missing, or the refresh token is expired.
// Any failure is a hard logout.
func (d *Dispatcher) RefreshToken(ctx context.Context) (*authmodels.Session, error) {
	fctx, cancel, gen := d.begin(ctx, IntentRefreshToken)
	defer cancel()

	d.sessions.BeginRefresh()

	persisted, err := d.gateway.LoadSession(fctx)
	if err != nil || persisted.RefreshToken == "" || persisted.RefreshExpired(d.clock()) {
		return nil, d.refreshFailure(fctx, "No valid refresh token")
	}

	if err := d.sleep(fctx, IntentRefreshToken, gen, d.saveDelay); err != nil {
		d.sessions.CancelRefresh()
		return nil, err
	}

	session, err := d.authn.Refresh(persisted.RefreshToken)
	if err != nil {
		return nil, d.refreshFailure(fctx, errMessage(err))
	}

	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	if !d.current(IntentRefreshToken, gen) {
		return nil, errors.Superseded(string(IntentRefreshToken))
	}

	if err := d.gateway.SaveSession(context.WithoutCancel(fctx), &session); err != nil {
		return nil, d.refreshFailure(fctx, "failed to persist refreshed session")
	}

	d.sessions.CompleteRefresh(session)
	d.publish(SubjectAuthPrefix+string(IntentRefreshToken), "refreshTokenSuccess", nil)
	return &session, nil
}

// refreshFailure performs the hard logout a failed refresh requires.
func (d *Dispatcher) refreshFailure(ctx context.Context, message string) error {
	wctx := context.WithoutCancel(ctx)
	if err := d.gateway.DeleteSession(wctx); err != nil {
		d.logger.Warn("failed to delete session record", zap.Error(err))
	}
	if err := d.gateway.DeleteUser(wctx); err != nil {
		d.logger.Warn("failed to delete user record", zap.Error(err))
	}
	d.sessions.FailRefresh()
	d.publish(SubjectAuthPrefix+string(IntentRefreshToken), "refreshTokenFailure", map[string]interface{}{
		"error": message,
	})
	return errors.Auth(message)
}

// Logout clears the auth state and both persisted records. There is no
// simulated collaborator for logout, so no delay applies.
func (d *Dispatcher) Logout(ctx context.Context) error {
	_, cancel, _ := d.begin(ctx, IntentLogout)
	defer cancel()

	wctx := context.WithoutCancel(ctx)
	if err := d.gateway.DeleteSession(wctx); err != nil {
		return errors.Persistence("failed to delete session record", err)
	}
	if err := d.gateway.DeleteUser(wctx); err != nil {
		return errors.Persistence("failed to delete user record", err)
	}

	d.sessions.Logout()
	d.publish(SubjectAuthPrefix+string(IntentLogout), "logout", nil)
	return nil
}

// UpdateProfile merges username/email into the current user and rewrites
// the persisted user record. The session is untouched.
func (d *Dispatcher) UpdateProfile(ctx context.Context, username, email string) (*authmodels.User, error) {
	_, cancel, _ := d.begin(ctx, IntentUpdateProfile)
	defer cancel()

	user, ok := d.sessions.UpdateProfile(username, email)
	if !ok {
		return nil, errors.Auth("not authenticated")
	}

	if err := d.gateway.SaveUser(context.WithoutCancel(ctx), &user); err != nil {
		return nil, errors.Persistence("failed to persist user", err)
	}

	d.publish(SubjectAuthPrefix+string(IntentUpdateProfile), "updateProfile", map[string]interface{}{
		"username": user.Username,
	})
	return &user, nil
}

func errMessage(err error) string {
	if appErr, ok := err.(*errors.AppError); ok {
		return appErr.Message
	}
	return err.Error()
}
