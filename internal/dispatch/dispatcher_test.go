package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/taskflow/taskflow/internal/auth"
	authstore "github.com/taskflow/taskflow/internal/auth/store"
	boardmodels "github.com/taskflow/taskflow/internal/board/models"
	boardstore "github.com/taskflow/taskflow/internal/board/store"
	"github.com/taskflow/taskflow/internal/common/errors"
	"github.com/taskflow/taskflow/internal/common/ids"
	"github.com/taskflow/taskflow/internal/common/logger"
	"github.com/taskflow/taskflow/internal/events/bus"
	"github.com/taskflow/taskflow/internal/storage"
)

// testClock is a manually advanced clock shared by a test's collaborators.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	dispatcher *Dispatcher
	boards     *boardstore.Store
	sessions   *authstore.Store
	gateway    *storage.Gateway
	store      *storage.MemoryStore
	bus        *bus.MemoryEventBus
	clock      *testClock
}

func setupDispatcher(t *testing.T, cfg Config) *fixture {
	t.Helper()

	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	clock := newTestClock()
	if cfg.Clock == nil {
		cfg.Clock = clock.Now
	}

	store := storage.NewMemoryStore()
	gateway := storage.NewGateway(store)
	eventBus := bus.NewMemoryEventBus(log)
	boards := boardstore.NewStore()
	sessions := authstore.NewStore()
	authn := auth.NewAuthenticator(auth.DefaultPolicy(), ids.NewSequenceGenerator(), clock.Now)

	d := NewDispatcher(boards, sessions, gateway, authn, eventBus,
		ids.NewSequenceGenerator(), cfg, log)

	return &fixture{
		dispatcher: d,
		boards:     boards,
		sessions:   sessions,
		gateway:    gateway,
		store:      store,
		bus:        eventBus,
		clock:      clock,
	}
}

func loadBoard(t *testing.T, f *fixture) {
	t.Helper()
	if _, err := f.dispatcher.LoadBoard(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
}

func TestLoadBoardInstallsAndPersistsDefault(t *testing.T) {
	f := setupDispatcher(t, Config{})
	ctx := context.Background()

	board, err := f.dispatcher.LoadBoard(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(board.Sections) != 3 {
		t.Errorf("expected the default 3 sections, got %d", len(board.Sections))
	}

	// The default board is persisted immediately, not on first mutation
	persisted, err := f.gateway.LoadBoard(ctx)
	if err != nil {
		t.Fatalf("default board was not persisted: %v", err)
	}
	if len(persisted.Sections) != 3 {
		t.Errorf("persisted default has %d sections", len(persisted.Sections))
	}

	// The store now serves the installed board
	snapshot, flags := f.boards.Snapshot()
	if len(snapshot.Sections) != 3 || flags.IsLoading {
		t.Errorf("store not settled after load: %d sections, flags %+v", len(snapshot.Sections), flags)
	}
}

func TestLoadBoardIsOneShot(t *testing.T) {
	f := setupDispatcher(t, Config{})
	loadBoard(t, f)

	if _, err := f.dispatcher.LoadBoard(context.Background()); err == nil {
		t.Error("second load should be rejected")
	}
}

func TestLoadBoardPrefersPersistedState(t *testing.T) {
	f := setupDispatcher(t, Config{})
	ctx := context.Background()

	seeded := setupSeededBoard()
	if err := f.gateway.SaveBoard(ctx, seeded); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	board, err := f.dispatcher.LoadBoard(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(board.Sections) != 1 || board.Sections[0].Title != "Only" {
		t.Errorf("persisted board should win over the default: %+v", board.Sections)
	}
}

func TestMutationsGatedUntilLoaded(t *testing.T) {
	f := setupDispatcher(t, Config{})
	ctx := context.Background()

	if _, err := f.dispatcher.AddSection(ctx, "Blocked"); err == nil {
		t.Error("mutation before load should be rejected")
	}
	if _, err := f.dispatcher.AddTask(ctx, "section-1", "t", ""); err == nil {
		t.Error("mutation before load should be rejected")
	}
	if err := f.dispatcher.DeleteSection(ctx, "section-1"); err == nil {
		t.Error("mutation before load should be rejected")
	}
}

func TestAddSectionAssignsIDAndOrder(t *testing.T) {
	f := setupDispatcher(t, Config{})
	loadBoard(t, f)
	ctx := context.Background()

	section, err := f.dispatcher.AddSection(ctx, "Blocked")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if section.ID != "section-1" {
		t.Errorf("expected generated id section-1, got %s", section.ID)
	}
	if section.Order != 3 {
		t.Errorf("expected order 3 after the default sections, got %d", section.Order)
	}

	if _, err := f.dispatcher.AddSection(ctx, ""); !errors.IsValidation(err) {
		t.Errorf("empty title should fail validation, got %v", err)
	}
}

func TestEveryMutationReserializesTheBoard(t *testing.T) {
	f := setupDispatcher(t, Config{})
	loadBoard(t, f)
	ctx := context.Background()

	task, err := f.dispatcher.AddTask(ctx, "section-1", "write tests", "")
	if err != nil {
		t.Fatalf("add task failed: %v", err)
	}

	persisted, err := f.gateway.LoadBoard(ctx)
	if err != nil {
		t.Fatalf("load persisted failed: %v", err)
	}
	if len(persisted.Tasks["section-1"]) != 1 || persisted.Tasks["section-1"][0].ID != task.ID {
		t.Error("mutation was not re-serialized to the record store")
	}

	if _, err := f.dispatcher.MoveTask(ctx, "section-1", "section-2", 0, 0); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	persisted, _ = f.gateway.LoadBoard(ctx)
	if len(persisted.Tasks["section-2"]) != 1 {
		t.Error("move was not re-serialized")
	}
	if persisted.Tasks["section-2"][0].Status != "section-2" {
		t.Error("persisted task status should follow the destination section")
	}
}

func TestAddThenMoveScenario(t *testing.T) {
	f := setupDispatcher(t, Config{})
	loadBoard(t, f)
	ctx := context.Background()

	task, err := f.dispatcher.AddTask(ctx, "section-1", "implement feature", "details")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if task.Status != "section-1" {
		t.Errorf("new task status should be its section, got %q", task.Status)
	}

	moved, err := f.dispatcher.MoveTask(ctx, "section-1", "section-3", 0, 0)
	if err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if moved.ID != task.ID || moved.Status != "section-3" {
		t.Errorf("unexpected moved task: %+v", moved)
	}

	snapshot, _ := f.boards.Snapshot()
	if len(snapshot.Tasks["section-1"]) != 0 || len(snapshot.Tasks["section-3"]) != 1 {
		t.Error("task should have left section-1 for section-3")
	}
	if err := snapshot.Validate(); err != nil {
		t.Errorf("board invariant violated: %v", err)
	}
}

func TestAddThenDeleteSectionRestoresState(t *testing.T) {
	f := setupDispatcher(t, Config{})
	loadBoard(t, f)
	ctx := context.Background()

	before, _ := f.boards.Snapshot()

	section, err := f.dispatcher.AddSection(ctx, "Temporary")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := f.dispatcher.DeleteSection(ctx, section.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	after, _ := f.boards.Snapshot()
	if len(after.Sections) != len(before.Sections) {
		t.Errorf("expected %d sections, got %d", len(before.Sections), len(after.Sections))
	}
	if _, ok := after.Tasks[section.ID]; ok {
		t.Error("deleted section's task list should be gone")
	}

	persisted, _ := f.gateway.LoadBoard(ctx)
	if persisted.HasSection(section.ID) {
		t.Error("deleted section should be gone from the record store too")
	}
}

func TestUpdateTaskAdvancesUpdatedAt(t *testing.T) {
	f := setupDispatcher(t, Config{})
	loadBoard(t, f)
	ctx := context.Background()

	task, err := f.dispatcher.AddTask(ctx, "section-1", "favorite me", "")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	f.clock.Advance(time.Minute)

	fav := true
	updated, found, err := f.dispatcher.UpdateTask(ctx, "section-1", task.ID, boardstore.TaskUpdates{IsFavorite: &fav})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !found {
		t.Fatal("task should be found")
	}
	if !updated.IsFavorite {
		t.Error("favorite flag not applied")
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Errorf("UpdatedAt should advance past CreatedAt: %v vs %v", updated.UpdatedAt, updated.CreatedAt)
	}
	if updated.Title != "favorite me" {
		t.Error("untouched fields must survive the merge")
	}
}

func TestUpdateAndDeleteMissingTaskAreNoOps(t *testing.T) {
	f := setupDispatcher(t, Config{})
	loadBoard(t, f)
	ctx := context.Background()

	title := "x"
	_, found, err := f.dispatcher.UpdateTask(ctx, "section-1", "task-missing", boardstore.TaskUpdates{Title: &title})
	if err != nil {
		t.Fatalf("update of missing task should not error: %v", err)
	}
	if found {
		t.Error("missing task should report not found")
	}

	removed, err := f.dispatcher.DeleteTask(ctx, "section-1", "task-missing")
	if err != nil {
		t.Fatalf("delete of missing task should not error: %v", err)
	}
	if removed {
		t.Error("missing task should report nothing removed")
	}
}

func TestMoveTaskBoundsRejection(t *testing.T) {
	f := setupDispatcher(t, Config{})
	loadBoard(t, f)
	ctx := context.Background()

	if _, err := f.dispatcher.MoveTask(ctx, "section-1", "section-2", 0, 0); !errors.IsBounds(err) {
		t.Errorf("expected bounds error moving from an empty list, got %v", err)
	}

	// A rejected move surfaces in the flags but leaves the board intact
	_, flags := f.boards.Snapshot()
	if flags.Error == "" {
		t.Error("rejected move should record an error message")
	}
	snapshot, _ := f.boards.Snapshot()
	if snapshot.TaskCount() != 0 {
		t.Error("rejected move must not mutate the board")
	}
}

func TestLatestWinsSupersedesInFlightIntent(t *testing.T) {
	f := setupDispatcher(t, Config{SaveDelay: 200 * time.Millisecond})
	// Load with zero delay first
	f.dispatcher.saveDelay = 0
	loadBoard(t, f)
	f.dispatcher.saveDelay = 200 * time.Millisecond
	ctx := context.Background()

	firstErr := make(chan error, 1)
	go func() {
		_, err := f.dispatcher.AddSection(ctx, "first")
		firstErr <- err
	}()

	time.Sleep(50 * time.Millisecond)

	section, err := f.dispatcher.AddSection(ctx, "second")
	if err != nil {
		t.Fatalf("second dispatch failed: %v", err)
	}
	if section.Title != "second" {
		t.Errorf("unexpected section: %+v", section)
	}

	if err := <-firstErr; !errors.IsSuperseded(err) {
		t.Errorf("first dispatch should be superseded, got %v", err)
	}

	// Only the winner's mutation is applied and persisted
	snapshot, flags := f.boards.Snapshot()
	if len(snapshot.Sections) != 4 {
		t.Errorf("expected 4 sections, got %d", len(snapshot.Sections))
	}
	for _, sec := range snapshot.Sections {
		if sec.Title == "first" {
			t.Error("superseded mutation must never be applied")
		}
	}
	if flags.IsSaving {
		t.Error("isSaving should settle after the winner commits")
	}

	persisted, _ := f.gateway.LoadBoard(ctx)
	if len(persisted.Sections) != 4 {
		t.Errorf("expected 4 persisted sections, got %d", len(persisted.Sections))
	}
}

func TestDistinctIntentTypesDoNotInterfere(t *testing.T) {
	f := setupDispatcher(t, Config{})
	loadBoard(t, f)
	ctx := context.Background()

	var wg sync.WaitGroup
	var secErr, taskErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, secErr = f.dispatcher.AddSection(ctx, "parallel section")
	}()
	go func() {
		defer wg.Done()
		_, taskErr = f.dispatcher.AddTask(ctx, "section-1", "parallel task", "")
	}()
	wg.Wait()

	if secErr != nil || taskErr != nil {
		t.Fatalf("distinct intents should not supersede each other: %v / %v", secErr, taskErr)
	}

	snapshot, _ := f.boards.Snapshot()
	if len(snapshot.Sections) != 4 || snapshot.TaskCount() != 1 {
		t.Errorf("both mutations should apply: %d sections, %d tasks",
			len(snapshot.Sections), snapshot.TaskCount())
	}
}

func TestCallerCancellationFailsTheSave(t *testing.T) {
	f := setupDispatcher(t, Config{SaveDelay: 0})
	loadBoard(t, f)
	f.dispatcher.saveDelay = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.dispatcher.AddSection(ctx, "doomed")
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	err := <-done
	if err == nil {
		t.Fatal("cancelled dispatch should error")
	}
	if errors.IsSuperseded(err) {
		t.Error("caller cancellation is not supersession")
	}

	_, flags := f.boards.Snapshot()
	if flags.IsSaving {
		t.Error("isSaving must not stay stuck after a cancelled flight")
	}
}

func TestOutcomeEventsPublished(t *testing.T) {
	f := setupDispatcher(t, Config{})

	var mu sync.Mutex
	types := []string{}
	f.bus.Subscribe("board.>", func(ctx context.Context, event *bus.Event) error {
		mu.Lock()
		types = append(types, event.Type)
		mu.Unlock()
		return nil
	})

	loadBoard(t, f)
	if _, err := f.dispatcher.AddTask(context.Background(), "section-1", "t", ""); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := map[string]bool{"loadKanbanSuccess": false, "addTaskSuccess": false}
	for _, typ := range types {
		if _, ok := want[typ]; ok {
			want[typ] = true
		}
	}
	for typ, seen := range want {
		if !seen {
			t.Errorf("expected outcome event %q, got %v", typ, types)
		}
	}
}

func TestLoginSuccessPersistsRecords(t *testing.T) {
	f := setupDispatcher(t, Config{})
	ctx := context.Background()

	user, session, err := f.dispatcher.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if user.Email != "alice@taskflow.com" {
		t.Errorf("unexpected email %q", user.Email)
	}
	if session.AccessToken == "" {
		t.Error("session missing access token")
	}

	state := f.sessions.State()
	if !state.IsAuthenticated || state.IsLoading {
		t.Errorf("auth state not settled: %+v", state)
	}

	if _, err := f.gateway.LoadSession(ctx); err != nil {
		t.Errorf("session record should be persisted: %v", err)
	}
	if _, err := f.gateway.LoadUser(ctx); err != nil {
		t.Errorf("user record should be persisted: %v", err)
	}
}

func TestLoginRejectsShortPassword(t *testing.T) {
	f := setupDispatcher(t, Config{})

	_, _, err := f.dispatcher.Login(context.Background(), "alice", "abc")
	if !errors.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}

	state := f.sessions.State()
	if state.IsAuthenticated {
		t.Error("failed login must not authenticate")
	}
	if state.Error != "Invalid username or password." {
		t.Errorf("unexpected error message %q", state.Error)
	}

	// Nothing is persisted on failure
	if _, err := f.gateway.LoadSession(context.Background()); err != storage.ErrNotFound {
		t.Errorf("no session record should exist, got %v", err)
	}
}

func TestRefreshTokenReplacesSession(t *testing.T) {
	f := setupDispatcher(t, Config{})
	ctx := context.Background()

	_, first, err := f.dispatcher.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	session, err := f.dispatcher.RefreshToken(ctx)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if session.AccessToken == first.AccessToken {
		t.Error("refresh should mint a new access token")
	}

	state := f.sessions.State()
	if !state.IsAuthenticated || state.IsRefreshing {
		t.Errorf("auth state not settled: %+v", state)
	}
	if state.User == nil || state.User.Username != "alice" {
		t.Error("refresh must keep the user")
	}

	persisted, err := f.gateway.LoadSession(ctx)
	if err != nil {
		t.Fatalf("refreshed session should be persisted: %v", err)
	}
	if persisted.AccessToken != session.AccessToken {
		t.Error("persisted session should be the refreshed one")
	}
}

func TestRefreshWithoutSessionFailsFast(t *testing.T) {
	f := setupDispatcher(t, Config{SaveDelay: time.Hour})

	start := time.Now()
	_, err := f.dispatcher.RefreshToken(context.Background())
	if !errors.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("missing-session refresh must skip the simulated delay")
	}

	appErr := err.(*errors.AppError)
	if appErr.Message != "No valid refresh token" {
		t.Errorf("unexpected message %q", appErr.Message)
	}
}

func TestRefreshWithExpiredTokenIsHardLogout(t *testing.T) {
	f := setupDispatcher(t, Config{})
	ctx := context.Background()

	if _, _, err := f.dispatcher.Login(ctx, "alice", "secret"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// Blow past the 7-day refresh lifetime
	f.clock.Advance(8 * 24 * time.Hour)

	if _, err := f.dispatcher.RefreshToken(ctx); !errors.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}

	state := f.sessions.State()
	if state.IsAuthenticated || state.User != nil {
		t.Errorf("expired refresh should fully de-authenticate: %+v", state)
	}
	if _, err := f.gateway.LoadSession(ctx); err != storage.ErrNotFound {
		t.Errorf("session record should be deleted, got %v", err)
	}
	if _, err := f.gateway.LoadUser(ctx); err != storage.ErrNotFound {
		t.Errorf("user record should be deleted, got %v", err)
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	f := setupDispatcher(t, Config{})
	ctx := context.Background()

	if _, _, err := f.dispatcher.Login(ctx, "alice", "secret"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := f.dispatcher.Logout(ctx); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	if f.sessions.State().IsAuthenticated {
		t.Error("logout should de-authenticate")
	}
	if _, err := f.gateway.LoadSession(ctx); err != storage.ErrNotFound {
		t.Errorf("session record should be deleted, got %v", err)
	}
	if _, err := f.gateway.LoadUser(ctx); err != storage.ErrNotFound {
		t.Errorf("user record should be deleted, got %v", err)
	}
}

func TestUpdateProfileRequiresAuth(t *testing.T) {
	f := setupDispatcher(t, Config{})
	ctx := context.Background()

	if _, err := f.dispatcher.UpdateProfile(ctx, "bob", ""); !errors.IsAuth(err) {
		t.Errorf("expected auth error while signed out, got %v", err)
	}

	if _, _, err := f.dispatcher.Login(ctx, "alice", "secret"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	user, err := f.dispatcher.UpdateProfile(ctx, "bob", "")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if user.Username != "bob" || user.Email != "alice@taskflow.com" {
		t.Errorf("merge semantics broken: %+v", user)
	}

	persisted, err := f.gateway.LoadUser(ctx)
	if err != nil {
		t.Fatalf("user record should be persisted: %v", err)
	}
	if persisted.Username != "bob" {
		t.Error("profile update should rewrite the user record")
	}
}

func setupSeededBoard() *boardmodels.Board {
	return &boardmodels.Board{
		Sections: []boardmodels.Section{{ID: "section-only", Title: "Only", Order: 0}},
		Tasks:    map[string][]boardmodels.Task{"section-only": {}},
	}
}
