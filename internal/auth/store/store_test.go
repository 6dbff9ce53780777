package store

import (
	"testing"
	"time"

	"github.com/taskflow/taskflow/internal/auth/models"
)

func testSession(now time.Time) models.Session {
	return models.Session{
		AccessToken:        "token-1",
		RefreshToken:       "token-2",
		AccessTokenExpiry:  now.Add(30 * time.Second),
		RefreshTokenExpiry: now.Add(7 * 24 * time.Hour),
		CreatedAt:          now,
	}
}

func TestNewStoreIsSignedOut(t *testing.T) {
	s := NewStore()
	state := s.State()
	if state.IsAuthenticated || state.User != nil || state.Session != nil {
		t.Errorf("fresh store should be signed out: %+v", state)
	}
}

func TestLoginLifecycle(t *testing.T) {
	s := NewStore()

	s.BeginLogin()
	if state := s.State(); !state.IsLoading {
		t.Error("BeginLogin should set isLoading")
	}

	user := models.User{ID: "user-1", Username: "alice", Email: "alice@taskflow.com"}
	session := testSession(time.Now())
	s.CompleteLogin(user, session)

	state := s.State()
	if !state.IsAuthenticated {
		t.Error("expected authenticated after login")
	}
	if state.IsLoading || state.Error != "" {
		t.Errorf("flags not cleared: %+v", state)
	}
	if state.User.Username != "alice" {
		t.Errorf("unexpected user: %+v", state.User)
	}
}

func TestFailLogin(t *testing.T) {
	s := NewStore()
	s.BeginLogin()
	s.FailLogin("Invalid username or password.")

	state := s.State()
	if state.IsAuthenticated {
		t.Error("failed login must not authenticate")
	}
	if state.IsLoading {
		t.Error("isLoading should be cleared")
	}
	if state.Error != "Invalid username or password." {
		t.Errorf("unexpected error message: %q", state.Error)
	}

	s.ClearError()
	if state := s.State(); state.Error != "" {
		t.Error("ClearError should reset the message")
	}
}

func TestRefreshLifecycle(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.CompleteLogin(models.User{ID: "user-1", Username: "alice"}, testSession(now))

	s.BeginRefresh()
	if !s.IsRefreshing() {
		t.Error("BeginRefresh should set the flag")
	}

	next := testSession(now.Add(time.Minute))
	next.AccessToken = "token-3"
	s.CompleteRefresh(next)

	state := s.State()
	if s.IsRefreshing() {
		t.Error("CompleteRefresh should clear the flag")
	}
	if state.Session.AccessToken != "token-3" {
		t.Error("session should be replaced")
	}
	if state.User == nil || state.User.Username != "alice" {
		t.Error("refresh must not touch the user")
	}
}

func TestCancelRefreshKeepsSession(t *testing.T) {
	s := NewStore()
	s.CompleteLogin(models.User{ID: "user-1"}, testSession(time.Now()))

	s.BeginRefresh()
	s.CancelRefresh()

	if s.IsRefreshing() {
		t.Error("CancelRefresh should clear the flag")
	}
	if !s.State().IsAuthenticated {
		t.Error("a superseded refresh must not log the user out")
	}
}

func TestFailRefreshIsHardLogout(t *testing.T) {
	s := NewStore()
	s.CompleteLogin(models.User{ID: "user-1"}, testSession(time.Now()))

	s.BeginRefresh()
	s.FailRefresh()

	state := s.State()
	if state.IsAuthenticated || state.User != nil || state.Session != nil {
		t.Errorf("failed refresh should fully de-authenticate: %+v", state)
	}
	if state.IsRefreshing {
		t.Error("isRefreshing should be cleared")
	}
}

func TestUpdateProfile(t *testing.T) {
	s := NewStore()

	if _, ok := s.UpdateProfile("bob", ""); ok {
		t.Error("profile update while signed out should be a no-op")
	}

	s.CompleteLogin(models.User{ID: "user-1", Username: "alice", Email: "alice@taskflow.com"}, testSession(time.Now()))

	user, ok := s.UpdateProfile("bob", "")
	if !ok {
		t.Fatal("expected update to apply")
	}
	if user.Username != "bob" {
		t.Errorf("username not merged: %q", user.Username)
	}
	if user.Email != "alice@taskflow.com" {
		t.Errorf("empty email must leave the field untouched: %q", user.Email)
	}

	user, _ = s.UpdateProfile("", "bob@taskflow.com")
	if user.Username != "bob" || user.Email != "bob@taskflow.com" {
		t.Errorf("merge semantics broken: %+v", user)
	}
}

func TestRestoreAndLogout(t *testing.T) {
	s := NewStore()
	user := models.User{ID: "user-1", Username: "alice"}
	session := testSession(time.Now())

	s.Restore(&user, &session)
	if !s.State().IsAuthenticated {
		t.Error("restored session should authenticate")
	}

	s.Logout()
	state := s.State()
	if state.IsAuthenticated || state.User != nil || state.Session != nil {
		t.Errorf("logout should clear everything: %+v", state)
	}
}

func TestStateReturnsCopies(t *testing.T) {
	s := NewStore()
	s.CompleteLogin(models.User{ID: "user-1", Username: "alice"}, testSession(time.Now()))

	state := s.State()
	state.User.Username = "mallory"
	if s.State().User.Username != "alice" {
		t.Error("State must return copies, not the internal pointers")
	}

	session := s.Session()
	session.AccessToken = "stolen"
	if s.Session().AccessToken == "stolen" {
		t.Error("Session must return a copy")
	}
}
