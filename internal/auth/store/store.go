// Package store owns the authentication state: current user, current
// session, and the loading/error flags. Transitions are synchronous and
// atomic; persistence belongs to the dispatch layer.
package store

import (
	"sync"

	"github.com/taskflow/taskflow/internal/auth/models"
)

// State is a point-in-time copy of the session manager's fields.
// IsAuthenticated is derived: true iff Session is non-nil.
type State struct {
	User            *models.User    `json:"user"`
	Session         *models.Session `json:"session"`
	IsLoading       bool            `json:"isLoading"`
	IsRefreshing    bool            `json:"isRefreshing"`
	Error           string          `json:"error,omitempty"`
	IsAuthenticated bool            `json:"isAuthenticated"`
}

// Store is the Session Manager.
type Store struct {
	mu      sync.RWMutex
	user    *models.User
	session *models.Session

	isLoading    bool
	isRefreshing bool
	errMsg       string
}

// NewStore creates a signed-out session manager. Persisted session and
// user, if any, arrive via Restore at startup.
func NewStore() *Store {
	return &Store{}
}

// Restore seeds the store from the persisted records at startup.
func (s *Store) Restore(user *models.User, session *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = copyUser(user)
	s.session = copySession(session)
}

// BeginLogin marks the login pending and clears any previous error.
func (s *Store) BeginLogin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isLoading = true
	s.errMsg = ""
}

// CompleteLogin installs the user and session from a successful login.
func (s *Store) CompleteLogin(user models.User, session models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &user
	s.session = &session
	s.isLoading = false
	s.errMsg = ""
}

// FailLogin records the login failure and leaves the store unauthenticated.
func (s *Store) FailLogin(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isLoading = false
	s.errMsg = message
}

// BeginRefresh marks a token refresh in flight.
func (s *Store) BeginRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isRefreshing = true
}

// CompleteRefresh replaces the session only.
func (s *Store) CompleteRefresh(session models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &session
	s.isRefreshing = false
}

// CancelRefresh clears the in-flight flag without touching the session,
// used when a refresh is superseded rather than failed.
func (s *Store) CancelRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isRefreshing = false
}

// FailRefresh is a hard logout: any refresh failure fully de-authenticates.
func (s *Store) FailRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.session = nil
	s.isRefreshing = false
}

// UpdateProfile merges username and email into the user without touching
// the session. No-op when signed out.
func (s *Store) UpdateProfile(username, email string) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return models.User{}, false
	}
	if username != "" {
		s.user.Username = username
	}
	if email != "" {
		s.user.Email = email
	}
	return *s.user, true
}

// Logout clears user, session, and error.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.session = nil
	s.errMsg = ""
}

// ClearError clears the error field.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = ""
}

// State returns a copy of the current auth state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		User:            copyUser(s.user),
		Session:         copySession(s.session),
		IsLoading:       s.isLoading,
		IsRefreshing:    s.isRefreshing,
		Error:           s.errMsg,
		IsAuthenticated: s.session != nil,
	}
}

// Session returns a copy of the current session, or nil when signed out.
func (s *Store) Session() *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.session)
}

// IsRefreshing reports whether a refresh is in flight.
func (s *Store) IsRefreshing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRefreshing
}

func copyUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func copySession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
