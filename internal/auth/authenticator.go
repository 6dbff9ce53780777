// Package auth provides the simulated credential collaborator and the
// access-token refresh monitor. There is no real identity provider: the
// Authenticator stands in for one behind a stable contract.
package auth

import (
	"fmt"
	"time"

	"github.com/taskflow/taskflow/internal/auth/models"
	"github.com/taskflow/taskflow/internal/common/errors"
	"github.com/taskflow/taskflow/internal/common/ids"
)

// Policy is the configurable stand-in credential check. Defaults match the
// source app: any non-empty username with a password of at least 4
// characters succeeds; tokens live 30s (access) and 7 days (refresh).
type Policy struct {
	MinPasswordLength int
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
}

// DefaultPolicy returns the policy the simulated login contract requires.
func DefaultPolicy() Policy {
	return Policy{
		MinPasswordLength: 4,
		AccessTokenTTL:    30 * time.Second,
		RefreshTokenTTL:   7 * 24 * time.Hour,
	}
}

// Authenticator mints users and sessions for valid credentials.
type Authenticator struct {
	policy Policy
	ids    ids.Generator
	clock  func() time.Time
}

// NewAuthenticator creates an authenticator with the given policy.
func NewAuthenticator(policy Policy, gen ids.Generator, clock func() time.Time) *Authenticator {
	if clock == nil {
		clock = time.Now
	}
	return &Authenticator{policy: policy, ids: gen, clock: clock}
}

// Login validates the credentials and mints a fresh user and session.
func (a *Authenticator) Login(username, password string) (models.User, models.Session, error) {
	if username == "" || len(password) < a.policy.MinPasswordLength {
		return models.User{}, models.Session{}, errors.Auth("Invalid username or password.")
	}
	user := models.User{
		ID:       a.ids.NewUserID(),
		Username: username,
		Email:    fmt.Sprintf("%s@taskflow.com", username),
	}
	return user, a.mintSession(), nil
}

// Refresh mints a replacement session for a valid refresh token. The caller
// is responsible for the fail-fast checks on the persisted session; by the
// time this runs, only an empty token can still reject.
func (a *Authenticator) Refresh(refreshToken string) (models.Session, error) {
	if refreshToken == "" {
		return models.Session{}, errors.Auth("Invalid refresh token")
	}
	return a.mintSession(), nil
}

func (a *Authenticator) mintSession() models.Session {
	now := a.clock()
	return models.Session{
		AccessToken:        a.ids.NewToken(),
		RefreshToken:       a.ids.NewToken(),
		AccessTokenExpiry:  now.Add(a.policy.AccessTokenTTL),
		RefreshTokenExpiry: now.Add(a.policy.RefreshTokenTTL),
		CreatedAt:          now,
	}
}
