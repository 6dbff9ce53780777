// Package models defines the authentication data model. The JSON shape
// matches the persisted taskflow_session and taskflow_user records.
package models

import "time"

// Session holds the token pair and expiries minted on login or refresh.
type Session struct {
	AccessToken        string    `json:"accessToken"`
	RefreshToken       string    `json:"refreshToken"`
	AccessTokenExpiry  time.Time `json:"accessTokenExpiry"`
	RefreshTokenExpiry time.Time `json:"refreshTokenExpiry"`
	CreatedAt          time.Time `json:"createdAt"`
}

// User is the authenticated account. Fields are mutable via profile update.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// AccessExpiresWithin reports whether the access token expires within d of now.
func (s *Session) AccessExpiresWithin(now time.Time, d time.Duration) bool {
	return !s.AccessTokenExpiry.After(now.Add(d))
}

// RefreshExpired reports whether the refresh token itself has expired.
func (s *Session) RefreshExpired(now time.Time) bool {
	return now.After(s.RefreshTokenExpiry)
}
