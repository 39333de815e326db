// Package models defines the wire and session types shared by the voicescreen
// client packages.
package models

import "time"

// User is the profile returned by login and /me. It is cached locally as a
// convenience copy; the server is authoritative.
type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Age       int    `json:"age,omitempty"`
	Gender    string `json:"gender,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Credentials is the access/refresh pair with absolute expiry instants.
// The expiries are both zero (logged out) or both set.
type Credentials struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// IsZero reports whether no session is held.
func (c Credentials) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == "" &&
		c.AccessExpiresAt.IsZero() && c.RefreshExpiresAt.IsZero()
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	FullName string `json:"full_name" validate:"required,max=255"`
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Age      int    `json:"age" validate:"gte=0,lte=150"`
	Gender   string `json:"gender" validate:"required"`
}

// LoginResponse carries lifetimes in seconds relative to the moment the
// response was produced.
type LoginResponse struct {
	Message               string `json:"message"`
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	AccessTokenExpiresIn  int64  `json:"access_token_expires_in"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
	TokenType             string `json:"token_type"`
	User                  User   `json:"user"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshResponse struct {
	Message              string `json:"message"`
	AccessToken          string `json:"access_token"`
	AccessTokenExpiresIn int64  `json:"access_token_expires_in"`
	TokenType            string `json:"token_type"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ValidateResponse struct {
	Valid bool `json:"valid"`
}

type MeResponse struct {
	User User `json:"user"`
}
