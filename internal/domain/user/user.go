// Package user defines the system-scoped user identity.
package user

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// User is one human identity. It is not owned by any tenant; tenant access
// is granted through memberships.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	ExternalAuthID string    `json:"external_auth_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RegisterRequest is the input for registering a new user.
type RegisterRequest struct {
	Email          string `json:"email"`
	Name           string `json:"name"`
	ExternalAuthID string `json:"external_auth_id"`
}

// Validate checks that the RegisterRequest has all required fields and
// normalizes the email address.
func (r *RegisterRequest) Validate() error {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if r.Email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return errors.New("invalid email format")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}
