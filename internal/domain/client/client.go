// Package client defines the lab's customer record, the reference
// tenant-scoped entity served through the generic repository.
package client

import (
	"errors"
	"strings"
	"time"
)

// Client is a customer of one lab. TenantID is set by the data layer on
// creation and never changes.
type Client struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email,omitempty" db:"email"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreateRequest is the input for creating a client. It has no tenant field.
type CreateRequest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Validate checks that the CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return errors.New("name is required")
	}
	if len(r.Name) > 200 {
		return errors.New("name too long (max 200 chars)")
	}
	return nil
}

// UpdateRequest holds the mutable client fields.
type UpdateRequest struct {
	Name   *string `json:"name,omitempty"`
	Email  *string `json:"email,omitempty"`
	Phone  *string `json:"phone,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// Changes returns the column changes carried by the request.
func (r *UpdateRequest) Changes() map[string]any {
	set := map[string]any{}
	if r.Name != nil {
		set["name"] = strings.TrimSpace(*r.Name)
	}
	if r.Email != nil {
		set["email"] = *r.Email
	}
	if r.Phone != nil {
		set["phone"] = *r.Phone
	}
	if r.Active != nil {
		set["active"] = *r.Active
	}
	return set
}
