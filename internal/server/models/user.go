// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is the stored account, including the password hash. It never
// leaves the services layer; callers outside it get a UserInfo.
type User struct {
	ID           string
	Email        string
	Name         *string
	PasswordHash *string `json:"-"`
	ExternalID   *string
	IsActive     bool
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Info returns the sanitized view of u.
func (u *User) Info() *UserInfo {
	if u == nil {
		return nil
	}
	return &UserInfo{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		ExternalID: u.ExternalID,
		IsActive:   u.IsActive,
		IsAdmin:    u.IsAdmin,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// UserInfo is the account as seen outside the trust boundary.
type UserInfo struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       *string   `json:"name,omitempty"`
	ExternalID *string   `json:"external_id,omitempty"`
	IsActive   bool      `json:"is_active"`
	IsAdmin    bool      `json:"is_admin"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UserPatch is a partial account update. Nil fields are left unchanged.
type UserPatch struct {
	Email      *string
	Name       *string
	IsActive   *bool
	IsAdmin    *bool
	ExternalID *string
}

// Fields returns the column/value pairs to write.
func (p UserPatch) Fields() map[string]any {
	f := map[string]any{}
	if p.Email != nil {
		f["email"] = *p.Email
	}
	if p.Name != nil {
		f["name"] = *p.Name
	}
	if p.IsActive != nil {
		f["is_active"] = *p.IsActive
	}
	if p.IsAdmin != nil {
		f["is_admin"] = *p.IsAdmin
	}
	if p.ExternalID != nil {
		f["external_id"] = *p.ExternalID
	}
	return f
}

// ExternalProfile is the identity returned by an external provider.
type ExternalProfile struct {
	ExternalID string
	Email      string
	Name       string
}
