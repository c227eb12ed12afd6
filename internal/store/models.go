package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID                    string
	Email                 string
	DisplayName           string
	PasswordHash          string
	Plan                  string
	Role                  string
	PhoneNumber           *string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Workspace struct {
	ID        string
	OwnerID   string
	Name      string
	CreatedAt time.Time
}

type WorkspaceMember struct {
	WorkspaceID string
	UserID      string
	DisplayName string
	Email       string
	AddedAt     time.Time
}

type Canvas struct {
	ID          string
	WorkspaceID string
	Title       string
	IsPublic    bool
	Content     json.RawMessage
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AdminUserUpdate carries the recognized fields of an admin PATCH; nil means
// the field was not present in the request.
type AdminUserUpdate struct {
	Plan        *string
	PhoneNumber *string
}

// CommitInfo describes one snapshot in a canvas history.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}
