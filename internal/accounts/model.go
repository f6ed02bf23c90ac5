package accounts

import (
	"strings"
	"time"
)

const RoleOwner = "owner"

// User is a person who can sign in to the studio.
type User struct {
	ID          string    `gorm:"column:id;primaryKey;size:64"`
	Email       string    `gorm:"column:email;size:320;index"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	AvatarURL   string    `gorm:"column:avatar_url;size:1024"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (User) TableName() string {
	return "users"
}

// Identity maps a provider-specific login to a user.
type Identity struct {
	Provider  string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject   string    `gorm:"column:subject;primaryKey;size:190;not null"`
	UserID    string    `gorm:"column:user_id;size:64;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (Identity) TableName() string {
	return "user_identities"
}

// Workspace owns exactly one creator profile.
type Workspace struct {
	ID        string    `gorm:"column:id;primaryKey;size:64"`
	Name      string    `gorm:"column:name;size:200;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (Workspace) TableName() string {
	return "workspaces"
}

// WorkspaceMember grants a user a role in a workspace.
type WorkspaceMember struct {
	WorkspaceID string    `gorm:"column:workspace_id;primaryKey;size:64"`
	UserID      string    `gorm:"column:user_id;primaryKey;size:64;index"`
	Role        string    `gorm:"column:role;size:32;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (WorkspaceMember) TableName() string {
	return "workspace_members"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
