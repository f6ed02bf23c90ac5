package profiles

import (
	"time"

	"gorm.io/datatypes"
)

// Profile is the identity behind a creator's public page.
type Profile struct {
	ID          string         `gorm:"column:id;primaryKey;size:64" json:"id"`
	WorkspaceID string         `gorm:"column:workspace_id;size:64;not null;index" json:"workspaceId"`
	Handle      string         `gorm:"column:handle;size:64;not null;uniqueIndex" json:"handle"`
	DisplayName string         `gorm:"column:display_name;size:120;not null" json:"displayName"`
	Bio         *string        `gorm:"column:bio;size:1000" json:"bio,omitempty"`
	AvatarURL   *string        `gorm:"column:avatar_url;size:1024" json:"avatarUrl,omitempty"`
	Theme       datatypes.JSON `gorm:"column:theme" json:"theme,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null" json:"updatedAt"`
}

func (Profile) TableName() string {
	return "creator_profiles"
}

// BioText returns the bio or an empty string.
func (p Profile) BioText() string {
	if p.Bio == nil {
		return ""
	}
	return *p.Bio
}

// AvatarURLText returns the avatar URL or an empty string.
func (p Profile) AvatarURLText() string {
	if p.AvatarURL == nil {
		return ""
	}
	return *p.AvatarURL
}

// ThemeSettings decodes the stored theme.
func (p Profile) ThemeSettings() Theme {
	return DecodeTheme(p.Theme)
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
