package leads

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Kind distinguishes newsletter signups from contact messages.
type Kind string

const (
	KindSignup  Kind = "signup"
	KindContact Kind = "contact"
)

// ParseKind accepts exactly "signup" or "contact".
func ParseKind(raw string) (Kind, bool) {
	switch Kind(raw) {
	case KindSignup:
		return KindSignup, true
	case KindContact:
		return KindContact, true
	default:
		return "", false
	}
}

// Lead is a visitor submission captured from a public page form.
type Lead struct {
	ID        string         `gorm:"column:id;primaryKey;size:64" json:"id"`
	ProfileID string         `gorm:"column:profile_id;size:64;not null;index:idx_leads_profile_created,priority:1" json:"profileId"`
	Kind      Kind           `gorm:"column:kind;size:16;not null" json:"kind"`
	Email     string         `gorm:"column:email;size:320;not null" json:"email"`
	Name      *string        `gorm:"column:name;size:200" json:"name"`
	Message   *string        `gorm:"column:message;type:text" json:"message"`
	Meta      datatypes.JSON `gorm:"column:meta;not null" json:"meta"`
	CreatedAt time.Time      `gorm:"column:created_at;not null;index:idx_leads_profile_created,priority:2" json:"createdAt"`
}

func (Lead) TableName() string {
	return "leads"
}

// NameText returns the submitted name or "".
func (l Lead) NameText() string {
	if l.Name == nil {
		return ""
	}
	return *l.Name
}

// MessageText returns the submitted message or "".
func (l Lead) MessageText() string {
	if l.Message == nil {
		return ""
	}
	return *l.Message
}

// Submission is the raw form post for a lead.
type Submission struct {
	ProfileID string
	Kind      string
	Email     string
	Name      string
	Message   string
	Honeypot  string
	// BaseURL is used for links in the owner notification.
	BaseURL string
}

func (s Submission) trimmed() Submission {
	s.ProfileID = strings.TrimSpace(s.ProfileID)
	s.Kind = strings.TrimSpace(s.Kind)
	s.Email = strings.TrimSpace(s.Email)
	s.Name = strings.TrimSpace(s.Name)
	s.Message = strings.TrimSpace(s.Message)
	s.Honeypot = strings.TrimSpace(s.Honeypot)
	return s
}
