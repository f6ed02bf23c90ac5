package analytics

import "time"

// EventType distinguishes page views from tracked link clicks.
type EventType string

const (
	EventView  EventType = "view"
	EventClick EventType = "click"
)

// Event is an append-only view or click occurrence.
type Event struct {
	ID        string    `gorm:"column:id;primaryKey;size:64"`
	ProfileID string    `gorm:"column:profile_id;size:64;not null;index:idx_analytics_profile_type_created,priority:1"`
	Type      EventType `gorm:"column:type;size:16;not null;index:idx_analytics_profile_type_created,priority:2"`
	URL       *string   `gorm:"column:url;size:2048"`
	IPHash    *string   `gorm:"column:ip_hash;size:128"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_analytics_profile_type_created,priority:3"`
}

func (Event) TableName() string {
	return "analytics_events"
}

// DayCount is one calendar day (UTC) of activity.
type DayCount struct {
	Day    string `json:"day"`
	Views  int64  `json:"views"`
	Clicks int64  `json:"clicks"`
}

// Destination is a tracked URL and its click count.
type Destination struct {
	URL    string `json:"url"`
	Clicks int64  `json:"clicks"`
}

// Dashboard is the studio analytics view for one profile.
type Dashboard struct {
	Days            []DayCount    `json:"days"`
	TopDestinations []Destination `json:"topDestinations"`
	TotalViews      int64         `json:"totalViews"`
	TotalClicks     int64         `json:"totalClicks"`
}
