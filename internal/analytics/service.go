package analytics

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/sundae/internal/apperr"
	"github.com/MarcoPoloResearchLab/sundae/internal/ids"
	"github.com/MarcoPoloResearchLab/sundae/internal/outcome"
	"github.com/MarcoPoloResearchLab/sundae/internal/profiles"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// ViewDedupWindow suppresses a view when the profile's latest view inside it came from the same visitor.
	ViewDedupWindow = 10 * time.Second
	// RollupWindow is how far back the daily rollup reaches.
	RollupWindow = 14 * 24 * time.Hour
	// TopDestinationLimit caps the destinations list.
	TopDestinationLimit = 10
)

const (
	opServiceNew   = "analytics.service.new"
	opRollup       = "analytics.daily_rollup"
	opDestinations = "analytics.top_destinations"

	reasonUnknownHandle = "unknown_handle"
	reasonDuplicate     = "duplicate_view"
	reasonMissingTarget = "missing_destination"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingProfiles   = errors.New("profile resolver is required")
	noOpLogger           = zap.NewNop()
)

// ProfileResolver maps public handles to profiles.
type ProfileResolver interface {
	GetByHandle(ctx context.Context, handle string) (profiles.Profile, error)
}

type ServiceConfig struct {
	Database   *gorm.DB
	Profiles   ProfileResolver
	Hasher     *IPHasher
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service records views and clicks and answers the dashboard queries.
type Service struct {
	db         *gorm.DB
	profiles   ProfileResolver
	hasher     *IPHasher
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Profiles == nil {
		return nil, apperr.Internal(opServiceNew, "missing_profiles", errMissingProfiles)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.Internal(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = NewIPHasher("")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		profiles:   cfg.Profiles,
		hasher:     hasher,
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// RecordView stores a page view for the handle. It never returns an error: unknown
// handles and repeat views are skipped, storage problems are reported as failed.
func (s *Service) RecordView(ctx context.Context, handle, ip string) outcome.Outcome {
	normalized := profiles.NormalizeHandle(handle)
	if normalized == "" {
		return outcome.Skipped(reasonUnknownHandle)
	}
	profile, err := s.profiles.GetByHandle(ctx, normalized)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return outcome.Skipped(reasonUnknownHandle)
		}
		return outcome.Failed(err)
	}

	now := s.clock().UTC()
	ipHash := s.hasher.Hash(ip)
	if ipHash != "" {
		var latest Event
		err := s.db.WithContext(ctx).
			Where("profile_id = ? AND type = ? AND created_at > ?", profile.ID, EventView, now.Add(-ViewDedupWindow)).
			Order("created_at DESC").
			Take(&latest).Error
		switch {
		case err == nil:
			if latest.IPHash != nil && *latest.IPHash == ipHash {
				return outcome.Skipped(reasonDuplicate)
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return outcome.Failed(err)
		}
	}

	return s.insert(ctx, Event{ProfileID: profile.ID, Type: EventView, IPHash: optional(ipHash), CreatedAt: now})
}

// RecordClick stores a tracked link click.
func (s *Service) RecordClick(ctx context.Context, profileID, destination, ip string) outcome.Outcome {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return outcome.Skipped(reasonMissingTarget)
	}
	return s.insert(ctx, Event{
		ProfileID: profileID,
		Type:      EventClick,
		URL:       &destination,
		IPHash:    optional(s.hasher.Hash(ip)),
		CreatedAt: s.clock().UTC(),
	})
}

func (s *Service) insert(ctx context.Context, event Event) outcome.Outcome {
	eventID, err := s.idProvider.NewID()
	if err != nil {
		return outcome.Failed(err)
	}
	event.ID = eventID
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return outcome.Failed(err)
	}
	return outcome.Succeeded()
}

// DailyRollup counts views and clicks per UTC calendar day over the last 14 days.
// Days without events are absent; the result is ordered oldest first.
func (s *Service) DailyRollup(ctx context.Context, profileID string) ([]DayCount, error) {
	since := s.clock().UTC().Add(-RollupWindow)
	var rows []Event
	if err := s.db.WithContext(ctx).
		Select("type", "created_at").
		Where("profile_id = ? AND created_at >= ?", profileID, since).
		Find(&rows).Error; err != nil {
		s.logError(opRollup, "query_failed", err, zap.String("profile_id", profileID))
		return nil, apperr.Internal(opRollup, "query_failed", err)
	}

	buckets := map[string]*DayCount{}
	for _, row := range rows {
		day := row.CreatedAt.UTC().Format("2006-01-02")
		bucket, ok := buckets[day]
		if !ok {
			bucket = &DayCount{Day: day}
			buckets[day] = bucket
		}
		switch row.Type {
		case EventView:
			bucket.Views++
		case EventClick:
			bucket.Clicks++
		}
	}

	days := make([]DayCount, 0, len(buckets))
	for _, bucket := range buckets {
		days = append(days, *bucket)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day < days[j].Day })
	return days, nil
}

// TopDestinations returns the most clicked URLs, highest count first.
func (s *Service) TopDestinations(ctx context.Context, profileID string) ([]Destination, error) {
	destinations := make([]Destination, 0, TopDestinationLimit)
	if err := s.db.WithContext(ctx).
		Model(&Event{}).
		Select("url AS url, COUNT(*) AS clicks").
		Where("profile_id = ? AND type = ? AND url IS NOT NULL", profileID, EventClick).
		Group("url").
		Order("clicks DESC").
		Order("url ASC").
		Limit(TopDestinationLimit).
		Scan(&destinations).Error; err != nil {
		s.logError(opDestinations, "query_failed", err, zap.String("profile_id", profileID))
		return nil, apperr.Internal(opDestinations, "query_failed", err)
	}
	return destinations, nil
}

// Dashboard combines the rollup and the destinations list.
func (s *Service) Dashboard(ctx context.Context, profileID string) (Dashboard, error) {
	days, err := s.DailyRollup(ctx, profileID)
	if err != nil {
		return Dashboard{}, err
	}
	destinations, err := s.TopDestinations(ctx, profileID)
	if err != nil {
		return Dashboard{}, err
	}
	dashboard := Dashboard{Days: days, TopDestinations: destinations}
	for _, day := range days {
		dashboard.TotalViews += day.Views
		dashboard.TotalClicks += day.Clicks
	}
	return dashboard, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("analytics service error", attrs...)
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
