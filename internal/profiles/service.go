package profiles

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/sundae/internal/apperr"
	"github.com/MarcoPoloResearchLab/sundae/internal/dbtx"
	"github.com/MarcoPoloResearchLab/sundae/internal/ids"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrProfileNotFound   = errors.New("profiles: profile not found")
	ErrHandleTaken       = errors.New("profiles: that handle is taken")
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
	handleSeedCleaner    = regexp.MustCompile(`[^a-z0-9_-]+`)
)

const (
	opServiceNew    = "profiles.service.new"
	opCreate        = "profiles.create"
	opGet           = "profiles.get"
	opUpdateProfile = "profiles.update_profile"
	opUpdateHandle  = "profiles.update_handle"
	opUpdateTheme   = "profiles.update_theme"
	opApplyPreset   = "profiles.apply_theme_preset"
)

// Invalidator drops cached renderings of a profile's pages.
type Invalidator interface {
	Invalidate(ctx context.Context, profileID string) error
}

// ProfileInput is the editable identity shown on the public page.
type ProfileInput struct {
	DisplayName string `validate:"required,max=120"`
	Bio         string `validate:"max=1000"`
	AvatarURL   string `validate:"omitempty,url,max=1024"`
}

// NewProfile describes a profile being provisioned for a workspace.
type NewProfile struct {
	WorkspaceID string
	Handle      string
	DisplayName string
}

type ServiceConfig struct {
	Database    *gorm.DB
	Clock       func() time.Time
	IDProvider  ids.Provider
	Invalidator Invalidator
	Logger      *zap.Logger
}

type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	idProvider  ids.Provider
	invalidator Invalidator
	validate    *validator.Validate
	logger      *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.Internal(opServiceNew, "missing_id_provider", errMissingIDProvider)
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
		db:          cfg.Database,
		clock:       clock,
		idProvider:  cfg.IDProvider,
		invalidator: cfg.Invalidator,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, profileID string) (Profile, error) {
	return s.take(ctx, "id = ?", strings.TrimSpace(profileID))
}

// GetByHandle resolves a public handle; input is normalized first.
func (s *Service) GetByHandle(ctx context.Context, handle string) (Profile, error) {
	normalized := NormalizeHandle(handle)
	if normalized == "" {
		return Profile{}, apperr.NotFound(opGet, "profile_not_found", ErrProfileNotFound)
	}
	return s.take(ctx, "handle = ?", normalized)
}

func (s *Service) GetByWorkspace(ctx context.Context, workspaceID string) (Profile, error) {
	return s.take(ctx, "workspace_id = ?", strings.TrimSpace(workspaceID))
}

// ListHandles returns every public handle, for the sitemap.
func (s *Service) ListHandles(ctx context.Context) ([]string, error) {
	var handles []string
	if err := dbtx.From(ctx, s.db).Model(&Profile{}).Order("handle ASC").Pluck("handle", &handles).Error; err != nil {
		s.logError(opGet, "query_failed", err)
		return nil, apperr.Internal(opGet, "query_failed", err)
	}
	return handles, nil
}

func (s *Service) take(ctx context.Context, condition string, value string) (Profile, error) {
	if value == "" {
		return Profile{}, apperr.NotFound(opGet, "profile_not_found", ErrProfileNotFound)
	}
	var profile Profile
	err := dbtx.From(ctx, s.db).Where(condition, value).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, apperr.NotFound(opGet, "profile_not_found", ErrProfileNotFound)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err)
		return Profile{}, apperr.Internal(opGet, "query_failed", err)
	}
	return profile, nil
}

// Create inserts a profile under a validated, unused handle.
func (s *Service) Create(ctx context.Context, input NewProfile) (Profile, error) {
	handle := NormalizeHandle(input.Handle)
	if err := ValidateHandle(handle); err != nil {
		return Profile{}, apperr.Invalid(opCreate, "invalid_handle", err)
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = handle
	}
	profileID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Profile{}, apperr.Internal(opCreate, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	profile := Profile{
		ID:          profileID,
		WorkspaceID: strings.TrimSpace(input.WorkspaceID),
		Handle:      handle,
		DisplayName: displayName,
		Theme:       []byte(`{}`),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := dbtx.From(ctx, s.db).Create(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Profile{}, apperr.Conflict(opCreate, "handle_taken", ErrHandleTaken)
		}
		s.logError(opCreate, "insert_failed", err, zap.String("handle", handle))
		return Profile{}, apperr.Internal(opCreate, "insert_failed", err)
	}
	return profile, nil
}

// SuggestHandle derives an unused handle from a seed such as an email local part.
func (s *Service) SuggestHandle(ctx context.Context, seed string) (string, error) {
	base := NormalizeHandle(seed)
	if at := strings.Index(base, "@"); at > 0 {
		base = base[:at]
	}
	base = strings.Trim(handleSeedCleaner.ReplaceAllString(base, "-"), "-_")
	if len(base) > maxHandleLength-4 {
		base = base[:maxHandleLength-4]
	}
	for len(base) < minHandleLength {
		base += "x"
	}
	for attempt := 1; attempt <= 50; attempt++ {
		candidate := base
		if attempt > 1 {
			candidate = fmt.Sprintf("%s-%d", base, attempt)
		}
		if ValidateHandle(candidate) != nil {
			continue
		}
		var count int64
		if err := dbtx.From(ctx, s.db).Model(&Profile{}).Where("handle = ?", candidate).Count(&count).Error; err != nil {
			return "", apperr.Internal(opCreate, "query_failed", err)
		}
		if count == 0 {
			return candidate, nil
		}
	}
	suffix, err := s.idProvider.NewID()
	if err != nil {
		return "", apperr.Internal(opCreate, "id_generation_failed", err)
	}
	suffix = handleSeedCleaner.ReplaceAllString(strings.ToLower(suffix), "")
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return base + "-" + suffix, nil
}

// UpdateProfile replaces display name, bio, and avatar URL.
func (s *Service) UpdateProfile(ctx context.Context, profileID string, input ProfileInput) (Profile, error) {
	input = ProfileInput{
		DisplayName: strings.TrimSpace(input.DisplayName),
		Bio:         strings.TrimSpace(input.Bio),
		AvatarURL:   strings.TrimSpace(input.AvatarURL),
	}
	if err := s.validate.Struct(input); err != nil {
		return Profile{}, apperr.Invalid(opUpdateProfile, validationReason(err), err)
	}
	profile, err := s.GetByID(ctx, profileID)
	if err != nil {
		return Profile{}, err
	}
	profile.DisplayName = input.DisplayName
	profile.Bio = optionalString(input.Bio)
	profile.AvatarURL = optionalString(input.AvatarURL)
	profile.UpdatedAt = s.clock().UTC()
	if err := dbtx.From(ctx, s.db).Model(&Profile{}).Where("id = ?", profile.ID).Updates(map[string]any{
		"display_name": profile.DisplayName,
		"bio":          profile.Bio,
		"avatar_url":   profile.AvatarURL,
		"updated_at":   profile.UpdatedAt,
	}).Error; err != nil {
		s.logError(opUpdateProfile, "update_failed", err, zap.String("profile_id", profile.ID))
		return Profile{}, apperr.Internal(opUpdateProfile, "update_failed", err)
	}
	s.invalidate(ctx, opUpdateProfile, profile.ID)
	return profile, nil
}

// UpdateHandle moves the public page to a new handle. Re-submitting the current handle is a no-op.
func (s *Service) UpdateHandle(ctx context.Context, profileID, rawHandle string) (Profile, error) {
	desired := NormalizeHandle(rawHandle)
	if err := ValidateHandle(desired); err != nil {
		return Profile{}, apperr.Invalid(opUpdateHandle, "invalid_handle", err)
	}
	profile, err := s.GetByID(ctx, profileID)
	if err != nil {
		return Profile{}, err
	}
	if profile.Handle == desired {
		return profile, nil
	}

	var count int64
	if err := dbtx.From(ctx, s.db).Model(&Profile{}).Where("handle = ?", desired).Count(&count).Error; err != nil {
		s.logError(opUpdateHandle, "query_failed", err)
		return Profile{}, apperr.Internal(opUpdateHandle, "query_failed", err)
	}
	if count > 0 {
		return Profile{}, apperr.Conflict(opUpdateHandle, "handle_taken", ErrHandleTaken)
	}

	profile.Handle = desired
	profile.UpdatedAt = s.clock().UTC()
	err = dbtx.From(ctx, s.db).Model(&Profile{}).Where("id = ?", profile.ID).Updates(map[string]any{
		"handle":     profile.Handle,
		"updated_at": profile.UpdatedAt,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Profile{}, apperr.Conflict(opUpdateHandle, "handle_taken", ErrHandleTaken)
	}
	if err != nil {
		s.logError(opUpdateHandle, "update_failed", err, zap.String("profile_id", profile.ID))
		return Profile{}, apperr.Internal(opUpdateHandle, "update_failed", err)
	}
	s.invalidate(ctx, opUpdateHandle, profile.ID)
	return profile, nil
}

// UpdateTheme merges non-empty fields into the stored theme.
func (s *Service) UpdateTheme(ctx context.Context, profileID string, input ThemeInput) (Profile, error) {
	return s.writeTheme(ctx, opUpdateTheme, profileID, input.updates())
}

// ApplyThemePreset overlays a preset's colors, keeping layout and effects choices.
func (s *Service) ApplyThemePreset(ctx context.Context, profileID, presetID string) (Profile, error) {
	preset, err := FindPreset(presetID)
	if err != nil {
		return Profile{}, apperr.Invalid(opApplyPreset, "unknown_preset", err)
	}
	return s.writeTheme(ctx, opApplyPreset, profileID, preset.Theme.updates())
}

func (s *Service) writeTheme(ctx context.Context, operation, profileID string, updates map[string]string) (Profile, error) {
	profile, err := s.GetByID(ctx, profileID)
	if err != nil {
		return Profile{}, err
	}
	merged, err := mergeTheme(profile.Theme, updates)
	if err != nil {
		return Profile{}, apperr.Internal(operation, "encode_failed", err)
	}
	profile.Theme = merged
	profile.UpdatedAt = s.clock().UTC()
	if err := dbtx.From(ctx, s.db).Model(&Profile{}).Where("id = ?", profile.ID).Updates(map[string]any{
		"theme":      profile.Theme,
		"updated_at": profile.UpdatedAt,
	}).Error; err != nil {
		s.logError(operation, "update_failed", err, zap.String("profile_id", profile.ID))
		return Profile{}, apperr.Internal(operation, "update_failed", err)
	}
	s.invalidate(ctx, operation, profile.ID)
	return profile, nil
}

func (s *Service) invalidate(ctx context.Context, operation, profileID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, profileID); err != nil {
		s.logger.Warn("page cache invalidation failed",
			zap.String("operation", operation),
			zap.String("profile_id", profileID),
			zap.Error(err))
	}
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
	s.logger.Error("profiles service error", attrs...)
}

func validationReason(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return "invalid_input"
	}
	first := fieldErrors[0]
	switch first.Field() {
	case "DisplayName":
		if first.Tag() == "required" {
			return "display_name_required"
		}
		return "display_name_too_long"
	case "Bio":
		return "bio_too_long"
	case "AvatarURL":
		return "invalid_avatar_url"
	default:
		return "invalid_input"
	}
}
