// Package leads captures signup and contact submissions from public pages.
package leads

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/MarcoPoloResearchLab/sundae/internal/apperr"
	"github.com/MarcoPoloResearchLab/sundae/internal/ids"
	"github.com/MarcoPoloResearchLab/sundae/internal/notify"
	"github.com/MarcoPoloResearchLab/sundae/internal/outcome"
	"github.com/MarcoPoloResearchLab/sundae/internal/profiles"
	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// MaxListLimit caps a single inbox page.
	MaxListLimit = 200

	opServiceNew = "leads.service.new"
	opCapture    = "leads.capture"
	opList       = "leads.list"
	opExport     = "leads.export"

	reasonNoOwner = "owner_not_found"
)

var (
	ErrInvalidKind    = errors.New("leads: kind must be signup or contact")
	ErrInvalidEmail   = errors.New("leads: invalid email address")
	ErrMissingProfile = errors.New("leads: profile id is required")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingProfiles   = errors.New("profile lookup is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
	basicEmailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ProfileLookup loads the profile a form posts to.
type ProfileLookup interface {
	GetByID(ctx context.Context, profileID string) (profiles.Profile, error)
}

// OwnerDirectory resolves the email of a workspace owner.
type OwnerDirectory interface {
	OwnerEmail(ctx context.Context, workspaceID string) (string, error)
}

// CaptureListener is told about every stored lead.
type CaptureListener interface {
	LeadCaptured(ctx context.Context, lead Lead)
}

type ServiceConfig struct {
	Database   *gorm.DB
	Profiles   ProfileLookup
	Owners     OwnerDirectory
	Notifier   notify.Notifier
	Listener   CaptureListener
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service stores leads and notifies profile owners.
type Service struct {
	db         *gorm.DB
	profiles   ProfileLookup
	owners     OwnerDirectory
	notifier   notify.Notifier
	listener   CaptureListener
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
	validate   *validator.Validate
}

// Result reports what Capture did with a submission.
type Result struct {
	Stored       bool
	Honeypot     bool
	Lead         Lead
	Profile      profiles.Profile
	Notification outcome.Outcome
}

type contactFields struct {
	Email string `validate:"required,basic_email"`
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
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("basic_email", func(fl validator.FieldLevel) bool {
		return basicEmailPattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, apperr.Internal(opServiceNew, "validator_setup_failed", err)
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
		owners:     cfg.Owners,
		notifier:   cfg.Notifier,
		listener:   cfg.Listener,
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
		validate:   validate,
	}, nil
}

// Capture validates and stores a submission, then notifies the owner. Honeypot
// submissions succeed without storing anything. Notification problems never fail
// the capture.
func (s *Service) Capture(ctx context.Context, submission Submission) (Result, error) {
	submission = submission.trimmed()
	if submission.ProfileID == "" {
		return Result{}, apperr.Invalid(opCapture, "missing_profile_id", ErrMissingProfile)
	}
	kind, ok := ParseKind(submission.Kind)
	if !ok {
		return Result{}, apperr.Invalid(opCapture, "invalid_kind", fmt.Errorf("%w: %q", ErrInvalidKind, submission.Kind))
	}

	profile, err := s.profiles.GetByID(ctx, submission.ProfileID)
	if err != nil {
		return Result{}, err
	}

	if submission.Honeypot != "" {
		s.logger.Debug("lead honeypot triggered", zap.String("profile_id", profile.ID))
		return Result{Honeypot: true, Profile: profile}, nil
	}

	if err := s.validate.Struct(contactFields{Email: submission.Email}); err != nil {
		return Result{}, apperr.Invalid(opCapture, "invalid_email", ErrInvalidEmail)
	}

	leadID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCapture, "id_generation_failed", err)
		return Result{}, apperr.Internal(opCapture, "id_generation_failed", err)
	}
	lead := Lead{
		ID:        leadID,
		ProfileID: profile.ID,
		Kind:      kind,
		Email:     submission.Email,
		Name:      optional(submission.Name),
		Meta:      datatypes.JSON([]byte("{}")),
		CreatedAt: s.clock().UTC(),
	}
	if kind == KindContact {
		lead.Message = optional(submission.Message)
	}
	if err := s.db.WithContext(ctx).Create(&lead).Error; err != nil {
		s.logError(opCapture, "insert_failed", err, zap.String("profile_id", profile.ID))
		return Result{}, apperr.Internal(opCapture, "insert_failed", err)
	}

	if s.listener != nil {
		s.listener.LeadCaptured(ctx, lead)
	}

	result := Result{Stored: true, Lead: lead, Profile: profile}
	result.Notification = s.notifyOwner(ctx, profile, lead, submission.BaseURL)
	result.Notification.Log(s.logger, "lead notification",
		zap.String("profile_id", profile.ID),
		zap.String("lead_id", lead.ID))
	return result, nil
}

func (s *Service) notifyOwner(ctx context.Context, profile profiles.Profile, lead Lead, baseURL string) outcome.Outcome {
	if s.notifier == nil || s.owners == nil {
		return outcome.Skipped("notifier_disabled")
	}
	ownerEmail, err := s.owners.OwnerEmail(ctx, profile.WorkspaceID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return outcome.Skipped(reasonNoOwner)
		}
		return outcome.Failed(err)
	}
	notice := notify.LeadNotice{
		Contact:     lead.Kind == KindContact,
		DisplayName: profile.DisplayName,
		Handle:      profile.Handle,
		BaseURL:     baseURL,
		Email:       lead.Email,
		Name:        lead.NameText(),
		Message:     lead.MessageText(),
	}
	message, err := notice.Compose(ownerEmail)
	if err != nil {
		return outcome.Failed(err)
	}
	return s.notifier.Send(ctx, message)
}

// List returns the newest leads for a profile. limit is clamped to 1..MaxListLimit.
func (s *Service) List(ctx context.Context, profileID string, limit int) ([]Lead, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	var leads []Lead
	if err := s.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&leads).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.String("profile_id", profileID))
		return nil, apperr.Internal(opList, "query_failed", err)
	}
	return leads, nil
}

// ExportWorkbook renders the profile's inbox as an XLSX workbook.
func (s *Service) ExportWorkbook(ctx context.Context, profileID string) ([]byte, error) {
	leads, err := s.List(ctx, profileID, MaxListLimit)
	if err != nil {
		return nil, err
	}

	workbook := excelize.NewFile()
	defer func() { _ = workbook.Close() }()

	sheet := "Leads"
	if err := workbook.SetSheetName(workbook.GetSheetName(0), sheet); err != nil {
		return nil, apperr.Internal(opExport, "sheet_failed", err)
	}
	header := []interface{}{"created_at", "kind", "email", "name", "message"}
	if err := workbook.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, apperr.Internal(opExport, "write_failed", err)
	}
	for index, lead := range leads {
		cell, err := excelize.CoordinatesToCellName(1, index+2)
		if err != nil {
			return nil, apperr.Internal(opExport, "write_failed", err)
		}
		row := []interface{}{
			lead.CreatedAt.UTC().Format(time.RFC3339),
			string(lead.Kind),
			lead.Email,
			lead.NameText(),
			lead.MessageText(),
		}
		if err := workbook.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, apperr.Internal(opExport, "write_failed", err)
		}
	}

	buffer, err := workbook.WriteToBuffer()
	if err != nil {
		s.logError(opExport, "write_failed", err, zap.String("profile_id", profileID))
		return nil, apperr.Internal(opExport, "write_failed", err)
	}
	return buffer.Bytes(), nil
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
	s.logger.Error("leads service error", attrs...)
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
