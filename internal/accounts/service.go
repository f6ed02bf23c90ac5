package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/sundae/internal/analytics"
	"github.com/MarcoPoloResearchLab/sundae/internal/apperr"
	"github.com/MarcoPoloResearchLab/sundae/internal/auth"
	"github.com/MarcoPoloResearchLab/sundae/internal/blocks"
	"github.com/MarcoPoloResearchLab/sundae/internal/dbtx"
	"github.com/MarcoPoloResearchLab/sundae/internal/ids"
	"github.com/MarcoPoloResearchLab/sundae/internal/leads"
	"github.com/MarcoPoloResearchLab/sundae/internal/profiles"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("accounts: invalid identity")

// ErrOwnerNotFound indicates a workspace without a reachable owner.
var ErrOwnerNotFound = errors.New("accounts: workspace owner not found")

var noOpLogger = zap.NewNop()

const (
	opResolveCreator = "accounts.resolve_creator"
	opOwnerEmail     = "accounts.owner_email"
	opDeleteProfile  = "accounts.delete_profile"
)

// ServiceConfig describes the dependencies required for creator resolution.
type ServiceConfig struct {
	Database    *gorm.DB
	Profiles    *profiles.Service
	Blocks      *blocks.Service
	IDProvider  ids.Provider
	Invalidator profiles.Invalidator
	Clock       func() time.Time
	Logger      *zap.Logger
}

// Service resolves session identities to users, workspaces, and their creator profile.
type Service struct {
	db          *gorm.DB
	profiles    *profiles.Service
	blocks      *blocks.Service
	idProvider  ids.Provider
	invalidator profiles.Invalidator
	now         func() time.Time
	logger      *zap.Logger
	cache       sync.Map
}

// Creator is everything the studio needs about the signed-in user.
type Creator struct {
	User      User
	Workspace Workspace
	Profile   profiles.Profile
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("accounts: database connection required")
	}
	if cfg.Profiles == nil || cfg.Blocks == nil {
		return nil, fmt.Errorf("accounts: profile and block services required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("accounts: id provider required")
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
		profiles:    cfg.Profiles,
		blocks:      cfg.Blocks,
		idProvider:  cfg.IDProvider,
		invalidator: cfg.Invalidator,
		now:         clock,
		logger:      logger,
	}, nil
}

// ResolveCreator returns the creator behind the session, provisioning a user, a workspace,
// and a starter profile the first time a login is seen.
func (s *Service) ResolveCreator(ctx context.Context, claims auth.SessionClaims) (Creator, error) {
	user, err := s.resolveUser(ctx, claims)
	if err != nil {
		return Creator{}, err
	}
	workspace, err := s.workspaceFor(ctx, user)
	if err != nil {
		return Creator{}, err
	}
	profile, err := s.profiles.GetByWorkspace(ctx, workspace.ID)
	if errors.Is(err, profiles.ErrProfileNotFound) {
		profile, err = s.provisionProfile(ctx, user, workspace)
	}
	if err != nil {
		return Creator{}, err
	}
	return Creator{User: user, Workspace: workspace, Profile: profile}, nil
}

func (s *Service) resolveUser(ctx context.Context, claims auth.SessionClaims) (User, error) {
	provider, subject := deriveProviderSubject(claims)
	if subject == "" {
		return User{}, apperr.Invalid(opResolveCreator, "invalid_identity", ErrInvalidIdentity)
	}

	now := s.now().UTC()
	cacheKey := provider + ":" + subject
	userID := ""
	if cached, ok := s.cache.Load(cacheKey); ok {
		userID, _ = cached.(string)
	}
	if userID == "" {
		var identity Identity
		err := s.db.WithContext(ctx).
			Where("provider = ? AND subject = ?", provider, subject).
			Take(&identity).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user, createErr := s.createUser(ctx, provider, subject, claims, now)
			if createErr != nil {
				return User{}, createErr
			}
			s.cache.Store(cacheKey, user.ID)
			return user, nil
		case err != nil:
			s.logError(opResolveCreator, "identity_select_failed", err)
			return User{}, apperr.Internal(opResolveCreator, "identity_select_failed", err)
		}
		userID = identity.UserID
	}

	var user User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error; err != nil {
		s.cache.Delete(cacheKey)
		s.logError(opResolveCreator, "user_select_failed", err, zap.String("user_id", userID))
		return User{}, apperr.Internal(opResolveCreator, "user_select_failed", err)
	}

	updates := map[string]any{"last_seen_at": now}
	if email := normalize(claims.UserEmail); email != "" && email != user.Email {
		updates["email"] = email
		user.Email = email
	}
	if display := normalize(claims.UserDisplayName); display != "" && display != user.DisplayName {
		updates["display_name"] = display
		user.DisplayName = display
	}
	if avatar := normalize(claims.UserAvatarURL); avatar != "" && avatar != user.AvatarURL {
		updates["avatar_url"] = avatar
		user.AvatarURL = avatar
	}
	if len(updates) > 1 {
		updates["updated_at"] = now
	}
	if err := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		s.logger.Warn("user refresh failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	s.cache.Store(cacheKey, user.ID)
	return user, nil
}

func (s *Service) createUser(ctx context.Context, provider, subject string, claims auth.SessionClaims, now time.Time) (User, error) {
	userID, err := s.idProvider.NewID()
	if err != nil {
		return User{}, apperr.Internal(opResolveCreator, "id_generation_failed", err)
	}
	user := User{
		ID:          userID,
		Email:       normalize(claims.UserEmail),
		DisplayName: normalize(claims.UserDisplayName),
		AvatarURL:   normalize(claims.UserAvatarURL),
		LastSeenAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&Identity{Provider: provider, Subject: subject, UserID: user.ID, CreatedAt: now}).Error
	})
	if err != nil {
		s.logError(opResolveCreator, "user_insert_failed", err, zap.String("provider", provider))
		return User{}, apperr.Internal(opResolveCreator, "user_insert_failed", err)
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("provider", provider))
	return user, nil
}

func (s *Service) workspaceFor(ctx context.Context, user User) (Workspace, error) {
	var membership WorkspaceMember
	err := s.db.WithContext(ctx).
		Where("user_id = ?", user.ID).
		Order("created_at ASC").
		Take(&membership).Error
	if err == nil {
		var workspace Workspace
		if err := s.db.WithContext(ctx).Where("id = ?", membership.WorkspaceID).Take(&workspace).Error; err != nil {
			s.logError(opResolveCreator, "workspace_select_failed", err, zap.String("workspace_id", membership.WorkspaceID))
			return Workspace{}, apperr.Internal(opResolveCreator, "workspace_select_failed", err)
		}
		return workspace, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opResolveCreator, "membership_select_failed", err, zap.String("user_id", user.ID))
		return Workspace{}, apperr.Internal(opResolveCreator, "membership_select_failed", err)
	}

	workspaceID, err := s.idProvider.NewID()
	if err != nil {
		return Workspace{}, apperr.Internal(opResolveCreator, "id_generation_failed", err)
	}
	now := s.now().UTC()
	workspace := Workspace{ID: workspaceID, Name: workspaceName(user), CreatedAt: now}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&workspace).Error; err != nil {
			return err
		}
		return tx.Create(&WorkspaceMember{WorkspaceID: workspace.ID, UserID: user.ID, Role: RoleOwner, CreatedAt: now}).Error
	})
	if err != nil {
		s.logError(opResolveCreator, "workspace_insert_failed", err, zap.String("user_id", user.ID))
		return Workspace{}, apperr.Internal(opResolveCreator, "workspace_insert_failed", err)
	}
	return workspace, nil
}

// provisionProfile creates the starter page: an enabled link and a disabled signup form.
// The profile and both blocks commit together.
func (s *Service) provisionProfile(ctx context.Context, user User, workspace Workspace) (profiles.Profile, error) {
	seed := user.Email
	if seed == "" {
		seed = user.DisplayName
	}
	if seed == "" {
		seed = "creator"
	}
	var profile profiles.Profile
	err := dbtx.Run(ctx, s.db, func(ctx context.Context) error {
		handle, err := s.profiles.SuggestHandle(ctx, seed)
		if err != nil {
			return err
		}
		profile, err = s.profiles.Create(ctx, profiles.NewProfile{
			WorkspaceID: workspace.ID,
			Handle:      handle,
			DisplayName: displayNameFor(user, handle),
		})
		if err != nil {
			return err
		}
		if _, err := s.blocks.Insert(ctx, profile.ID, blocks.DefaultData(blocks.TypeLink), true); err != nil {
			return err
		}
		_, err = s.blocks.Insert(ctx, profile.ID, blocks.DefaultData(blocks.TypeSignup), false)
		return err
	})
	if err != nil {
		var appErr *apperr.Error
		if !errors.As(err, &appErr) {
			s.logError(opResolveCreator, "provision_failed", err, zap.String("workspace_id", workspace.ID))
			return profiles.Profile{}, apperr.Internal(opResolveCreator, "provision_failed", err)
		}
		return profiles.Profile{}, err
	}
	s.logger.Info("creator profile provisioned",
		zap.String("profile_id", profile.ID),
		zap.String("workspace_id", workspace.ID),
		zap.String("handle", profile.Handle))
	return profile, nil
}

// OwnerEmail returns the email of the workspace's owner.
func (s *Service) OwnerEmail(ctx context.Context, workspaceID string) (string, error) {
	var emails []string
	err := s.db.WithContext(ctx).
		Table(WorkspaceMember{}.TableName()).
		Joins("JOIN users ON users.id = workspace_members.user_id").
		Where("workspace_members.workspace_id = ? AND workspace_members.role = ?", workspaceID, RoleOwner).
		Order("workspace_members.created_at ASC").
		Limit(1).
		Pluck("users.email", &emails).Error
	if err != nil {
		s.logError(opOwnerEmail, "query_failed", err, zap.String("workspace_id", workspaceID))
		return "", apperr.Internal(opOwnerEmail, "query_failed", err)
	}
	if len(emails) == 0 || strings.TrimSpace(emails[0]) == "" {
		return "", apperr.NotFound(opOwnerEmail, "owner_not_found", ErrOwnerNotFound)
	}
	return strings.TrimSpace(emails[0]), nil
}

// DeleteProfile removes a profile together with its blocks, leads, and analytics events.
func (s *Service) DeleteProfile(ctx context.Context, profileID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("profile_id = ?", profileID).Delete(&blocks.Block{}).Error; err != nil {
			return err
		}
		if err := tx.Where("profile_id = ?", profileID).Delete(&leads.Lead{}).Error; err != nil {
			return err
		}
		if err := tx.Where("profile_id = ?", profileID).Delete(&analytics.Event{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", profileID).Delete(&profiles.Profile{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return profiles.ErrProfileNotFound
		}
		return nil
	})
	if errors.Is(err, profiles.ErrProfileNotFound) {
		return apperr.NotFound(opDeleteProfile, "profile_not_found", err)
	}
	if err != nil {
		s.logError(opDeleteProfile, "delete_failed", err, zap.String("profile_id", profileID))
		return apperr.Internal(opDeleteProfile, "delete_failed", err)
	}
	s.logger.Info("creator profile deleted", zap.String("profile_id", profileID))
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, profileID); err != nil {
			s.logger.Warn("page cache invalidation failed",
				zap.String("operation", opDeleteProfile),
				zap.String("profile_id", profileID),
				zap.Error(err))
		}
	}
	return nil
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
	s.logger.Error("accounts service error", attrs...)
}

func deriveProviderSubject(claims auth.SessionClaims) (string, string) {
	provider := "default"
	subject := normalize(claims.Subject)

	raw := normalize(claims.UserID)
	if raw != "" {
		if strings.Contains(raw, ":") {
			segments := strings.SplitN(raw, ":", 2)
			if normalize(segments[0]) != "" && normalize(segments[1]) != "" {
				provider = normalize(segments[0])
				subject = normalize(segments[1])
			}
		} else if subject == "" {
			subject = raw
		}
	}

	if subject == "" {
		subject = normalize(claims.UserEmail)
	}

	return provider, subject
}

func workspaceName(user User) string {
	if user.DisplayName != "" {
		return user.DisplayName + "'s workspace"
	}
	if user.Email != "" {
		return user.Email
	}
	return "My workspace"
}

func displayNameFor(user User, handle string) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	if at := strings.Index(user.Email, "@"); at > 0 {
		return user.Email[:at]
	}
	return handle
}
