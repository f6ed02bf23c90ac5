package blocks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/sundae/internal/apperr"
	"github.com/MarcoPoloResearchLab/sundae/internal/dbtx"
	"github.com/MarcoPoloResearchLab/sundae/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrBlockNotFound covers both missing blocks and blocks owned by another profile.
	ErrBlockNotFound     = errors.New("blocks: block not found")
	ErrInvalidDirection  = errors.New("blocks: direction must be up or down")
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingProfileID  = errors.New("profile identifier is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew = "blocks.service.new"
	opList       = "blocks.list"
	opGet        = "blocks.get"
	opCreate     = "blocks.create"
	opUpdate     = "blocks.update"
	opToggle     = "blocks.toggle"
	opDelete     = "blocks.delete"
	opMove       = "blocks.move"
)

// Direction is the way a block moves relative to its siblings.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(raw))) {
	case DirectionUp:
		return DirectionUp, nil
	case DirectionDown:
		return DirectionDown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, raw)
	}
}

// Invalidator drops cached renderings of a profile's pages.
type Invalidator interface {
	Invalidate(ctx context.Context, profileID string) error
}

type ServiceConfig struct {
	Database    *gorm.DB
	Clock       func() time.Time
	IDProvider  ids.Provider
	Invalidator Invalidator
	Logger      *zap.Logger
}

// Service stores blocks and enforces per-profile ownership on every mutation.
type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	idProvider  ids.Provider
	invalidator Invalidator
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
		logger:      logger,
	}, nil
}

// List returns every block of the profile in render order.
func (s *Service) List(ctx context.Context, profileID string) ([]Block, error) {
	return s.list(ctx, opList, profileID, false)
}

// ListEnabled returns the blocks a visitor sees, in render order.
func (s *Service) ListEnabled(ctx context.Context, profileID string) ([]Block, error) {
	return s.list(ctx, opList, profileID, true)
}

func (s *Service) list(ctx context.Context, operation, profileID string, enabledOnly bool) ([]Block, error) {
	if strings.TrimSpace(profileID) == "" {
		return nil, apperr.Invalid(operation, "missing_profile_id", errMissingProfileID)
	}
	query := dbtx.From(ctx, s.db).Where("profile_id = ?", profileID)
	if enabledOnly {
		query = query.Where("enabled = ?", true)
	}
	var rows []Block
	if err := query.Order("sort_order ASC").Order("created_at ASC").Find(&rows).Error; err != nil {
		s.logError(operation, "query_failed", err, zap.String("profile_id", profileID))
		return nil, apperr.Internal(operation, "query_failed", err)
	}
	return rows, nil
}

// Get loads a block without an ownership check; public surfaces decide what to expose.
func (s *Service) Get(ctx context.Context, blockID string) (Block, error) {
	var block Block
	err := dbtx.From(ctx, s.db).Where("id = ?", strings.TrimSpace(blockID)).Take(&block).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Block{}, apperr.NotFound(opGet, "block_not_found", ErrBlockNotFound)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("block_id", blockID))
		return Block{}, apperr.Internal(opGet, "query_failed", err)
	}
	return block, nil
}

// Create appends a block of the given type with its default payload.
func (s *Service) Create(ctx context.Context, profileID string, blockType Type) (Block, error) {
	if _, err := ParseType(string(blockType)); err != nil {
		return Block{}, apperr.Invalid(opCreate, "invalid_type", err)
	}
	return s.Insert(ctx, profileID, DefaultData(blockType), true)
}

// Insert appends a block with an explicit payload after the profile's last block.
func (s *Service) Insert(ctx context.Context, profileID string, data Data, enabled bool) (Block, error) {
	if strings.TrimSpace(profileID) == "" {
		return Block{}, apperr.Invalid(opCreate, "missing_profile_id", errMissingProfileID)
	}
	encoded, err := EncodeData(data)
	if err != nil {
		return Block{}, apperr.Invalid(opCreate, "invalid_payload", err)
	}
	blockID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Block{}, apperr.Internal(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	block := Block{
		ID:        blockID,
		ProfileID: profileID,
		Type:      data.BlockType(),
		Enabled:   enabled,
		Data:      encoded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	txErr := dbtx.From(ctx, s.db).Transaction(func(tx *gorm.DB) error {
		var maxSort int
		if err := tx.Model(&Block{}).
			Where("profile_id = ?", profileID).
			Select("COALESCE(MAX(sort_order), 0)").
			Scan(&maxSort).Error; err != nil {
			return err
		}
		block.SortOrder = maxSort + 1
		return tx.Create(&block).Error
	})
	if txErr != nil {
		s.logError(opCreate, "insert_failed", txErr, zap.String("profile_id", profileID))
		return Block{}, apperr.Internal(opCreate, "insert_failed", txErr)
	}
	s.invalidate(ctx, opCreate, profileID)
	return block, nil
}

// Update replaces the payload wholesale with form input coerced to the stored type.
func (s *Service) Update(ctx context.Context, profileID, blockID string, form FormValues) (Block, error) {
	block, err := s.owned(ctx, opUpdate, profileID, blockID)
	if err != nil {
		return Block{}, err
	}
	data, err := CoerceForm(block.Type, form)
	if err != nil {
		return Block{}, apperr.Invalid(opUpdate, "invalid_payload", err)
	}
	encoded, err := EncodeData(data)
	if err != nil {
		return Block{}, apperr.Invalid(opUpdate, "invalid_payload", err)
	}
	block.Data = encoded
	block.UpdatedAt = s.clock().UTC()
	if err := dbtx.From(ctx, s.db).Model(&Block{}).
		Where("id = ?", block.ID).
		Updates(map[string]any{"data": block.Data, "updated_at": block.UpdatedAt}).Error; err != nil {
		s.logError(opUpdate, "update_failed", err, zap.String("block_id", block.ID))
		return Block{}, apperr.Internal(opUpdate, "update_failed", err)
	}
	s.invalidate(ctx, opUpdate, profileID)
	return block, nil
}

// Toggle flips the enabled flag.
func (s *Service) Toggle(ctx context.Context, profileID, blockID string) (Block, error) {
	block, err := s.owned(ctx, opToggle, profileID, blockID)
	if err != nil {
		return Block{}, err
	}
	block.Enabled = !block.Enabled
	block.UpdatedAt = s.clock().UTC()
	if err := dbtx.From(ctx, s.db).Model(&Block{}).
		Where("id = ?", block.ID).
		Updates(map[string]any{"enabled": block.Enabled, "updated_at": block.UpdatedAt}).Error; err != nil {
		s.logError(opToggle, "update_failed", err, zap.String("block_id", block.ID))
		return Block{}, apperr.Internal(opToggle, "update_failed", err)
	}
	s.invalidate(ctx, opToggle, profileID)
	return block, nil
}

func (s *Service) Delete(ctx context.Context, profileID, blockID string) error {
	block, err := s.owned(ctx, opDelete, profileID, blockID)
	if err != nil {
		return err
	}
	if err := dbtx.From(ctx, s.db).Where("id = ?", block.ID).Delete(&Block{}).Error; err != nil {
		s.logError(opDelete, "delete_failed", err, zap.String("block_id", block.ID))
		return apperr.Internal(opDelete, "delete_failed", err)
	}
	s.invalidate(ctx, opDelete, profileID)
	return nil
}

// Move swaps the block's sort order with its neighbour in the given direction.
// Moving the first block up or the last block down changes nothing.
func (s *Service) Move(ctx context.Context, profileID, blockID string, direction Direction) error {
	direction, err := ParseDirection(string(direction))
	if err != nil {
		return apperr.Invalid(opMove, "invalid_direction", err)
	}
	if strings.TrimSpace(profileID) == "" {
		return apperr.Invalid(opMove, "missing_profile_id", errMissingProfileID)
	}

	swapped := false
	txErr := dbtx.From(ctx, s.db).Transaction(func(tx *gorm.DB) error {
		var siblings []Block
		if err := tx.Where("profile_id = ?", profileID).
			Order("sort_order ASC").Order("created_at ASC").
			Find(&siblings).Error; err != nil {
			return apperr.Internal(opMove, "query_failed", err)
		}

		index := -1
		for i, sibling := range siblings {
			if sibling.ID == blockID {
				index = i
				break
			}
		}
		if index < 0 {
			return apperr.NotFound(opMove, "block_not_found", ErrBlockNotFound)
		}

		target := index + 1
		if direction == DirectionUp {
			target = index - 1
		}
		if target < 0 || target >= len(siblings) {
			return nil
		}

		current, neighbour := siblings[index], siblings[target]
		now := s.clock().UTC()
		if err := tx.Model(&Block{}).Where("id = ?", current.ID).
			Updates(map[string]any{"sort_order": neighbour.SortOrder, "updated_at": now}).Error; err != nil {
			return apperr.Internal(opMove, "update_failed", err)
		}
		if err := tx.Model(&Block{}).Where("id = ?", neighbour.ID).
			Updates(map[string]any{"sort_order": current.SortOrder, "updated_at": now}).Error; err != nil {
			return apperr.Internal(opMove, "update_failed", err)
		}
		swapped = true
		return nil
	})
	if txErr != nil {
		if apperr.KindOf(txErr) == apperr.KindInternal {
			s.logError(opMove, apperr.ReasonOf(txErr), txErr, zap.String("block_id", blockID))
		}
		return txErr
	}
	if swapped {
		s.invalidate(ctx, opMove, profileID)
	}
	return nil
}

func (s *Service) owned(ctx context.Context, operation, profileID, blockID string) (Block, error) {
	if strings.TrimSpace(profileID) == "" {
		return Block{}, apperr.Invalid(operation, "missing_profile_id", errMissingProfileID)
	}
	var block Block
	err := dbtx.From(ctx, s.db).
		Where("id = ? AND profile_id = ?", strings.TrimSpace(blockID), profileID).
		Take(&block).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Block{}, apperr.NotFound(operation, "block_not_found", ErrBlockNotFound)
	}
	if err != nil {
		s.logError(operation, "query_failed", err, zap.String("block_id", blockID))
		return Block{}, apperr.Internal(operation, "query_failed", err)
	}
	return block, nil
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
	s.logger.Error("blocks service error", attrs...)
}
