package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/sundae/internal/apperr"
	"github.com/MarcoPoloResearchLab/sundae/internal/ids"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type countingInvalidator struct {
	profileIDs []string
}

func (c *countingInvalidator) Invalidate(_ context.Context, profileID string) error {
	c.profileIDs = append(c.profileIDs, profileID)
	return nil
}

func newTestService(t *testing.T) (*Service, *countingInvalidator) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "profiles.db")), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Profile{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	invalidator := &countingInvalidator{}
	service, err := NewService(ServiceConfig{
		Database:    db,
		Clock:       func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) },
		IDProvider:  &ids.SequenceProvider{Prefix: "profile"},
		Invalidator: invalidator,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, invalidator
}

func mustCreateProfile(t *testing.T, service *Service, handle string) Profile {
	t.Helper()
	profile, err := service.Create(context.Background(), NewProfile{WorkspaceID: "ws-" + handle, Handle: handle, DisplayName: "Creator " + handle})
	if err != nil {
		t.Fatalf("create %s failed: %v", handle, err)
	}
	return profile
}

func TestGetByHandleNormalizesInput(t *testing.T) {
	service, _ := newTestService(t)
	created := mustCreateProfile(t, service, "sundae_fan")

	found, err := service.GetByHandle(context.Background(), "  @Sundae_Fan ")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("expected %s, got %s", created.ID, found.ID)
	}

	_, err = service.GetByHandle(context.Background(), "nobody-here")
	if !errors.Is(err, ErrProfileNotFound) || apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateHandle(t *testing.T) {
	service, invalidator := newTestService(t)
	ctx := context.Background()
	profile := mustCreateProfile(t, service, "first")
	mustCreateProfile(t, service, "taken")

	if _, err := service.UpdateHandle(ctx, profile.ID, "Taken"); !errors.Is(err, ErrHandleTaken) {
		t.Fatalf("expected ErrHandleTaken, got %v", err)
	}
	if _, err := service.UpdateHandle(ctx, profile.ID, "no spaces"); apperr.KindOf(err) != apperr.KindInvalid {
		t.Fatalf("expected invalid handle, got %v", err)
	}
	if _, err := service.UpdateHandle(ctx, profile.ID, "app"); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("expected reserved handle to be rejected, got %v", err)
	}

	unchanged, err := service.UpdateHandle(ctx, profile.ID, "@First")
	if err != nil || unchanged.Handle != "first" {
		t.Fatalf("same handle should be a no-op, got %+v (%v)", unchanged, err)
	}
	if len(invalidator.profileIDs) != 0 {
		t.Fatalf("no-op handle update should not invalidate")
	}

	renamed, err := service.UpdateHandle(ctx, profile.ID, "second")
	if err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if renamed.Handle != "second" {
		t.Fatalf("expected new handle, got %s", renamed.Handle)
	}
	if _, err := service.GetByHandle(ctx, "first"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("old handle should no longer resolve")
	}
	if len(invalidator.profileIDs) != 1 || invalidator.profileIDs[0] != profile.ID {
		t.Fatalf("expected one invalidation for %s, got %v", profile.ID, invalidator.profileIDs)
	}
}

func TestUpdateProfileRequiresDisplayName(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	profile := mustCreateProfile(t, service, "creator")

	_, err := service.UpdateProfile(ctx, profile.ID, ProfileInput{DisplayName: "   "})
	if apperr.ReasonOf(err) != "display_name_required" {
		t.Fatalf("expected display_name_required, got %v", err)
	}
	_, err = service.UpdateProfile(ctx, profile.ID, ProfileInput{DisplayName: "Ok", AvatarURL: "not a url"})
	if apperr.ReasonOf(err) != "invalid_avatar_url" {
		t.Fatalf("expected invalid_avatar_url, got %v", err)
	}

	updated, err := service.UpdateProfile(ctx, profile.ID, ProfileInput{DisplayName: " Ada ", Bio: " Makes things ", AvatarURL: ""})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	reloaded, err := service.GetByID(ctx, updated.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.DisplayName != "Ada" || reloaded.BioText() != "Makes things" || reloaded.AvatarURL != nil {
		t.Fatalf("unexpected stored profile: %+v", reloaded)
	}
}

func TestUpdateThemeMergesKnownKeys(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	profile := mustCreateProfile(t, service, "painter")
	if err := service.db.Model(&Profile{}).Where("id = ?", profile.ID).Update("theme", `{"custom":"kept","text":"red"}`).Error; err != nil {
		t.Fatalf("seed theme failed: %v", err)
	}

	updated, err := service.UpdateTheme(ctx, profile.ID, ThemeInput{Accent: " gold ", Effects: "sparkly", Layout: "showcase"})
	if err != nil {
		t.Fatalf("update theme failed: %v", err)
	}
	var stored map[string]any
	if err := json.Unmarshal(updated.Theme, &stored); err != nil {
		t.Fatalf("decode theme: %v", err)
	}
	if stored["custom"] != "kept" || stored["text"] != "red" || stored["accent"] != "gold" || stored["layout"] != "showcase" {
		t.Fatalf("unexpected merged theme: %v", stored)
	}
	if _, ok := stored["effects"]; ok {
		t.Fatalf("unknown effects value must be ignored: %v", stored)
	}
}

func TestApplyThemePresetKeepsLayout(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	profile := mustCreateProfile(t, service, "nightowl")
	if _, err := service.UpdateTheme(ctx, profile.ID, ThemeInput{Layout: "showcase"}); err != nil {
		t.Fatalf("seed layout failed: %v", err)
	}

	updated, err := service.ApplyThemePreset(ctx, profile.ID, "strawberry-night")
	if err != nil {
		t.Fatalf("apply preset failed: %v", err)
	}
	theme := updated.ThemeSettings()
	if theme.Layout != "showcase" || theme.Accent != "oklch(0.76 0.2 320)" {
		t.Fatalf("unexpected theme after preset: %+v", theme)
	}
	if _, err := service.ApplyThemePreset(ctx, profile.ID, "rocky-road"); !errors.Is(err, ErrUnknownPreset) {
		t.Fatalf("expected ErrUnknownPreset, got %v", err)
	}
}

func TestSuggestHandleAvoidsCollisions(t *testing.T) {
	service, _ := newTestService(t)
	mustCreateProfile(t, service, "ada")

	suggestion, err := service.SuggestHandle(context.Background(), "Ada@example.com")
	if err != nil {
		t.Fatalf("suggest failed: %v", err)
	}
	if suggestion != "ada-2" {
		t.Fatalf("expected ada-2, got %s", suggestion)
	}
	short, err := service.SuggestHandle(context.Background(), "j.")
	if err != nil {
		t.Fatalf("suggest failed: %v", err)
	}
	if ValidateHandle(short) != nil {
		t.Fatalf("suggested handle %q is not valid", short)
	}
}
