package blocks

import (
	"context"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/sundae/internal/ids"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type recordingInvalidator struct {
	mu         sync.Mutex
	profileIDs []string
	err        error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, profileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profileIDs = append(r.profileIDs, profileID)
	return r.err
}

func (r *recordingInvalidator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.profileIDs)
}

type steppingClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(time.Second)
	return c.current
}

func newTestService(t *testing.T) (*Service, *recordingInvalidator) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "blocks.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Block{}); err != nil {
		t.Fatalf("failed to migrate blocks: %v", err)
	}
	invalidator := &recordingInvalidator{}
	clock := &steppingClock{current: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	service, err := NewService(ServiceConfig{
		Database:    db,
		Clock:       clock.Now,
		IDProvider:  &ids.SequenceProvider{Prefix: "block"},
		Invalidator: invalidator,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, invalidator
}

func mustCreate(t *testing.T, service *Service, profileID string, blockType Type) Block {
	t.Helper()
	block, err := service.Create(context.Background(), profileID, blockType)
	if err != nil {
		t.Fatalf("create %s failed: %v", blockType, err)
	}
	return block
}

func orderedIDs(t *testing.T, service *Service, profileID string) []string {
	t.Helper()
	rows, err := service.List(context.Background(), profileID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	result := make([]string, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.ID)
	}
	return result
}

func form(pairs ...string) url.Values {
	values := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		values.Set(pairs[i], pairs[i+1])
	}
	return values
}
