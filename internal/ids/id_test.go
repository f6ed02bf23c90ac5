package ids

import (
	"testing"

	"github.com/google/uuid"
)

func TestUUIDProviderIssuesVersion7Identifiers(t *testing.T) {
	provider := NewUUIDProvider()
	first, err := provider.NewID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := provider.NewID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct identifiers, got %s twice", first)
	}
	parsed, err := uuid.Parse(first)
	if err != nil {
		t.Fatalf("identifier is not a uuid: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
}

func TestSequenceProviderCountsUp(t *testing.T) {
	provider := &SequenceProvider{Prefix: "block"}
	for _, expected := range []string{"block-1", "block-2", "block-3"} {
		value, err := provider.NewID()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != expected {
			t.Fatalf("expected %s, got %s", expected, value)
		}
	}
}
