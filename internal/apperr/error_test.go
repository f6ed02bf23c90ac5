package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCarriesCodeKindAndCause(t *testing.T) {
	cause := errors.New("row missing")
	err := NotFound("blocks.toggle", "block_not_found", cause)

	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not_found kind, got %s", KindOf(err))
	}
	if CodeOf(err) != "blocks.toggle.block_not_found" {
		t.Fatalf("unexpected code %q", CodeOf(err))
	}
	if ReasonOf(err) != "block_not_found" {
		t.Fatalf("unexpected reason %q", ReasonOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
	if err.Error() != "blocks.toggle.block_not_found: row missing" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestKindOfSeesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", Conflict("profiles.update_handle", "handle_taken", nil))
	if KindOf(wrapped) != KindConflict {
		t.Fatalf("expected conflict kind, got %s", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatalf("plain errors should classify as internal")
	}
	if ReasonOf(errors.New("plain")) != "internal_error" {
		t.Fatalf("plain errors should report internal_error")
	}
}
