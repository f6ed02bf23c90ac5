package redirects

import (
	"context"
	"errors"
	"testing"

	"github.com/MarcoPoloResearchLab/sundae/internal/apperr"
	"github.com/MarcoPoloResearchLab/sundae/internal/blocks"
	"github.com/MarcoPoloResearchLab/sundae/internal/outcome"
)

type blockTable map[string]blocks.Block

func (b blockTable) Get(_ context.Context, blockID string) (blocks.Block, error) {
	block, ok := b[blockID]
	if !ok {
		return blocks.Block{}, apperr.NotFound("blocks.get", "block_not_found", blocks.ErrBlockNotFound)
	}
	return block, nil
}

type clickLog struct {
	calls  []string
	result outcome.Outcome
}

func (c *clickLog) RecordClick(_ context.Context, profileID, destination, _ string) outcome.Outcome {
	c.calls = append(c.calls, profileID+" "+destination)
	return c.result
}

func linkBlock(t *testing.T, id string, enabled bool, destination string) blocks.Block {
	t.Helper()
	data, err := blocks.EncodeData(blocks.LinkData{Title: "My Link", URL: destination})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return blocks.Block{ID: id, ProfileID: "profile-1", Type: blocks.TypeLink, Enabled: enabled, Data: data}
}

func TestResolveReturnsStoredURLAndRecordsClick(t *testing.T) {
	clicks := &clickLog{result: outcome.Succeeded()}
	resolver := NewResolver(blockTable{"b1": linkBlock(t, "b1", true, "https://example.com/?e2e=1")}, clicks, nil)

	target, err := resolver.Resolve(context.Background(), "b1", "203.0.113.7")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if target.URL != "https://example.com/?e2e=1" {
		t.Fatalf("query string must be preserved, got %s", target.URL)
	}
	if len(clicks.calls) != 1 || clicks.calls[0] != "profile-1 https://example.com/?e2e=1" {
		t.Fatalf("expected one click record, got %v", clicks.calls)
	}
}

func TestResolveRejectsUnusableBlocks(t *testing.T) {
	textData, _ := blocks.EncodeData(blocks.TextData{Markdown: "hi"})
	source := blockTable{
		"disabled": linkBlock(t, "disabled", false, "https://example.com"),
		"empty":    linkBlock(t, "empty", true, ""),
		"script":   linkBlock(t, "script", true, "javascript:alert(1)"),
		"relative": linkBlock(t, "relative", true, "/somewhere"),
		"text":     {ID: "text", ProfileID: "profile-1", Type: blocks.TypeText, Enabled: true, Data: textData},
	}
	clicks := &clickLog{result: outcome.Succeeded()}
	resolver := NewResolver(source, clicks, nil)

	for _, blockID := range []string{"disabled", "empty", "script", "relative", "text", "missing"} {
		_, err := resolver.Resolve(context.Background(), blockID, "")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", blockID, err)
		}
		if apperr.KindOf(err) != apperr.KindNotFound {
			t.Fatalf("%s: expected not_found kind", blockID)
		}
	}
	if len(clicks.calls) != 0 {
		t.Fatalf("no clicks should be recorded for rejected blocks, got %v", clicks.calls)
	}
}

func TestResolveIgnoresClickFailures(t *testing.T) {
	clicks := &clickLog{result: outcome.Failed(errors.New("database is locked"))}
	resolver := NewResolver(blockTable{"b1": linkBlock(t, "b1", true, "https://example.com")}, clicks, nil)

	target, err := resolver.Resolve(context.Background(), "b1", "")
	if err != nil {
		t.Fatalf("click failures must not fail the redirect: %v", err)
	}
	if target.URL != "https://example.com" || !target.Click.Failed() {
		t.Fatalf("unexpected target: %+v", target)
	}
}
