// Package redirects resolves tracked link clicks to their destinations.
package redirects

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/sundae/internal/apperr"
	"github.com/MarcoPoloResearchLab/sundae/internal/blocks"
	"github.com/MarcoPoloResearchLab/sundae/internal/outcome"
	"go.uber.org/zap"
)

const opResolve = "redirects.resolve"

// ErrNotFound covers missing, disabled, and non-link blocks as well as unusable destinations.
var ErrNotFound = errors.New("redirects: no destination")

type BlockSource interface {
	Get(ctx context.Context, blockID string) (blocks.Block, error)
}

type ClickRecorder interface {
	RecordClick(ctx context.Context, profileID, destination, ip string) outcome.Outcome
}

// Target is a resolved destination and the result of logging the click.
type Target struct {
	BlockID   string
	ProfileID string
	URL       string
	Click     outcome.Outcome
}

type Resolver struct {
	blocks BlockSource
	clicks ClickRecorder
	logger *zap.Logger
}

func NewResolver(source BlockSource, clicks ClickRecorder, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{blocks: source, clicks: clicks, logger: logger}
}

// Resolve loads the link block and records a click before handing back its URL unchanged.
func (r *Resolver) Resolve(ctx context.Context, blockID, visitorIP string) (Target, error) {
	block, err := r.blocks.Get(ctx, blockID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return Target{}, apperr.NotFound(opResolve, "block_not_found", ErrNotFound)
		}
		return Target{}, err
	}
	if block.Type != blocks.TypeLink || !block.Enabled {
		return Target{}, apperr.NotFound(opResolve, "not_an_enabled_link", ErrNotFound)
	}
	link, ok := block.Payload().(blocks.LinkData)
	if !ok || !IsRedirectable(link.URL) {
		return Target{}, apperr.NotFound(opResolve, "invalid_destination", ErrNotFound)
	}

	target := Target{BlockID: block.ID, ProfileID: block.ProfileID, URL: strings.TrimSpace(link.URL)}
	target.Click = outcome.Skipped("no recorder")
	if r.clicks != nil {
		target.Click = r.clicks.RecordClick(ctx, block.ProfileID, target.URL, visitorIP)
	}
	target.Click.Log(r.logger, "click recording", zap.String("block_id", block.ID))
	return target, nil
}

// IsRedirectable accepts absolute http(s) URLs with a host.
func IsRedirectable(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	return (scheme == "http" || scheme == "https") && parsed.Host != ""
}
