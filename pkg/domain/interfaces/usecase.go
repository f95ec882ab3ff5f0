package interfaces

import (
	"context"

	"github.com/hirosegw/changeboard/pkg/domain/model"
)

// ChangelogUseCase defines the aggregation engine's public surface
type ChangelogUseCase interface {
	// GetUnifiedChangelog returns the merged feed for a page, serving from
	// cache or the persisted snapshot when fresh. forceRefresh bypasses both
	// and triggers a new aggregation.
	GetUnifiedChangelog(ctx context.Context, pageID string, forceRefresh bool) (*model.UnifiedChangelog, error)

	// Invalidate clears the in-memory cache for one page, or for all pages
	// when pageID is empty. The persisted snapshot is unaffected.
	Invalidate(pageID string)
}
