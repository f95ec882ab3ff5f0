package interfaces

import (
	"context"

	"github.com/hirosegw/changeboard/pkg/domain/model"
)

// SourceStore provides the source configurations for a page
type SourceStore interface {
	// ListEnabledSources returns the enabled sources for the given page
	ListEnabledSources(ctx context.Context, pageID string) ([]model.SourceConfig, error)
}

// SnapshotStore persists the last successfully aggregated payload per page
type SnapshotStore interface {
	// GetSnapshot returns the persisted payload for the page, or nil if none exists
	GetSnapshot(ctx context.Context, pageID string) (*model.UnifiedChangelog, error)

	// SaveSnapshot replaces the persisted payload for the page
	SaveSnapshot(ctx context.Context, pageID string, changelog *model.UnifiedChangelog) error
}
