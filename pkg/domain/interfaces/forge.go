package interfaces

import (
	"context"

	"github.com/hirosegw/changeboard/pkg/domain/model"
)

// ReleaseFetcher retrieves changelog entries from one provider.
//
// A fetcher returns the normalized records for the source, falling back to
// commit history when the repository has no formal releases. A non-nil error
// means the source contributed nothing; partial results with an error do not
// occur.
type ReleaseFetcher interface {
	FetchReleases(ctx context.Context, src model.SourceConfig) ([]model.AggregatedRelease, error)
}
