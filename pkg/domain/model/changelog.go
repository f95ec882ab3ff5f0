package model

import (
	"time"

	"github.com/hirosegw/changeboard/pkg/domain/types"
)

// ReleaseKind distinguishes provider-native releases from commit-derived entries
type ReleaseKind string

const (
	KindRelease ReleaseKind = "release"
	KindCommit  ReleaseKind = "commit"
)

// AggregatedRelease is one normalized changelog entry from any provider
type AggregatedRelease struct {
	ID          string         `json:"id"` // "{sourceId}:{nativeId}" or "{sourceId}:commit:{sha}"
	SourceID    string         `json:"sourceId"`
	SourceName  string         `json:"sourceName"`
	Provider    types.Provider `json:"provider"`
	Repository  string         `json:"repository"` // "owner/repo"
	Kind        ReleaseKind    `json:"kind"`
	TagName     string         `json:"tagName"`
	Name        string         `json:"name"`
	Body        string         `json:"body"`
	BodyExcerpt string         `json:"bodyExcerpt"`
	HTMLURL     string         `json:"htmlUrl"`
	Prerelease  bool           `json:"prerelease"`
	Draft       bool           `json:"draft"`
	PublishedAt time.Time      `json:"publishedAt"`
}

// SourceFetchError records one source's failure without aborting the page
type SourceFetchError struct {
	SourceID   string `json:"sourceId"`
	SourceName string `json:"sourceName"`
	Repository string `json:"repository"`
	Message    string `json:"message"`
}

// UnifiedChangelog is the merged, time-ordered feed for one page.
// Releases are sorted descending by PublishedAt.
type UnifiedChangelog struct {
	FetchedAt time.Time           `json:"fetchedAt"`
	Releases  []AggregatedRelease `json:"releases"`
	Errors    []SourceFetchError  `json:"errors"`
}
