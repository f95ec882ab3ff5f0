package model

import "github.com/hirosegw/changeboard/pkg/domain/types"

const (
	// MinReleasesLimit and MaxReleasesLimit bound how many entries one
	// source may contribute per fetch
	MinReleasesLimit = 1
	MaxReleasesLimit = 25
)

// SourceConfig describes one configured repository contributing to a page's feed
type SourceConfig struct {
	ID            string         `json:"id"`
	PageID        string         `json:"pageId"`
	DisplayName   string         `json:"displayName"`
	Provider      types.Provider `json:"provider"`
	Owner         string         `json:"owner"`
	Repo          string         `json:"repo"`
	BaseURL       string         `json:"baseUrl,omitempty"` // self-hosted instance, empty for the provider's cloud
	IsPrivate     bool           `json:"isPrivate"`
	AccessToken   string         `json:"-"`
	Enabled       bool           `json:"enabled"`
	ReleasesLimit int            `json:"releasesLimit"`
}

// Repository returns the "owner/repo" form used in error messages and records
func (s SourceConfig) Repository() string {
	return s.Owner + "/" + s.Repo
}

// Limit returns ReleasesLimit clamped to the allowed range
func (s SourceConfig) Limit() int {
	if s.ReleasesLimit < MinReleasesLimit {
		return MinReleasesLimit
	}
	if s.ReleasesLimit > MaxReleasesLimit {
		return MaxReleasesLimit
	}
	return s.ReleasesLimit
}
