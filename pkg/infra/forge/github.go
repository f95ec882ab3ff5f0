package forge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hirosegw/changeboard/pkg/domain/model"
	"github.com/hirosegw/changeboard/pkg/domain/types"
	"github.com/hirosegw/changeboard/pkg/infra/httpclient"
)

const (
	githubAPIDefault = "https://api.github.com"
	githubWebDefault = "https://github.com"
	githubAPIPath    = "/api/v3" // GitHub Enterprise Server
)

type githubFetcher struct {
	client *httpclient.Client
}

type githubRelease struct {
	ID          int64      `json:"id"`
	TagName     string     `json:"tag_name"`
	Name        string     `json:"name"`
	Body        string     `json:"body"`
	HTMLURL     string     `json:"html_url"`
	Draft       bool       `json:"draft"`
	Prerelease  bool       `json:"prerelease"`
	PublishedAt *time.Time `json:"published_at"`
}

type githubCommit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Date *time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

func (f *githubFetcher) FetchReleases(ctx context.Context, src model.SourceConfig) ([]model.AggregatedRelease, error) {
	api := resolveBase(src, githubAPIDefault, githubAPIPath)
	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")
	authorize(header, src)

	url := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d", api, src.Owner, src.Repo, src.Limit())

	var raw []githubRelease
	if err := getJSON(ctx, f.client, types.ProviderGitHub, url, header, &raw); err != nil {
		if IsRateLimit(err) {
			return nil, err
		}
		return f.fetchCommits(ctx, src, api, header)
	}

	releases := make([]model.AggregatedRelease, 0, len(raw))
	for _, r := range raw {
		if r.Draft {
			continue
		}
		publishedAt := unixEpoch
		if r.PublishedAt != nil {
			publishedAt = *r.PublishedAt
		}
		releases = append(releases, model.AggregatedRelease{
			ID:          releaseID(src.ID, fmt.Sprintf("%d", r.ID)),
			SourceID:    src.ID,
			SourceName:  src.DisplayName,
			Provider:    types.ProviderGitHub,
			Repository:  src.Repository(),
			Kind:        model.KindRelease,
			TagName:     r.TagName,
			Name:        r.Name,
			Body:        r.Body,
			BodyExcerpt: excerpt(r.Body, releaseExcerptLen),
			HTMLURL:     r.HTMLURL,
			Prerelease:  r.Prerelease,
			PublishedAt: publishedAt,
		})
	}

	// Repository without formal releases, synthesize entries from commits.
	if len(releases) == 0 {
		return f.fetchCommits(ctx, src, api, header)
	}
	return releases, nil
}

func (f *githubFetcher) fetchCommits(ctx context.Context, src model.SourceConfig, api string, header http.Header) ([]model.AggregatedRelease, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/commits?per_page=%d", api, src.Owner, src.Repo, src.Limit())

	var raw []githubCommit
	if err := getJSON(ctx, f.client, types.ProviderGitHub, url, header, &raw); err != nil {
		return nil, err
	}

	releases := make([]model.AggregatedRelease, 0, len(raw))
	for _, c := range raw {
		publishedAt := unixEpoch
		if c.Commit.Author.Date != nil {
			publishedAt = *c.Commit.Author.Date
		}
		releases = append(releases, commitRelease(src, types.ProviderGitHub,
			c.SHA, c.Commit.Message, c.HTMLURL, publishedAt))
	}
	return releases, nil
}
