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
	giteaAPIDefault = "https://gitea.com/api/v1"
	giteaAPIPath    = "/api/v1"
)

type giteaFetcher struct {
	client *httpclient.Client
}

// Gitea mirrors GitHub's release shape but paginates with "limit"
type giteaRelease struct {
	ID          int64      `json:"id"`
	TagName     string     `json:"tag_name"`
	Name        string     `json:"name"`
	Body        string     `json:"body"`
	HTMLURL     string     `json:"html_url"`
	Draft       bool       `json:"draft"`
	Prerelease  bool       `json:"prerelease"`
	PublishedAt *time.Time `json:"published_at"`
}

type giteaCommit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Date *time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

func (f *giteaFetcher) FetchReleases(ctx context.Context, src model.SourceConfig) ([]model.AggregatedRelease, error) {
	api := resolveBase(src, giteaAPIDefault, giteaAPIPath)
	header := http.Header{}
	authorize(header, src)

	url := fmt.Sprintf("%s/repos/%s/%s/releases?limit=%d", api, src.Owner, src.Repo, src.Limit())

	var raw []giteaRelease
	if err := getJSON(ctx, f.client, types.ProviderGitea, url, header, &raw); err != nil {
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
			Provider:    types.ProviderGitea,
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

	if len(releases) == 0 {
		return f.fetchCommits(ctx, src, api, header)
	}
	return releases, nil
}

func (f *giteaFetcher) fetchCommits(ctx context.Context, src model.SourceConfig, api string, header http.Header) ([]model.AggregatedRelease, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/commits?limit=%d", api, src.Owner, src.Repo, src.Limit())

	var raw []giteaCommit
	if err := getJSON(ctx, f.client, types.ProviderGitea, url, header, &raw); err != nil {
		return nil, err
	}

	releases := make([]model.AggregatedRelease, 0, len(raw))
	for _, c := range raw {
		publishedAt := unixEpoch
		if c.Commit.Author.Date != nil {
			publishedAt = *c.Commit.Author.Date
		}
		releases = append(releases, commitRelease(src, types.ProviderGitea,
			c.SHA, c.Commit.Message, c.HTMLURL, publishedAt))
	}
	return releases, nil
}
