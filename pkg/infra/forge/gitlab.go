package forge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hirosegw/changeboard/pkg/domain/model"
	"github.com/hirosegw/changeboard/pkg/domain/types"
	"github.com/hirosegw/changeboard/pkg/infra/httpclient"
)

const (
	gitlabAPIDefault = "https://gitlab.com/api/v4"
	gitlabWebDefault = "https://gitlab.com"
	gitlabAPIPath    = "/api/v4"
)

type gitlabFetcher struct {
	client *httpclient.Client
}

type gitlabRelease struct {
	TagName         string     `json:"tag_name"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	ReleasedAt      *time.Time `json:"released_at"`
	UpcomingRelease bool       `json:"upcoming_release"`
	Links           struct {
		Self string `json:"self"`
	} `json:"_links"`
}

type gitlabCommit struct {
	ID           string     `json:"id"`
	ShortID      string     `json:"short_id"`
	Message      string     `json:"message"`
	AuthoredDate *time.Time `json:"authored_date"`
	WebURL       string     `json:"web_url"`
}

func (f *gitlabFetcher) FetchReleases(ctx context.Context, src model.SourceConfig) ([]model.AggregatedRelease, error) {
	api := resolveBase(src, gitlabAPIDefault, gitlabAPIPath)
	web := webBase(src, gitlabWebDefault)
	project := url.PathEscape(src.Owner + "/" + src.Repo)
	header := http.Header{}
	authorize(header, src)

	reqURL := fmt.Sprintf("%s/projects/%s/releases?per_page=%d", api, project, src.Limit())

	var raw []gitlabRelease
	if err := getJSON(ctx, f.client, types.ProviderGitLab, reqURL, header, &raw); err != nil {
		if IsRateLimit(err) {
			return nil, err
		}
		return f.fetchCommits(ctx, src, api, project, header)
	}

	releases := make([]model.AggregatedRelease, 0, len(raw))
	for _, r := range raw {
		htmlURL := r.Links.Self
		if htmlURL == "" {
			htmlURL = fmt.Sprintf("%s/%s/%s/-/releases/%s", web, src.Owner, src.Repo, url.PathEscape(r.TagName))
		}
		publishedAt := unixEpoch
		if r.ReleasedAt != nil {
			publishedAt = *r.ReleasedAt
		}
		releases = append(releases, model.AggregatedRelease{
			ID:          releaseID(src.ID, r.TagName), // GitLab releases have no numeric id, the tag is the identity
			SourceID:    src.ID,
			SourceName:  src.DisplayName,
			Provider:    types.ProviderGitLab,
			Repository:  src.Repository(),
			Kind:        model.KindRelease,
			TagName:     r.TagName,
			Name:        r.Name,
			Body:        r.Description,
			BodyExcerpt: excerpt(r.Description, releaseExcerptLen),
			HTMLURL:     htmlURL,
			Prerelease:  r.UpcomingRelease,
			PublishedAt: publishedAt,
		})
	}

	if len(releases) == 0 {
		return f.fetchCommits(ctx, src, api, project, header)
	}
	return releases, nil
}

func (f *gitlabFetcher) fetchCommits(ctx context.Context, src model.SourceConfig, api, project string, header http.Header) ([]model.AggregatedRelease, error) {
	reqURL := fmt.Sprintf("%s/projects/%s/repository/commits?per_page=%d", api, project, src.Limit())

	var raw []gitlabCommit
	if err := getJSON(ctx, f.client, types.ProviderGitLab, reqURL, header, &raw); err != nil {
		return nil, err
	}

	releases := make([]model.AggregatedRelease, 0, len(raw))
	for _, c := range raw {
		publishedAt := unixEpoch
		if c.AuthoredDate != nil {
			publishedAt = *c.AuthoredDate
		}
		releases = append(releases, commitRelease(src, types.ProviderGitLab,
			c.ID, c.Message, c.WebURL, publishedAt))
	}
	return releases, nil
}
