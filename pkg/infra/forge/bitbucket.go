package forge

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hirosegw/changeboard/pkg/domain/model"
	"github.com/hirosegw/changeboard/pkg/domain/types"
	"github.com/hirosegw/changeboard/pkg/infra/httpclient"
)

const bitbucketCloudAPI = "https://api.bitbucket.org/2.0"

// Server/Data Center REST bases look like ".../rest/api/1.0"
var bitbucketServerRe = regexp.MustCompile(`/rest/api/\d+\.\d+$`)

// bitbucketFetcher is commit-only: Bitbucket has no releases endpoint, so
// every entry is synthesized from commit history.
type bitbucketFetcher struct {
	client *httpclient.Client
}

type bitbucketCloudCommits struct {
	Values []struct {
		Hash    string     `json:"hash"`
		Message string     `json:"message"`
		Date    *time.Time `json:"date"`
		Links   struct {
			HTML struct {
				Href string `json:"href"`
			} `json:"html"`
		} `json:"links"`
	} `json:"values"`
}

type bitbucketServerCommits struct {
	Values []struct {
		ID              string `json:"id"`
		DisplayID       string `json:"displayId"`
		Message         string `json:"message"`
		AuthorTimestamp int64  `json:"authorTimestamp"` // epoch millis
		Links           struct {
			Self []struct {
				Href string `json:"href"`
			} `json:"self"`
		} `json:"links"`
	} `json:"values"`
}

// resolveBitbucket returns the API base and whether it is a Server/Data
// Center instance. A bare self-hosted host is assumed to be Cloud-shaped.
func resolveBitbucket(src model.SourceConfig) (api string, server bool) {
	base := strings.TrimRight(src.BaseURL, "/")
	if base == "" {
		return bitbucketCloudAPI, false
	}
	if bitbucketServerRe.MatchString(base) {
		return base, true
	}
	if strings.HasSuffix(base, "/2.0") {
		return base, false
	}
	return base + "/2.0", false
}

func (f *bitbucketFetcher) FetchReleases(ctx context.Context, src model.SourceConfig) ([]model.AggregatedRelease, error) {
	api, server := resolveBitbucket(src)
	header := http.Header{}
	authorize(header, src)

	if server {
		return f.fetchServer(ctx, src, api, header)
	}
	return f.fetchCloud(ctx, src, api, header)
}

func (f *bitbucketFetcher) fetchCloud(ctx context.Context, src model.SourceConfig, api string, header http.Header) ([]model.AggregatedRelease, error) {
	url := fmt.Sprintf("%s/repositories/%s/%s/commits?pagelen=%d", api, src.Owner, src.Repo, src.Limit())

	var raw bitbucketCloudCommits
	if err := getJSON(ctx, f.client, types.ProviderBitbucket, url, header, &raw); err != nil {
		return nil, err
	}

	releases := make([]model.AggregatedRelease, 0, len(raw.Values))
	for _, c := range raw.Values {
		publishedAt := unixEpoch
		if c.Date != nil {
			publishedAt = *c.Date
		}
		releases = append(releases, commitRelease(src, types.ProviderBitbucket,
			c.Hash, c.Message, c.Links.HTML.Href, publishedAt))
	}
	return releases, nil
}

func (f *bitbucketFetcher) fetchServer(ctx context.Context, src model.SourceConfig, api string, header http.Header) ([]model.AggregatedRelease, error) {
	url := fmt.Sprintf("%s/projects/%s/repos/%s/commits?limit=%d", api, src.Owner, src.Repo, src.Limit())

	var raw bitbucketServerCommits
	if err := getJSON(ctx, f.client, types.ProviderBitbucket, url, header, &raw); err != nil {
		return nil, err
	}

	web := bitbucketServerRe.ReplaceAllString(api, "")

	releases := make([]model.AggregatedRelease, 0, len(raw.Values))
	for _, c := range raw.Values {
		htmlURL := ""
		if len(c.Links.Self) > 0 {
			htmlURL = c.Links.Self[0].Href
		} else {
			htmlURL = fmt.Sprintf("%s/projects/%s/repos/%s/commits/%s", web, src.Owner, src.Repo, c.ID)
		}
		publishedAt := unixEpoch
		if c.AuthorTimestamp > 0 {
			publishedAt = time.UnixMilli(c.AuthorTimestamp).UTC()
		}
		releases = append(releases, commitRelease(src, types.ProviderBitbucket,
			c.ID, c.Message, htmlURL, publishedAt))
	}
	return releases, nil
}
