package forge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/hirosegw/changeboard/pkg/domain/interfaces"
	"github.com/hirosegw/changeboard/pkg/domain/model"
	"github.com/hirosegw/changeboard/pkg/domain/types"
	"github.com/hirosegw/changeboard/pkg/infra/httpclient"
)

// New returns the adapter for the provider. The provider set is closed;
// there is no registry or open extension point.
func New(provider types.Provider, client *httpclient.Client) (interfaces.ReleaseFetcher, error) {
	switch provider {
	case types.ProviderGitHub:
		return &githubFetcher{client: client}, nil
	case types.ProviderGitLab:
		return &gitlabFetcher{client: client}, nil
	case types.ProviderGitea:
		return &giteaFetcher{client: client}, nil
	case types.ProviderBitbucket:
		return &bitbucketFetcher{client: client}, nil
	default:
		return nil, goerr.New("unsupported provider", goerr.V("provider", provider))
	}
}

// bodySnippetLen caps how much of an error response body ends up in the
// user-visible message
const bodySnippetLen = 140

const maxErrorBody = 1 << 20

// apiError formats a non-2xx response as "<Provider> API <status>: <snippet>".
// Responses that are unambiguous rate-limit signals carry the rate-limit tag
// so adapters can skip the commit fallback.
func apiError(provider types.Provider, status int, body []byte) error {
	snippet := strings.TrimSpace(string(body))
	if r := []rune(snippet); len(r) > bodySnippetLen {
		snippet = string(r[:bodySnippetLen])
	}

	opts := []goerr.Option{
		goerr.T(types.ErrTagAPI),
		goerr.V("provider", provider),
		goerr.V("status", status),
	}
	if status == http.StatusTooManyRequests ||
		(status == http.StatusForbidden && strings.Contains(strings.ToLower(snippet), "rate limit")) {
		opts = append(opts, goerr.T(types.ErrTagRateLimit))
	}

	return goerr.New(fmt.Sprintf("%s API %d: %s", provider.Title(), status, snippet), opts...)
}

// IsRateLimit reports whether the error is an unambiguous rate-limit signal
func IsRateLimit(err error) bool {
	return goerr.HasTag(err, types.ErrTagRateLimit)
}

// getJSON issues a GET through the retry client and decodes a 2xx JSON body
// into out. Non-2xx responses become an apiError.
func getJSON(ctx context.Context, c *httpclient.Client, provider types.Provider, url string, header http.Header, out any) error {
	resp, err := c.Get(ctx, url, header)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apiError(provider, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return goerr.Wrap(err, "failed to decode response",
			goerr.T(types.ErrTagAPI),
			goerr.V("provider", provider),
			goerr.V("url", url),
		)
	}
	return nil
}

// authorize sets the source's auth header using the provider's native scheme.
// A token containing a colon is treated as user:password basic credentials
// regardless of provider.
func authorize(h http.Header, src model.SourceConfig) {
	tok := src.AccessToken
	if tok == "" {
		return
	}
	if strings.Contains(tok, ":") {
		h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(tok)))
		return
	}
	switch src.Provider {
	case types.ProviderGitLab:
		h.Set("PRIVATE-TOKEN", tok)
	case types.ProviderGitea:
		h.Set("Authorization", "token "+tok)
	default:
		h.Set("Authorization", "Bearer "+tok)
	}
}

// resolveBase returns the API base URL for a source. An empty BaseURL selects
// the provider's cloud default; a bare self-hosted host gains the provider's
// standard API path; an already-API-shaped URL passes through.
func resolveBase(src model.SourceConfig, def, apiPath string) string {
	base := strings.TrimRight(src.BaseURL, "/")
	if base == "" {
		return def
	}
	if strings.Contains(base, apiPath) {
		return base
	}
	return base + apiPath
}

// unixEpoch is the publishedAt fallback for records without a usable date
var unixEpoch = time.Unix(0, 0).UTC()

// commitRelease synthesizes a release-like record from one commit. The first
// line of the message becomes the title and the short hash stands in for the
// tag name.
func commitRelease(src model.SourceConfig, provider types.Provider, sha, message, htmlURL string, publishedAt time.Time) model.AggregatedRelease {
	return model.AggregatedRelease{
		ID:          commitID(src.ID, sha),
		SourceID:    src.ID,
		SourceName:  src.DisplayName,
		Provider:    provider,
		Repository:  src.Repository(),
		Kind:        model.KindCommit,
		TagName:     shortSHA(sha),
		Name:        commitTitle(message),
		Body:        message,
		BodyExcerpt: excerpt(message, commitExcerptLen),
		HTMLURL:     htmlURL,
		PublishedAt: publishedAt,
	}
}

// webBase returns the browser-facing base URL used to construct record links
func webBase(src model.SourceConfig, def string) string {
	if src.BaseURL == "" {
		return def
	}
	base := strings.TrimRight(src.BaseURL, "/")
	for _, suffix := range []string{"/api/v3", "/api/v4", "/api/v1"} {
		base = strings.TrimSuffix(base, suffix)
	}
	return base
}
