package forge

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/m-mizutani/gt"

	"github.com/hirosegw/changeboard/pkg/domain/model"
	"github.com/hirosegw/changeboard/pkg/domain/types"
)

func TestResolveBase(t *testing.T) {
	t.Run("empty base uses the cloud default", func(t *testing.T) {
		src := model.SourceConfig{}
		gt.Value(t, resolveBase(src, githubAPIDefault, githubAPIPath)).Equal("https://api.github.com")
	})

	t.Run("bare host gains the standard API path", func(t *testing.T) {
		src := model.SourceConfig{BaseURL: "https://git.corp.example/"}
		gt.Value(t, resolveBase(src, gitlabAPIDefault, gitlabAPIPath)).Equal("https://git.corp.example/api/v4")
	})

	t.Run("API-shaped URL passes through", func(t *testing.T) {
		src := model.SourceConfig{BaseURL: "https://git.corp.example/api/v4"}
		gt.Value(t, resolveBase(src, gitlabAPIDefault, gitlabAPIPath)).Equal("https://git.corp.example/api/v4")
	})
}

func TestWebBase(t *testing.T) {
	src := model.SourceConfig{BaseURL: "https://git.corp.example/api/v4"}
	gt.Value(t, webBase(src, gitlabWebDefault)).Equal("https://git.corp.example")

	gt.Value(t, webBase(model.SourceConfig{}, gitlabWebDefault)).Equal("https://gitlab.com")
}

func TestResolveBitbucket(t *testing.T) {
	t.Run("empty base is Cloud", func(t *testing.T) {
		api, server := resolveBitbucket(model.SourceConfig{})
		gt.Value(t, api).Equal("https://api.bitbucket.org/2.0")
		gt.Value(t, server).Equal(false)
	})

	t.Run("rest/api base is Server", func(t *testing.T) {
		api, server := resolveBitbucket(model.SourceConfig{BaseURL: "https://bb.corp.example/rest/api/1.0"})
		gt.Value(t, api).Equal("https://bb.corp.example/rest/api/1.0")
		gt.Value(t, server).Equal(true)
	})

	t.Run("bare host is assumed Cloud-shaped", func(t *testing.T) {
		api, server := resolveBitbucket(model.SourceConfig{BaseURL: "https://bb.corp.example"})
		gt.Value(t, api).Equal("https://bb.corp.example/2.0")
		gt.Value(t, server).Equal(false)
	})
}

func TestAuthorize(t *testing.T) {
	t.Run("colon token becomes basic credentials for any provider", func(t *testing.T) {
		h := http.Header{}
		authorize(h, model.SourceConfig{
			Provider:    types.ProviderBitbucket,
			AccessToken: "user:app-password",
		})
		// base64("user:app-password")
		gt.Value(t, h.Get("Authorization")).Equal("Basic dXNlcjphcHAtcGFzc3dvcmQ=")
	})

	t.Run("gitea uses the token prefix", func(t *testing.T) {
		h := http.Header{}
		authorize(h, model.SourceConfig{Provider: types.ProviderGitea, AccessToken: "abc"})
		gt.Value(t, h.Get("Authorization")).Equal("token abc")
	})

	t.Run("empty token sets nothing", func(t *testing.T) {
		h := http.Header{}
		authorize(h, model.SourceConfig{Provider: types.ProviderGitHub})
		gt.Value(t, h.Get("Authorization")).Equal("")
	})
}

func TestAPIError(t *testing.T) {
	t.Run("body is capped at 140 characters", func(t *testing.T) {
		body := strings.Repeat("x", 500)
		err := apiError(types.ProviderGitHub, 500, []byte(body))
		gt.String(t, err.Error()).Contains("Github API 500: ")
		gt.Number(t, len(err.Error())).Less(200)
	})

	t.Run("multi-byte body truncates on a rune boundary", func(t *testing.T) {
		body := strings.Repeat("リ", 200)
		err := apiError(types.ProviderGitLab, 502, []byte(body))
		gt.Value(t, utf8.ValidString(err.Error())).Equal(true)
		gt.String(t, err.Error()).Contains("Gitlab API 502: " + strings.Repeat("リ", bodySnippetLen))
		gt.Value(t, strings.Contains(err.Error(), strings.Repeat("リ", bodySnippetLen+1))).Equal(false)
	})

	t.Run("429 is tagged as rate limit", func(t *testing.T) {
		err := apiError(types.ProviderGitea, 429, []byte("slow down"))
		gt.Value(t, IsRateLimit(err)).Equal(true)
	})

	t.Run("403 without rate limit wording is not tagged", func(t *testing.T) {
		err := apiError(types.ProviderGitHub, 403, []byte("forbidden"))
		gt.Value(t, IsRateLimit(err)).Equal(false)
	})
}
