package types

import "github.com/m-mizutani/goerr/v2"

// Version is the application version, overridden at build time
var Version = "dev"

// Provider identifies a source-control hosting provider
type Provider string

const (
	ProviderGitHub    Provider = "github"
	ProviderGitLab    Provider = "gitlab"
	ProviderGitea     Provider = "gitea"
	ProviderBitbucket Provider = "bitbucket"
)

// Valid reports whether p is one of the four supported providers
func (p Provider) Valid() bool {
	switch p {
	case ProviderGitHub, ProviderGitLab, ProviderGitea, ProviderBitbucket:
		return true
	}
	return false
}

// Title returns the capitalized provider name used in error messages,
// e.g. "Github API 403: ..."
func (p Provider) Title() string {
	if p == "" {
		return ""
	}
	s := string(p)
	return string(s[0]-'a'+'A') + s[1:]
}

// Error tags for the fetch error taxonomy
var (
	ErrTagNetwork   = goerr.NewTag("network")
	ErrTagAPI       = goerr.NewTag("api")
	ErrTagRateLimit = goerr.NewTag("rate_limit")
	ErrTagFallback  = goerr.NewTag("fallback")
)
