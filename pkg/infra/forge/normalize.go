package forge

import (
	"regexp"
	"strings"
)

const (
	// Excerpt caps: release notes get more room than synthesized commit entries
	releaseExcerptLen = 480
	commitExcerptLen  = 360
)

var (
	fencedCodeRe = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`([^`]*)`")
	imageRe      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	linkRe       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	headingRe    = regexp.MustCompile(`(?m)^ {0,3}#{1,6}[ \t]*`)
	listRe       = regexp.MustCompile(`(?m)^[ \t]*[-*+][ \t]+`)
	quoteRe      = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)
	emphasisRe   = regexp.MustCompile(`[*_~]{1,3}`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// stripMarkdown reduces markdown-formatted text to plain prose: code blocks
// are dropped, link and image syntax keeps the link text, heading/list/quote
// and emphasis punctuation is removed, and whitespace collapses to single
// spaces.
func stripMarkdown(s string) string {
	s = fencedCodeRe.ReplaceAllString(s, " ")
	s = imageRe.ReplaceAllString(s, "$1")
	s = linkRe.ReplaceAllString(s, "$1")
	s = inlineCodeRe.ReplaceAllString(s, "$1")
	s = headingRe.ReplaceAllString(s, "")
	s = listRe.ReplaceAllString(s, "")
	s = quoteRe.ReplaceAllString(s, "")
	s = emphasisRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// excerpt strips markdown and truncates to at most max characters
func excerpt(s string, max int) string {
	s = stripMarkdown(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max]))
}

// releaseID builds the stable global identifier for a provider-native release
func releaseID(sourceID, nativeID string) string {
	return sourceID + ":" + nativeID
}

// commitID builds the stable global identifier for a commit-derived entry
func commitID(sourceID, sha string) string {
	return sourceID + ":commit:" + sha
}

// commitTitle returns the first line of a commit message
func commitTitle(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		message = message[:i]
	}
	return strings.TrimSpace(message)
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
