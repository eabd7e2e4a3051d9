package processor

import (
	"regexp"
	"strings"
)

var (
	schemeWWWPattern   = regexp.MustCompile(`^https?://(www\.)?`)
	queryHashPattern   = regexp.MustCompile(`[?#].*$`)
	trailingPattern    = regexp.MustCompile(`[/_]+$`)
	recentActivityPath = regexp.MustCompile(`/recent-activity/.*$`)
	linkedInSlugPattern = regexp.MustCompile(`linkedin\.com/in/([^/?#]+)`)
	activityIDPattern   = regexp.MustCompile(`activity[-/:](\d+)`)
	trailingDigitsPattern = regexp.MustCompile(`-(\d+)-`)
)

// normaliseURL lowercases and strips scheme, www, query/hash, and
// trailing slashes/underscores, per spec.md 4.8 step 4's merge key and
// step 5's deep-normalisation fallback.
func normaliseURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	u = schemeWWWPattern.ReplaceAllString(u, "")
	u = queryHashPattern.ReplaceAllString(u, "")
	u = trailingPattern.ReplaceAllString(u, "")
	return u
}

// deepNormaliseURL additionally strips a trailing /recent-activity/...
// path segment, used only by the repost same-author fallback comparison.
func deepNormaliseURL(u string) string {
	u = normaliseURL(u)
	u = recentActivityPath.ReplaceAllString(u, "")
	u = trailingPattern.ReplaceAllString(u, "")
	return u
}

// linkedInPublicID extracts the slug after linkedin.com/in/, or "" if
// the URL doesn't match that shape.
func linkedInPublicID(u string) string {
	m := linkedInSlugPattern.FindStringSubmatch(strings.ToLower(u))
	if m == nil {
		return ""
	}
	return strings.TrimRight(m[1], "/")
}

// activityID extracts a LinkedIn post's activity id via either the
// activity[-/:]<digits> pattern or the -<digits>- pattern (spec.md 4.8
// step 4 secondary key).
func activityID(u string) string {
	if m := activityIDPattern.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	if m := trailingDigitsPattern.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}
