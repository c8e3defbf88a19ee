package crawler

import (
	"net/url"
	"regexp"
)

var (
	listingPattern = regexp.MustCompile(`(?i)(jobs?|stellen|karriere|careers?|vacanc|ausschreibung|positions?|openings?|angebote|page=\d*|/page/\d+|seite)`)
	postingPattern = regexp.MustCompile(`(?i)/(jobs?|stellen\w*|karriere|careers?|vacanc\w*|ausschreibung\w*|positions?|openings?|angebote)/[^/?]*[a-z0-9][^/?]*`)
)

// LooksLikeListing reports whether the url's path or query has the shape of a
// posting or posting-list page.
func LooksLikeListing(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return listingPattern.MatchString(u.EscapedPath()) || listingPattern.MatchString(u.RawQuery)
}

// LooksLikePosting reports whether the url points below a posting section,
// e.g. /jobs/referent-123.
func LooksLikePosting(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return postingPattern.MatchString(u.EscapedPath())
}
