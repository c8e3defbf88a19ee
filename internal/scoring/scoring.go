// Package scoring ranks extracted pages with simple, tunable text heuristics.
package scoring

import (
	"regexp"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

// Rule weights.
const (
	EmailWeight         = 30
	NoFormWeight        = 20
	InternationalWeight = 25
	NoRestrictionWeight = 15
	InstitutionWeight   = 10
)

var (
	internationalPattern = regexp.MustCompile(`(?i)international|foreign applicants|from abroad|outside germany`)
	restrictionPattern   = regexp.MustCompile(`(?i)only germany|nur.*deutschland|german residence|required in germany`)
	institutionPattern   = regexp.MustCompile(`(?i)\.(edu|ac|org)`)
)

// Compute scores the page. The result depends only on the page's url, text, emails and form flag.
func Compute(page crawler.PageSignals) crawler.Score {
	score := crawler.Score{Reasons: []string{}}
	add := func(points int, reason string) {
		score.Score += points
		score.Reasons = append(score.Reasons, reason)
	}
	if len(page.Emails) > 0 {
		add(EmailWeight, "contact email available")
	}
	if !page.HasForm {
		add(NoFormWeight, "no application form required")
	}
	if internationalPattern.MatchString(page.Text) {
		add(InternationalWeight, "open to international applicants")
	}
	if !restrictionPattern.MatchString(page.Text) {
		add(NoRestrictionWeight, "no geographic restriction")
	}
	if institutionPattern.MatchString(page.URL) {
		add(InstitutionWeight, "institutional domain")
	}
	return score
}
