package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

func TestCompute(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		page    crawler.PageSignals
		score   int
		reasons []string
	}{
		{
			name: "all rules",
			page: crawler.PageSignals{
				URL:    "https://uni.example.edu/jobs/1",
				Text:   "We welcome International applicants.",
				Emails: []string{"hr@uni.example.edu"},
			},
			score: 100,
			reasons: []string{
				"contact email available",
				"no application form required",
				"open to international applicants",
				"no geographic restriction",
				"institutional domain",
			},
		},
		{
			name: "restricted with form",
			page: crawler.PageSignals{
				URL:     "https://firma.de/karriere/1",
				Text:    "Bewerbung nur mit Wohnsitz in Deutschland.",
				HasForm: true,
			},
			score:   0,
			reasons: []string{},
		},
		{
			name: "plain page",
			page: crawler.PageSignals{
				URL:  "https://firma.de/jobs",
				Text: "Wir suchen dich.",
			},
			score:   NoFormWeight + NoRestrictionWeight,
			reasons: []string{"no application form required", "no geographic restriction"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Compute(tc.page)
			require.Equal(t, tc.score, got.Score)
			require.Equal(t, tc.reasons, got.Reasons)
		})
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	t.Parallel()

	page := crawler.PageSignals{URL: "https://org.org/a", Text: "from abroad", Emails: []string{"a@org.org"}}
	require.Equal(t, Compute(page), Compute(page))
}
