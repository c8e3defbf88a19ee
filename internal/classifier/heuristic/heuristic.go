// Package heuristic is an offline classifier that needs no model access. It trusts
// JSON-LD postings, follows posting-shaped links and rejects everything else.
package heuristic

import (
	"context"

	"github.com/JakeFAU/jobscout-crawler/internal/classifier"
	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

const (
	// MinPostingLinks is how many posting-shaped links make a page a listing.
	MinPostingLinks = 2
	// ContactScore is the score from which a posting page with an email is accepted.
	ContactScore = 50
)

// Classifier implements classifier.Classifier without network access.
type Classifier struct{}

var _ classifier.Classifier = Classifier{}

// New returns the heuristic classifier.
func New() Classifier {
	return Classifier{}
}

// ClassifyPage maps the page's signals onto an action.
func (Classifier) ClassifyPage(ctx context.Context, req classifier.PageRequest) (classifier.Action, error) {
	if err := ctx.Err(); err != nil {
		return classifier.Action{}, err
	}
	if job := req.StructuredJob; job != nil && job.Title != "" {
		return classifier.Action{Kind: classifier.ActionWriteResult, Data: structuredData(job, req.Emails)}, nil
	}

	var postings []string
	for _, link := range req.Links {
		if crawler.LooksLikePosting(link) {
			postings = append(postings, link)
		}
	}
	if len(postings) >= MinPostingLinks {
		return classifier.Action{
			Kind:    classifier.ActionFollow,
			Targets: postings,
			Reason:  "listing page with posting links",
		}, nil
	}

	if crawler.LooksLikePosting(req.URL) && len(req.Emails) > 0 && req.Score.Score >= ContactScore && req.Title != "" {
		return classifier.Action{
			Kind: classifier.ActionWriteResult,
			Data: map[string]string{"title": req.Title, "email": req.Emails[0]},
		}, nil
	}

	return classifier.Action{Kind: classifier.ActionReject, Reason: "no relevant posting found on the page"}, nil
}

// SelectLinks keeps urls shaped like postings or posting lists.
func (Classifier) SelectLinks(ctx context.Context, _ string, urls []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	selected := make([]string, 0, len(urls))
	for _, u := range urls {
		if crawler.LooksLikeListing(u) {
			selected = append(selected, u)
		}
	}
	return selected, nil
}

func structuredData(job *crawler.StructuredJob, emails []string) map[string]string {
	data := make(map[string]string)
	set := func(key, value string) {
		if value != "" {
			data[key] = value
		}
	}
	set("title", job.Title)
	set("organization", job.Organization)
	set("location", job.Location)
	set("description", job.Description)
	set("date_posted", job.DatePosted)
	set("valid_through", job.ValidThrough)
	set("apply_url", job.ApplyURL)
	if len(emails) > 0 {
		set("email", emails[0])
	}
	return data
}
