// Package storage holds the merge and sanitization rules shared by every result store.
package storage

import (
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

var controlChars = regexp.MustCompile(`[\x00-\x1F\x7F-\x9F]`)

// Clean strips control characters and surrounding whitespace.
func Clean(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

// Sanitize cleans every string field of a record. The URL is canonicalized.
func Sanitize(rec crawler.ResultRecord) crawler.ResultRecord {
	rec.URL = crawler.Canonicalize(Clean(rec.URL))
	rec.Title = Clean(rec.Title)
	rec.Organization = Clean(rec.Organization)
	rec.Location = Clean(rec.Location)
	rec.Description = Clean(rec.Description)
	rec.Email = strings.ToLower(Clean(rec.Email))
	rec.DatePosted = Clean(rec.DatePosted)
	rec.ValidThrough = Clean(rec.ValidThrough)
	rec.ApplyURL = Clean(rec.ApplyURL)
	rec.Source = Clean(rec.Source)
	if len(rec.Extra) > 0 {
		extra := make(map[string]string, len(rec.Extra))
		for k, v := range rec.Extra {
			if k, v = Clean(k), Clean(v); k != "" && v != "" {
				extra[k] = v
			}
		}
		rec.Extra = extra
	}
	reasons := rec.Reasons[:0:0]
	for _, r := range rec.Reasons {
		if r = Clean(r); r != "" {
			reasons = append(reasons, r)
		}
	}
	rec.Reasons = reasons
	return rec
}

// Merge applies incoming onto existing field by field. Non-empty incoming values win,
// ExtractedAt is kept from the first write and UpdatedAt is set to now.
func Merge(existing, incoming crawler.ResultRecord, now time.Time) crawler.ResultRecord {
	out := existing
	overwrite(&out.Title, incoming.Title)
	overwrite(&out.Organization, incoming.Organization)
	overwrite(&out.Location, incoming.Location)
	overwrite(&out.Description, incoming.Description)
	overwrite(&out.Email, incoming.Email)
	overwrite(&out.DatePosted, incoming.DatePosted)
	overwrite(&out.ValidThrough, incoming.ValidThrough)
	overwrite(&out.ApplyURL, incoming.ApplyURL)
	overwrite(&out.Source, incoming.Source)
	if len(incoming.Extra) > 0 {
		merged := make(map[string]string, len(existing.Extra)+len(incoming.Extra))
		for k, v := range existing.Extra {
			merged[k] = v
		}
		for k, v := range incoming.Extra {
			if v != "" {
				merged[k] = v
			}
		}
		out.Extra = merged
	}
	out.Score = incoming.Score
	if len(incoming.Reasons) > 0 {
		out.Reasons = append([]string(nil), incoming.Reasons...)
	}
	if out.ExtractedAt.IsZero() {
		out.ExtractedAt = now
	}
	out.UpdatedAt = now
	return out
}

// Prepare sanitizes a first-time record and stamps both timestamps.
func Prepare(rec crawler.ResultRecord, now time.Time) crawler.ResultRecord {
	rec = Sanitize(rec)
	if rec.ExtractedAt.IsZero() {
		rec.ExtractedAt = now
	}
	rec.UpdatedAt = now
	return rec
}

func overwrite(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
