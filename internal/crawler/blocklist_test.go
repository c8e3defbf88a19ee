package crawler

import (
	"net/url"
	"testing"
)

func TestDomainPatternBlocklist(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		bl := newDomainPatternBlocklist([]string{"example.org"})
		if bl == nil {
			t.Fatalf("expected blocklist to be created")
		}
		if !bl.IsBlocked("example.org") {
			t.Fatalf("expected example.org to be blocked")
		}
		if bl.IsBlocked("sub.example.org") {
			t.Fatalf("did not expect subdomains to match exact entry")
		}
	})

	t.Run("wildcard suffix", func(t *testing.T) {
		bl := newDomainPatternBlocklist([]string{"*.ru"})
		if bl == nil {
			t.Fatalf("expected blocklist to be created")
		}
		cases := []struct {
			host    string
			blocked bool
		}{
			{"example.ru", true},
			{"sub.domain.ru", true},
			{"ru", true},
			{"example.com", false},
		}
		for _, tc := range cases {
			if got := bl.IsBlocked(tc.host); got != tc.blocked {
				t.Fatalf("host %q blocked=%v, want %v", tc.host, got, tc.blocked)
			}
		}
	})

	t.Run("nil blocklist", func(t *testing.T) {
		var bl *domainPatternBlocklist
		if bl.IsBlocked("anything") {
			t.Fatalf("nil blocklist should never block")
		}
	})
}

func TestLinkBlocklist(t *testing.T) {
	t.Parallel()

	bl := NewLinkBlocklist("newsletter")
	cases := []struct {
		raw     string
		blocked bool
	}{
		{"https://org.de/jobs/42", false},
		{"https://org.de/stellenangebote?page=2", false},
		{"https://org.de/login", true},
		{"https://org.de/Impressum", true},
		{"https://org.de/files/flyer.PDF", true},
		{"https://www.facebook.com/org", true},
		{"https://org.de/jobs?utm_source=mail", true},
		{"https://org.de/newsletter", true},
	}
	for _, tc := range cases {
		u, err := url.Parse(tc.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.raw, err)
		}
		if got := bl.IsBlocked(u); got != tc.blocked {
			t.Fatalf("%s blocked=%v, want %v", tc.raw, got, tc.blocked)
		}
	}
	if !bl.IsBlocked(nil) {
		t.Fatal("nil url should be blocked")
	}
}
