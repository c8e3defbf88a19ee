package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "tracking params ports slashes",
			raw:  "http://Example.com:80/a//b/?utm_source=x&z=1&a=2",
			want: "http://example.com/a/b?a=2&z=1",
		},
		{
			name: "already canonical",
			raw:  "http://example.com/a/b?a=2&z=1",
			want: "http://example.com/a/b?a=2&z=1",
		},
		{
			name: "https default port and click ids",
			raw:  "HTTPS://Jobs.Example.org:443/stellen/?gclid=1&fbclid=2&msclkid=3",
			want: "https://jobs.example.org/stellen",
		},
		{
			name: "non default port kept",
			raw:  "http://example.com:8080/x/",
			want: "http://example.com:8080/x",
		},
		{
			name: "wrapping quotes",
			raw:  `  "https://example.com/jobs/"  `,
			want: "https://example.com/jobs",
		},
		{
			name: "root path kept",
			raw:  "https://example.com",
			want: "https://example.com/",
		},
		{
			name: "empty values and cookie banner params dropped",
			raw:  "https://example.com/?b=&tx_bafzacookiebar_pi1[accepted]=1&cHash=abc&type=9&a=1",
			want: "https://example.com/?a=1",
		},
		{
			name: "fragment dropped",
			raw:  "https://example.com/jobs#apply",
			want: "https://example.com/jobs",
		},
		{
			name: "escaped unreserved characters decoded",
			raw:  "https://example.com/%7Euser/%4A%6Fbs%2D2024%5Fde%2e",
			want: "https://example.com/~user/Jobs-2024_de.",
		},
		{
			name: "remaining escapes upper-cased",
			raw:  "https://example.com/a%2fb/caf%c3%a9",
			want: "https://example.com/a%2Fb/caf%C3%A9",
		},
		{
			name: "relative input falls back",
			raw:  ` '/jobs/42' `,
			want: "/jobs/42",
		},
		{
			name: "garbage falls back",
			raw:  "  ::not a url  ",
			want: "::not a url",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Canonicalize(tt.raw))
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"http://Example.com:80/a//b/?utm_source=x&z=1&a=2",
		"https://example.com/path%20with%20space/?q=a+b&p=%2F",
		"https://example.com/stellen/?tx_bafzacookiebar_pi1[action]=x&page=3",
		"https://[::1]:443/x//y/",
		"https://example.com/%7euser/caf%c3%a9/a%2fb",
		"not a url",
	}
	for _, in := range inputs {
		once := Canonicalize(in)
		require.Equal(t, once, Canonicalize(once), "input %q", in)
	}
}

func TestCanonicalizeEquivalentForms(t *testing.T) {
	t.Parallel()

	a := Canonicalize("http://Example.com:80/a//b/?utm_source=x&z=1&a=2")
	b := Canonicalize("http://example.com/a/b?a=2&z=1")
	require.Equal(t, a, b)
}

func TestCanonicalizeEscapedUnreservedMatchesLiteral(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"https://ex.com/%7Euser", "https://ex.com/~user"},
		{"https://ex.com/%7euser/", "https://ex.com/~user"},
		{"https://ex.com/stellen/%61bc", "https://ex.com/stellen/abc"},
		{"https://ex.com/a%2Db%2Ec%5Fd", "https://ex.com/a-b.c_d"},
	}
	for _, p := range pairs {
		require.Equal(t, Canonicalize(p[1]), Canonicalize(p[0]), "input %q", p[0])
	}
	require.Equal(t, Canonicalize("https://ex.com/a%2fb"), Canonicalize("https://ex.com/a%2Fb"))
	require.NotEqual(t, Canonicalize("https://ex.com/a/b"), Canonicalize("https://ex.com/a%2Fb"),
		"an escaped slash is a reserved character and stays distinct")
}
