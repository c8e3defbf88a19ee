package classifier

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeAction(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want Action
	}{
		{
			name: "write result",
			raw:  `{"write_result":{"data":{"title":" Referent ","email":"jobs@org.de","salary":42000,"remote":true,"note":null,"empty":""}}}`,
			want: Action{Kind: ActionWriteResult, Data: map[string]string{
				"title": "Referent", "email": "jobs@org.de", "salary": "42000", "remote": "true",
			}},
		},
		{
			name: "crawl page",
			raw:  `{"crawl_page":{"url":"https://org.de/jobs/1"}}`,
			want: Action{Kind: ActionCrawlPage, URL: "https://org.de/jobs/1"},
		},
		{
			name: "follow",
			raw:  `{"decision":"FOLLOW","targets":["https://org.de/a"," ","https://org.de/b"],"reason":"listing"}`,
			want: Action{Kind: ActionFollow, Targets: []string{"https://org.de/a", "https://org.de/b"}, Reason: "listing"},
		},
		{
			name: "reject",
			raw:  `{"decision":"REJECT","reason":"nothing here"}`,
			want: Action{Kind: ActionReject, Targets: []string{}, Reason: "nothing here"},
		},
		{
			name: "empty object",
			raw:  `{}`,
			want: Action{Kind: ActionNone},
		},
		{
			name: "empty output",
			raw:  "  ",
			want: Action{Kind: ActionNone},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeAction([]byte(tc.raw))
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeActionMalformed(t *testing.T) {
	t.Parallel()

	inputs := []string{
		`not json`,
		`{"decision":"MAYBE"}`,
		`{"decision":"FOLLOW","targets":"https://org.de"}`,
		`{"crawl_page":{"url":""}}`,
		`{"write_result":{"data":{"nested":{"a":1}}}}`,
		`{"write_result":{}}`,
		`{"decision":"REJECT","extra":true}`,
		`["FOLLOW"]`,
	}
	for _, raw := range inputs {
		_, err := DecodeAction([]byte(raw))
		require.ErrorIs(t, err, ErrMalformedResponse, raw)
	}
}

func TestDecodeSelection(t *testing.T) {
	t.Parallel()

	urls, err := DecodeSelection([]byte(`{"valid_urls":["https://org.de/jobs/1",""]}`))
	require.NoError(t, err)
	require.Equal(t, []string{"https://org.de/jobs/1"}, urls)

	_, err = DecodeSelection([]byte(`{"urls":[]}`))
	require.ErrorIs(t, err, ErrMalformedResponse)
}
