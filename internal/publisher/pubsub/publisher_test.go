package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "jobscout-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublishSendsJSONEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "results")
	require.NoError(t, err)

	pub, err := New(ctx, client, "results")
	require.NoError(t, err)
	defer pub.Stop()

	ev := crawler.ResultEvent{ID: "ev-1", URL: "https://org.de/jobs/1", Source: "org", Score: 55}
	id, err := pub.Publish(ctx, "results", ev)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "org", msgs[0].Attributes["source"])

	var decoded crawler.ResultEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &decoded))
	require.Equal(t, ev, decoded)
}

func TestNewRequiresExistingTopic(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)
	_, err := New(context.Background(), client, "missing")
	require.ErrorContains(t, err, "does not exist")

	_, err = New(context.Background(), nil, "results")
	require.Error(t, err)
}
