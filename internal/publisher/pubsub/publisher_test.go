package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newFakeClient(t *testing.T) (*pstest.Server, []option.ClientOption) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, []option.ClientOption{option.WithGRPCConn(conn)}
}

// TestPublishSendsJSON verifies payloads arrive on the topic as JSON with a content type attribute.
func TestPublishSendsJSON(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv, opts := newFakeClient(t)
	pub, err := Open(ctx, "test-project", opts...)
	require.NoError(t, err)

	admin, err := pubsub.NewClient(ctx, "test-project", opts...)
	require.NoError(t, err)
	defer admin.Close()
	_, err = admin.CreateTopic(ctx, "policy-runs")
	require.NoError(t, err)

	id, err := pub.Publish(ctx, "policy-runs", map[string]any{"run_id": "run-1", "successful": 3})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, pub.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "application/json", msgs[0].Attributes["content_type"])
	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "run-1", got["run_id"])
	require.EqualValues(t, 3, got["successful"])
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, opts := newFakeClient(t)
	pub, err := Open(ctx, "test-project", opts...)
	require.NoError(t, err)
	defer pub.Close()

	_, err = pub.Publish(ctx, "", "payload")
	require.Error(t, err)

	_, err = pub.Publish(ctx, "missing-topic", "payload")
	require.ErrorContains(t, err, "publish to missing-topic")

	_, err = pub.Publish(ctx, "any", func() {})
	require.ErrorContains(t, err, "marshal payload")

	_, err = Open(ctx, "", opts...)
	require.Error(t, err)
}
