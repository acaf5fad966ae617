package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/crawl"
)

var _ crawl.Publisher = (*Publisher)(nil)

func TestPublishMarshalsPayloadAndAttributes(t *testing.T) {
	t.Parallel()

	var sent *pubsub.Message
	p := &Publisher{send: func(_ context.Context, msg *pubsub.Message) (string, error) {
		sent = msg
		return "msg-1", nil
	}}

	payload := crawl.CatalogBuilt{TargetID: "acme", URL: "https://acme.example.com", ContentHash: "abc"}
	id, err := p.Publish(context.Background(), "catalog-built", payload)
	require.NoError(t, err)
	require.Equal(t, "msg-1", id)

	var decoded crawl.CatalogBuilt
	require.NoError(t, json.Unmarshal(sent.Data, &decoded))
	require.Equal(t, "acme", decoded.TargetID)
	require.Equal(t, "acme", sent.Attributes["target_id"])
	require.Equal(t, "catalog-built", sent.Attributes["topic"])
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "t", "x")
	require.ErrorContains(t, err, "not configured")

	p := &Publisher{send: func(context.Context, *pubsub.Message) (string, error) {
		return "", errors.New("deadline exceeded")
	}}
	_, err = p.Publish(context.Background(), "t", map[string]string{"k": "v"})
	require.ErrorContains(t, err, "publish message: deadline exceeded")

	_, err = p.Publish(context.Background(), "t", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
}
