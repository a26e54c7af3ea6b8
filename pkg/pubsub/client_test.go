package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/config"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/gcp"
)

func TestResourceName(t *testing.T) {
	assert.Equal(t, "projects/p1/topics/booking-events", resourceName("p1", kindTopic, " booking-events "))
	assert.Equal(t, "projects/other/topics/t", resourceName("p1", kindTopic, "projects/other/topics/t"))
	assert.Equal(t, "projects/p1/subscriptions/projects-sub", resourceName("p1", kindSubscription, "projects-sub"))
	assert.Empty(t, resourceName("", kindTopic, "booking-events"))
	assert.Empty(t, resourceName("p1", kindTopic, ""))
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{BookingTopic: "t"}, nil)
	assert.ErrorIs(t, err, gcp.ErrProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "p1"}, config.PubSubConfig{}, nil)
	assert.ErrorIs(t, err, errTopicRequired)
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("t"))
	assert.Nil(t, c.Subscription("s"))
	assert.Nil(t, c.AnalyticsSubscription())
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	assert.NoError(t, c.Close())
}
