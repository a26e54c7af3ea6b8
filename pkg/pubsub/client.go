// Package pubsub wraps the Pub/Sub v2 client used by the outbox publisher
// and the analytics worker.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/config"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/gcp"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
)

const (
	kindTopic        = "topics"
	kindSubscription = "subscriptions"
)

var (
	errTopicRequired  = errors.New("pubsub booking topic is required")
	errNotInitialized = errors.New("pubsub client not initialized")
)

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

// NewClient connects and verifies every configured topic and subscription.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID, err := gcp.ProjectID(gcpCfg)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.BookingTopic) == "" {
		return nil, errTopicRequired
	}

	ps, err := pubsub.NewClient(ctx, projectID, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: ps, projectID: projectID, cfg: cfg}
	if err := c.Ping(ctx); err != nil {
		return nil, multierr.Append(err, ps.Close())
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":        cfg.BookingTopic,
			"subscription": cfg.AnalyticsSubscription,
		}), "pubsub client initialized")
	}
	return c, nil
}

// Ping looks up the booking topic, then the analytics topic and
// subscription when they are set.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	checks := []struct{ kind, name string }{
		{kindTopic, c.cfg.BookingTopic},
		{kindTopic, c.cfg.AnalyticsTopic},
		{kindSubscription, c.cfg.AnalyticsSubscription},
	}
	for i, check := range checks {
		if i > 0 && strings.TrimSpace(check.name) == "" {
			continue
		}
		if err := c.lookup(ctx, check.kind, check.name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) lookup(ctx context.Context, kind, name string) error {
	full := resourceName(c.projectID, kind, name)
	if full == "" {
		return fmt.Errorf("%s %q not configured", strings.TrimSuffix(kind, "s"), name)
	}
	var err error
	if kind == kindTopic {
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
	} else {
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
	}
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", strings.TrimSuffix(kind, "s"), full)
	default:
		return fmt.Errorf("checking %s %q: %w", strings.TrimSuffix(kind, "s"), full, err)
	}
}

// Publisher returns a publisher with message ordering enabled, so events
// sharing a booking id as ordering key arrive in publish order.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, kindTopic, name)
	if full == "" {
		return nil
	}
	p := c.client.Publisher(full)
	p.EnableMessageOrdering = true
	return p
}

// Subscription accepts a subscription ID or a full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, kindSubscription, name)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscription(c.cfg.AnalyticsSubscription)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a short ID into projects/<project>/<kind>/<id>.
// Full resource names pass through unchanged.
func resourceName(projectID, kind, name string) string {
	id := strings.TrimSpace(name)
	switch {
	case id == "":
		return ""
	case strings.HasPrefix(id, "projects/") && strings.Contains(id, "/"+kind+"/"):
		return id
	}
	project := strings.TrimSpace(projectID)
	if project == "" {
		return ""
	}
	return "projects/" + project + "/" + kind + "/" + id
}
