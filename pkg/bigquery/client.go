// Package bigquery wraps the BigQuery client for the booking events table.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"go.uber.org/multierr"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/config"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/gcp"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

var (
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client writes booking analytics rows into one table.
type Client struct {
	client *bigquery.Client
	table  *bigquery.Table
}

// NewClient connects and checks that the dataset and table exist.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID, err := gcp.ProjectID(gcpCfg)
	if err != nil {
		return nil, err
	}
	datasetID, tableID := strings.TrimSpace(cfg.Dataset), strings.TrimSpace(cfg.BookingEventsTable)
	switch {
	case datasetID == "":
		return nil, errDatasetRequired
	case tableID == "":
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	client := &Client{client: bq, table: bq.Dataset(datasetID).Table(tableID)}
	if err := client.Ping(ctx); err != nil {
		return nil, multierr.Append(err, bq.Close())
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": datasetID, "table": tableID}), "bigquery client initialized")
	}
	return client, nil
}

// Ping checks the dataset and then the table metadata.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.table == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	dataset := c.client.Dataset(c.table.DatasetID)
	if _, err := dataset.Metadata(ctx); err != nil {
		return describeLookup("dataset", c.table.DatasetID, err)
	}
	if _, err := c.table.Metadata(ctx); err != nil {
		return describeLookup("table", c.table.TableID, err)
	}
	return nil
}

func describeLookup(kind, id string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %q does not exist", kind, id)
	}
	return fmt.Errorf("checking %s %q: %w", kind, id, err)
}

// InsertBookingEvents streams rows into the booking events table. Rows
// implementing bigquery.ValueSaver set their own insert ids.
func (c *Client) InsertBookingEvents(ctx context.Context, rows []any) error {
	if c == nil || c.table == nil {
		return errClientNotInitialized
	}
	if len(rows) == 0 {
		return nil
	}
	return c.table.Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
