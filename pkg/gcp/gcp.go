// Package gcp holds the connection settings shared by the Pub/Sub and
// BigQuery clients.
package gcp

import (
	"errors"
	"strings"

	"google.golang.org/api/option"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/config"
)

var ErrProjectIDRequired = errors.New("gcp project id is required")

func ProjectID(cfg config.GCPConfig) (string, error) {
	id := strings.TrimSpace(cfg.ProjectID)
	if id == "" {
		return "", ErrProjectIDRequired
	}
	return id, nil
}

// ClientOptions prefers inline credentials JSON over a credentials file.
// With neither set the clients fall back to application default
// credentials, or to the emulator when its host variable is set.
func ClientOptions(cfg config.GCPConfig) []option.ClientOption {
	if creds := strings.TrimSpace(cfg.CredentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	if path := strings.TrimSpace(cfg.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}
