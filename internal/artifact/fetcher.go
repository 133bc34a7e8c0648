package artifact

import (
	"context"
	"fmt"
	"net/http"

	"github.com/example/neuroscan/internal/config"
)

// NewFetcher selects the blob store backend for the configured model source.
func NewFetcher(ctx context.Context, cfg *config.Config) (Fetcher, error) {
	switch cfg.Model.Source {
	case config.SourceGDrive:
		return &HTTPFetcher{Client: &http.Client{}, Drive: true}, nil
	case config.SourceHTTP:
		return &HTTPFetcher{Client: &http.Client{}}, nil
	case config.SourceS3:
		return NewS3Fetcher(S3Options{
			Region:   cfg.Storage.S3Region,
			Endpoint: cfg.Storage.S3Endpoint,
			KeyID:    cfg.Storage.S3KeyID,
			Secret:   cfg.Storage.S3Secret,
		}), nil
	case config.SourceGCS:
		return NewGCSFetcher(ctx, cfg.Storage.GCSCredentialsFile)
	case config.SourceAzure:
		return NewAzureFetcher(cfg.Storage.AzureAccountName, cfg.Storage.AzureAccountKey)
	default:
		return nil, fmt.Errorf("unsupported model source %q", cfg.Model.Source)
	}
}
