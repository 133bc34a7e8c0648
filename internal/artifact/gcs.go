package artifact

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSFetcher reads artifacts addressed as gs://bucket/object.
type GCSFetcher struct {
	client *storage.Client
}

// NewGCSFetcher creates a client from a service account key file, or from
// application default credentials when credentialsFile is empty.
func NewGCSFetcher(ctx context.Context, credentialsFile string) (*GCSFetcher, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSFetcher{client: client}, nil
}

func (f *GCSFetcher) Fetch(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	bucket, object, err := ParseObjectURI(remoteID, "gs")
	if err != nil {
		return nil, err
	}
	r, err := f.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gcs object %q: %w", remoteID, err)
	}
	return r, nil
}

func (f *GCSFetcher) Close() error {
	return f.client.Close()
}
