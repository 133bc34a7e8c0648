package artifact

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options configures an S3-compatible store. Endpoint is optional; when
// set, path-style addressing is used (MinIO, Hetzner, Ceph).
type S3Options struct {
	Region   string
	Endpoint string
	KeyID    string
	Secret   string
}

// S3Fetcher reads artifacts addressed as s3://bucket/key.
type S3Fetcher struct {
	client *s3.Client
}

func NewS3Fetcher(opts S3Options) *S3Fetcher {
	o := s3.Options{Region: opts.Region}
	if opts.KeyID != "" {
		o.Credentials = credentials.NewStaticCredentialsProvider(opts.KeyID, opts.Secret, "")
	}
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}
	return &S3Fetcher{client: s3.New(o)}
}

func (f *S3Fetcher) Fetch(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	bucket, key, err := ParseObjectURI(remoteID, "s3")
	if err != nil {
		return nil, err
	}
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3 object %q: %w", remoteID, err)
	}
	return out.Body, nil
}

// ParseObjectURI splits "<scheme>://bucket/key" into bucket and key.
func ParseObjectURI(uri, scheme string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parse %s path %q: %w", scheme, uri, err)
	}
	if u.Scheme != scheme {
		return "", "", fmt.Errorf("expected %s:// scheme, got %q in %q", scheme, u.Scheme, uri)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("empty bucket or key in %q", uri)
	}
	return bucket, key, nil
}
