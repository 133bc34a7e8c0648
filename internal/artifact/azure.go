package artifact

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureFetcher reads artifacts addressed as azblob://container/blob using
// shared-key credentials.
type AzureFetcher struct {
	client *azblob.Client
}

func NewAzureFetcher(accountName, accountKey string) (*AzureFetcher, error) {
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	return &AzureFetcher{client: client}, nil
}

func (f *AzureFetcher) Fetch(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	container, blob, err := ParseObjectURI(remoteID, "azblob")
	if err != nil {
		return nil, err
	}
	resp, err := f.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return nil, fmt.Errorf("download blob %q: %w", remoteID, err)
	}
	return resp.Body, nil
}
