package artifact

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// DriveDownloadBase is the public download endpoint for Google Drive files.
const DriveDownloadBase = "https://drive.usercontent.google.com/download"

// HTTPFetcher downloads artifacts over plain HTTP(S). With Drive set, the
// remote id is a Google Drive file id rather than a URL.
type HTTPFetcher struct {
	Client *http.Client
	Drive  bool
	// BaseURL overrides DriveDownloadBase.
	BaseURL string
}

func (f *HTTPFetcher) Fetch(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	target, err := f.resolve(remoteID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", target, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download %s: unexpected status %d", target, resp.StatusCode)
	}
	// Drive answers with an HTML interstitial when the file is not public.
	if f.Drive {
		if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType == "text/html" {
			resp.Body.Close()
			return nil, fmt.Errorf("download %s: drive returned an html page, is the file shared publicly?", target)
		}
	}
	return resp.Body, nil
}

func (f *HTTPFetcher) resolve(remoteID string) (string, error) {
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		return "", fmt.Errorf("empty remote id")
	}
	if !f.Drive {
		u, err := url.Parse(remoteID)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return "", fmt.Errorf("expected http(s) url, got %q", remoteID)
		}
		return remoteID, nil
	}

	base := f.BaseURL
	if base == "" {
		base = DriveDownloadBase
	}
	q := url.Values{}
	q.Set("id", remoteID)
	q.Set("export", "download")
	q.Set("confirm", "t")
	return base + "?" + q.Encode(), nil
}
