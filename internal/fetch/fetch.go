// Package fetch retrieves source workbook bytes over HTTP(S) or from Azure
// blob storage with delegated credentials.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"xlsmconv/internal/convert"
)

// ErrUnauthorized indicates the configured credential was rejected while
// reading the source blob.
var ErrUnauthorized = errors.New("not authorized to read source blob")

// Client fetches source bytes. Plain HTTP(S) references go through the
// embedded http.Client with redirect-following; Azure blob references go
// through the storage SDK when a token credential is configured, otherwise
// they are fetched as ordinary URLs (public or SAS-bearing blobs work that
// way too).
type Client struct {
	http   *http.Client
	cred   azcore.TokenCredential
	logger *slog.Logger
}

// NewClient builds a fetch client. cred may be nil. The timeout bounds the
// whole HTTP exchange; a hung source host fails the request rather than
// holding it open indefinitely.
func NewClient(timeout time.Duration, cred azcore.TokenCredential, logger *slog.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: timeout},
		cred:   cred,
		logger: logger,
	}
}

// Fetch returns the complete byte content of ref. The bytes stay in memory;
// nothing touches local disk.
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("parsing source reference: %w", err)
	}
	if c.cred != nil && isBlobHost(u.Host) {
		return c.fetchBlob(ctx, u)
	}
	return c.fetchHTTP(ctx, ref)
}

func (c *Client) fetchHTTP(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("building source request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &convert.UpstreamStatusError{StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading source body: %w", err)
	}
	c.logger.Debug("fetched source over http", "url", ref, "bytes", len(data))
	return data, nil
}

func (c *Client) fetchBlob(ctx context.Context, u *url.URL) ([]byte, error) {
	accountURL := u.Scheme + "://" + u.Host
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("blob reference %q has no container/blob path", u.String())
	}
	container, blobName := parts[0], parts[1]

	client, err := azblob.NewClient(accountURL, c.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("building blob client for %s: %w", accountURL, err)
	}
	resp, err := client.DownloadStream(ctx, container, blobName, nil)
	if err != nil {
		return nil, classifyBlobError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading blob stream: %w", err)
	}
	c.logger.Debug("fetched source blob", "account", accountURL, "container", container, "blob", blobName, "bytes", len(data))
	return data, nil
}

func classifyBlobError(err error) error {
	switch {
	case bloberror.HasCode(err,
		bloberror.AuthenticationFailed,
		bloberror.AuthorizationFailure,
		bloberror.AuthorizationPermissionMismatch,
		bloberror.InsufficientAccountPermissions):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound):
		return fmt.Errorf("%w: %v", &convert.UpstreamStatusError{StatusCode: http.StatusNotFound}, err)
	default:
		return fmt.Errorf("downloading source blob: %w", err)
	}
}

func isBlobHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(host), ".blob.core.windows.net")
}
