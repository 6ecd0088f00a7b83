// Package storage implements the output store: durable publish of converted
// workbooks plus signed read URL issuance against the same container.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"

	"xlsmconv/internal/convert"
)

// Azure publishes to one fixed blob container and signs read URLs for the
// objects it publishes. Signing uses the shared account key when one is
// configured, otherwise a user delegation key obtained through the token
// credential.
type Azure struct {
	client    *azblob.Client
	container string
	sharedKey *azblob.SharedKeyCredential
	logger    *slog.Logger
}

// NewAzureSharedKey builds a store authenticated with a shared account key.
// serviceURL is the account endpoint, e.g. https://acct.blob.core.windows.net.
func NewAzureSharedKey(accountName, accountKey, serviceURL, container string, logger *slog.Logger) (*Azure, error) {
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("building shared key credential: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("building blob client: %w", err)
	}
	return &Azure{client: client, container: container, sharedKey: cred, logger: logger}, nil
}

// NewAzureManagedIdentity builds a store authenticated through the ambient
// Azure identity (managed identity, workload identity, or developer login).
func NewAzureManagedIdentity(serviceURL, container string, logger *slog.Logger) (*Azure, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving default azure credential: %w", err)
	}
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("building blob client: %w", err)
	}
	return &Azure{client: client, container: container, logger: logger}, nil
}

// Put uploads data under name, overwriting any existing blob at that exact
// path. A single-shot block blob upload is atomic from the caller's point of
// view: either the full stream lands or no new blob is visible.
func (a *Azure) Put(ctx context.Context, name string, data []byte) error {
	if _, err := a.client.UploadBuffer(ctx, a.container, name, data, nil); err != nil {
		return fmt.Errorf("uploading %s/%s: %w", a.container, name, err)
	}
	a.logger.Debug("blob uploaded", "container", a.container, "blob", name, "bytes", len(data))
	return nil
}

// SignedReadURL mints a read-only SAS URL for a published object, expiring
// at now + ttl.
func (a *Azure) SignedReadURL(ctx context.Context, name string, ttl time.Duration) (convert.SignedLink, error) {
	now := time.Now().UTC()
	expiry := now.Add(ttl)

	perms := sas.BlobPermissions{Read: true}
	values := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     now.Add(-5 * time.Minute), // tolerate clock skew on the validating side
		ExpiryTime:    expiry,
		Permissions:   perms.String(),
		ContainerName: a.container,
		BlobName:      name,
	}

	var (
		params sas.QueryParameters
		err    error
	)
	if a.sharedKey != nil {
		params, err = values.SignWithSharedKey(a.sharedKey)
		if err != nil {
			return convert.SignedLink{}, fmt.Errorf("signing with shared key: %w", err)
		}
	} else {
		params, err = a.signWithUserDelegation(ctx, values, now, expiry)
		if err != nil {
			return convert.SignedLink{}, err
		}
	}

	url := fmt.Sprintf("%s/%s/%s?%s", strings.TrimSuffix(a.client.URL(), "/"), a.container, name, params.Encode())
	return convert.SignedLink{URL: url, ExpiresAt: expiry}, nil
}

func (a *Azure) signWithUserDelegation(ctx context.Context, values sas.BlobSignatureValues, start, expiry time.Time) (sas.QueryParameters, error) {
	info := service.KeyInfo{
		Start:  to.Ptr(start.Format(sas.TimeFormat)),
		Expiry: to.Ptr(expiry.Format(sas.TimeFormat)),
	}
	udc, err := a.client.ServiceClient().GetUserDelegationCredential(ctx, info, nil)
	if err != nil {
		return sas.QueryParameters{}, fmt.Errorf("obtaining user delegation key: %w", err)
	}
	params, err := values.SignWithUserDelegation(udc)
	if err != nil {
		return sas.QueryParameters{}, fmt.Errorf("signing with user delegation key: %w", err)
	}
	return params, nil
}
