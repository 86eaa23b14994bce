package azurestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/sony/gobreaker"

	"github.com/Azure/contentflow-sub002/pkg/storage"
)

// BlobStore is the Azure Blob Storage binding of storage.BlobStore,
// scoped to a single container.
type BlobStore struct {
	client  *container.Client
	breaker *gobreaker.CircuitBreaker
}

// NewBlobStore builds a BlobStore against the given container URL
// (https://<account>.blob.core.windows.net/<container>), authenticating
// with cred.
func NewBlobStore(containerURL string, cred *Credential) (*BlobStore, error) {
	client, err := container.NewClient(containerURL, cred.TokenCredential(), nil)
	if err != nil {
		return nil, fmt.Errorf("create blob container client: %w", err)
	}
	return &BlobStore{client: client, breaker: newBreaker("azblob:" + client.URL())}, nil
}

func (b *BlobStore) Put(ctx context.Context, path string, r io.Reader, contentType string) error {
	return callWithRetry(ctx, b.breaker, func(ctx context.Context) error {
		body, err := io.ReadAll(r)
		if err != nil {
			return asDomainErr(err)
		}
		blockClient := b.client.NewBlockBlobClient(path)
		_, err = blockClient.UploadBuffer(ctx, body, &azblob.UploadBufferOptions{
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		})
		return err
	})
}

func (b *BlobStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := callWithRetry(ctx, b.breaker, func(ctx context.Context) error {
		blockClient := b.client.NewBlockBlobClient(path)
		resp, err := blockClient.DownloadStream(ctx, nil)
		if err != nil {
			if isBlobNotFound(err) {
				return asDomainErr(storage.ErrNotFound)
			}
			return err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return asDomainErr(err)
		}
		rc = io.NopCloser(bytes.NewReader(body))
		return nil
	})
	return rc, err
}

func (b *BlobStore) Delete(ctx context.Context, path string) error {
	return callWithRetry(ctx, b.breaker, func(ctx context.Context) error {
		blockClient := b.client.NewBlockBlobClient(path)
		_, err := blockClient.Delete(ctx, nil)
		if err != nil && isBlobNotFound(err) {
			return nil
		}
		return err
	})
}

func (b *BlobStore) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		pager := b.client.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{Prefix: &prefix})
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield("", err)
				return
			}
			for _, item := range page.Segment.BlobItems {
				if item.Name == nil {
					continue
				}
				if !yield(*item.Name, nil) {
					return
				}
			}
		}
	}
}

func isBlobNotFound(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound)
}
