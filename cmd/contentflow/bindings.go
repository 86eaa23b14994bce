package main

import (
	"fmt"

	"github.com/Azure/contentflow-sub002/pkg/azurestore"
	"github.com/Azure/contentflow-sub002/pkg/config"
	"github.com/Azure/contentflow-sub002/pkg/storage"
)

// capabilities bundles the resolved storage bindings every worker-fabric
// process depends on, chosen once at startup from config.Settings rather
// than re-resolved per component.
type capabilities struct {
	registry storage.Registry
	queue    storage.Queue
	blobs    storage.BlobStore
	clock    storage.Clock
	identity storage.Identity
}

// buildCapabilities wires the Azure bindings when the corresponding
// endpoints are configured, falling back to the local/dev bindings
// (BoltRegistry, FileBlobStore, MemQueue) otherwise. The local bindings are
// process-local: MemQueue lives in one process's memory, and the bbolt file
// under DATA_DIR is held by whichever process opens it first, so the
// children of `contentflow supervisor run` share neither queue nor registry.
func buildCapabilities(cfg *config.Settings) (*capabilities, error) {
	clock := storage.SystemClock{}

	useAzure := cfg.CosmosDBEndpoint != ""
	caps := &capabilities{clock: clock}

	if !useAzure {
		caps.identity = storage.NoopIdentity{}

		registry, err := storage.NewBoltRegistry(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open local registry at %s: %w", cfg.DataDir, err)
		}
		caps.registry = registry

		caps.queue = storage.NewMemQueue(clock)

		blobs, err := storage.NewFileBlobStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open local blob store at %s: %w", cfg.DataDir, err)
		}
		caps.blobs = blobs

		return caps, nil
	}

	cred, err := azurestore.NewCredential(cfg.AzureTenantID, cfg.AzureClientID, cfg.AzureClientSecret)
	if err != nil {
		return nil, fmt.Errorf("build azure credential: %w", err)
	}
	caps.identity = cred

	registry, err := azurestore.NewRegistry(cfg.CosmosDBEndpoint, cfg.CosmosDBName, cred)
	if err != nil {
		return nil, fmt.Errorf("build cosmos registry: %w", err)
	}
	caps.registry = registry

	queue, err := azurestore.NewQueue(cfg.StorageAccountWorkerQueueURL, cred)
	if err != nil {
		return nil, fmt.Errorf("build storage queue: %w", err)
	}
	caps.queue = queue

	blobContainerURL := fmt.Sprintf("https://%s.blob.core.windows.net/%s", cfg.BlobStorageAccountName, cfg.BlobStorageContainerName)
	blobs, err := azurestore.NewBlobStore(blobContainerURL, cred)
	if err != nil {
		return nil, fmt.Errorf("build blob store: %w", err)
	}
	caps.blobs = blobs

	return caps, nil
}
