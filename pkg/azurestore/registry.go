package azurestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/sony/gobreaker"

	"github.com/Azure/contentflow-sub002/pkg/storage"
)

// cosmosDoc is the on-the-wire shape of every document this Registry
// stores: the partition key doubles as the document id since every
// container here is keyed by a single string id (pipeline id, vault id,
// execution id, ...), and Body carries the caller's JSON verbatim under a
// nested field so Cosmos's own system properties (_etag, _ts, ...) never
// collide with application fields.
type cosmosDoc struct {
	ID   string          `json:"id"`
	Body json.RawMessage `json:"body"`
}

// Registry is the Cosmos DB binding of storage.Registry. Optimistic
// concurrency rides on Cosmos's native ETag: CreateIfAbsent relies on
// CreateItem's 409 Conflict for an existing id, Replace sends IfMatchEtag
// with the caller's Revision.
type Registry struct {
	client   *azcosmos.DatabaseClient
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewRegistry builds a Registry against the given Cosmos DB account
// endpoint and database name, authenticating with cred.
func NewRegistry(endpoint, database string, cred *Credential) (*Registry, error) {
	client, err := azcosmos.NewClient(endpoint, cred.TokenCredential(), nil)
	if err != nil {
		return nil, fmt.Errorf("create cosmos client: %w", err)
	}
	db, err := client.NewDatabase(database)
	if err != nil {
		return nil, fmt.Errorf("resolve cosmos database %q: %w", database, err)
	}
	return &Registry{client: db, breakers: make(map[string]*gobreaker.CircuitBreaker)}, nil
}

func (r *Registry) breaker(container string) *gobreaker.CircuitBreaker {
	if b, ok := r.breakers[container]; ok {
		return b
	}
	b := newBreaker("cosmos:" + container)
	r.breakers[container] = b
	return b
}

func (r *Registry) container(name string) (*azcosmos.ContainerClient, error) {
	return r.client.NewContainer(name)
}

func (r *Registry) Get(ctx context.Context, containerName, id string) (storage.Doc, error) {
	var out storage.Doc
	err := callWithRetry(ctx, r.breaker(containerName), func(ctx context.Context) error {
		c, err := r.container(containerName)
		if err != nil {
			return err
		}
		pk := azcosmos.NewPartitionKeyString(id)
		resp, err := c.ReadItem(ctx, pk, id, nil)
		if err != nil {
			if isCosmosStatus(err, http.StatusNotFound) {
				return asDomainErr(storage.ErrNotFound)
			}
			return err
		}
		var doc cosmosDoc
		if err := json.Unmarshal(resp.Value, &doc); err != nil {
			return asDomainErr(fmt.Errorf("decode cosmos item %s/%s: %w", containerName, id, err))
		}
		out = storage.Doc{ID: doc.ID, Body: doc.Body, Revision: string(resp.ETag)}
		return nil
	})
	return out, err
}

func (r *Registry) Query(ctx context.Context, containerName string, filter map[string]string) iter.Seq2[storage.Doc, error] {
	return func(yield func(storage.Doc, error) bool) {
		c, err := r.container(containerName)
		if err != nil {
			yield(storage.Doc{}, err)
			return
		}
		query := "SELECT * FROM c"
		var params []azcosmos.QueryParameter
		i := 0
		for field, value := range filter {
			if i == 0 {
				query += " WHERE "
			} else {
				query += " AND "
			}
			query += fmt.Sprintf("c.body.%s = @p%d", field, i)
			params = append(params, azcosmos.QueryParameter{Name: fmt.Sprintf("@p%d", i), Value: value})
			i++
		}
		pager := c.NewQueryItemsPager(query, azcosmos.NewPartitionKey(), &azcosmos.QueryOptions{QueryParameters: params})
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield(storage.Doc{}, err)
				return
			}
			for _, raw := range page.Items {
				var doc cosmosDoc
				if err := json.Unmarshal(raw, &doc); err != nil {
					if !yield(storage.Doc{}, err) {
						return
					}
					continue
				}
				if !yield(storage.Doc{ID: doc.ID, Body: doc.Body}, nil) {
					return
				}
			}
		}
	}
}

func (r *Registry) Upsert(ctx context.Context, containerName string, doc storage.Doc) (storage.Doc, error) {
	return r.write(ctx, containerName, doc, nil)
}

func (r *Registry) CreateIfAbsent(ctx context.Context, containerName string, doc storage.Doc) (storage.Doc, error) {
	return r.create(ctx, containerName, doc)
}

func (r *Registry) Replace(ctx context.Context, containerName string, doc storage.Doc) (storage.Doc, error) {
	etag := azcore.ETag(doc.Revision)
	return r.write(ctx, containerName, doc, &azcosmos.ItemOptions{IfMatchEtag: etag})
}

func (r *Registry) create(ctx context.Context, containerName string, doc storage.Doc) (storage.Doc, error) {
	var out storage.Doc
	err := callWithRetry(ctx, r.breaker(containerName), func(ctx context.Context) error {
		c, err := r.container(containerName)
		if err != nil {
			return err
		}
		body, err := json.Marshal(cosmosDoc{ID: doc.ID, Body: doc.Body})
		if err != nil {
			return asDomainErr(err)
		}
		pk := azcosmos.NewPartitionKeyString(doc.ID)
		resp, err := c.CreateItem(ctx, pk, body, nil)
		if err != nil {
			if isCosmosStatus(err, http.StatusConflict) {
				return asDomainErr(storage.ErrConflict)
			}
			return err
		}
		out = storage.Doc{ID: doc.ID, Body: doc.Body, Revision: string(resp.ETag)}
		return nil
	})
	return out, err
}

func (r *Registry) write(ctx context.Context, containerName string, doc storage.Doc, opts *azcosmos.ItemOptions) (storage.Doc, error) {
	var out storage.Doc
	err := callWithRetry(ctx, r.breaker(containerName), func(ctx context.Context) error {
		c, err := r.container(containerName)
		if err != nil {
			return err
		}
		body, err := json.Marshal(cosmosDoc{ID: doc.ID, Body: doc.Body})
		if err != nil {
			return asDomainErr(err)
		}
		pk := azcosmos.NewPartitionKeyString(doc.ID)
		resp, err := c.UpsertItem(ctx, pk, body, opts)
		if err != nil {
			if opts != nil && (isCosmosStatus(err, http.StatusPreconditionFailed) || isCosmosStatus(err, http.StatusNotFound)) {
				return asDomainErr(storage.ErrConflict)
			}
			return err
		}
		out = storage.Doc{ID: doc.ID, Body: doc.Body, Revision: string(resp.ETag)}
		return nil
	})
	return out, err
}

func (r *Registry) Delete(ctx context.Context, containerName, id string) error {
	return callWithRetry(ctx, r.breaker(containerName), func(ctx context.Context) error {
		c, err := r.container(containerName)
		if err != nil {
			return err
		}
		pk := azcosmos.NewPartitionKeyString(id)
		_, err = c.DeleteItem(ctx, pk, id, nil)
		if err != nil && isCosmosStatus(err, http.StatusNotFound) {
			return nil
		}
		return err
	})
}

func isCosmosStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == status
	}
	return false
}
