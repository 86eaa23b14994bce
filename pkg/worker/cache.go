package worker

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Azure/contentflow-sub002/pkg/executor"
)

// graphCacheKey identifies a parsed graph by pipeline id and a digest of
// its YAML, so a pipeline update invalidates the cache entry without
// requiring an explicit eviction call.
type graphCacheKey struct {
	pipelineID string
	yamlHash   string
}

// graphCache is a bounded cache of parsed pipeline graphs, avoiding a
// re-parse of the same pipeline's YAML for every task in a burst.
type graphCache struct {
	cache *lru.Cache[graphCacheKey, *executor.Graph]
}

// newGraphCache builds a graphCache holding up to size entries.
func newGraphCache(size int) (*graphCache, error) {
	c, err := lru.New[graphCacheKey, *executor.Graph](size)
	if err != nil {
		return nil, err
	}
	return &graphCache{cache: c}, nil
}

// getOrParse returns the cached Graph for (pipelineID, yaml) if present,
// otherwise parses and caches it.
func (gc *graphCache) getOrParse(pipelineID, yaml string) (*executor.Graph, error) {
	key := graphCacheKey{pipelineID: pipelineID, yamlHash: hashYAML(yaml)}
	if g, ok := gc.cache.Get(key); ok {
		return g, nil
	}
	g, err := executor.Parse(yaml)
	if err != nil {
		return nil, err
	}
	gc.cache.Add(key, g)
	return g, nil
}

func hashYAML(yaml string) string {
	sum := sha256.Sum256([]byte(yaml))
	return hex.EncodeToString(sum[:])
}
