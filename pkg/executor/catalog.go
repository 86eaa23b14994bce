package executor

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/Azure/contentflow-sub002/pkg/contentflowerr"
)

// CatalogEntry declares one known executor_type for validation purposes
// only: it never loads code, it only tells Validate what a well-formed
// node of this type looks like.
type CatalogEntry struct {
	Type          string
	IsInput       bool
	RequiredKeys  []string
	SettingsCheck func(settings map[string]any) error
}

// Catalog is a declarative listing of known executor types, keyed by
// executor_type.
type Catalog map[string]CatalogEntry

var validate = validator.New()

// NewCatalog builds a Catalog from entries, keyed by each entry's Type.
func NewCatalog(entries ...CatalogEntry) Catalog {
	c := make(Catalog, len(entries))
	for _, e := range entries {
		c[e.Type] = e
	}
	return c
}

// Validate checks a parsed Graph against the catalog: every node's
// executor_type must be listed, the input node's type must be marked
// IsInput, non-input nodes must not be, and each node's settings must carry
// its declared required keys and pass its SettingsCheck if one is set.
// A registered executor_type with no catalog entry is accepted without
// settings validation — the catalog documents known types, it doesn't
// gate which ones the registry can run.
func (c Catalog) Validate(g *Graph) error {
	for _, id := range g.order {
		node, _ := g.Node(id)
		entry, known := c[node.ExecutorType]
		if !known {
			continue
		}
		if id == g.InputNode && !entry.IsInput {
			return contentflowerr.New(contentflowerr.InvalidPipeline,
				fmt.Errorf("node %q is the input node but type %q is not an input executor", id, node.ExecutorType))
		}
		if id != g.InputNode && entry.IsInput {
			return contentflowerr.New(contentflowerr.InvalidPipeline,
				fmt.Errorf("node %q uses input executor type %q in a non-input position", id, node.ExecutorType))
		}
		for _, key := range entry.RequiredKeys {
			if _, ok := node.Settings[key]; !ok {
				return contentflowerr.New(contentflowerr.InvalidPipeline,
					fmt.Errorf("node %q missing required setting %q for type %q", id, key, node.ExecutorType))
			}
		}
		if entry.SettingsCheck != nil {
			if err := entry.SettingsCheck(node.Settings); err != nil {
				return contentflowerr.New(contentflowerr.InvalidPipeline,
					fmt.Errorf("node %q settings invalid: %w", id, err))
			}
		}
	}
	return nil
}

// ValidateSettings runs go-playground/validator over a typed settings
// struct an executor has decoded its raw map[string]any into. Executors
// with more than a couple of required keys should decode into a struct and
// use this as their CatalogEntry.SettingsCheck instead of hand-rolled field
// checks.
func ValidateSettings(s any) error {
	return validate.Struct(s)
}
