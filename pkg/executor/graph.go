package executor

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Azure/contentflow-sub002/pkg/contentflowerr"
)

// Node is one executor instance in a pipeline graph.
type Node struct {
	ExecutorID   string         `yaml:"id"`
	ExecutorType string         `yaml:"type"`
	Settings     map[string]any `yaml:"settings"`
	Next         []string       `yaml:"next"`
	ParallelOf   []string       `yaml:"parallel"`
	MaxParallel  int            `yaml:"max_parallel"`
}

// pipelineYAML is the on-disk shape a Pipeline.YAML document unmarshals
// into: a flat node list plus an explicit input node id.
type pipelineYAML struct {
	Input string `yaml:"input"`
	Nodes []Node `yaml:"nodes"`
}

// Graph is a parsed pipeline: an ordered set of executor nodes with
// successor edges, and a designated input node.
type Graph struct {
	InputNode string
	nodes     map[string]Node
	order     []string // topological order, input node first
}

// Parse loads a pipeline's opaque YAML text into a Graph. It validates that
// exactly one input node exists, every edge refers to a known node, and the
// successor relation has no cycle.
func Parse(raw string) (*Graph, error) {
	var doc pipelineYAML
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, contentflowerr.New(contentflowerr.InvalidPipeline, fmt.Errorf("parse pipeline yaml: %w", err))
	}
	if doc.Input == "" {
		return nil, contentflowerr.New(contentflowerr.InvalidPipeline, fmt.Errorf("pipeline has no input node"))
	}
	nodes := make(map[string]Node, len(doc.Nodes))
	for _, n := range doc.Nodes {
		if n.ExecutorID == "" {
			return nil, contentflowerr.New(contentflowerr.InvalidPipeline, fmt.Errorf("node missing id"))
		}
		if _, dup := nodes[n.ExecutorID]; dup {
			return nil, contentflowerr.New(contentflowerr.InvalidPipeline, fmt.Errorf("duplicate node id %q", n.ExecutorID))
		}
		nodes[n.ExecutorID] = n
	}
	if _, ok := nodes[doc.Input]; !ok {
		return nil, contentflowerr.New(contentflowerr.InvalidPipeline, fmt.Errorf("input node %q not defined", doc.Input))
	}
	for _, n := range nodes {
		for _, succ := range n.Next {
			if _, ok := nodes[succ]; !ok {
				return nil, contentflowerr.New(contentflowerr.InvalidPipeline, fmt.Errorf("node %q references unknown successor %q", n.ExecutorID, succ))
			}
		}
		for _, p := range n.ParallelOf {
			if !contains(n.Next, p) {
				return nil, contentflowerr.New(contentflowerr.InvalidPipeline, fmt.Errorf("node %q declares parallel %q which is not one of its next edges", n.ExecutorID, p))
			}
		}
	}

	order, err := topoSort(nodes, doc.Input)
	if err != nil {
		return nil, contentflowerr.New(contentflowerr.InvalidPipeline, err)
	}

	return &Graph{InputNode: doc.Input, nodes: nodes, order: order}, nil
}

// Node returns the node definition for id, or false if id is not in the
// graph.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Successors returns node id's direct successor node ids, in declaration
// order.
func (g *Graph) Successors(id string) []string {
	return g.nodes[id].Next
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// OrderFrom returns the topological order of nodes reachable from start
// (inclusive) by following declared edges.
func (g *Graph) OrderFrom(start string) []string {
	return g.OrderFromAny([]string{start})
}

// OrderFromAny returns the topological order of every node reachable by
// following declared edges from any of starts (each inclusive), deduplicated
// and presented in the graph's overall topological order. It is the fan-out
// entry point for a pipeline stage with more than one successor: each
// successor becomes its own reachable root instead of only the first being
// honored.
func (g *Graph) OrderFromAny(starts []string) []string {
	reach := make(map[string]bool, len(g.nodes))
	var walk func(id string)
	walk = func(id string) {
		if reach[id] {
			return
		}
		if _, ok := g.nodes[id]; !ok {
			return
		}
		reach[id] = true
		for _, succ := range g.nodes[id].Next {
			walk(succ)
		}
	}
	for _, s := range starts {
		walk(s)
	}

	var out []string
	for _, id := range g.order {
		if reach[id] {
			out = append(out, id)
		}
	}
	return out
}

// topoSort performs a depth-first topological sort rooted at start,
// returning an error if the successor relation contains a cycle.
func topoSort(nodes map[string]Node, start string) ([]string, error) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(nodes))
	var order []string

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("cycle detected at node %q", id)
		}
		color[id] = gray
		for _, succ := range nodes[id].Next {
			if err := visit(succ); err != nil {
				return err
			}
		}
		color[id] = black
		order = append(order, id)
		return nil
	}

	if err := visit(start); err != nil {
		return nil, err
	}
	// Any node not reachable from the input is still part of the
	// declared graph (e.g. a second branch root); visit the remainder in
	// sorted order so OrderFrom stays deterministic across parses.
	remaining := make([]string, 0, len(nodes))
	for id := range nodes {
		remaining = append(remaining, id)
	}
	sort.Strings(remaining)
	for _, id := range remaining {
		if err := visit(id); err != nil {
			return nil, err
		}
	}

	// visit appends in post-order (successors before the node itself);
	// reverse to get a true topological order.
	reversed := make([]string, len(order))
	for i, id := range order {
		reversed[len(order)-1-i] = id
	}
	return reversed, nil
}
