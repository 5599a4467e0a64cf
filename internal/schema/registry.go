package schema

import (
	"fmt"
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/agenthands/graphdiff/internal/core/model"
)

type registryFile struct {
	Nodes    []NodeSchema            `toml:"nodes"`
	Branches map[string][]NodeSchema `toml:"branches"`
}

// Registry is a Provider backed by a TOML schema file. Branch sections override
// the default node definitions for that branch only.
type Registry struct {
	mu       sync.RWMutex
	nodes    map[string]*NodeSchema
	branches map[string]map[string]*NodeSchema
}

func NewRegistry(nodes ...NodeSchema) *Registry {
	r := &Registry{
		nodes:    make(map[string]*NodeSchema),
		branches: make(map[string]map[string]*NodeSchema),
	}
	for _, n := range nodes {
		r.Register("", n)
	}
	return r
}

func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file '%s': %w", path, err)
	}
	return ParseRegistry(data)
}

func ParseRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse schema TOML: %w", err)
	}

	r := NewRegistry(file.Nodes...)
	for branch, nodes := range file.Branches {
		for _, n := range nodes {
			r.Register(branch, n)
		}
	}
	return r, nil
}

// Register adds or replaces a kind; an empty branch registers the default definition.
func (r *Registry) Register(branch string, n NodeSchema) {
	n = normalize(n)

	r.mu.Lock()
	defer r.mu.Unlock()
	if branch == "" {
		r.nodes[n.Kind] = &n
		return
	}
	if r.branches[branch] == nil {
		r.branches[branch] = make(map[string]*NodeSchema)
	}
	r.branches[branch][n.Kind] = &n
}

func (r *Registry) NodeSchema(kind, branch string) (*NodeSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if overrides, ok := r.branches[branch]; ok {
		if n, ok := overrides[kind]; ok {
			return n, nil
		}
	}
	if n, ok := r.nodes[kind]; ok {
		return n, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrKindNotFound, kind)
}

func normalize(n NodeSchema) NodeSchema {
	for i := range n.Attributes {
		if n.Attributes[i].Kind == "" {
			n.Attributes[i].Kind = KindText
		}
	}
	for i := range n.Relationships {
		rel := &n.Relationships[i]
		if rel.Cardinality == "" {
			rel.Cardinality = model.CardinalityMany
		}
		if rel.Kind == "" {
			rel.Kind = model.RelationshipGeneric
		}
		if rel.Identifier == "" {
			rel.Identifier = rel.Name
		}
	}
	return n
}
