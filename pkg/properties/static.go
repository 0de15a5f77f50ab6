package properties

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no property has the given id.
var ErrNotFound = errors.New("property not found")

// StaticCatalog serves properties from a fixed set, loaded from a JSON file or
// built in code. It backs local development and tests.
type StaticCatalog struct {
	mu         sync.RWMutex
	properties map[uuid.UUID]Property
}

type staticFile struct {
	Properties []Property `json:"properties"`
}

// NewStaticCatalog creates an empty StaticCatalog.
func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{properties: map[uuid.UUID]Property{}}
}

// LoadStaticCatalog builds a StaticCatalog from a JSON file with the shape
// {"properties": [...]}.
func LoadStaticCatalog(path string) (*StaticCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading properties file: %s", err)
	}
	var file staticFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing properties file: %s", err)
	}
	c := NewStaticCatalog()
	for _, p := range file.Properties {
		c.properties[p.ID] = p
	}
	return c, nil
}

// Put registers a property.
func (c *StaticCatalog) Put(p Property) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.properties[p.ID] = p
}

// Get returns the registered property with the given id.
func (c *StaticCatalog) Get(_ context.Context, id uuid.UUID) (*Property, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.properties[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// Search filters the registered set with Matches.
func (c *StaticCatalog) Search(_ context.Context, f Filter) ([]*Property, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Property, 0)
	for _, p := range c.properties {
		if !p.Matches(f) {
			continue
		}
		p := p
		out = append(out, &p)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}
