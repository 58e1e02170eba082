package tool

import (
	"encoding/json"
	"errors"
	"fmt"

	"flowdesk/internal/llm"
)

// Category groups tools by the endpoint that serves them.
type Category int

const (
	CategoryQuery Category = iota + 1
	CategoryAction
	CategoryManage
)

func (c Category) String() string {
	switch c {
	case CategoryQuery:
		return "query"
	case CategoryAction:
		return "action"
	case CategoryManage:
		return "manage"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Categories lists every category in catalog order.
func Categories() []Category {
	return []Category{CategoryQuery, CategoryAction, CategoryManage}
}

// Definition describes one tool offered to the model.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    Category        `json:"-"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// Override replaces a category's description and/or schema. Empty fields
// keep the original.
type Override struct {
	Description string
	Schema      json.RawMessage
}

// Catalog is an ordered, immutable set of tool definitions with unique names.
type Catalog struct {
	defs   []Definition
	byName map[string]int
}

// NewCatalog validates defs and returns a catalog that preserves their order.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{
		defs:   make([]Definition, 0, len(defs)),
		byName: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.New("tool definition has empty name")
		}
		if _, dup := c.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name: %s", d.Name)
		}
		if d.Category < CategoryQuery || d.Category > CategoryManage {
			return nil, fmt.Errorf("tool %s: unknown %s", d.Name, d.Category)
		}
		c.byName[d.Name] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// Lookup returns the definition registered under name.
func (c *Catalog) Lookup(name string) (Definition, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Names returns the tool names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.defs))
	for i, d := range c.defs {
		names[i] = d.Name
	}
	return names
}

// All returns a copy of the definitions in catalog order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Definitions returns tool definitions for LLM requests.
func (c *Catalog) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, len(c.defs))
	for i, d := range c.defs {
		defs[i] = llm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		}
	}
	return defs
}

// WithOverrides returns a new catalog with the overrides applied per
// category. A schema that is not a JSON object is ignored. The receiver is
// left untouched.
func (c *Catalog) WithOverrides(overrides map[Category]Override) *Catalog {
	out := &Catalog{
		defs:   c.All(),
		byName: make(map[string]int, len(c.byName)),
	}
	for i := range out.defs {
		d := &out.defs[i]
		out.byName[d.Name] = i
		o, ok := overrides[d.Category]
		if !ok {
			continue
		}
		if o.Description != "" {
			d.Description = o.Description
		}
		if isObject(o.Schema) {
			d.Parameters = o.Schema
		}
	}
	return out
}

func isObject(raw json.RawMessage) bool {
	var m map[string]json.RawMessage
	return len(raw) > 0 && json.Unmarshal(raw, &m) == nil && m != nil
}
