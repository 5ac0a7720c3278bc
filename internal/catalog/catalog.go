// Package catalog holds the static document-type catalog: each supported type
// with its discriminating description and extraction schema. Loaded once at
// process start, read-only thereafter.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mvbarbosa/docetl/constants"
	"github.com/mvbarbosa/docetl/internal/common"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Field is one declared extraction field.
type Field struct {
	Name      string `yaml:"name"`
	Label     string `yaml:"label"`
	Mandatory bool   `yaml:"mandatory"`
	Hint      string `yaml:"hint"`
}

// Schema is the set of fields declared for a document type.
type Schema struct {
	Fields []Field
}

// FieldNames returns the declared field names in catalog order.
func (s Schema) FieldNames() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// MandatoryFields returns the names flagged mandatory.
func (s Schema) MandatoryFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Mandatory {
			out = append(out, f.Name)
		}
	}
	return out
}

// Declares reports whether the schema declares a field name.
func (s Schema) Declares(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Descriptor binds a catalog type to its description and schema.
type Descriptor struct {
	Type        constants.DocType
	ID          string
	Description string
	Schema      Schema
}

// Catalog is the full immutable type table.
type Catalog struct {
	byType map[constants.DocType]*Descriptor
	order  []constants.DocType
}

type catalogFile struct {
	Version int `yaml:"version"`
	Types   []struct {
		Name        string  `yaml:"name"`
		ID          string  `yaml:"id"`
		Description string  `yaml:"description"`
		Fields      []Field `yaml:"fields"`
	} `yaml:"types"`
}

// Load reads the catalog from path, or the embedded default when path is
// empty. Unknown type names and empty schemas fail here, at startup.
func Load(path string) (*Catalog, error) {
	data := defaultCatalogYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = b
	}
	return parse(data)
}

func parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Types) == 0 {
		return nil, common.NewAppError("CATALOG_EMPTY", "catalog declares no document types", common.ErrInvalidInput)
	}

	c := &Catalog{byType: make(map[constants.DocType]*Descriptor, len(f.Types))}
	for _, t := range f.Types {
		dt, ok := constants.Canonicalize(t.Name)
		if !ok {
			return nil, common.NewAppError("CATALOG_UNKNOWN_TYPE",
				fmt.Sprintf("catalog type %q is not a known document type", t.Name), common.ErrInvalidInput)
		}
		if len(t.Fields) == 0 {
			return nil, common.NewAppError("CATALOG_EMPTY_SCHEMA",
				fmt.Sprintf("type %q declares no fields", t.Name), common.ErrInvalidInput)
		}
		seen := make(map[string]struct{}, len(t.Fields))
		for _, fld := range t.Fields {
			if fld.Name == "" {
				return nil, common.NewAppError("CATALOG_BAD_FIELD",
					fmt.Sprintf("type %q has a field without a name", t.Name), common.ErrInvalidInput)
			}
			if _, dup := seen[fld.Name]; dup {
				return nil, common.NewAppError("CATALOG_BAD_FIELD",
					fmt.Sprintf("type %q declares field %q twice", t.Name, fld.Name), common.ErrInvalidInput)
			}
			seen[fld.Name] = struct{}{}
		}
		if _, dup := c.byType[dt]; dup {
			return nil, common.NewAppError("CATALOG_DUPLICATE_TYPE",
				fmt.Sprintf("type %q declared twice", t.Name), common.ErrInvalidInput)
		}
		id := t.ID
		if id == "" {
			id = constants.DocTypeIDs[dt]
		}
		c.byType[dt] = &Descriptor{
			Type:        dt,
			ID:          id,
			Description: t.Description,
			Schema:      Schema{Fields: t.Fields},
		}
		c.order = append(c.order, dt)
	}
	return c, nil
}

// Lookup returns the descriptor for a type, or nil.
func (c *Catalog) Lookup(dt constants.DocType) *Descriptor {
	return c.byType[dt]
}

// Types returns catalog type names in declaration order.
func (c *Catalog) Types() []constants.DocType {
	out := make([]constants.DocType, len(c.order))
	copy(out, c.order)
	return out
}

// TypeNames returns the names as plain strings, for prompt assembly.
func (c *Catalog) TypeNames() []string {
	out := make([]string, len(c.order))
	for i, dt := range c.order {
		out[i] = string(dt)
	}
	return out
}

// Descriptions maps type name -> discriminating description.
func (c *Catalog) Descriptions() map[string]string {
	out := make(map[string]string, len(c.order))
	for _, dt := range c.order {
		out[string(dt)] = c.byType[dt].Description
	}
	return out
}
