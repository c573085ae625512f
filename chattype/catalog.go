package chattype

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// An ordered set of known chat types.
type Catalog struct {
	types []*Descriptor
}

func NewCatalog(types ...*Descriptor) *Catalog {
	return &Catalog{types: types}
}

func (c *Catalog) Types() []*Descriptor {
	return append([]*Descriptor{}, c.types...)
}

// Find the type whose contract code hashes to hash. Types without a hash never match.
func (c *Catalog) ByBytecodeHash(hash string) *Descriptor {
	hash = normalizeHash(hash)
	if hash == "" {
		return nil
	}
	for _, t := range c.types {
		if normalizeHash(t.ID.BytecodeHash) == hash {
			return t
		}
	}
	return nil
}

func (c *Catalog) ByID(id ID) *Descriptor {
	for _, t := range c.types {
		if t.ID.Category == id.Category && normalizeHash(t.ID.BytecodeHash) == normalizeHash(id.BytecodeHash) {
			return t
		}
	}
	return nil
}

// The first public chat type, used for the chat every new session starts with.
func (c *Catalog) DefaultPublic() *Descriptor {
	for _, t := range c.types {
		if t.ClassType == ClassPublicChat {
			return t
		}
	}
	return nil
}

// Merge returns a catalog where types in other replace types with the same id, and new types are appended.
func (c *Catalog) Merge(other *Catalog) *Catalog {
	out := &Catalog{types: append([]*Descriptor{}, c.types...)}
	for _, t := range other.types {
		replaced := false
		for i, existing := range out.types {
			if existing.ID.Category == t.ID.Category && normalizeHash(existing.ID.BytecodeHash) == normalizeHash(t.ID.BytecodeHash) {
				out.types[i] = t
				replaced = true
				break
			}
		}
		if !replaced {
			out.types = append(out.types, t)
		}
	}
	return out
}

type catalogFile struct {
	Types []*Descriptor `yaml:"types"`
}

// Load a catalog from YAML with a top-level `types` list.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	cf := &catalogFile{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cf); err != nil {
		return nil, fmt.Errorf("chattype: error decoding catalog: %w", err)
	}
	for i, t := range cf.Types {
		if t.ClassType == "" {
			return nil, fmt.Errorf("chattype: type %d (%s) has no classType", i, t.Title)
		}
		if t.ID.Category == "" {
			return nil, fmt.Errorf("chattype: type %d (%s) has no category", i, t.Title)
		}
	}
	return NewCatalog(cf.Types...), nil
}

func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCatalog(f)
}

func normalizeHash(h string) string {
	return strings.ToLower(strings.TrimPrefix(h, "0x"))
}
