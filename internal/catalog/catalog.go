package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"storymaker/internal/domain"
)

//go:embed universes.yaml
var builtinYAML []byte

// Catalog holds the universe presets offered to clients.
type Catalog struct {
	universes []domain.Universe
	byID      map[string]int
}

type document struct {
	Universes []domain.Universe `yaml:"universes"`
}

// Parse decodes a YAML catalog. Ids must be unique and every preset needs a
// name or style.
func Parse(data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("catalog: payload is empty")
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	c := &Catalog{byID: make(map[string]int, len(doc.Universes))}
	for i, u := range doc.Universes {
		u.ID = strings.TrimSpace(u.ID)
		u.Name = strings.TrimSpace(u.Name)
		u.Style = strings.TrimSpace(u.Style)
		if u.ID == "" {
			return nil, fmt.Errorf("catalog: universes[%d]: id is required", i)
		}
		if u.Name == "" && u.Style == "" {
			return nil, fmt.Errorf("catalog: universe %q: name or style is required", u.ID)
		}
		if _, dup := c.byID[u.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate universe %q", u.ID)
		}
		c.byID[u.ID] = len(c.universes)
		c.universes = append(c.universes, u)
	}
	return c, nil
}

// Builtin returns the embedded presets.
func Builtin() *Catalog {
	c, err := Parse(builtinYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads the catalog at path, or the built-ins when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Builtin(), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	c, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return c, nil
}

// List returns the presets in file order.
func (c *Catalog) List() []domain.Universe {
	if c == nil {
		return []domain.Universe{}
	}
	return append([]domain.Universe(nil), c.universes...)
}

// Get returns the preset with id.
func (c *Catalog) Get(id string) (domain.Universe, bool) {
	if c == nil {
		return domain.Universe{}, false
	}
	idx, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return domain.Universe{}, false
	}
	return c.universes[idx], true
}

// Resolve fills the missing name and style of u from the preset with the
// same id. Fields the caller sent win.
func (c *Catalog) Resolve(u domain.Universe) domain.Universe {
	preset, ok := c.Get(u.ID)
	if !ok {
		return u
	}
	if strings.TrimSpace(u.Name) == "" {
		u.Name = preset.Name
	}
	if strings.TrimSpace(u.Style) == "" {
		u.Style = preset.Style
	}
	return u
}
