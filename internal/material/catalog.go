// Package material holds the static material reference data and the rule
// engine that recommends a material for a load, environment and budget.
package material

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed materials.yaml
var embeddedCatalog []byte

// Key identifies a material in the catalog.
type Key string

const (
	PLA      Key = "PLA"
	Aluminum Key = "Aluminum6061"
	Steel    Key = "Steel1045"
)

// Material is immutable reference data.
type Material struct {
	Key                 Key     `yaml:"key" json:"key" validate:"required"`
	DisplayName         string  `yaml:"display_name" json:"display_name" validate:"required"`
	YieldStrength       float64 `yaml:"yield_strength" json:"yield_strength" validate:"gt=0"`
	YoungsModulus       float64 `yaml:"youngs_modulus" json:"youngs_modulus" validate:"gte=0"`
	Density             float64 `yaml:"density" json:"density" validate:"gt=0"`
	CostPerKg           float64 `yaml:"cost_per_kg" json:"cost_per_kg" validate:"gte=0"`
	CO2PerKg            float64 `yaml:"co2_per_kg" json:"co2_per_kg" validate:"gte=0"`
	ManufacturingMethod string  `yaml:"manufacturing_method" json:"manufacturing_method" validate:"required"`
}

type catalogFile struct {
	Materials []Material `yaml:"materials" validate:"required,min=1,dive"`
}

// Catalog is the ordered, read-only set of known materials.
type Catalog struct {
	materials []Material
	byKey     map[Key]int
}

// LoadCatalog parses and validates a YAML material catalog.
func LoadCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal material catalog: %w", err)
	}
	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("invalid material catalog: %w", err)
	}

	c := &Catalog{
		materials: file.Materials,
		byKey:     make(map[Key]int, len(file.Materials)),
	}
	for i, m := range file.Materials {
		if _, dup := c.byKey[m.Key]; dup {
			return nil, fmt.Errorf("invalid material catalog: duplicate key %q", m.Key)
		}
		c.byKey[m.Key] = i
	}
	return c, nil
}

var defaultCatalog = mustLoad(embeddedCatalog)

func mustLoad(data []byte) *Catalog {
	c, err := LoadCatalog(data)
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	return defaultCatalog
}

// All returns the materials in catalog order.
func (c *Catalog) All() []Material {
	out := make([]Material, len(c.materials))
	copy(out, c.materials)
	return out
}

// Lookup finds a material by key.
func (c *Catalog) Lookup(key Key) (Material, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Material{}, false
	}
	return c.materials[i], true
}

// Resolve finds a material by key, ignoring case.
func (c *Catalog) Resolve(name string) (Material, bool) {
	if m, ok := c.Lookup(Key(name)); ok {
		return m, true
	}
	for _, m := range c.materials {
		if strings.EqualFold(string(m.Key), name) {
			return m, true
		}
	}
	return Material{}, false
}
