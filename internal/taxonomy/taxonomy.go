// Package taxonomy normalizes free-text item descriptions and derives
// structured hints (attributes, category) from them.
package taxonomy

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed default_taxonomy.yaml
var defaultTaxonomyYAML []byte

// Abbreviation is a whole-word replacement applied during normalization.
type Abbreviation struct {
	Abbr      string `yaml:"abbr"`
	Expansion string `yaml:"expansion"`
}

// CategoryRule assigns Name when any keyword occurs in the text.
type CategoryRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Taxonomy holds the ordered vocabularies. Reordering any list changes
// pipeline output.
type Taxonomy struct {
	Abbreviations   []Abbreviation `yaml:"abbreviations"`
	Materials       []string       `yaml:"materials"`
	Categories      []CategoryRule `yaml:"categories"`
	DefaultCategory string         `yaml:"default_category"`
}

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	t, err := Parse(defaultTaxonomyYAML)
	if err != nil {
		panic("taxonomy: embedded default is invalid: " + err.Error())
	}
	return t
}

// Load reads a taxonomy YAML file. An empty path returns the default.
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "taxonomy: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a taxonomy document.
func Parse(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "taxonomy: decode yaml")
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Taxonomy) validate() error {
	if t.DefaultCategory == "" {
		t.DefaultCategory = "Other"
	}
	for i, a := range t.Abbreviations {
		a.Abbr = strings.ToLower(strings.TrimSpace(a.Abbr))
		if a.Abbr == "" || strings.ContainsAny(a.Abbr, " \t") {
			return eris.Errorf("taxonomy: abbreviation %d must be a single word", i)
		}
		t.Abbreviations[i] = a
	}
	for i, c := range t.Categories {
		if c.Name == "" || len(c.Keywords) == 0 {
			return eris.Errorf("taxonomy: category rule %d needs a name and keywords", i)
		}
	}
	return nil
}
