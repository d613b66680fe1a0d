// Package template defines the declarative format template that maps export
// categories to the formatting rules applied to their raw attributes.
package template

import (
	"embed"
	"fmt"
	"regexp"

	"github.com/iancoleman/strcase"
	"gopkg.in/yaml.v3"
)

//go:embed activity_format.yaml
var resourceFS embed.FS

// Kind identifies the formatting strategy applied to a rule group. The set is
// closed: template loading rejects any kind string outside it, so dispatch
// never sees an unknown kind.
type Kind int

const (
	KindType Kind = iota
	KindString
	KindNoFormat
	KindDevice
	KindDate
	KindNumerics
	KindStandard
)

var kindNames = map[string]Kind{
	"type":      KindType,
	"string":    KindString,
	"no_format": KindNoFormat,
	"device":    KindDevice,
	"date":      KindDate,
	"numerics":  KindNumerics,
	"standard":  KindStandard,
}

// String returns the template-file spelling of the kind.
func (k Kind) String() string {
	for name, kind := range kindNames {
		if kind == k {
			return name
		}
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// UnmarshalYAML decodes a kind string, rejecting unknown values at load time.
func (k *Kind) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	kind, ok := kindNames[name]
	if !ok {
		return fmt.Errorf("unknown rule kind %q", name)
	}
	*k = kind
	return nil
}

// Quantity names a standardized quantity attribute and the attribute that
// carries its unit.
type Quantity struct {
	Name     string `yaml:"name"`
	UnitAttr string `yaml:"unit"`
}

// Rule is one rule group: a kind plus the raw attribute names it governs.
// Standard rules carry quantities instead of bare attribute names.
type Rule struct {
	Kind       Kind       `yaml:"kind"`
	Attrs      []string   `yaml:"attrs"`
	Quantities []Quantity `yaml:"quantities"`
}

// Category is the format specification for one export category.
type Category struct {
	Name    string
	Rules   []Rule
	Pattern *regexp.Regexp
}

// DateColumn returns the canonical name of the category's designated date
// column: the snake-cased first attribute of its first date rule.
func (c *Category) DateColumn() (string, bool) {
	for _, rule := range c.Rules {
		if rule.Kind == KindDate && len(rule.Attrs) > 0 {
			return strcase.ToSnake(rule.Attrs[0]), true
		}
	}
	return "", false
}

// Template is the loaded format template. It is immutable after Load and safe
// to share across workers.
type Template struct {
	categories map[string]*Category
	order      []string
}

type rawCategory struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	Rules   []Rule `yaml:"rules"`
}

type rawTemplate struct {
	Categories []rawCategory `yaml:"categories"`
}

// Load reads the bundled format template resource.
func Load() (*Template, error) {
	data, err := resourceFS.ReadFile("activity_format.yaml")
	if err != nil {
		return nil, fmt.Errorf("read template resource: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates template data.
func Parse(data []byte) (*Template, error) {
	var raw rawTemplate
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	if len(raw.Categories) == 0 {
		return nil, fmt.Errorf("template declares no categories")
	}

	tmpl := &Template{categories: make(map[string]*Category, len(raw.Categories))}
	for _, rc := range raw.Categories {
		if rc.Name == "" {
			return nil, fmt.Errorf("template category with empty name")
		}
		if _, exists := tmpl.categories[rc.Name]; exists {
			return nil, fmt.Errorf("duplicate template category %q", rc.Name)
		}

		cat := &Category{Name: rc.Name, Rules: rc.Rules}
		if rc.Pattern != "" {
			pattern, err := regexp.Compile(rc.Pattern)
			if err != nil {
				return nil, fmt.Errorf("category %s: compile pattern: %w", rc.Name, err)
			}
			if pattern.NumSubexp() != 2 {
				return nil, fmt.Errorf("category %s: pattern %q must have exactly two capture groups", rc.Name, rc.Pattern)
			}
			cat.Pattern = pattern
		}

		for _, rule := range rc.Rules {
			switch rule.Kind {
			case KindStandard:
				if len(rule.Quantities) == 0 {
					return nil, fmt.Errorf("category %s: standard rule without quantities", rc.Name)
				}
			case KindType:
				if cat.Pattern == nil {
					return nil, fmt.Errorf("category %s: type rule requires a pattern", rc.Name)
				}
				if len(rule.Attrs) == 0 {
					return nil, fmt.Errorf("category %s: type rule without attrs", rc.Name)
				}
			default:
				if len(rule.Attrs) == 0 {
					return nil, fmt.Errorf("category %s: %s rule without attrs", rc.Name, rule.Kind)
				}
			}
		}

		tmpl.categories[rc.Name] = cat
		tmpl.order = append(tmpl.order, rc.Name)
	}
	return tmpl, nil
}

// Category looks up the specification for a category name.
func (t *Template) Category(name string) (*Category, bool) {
	cat, ok := t.categories[name]
	return cat, ok
}

// Categories returns all category names in declaration order.
func (t *Template) Categories() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}
