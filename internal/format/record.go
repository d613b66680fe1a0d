package format

import (
	"fmt"

	"example.com/healthexport/internal/table"
	"example.com/healthexport/internal/template"
)

// RecordFormatter turns one raw attribute mapping into a canonical row,
// driven by the loaded format template. It is stateless beyond the shared
// read-only template and safe for concurrent use.
type RecordFormatter struct {
	tmpl *template.Template
}

// NewRecordFormatter constructs a formatter over the given template.
func NewRecordFormatter(tmpl *template.Template) *RecordFormatter {
	return &RecordFormatter{tmpl: tmpl}
}

// Format applies the category's rule groups in template order and merges the
// partial results into one flat row. Attributes declared in the template but
// absent from this record are skipped; later rule groups overwrite earlier
// ones on canonical-name collision. The result is deterministic for
// identical inputs.
func (f *RecordFormatter) Format(category string, raw map[string]string) (table.Row, error) {
	cat, ok := f.tmpl.Category(category)
	if !ok {
		return nil, fmt.Errorf("no template entry for category %q", category)
	}

	row := table.Row{}
	for _, rule := range cat.Rules {
		partial, err := applyRule(cat, rule, raw)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", category, err)
		}
		for name, value := range partial {
			row[name] = value
		}
	}
	return row, nil
}

func applyRule(cat *template.Category, rule template.Rule, raw map[string]string) (table.Row, error) {
	if rule.Kind == template.KindStandard {
		return applyStandard(rule, raw)
	}

	partial := table.Row{}
	for _, attr := range rule.Attrs {
		value, present := raw[attr]
		if !present {
			continue
		}

		switch rule.Kind {
		case template.KindType:
			expanded, err := Type(cat.Pattern, value)
			if err != nil {
				return nil, err
			}
			for name, v := range expanded {
				partial[name] = v
			}
		case template.KindString:
			name, v := String(attr, value)
			partial[name] = v
		case template.KindNoFormat:
			name, v := NoFormat(attr, value)
			partial[name] = v
		case template.KindDevice:
			for name, v := range Device(value) {
				partial[name] = v
			}
		case template.KindDate:
			name, v, err := Date(attr, value)
			if err != nil {
				return nil, err
			}
			partial[name] = v
		case template.KindNumerics:
			name, v, err := Numeric(attr, value)
			if err != nil {
				return nil, err
			}
			partial[name] = v
		default:
			// Unreachable: template loading rejects unknown kinds.
			return nil, fmt.Errorf("unhandled rule kind %s", rule.Kind)
		}
	}
	return partial, nil
}

func applyStandard(rule template.Rule, raw map[string]string) (table.Row, error) {
	partial := table.Row{}
	for _, quantity := range rule.Quantities {
		value, present := raw[quantity.Name]
		if !present {
			continue
		}
		unit, present := raw[quantity.UnitAttr]
		if !present {
			return nil, fmt.Errorf("quantity %s present without unit attribute %s", quantity.Name, quantity.UnitAttr)
		}
		name, v, err := Standard(quantity.Name, value, unit)
		if err != nil {
			return nil, err
		}
		partial[name] = v
	}
	return partial, nil
}
