// Package format converts raw export attributes into canonical row fields.
//
// Every formatter is a pure function over one raw (name, value) pair; the
// canonical name is the snake-cased raw name except for the type and device
// formatters, which expand a single encoded string into several fields.
package format

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/iancoleman/strcase"
	"golang.org/x/text/unicode/norm"

	"example.com/healthexport/internal/table"
)

var (
	// ErrUnsupportedUnit reports a standardized quantity with a unit (or
	// quantity type) outside the known set. Never silently coerced.
	ErrUnsupportedUnit = errors.New("unsupported unit")
	// ErrPatternMismatch reports a type string the category's decomposition
	// pattern did not match exactly once.
	ErrPatternMismatch = errors.New("type pattern mismatch")
)

// ASCII punctuation except the period, which device values keep
// ("Apple Inc.", software versions).
const devicePunct = "!\"#$%&'()*+,-/:;<=>?@[\\]^_`{|}~"

// Type decomposes an encoded type string (e.g. "HKWorkoutActivityTypeYoga")
// with a two-capture-group pattern into the fixed {activity_type, activity}
// field pair.
func Type(pattern *regexp.Regexp, value string) (table.Row, error) {
	matches := pattern.FindAllStringSubmatch(value, -1)
	if len(matches) != 1 || len(matches[0]) != 3 {
		return nil, fmt.Errorf("%w: %q against %s", ErrPatternMismatch, value, pattern)
	}
	return table.Row{
		"activity_type": matches[0][1],
		"activity":      matches[0][2],
	}, nil
}

// String snake-cases the attribute name and NFKD-normalizes the value so
// visually equivalent glyph sequences collapse to one representation.
func String(name, value string) (string, string) {
	return strcase.ToSnake(name), norm.NFKD.String(value)
}

// NoFormat snake-cases the attribute name and passes the value through.
func NoFormat(name, value string) (string, string) {
	return strcase.ToSnake(name), value
}

// Numeric snake-cases the attribute name and parses the value as a float.
func Numeric(name, value string) (string, float64, error) {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return "", 0, fmt.Errorf("parse numeric %s: %w", name, err)
	}
	return strcase.ToSnake(name), parsed, nil
}

// Date snake-cases the attribute name and parses the value from the loose
// ISO-like timestamp forms used by the export.
func Date(name, value string) (string, time.Time, error) {
	parsed, err := dateparse.ParseAny(value)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parse date %s: %w", name, err)
	}
	return strcase.ToSnake(name), parsed, nil
}

// Device splits a composite device string on commas into colon-delimited
// components and returns one device_<label> field per component. Components
// without a colon are discarded. On exact key collision the last component
// wins; that mirrors the source data's unordered duplicate labels and is
// documented behaviour, not a guarantee worth relying on.
func Device(value string) table.Row {
	row := table.Row{}
	for _, component := range strings.Split(value, ",") {
		label, rest, found := strings.Cut(component, ":")
		if !found {
			continue
		}
		key := "device_" + strings.ToLower(cleanDevicePart(label))
		row[key] = cleanDevicePart(rest)
	}
	return row
}

func cleanDevicePart(s string) string {
	return strings.TrimSpace(strings.Trim(s, devicePunct))
}

// Standard collapses a (quantity, value, unit) triple onto the canonical unit
// for its quantity class: durations to minutes, distances to kilometers,
// energy to kilocalories. The canonical field name carries the unit suffix.
// Units and quantity types outside the known set are hard errors.
func Standard(name, value, unit string) (string, float64, error) {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return "", 0, fmt.Errorf("parse quantity %s: %w", name, err)
	}

	key := strcase.ToSnake(strings.TrimPrefix(name, "total"))
	switch key {
	case "duration":
		column := key + "_min"
		switch unit {
		case "min":
			return column, parsed, nil
		case "sec":
			return column, parsed / 60, nil
		default:
			return "", 0, fmt.Errorf("%w: %s for %s", ErrUnsupportedUnit, unit, key)
		}
	case "distance", "energy_burned":
		column := key + "_" + unit
		if !strings.HasPrefix(unit, "k") {
			column = key + "_k" + unit
		}
		switch unit {
		case "km", "kcal":
			return column, parsed, nil
		case "m", "cal":
			return column, parsed / 1000, nil
		default:
			return "", 0, fmt.Errorf("%w: %s for %s", ErrUnsupportedUnit, unit, key)
		}
	default:
		return "", 0, fmt.Errorf("%w: quantity type %s", ErrUnsupportedUnit, key)
	}
}
