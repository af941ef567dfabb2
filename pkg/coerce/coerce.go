// Package coerce converts loosely typed input values to the primitive types a step declares.
package coerce

import (
	"math"
	"strconv"
	"strings"

	"github.com/dukex/autoflow/pkg/models"
)

// CleanInputValues returns a copy of values where string entries are converted to the
// type declared for them in schema. Values that cannot be converted are kept as they are,
// as are fields without a declared type and values that are not strings.
func CleanInputValues(values map[string]any, schema *models.JSONSchema) map[string]any {
	if values == nil {
		return nil
	}

	out := make(map[string]any, len(values))

	for field, value := range values {
		out[field] = Value(value, schema.PropertyType(field))
	}

	return out
}

// Value converts a single value to the declared primitive type when it is a string.
func Value(value any, declared string) any {
	str, ok := value.(string)
	if !ok {
		return value
	}

	switch declared {
	case models.PropertyTypeNumber:
		number, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil || math.IsNaN(number) || math.IsInf(number, 0) {
			return str
		}

		return number
	case models.PropertyTypeBoolean:
		switch str {
		case "true":
			return true
		case "false":
			return false
		}

		return str
	default:
		return str
	}
}

// FieldsSchema builds a schema from a trigger's declared field list, for example
// {"a": "number"} or {"a": {"type": "number"}}.
func FieldsSchema(fields map[string]any) *models.JSONSchema {
	if len(fields) == 0 {
		return nil
	}

	schema := &models.JSONSchema{
		Type:       models.PropertyTypeObject,
		Properties: make(map[string]*models.Property, len(fields)),
	}

	for name, declared := range fields {
		switch v := declared.(type) {
		case string:
			schema.Properties[name] = &models.Property{Type: v}
		case map[string]any:
			if t, ok := v["type"].(string); ok {
				schema.Properties[name] = &models.Property{Type: t}
			}
		}
	}

	return schema
}
