package models

// Primitive property types understood by the input coercer.
const (
	PropertyTypeString  = "string"
	PropertyTypeNumber  = "number"
	PropertyTypeBoolean = "boolean"
	PropertyTypeObject  = "object"
	PropertyTypeArray   = "array"
)

// JSONSchema represents the input or output schema of a step definition.
type JSONSchema struct {
	Type        string               `json:"type,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
}

// Property represents a JSON Schema property.
type Property struct {
	Type        string               `json:"type"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
	Enum        []any                `json:"enum,omitempty"`
	Default     any                  `json:"default,omitempty"`
	Format      string               `json:"format,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
}

// PropertyType returns the declared type of a field, or "" when undeclared.
func (s *JSONSchema) PropertyType(field string) string {
	if s == nil || s.Properties == nil {
		return ""
	}

	prop, ok := s.Properties[field]
	if !ok || prop == nil {
		return ""
	}

	return prop.Type
}
