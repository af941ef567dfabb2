package registry

import (
	"maps"
	"slices"
	"sync"

	"github.com/dukex/autoflow/pkg/models"
)

// Setting is one builder-facing input of a step type.
type Setting struct {
	Key      string `json:"key"`
	Type     string `json:"type"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
	Default  any    `json:"default,omitempty"`
}

// SettingsCache memoizes resolved settings by fully qualified step-type identifier.
// Definitions are immutable for the process lifetime so entries never expire; Reset
// exists for tests. Reads do not take a lock.
type SettingsCache struct {
	entries sync.Map
}

// NewSettingsCache creates an empty cache.
func NewSettingsCache() *SettingsCache {
	return &SettingsCache{}
}

// Get returns the cached settings for key, calling resolve on the first lookup.
func (c *SettingsCache) Get(key string, resolve func() []Setting) []Setting {
	if cached, ok := c.entries.Load(key); ok {
		return cached.([]Setting)
	}

	actual, _ := c.entries.LoadOrStore(key, resolve())

	return actual.([]Setting)
}

// Len returns the number of cached entries.
func (c *SettingsCache) Len() int {
	count := 0

	c.entries.Range(func(_, _ any) bool {
		count++

		return true
	})

	return count
}

// Reset drops every cached entry.
func (c *SettingsCache) Reset() {
	c.entries.Clear()
}

func resolveSettings(schema *models.JSONSchema) []Setting {
	if schema == nil {
		return []Setting{}
	}

	settings := make([]Setting, 0, len(schema.Properties))

	for _, key := range slices.Sorted(maps.Keys(schema.Properties)) {
		prop := schema.Properties[key]

		label := prop.Title
		if label == "" {
			label = key
		}

		settings = append(settings, Setting{
			Key:      key,
			Type:     prop.Type,
			Label:    label,
			Required: slices.Contains(schema.Required, key),
			Default:  prop.Default,
		})
	}

	return settings
}
