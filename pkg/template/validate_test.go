package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplatedInputs(t *testing.T) {
	inputs := map[string]any{
		"text": "Hello {{ .trigger.name }}",
		"url":  "https://example.com",
		"headers": map[string]any{
			"X-Run": "{{ .execution.id }}",
			"Plain": "value",
		},
		"items": []any{"a", "{{ index .steps 0 }}", 3.0},
	}

	assert.Equal(t, []string{"headers.X-Run", "items.1", "text"}, TemplatedInputs(inputs))
	assert.Empty(t, TemplatedInputs(map[string]any{"a": "b"}))
	assert.Empty(t, TemplatedInputs(nil))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(map[string]any{
		"text":  "{{ .trigger.name | default \"anon\" }}",
		"plain": "no template",
	}))

	err := Validate(map[string]any{
		"ok": "{{ .trigger.name }}",
		"body": map[string]any{
			"broken": "{{ .trigger.name ",
		},
		"list": []any{"{{ end }}"},
	})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidTemplate)
	assert.Contains(t, err.Error(), "body.broken")
	assert.Contains(t, err.Error(), "list.0")
	assert.NotContains(t, err.Error(), "at ok")
}
