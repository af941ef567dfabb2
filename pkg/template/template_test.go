package template

import (
	"testing"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SimpleExpression(t *testing.T) {
	data := map[string]any{
		"name":  "John",
		"age":   30,
		"isNew": true,
	}

	result, err := Render("{{ .name }}", data)
	require.NoError(t, err)
	assert.Equal(t, "John", result)

	// scalars stay strings; the step schema decides their type
	result, err = Render("{{ .age }}", data)
	require.NoError(t, err)
	assert.Equal(t, "30", result)

	result, err = Render("{{ .isNew }}", data)
	require.NoError(t, err)
	assert.Equal(t, "true", result)
}

func TestRender_JSONOutput(t *testing.T) {
	data := map[string]any{
		"user": map[string]any{"name": "Alice"},
		"orders": []any{
			map[string]any{"id": 1},
			map[string]any{"id": 2},
		},
	}

	result, err := Render(`{"user_name": "{{ .user.name }}", "total_orders": {{ len .orders }}}`, data)
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Alice", resultMap["user_name"])
	assert.InDelta(t, 2.0, resultMap["total_orders"], 0)

	result, err = Render(`{{ json .orders }}`, data)
	require.NoError(t, err)
	assert.Len(t, result, 2)
}

func TestRender_Errors(t *testing.T) {
	_, err := Render("{{ .name ", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse template")
}

func TestRender_BracketedTextStaysString(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     map[string]any
		expected any
	}{
		{
			name:     "braced word",
			template: "{{ .name }}",
			data:     map[string]any{"name": "{draft}"},
			expected: "{draft}",
		},
		{
			name:     "bracketed tag",
			template: "{{ .tag }}",
			data:     map[string]any{"tag": "[urgent] call back"},
			expected: "[urgent] call back",
		},
		{
			name:     "object with unquoted value",
			template: `{"broken": {{ .x }}}`,
			data:     map[string]any{"x": "not json"},
			expected: `{"broken": not json}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Render(tt.template, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRender_MissingKeyIsEmpty(t *testing.T) {
	data := map[string]any{"trigger": map[string]any{"name": "Ada"}}

	result, err := Render("{{ .trigger.nope }}", data)
	require.NoError(t, err)
	assert.Equal(t, "", result)

	result, err = Render("hi {{ .trigger.name }}{{ .trigger.nope }}", data)
	require.NoError(t, err)
	assert.Equal(t, "hi Ada", result)

	result, err = Render(`{{ default "anon" .trigger.nope }}`, data)
	require.NoError(t, err)
	assert.Equal(t, "anon", result)
}

func TestRender_Default(t *testing.T) {
	result, err := Render(`{{ default "anon" .name }}`, map[string]any{"name": ""})
	require.NoError(t, err)
	assert.Equal(t, "anon", result)
}

func TestRenderInputs(t *testing.T) {
	executionCtx := &models.ExecutionContext{
		ID:    "exec-1",
		AppID: "app_1",
		Event: map[string]any{"fields": map[string]any{"count": 3}},
		Steps: []map[string]any{{"message": "hello"}},
	}

	inputs := map[string]any{
		"count":   "{{ .trigger.fields.count }}",
		"text":    `{{ index .steps 0 "message" }} from {{ .appId }}`,
		"static":  "plain",
		"enabled": true,
		"nested":  map[string]any{"id": "{{ .execution.id }}"},
		"list":    []any{"{{ .appId }}", 1},
	}

	rendered, err := RenderInputs(inputs, executionCtx)
	require.NoError(t, err)

	assert.Equal(t, "3", rendered["count"])
	assert.Equal(t, "hello from app_1", rendered["text"])
	assert.Equal(t, "plain", rendered["static"])
	assert.Equal(t, true, rendered["enabled"])
	assert.Equal(t, map[string]any{"id": "exec-1"}, rendered["nested"])
	assert.Equal(t, []any{"app_1", 1}, rendered["list"])

	// source inputs are untouched
	assert.Equal(t, "{{ .trigger.fields.count }}", inputs["count"])
}

func TestRenderInputs_LooseEventData(t *testing.T) {
	executionCtx := &models.ExecutionContext{
		Event: map[string]any{"name": "{draft}"},
	}

	rendered, err := RenderInputs(map[string]any{
		"msg":     "{{ .trigger.name }}",
		"missing": "{{ .trigger.nope }}",
	}, executionCtx)
	require.NoError(t, err)

	assert.Equal(t, "{draft}", rendered["msg"])
	assert.Equal(t, "", rendered["missing"])
}

func TestRenderInputs_Nil(t *testing.T) {
	rendered, err := RenderInputs(nil, &models.ExecutionContext{})
	require.NoError(t, err)
	assert.Nil(t, rendered)
}

func TestNeedsTemplating(t *testing.T) {
	assert.True(t, NeedsTemplating("{{ .trigger }}"))
	assert.False(t, NeedsTemplating("plain text"))
}
