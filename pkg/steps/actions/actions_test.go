package actions

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepInput(inputs map[string]any) protocol.StepInput {
	return protocol.StepInput{
		Inputs: inputs,
		AppID:  "app_1",
		Execution: &models.ExecutionContext{
			ID:    "exec-1",
			AppID: "app_1",
			Event: map[string]any{"fields": map[string]any{"name": "ada", "count": 2}},
			Steps: []map[string]any{{"message": "first"}},
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestServerLog_Execute(t *testing.T) {
	out, err := NewServerLog().Execute(context.Background(), stepInput(map[string]any{"text": "hello"}))
	require.NoError(t, err)

	assert.Equal(t, true, out["success"])
	assert.Equal(t, "App app_1 - hello", out["message"])
}

func TestOutgoingWebhook_Execute(t *testing.T) {
	var gotMethod, gotHeader string

	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Token")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	action := NewOutgoingWebhook(server.Client())

	out, err := action.Execute(context.Background(), stepInput(map[string]any{
		"requestMethod": "post",
		"url":           server.URL,
		"requestBody":   `{"name":"ada"}`,
		"headers":       `{"X-Token":"secret"}`,
	}))
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "secret", gotHeader)
	assert.Equal(t, map[string]any{"name": "ada"}, gotBody)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, http.StatusOK, out["httpStatus"])
	assert.Equal(t, map[string]any{"ok": true}, out["response"])
}

func TestOutgoingWebhook_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	out, err := NewOutgoingWebhook(server.Client()).Execute(context.Background(), stepInput(map[string]any{
		"requestMethod": "GET",
		"url":           server.URL,
	}))
	require.NoError(t, err)

	assert.Equal(t, false, out["success"])
	assert.Equal(t, http.StatusInternalServerError, out["httpStatus"])
	assert.Equal(t, "boom", out["response"])
}

func TestOutgoingWebhook_ValidateInputs(t *testing.T) {
	action := NewOutgoingWebhook(nil)

	require.NoError(t, action.ValidateInputs(map[string]any{"url": "example.com"}))
	require.ErrorIs(t, action.ValidateInputs(map[string]any{}), ErrMissingURL)
	require.ErrorIs(t, action.ValidateInputs(map[string]any{"url": "x", "requestMethod": "TRACE"}), ErrInvalidMethod)
}

func TestOutgoingWebhook_InvalidBody(t *testing.T) {
	_, err := NewOutgoingWebhook(nil).Execute(context.Background(), stepInput(map[string]any{
		"url":         "http://127.0.0.1:1",
		"requestBody": "{not json",
	}))
	require.ErrorIs(t, err, ErrInvalidJSON)
}

func TestTransform_Execute(t *testing.T) {
	action := NewTransform()

	tests := []struct {
		name   string
		inputs map[string]any
		want   any
	}{
		{"trigger field", map[string]any{"query": ".trigger.fields.name"}, "ada"},
		{"arithmetic", map[string]any{"query": ".trigger.fields.count * 2"}, 4},
		{"previous step", map[string]any{"query": ".steps[0].message"}, "first"},
		{"input object", map[string]any{"query": ".input.a", "input": map[string]any{"a": []any{1, 2}}}, []any{1, 2}},
		{"multiple outputs", map[string]any{"query": ".input[]", "input": map[string]any{"x": 1, "y": 2}}, []any{1, 2}},
		{"no output", map[string]any{"query": "empty"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := action.Execute(context.Background(), stepInput(tt.inputs))
			require.NoError(t, err)
			assert.Equal(t, true, out["success"])
			assert.Equal(t, tt.want, out["result"])
		})
	}
}

func TestTransform_InvalidQuery(t *testing.T) {
	action := NewTransform()

	require.ErrorIs(t, action.ValidateInputs(map[string]any{"query": ".a |"}), ErrInvalidQuery)
	require.ErrorIs(t, action.ValidateInputs(map[string]any{}), ErrInvalidQuery)

	_, err := action.Execute(context.Background(), stepInput(map[string]any{"query": `error("nope")`}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jq evaluation failed")
}

func TestActionDefinitions(t *testing.T) {
	for _, step := range []protocol.Executor{NewServerLog(), NewOutgoingWebhook(nil), NewTransform()} {
		def := step.Definition()
		assert.Equal(t, models.StepTypeAction, def.Type, def.ID)
		assert.NotEmpty(t, def.Name, def.ID)
	}
}
