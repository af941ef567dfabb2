package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
)

const OutgoingWebhookID = "OUTGOING_WEBHOOK"

var (
	ErrMissingURL    = errors.New("missing required field 'url'")
	ErrInvalidMethod = errors.New("invalid request method")
	ErrInvalidJSON   = errors.New("invalid JSON")
)

var requestMethods = []string{http.MethodPost, http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch}

const maxResponseBytes = 1 << 20

// OutgoingWebhook sends an HTTP request to an external URL.
type OutgoingWebhook struct {
	client *http.Client
}

func NewOutgoingWebhook(client *http.Client) *OutgoingWebhook {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &OutgoingWebhook{client: client}
}

func (a *OutgoingWebhook) Definition() protocol.StepDefinition {
	return protocol.StepDefinition{
		ID:          OutgoingWebhookID,
		Type:        models.StepTypeAction,
		Name:        "Outgoing webhook",
		Description: "Send a request of specified method to a URL",
		Icon:        "Send",
		Schema: protocol.StepSchema{
			Inputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"requestMethod": {
						Type:    models.PropertyTypeString,
						Title:   "Request method",
						Enum:    []any{"POST", "GET", "PUT", "DELETE", "PATCH"},
						Default: "POST",
					},
					"url":         {Type: models.PropertyTypeString, Title: "URL"},
					"requestBody": {Type: models.PropertyTypeString, Title: "JSON Body"},
					"headers":     {Type: models.PropertyTypeString, Title: "Headers"},
				},
				Required: []string{"requestMethod", "url"},
			},
			Outputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"response":   {Type: models.PropertyTypeObject, Description: "The response from the webhook"},
					"httpStatus": {Type: models.PropertyTypeNumber, Description: "The HTTP status code returned"},
					"success":    {Type: models.PropertyTypeBoolean, Description: "Whether the action was successful"},
				},
				Required: []string{"response", "success"},
			},
		},
	}
}

func (a *OutgoingWebhook) ValidateInputs(inputs map[string]any) error {
	_, _, err := requestTarget(inputs)

	return err
}

func (a *OutgoingWebhook) Execute(ctx context.Context, input protocol.StepInput) (map[string]any, error) {
	method, url, err := requestTarget(input.Inputs)
	if err != nil {
		return nil, err
	}

	headers, err := parseHeaders(input.Inputs["headers"])
	if err != nil {
		return nil, err
	}

	var body io.Reader

	if method != http.MethodGet {
		raw, err := requestBody(input.Inputs["requestBody"])
		if err != nil {
			return nil, err
		}

		if raw != "" {
			body = strings.NewReader(raw)
			headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		input.Logger.Error("Outgoing webhook request failed", "url", url, "error", err)

		return map[string]any{
			"response":   err.Error(),
			"httpStatus": 400,
			"success":    false,
		}, nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var response any
	if err := json.Unmarshal(respBody, &response); err != nil {
		response = string(respBody)
	}

	return map[string]any{
		"response":   response,
		"httpStatus": resp.StatusCode,
		"success":    resp.StatusCode >= 200 && resp.StatusCode < 300,
	}, nil
}

func requestTarget(inputs map[string]any) (string, string, error) {
	url, _ := inputs["url"].(string)
	if strings.TrimSpace(url) == "" {
		return "", "", ErrMissingURL
	}

	method := http.MethodPost
	if m, ok := inputs["requestMethod"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	if !slices.Contains(requestMethods, method) {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidMethod, method)
	}

	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	return method, url, nil
}

func requestBody(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		if strings.TrimSpace(v) == "" {
			return "", nil
		}

		if !json.Valid([]byte(v)) {
			return "", fmt.Errorf("%w: request body", ErrInvalidJSON)
		}

		return v, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("%w: request body: %w", ErrInvalidJSON, err)
		}

		return string(raw), nil
	}
}

func parseHeaders(value any) (map[string]string, error) {
	headers := make(map[string]string)

	var raw map[string]any

	switch v := value.(type) {
	case nil:
		return headers, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return headers, nil
		}

		if err := json.Unmarshal([]byte(v), &raw); err != nil {
			return nil, fmt.Errorf("%w: headers: %w", ErrInvalidJSON, err)
		}
	case map[string]any:
		raw = v
	default:
		return nil, fmt.Errorf("%w: headers must be an object", ErrInvalidJSON)
	}

	for key, val := range raw {
		headers[key] = fmt.Sprint(val)
	}

	return headers, nil
}
