// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/autoflow/pkg/registry"
)

const outgoingWebhookTimeout = 30 * time.Second

// NewRegistry returns a registry holding the built-in triggers, actions and logic steps.
func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)
	reg.RegisterDefaultSteps(&http.Client{Timeout: outgoingWebhookTimeout})

	return reg
}
