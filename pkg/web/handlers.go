package web

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/registry"
	"github.com/dukex/autoflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// AppIDHeader names the application a builder request acts on.
const AppIDHeader = "X-App-Id"

const appIDLocal = "appId"

type APIHandlers struct {
	automationService *services.Automation
	validator         *validator.Validate
	registry          *registry.Registry
}

func NewAPIHandlers(
	automationService *services.Automation,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		automationService: automationService,
		validator:         validator,
		registry:          registry,
	}
}

// RequireAppID rejects builder requests that do not name an application.
func RequireAppID(c fiber.Ctx) error {
	appID := c.Get(AppIDHeader)
	if appID == "" {
		return badRequest(c, AppIDHeader+" header is required")
	}

	c.Locals(appIDLocal, appID)

	return c.Next()
}

func appID(c fiber.Ctx) string {
	id, _ := c.Locals(appIDLocal).(string)

	return id
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.automationService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Autoflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Autoflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateAutomation(c fiber.Ctx) error {
	req, err := h.bindAutomation(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.automationService.Create(c.Context(), appID(c), req.Automation())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(AutomationResponse{
		Message:    "Automation created successfully",
		Automation: created,
	})
}

func (h *APIHandlers) UpdateAutomation(c fiber.Ctx) error {
	req, err := h.bindAutomation(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.automationService.Update(c.Context(), appID(c), req.Automation())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(AutomationResponse{
		Message:    fmt.Sprintf("Automation %s updated successfully.", updated.ID),
		Automation: updated,
	})
}

func (h *APIHandlers) bindAutomation(c fiber.Ctx) (*SaveAutomationRequest, error) {
	var req SaveAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, err
	}

	return &req, nil
}

func (h *APIHandlers) GetAutomations(c fiber.Ctx) error {
	automations, err := h.automationService.Fetch(c.Context(), appID(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(automations)
}

func (h *APIHandlers) GetAutomation(c fiber.Ctx) error {
	automation, err := h.automationService.Find(c.Context(), appID(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(automation)
}

func (h *APIHandlers) DeleteAutomation(c fiber.Ctx) error {
	id := c.Params("id")

	err := h.automationService.Destroy(c.Context(), appID(c), id, c.Params("rev"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(DeleteAutomationResponse{ID: id, OK: true})
}

func (h *APIHandlers) TriggerAutomation(c fiber.Ctx) error {
	event, err := bindEvent(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	automation, run, err := h.automationService.Trigger(c.Context(), appID(c), c.Params("id"), event)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(AutomationResponse{
		Message:    fmt.Sprintf("Automation %s has been triggered.", automation.ID),
		Automation: automation,
		Execution:  run,
	})
}

func (h *APIHandlers) TestAutomation(c fiber.Ctx) error {
	event, err := bindEvent(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.automationService.Test(c.Context(), appID(c), c.Params("id"), event)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetAutomationHistory(c fiber.Ctx) error {
	records, err := h.automationService.History(c.Context(), appID(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(records)
}

func (h *APIHandlers) GetActionList(c fiber.Ctx) error {
	return c.JSON(h.registry.ActionDefinitions())
}

func (h *APIHandlers) GetTriggerList(c fiber.Ctx) error {
	return c.JSON(h.registry.TriggerDefinitions())
}

func (h *APIHandlers) GetLogicList(c fiber.Ctx) error {
	return c.JSON(h.registry.LogicDefinitions())
}

func (h *APIHandlers) GetDefinitionList(c fiber.Ctx) error {
	return c.JSON(h.registry.Definitions())
}

// GetStepSettings lists the builder inputs of one step type.
func (h *APIHandlers) GetStepSettings(c fiber.Ctx) error {
	stepType := models.StepType(strings.ToUpper(c.Params("stepType")))

	settings, err := h.registry.Settings(stepType, c.Params("stepId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(settings)
}

func (h *APIHandlers) TriggerWebhook(c fiber.Ctx) error {
	body, err := bindEvent(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	err = h.automationService.TriggerWebhook(c.Context(), c.Params("appId"), c.Params("webhookId"), body)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(MessageResponse{Message: "Webhook trigger fired successfully"})
}

func (h *APIHandlers) GetWebhookSchema(c fiber.Ctx) error {
	schema, err := h.automationService.WebhookSchema(c.Context(), c.Params("appId"), c.Params("webhookId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schema)
}

func (h *APIHandlers) BuildWebhookSchema(c fiber.Ctx) error {
	body, err := bindEvent(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	schema, err := h.automationService.BuildWebhookSchema(c.Context(), c.Params("appId"), c.Params("webhookId"), body)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schema)
}

// bindEvent decodes an optional JSON object body.
func bindEvent(c fiber.Ctx) (map[string]any, error) {
	event := make(map[string]any)

	if len(c.Body()) == 0 {
		return event, nil
	}

	if err := c.Bind().JSON(&event); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	return event, nil
}

// Register mounts every route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	webhooks := router.Group("/webhooks")
	webhooks.Post("/trigger/:appId/:webhookId", h.TriggerWebhook)
	webhooks.Get("/schema/:appId/:webhookId", h.GetWebhookSchema)
	webhooks.Post("/schema/:appId/:webhookId", h.BuildWebhookSchema)

	a := router.Group("/automations", RequireAppID)
	a.Get("/action/list", h.GetActionList)
	a.Get("/trigger/list", h.GetTriggerList)
	a.Get("/logic/list", h.GetLogicList)
	a.Get("/definitions/list", h.GetDefinitionList)
	a.Get("/settings/:stepType/:stepId", h.GetStepSettings)
	a.Get("/", h.GetAutomations)
	a.Post("/", h.CreateAutomation)
	a.Put("/", h.UpdateAutomation)
	a.Get("/:id", h.GetAutomation)
	a.Delete("/:id/:rev", h.DeleteAutomation)
	a.Post("/:id/trigger", h.TriggerAutomation)
	a.Post("/:id/test", h.TestAutomation)
	a.Get("/:id/history", h.GetAutomationHistory)
}
