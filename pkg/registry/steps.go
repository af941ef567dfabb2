package registry

import (
	"net/http"

	"github.com/dukex/autoflow/pkg/steps/actions"
	"github.com/dukex/autoflow/pkg/steps/logic"
	"github.com/dukex/autoflow/pkg/steps/triggers"
)

// RegisterDefaultSteps registers all built-in triggers, actions and logic steps.
func (r *Registry) RegisterDefaultSteps(client *http.Client) {
	r.RegisterTrigger(triggers.NewAppTrigger())
	r.RegisterTrigger(triggers.NewWebhookTrigger())
	r.RegisterTrigger(triggers.NewCronTrigger())

	r.RegisterAction(actions.NewServerLog())
	r.RegisterAction(actions.NewOutgoingWebhook(client))
	r.RegisterAction(actions.NewTransform())

	r.RegisterLogic(logic.NewFilter())
	r.RegisterLogic(logic.NewDelay())
	r.RegisterLogic(logic.NewExpression())
}
