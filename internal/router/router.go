package router

import (
	"net/http"

	"github.com/kindredhq/backend/internal/arbitration"
	"github.com/kindredhq/backend/internal/auth"
	"github.com/kindredhq/backend/internal/exchange"
	"github.com/kindredhq/backend/internal/help"
	"github.com/kindredhq/backend/internal/middleware"
)

// New returns an http.Handler serving the API under /api/v1. Everything
// except register/login requires a bearer token.
func New(authHandler *auth.Handler, exchangeHandler *exchange.Handler, helpHandler *help.Handler, arbHandler *arbitration.Handler, validator middleware.TokenValidator) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc("POST "+base+"/auth/register", authHandler.Register)
	mux.HandleFunc("POST "+base+"/auth/login", authHandler.Login)

	authed := http.NewServeMux()
	authed.HandleFunc("POST "+base+"/exchange-tasks", exchangeHandler.CreateTask)
	authed.HandleFunc("GET "+base+"/exchange-tasks", exchangeHandler.ListTasks)
	authed.HandleFunc("GET "+base+"/exchange-tasks/{id}", exchangeHandler.GetTask)
	authed.HandleFunc("POST "+base+"/exchange-tasks/{id}/match", exchangeHandler.RequestMatch)
	authed.HandleFunc("POST "+base+"/exchange-tasks/{id}/approve", exchangeHandler.ApproveMatch)
	authed.HandleFunc("POST "+base+"/exchange-tasks/{id}/delivery", exchangeHandler.EnterDelivery)
	authed.HandleFunc("POST "+base+"/exchange-tasks/{id}/confirm", exchangeHandler.ConfirmDelivery)
	authed.HandleFunc("POST "+base+"/exchange-tasks/{id}/cancel", exchangeHandler.CancelTask)
	authed.HandleFunc("POST "+base+"/exchange-tasks/{id}/expire", exchangeHandler.CheckPendingExpiry)
	authed.HandleFunc("POST "+base+"/exchange-tasks/{id}/dispute", exchangeHandler.DisputeTask)
	authed.HandleFunc("POST "+base+"/exchange-tasks/{id}/resolve", arbHandler.ResolveDispute)

	authed.HandleFunc("POST "+base+"/help-tasks", helpHandler.CreateTask)
	authed.HandleFunc("GET "+base+"/help-tasks", helpHandler.ListTasks)
	authed.HandleFunc("GET "+base+"/help-tasks/{id}", helpHandler.GetTask)
	authed.HandleFunc("POST "+base+"/help-tasks/{id}/accept", helpHandler.AcceptTask)
	authed.HandleFunc("POST "+base+"/help-tasks/{id}/complete", helpHandler.CompleteTask)
	authed.HandleFunc("POST "+base+"/help-tasks/{id}/cancel", helpHandler.CancelTask)

	mux.Handle(base+"/exchange-tasks", middleware.BearerAuth(validator)(authed))
	mux.Handle(base+"/exchange-tasks/", middleware.BearerAuth(validator)(authed))
	mux.Handle(base+"/help-tasks", middleware.BearerAuth(validator)(authed))
	mux.Handle(base+"/help-tasks/", middleware.BearerAuth(validator)(authed))

	return mux
}
