package main

import (
	"context"
	"net/http"
	"time"

	"callrep/internal/httpapi"
	"callrep/internal/rbac"
	"callrep/internal/telephony"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routeDeps struct {
	API      httpapi.Handlers
	Webhooks telephony.WebhookHandler

	AuthMW gin.HandlerFunc
	// SignatureMW is nil when webhook signature validation is off.
	SignatureMW gin.HandlerFunc

	Gatherer prometheus.Gatherer
	Health   func(ctx context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := d.Health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	// Catalog reads and call placement are public, like the browser wizard they serve.
	r.GET("/representatives", d.API.ListRepresentatives)
	r.GET("/representatives/:id", d.API.GetRepresentative)
	r.GET("/issues", d.API.ListIssues)
	r.GET("/issues/:id", d.API.GetIssue)
	r.GET("/scripts", d.API.ListScripts)
	r.GET("/scripts/:id", d.API.GetScript)
	r.GET("/personas", d.API.ListPersonas)
	r.GET("/personas/:id", d.API.GetPersona)

	r.POST("/calls", d.API.CreateCall)
	r.GET("/calls/:id", d.API.GetCall)
	r.POST("/calls/:id/status", d.API.UpdateCallStatus)

	// Provider webhooks.
	hooks := r.Group("/")
	if d.SignatureMW != nil {
		hooks.Use(d.SignatureMW)
	}
	{
		hooks.POST("/voice/:callId", d.Webhooks.Voice)
		hooks.POST("/status/:callId", d.Webhooks.Status)
		hooks.POST("/recording/:callId", d.Webhooks.Recording)
		hooks.POST("/transcription/:callId", d.Webhooks.Transcription)
	}

	reports := r.Group("/reports")
	reports.Use(d.AuthMW)
	reports.Use(rbac.RequireAnyRole(rbac.RoleService, rbac.RoleAdmin))
	{
		reports.GET("/calls", d.API.CallsReport)
	}
}
