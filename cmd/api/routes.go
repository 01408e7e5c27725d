package main

import (
	"database/sql"
	"time"

	"outreach-platform/internal/auth"
	"outreach-platform/internal/campaign"
	"outreach-platform/internal/gateway"
	"outreach-platform/internal/httpapi"
	"outreach-platform/internal/lead"
	"outreach-platform/internal/notify"
	"outreach-platform/internal/rbac"
	"outreach-platform/internal/workflow"
	"outreach-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	auth      *auth.Manager
	campaigns campaign.Repository
	leads     lead.Repository
	orch      *workflow.Orchestrator
	events    *notify.Broker
	inbound   *gateway.InboundService

	webhookToken string
	db           *sql.DB
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	h := httpapi.Handlers{
		Auth:      deps.auth,
		Campaigns: deps.campaigns,
		Leads:     deps.leads,
		Orch:      deps.orch,
		Events:    deps.events,
	}

	// public
	r.GET("/healthz", func(c *gin.Context) {
		if deps.db != nil {
			if err := utils.HealthCheck(c.Request.Context(), deps.db, 2*time.Second); err != nil {
				c.JSON(503, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Gateway webhook (public; protected by the shared token).
	wh := gateway.WebhookHandler{Service: deps.inbound, Token: deps.webhookToken}
	r.POST("/webhooks/gateway", wh.HandleEvent)

	// Token issuance is public by necessity.
	r.POST("/v1/auth/login", h.Login)
	r.POST("/v1/auth/refresh", h.Refresh)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(deps.auth))
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			wid, _ := auth.WorkspaceID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "workspace_id": wid, "role": role})
		})

		// CAMPAIGN routes
		campaigns := v1.Group("/campaigns")
		{
			read := campaigns.Group("")
			read.Use(httpapi.RequireWorkspaceAndAnyRole(rbac.RoleOwner, rbac.RoleOperator, rbac.RoleAnalyst)...)
			{
				read.GET("", h.ListCampaigns)
				read.GET("/:campaign_id", h.GetCampaign)
				read.GET("/:campaign_id/leads", h.ListLeads)
			}

			write := campaigns.Group("")
			write.Use(httpapi.RequireWorkspaceAndAnyRole(rbac.RoleOwner, rbac.RoleOperator)...)
			{
				write.POST("/:campaign_id/activate", h.ActivateCampaign)
				write.POST("/:campaign_id/pause", h.PauseCampaign)
				write.POST("/:campaign_id/leads", h.CreateLead)
			}
		}

		// LEAD routes
		leads := v1.Group("/leads")
		leads.Use(httpapi.RequireWorkspaceAndAnyRole(rbac.RoleOwner, rbac.RoleOperator)...)
		{
			leads.POST("/:lead_id/trigger", h.TriggerLead)
		}

		// EVENT stream
		events := v1.Group("/events")
		events.Use(httpapi.RequireWorkspaceAndAnyRole(rbac.RoleOwner, rbac.RoleOperator, rbac.RoleAnalyst)...)
		{
			events.GET("", h.StreamEvents)
		}
	}
}
