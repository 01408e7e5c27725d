package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"outreach-platform/internal/auth"
	"outreach-platform/internal/campaign"
	"outreach-platform/internal/lead"
	"outreach-platform/internal/notify"
	"outreach-platform/internal/rbac"
	"outreach-platform/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Triggerer is the slice of the orchestrator exposed over HTTP.
type Triggerer interface {
	Trigger(ctx context.Context, leadID string, trig workflow.Trigger) error
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Campaigns campaign.Repository
	Leads     lead.Repository
	Orch      Triggerer
	Events    *notify.Broker

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// --- Auth ---

type loginRequest struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.WorkspaceID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, workspace_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), req.UserID, req.WorkspaceID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	Role         string `json:"role"`
}

func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.RefreshToken == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token, role required"})
		return
	}
	pair, err := h.Auth.Refresh(h.now(), req.RefreshToken, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Campaigns ---

func (h Handlers) ListCampaigns(c *gin.Context) {
	wid, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	list, err := h.Campaigns.List(c.Request.Context(), wid)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaign listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": list})
}

func (h Handlers) GetCampaign(c *gin.Context) {
	camp, ok := h.campaignForRequest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, camp)
}

// ActivateCampaign flips a campaign to active, making it visible to the
// outbound dispatcher on its next cycle.
func (h Handlers) ActivateCampaign(c *gin.Context) {
	h.setCampaignStatus(c, campaign.StatusActive)
}

func (h Handlers) PauseCampaign(c *gin.Context) {
	h.setCampaignStatus(c, campaign.StatusPaused)
}

func (h Handlers) setCampaignStatus(c *gin.Context, status campaign.Status) {
	camp, ok := h.campaignForRequest(c)
	if !ok {
		return
	}
	if err := h.Campaigns.UpdateStatus(c.Request.Context(), camp.ID, status); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": camp.ID, "status": string(status)})
}

// campaignForRequest loads :campaign_id and enforces workspace ownership.
// super_admin may cross workspaces.
func (h Handlers) campaignForRequest(c *gin.Context) (campaign.Campaign, bool) {
	id := c.Param("campaign_id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "campaign_id required"})
		return campaign.Campaign{}, false
	}
	camp, err := h.Campaigns.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaign lookup failed"})
		}
		return campaign.Campaign{}, false
	}
	if !h.sameWorkspace(c, camp.WorkspaceID) {
		// Not-found rather than forbidden; do not leak other tenants' IDs.
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return campaign.Campaign{}, false
	}
	return camp, true
}

func (h Handlers) sameWorkspace(c *gin.Context, owner string) bool {
	role, _ := auth.Role(c.Request.Context())
	if rbac.IsSuperAdmin(role) {
		return true
	}
	wid, err := auth.WorkspaceID(c.Request.Context())
	return err == nil && wid == owner
}

// --- Leads ---

func (h Handlers) ListLeads(c *gin.Context) {
	camp, ok := h.campaignForRequest(c)
	if !ok {
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be 1..1000"})
			return
		}
		limit = n
	}

	var (
		leads []lead.Lead
		err   error
	)
	if status := c.Query("status"); status != "" {
		leads, err = h.Leads.ListByStatus(c.Request.Context(), camp.ID, lead.Status(status), limit)
	} else {
		leads, err = h.Leads.ListByCampaign(c.Request.Context(), camp.ID, limit)
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lead listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": leads})
}

type createLeadRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

func (h Handlers) CreateLead(c *gin.Context) {
	camp, ok := h.campaignForRequest(c)
	if !ok {
		return
	}

	var req createLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Phone == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone required"})
		return
	}

	if _, err := h.Leads.FindByPhone(c.Request.Context(), camp.ID, req.Phone); err == nil {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "lead already exists for this phone"})
		return
	} else if !errors.Is(err, lead.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lead lookup failed"})
		return
	}

	l := lead.Lead{
		ID:          uuid.NewString(),
		WorkspaceID: camp.WorkspaceID,
		CampaignID:  camp.ID,
		Phone:       req.Phone,
		Name:        req.Name,
		Status:      lead.StatusNew,
	}
	if err := h.Leads.Create(c.Request.Context(), l); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lead creation failed"})
		return
	}
	c.JSON(http.StatusCreated, l)
}

// TriggerLead runs one manual workflow step for a lead. Used by operators to
// retry errored leads or to engage a lead outside the dispatcher cycle.
func (h Handlers) TriggerLead(c *gin.Context) {
	id := c.Param("lead_id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "lead_id required"})
		return
	}
	l, err := h.Leads.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, lead.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "lead not found"})
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lead lookup failed"})
		}
		return
	}
	if !h.sameWorkspace(c, l.WorkspaceID) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "lead not found"})
		return
	}

	if err := h.Orch.Trigger(c.Request.Context(), l.ID, workflow.Trigger{Kind: workflow.TriggerManual}); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "trigger failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "triggered"})
}

// --- Events ---

// StreamEvents pushes workflow transition events to the client as
// server-sent events. An optional campaign_id query narrows the stream.
func (h Handlers) StreamEvents(c *gin.Context) {
	if h.Events == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "event stream not configured"})
		return
	}
	campaignID := c.Query("campaign_id")

	ch := h.Events.Subscribe()
	defer h.Events.Unsubscribe(ch)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ctx := c.Request.Context()
	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			if campaignID != "" && ev.CampaignID != campaignID {
				return true
			}
			c.SSEvent("transition", ev)
			return true
		}
	})
}

// Convenience middleware bundles.

func RequireWorkspaceAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireWorkspace(), rbac.RequireAnyRole(roles...)}
}
