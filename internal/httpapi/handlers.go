package httpapi

import (
	"errors"
	"net/http"
	"time"

	"callrep/internal/apperr"
	"callrep/internal/auth"
	"callrep/internal/calls"
	"callrep/internal/catalog"
	"callrep/internal/reporting"
	"callrep/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Calls   *calls.Service
	Catalog *catalog.Service
	Reports *reporting.Service
}

// writeError maps err to its status code. Internal detail is logged, never returned.
func writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.PublicMessage(err)})
}

// --- Calls ---

type createCallResponse struct {
	CallID  string       `json:"callId"`
	Status  calls.Status `json:"status"`
	Message string       `json:"message"`
}

func (h Handlers) CreateCall(c *gin.Context) {
	var req calls.PlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("invalid json"))
		return
	}
	call, err := h.Calls.Place(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createCallResponse{CallID: call.ID, Status: call.Status, Message: "Call queued successfully"})
}

func (h Handlers) GetCall(c *gin.Context) {
	d, err := h.Calls.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type updateStatusResponse struct {
	ID      string       `json:"id"`
	Status  calls.Status `json:"status"`
	Message string       `json:"message"`
}

func (h Handlers) UpdateCallStatus(c *gin.Context) {
	var req calls.StatusUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("invalid json"))
		return
	}
	call, err := h.Calls.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updateStatusResponse{ID: call.ID, Status: call.Status, Message: "Call status updated"})
}

// --- Catalog ---

func (h Handlers) ListRepresentatives(c *gin.Context) {
	out, err := h.Catalog.ListRepresentatives(c.Request.Context(), catalog.RepresentativeFilter{
		State:   c.Query("state"),
		IssueID: c.Query("issueId"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"representatives": out})
}

func (h Handlers) GetRepresentative(c *gin.Context) {
	out, err := h.Catalog.GetRepresentative(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) ListIssues(c *gin.Context) {
	out, err := h.Catalog.ListIssues(c.Request.Context(), catalog.IssueFilter{
		Category:         c.Query("category"),
		RepresentativeID: c.Query("representativeId"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"issues": out})
}

func (h Handlers) GetIssue(c *gin.Context) {
	out, err := h.Catalog.GetIssue(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) ListScripts(c *gin.Context) {
	out, err := h.Catalog.ListScripts(c.Request.Context(), catalog.ScriptFilter{IssueID: c.Query("issueId")})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scripts": out})
}

func (h Handlers) GetScript(c *gin.Context) {
	out, err := h.Catalog.GetScript(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) ListPersonas(c *gin.Context) {
	out, err := h.Catalog.ListPersonas(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"personas": out})
}

func (h Handlers) GetPersona(c *gin.Context) {
	out, err := h.Catalog.GetPersona(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Reports ---

// CallsReport serves GET /reports/calls?from=&to=&representativeId=.
// RBAC: service or admin.
func (h Handlers) CallsReport(c *gin.Context) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		writeError(c, apperr.Validation("from must be an RFC3339 timestamp"))
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		writeError(c, apperr.Validation("to must be an RFC3339 timestamp"))
		return
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		Range:            reporting.TimeRange{From: from, To: to},
		RepresentativeID: c.Query("representativeId"),
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		writeError(c, apperr.Validation("to must be after from"))
		return
	}
	if err != nil {
		writeError(c, apperr.Internal(err))
		return
	}
	subject, _ := auth.Subject(c.Request.Context())
	logger.FromGin(c).Info("calls report served", "subject", subject, "from", from, "to", to, "total", out.TotalCalls)
	c.JSON(http.StatusOK, out)
}
