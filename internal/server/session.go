package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	sessiondomain "github.com/playden/playden/internal/session/domain"
	"github.com/playden/playden/pkg/db/pagination"
)

type startSessionRequest struct {
	CustomerID string `json:"customer_id"`
}

func (s *Server) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.sessionSvc.Start(c.Request.Context(), sessiondomain.StartSessionRequest{
		CustomerID: strings.TrimSpace(req.CustomerID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "session.start", "session", resp.ID.String(), map[string]any{
		"customer_id": resp.CustomerID.String(),
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSessions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.sessionSvc.List(c.Request.Context(), sessiondomain.ListSessionRequest{
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
		Status:    sessiondomain.SessionStatus(strings.TrimSpace(query.Status)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSessionByID(c *gin.Context) {
	resp, err := s.sessionSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSessionLiveView(c *gin.Context) {
	resp, err := s.sessionSvc.LiveView(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) EndSession(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.sessionSvc.End(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "session.end", "session", id, map[string]any{
		"total_cost": resp.TotalCost,
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelSession(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.sessionSvc.Cancel(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "session.cancel", "session", id, nil)

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"canceled": true}})
}

type addSessionServiceRequest struct {
	CatalogServiceID string `json:"catalog_service_id"`
	Quantity         *int64 `json:"quantity,omitempty"`
}

func (s *Server) AddSessionService(c *gin.Context) {
	var req addSessionServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.sessionSvc.AddService(c.Request.Context(), sessiondomain.AddServiceRequest{
		SessionID:        strings.TrimSpace(c.Param("id")),
		CatalogServiceID: strings.TrimSpace(req.CatalogServiceID),
		Quantity:         req.Quantity,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PauseSessionService(c *gin.Context) {
	resp, err := s.sessionSvc.PauseService(c.Request.Context(), sessiondomain.ServiceOpRequest{
		SessionID: strings.TrimSpace(c.Param("id")),
		ServiceID: strings.TrimSpace(c.Param("service_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ResumeSessionService(c *gin.Context) {
	resp, err := s.sessionSvc.ResumeService(c.Request.Context(), sessiondomain.ServiceOpRequest{
		SessionID: strings.TrimSpace(c.Param("id")),
		ServiceID: strings.TrimSpace(c.Param("service_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type editSessionServiceRequest struct {
	Quantity  *int64     `json:"quantity,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

func (s *Server) EditSessionService(c *gin.Context) {
	var req editSessionServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.sessionSvc.EditService(c.Request.Context(), sessiondomain.EditServiceRequest{
		SessionID: strings.TrimSpace(c.Param("id")),
		ServiceID: strings.TrimSpace(c.Param("service_id")),
		Quantity:  req.Quantity,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "session.edit_service", "session_service", strings.TrimSpace(c.Param("service_id")), nil)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RemoveSessionService(c *gin.Context) {
	resp, err := s.sessionSvc.RemoveService(c.Request.Context(), sessiondomain.ServiceOpRequest{
		SessionID: strings.TrimSpace(c.Param("id")),
		ServiceID: strings.TrimSpace(c.Param("service_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "session.remove_service", "session_service", strings.TrimSpace(c.Param("service_id")), nil)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
