package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/playden/playden/internal/catalog/domain"
)

type createCatalogServiceRequest struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	UnitPrice int64  `json:"unit_price"`
	Category  string `json:"category"`
}

func (s *Server) CreateCatalogService(c *gin.Context) {
	var req createCatalogServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.Create(c.Request.Context(), catalogdomain.CreateServiceRequest{
		Name:      strings.TrimSpace(req.Name),
		Kind:      catalogdomain.ServiceKind(strings.TrimSpace(req.Kind)),
		UnitPrice: req.UnitPrice,
		Category:  strings.TrimSpace(req.Category),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "catalog.create", "catalog_service", resp.ID.String(), map[string]any{
		"name":       resp.Name,
		"kind":       string(resp.Kind),
		"unit_price": resp.UnitPrice,
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCatalogServices(c *gin.Context) {
	resp, err := s.catalogSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCatalogServiceByID(c *gin.Context) {
	resp, err := s.catalogSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateCatalogServiceRequest struct {
	Name      *string `json:"name,omitempty"`
	UnitPrice *int64  `json:"unit_price,omitempty"`
	Category  *string `json:"category,omitempty"`
	Active    *bool   `json:"active,omitempty"`
}

func (s *Server) UpdateCatalogService(c *gin.Context) {
	var req updateCatalogServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.Update(c.Request.Context(), catalogdomain.UpdateServiceRequest{
		ID:        strings.TrimSpace(c.Param("id")),
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		Category:  req.Category,
		Active:    req.Active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "catalog.update", "catalog_service", resp.ID.String(), nil)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteCatalogService(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.catalogSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "catalog.delete", "catalog_service", id, nil)

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}
