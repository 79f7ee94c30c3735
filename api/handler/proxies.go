package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flowmatic/harvester/models"
	"github.com/flowmatic/harvester/proxypool"
)

// createProxyRequest is the payload for POST /api/v1/proxies.
type createProxyRequest struct {
	Host     string `json:"host" binding:"required"`
	Port     int    `json:"port" binding:"required,min=1,max=65535"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Protocol string `json:"protocol" binding:"required,oneof=http https socks5"`
	Class    string `json:"class" binding:"required,oneof=residential datacenter mobile isp"`
	Country  string `json:"country,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
}

// CreateProxy returns a handler for POST /api/v1/proxies.
func CreateProxy(store proxypool.AdminStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createProxyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			adminError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error())
			return
		}

		record := models.ProxyRecord{
			ID:       uuid.NewString(),
			Host:     req.Host,
			Port:     req.Port,
			Username: req.Username,
			Password: req.Password,
			Protocol: req.Protocol,
			Class:    req.Class,
			Country:  strings.ToUpper(req.Country),
			TenantID: req.TenantID,
			Active:   true,
		}
		if err := store.CreateProxy(c.Request.Context(), record); err != nil {
			adminError(c, http.StatusInternalServerError, models.ErrCodeInternal, err.Error())
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

// ListProxies returns a handler for GET /api/v1/proxies. The tenant_id query
// parameter scopes the listing; empty lists the global pool.
func ListProxies(store proxypool.AdminStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := store.ListProxies(c.Request.Context(), c.Query("tenant_id"))
		if err != nil {
			adminError(c, http.StatusInternalServerError, models.ErrCodeInternal, err.Error())
			return
		}
		if records == nil {
			records = []models.ProxyRecord{}
		}
		c.JSON(http.StatusOK, gin.H{"proxies": records, "count": len(records)})
	}
}

// GetProxy returns a handler for GET /api/v1/proxies/:id.
func GetProxy(store proxypool.AdminStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := store.GetProxy(c.Request.Context(), c.Param("id"))
		if err != nil {
			adminError(c, http.StatusInternalServerError, models.ErrCodeInternal, err.Error())
			return
		}
		if record == nil {
			adminError(c, http.StatusNotFound, models.ErrCodeInvalidInput, "proxy not found")
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

// DeactivateProxy returns a handler for POST /api/v1/proxies/:id/deactivate.
// Deactivation is the normal removal path; usage history is preserved.
func DeactivateProxy(store proxypool.AdminStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.DeactivateProxy(c.Request.Context(), c.Param("id")); err != nil {
			adminError(c, http.StatusNotFound, models.ErrCodeInvalidInput, err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
	}
}

// DeleteProxy returns a handler for DELETE /api/v1/proxies/:id. The record
// and its usage history are removed for good.
func DeleteProxy(store proxypool.AdminStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.DeleteProxy(c.Request.Context(), c.Param("id")); err != nil {
			adminError(c, http.StatusNotFound, models.ErrCodeInvalidInput, err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}

func adminError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": models.ErrorDetail{Code: code, Message: message}})
}
