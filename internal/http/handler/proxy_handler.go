package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/poke08888/tiktok-ads-dashboard/internal/domain"
	"github.com/poke08888/tiktok-ads-dashboard/internal/proxy"
)

// ProxyHandler relays dashboard API calls to the partner platform with the
// stored credential attached.
type ProxyHandler struct {
	Dispatcher *proxy.Dispatcher
}

// NewProxyHandler creates the proxy handler.
func NewProxyHandler(dispatcher *proxy.Dispatcher) *ProxyHandler {
	return &ProxyHandler{Dispatcher: dispatcher}
}

// Dispatch handles ANY /proxy/:platform/*path. Successful upstream bodies
// pass through byte for byte; upstream rejections keep their status code so
// the dashboard sees exactly what the platform answered.
func (h *ProxyHandler) Dispatch(c *gin.Context) {
	platformName := c.Param("platform")
	apiPath := c.Param("path")

	var body []byte
	if c.Request.Body != nil {
		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "invalid_request",
				"message":   "failed to read request body",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
		body = payload
	}

	result, err := h.Dispatcher.Dispatch(c.Request.Context(), proxy.Request{
		Platform: platformName,
		APIPath:  apiPath,
		Method:   c.Request.Method,
		Query:    c.Request.URL.Query(),
		Header:   c.Request.Header,
		Body:     body,
	})
	if err != nil {
		respondProxyError(c, platformName, err)
		return
	}

	contentType := result.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(result.Status, contentType, result.Body)
}

// respondProxyError translates dispatch failures. Upstream error bodies are
// preserved as the message so callers can inspect the platform's own code.
func respondProxyError(c *gin.Context, platformName string, err error) {
	ts := time.Now().UTC().Format(time.RFC3339)

	var upErr *domain.UpstreamError
	if errors.As(err, &upErr) {
		c.JSON(upErr.Status, gin.H{
			"error":     "upstream error",
			"status":    upErr.Status,
			"message":   upstreamMessage(upErr.Body),
			"timestamp": ts,
		})
		return
	}

	var noResp *domain.NoResponseError
	if errors.As(err, &noResp) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     "no response",
			"message":   noResp.Error(),
			"timestamp": ts,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrPlatformUnknown):
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "unknown_platform",
			"message":   err.Error(),
			"timestamp": ts,
		})
	case errors.Is(err, domain.ErrAuthenticationRequired):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":     "authentication_required",
			"message":   "No credential stored. Complete the authorization flow first.",
			"auth_url":  "/auth/" + platformName,
			"timestamp": ts,
		})
	case errors.Is(err, domain.ErrTokenExpired):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":     "token_expired",
			"message":   "Stored credential has fully expired. Re-authorization is required.",
			"auth_url":  "/auth/" + platformName,
			"timestamp": ts,
		})
	default:
		zap.L().Error("proxy failure", zap.String("platform", platformName), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "server_error",
			"message":   "Internal server error.",
			"timestamp": ts,
		})
	}
}

// upstreamMessage returns the upstream body as structured JSON when it
// parses, or as a raw string otherwise.
func upstreamMessage(body []byte) any {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err == nil {
		return parsed
	}
	return string(body)
}
