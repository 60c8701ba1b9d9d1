// Package handler exposes the authorization flow and the authenticated
// proxy over HTTP.
package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/poke08888/tiktok-ads-dashboard/internal/domain"
	"github.com/poke08888/tiktok-ads-dashboard/internal/platform"
	"github.com/poke08888/tiktok-ads-dashboard/internal/service"
)

// AuthHandler serves the per-platform authorization endpoints.
type AuthHandler struct {
	Flow   *service.FlowService
	AppURL string
}

// NewAuthHandler creates the handler set. appURL is where callbacks land
// after the exchange, the dashboard frontend.
func NewAuthHandler(flow *service.FlowService, appURL string) *AuthHandler {
	return &AuthHandler{Flow: flow, AppURL: appURL}
}

// Begin redirects the browser to the platform's authorization page.
// Optional redirect_uri and scope query parameters override configuration.
func (h *AuthHandler) Begin(c *gin.Context) {
	var scopes []string
	if scopeParam := strings.TrimSpace(c.Query("scope")); scopeParam != "" {
		scopes = strings.FieldsFunc(scopeParam, func(r rune) bool { return r == ',' || r == ' ' })
	}

	authURL, err := h.Flow.Begin(c.Request.Context(), c.Param("platform"), strings.TrimSpace(c.Query("redirect_uri")), scopes)
	if err != nil {
		respondFlowError(c, c.Param("platform"), err)
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// Callback completes the code exchange and redirects back to the app with
// the outcome in the query string, success or failure.
func (h *AuthHandler) Callback(c *gin.Context) {
	platformName := c.Param("platform")
	err := h.Flow.Callback(c.Request.Context(), platformName, platform.CallbackParams{
		Code:        c.Query("code"),
		State:       c.Query("state"),
		ShopID:      c.Query("shop_id"),
		RedirectURI: c.Query("redirect_uri"),
	})
	if err != nil {
		zap.L().Warn("authorization callback failed",
			zap.String("platform", platformName),
			zap.Error(err))
		c.Redirect(http.StatusFound, h.appRedirect(platformName, "error", err.Error()))
		return
	}
	c.Redirect(http.StatusFound, h.appRedirect(platformName, "success", ""))
}

// Status reports whether a usable credential is stored.
func (h *AuthHandler) Status(c *gin.Context) {
	status, err := h.Flow.Status(c.Request.Context(), c.Param("platform"))
	if err != nil {
		respondFlowError(c, c.Param("platform"), err)
		return
	}

	resp := gin.H{
		"authenticated": status.Authenticated,
		"expired":       status.Expired,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}
	if status.Authenticated {
		resp["expires_at"] = status.ExpiresAt
		resp["remaining_seconds"] = status.RemainingSeconds
		resp["expires_in_minutes"] = status.ExpiresInMinutes
		resp["auto_refresh_enabled"] = true
		if len(status.Scope) > 0 {
			resp["scope"] = status.Scope
		}
		if status.ShopID != "" {
			resp["shop_id"] = status.ShopID
		}
		if status.AdvertiserID != "" {
			resp["advertiser_id"] = status.AdvertiserID
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Refresh forces a token refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	if err := h.Flow.Refresh(c.Request.Context(), c.Param("platform")); err != nil {
		respondFlowError(c, c.Param("platform"), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "refreshed",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Logout removes the stored credential.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.Flow.Logout(c.Request.Context(), c.Param("platform")); err != nil {
		respondFlowError(c, c.Param("platform"), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "logged_out",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *AuthHandler) appRedirect(platformName, outcome, message string) string {
	target, err := url.Parse(h.AppURL)
	if err != nil {
		target = &url.URL{Path: "/"}
	}
	q := target.Query()
	q.Set(platformName+"_auth", outcome)
	if message != "" {
		q.Set("message", message)
	}
	target.RawQuery = q.Encode()
	return target.String()
}

// respondFlowError maps the domain sentinels to HTTP statuses. Credential
// errors carry the auth endpoint so clients know where to re-authorize.
func respondFlowError(c *gin.Context, platformName string, err error) {
	ts := time.Now().UTC().Format(time.RFC3339)
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
	case errors.Is(err, domain.ErrRefreshFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     "refresh_failed",
			"message":   err.Error(),
			"timestamp": ts,
		})
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrAttemptNotFound):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "invalid_request",
			"message":   err.Error(),
			"timestamp": ts,
		})
	default:
		zap.L().Error("flow failure", zap.String("platform", platformName), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "server_error",
			"message":   "Internal server error.",
			"timestamp": ts,
		})
	}
}
