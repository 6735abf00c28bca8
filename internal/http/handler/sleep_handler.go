package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-sleep/internal/domain"
	domainsleep "github.com/smallbiznis/valora-sleep/internal/domain/sleep"
	sleepsvc "github.com/smallbiznis/valora-sleep/internal/service/sleep"
	"github.com/smallbiznis/valora-sleep/internal/session"
)

// maxSleepLimit is the provider's page size ceiling.
const maxSleepLimit = 25

// SleepHandler serves the sleep import endpoints.
type SleepHandler struct {
	Service  sleepsvc.Service
	Sessions *session.Manager
	logger   *zap.Logger
}

// NewSleepHandler creates the handler set.
func NewSleepHandler(sleep sleepsvc.Service, sessions *session.Manager, logger *zap.Logger) *SleepHandler {
	return &SleepHandler{Service: sleep, Sessions: sessions, logger: logger}
}

// Sleep relays one page of the provider's sleep collection.
func (h *SleepHandler) Sleep(c *gin.Context) {
	tokens := h.Sessions.For(c)
	if tokens.AccessToken() == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Access token not found"})
		return
	}
	query, err := parseSleepQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page, err := h.Service.FetchSleep(c.Request.Context(), tokens, query)
	if err != nil {
		status, msg := h.classify(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	if page.Records == nil {
		page.Records = []domainsleep.RawSleepRecord{}
	}
	c.JSON(http.StatusOK, page)
}

// Snapshot returns the latest scored record in canonical form.
func (h *SleepHandler) Snapshot(c *gin.Context) {
	tokens := h.Sessions.For(c)
	if tokens.AccessToken() == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Access token not found"})
		return
	}

	snapshot, err := h.Service.LatestSnapshot(c.Request.Context(), tokens)
	if err != nil {
		status, msg := h.classify(err)
		c.JSON(status, gin.H{"success": false, "error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": snapshot})
}

func (h *SleepHandler) classify(err error) (int, string) {
	logger := h.log()
	var apiErr *domainsleep.ProviderAPIError
	var transportErr *domain.TransportError
	switch {
	case errors.Is(err, domainsleep.ErrNoSnapshot):
		logger.Info("no scored sleep record available")
		return http.StatusNotFound, "No sleep data available"
	case errors.Is(err, domainsleep.ErrUnauthorized):
		logger.Warn("provider rejected access token", zap.Error(err))
		return http.StatusUnauthorized, "WHOOP session expired. Please reconnect."
	case errors.As(err, &apiErr):
		logger.Error("provider api failure", zap.Int("status", apiErr.Status), zap.String("description", apiErr.Description))
		detail := apiErr.Description
		if detail == "" {
			detail = http.StatusText(apiErr.Status)
		}
		return http.StatusBadGateway, "Failed to fetch sleep data: " + detail
	case errors.As(err, &transportErr):
		logger.Error("provider unreachable", zap.Error(err))
		if transportErr.Timeout() {
			return http.StatusGatewayTimeout, "Failed to fetch sleep data: provider timed out"
		}
		return http.StatusBadGateway, "Failed to fetch sleep data: provider unreachable"
	default:
		logger.Error("sleep import failure", zap.Error(err))
		return http.StatusInternalServerError, "Internal server error"
	}
}

func parseSleepQuery(c *gin.Context) (domainsleep.SleepQuery, error) {
	var q domainsleep.SleepQuery
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSleepLimit {
			return q, &domainsleep.ValidationError{Field: "limit", Reason: "must be an integer between 1 and 25"}
		}
		q.Limit = n
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"start", &q.Start}, {"end", &q.End}} {
		raw := strings.TrimSpace(c.Query(p.name))
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, &domainsleep.ValidationError{Field: p.name, Reason: "must be an RFC3339 timestamp"}
		}
		*p.dst = &ts
	}
	if q.Start != nil && q.End != nil && q.End.Before(*q.Start) {
		return q, &domainsleep.ValidationError{Field: "end", Reason: "must not be before start"}
	}
	q.PageToken = strings.TrimSpace(c.Query("nextToken"))
	if q.PageToken == "" {
		q.PageToken = strings.TrimSpace(c.Query("pageToken"))
	}
	return q, nil
}

func (h *SleepHandler) log() *zap.Logger {
	if h != nil && h.logger != nil {
		return h.logger
	}
	return zap.L()
}
