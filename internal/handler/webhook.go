package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"optiondesk/internal/alert"
	"optiondesk/internal/clock"
	"optiondesk/internal/enrich"
	"optiondesk/internal/models"
)

// WebhookHandler receives screener alerts. The direction comes from the URL
// for the fixed routes, or from the payload's alert_type on /webhook/auto.
// Heavy work happens on the enrichment pool; the handler only validates,
// splits and enqueues, then answers 202.
type WebhookHandler struct {
	Normalizer *alert.Normalizer
	Pipeline   *enrich.Pipeline
	Clock      clock.Clock
	Logger     *zap.Logger
}

func (h *WebhookHandler) Register(r *gin.Engine) {
	w := r.Group("/webhook")
	w.POST("/bullish", h.fixed(models.DirectionBullish))
	w.POST("/bearish", h.fixed(models.DirectionBearish))
	w.POST("/auto", h.auto)
}

func (h *WebhookHandler) fixed(direction models.Direction) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload alert.Payload
		if err := c.ShouldBindJSON(&payload); err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		h.accept(c, payload, direction)
	}
}

func (h *WebhookHandler) auto(c *gin.Context) {
	var payload alert.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	direction, err := models.ParseDirection(payload.AlertType)
	if err != nil {
		Error(c, http.StatusBadRequest, "alert_type must indicate a direction", nil)
		return
	}
	h.accept(c, payload, direction)
}

func (h *WebhookHandler) accept(c *gin.Context, payload alert.Payload, direction models.Direction) {
	units, dropped, err := h.Normalizer.Normalize(payload, direction, h.Clock.Now())
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if dropped > 0 {
		h.Logger.Warn("pre-open alerts dropped",
			zap.Int("dropped", dropped),
			zap.String("scan", strings.TrimSpace(payload.ScanName)))
	}

	queued := 0
	shed := 0
	for _, unit := range units {
		if h.Pipeline.Submit(unit) {
			queued++
		} else {
			shed++
		}
	}
	if shed > 0 {
		h.Logger.Warn("enrichment queue full, alerts shed",
			zap.Int("shed", shed),
			zap.String("scan", strings.TrimSpace(payload.ScanName)))
	}

	Accepted(c, gin.H{
		"direction":   direction,
		"received_at": h.Clock.Now(),
		"queued":      queued,
		"dropped":     dropped,
		"shed":        shed,
	}, nil)
}
