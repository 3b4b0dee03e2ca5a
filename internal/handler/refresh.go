package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"optiondesk/internal/exiteval"
)

// RefreshHandler exposes the cron jobs for manual triggering, mainly for
// debugging outside market hours.
type RefreshHandler struct {
	Evaluator *exiteval.Evaluator
}

func (h *RefreshHandler) Register(r *gin.Engine) {
	g := r.Group("/api/refresh")
	g.POST("/quotes", h.quotes)
	g.POST("/evaluate", h.evaluate)
}

func (h *RefreshHandler) quotes(c *gin.Context) {
	if h.Evaluator == nil {
		Error(c, http.StatusInternalServerError, "evaluator unavailable", nil)
		return
	}
	refreshed, err := h.Evaluator.RefreshQuotes(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"refreshed": refreshed}, nil)
}

func (h *RefreshHandler) evaluate(c *gin.Context) {
	if h.Evaluator == nil {
		Error(c, http.StatusInternalServerError, "evaluator unavailable", nil)
		return
	}
	h.Evaluator.RunOnce(c.Request.Context())
	Ok(c, gin.H{"evaluated": true}, nil)
}
