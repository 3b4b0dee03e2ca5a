package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"optiondesk/internal/clock"
	"optiondesk/internal/repository"
)

type TrendHandler struct {
	Repo  repository.Repository
	Clock clock.Clock
}

func (h *TrendHandler) Register(r *gin.Engine) {
	r.GET("/api/trend", h.list)
}

func (h *TrendHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	date := strings.TrimSpace(c.Query("date"))
	if date == "" {
		date = clock.TradingDay(h.Clock.Now())
	}
	limit := intQuery(c, "limit", 50)
	items, err := h.Repo.ListIndexTrendSnapshots(c.Request.Context(), date, limit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"date": date})
}
