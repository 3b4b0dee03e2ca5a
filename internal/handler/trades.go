package handler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"optiondesk/internal/clock"
	"optiondesk/internal/exiteval"
	"optiondesk/internal/models"
	"optiondesk/internal/repository"
)

type TradesHandler struct {
	Repo      repository.Repository
	Evaluator *exiteval.Evaluator
	Clock     clock.Clock
}

func (h *TradesHandler) Register(r *gin.Engine) {
	t := r.Group("/api/trades")
	t.GET("", h.list)
	t.GET("/export", h.exportCSV)
	t.GET("/summary", h.summary)
	t.GET("/lookup", h.lookup)
	t.GET("/:id", h.get)
	t.POST("/:id/close", h.close)
}

func (h *TradesHandler) params(c *gin.Context) repository.ListTradesParams {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	orderBy := parseOrder(c.Query("order_by"), map[string]string{
		"alert_at":   "alert_at",
		"symbol":     "symbol",
		"status":     "status",
		"pnl":        "pnl",
		"sell_time":  "sell_time",
		"created_at": "created_at",
	})
	asc := strings.EqualFold(strings.TrimSpace(c.Query("order")), "asc")

	params := repository.ListTradesParams{
		Limit:   limit,
		Offset:  offset,
		OrderBy: orderBy,
		Asc:     boolPtr(asc),
	}
	if v := strings.TrimSpace(c.Query("date")); v != "" {
		params.TradeDate = &v
	}
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		params.Status = &v
	}
	if v := strings.TrimSpace(c.Query("symbol")); v != "" {
		params.Symbol = &v
	}
	if v := strings.TrimSpace(c.Query("direction")); v != "" {
		if d, err := models.ParseDirection(v); err == nil {
			params.Direction = &d
		}
	}
	return params
}

func (h *TradesHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := h.params(c)
	items, err := h.Repo.ListTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, total))
}

func (h *TradesHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetTradeByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "trade not found", nil)
		return
	}
	Ok(c, item, nil)
}

// lookup resolves one record by its composite key, so a caller holding only
// the alert identity (symbol, slot, direction, date) can check what became
// of it without paging the list.
func (h *TradesHandler) lookup(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	symbol := strings.TrimSpace(c.Query("symbol"))
	slot := strings.TrimSpace(c.Query("slot"))
	if symbol == "" || slot == "" {
		Error(c, http.StatusBadRequest, "symbol and slot are required", nil)
		return
	}
	direction, err := models.ParseDirection(c.Query("direction"))
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid direction", nil)
		return
	}
	date := strings.TrimSpace(c.Query("date"))
	if date == "" {
		date = clock.TradingDay(h.Clock.Now())
	}
	item, err := h.Repo.GetTradeByKey(c.Request.Context(), symbol, slot, direction, date)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "trade not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *TradesHandler) summary(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	date := strings.TrimSpace(c.Query("date"))
	if date == "" {
		date = clock.TradingDay(h.Clock.Now())
	}
	pnl, err := h.Repo.SumRealizedPnL(c.Request.Context(), date)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	openCount, err := h.Repo.CountTrades(c.Request.Context(), repository.ListTradesParams{
		TradeDate: &date,
		Status:    strPtr(models.StatusBought),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	closedCount, err := h.Repo.CountTrades(c.Request.Context(), repository.ListTradesParams{
		TradeDate: &date,
		Status:    strPtr(models.StatusSold),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{
		"date":         date,
		"realized_pnl": pnl,
		"open":         openCount,
		"closed":       closedCount,
	}, nil)
}

func (h *TradesHandler) close(c *gin.Context) {
	if h.Evaluator == nil {
		Error(c, http.StatusInternalServerError, "evaluator unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Evaluator.ManualClose(c.Request.Context(), id)
	if errors.Is(err, exiteval.ErrNotClosable) {
		Error(c, http.StatusConflict, "trade is not open", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

var csvHeader = []string{
	"alert_at", "scan_name", "symbol", "stock_ltp", "stock_vwap",
	"option_symbol", "option_type", "quantity", "buy_price", "sell_price",
	"pnl", "trade_date", "slot", "direction", "status",
	"trigger_price", "lot_size", "stop_loss", "exit_reason", "sell_time",
}

const exportBatchSize = 500

// exportCSV streams every matching record, reading the store in batches so a
// heavy alert day is exported completely rather than capped at one page.
func (h *TradesHandler) exportCSV(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := h.params(c)
	params.Limit = exportBatchSize
	params.Offset = 0
	items, err := h.Repo.ListTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}

	filename := fmt.Sprintf("trades-%s.csv", clock.TradingDay(h.Clock.Now()))
	if params.TradeDate != nil {
		filename = fmt.Sprintf("trades-%s.csv", *params.TradeDate)
	}
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)

	w := csv.NewWriter(c.Writer)
	_ = w.Write(csvHeader)
	for {
		for i := range items {
			_ = w.Write(csvRow(&items[i]))
		}
		if len(items) < exportBatchSize {
			break
		}
		params.Offset += exportBatchSize
		items, err = h.Repo.ListTrades(c.Request.Context(), params)
		if err != nil {
			// headers are already out; truncate rather than corrupt the file
			break
		}
	}
	w.Flush()
}

func csvRow(t *models.TradeRecord) []string {
	return []string{
		t.AlertAt.Format(time.RFC3339),
		t.ScanName,
		t.Symbol,
		decStr(t.StockLTP),
		decStr(t.StockVWAP),
		deref(t.OptionSymbol),
		optTypeStr(t.OptionType),
		fmt.Sprintf("%d", t.Quantity),
		decStr(t.BuyPrice),
		decStr(t.SellPrice),
		decStr(t.PnL),
		t.TradeDate,
		t.Slot,
		string(t.Direction),
		t.Status,
		t.TriggerPrice.String(),
		fmt.Sprintf("%d", t.LotSize),
		decStr(t.StopLoss),
		deref(t.ExitReason),
		timeStr(t.SellTime),
	}
}

func decStr(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optTypeStr(t *models.OptionType) string {
	if t == nil {
		return ""
	}
	return string(*t)
}

func timeStr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func strPtr(s string) *string { return &s }
