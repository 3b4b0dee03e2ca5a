package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# Option Desk

Turns stock screener webhooks into simulated hedged option trades and
manages their exits through the trading day.

## Webhooks

- POST /webhook/bullish   — screener payload, bullish scan
- POST /webhook/bearish   — screener payload, bearish scan
- POST /webhook/auto      — direction read from alert_type in the payload

Payload:

    {
      "stocks": "RELIANCE,TCS",
      "trigger_prices": "2900.5,4100",
      "triggered_at": "10:17 am",
      "scan_name": "vwap-breakout",
      "scan_url": "https://...",
      "alert_type": "bullish"
    }

Duplicate deliveries of the same (symbol, slot, direction, date) are no-ops.

## API

- GET  /api/trades                — filter by date, status, symbol, direction
- GET  /api/trades/:id
- GET  /api/trades/lookup         — one record by symbol, slot, direction, date
- GET  /api/trades/summary        — realized P&L and open/closed counts
- GET  /api/trades/export         — CSV download, same filters
- POST /api/trades/:id/close      — manual close at the current option price
- GET  /api/trend                 — index trend gate audit snapshots
- GET  /api/settings              — runtime feature switches
- PUT  /api/settings/:key         — {"enabled": true|false}
- POST /api/refresh/quotes        — refresh open-position prices now
- POST /api/refresh/evaluate      — run the exit evaluator now

## Health

- GET /healthz
- GET /readyz
`)
	})
}
