package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"optiondesk/internal/models"
	"optiondesk/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- trades ------------------------------------------------------------------

func (s *Store) CreateTradeIfAbsent(ctx context.Context, item *models.TradeRecord) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"}, {Name: "slot"}, {Name: "direction"}, {Name: "trade_date"},
		},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) SaveTradeMinimal(ctx context.Context, item *models.TradeRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	minimal := &models.TradeRecord{
		Symbol:       item.Symbol,
		Slot:         item.Slot,
		Direction:    item.Direction,
		TradeDate:    item.TradeDate,
		TriggerPrice: item.TriggerPrice,
		AlertAt:      item.AlertAt,
		ScanName:     item.ScanName,
		Status:       models.StatusAlertReceived,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"}, {Name: "slot"}, {Name: "direction"}, {Name: "trade_date"},
		},
		DoNothing: true,
	}).Create(minimal).Error
}

func (s *Store) GetTradeByID(ctx context.Context, id uint64) (*models.TradeRecord, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.TradeRecord
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetTradeByKey(ctx context.Context, symbol, slot string, direction models.Direction, tradeDate string) (*models.TradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.TradeRecord
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND slot = ? AND direction = ? AND trade_date = ?",
			strings.TrimSpace(symbol), slot, direction, tradeDate).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) tradesQuery(ctx context.Context, params repository.ListTradesParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.TradeRecord{})
	if params.TradeDate != nil && strings.TrimSpace(*params.TradeDate) != "" {
		query = query.Where("trade_date = ?", strings.TrimSpace(*params.TradeDate))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Direction != nil && params.Direction.Valid() {
		query = query.Where("direction = ?", *params.Direction)
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	return query
}

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.TradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.tradesQuery(ctx, params), params.OrderBy, params.Asc, "alert_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.TradeRecord
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.tradesQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListOpenTrades(ctx context.Context, tradeDate string) ([]models.TradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TradeRecord
	err := s.db.WithContext(ctx).
		Where("trade_date = ? AND status = ?", tradeDate, models.StatusBought).
		Order("alert_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListOpenSymbols(ctx context.Context, tradeDate string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var symbols []string
	err := s.db.WithContext(ctx).
		Model(&models.TradeRecord{}).
		Distinct("symbol").
		Where("trade_date = ? AND status = ?", tradeDate, models.StatusBought).
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, err
	}
	return symbols, nil
}

func (s *Store) UpdateTradeQuotes(ctx context.Context, id uint64, updates map[string]any) error {
	if s == nil || s.db == nil || id == 0 || len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.TradeRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (s *Store) UpdateStockLTPBySymbol(ctx context.Context, tradeDate, symbol string, ltp decimal.Decimal, observedAt time.Time) error {
	if s == nil || s.db == nil || strings.TrimSpace(symbol) == "" {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.TradeRecord{}).
		Where("trade_date = ? AND symbol = ? AND status = ?", tradeDate, strings.TrimSpace(symbol), models.StatusBought).
		Updates(map[string]any{
			"stock_ltp":  ltp,
			"updated_at": observedAt,
		}).Error
}

// CloseTrade guards the terminal transition in the WHERE clause: only a
// bought record with no sell_time can move to sold, so replayed ticks and
// racing closes cannot overwrite a settled exit.
func (s *Store) CloseTrade(ctx context.Context, id uint64, sellPrice, pnl decimal.Decimal, reason string, sellAt time.Time) (bool, error) {
	if s == nil || s.db == nil || id == 0 {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.TradeRecord{}).
		Where("id = ? AND status = ? AND sell_time IS NULL", id, models.StatusBought).
		Updates(map[string]any{
			"status":      models.StatusSold,
			"sell_price":  sellPrice,
			"pnl":         pnl,
			"exit_reason": reason,
			"sell_time":   sellAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) SumRealizedPnL(ctx context.Context, tradeDate string) (decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return decimal.Zero, nil
	}
	var out decimal.NullDecimal
	err := s.db.WithContext(ctx).
		Model(&models.TradeRecord{}).
		Select("COALESCE(SUM(pnl), 0)").
		Where("trade_date = ? AND status = ?", tradeDate, models.StatusSold).
		Scan(&out).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !out.Valid {
		return decimal.Zero, nil
	}
	return out.Decimal, nil
}

// --- index trend audit -------------------------------------------------------

func (s *Store) InsertIndexTrendSnapshot(ctx context.Context, item *models.IndexTrendSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListIndexTrendSnapshots(ctx context.Context, tradeDate string, limit int) ([]models.IndexTrendSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 100)
	var items []models.IndexTrendSnapshot
	err := s.db.WithContext(ctx).
		Where("trade_date = ?", tradeDate).
		Order("created_at desc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- system settings ---------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Key) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).First(&item, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.SystemSetting
	if err := s.db.WithContext(ctx).Order("key asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers -----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	col := strings.TrimSpace(orderBy)
	switch col {
	case "alert_at", "symbol", "status", "pnl", "created_at", "sell_time":
	default:
		col = fallback
	}
	dir := "desc"
	if asc != nil && *asc {
		dir = "asc"
	}
	return query.Order(col + " " + dir)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
