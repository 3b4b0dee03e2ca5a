package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"optiondesk/internal/models"
	"optiondesk/internal/repository"
)

const (
	FeatureAutoEntry     = "feature.auto_entry"
	FeatureExitEvaluator = "feature.exit_evaluator"
	FeaturePriceRefresh  = "feature.price_refresh"
	FeatureTickStream    = "feature.tick_stream"
	FeatureIndexGate     = "feature.index_gate"
)

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureAutoEntry:     true,
		FeatureExitEvaluator: true,
		FeaturePriceRefresh:  true,
		FeatureTickStream:    false,
		FeatureIndexGate:     true,
	}
}

// SystemSettingsService stores runtime feature switches as jsonb booleans.
// Switches are read per use, so a flip takes effect without a restart.
type SystemSettingsService struct {
	Repo repository.Repository
}

// EnsureDefaultSwitches seeds missing switches at startup. An operator's
// stored value is never overwritten.
func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, enabled := range DefaultFeatureSwitches() {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}

// The enrichment pipeline and exit evaluator consume switches through small
// interfaces; these adapters satisfy them.

func (s *SystemSettingsService) AutoEntry(ctx context.Context) bool {
	return s.IsEnabled(ctx, FeatureAutoEntry, true)
}

func (s *SystemSettingsService) ExitEvaluator(ctx context.Context) bool {
	return s.IsEnabled(ctx, FeatureExitEvaluator, true)
}

func (s *SystemSettingsService) PriceRefresh(ctx context.Context) bool {
	return s.IsEnabled(ctx, FeaturePriceRefresh, true)
}

func (s *SystemSettingsService) TickStream(ctx context.Context) bool {
	return s.IsEnabled(ctx, FeatureTickStream, false)
}

func (s *SystemSettingsService) IndexGate(ctx context.Context) bool {
	return s.IsEnabled(ctx, FeatureIndexGate, true)
}
