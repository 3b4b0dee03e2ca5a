package models

import (
	"time"

	"gorm.io/datatypes"
)

type SystemSetting struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Key         string         `gorm:"type:varchar(100);not null;uniqueIndex" json:"key"`
	Value       datatypes.JSON `gorm:"type:jsonb" json:"value"`
	Description string         `gorm:"type:varchar(200)" json:"description"`
	CreatedAt   time.Time      `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}
