package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/settings"
)

// settingsRow persiste o bundle inteiro como JSON numa linha única.
// Conta única, configuração única; versionar campo a campo não paga.
type settingsRow struct {
	ID        int            `gorm:"primaryKey"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt time.Time
}

func (settingsRow) TableName() string { return "autoreply_settings" }

const settingsRowID = 1

type gormSettingsRepo struct {
	db *gorm.DB
}

func NewGormSettingsRepo(db *gorm.DB) (SettingsRepository, error) {
	if err := db.AutoMigrate(&settingsRow{}); err != nil {
		return nil, fmt.Errorf("migrate settings table: %w", err)
	}
	return &gormSettingsRepo{db: db}, nil
}

func (r *gormSettingsRepo) Get(ctx context.Context) (*settings.AutoReplySettings, error) {
	var row settingsRow
	err := r.db.WithContext(ctx).First(&row, "id = ?", settingsRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	var cfg settings.AutoReplySettings
	if err := json.Unmarshal(row.Payload, &cfg); err != nil {
		return nil, fmt.Errorf("decode settings payload: %w", err)
	}
	return &cfg, nil
}

func (r *gormSettingsRepo) Save(ctx context.Context, cfg *settings.AutoReplySettings) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode settings payload: %w", err)
	}
	row := settingsRow{ID: settingsRowID, Payload: payload, UpdatedAt: time.Now().UTC()}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
