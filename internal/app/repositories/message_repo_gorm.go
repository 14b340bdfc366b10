package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/message"
)

// messageRow é o modelo persistido da mensagem.
type messageRow struct {
	ID         string    `gorm:"primaryKey;size:128"`
	ChatID     string    `gorm:"size:128;index"`
	Sender     string    `gorm:"size:128;index"`
	SenderName string    `gorm:"size:255"`
	Recipient  string    `gorm:"size:128"`
	Content    string    `gorm:"type:text"`
	Kind       string    `gorm:"size:16"`
	Direction  string    `gorm:"size:8;index"`
	Status     string    `gorm:"size:16"`
	Timestamp  time.Time `gorm:"index"`
	IsGroup    bool
	FromMe     bool
	MediaURL   string `gorm:"size:512"`
	UpdatedAt  time.Time
}

func (messageRow) TableName() string { return "messages" }

type gormMessageRepo struct {
	db *gorm.DB
}

func NewGormMessageRepo(db *gorm.DB) (MessageRepository, error) {
	if err := db.AutoMigrate(&messageRow{}); err != nil {
		return nil, fmt.Errorf("migrate messages table: %w", err)
	}
	return &gormMessageRepo{db: db}, nil
}

func (r *gormMessageRepo) Save(ctx context.Context, msg *message.Message) error {
	row := toMessageRow(msg)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save message %s: %w", msg.ID, err)
	}
	return nil
}

func (r *gormMessageRepo) UpdateStatus(ctx context.Context, id string, status message.Status, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row messageRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMessageNotFound
			}
			return fmt.Errorf("load message %s: %w", id, err)
		}
		if status.Rank() <= message.Status(row.Status).Rank() {
			return nil
		}
		return tx.Model(&messageRow{}).Where("id = ?", id).
			Updates(map[string]any{"status": string(status), "updated_at": at}).Error
	})
}

func (r *gormMessageRepo) Get(ctx context.Context, id string) (*message.Message, error) {
	var row messageRow
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	msg := toDomainMessage(row)
	return &msg, nil
}

func (r *gormMessageRepo) List(ctx context.Context, q MessageQuery) ([]message.Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	tx := r.db.WithContext(ctx).Model(&messageRow{})
	if q.Chat != "" {
		tx = tx.Where("chat_id = ?", q.Chat)
	}
	if q.Direction != "" {
		tx = tx.Where("direction = ?", string(q.Direction))
	}
	var rows []messageRow
	err := tx.Order("timestamp DESC").Limit(limit).Offset(q.Offset).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]message.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainMessage(row))
	}
	return out, nil
}

func (r *gormMessageRepo) Since(ctx context.Context, cutoff time.Time) ([]message.Message, error) {
	var rows []messageRow
	err := r.db.WithContext(ctx).
		Where("timestamp >= ?", cutoff).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list messages since %s: %w", cutoff.Format(time.RFC3339), err)
	}
	out := make([]message.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainMessage(row))
	}
	return out, nil
}

func toMessageRow(msg *message.Message) messageRow {
	return messageRow{
		ID:         msg.ID,
		ChatID:     msg.ChatID,
		Sender:     msg.Sender,
		SenderName: msg.SenderName,
		Recipient:  msg.Recipient,
		Content:    msg.Content,
		Kind:       string(msg.Kind),
		Direction:  string(msg.Direction),
		Status:     string(msg.Status),
		Timestamp:  msg.Timestamp,
		IsGroup:    msg.IsGroup,
		FromMe:     msg.FromMe,
		MediaURL:   msg.MediaURL,
		UpdatedAt:  msg.UpdatedAt,
	}
}

func toDomainMessage(row messageRow) message.Message {
	return message.Message{
		ID:         row.ID,
		ChatID:     row.ChatID,
		Sender:     row.Sender,
		SenderName: row.SenderName,
		Recipient:  row.Recipient,
		Content:    row.Content,
		Kind:       message.Kind(row.Kind),
		Direction:  message.Direction(row.Direction),
		Status:     message.Status(row.Status),
		Timestamp:  row.Timestamp,
		IsGroup:    row.IsGroup,
		FromMe:     row.FromMe,
		MediaURL:   row.MediaURL,
		UpdatedAt:  row.UpdatedAt,
	}
}
