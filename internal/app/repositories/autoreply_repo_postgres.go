package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/message"
)

type postgresAutoReplyRepo struct {
	db *sql.DB
}

func NewPostgresAutoReplyRepo(db *sql.DB) (AutoReplyRepository, error) {
	repo := &postgresAutoReplyRepo{db: db}
	if err := repo.ensureSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *postgresAutoReplyRepo) ensureSchema() error {
	const createTable = `
        CREATE TABLE IF NOT EXISTS auto_replies (
            id TEXT PRIMARY KEY,
            sender TEXT NOT NULL,
            sender_name TEXT NOT NULL DEFAULT '',
            request_text TEXT NOT NULL DEFAULT '',
            response_text TEXT NOT NULL,
            response_type TEXT NOT NULL,
            is_group BOOLEAN NOT NULL DEFAULT FALSE,
            is_working_hours BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`
	if _, err := r.db.Exec(createTable); err != nil {
		return err
	}
	if _, err := r.db.Exec(`CREATE INDEX IF NOT EXISTS idx_auto_replies_created_at ON auto_replies (created_at DESC)`); err != nil {
		return err
	}
	if _, err := r.db.Exec(`CREATE INDEX IF NOT EXISTS idx_auto_replies_sender ON auto_replies (sender)`); err != nil {
		return err
	}
	return nil
}

func (r *postgresAutoReplyRepo) Save(ctx context.Context, rec *message.AutoReplyRecord) error {
	const query = `
        INSERT INTO auto_replies (id, sender, sender_name, request_text, response_text, response_type, is_group, is_working_hours, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Sender,
		rec.SenderName,
		rec.RequestText,
		rec.ResponseText,
		string(rec.ResponseType),
		rec.IsGroup,
		rec.IsWorkingHours,
		rec.Timestamp.UTC(),
	)
	return r.mapError(err)
}

func (r *postgresAutoReplyRepo) List(ctx context.Context, limit int) ([]message.AutoReplyRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT id, sender, sender_name, request_text, response_text, response_type, is_group, is_working_hours, created_at
        FROM auto_replies
        ORDER BY created_at DESC
        LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list auto replies: %w", err)
	}
	defer rows.Close()

	records := []message.AutoReplyRecord{}
	for rows.Next() {
		var rec message.AutoReplyRecord
		var responseType string
		if err := rows.Scan(
			&rec.ID,
			&rec.Sender,
			&rec.SenderName,
			&rec.RequestText,
			&rec.ResponseText,
			&responseType,
			&rec.IsGroup,
			&rec.IsWorkingHours,
			&rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan auto reply: %w", err)
		}
		rec.ResponseType = message.ResponseType(responseType)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *postgresAutoReplyRepo) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		// Reenvio do mesmo registro; idempotente.
		return nil
	}
	return err
}
