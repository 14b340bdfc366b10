package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/analytics"
)

// snapshotRetention controla quantos snapshots históricos ficam na
// tabela. Só o mais recente é restaurado; os demais servem de auditoria.
const snapshotRetention = 30 * 24 * time.Hour

type postgresAnalyticsRepo struct {
	db *sql.DB
}

func NewPostgresAnalyticsRepo(db *sql.DB) (AnalyticsRepository, error) {
	repo := &postgresAnalyticsRepo{db: db}
	if err := repo.ensureSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *postgresAnalyticsRepo) ensureSchema() error {
	const createTable = `
        CREATE TABLE IF NOT EXISTS analytics_snapshots (
            id TEXT PRIMARY KEY,
            captured_at TIMESTAMPTZ NOT NULL,
            payload JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`
	if _, err := r.db.Exec(createTable); err != nil {
		return err
	}
	if _, err := r.db.Exec(`CREATE INDEX IF NOT EXISTS idx_analytics_snapshots_captured_at ON analytics_snapshots (captured_at DESC)`); err != nil {
		return err
	}
	return nil
}

func (r *postgresAnalyticsRepo) SaveSnapshot(ctx context.Context, snap analytics.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	const query = `
        INSERT INTO analytics_snapshots (id, captured_at, payload)
        VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, uuid.New().String(), snap.CapturedAt.UTC(), payload); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	cutoff := time.Now().UTC().Add(-snapshotRetention)
	if _, err := r.db.ExecContext(ctx, `DELETE FROM analytics_snapshots WHERE captured_at < $1`, cutoff); err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return nil
}

func (r *postgresAnalyticsRepo) LatestSnapshot(ctx context.Context) (*analytics.Snapshot, error) {
	const query = `
        SELECT payload
        FROM analytics_snapshots
        ORDER BY captured_at DESC
        LIMIT 1`
	var payload []byte
	err := r.db.QueryRowContext(ctx, query).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	var snap analytics.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}
