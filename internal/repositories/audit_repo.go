package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nft-launchpad/marketplace/internal/models"
)

const maxAuditPage = 200

// AuditRepo stores admin actions taken through the API. The engine state itself is never
// rebuilt from it.
type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Log(ctx context.Context, entry models.AuditLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (actor_address, action, entity_type, entity_id, meta)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ActorAddress, entry.Action, entry.EntityType, entry.EntityID, entry.Meta)
	if err != nil {
		return fmt.Errorf("insert audit %s: %w", entry.Action, err)
	}
	return nil
}

func (r *AuditRepo) GetByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error) {
	limit, offset = auditPage(limit, offset)
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor_address, action, entity_type, entity_id, meta, created_at
		FROM audit_log WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, id LIMIT $3 OFFSET $4
	`, entityType, entityID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanAudit(rows)
}

// GetByActor lists what one wallet did, newest first. actor is the checksummed hex address.
func (r *AuditRepo) GetByActor(ctx context.Context, actor string, limit, offset int) ([]models.AuditLog, error) {
	limit, offset = auditPage(limit, offset)
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor_address, action, entity_type, entity_id, meta, created_at
		FROM audit_log WHERE actor_address = $1
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3
	`, actor, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanAudit(rows)
}

func auditPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > maxAuditPage {
		limit = maxAuditPage
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func scanAudit(rows pgx.Rows) ([]models.AuditLog, error) {
	defer rows.Close()

	logs := []models.AuditLog{}
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.ActorAddress, &l.Action, &l.EntityType, &l.EntityID, &l.Meta, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
