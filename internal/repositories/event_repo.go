package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nft-launchpad/marketplace/internal/models"
)

type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Insert stores an event once; replays of the same id are ignored.
func (r *EventRepo) Insert(ctx context.Context, tx pgx.Tx, e *models.MarketEvent) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO market_events (id, type, contract, token_id, block_time, payload)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Type, e.Contract, e.TokenID, e.BlockTime, e.Payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type EventFilter struct {
	Contract *string
	TokenID  *string
	Types    []string
	Limit    int
	Offset   int
}

func (r *EventRepo) List(ctx context.Context, f EventFilter) ([]models.MarketEvent, error) {
	query := `
		SELECT id, type, contract, token_id::text, block_time, payload, created_at
		FROM market_events
	`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.Contract != nil {
		where = append(where, fmt.Sprintf("contract = $%d", argIdx))
		args = append(args, *f.Contract)
		argIdx++
	}
	if f.TokenID != nil {
		where = append(where, fmt.Sprintf("token_id = $%d::numeric", argIdx))
		args = append(args, *f.TokenID)
		argIdx++
	}
	if len(f.Types) > 0 {
		where = append(where, fmt.Sprintf("type = ANY($%d)", argIdx))
		args = append(args, f.Types)
		argIdx++
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY block_time DESC, created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MarketEvent
	for rows.Next() {
		var e models.MarketEvent
		if err := rows.Scan(&e.ID, &e.Type, &e.Contract, &e.TokenID, &e.BlockTime, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
