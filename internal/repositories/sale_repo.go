package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nft-launchpad/marketplace/internal/models"
)

type SaleRepo struct {
	pool *pgxpool.Pool
}

func NewSaleRepo(pool *pgxpool.Pool) *SaleRepo {
	return &SaleRepo{pool: pool}
}

func (r *SaleRepo) Insert(ctx context.Context, tx pgx.Tx, s *models.Sale) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO market_sales (event_id, contract, token_id, seller, buyer, price_wei, platform_fee_wei,
		                          royalty_wei, royalty_receiver, seller_wei, via, sold_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9, $10::numeric, $11, $12)
		ON CONFLICT (event_id) DO NOTHING
	`, s.EventID, s.Contract, s.TokenID, s.Seller, s.Buyer, s.PriceWei, s.PlatformFeeWei,
		s.RoyaltyWei, s.RoyaltyReceiver, s.SellerWei, s.Via, s.SoldAt)
	return err
}

func (r *SaleRepo) ListByContract(ctx context.Context, contract string, limit, offset int) ([]models.Sale, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT event_id, contract, token_id::text, seller, buyer, price_wei::text, platform_fee_wei::text,
		       royalty_wei::text, royalty_receiver, seller_wei::text, via, sold_at, created_at
		FROM market_sales WHERE contract = $1
		ORDER BY sold_at DESC LIMIT $2 OFFSET $3
	`, contract, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Sale
	for rows.Next() {
		var s models.Sale
		if err := rows.Scan(&s.EventID, &s.Contract, &s.TokenID, &s.Seller, &s.Buyer, &s.PriceWei, &s.PlatformFeeWei,
			&s.RoyaltyWei, &s.RoyaltyReceiver, &s.SellerWei, &s.Via, &s.SoldAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SaleRepo) VolumeByContract(ctx context.Context) ([]models.VolumeByContract, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT contract, COUNT(*), COALESCE(SUM(price_wei), 0)::text
		FROM market_sales
		GROUP BY contract
		ORDER BY SUM(price_wei) DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.VolumeByContract
	for rows.Next() {
		var v models.VolumeByContract
		if err := rows.Scan(&v.Contract, &v.Sales, &v.VolumeWei); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// WithTx runs fn inside one transaction.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
