package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seslidestek/telephony_services/internal/provisioning_service/repository"
)

type poolTxBeginner struct {
	pool *pgxpool.Pool
}

// NewTxBeginner adapts a pgx connection pool to repository.TxBeginner so
// application services can open transactions without depending on pgxpool.
func NewTxBeginner(pool *pgxpool.Pool) repository.TxBeginner {
	return &poolTxBeginner{pool: pool}
}

func (b *poolTxBeginner) Begin(ctx context.Context) (repository.Tx, error) {
	return b.pool.Begin(ctx)
}
