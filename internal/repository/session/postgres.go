package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
	"storefront/internal/logging"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger logrus.FieldLogger
}

func NewPostgres(pool *pgxpool.Pool, logger logrus.FieldLogger) Repository {
	return &postgresRepo{pool: pool, logger: logging.OrDiscard(logger)}
}

func (r *postgresRepo) Create(ctx context.Context, s Session) error {
	const q = `
INSERT INTO customer_sessions (digest, customer_id, expires_at)
VALUES ($1, $2::uuid, $3)
`
	if _, err := r.pool.Exec(ctx, q, s.Digest, s.CustomerID, s.ExpiresAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *postgresRepo) Get(ctx context.Context, digest string) (*Session, error) {
	const q = `
SELECT digest, customer_id::text, expires_at, created_at, last_seen_at
FROM customer_sessions
WHERE digest = $1
`
	var s Session
	err := r.pool.QueryRow(ctx, q, digest).Scan(&s.Digest, &s.CustomerID, &s.ExpiresAt, &s.CreatedAt, &s.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *postgresRepo) Touch(ctx context.Context, digest string, at time.Time) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE customer_sessions SET last_seen_at = $2 WHERE digest = $1`, digest, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) Delete(ctx context.Context, digest string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM customer_sessions WHERE digest = $1`, digest)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM customer_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	if n := cmd.RowsAffected(); n > 0 {
		r.logger.WithField("count", n).Info("purged expired customer sessions")
	}
	return cmd.RowsAffected(), nil
}
