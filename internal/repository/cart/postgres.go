package cart

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
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

func (r *postgresRepo) Create(ctx context.Context, currency string) (*domain.Cart, error) {
	const q = `
INSERT INTO carts (currency)
VALUES ($1)
RETURNING id::text, created_at
`
	var cart domain.Cart
	if err := r.pool.QueryRow(ctx, q, currency).Scan(&cart.ID, &cart.CreatedAt); err != nil {
		return nil, err
	}
	cart.Lines = []domain.CartLine{}
	return &cart, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Cart, error) {
	var cart domain.Cart
	var currency string
	err := r.pool.QueryRow(ctx, `
SELECT id::text, currency, created_at
FROM carts
WHERE id::text = $1
`, id).Scan(&cart.ID, &currency, &cart.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	const linesQuery = `
SELECT l.id::text, l.variant_id::text, l.quantity, l.unit_price_cents, l.created_at,
       p.id::text, p.handle, p.title, v.title
FROM cart_lines l
JOIN variants v ON v.id = l.variant_id
JOIN products p ON p.id = v.product_id
WHERE l.cart_id = $1
ORDER BY l.created_at ASC, l.id ASC
`
	rows, err := r.pool.Query(ctx, linesQuery, cart.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cart.Lines = []domain.CartLine{}
	for rows.Next() {
		var line domain.CartLine
		var unitPrice int64
		if err := rows.Scan(
			&line.ID,
			&line.MerchandiseID,
			&line.Quantity,
			&unitPrice,
			&line.CreatedAt,
			&line.Merchandise.ProductID,
			&line.Merchandise.ProductHandle,
			&line.Merchandise.ProductTitle,
			&line.Merchandise.VariantTitle,
		); err != nil {
			return nil, err
		}
		line.Cost.AmountPerQuantity = domain.MoneyFromCents(unitPrice, currency)
		cart.Lines = append(cart.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *postgresRepo) AddLine(ctx context.Context, cartID string, variant domain.Variant, quantity int) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := lockCart(ctx, tx, cartID); err != nil {
		return err
	}

	var lineID string
	var existingQty int
	err = tx.QueryRow(ctx, `
SELECT id::text, quantity
FROM cart_lines
WHERE cart_id::text = $1 AND variant_id::text = $2
`, cartID, variant.ID).Scan(&lineID, &existingQty)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	if err == nil {
		if _, err := tx.Exec(ctx, `
UPDATE cart_lines
SET quantity = $1
WHERE id::text = $2
`, existingQty+quantity, lineID); err != nil {
			return err
		}
	} else {
		unitPrice := variant.Price.Amount.Shift(2).IntPart()
		if _, err := tx.Exec(ctx, `
INSERT INTO cart_lines (cart_id, variant_id, quantity, unit_price_cents)
VALUES ($1::uuid, $2::uuid, $3, $4)
`, cartID, variant.ID, quantity, unitPrice); err != nil {
			return err
		}
	}

	if err := touchCart(ctx, tx, cartID); err != nil {
		return err
	}
	r.logger.WithField("cart_id", cartID).WithField("variant_id", variant.ID).WithField("quantity", quantity).Debug("cart repo: line added")
	return tx.Commit(ctx)
}

func (r *postgresRepo) RemoveLines(ctx context.Context, cartID string, lineIDs []string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := lockCart(ctx, tx, cartID); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx, `
DELETE FROM cart_lines
WHERE cart_id::text = $1 AND id::text = ANY($2)
`, cartID, lineIDs)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() != int64(len(lineIDs)) {
		return domain.ErrNotFound
	}
	if err := touchCart(ctx, tx, cartID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *postgresRepo) SetLineQuantity(ctx context.Context, cartID, lineID string, quantity int) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := lockCart(ctx, tx, cartID); err != nil {
		return err
	}

	var cmdErr error
	if quantity <= 0 {
		cmd, err := tx.Exec(ctx, `
DELETE FROM cart_lines
WHERE id::text = $1 AND cart_id::text = $2
`, lineID, cartID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			cmdErr = domain.ErrNotFound
		}
	} else {
		cmd, err := tx.Exec(ctx, `
UPDATE cart_lines
SET quantity = $1
WHERE id::text = $2 AND cart_id::text = $3
`, quantity, lineID, cartID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			cmdErr = domain.ErrNotFound
		}
	}
	if cmdErr != nil {
		return cmdErr
	}

	if err := touchCart(ctx, tx, cartID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// lockCart serializes mutations of one cart.
func lockCart(ctx context.Context, tx pgx.Tx, cartID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id::text FROM carts WHERE id::text = $1 FOR UPDATE`, cartID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func touchCart(ctx context.Context, tx pgx.Tx, cartID string) error {
	_, err := tx.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id::text = $1`, cartID)
	return err
}
