package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
	"storefront/internal/logging"
)

type postgresRepo struct {
	pool     *pgxpool.Pool
	logger   logrus.FieldLogger
	currency string
}

func NewPostgres(pool *pgxpool.Pool, logger logrus.FieldLogger, currency string) Repository {
	return &postgresRepo{pool: pool, logger: logging.OrDiscard(logger), currency: currency}
}

const productColumns = `p.id::text, p.handle, p.title, COALESCE(p.description, ''), p.vendor, p.tags, p.images, p.best_selling_rank, p.created_at`

func (r *postgresRepo) List(ctx context.Context, in ListInput) ([]domain.Product, bool, error) {
	where, args := buildWhere(in.Criteria)
	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit+1, in.Offset)
	q := fmt.Sprintf(`
SELECT %s
FROM products p
%s
ORDER BY %s
LIMIT $%d OFFSET $%d
`, productColumns, where, orderBy(in.SortKey, in.Reverse), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		r.logger.WithError(err).Error("product repo: list")
		return nil, false, err
	}
	products, err := scanProducts(rows)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(products) > limit
	if hasMore {
		products = products[:limit]
	}
	if err := r.attachDetails(ctx, products); err != nil {
		return nil, false, err
	}
	r.logger.WithField("count", len(products)).WithField("offset", in.Offset).Debug("product repo: list")
	return products, hasMore, nil
}

func (r *postgresRepo) GetVariant(ctx context.Context, id string) (*domain.Variant, error) {
	const q = `
SELECT id::text, product_id::text, title, sku, price_cents, currency, available
FROM variants
WHERE id::text = $1
`
	var v domain.Variant
	var cents int64
	var currency string
	err := r.pool.QueryRow(ctx, q, id).Scan(&v.ID, &v.ProductID, &v.Title, &v.SKU, &cents, &currency, &v.AvailableForSale)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	v.Price = domain.MoneyFromCents(cents, currency)
	return &v, nil
}

func (r *postgresRepo) GetCollection(ctx context.Context, handle string) (*domain.Collection, error) {
	var c domain.Collection
	err := r.pool.QueryRow(ctx, `SELECT id::text, handle, title FROM collections WHERE handle = $1`, handle).Scan(&c.ID, &c.Handle, &c.Title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *postgresRepo) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, handle, title FROM collections ORDER BY title ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Collection
	for rows.Next() {
		var c domain.Collection
		if err := rows.Scan(&c.ID, &c.Handle, &c.Title); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *postgresRepo) ListVendors(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT vendor FROM products WHERE vendor <> '' ORDER BY vendor ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *postgresRepo) Upsert(ctx context.Context, product domain.Product) (*domain.Product, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	images, err := json.Marshal(nonNil(product.Images))
	if err != nil {
		return nil, err
	}

	const q = `
INSERT INTO products (id, handle, title, description, vendor, tags, images, best_selling_rank)
VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
ON CONFLICT (handle) DO UPDATE SET
    title = EXCLUDED.title,
    description = EXCLUDED.description,
    vendor = EXCLUDED.vendor,
    tags = EXCLUDED.tags,
    images = EXCLUDED.images,
    best_selling_rank = EXCLUDED.best_selling_rank
RETURNING id::text, created_at
`
	res := product
	err = tx.QueryRow(ctx, q,
		product.ID,
		product.Handle,
		product.Title,
		product.Description,
		product.Vendor,
		nonNil(product.Tags),
		images,
		product.BestSellingRank,
	).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		r.logger.WithError(err).WithField("handle", product.Handle).Error("product repo: upsert")
		return nil, err
	}
	if product.ID != "" && res.ID != product.ID {
		return nil, fmt.Errorf("product repo: id mismatch for handle=%s existing_id=%s import_id=%s", product.Handle, res.ID, product.ID)
	}

	res.Variants = make([]domain.Variant, 0, len(product.Variants))
	for _, v := range product.Variants {
		const vq = `
INSERT INTO variants (product_id, title, sku, price_cents, currency, available)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (sku) DO UPDATE SET
    product_id = EXCLUDED.product_id,
    title = EXCLUDED.title,
    price_cents = EXCLUDED.price_cents,
    currency = EXCLUDED.currency,
    available = EXCLUDED.available
RETURNING id::text
`
		currency := v.Price.CurrencyCode
		if currency == "" {
			currency = r.currency
		}
		cents := v.Price.Amount.Shift(2).IntPart()
		if err := tx.QueryRow(ctx, vq, res.ID, v.Title, v.SKU, cents, currency, v.AvailableForSale).Scan(&v.ID); err != nil {
			return nil, fmt.Errorf("upsert variant %s: %w", v.SKU, err)
		}
		v.ProductID = res.ID
		v.Price = domain.MoneyFromCents(cents, currency)
		res.Variants = append(res.Variants, v)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	res.PriceRange = domain.PriceRangeOf(res.Variants, r.currency)
	res.AvailableForSale = anyAvailable(res.Variants)
	r.logger.WithField("handle", res.Handle).WithField("id", res.ID).Debug("product repo: upserted")
	return &res, nil
}

func (r *postgresRepo) UpsertCollection(ctx context.Context, c domain.Collection, productHandles []string) (*domain.Collection, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	out := c
	err = tx.QueryRow(ctx, `
INSERT INTO collections (handle, title)
VALUES ($1, $2)
ON CONFLICT (handle) DO UPDATE SET title = EXCLUDED.title
RETURNING id::text
`, c.Handle, c.Title).Scan(&out.ID)
	if err != nil {
		return nil, err
	}
	if len(productHandles) > 0 {
		if _, err := tx.Exec(ctx, `
INSERT INTO collection_products (collection_id, product_id)
SELECT $1, id FROM products WHERE handle = ANY($2)
ON CONFLICT DO NOTHING
`, out.ID, productHandles); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *postgresRepo) attachDetails(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]string, len(products))
	index := make(map[string]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		index[p.ID] = i
	}

	rows, err := r.pool.Query(ctx, `
SELECT id::text, product_id::text, title, sku, price_cents, currency, available
FROM variants
WHERE product_id::text = ANY($1)
ORDER BY created_at ASC, id ASC
`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v domain.Variant
		var cents int64
		var currency string
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Title, &v.SKU, &cents, &currency, &v.AvailableForSale); err != nil {
			rows.Close()
			return err
		}
		v.Price = domain.MoneyFromCents(cents, currency)
		p := &products[index[v.ProductID]]
		p.Variants = append(p.Variants, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx, `
SELECT cp.product_id::text, c.handle
FROM collection_products cp
JOIN collections c ON c.id = cp.collection_id
WHERE cp.product_id::text = ANY($1)
ORDER BY c.handle ASC
`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var productID, handle string
		if err := rows.Scan(&productID, &handle); err != nil {
			return err
		}
		p := &products[index[productID]]
		p.Collections = append(p.Collections, handle)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range products {
		products[i].PriceRange = domain.PriceRangeOf(products[i].Variants, r.currency)
		products[i].AvailableForSale = anyAvailable(products[i].Variants)
	}
	return nil
}

func scanProducts(rows pgx.Rows) ([]domain.Product, error) {
	defer rows.Close()
	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		var images []byte
		if err := rows.Scan(&p.ID, &p.Handle, &p.Title, &p.Description, &p.Vendor, &p.Tags, &images, &p.BestSellingRank, &p.CreatedAt); err != nil {
			return nil, err
		}
		if len(images) > 0 {
			if err := json.Unmarshal(images, &p.Images); err != nil {
				return nil, fmt.Errorf("decode images for %s: %w", p.Handle, err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

var (
	minCents = decimal.NewFromInt(math.MinInt64)
	maxCents = decimal.NewFromInt(math.MaxInt64)
)

// cents clamps d into the range of the bigint price column.
func cents(d decimal.Decimal) int64 {
	if d.GreaterThan(maxCents) {
		return math.MaxInt64
	}
	if d.LessThan(minCents) {
		return math.MinInt64
	}
	return d.IntPart()
}

// buildWhere renders c as a WHERE clause with positional arguments.
func buildWhere(c Criteria) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, term := range c.Terms {
		p := arg("%" + escapeLike(term) + "%")
		conds = append(conds, fmt.Sprintf(
			"(p.title ILIKE %[1]s OR p.description ILIKE %[1]s OR p.vendor ILIKE %[1]s OR EXISTS (SELECT 1 FROM unnest(p.tags) t WHERE t ILIKE %[1]s))", p))
	}
	if len(c.Vendors) > 0 {
		lowered := make([]string, len(c.Vendors))
		for i, v := range c.Vendors {
			lowered[i] = strings.ToLower(v)
		}
		conds = append(conds, fmt.Sprintf("lower(p.vendor) = ANY(%s)", arg(lowered)))
	}
	for _, tag := range c.Tags {
		conds = append(conds, fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(p.tags) t WHERE lower(t) = lower(%s))", arg(tag)))
	}
	if c.MinPrice != nil || c.MaxPrice != nil {
		var bounds []string
		if c.MinPrice != nil {
			bounds = append(bounds, "v.price_cents >= "+arg(cents(c.MinPrice.Shift(2).Ceil())))
		}
		if c.MaxPrice != nil {
			bounds = append(bounds, "v.price_cents <= "+arg(cents(c.MaxPrice.Shift(2).Floor())))
		}
		conds = append(conds, "EXISTS (SELECT 1 FROM variants v WHERE v.product_id = p.id AND "+strings.Join(bounds, " AND ")+")")
	}
	if c.Collection != "" {
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM collection_products cp JOIN collections c ON c.id = cp.collection_id WHERE cp.product_id = p.id AND c.handle = %s)", arg(c.Collection)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func orderBy(key domain.SortKey, reverse bool) string {
	dir := "ASC"
	if reverse {
		dir = "DESC"
	}
	var expr string
	switch key {
	case domain.SortBestSelling:
		expr = "p.best_selling_rank"
	case domain.SortCreatedAt:
		expr = "p.created_at"
	case domain.SortPrice:
		expr = "(SELECT MIN(v.price_cents) FROM variants v WHERE v.product_id = p.id)"
	case domain.SortTitle:
		expr = "lower(p.title)"
	default:
		expr = "p.created_at"
	}
	return fmt.Sprintf("%s %s NULLS LAST, p.id ASC", expr, dir)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func anyAvailable(variants []domain.Variant) bool {
	for _, v := range variants {
		if v.AvailableForSale {
			return true
		}
	}
	return false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
