package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

const productColumns = `id, restaurant_id, name, price, available, stock`

type catalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт PostgreSQL-реализацию Catalog.
func NewCatalogRepository(store *Store) domain.Catalog {
	return &catalogRepository{db: store.DB()}
}

func (r *catalogRepository) GetClient(ctx context.Context, id string) (domain.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var client domain.Client
	err := r.db.QueryRowContext(ctx, `SELECT id, name, email FROM clients WHERE id = $1`, id).
		Scan(&client.ID, &client.Name, &client.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Client{}, domain.ErrClientNotFound
		}
		return domain.Client{}, wrapPgError("get client", err)
	}
	return client, nil
}

func (r *catalogRepository) GetRestaurant(ctx context.Context, id string) (domain.Restaurant, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var restaurant domain.Restaurant
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM restaurants WHERE id = $1`, id).
		Scan(&restaurant.ID, &restaurant.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Restaurant{}, domain.ErrRestaurantNotFound
		}
		return domain.Restaurant{}, wrapPgError("get restaurant", err)
	}
	return restaurant, nil
}

func (r *catalogRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, wrapPgError("get product", err)
	}
	return product, nil
}

func (r *catalogRepository) GetProductsByRestaurant(ctx context.Context, restaurantID string) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE restaurant_id = $1
		ORDER BY name ASC, id ASC
	`, restaurantID)
	if err != nil {
		return nil, wrapPgError("list products", err)
	}
	defer rows.Close()

	result := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result = append(result, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return result, nil
}

// SeedCatalog записывает справочники одной транзакцией. Существующие записи обновляются.
func (s *Store) SeedCatalog(ctx context.Context, clients []domain.Client, restaurants []domain.Restaurant, products []domain.Product) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, c := range clients {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO clients (id, name, email) VALUES ($1,$2,$3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email
		`, c.ID, c.Name, c.Email); err != nil {
			return wrapPgError("seed client", err)
		}
	}
	for _, rs := range restaurants {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO restaurants (id, name) VALUES ($1,$2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		`, rs.ID, rs.Name); err != nil {
			return wrapPgError("seed restaurant", err)
		}
	}
	for _, p := range products {
		p.Normalize()
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO products (id, restaurant_id, name, price, available, stock)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (id) DO UPDATE SET
				restaurant_id = EXCLUDED.restaurant_id,
				name = EXCLUDED.name,
				price = EXCLUDED.price,
				available = EXCLUDED.available,
				stock = EXCLUDED.stock
		`, p.ID, p.RestaurantID, p.Name, p.Price, p.Available, p.Stock); err != nil {
			return wrapPgError("seed product", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit seed tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var product domain.Product
	err := row.Scan(
		&product.ID,
		&product.RestaurantID,
		&product.Name,
		&product.Price,
		&product.Available,
		&product.Stock,
	)
	return product, err
}

// productLedger — доступ к остаткам внутри транзакции.
type productLedger struct {
	q dbtx
}

func (l *productLedger) GetForUpdate(ctx context.Context, id string) (domain.Product, error) {
	product, err := scanProduct(l.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, wrapPgError("lock product", err)
	}
	return product, nil
}

func (l *productLedger) SaveStock(ctx context.Context, product domain.Product) error {
	if product.Stock < 0 {
		return domain.ErrInsufficientStock
	}

	res, err := l.q.ExecContext(ctx, `
		UPDATE products SET stock = $1, available = $2 WHERE id = $3
	`, product.Stock, product.Available, product.ID)
	if err != nil {
		return wrapPgError("save product stock", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("product rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

var (
	_ domain.Catalog            = (*catalogRepository)(nil)
	_ domain.ProductLedgerStore = (*productLedger)(nil)
)
