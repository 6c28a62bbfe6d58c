package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

const orderColumns = `id, client_id, restaurant_id, status, version, created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderReader.
func NewOrderRepository(store *Store) domain.OrderReader {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return loadOrder(ctx, r.db, id, false)
}

func (r *orderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	return r.queryOrders(ctx, query, args...)
}

func (r *orderRepository) ListByClient(ctx context.Context, clientID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE client_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{clientID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return r.queryOrders(ctx, query, args...)
}

func (r *orderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapPgError("list orders", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	if err := attachLines(ctx, r.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order     domain.Order
		statusRaw string
	)
	if err := row.Scan(
		&order.ID,
		&order.ClientID,
		&order.RestaurantID,
		&statusRaw,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(statusRaw)
	if !order.Status.Valid() {
		return domain.Order{}, fmt.Errorf("invalid order status %q for order %s", statusRaw, order.ID)
	}
	return order, nil
}

func loadOrder(ctx context.Context, q dbtx, id string, forUpdate bool) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, wrapPgError("get order", err)
	}

	orders := []domain.Order{order}
	if err := attachLines(ctx, q, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

// attachLines подгружает позиции одним запросом на пачку заказов.
func attachLines(ctx context.Context, q dbtx, orders []domain.Order) error {
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
		index[order.ID] = i
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, created_at
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY created_at ASC, id ASC
	`, ids)
	if err != nil {
		return wrapPgError("query order lines", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(
			&line.ID,
			&line.OrderID,
			&line.ProductID,
			&line.Quantity,
			&line.UnitPrice,
			&line.CreatedAt,
		); err != nil {
			return fmt.Errorf("scan order line: %w", err)
		}
		i := index[line.OrderID]
		orders[i].Lines = append(orders[i].Lines, line)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order lines: %w", err)
	}
	return nil
}

// orderStore — запись заказов внутри транзакции.
type orderStore struct {
	q dbtx
}

func (s *orderStore) Create(ctx context.Context, order domain.Order) error {
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`) VALUES ($1,$2,$3,$4,1,$5,$6)
	`,
		order.ID, order.ClientID, order.RestaurantID, string(order.Status),
		order.CreatedAt, order.UpdatedAt,
	); err != nil {
		return wrapPgError("insert order", err)
	}

	for _, line := range order.Lines {
		if err := insertLine(ctx, s.q, order.ID, line); err != nil {
			return err
		}
	}
	return nil
}

func (s *orderStore) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return loadOrder(ctx, s.q, id, true)
}

func (s *orderStore) UpdateStatus(ctx context.Context, order domain.Order) error {
	return s.bumpVersion(ctx, order, string(order.Status))
}

func (s *orderStore) UpsertLine(ctx context.Context, order domain.Order, line domain.OrderLine) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE order_lines SET quantity = $1, unit_price = $2
		WHERE id = $3 AND order_id = $4
	`, line.Quantity, line.UnitPrice, line.ID, order.ID)
	if err != nil {
		return wrapPgError("update order line", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("order line rows affected: %w", err)
	}
	if affected == 0 {
		if err := insertLine(ctx, s.q, order.ID, line); err != nil {
			return err
		}
	}

	return s.bumpVersion(ctx, order, "")
}

func (s *orderStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return wrapPgError("delete order", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("order rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// bumpVersion увеличивает версию заказа при совпадении ожидаемой.
// Пустой status оставляет статус без изменений.
func (s *orderStore) bumpVersion(ctx context.Context, order domain.Order, status string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE orders
		SET status = COALESCE(NULLIF($1, ''), status),
		    updated_at = $2,
		    version = version + 1
		WHERE id = $3 AND version = $4
	`, status, order.UpdatedAt, order.ID, order.Version)
	if err != nil {
		return wrapPgError("update order", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("order rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := s.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
		return wrapPgError("check order exists", err)
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrOrderVersionConflict
}

func insertLine(ctx context.Context, q dbtx, orderID string, line domain.OrderLine) error {
	if _, err := q.ExecContext(ctx, `
		INSERT INTO order_lines (id, order_id, product_id, quantity, unit_price, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, line.ID, orderID, line.ProductID, line.Quantity, line.UnitPrice, line.CreatedAt); err != nil {
		return wrapPgError("insert order line", err)
	}
	return nil
}

var (
	_ domain.OrderReader = (*orderRepository)(nil)
	_ domain.OrderStore  = (*orderStore)(nil)
)
