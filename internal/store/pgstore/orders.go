package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/gigmarket/internal/marketplace"
)

const orderColumns = `id, buyer_id, seller_id, gig_id, price, status, delivery_message,
       payment_ref, paid, paid_at, created_at, updated_at`

func scanOrder(row scanner) (marketplace.Order, error) {
	var o marketplace.Order
	var status string
	err := row.Scan(&o.ID, &o.BuyerID, &o.SellerID, &o.GigID, &o.Price, &status, &o.DeliveryMessage,
		&o.PaymentRef, &o.Paid, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt)
	o.Status = marketplace.Status(status)
	return o, err
}

func (s *Store) CreateOrder(ctx context.Context, o *marketplace.Order) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO orders (id, buyer_id, seller_id, gig_id, price, status, delivery_message,
                            payment_ref, paid, paid_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.BuyerID, o.SellerID, o.GigID, o.Price, string(o.Status), o.DeliveryMessage,
		o.PaymentRef, o.Paid, o.PaidAt, o.CreatedAt, o.UpdatedAt,
	)
	return translate(err, "create order")
}

func (s *Store) GetOrder(ctx context.Context, id string) (marketplace.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	return o, translate(err, "get order")
}

func (s *Store) GetOrderByPaymentRef(ctx context.Context, ref string) (marketplace.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_ref = $1`, ref))
	return o, translate(err, "get order by payment ref")
}

func (s *Store) ListOrders(ctx context.Context, f marketplace.OrderFilter) ([]marketplace.Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.BuyerID != "" {
		add("buyer_id = $%d", f.BuyerID)
	}
	if f.SellerID != "" {
		add("seller_id = $%d", f.SellerID)
	}
	if f.Participant != "" {
		args = append(args, f.Participant)
		n := len(args)
		where = append(where, fmt.Sprintf("(buyer_id = $%d OR seller_id = $%d)", n, n))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, translate(err, "list orders")
	}
	defer rows.Close()
	var out []marketplace.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, translate(err, "scan order")
		}
		out = append(out, o)
	}
	return out, translate(rows.Err(), "list orders")
}

// UpdateOrderStatus is a compare-and-swap on status. The WHERE clause carries
// the expected prior state, so concurrent transitions on one order serialize
// in the database and the loser matches zero rows.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to marketplace.Status, p marketplace.StatusPatch) (marketplace.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `
        UPDATE orders SET
            status           = $3,
            updated_at       = $4,
            delivery_message = COALESCE($5, delivery_message),
            payment_ref      = COALESCE($6, payment_ref),
            paid             = paid OR $7,
            paid_at          = COALESCE($8, paid_at)
        WHERE id = $1 AND status = $2
        RETURNING `+orderColumns,
		id, string(from), string(to), p.UpdatedAt, p.DeliveryMessage, p.PaymentRef, p.Paid, p.PaidAt,
	))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Order{}, translate(err, "update order status")
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return marketplace.Order{}, translate(err, "check order")
	}
	if !exists {
		return marketplace.Order{}, marketplace.ErrNoRecord
	}
	return marketplace.Order{}, marketplace.ErrStatusMismatch
}

func (s *Store) CompletedOrderFor(ctx context.Context, buyerID, gigID string) (marketplace.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `
        SELECT `+orderColumns+` FROM orders
        WHERE buyer_id = $1 AND gig_id = $2 AND status = $3
        ORDER BY updated_at DESC LIMIT 1`,
		buyerID, gigID, string(marketplace.StatusCompleted),
	))
	return o, translate(err, "completed order")
}

func (s *Store) CountOrdersByStatus(ctx context.Context) (map[marketplace.Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, translate(err, "count orders")
	}
	defer rows.Close()
	out := map[marketplace.Status]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, translate(err, "count orders")
		}
		out[marketplace.Status(status)] = n
	}
	return out, translate(rows.Err(), "count orders")
}
