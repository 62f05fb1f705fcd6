package sqlstore

import (
	"context"

	"github.com/sudo-init-do/gigmarket/internal/marketplace"
)

func (s *Store) CreateOrder(ctx context.Context, o *marketplace.Order) error {
	return translate(s.db.WithContext(ctx).Create(o).Error, "create order")
}

func (s *Store) GetOrder(ctx context.Context, id string) (marketplace.Order, error) {
	var o marketplace.Order
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&o).Error
	return o, translate(err, "get order")
}

func (s *Store) GetOrderByPaymentRef(ctx context.Context, ref string) (marketplace.Order, error) {
	var o marketplace.Order
	err := s.db.WithContext(ctx).Where("payment_ref = ?", ref).First(&o).Error
	return o, translate(err, "get order by payment ref")
}

func (s *Store) ListOrders(ctx context.Context, f marketplace.OrderFilter) ([]marketplace.Order, error) {
	q := s.db.WithContext(ctx).Model(&marketplace.Order{})
	if f.BuyerID != "" {
		q = q.Where("buyer_id = ?", f.BuyerID)
	}
	if f.SellerID != "" {
		q = q.Where("seller_id = ?", f.SellerID)
	}
	if f.Participant != "" {
		q = q.Where("buyer_id = ? OR seller_id = ?", f.Participant, f.Participant)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []marketplace.Order
	err := q.Order("created_at DESC").Order("id").Find(&out).Error
	return out, translate(err, "list orders")
}

// UpdateOrderStatus is a compare-and-swap on status: the UPDATE only matches
// while the row still holds from.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to marketplace.Status, p marketplace.StatusPatch) (marketplace.Order, error) {
	updates := map[string]any{
		"status":     string(to),
		"updated_at": p.UpdatedAt,
	}
	if p.DeliveryMessage != nil {
		updates["delivery_message"] = *p.DeliveryMessage
	}
	if p.PaymentRef != nil {
		updates["payment_ref"] = *p.PaymentRef
	}
	if p.Paid {
		updates["paid"] = true
	}
	if p.PaidAt != nil {
		updates["paid_at"] = *p.PaidAt
	}

	db := s.db.WithContext(ctx)
	res := db.Model(&marketplace.Order{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return marketplace.Order{}, translate(res.Error, "update order status")
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := db.Model(&marketplace.Order{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return marketplace.Order{}, translate(err, "check order")
		}
		if n == 0 {
			return marketplace.Order{}, marketplace.ErrNoRecord
		}
		return marketplace.Order{}, marketplace.ErrStatusMismatch
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) CompletedOrderFor(ctx context.Context, buyerID, gigID string) (marketplace.Order, error) {
	var o marketplace.Order
	err := s.db.WithContext(ctx).
		Where("buyer_id = ? AND gig_id = ? AND status = ?", buyerID, gigID, string(marketplace.StatusCompleted)).
		Order("updated_at DESC").
		First(&o).Error
	return o, translate(err, "completed order")
}

func (s *Store) CountOrdersByStatus(ctx context.Context) (map[marketplace.Status]int, error) {
	var rows []struct {
		Status marketplace.Status
		N      int
	}
	err := s.db.WithContext(ctx).Model(&marketplace.Order{}).
		Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, translate(err, "count orders")
	}
	out := make(map[marketplace.Status]int, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
