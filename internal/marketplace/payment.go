package marketplace

import (
	"context"
	"errors"

	"github.com/sudo-init-do/gigmarket/internal/apperr"
)

// PaymentConfirmation is what the payment provider reports once a buyer has
// paid. Either OrderID names an existing pending order, or GigID and BuyerID
// describe the order to open. SellerID and Amount default to the gig's. With
// OrderID set, any other field given must agree with the stored order.
type PaymentConfirmation struct {
	PaymentRef string `json:"payment_ref" validate:"required,max=128"`
	OrderID    string `json:"order_id"`
	GigID      string `json:"gig_id"`
	BuyerID    string `json:"buyer_id"`
	SellerID   string `json:"seller_id"`
	Amount     *int64 `json:"amount" validate:"omitempty,min=0"`
}

// ConfirmPayment records a payment and moves the order to in_progress.
// Confirmations are idempotent on PaymentRef: a redelivered confirmation
// returns the order it produced the first time.
func (s *OrderService) ConfirmPayment(ctx context.Context, p PaymentConfirmation) (Order, error) {
	if p.PaymentRef == "" {
		return Order{}, apperr.Validation("payment_ref is required")
	}
	if o, ok, err := s.byPaymentRef(ctx, p.PaymentRef); err != nil || ok {
		return o, err
	}

	if p.OrderID != "" {
		cur, err := s.load(ctx, p.OrderID)
		if err != nil {
			return Order{}, err
		}
		if err := p.matches(cur); err != nil {
			return Order{}, err
		}
		o, err := s.Transition(ctx, p.OrderID, EventPaymentConfirmed, System(), TransitionInput{PaymentRef: p.PaymentRef})
		return s.settle(ctx, p.PaymentRef, o, err)
	}

	if p.GigID == "" || p.BuyerID == "" {
		return Order{}, apperr.Validation("order_id or gig_id and buyer_id are required")
	}
	g, err := s.gig(ctx, p.GigID)
	if err != nil {
		return Order{}, err
	}
	in := CreateOrderInput{GigID: g.ID, BuyerID: p.BuyerID, SellerID: g.SellerID, Price: g.Price, PaymentRef: p.PaymentRef}
	if p.SellerID != "" {
		in.SellerID = p.SellerID
	}
	if p.Amount != nil {
		in.Price = *p.Amount
	}

	created, err := s.Create(ctx, in)
	if err != nil {
		return s.settle(ctx, p.PaymentRef, Order{}, err)
	}
	o, err := s.Transition(ctx, created.ID, EventPaymentConfirmed, System(), TransitionInput{})
	return s.settle(ctx, p.PaymentRef, o, err)
}

// matches rejects a confirmation whose details contradict the order it names.
func (p PaymentConfirmation) matches(o Order) error {
	switch {
	case p.BuyerID != "" && p.BuyerID != o.BuyerID:
		return apperr.Validation("payment buyer does not match order %s", o.ID)
	case p.SellerID != "" && p.SellerID != o.SellerID:
		return apperr.Validation("payment seller does not match order %s", o.ID)
	case p.GigID != "" && p.GigID != o.GigID:
		return apperr.Validation("payment gig does not match order %s", o.ID)
	case p.Amount != nil && *p.Amount != o.Price:
		return apperr.Validation("payment amount %d does not match order price %d", *p.Amount, o.Price)
	}
	return nil
}

// settle resolves races between duplicate deliveries: whichever lost the
// unique payment_ref check returns the winner's order.
func (s *OrderService) settle(ctx context.Context, ref string, o Order, err error) (Order, error) {
	if err == nil {
		return o, nil
	}
	if errors.Is(err, apperr.ErrConflict) || errors.Is(err, apperr.ErrInvalidTransition) {
		if existing, ok, lerr := s.byPaymentRef(ctx, ref); lerr == nil && ok && existing.Paid {
			return existing, nil
		}
	}
	return Order{}, err
}

func (s *OrderService) byPaymentRef(ctx context.Context, ref string) (Order, bool, error) {
	o, err := s.orders.GetOrderByPaymentRef(ctx, ref)
	switch {
	case errors.Is(err, ErrNoRecord):
		return Order{}, false, nil
	case err != nil:
		return Order{}, false, apperr.Unavailable("could not look up payment", err)
	}
	// A pending order carrying the ref lost its confirmation halfway; finish it.
	if o.Status == StatusPending {
		done, terr := s.Transition(ctx, o.ID, EventPaymentConfirmed, System(), TransitionInput{})
		if terr == nil {
			return done, true, nil
		}
		if latest, lerr := s.orders.GetOrder(ctx, o.ID); lerr == nil && latest.Paid {
			return latest, true, nil
		}
		return Order{}, false, terr
	}
	return o, true, nil
}
