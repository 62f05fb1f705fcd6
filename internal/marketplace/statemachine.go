package marketplace

type edge struct {
	from  Status
	event Event
}

// transitions is the complete order lifecycle. Pairs not listed are invalid.
var transitions = map[edge]Status{
	{StatusPending, EventPaymentConfirmed}: StatusInProgress,
	{StatusInProgress, EventDeliver}:       StatusDelivered,
	{StatusDelivered, EventApprove}:        StatusCompleted,
	{StatusPending, EventCancel}:           StatusCancelled,
	{StatusInProgress, EventCancel}:        StatusCancelled,
}

// Next returns the status reached by applying ev in from.
func Next(from Status, ev Event) (Status, bool) {
	to, ok := transitions[edge{from, ev}]
	return to, ok
}

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// Authorize decides whether actor may fire ev on o. It looks only at who the
// actor is relative to the order; whether the event fits the order's current
// status is Next's concern.
func Authorize(actor Actor, o Order, ev Event) Decision {
	switch ev {
	case EventPaymentConfirmed:
		if actor.ID == SystemActorID {
			return allow()
		}
		return deny("only the payment system can confirm payment")
	case EventDeliver:
		if actor.ID != "" && actor.ID == o.SellerID {
			return allow()
		}
		return deny("only the seller can deliver an order")
	case EventApprove:
		if actor.ID != "" && actor.ID == o.BuyerID {
			return allow()
		}
		return deny("only the buyer can approve a delivery")
	case EventCancel:
		if o.IsParticipant(actor.ID) {
			return allow()
		}
		return deny("only the buyer or seller can cancel an order")
	}
	return deny("unknown event " + string(ev))
}
